package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	binance "github.com/adshao/go-binance/v2"
	"github.com/mExOms/backtester/internal/backtest"
	"github.com/mExOms/backtester/pkg/money"
	"github.com/sirupsen/logrus"
)

// fetch-klines pulls historical-only kline data from Binance's public
// REST API and writes it into the <dataDir>/<asset>/<timeframe>.csv
// layout FileBarStore reads. It never touches order placement or
// account endpoints, so it runs unauthenticated (empty API key/secret)
// against public market data.
func main() {
	var (
		symbol    = flag.String("symbol", "BTCUSDT", "Binance symbol, e.g. BTCUSDT")
		interval  = flag.String("interval", "1h", "Binance kline interval: 1m,5m,15m,30m,1h,4h,1d,1w")
		dataDir   = flag.String("data", "./data/bars", "Root directory for FileBarStore CSV output")
		limit     = flag.Int("limit", 1000, "Klines per request (Binance max 1000)")
		startTime = flag.Int64("start", 0, "Start time, unix millis (0 = limit*interval ago)")
		endTime   = flag.Int64("end", 0, "End time, unix millis (0 = now)")
	)
	flag.Parse()

	log := logrus.NewEntry(logrus.New()).WithField("component", "fetch-klines")

	client := binance.NewClient("", "")
	ctx := context.Background()

	end := *endTime
	if end == 0 {
		end = time.Now().UnixMilli()
	}
	start := *startTime
	if start == 0 {
		width, ok := backtest.TimeframeMillis(backtest.Timeframe(*interval))
		if !ok {
			log.Fatalf("unknown interval %q", *interval)
		}
		start = end - width*int64(*limit)
	}

	var bars []backtest.PriceBar
	cursor := start
	for cursor < end {
		klines, err := client.NewKlinesService().
			Symbol(*symbol).
			Interval(*interval).
			StartTime(cursor).
			EndTime(end).
			Limit(*limit).
			Do(ctx)
		if err != nil {
			log.WithError(err).Fatal("fetch klines failed")
		}
		if len(klines) == 0 {
			break
		}
		for _, k := range klines {
			bar, err := toBar(k)
			if err != nil {
				log.WithError(err).Fatal("parse kline failed")
			}
			bars = append(bars, bar)
		}
		last := klines[len(klines)-1]
		if last.CloseTime <= cursor {
			break
		}
		cursor = last.CloseTime + 1
	}

	if err := writeCSV(*dataDir, *symbol, backtest.Timeframe(*interval), bars); err != nil {
		log.WithError(err).Fatal("write csv failed")
	}

	fmt.Printf("wrote %d bars for %s/%s to %s\n", len(bars), *symbol, *interval, *dataDir)
}

// toBar converts a Binance kline into a PriceBar tagged TierPremium:
// exchange-native klines are the highest-fidelity data this ingester
// can produce.
func toBar(k *binance.Kline) (backtest.PriceBar, error) {
	open, err := money.NewFromString(k.Open)
	if err != nil {
		return backtest.PriceBar{}, err
	}
	high, err := money.NewFromString(k.High)
	if err != nil {
		return backtest.PriceBar{}, err
	}
	low, err := money.NewFromString(k.Low)
	if err != nil {
		return backtest.PriceBar{}, err
	}
	closeP, err := money.NewFromString(k.Close)
	if err != nil {
		return backtest.PriceBar{}, err
	}
	volume, err := money.NewFromString(k.Volume)
	if err != nil {
		return backtest.PriceBar{}, err
	}
	return backtest.PriceBar{
		Timestamp: k.OpenTime,
		Open:      open,
		High:      high,
		Low:       low,
		Close:     closeP,
		Volume:    volume,
		Tier:      backtest.TierPremium,
	}, nil
}

func writeCSV(dataDir, asset string, timeframe backtest.Timeframe, bars []backtest.PriceBar) error {
	dir := dataDir + string(os.PathSeparator) + asset
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	path := dir + string(os.PathSeparator) + string(timeframe) + ".csv"
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := f.WriteString("timestamp,open,high,low,close,volume,tier\n"); err != nil {
		return err
	}
	for _, b := range bars {
		line := strconv.FormatInt(b.Timestamp, 10) + "," +
			b.Open.String() + "," + b.High.String() + "," + b.Low.String() + "," +
			b.Close.String() + "," + b.Volume.String() + "," + b.Tier.TierName() + "\n"
		if _, err := f.WriteString(line); err != nil {
			return err
		}
	}
	return nil
}
