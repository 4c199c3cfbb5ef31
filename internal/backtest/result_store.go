package backtest

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/mExOms/backtester/pkg/money"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

// RunSummary is the compact record persisted per run — the system of
// record for "what ran, with what result" independent of the full
// event stream.
type RunSummary struct {
	RunID          string
	StrategyID     string
	StrategyName   string
	Asset          string
	Timeframe      Timeframe
	StartedAt      time.Time
	FinishedAt     time.Time
	TotalTrades    int
	WinRatePercent decimal.Decimal
	ProfitFactor   decimal.Decimal
	SharpeRatio    decimal.Decimal
	MaxDrawdownPct decimal.Decimal
	EndingBalance  money.Money
	Status         RunStatus
	DataFileHashes []string
	ParserVersion  string
	EngineVersion  string
}

// ResultStore is the Orchestrator's write path for finished-run
// summaries and the read path reports use to look runs back up.
type ResultStore interface {
	SaveRun(ctx context.Context, summary RunSummary) error
	GetRun(ctx context.Context, runID string) (*RunSummary, error)
	ListRuns(ctx context.Context, strategyID string) ([]RunSummary, error)
}

// FileResultStore is the system of record: one JSON file per run under
// rootDir/<runId>.json, grounded on the teacher's pkg/storage file
// layout (a directory of named records, not a single growing file).
type FileResultStore struct {
	rootDir string
	mu      sync.Mutex
}

// NewFileResultStore builds a FileResultStore rooted at rootDir.
func NewFileResultStore(rootDir string) *FileResultStore {
	return &FileResultStore{rootDir: rootDir}
}

func (s *FileResultStore) path(runID string) string {
	return filepath.Join(s.rootDir, runID+".json")
}

// SaveRun persists summary as pretty-printed JSON.
func (s *FileResultStore) SaveRun(_ context.Context, summary RunSummary) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.rootDir, 0o755); err != nil {
		return fmt.Errorf("backtest: create result store dir: %w", err)
	}
	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return fmt.Errorf("backtest: marshal run summary: %w", err)
	}
	if err := os.WriteFile(s.path(summary.RunID), data, 0o644); err != nil {
		return fmt.Errorf("backtest: write run summary: %w", err)
	}
	return nil
}

// GetRun reads one run's summary back. Returns (nil, nil) if absent.
func (s *FileResultStore) GetRun(_ context.Context, runID string) (*RunSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path(runID))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("backtest: read run summary: %w", err)
	}
	var summary RunSummary
	if err := json.Unmarshal(data, &summary); err != nil {
		return nil, fmt.Errorf("backtest: unmarshal run summary: %w", err)
	}
	return &summary, nil
}

// ListRuns scans rootDir for every summary belonging to strategyID,
// newest first.
func (s *FileResultStore) ListRuns(_ context.Context, strategyID string) ([]RunSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.rootDir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("backtest: list result store dir: %w", err)
	}

	var runs []RunSummary
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.rootDir, e.Name()))
		if err != nil {
			continue
		}
		var summary RunSummary
		if err := json.Unmarshal(data, &summary); err != nil {
			continue
		}
		if summary.StrategyID == strategyID {
			runs = append(runs, summary)
		}
	}
	sort.Slice(runs, func(i, j int) bool { return runs[i].FinishedAt.After(runs[j].FinishedAt) })
	return runs, nil
}

// RedisResultCache wraps a ResultStore with a per-run cache whose
// entries expire after ttl (the number of cached runs is not bounded),
// read-through on GetRun and write-through on SaveRun. Misses
// and Redis errors fall back to the underlying store rather than
// failing the caller, since the cache is a latency optimization, not
// the system of record.
type RedisResultCache struct {
	next ResultStore
	rdb  *redis.Client
	ttl  time.Duration
}

// NewRedisResultCache wraps next with a Redis-backed cache. addr is a
// host:port, e.g. "localhost:6379".
func NewRedisResultCache(next ResultStore, addr string, ttl time.Duration) *RedisResultCache {
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	return &RedisResultCache{next: next, rdb: rdb, ttl: ttl}
}

func cacheKeyForRun(runID string) string { return "backtest:run:" + runID }

// SaveRun writes through to the backing store first, then best-effort
// refreshes the cache entry.
func (c *RedisResultCache) SaveRun(ctx context.Context, summary RunSummary) error {
	if err := c.next.SaveRun(ctx, summary); err != nil {
		return err
	}
	data, err := json.Marshal(summary)
	if err != nil {
		return nil
	}
	_ = c.rdb.Set(ctx, cacheKeyForRun(summary.RunID), data, c.ttl).Err()
	return nil
}

// GetRun reads from cache, falling back to and repopulating from the
// backing store on a miss.
func (c *RedisResultCache) GetRun(ctx context.Context, runID string) (*RunSummary, error) {
	val, err := c.rdb.Get(ctx, cacheKeyForRun(runID)).Result()
	if err == nil {
		var summary RunSummary
		if jsonErr := json.Unmarshal([]byte(val), &summary); jsonErr == nil {
			return &summary, nil
		}
	}
	summary, err := c.next.GetRun(ctx, runID)
	if err != nil || summary == nil {
		return summary, err
	}
	if data, err := json.Marshal(summary); err == nil {
		_ = c.rdb.Set(ctx, cacheKeyForRun(runID), data, c.ttl).Err()
	}
	return summary, nil
}

// ListRuns always defers to the backing store; strategy listings are
// not cached since they change shape on every new run.
func (c *RedisResultCache) ListRuns(ctx context.Context, strategyID string) ([]RunSummary, error) {
	return c.next.ListRuns(ctx, strategyID)
}
