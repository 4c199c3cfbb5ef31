package backtest

import (
	"fmt"

	"github.com/mExOms/backtester/pkg/nats"
	"github.com/sirupsen/logrus"
)

// EventPublisher broadcasts run events to subscribers outside the
// process that ran the backtest (a dashboard, a notification bot).
// It is best-effort: a publish failure is logged and swallowed, never
// propagated into the simulation path.
type EventPublisher interface {
	PublishStart(runID, strategyName, asset string)
	PublishTrade(runID string, trade CompletedTrade)
	PublishEnd(runID string, summary RunSummary)
}

// NATSEventPublisher broadcasts to backtest.events.<runId>.<event> over
// JetStream, grounded on the teacher's pkg/nats Client publish/JSON
// marshal pattern (the subject shape itself doesn't fit
// PublishSystem's fixed "system.<component>.<event>" convention, so
// this uses the more general Client.Publish).
type NATSEventPublisher struct {
	client *nats.Client
	log    *logrus.Entry
}

// NewNATSEventPublisher dials url and provisions the BACKTEST_EVENTS
// stream. Returns an error if NATS is unreachable; callers that treat
// event broadcast as optional should fall back to a NoopEventPublisher
// rather than fail run startup.
func NewNATSEventPublisher(url string, log *logrus.Entry) (*NATSEventPublisher, error) {
	client, err := nats.NewClient(&nats.Config{
		URL:      url,
		ClientID: "backtest-engine",
		Streams: []nats.StreamConfig{
			{Name: "BACKTEST_EVENTS", Subjects: []string{"backtest.events.>"}},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("backtest: connect nats publisher: %w", err)
	}
	if log == nil {
		log = logrus.NewEntry(logrus.New())
	}
	return &NATSEventPublisher{client: client, log: log.WithField("component", "nats_publisher")}, nil
}

func (p *NATSEventPublisher) subject(runID, event string) string {
	return fmt.Sprintf("backtest.events.%s.%s", runID, event)
}

// PublishStart broadcasts the start-of-run event.
func (p *NATSEventPublisher) PublishStart(runID, strategyName, asset string) {
	payload := map[string]string{"strategyName": strategyName, "asset": asset}
	if err := p.client.Publish(p.subject(runID, "start"), payload); err != nil {
		p.log.WithError(err).Warn("publish start event failed")
	}
}

// PublishTrade broadcasts one completed trade.
func (p *NATSEventPublisher) PublishTrade(runID string, trade CompletedTrade) {
	if err := p.client.Publish(p.subject(runID, "trade"), trade); err != nil {
		p.log.WithError(err).Warn("publish trade event failed")
	}
}

// PublishEnd broadcasts the final run summary.
func (p *NATSEventPublisher) PublishEnd(runID string, summary RunSummary) {
	if err := p.client.Publish(p.subject(runID, "end"), summary); err != nil {
		p.log.WithError(err).Warn("publish end event failed")
	}
}

// Close releases the underlying NATS connection.
func (p *NATSEventPublisher) Close() {
	p.client.Close()
}

// NoopEventPublisher discards every event. Used when no NATS URL is
// configured.
type NoopEventPublisher struct{}

func (NoopEventPublisher) PublishStart(string, string, string)      {}
func (NoopEventPublisher) PublishTrade(string, CompletedTrade)      {}
func (NoopEventPublisher) PublishEnd(string, RunSummary)            {}
