// Package integration converts domain events into wire-format records and
// delivers them to the external broker with at-least-once semantics. A
// delivery failure never flows back to the originating write: after the
// bounded retry budget is spent the failure is logged as a delivery gap.
package integration

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"math/rand"
	"reflect"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/example/issue-tracker/internal/broker"
	"github.com/example/issue-tracker/internal/domain"
	"github.com/example/issue-tracker/internal/metrics"
)

// SyncProducer captures the producer behaviour the publisher requires.
type SyncProducer interface {
	PublishSync(topic string, key []byte, headers map[string][]byte, payload []byte) (partition int32, offset int64, err error)
}

// Config contains the runtime settings for the publisher.
type Config struct {
	Topic       string
	MaxAttempts int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
}

// Dependencies collects the publisher's collaborators.
type Dependencies struct {
	Broker   *broker.Broker
	Producer SyncProducer
	Metrics  *metrics.Metrics
	Logger   zerolog.Logger
	Now      func() time.Time
}

// Publisher holds the single broker subscription that drives external
// delivery. The subscription is taken at construction so no event published
// after New can be missed; Run is started once at process start.
type Publisher struct {
	cfg      Config
	sub      *broker.Subscription
	producer SyncProducer
	metrics  *metrics.Metrics
	logger   zerolog.Logger
	now      func() time.Time

	randMu sync.Mutex
	rnd    *rand.Rand
}

// New constructs a Publisher.
func New(cfg Config, deps Dependencies) (*Publisher, error) {
	if cfg.Topic == "" {
		return nil, errors.New("integration: topic is required")
	}
	if cfg.MaxAttempts < 1 {
		return nil, errors.New("integration: max attempts must be >= 1")
	}
	if deps.Broker == nil {
		return nil, errors.New("integration: broker dependency is required")
	}
	if deps.Producer == nil {
		return nil, errors.New("integration: producer dependency is required")
	}

	logger := deps.Logger
	if reflect.ValueOf(logger).IsZero() {
		logger = zerolog.Nop()
	}
	logger = logger.With().Str("component", "integration_publisher").Logger()

	nowFunc := deps.Now
	if nowFunc == nil {
		nowFunc = time.Now
	}

	return &Publisher{
		cfg:      cfg,
		sub:      deps.Broker.Subscribe(),
		producer: deps.Producer,
		metrics:  deps.Metrics,
		logger:   logger,
		now:      nowFunc,
		rnd:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}, nil
}

// Run delivers events until the broker closes. On context cancellation it
// keeps consuming the subscription so events already accepted by the write
// path are still attempted; the owner closes the broker right after
// cancelling, which flushes the remaining backlog and ends the loop.
func (p *Publisher) Run(ctx context.Context) error {
	defer p.sub.Close()

	p.logger.Info().Str("topic", p.cfg.Topic).Msg("integration: publisher started")

	for {
		select {
		case <-ctx.Done():
			p.drainAfterShutdown(ctx)
			return ctx.Err()
		case ev, ok := <-p.sub.C():
			if !ok {
				p.logger.Info().Msg("integration: broker closed, publisher stopping")
				return nil
			}
			p.deliver(ctx, ev)
		}
	}
}

// drainAfterShutdown attempts delivery of every event still queued on the
// subscription. With the context gone each event gets a final attempt and
// no backoff sleeps; an undeliverable event is logged as a gap, never
// silently lost.
func (p *Publisher) drainAfterShutdown(ctx context.Context) {
	for ev := range p.sub.C() {
		p.deliver(ctx, ev)
	}
}

// deliver sends one event's record, retrying transiently with backoff. The
// same marshalled record is reused across attempts so every delivery of
// this event carries the identical idempotency key.
func (p *Publisher) deliver(ctx context.Context, ev domain.Event) {
	record := FromEvent(ev)

	payload, err := json.Marshal(record)
	if err != nil {
		// Payloads are aggregate snapshots of plain structs; a marshal
		// failure is a programming error, logged as a gap.
		p.metrics.DeliveryGap()
		p.logger.Error().
			Str("event_id", ev.EventID).
			Str("event_name", ev.EventName).
			Err(err).
			Msg("integration: delivery gap, record could not be marshalled")
		return
	}

	key := []byte(record.ID)
	headers := map[string][]byte{
		"content-type": []byte("application/json"),
	}

	for attempt := 1; ; attempt++ {
		partition, offset, err := p.producer.PublishSync(p.cfg.Topic, key, headers, payload)
		if err == nil {
			p.metrics.RecordDelivered()
			p.logger.Info().
				Str("event_id", ev.EventID).
				Str("event_name", ev.EventName).
				Str("request_id", ev.RequestID).
				Int32("partition", partition).
				Int64("offset", offset).
				Int("attempt", attempt).
				Msg("integration: record delivered")
			return
		}

		p.logger.Warn().
			Str("event_id", ev.EventID).
			Str("event_name", ev.EventName).
			Int("attempt", attempt).
			Err(err).
			Msg("integration: send failed")

		if attempt >= p.cfg.MaxAttempts {
			p.metrics.DeliveryGap()
			p.logger.Error().
				Str("event_id", ev.EventID).
				Str("event_name", ev.EventName).
				Str("request_id", ev.RequestID).
				Int("attempts", attempt).
				Msg("integration: delivery gap, retry budget exhausted")
			return
		}

		p.metrics.DeliveryRetried()
		if !p.wait(ctx, p.computeBackoff(attempt)) {
			p.metrics.DeliveryGap()
			p.logger.Warn().
				Str("event_id", ev.EventID).
				Msg("integration: shutdown while awaiting retry, recording delivery gap")
			return
		}
	}
}

func (p *Publisher) computeBackoff(attempt int) time.Duration {
	if p.cfg.BaseBackoff <= 0 {
		return 0
	}

	multiplier := math.Pow(2, float64(attempt-1))
	raw := time.Duration(float64(p.cfg.BaseBackoff) * multiplier)
	if p.cfg.MaxBackoff > 0 && raw > p.cfg.MaxBackoff {
		raw = p.cfg.MaxBackoff
	}

	return p.fullJitter(raw)
}

func (p *Publisher) fullJitter(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}

	p.randMu.Lock()
	defer p.randMu.Unlock()
	return time.Duration(p.rnd.Int63n(int64(max) + 1))
}

// wait sleeps for the backoff or reports false if the context ended first.
func (p *Publisher) wait(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
