package integration_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/example/issue-tracker/internal/broker"
	"github.com/example/issue-tracker/internal/domain"
	"github.com/example/issue-tracker/internal/integration"
)

type sentRecord struct {
	topic   string
	key     string
	payload []byte
}

// producerStub fails the first failuresFor[key] sends of each key, then
// succeeds. A key with failures >= MaxAttempts is delivered as a gap.
type producerStub struct {
	mu            sync.Mutex
	failuresFor   map[string]int
	attemptsByKey map[string]int
	sent          []sentRecord
	delivered     chan struct{}
}

func newProducerStub() *producerStub {
	return &producerStub{
		failuresFor:   make(map[string]int),
		attemptsByKey: make(map[string]int),
		delivered:     make(chan struct{}, 64),
	}
}

func (p *producerStub) failFirst(key string, n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failuresFor[key] = n
}

func (p *producerStub) PublishSync(topic string, key []byte, _ map[string][]byte, payload []byte) (int32, int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.attemptsByKey[string(key)]++
	if p.attemptsByKey[string(key)] <= p.failuresFor[string(key)] {
		return 0, 0, errors.New("broker unavailable")
	}

	p.sent = append(p.sent, sentRecord{topic: topic, key: string(key), payload: payload})
	select {
	case p.delivered <- struct{}{}:
	default:
	}
	return 1, int64(len(p.sent)), nil
}

func (p *producerStub) attempts(key string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.attemptsByKey[key]
}

func (p *producerStub) records() []sentRecord {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]sentRecord, len(p.sent))
	copy(out, p.sent)
	return out
}

func runPublisher(t *testing.T, cfg integration.Config, b *broker.Broker, prod integration.SyncProducer) (cancel func()) {
	t.Helper()

	pub, err := integration.New(cfg, integration.Dependencies{
		Broker:   b,
		Producer: prod,
		Logger:   zerolog.Nop(),
	})
	if err != nil {
		t.Fatalf("new publisher: %v", err)
	}

	ctx, stop := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = pub.Run(ctx)
	}()

	return func() {
		b.Close()
		stop()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("publisher did not stop")
		}
	}
}

func TestDeliveredRecordCarriesEventFields(t *testing.T) {
	b := broker.New(zerolog.Nop())
	defer b.Close()

	prod := newProducerStub()
	stop := runPublisher(t, integration.Config{Topic: "tracker.events", MaxAttempts: 3}, b, prod)
	defer stop()

	occurred := time.Date(2026, 8, 14, 10, 30, 0, 0, time.UTC)
	ev := domain.NewEvent(domain.PublisherUser, "User", domain.ActionCreated, "req-42", occurred, map[string]string{"id": "u-1"})
	if err := b.Publish(ev); err != nil {
		t.Fatalf("publish: %v", err)
	}

	select {
	case <-prod.delivered:
	case <-time.After(2 * time.Second):
		t.Fatal("record was not delivered")
	}

	records := prod.records()
	if len(records) != 1 {
		t.Fatalf("records = %d, want 1", len(records))
	}
	if records[0].topic != "tracker.events" {
		t.Fatalf("topic = %q", records[0].topic)
	}
	if records[0].key != ev.EventID {
		t.Fatalf("key = %q, want event id %q", records[0].key, ev.EventID)
	}

	var record integration.Record
	if err := json.Unmarshal(records[0].payload, &record); err != nil {
		t.Fatalf("unmarshal record: %v", err)
	}
	if record.ID != ev.EventID {
		t.Fatalf("record id = %q, want %q", record.ID, ev.EventID)
	}
	if record.RequestID != "req-42" {
		t.Fatalf("request id = %q", record.RequestID)
	}
	if record.Name != "Service.User#User#Created" {
		t.Fatalf("name = %q", record.Name)
	}
	if record.Publisher != domain.PublisherUser {
		t.Fatalf("publisher = %q", record.Publisher)
	}
	if record.CreatedAt != occurred.Unix() {
		t.Fatalf("created at = %d, want %d", record.CreatedAt, occurred.Unix())
	}
}

func TestTransientFailureIsRetriedWithTheSameRecord(t *testing.T) {
	b := broker.New(zerolog.Nop())
	defer b.Close()

	prod := newProducerStub()
	stop := runPublisher(t, integration.Config{Topic: "tracker.events", MaxAttempts: 5}, b, prod)
	defer stop()

	ev := domain.NewEvent(domain.PublisherIssue, "Issue", domain.ActionCreated, "req-7", time.Now().UTC(), nil)
	prod.failFirst(ev.EventID, 2)
	if err := b.Publish(ev); err != nil {
		t.Fatalf("publish: %v", err)
	}

	select {
	case <-prod.delivered:
	case <-time.After(2 * time.Second):
		t.Fatal("record was not delivered after retries")
	}

	if got := prod.attempts(ev.EventID); got != 3 {
		t.Fatalf("attempts = %d, want 3", got)
	}
	records := prod.records()
	if len(records) != 1 || records[0].key != ev.EventID {
		t.Fatalf("records = %+v", records)
	}
}

func TestRetryBudgetExhaustionDropsTheRecord(t *testing.T) {
	b := broker.New(zerolog.Nop())
	defer b.Close()

	prod := newProducerStub()
	stop := runPublisher(t, integration.Config{Topic: "tracker.events", MaxAttempts: 3}, b, prod)
	defer stop()

	failing := domain.NewEvent(domain.PublisherProject, "Project", domain.ActionCreated, "req-a", time.Now().UTC(), nil)
	prod.failFirst(failing.EventID, 100)
	if err := b.Publish(failing); err != nil {
		t.Fatalf("publish: %v", err)
	}

	// A later event must still be delivered once: the gap does not wedge
	// the subscription and the failed record is not re-queued.
	next := domain.NewEvent(domain.PublisherProject, "Project", domain.ActionCreated, "req-b", time.Now().UTC(), nil)
	if err := b.Publish(next); err != nil {
		t.Fatalf("publish: %v", err)
	}

	select {
	case <-prod.delivered:
	case <-time.After(2 * time.Second):
		t.Fatal("next record was not delivered after the gap")
	}

	if got := prod.attempts(failing.EventID); got != 3 {
		t.Fatalf("failing record attempts = %d, want exactly the budget of 3", got)
	}
	records := prod.records()
	if len(records) != 1 || records[0].key != next.EventID {
		t.Fatalf("records = %+v", records)
	}
}

func TestBackoffIsBoundedAndGrows(t *testing.T) {
	b := broker.New(zerolog.Nop())
	defer b.Close()

	prod := newProducerStub()
	cfg := integration.Config{
		Topic:       "tracker.events",
		MaxAttempts: 3,
		BaseBackoff: 5 * time.Millisecond,
		MaxBackoff:  20 * time.Millisecond,
	}
	stop := runPublisher(t, cfg, b, prod)
	defer stop()

	ev := domain.NewEvent(domain.PublisherUser, "User", domain.ActionCreated, "req-1", time.Now().UTC(), nil)
	prod.failFirst(ev.EventID, 2)
	start := time.Now()
	if err := b.Publish(ev); err != nil {
		t.Fatalf("publish: %v", err)
	}

	select {
	case <-prod.delivered:
	case <-time.After(2 * time.Second):
		t.Fatal("record was not delivered")
	}

	// Two waits of at most MaxBackoff each, plus scheduling slack.
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Fatalf("delivery took %v, backoff exceeded its cap", elapsed)
	}
}

func TestShutdownDeliversAcceptedEvents(t *testing.T) {
	b := broker.New(zerolog.Nop())
	prod := newProducerStub()

	pub, err := integration.New(integration.Config{Topic: "tracker.events", MaxAttempts: 3}, integration.Dependencies{
		Broker:   b,
		Producer: prod,
		Logger:   zerolog.Nop(),
	})
	if err != nil {
		t.Fatalf("new publisher: %v", err)
	}

	// Events accepted before Run even starts must still reach the broker:
	// the subscription is owned by the publisher from construction.
	var published []string
	for i := 0; i < 3; i++ {
		ev := domain.NewEvent(domain.PublisherUser, "User", domain.ActionCreated, fmt.Sprintf("req-%d", i), time.Now().UTC(), nil)
		published = append(published, ev.EventID)
		if err := b.Publish(ev); err != nil {
			t.Fatalf("publish %d: %v", i, err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = pub.Run(ctx)
	}()

	// Shut down in the process order: cancel, then close the broker.
	cancel()
	b.Close()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publisher did not stop")
	}

	records := prod.records()
	if len(records) != 3 {
		t.Fatalf("delivered %d of 3 accepted events across shutdown", len(records))
	}
	for i, rec := range records {
		if rec.key != published[i] {
			t.Fatalf("record %d key = %q, want %q", i, rec.key, published[i])
		}
	}
}
