// Package service owns the write use-cases of the tracker core. Each write
// walks the same state machine: Received → Validating → (Valid →
// Persisting → Emitting → Completed) | (Invalid → Rejected). A Rejected
// outcome is returned to the caller as a typed failure; there is no retry
// loop here.
package service

import (
	"context"
	"errors"
	"reflect"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"github.com/example/issue-tracker/internal/auth"
	"github.com/example/issue-tracker/internal/domain"
	"github.com/example/issue-tracker/internal/faults"
	"github.com/example/issue-tracker/internal/validate"
)

// State identifies a step of the per-request write state machine.
type State string

// Write request states. Completed and Rejected are terminal.
const (
	StateReceived   State = "received"
	StateValidating State = "validating"
	StatePersisting State = "persisting"
	StateEmitting   State = "emitting"
	StateCompleted  State = "completed"
	StateRejected   State = "rejected"
)

// Repository is the persistence port for one aggregate type. Save fails
// with faults.ErrDuplicateKey on uniqueness violations; the storage format
// behind it is not this core's concern.
type Repository[T any] interface {
	Save(ctx context.Context, entity T) (T, error)
	FindByID(ctx context.Context, id string) (T, bool, error)
	Exists(ctx context.Context, id string) (bool, error)
}

// EventPublisher is the broker hand-off port.
type EventPublisher interface {
	Publish(ev domain.Event) error
}

// core carries the collaborators every write use-case shares.
type core struct {
	pipeline *validate.Pipeline
	verifier auth.Verifier
	events   EventPublisher
	sem      *semaphore.Weighted
	logger   zerolog.Logger
	now      func() time.Time
}

// Dependencies collects the runtime collaborators shared by the services.
type Dependencies struct {
	Pipeline *validate.Pipeline
	Verifier auth.Verifier
	Events   EventPublisher
	// WriteConcurrency bounds the number of writes in flight across the
	// service; zero or negative disables the bound.
	WriteConcurrency int
	Logger           zerolog.Logger
	Now              func() time.Time
}

func newCore(component string, deps Dependencies) (*core, error) {
	if deps.Pipeline == nil {
		return nil, errors.New("service: validation pipeline is required")
	}
	if deps.Verifier == nil {
		return nil, errors.New("service: auth verifier is required")
	}
	if deps.Events == nil {
		return nil, errors.New("service: event publisher is required")
	}

	logger := deps.Logger
	if reflect.ValueOf(logger).IsZero() {
		logger = zerolog.Nop()
	}
	logger = logger.With().Str("component", component).Logger()

	nowFunc := deps.Now
	if nowFunc == nil {
		nowFunc = time.Now
	}

	var sem *semaphore.Weighted
	if deps.WriteConcurrency > 0 {
		sem = semaphore.NewWeighted(int64(deps.WriteConcurrency))
	}

	return &core{
		pipeline: deps.Pipeline,
		verifier: deps.Verifier,
		events:   deps.Events,
		sem:      sem,
		logger:   logger,
		now:      nowFunc,
	}, nil
}

// acquire blocks until a write slot is available or the caller cancels.
func (c *core) acquire(ctx context.Context) error {
	if c.sem == nil {
		return nil
	}
	return c.sem.Acquire(ctx, 1)
}

func (c *core) release() {
	if c.sem != nil {
		c.sem.Release(1)
	}
}

// authorize resolves the caller principal and requires write access. It is
// a precondition of every write, distinct from the validation taxonomy.
func (c *core) authorize(ctx context.Context, req domain.Request) (auth.Principal, error) {
	principal, err := c.verifier.Verify(ctx, req.GetToken())
	if err != nil {
		c.logger.Warn().Str("request_id", req.GetRequestID()).Err(err).Msg("service: authentication failed")
		return auth.Principal{}, err
	}
	if !principal.CanWrite() {
		c.logger.Warn().
			Str("request_id", req.GetRequestID()).
			Str("principal", principal.ID).
			Str("role", principal.Role).
			Msg("service: caller lacks write access")
		return auth.Principal{}, faults.NewAuthorizationDenied(principal.ID, "caller lacks write access")
	}
	return principal, nil
}

// transition logs a state-machine step for one request.
func (c *core) transition(requestID string, state State) {
	c.logger.Debug().Str("request_id", requestID).Str("state", string(state)).Msg("service: state transition")
}

// emit offers the event to the broker. Hand-off failure is a non-fatal
// warning: the write already succeeded and is never rolled back for a lost
// notification.
func (c *core) emit(ev domain.Event) {
	if err := c.events.Publish(ev); err != nil {
		c.logger.Warn().
			Str("event_id", ev.EventID).
			Str("event_name", ev.EventName).
			Err(err).
			Msg("service: event hand-off degraded")
	}
}

// persistCtx detaches persistence from the caller's cancellation: once a
// write has passed validation it runs to completion, so no torn state is
// persisted.
func persistCtx(ctx context.Context) context.Context {
	return context.WithoutCancel(ctx)
}

// translateSaveErr maps storage uniqueness races to AlreadyExists.
func translateSaveErr(err error, key string) error {
	if errors.Is(err, faults.ErrDuplicateKey) {
		return faults.NewAlreadyExists(key)
	}
	return err
}
