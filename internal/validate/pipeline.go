// Package validate implements the validation pipeline used by every write
// use-case. A pipeline run is all-or-nothing: either every check passes or
// exactly one failure is reported, and for identical inputs that failure is
// always the same one regardless of remote response timing.
package validate

import (
	"context"
	"errors"
	"reflect"
	"sync"

	"github.com/rs/zerolog"

	"github.com/example/issue-tracker/internal/faults"
)

// Check is one validation rule. Exactly one of Local or Remote is set.
// Local checks are pure functions over the request and run first in
// declaration order. Remote checks call upstream services and run
// concurrently once all local checks have passed.
type Check struct {
	// Field names the request field the check guards, used in failure
	// metadata.
	Field string
	// Local is a pure check evaluated without I/O.
	Local func() error
	// Remote is an I/O-bound check against an upstream service.
	Remote func(ctx context.Context) error
}

// Pipeline orchestrates an ordered set of checks.
type Pipeline struct {
	logger zerolog.Logger
}

// New constructs a Pipeline.
func New(logger zerolog.Logger) *Pipeline {
	if reflect.ValueOf(logger).IsZero() {
		logger = zerolog.Nop()
	}
	return &Pipeline{logger: logger.With().Str("component", "validation").Logger()}
}

// Validate runs the checks and returns nil or the single reported failure.
//
// Local checks fail fast in declaration order. Remote checks are all issued
// without waiting on each other; the pipeline then waits for every one of
// them and reports the failure of the first-declared failing check, not the
// first to complete. That keeps error bodies stable under network jitter.
func (p *Pipeline) Validate(ctx context.Context, checks []Check) error {
	for _, c := range checks {
		if c.Local == nil {
			continue
		}
		if err := c.Local(); err != nil {
			p.logger.Debug().Str("field", c.Field).Err(err).Msg("validation: local check failed")
			return asValidationFailure(c.Field, err)
		}
	}

	// Result slots indexed by declaration order; the ordered scan below is
	// what makes the reported failure deterministic.
	results := make([]error, len(checks))
	var wg sync.WaitGroup
	for i, c := range checks {
		if c.Remote == nil {
			continue
		}
		wg.Add(1)
		go func(idx int, check Check) {
			defer wg.Done()
			results[idx] = check.Remote(ctx)
		}(i, c)
	}
	wg.Wait()

	for i, c := range checks {
		if results[i] != nil {
			p.logger.Debug().Str("field", c.Field).Err(results[i]).Msg("validation: remote check failed")
			return results[i]
		}
	}

	return nil
}

// asValidationFailure preserves already-typed failures and wraps plain
// errors with the field the check guards.
func asValidationFailure(field string, err error) error {
	if errors.Is(err, faults.ErrValidation) {
		return err
	}
	return faults.NewValidationFailure(field, err.Error())
}
