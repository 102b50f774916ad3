// Package supervisor wraps a hub's initial connection sequence with a
// bounded retry loop and tracks whether the hub is currently usable.
package supervisor

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/soyeahso/sipdash/internal/events"
	"github.com/soyeahso/sipdash/internal/logging"
)

// Defaults used when Options leaves a field zero.
const (
	DefaultMaxAttempts = 3
	DefaultBaseDelay   = time.Second
)

// ExhaustedError is returned once every attempt has failed. Err is the
// last attempt's error.
type ExhaustedError struct {
	Service  string
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("failed to connect to %s service after %d attempts: %v", e.Service, e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error { return e.Err }

// Options configures a Supervisor.
type Options struct {
	// Service names the hub in errors ("SIP", "chat").
	Service     string
	MaxAttempts int
	// BaseDelay is the linear backoff unit: attempt n waits n×BaseDelay
	// before the next try.
	BaseDelay time.Duration
}

// Supervisor runs connection sequences and holds the connected flag.
type Supervisor struct {
	opts      Options
	connected atomic.Bool
	log       *logging.Logger
}

// New creates a Supervisor.
func New(opts Options, log *logging.Logger) *Supervisor {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = DefaultBaseDelay
	}
	return &Supervisor{
		opts: opts,
		log:  log.Sub("supervisor").With("service", opts.Service),
	}
}

// Run calls fn until it succeeds or MaxAttempts is reached. Between
// attempts it waits attempt×BaseDelay; a cancelled ctx aborts the wait and
// is returned as is. On success the connected flag is set; on exhaustion it
// is cleared and an *ExhaustedError is returned.
func (s *Supervisor) Run(ctx context.Context, fn func(ctx context.Context) error) error {
	var lastErr error
	for attempt := 1; attempt <= s.opts.MaxAttempts; attempt++ {
		err := fn(ctx)
		if err == nil {
			s.connected.Store(true)
			if attempt > 1 {
				s.log.Info().Int("attempts", attempt).Msg("connected after retry")
			}
			return nil
		}
		lastErr = err
		if ctx.Err() != nil || attempt == s.opts.MaxAttempts {
			break
		}
		delay := time.Duration(attempt) * s.opts.BaseDelay
		s.log.Warn().
			Err(err).
			Int("attempt", attempt).
			Dur("retry_in", delay).
			Msg("connection attempt failed")

		if err := sleep(ctx, delay); err != nil {
			s.connected.Store(false)
			return err
		}
	}

	s.connected.Store(false)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	s.log.Error().Err(lastErr).Int("attempts", s.opts.MaxAttempts).Msg("giving up")
	return &ExhaustedError{Service: s.opts.Service, Attempts: s.opts.MaxAttempts, Err: lastErr}
}

// Connected reports the last known connection state.
func (s *Supervisor) Connected() bool {
	return s.connected.Load()
}

// SetConnected overrides the flag, e.g. after an explicit disconnect.
func (s *Supervisor) SetConnected(v bool) {
	s.connected.Store(v)
}

// Track keeps the flag in step with the hub's connectivity events.
func (s *Supervisor) Track(d *events.Dispatcher) {
	events.Subscribe(d, "supervisor-connected", func(context.Context, events.Connected) error {
		s.connected.Store(true)
		return nil
	})
	events.Subscribe(d, "supervisor-disconnected", func(context.Context, events.Disconnected) error {
		s.connected.Store(false)
		return nil
	})
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
