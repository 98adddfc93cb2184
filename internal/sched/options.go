package sched

import (
	"errors"
	"time"

	"github.com/rs/zerolog"
)

type schedOptions struct {
	logger zerolog.Logger
	clock  func() time.Time
}

// Option configures a Scheduler.
type Option interface {
	apply(*schedOptions) error
}

type optionFunc func(*schedOptions) error

func (f optionFunc) apply(o *schedOptions) error { return f(o) }

// WithLogger sets the structured logger. The default discards everything.
func WithLogger(l zerolog.Logger) Option {
	return optionFunc(func(o *schedOptions) error {
		o.logger = l
		return nil
	})
}

// WithClock replaces time.Now for frame budgets and Task.Sleep.
func WithClock(now func() time.Time) Option {
	return optionFunc(func(o *schedOptions) error {
		if now == nil {
			return errors.New("sched: nil clock")
		}
		o.clock = now
		return nil
	})
}

func resolveOptions(opts []Option) (*schedOptions, error) {
	o := &schedOptions{
		logger: zerolog.Nop(),
		clock:  time.Now,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt.apply(o); err != nil {
			return nil, err
		}
	}
	return o, nil
}
