package example

import (
	"log/slog"
	"time"

	"github.com/roach88/flowstate/internal/engine"
)

// DefaultResetDelay is how long error sub-states are shown before they reset.
const DefaultResetDelay = 3 * time.Second

// Option configures the example machines.
type Option func(*options)

type options struct {
	resetDelay time.Duration
	logger     *slog.Logger
	engineOpts []engine.Option
}

func newOptions(opts []Option) *options {
	o := &options{
		resetDelay: DefaultResetDelay,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// WithResetDelay sets how long an error sub-state is kept before it resets.
// Default: DefaultResetDelay.
func WithResetDelay(d time.Duration) Option {
	return func(o *options) {
		o.resetDelay = d
	}
}

// WithLogger sets the logger for the example machines and their engine.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithEngineOptions passes options through to every machine created,
// including mark-as-favorite children.
func WithEngineOptions(opts ...engine.Option) Option {
	return func(o *options) {
		o.engineOpts = append(o.engineOpts, opts...)
	}
}

// Journal names of the example machines.
const (
	PaginationMachineName = "pagination"
	FavoriteMachineName   = "mark_as_favorite"
)

// machineOptions returns the engine options for one machine.
func (o *options) machineOptions(name string, extra ...engine.Option) []engine.Option {
	out := []engine.Option{engine.WithLogger(o.logger), engine.WithName(name)}
	out = append(out, o.engineOpts...)
	return append(out, extra...)
}
