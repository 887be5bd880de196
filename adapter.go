package xlog

import (
	"context"

	"go.uber.org/multierr"
)

// Adapter is the logging backend Strategy (e.g., slog wrapper, AMQP appender).
// Log receives a Record carrying the single authoritative timestamp from the
// Logger. Adapters must not retain r after Log returns.
type Adapter interface {
	Log(r *Record)
	With(fields []Field) Adapter // return a child adapter with bound fields (do not mutate receiver)
}

// Lifecycle is implemented by adapters that hold external resources
// (connections, goroutines). Logger.Start and Logger.Stop delegate to it.
type Lifecycle interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// Tee fans every record out to all given adapters in order.
func Tee(adapters ...Adapter) Adapter {
	out := make(tee, 0, len(adapters))
	for _, a := range adapters {
		if a != nil {
			out = append(out, a)
		}
	}
	return out
}

type tee []Adapter

func (t tee) Log(r *Record) {
	for _, a := range t {
		a.Log(r)
	}
}

func (t tee) With(fs []Field) Adapter {
	child := make(tee, len(t))
	for i, a := range t {
		child[i] = a.With(fs)
	}
	return child
}

// Start starts every Lifecycle member, stopping on the first failure.
func (t tee) Start(ctx context.Context) error {
	for _, a := range t {
		if lc, ok := a.(Lifecycle); ok {
			if err := lc.Start(ctx); err != nil {
				return err
			}
		}
	}
	return nil
}

// Stop stops every Lifecycle member even if some fail.
func (t tee) Stop(ctx context.Context) error {
	var err error
	for _, a := range t {
		if lc, ok := a.(Lifecycle); ok {
			err = multierr.Append(err, lc.Stop(ctx))
		}
	}
	return err
}

func (t tee) SetMinLevel(l Level) {
	for _, a := range t {
		if ls, ok := a.(adapterLevelSetter); ok {
			ls.SetMinLevel(l)
		}
	}
}
