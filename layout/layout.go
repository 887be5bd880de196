// Package layout renders xlog records into message bodies.
//
// A Layout is the pluggable formatter of a sink: the AMQP appender publishes
// whatever its Layout returns as the message payload. Layouts must be safe
// for concurrent use and must not retain the record.
package layout

import (
	xlog "github.com/trickstertwo/xlog-amqp"
)

// Layout formats one record. The returned slice is owned by the caller.
type Layout interface {
	Format(r *xlog.Record) []byte
}

// Func adapts a plain function to Layout.
type Func func(r *xlog.Record) []byte

func (f Func) Format(r *xlog.Record) []byte { return f(r) }

// Default returns the layout used when none is configured: DefaultPattern.
func Default() Layout { return defaultPattern }

var defaultPattern = MustPattern(DefaultPattern)
