package layout

import (
	xlog "github.com/trickstertwo/xlog-amqp"
)

// JSONTimeEncoding controls how timestamps are encoded by the JSON layout.
type JSONTimeEncoding uint8

const (
	JSONTimeRFC3339Nano JSONTimeEncoding = iota + 1 // default
	JSONTimeUnixMillis                              // numeric, t.UnixMilli()
	JSONTimeUnixNanos                               // numeric, t.UnixNano()
)

// JSONDurationEncoding controls how time.Duration fields are encoded in JSON.
type JSONDurationEncoding uint8

const (
	JSONDurationString JSONDurationEncoding = iota + 1 // default (e.g., "1ms")
	JSONDurationMillis                                 // numeric milliseconds
	JSONDurationNanos                                  // numeric nanoseconds
)

// RawJSON is spliced into JSON output as-is. The content MUST be valid JSON.
type RawJSON []byte

// Options tunes the Text and JSON layouts.
type Options struct {
	TimeFormat   string // text only; empty = RFC3339Nano
	JSONTime     JSONTimeEncoding
	JSONDuration JSONDurationEncoding
}

func (o Options) withDefaults() Options {
	if o.JSONTime == 0 {
		o.JSONTime = JSONTimeRFC3339Nano
	}
	if o.JSONDuration == 0 {
		o.JSONDuration = JSONDurationString
	}
	return o
}

// Text renders logfmt-style lines:
//
//	ts=2025-01-01T00:00:00Z level=WARN context=svc logger=db thread=w-1 msg="slow query" ms=812
//
// Empty logger and thread names are omitted.
type Text struct{ opts Options }

func NewText(opts Options) *Text { return &Text{opts: opts.withDefaults()} }

func (t *Text) Format(r *xlog.Record) []byte {
	bp := getBuf()
	defer putBuf(bp)
	b := *bp

	b = append(b, "ts="...)
	if t.opts.TimeFormat != "" {
		b = r.At.AppendFormat(b, t.opts.TimeFormat)
	} else {
		b = appendRFC3339Nano(b, r.At)
	}
	b = append(b, " level="...)
	b = append(b, r.Level.String()...)
	b = append(b, " context="...)
	b = appendTextString(b, r.Context)
	if r.Logger != "" {
		b = append(b, " logger="...)
		b = appendTextString(b, r.Logger)
	}
	if r.Thread != "" {
		b = append(b, " thread="...)
		b = appendTextString(b, r.Thread)
	}
	b = append(b, " msg="...)
	b = appendTextString(b, r.Message)
	b = appendTextFields(b, r.Fields)
	b = append(b, '\n')

	*bp = b
	return detach(b)
}
