package slogadapter

import (
	"context"
	"io"
	"log/slog"
	"os"

	xlog "github.com/trickstertwo/xlog-amqp"
)

// SlogAdapter adapts xlog to the Go slog API. It builds slog.Attrs directly
// and uses LogAttrs.
type SlogAdapter struct {
	l     *slog.Logger
	lv    *slog.LevelVar // optional, enables SetMinLevel
	tsKey string
	bound []xlog.Field
}

func toSlog(l xlog.Level) slog.Level {
	return slog.Level(l)
}

func New(l *slog.Logger) *SlogAdapter {
	return NewWithTimestampKey(l, nil, "ts")
}

// NewWithTimestampKey wires an optional LevelVar for SetMinLevel and
// overrides the timestamp attribute key (default "ts").
func NewWithTimestampKey(l *slog.Logger, lv *slog.LevelVar, tsKey string) *SlogAdapter {
	if l == nil {
		l = slog.Default()
	}
	if tsKey == "" {
		tsKey = "ts"
	}
	return &SlogAdapter{l: l, lv: lv, tsKey: tsKey}
}

func (a *SlogAdapter) With(fs []xlog.Field) xlog.Adapter {
	child := *a
	child.bound = append(copyFields(nil, a.bound), fs...)
	return &child
}

func (a *SlogAdapter) Log(r *xlog.Record) {
	lvl := toSlog(r.Level)
	if !a.l.Enabled(context.Background(), lvl) {
		return
	}

	attrs := make([]slog.Attr, 0, len(a.bound)+len(r.Fields)+4)
	attrs = append(attrs, slog.Time(a.tsKey, r.At), slog.String("context", r.Context))
	if r.Logger != "" {
		attrs = append(attrs, slog.String("logger", r.Logger))
	}
	if r.Thread != "" {
		attrs = append(attrs, slog.String("thread", r.Thread))
	}
	for i := range a.bound {
		attrs = append(attrs, toAttr(&a.bound[i]))
	}
	for i := range r.Fields {
		attrs = append(attrs, toAttr(&r.Fields[i]))
	}

	a.l.LogAttrs(context.Background(), lvl, r.Message, attrs...)
}

func (a *SlogAdapter) SetMinLevel(l xlog.Level) {
	if a.lv != nil {
		a.lv.Set(toSlog(l))
	}
}

func toAttr(f *xlog.Field) slog.Attr {
	switch f.Kind {
	case xlog.KindString:
		return slog.String(f.K, f.Str)
	case xlog.KindInt64:
		return slog.Int64(f.K, f.Int64)
	case xlog.KindUint64:
		return slog.Uint64(f.K, f.Uint64)
	case xlog.KindFloat64:
		return slog.Float64(f.K, f.Float64)
	case xlog.KindBool:
		return slog.Bool(f.K, f.Bool)
	case xlog.KindDuration:
		return slog.Duration(f.K, f.Dur)
	case xlog.KindTime:
		return slog.Time(f.K, f.Time)
	case xlog.KindError:
		return slog.Any(f.K, f.Err)
	case xlog.KindBytes:
		return slog.Any(f.K, f.Bytes)
	case xlog.KindAny:
		return slog.Any(f.K, f.Any)
	default:
		return slog.Any(f.K, nil)
	}
}

func copyFields(dst, src []xlog.Field) []xlog.Field {
	if len(src) == 0 {
		return dst
	}
	return append(dst, src...)
}

// NewJSONLogger builds an xlog.Logger wired to a slog JSON handler.
func NewJSONLogger(w io.Writer, minLevel xlog.Level, opts *slog.HandlerOptions, observers ...xlog.Observer) (*xlog.Logger, error) {
	return newLogger(w, minLevel, opts, true, observers)
}

// NewTextLogger builds an xlog.Logger wired to a slog text handler.
func NewTextLogger(w io.Writer, minLevel xlog.Level, opts *slog.HandlerOptions, observers ...xlog.Observer) (*xlog.Logger, error) {
	return newLogger(w, minLevel, opts, false, observers)
}

func newLogger(w io.Writer, minLevel xlog.Level, opts *slog.HandlerOptions, json bool, observers []xlog.Observer) (*xlog.Logger, error) {
	b := xlog.NewBuilder().
		WithAdapter(newAdapter(w, minLevel, opts, json)).
		WithMinLevel(minLevel)
	for _, o := range observers {
		b = b.AddObserver(o)
	}
	return b.Build()
}

func newAdapter(w io.Writer, minLevel xlog.Level, opts *slog.HandlerOptions, json bool) *SlogAdapter {
	if w == nil {
		w = os.Stdout
	}
	if opts == nil {
		opts = &slog.HandlerOptions{}
	}
	lv := new(slog.LevelVar)
	lv.Set(toSlog(minLevel))
	opts.Level = lv

	var h slog.Handler
	if json {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}
	return NewWithTimestampKey(slog.New(h), lv, "ts")
}
