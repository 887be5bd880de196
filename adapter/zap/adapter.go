package zapadapter

import (
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	xlog "github.com/trickstertwo/xlog-amqp"
)

// Adapter bridges xlog to go.uber.org/zap.
//
//   - Pre-binds fields in With() on a child zap.Logger.
//   - Uses Logger.Check(level, msg) to skip field conversion when disabled.
//   - Writes the record timestamp as an RFC3339Nano string under tsKey.
//   - Carries context and thread as fields and the logger name as zap's
//     LoggerName, so a NameKey in the encoder config picks it up.
//
// SetMinLevel adjusts a zap.AtomicLevel when one was supplied; otherwise it
// is a no-op and xlog filtering still applies.
type Adapter struct {
	l     *zap.Logger
	al    *zap.AtomicLevel
	tsKey string
}

// New creates an adapter for the provided zap logger.
func New(l *zap.Logger) *Adapter {
	return NewWithTimestampKey(l, nil, "ts")
}

// NewWithAtomicLevel wires a zap.AtomicLevel so SetMinLevel can adjust the
// backend's filter.
func NewWithAtomicLevel(l *zap.Logger, al *zap.AtomicLevel) *Adapter {
	return NewWithTimestampKey(l, al, "ts")
}

// NewWithTimestampKey overrides the timestamp field key (default "ts").
func NewWithTimestampKey(l *zap.Logger, al *zap.AtomicLevel, tsKey string) *Adapter {
	if l == nil {
		l = zap.NewNop()
	}
	if tsKey == "" {
		tsKey = "ts"
	}
	return &Adapter{l: l, al: al, tsKey: tsKey}
}

func (a *Adapter) With(fs []xlog.Field) xlog.Adapter {
	child := *a
	if len(fs) > 0 {
		child.l = a.l.With(Fields(fs)...)
	}
	return &child
}

// Log emits a single entry. LevelFatal is written at error level so the
// process never exits from inside a log call.
func (a *Adapter) Log(r *xlog.Record) {
	ce := a.l.Check(Level(r.Level), r.Message)
	if ce == nil {
		return
	}
	if r.Logger != "" {
		ce.LoggerName = r.Logger
	}

	zfs := make([]zap.Field, 0, 3+len(r.Fields))
	zfs = append(zfs,
		zap.String(a.tsKey, r.At.UTC().Format(time.RFC3339Nano)),
		zap.String("context", r.Context),
	)
	if r.Thread != "" {
		zfs = append(zfs, zap.String("thread", r.Thread))
	}
	for i := range r.Fields {
		zfs = append(zfs, Field(&r.Fields[i]))
	}
	ce.Write(zfs...)
}

func (a *Adapter) SetMinLevel(l xlog.Level) {
	if a.al == nil {
		return
	}
	a.al.SetLevel(Level(l))
}

// Level maps an xlog level onto zap. Trace folds into debug and fatal into
// error.
func Level(l xlog.Level) zapcore.Level {
	switch {
	case l <= xlog.LevelDebug:
		return zapcore.DebugLevel
	case l <= xlog.LevelInfo:
		return zapcore.InfoLevel
	case l <= xlog.LevelWarn:
		return zapcore.WarnLevel
	default:
		return zapcore.ErrorLevel
	}
}

// Fields converts a slice of xlog fields.
func Fields(fs []xlog.Field) []zap.Field {
	out := make([]zap.Field, len(fs))
	for i := range fs {
		out[i] = Field(&fs[i])
	}
	return out
}

// Field converts one xlog field. Nil errors are skipped.
func Field(f *xlog.Field) zap.Field {
	switch f.Kind {
	case xlog.KindString:
		return zap.String(f.K, f.Str)
	case xlog.KindInt64:
		return zap.Int64(f.K, f.Int64)
	case xlog.KindUint64:
		return zap.Uint64(f.K, f.Uint64)
	case xlog.KindFloat64:
		return zap.Float64(f.K, f.Float64)
	case xlog.KindBool:
		return zap.Bool(f.K, f.Bool)
	case xlog.KindDuration:
		return zap.Duration(f.K, f.Dur)
	case xlog.KindTime:
		return zap.Time(f.K, f.Time)
	case xlog.KindError:
		if f.Err == nil {
			return zap.Skip()
		}
		if f.K == "" || f.K == "error" {
			return zap.Error(f.Err)
		}
		return zap.NamedError(f.K, f.Err)
	case xlog.KindBytes:
		return zap.ByteString(f.K, f.Bytes)
	case xlog.KindAny:
		return zap.Any(f.K, f.Any)
	default:
		return zap.Skip()
	}
}
