package layout

import (
	"encoding/json"
	"math"
	"strconv"
	"time"

	xlog "github.com/trickstertwo/xlog-amqp"
)

// JSON renders one JSON object per record, newline terminated:
//
//	{"ts":"…","level":"ERROR","context":"billing","logger":"…","thread":"…","msg":"…",…fields}
type JSON struct{ opts Options }

func NewJSON(opts Options) *JSON { return &JSON{opts: opts.withDefaults()} }

func (j *JSON) Format(r *xlog.Record) []byte {
	bp := getBuf()
	defer putBuf(bp)
	b := *bp

	b = append(b, `{"ts":`...)
	b = j.appendTime(b, r.At)
	b = append(b, `,"level":`...)
	b = appendQuoted(b, r.Level.String())
	b = append(b, `,"context":`...)
	b = appendQuoted(b, r.Context)
	if r.Logger != "" {
		b = append(b, `,"logger":`...)
		b = appendQuoted(b, r.Logger)
	}
	if r.Thread != "" {
		b = append(b, `,"thread":`...)
		b = appendQuoted(b, r.Thread)
	}
	b = append(b, `,"msg":`...)
	b = appendQuoted(b, r.Message)
	for i := range r.Fields {
		b = append(b, ',')
		b = appendQuoted(b, r.Fields[i].K)
		b = append(b, ':')
		b = j.appendValue(b, &r.Fields[i])
	}
	b = append(b, '}', '\n')

	*bp = b
	return detach(b)
}

func (j *JSON) appendTime(b []byte, t time.Time) []byte {
	switch j.opts.JSONTime {
	case JSONTimeUnixMillis:
		return strconv.AppendInt(b, t.UnixMilli(), 10)
	case JSONTimeUnixNanos:
		return strconv.AppendInt(b, t.UnixNano(), 10)
	}
	b = append(b, '"')
	b = appendRFC3339Nano(b, t)
	return append(b, '"')
}

func (j *JSON) appendDuration(b []byte, d time.Duration) []byte {
	switch j.opts.JSONDuration {
	case JSONDurationMillis:
		return strconv.AppendInt(b, int64(d/time.Millisecond), 10)
	case JSONDurationNanos:
		return strconv.AppendInt(b, d.Nanoseconds(), 10)
	}
	return appendQuoted(b, d.String())
}

func appendJSONFloat(b []byte, f float64, bits int) []byte {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return append(b, "null"...)
	}
	return strconv.AppendFloat(b, f, 'g', -1, bits)
}

func (j *JSON) appendValue(b []byte, f *xlog.Field) []byte {
	switch f.Kind {
	case xlog.KindString:
		return appendQuoted(b, f.Str)
	case xlog.KindInt64:
		return strconv.AppendInt(b, f.Int64, 10)
	case xlog.KindUint64:
		return strconv.AppendUint(b, f.Uint64, 10)
	case xlog.KindFloat64:
		return appendJSONFloat(b, f.Float64, 64)
	case xlog.KindBool:
		return strconv.AppendBool(b, f.Bool)
	case xlog.KindDuration:
		return j.appendDuration(b, f.Dur)
	case xlog.KindTime:
		return j.appendTime(b, f.Time)
	case xlog.KindError:
		if f.Err == nil {
			return append(b, "null"...)
		}
		return appendQuoted(b, f.Err.Error())
	case xlog.KindBytes:
		return appendBase64(b, f.Bytes)
	case xlog.KindAny:
		return j.appendAny(b, f.Any)
	}
	return append(b, "null"...)
}

func (j *JSON) appendAny(b []byte, v any) []byte {
	switch vv := v.(type) {
	case nil:
		return append(b, "null"...)
	case RawJSON:
		if len(vv) == 0 {
			return append(b, `""`...)
		}
		return append(b, vv...)
	case time.Time:
		return j.appendTime(b, vv)
	case json.Marshaler:
		if data, err := vv.MarshalJSON(); err == nil {
			return append(b, data...)
		}
		return append(b, "null"...)
	case string:
		return appendQuoted(b, vv)
	case []byte:
		return appendBase64(b, vv)
	case bool:
		return strconv.AppendBool(b, vv)
	case int:
		return strconv.AppendInt(b, int64(vv), 10)
	case int64:
		return strconv.AppendInt(b, vv, 10)
	case uint64:
		return strconv.AppendUint(b, vv, 10)
	case float32:
		return appendJSONFloat(b, float64(vv), 32)
	case float64:
		return appendJSONFloat(b, vv, 64)
	case time.Duration:
		return j.appendDuration(b, vv)
	case error:
		return appendQuoted(b, vv.Error())
	}
	if data, err := json.Marshal(v); err == nil {
		return append(b, data...)
	}
	return append(b, "null"...)
}
