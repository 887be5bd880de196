package layout

import (
	"encoding/base64"
	"encoding/json"
	"math"
	"strconv"
	"time"
	"unicode/utf8"

	xlog "github.com/trickstertwo/xlog-amqp"
)

const hexDigits = "0123456789abcdef"

// appendQuoted appends s as a JSON string literal.
func appendQuoted(dst []byte, s string) []byte {
	dst = append(dst, '"')
	start := 0
	for i := 0; i < len(s); {
		c := s[i]
		if c >= 0x20 && c != '\\' && c != '"' && c < utf8.RuneSelf {
			i++
			continue
		}
		dst = append(dst, s[start:i]...)
		if c < utf8.RuneSelf {
			switch c {
			case '\\', '"':
				dst = append(dst, '\\', c)
			case '\n':
				dst = append(dst, `\n`...)
			case '\r':
				dst = append(dst, `\r`...)
			case '\t':
				dst = append(dst, `\t`...)
			default:
				dst = append(dst, `\u00`...)
				dst = append(dst, hexDigits[c>>4], hexDigits[c&0xF])
			}
			i++
			start = i
			continue
		}
		r, size := utf8.DecodeRuneInString(s[i:])
		switch {
		case r == utf8.RuneError && size == 1:
			dst = append(dst, `\uFFFD`...)
		case r == '\u2028':
			dst = append(dst, `\u2028`...)
		case r == '\u2029':
			dst = append(dst, `\u2029`...)
		default:
			dst = append(dst, s[i:i+size]...)
		}
		i += size
		start = i
	}
	dst = append(dst, s[start:]...)
	return append(dst, '"')
}

// appendTextString appends s bare, or quoted when it contains spaces,
// quotes or control characters.
func appendTextString(dst []byte, s string) []byte {
	for i := 0; i < len(s); i++ {
		if c := s[i]; c <= ' ' || c == '"' || c == '=' {
			return appendQuoted(dst, s)
		}
	}
	return append(dst, s...)
}

func appendRFC3339Nano(dst []byte, t time.Time) []byte {
	return t.AppendFormat(dst, time.RFC3339Nano)
}

func appendFloat(dst []byte, f float64, bits int) []byte {
	switch {
	case math.IsNaN(f):
		return append(dst, "NaN"...)
	case math.IsInf(f, 1):
		return append(dst, "+Inf"...)
	case math.IsInf(f, -1):
		return append(dst, "-Inf"...)
	}
	return strconv.AppendFloat(dst, f, 'g', -1, bits)
}

func appendBase64(dst []byte, data []byte) []byte {
	dst = append(dst, '"')
	n := base64.StdEncoding.EncodedLen(len(data))
	start := len(dst)
	dst = append(dst, make([]byte, n)...)
	base64.StdEncoding.Encode(dst[start:], data)
	return append(dst, '"')
}

// appendTextValue renders a field value for key=value output.
func appendTextValue(dst []byte, f *xlog.Field) []byte {
	switch f.Kind {
	case xlog.KindString:
		return appendTextString(dst, f.Str)
	case xlog.KindInt64:
		return strconv.AppendInt(dst, f.Int64, 10)
	case xlog.KindUint64:
		return strconv.AppendUint(dst, f.Uint64, 10)
	case xlog.KindFloat64:
		return appendFloat(dst, f.Float64, 64)
	case xlog.KindBool:
		return strconv.AppendBool(dst, f.Bool)
	case xlog.KindDuration:
		return append(dst, f.Dur.String()...)
	case xlog.KindTime:
		return appendRFC3339Nano(dst, f.Time)
	case xlog.KindError:
		if f.Err == nil {
			return append(dst, "null"...)
		}
		return appendQuoted(dst, f.Err.Error())
	case xlog.KindBytes:
		dst = append(dst, "len:"...)
		return strconv.AppendInt(dst, int64(len(f.Bytes)), 10)
	case xlog.KindAny:
		return appendTextAny(dst, f.Any)
	}
	return append(dst, "null"...)
}

func appendTextAny(dst []byte, v any) []byte {
	switch vv := v.(type) {
	case nil:
		return append(dst, "null"...)
	case string:
		return appendTextString(dst, vv)
	case bool:
		return strconv.AppendBool(dst, vv)
	case int:
		return strconv.AppendInt(dst, int64(vv), 10)
	case int64:
		return strconv.AppendInt(dst, vv, 10)
	case int32:
		return strconv.AppendInt(dst, int64(vv), 10)
	case uint:
		return strconv.AppendUint(dst, uint64(vv), 10)
	case uint64:
		return strconv.AppendUint(dst, vv, 10)
	case uint32:
		return strconv.AppendUint(dst, uint64(vv), 10)
	case float64:
		return appendFloat(dst, vv, 64)
	case float32:
		return appendFloat(dst, float64(vv), 32)
	case time.Time:
		return appendRFC3339Nano(dst, vv)
	case time.Duration:
		return append(dst, vv.String()...)
	case error:
		return appendQuoted(dst, vv.Error())
	case interface{ String() string }:
		return appendTextString(dst, vv.String())
	}
	if data, err := json.Marshal(v); err == nil {
		return append(dst, data...)
	}
	return append(dst, "unknown"...)
}

// appendTextFields appends " k=v" for every field.
func appendTextFields(dst []byte, fs []xlog.Field) []byte {
	for i := range fs {
		dst = append(dst, ' ')
		dst = append(dst, fs[i].K...)
		dst = append(dst, '=')
		dst = appendTextValue(dst, &fs[i])
	}
	return dst
}
