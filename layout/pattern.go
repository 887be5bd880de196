package layout

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	xlog "github.com/trickstertwo/xlog-amqp"
)

// DefaultPattern is the pattern used by Default.
const DefaultPattern = "%d{2006-01-02 15:04:05.000} [%thread] %-5level %logger - %msg%n"

const (
	defaultDateLayout = "2006-01-02 15:04:05.000"
	iso8601Layout     = "2006-01-02 15:04:05,000"
)

// Pattern is a conversion-pattern layout in the style of logback's
// PatternLayout. Supported conversion words:
//
//	%d %date{layout[, zone]}   timestamp; layout is a Go time layout or ISO8601
//	%p %le %level              level token (TRACE … FATAL)
//	%t %thread                 thread name
//	%c %lo %logger{N}          logger name, abbreviated to N characters
//	%m %msg %message           rendered message
//	%cn %contextName           logger context name
//	%X %mdc{key}               one field, or all fields as k=v, k=v
//	%fields                    all fields as k=v k=v
//	%ex %exception             error field values
//	%n                         newline
//	%%                         literal percent
//
// Every word accepts the format modifiers [-]min[.[-]max]: "-" left-aligns,
// max truncates from the left (or from the right with ".-max").
type Pattern struct {
	pattern string
	segs    []segment
}

type converter func(dst []byte, r *xlog.Record) []byte

type segment struct {
	literal    string
	conv       converter
	min, max   int
	leftAlign  bool
	truncRight bool
}

// NewPattern compiles a conversion pattern.
func NewPattern(pattern string) (*Pattern, error) {
	p := &Pattern{pattern: pattern}
	var lit strings.Builder
	flush := func() {
		if lit.Len() > 0 {
			p.segs = append(p.segs, segment{literal: lit.String()})
			lit.Reset()
		}
	}

	for i := 0; i < len(pattern); {
		c := pattern[i]
		if c != '%' {
			lit.WriteByte(c)
			i++
			continue
		}
		if i+1 < len(pattern) && pattern[i+1] == '%' {
			lit.WriteByte('%')
			i += 2
			continue
		}
		start := i
		i++

		var seg segment
		if i < len(pattern) && pattern[i] == '-' {
			seg.leftAlign = true
			i++
		}
		seg.min, i = parseDigits(pattern, i)
		if i < len(pattern) && pattern[i] == '.' {
			i++
			if i < len(pattern) && pattern[i] == '-' {
				seg.truncRight = true
				i++
			}
			j := i
			seg.max, i = parseDigits(pattern, i)
			if i == j {
				return nil, fmt.Errorf("layout: missing max width at offset %d in %q", start, pattern)
			}
		}

		j := i
		for i < len(pattern) && isWordByte(pattern[i]) {
			i++
		}
		word := pattern[j:i]
		if word == "" {
			return nil, fmt.Errorf("layout: missing conversion word at offset %d in %q", start, pattern)
		}

		var option string
		if i < len(pattern) && pattern[i] == '{' {
			end := strings.IndexByte(pattern[i:], '}')
			if end < 0 {
				return nil, fmt.Errorf("layout: unterminated option for %%%s in %q", word, pattern)
			}
			option = pattern[i+1 : i+end]
			i += end + 1
		}

		conv, err := newConverter(word, option)
		if err != nil {
			return nil, fmt.Errorf("layout: %w in %q", err, pattern)
		}
		seg.conv = conv
		flush()
		p.segs = append(p.segs, seg)
	}
	flush()
	return p, nil
}

// MustPattern is NewPattern that panics on error, for package-level layouts.
func MustPattern(pattern string) *Pattern {
	p, err := NewPattern(pattern)
	if err != nil {
		panic(err)
	}
	return p
}

func (p *Pattern) String() string { return p.pattern }

func (p *Pattern) Format(r *xlog.Record) []byte {
	bp := getBuf()
	defer putBuf(bp)
	b := *bp

	var scratch [128]byte
	for i := range p.segs {
		s := &p.segs[i]
		if s.conv == nil {
			b = append(b, s.literal...)
			continue
		}
		if s.min == 0 && s.max == 0 {
			b = s.conv(b, r)
			continue
		}
		b = s.pad(b, s.conv(scratch[:0], r))
	}

	*bp = b
	return detach(b)
}

func (s *segment) pad(dst, v []byte) []byte {
	n := utf8.RuneCount(v)
	if s.max > 0 && n > s.max {
		if s.truncRight {
			v = v[:runeOffset(v, s.max)]
		} else {
			v = v[runeOffset(v, n-s.max):]
		}
		n = s.max
	}
	if n >= s.min {
		return append(dst, v...)
	}
	if s.leftAlign {
		dst = append(dst, v...)
		return appendSpaces(dst, s.min-n)
	}
	dst = appendSpaces(dst, s.min-n)
	return append(dst, v...)
}

// runeOffset returns the byte offset of the n-th rune in b.
func runeOffset(b []byte, n int) int {
	off := 0
	for ; n > 0 && off < len(b); n-- {
		_, size := utf8.DecodeRune(b[off:])
		off += size
	}
	return off
}

func appendSpaces(dst []byte, n int) []byte {
	for ; n > 0; n-- {
		dst = append(dst, ' ')
	}
	return dst
}

func parseDigits(s string, i int) (int, int) {
	n := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		n = n*10 + int(s[i]-'0')
		i++
	}
	return n, i
}

func isWordByte(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func newConverter(word, option string) (converter, error) {
	switch word {
	case "d", "date":
		return dateConverter(option), nil
	case "p", "le", "level":
		return func(dst []byte, r *xlog.Record) []byte { return append(dst, r.Level.String()...) }, nil
	case "t", "thread":
		return func(dst []byte, r *xlog.Record) []byte { return append(dst, r.Thread...) }, nil
	case "c", "lo", "logger":
		if option == "" {
			return func(dst []byte, r *xlog.Record) []byte { return append(dst, r.Logger...) }, nil
		}
		n, err := strconv.Atoi(option)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("invalid logger length %q", option)
		}
		return func(dst []byte, r *xlog.Record) []byte { return append(dst, abbreviate(r.Logger, n)...) }, nil
	case "m", "msg", "message":
		return func(dst []byte, r *xlog.Record) []byte { return append(dst, r.Message...) }, nil
	case "cn", "contextName":
		return func(dst []byte, r *xlog.Record) []byte { return append(dst, r.Context...) }, nil
	case "n":
		return func(dst []byte, _ *xlog.Record) []byte { return append(dst, '\n') }, nil
	case "X", "mdc":
		if option != "" {
			return func(dst []byte, r *xlog.Record) []byte {
				if f, ok := r.Lookup(option); ok {
					return appendTextValue(dst, &f)
				}
				return dst
			}, nil
		}
		return func(dst []byte, r *xlog.Record) []byte {
			for i := range r.Fields {
				if i > 0 {
					dst = append(dst, ", "...)
				}
				dst = append(dst, r.Fields[i].K...)
				dst = append(dst, '=')
				dst = appendTextValue(dst, &r.Fields[i])
			}
			return dst
		}, nil
	case "fields":
		return func(dst []byte, r *xlog.Record) []byte {
			if len(r.Fields) == 0 {
				return dst
			}
			start := len(dst)
			dst = appendTextFields(dst, r.Fields)
			// drop the leading separator
			return append(dst[:start], dst[start+1:]...)
		}, nil
	case "ex", "exception", "throwable":
		return func(dst []byte, r *xlog.Record) []byte {
			first := true
			for i := range r.Fields {
				f := &r.Fields[i]
				if f.Kind != xlog.KindError || f.Err == nil {
					continue
				}
				if !first {
					dst = append(dst, "; "...)
				}
				first = false
				dst = append(dst, f.Err.Error()...)
			}
			return dst
		}, nil
	}
	return nil, fmt.Errorf("unknown conversion word %q", word)
}

func dateConverter(option string) converter {
	layout, loc := defaultDateLayout, (*time.Location)(nil)
	if option != "" {
		layout = option
		if idx := strings.LastIndexByte(option, ','); idx >= 0 {
			if zone := strings.TrimSpace(option[idx+1:]); zone != "" {
				if l, err := time.LoadLocation(zone); err == nil {
					layout, loc = strings.TrimSpace(option[:idx]), l
				}
			}
		}
		if layout == "ISO8601" {
			layout = iso8601Layout
		}
	}
	return func(dst []byte, r *xlog.Record) []byte {
		t := r.At
		if loc != nil {
			t = t.In(loc)
		}
		return t.AppendFormat(dst, layout)
	}
}

// abbreviate shortens a dotted logger name to at most n characters by
// reducing leading segments to their first letter, left to right. The last
// segment is never shortened; n == 0 keeps only the last segment.
func abbreviate(name string, n int) string {
	if n == 0 {
		if idx := strings.LastIndexByte(name, '.'); idx >= 0 {
			return name[idx+1:]
		}
		return name
	}
	if len(name) <= n {
		return name
	}
	parts := strings.Split(name, ".")
	total := len(name)
	for i := 0; i < len(parts)-1 && total > n; i++ {
		if len(parts[i]) > 1 {
			total -= len(parts[i]) - 1
			parts[i] = parts[i][:1]
		}
	}
	return strings.Join(parts, ".")
}
