package xlog

import "time"

// DefaultContext is the context name of loggers built without WithContext.
const DefaultContext = "default"

// Record is the read-only snapshot of one emitted event handed to adapters.
// It is only valid for the duration of Adapter.Log; use Clone to retain it.
type Record struct {
	At       time.Time
	Level    Level
	Context  string // logger context, usually the application name
	Logger   string // originating logger name
	Thread   string
	Template string // raw message before argument substitution
	Args     []any
	Message  string // rendered message
	Fields   []Field
}

// Clone returns a deep-enough copy of r that can outlive the Log call.
func (r *Record) Clone() *Record {
	c := *r
	if len(r.Args) > 0 {
		c.Args = append([]any(nil), r.Args...)
	}
	if len(r.Fields) > 0 {
		c.Fields = append([]Field(nil), r.Fields...)
	}
	return &c
}

// Lookup returns the last field named k.
func (r *Record) Lookup(k string) (Field, bool) {
	for i := len(r.Fields) - 1; i >= 0; i-- {
		if r.Fields[i].K == k {
			return r.Fields[i], true
		}
	}
	return Field{}, false
}
