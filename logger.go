package xlog

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/trickstertwo/xclock"
)

type Logger struct {
	adapter    Adapter
	minLevel   Level
	baseFields []Field
	clock      xclock.Clock // nil means xclock.Now()

	context string
	name    string
	thread  string

	// Observers: lock-free reads via atomic.Value; synchronized updates via obsMu.
	// Stored value is []Observer and MUST be treated as immutable by readers.
	observers atomic.Value // holds []Observer
	obsMu     sync.Mutex
}

// Factory: internal constructor.
func newLogger(cfg Config) *Logger {
	l := &Logger{
		adapter:  cfg.Adapter,
		minLevel: cfg.MinLevel,
		clock:    cfg.Clock,
		context:  cfg.Context,
		name:     cfg.Name,
	}
	if l.context == "" {
		l.context = DefaultContext
	}
	if len(cfg.Observers) > 0 {
		obs := make([]Observer, len(cfg.Observers))
		copy(obs, cfg.Observers)
		l.observers.Store(obs)
	} else {
		l.observers.Store(([]Observer)(nil))
	}
	return l
}

// Facade: global access (Singleton + Facade).
var global atomic.Pointer[Logger]

// SetGlobal sets the global Logger (Singleton setter).
func SetGlobal(l *Logger) { global.Store(l) }

// L returns the global Logger; panic if unset to surface misconfig early.
func L() *Logger {
	l := global.Load()
	if l == nil {
		panic("xlog: global logger not set. Build one and call xlog.SetGlobal(...)")
	}
	return l
}

// Enabled reports whether logs at 'level' would be emitted by this logger.
// Use to avoid building fields in hot paths when disabled.
func (l *Logger) Enabled(level Level) bool {
	return level >= l.minLevel
}

// Context returns the logger context name stamped on every record.
func (l *Logger) Context() string { return l.context }

// Name returns the logger name.
func (l *Logger) Name() string { return l.name }

// Level entry points returning fluent builders.

func (l *Logger) Trace() *Event { return getEvent(l, LevelTrace) }
func (l *Logger) Debug() *Event { return getEvent(l, LevelDebug) }
func (l *Logger) Info() *Event  { return getEvent(l, LevelInfo) }
func (l *Logger) Warn() *Event  { return getEvent(l, LevelWarn) }
func (l *Logger) Error() *Event { return getEvent(l, LevelError) }
func (l *Logger) Fatal() *Event { return getEvent(l, LevelFatal) }

// With returns a child logger with bound fields.
func (l *Logger) With(fs ...Field) *Logger {
	child := l.clone()
	child.adapter = l.adapter.With(fs)
	child.baseFields = append(copyFields(nil, l.baseFields), fs...)
	return child
}

// Named returns a child logger that stamps records with the given logger
// name, e.g. "com.example.Billing".
func (l *Logger) Named(name string) *Logger {
	child := l.clone()
	child.name = name
	return child
}

// Thread returns a child logger that stamps records with the given thread
// name. Go has no thread identity, so this is whatever the caller uses to
// tell its workers apart ("pool-2", "http-worker").
func (l *Logger) Thread(name string) *Logger {
	child := l.clone()
	child.thread = name
	return child
}

func (l *Logger) clone() *Logger {
	child := &Logger{
		adapter:    l.adapter,
		minLevel:   l.minLevel,
		baseFields: l.baseFields,
		clock:      l.clock,
		context:    l.context,
		name:       l.name,
		thread:     l.thread,
	}
	// Inherit a snapshot of observers.
	child.observers.Store(l.snapshotObservers())
	return child
}

func (l *Logger) snapshotObservers() []Observer {
	v := l.observers.Load()
	if v == nil {
		return nil
	}
	cur := v.([]Observer)
	if len(cur) == 0 {
		return nil
	}
	out := make([]Observer, len(cur))
	copy(out, cur)
	return out
}

func (l *Logger) AddObserver(o Observer) {
	l.obsMu.Lock()
	defer l.obsMu.Unlock()
	cur := l.snapshotObservers()
	cur = append(cur, o)
	l.observers.Store(cur)
}

// Start starts the adapter when it implements Lifecycle.
func (l *Logger) Start(ctx context.Context) error {
	if lc, ok := l.adapter.(Lifecycle); ok {
		return lc.Start(ctx)
	}
	return nil
}

// Stop stops the adapter when it implements Lifecycle. Records emitted after
// Stop are handled by the adapter's own stopped policy.
func (l *Logger) Stop(ctx context.Context) error {
	if lc, ok := l.adapter.(Lifecycle); ok {
		return lc.Stop(ctx)
	}
	return nil
}

func (l *Logger) emit(level Level, tmpl string, args []any, evFields []Field) {
	if level < l.minLevel {
		return
	}
	// Single authoritative timestamp from xclock
	at := xclock.Now()
	if l.clock != nil {
		at = l.clock.Now()
	}

	msg := tmpl
	if len(args) > 0 {
		msg = fmt.Sprintf(tmpl, args...)
	}

	// Fast path: adapter handles bound fields internally; pass only event fields.
	l.adapter.Log(&Record{
		At:       at,
		Level:    level,
		Context:  l.context,
		Logger:   l.name,
		Thread:   l.thread,
		Template: tmpl,
		Args:     args,
		Message:  msg,
		Fields:   evFields,
	})

	// Observers see combined fields: base + event.
	v := l.observers.Load()
	if v == nil {
		return
	}
	obs := v.([]Observer)
	if len(obs) == 0 {
		return
	}

	merged := make([]Field, 0, len(l.baseFields)+len(evFields))
	if len(l.baseFields) > 0 {
		merged = append(merged, l.baseFields...)
	}
	if len(evFields) > 0 {
		merged = append(merged, evFields...)
	}

	entry := Entry{
		At:      at,
		Level:   level,
		Context: l.context,
		Logger:  l.name,
		Thread:  l.thread,
		Message: msg,
		Fields:  merged,
	}

	for _, o := range obs {
		o.OnLog(entry)
	}
}

func copyFields(dst, src []Field) []Field {
	if len(src) == 0 {
		return dst
	}
	return append(dst, src...)
}
