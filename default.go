package xlog

import (
	"io"
	"os"
)

// defaultAdapterFactory is set by an adapter package (e.g., adapter/zerolog)
// in its init() to avoid import cycles. Default() uses this to build a logger.
var defaultAdapterFactory func(w io.Writer) Adapter

// RegisterDefaultAdapterFactory registers the constructor used by xlog.Default().
// Adapters should call this from init() to avoid import cycles.
// Example (in adapter/zerolog):
//
//	func init() {
//	  xlog.RegisterDefaultAdapterFactory(func(w io.Writer) xlog.Adapter {
//	    return zerologadapter.New(zerolog.New(w))
//	  })
//	}
func RegisterDefaultAdapterFactory(f func(io.Writer) Adapter) {
	defaultAdapterFactory = f
}

// Default creates a logger using the registered adapter factory.
// It writes to os.Stdout at LevelDebug. Panics if no factory is registered.
func Default() *Logger {
	if defaultAdapterFactory == nil {
		panic("xlog: no default adapter registered. Import adapter/zerolog or call xlog.RegisterDefaultAdapterFactory")
	}
	adapter := defaultAdapterFactory(os.Stdout)
	cfg := Config{
		Adapter:  adapter,
		MinLevel: LevelDebug,
	}
	return newLogger(cfg)
}

// New creates a default logger (via Default()) and sets it as global.
// It returns the global logger for convenience.
func New() *Logger {
	l := Default()
	SetGlobal(l)
	return l
}

// UseAdapter sets the given adapter as the global logger with the provided
// context name and min level. It builds the logger, sets it as global, and
// returns it. Lifecycle adapters still need Logger.Start. It panics with
// ErrNoAdapter when a is nil.
func UseAdapter(a Adapter, context string, min Level, observers ...Observer) *Logger {
	l, err := NewBuilder().
		WithAdapter(a).
		WithContext(context).
		WithMinLevel(min).
		Build()
	if err != nil {
		panic(err)
	}
	for _, o := range observers {
		l.AddObserver(o)
	}
	SetGlobal(l)
	return l
}
