package zerologadapter

import (
	"io"
	"os"

	"github.com/rs/zerolog"

	"github.com/trickstertwo/xclock"
	xlog "github.com/trickstertwo/xlog-amqp"
)

// Config is an explicit, code-first configuration for zerolog + xlog.
type Config struct {
	Writer            io.Writer // default: os.Stdout
	MinLevel          xlog.Level
	Context           string // logger context name; default xlog.DefaultContext
	Console           bool   // pretty console output instead of JSON
	ConsoleTimeFormat string // only used if Console; default time.RFC3339Nano
	Caller            bool
	CallerSkip        int // default 5
}

// NewAdapter builds the zerolog adapter described by cfg without touching
// the global logger.
func NewAdapter(cfg Config) *Adapter {
	w := cfg.Writer
	if w == nil {
		w = os.Stdout
	}

	var zl zerolog.Logger
	if cfg.Console {
		zl = zerolog.New(consoleWriter(w, cfg.ConsoleTimeFormat))
	} else {
		zl = zerolog.New(w)
	}
	if cfg.Caller {
		if cfg.CallerSkip <= 0 {
			cfg.CallerSkip = 5
		}
		zl = zl.With().CallerWithSkipFrameCount(cfg.CallerSkip).Logger()
	}

	ad := New(zl)
	ad.SetMinLevel(cfg.MinLevel)
	return ad
}

// Use builds a zerolog-backed xlog logger from Config, sets it as global and
// returns it. The logger is bound to xclock.Default().
func Use(cfg Config) *xlog.Logger {
	logger, err := xlog.NewBuilder().
		WithAdapter(NewAdapter(cfg)).
		WithMinLevel(cfg.MinLevel).
		WithContext(cfg.Context).
		WithClock(xclock.Default()).
		Build()
	if err != nil {
		// Build only fails with a nil adapter.
		panic(err)
	}
	xlog.SetGlobal(logger)
	return logger
}
