package zapadapter

import (
	"io"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/trickstertwo/xclock"
	xlog "github.com/trickstertwo/xlog-amqp"
)

// Config is an explicit, code-first configuration for zap + xlog.
type Config struct {
	Writer             io.Writer // default: os.Stdout
	MinLevel           xlog.Level
	Context            string                // logger context name; default xlog.DefaultContext
	Console            bool                  // zapcore.NewConsoleEncoder instead of JSON
	EncoderConfig      zapcore.EncoderConfig // zero value selects DefaultEncoderConfig
	Caller             bool
	CallerSkip         int    // default 2
	TimestampFieldName string // default "ts"
}

// DefaultEncoderConfig leaves TimeKey empty since the adapter writes the
// record timestamp itself.
func DefaultEncoderConfig() zapcore.EncoderConfig {
	return zapcore.EncoderConfig{
		LevelKey:       "level",
		NameKey:        "logger",
		MessageKey:     "message",
		CallerKey:      "caller",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.RFC3339NanoTimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}
}

// NewAdapter builds the zap adapter described by cfg without touching the
// global logger.
func NewAdapter(cfg Config) *Adapter {
	w := cfg.Writer
	if w == nil {
		w = os.Stdout
	}
	if cfg.Caller && cfg.CallerSkip <= 0 {
		cfg.CallerSkip = 2
	}

	encCfg := cfg.EncoderConfig
	if encCfg.LevelKey == "" && encCfg.MessageKey == "" && encCfg.EncodeTime == nil {
		encCfg = DefaultEncoderConfig()
	}
	encCfg.TimeKey = ""

	var enc zapcore.Encoder
	if cfg.Console {
		enc = zapcore.NewConsoleEncoder(encCfg)
	} else {
		enc = zapcore.NewJSONEncoder(encCfg)
	}

	al := zap.NewAtomicLevelAt(Level(cfg.MinLevel))
	core := zapcore.NewCore(enc, zapcore.AddSync(w), al)

	opts := []zap.Option{zap.AddStacktrace(zapcore.FatalLevel + 1)}
	if cfg.Caller {
		opts = append(opts, zap.AddCaller(), zap.AddCallerSkip(cfg.CallerSkip))
	}
	return NewWithTimestampKey(zap.New(core, opts...), &al, cfg.TimestampFieldName)
}

// Use builds a zap-backed xlog logger from Config, sets it as global and
// returns it. The logger is bound to xclock.Default().
func Use(cfg Config) *xlog.Logger {
	logger, err := xlog.NewBuilder().
		WithAdapter(NewAdapter(cfg)).
		WithMinLevel(cfg.MinLevel).
		WithContext(cfg.Context).
		WithClock(xclock.Default()).
		Build()
	if err != nil {
		panic(err)
	}
	xlog.SetGlobal(logger)
	return logger
}
