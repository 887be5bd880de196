package zerologadapter

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	xlog "github.com/trickstertwo/xlog-amqp"
)

// Env read by the default factory behind xlog.Default():
//
//	XLOG_MIN_LEVEL or XLOG_LEVEL: trace|debug|info|warn|error|fatal (fatal maps to error)
//	XLOG_CONSOLE=1              : ConsoleWriter instead of JSON
//	XLOG_CONSOLE_TIMEFORMAT=... : console time layout (default RFC3339Nano)
func init() {
	xlog.RegisterDefaultAdapterFactory(func(w io.Writer) xlog.Adapter {
		if w == nil {
			w = os.Stdout
		}
		lvl := envLevel(firstNonEmpty(os.Getenv("XLOG_MIN_LEVEL"), os.Getenv("XLOG_LEVEL")))
		if os.Getenv("XLOG_CONSOLE") == "1" {
			return New(zerolog.New(consoleWriter(w, os.Getenv("XLOG_CONSOLE_TIMEFORMAT"))).Level(lvl))
		}
		return New(zerolog.New(w).Level(lvl))
	})
}

// consoleWriter renders the adapter's "ts" field as the leading column and
// hides zerolog's caller column.
func consoleWriter(w io.Writer, timeFormat string) zerolog.ConsoleWriter {
	if timeFormat == "" {
		timeFormat = time.RFC3339Nano
	}
	return zerolog.ConsoleWriter{
		Out:          w,
		TimeFormat:   timeFormat,
		TimeLocation: time.UTC,
		PartsOrder: []string{
			"ts",
			zerolog.LevelFieldName,
			"context",
			"logger",
			zerolog.MessageFieldName,
		},
		FieldsExclude: []string{"ts", "context", "logger"},
		PartsExclude:  []string{zerolog.CallerFieldName},
	}
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}

func envLevel(s string) zerolog.Level {
	l, err := xlog.ParseLevel(strings.TrimSpace(s))
	if err != nil {
		return zerolog.InfoLevel
	}
	return mapLevel(l)
}
