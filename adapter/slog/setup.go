package slogadapter

import (
	"io"
	"log/slog"

	xlog "github.com/trickstertwo/xlog-amqp"
)

// Format selects the slog handler format.
type Format uint8

const (
	FormatJSON Format = iota + 1
	FormatText
)

// Config is an explicit, code-first configuration for slog + xlog.
type Config struct {
	Writer         io.Writer            // default: os.Stdout
	MinLevel       xlog.Level           // xlog + slog both use this
	Context        string               // logger context name; default xlog.DefaultContext
	Format         Format               // JSON (default) or Text
	HandlerOptions *slog.HandlerOptions // optional; Level is managed through a LevelVar
}

// NewAdapter builds the slog adapter described by cfg without touching the
// global logger.
func NewAdapter(cfg Config) *SlogAdapter {
	return newAdapter(cfg.Writer, cfg.MinLevel, cfg.HandlerOptions, cfg.Format != FormatText)
}

// Use builds a slog-backed xlog logger from Config, sets it as global and
// returns it.
func Use(cfg Config) *xlog.Logger {
	return xlog.UseAdapter(NewAdapter(cfg), cfg.Context, cfg.MinLevel)
}
