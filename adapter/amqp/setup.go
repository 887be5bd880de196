package amqpadapter

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"go.uber.org/multierr"

	"github.com/trickstertwo/xclock"
	xlog "github.com/trickstertwo/xlog-amqp"
	"github.com/trickstertwo/xlog-amqp/layout"
)

// Config is an explicit, code-first configuration for the AMQP appender +
// xlog. One call to Use builds, starts and installs the logger.
type Config struct {
	Options

	// Context is the logger context name, the first routing key segment.
	Context string
	// Echo is an optional local sink (console adapter) teed with the
	// appender.
	Echo    xlog.Adapter
	Metrics MetricsCollector
}

// Use builds an xlog.Logger backed by the appender (teed with cfg.Echo when
// set), sets it as the global logger and starts it. A failed start is
// returned with the logger still usable: records are dropped and reported
// until the appender is started.
func Use(ctx context.Context, cfg Config) (*xlog.Logger, *Adapter, error) {
	if cfg.ConnectionName == "" && cfg.Context != "" {
		cfg.ConnectionName = DefaultConnectionName + "/" + cfg.Context
	}
	ad := New(cfg.Options)
	if cfg.Metrics != nil {
		ad.SetMetricsCollector(cfg.Metrics)
	}

	var sink xlog.Adapter = ad
	if cfg.Echo != nil {
		sink = xlog.Tee(cfg.Echo, ad)
	}

	logger, err := xlog.NewBuilder().
		WithAdapter(sink).
		WithMinLevel(cfg.MinLevel).
		WithContext(cfg.Context).
		WithClock(xclock.Default()).
		Build()
	if err != nil {
		return nil, nil, err
	}
	xlog.SetGlobal(logger)
	return logger, ad, logger.Start(ctx)
}

// Environment variables read by ConfigFromEnv.
const (
	EnvHost     = "XLOG_AMQP_HOST"
	EnvPort     = "XLOG_AMQP_PORT"
	EnvVhost    = "XLOG_AMQP_VHOST"
	EnvUsername = "XLOG_AMQP_USERNAME"
	EnvPassword = "XLOG_AMQP_PASSWORD"
	EnvExchange = "XLOG_AMQP_EXCHANGE"
	EnvContext  = "XLOG_AMQP_CONTEXT"
	EnvPattern  = "XLOG_AMQP_PATTERN"
	EnvMinLevel = "XLOG_AMQP_MIN_LEVEL"
)

// ConfigFromEnv reads XLOG_AMQP_* variables. Port defaults to 5672 and the
// virtual host to "/". Every malformed value is reported.
func ConfigFromEnv() (Config, error) {
	cfg := Config{
		Options: Options{
			Host:         os.Getenv(EnvHost),
			Port:         DefaultPort,
			VirtualHost:  envOr(EnvVhost, "/"),
			Username:     os.Getenv(EnvUsername),
			Password:     os.Getenv(EnvPassword),
			ExchangeName: os.Getenv(EnvExchange),
		},
		Context: os.Getenv(EnvContext),
	}

	var err error
	if v := os.Getenv(EnvPort); v != "" {
		p, perr := strconv.Atoi(v)
		if perr != nil {
			err = multierr.Append(err, fmt.Errorf("%s: %w", EnvPort, perr))
		}
		cfg.Port = p
	}
	if v := os.Getenv(EnvPattern); v != "" {
		p, perr := layout.NewPattern(v)
		if perr != nil {
			err = multierr.Append(err, fmt.Errorf("%s: %w", EnvPattern, perr))
		} else {
			cfg.Layout = p
		}
	}
	lvl, lerr := xlog.ParseLevel(os.Getenv(EnvMinLevel))
	if lerr != nil {
		err = multierr.Append(err, fmt.Errorf("%s: %w", EnvMinLevel, lerr))
	}
	cfg.MinLevel = lvl
	return cfg, err
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
