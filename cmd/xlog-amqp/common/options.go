package common

import (
	"crypto/tls"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/pflag"
	"go.uber.org/multierr"

	xlog "github.com/trickstertwo/xlog-amqp"
	amqpadapter "github.com/trickstertwo/xlog-amqp/adapter/amqp"
	slogadapter "github.com/trickstertwo/xlog-amqp/adapter/slog"
	zapadapter "github.com/trickstertwo/xlog-amqp/adapter/zap"
	zerologadapter "github.com/trickstertwo/xlog-amqp/adapter/zerolog"
)

// RootOptions holds the broker connection shared across subcommands.
type RootOptions struct {
	Host        string
	Port        int
	VirtualHost string
	Username    string
	Password    string
	Exchange    string
	TLS         bool
}

// envFlags maps flag names onto the variables read when the flag is unset.
var envFlags = map[string]string{
	"host":     amqpadapter.EnvHost,
	"port":     amqpadapter.EnvPort,
	"vhost":    amqpadapter.EnvVhost,
	"username": amqpadapter.EnvUsername,
	"password": amqpadapter.EnvPassword,
	"exchange": amqpadapter.EnvExchange,
	"context":  amqpadapter.EnvContext,
	"pattern":  amqpadapter.EnvPattern,
}

func (o *RootOptions) AddFlags(fs *pflag.FlagSet) {
	fs.StringVar(&o.Host, "host", "localhost", "Broker host")
	fs.IntVar(&o.Port, "port", amqpadapter.DefaultPort, "Broker port")
	fs.StringVar(&o.VirtualHost, "vhost", "/", "Broker virtual host")
	fs.StringVar(&o.Username, "username", "guest", "Broker username")
	fs.StringVar(&o.Password, "password", "guest", "Broker password")
	fs.StringVar(&o.Exchange, "exchange", "logs", "Topic exchange name")
	fs.BoolVar(&o.TLS, "tls", false, "Connect with amqps")
}

// ApplyEnv sets every flag in fs that was not given on the command line and
// has a non-empty environment variable.
func ApplyEnv(fs *pflag.FlagSet) error {
	return ApplyEnvFunc(fs, os.Getenv)
}

// ApplyEnvFunc is ApplyEnv with a custom lookup.
func ApplyEnvFunc(fs *pflag.FlagSet, lookup func(string) string) error {
	var err error
	fs.VisitAll(func(f *pflag.Flag) {
		key, ok := envFlags[f.Name]
		if !ok || f.Changed {
			return
		}
		if v := lookup(key); v != "" {
			if serr := fs.Set(f.Name, v); serr != nil {
				err = multierr.Append(err, fmt.Errorf("%s: %w", key, serr))
			}
		}
	})
	return err
}

// AdapterOptions converts the connection flags into appender options.
func (o *RootOptions) AdapterOptions() amqpadapter.Options {
	opts := amqpadapter.Options{
		Host:         o.Host,
		Port:         o.Port,
		VirtualHost:  o.VirtualHost,
		Username:     o.Username,
		Password:     o.Password,
		ExchangeName: o.Exchange,
	}
	if o.TLS {
		opts.TLS = &tls.Config{ServerName: o.Host}
	}
	return opts
}

// Consoles lists the accepted --console values.
var Consoles = []string{"zap", "zerolog", "slog", "none"}

// ConsoleAdapter returns the local echo adapter named by console, or nil for
// "none".
func ConsoleAdapter(console string, w io.Writer, min xlog.Level) (xlog.Adapter, error) {
	switch strings.ToLower(console) {
	case "zap":
		return zapadapter.NewAdapter(zapadapter.Config{Writer: w, MinLevel: min, Console: true}), nil
	case "zerolog":
		return zerologadapter.NewAdapter(zerologadapter.Config{Writer: w, MinLevel: min, Console: true}), nil
	case "slog":
		return slogadapter.NewAdapter(slogadapter.Config{Writer: w, MinLevel: min, Format: slogadapter.FormatText}), nil
	case "none", "":
		return nil, nil
	}
	return nil, fmt.Errorf("unknown console %q, want one of %s", console, strings.Join(Consoles, ", "))
}
