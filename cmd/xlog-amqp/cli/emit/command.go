package emit

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	xlog "github.com/trickstertwo/xlog-amqp"
	amqpadapter "github.com/trickstertwo/xlog-amqp/adapter/amqp"
	"github.com/trickstertwo/xlog-amqp/cmd/xlog-amqp/common"
	"github.com/trickstertwo/xlog-amqp/layout"
	"github.com/trickstertwo/xlog-amqp/metrics"
)

type options struct {
	root *common.RootOptions

	context     string
	loggerName  string
	thread      string
	level       string
	message     string
	count       int
	interval    time.Duration
	pattern     string
	console     string
	metricsAddr string
	async       bool
	confirm     bool
	attempts    int
}

// NewCommand creates the "emit" command.
func NewCommand(root *common.RootOptions) *cobra.Command {
	opts := &options{root: root}

	cmd := &cobra.Command{
		Use:   "emit",
		Short: "Publish log records through the AMQP appender",
		Long: "Publish log records through the AMQP appender, echoing them to a local\n" +
			"console adapter. The message is a printf template; %d receives the sequence number.",
		Example: "  xlog-amqp emit --context billing --level error --message \"payment %d failed\" --count 3",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.context, "context", "xlog-amqp", "Logger context, the first routing key segment")
	cmd.Flags().StringVar(&opts.loggerName, "logger", "xlog-amqp.emit", "Logger name")
	cmd.Flags().StringVar(&opts.thread, "thread", "main", "Thread name")
	cmd.Flags().StringVar(&opts.level, "level", "info", "Record level: trace, debug, info, warn, error or fatal")
	cmd.Flags().StringVar(&opts.message, "message", "hello from xlog-amqp", "Message template")
	cmd.Flags().IntVar(&opts.count, "count", 1, "Number of records to publish")
	cmd.Flags().DurationVar(&opts.interval, "interval", 0, "Pause between records")
	cmd.Flags().StringVar(&opts.pattern, "pattern", layout.DefaultPattern, "Body layout pattern")
	cmd.Flags().StringVar(&opts.console, "console", "zap", "Local echo: "+strings.Join(common.Consoles, ", "))
	cmd.Flags().StringVar(&opts.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address, e.g. :9090")
	cmd.Flags().BoolVar(&opts.async, "async", false, "Publish from a background queue")
	cmd.Flags().BoolVar(&opts.confirm, "confirm", false, "Wait for broker confirms")
	cmd.Flags().IntVar(&opts.attempts, "start-attempts", 3, "Connection attempts before giving up")

	return cmd
}

func run(cmd *cobra.Command, opts *options) error {
	if opts.count < 0 {
		return errors.New("--count must not be negative")
	}
	level, err := xlog.ParseLevel(opts.level)
	if err != nil {
		return err
	}
	pattern, err := layout.NewPattern(opts.pattern)
	if err != nil {
		return fmt.Errorf("--pattern: %w", err)
	}
	echo, err := common.ConsoleAdapter(opts.console, cmd.ErrOrStderr(), xlog.LevelTrace)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := amqpadapter.Config{
		Options: opts.root.AdapterOptions(),
		Context: opts.context,
		Echo:    echo,
	}
	cfg.Layout = pattern
	cfg.MinLevel = xlog.LevelTrace
	cfg.Async = opts.async
	cfg.AsyncPolicy = amqpadapter.Block
	cfg.Confirm = opts.confirm
	cfg.StartAttempts = opts.attempts

	if opts.metricsAddr != "" {
		reg := prometheus.NewRegistry()
		cfg.Metrics = metrics.NewCollector(reg)
		srv := &http.Server{Addr: opts.metricsAddr, Handler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{})}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				fmt.Fprintf(cmd.ErrOrStderr(), "metrics server: %v\n", err)
			}
		}()
		defer srv.Close()
	}

	logger, appender, err := amqpadapter.Use(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = logger.Stop(stopCtx)
		st := appender.Stats()
		fmt.Fprintf(cmd.OutOrStdout(), "published=%d dropped=%d publish_errors=%d reconnects=%d\n",
			st.Published, st.Dropped, st.PublishErrors, st.Reconnects)
	}()

	l := logger.Named(opts.loggerName).Thread(opts.thread)
	for i := 1; i <= opts.count; i++ {
		ev := event(l, level).Int("seq", i)
		if strings.Contains(opts.message, "%d") {
			ev.Msgf(opts.message, i)
		} else {
			ev.Msg(opts.message)
		}
		if opts.interval > 0 && i < opts.count {
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(opts.interval):
			}
		}
	}
	return nil
}

func event(l *xlog.Logger, level xlog.Level) *xlog.Event {
	switch {
	case level < xlog.LevelDebug:
		return l.Trace()
	case level < xlog.LevelInfo:
		return l.Debug()
	case level < xlog.LevelWarn:
		return l.Info()
	case level < xlog.LevelError:
		return l.Warn()
	case level < xlog.LevelFatal:
		return l.Error()
	default:
		return l.Fatal()
	}
}
