package tail

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/spf13/cobra"

	amqpadapter "github.com/trickstertwo/xlog-amqp/adapter/amqp"
	"github.com/trickstertwo/xlog-amqp/cmd/xlog-amqp/common"
)

type options struct {
	root *common.RootOptions

	bindings []string
	headers  bool
	max      int
}

// NewCommand creates the "tail" command.
func NewCommand(root *common.RootOptions) *cobra.Command {
	opts := &options{root: root}

	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Print records published to the log exchange",
		Long: "Bind a private, server-named queue to the log exchange with topic patterns\n" +
			"and print every delivery: routing key, headers and body.",
		Example: "  xlog-amqp tail --bind 'billing.*' --bind '*.ERROR'",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, opts)
		},
	}

	cmd.Flags().StringSliceVar(&opts.bindings, "bind", []string{"#"}, "Topic pattern to bind; repeatable")
	cmd.Flags().BoolVar(&opts.headers, "headers", true, "Print message headers")
	cmd.Flags().IntVar(&opts.max, "max", 0, "Exit after this many deliveries; 0 runs until interrupted")

	return cmd
}

func run(cmd *cobra.Command, opts *options) error {
	ao := opts.root.AdapterOptions()
	if err := ao.Validate(); err != nil {
		return err
	}

	props := amqp.NewConnectionProperties()
	props.SetClientConnectionName("xlog-amqp/tail")
	conn, err := amqp.DialConfig(ao.URL(), amqp.Config{
		Vhost:           ao.VirtualHost,
		TLSClientConfig: ao.TLS,
		Properties:      props,
	})
	if err != nil {
		return fmt.Errorf("dial %s: %w", ao, err)
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("open channel: %w", err)
	}
	defer ch.Close()

	if err := ch.ExchangeDeclare(ao.ExchangeName, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange %q: %w", ao.ExchangeName, err)
	}
	q, err := ch.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}
	for _, key := range opts.bindings {
		if err := ch.QueueBind(q.Name, key, ao.ExchangeName, false, nil); err != nil {
			return fmt.Errorf("bind %q: %w", key, err)
		}
	}
	deliveries, err := ch.Consume(q.Name, "", true, true, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	out := cmd.OutOrStdout()
	for n := 0; opts.max == 0 || n < opts.max; n++ {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return errors.New("delivery channel closed by broker")
			}
			if err := Print(out, d.RoutingKey, d.Headers, d.Body, opts.headers); err != nil {
				return err
			}
		}
	}
	return nil
}

// Print writes one delivery: the routing key, the headers in appender order
// followed by any others sorted by name, then the body on its own line.
func Print(w io.Writer, key string, headers amqp.Table, body []byte, withHeaders bool) error {
	var b strings.Builder
	b.WriteString(key)
	if withHeaders {
		known := []string{
			amqpadapter.HeaderContext,
			amqpadapter.HeaderLevel,
			amqpadapter.HeaderTimestamp,
			amqpadapter.HeaderLoggerName,
			amqpadapter.HeaderThreadName,
			amqpadapter.HeaderMessage,
		}
		var extra []string
		for k := range headers {
			if !slices.Contains(known, k) {
				extra = append(extra, k)
			}
		}
		slices.Sort(extra)
		for _, k := range append(known, extra...) {
			if v, ok := headers[k]; ok {
				fmt.Fprintf(&b, " %s=%q", k, fmt.Sprint(v))
			}
		}
	}
	b.WriteByte('\n')
	b.Write(body)
	if len(body) == 0 || body[len(body)-1] != '\n' {
		b.WriteByte('\n')
	}
	_, err := io.WriteString(w, b.String())
	return err
}
