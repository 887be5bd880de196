package cli

import (
	"github.com/spf13/cobra"

	"github.com/trickstertwo/xlog-amqp/cmd/xlog-amqp/cli/emit"
	"github.com/trickstertwo/xlog-amqp/cmd/xlog-amqp/cli/tail"
	"github.com/trickstertwo/xlog-amqp/cmd/xlog-amqp/common"
)

// NewRootCommand creates the root command for xlog-amqp.
func NewRootCommand() *cobra.Command {
	opts := &common.RootOptions{}

	cmd := &cobra.Command{
		Use:   "xlog-amqp",
		Short: "Forward log records to an AMQP topic exchange and watch them arrive",
		Long: "xlog-amqp publishes log records to an AMQP 0-9-1 topic exchange with routing\n" +
			"key <context>.<LEVEL> and tails the exchange with topic bindings.\n\n" +
			"Connection flags fall back to XLOG_AMQP_* environment variables.\n\n" +
			"Examples:\n" +
			"  xlog-amqp emit --context billing --level error --message \"payment failed\"\n" +
			"  xlog-amqp tail --bind 'billing.*' --bind '*.ERROR'",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return common.ApplyEnv(cmd.Flags())
		},
	}

	opts.AddFlags(cmd.PersistentFlags())

	cmd.AddCommand(emit.NewCommand(opts))
	cmd.AddCommand(tail.NewCommand(opts))

	return cmd
}
