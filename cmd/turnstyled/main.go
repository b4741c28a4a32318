package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/quintans/go-turnstyle/internal/daemon"
)

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "turnstyled",
		Short: "Serve HTTP with listener handoff on reload and paced admission",
		Long: `turnstyled serves HTTP on the addresses of its configuration file.
On SIGHUP, or when the file changes, a new generation of listeners is started and
the previous one is shut down gracefully once the new one is ready.`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, _ := cmd.Flags().GetString("config")

			d, err := daemon.New(path)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return d.Run(ctx)
		},
	}
	cmd.Flags().StringP("config", "c", "turnstyled.yaml", "Path to the configuration file")

	return cmd
}
