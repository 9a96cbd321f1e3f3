package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

func newRecoveryCmd(app *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "recovery",
		Short: "Reactivate cooled down accounts",
	}

	cmd.AddCommand(newRecoverySweepCmd(app), newRecoveryRunCmd(app))

	return cmd
}

func newRecoverySweepCmd(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Reactivate every account whose cooldown elapsed, once",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := app.recovery.Sync(cmd.Context()); err != nil {
				return fmt.Errorf("sync recovery queue: %w", err)
			}

			reactivated, err := app.recovery.Sweep(cmd.Context())
			for _, id := range reactivated {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "reactivated %s\n", id)
			}
			if err != nil {
				return err
			}

			if next, ok := app.recovery.Next(); ok {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "next: %s at %s (%d cooling)\n",
					next.AccountID, next.WakeAt.Format(time.RFC3339), app.recovery.Len())
			}
			return nil
		},
	}
}

func newRecoveryRunCmd(app *app) *cobra.Command {
	var interval time.Duration

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the recovery loop until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !cmd.Flags().Changed("interval") {
				interval = app.config.Recovery.SweepInterval
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			app.logger.Info("recovery loop started", "interval", interval.String())
			return app.recovery.Run(ctx, interval)
		},
	}

	cmd.Flags().DurationVar(&interval, "interval", 0, "Sweep interval (default from config)")

	return cmd
}
