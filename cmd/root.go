package cmd

import "github.com/spf13/cobra"

func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "opool",
		Short:         "Outreach pool (opool): allocate accounts and run rate-governed campaigns",
		Long:          "opool keeps a pool of outreach accounts, allocates them under daily and per-destination limits, cools down or disables accounts on provider errors, and runs campaigns of targets through an external capability command.",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	app, err := wireApp()
	if err != nil {
		rootCmd.RunE = func(_ *cobra.Command, _ []string) error {
			return err
		}
		return rootCmd
	}
	rootCmd.PersistentPostRunE = func(_ *cobra.Command, _ []string) error {
		return app.close()
	}

	rootCmd.AddCommand(
		newVersionCmd(),
		newAccountCmd(app),
		newCampaignCmd(app),
		newRecoveryCmd(app),
	)

	return rootCmd
}
