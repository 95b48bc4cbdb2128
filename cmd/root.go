package cmd

import "github.com/spf13/cobra"

func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	var configFile string
	app := &app{}

	rootCmd := &cobra.Command{
		Use:           "afk",
		Short:         "afk: keep reward sessions farming",
		Long:          "afk runs a supervisor that keeps AFK reward sessions alive (start, heartbeat, rest, retry) and exposes an admin API to add, remove and inspect them.",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			return app.load(configFile)
		},
	}
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file (default $HOME/.afk/config.toml)")

	rootCmd.AddCommand(
		newVersionCmd(),
		newServeCmd(app),
		newSessionCmd(app),
		newConfigCmd(app),
	)

	return rootCmd
}
