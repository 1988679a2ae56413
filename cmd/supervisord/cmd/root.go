package cmd

import (
	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "supervisord",
	Short: "cybergis-compute supervisor",
	Long: "-------------------------------------------------------------------\n" +
		"                  cybergis-compute supervisor\n" +
		"-------------------------------------------------------------------",
	SilenceUsage: true,
}

func init() {
	cobra.EnableCommandSorting = false

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config.yaml", "path to the supervisor's YAML config file")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(validateConfigCmd)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
