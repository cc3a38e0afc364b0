// Package commands implements the badgelinkd CLI.
package commands

import (
	"github.com/spf13/cobra"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:           "badgelinkd",
	Short:         "BadgeLink session engine daemon",
	Long:          `badgelinkd runs the BadgeLink host/device session engine against a configured app store, settings store, and filesystem root.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command. Called once from main.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./badgelinkd.yaml)")
	rootCmd.AddCommand(runCmd)
}
