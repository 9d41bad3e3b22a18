// Package cli wires the service together behind a small set of commands:
// serve runs everything, the rest are one-shot operator entry points.
package cli

import (
	"github.com/spf13/cobra"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "ruleloop",
	Short: "Correction pattern learning and accuracy auto-rollback for extraction rules",
	Long: `ruleloop watches human corrections of extracted document fields, clusters
recurring fixes into patterns, and monitors per-version extraction accuracy.
When a new rule version measurably underperforms its predecessor it is
rolled back automatically, with a full audit trail.`,
	SilenceErrors: true,
	SilenceUsage:  true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "config.yaml", "config file path")
}
