package cli

import (
	"context"
	"log"

	"github.com/spf13/cobra"
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Run one accuracy monitoring pass over all eligible rules and exit",
	RunE:  runMonitor,
}

func init() {
	rootCmd.AddCommand(monitorCmd)
}

func runMonitor(cmd *cobra.Command, args []string) error {
	a, err := buildApp()
	if err != nil {
		return err
	}
	defer a.close()

	ctx, cancel := context.WithTimeout(cmd.Context(), a.cfg.RunBudget())
	defer cancel()

	result, err := a.engine.Monitor(ctx)
	if err != nil {
		return err
	}
	log.Printf("monitor checked=%d rollbacks=%d errors=%d",
		result.RulesChecked, result.RollbacksRun, len(result.RuleErrors))
	return nil
}
