package cli

import (
	"context"
	"log"
	"strings"

	"github.com/spf13/cobra"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Run one correction analysis pass and exit",
	RunE:  runAnalyze,
}

func init() {
	rootCmd.AddCommand(analyzeCmd)
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	a, err := buildApp()
	if err != nil {
		return err
	}
	defer a.close()

	ctx, cancel := context.WithTimeout(cmd.Context(), a.cfg.RunBudget())
	defer cancel()

	result, err := a.analyzer.Run(ctx)
	if err != nil {
		return err
	}
	log.Printf("analysis run=%s analyzed=%d created=%d updated=%d promoted=%d",
		result.RunID, result.CorrectionsAnalyzed, result.PatternsCreated,
		result.PatternsUpdated, result.Promotions)
	if len(result.ScopeErrors) > 0 {
		log.Printf("analysis completed with scope errors: %s", strings.Join(result.ScopeErrors, "; "))
	}
	return nil
}
