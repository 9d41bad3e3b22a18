package cli

import (
	"fmt"
	"log"
	"strconv"

	"github.com/spf13/cobra"

	"ruleloop/internal/domain"
)

var (
	rollbackReason    string
	rollbackEmergency bool
)

var rollbackCmd = &cobra.Command{
	Use:   "rollback <rule-id>",
	Short: "Roll a rule back to its previous version",
	Long: `Rollback restores the previous version's configuration as a new version.
The MANUAL trigger is the normal operator path; --emergency records the
rollback as EMERGENCY for incident response. Neither is gated by accuracy
thresholds or cooldown.`,
	Args: cobra.ExactArgs(1),
	RunE: runRollback,
}

func init() {
	rollbackCmd.Flags().StringVar(&rollbackReason, "reason", "", "why this rollback is needed (required)")
	rollbackCmd.Flags().BoolVar(&rollbackEmergency, "emergency", false, "record as an EMERGENCY rollback")
	_ = rollbackCmd.MarkFlagRequired("reason")
	rootCmd.AddCommand(rollbackCmd)
}

func runRollback(cmd *cobra.Command, args []string) error {
	ruleID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || ruleID < 1 {
		return fmt.Errorf("rule id must be a positive integer, got %q", args[0])
	}

	a, err := buildApp()
	if err != nil {
		return err
	}
	defer a.close()

	trigger := domain.TriggerManual
	if rollbackEmergency {
		trigger = domain.TriggerEmergency
	}

	result, err := a.engine.ManualRollback(cmd.Context(), ruleID, rollbackReason, trigger)
	if err != nil {
		return err
	}
	log.Printf("rolled back rule=%d v%d -> v%d content, now at v%d (trigger=%s event=%d)",
		result.RuleID, result.FromVersion, result.ToVersion, result.NewVersion,
		result.Trigger, result.EventID)
	return nil
}
