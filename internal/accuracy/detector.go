package accuracy

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"ruleloop/internal/alert"
	"ruleloop/internal/domain"
)

// DropResult is the outcome of one drop check. When ShouldRollback is false,
// Reason says why no action was taken.
type DropResult struct {
	RuleID             int64
	ShouldRollback     bool
	Reason             string
	CurrentVersion     int
	PreviousVersion    int
	CurrentAccuracy    *float64
	PreviousAccuracy   *float64
	DropPercentage     float64 // percentage points
	CurrentSampleSize  int
	PreviousSampleSize int
}

// CheckDrop decides whether the rule's current version has regressed enough
// against its predecessor to roll back. The engine never acts on
// statistically unsupported evidence: either window lacking the minimum
// verified sample size means no action.
func (e *Engine) CheckDrop(ruleID int64) (DropResult, error) {
	rule, err := e.rules.GetRule(ruleID)
	if err != nil {
		return DropResult{}, err
	}
	res := DropResult{RuleID: ruleID, CurrentVersion: rule.CurrentVersion}

	if rule.CurrentVersion <= 1 {
		res.Reason = "no previous version to compare"
		return res, nil
	}
	res.PreviousVersion = rule.CurrentVersion - 1

	// Cooldown: a fresh AUTO rollback suppresses further automatic action so
	// noisy post-rollback accuracy cannot cause flapping.
	inCooldown, err := e.rollbacks.HasAutoRollbackSince(ruleID, e.now().Add(-e.cfg.Cooldown))
	if err != nil {
		return res, fmt.Errorf("cooldown check: %w", err)
	}
	if inCooldown {
		res.Reason = "cooldown active after recent automatic rollback"
		return res, nil
	}

	current, err := e.Calculate(ruleID, rule.CurrentVersion, e.cfg.WindowHours)
	if err != nil {
		return res, err
	}
	previous, err := e.Calculate(ruleID, res.PreviousVersion, e.cfg.WindowHours)
	if err != nil {
		return res, err
	}
	res.CurrentAccuracy = current.Accuracy
	res.PreviousAccuracy = previous.Accuracy
	res.CurrentSampleSize = current.SampleSize
	res.PreviousSampleSize = previous.SampleSize

	if current.Accuracy == nil || previous.Accuracy == nil {
		res.Reason = "insufficient verified samples"
		return res, nil
	}

	drop := *previous.Accuracy - *current.Accuracy
	res.DropPercentage = drop * 100
	if drop > e.cfg.DropThreshold {
		res.ShouldRollback = true
		res.Reason = fmt.Sprintf("accuracy dropped %.1f pp (%.1f%% -> %.1f%%)",
			res.DropPercentage, *previous.Accuracy*100, *current.Accuracy*100)
	} else {
		res.Reason = fmt.Sprintf("drop %.1f pp within threshold", res.DropPercentage)
	}
	return res, nil
}

// RollbackResult reports one executed rollback for the caller to log.
type RollbackResult struct {
	Success     bool
	RuleID      int64
	FromVersion int
	ToVersion   int
	NewVersion  int
	EventID     int64
	Trigger     domain.RollbackTrigger
	Reason      string
	ExecutedAt  time.Time
}

// ExecuteRollback restores the previous version's content as a brand-new
// version, atomically with the version row and the audit event. Alerting
// happens after commit and is best-effort: the decision is already durable.
func (e *Engine) ExecuteRollback(ctx context.Context, drop DropResult, trigger domain.RollbackTrigger) (RollbackResult, error) {
	rule, err := e.rules.GetRule(drop.RuleID)
	if err != nil {
		return RollbackResult{}, err
	}
	previousVersion := rule.CurrentVersion - 1
	if previousVersion < 1 {
		return RollbackResult{}, fmt.Errorf("rule %d has no version to restore", rule.ID)
	}
	restore, err := e.rules.GetRuleVersion(rule.ID, previousVersion)
	if err != nil {
		// Data-integrity fault: the version a rollback must restore is gone.
		return RollbackResult{}, fmt.Errorf("restore target: %w", err)
	}

	reason := rollbackReason(trigger, drop)
	metadata, _ := json.Marshal(map[string]any{
		"drop_percentage":      drop.DropPercentage,
		"current_sample_size":  drop.CurrentSampleSize,
		"previous_sample_size": drop.PreviousSampleSize,
	})
	event := domain.RollbackEvent{
		RuleID:         rule.ID,
		FromVersion:    rule.CurrentVersion,
		ToVersion:      previousVersion,
		Trigger:        trigger,
		Reason:         reason,
		AccuracyBefore: drop.CurrentAccuracy,
		AccuracyAfter:  drop.PreviousAccuracy,
		Metadata:       string(metadata),
	}
	newVersion, eventID, err := e.rules.ApplyRollback(rule.ID, restore, reason, event)
	if err != nil {
		return RollbackResult{}, fmt.Errorf("rollback transaction: %w", err)
	}

	result := RollbackResult{
		Success:     true,
		RuleID:      rule.ID,
		FromVersion: rule.CurrentVersion,
		ToVersion:   previousVersion,
		NewVersion:  newVersion,
		EventID:     eventID,
		Trigger:     trigger,
		Reason:      reason,
		ExecutedAt:  e.now(),
	}
	log.Printf("rollback rule=%d from=v%d to=v%d new=v%d trigger=%s event=%d",
		rule.ID, result.FromVersion, result.ToVersion, result.NewVersion, trigger, eventID)

	a := alert.RollbackAlert{
		RuleID:         rule.ID,
		RuleName:       rule.Name,
		FieldName:      rule.FieldName,
		FromVersion:    result.FromVersion,
		ToVersion:      result.ToVersion,
		DropPercentage: drop.DropPercentage,
		Trigger:        trigger,
		Reason:         reason,
	}
	if drop.CurrentAccuracy != nil {
		a.AccuracyBefore = *drop.CurrentAccuracy
	}
	if drop.PreviousAccuracy != nil {
		a.AccuracyAfter = *drop.PreviousAccuracy
	}
	if err := e.gateway.RuleRolledBack(ctx, a); err != nil {
		log.Printf("rollback alert rule=%d error: %v", rule.ID, err)
	}
	return result, nil
}

// ManualRollback is the operator path (MANUAL or EMERGENCY trigger): the
// drop measurement is taken best-effort for the audit trail but never gates
// the action.
func (e *Engine) ManualRollback(ctx context.Context, ruleID int64, operatorReason string, trigger domain.RollbackTrigger) (RollbackResult, error) {
	rule, err := e.rules.GetRule(ruleID)
	if err != nil {
		return RollbackResult{}, err
	}
	drop := DropResult{RuleID: ruleID, CurrentVersion: rule.CurrentVersion, Reason: operatorReason}
	if rule.CurrentVersion > 1 {
		if current, err := e.Calculate(ruleID, rule.CurrentVersion, e.cfg.WindowHours); err == nil {
			drop.CurrentAccuracy = current.Accuracy
			drop.CurrentSampleSize = current.SampleSize
		}
		if previous, err := e.Calculate(ruleID, rule.CurrentVersion-1, e.cfg.WindowHours); err == nil {
			drop.PreviousAccuracy = previous.Accuracy
			drop.PreviousSampleSize = previous.SampleSize
		}
		if drop.CurrentAccuracy != nil && drop.PreviousAccuracy != nil {
			drop.DropPercentage = (*drop.PreviousAccuracy - *drop.CurrentAccuracy) * 100
		}
	}
	return e.ExecuteRollback(ctx, drop, trigger)
}

func rollbackReason(trigger domain.RollbackTrigger, drop DropResult) string {
	switch trigger {
	case domain.TriggerAuto:
		var before, after string
		if drop.CurrentAccuracy != nil {
			before = fmt.Sprintf("%.1f%%", *drop.CurrentAccuracy*100)
		}
		if drop.PreviousAccuracy != nil {
			after = fmt.Sprintf("%.1f%%", *drop.PreviousAccuracy*100)
		}
		return fmt.Sprintf("Automatic rollback: accuracy %s is %.1f pp below previous version (%s)",
			before, drop.DropPercentage, after)
	default:
		return fmt.Sprintf("%s rollback: %s", trigger, drop.Reason)
	}
}
