package accuracy

import (
	"context"
	"fmt"
	"log"
	"sync"

	"golang.org/x/sync/errgroup"

	"ruleloop/internal/domain"
)

// MonitorResult summarizes one accuracy monitoring pass.
type MonitorResult struct {
	RulesChecked int
	RollbacksRun int
	RuleErrors   []string
}

// Monitor runs one accuracy pass over every active rule with version
// history. Rules are independent, so they are checked concurrently with a
// bounded worker pool; a failure on one rule never blocks the others.
func (e *Engine) Monitor(ctx context.Context) (MonitorResult, error) {
	rules, err := e.rules.ActiveRulesWithHistory()
	if err != nil {
		return MonitorResult{}, fmt.Errorf("list rules: %w", err)
	}

	var mu sync.Mutex
	result := MonitorResult{RulesChecked: len(rules)}

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.WorkerLimit)
	for _, rule := range rules {
		rule := rule
		g.Go(func() error {
			if err := e.checkRule(gCtx, rule, &mu, &result); err != nil {
				log.Printf("accuracy check rule=%d error: %v", rule.ID, err)
				mu.Lock()
				result.RuleErrors = append(result.RuleErrors, fmt.Sprintf("rule %d: %v", rule.ID, err))
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	log.Printf("accuracy monitor checked=%d rollbacks=%d errors=%d",
		result.RulesChecked, result.RollbacksRun, len(result.RuleErrors))
	return result, nil
}

func (e *Engine) checkRule(ctx context.Context, rule domain.Rule, mu *sync.Mutex, result *MonitorResult) error {
	drop, err := e.CheckDrop(rule.ID)
	if err != nil {
		return err
	}
	if !drop.ShouldRollback {
		return nil
	}
	if _, err := e.ExecuteRollback(ctx, drop, domain.TriggerAuto); err != nil {
		return err
	}
	mu.Lock()
	result.RollbacksRun++
	mu.Unlock()
	return nil
}
