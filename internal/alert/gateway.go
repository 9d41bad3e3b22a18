// Package alert defines the outbound event contract and its Slack delivery.
// Delivery is always best-effort: the engines have durably recorded their
// decision before any alert leaves the process.
package alert

import (
	"context"

	"ruleloop/internal/domain"
)

// CandidatesAlert announces newly promoted correction patterns awaiting
// human review.
type CandidatesAlert struct {
	Count    int
	Patterns []domain.Pattern
	// Digest is an optional human-written-style summary of the new
	// candidates; empty when no annotator is configured.
	Digest string
}

// RollbackAlert carries everything needed to render a human-readable
// automatic-rollback notification.
type RollbackAlert struct {
	RuleID         int64
	RuleName       string
	FieldName      string
	FromVersion    int
	ToVersion      int
	AccuracyBefore float64
	AccuracyAfter  float64
	DropPercentage float64
	Trigger        domain.RollbackTrigger
	Reason         string
}

// Gateway receives structured events from the engines. Implementations must
// never block transactional correctness: errors are for logging only.
type Gateway interface {
	CandidatesAvailable(ctx context.Context, a CandidatesAlert) error
	RuleRolledBack(ctx context.Context, a RollbackAlert) error
}

// NopGateway drops every event. Used in tests and when Slack is not
// configured.
type NopGateway struct{}

func (NopGateway) CandidatesAvailable(context.Context, CandidatesAlert) error { return nil }
func (NopGateway) RuleRolledBack(context.Context, RollbackAlert) error        { return nil }
