// Package accuracy watches sampled extraction outcomes per rule version,
// detects regressions against the previous version, and rolls back rules
// whose new version is measurably worse.
package accuracy

import (
	"time"

	"ruleloop/internal/alert"
	"ruleloop/internal/domain"
)

// ApplicationStore aggregates sampled outcomes.
type ApplicationStore interface {
	AccuracyCounts(ruleID int64, version int, from, to time.Time) (total, accurate, inaccurate, unverified int, err error)
}

// RuleStore reads rules and version history and applies the rollback
// transaction.
type RuleStore interface {
	GetRule(id int64) (domain.Rule, error)
	GetRuleVersion(ruleID int64, version int) (domain.RuleVersion, error)
	ActiveRulesWithHistory() ([]domain.Rule, error)
	ApplyRollback(ruleID int64, restore domain.RuleVersion, versionReason string, event domain.RollbackEvent) (newVersion int, eventID int64, err error)
}

// RollbackStore answers the cooldown read.
type RollbackStore interface {
	HasAutoRollbackSince(ruleID int64, since time.Time) (bool, error)
}

type Config struct {
	WindowHours   int     // trailing accuracy window
	MinSampleSize int     // verified samples required to judge
	DropThreshold float64 // fractional drop that triggers rollback
	Cooldown      time.Duration
	WorkerLimit   int // parallel rules per monitoring run
}

func (c Config) withDefaults() Config {
	if c.WindowHours <= 0 {
		c.WindowHours = 24
	}
	if c.MinSampleSize <= 0 {
		c.MinSampleSize = 10
	}
	if c.DropThreshold <= 0 {
		c.DropThreshold = 0.10
	}
	if c.Cooldown <= 0 {
		c.Cooldown = 60 * time.Minute
	}
	if c.WorkerLimit <= 0 {
		c.WorkerLimit = 4
	}
	return c
}

// Engine ties the aggregator, drop detector, and rollback executor together.
type Engine struct {
	cfg          Config
	applications ApplicationStore
	rules        RuleStore
	rollbacks    RollbackStore
	gateway      alert.Gateway
	now          func() time.Time
}

func NewEngine(cfg Config, applications ApplicationStore, rules RuleStore, rollbacks RollbackStore, gateway alert.Gateway) *Engine {
	if gateway == nil {
		gateway = alert.NopGateway{}
	}
	return &Engine{
		cfg:          cfg.withDefaults(),
		applications: applications,
		rules:        rules,
		rollbacks:    rollbacks,
		gateway:      gateway,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// Report is one windowed accuracy measurement. Accuracy is nil when the
// verified sample size is below the minimum: "cannot judge", never "0%".
type Report struct {
	RuleID      int64      `json:"rule_id"`
	Version     int        `json:"version"`
	Total       int        `json:"total"`
	Accurate    int        `json:"accurate"`
	Inaccurate  int        `json:"inaccurate"`
	Unverified  int        `json:"unverified"`
	SampleSize  int        `json:"sample_size"`
	Accuracy    *float64   `json:"accuracy"`
	WindowStart time.Time  `json:"window_start"`
	WindowEnd   time.Time  `json:"window_end"`
}

// Calculate measures one rule version over the trailing window ending now.
func (e *Engine) Calculate(ruleID int64, version, windowHours int) (Report, error) {
	if windowHours <= 0 {
		windowHours = e.cfg.WindowHours
	}
	end := e.now()
	start := end.Add(-time.Duration(windowHours) * time.Hour)
	return e.calculateWindow(ruleID, version, start, end)
}

func (e *Engine) calculateWindow(ruleID int64, version int, start, end time.Time) (Report, error) {
	total, accurate, inaccurate, unverified, err := e.applications.AccuracyCounts(ruleID, version, start, end)
	if err != nil {
		return Report{}, err
	}
	r := Report{
		RuleID:      ruleID,
		Version:     version,
		Total:       total,
		Accurate:    accurate,
		Inaccurate:  inaccurate,
		Unverified:  unverified,
		SampleSize:  accurate + inaccurate,
		WindowStart: start,
		WindowEnd:   end,
	}
	if r.SampleSize >= e.cfg.MinSampleSize {
		acc := float64(accurate) / float64(r.SampleSize)
		r.Accuracy = &acc
	}
	return r, nil
}

// Trend repeats the 24-hour calculation over the last buckets trailing
// windows, oldest first. Display and diagnostics only; no decisioning reads
// this.
func (e *Engine) Trend(ruleID int64, version, buckets int) ([]Report, error) {
	if buckets <= 0 {
		buckets = 7
	}
	now := e.now()
	out := make([]Report, 0, buckets)
	for i := buckets - 1; i >= 0; i-- {
		end := now.Add(-time.Duration(i) * 24 * time.Hour)
		r, err := e.calculateWindow(ruleID, version, end.Add(-24*time.Hour), end)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}
