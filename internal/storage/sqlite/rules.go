package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"ruleloop/internal/domain"
)

var (
	ErrRuleNotFound   = domain.ErrRuleNotFound
	ErrVersionMissing = domain.ErrVersionMissing
)

const ruleColumns = `id, forwarder_id, field_name, name, status, current_version,
	kind, payload, confidence_threshold, priority, created_at, updated_at`

func scanRule(row interface{ Scan(...any) error }) (domain.Rule, error) {
	var r domain.Rule
	err := row.Scan(
		&r.ID, &r.ForwarderID, &r.FieldName, &r.Name, &r.Status, &r.CurrentVersion,
		&r.Kind, &r.Payload, &r.ConfidenceThreshold, &r.Priority, &r.CreatedAt, &r.UpdatedAt,
	)
	return r, err
}

func (s *Store) GetRule(id int64) (domain.Rule, error) {
	r, err := scanRule(s.db.QueryRow(`SELECT `+ruleColumns+` FROM rules WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return r, ErrRuleNotFound
	}
	return r, err
}

// ActiveRulesWithHistory returns active rules at version 2 or later, the
// only rules the drop detector can judge.
func (s *Store) ActiveRulesWithHistory() ([]domain.Rule, error) {
	rows, err := s.db.Query(
		`SELECT `+ruleColumns+` FROM rules WHERE status = ? AND current_version > 1 ORDER BY id`,
		domain.RuleActive,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Rule
	for rows.Next() {
		r, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// CreateRule inserts a rule and its version-1 snapshot. The payload is
// validated at this boundary; loose JSON never enters the store unchecked.
func (s *Store) CreateRule(r domain.Rule) (int64, error) {
	if _, err := domain.ParsePayload(r.Kind, r.Payload); err != nil {
		return 0, err
	}
	tx, err := s.db.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	res, err := tx.Exec(
		`INSERT INTO rules (forwarder_id, field_name, name, status, current_version, kind, payload, confidence_threshold, priority)
		 VALUES (?, ?, ?, ?, 1, ?, ?, ?, ?)`,
		r.ForwarderID, r.FieldName, r.Name, r.Status, r.Kind, r.Payload, r.ConfidenceThreshold, r.Priority,
	)
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	if _, err := tx.Exec(
		`INSERT INTO rule_versions (rule_id, version, kind, payload, confidence_threshold, priority, change_reason)
		 VALUES (?, 1, ?, ?, ?, ?, 'initial version')`,
		id, r.Kind, r.Payload, r.ConfidenceThreshold, r.Priority,
	); err != nil {
		return 0, err
	}
	return id, tx.Commit()
}

// PublishRuleVersion writes new content as the next version and moves the
// rule's current pointer to it, transactionally.
func (s *Store) PublishRuleVersion(ruleID int64, kind domain.PayloadKind, payload string, confidenceThreshold float64, priority int, reason string) (int, error) {
	if _, err := domain.ParsePayload(kind, payload); err != nil {
		return 0, err
	}
	rule, err := s.GetRule(ruleID)
	if err != nil {
		return 0, err
	}
	next := rule.CurrentVersion + 1

	tx, err := s.db.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(
		`INSERT INTO rule_versions (rule_id, version, kind, payload, confidence_threshold, priority, change_reason)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		ruleID, next, kind, payload, confidenceThreshold, priority, reason,
	); err != nil {
		return 0, err
	}
	if _, err := tx.Exec(
		`UPDATE rules SET current_version = ?, kind = ?, payload = ?, confidence_threshold = ?, priority = ?, updated_at = ?
		 WHERE id = ?`,
		next, kind, payload, confidenceThreshold, priority, time.Now().UTC(), ruleID,
	); err != nil {
		return 0, err
	}
	return next, tx.Commit()
}

func (s *Store) GetRuleVersion(ruleID int64, version int) (domain.RuleVersion, error) {
	var v domain.RuleVersion
	err := s.db.QueryRow(
		`SELECT id, rule_id, version, kind, payload, confidence_threshold, priority, change_reason, created_at
		 FROM rule_versions WHERE rule_id = ? AND version = ?`,
		ruleID, version,
	).Scan(
		&v.ID, &v.RuleID, &v.Version, &v.Kind, &v.Payload,
		&v.ConfidenceThreshold, &v.Priority, &v.ChangeReason, &v.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return v, fmt.Errorf("rule %d version %d: %w", ruleID, version, ErrVersionMissing)
	}
	return v, err
}

// ApplyRollback restores the content of restore as a brand-new version of the
// rule and records the rollback event, all in one transaction. A partial
// write would leave the rule pointing at a version with no row, so the three
// statements commit or fail together. Returns the new current version and
// the rollback event id.
func (s *Store) ApplyRollback(ruleID int64, restore domain.RuleVersion, versionReason string, event domain.RollbackEvent) (int, int64, error) {
	rule, err := s.GetRule(ruleID)
	if err != nil {
		return 0, 0, err
	}
	next := rule.CurrentVersion + 1
	now := time.Now().UTC()

	tx, err := s.db.Begin()
	if err != nil {
		return 0, 0, err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(
		`UPDATE rules SET current_version = ?, kind = ?, payload = ?, confidence_threshold = ?, priority = ?, updated_at = ?
		 WHERE id = ? AND current_version = ?`,
		next, restore.Kind, restore.Payload, restore.ConfidenceThreshold, restore.Priority, now,
		ruleID, rule.CurrentVersion,
	); err != nil {
		return 0, 0, err
	}
	if _, err := tx.Exec(
		`INSERT INTO rule_versions (rule_id, version, kind, payload, confidence_threshold, priority, change_reason)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		ruleID, next, restore.Kind, restore.Payload, restore.ConfidenceThreshold, restore.Priority, versionReason,
	); err != nil {
		return 0, 0, err
	}
	res, err := tx.Exec(
		`INSERT INTO rollback_events (rule_id, from_version, to_version, trigger_kind, reason, accuracy_before, accuracy_after, metadata)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		event.RuleID, event.FromVersion, event.ToVersion, event.Trigger, event.Reason,
		event.AccuracyBefore, event.AccuracyAfter, event.Metadata,
	)
	if err != nil {
		return 0, 0, err
	}
	eventID, err := res.LastInsertId()
	if err != nil {
		return 0, 0, err
	}
	return next, eventID, tx.Commit()
}
