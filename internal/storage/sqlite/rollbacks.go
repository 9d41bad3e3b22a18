package sqlite

import (
	"time"

	"ruleloop/internal/domain"
)

// HasAutoRollbackSince reports whether an AUTO rollback for the rule exists
// after the given instant. This read is the cooldown check; it is not a lock.
func (s *Store) HasAutoRollbackSince(ruleID int64, since time.Time) (bool, error) {
	var count int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM rollback_events
		 WHERE rule_id = ? AND trigger_kind = ? AND created_at >= ?`,
		ruleID, domain.TriggerAuto, since,
	).Scan(&count)
	return count > 0, err
}

// RollbacksByRule lists a rule's rollback history, optionally filtered by
// trigger kind, newest first.
func (s *Store) RollbacksByRule(ruleID int64, trigger domain.RollbackTrigger, limit int) ([]domain.RollbackEvent, error) {
	query := `SELECT id, rule_id, from_version, to_version, trigger_kind, reason, accuracy_before, accuracy_after, metadata, created_at
	          FROM rollback_events WHERE rule_id = ?`
	args := []any{ruleID}
	if trigger != "" {
		query += ` AND trigger_kind = ?`
		args = append(args, trigger)
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.RollbackEvent
	for rows.Next() {
		var e domain.RollbackEvent
		if err := rows.Scan(
			&e.ID, &e.RuleID, &e.FromVersion, &e.ToVersion, &e.Trigger,
			&e.Reason, &e.AccuracyBefore, &e.AccuracyAfter, &e.Metadata, &e.CreatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// RollbackCountsByTrigger aggregates events since the given instant.
func (s *Store) RollbackCountsByTrigger(since time.Time) (map[domain.RollbackTrigger]int, error) {
	rows, err := s.db.Query(
		`SELECT trigger_kind, COUNT(*) FROM rollback_events
		 WHERE created_at >= ? GROUP BY trigger_kind`,
		since,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[domain.RollbackTrigger]int)
	for rows.Next() {
		var trigger domain.RollbackTrigger
		var count int
		if err := rows.Scan(&trigger, &count); err != nil {
			return nil, err
		}
		out[trigger] = count
	}
	return out, rows.Err()
}
