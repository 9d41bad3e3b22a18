package sqlite

import (
	"database/sql"
	"errors"
	"fmt"

	"ruleloop/internal/domain"
)

// ErrPatternNotFound is returned by lookups that found no row.
var ErrPatternNotFound = domain.ErrPatternNotFound

func (s *Store) scanPattern(row interface{ Scan(...any) error }) (domain.Pattern, error) {
	var p domain.Pattern
	var samples string
	err := row.Scan(
		&p.ID, &p.ForwarderID, &p.FieldName, &p.IdentityHash,
		&p.OriginalValue, &p.CorrectedValue, &p.OccurrenceCount,
		&p.Status, &p.Confidence, &samples, &p.FirstSeenAt, &p.LastSeenAt,
	)
	if err != nil {
		return p, err
	}
	p.Samples, err = domain.DecodeSamples(samples, s.sampleCap)
	if err != nil {
		return p, fmt.Errorf("decode samples for pattern %d: %w", p.ID, err)
	}
	return p, nil
}

const patternColumns = `id, forwarder_id, field_name, identity_hash, original_value, corrected_value,
	occurrence_count, status, confidence, samples, first_seen_at, last_seen_at`

func (s *Store) FindPatternByHash(hash string) (domain.Pattern, error) {
	p, err := s.scanPattern(s.db.QueryRow(
		`SELECT `+patternColumns+` FROM patterns WHERE identity_hash = ?`, hash,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return p, ErrPatternNotFound
	}
	return p, err
}

func (s *Store) GetPattern(id int64) (domain.Pattern, error) {
	p, err := s.scanPattern(s.db.QueryRow(
		`SELECT `+patternColumns+` FROM patterns WHERE id = ?`, id,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return p, ErrPatternNotFound
	}
	return p, err
}

func (s *Store) CreatePattern(p domain.Pattern) (int64, error) {
	samples, err := p.Samples.MarshalJSON()
	if err != nil {
		return 0, err
	}
	res, err := s.db.Exec(
		`INSERT INTO patterns (forwarder_id, field_name, identity_hash, original_value, corrected_value,
		                       occurrence_count, status, confidence, samples, first_seen_at, last_seen_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ForwarderID, p.FieldName, p.IdentityHash, p.OriginalValue, p.CorrectedValue,
		p.OccurrenceCount, p.Status, p.Confidence, string(samples), p.FirstSeenAt, p.LastSeenAt,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// UpdatePattern rewrites the mutable fields of an existing pattern row.
func (s *Store) UpdatePattern(p domain.Pattern) error {
	samples, err := p.Samples.MarshalJSON()
	if err != nil {
		return err
	}
	_, err = s.db.Exec(
		`UPDATE patterns SET occurrence_count = ?, confidence = ?, samples = ?, last_seen_at = ?
		 WHERE id = ?`,
		p.OccurrenceCount, p.Confidence, string(samples), p.LastSeenAt, p.ID,
	)
	return err
}

func (s *Store) UpdatePatternStatus(id int64, status domain.PatternStatus) error {
	res, err := s.db.Exec(`UPDATE patterns SET status = ? WHERE id = ?`, status, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err == nil && n == 0 {
		return ErrPatternNotFound
	}
	return err
}

// PromoteDetected moves every DETECTED pattern at or above the occurrence
// threshold to CANDIDATE, across the whole table, and returns the promoted
// patterns. Re-running is a no-op because promoted rows are no longer
// DETECTED.
func (s *Store) PromoteDetected(threshold int) ([]domain.Pattern, error) {
	rows, err := s.db.Query(
		`SELECT `+patternColumns+` FROM patterns
		 WHERE status = ? AND occurrence_count >= ?`,
		domain.PatternDetected, threshold,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var promoted []domain.Pattern
	for rows.Next() {
		p, err := s.scanPattern(rows)
		if err != nil {
			return nil, err
		}
		promoted = append(promoted, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range promoted {
		if err := s.UpdatePatternStatus(promoted[i].ID, domain.PatternCandidate); err != nil {
			return promoted[:i], err
		}
		promoted[i].Status = domain.PatternCandidate
	}
	return promoted, nil
}

// ListPatterns filters by status and/or forwarder; empty filters match all.
func (s *Store) ListPatterns(status domain.PatternStatus, forwarderID string, limit, offset int) ([]domain.Pattern, error) {
	query := `SELECT ` + patternColumns + ` FROM patterns WHERE 1=1`
	var args []any
	if status != "" {
		query += ` AND status = ?`
		args = append(args, status)
	}
	if forwarderID != "" {
		query += ` AND forwarder_id = ?`
		args = append(args, forwarderID)
	}
	query += ` ORDER BY last_seen_at DESC, id DESC LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Pattern
	for rows.Next() {
		p, err := s.scanPattern(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
