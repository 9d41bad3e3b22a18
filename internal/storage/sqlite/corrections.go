package sqlite

import (
	"time"

	"ruleloop/internal/domain"
)

func (s *Store) InsertCorrection(c domain.Correction) (int64, error) {
	res, err := s.db.Exec(
		`INSERT INTO corrections (forwarder_id, field_name, original_value, corrected_value, class, corrected_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		c.ForwarderID, c.FieldName, c.OriginalValue, c.CorrectedValue, c.Class, c.CorrectedAt,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// UnanalyzedCorrections returns up to limit NORMAL corrections with no
// watermark, oldest first.
func (s *Store) UnanalyzedCorrections(limit int) ([]domain.Correction, error) {
	rows, err := s.db.Query(
		`SELECT id, forwarder_id, field_name, original_value, corrected_value, class, corrected_at, analyzed_at, pattern_id, created_at
		 FROM corrections
		 WHERE class = ? AND analyzed_at IS NULL
		 ORDER BY corrected_at, id
		 LIMIT ?`,
		domain.CorrectionNormal, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Correction
	for rows.Next() {
		var c domain.Correction
		if err := rows.Scan(
			&c.ID, &c.ForwarderID, &c.FieldName, &c.OriginalValue, &c.CorrectedValue,
			&c.Class, &c.CorrectedAt, &c.AnalyzedAt, &c.PatternID, &c.CreatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// LinkCorrections sets the watermark and pattern link on the given records in
// one transaction. A zero patternID watermarks without linking (malformed
// records that were excluded from clustering).
func (s *Store) LinkCorrections(ids []int64, patternID int64, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var pid any
	if patternID != 0 {
		pid = patternID
	}
	stmt, err := tx.Prepare(`UPDATE corrections SET analyzed_at = ?, pattern_id = ? WHERE id = ?`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, id := range ids {
		if _, err := stmt.Exec(at, pid, id); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *Store) CorrectionsByPattern(patternID int64) ([]domain.Correction, error) {
	rows, err := s.db.Query(
		`SELECT id, forwarder_id, field_name, original_value, corrected_value, class, corrected_at, analyzed_at, pattern_id, created_at
		 FROM corrections WHERE pattern_id = ? ORDER BY corrected_at, id`,
		patternID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Correction
	for rows.Next() {
		var c domain.Correction
		if err := rows.Scan(
			&c.ID, &c.ForwarderID, &c.FieldName, &c.OriginalValue, &c.CorrectedValue,
			&c.Class, &c.CorrectedAt, &c.AnalyzedAt, &c.PatternID, &c.CreatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
