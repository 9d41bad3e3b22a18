package sqlite

import (
	"time"

	"ruleloop/internal/domain"
)

func (s *Store) InsertApplicationRecord(r domain.ApplicationRecord) (int64, error) {
	res, err := s.db.Exec(
		`INSERT INTO application_records (rule_id, version, document_id, extracted_value, accurate, verified_by, verified_at, applied_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.RuleID, r.Version, r.DocumentID, r.ExtractedValue, r.Accurate, r.VerifiedBy, r.VerifiedAt, r.AppliedAt,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// VerifyApplicationRecord sets the accuracy label; verification happens at
// most once, so an already-labeled record is left alone.
func (s *Store) VerifyApplicationRecord(id int64, accurate bool, verifiedBy string, at time.Time) error {
	_, err := s.db.Exec(
		`UPDATE application_records SET accurate = ?, verified_by = ?, verified_at = ?
		 WHERE id = ? AND accurate IS NULL`,
		accurate, verifiedBy, at, id,
	)
	return err
}

// AccuracyCounts aggregates one rule version's sampled outcomes inside the
// [from, to) window.
func (s *Store) AccuracyCounts(ruleID int64, version int, from, to time.Time) (total, accurate, inaccurate, unverified int, err error) {
	err = s.db.QueryRow(
		`SELECT COUNT(*),
		        COALESCE(SUM(CASE WHEN accurate = 1 THEN 1 ELSE 0 END), 0),
		        COALESCE(SUM(CASE WHEN accurate = 0 THEN 1 ELSE 0 END), 0),
		        COALESCE(SUM(CASE WHEN accurate IS NULL THEN 1 ELSE 0 END), 0)
		 FROM application_records
		 WHERE rule_id = ? AND version = ? AND applied_at >= ? AND applied_at < ?`,
		ruleID, version, from, to,
	).Scan(&total, &accurate, &inaccurate, &unverified)
	return total, accurate, inaccurate, unverified, err
}
