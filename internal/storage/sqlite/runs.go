package sqlite

import "ruleloop/internal/domain"

func (s *Store) InsertAnalysisRun(r domain.AnalysisRun) error {
	_, err := s.db.Exec(
		`INSERT INTO analysis_runs (id, started_at, finished_at, status, corrections_analyzed, patterns_created, patterns_updated, promotions, error_message)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.StartedAt, r.FinishedAt, r.Status,
		r.CorrectionsAnalyzed, r.PatternsCreated, r.PatternsUpdated, r.Promotions, r.ErrorMessage,
	)
	return err
}

func (s *Store) RecentAnalysisRuns(limit int) ([]domain.AnalysisRun, error) {
	rows, err := s.db.Query(
		`SELECT id, started_at, finished_at, status, corrections_analyzed, patterns_created, patterns_updated, promotions, error_message
		 FROM analysis_runs ORDER BY started_at DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.AnalysisRun
	for rows.Next() {
		var r domain.AnalysisRun
		if err := rows.Scan(
			&r.ID, &r.StartedAt, &r.FinishedAt, &r.Status,
			&r.CorrectionsAnalyzed, &r.PatternsCreated, &r.PatternsUpdated, &r.Promotions, &r.ErrorMessage,
		); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
