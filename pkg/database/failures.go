package database

import (
	"context"
	"time"
)

// ScanFailure is a file that could not be extracted
type ScanFailure struct {
	Path     string
	RunID    string
	Error    string
	Attempts int
	FailedAt time.Time
}

// RecordFailure stores or bumps the failure entry for path
func (s *StateDB) RecordFailure(ctx context.Context, runID, path string, failure error) error {
	return s.exec(ctx, `
		INSERT INTO scan_failures (path, run_id, error, attempts, failed_at)
		VALUES (?, ?, ?, 1, ?)
		ON CONFLICT(path) DO UPDATE SET
			run_id = excluded.run_id,
			error = excluded.error,
			attempts = scan_failures.attempts + 1,
			failed_at = excluded.failed_at
	`, path, runID, failure.Error(), time.Now().Unix())
}

// ClearFailure forgets a failure once the file was extracted successfully
func (s *StateDB) ClearFailure(ctx context.Context, path string) error {
	return s.exec(ctx, `DELETE FROM scan_failures WHERE path = ?`, path)
}

// ListFailures returns failures ordered by path
func (s *StateDB) ListFailures(limit int) ([]ScanFailure, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.Query(`
		SELECT path, COALESCE(run_id, ''), error, attempts, failed_at
		FROM scan_failures ORDER BY path LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ScanFailure
	for rows.Next() {
		var f ScanFailure
		var failedAt int64
		if err := rows.Scan(&f.Path, &f.RunID, &f.Error, &f.Attempts, &failedAt); err != nil {
			return nil, err
		}
		f.FailedAt = time.Unix(failedAt, 0)
		out = append(out, f)
	}
	return out, rows.Err()
}

// FailureCount returns the number of recorded failures
func (s *StateDB) FailureCount() (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM scan_failures`).Scan(&n)
	return n, err
}
