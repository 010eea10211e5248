package database

import (
	"context"
	"database/sql"
	"time"
)

// Checkpoint is a resumable cursor for a long-running pass
type Checkpoint struct {
	Name      string
	RunID     string
	Processed int
	Total     int
	Cursor    string
	UpdatedAt time.Time
}

// SaveCheckpoint replaces the checkpoint with the same name
func (s *StateDB) SaveCheckpoint(ctx context.Context, cp Checkpoint) error {
	return s.exec(ctx, `
		INSERT INTO checkpoints (name, run_id, processed, total, cursor, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			run_id = excluded.run_id,
			processed = excluded.processed,
			total = excluded.total,
			cursor = excluded.cursor,
			updated_at = excluded.updated_at
	`, cp.Name, cp.RunID, cp.Processed, cp.Total, cp.Cursor, time.Now().UnixNano())
}

// GetCheckpoint returns the named checkpoint, nil when none was saved
func (s *StateDB) GetCheckpoint(name string) (*Checkpoint, error) {
	var cp Checkpoint
	var runID sql.NullString
	var updated int64
	err := s.db.QueryRow(`
		SELECT name, run_id, processed, total, cursor, updated_at
		FROM checkpoints WHERE name = ?
	`, name).Scan(&cp.Name, &runID, &cp.Processed, &cp.Total, &cp.Cursor, &updated)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	cp.RunID = runID.String
	cp.UpdatedAt = time.Unix(0, updated)
	return &cp, nil
}

// ClearCheckpoint removes the named checkpoint
func (s *StateDB) ClearCheckpoint(ctx context.Context, name string) error {
	return s.exec(ctx, `DELETE FROM checkpoints WHERE name = ?`, name)
}

// ListCheckpoints returns every checkpoint ordered by name
func (s *StateDB) ListCheckpoints() ([]Checkpoint, error) {
	rows, err := s.db.Query(`SELECT name, run_id, processed, total, cursor, updated_at FROM checkpoints ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Checkpoint
	for rows.Next() {
		var cp Checkpoint
		var runID sql.NullString
		var updated int64
		if err := rows.Scan(&cp.Name, &runID, &cp.Processed, &cp.Total, &cp.Cursor, &updated); err != nil {
			return nil, err
		}
		cp.RunID = runID.String
		cp.UpdatedAt = time.Unix(0, updated)
		out = append(out, cp)
	}
	return out, rows.Err()
}
