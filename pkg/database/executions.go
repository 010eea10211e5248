package database

import (
	"context"
	"database/sql"
	"time"
)

// Execution actions
const (
	ActionDelete = "delete"
	ActionCopy   = "copy"
	ActionSkip   = "skip"
)

// ExecutionRecord is one line of the execution audit log
type ExecutionRecord struct {
	RunID      string
	GroupID    string
	GroupKey   string
	Action     string
	Path       string
	Method     string
	DryRun     bool
	Error      string
	ExecutedAt time.Time
}

// RecordAction appends an entry to the audit log
func (s *StateDB) RecordAction(ctx context.Context, rec ExecutionRecord) error {
	var errMsg, method *string
	if rec.Error != "" {
		errMsg = &rec.Error
	}
	if rec.Method != "" {
		method = &rec.Method
	}
	return s.exec(ctx, `
		INSERT INTO executions (run_id, group_id, group_key, action, path, method, dry_run, error, executed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, rec.RunID, rec.GroupID, rec.GroupKey, rec.Action, rec.Path, method, rec.DryRun, errMsg, time.Now().Unix())
}

// ListActions returns the audit log of one run in insertion order
func (s *StateDB) ListActions(runID string) ([]ExecutionRecord, error) {
	rows, err := s.db.Query(`
		SELECT run_id, group_id, group_key, action, path, method, dry_run, error, executed_at
		FROM executions WHERE run_id = ? ORDER BY id
	`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ExecutionRecord
	for rows.Next() {
		var rec ExecutionRecord
		var method, errMsg sql.NullString
		var executedAt int64
		if err := rows.Scan(&rec.RunID, &rec.GroupID, &rec.GroupKey, &rec.Action, &rec.Path,
			&method, &rec.DryRun, &errMsg, &executedAt); err != nil {
			return nil, err
		}
		rec.Method = method.String
		rec.Error = errMsg.String
		rec.ExecutedAt = time.Unix(executedAt, 0)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// MarkExecuted makes a decision terminal; it will not be applied again
func (s *StateDB) MarkExecuted(ctx context.Context, groupKey, groupID, runID string) error {
	return s.exec(ctx, `
		INSERT OR IGNORE INTO executed_groups (group_key, group_id, run_id, executed_at)
		VALUES (?, ?, ?, ?)
	`, groupKey, groupID, runID, time.Now().Unix())
}

// ExecutedKeys returns the set of group keys already executed
func (s *StateDB) ExecutedKeys() (map[string]bool, error) {
	rows, err := s.db.Query(`SELECT group_key FROM executed_groups`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	keys := make(map[string]bool)
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, err
		}
		keys[key] = true
	}
	return keys, rows.Err()
}
