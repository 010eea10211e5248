package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Run kinds
const (
	RunScan    = "scan"
	RunReview  = "review"
	RunRepair  = "repair"
	RunExecute = "execute"
)

// Run statuses
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
	StatusFailed    = "failed"
)

// Run is one invocation of a long-running command
type Run struct {
	ID          string
	Kind        string
	Status      string
	StartedAt   int64
	CompletedAt *int64
	Error       *string
	Metadata    *RunMetadata
}

// RunMetadata summarises what a run did
type RunMetadata struct {
	Processed int `json:"processed"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
}

// CreateRun records the start of a run and returns its id
func (s *StateDB) CreateRun(ctx context.Context, kind string) (string, error) {
	id := uuid.NewString()
	err := s.exec(ctx, `INSERT INTO runs (id, kind, status, started_at) VALUES (?, ?, ?, ?)`,
		id, kind, StatusRunning, time.Now().Unix())
	if err != nil {
		return "", fmt.Errorf("failed to create %s run: %w", kind, err)
	}

	log.WithFields(logrus.Fields{
		"runID": id,
		"kind":  kind,
	}).Debug("Created run")
	return id, nil
}

// FinishRun marks a run terminal. runErr is recorded when non-nil.
func (s *StateDB) FinishRun(ctx context.Context, id string, status string, runErr error, metadata *RunMetadata) error {
	var errorMsg *string
	if runErr != nil {
		msg := runErr.Error()
		errorMsg = &msg
	}

	var metadataJSON *string
	if metadata != nil {
		bytes, err := json.Marshal(metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal metadata: %w", err)
		}
		str := string(bytes)
		metadataJSON = &str
	}

	return s.exec(ctx, `UPDATE runs SET status = ?, completed_at = ?, error = ?, metadata = ? WHERE id = ?`,
		status, time.Now().Unix(), errorMsg, metadataJSON, id)
}

// GetRun retrieves a run by id, nil when unknown
func (s *StateDB) GetRun(id string) (*Run, error) {
	row := s.db.QueryRow(`
		SELECT id, kind, status, started_at, completed_at, error, metadata
		FROM runs WHERE id = ?
	`, id)
	run, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return run, err
}

// ListRuns returns the most recent runs, optionally filtered by kind
func (s *StateDB) ListRuns(kind string, limit int) ([]*Run, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `SELECT id, kind, status, started_at, completed_at, error, metadata FROM runs`
	args := []interface{}{}
	if kind != "" {
		query += ` WHERE kind = ?`
		args = append(args, kind)
	}
	query += ` ORDER BY started_at DESC, rowid DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row rowScanner) (*Run, error) {
	var run Run
	var completedAt sql.NullInt64
	var errorMsg, metadata sql.NullString

	if err := row.Scan(&run.ID, &run.Kind, &run.Status, &run.StartedAt, &completedAt, &errorMsg, &metadata); err != nil {
		return nil, err
	}
	if completedAt.Valid {
		run.CompletedAt = &completedAt.Int64
	}
	if errorMsg.Valid {
		run.Error = &errorMsg.String
	}
	if metadata.Valid {
		var m RunMetadata
		if err := json.Unmarshal([]byte(metadata.String), &m); err == nil {
			run.Metadata = &m
		}
	}
	return &run, nil
}
