package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aretw0/threadgraph/pkg/domain"
	"github.com/google/uuid"
)

// Put appends a checkpoint to the thread's lineage inside a transaction.
func (s *Store) Put(ctx context.Context, threadID string, state domain.State) (domain.Checkpoint, error) {
	stateJSON, err := json.Marshal(state)
	if err != nil {
		return domain.Checkpoint{}, fmt.Errorf("put checkpoint: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Checkpoint{}, fmt.Errorf("put checkpoint: begin: %w", err)
	}
	defer tx.Rollback()

	var latest int64
	err = tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(version), 0) FROM checkpoints WHERE thread_id = ?`,
		threadID,
	).Scan(&latest)
	if err != nil {
		return domain.Checkpoint{}, fmt.Errorf("put checkpoint: read version: %w", err)
	}

	cp := domain.Checkpoint{
		ID:        uuid.NewString(),
		ThreadID:  threadID,
		Version:   latest + 1,
		State:     state,
		CreatedAt: time.Now().UTC(),
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO checkpoints (thread_id, version, checkpoint_id, state, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, cp.ThreadID, cp.Version, cp.ID, string(stateJSON), cp.CreatedAt.UnixNano())
	if err != nil {
		return domain.Checkpoint{}, fmt.Errorf("put checkpoint: insert: %w", err)
	}

	if s.retention > 0 {
		_, err = tx.ExecContext(ctx,
			`DELETE FROM checkpoints WHERE thread_id = ? AND version <= ?`,
			threadID, cp.Version-int64(s.retention),
		)
		if err != nil {
			return domain.Checkpoint{}, fmt.Errorf("put checkpoint: prune: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return domain.Checkpoint{}, fmt.Errorf("put checkpoint: commit: %w", err)
	}
	return cp, nil
}

// Get returns the latest state of a thread.
func (s *Store) Get(ctx context.Context, threadID string) (domain.State, error) {
	cp, err := s.GetCheckpoint(ctx, threadID)
	if err != nil {
		return domain.State{}, err
	}
	return cp.State, nil
}

// GetCheckpoint returns the highest version for a thread.
func (s *Store) GetCheckpoint(ctx context.Context, threadID string) (domain.Checkpoint, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT thread_id, version, checkpoint_id, state, created_at
		FROM checkpoints
		WHERE thread_id = ?
		ORDER BY version DESC
		LIMIT 1
	`, threadID)

	cp, err := scanCheckpoint(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Checkpoint{}, domain.ErrCheckpointNotFound
	}
	if err != nil {
		return domain.Checkpoint{}, fmt.Errorf("get checkpoint: %w", err)
	}
	return cp, nil
}

// ListCheckpoints returns the retained lineage, oldest first.
func (s *Store) ListCheckpoints(ctx context.Context, threadID string) ([]domain.Checkpoint, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT thread_id, version, checkpoint_id, state, created_at
		FROM checkpoints
		WHERE thread_id = ?
		ORDER BY version ASC
	`, threadID)
	if err != nil {
		return nil, fmt.Errorf("list checkpoints: %w", err)
	}
	defer rows.Close()

	var out []domain.Checkpoint
	for rows.Next() {
		cp, err := scanCheckpoint(rows)
		if err != nil {
			return nil, fmt.Errorf("list checkpoints: %w", err)
		}
		out = append(out, cp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list checkpoints: %w", err)
	}
	if len(out) == 0 {
		return nil, domain.ErrCheckpointNotFound
	}
	return out, nil
}

// Delete removes the thread's lineage. The archive record is left alone.
func (s *Store) Delete(ctx context.Context, threadID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM checkpoints WHERE thread_id = ?`, threadID); err != nil {
		return fmt.Errorf("delete checkpoints: %w", err)
	}
	return nil
}

// List returns every thread with at least one checkpoint, sorted by ID.
func (s *Store) List(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT thread_id FROM checkpoints ORDER BY thread_id`)
	if err != nil {
		return nil, fmt.Errorf("list threads: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("list threads: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanCheckpoint(row scanner) (domain.Checkpoint, error) {
	var (
		cp        domain.Checkpoint
		stateJSON string
		createdAt int64
	)
	if err := row.Scan(&cp.ThreadID, &cp.Version, &cp.ID, &stateJSON, &createdAt); err != nil {
		return domain.Checkpoint{}, err
	}
	if err := json.Unmarshal([]byte(stateJSON), &cp.State); err != nil {
		return domain.Checkpoint{}, fmt.Errorf("unmarshal state: %w", err)
	}
	if cp.State.Messages == nil {
		cp.State.Messages = []domain.Message{}
	}
	if cp.State.Values == nil {
		cp.State.Values = make(map[string]any)
	}
	cp.CreatedAt = time.Unix(0, createdAt).UTC()
	return cp, nil
}
