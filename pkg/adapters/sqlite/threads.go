package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/aretw0/threadgraph/pkg/domain"
)

// GetThread reads an archived thread record.
func (s *Store) GetThread(ctx context.Context, threadID string) (domain.ThreadRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, user_id, metadata, created_at, updated_at
		FROM threads WHERE id = ?
	`, threadID)

	rec, err := scanThread(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ThreadRecord{}, domain.ErrThreadNotFound
	}
	if err != nil {
		return domain.ThreadRecord{}, fmt.Errorf("get thread: %w", err)
	}
	return rec, nil
}

// SaveThread inserts or replaces a thread record. created_at is kept from the first write.
func (s *Store) SaveThread(ctx context.Context, rec domain.ThreadRecord) error {
	now := time.Now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = now
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO threads (id, name, user_id, metadata, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			user_id = excluded.user_id,
			metadata = excluded.metadata,
			updated_at = excluded.updated_at
	`,
		rec.ID,
		rec.Name,
		rec.UserID,
		rec.Metadata,
		rec.CreatedAt.UnixNano(),
		rec.UpdatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("save thread: %w", err)
	}
	return nil
}

// DeleteThread removes the archive record.
func (s *Store) DeleteThread(ctx context.Context, threadID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM threads WHERE id = ?`, threadID); err != nil {
		return fmt.Errorf("delete thread: %w", err)
	}
	return nil
}

// ListThreads returns userID's threads, or all threads when userID is empty,
// most recently updated first.
func (s *Store) ListThreads(ctx context.Context, userID string) ([]domain.ThreadRecord, error) {
	query := `
		SELECT id, name, user_id, metadata, created_at, updated_at
		FROM threads`
	var args []any
	if userID != "" {
		query += ` WHERE user_id = ?`
		args = append(args, userID)
	}
	query += ` ORDER BY updated_at DESC, id ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list threads: %w", err)
	}
	defer rows.Close()

	var out []domain.ThreadRecord
	for rows.Next() {
		rec, err := scanThread(rows)
		if err != nil {
			return nil, fmt.Errorf("list threads: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func scanThread(row scanner) (domain.ThreadRecord, error) {
	var (
		rec                  domain.ThreadRecord
		createdAt, updatedAt int64
	)
	if err := row.Scan(&rec.ID, &rec.Name, &rec.UserID, &rec.Metadata, &createdAt, &updatedAt); err != nil {
		return domain.ThreadRecord{}, err
	}
	rec.CreatedAt = time.Unix(0, createdAt).UTC()
	rec.UpdatedAt = time.Unix(0, updatedAt).UTC()
	return rec, nil
}
