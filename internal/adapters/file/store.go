package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aretw0/threadgraph/pkg/domain"
	"github.com/google/uuid"
)

// Store implements ports.CheckpointStore using the local filesystem.
// It keeps the latest checkpoint of each thread as a JSON file in a configured directory.
type Store struct {
	BasePath string
}

// New creates a new Store with the given base path.
// If basePath is empty, it defaults to ".threadgraph/checkpoints".
func New(basePath string) *Store {
	if basePath == "" {
		basePath = filepath.Join(".threadgraph", "checkpoints")
	}
	return &Store{BasePath: basePath}
}

func (s *Store) path(threadID string) (string, error) {
	if threadID == "" {
		return "", errors.New("threadID cannot be empty")
	}
	if strings.ContainsAny(threadID, `/\`) || threadID == "." || threadID == ".." {
		return "", fmt.Errorf("invalid threadID %q", threadID)
	}
	return filepath.Join(s.BasePath, threadID+".json"), nil
}

// Put writes a new checkpoint atomically.
// It writes to a temporary file first, syncs via fsync, and then renames it to the destination.
func (s *Store) Put(ctx context.Context, threadID string, state domain.State) (domain.Checkpoint, error) {
	destPath, err := s.path(threadID)
	if err != nil {
		return domain.Checkpoint{}, err
	}

	var version int64 = 1
	prev, err := s.GetCheckpoint(ctx, threadID)
	switch {
	case err == nil:
		version = prev.Version + 1
	case !errors.Is(err, domain.ErrCheckpointNotFound):
		return domain.Checkpoint{}, err
	}

	cp := domain.Checkpoint{
		ID:        uuid.NewString(),
		ThreadID:  threadID,
		Version:   version,
		State:     state,
		CreatedAt: time.Now().UTC(),
	}

	if err := os.MkdirAll(s.BasePath, 0755); err != nil {
		return domain.Checkpoint{}, fmt.Errorf("failed to ensure checkpoint directory: %w", err)
	}

	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return domain.Checkpoint{}, fmt.Errorf("failed to marshal checkpoint: %w", err)
	}

	// Same directory so the rename stays on one filesystem.
	tmpFile, err := os.CreateTemp(s.BasePath, "."+threadID+"-*.json.tmp")
	if err != nil {
		return domain.Checkpoint{}, fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	defer func() {
		_ = tmpFile.Close()
		_ = os.Remove(tmpPath) // no-op once renamed
	}()

	if _, err := tmpFile.Write(data); err != nil {
		return domain.Checkpoint{}, fmt.Errorf("failed to write to temp file: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		return domain.Checkpoint{}, fmt.Errorf("failed to fsync temp file: %w", err)
	}
	// Cannot rename an open file on Windows.
	if err := tmpFile.Close(); err != nil {
		return domain.Checkpoint{}, fmt.Errorf("failed to close temp file: %w", err)
	}

	// On Windows, os.Rename fails if dest exists.
	if _, err := os.Stat(destPath); err == nil {
		if err := os.Remove(destPath); err != nil {
			return domain.Checkpoint{}, fmt.Errorf("failed to remove existing checkpoint file for overwrite: %w", err)
		}
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		return domain.Checkpoint{}, fmt.Errorf("failed to rename temp file to checkpoint: %w", err)
	}

	return cp, nil
}

// Get returns the state of the latest checkpoint.
func (s *Store) Get(ctx context.Context, threadID string) (domain.State, error) {
	cp, err := s.GetCheckpoint(ctx, threadID)
	if err != nil {
		return domain.State{}, err
	}
	return cp.State, nil
}

// GetCheckpoint reads the thread's checkpoint file.
func (s *Store) GetCheckpoint(ctx context.Context, threadID string) (domain.Checkpoint, error) {
	filePath, err := s.path(threadID)
	if err != nil {
		return domain.Checkpoint{}, err
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return domain.Checkpoint{}, domain.ErrCheckpointNotFound
		}
		return domain.Checkpoint{}, fmt.Errorf("failed to read checkpoint file: %w", err)
	}

	var cp domain.Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return domain.Checkpoint{}, fmt.Errorf("failed to unmarshal checkpoint: %w", err)
	}
	if cp.State.Messages == nil {
		cp.State.Messages = []domain.Message{}
	}
	if cp.State.Values == nil {
		cp.State.Values = make(map[string]any)
	}
	return cp, nil
}

// Delete removes the checkpoint file.
func (s *Store) Delete(ctx context.Context, threadID string) error {
	filePath, err := s.path(threadID)
	if err != nil {
		return err
	}

	err = os.Remove(filePath)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete checkpoint file: %w", err)
	}

	return nil
}

// List returns all thread IDs that have a checkpoint file.
func (s *Store) List(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.BasePath)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("failed to list checkpoints: %w", err)
	}

	var threads []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || filepath.Ext(name) != ".json" {
			continue
		}
		threads = append(threads, strings.TrimSuffix(name, ".json"))
	}

	return threads, nil
}
