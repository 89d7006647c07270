// Package loam archives threads as markdown documents in a loam repository.
// Each thread is one document: the record fields live in the frontmatter
// and the body is a readable transcript of the chat history.
package loam

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/aretw0/loam"
	"github.com/aretw0/threadgraph/pkg/domain"
)

// ThreadDocument is the frontmatter of an archived thread.
// Timestamps are RFC 3339 strings so they survive the YAML round trip.
type ThreadDocument struct {
	ID        string `json:"id" mapstructure:"id"`
	Name      string `json:"name,omitempty" mapstructure:"name"`
	UserID    string `json:"user_id,omitempty" mapstructure:"user_id"`
	Metadata  string `json:"metadata,omitempty" mapstructure:"metadata"`
	CreatedAt string `json:"created_at,omitempty" mapstructure:"created_at"`
	UpdatedAt string `json:"updated_at,omitempty" mapstructure:"updated_at"`
}

// Archive implements ports.ThreadArchive on top of a loam repository.
type Archive struct {
	dir  string
	repo *loam.TypedRepository[ThreadDocument]
}

// Open initialises a loam repository in dir, creating it if needed.
func Open(dir string) (*Archive, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve archive path: %w", err)
	}
	if err := os.MkdirAll(abs, 0755); err != nil {
		return nil, fmt.Errorf("failed to create archive directory: %w", err)
	}

	repo, err := loam.Init(abs,
		loam.WithVersioning(false),
		loam.WithForceTemp(false),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to init loam archive: %w", err)
	}
	return &Archive{dir: abs, repo: loam.NewTypedRepository[ThreadDocument](repo)}, nil
}

func (a *Archive) GetThread(ctx context.Context, threadID string) (domain.ThreadRecord, error) {
	if err := validateID(threadID); err != nil {
		return domain.ThreadRecord{}, err
	}
	if _, ok := a.documentPath(threadID); !ok {
		return domain.ThreadRecord{}, domain.ErrThreadNotFound
	}

	doc, err := a.repo.Get(ctx, threadID)
	if err != nil {
		return domain.ThreadRecord{}, fmt.Errorf("loam get failed for %s: %w", threadID, err)
	}
	return toRecord(doc.ID, doc.Data)
}

func (a *Archive) SaveThread(ctx context.Context, rec domain.ThreadRecord) error {
	if err := validateID(rec.ID); err != nil {
		return err
	}
	doc := &loam.DocumentModel[ThreadDocument]{
		ID:      rec.ID,
		Content: transcript(rec.Metadata),
		Data:    fromRecord(rec),
	}
	if err := a.repo.Save(ctx, doc); err != nil {
		return fmt.Errorf("loam save failed for %s: %w", rec.ID, err)
	}
	return nil
}

func (a *Archive) DeleteThread(ctx context.Context, threadID string) error {
	if err := validateID(threadID); err != nil {
		return err
	}
	path, ok := a.documentPath(threadID)
	if !ok {
		return nil
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete archived thread %s: %w", threadID, err)
	}
	return nil
}

// ListThreads returns the threads owned by userID, or every thread when
// userID is empty, most recently updated first.
func (a *Archive) ListThreads(ctx context.Context, userID string) ([]domain.ThreadRecord, error) {
	docs, err := a.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("loam list failed: %w", err)
	}

	out := make([]domain.ThreadRecord, 0, len(docs))
	for _, doc := range docs {
		rec, err := toRecord(doc.ID, doc.Data)
		if err != nil {
			return nil, err
		}
		if userID != "" && rec.UserID != userID {
			continue
		}
		out = append(out, rec)
	}
	slices.SortFunc(out, func(x, y domain.ThreadRecord) int {
		if c := y.UpdatedAt.Compare(x.UpdatedAt); c != 0 {
			return c
		}
		return strings.Compare(x.ID, y.ID)
	})
	return out, nil
}

// documentPath finds the file backing a thread. Loam stores documents with
// a .md extension unless the ID already carries one.
func (a *Archive) documentPath(threadID string) (string, bool) {
	for _, name := range []string{threadID + ".md", threadID} {
		path := filepath.Join(a.dir, name)
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path, true
		}
	}
	return "", false
}

func validateID(threadID string) error {
	if threadID == "" {
		return errors.New("thread id must not be empty")
	}
	if strings.ContainsAny(threadID, `/\`) || threadID == "." || threadID == ".." {
		return fmt.Errorf("invalid thread id %q for loam archive", threadID)
	}
	return nil
}

func fromRecord(rec domain.ThreadRecord) ThreadDocument {
	return ThreadDocument{
		ID:        rec.ID,
		Name:      rec.Name,
		UserID:    rec.UserID,
		Metadata:  rec.Metadata,
		CreatedAt: formatTime(rec.CreatedAt),
		UpdatedAt: formatTime(rec.UpdatedAt),
	}
}

func toRecord(docID string, data ThreadDocument) (domain.ThreadRecord, error) {
	id := data.ID
	if id == "" {
		id = trimExtension(docID)
	}
	created, err := parseTime(data.CreatedAt)
	if err != nil {
		return domain.ThreadRecord{}, fmt.Errorf("thread %s: bad created_at: %w", id, err)
	}
	updated, err := parseTime(data.UpdatedAt)
	if err != nil {
		return domain.ThreadRecord{}, fmt.Errorf("thread %s: bad updated_at: %w", id, err)
	}
	return domain.ThreadRecord{
		ID:        id,
		Name:      data.Name,
		UserID:    data.UserID,
		Metadata:  data.Metadata,
		CreatedAt: created,
		UpdatedAt: updated,
	}, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339Nano, s)
}

// transcript renders the chat history in metadata as markdown.
// Metadata that is not a thread metadata document yields an empty body.
func transcript(metadata string) string {
	if metadata == "" {
		return ""
	}
	var meta domain.ThreadMetadata
	if err := json.Unmarshal([]byte(metadata), &meta); err != nil {
		return ""
	}

	var b strings.Builder
	for i, entry := range meta.ChatHistory {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "### %s\n\n%s\n", entry.Role, strings.TrimSpace(entry.Content))
	}
	return b.String()
}

func trimExtension(id string) string {
	ext := filepath.Ext(id)
	if ext != "" {
		return filepath.ToSlash(strings.TrimSuffix(id, ext))
	}
	return filepath.ToSlash(id)
}
