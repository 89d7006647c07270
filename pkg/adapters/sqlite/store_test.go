package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/aretw0/threadgraph/pkg/domain"
	"github.com/aretw0/threadgraph/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	_ ports.CheckpointStore  = (*Store)(nil)
	_ ports.CheckpointLister = (*Store)(nil)
	_ ports.ThreadArchive    = (*Store)(nil)
)

func openTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpen_Pragmas(t *testing.T) {
	s := openTestStore(t)

	assert.NoError(t, s.verifyPragma("journal_mode", "wal"))
	assert.NoError(t, s.verifyPragma("foreign_keys", "1"))
	assert.NoError(t, s.verifyPragma("user_version", "1"))
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	s1, err := Open(path)
	require.NoError(t, err)
	_, err = s1.Put(context.Background(), "t1", domain.NewState())
	require.NoError(t, err)
	require.NoError(t, s1.Close())

	s2, err := Open(path)
	require.NoError(t, err)
	defer s2.Close()

	cp, err := s2.GetCheckpoint(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), cp.Version)
}

func TestOpen_RejectsNewerSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	require.NoError(t, err)
	_, err = s.db.Exec("PRAGMA user_version = 99")
	require.NoError(t, err)
	require.NoError(t, s.Close())

	_, err = Open(path)
	assert.ErrorContains(t, err, "newer than supported")
}

func TestStore_CheckpointContract(t *testing.T) {
	ports.RunCheckpointStoreContract(t, openTestStore(t))
}

func TestStore_ArchiveContract(t *testing.T) {
	ports.RunThreadArchiveContract(t, openTestStore(t))
}

func TestStore_Lineage(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	st := domain.NewState()
	for _, c := range []string{"a", "b", "c"} {
		st.Messages = append(st.Messages, domain.UserMessage(c))
		_, err := s.Put(ctx, "t1", st)
		require.NoError(t, err)
	}

	lineage, err := s.ListCheckpoints(ctx, "t1")
	require.NoError(t, err)
	require.Len(t, lineage, 3)
	for i, cp := range lineage {
		assert.Equal(t, int64(i+1), cp.Version)
		assert.Len(t, cp.State.Messages, i+1)
	}
}

func TestStore_Retention(t *testing.T) {
	s := openTestStore(t, WithRetention(2))
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := s.Put(ctx, "t1", domain.NewState())
		require.NoError(t, err)
	}

	lineage, err := s.ListCheckpoints(ctx, "t1")
	require.NoError(t, err)
	require.Len(t, lineage, 2)
	assert.Equal(t, int64(4), lineage[0].Version)
	assert.Equal(t, int64(5), lineage[1].Version)
}

func TestStore_DeleteKeepsArchive(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveThread(ctx, domain.ThreadRecord{ID: "t1", Name: "kept"}))
	_, err := s.Put(ctx, "t1", domain.NewState())
	require.NoError(t, err)

	require.NoError(t, s.Delete(ctx, "t1"))

	_, err = s.Get(ctx, "t1")
	assert.ErrorIs(t, err, domain.ErrCheckpointNotFound)
	rec, err := s.GetThread(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, "kept", rec.Name)
	assert.False(t, rec.CreatedAt.IsZero())
}
