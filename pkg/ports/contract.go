package ports

import (
	"context"
	"testing"
	"time"

	"github.com/aretw0/threadgraph/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunCheckpointStoreContract runs a suite of tests to verify that a CheckpointStore implementation
// adheres to the defined interface contract.
func RunCheckpointStoreContract(t *testing.T, store CheckpointStore) {
	ctx := context.Background()
	threadID := "contract-test-thread-" + time.Now().Format("20060102150405.000000")

	t.Run("Put and Get", func(t *testing.T) {
		state := domain.NewState()
		state.Messages = []domain.Message{
			{ID: "m1", Role: domain.RoleUser, Content: "hi"},
			{ID: "m2", Role: domain.RoleAssistant, Content: "hello"},
		}
		state.Values["foo"] = "bar"
		state.Values["count"] = 42

		cp, err := store.Put(ctx, threadID, state)
		require.NoError(t, err, "Put should not return error")
		assert.Equal(t, int64(1), cp.Version, "first checkpoint starts at version 1")
		assert.Equal(t, threadID, cp.ThreadID)
		assert.NotEmpty(t, cp.ID)

		loaded, err := store.Get(ctx, threadID)
		require.NoError(t, err, "Get should not return error")
		assert.Equal(t, state.Messages, loaded.Messages)
		assert.Equal(t, "bar", loaded.Values["foo"])
		// JSON backed stores turn ints into float64; only presence is part of the contract.
		assert.NotNil(t, loaded.Values["count"])
	})

	t.Run("Versions Increase", func(t *testing.T) {
		before, err := store.GetCheckpoint(ctx, threadID)
		require.NoError(t, err)

		next := before.State.Clone()
		next.Messages = append(next.Messages, domain.Message{ID: "m3", Role: domain.RoleUser, Content: "again"})
		cp, err := store.Put(ctx, threadID, next)
		require.NoError(t, err)
		assert.Equal(t, before.Version+1, cp.Version)

		latest, err := store.GetCheckpoint(ctx, threadID)
		require.NoError(t, err)
		assert.Equal(t, cp.Version, latest.Version)
		assert.Len(t, latest.State.Messages, 3)
	})

	t.Run("Caller Mutation Is Isolated", func(t *testing.T) {
		loaded, err := store.Get(ctx, threadID)
		require.NoError(t, err)
		loaded.Messages[0].Content = "tampered"
		loaded.Values["foo"] = "tampered"

		again, err := store.Get(ctx, threadID)
		require.NoError(t, err)
		assert.Equal(t, "hi", again.Messages[0].Content)
		assert.Equal(t, "bar", again.Values["foo"])
	})

	t.Run("Get Non-Existent", func(t *testing.T) {
		_, err := store.Get(ctx, "non-existent-"+threadID)
		assert.ErrorIs(t, err, domain.ErrCheckpointNotFound)

		_, err = store.GetCheckpoint(ctx, "non-existent-"+threadID)
		assert.ErrorIs(t, err, domain.ErrCheckpointNotFound)
	})

	t.Run("List", func(t *testing.T) {
		id1 := threadID + "-1"
		id2 := threadID + "-2"
		_, _ = store.Put(ctx, id1, domain.NewState())
		_, _ = store.Put(ctx, id2, domain.NewState())

		defer func() {
			_ = store.Delete(ctx, id1)
			_ = store.Delete(ctx, id2)
		}()

		threads, err := store.List(ctx)
		require.NoError(t, err)
		assert.Contains(t, threads, id1)
		assert.Contains(t, threads, id2)
	})

	t.Run("Delete", func(t *testing.T) {
		err := store.Delete(ctx, threadID)
		require.NoError(t, err, "Delete should not return error")

		_, err = store.Get(ctx, threadID)
		assert.ErrorIs(t, err, domain.ErrCheckpointNotFound, "Get after Delete should return ErrCheckpointNotFound")

		cp, err := store.Put(ctx, threadID, domain.NewState())
		require.NoError(t, err)
		assert.Equal(t, int64(1), cp.Version, "a deleted thread starts a fresh lineage")
		_ = store.Delete(ctx, threadID)
	})
}

// RunThreadArchiveContract verifies a ThreadArchive implementation.
func RunThreadArchiveContract(t *testing.T, archive ThreadArchive) {
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	t.Run("Save and Get", func(t *testing.T) {
		rec := domain.ThreadRecord{
			ID:        "archive-1",
			Name:      "first",
			UserID:    "alice",
			Metadata:  `{"chat_history":[{"role":"user","content":"a"}]}`,
			CreatedAt: now,
			UpdatedAt: now,
		}
		require.NoError(t, archive.SaveThread(ctx, rec))

		got, err := archive.GetThread(ctx, "archive-1")
		require.NoError(t, err)
		assert.Equal(t, rec.Name, got.Name)
		assert.Equal(t, rec.UserID, got.UserID)
		assert.JSONEq(t, rec.Metadata, got.Metadata)
	})

	t.Run("Save Overwrites", func(t *testing.T) {
		rec, err := archive.GetThread(ctx, "archive-1")
		require.NoError(t, err)
		rec.Name = "renamed"
		require.NoError(t, archive.SaveThread(ctx, rec))

		got, err := archive.GetThread(ctx, "archive-1")
		require.NoError(t, err)
		assert.Equal(t, "renamed", got.Name)
	})

	t.Run("List By User", func(t *testing.T) {
		require.NoError(t, archive.SaveThread(ctx, domain.ThreadRecord{ID: "archive-2", UserID: "bob", CreatedAt: now, UpdatedAt: now}))

		alice, err := archive.ListThreads(ctx, "alice")
		require.NoError(t, err)
		require.Len(t, alice, 1)
		assert.Equal(t, "archive-1", alice[0].ID)

		all, err := archive.ListThreads(ctx, "")
		require.NoError(t, err)
		assert.Len(t, all, 2)
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, archive.DeleteThread(ctx, "archive-1"))
		_, err := archive.GetThread(ctx, "archive-1")
		assert.ErrorIs(t, err, domain.ErrThreadNotFound)
	})
}
