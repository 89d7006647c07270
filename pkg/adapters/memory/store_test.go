package memory_test

import (
	"context"
	"testing"

	"github.com/aretw0/threadgraph/pkg/adapters/memory"
	"github.com/aretw0/threadgraph/pkg/domain"
	"github.com/aretw0/threadgraph/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_Contract(t *testing.T) {
	ports.RunCheckpointStoreContract(t, memory.NewStore())
}

func TestMemoryArchive_Contract(t *testing.T) {
	ports.RunThreadArchiveContract(t, memory.NewArchive())
}

func TestMemoryStore_Lineage(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()

	for _, content := range []string{"a", "b", "c"} {
		st, err := store.Get(ctx, "t1")
		if err != nil {
			st = domain.NewState()
		}
		st.Messages = append(st.Messages, domain.UserMessage(content))
		_, err = store.Put(ctx, "t1", st)
		require.NoError(t, err)
	}

	lineage, err := store.ListCheckpoints(ctx, "t1")
	require.NoError(t, err)
	require.Len(t, lineage, 3)
	for i, cp := range lineage {
		assert.Equal(t, int64(i+1), cp.Version)
		assert.Len(t, cp.State.Messages, i+1)
	}

	_, err = store.ListCheckpoints(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrCheckpointNotFound)
}

func TestMemoryStore_NestedValuesAreCopied(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()

	st := domain.NewState()
	st.Values["profile"] = map[string]any{"name": "ada"}
	_, err := store.Put(ctx, "t1", st)
	require.NoError(t, err)

	st.Values["profile"].(map[string]any)["name"] = "changed"

	loaded, err := store.Get(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, "ada", loaded.Values["profile"].(map[string]any)["name"])
}
