package cli

import (
	"bytes"
	"context"
	"encoding/base64"
	"path/filepath"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/aretw0/threadgraph/internal/config"
	"github.com/aretw0/threadgraph/internal/logging"
	"github.com/aretw0/threadgraph/pkg/adapters/loam"
	"github.com/aretw0/threadgraph/pkg/adapters/sqlite"
	"github.com/aretw0/threadgraph/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func build(t *testing.T, cfg config.Config) *Runtime {
	t.Helper()
	require.NoError(t, cfg.Validate())
	rt, err := Build(cfg, logging.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = rt.Close() })
	return rt
}

func TestBuild_Defaults(t *testing.T) {
	rt := build(t, config.Default())

	reply, err := rt.Engine.Invoke(context.Background(), "t1", domain.Input("hi"))
	require.NoError(t, err)
	assert.Equal(t, "hi", reply)
	assert.Equal(t, []string{"agent"}, rt.Engine.Graph().Nodes())
	assert.Equal(t, 25, rt.Engine.Graph().MaxSteps())
}

func TestBuild_SQLiteSharesArchive(t *testing.T) {
	cfg := config.Default()
	cfg.Store.Driver = "sqlite"
	cfg.Store.Path = filepath.Join(t.TempDir(), "data", "tg.db")
	cfg.Archive.Driver = "sqlite"
	rt := build(t, cfg)

	store, ok := rt.Engine.Store().(*sqlite.Store)
	require.True(t, ok)
	assert.Same(t, store, rt.Archive)
}

func TestBuild_RedisWithLockAndEncryption(t *testing.T) {
	mr := miniredis.RunT(t)

	cfg := config.Default()
	cfg.Store.Driver = "redis"
	cfg.Store.RedisAddr = mr.Addr()
	cfg.Engine.DistributedLock = true
	cfg.Security.EncryptionKey = base64.StdEncoding.EncodeToString(bytes.Repeat([]byte{1}, 32))
	cfg.Security.RedactFields = []string{"(?i)email"}
	rt := build(t, cfg)
	ctx := context.Background()

	_, err := rt.Engine.UpdateState(ctx, "t1", domain.Update{Values: map[string]any{"email": "a@b.c"}})
	require.NoError(t, err)
	_, err = rt.Engine.Invoke(ctx, "t1", domain.Input("secret words"))
	require.NoError(t, err)

	state, err := rt.Engine.GetState(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, "***", state.Values["email"])
	assert.Equal(t, "secret words", state.Messages[0].Content)

	raw, err := mr.Get("threadgraph:thread:t1:latest")
	require.NoError(t, err)
	assert.NotContains(t, raw, "secret words")
	assert.NotContains(t, raw, "a@b.c")
}

func TestBuild_InvalidModel(t *testing.T) {
	cfg := config.Default()
	cfg.Model.Provider = "openai"
	_, err := Build(cfg, logging.NewNop())
	assert.Error(t, err)
}

func TestRunChat_ArchivesAndResumes(t *testing.T) {
	cfg := config.Default()
	cfg.Store.Driver = "sqlite"
	cfg.Store.Path = filepath.Join(t.TempDir(), "tg.db")
	cfg.Archive.Driver = "sqlite"
	rt := build(t, cfg)
	ctx := context.Background()

	var out bytes.Buffer
	err := RunChat(ctx, rt, ChatOptions{
		ThreadID: "cli",
		Input:    strings.NewReader("hello\nexit\n"),
		Output:   &out,
	})
	require.NoError(t, err)
	assert.Contains(t, out.String(), ">>> Thread 'cli' active.")
	assert.Contains(t, out.String(), "hello\n")

	// Lose the checkpoints, keep the archive.
	require.NoError(t, rt.Engine.Delete(ctx, "cli"))

	out.Reset()
	err = RunChat(ctx, rt, ChatOptions{
		ThreadID: "cli",
		Input:    strings.NewReader(""),
		Output:   &out,
	})
	require.NoError(t, err)
	assert.Contains(t, out.String(), "restored from archive")

	state, err := rt.Engine.GetState(ctx, "cli")
	require.NoError(t, err)
	assert.Len(t, state.Messages, 2)
}

func TestRunChat_LoamArchiveResumes(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "threads")
	cfg := config.Default()
	cfg.Archive.Driver = "loam"
	cfg.Archive.Path = dir
	rt := build(t, cfg)
	ctx := context.Background()

	_, ok := rt.Archive.(*loam.Archive)
	require.True(t, ok)

	err := RunChat(ctx, rt, ChatOptions{
		ThreadID: "notes",
		Input:    strings.NewReader("hello\nexit\n"),
		Output:   &bytes.Buffer{},
	})
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(dir, "notes.md"))

	// A fresh runtime has empty memory checkpoints but the same archive.
	fresh := build(t, cfg)
	var out bytes.Buffer
	err = RunChat(ctx, fresh, ChatOptions{
		ThreadID: "notes",
		Input:    strings.NewReader(""),
		Output:   &out,
	})
	require.NoError(t, err)
	assert.Contains(t, out.String(), "restored from archive")

	state, err := fresh.Engine.GetState(ctx, "notes")
	require.NoError(t, err)
	assert.Len(t, state.Messages, 2)
}

func TestSeedThread_FromDocument(t *testing.T) {
	rt := build(t, config.Default())
	ctx := context.Background()

	seeded, err := SeedThread(ctx, rt, "s1", []byte(`{"chat_history":[{"role":"user","content":"hi"},{"role":"assistant","content":"hey"}]}`))
	require.NoError(t, err)
	assert.True(t, seeded)

	_, err = SeedThread(ctx, rt, "unknown", nil)
	assert.ErrorContains(t, err, "not archived")
}
