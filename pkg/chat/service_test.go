package chat_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aretw0/threadgraph"
	"github.com/aretw0/threadgraph/pkg/adapters/echo"
	"github.com/aretw0/threadgraph/pkg/adapters/memory"
	"github.com/aretw0/threadgraph/pkg/chat"
	"github.com/aretw0/threadgraph/pkg/domain"
	"github.com/aretw0/threadgraph/pkg/dsl"
	"github.com/aretw0/threadgraph/pkg/nodes"
	"github.com/aretw0/threadgraph/pkg/ports"
	"github.com/aretw0/threadgraph/pkg/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newEngine(t *testing.T, store ports.CheckpointStore) *threadgraph.Engine {
	t.Helper()
	b := dsl.New()
	b.Add("agent").Do(nodes.Chat(echo.New(echo.WithPrefix("re: ")))).Terminal()
	g, err := b.Build()
	require.NoError(t, err)
	eng, err := threadgraph.New(g, store)
	require.NoError(t, err)
	return eng
}

func TestService_OnChatStart(t *testing.T) {
	archive := memory.NewArchive()
	svc := chat.NewService(newEngine(t, memory.NewStore()), chat.WithArchive(archive))
	ctx := context.Background()

	rec, err := svc.OnChatStart(ctx, chat.ChatStart{UserID: "alice"})
	require.NoError(t, err)
	assert.NotEmpty(t, rec.ID)
	assert.Equal(t, "alice", rec.UserID)

	stored, err := archive.GetThread(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, rec.ID, stored.ID)

	again, err := svc.OnChatStart(ctx, chat.ChatStart{ThreadID: rec.ID, UserID: "bob"})
	require.NoError(t, err)
	assert.Equal(t, "alice", again.UserID, "existing thread must be returned unchanged")
}

func TestService_OnMessageStreamsAndArchives(t *testing.T) {
	archive := memory.NewArchive()
	svc := chat.NewService(newEngine(t, memory.NewStore()), chat.WithArchive(archive))
	ctx := context.Background()

	rec, err := svc.OnChatStart(ctx, chat.ChatStart{ThreadID: "t1", UserID: "alice"})
	require.NoError(t, err)

	sink := &chat.BufferSink{}
	reply, err := svc.OnMessage(ctx, rec.ID, "hello   there", sink)
	require.NoError(t, err)
	assert.Equal(t, "re: hello   there", reply)
	assert.Equal(t, []string{"re: ", "hello ", " ", " ", "there"}, sink.Tokens)
	assert.Equal(t, reply, sink.Final)

	_, err = svc.OnMessage(ctx, rec.ID, "again", &chat.BufferSink{})
	require.NoError(t, err)

	stored, err := archive.GetThread(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, "hello there", stored.Name)

	meta, err := chat.DecodeMetadata(stored.Metadata)
	require.NoError(t, err)
	assert.Equal(t, []domain.HistoryEntry{
		{Role: "user", Content: "hello   there"},
		{Role: "assistant", Content: "re: hello   there"},
		{Role: "user", Content: "again"},
		{Role: "assistant", Content: "re: again"},
	}, meta.ChatHistory)
}

// gatedArchive pauses every SaveThread until the test lets it through.
type gatedArchive struct {
	ports.ThreadArchive
	entered chan struct{}
	release chan struct{}
}

func (a *gatedArchive) SaveThread(ctx context.Context, rec domain.ThreadRecord) error {
	a.entered <- struct{}{}
	<-a.release
	return a.ThreadArchive.SaveThread(ctx, rec)
}

// slowArchive widens the window between reading and writing a record.
type slowArchive struct {
	ports.ThreadArchive
	delay time.Duration
}

func (a slowArchive) SaveThread(ctx context.Context, rec domain.ThreadRecord) error {
	time.Sleep(a.delay)
	return a.ThreadArchive.SaveThread(ctx, rec)
}

func TestService_ConcurrentMessagesKeepFullHistory(t *testing.T) {
	archive := slowArchive{ThreadArchive: memory.NewArchive(), delay: 30 * time.Millisecond}
	eng := newEngine(t, memory.NewStore())
	svc := chat.NewService(eng, chat.WithArchive(archive))
	ctx := context.Background()

	var wg sync.WaitGroup
	for _, text := range []string{"one", "two", "three"} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.OnMessage(ctx, "t1", text, &chat.BufferSink{})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	stored, err := archive.GetThread(ctx, "t1")
	require.NoError(t, err)
	meta, err := chat.DecodeMetadata(stored.Metadata)
	require.NoError(t, err)

	state, err := eng.GetState(ctx, "t1")
	require.NoError(t, err)
	require.Len(t, state.Messages, 6)
	assert.Equal(t, domain.HistoryFromMessages(state.Messages), meta.ChatHistory,
		"the archived transcript must match the checkpointed one, in order")
}

func TestService_RejectPolicyCoversArchiveWrite(t *testing.T) {
	archive := &gatedArchive{
		ThreadArchive: memory.NewArchive(),
		entered:       make(chan struct{}),
		release:       make(chan struct{}),
	}
	guard := session.NewManager(session.WithPolicy(session.PolicyReject))
	svc := chat.NewService(newEngine(t, memory.NewStore()), chat.WithArchive(archive), chat.WithGuard(guard))
	ctx := context.Background()

	done := make(chan error, 1)
	go func() {
		_, err := svc.OnMessage(ctx, "t1", "first", &chat.BufferSink{})
		done <- err
	}()
	<-archive.entered

	// The first turn is checkpointed but still archiving.
	_, err := svc.OnMessage(ctx, "t1", "second", &chat.BufferSink{})
	var cte *domain.ConcurrentTurnError
	assert.ErrorAs(t, err, &cte)

	close(archive.release)
	require.NoError(t, <-done)

	// Other threads are not affected.
	go func() { <-archive.entered }()
	_, err = svc.OnMessage(ctx, "t2", "hello", &chat.BufferSink{})
	assert.NoError(t, err)
}

func TestService_ArchiveFailureIsReportedAfterDelivery(t *testing.T) {
	svc := chat.NewService(newEngine(t, memory.NewStore()), chat.WithArchive(brokenArchive{memory.NewArchive()}))

	sink := &chat.BufferSink{}
	reply, err := svc.OnMessage(context.Background(), "t1", "hello", sink)
	assert.ErrorIs(t, err, chat.ErrArchive)
	assert.Equal(t, "re: hello", reply)
	assert.Equal(t, reply, sink.Final)
}

type brokenArchive struct{ ports.ThreadArchive }

func (brokenArchive) SaveThread(context.Context, domain.ThreadRecord) error {
	return errors.New("disk full")
}

func TestService_OnMessageRejectsBadInput(t *testing.T) {
	store := memory.NewStore()
	svc := chat.NewService(newEngine(t, store), chat.WithMaxInputSize(5))

	_, err := svc.OnMessage(context.Background(), "t1", "too long", &chat.BufferSink{})
	assert.ErrorIs(t, err, chat.ErrInputTooLarge)

	_, err = svc.OnMessage(context.Background(), "t1", "  ", &chat.BufferSink{})
	assert.ErrorIs(t, err, chat.ErrEmptyInput)

	_, err = store.Get(context.Background(), "t1")
	assert.ErrorIs(t, err, domain.ErrCheckpointNotFound)
}

type failingSink struct{ chat.BufferSink }

func (s *failingSink) StreamToken(ctx context.Context, token string) error {
	return errors.New("client gone")
}

func TestService_SinkFailureCancelsTurn(t *testing.T) {
	store := memory.NewStore()
	svc := chat.NewService(newEngine(t, store))

	sink := &failingSink{}
	_, err := svc.OnMessage(context.Background(), "t1", "hello", sink)
	assert.ErrorContains(t, err, "client gone")
	assert.Empty(t, sink.Final)

	_, err = store.Get(context.Background(), "t1")
	assert.ErrorIs(t, err, domain.ErrCheckpointNotFound, "an abandoned turn is not persisted")
}

func TestService_ResumeAfterCheckpointsLost(t *testing.T) {
	archive := memory.NewArchive()
	ctx := context.Background()

	// First process: chat and archive.
	first := chat.NewService(newEngine(t, memory.NewStore()), chat.WithArchive(archive))
	_, err := first.OnMessage(ctx, "t1", "remember me", &chat.BufferSink{})
	require.NoError(t, err)

	// Second process: fresh checkpoint store, same archive.
	store := memory.NewStore()
	eng := newEngine(t, store)
	second := chat.NewService(eng, chat.WithArchive(archive))

	seeded, err := second.ResumeByID(ctx, "t1")
	require.NoError(t, err)
	assert.True(t, seeded)

	seeded, err = second.ResumeByID(ctx, "t1")
	require.NoError(t, err)
	assert.False(t, seeded, "second resume is a no-op")

	state, err := eng.GetState(ctx, "t1")
	require.NoError(t, err)
	require.Len(t, state.Messages, 2)
	assert.Equal(t, "remember me", state.Messages[0].Content)
	assert.Equal(t, domain.RoleAssistant, state.Messages[1].Role)

	cp, err := eng.GetCheckpoint(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), cp.Version)
}

func TestService_OnChatResumeWithoutHistory(t *testing.T) {
	store := memory.NewStore()
	svc := chat.NewService(newEngine(t, store))

	seeded, err := svc.OnChatResume(context.Background(), domain.ThreadRecord{ID: "t1"})
	require.NoError(t, err)
	assert.False(t, seeded)

	_, err = store.Get(context.Background(), "t1")
	assert.ErrorIs(t, err, domain.ErrCheckpointNotFound)
}

func TestService_ResumeByIDWithoutArchive(t *testing.T) {
	svc := chat.NewService(newEngine(t, memory.NewStore()))
	_, err := svc.ResumeByID(context.Background(), "t1")
	assert.Error(t, err)
}
