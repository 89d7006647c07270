package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aretw0/threadgraph/pkg/domain"
	"github.com/aretw0/threadgraph/pkg/ports"
	"github.com/aretw0/threadgraph/pkg/session"
	"github.com/google/uuid"
)

// Sink receives a reply as it is produced.
type Sink interface {
	// StreamToken forwards one fragment. An error stops the turn.
	StreamToken(ctx context.Context, token string) error
	// Send delivers the complete reply once streaming is over.
	Send(ctx context.Context, content string) error
}

// ChatStart describes a new conversation. An empty ThreadID gets a generated one.
type ChatStart struct {
	ThreadID string
	Name     string
	UserID   string
}

const maxNameLength = 60

// ErrArchive marks a turn that was delivered but could not be added to the archive.
var ErrArchive = errors.New("failed to archive turn")

// Service binds chat front-end callbacks to an engine and an optional archive.
type Service struct {
	engine   ports.Engine
	archive  ports.ThreadArchive
	guard    *session.Manager
	logger   *slog.Logger
	maxInput int
	now      func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithArchive records threads and their transcript so they can be resumed
// after the checkpoints are gone.
func WithArchive(archive ports.ThreadArchive) Option {
	return func(s *Service) {
		s.archive = archive
	}
}

// WithGuard sets the per-thread guard held across a turn and its archive write.
// Defaults to a local queueing guard. Give it the engine's policy and locker
// so rejection and cross-process exclusion apply to archived turns too.
func WithGuard(guard *session.Manager) Option {
	return func(s *Service) {
		s.guard = guard
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithMaxInputSize overrides the input size limit.
func WithMaxInputSize(n int) Option {
	return func(s *Service) {
		s.maxInput = n
	}
}

// NewService creates a chat service.
func NewService(engine ports.Engine, opts ...Option) *Service {
	s := &Service{
		engine: engine,
		logger: slog.New(slog.DiscardHandler),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.guard == nil {
		s.guard = session.NewManager(session.WithLogger(s.logger))
	}
	return s
}

// Archive returns the configured archive, if any.
func (s *Service) Archive() ports.ThreadArchive {
	return s.archive
}

// OnChatStart opens a conversation and records it in the archive.
func (s *Service) OnChatStart(ctx context.Context, start ChatStart) (domain.ThreadRecord, error) {
	id := start.ThreadID
	if id == "" {
		id = uuid.NewString()
	}
	now := s.now()
	rec := domain.ThreadRecord{
		ID:        id,
		Name:      start.Name,
		UserID:    start.UserID,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if s.archive == nil {
		return rec, nil
	}

	existing, err := s.archive.GetThread(ctx, id)
	switch {
	case err == nil:
		return existing, nil
	case !errors.Is(err, domain.ErrThreadNotFound):
		return domain.ThreadRecord{}, fmt.Errorf("failed to read thread %q: %w", id, err)
	}

	if err := s.archive.SaveThread(ctx, rec); err != nil {
		return domain.ThreadRecord{}, fmt.Errorf("failed to archive thread %q: %w", id, err)
	}
	s.logger.Info("chat started", "thread_id", id, "user_id", start.UserID)
	return rec, nil
}

// OnMessage runs one turn for a user message, streaming fragments to sink and
// sending the full reply at the end. It returns the reply text.
// Input failing sanitisation is rejected before any state is touched.
func (s *Service) OnMessage(ctx context.Context, threadID, content string, sink Sink) (string, error) {
	limit := s.maxInput
	if limit <= 0 {
		limit = maxInputSize()
	}
	input, err := sanitize(content, limit)
	if err != nil {
		return "", err
	}

	if s.archive != nil {
		// Held across the turn and the archive write so transcript appends
		// land in the same order as the checkpoints.
		release, err := s.guard.Acquire(ctx, guardKey(threadID))
		if err != nil {
			return "", err
		}
		defer release()
	}

	var (
		reply   strings.Builder
		turnErr error
	)
	for frag, err := range s.engine.RunTurn(ctx, threadID, domain.Input(input)) {
		if err != nil {
			turnErr = err
			break
		}
		reply.WriteString(frag.Content())
		if err := sink.StreamToken(ctx, frag.Content()); err != nil {
			// Breaking out of the range cancels the turn.
			turnErr = fmt.Errorf("failed to stream token: %w", err)
			break
		}
	}

	var perr *domain.PersistenceError
	delivered := turnErr == nil || (errors.As(turnErr, &perr) && perr.Delivered)
	if !delivered {
		return reply.String(), turnErr
	}

	if err := sink.Send(ctx, reply.String()); err != nil {
		return reply.String(), errors.Join(turnErr, fmt.Errorf("failed to send reply: %w", err))
	}

	if s.archive != nil {
		if err := s.record(ctx, threadID, input, reply.String()); err != nil {
			s.logger.Warn("failed to archive turn", "thread_id", threadID, "err", err)
			turnErr = errors.Join(turnErr, fmt.Errorf("%w: %w", ErrArchive, err))
		}
	}
	return reply.String(), turnErr
}

// record appends one exchange to the archived chat history of threadID,
// creating the archive record if needed. Callers hold the thread's guard.
func (s *Service) record(ctx context.Context, threadID, input, reply string) error {
	rec, err := s.archive.GetThread(ctx, threadID)
	switch {
	case errors.Is(err, domain.ErrThreadNotFound):
		rec = domain.ThreadRecord{ID: threadID, CreatedAt: s.now()}
	case err != nil:
		return fmt.Errorf("failed to read thread %q: %w", threadID, err)
	}

	if rec.Name == "" {
		rec.Name = threadName(input)
	}
	rec.Metadata, err = appendHistory(rec.Metadata,
		domain.HistoryEntry{Role: string(domain.RoleUser), Content: input},
		domain.HistoryEntry{Role: string(domain.RoleAssistant), Content: reply},
	)
	if err != nil {
		return err
	}
	rec.UpdatedAt = s.now()
	return s.archive.SaveThread(ctx, rec)
}

// OnChatResume re-seeds a thread from its archived transcript when its
// checkpoints no longer hold any messages. It reports whether seeding happened.
func (s *Service) OnChatResume(ctx context.Context, rec domain.ThreadRecord) (bool, error) {
	meta, err := DecodeMetadata(rec.Metadata)
	if err != nil {
		return false, err
	}
	return s.Resume(ctx, rec.ID, meta.ChatHistory)
}

// Resume seeds threadID with history if the thread is empty.
func (s *Service) Resume(ctx context.Context, threadID string, history []domain.HistoryEntry) (bool, error) {
	if threadID == "" {
		return false, errors.New("thread id is required")
	}
	seeded, err := s.engine.SeedIfEmpty(ctx, threadID, history)
	if err != nil {
		return false, err
	}
	s.logger.Info("chat resumed", "thread_id", threadID, "seeded", seeded, "history", len(history))
	return seeded, nil
}

// ResumeByID loads the record from the archive and resumes it.
func (s *Service) ResumeByID(ctx context.Context, threadID string) (bool, error) {
	if s.archive == nil {
		return false, errors.New("no thread archive configured")
	}
	rec, err := s.archive.GetThread(ctx, threadID)
	if err != nil {
		return false, err
	}
	return s.OnChatResume(ctx, rec)
}

// guardKey keeps the service's locks apart from the engine's turn locks
// when both share a distributed locker.
func guardKey(threadID string) string {
	return "chat:" + threadID
}

func threadName(input string) string {
	name := strings.Join(strings.Fields(input), " ")
	if r := []rune(name); len(r) > maxNameLength {
		name = string(r[:maxNameLength]) + "…"
	}
	return name
}
