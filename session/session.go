// Package session exposes the user-facing boundary of the runtime: explicit
// session lifecycle plus synchronous and streaming sends. Each session owns
// its short-term buffer; the registry and long-term store are shared through
// the engine.
package session

import (
	"context"
	"sync"

	"github.com/hupe1980/agentloop/agent"
	"github.com/hupe1980/agentloop/core"
	"github.com/hupe1980/agentloop/internal/util"
	"github.com/hupe1980/agentloop/logging"
	"github.com/hupe1980/agentloop/memory"
	"github.com/hupe1980/agentloop/model"
)

// Summarizer condenses a finished session's window into one text for
// long-term persistence.
type Summarizer func(ctx context.Context, window []core.Message) (string, error)

// ManagerOptions configure a Manager.
type ManagerOptions struct {
	// Logger receives session lifecycle events.
	Logger logging.Logger
	// BufferOptions are applied to every new session's short-term buffer.
	BufferOptions []func(o *memory.ShortTermOptions)
	// LongTerm, together with Summarizer, enables the end-of-session
	// summarization pass.
	LongTerm *memory.LongTermStore
	// Summarizer produces the end-of-session summary text.
	Summarizer Summarizer
}

// Manager tracks live sessions and routes sends to the loop engine. Safe for
// concurrent use; turns within one session are serialized.
type Manager struct {
	engine *agent.Engine
	logger logging.Logger

	bufferOptions []func(o *memory.ShortTermOptions)
	longTerm      *memory.LongTermStore
	summarizer    Summarizer

	mu       sync.RWMutex
	sessions map[string]*state
}

type state struct {
	id     string
	buffer *memory.ShortTermBuffer

	mu     sync.Mutex // serializes turns
	closed bool

	cancelMu sync.Mutex
	cancel   context.CancelFunc
}

func (s *state) setCancel(cancel context.CancelFunc) {
	s.cancelMu.Lock()
	s.cancel = cancel
	s.cancelMu.Unlock()
}

func (s *state) abort() {
	s.cancelMu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.cancelMu.Unlock()
}

// NewManager constructs a Manager around a configured engine.
func NewManager(engine *agent.Engine, optFns ...func(o *ManagerOptions)) *Manager {
	opts := ManagerOptions{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Manager{
		engine:        engine,
		logger:        opts.Logger,
		bufferOptions: opts.BufferOptions,
		longTerm:      opts.LongTerm,
		summarizer:    opts.Summarizer,
		sessions:      make(map[string]*state),
	}
}

// StartSession creates a session seeded with the given system prompt and
// returns its id.
func (m *Manager) StartSession(ctx context.Context, systemPrompt string) (string, error) {
	buffer, err := memory.NewShortTermBuffer(m.bufferOptions...)
	if err != nil {
		return "", err
	}
	if systemPrompt != "" {
		if err := buffer.Append(ctx, core.NewSystemMessage(systemPrompt)); err != nil {
			return "", err
		}
	}

	id := util.NewID()

	m.mu.Lock()
	m.sessions[id] = &state{id: id, buffer: buffer}
	m.mu.Unlock()

	m.logger.Info("session.started", "session_id", id)

	return id, nil
}

// Send runs one full loop turn and returns the final result. Turns on the
// same session never overlap; callers blocked behind an in-flight turn
// observe the updated window once they acquire it.
func (m *Manager) Send(ctx context.Context, id, text string) (*agent.Result, error) {
	return m.send(ctx, id, text, nil)
}

// SendStream is Send with text deltas forwarded to onDelta as the final
// answer is produced.
func (m *Manager) SendStream(ctx context.Context, id, text string, onDelta func(string)) (*agent.Result, error) {
	return m.send(ctx, id, text, onDelta)
}

func (m *Manager) send(ctx context.Context, id, text string, onDelta func(string)) (*agent.Result, error) {
	s, err := m.lookup(id)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, core.ErrSessionClosed
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.setCancel(cancel)
	defer func() {
		cancel()
		s.setCancel(nil)
	}()

	result, err := m.engine.Run(runCtx, s.buffer, text, onDelta)
	if err != nil {
		m.logger.Error("session.turn.failed", "session_id", id, "error", err.Error())
		return nil, err
	}

	m.logger.Info("session.turn.completed", "session_id", id, "steps", result.Steps, "budget_exceeded", result.BudgetExceeded)

	return result, nil
}

// Cancel aborts the session's in-flight turn, if any. The turn's Send call
// returns context.Canceled; the session itself stays usable.
func (m *Manager) Cancel(id string) error {
	s, err := m.lookup(id)
	if err != nil {
		return err
	}
	// The in-flight turn holds the turn lock for its whole duration, so the
	// cancel func is read under its own lock.
	s.abort()
	return nil
}

// EndSession tears the session down. With a summarizer and long-term store
// configured, the conversation is condensed and persisted first. Ending an
// already-ended session returns core.ErrSessionNotFound.
func (m *Manager) EndSession(ctx context.Context, id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if !ok {
		return core.ErrSessionNotFound
	}

	s.mu.Lock()
	s.closed = true
	window := s.buffer.Window()
	s.buffer.Reset()
	s.mu.Unlock()

	if err := m.persistSummary(ctx, id, window); err != nil {
		m.logger.Warn("session.summary.failed", "session_id", id, "error", err.Error())
	}

	m.logger.Info("session.ended", "session_id", id)

	return nil
}

// persistSummary runs the end-of-session summarization pass.
func (m *Manager) persistSummary(ctx context.Context, id string, window []core.Message) error {
	if m.summarizer == nil || m.longTerm == nil {
		return nil
	}

	// A window holding only the system prompt has nothing worth keeping.
	substantive := 0
	for _, msg := range window {
		if msg.Role != core.RoleSystem {
			substantive++
		}
	}
	if substantive == 0 {
		return nil
	}

	summary, err := m.summarizer(ctx, window)
	if err != nil {
		return err
	}
	if summary == "" {
		return nil
	}

	_, err = m.longTerm.Write(ctx, summary, map[string]any{
		"kind":       "session_summary",
		"session_id": id,
	})
	return err
}

// Window returns a copy of the session's current message window.
func (m *Manager) Window(id string) ([]core.Message, error) {
	s, err := m.lookup(id)
	if err != nil {
		return nil, err
	}
	return s.buffer.Window(), nil
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Close ends every live session.
func (m *Manager) Close(ctx context.Context) error {
	m.mu.RLock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	m.mu.RUnlock()

	for _, id := range ids {
		if err := m.EndSession(ctx, id); err != nil && err != core.ErrSessionNotFound {
			return err
		}
	}
	return nil
}

func (m *Manager) lookup(id string) (*state, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, core.ErrSessionNotFound
	}
	return s, nil
}

// ModelSummarizer adapts an augmented model into a Summarizer for the
// end-of-session pass.
func ModelSummarizer(am *model.AugmentedModel) Summarizer {
	return func(ctx context.Context, window []core.Message) (string, error) {
		msgs := make([]core.Message, 0, len(window)+1)
		msgs = append(msgs, core.NewSystemMessage("Summarize the following conversation in a few sentences, keeping facts worth remembering about the user and the task."))
		for _, msg := range window {
			if msg.Role == core.RoleSystem {
				continue
			}
			msgs = append(msgs, msg)
		}

		reply, err := am.Generate(ctx, model.GenerateInput{Messages: msgs, Mode: model.ModeText})
		if err != nil {
			return "", err
		}
		return reply.Text, nil
	}
}
