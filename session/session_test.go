package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentloop/agent"
	"github.com/hupe1980/agentloop/core"
	"github.com/hupe1980/agentloop/memory"
	"github.com/hupe1980/agentloop/model"
	"github.com/hupe1980/agentloop/registry"
)

func newTestManager(t *testing.T, m model.Model, optFns ...func(o *ManagerOptions)) *Manager {
	t.Helper()

	reg := registry.New()
	t.Cleanup(func() { reg.Close() })

	am := model.NewAugmentedModel(m, func(o *model.AugmentedOptions) {
		o.RetryBackoff = time.Millisecond
	})
	engine := agent.New(am, reg, nil)

	return NewManager(engine, optFns...)
}

func TestManager_SessionLifecycle(t *testing.T) {
	scripted := model.NewScriptedModel("test").AddText("hi there")
	manager := newTestManager(t, scripted)

	id, err := manager.StartSession(context.Background(), "You are terse.")
	require.NoError(t, err)
	require.NotEmpty(t, id)
	assert.Equal(t, 1, manager.Len())

	result, err := manager.Send(context.Background(), id, "hello")
	require.NoError(t, err)
	assert.Equal(t, "hi there", result.Reply.Text)

	window, err := manager.Window(id)
	require.NoError(t, err)
	require.Len(t, window, 3)
	assert.Equal(t, core.RoleSystem, window[0].Role)
	assert.Equal(t, "You are terse.", window[0].Content)

	require.NoError(t, manager.EndSession(context.Background(), id))
	assert.Equal(t, 0, manager.Len())

	_, err = manager.Send(context.Background(), id, "still there?")
	assert.ErrorIs(t, err, core.ErrSessionNotFound)

	assert.ErrorIs(t, manager.EndSession(context.Background(), id), core.ErrSessionNotFound)
}

func TestManager_UnknownSession(t *testing.T) {
	manager := newTestManager(t, model.NewScriptedModel("test"))

	_, err := manager.Send(context.Background(), "missing", "hello")
	assert.ErrorIs(t, err, core.ErrSessionNotFound)

	assert.ErrorIs(t, manager.Cancel("missing"), core.ErrSessionNotFound)
}

func TestManager_HistoryCarriesAcrossTurns(t *testing.T) {
	scripted := model.NewScriptedModel("test").AddText("first").AddText("second")
	manager := newTestManager(t, scripted)

	id, err := manager.StartSession(context.Background(), "system")
	require.NoError(t, err)

	_, err = manager.Send(context.Background(), id, "turn one")
	require.NoError(t, err)
	_, err = manager.Send(context.Background(), id, "turn two")
	require.NoError(t, err)

	window, err := manager.Window(id)
	require.NoError(t, err)
	// system + 2x (user, assistant)
	assert.Len(t, window, 5)
}

type fixedEmbedder struct{}

func (fixedEmbedder) Embed(_ context.Context, _ string) ([]float32, error) {
	return []float32{1, 0}, nil
}

func TestManager_EndOfSessionSummary(t *testing.T) {
	store := memory.NewInMemoryVectorStore()
	longTerm := memory.NewLongTermStore(fixedEmbedder{}, store)

	scripted := model.NewScriptedModel("test").AddText("noted")
	manager := newTestManager(t, scripted, func(o *ManagerOptions) {
		o.LongTerm = longTerm
		o.Summarizer = func(_ context.Context, window []core.Message) (string, error) {
			return "User discussed their plans.", nil
		}
	})

	id, err := manager.StartSession(context.Background(), "system")
	require.NoError(t, err)
	_, err = manager.Send(context.Background(), id, "I plan to learn Go.")
	require.NoError(t, err)

	require.NoError(t, manager.EndSession(context.Background(), id))
	assert.Equal(t, 1, store.Len())

	records, err := longTerm.Retrieve(context.Background(), "plans", 1)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "User discussed their plans.", records[0].Content)
	assert.Equal(t, "session_summary", records[0].Metadata["kind"])
}

func TestManager_EmptySessionSkipsSummary(t *testing.T) {
	store := memory.NewInMemoryVectorStore()
	longTerm := memory.NewLongTermStore(fixedEmbedder{}, store)

	manager := newTestManager(t, model.NewScriptedModel("test"), func(o *ManagerOptions) {
		o.LongTerm = longTerm
		o.Summarizer = func(_ context.Context, _ []core.Message) (string, error) {
			return "should not be called", nil
		}
	})

	id, err := manager.StartSession(context.Background(), "system only")
	require.NoError(t, err)
	require.NoError(t, manager.EndSession(context.Background(), id))
	assert.Equal(t, 0, store.Len())
}

// blockingModel parks until its context is cancelled.
type blockingModel struct {
	started chan struct{}
}

func (m *blockingModel) Generate(ctx context.Context, _ model.Request) (<-chan model.Response, <-chan error) {
	respCh := make(chan model.Response)
	errCh := make(chan error, 1)
	go func() {
		defer close(respCh)
		defer close(errCh)
		close(m.started)
		<-ctx.Done()
		errCh <- ctx.Err()
	}()
	return respCh, errCh
}

func (m *blockingModel) Info() model.Info {
	return model.Info{Name: "blocking", Provider: "test"}
}

func TestManager_CancelAbortsInFlightTurn(t *testing.T) {
	blocking := &blockingModel{started: make(chan struct{})}
	manager := newTestManager(t, blocking)

	id, err := manager.StartSession(context.Background(), "system")
	require.NoError(t, err)

	errCh := make(chan error, 1)
	go func() {
		_, sendErr := manager.Send(context.Background(), id, "hang")
		errCh <- sendErr
	}()

	<-blocking.started
	require.NoError(t, manager.Cancel(id))

	select {
	case sendErr := <-errCh:
		assert.ErrorIs(t, sendErr, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("send did not return after cancel")
	}

	// The session survives cancellation.
	assert.Equal(t, 1, manager.Len())
}

func TestManager_Close(t *testing.T) {
	manager := newTestManager(t, model.NewScriptedModel("test"))

	for i := 0; i < 3; i++ {
		_, err := manager.StartSession(context.Background(), "system")
		require.NoError(t, err)
	}
	require.Equal(t, 3, manager.Len())

	require.NoError(t, manager.Close(context.Background()))
	assert.Equal(t, 0, manager.Len())
}
