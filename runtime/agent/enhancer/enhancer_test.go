package enhancer_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/agentruntime/core/runtime/agent/enhancer"
	"github.com/agentruntime/core/runtime/agent/store"
	"github.com/agentruntime/core/runtime/agent/stream"
)

// echoAgent is a minimal user agent: it embeds enhancer.Base for the six
// delegated operations and implements ExecRun itself, the one capability
// Enhance never supplies.
type echoAgent struct {
	enhancer.Base
	initCalled     bool
	teardownCalled bool
}

func (a *echoAgent) ExecRun(ctx context.Context, input []store.InputMessage, cancel <-chan struct{}) (<-chan stream.Chunk, error) {
	ch := make(chan stream.Chunk, 1)
	ch <- stream.Chunk{Type: "assistant", Message: &stream.ChunkMessage{Role: store.RoleAssistant, Content: store.NewInputText("echo")}}
	close(ch)
	return ch, nil
}

func (a *echoAgent) Init(ctx context.Context) error     { a.initCalled = true; return nil }
func (a *echoAgent) Teardown(ctx context.Context) error { a.teardownCalled = true; return nil }

func newEchoAgent(t *testing.T) *echoAgent {
	t.Helper()
	agent := &echoAgent{}
	st := store.NewFileStore(t.TempDir())
	err := enhancer.Enhance(agent, enhancer.WithStore(st))
	require.NoError(t, err)
	return agent
}

func TestEnhanceBindsDelegatedOperations(t *testing.T) {
	agent := newEchoAgent(t)
	require.True(t, agent.initCalled)

	proj, err := agent.CreateThread(context.Background(), nil)
	require.NoError(t, err)
	require.NotEmpty(t, proj.ID)

	run, err := agent.SyncRun(context.Background(), "", []store.InputMessage{{Role: store.RoleUser, Content: store.NewInputText("hi")}}, nil, nil)
	require.NoError(t, err)
	require.Equal(t, store.RunCompleted, run.Status)
}

func TestEnhanceIsIdempotent(t *testing.T) {
	agent := &echoAgent{}
	st := store.NewFileStore(t.TempDir())
	require.NoError(t, enhancer.Enhance(agent, enhancer.WithStore(st)))

	err := enhancer.Enhance(agent, enhancer.WithStore(store.NewFileStore(t.TempDir())))
	require.ErrorIs(t, err, enhancer.ErrAlreadyEnhanced)
}

func TestUnenhancedAgentPanics(t *testing.T) {
	agent := &echoAgent{}
	require.Panics(t, func() {
		_, _ = agent.CreateThread(context.Background(), nil)
	})
}

func TestTeardownAwaitsAndDestroys(t *testing.T) {
	agent := newEchoAgent(t)
	err := enhancer.Teardown(context.Background(), agent)
	require.NoError(t, err)
	require.True(t, agent.teardownCalled)
}
