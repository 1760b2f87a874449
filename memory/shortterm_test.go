package memory

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentloop/core"
)

func TestShortTermBuffer_Unbounded(t *testing.T) {
	buf, err := NewShortTermBuffer()
	require.NoError(t, err)

	for i := 0; i < 50; i++ {
		require.NoError(t, buf.Append(context.Background(), core.NewUserMessage(fmt.Sprintf("msg %d", i))))
	}
	assert.Equal(t, 50, buf.Len())
}

func TestShortTermBuffer_DropPreservesSystemAndRecent(t *testing.T) {
	buf, err := NewShortTermBuffer(func(o *ShortTermOptions) {
		o.MaxMessages = 5
		o.PreserveRecent = 2
	})
	require.NoError(t, err)

	require.NoError(t, buf.Append(context.Background(), core.NewSystemMessage("system prompt")))
	for i := 0; i < 8; i++ {
		require.NoError(t, buf.Append(context.Background(), core.NewUserMessage(fmt.Sprintf("msg %d", i))))
	}

	window := buf.Window()
	require.Len(t, window, 5)
	assert.Equal(t, core.RoleSystem, window[0].Role)
	assert.Equal(t, "system prompt", window[0].Content)
	// The two most recent survive verbatim at the tail.
	assert.Equal(t, "msg 6", window[3].Content)
	assert.Equal(t, "msg 7", window[4].Content)
}

func TestShortTermBuffer_SummarizePolicy(t *testing.T) {
	var sawEvicted int
	buf, err := NewShortTermBuffer(func(o *ShortTermOptions) {
		o.MaxMessages = 4
		o.PreserveRecent = 2
		o.Policy = EvictSummarize
		o.Summarizer = func(_ context.Context, evicted []core.Message) (string, error) {
			sawEvicted = len(evicted)
			return "they talked about numbers", nil
		}
	})
	require.NoError(t, err)

	require.NoError(t, buf.Append(context.Background(), core.NewSystemMessage("system")))
	for i := 0; i < 4; i++ {
		require.NoError(t, buf.Append(context.Background(), core.NewUserMessage(fmt.Sprintf("msg %d", i))))
	}

	window := buf.Window()
	require.Len(t, window, 4)
	assert.Equal(t, "system", window[0].Content)
	assert.Contains(t, window[1].Content, "they talked about numbers")
	assert.Equal(t, "msg 2", window[2].Content)
	assert.Equal(t, "msg 3", window[3].Content)
	assert.Equal(t, 2, sawEvicted)
}

func TestShortTermBuffer_SummarizeRequiresSummarizer(t *testing.T) {
	_, err := NewShortTermBuffer(func(o *ShortTermOptions) {
		o.Policy = EvictSummarize
	})
	assert.Error(t, err)
}

func TestShortTermBuffer_SummarizerFailureSurfaces(t *testing.T) {
	buf, err := NewShortTermBuffer(func(o *ShortTermOptions) {
		o.MaxMessages = 2
		o.PreserveRecent = 1
		o.Policy = EvictSummarize
		o.Summarizer = func(_ context.Context, _ []core.Message) (string, error) {
			return "", fmt.Errorf("summarizer model down")
		}
	})
	require.NoError(t, err)

	require.NoError(t, buf.Append(context.Background(), core.NewUserMessage("one")))
	require.NoError(t, buf.Append(context.Background(), core.NewUserMessage("two")))
	err = buf.Append(context.Background(), core.NewUserMessage("three"))
	assert.ErrorContains(t, err, "summarizer model down")
}

func TestShortTermBuffer_WindowIsACopy(t *testing.T) {
	buf, err := NewShortTermBuffer()
	require.NoError(t, err)
	require.NoError(t, buf.Append(context.Background(), core.NewUserMessage("original")))

	window := buf.Window()
	window[0].Content = "mutated"

	assert.Equal(t, "original", buf.Window()[0].Content)
}

func TestShortTermBuffer_Reset(t *testing.T) {
	buf, err := NewShortTermBuffer()
	require.NoError(t, err)
	require.NoError(t, buf.Append(context.Background(), core.NewUserMessage("one")))

	buf.Reset()
	assert.Equal(t, 0, buf.Len())
	assert.Equal(t, 0, buf.TokenCount())
}
