package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/pkoukk/tiktoken-go"

	"github.com/hupe1980/agentloop/core"
	"github.com/hupe1980/agentloop/logging"
)

// EvictionPolicy selects what happens to overflowing messages.
type EvictionPolicy string

const (
	// EvictDrop removes the oldest non-system messages.
	EvictDrop EvictionPolicy = "drop"
	// EvictSummarize replaces the oldest non-system messages with a single
	// synthesized summary message produced via a model call.
	EvictSummarize EvictionPolicy = "summarize"
)

// Summarizer condenses a span of evicted messages into one summary text.
// Typically backed by a model call.
type Summarizer func(ctx context.Context, evicted []core.Message) (string, error)

// ShortTermOptions configure a ShortTermBuffer.
type ShortTermOptions struct {
	// MaxMessages bounds the buffer by message count. 0 disables the bound.
	MaxMessages int
	// MaxTokens bounds the buffer by estimated token volume. 0 disables the
	// bound. Requires a tiktoken encoding for the configured model.
	MaxTokens int
	// TokenizerModel names the model whose encoding estimates token counts.
	TokenizerModel string
	// PreserveRecent is the number of most recent messages kept verbatim
	// during eviction, in addition to the system message.
	PreserveRecent int
	// Policy selects drop vs summarize behavior.
	Policy EvictionPolicy
	// Summarizer is required for EvictSummarize.
	Summarizer Summarizer
	// Logger receives eviction events.
	Logger logging.Logger
}

// ShortTermBuffer is the live, bounded conversational context for one
// session. Appends are checked against the configured bounds; eviction never
// touches the system message or the PreserveRecent most recent messages.
// Safe for concurrent use.
type ShortTermBuffer struct {
	mu          sync.Mutex
	messages    []core.Message
	tokens      []int
	totalTokens int

	maxMessages    int
	maxTokens      int
	preserveRecent int
	policy         EvictionPolicy
	summarizer     Summarizer
	encoding       *tiktoken.Tiktoken
	logger         logging.Logger
}

// NewShortTermBuffer constructs a buffer with optional overrides. The token
// encoding is only initialized when a token bound is configured; it falls
// back to the gpt-4o encoding for unknown models.
func NewShortTermBuffer(optFns ...func(o *ShortTermOptions)) (*ShortTermBuffer, error) {
	opts := ShortTermOptions{
		MaxMessages:    0,
		MaxTokens:      0,
		TokenizerModel: "gpt-4o",
		PreserveRecent: 4,
		Policy:         EvictDrop,
		Logger:         logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Policy == EvictSummarize && opts.Summarizer == nil {
		return nil, fmt.Errorf("summarize policy requires a summarizer")
	}

	var encoding *tiktoken.Tiktoken
	if opts.MaxTokens > 0 {
		enc, err := tiktoken.EncodingForModel(opts.TokenizerModel)
		if err != nil {
			enc, err = tiktoken.EncodingForModel("gpt-4o")
			if err != nil {
				return nil, fmt.Errorf("failed to get token encoding: %w", err)
			}
		}
		encoding = enc
	}

	return &ShortTermBuffer{
		maxMessages:    opts.MaxMessages,
		maxTokens:      opts.MaxTokens,
		preserveRecent: opts.PreserveRecent,
		policy:         opts.Policy,
		summarizer:     opts.Summarizer,
		encoding:       encoding,
		logger:         opts.Logger,
	}, nil
}

// Append adds a message and enforces the configured bounds. The summarize
// policy performs a model call, so a context is required.
func (b *ShortTermBuffer) Append(ctx context.Context, msg core.Message) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.appendLocked(msg)
	return b.enforceLocked(ctx)
}

func (b *ShortTermBuffer) appendLocked(msg core.Message) {
	tokens := b.countTokens(msg)
	b.messages = append(b.messages, msg)
	b.tokens = append(b.tokens, tokens)
	b.totalTokens += tokens
}

// countTokens estimates the token volume of one message.
func (b *ShortTermBuffer) countTokens(msg core.Message) int {
	if b.encoding == nil {
		return 0
	}
	n := len(b.encoding.Encode(msg.Content, nil, nil))
	for _, tc := range msg.ToolCalls {
		n += len(b.encoding.Encode(tc.Name+string(tc.Arguments), nil, nil))
	}
	return n
}

// enforceLocked evicts or summarizes until the buffer is within bounds.
// The system message (index 0 by convention) and the PreserveRecent most
// recent messages are always kept verbatim.
func (b *ShortTermBuffer) enforceLocked(ctx context.Context) error {
	if !b.overBoundLocked() {
		return nil
	}

	// Identify the evictable span: everything after the leading system
	// message and before the preserved tail.
	start := 0
	if len(b.messages) > 0 && b.messages[0].Role == core.RoleSystem {
		start = 1
	}
	end := len(b.messages) - b.preserveRecent
	if end <= start {
		return nil // nothing evictable; bound cannot be honored further
	}

	if b.policy == EvictSummarize {
		return b.summarizeLocked(ctx, start, end)
	}

	for b.overBoundLocked() && end > start {
		b.logger.Debug("memory.shortterm.evict", "role", string(b.messages[start].Role), "tokens", b.tokens[start])
		b.removeLocked(start)
		end--
	}
	return nil
}

// summarizeLocked replaces the whole evictable span with one summary message.
func (b *ShortTermBuffer) summarizeLocked(ctx context.Context, start, end int) error {
	evicted := make([]core.Message, end-start)
	copy(evicted, b.messages[start:end])

	summary, err := b.summarizer(ctx, evicted)
	if err != nil {
		return fmt.Errorf("summarize evicted messages: %w", err)
	}

	summaryMsg := core.NewSystemMessage("Summary of earlier conversation: " + summary)
	summaryTokens := b.countTokens(summaryMsg)

	for i := start; i < end; i++ {
		b.totalTokens -= b.tokens[i]
	}
	tail := len(b.messages) - end

	newMessages := make([]core.Message, 0, start+1+tail)
	newTokens := make([]int, 0, start+1+tail)
	newMessages = append(newMessages, b.messages[:start]...)
	newTokens = append(newTokens, b.tokens[:start]...)
	newMessages = append(newMessages, summaryMsg)
	newTokens = append(newTokens, summaryTokens)
	newMessages = append(newMessages, b.messages[end:]...)
	newTokens = append(newTokens, b.tokens[end:]...)

	b.messages = newMessages
	b.tokens = newTokens
	b.totalTokens += summaryTokens

	b.logger.Debug("memory.shortterm.summarized", "evicted", end-start, "total_tokens", b.totalTokens)

	return nil
}

func (b *ShortTermBuffer) removeLocked(i int) {
	b.totalTokens -= b.tokens[i]
	b.messages = append(b.messages[:i], b.messages[i+1:]...)
	b.tokens = append(b.tokens[:i], b.tokens[i+1:]...)
}

func (b *ShortTermBuffer) overBoundLocked() bool {
	if b.maxMessages > 0 && len(b.messages) > b.maxMessages {
		return true
	}
	if b.maxTokens > 0 && b.totalTokens > b.maxTokens {
		return true
	}
	return false
}

// Window returns a defensive copy of the current ordered message window.
func (b *ShortTermBuffer) Window() []core.Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]core.Message, len(b.messages))
	copy(out, b.messages)
	return out
}

// Len returns the current message count.
func (b *ShortTermBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.messages)
}

// TokenCount returns the current estimated token volume.
func (b *ShortTermBuffer) TokenCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.totalTokens
}

// Reset clears the buffer. Used at session teardown.
func (b *ShortTermBuffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.messages = nil
	b.tokens = nil
	b.totalTokens = 0
}
