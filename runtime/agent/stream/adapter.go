package stream

import (
	"github.com/google/uuid"

	"github.com/agentruntime/core/runtime/agent/store"
)

// ToContentBlocks normalizes a chunk message's content into an ordered
// sequence of text blocks. A nil msg yields an empty sequence. A scalar
// string content becomes a single block; a part sequence keeps only parts
// of type "text", in order.
func ToContentBlocks(msg *ChunkMessage) []store.ContentBlock {
	if msg == nil {
		return []store.ContentBlock{}
	}
	if !msg.Content.IsParts() {
		return []store.ContentBlock{store.NewTextBlock(msg.Content.String())}
	}
	blocks := make([]store.ContentBlock, 0, len(msg.Content.Parts()))
	for _, part := range msg.Content.Parts() {
		if part.Type != "text" {
			continue
		}
		blocks = append(blocks, store.NewTextBlock(part.Text))
	}
	return blocks
}

// CollectResult is the outcome of draining a full chunk stream: the
// assistant messages it produced, and accumulated usage if any chunk
// reported it.
type CollectResult struct {
	Output []store.Message
	Usage  *store.Usage
}

// Collect drains chunks in order, producing one completed assistant Message
// per chunk whose Message field is present, and summing usage across every
// chunk that reports it. Chunks with neither are no-ops. runID is attached
// to every produced message.
func Collect(chunks []Chunk, runID string) CollectResult {
	var result CollectResult
	var promptTokens, completionTokens int
	var hasUsage bool

	for _, chunk := range chunks {
		if chunk.Message != nil {
			result.Output = append(result.Output, store.Message{
				ID:      "msg_" + uuid.NewString(),
				Object:  "thread.message",
				RunID:   runID,
				Role:    store.RoleAssistant,
				Status:  store.MessageCompleted,
				Content: ToContentBlocks(chunk.Message),
			})
		}
		if chunk.Usage != nil {
			promptTokens += chunk.Usage.PromptTokens
			completionTokens += chunk.Usage.CompletionTokens
			hasUsage = true
		}
	}

	if hasUsage {
		result.Usage = &store.Usage{
			PromptTokens:     promptTokens,
			CompletionTokens: completionTokens,
			TotalTokens:      promptTokens + completionTokens,
		}
	}
	return result
}
