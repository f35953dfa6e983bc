package stream_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/agentruntime/core/runtime/agent/store"
	"github.com/agentruntime/core/runtime/agent/stream"
)

func TestToContentBlocksScalarString(t *testing.T) {
	msg := &stream.ChunkMessage{Role: store.RoleAssistant, Content: store.NewInputText("hello")}
	blocks := stream.ToContentBlocks(msg)
	require.Len(t, blocks, 1)
	require.Equal(t, "text", blocks[0].Type)
	require.Equal(t, "hello", blocks[0].Text.Value)
	require.Empty(t, blocks[0].Text.Annotations)
}

func TestToContentBlocksParts(t *testing.T) {
	msg := &stream.ChunkMessage{Content: store.NewInputParts([]store.InputContentPart{
		{Type: "text", Text: "first"},
		{Type: "image", Text: "ignored"},
		{Type: "text", Text: "second"},
	})}
	blocks := stream.ToContentBlocks(msg)
	require.Len(t, blocks, 2)
	require.Equal(t, "first", blocks[0].Text.Value)
	require.Equal(t, "second", blocks[1].Text.Value)
}

func TestToContentBlocksNilMessage(t *testing.T) {
	require.Empty(t, stream.ToContentBlocks(nil))
}

func TestCollectAccumulatesMessagesAndUsage(t *testing.T) {
	chunks := []stream.Chunk{
		{Type: "assistant", Message: &stream.ChunkMessage{Role: store.RoleAssistant, Content: store.NewInputText("Processed 1 messages")}},
		{Type: "result", Usage: &stream.ChunkUsage{PromptTokens: 10, CompletionTokens: 5}},
	}
	result := stream.Collect(chunks, "run_abc")
	require.Len(t, result.Output, 1)
	require.Equal(t, store.RoleAssistant, result.Output[0].Role)
	require.Equal(t, store.MessageCompleted, result.Output[0].Status)
	require.Equal(t, "run_abc", result.Output[0].RunID)
	require.Equal(t, "Processed 1 messages", result.Output[0].Content[0].Text.Value)

	require.NotNil(t, result.Usage)
	require.Equal(t, 10, result.Usage.PromptTokens)
	require.Equal(t, 5, result.Usage.CompletionTokens)
	require.Equal(t, 15, result.Usage.TotalTokens)
}

func TestCollectNoOpChunksIgnored(t *testing.T) {
	chunks := []stream.Chunk{{Type: "ping"}}
	result := stream.Collect(chunks, "run_abc")
	require.Empty(t, result.Output)
	require.Nil(t, result.Usage)
}

func TestCollectMultipleUsageChunksSum(t *testing.T) {
	chunks := []stream.Chunk{
		{Usage: &stream.ChunkUsage{PromptTokens: 3, CompletionTokens: 1}},
		{Usage: &stream.ChunkUsage{PromptTokens: 2, CompletionTokens: 4}},
	}
	result := stream.Collect(chunks, "run_x")
	require.Equal(t, 5, result.Usage.PromptTokens)
	require.Equal(t, 5, result.Usage.CompletionTokens)
	require.Equal(t, 10, result.Usage.TotalTokens)
}

func TestFakeSinkRecordsEventsInOrder(t *testing.T) {
	ctx := context.Background()
	sink := newFakeSink()

	run := store.Run{ID: "run_1", Status: store.RunQueued}
	require.NoError(t, sink.Send(ctx, stream.NewRunCreated(run)))
	require.NoError(t, sink.Send(ctx, stream.NewDone(run.ID)))
	require.NoError(t, sink.Close(ctx))

	require.Equal(t, []stream.EventName{stream.EventRunCreated, stream.EventDone}, sink.Names())
	require.True(t, sink.Closed())
}
