package copilotdialect

import (
	"encoding/json"
	"fmt"

	"github.com/dshills/llmgateway/internal/gwtypes"
	"github.com/dshills/llmgateway/internal/sseparser"
	"github.com/dshills/llmgateway/internal/transform"
)

// NewStreamState returns a fresh per-request state machine. Copilot/LiteLLM
// chunks are already the canonical ChatChunk shape; Step only normalizes the
// model field and coerces a missing tool_call type (spec §4.4.3).
func (t *Transformer) NewStreamState(meta transform.ResponseMeta) transform.StreamState {
	return &streamState{t: t, meta: meta}
}

type streamState struct {
	t    *Transformer
	meta transform.ResponseMeta
}

func (s *streamState) Step(event sseparser.Event) ([]gwtypes.ChatChunk, error) {
	if event.Kind != sseparser.EventData {
		return nil, nil
	}

	var chunk gwtypes.ChatChunk
	if err := json.Unmarshal([]byte(event.Payload), &chunk); err != nil {
		return nil, fmt.Errorf("copilotdialect: decode stream chunk: %w", err)
	}
	chunk.Model = s.meta.Model
	if chunk.Object == "" {
		chunk.Object = gwtypes.ObjectChatCompletionChunk
	}
	for i := range chunk.Choices {
		for j := range chunk.Choices[i].Delta.ToolCalls {
			if chunk.Choices[i].Delta.ToolCalls[j].Type == "" {
				chunk.Choices[i].Delta.ToolCalls[j].Type = "function"
			}
		}
	}
	return []gwtypes.ChatChunk{chunk}, nil
}
