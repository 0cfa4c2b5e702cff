package anthropicdialect

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/dshills/llmgateway/internal/gwerrors"
	"github.com/dshills/llmgateway/internal/gwtypes"
	"github.com/dshills/llmgateway/internal/sseparser"
	"github.com/dshills/llmgateway/internal/transform"
	"github.com/dshills/llmgateway/internal/transformutil"
)

// NewStreamState returns a fresh per-request state machine driving the
// Anthropic event table of spec §4.4.1.
func (t *Transformer) NewStreamState(meta transform.ResponseMeta) transform.StreamState {
	return &streamState{
		t:                t,
		meta:             meta,
		toolIndexByBlock: make(map[int]int),
	}
}

type streamState struct {
	t    *Transformer
	meta transform.ResponseMeta

	responseID   string
	inputTokens  int
	outputTokens int

	toolIndexByBlock map[int]int
	nextToolIndex    int
}

// Step decodes one Anthropic SSE payload and returns the canonical chunks it
// produces, per the event table in spec §4.4.1.
func (s *streamState) Step(event sseparser.Event) ([]gwtypes.ChatChunk, error) {
	if event.Kind != sseparser.EventData {
		return nil, nil
	}

	var se streamEvent
	if err := json.Unmarshal([]byte(event.Payload), &se); err != nil {
		return nil, fmt.Errorf("anthropicdialect: decode stream event: %w", err)
	}

	switch se.Type {
	case "message_start":
		if se.Message != nil {
			s.responseID = se.Message.ID
			s.inputTokens = se.Message.Usage.InputTokens
		}
		role := string(gwtypes.RoleAssistant)
		return []gwtypes.ChatChunk{s.newChunk(gwtypes.Delta{Role: &role})}, nil

	case "content_block_start":
		if se.ContentBlock == nil || se.ContentBlock.Type != "tool_use" {
			return nil, nil
		}
		idx := s.nextToolIndex
		s.toolIndexByBlock[se.Index] = idx
		s.nextToolIndex++
		id := transformutil.SanitizeToolCallID(se.ContentBlock.ID)
		delta := gwtypes.Delta{ToolCalls: []gwtypes.ToolCallDelta{{
			Index: idx,
			ID:    id,
			Type:  "function",
			Function: &gwtypes.ToolCallFunctionDelta{
				Name:      se.ContentBlock.Name,
				Arguments: "",
			},
		}}}
		return []gwtypes.ChatChunk{s.newChunk(delta)}, nil

	case "content_block_delta":
		if se.Delta == nil {
			return nil, nil
		}
		switch se.Delta.Type {
		case "text_delta":
			text := se.Delta.Text
			return []gwtypes.ChatChunk{s.newChunk(gwtypes.Delta{Content: &text})}, nil
		case "input_json_delta":
			idx, ok := s.toolIndexByBlock[se.Index]
			if !ok {
				return nil, nil
			}
			delta := gwtypes.Delta{ToolCalls: []gwtypes.ToolCallDelta{{
				Index:    idx,
				Function: &gwtypes.ToolCallFunctionDelta{Arguments: se.Delta.PartialJSON},
			}}}
			return []gwtypes.ChatChunk{s.newChunk(delta)}, nil
		case "thinking_delta":
			think := se.Delta.Thinking
			return []gwtypes.ChatChunk{s.newChunk(gwtypes.Delta{ReasoningContent: &think})}, nil
		default:
			return nil, nil
		}

	case "content_block_stop":
		delete(s.toolIndexByBlock, se.Index)
		return nil, nil

	case "message_delta":
		if se.Usage != nil {
			s.outputTokens = se.Usage.OutputTokens
		}
		if se.Delta == nil || se.Delta.StopReason == "" {
			return nil, nil
		}
		finish := s.t.MapFinishReason(se.Delta.StopReason)
		usage := gwtypes.NewUsage(s.inputTokens, s.outputTokens, nil)
		chunk := s.newChunk(gwtypes.Delta{})
		chunk.Choices[0].FinishReason = &finish
		chunk.Usage = &usage
		return []gwtypes.ChatChunk{chunk}, nil

	case "message_stop", "ping":
		return nil, nil

	case "error":
		msg := "unknown error"
		if se.Error != nil {
			msg = fmt.Sprintf("%s: %s", se.Error.Type, se.Error.Message)
		}
		return nil, &gwerrors.StreamError{Message: msg}

	default:
		// unknown event types are ignored (spec §4.4.1) and are not logged.
		return nil, nil
	}
}

func (s *streamState) newChunk(delta gwtypes.Delta) gwtypes.ChatChunk {
	return gwtypes.ChatChunk{
		ID:      s.responseID,
		Object:  gwtypes.ObjectChatCompletionChunk,
		Created: time.Now().Unix(),
		Model:   s.meta.Model,
		Choices: []gwtypes.ChunkChoice{{Index: 0, Delta: delta}},
	}
}
