package geminidialect

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dshills/llmgateway/internal/gwtypes"
	"github.com/dshills/llmgateway/internal/sseparser"
	"github.com/dshills/llmgateway/internal/transform"
)

// NewStreamState returns a fresh per-request state machine for Gemini's
// streamGenerateContent SSE payloads (spec §4.4.2).
func (t *Transformer) NewStreamState(meta transform.ResponseMeta) transform.StreamState {
	return &streamState{
		t:      t,
		meta:   meta,
		family: modelFamily(meta.Model),
	}
}

type streamState struct {
	t      *Transformer
	meta   transform.ResponseMeta
	family string

	responseID    string
	nextToolIndex int
	lastThoughtSig string
}

func (s *streamState) id() string {
	if s.responseID == "" {
		s.responseID = "chatcmpl-" + uuid.New().String()
	}
	return s.responseID
}

// Step decodes one Gemini SSE payload (a partial GoogleResponse) and
// returns the chunks it produces: text, new tool_calls, and/or a terminal
// finish_reason+usage chunk (spec §4.4.2).
func (s *streamState) Step(event sseparser.Event) ([]gwtypes.ChatChunk, error) {
	if event.Kind != sseparser.EventData {
		return nil, nil
	}

	var resp response
	if err := json.Unmarshal([]byte(event.Payload), &resp); err != nil {
		return nil, fmt.Errorf("geminidialect: decode stream event: %w", err)
	}
	if len(resp.Candidates) == 0 {
		return nil, nil
	}
	cand := resp.Candidates[0]

	var chunks []gwtypes.ChatChunk
	var textAccum strings.Builder

	for _, p := range cand.Content.Parts {
		switch {
		case p.Thought && p.Text != "":
			if p.ThoughtSignature != "" {
				storeSignature(s.family, p.Text, p.ThoughtSignature)
				s.lastThoughtSig = p.ThoughtSignature
			}
		case p.FunctionCall != nil:
			id := "call_" + uuid.New().String()
			if s.lastThoughtSig != "" {
				storeSignature(s.family, id, s.lastThoughtSig)
				s.lastThoughtSig = ""
			}
			idx := s.nextToolIndex
			s.nextToolIndex++
			args := string(p.FunctionCall.Args)
			if args == "" {
				args = "{}"
			}
			chunks = append(chunks, s.newChunk(gwtypes.Delta{ToolCalls: []gwtypes.ToolCallDelta{{
				Index: idx,
				ID:    id,
				Type:  "function",
				Function: &gwtypes.ToolCallFunctionDelta{
					Name:      p.FunctionCall.Name,
					Arguments: args,
				},
			}}}))
		case p.Text != "":
			textAccum.WriteString(p.Text)
		}
	}

	if textAccum.Len() > 0 {
		text := textAccum.String()
		chunks = append(chunks, s.newChunk(gwtypes.Delta{Content: &text}))
	}

	if cand.FinishReason != "" {
		finish := s.t.MapFinishReason(cand.FinishReason)
		prompt, completion, total := 0, 0, 0
		var cached int
		if resp.UsageMetadata != nil {
			prompt = resp.UsageMetadata.PromptTokenCount
			completion = resp.UsageMetadata.CandidatesTokenCount
			cached = resp.UsageMetadata.CachedContentTokenCount
			total = resp.UsageMetadata.TotalTokenCount
		}
		var explicitTotal *int
		if total != 0 {
			explicitTotal = &total
		}
		usage := gwtypes.NewUsage(saturatingSub(prompt, cached), completion, explicitTotal)
		if cached > 0 {
			usage.PromptTokensDetails = &gwtypes.UsageDetails{CachedTokens: cached}
		}
		chunk := s.newChunk(gwtypes.Delta{})
		chunk.Choices[0].FinishReason = &finish
		chunk.Usage = &usage
		chunks = append(chunks, chunk)
	}

	return chunks, nil
}

func (s *streamState) newChunk(delta gwtypes.Delta) gwtypes.ChatChunk {
	return gwtypes.ChatChunk{
		ID:      s.id(),
		Object:  gwtypes.ObjectChatCompletionChunk,
		Created: time.Now().Unix(),
		Model:   s.meta.Model,
		Choices: []gwtypes.ChunkChoice{{Index: 0, Delta: delta}},
	}
}
