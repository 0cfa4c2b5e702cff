package copilotdialect

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/llmgateway/internal/gwtypes"
	"github.com/dshills/llmgateway/internal/sseparser"
	"github.com/dshills/llmgateway/internal/transform"
)

func TestTransformRequestStripsLiteLLMPrefix(t *testing.T) {
	tr := New("litellm", "LiteLLM", true, nil)
	req := gwtypes.ChatRequest{Model: "litellm:gpt-4o", Messages: []gwtypes.ChatMessage{}}
	body, err := tr.TransformRequest(req)
	require.NoError(t, err)
	assert.Contains(t, string(body), `"model":"gpt-4o"`)
}

func TestTransformResponsePassthrough(t *testing.T) {
	tr := New("copilot", "Copilot", false, nil)
	body := []byte(`{"id":"chatcmpl-1","choices":[{"index":0,"message":{"role":"assistant","content":"hi"},"finish_reason":"stop"}],"usage":{"prompt_tokens":5,"completion_tokens":2,"total_tokens":7}}`)
	resp, err := tr.TransformResponse(body, transform.ResponseMeta{Model: "gpt-4o", Provider: "copilot"})
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o", resp.Model)
	assert.Equal(t, gwtypes.FinishStop, resp.Choices[0].FinishReason)
	assert.Equal(t, 7, resp.Usage.TotalTokens)
}

func TestStreamStatePassthrough(t *testing.T) {
	tr := New("copilot", "Copilot", false, nil)
	state := tr.NewStreamState(transform.ResponseMeta{Model: "gpt-4o", Provider: "copilot"})
	chunks, err := state.Step(sseparser.Event{Kind: sseparser.EventData, Payload: `{"id":"chatcmpl-1","choices":[{"index":0,"delta":{"content":"hi"}}]}`})
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "gpt-4o", chunks[0].Model)
	assert.Equal(t, "hi", *chunks[0].Choices[0].Delta.Content)
}
