package geminidialect

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/llmgateway/internal/gwtypes"
	"github.com/dshills/llmgateway/internal/sseparser"
	"github.com/dshills/llmgateway/internal/transform"
)

func TestTransformResponseFinishReasonAndUsage(t *testing.T) {
	tr := New("gemini", "Gemini", nil)
	body := []byte(`{
		"candidates": [{"content":{"parts":[{"text":"hi"}]}, "finishReason":"MAX_TOKENS"}],
		"usageMetadata": {"promptTokenCount": 12, "candidatesTokenCount": 8}
	}`)
	resp, err := tr.TransformResponse(body, transform.ResponseMeta{Model: "gemini-1.5-pro", Provider: "gemini"})
	require.NoError(t, err)
	assert.Equal(t, gwtypes.FinishLength, resp.Choices[0].FinishReason)
	assert.Equal(t, 20, resp.Usage.TotalTokens)
	assert.Equal(t, 12, resp.Usage.PromptTokens)
	assert.Equal(t, 8, resp.Usage.CompletionTokens)
}

func TestTransformResponseSubtractsCachedTokensFromPrompt(t *testing.T) {
	tr := New("gemini", "Gemini", nil)
	body := []byte(`{
		"candidates": [{"content":{"parts":[{"text":"hi"}]}, "finishReason":"STOP"}],
		"usageMetadata": {"promptTokenCount": 1000, "candidatesTokenCount": 50, "cachedContentTokenCount": 300}
	}`)
	resp, err := tr.TransformResponse(body, transform.ResponseMeta{Model: "gemini-1.5-pro", Provider: "gemini"})
	require.NoError(t, err)
	assert.Equal(t, 700, resp.Usage.PromptTokens)
	require.NotNil(t, resp.Usage.PromptTokensDetails)
	assert.Equal(t, 300, resp.Usage.PromptTokensDetails.CachedTokens)
}

func TestTransformResponseFunctionCall(t *testing.T) {
	tr := New("gemini", "Gemini", nil)
	body := []byte(`{
		"candidates": [{"content":{"parts":[{"functionCall":{"name":"get_weather","args":{"city":"SF"}}}]}, "finishReason":"STOP"}],
		"usageMetadata": {"promptTokenCount": 5, "candidatesTokenCount": 3}
	}`)
	resp, err := tr.TransformResponse(body, transform.ResponseMeta{Model: "gemini-1.5-pro", Provider: "gemini"})
	require.NoError(t, err)
	require.Len(t, resp.Choices[0].Message.ToolCalls, 1)
	tc := resp.Choices[0].Message.ToolCalls[0]
	assert.Equal(t, "get_weather", tc.Function.Name)
	assert.Contains(t, tc.ID, "call_")
}

func TestTransformRequestSystemInstructionAndContents(t *testing.T) {
	tr := New("gemini", "Gemini", nil)
	req := gwtypes.ChatRequest{
		Model: "gemini-1.5-pro",
		Messages: []gwtypes.ChatMessage{
			textMsg(gwtypes.RoleSystem, "Be concise."),
			textMsg(gwtypes.RoleUser, "Hi"),
		},
	}
	body, err := tr.TransformRequest(req)
	require.NoError(t, err)
	assert.Contains(t, string(body), `"system_instruction":{"parts":[{"text":"Be concise."}]}`)
	assert.Contains(t, string(body), `"contents":[{"role":"user","parts":[{"text":"Hi"}]}]`)
}

func textMsg(role gwtypes.Role, text string) gwtypes.ChatMessage {
	c := gwtypes.NewTextContent(text)
	return gwtypes.ChatMessage{Role: role, Content: &c}
}

func TestStreamStateEmitsTextAndFinish(t *testing.T) {
	tr := New("gemini", "Gemini", nil)
	state := tr.NewStreamState(transform.ResponseMeta{Model: "gemini-1.5-pro", Provider: "gemini"})

	chunks1, err := state.Step(sseparser.Event{Kind: sseparser.EventData, Payload: `{"candidates":[{"content":{"parts":[{"text":"Hel"}]}}]}`})
	require.NoError(t, err)
	require.Len(t, chunks1, 1)
	assert.Equal(t, "Hel", *chunks1[0].Choices[0].Delta.Content)

	chunks2, err := state.Step(sseparser.Event{Kind: sseparser.EventData, Payload: `{"candidates":[{"content":{"parts":[{"text":"lo"}]},"finishReason":"STOP"}],"usageMetadata":{"promptTokenCount":4,"candidatesTokenCount":2}}`})
	require.NoError(t, err)
	require.Len(t, chunks2, 2)
	assert.Equal(t, "lo", *chunks2[0].Choices[0].Delta.Content)
	require.NotNil(t, chunks2[1].Choices[0].FinishReason)
	assert.Equal(t, gwtypes.FinishStop, *chunks2[1].Choices[0].FinishReason)
}

func TestStreamStateSubtractsCachedTokensFromPrompt(t *testing.T) {
	tr := New("gemini", "Gemini", nil)
	state := tr.NewStreamState(transform.ResponseMeta{Model: "gemini-1.5-pro", Provider: "gemini"})

	chunks, err := state.Step(sseparser.Event{Kind: sseparser.EventData, Payload: `{"candidates":[{"content":{"parts":[{"text":"hi"}]},"finishReason":"STOP"}],"usageMetadata":{"promptTokenCount":1000,"candidatesTokenCount":50,"cachedContentTokenCount":300}}`})
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	require.NotNil(t, chunks[1].Usage)
	assert.Equal(t, 700, chunks[1].Usage.PromptTokens)
}
