package copilotdialect

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dshills/llmgateway/internal/gwtypes"
	"github.com/dshills/llmgateway/internal/transform"
	"github.com/dshills/llmgateway/internal/transformutil"
)

// Transformer implements transform.ProviderTransformer for the Copilot/
// LiteLLM OpenAI-native dialect.
type Transformer struct {
	id          string
	name        string
	litellm     bool
	models      []string
}

// New returns a Transformer speaking the OpenAI-native dialect. Set
// litellm=true to strip a leading "litellm:" model prefix before sending,
// matching LiteLLM's model-routing convention.
func New(id, name string, litellm bool, models []string) *Transformer {
	return &Transformer{id: id, name: name, litellm: litellm, models: models}
}

func (t *Transformer) ProviderID() string    { return t.id }
func (t *Transformer) ProviderName() string  { return t.name }
func (t *Transformer) DefaultMaxTokens() int { return 4096 }

func (t *Transformer) SupportedModels() []string {
	out := make([]string, len(t.models))
	copy(out, t.models)
	return out
}

func (t *Transformer) SupportsModel(model string) bool {
	base := model
	if t.litellm {
		base = strings.TrimPrefix(model, "litellm:")
	}
	if len(t.models) == 0 {
		return strings.HasPrefix(base, "gpt-") || strings.HasPrefix(base, "o1") || strings.HasPrefix(base, "o3")
	}
	for _, m := range t.models {
		if m == base {
			return true
		}
	}
	return false
}

func (t *Transformer) MapFinishReason(native string) gwtypes.FinishReason {
	return transformutil.MapFinishReason(native)
}

// TransformRequest passes the canonical request through almost unchanged —
// it is already OpenAI's own wire shape — only stripping a LiteLLM model
// prefix first.
func (t *Transformer) TransformRequest(req gwtypes.ChatRequest) ([]byte, error) {
	if t.litellm {
		req.Model = strings.TrimPrefix(req.Model, "litellm:")
	}
	return json.Marshal(req)
}

// TransformResponse decodes a Copilot/LiteLLM response directly into the
// canonical shape — the wire shape and the canonical shape coincide — then
// normalizes the reported model to the one the caller asked for. Unlike the
// other dialects, finish_reason is NOT remapped here: it already arrives in
// canonical vocabulary, and running it through MapFinishReason's native
// Anthropic/Google case table would corrupt "length"/"tool_calls" down to
// the unknown-value default of "stop".
func (t *Transformer) TransformResponse(body []byte, meta transform.ResponseMeta) (*gwtypes.ChatResponse, error) {
	var resp gwtypes.ChatResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("copilotdialect: decode response: %w", err)
	}
	resp.Model = meta.Model
	if resp.Object == "" {
		resp.Object = gwtypes.ObjectChatCompletion
	}
	// finish_reason and tool_calls already arrive in canonical shape; only
	// coerce a missing tool_call type, which some LiteLLM backends omit.
	for i, c := range resp.Choices {
		for j := range c.Message.ToolCalls {
			if resp.Choices[i].Message.ToolCalls[j].Type == "" {
				resp.Choices[i].Message.ToolCalls[j].Type = "function"
			}
		}
	}
	return &resp, nil
}
