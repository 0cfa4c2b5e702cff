package geminidialect

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dshills/llmgateway/internal/gwtypes"
	"github.com/dshills/llmgateway/internal/transform"
	"github.com/dshills/llmgateway/internal/transformutil"
)

// Transformer implements transform.ProviderTransformer for the Google
// Generative Language API dialect (spec §4.4.2).
type Transformer struct {
	id     string
	name   string
	models []string
}

// New returns a Transformer speaking the Gemini dialect.
func New(id, name string, models []string) *Transformer {
	return &Transformer{id: id, name: name, models: models}
}

func (t *Transformer) ProviderID() string    { return t.id }
func (t *Transformer) ProviderName() string  { return t.name }
func (t *Transformer) DefaultMaxTokens() int { return 8192 }

func (t *Transformer) SupportedModels() []string {
	out := make([]string, len(t.models))
	copy(out, t.models)
	return out
}

func (t *Transformer) SupportsModel(model string) bool {
	if len(t.models) == 0 {
		return strings.HasPrefix(model, "gemini-") || strings.HasPrefix(model, "gemini_")
	}
	for _, m := range t.models {
		if m == model {
			return true
		}
	}
	return false
}

func (t *Transformer) MapFinishReason(native string) gwtypes.FinishReason {
	return transformutil.MapFinishReason(native)
}

// modelFamily collapses a dated model id to the signature-cache key Gemini
// thinking signatures are scoped by (spec §4.4.2/§9).
func modelFamily(model string) string {
	if i := strings.IndexByte(model, '-'); i >= 0 {
		if j := strings.IndexByte(model[i+1:], '-'); j >= 0 {
			return model[:i+1+j]
		}
	}
	return model
}

// TransformRequest builds a Gemini generateContent request body (spec §4.4.2).
func (t *Transformer) TransformRequest(req gwtypes.ChatRequest) ([]byte, error) {
	family := modelFamily(req.Model)

	var sysInstruction *content
	if sys, ok := transformutil.ExtractSystemMessages(req.Messages); ok {
		sysInstruction = &content{Parts: []part{{Text: sys}}}
	}

	var contents []content
	for _, m := range req.Messages {
		if m.Role == gwtypes.RoleSystem {
			continue
		}
		contents = append(contents, t.convertMessage(m, family))
	}

	var gc *generationConfig
	if req.Temperature != nil || req.TopP != nil || req.MaxTokens != nil || req.Stop != nil {
		gc = &generationConfig{Temperature: req.Temperature, TopP: req.TopP, MaxOutputTokens: req.MaxTokens}
		if req.Stop != nil {
			gc.StopSequences = req.Stop.Values
		}
	}

	var tools []map[string]any
	if len(req.Tools) > 0 {
		tools = transformutil.ToolsToGoogle(req.Tools)
	}

	r := request{
		SystemInstruction: sysInstruction,
		Contents:          contents,
		GenerationConfig:  gc,
		Tools:             tools,
		ToolConfig:        googleToolConfig(req.ToolChoice),
	}
	return json.Marshal(r)
}

func googleToolConfig(tc *gwtypes.ToolChoice) map[string]any {
	cfg := transformutil.ToolChoiceToGoogle(tc)
	if cfg == nil {
		return nil
	}
	return map[string]any{"functionCallingConfig": cfg}
}

func (t *Transformer) convertMessage(m gwtypes.ChatMessage, family string) content {
	switch m.Role {
	case gwtypes.RoleAssistant:
		return content{Role: "model", Parts: t.assistantParts(m, family)}
	case gwtypes.RoleTool:
		name := m.Name
		if name == "" {
			name = m.ToolCallID
		}
		if name == "" {
			name = "function"
		}
		return content{Role: "user", Parts: []part{{FunctionResponse: &functionResponse{
			Name:     name,
			Response: map[string]any{"result": m.ContentString()},
		}}}}
	default:
		return content{Role: "user", Parts: t.userParts(m)}
	}
}

func (t *Transformer) userParts(m gwtypes.ChatMessage) []part {
	if m.Content == nil {
		return []part{{Text: " "}}
	}
	if m.Content.Text != nil {
		return []part{{Text: *m.Content.Text}}
	}
	var parts []part
	for _, p := range m.Content.Parts {
		switch p.Type {
		case gwtypes.ContentPartText:
			if p.Text != "" {
				parts = append(parts, part{Text: p.Text})
			}
		case gwtypes.ContentPartImageURL:
			if p.ImageURL == nil {
				continue
			}
			src := transformutil.ParseImageURL(p.ImageURL.URL)
			if src.Kind == "base64" {
				parts = append(parts, part{InlineData: &blob{MimeType: src.MediaType, Data: src.Data}})
			} else {
				parts = append(parts, part{FileData: &file{MimeType: src.MediaType, FileURI: src.Data}})
			}
		}
	}
	if len(parts) == 0 {
		parts = []part{{Text: " "}}
	}
	return parts
}

func (t *Transformer) assistantParts(m gwtypes.ChatMessage, family string) []part {
	var parts []part
	if text := m.ContentString(); text != "" {
		parts = append(parts, part{Text: text})
	}
	for _, tc := range m.ToolCalls {
		args := tc.Function.Arguments
		if args == "" {
			args = "{}"
		}
		p := part{FunctionCall: &functionCall{Name: tc.Function.Name, Args: json.RawMessage(args)}}
		if sig, ok := lookupSignature(family, tc.ID); ok {
			p.ThoughtSignature = sig
		} else {
			p.ThoughtSignature = skipThoughtSignature
		}
		parts = append(parts, p)
	}
	if len(parts) == 0 {
		parts = []part{{Text: " "}}
	}
	return parts
}

// TransformResponse parses a non-streaming Gemini response into the
// canonical ChatResponse shape (spec §4.4.2).
func (t *Transformer) TransformResponse(body []byte, meta transform.ResponseMeta) (*gwtypes.ChatResponse, error) {
	var resp response
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("geminidialect: decode response: %w", err)
	}
	if len(resp.Candidates) == 0 {
		return nil, fmt.Errorf("geminidialect: response has no candidates")
	}
	cand := resp.Candidates[0]
	family := modelFamily(meta.Model)

	var textBuilder strings.Builder
	var toolCalls []gwtypes.ToolCall
	var lastThoughtSig string
	for _, p := range cand.Content.Parts {
		switch {
		case p.Thought && p.Text != "":
			if p.ThoughtSignature != "" {
				storeSignature(family, p.Text, p.ThoughtSignature)
				lastThoughtSig = p.ThoughtSignature
			}
		case p.FunctionCall != nil:
			id := "call_" + uuid.New().String()
			if lastThoughtSig != "" {
				storeSignature(family, id, lastThoughtSig)
				lastThoughtSig = ""
			}
			args := string(p.FunctionCall.Args)
			if args == "" {
				args = "{}"
			}
			toolCalls = append(toolCalls, gwtypes.ToolCall{
				ID:   id,
				Type: "function",
				Function: gwtypes.ToolCallFunction{
					Name:      p.FunctionCall.Name,
					Arguments: args,
				},
			})
		case p.Text != "":
			textBuilder.WriteString(p.Text)
		}
	}

	text := textBuilder.String()
	msg := gwtypes.ResponseMessage{Role: gwtypes.RoleAssistant, Content: &text, ToolCalls: toolCalls}
	finish := t.MapFinishReason(cand.FinishReason)

	prompt, completion, total := 0, 0, 0
	var cached int
	if resp.UsageMetadata != nil {
		prompt = resp.UsageMetadata.PromptTokenCount
		completion = resp.UsageMetadata.CandidatesTokenCount
		cached = resp.UsageMetadata.CachedContentTokenCount
		if resp.UsageMetadata.TotalTokenCount != 0 {
			total = resp.UsageMetadata.TotalTokenCount
		}
	}
	var explicitTotal *int
	if total != 0 {
		explicitTotal = &total
	}
	usage := gwtypes.NewUsage(saturatingSub(prompt, cached), completion, explicitTotal)
	if cached > 0 {
		usage.PromptTokensDetails = &gwtypes.UsageDetails{CachedTokens: cached}
	}

	return &gwtypes.ChatResponse{
		ID:      "chatcmpl-" + uuid.New().String(),
		Object:  gwtypes.ObjectChatCompletion,
		Created: time.Now().Unix(),
		Model:   meta.Model,
		Choices: []gwtypes.Choice{{Index: 0, Message: msg, FinishReason: finish}},
		Usage:   usage,
	}, nil
}

// saturatingSub mirrors Gemini's input_tokens = prompt - cached accounting
// (spec §4.4.2): cachedContentTokenCount is already counted once inside
// promptTokenCount, so it must be subtracted to get the Anthropic-equivalent
// uncached prompt token count, floored at zero.
func saturatingSub(a, b int) int {
	if a < b {
		return 0
	}
	return a - b
}
