package anthropicdialect

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/dshills/llmgateway/internal/gwtypes"
	"github.com/dshills/llmgateway/internal/transform"
	"github.com/dshills/llmgateway/internal/transformutil"
)

// Transformer implements transform.ProviderTransformer for both the direct
// Claude dialect and its Kiro-proxied twin. The wire format is byte-identical
// between the two; Kiro differs only in model-prefix stripping and in
// setting is_error on tool_result blocks.
type Transformer struct {
	id      string
	name    string
	kiro    bool
	models  []string
}

// New returns a Transformer speaking the Anthropic Messages API dialect.
// Set kiro=true for the Kiro-proxied variant: model names have a leading
// "kiro:" stripped before being sent, and tool_result blocks carry an
// is_error heuristic Anthropic-direct never sets.
func New(id, name string, kiro bool, models []string) *Transformer {
	return &Transformer{id: id, name: name, kiro: kiro, models: models}
}

func (t *Transformer) ProviderID() string   { return t.id }
func (t *Transformer) ProviderName() string { return t.name }
func (t *Transformer) DefaultMaxTokens() int { return 8192 }

func (t *Transformer) SupportedModels() []string {
	out := make([]string, len(t.models))
	copy(out, t.models)
	return out
}

func (t *Transformer) SupportsModel(model string) bool {
	base := t.stripPrefix(model)
	if len(t.models) == 0 {
		return strings.HasPrefix(base, "claude-") || strings.HasPrefix(base, "claude_")
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

func (t *Transformer) stripPrefix(model string) string {
	if t.kiro {
		return strings.TrimPrefix(model, "kiro:")
	}
	return model
}

// TransformRequest builds the Anthropic Messages API request body (spec §4.4.1).
func (t *Transformer) TransformRequest(req gwtypes.ChatRequest) ([]byte, error) {
	sys, _ := transformutil.ExtractSystemMessages(req.Messages)

	var wireMessages []wireMessage
	for _, m := range req.Messages {
		if m.Role == gwtypes.RoleSystem {
			continue
		}
		wireMessages = mergeAdjacentWireMessages(wireMessages, t.convertMessage(m))
	}

	maxTokens := t.DefaultMaxTokens()
	if req.MaxTokens != nil {
		maxTokens = *req.MaxTokens
	}

	var stopSeqs []string
	if req.Stop != nil {
		stopSeqs = req.Stop.Values
	}

	var tools []map[string]any
	if len(req.Tools) > 0 {
		tools = transformutil.ToolsToAnthropic(req.Tools)
	}

	r := request{
		Model:       t.stripPrefix(req.Model),
		MaxTokens:   maxTokens,
		System:      sys,
		Messages:    wireMessages,
		Temperature: req.Temperature,
		TopP:        req.TopP,
		StopSeqs:    stopSeqs,
		Tools:       tools,
		ToolChoice:  transformutil.ToolChoiceToAnthropic(req.ToolChoice),
		Stream:      req.Stream,
	}
	return json.Marshal(r)
}

// mergeAdjacentWireMessages appends next to out, concatenating its content
// blocks onto the previous message instead of appending a new entry when the
// roles match. The Anthropic Messages API requires strictly alternating
// user/assistant roles; merging at the block level (rather than flattening
// content to text first) preserves image and tool_use/tool_result blocks
// across the merge.
func mergeAdjacentWireMessages(out []wireMessage, next wireMessage) []wireMessage {
	if len(out) > 0 && out[len(out)-1].Role == next.Role {
		out[len(out)-1].Content = append(out[len(out)-1].Content, next.Content...)
		return out
	}
	return append(out, next)
}

func (t *Transformer) convertMessage(m gwtypes.ChatMessage) wireMessage {
	switch m.Role {
	case gwtypes.RoleAssistant:
		return wireMessage{Role: "assistant", Content: t.assistantContent(m)}
	case gwtypes.RoleTool:
		return wireMessage{Role: "user", Content: []contentBlock{t.toolResultBlock(m)}}
	default:
		return wireMessage{Role: "user", Content: t.userContent(m)}
	}
}

func (t *Transformer) userContent(m gwtypes.ChatMessage) []contentBlock {
	if m.Content == nil {
		return []contentBlock{{Type: "text", Text: " "}}
	}
	if m.Content.Text != nil {
		return []contentBlock{{Type: "text", Text: *m.Content.Text}}
	}
	var blocks []contentBlock
	for _, p := range m.Content.Parts {
		switch p.Type {
		case gwtypes.ContentPartText:
			if p.Text != "" {
				blocks = append(blocks, contentBlock{Type: "text", Text: p.Text})
			}
		case gwtypes.ContentPartImageURL:
			if p.ImageURL == nil {
				continue
			}
			src := transformutil.ParseImageURL(p.ImageURL.URL)
			if src.Kind == "base64" {
				blocks = append(blocks, contentBlock{Type: "image", Source: &imageSource{Type: "base64", MediaType: src.MediaType, Data: src.Data}})
			} else {
				blocks = append(blocks, contentBlock{Type: "image", Source: &imageSource{Type: "url", URL: src.Data}})
			}
		}
	}
	if len(blocks) == 0 {
		blocks = []contentBlock{{Type: "text", Text: " "}}
	}
	return blocks
}

func (t *Transformer) assistantContent(m gwtypes.ChatMessage) []contentBlock {
	var blocks []contentBlock
	if text := m.ContentString(); text != "" {
		blocks = append(blocks, contentBlock{Type: "text", Text: text})
	}
	for _, tc := range m.ToolCalls {
		args := tc.Function.Arguments
		if args == "" {
			args = "{}"
		}
		blocks = append(blocks, contentBlock{
			Type:  "tool_use",
			ID:    tc.ID,
			Name:  tc.Function.Name,
			Input: json.RawMessage(args),
		})
	}
	if len(blocks) == 0 {
		blocks = []contentBlock{{Type: "text", Text: " "}}
	}
	return blocks
}

func (t *Transformer) toolResultBlock(m gwtypes.ChatMessage) contentBlock {
	text := m.ContentString()
	block := contentBlock{
		Type:      "tool_result",
		ToolUseID: transformutil.SanitizeToolCallID(m.ToolCallID),
		Text:      text,
	}
	if t.kiro {
		isErr := strings.Contains(strings.ToLower(text), "error")
		block.IsError = &isErr
	}
	return block
}

// MarshalJSON for contentBlock.text on tool_result blocks must serialize as
// a plain string under "content", not "text" — Anthropic's tool_result shape
// names the field "content". We keep a single internal Text field for every
// block kind and project it through a custom marshaler.
func (b contentBlock) MarshalJSON() ([]byte, error) {
	type alias contentBlock
	if b.Type == "tool_result" {
		out := struct {
			Type      string `json:"type"`
			ToolUseID string `json:"tool_use_id"`
			Content   string `json:"content"`
			IsError   *bool  `json:"is_error,omitempty"`
		}{Type: b.Type, ToolUseID: b.ToolUseID, Content: b.Text, IsError: b.IsError}
		return json.Marshal(out)
	}
	return json.Marshal(alias(b))
}

// TransformResponse parses a non-streaming Anthropic response into the
// canonical ChatResponse shape (spec §4.4.1).
func (t *Transformer) TransformResponse(body []byte, meta transform.ResponseMeta) (*gwtypes.ChatResponse, error) {
	var resp response
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("anthropicdialect: decode response: %w", err)
	}

	var contentText, reasoningText strings.Builder
	var toolCalls []gwtypes.ToolCall
	for _, block := range resp.Content {
		switch block.Type {
		case "text":
			contentText.WriteString(block.Text)
		case "thinking":
			reasoningText.WriteString(block.Thinking)
		case "tool_use":
			args := string(block.Input)
			if args == "" {
				args = "{}"
			}
			toolCalls = append(toolCalls, gwtypes.ToolCall{
				ID:   block.ID,
				Type: "function",
				Function: gwtypes.ToolCallFunction{
					Name:      block.Name,
					Arguments: args,
				},
			})
		}
	}

	content := contentText.String()
	msg := gwtypes.ResponseMessage{Role: gwtypes.RoleAssistant, Content: &content, ToolCalls: toolCalls}
	if reasoningText.Len() > 0 {
		r := reasoningText.String()
		msg.ReasoningContent = &r
	}

	finish := t.MapFinishReason(resp.StopReason)
	usage := gwtypes.NewUsage(resp.Usage.InputTokens, resp.Usage.OutputTokens, nil)
	cached := resp.Usage.CacheReadInputTokens + resp.Usage.CacheCreationInputTokens
	if cached > 0 {
		usage.PromptTokensDetails = &gwtypes.UsageDetails{CachedTokens: cached}
	}

	return &gwtypes.ChatResponse{
		ID:      resp.ID,
		Object:  gwtypes.ObjectChatCompletion,
		Created: time.Now().Unix(),
		Model:   meta.Model,
		Choices: []gwtypes.Choice{{Index: 0, Message: msg, FinishReason: finish}},
		Usage:   usage,
	}, nil
}
