// Package gwtypes holds the canonical OpenAI-shape request/response/chunk
// records every dialect transformer converts to and from.
package gwtypes

import (
	"encoding/json"
	"fmt"
)

// Role identifies the sender of a ChatMessage.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// FinishReason is the normalized terminator category for a choice.
type FinishReason string

const (
	FinishStop          FinishReason = "stop"
	FinishLength         FinishReason = "length"
	FinishToolCalls      FinishReason = "tool_calls"
	FinishContentFilter  FinishReason = "content_filter"
)

// ContentPartType distinguishes the two kinds of message content parts.
type ContentPartType string

const (
	ContentPartText     ContentPartType = "text"
	ContentPartImageURL ContentPartType = "image_url"
)

// ImageURL carries either a remote URL or a data: URI.
type ImageURL struct {
	URL string `json:"url"`
}

// ContentPart is one element of a multi-part message content array.
type ContentPart struct {
	Type     ContentPartType `json:"type"`
	Text     string          `json:"text,omitempty"`
	ImageURL *ImageURL       `json:"image_url,omitempty"`
}

// MessageContent is either a plain string or an ordered list of ContentPart.
// It round-trips through JSON in whichever shape it was given.
type MessageContent struct {
	Text  *string
	Parts []ContentPart
}

// IsEmpty reports whether the content carries neither text nor parts.
func (c MessageContent) IsEmpty() bool {
	return c.Text == nil && len(c.Parts) == 0
}

// String returns the flattened textual content, concatenating any text parts.
func (c MessageContent) String() string {
	if c.Text != nil {
		return *c.Text
	}
	var out string
	for _, p := range c.Parts {
		if p.Type == ContentPartText {
			out += p.Text
		}
	}
	return out
}

// NewTextContent builds a plain-string MessageContent.
func NewTextContent(s string) MessageContent {
	return MessageContent{Text: &s}
}

func (c MessageContent) MarshalJSON() ([]byte, error) {
	if c.Text != nil {
		return json.Marshal(*c.Text)
	}
	if c.Parts != nil {
		return json.Marshal(c.Parts)
	}
	return []byte(`""`), nil
}

func (c *MessageContent) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		c.Text = &s
		c.Parts = nil
		return nil
	}
	var parts []ContentPart
	if err := json.Unmarshal(data, &parts); err != nil {
		return fmt.Errorf("message content is neither a string nor a part array: %w", err)
	}
	c.Parts = parts
	c.Text = nil
	return nil
}

// ToolCallFunction is the {name, arguments} pair inside a ToolCall.
type ToolCallFunction struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ToolCall is an assistant request to invoke a named function.
type ToolCall struct {
	ID       string           `json:"id"`
	Type     string           `json:"type"`
	Function ToolCallFunction `json:"function"`
}

// ChatMessage is one turn of a ChatRequest's conversation.
type ChatMessage struct {
	Role       Role            `json:"role"`
	Content    *MessageContent `json:"content,omitempty"`
	Name       string          `json:"name,omitempty"`
	ToolCalls  []ToolCall      `json:"tool_calls,omitempty"`
	ToolCallID string          `json:"tool_call_id,omitempty"`
}

// ContentString returns the flattened text content, or "" if absent.
func (m ChatMessage) ContentString() string {
	if m.Content == nil {
		return ""
	}
	return m.Content.String()
}

// StopSequences is either a single string or a list of strings.
type StopSequences struct {
	Values []string
}

func (s StopSequences) MarshalJSON() ([]byte, error) {
	switch len(s.Values) {
	case 0:
		return []byte("null"), nil
	case 1:
		return json.Marshal(s.Values[0])
	default:
		return json.Marshal(s.Values)
	}
}

func (s *StopSequences) UnmarshalJSON(data []byte) error {
	var one string
	if err := json.Unmarshal(data, &one); err == nil {
		if one == "" {
			s.Values = nil
			return nil
		}
		s.Values = []string{one}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return fmt.Errorf("stop is neither a string nor a string array: %w", err)
	}
	s.Values = many
	return nil
}

// ToolFunctionDef describes a callable function's name/description/schema.
type ToolFunctionDef struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

// ToolDef is an OpenAI-shape {type:"function", function:{...}} tool entry.
type ToolDef struct {
	Type     string          `json:"type"`
	Function ToolFunctionDef `json:"function"`
}

// ToolChoice is either the literal strings auto/required/none or a
// {"type":"function","function":{"name":...}} selector object.
type ToolChoice struct {
	Mode         string // "auto" | "required" | "none" | ""
	FunctionName string // set when a specific function is forced
}

func (t ToolChoice) MarshalJSON() ([]byte, error) {
	if t.FunctionName != "" {
		return json.Marshal(map[string]any{
			"type":     "function",
			"function": map[string]string{"name": t.FunctionName},
		})
	}
	if t.Mode == "" {
		return []byte("null"), nil
	}
	return json.Marshal(t.Mode)
}

func (t *ToolChoice) UnmarshalJSON(data []byte) error {
	var mode string
	if err := json.Unmarshal(data, &mode); err == nil {
		t.Mode = mode
		t.FunctionName = ""
		return nil
	}
	var obj struct {
		Type     string `json:"type"`
		Function struct {
			Name string `json:"name"`
		} `json:"function"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("tool_choice is neither a string nor a function selector: %w", err)
	}
	t.FunctionName = obj.Function.Name
	t.Mode = ""
	return nil
}

// StreamOptions mirrors OpenAI's stream_options request field.
type StreamOptions struct {
	IncludeUsage bool `json:"include_usage,omitempty"`
}

// ChatRequest is the canonical inbound chat-completion request.
type ChatRequest struct {
	Model         string         `json:"model"`
	Messages      []ChatMessage  `json:"messages"`
	Temperature   *float64       `json:"temperature,omitempty"`
	TopP          *float64       `json:"top_p,omitempty"`
	MaxTokens     *int           `json:"max_tokens,omitempty"`
	Stream        bool           `json:"stream,omitempty"`
	StreamOptions *StreamOptions `json:"stream_options,omitempty"`
	Stop          *StopSequences `json:"stop,omitempty"`
	Tools         []ToolDef      `json:"tools,omitempty"`
	ToolChoice    *ToolChoice    `json:"tool_choice,omitempty"`
}

// UsageDetails carries the optional cached/reasoning token breakdown.
type UsageDetails struct {
	CachedTokens    int `json:"cached_tokens,omitempty"`
	ReasoningTokens int `json:"reasoning_tokens,omitempty"`
}

// Usage is the canonical token accounting block.
type Usage struct {
	PromptTokens        int           `json:"prompt_tokens"`
	CompletionTokens     int           `json:"completion_tokens"`
	TotalTokens          int           `json:"total_tokens"`
	PromptTokensDetails  *UsageDetails `json:"prompt_tokens_details,omitempty"`
	CompletionTokenDetails *UsageDetails `json:"completion_tokens_details,omitempty"`
}

// NewUsage fills TotalTokens from prompt+completion unless an explicit total
// is supplied, per the invariant in spec §3.
func NewUsage(prompt, completion int, explicitTotal *int) Usage {
	total := prompt + completion
	if explicitTotal != nil {
		total = *explicitTotal
	}
	return Usage{PromptTokens: prompt, CompletionTokens: completion, TotalTokens: total}
}

// ResponseMessage is the assistant message inside a non-streaming choice.
type ResponseMessage struct {
	Role             Role       `json:"role"`
	Content          *string    `json:"content"`
	ReasoningContent *string    `json:"reasoning_content,omitempty"`
	ToolCalls        []ToolCall `json:"tool_calls,omitempty"`
}

// Choice is one completion alternative in a non-streaming response.
type Choice struct {
	Index        int             `json:"index"`
	Message      ResponseMessage `json:"message"`
	FinishReason FinishReason    `json:"finish_reason"`
}

// ChatResponse is the canonical non-streaming chat-completion response.
type ChatResponse struct {
	ID      string   `json:"id"`
	Object  string   `json:"object"`
	Created int64    `json:"created"`
	Model   string   `json:"model"`
	Choices []Choice `json:"choices"`
	Usage   Usage    `json:"usage"`
}

// Delta is the incremental assistant-message fragment inside a ChatChunk.
type Delta struct {
	Role             *string    `json:"role,omitempty"`
	Content          *string    `json:"content,omitempty"`
	ReasoningContent *string    `json:"reasoning_content,omitempty"`
	ToolCalls        []ToolCallDelta `json:"tool_calls,omitempty"`
}

// ToolCallDelta is a streamed fragment of a single tool call.
type ToolCallDelta struct {
	Index    int                   `json:"index"`
	ID       string                `json:"id,omitempty"`
	Type     string                `json:"type,omitempty"`
	Function *ToolCallFunctionDelta `json:"function,omitempty"`
}

// ToolCallFunctionDelta carries a partial name/arguments fragment.
type ToolCallFunctionDelta struct {
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"`
}

// ChunkChoice is one streaming choice fragment.
type ChunkChoice struct {
	Index        int           `json:"index"`
	Delta        Delta         `json:"delta"`
	FinishReason *FinishReason `json:"finish_reason"`
}

// ChatChunk is a single SSE-framed streaming update.
type ChatChunk struct {
	ID      string        `json:"id"`
	Object  string        `json:"object"`
	Created int64         `json:"created"`
	Model   string        `json:"model"`
	Choices []ChunkChoice `json:"choices"`
	Usage   *Usage        `json:"usage,omitempty"`
}

const (
	ObjectChatCompletion      = "chat.completion"
	ObjectChatCompletionChunk = "chat.completion.chunk"
)
