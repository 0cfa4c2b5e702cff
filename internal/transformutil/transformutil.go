// Package transformutil holds the dialect-independent request/response
// conversion helpers shared by every provider transformer (spec §4.3).
package transformutil

import (
	"encoding/json"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/dshills/llmgateway/internal/gwerrors"
	"github.com/dshills/llmgateway/internal/gwtypes"
)

// ExtractSystemMessages joins the text of every system-role message in
// order with "\n\n" and returns ("", false) if none carried non-empty text.
func ExtractSystemMessages(messages []gwtypes.ChatMessage) (string, bool) {
	var parts []string
	for _, m := range messages {
		if m.Role != gwtypes.RoleSystem {
			continue
		}
		if text := m.ContentString(); text != "" {
			parts = append(parts, text)
		}
	}
	if len(parts) == 0 {
		return "", false
	}
	return strings.Join(parts, "\n\n"), true
}

var toolCallIDSanitizeRe = regexp.MustCompile(`[^A-Za-z0-9_-]`)

// SanitizeToolCallID replaces any character outside [A-Za-z0-9_-] with '_'.
func SanitizeToolCallID(id string) string {
	return toolCallIDSanitizeRe.ReplaceAllString(id, "_")
}

// ImageSource is the normalized form of an image reference.
type ImageSource struct {
	Kind      string // "base64" | "url"
	MediaType string
	Data      string // base64 payload, or the raw URL
}

// ParseImageURL decodes a ContentPart's image_url into its dialect-neutral
// (kind, mediaType, data) triple per spec §4.3.
func ParseImageURL(url string) ImageSource {
	const prefix = "data:"
	if strings.HasPrefix(url, prefix) {
		rest := url[len(prefix):]
		semi := strings.IndexByte(rest, ';')
		comma := strings.IndexByte(rest, ',')
		if semi >= 0 && comma > semi && strings.HasPrefix(rest[semi:], ";base64,") {
			mediaType := rest[:semi]
			data := rest[comma+1:]
			return ImageSource{Kind: "base64", MediaType: mediaType, Data: data}
		}
	}
	return ImageSource{Kind: "url", MediaType: "image/png", Data: url}
}

// MapFinishReason normalizes a provider-native stop reason to OpenAI's
// finish_reason vocabulary (spec §4.3). Unknown values map to "stop".
func MapFinishReason(native string) gwtypes.FinishReason {
	switch native {
	case "end_turn", "stop_sequence", "STOP":
		return gwtypes.FinishStop
	case "max_tokens", "MAX_TOKENS":
		return gwtypes.FinishLength
	case "tool_use", "TOOL_USE":
		return gwtypes.FinishToolCalls
	case "SAFETY", "RECITATION":
		return gwtypes.FinishContentFilter
	default:
		return gwtypes.FinishStop
	}
}

// contextWindowPatterns are matched case-insensitively against a 400 body.
var contextWindowPatterns = []string{
	"context_length_exceeded",
	"prompt is too long",
	"maximum context length",
	"token limit",
	"too many tokens",
	"input is too long",
	"exceeds the maximum",
	"resource_exhausted",
}

// DetectContextWindowError classifies a 400 response whose body matches a
// known context-window-exceeded pattern (spec §4.3).
func DetectContextWindowError(provider string, status int, body string) *gwerrors.ContextWindowExceededError {
	if status != http.StatusBadRequest {
		return nil
	}
	lower := strings.ToLower(body)
	for _, pat := range contextWindowPatterns {
		if strings.Contains(lower, strings.ToLower(pat)) {
			return &gwerrors.ContextWindowExceededError{Provider: provider, Message: body}
		}
	}
	return nil
}

// ParseRateLimitHeaders extracts a retry-after duration from provider
// response headers per spec §4.3. Retry-After wins if present; otherwise
// Anthropic's "anthropic-ratelimit-*-reset" RFC3339 timestamps are
// converted to a duration from now. OpenAI-style x-ratelimit-* headers
// carry no duration and are ignored here (passed through verbatim by the
// caller if it wants them).
func ParseRateLimitHeaders(h http.Header, now time.Time) time.Duration {
	if v := h.Get("Retry-After"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil {
			return time.Duration(secs) * time.Second
		}
		if t, err := time.Parse(time.RFC1123, v); err == nil {
			if d := t.Sub(now); d > 0 {
				return d
			}
		}
	}

	for key, vals := range h {
		lk := strings.ToLower(key)
		if !strings.HasPrefix(lk, "anthropic-ratelimit-") || !strings.HasSuffix(lk, "-reset") {
			continue
		}
		if len(vals) == 0 {
			continue
		}
		t, err := time.Parse(time.RFC3339, vals[0])
		if err != nil {
			continue
		}
		if d := t.Sub(now); d > 0 {
			return d
		}
	}

	return 0
}

// ToolsToAnthropic converts canonical tool definitions to Anthropic's
// {name, description?, input_schema} shape.
func ToolsToAnthropic(tools []gwtypes.ToolDef) []map[string]any {
	out := make([]map[string]any, 0, len(tools))
	for _, t := range tools {
		schema := t.Function.Parameters
		var inputSchema any
		if len(schema) == 0 {
			inputSchema = map[string]any{"type": "object", "properties": map[string]any{}}
		} else {
			var parsed any
			if err := json.Unmarshal(schema, &parsed); err == nil {
				inputSchema = parsed
			} else {
				inputSchema = map[string]any{"type": "object", "properties": map[string]any{}}
			}
		}
		entry := map[string]any{"name": t.Function.Name, "input_schema": inputSchema}
		if t.Function.Description != "" {
			entry["description"] = t.Function.Description
		}
		out = append(out, entry)
	}
	return out
}

// ToolsToGoogle wraps canonical tool definitions in a single
// {functionDeclarations:[...]} entry.
func ToolsToGoogle(tools []gwtypes.ToolDef) []map[string]any {
	if len(tools) == 0 {
		return nil
	}
	decls := make([]map[string]any, 0, len(tools))
	for _, t := range tools {
		decl := map[string]any{"name": t.Function.Name}
		if t.Function.Description != "" {
			decl["description"] = t.Function.Description
		}
		if len(t.Function.Parameters) > 0 {
			var parsed any
			if err := json.Unmarshal(t.Function.Parameters, &parsed); err == nil {
				decl["parameters"] = parsed
			}
		}
		decls = append(decls, decl)
	}
	return []map[string]any{{"functionDeclarations": decls}}
}

// ToolChoiceToAnthropic converts a canonical tool_choice to Anthropic's
// {type,name?} shape; disable_parallel_tool_use is never set. Returns nil
// if there is nothing to convert.
func ToolChoiceToAnthropic(tc *gwtypes.ToolChoice) map[string]any {
	if tc == nil {
		return nil
	}
	if tc.FunctionName != "" {
		return map[string]any{"type": "tool", "name": tc.FunctionName}
	}
	switch tc.Mode {
	case "auto":
		return map[string]any{"type": "auto"}
	case "required":
		return map[string]any{"type": "any"}
	case "none":
		return map[string]any{"type": "none"}
	default:
		return nil
	}
}

// ToolChoiceToGoogle converts a canonical tool_choice to Google's
// {mode, allowed_function_names?} shape.
func ToolChoiceToGoogle(tc *gwtypes.ToolChoice) map[string]any {
	if tc == nil {
		return nil
	}
	if tc.FunctionName != "" {
		return map[string]any{"mode": "ANY", "allowed_function_names": []string{tc.FunctionName}}
	}
	switch tc.Mode {
	case "auto":
		return map[string]any{"mode": "AUTO"}
	case "required":
		return map[string]any{"mode": "ANY"}
	case "none":
		return map[string]any{"mode": "NONE"}
	default:
		return nil
	}
}
