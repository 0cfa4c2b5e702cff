package gwtypes

import (
	"encoding/json"
	"testing"
)

func TestMessageContentMarshalPlainString(t *testing.T) {
	c := NewTextContent("hello")
	b, err := json.Marshal(c)
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != `"hello"` {
		t.Errorf("got %s, want %q", b, `"hello"`)
	}
}

func TestMessageContentMarshalParts(t *testing.T) {
	c := MessageContent{Parts: []ContentPart{{Type: ContentPartText, Text: "hi"}}}
	b, err := json.Marshal(c)
	if err != nil {
		t.Fatal(err)
	}
	var parts []ContentPart
	if err := json.Unmarshal(b, &parts); err != nil {
		t.Fatalf("round trip failed: %v", err)
	}
	if len(parts) != 1 || parts[0].Text != "hi" {
		t.Errorf("got %+v", parts)
	}
}

func TestMessageContentUnmarshalRoundTrip(t *testing.T) {
	var c MessageContent
	if err := json.Unmarshal([]byte(`"plain text"`), &c); err != nil {
		t.Fatal(err)
	}
	if c.String() != "plain text" {
		t.Errorf("String() = %q, want %q", c.String(), "plain text")
	}
	if c.IsEmpty() {
		t.Error("IsEmpty() = true for non-empty content")
	}

	var multi MessageContent
	raw := `[{"type":"text","text":"a"},{"type":"text","text":"b"}]`
	if err := json.Unmarshal([]byte(raw), &multi); err != nil {
		t.Fatal(err)
	}
	if multi.String() != "ab" {
		t.Errorf("String() = %q, want %q", multi.String(), "ab")
	}
}

func TestMessageContentUnmarshalInvalidShapeErrors(t *testing.T) {
	var c MessageContent
	if err := json.Unmarshal([]byte(`42`), &c); err == nil {
		t.Error("expected an error for a non-string, non-array content value")
	}
}

func TestMessageContentIsEmpty(t *testing.T) {
	var c MessageContent
	if !c.IsEmpty() {
		t.Error("zero-value MessageContent should be empty")
	}
}

func TestStopSequencesMarshalVariants(t *testing.T) {
	tests := []struct {
		name string
		in   StopSequences
		want string
	}{
		{"empty", StopSequences{}, "null"},
		{"single", StopSequences{Values: []string{"STOP"}}, `"STOP"`},
		{"multiple", StopSequences{Values: []string{"A", "B"}}, `["A","B"]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := json.Marshal(tt.in)
			if err != nil {
				t.Fatal(err)
			}
			if string(b) != tt.want {
				t.Errorf("got %s, want %s", b, tt.want)
			}
		})
	}
}

func TestStopSequencesUnmarshalVariants(t *testing.T) {
	var single StopSequences
	if err := json.Unmarshal([]byte(`"STOP"`), &single); err != nil {
		t.Fatal(err)
	}
	if len(single.Values) != 1 || single.Values[0] != "STOP" {
		t.Errorf("got %+v", single.Values)
	}

	var many StopSequences
	if err := json.Unmarshal([]byte(`["A","B"]`), &many); err != nil {
		t.Fatal(err)
	}
	if len(many.Values) != 2 {
		t.Errorf("got %+v", many.Values)
	}

	var empty StopSequences
	if err := json.Unmarshal([]byte(`""`), &empty); err != nil {
		t.Fatal(err)
	}
	if empty.Values != nil {
		t.Errorf("empty string should unmarshal to nil Values, got %+v", empty.Values)
	}
}

func TestToolChoiceMarshalModeVsFunction(t *testing.T) {
	auto := ToolChoice{Mode: "auto"}
	b, err := json.Marshal(auto)
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != `"auto"` {
		t.Errorf("got %s, want %q", b, `"auto"`)
	}

	forced := ToolChoice{FunctionName: "get_weather"}
	b, err = json.Marshal(forced)
	if err != nil {
		t.Fatal(err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(b, &decoded); err != nil {
		t.Fatal(err)
	}
	if decoded["type"] != "function" {
		t.Errorf("got %+v", decoded)
	}
}

func TestToolChoiceUnmarshalVariants(t *testing.T) {
	var mode ToolChoice
	if err := json.Unmarshal([]byte(`"required"`), &mode); err != nil {
		t.Fatal(err)
	}
	if mode.Mode != "required" || mode.FunctionName != "" {
		t.Errorf("got %+v", mode)
	}

	var fn ToolChoice
	raw := `{"type":"function","function":{"name":"search"}}`
	if err := json.Unmarshal([]byte(raw), &fn); err != nil {
		t.Fatal(err)
	}
	if fn.FunctionName != "search" {
		t.Errorf("FunctionName = %q, want %q", fn.FunctionName, "search")
	}
}

func TestNewUsageSumsWhenNoExplicitTotal(t *testing.T) {
	u := NewUsage(10, 5, nil)
	if u.TotalTokens != 15 {
		t.Errorf("TotalTokens = %d, want 15", u.TotalTokens)
	}
}

func TestNewUsageHonorsExplicitTotal(t *testing.T) {
	explicit := 100
	u := NewUsage(10, 5, &explicit)
	if u.TotalTokens != 100 {
		t.Errorf("TotalTokens = %d, want 100", u.TotalTokens)
	}
}

func TestChatMessageContentStringNilContent(t *testing.T) {
	m := ChatMessage{Role: RoleUser}
	if m.ContentString() != "" {
		t.Errorf("ContentString() = %q, want empty", m.ContentString())
	}
}
