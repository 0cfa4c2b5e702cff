// Package transform defines the ProviderTransformer and StreamState
// contracts every dialect implements, plus the shared streaming pipeline
// that drives an arbitrary StreamState from raw SSE bytes (spec §4.4).
package transform

import (
	"github.com/dshills/llmgateway/internal/gwtypes"
	"github.com/dshills/llmgateway/internal/sseparser"
)

// ResponseMeta carries the out-of-band context a transformer needs to
// build a ChatResponse/ChatChunk: the model the caller asked for and the
// provider id, used for error attribution.
type ResponseMeta struct {
	Model    string
	Provider string
}

// ProviderTransformer converts between the canonical gwtypes shapes and one
// upstream dialect's wire format.
type ProviderTransformer interface {
	// TransformRequest builds the provider-native JSON body for req.
	TransformRequest(req gwtypes.ChatRequest) ([]byte, error)

	// TransformResponse parses a non-streaming provider-native JSON body
	// into the canonical ChatResponse shape.
	TransformResponse(body []byte, meta ResponseMeta) (*gwtypes.ChatResponse, error)

	// NewStreamState creates a fresh per-request StreamState.
	NewStreamState(meta ResponseMeta) StreamState

	SupportsModel(model string) bool
	SupportedModels() []string
	DefaultMaxTokens() int
	ProviderID() string
	ProviderName() string
	MapFinishReason(native string) gwtypes.FinishReason
}

// StreamState is a per-request state machine translating one dialect's SSE
// events into zero or more canonical ChatChunks. Step is called once per
// decoded sseparser.Event and returns the chunks (if any) that event
// produced, or an error on an invariant violation / in-band upstream error.
type StreamState interface {
	Step(event sseparser.Event) ([]gwtypes.ChatChunk, error)
}

// RunStream feeds raw bytes through an sseparser.Parser and a StreamState,
// returning every chunk produced. It is a convenience used by tests;
// providerhttp.Client instead steps the parser incrementally as bytes
// arrive off the wire so chunks reach the client as soon as they're decoded.
func RunStream(state StreamState, chunks [][]byte) ([]gwtypes.ChatChunk, error) {
	parser := sseparser.New()
	var out []gwtypes.ChatChunk

	for _, chunk := range chunks {
		events, err := parser.Feed(chunk)
		if err != nil {
			return out, err
		}
		for _, ev := range events {
			if ev.Kind == sseparser.EventDone {
				return out, nil
			}
			produced, err := state.Step(ev)
			if err != nil {
				return out, err
			}
			out = append(out, produced...)
		}
	}

	events, err := parser.Flush()
	if err != nil {
		return out, err
	}
	for _, ev := range events {
		if ev.Kind == sseparser.EventDone {
			return out, nil
		}
		produced, err := state.Step(ev)
		if err != nil {
			return out, err
		}
		out = append(out, produced...)
	}
	return out, nil
}
