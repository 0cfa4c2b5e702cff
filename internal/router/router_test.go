package router

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/llmgateway/internal/gwerrors"
	"github.com/dshills/llmgateway/internal/gwtypes"
	"github.com/dshills/llmgateway/internal/health"
)

type fakeProvider struct {
	id        string
	models    []string
	failN     int // number of leading Chat calls that fail
	streamErr error
	calls     int
	healthy   bool
}

func (f *fakeProvider) ID() string   { return f.id }
func (f *fakeProvider) Name() string { return f.id }

func (f *fakeProvider) SupportsModel(model string) bool {
	for _, m := range f.models {
		if m == model || strings.HasPrefix(model, m) {
			return true
		}
	}
	return false
}

func (f *fakeProvider) SupportedModels() []string { return f.models }

func (f *fakeProvider) Chat(ctx context.Context, req gwtypes.ChatRequest) (*gwtypes.ChatResponse, error) {
	f.calls++
	if f.calls <= f.failN {
		return nil, errors.New("upstream failure")
	}
	return &gwtypes.ChatResponse{ID: "resp-" + f.id, Model: req.Model}, nil
}

func (f *fakeProvider) Stream(ctx context.Context, req gwtypes.ChatRequest) (<-chan StreamEvent, error) {
	f.calls++
	if f.streamErr != nil {
		return nil, f.streamErr
	}
	if f.calls <= f.failN {
		return nil, errors.New("upstream failure")
	}
	ch := make(chan StreamEvent, 1)
	ch <- StreamEvent{Chunk: gwtypes.ChatChunk{ID: "chunk-" + f.id, Model: req.Model}}
	close(ch)
	return ch, nil
}

func (f *fakeProvider) HealthCheck(ctx context.Context) error {
	if f.healthy {
		return nil
	}
	return errors.New("unhealthy")
}

func TestResolvePrefix(t *testing.T) {
	cases := map[string]string{
		"litellm:gpt-4o":  "litellm",
		"kiro:claude-3":   "kiro",
		"claude-3-opus":   "claude",
		"claude_3_opus":   "claude",
		"gemini-1.5-pro":  "gemini",
		"gpt-4o":          "copilot",
		"o1-preview":      "copilot",
		"o3-mini":         "copilot",
		"mystery-model":   "",
	}
	for model, want := range cases {
		assert.Equal(t, want, resolvePrefix(model), model)
	}
}

func TestDispatchPrefixFallbackAndBreakerTrip(t *testing.T) {
	claude := &fakeProvider{id: "claude", models: []string{"claude-"}, failN: 10}
	gemini := &fakeProvider{id: "gemini", models: []string{"claude-", "gemini-"}}

	r := New(Priority, nil, nil)
	r.Register(claude)
	r.Register(gemini)

	req := gwtypes.ChatRequest{Model: "claude-3-opus"}

	// claude is prefix-preferred but always fails; gemini also supports the
	// model and should be tried as fallback.
	resp, err := r.Dispatch(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "resp-gemini", resp.ID)

	resp, err = r.Dispatch(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "resp-gemini", resp.ID)

	// Third call trips claude's breaker open (failure threshold 3).
	_, err = r.Dispatch(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, health.Open, r.Breaker("claude").State())

	// claude is now excluded from candidates outright.
	resp, err = r.Dispatch(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "resp-gemini", resp.ID)
	assert.Equal(t, 3, claude.calls, "breaker should stop further attempts against claude")
}

func TestDispatchAllFailed(t *testing.T) {
	p := &fakeProvider{id: "claude", models: []string{"claude-"}, failN: 100}
	r := New(Priority, nil, nil)
	r.Register(p)

	_, err := r.Dispatch(context.Background(), gwtypes.ChatRequest{Model: "claude-3-opus"})
	require.Error(t, err)
	var allFailed interface{ Unwrap() error }
	require.ErrorAs(t, err, &allFailed)
}

func TestDispatchNoCandidates(t *testing.T) {
	r := New(Priority, nil, nil)
	_, err := r.Dispatch(context.Background(), gwtypes.ChatRequest{Model: "unknown-model"})
	require.Error(t, err)
}

func TestRegisterPreservesOrderOnReRegister(t *testing.T) {
	r := New(Priority, nil, nil)
	first := &fakeProvider{id: "claude", models: []string{"claude-"}}
	second := &fakeProvider{id: "gemini", models: []string{"gemini-"}}
	r.Register(first)
	r.Register(second)

	replacement := &fakeProvider{id: "claude", models: []string{"claude-"}}
	r.Register(replacement)

	assert.Equal(t, []string{"claude", "gemini"}, r.order)
}

func TestStreamNoMidStreamFallback(t *testing.T) {
	p := &fakeProvider{id: "claude", models: []string{"claude-"}}
	r := New(Priority, nil, nil)
	r.Register(p)

	ch, err := r.Stream(context.Background(), gwtypes.ChatRequest{Model: "claude-3-opus"})
	require.NoError(t, err)
	ev := <-ch
	require.NoError(t, ev.Err)
	assert.Equal(t, "chunk-claude", ev.Chunk.ID)
}

func TestStreamRateLimitedSurfacesWithoutTryingNextCandidate(t *testing.T) {
	rateLimited := &fakeProvider{id: "claude", models: []string{"claude-"}, streamErr: &gwerrors.RateLimitedError{Provider: "claude"}}
	fallback := &fakeProvider{id: "claude-backup", models: []string{"claude-"}}

	r := New(Priority, nil, nil)
	r.Register(rateLimited)
	r.Register(fallback)

	_, err := r.Stream(context.Background(), gwtypes.ChatRequest{Model: "claude-3-opus"})
	var rl *gwerrors.RateLimitedError
	require.ErrorAs(t, err, &rl)
	assert.Equal(t, 0, fallback.calls, "fallback candidate must not be tried on a rate-limited stream")
}

func TestHealthCheckAllRecordsBreakerOutcomes(t *testing.T) {
	healthy := &fakeProvider{id: "claude", models: []string{"claude-"}, healthy: true}
	unhealthy := &fakeProvider{id: "gemini", models: []string{"gemini-"}, healthy: false}

	r := New(Priority, nil, nil)
	r.Register(healthy)
	r.Register(unhealthy)

	require.NoError(t, r.HealthCheckAll(context.Background()))
	assert.Equal(t, health.Closed, r.Breaker("claude").State())
	assert.Equal(t, health.Closed, r.Breaker("gemini").State(), "single failure should not trip the breaker")
}
