// Package router implements provider registration and request dispatch:
// prefix-based model routing, strategy-ordered candidate selection,
// non-streaming fallback, and streaming dispatch without mid-stream
// fallback (spec §4.7).
package router

import (
	"context"
	"errors"
	"math/rand"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/dshills/llmgateway/internal/gwerrors"
	"github.com/dshills/llmgateway/internal/gwtypes"
	"github.com/dshills/llmgateway/internal/health"
)

// StreamEvent is one item off a Provider's Stream channel: either a decoded
// chunk, or a terminal error (e.g. an in-band upstream error event, or the
// SSE parser's infinite-loop guard). Already-emitted chunks are never
// rewound when an error arrives (spec §7); Err, when non-nil, is always the
// last value sent before the channel closes.
type StreamEvent struct {
	Chunk gwtypes.ChatChunk
	Err   error
}

// Provider is the capability a dispatchable backend exposes to the router.
// providerhttp.Client implements this by wrapping a transform.ProviderTransformer
// and an HTTP sender.
type Provider interface {
	ID() string
	Name() string
	SupportsModel(model string) bool
	SupportedModels() []string
	Chat(ctx context.Context, req gwtypes.ChatRequest) (*gwtypes.ChatResponse, error)
	Stream(ctx context.Context, req gwtypes.ChatRequest) (<-chan StreamEvent, error)
	HealthCheck(ctx context.Context) error
}

// Strategy selects how candidates are reordered after prefix-based selection.
type Strategy int

const (
	Priority Strategy = iota
	RoundRobin
	LeastUsed
	Random
)

type entry struct {
	provider Provider
	breaker  *health.CircuitBreaker
	stats    *Stats
}

// Router holds registered providers and dispatches chat requests to them.
type Router struct {
	mu       sync.Mutex
	order    []string
	entries  map[string]*entry
	strategy Strategy
	rrCount  uint64
	rng      *rand.Rand

	metrics *health.Metrics
	tracer  trace.Tracer
}

// New returns an empty Router using the given strategy. tracer/metrics may
// be nil to disable tracing/metrics (e.g. in unit tests).
func New(strategy Strategy, tracer trace.Tracer, metrics *health.Metrics) *Router {
	return &Router{
		entries:  make(map[string]*entry),
		strategy: strategy,
		rng:      rand.New(rand.NewSource(1)),
		tracer:   tracer,
		metrics:  metrics,
	}
}

// Register adds or replaces a provider. Re-registering an id replaces the
// entry in place, preserving the original registration-order position.
func (r *Router) Register(p Provider) {
	r.RegisterWithBreaker(p, health.DefaultConfig())
}

// RegisterWithBreaker registers p with a circuit breaker tuned by cfg,
// for callers that configure breaker thresholds per deployment rather than
// accepting health.DefaultConfig().
func (r *Router) RegisterWithBreaker(p Provider, cfg health.Config) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := p.ID()
	if _, exists := r.entries[id]; !exists {
		r.order = append(r.order, id)
	}
	r.entries[id] = &entry{provider: p, breaker: health.New(cfg), stats: &Stats{}}
}

// Breaker returns the circuit breaker for a registered provider id, or nil.
func (r *Router) Breaker(id string) *health.CircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[id]; ok {
		return e.breaker
	}
	return nil
}

// Stats returns a snapshot of a registered provider's stats, or the zero
// value if the id is unknown.
func (r *Router) Stats(id string) StatsSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[id]; ok {
		return e.stats.Snapshot()
	}
	return StatsSnapshot{}
}

// resolvePrefix maps a model identifier to a provider id per the table in
// spec §4.7. It returns "" when no prefix matches.
func resolvePrefix(model string) string {
	switch {
	case strings.HasPrefix(model, "litellm:"):
		return "litellm"
	case strings.HasPrefix(model, "kiro:"):
		return "kiro"
	case strings.HasPrefix(model, "claude-"), strings.HasPrefix(model, "claude_"):
		return "claude"
	case strings.HasPrefix(model, "gemini-"), strings.HasPrefix(model, "gemini_"):
		return "gemini"
	case strings.HasPrefix(model, "gpt-"), strings.HasPrefix(model, "o1"), strings.HasPrefix(model, "o3"):
		return "copilot"
	default:
		return ""
	}
}

// candidates builds the prefix-first, registration-order-stable candidate
// list, filtered to providers that both support the model and can_execute,
// then reordered per strategy.
func (r *Router) candidates(model string) []*entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	var list []*entry
	seen := make(map[string]bool)

	if id := resolvePrefix(model); id != "" {
		if e, ok := r.entries[id]; ok && e.provider.SupportsModel(model) && e.breaker.CanExecute() {
			list = append(list, e)
			seen[id] = true
		}
	}
	for _, id := range r.order {
		if seen[id] {
			continue
		}
		e := r.entries[id]
		if e.provider.SupportsModel(model) && e.breaker.CanExecute() {
			list = append(list, e)
		}
	}

	return r.reorder(list)
}

func (r *Router) reorder(list []*entry) []*entry {
	switch r.strategy {
	case RoundRobin:
		if len(list) == 0 {
			return list
		}
		n := atomic.AddUint64(&r.rrCount, 1) - 1
		shift := int(n % uint64(len(list)))
		return append(append([]*entry{}, list[shift:]...), list[:shift]...)
	case LeastUsed:
		out := append([]*entry{}, list...)
		for i := 1; i < len(out); i++ {
			for j := i; j > 0 && out[j].stats.Snapshot().Total < out[j-1].stats.Snapshot().Total; j-- {
				out[j], out[j-1] = out[j-1], out[j]
			}
		}
		return out
	case Random:
		out := append([]*entry{}, list...)
		r.rng.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
		return out
	default: // Priority
		return list
	}
}

// Dispatch tries each candidate in order for a non-streaming chat request,
// recording breaker/stats outcomes and falling back to the next candidate
// on failure (spec §4.7).
func (r *Router) Dispatch(ctx context.Context, req gwtypes.ChatRequest) (*gwtypes.ChatResponse, error) {
	cands := r.candidates(req.Model)
	if len(cands) == 0 {
		return nil, &gwerrors.AllFailedError{}
	}

	var lastErr error
	for _, e := range cands {
		resp, err := r.tryChat(ctx, e, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err
	}
	return nil, &gwerrors.AllFailedError{LastErr: lastErr}
}

func (r *Router) tryChat(ctx context.Context, e *entry, req gwtypes.ChatRequest) (*gwtypes.ChatResponse, error) {
	ctx, span := r.startSpan(ctx, "router.dispatch", e.provider.ID(), req.Model)
	defer span.End()

	start := time.Now()
	resp, err := e.provider.Chat(ctx, req)
	latency := time.Since(start)

	if err != nil {
		e.breaker.RecordFailure()
		e.stats.RecordFailure(latency)
		r.observeMetrics(e.provider.ID(), false)
		span.SetStatus(codes.Error, err.Error())
		span.RecordError(err)
		return nil, err
	}

	e.breaker.RecordSuccess()
	e.stats.RecordSuccess(latency)
	r.observeMetrics(e.provider.ID(), true)
	return resp, nil
}

// Stream selects one candidate and opens its stream. Unlike Dispatch, a
// stream once started is never spliced to a fallback candidate; only the
// initial connection failure triggers trying the next candidate, except a
// *gwerrors.RateLimitedError, which is returned to the caller at once.
func (r *Router) Stream(ctx context.Context, req gwtypes.ChatRequest) (<-chan StreamEvent, error) {
	cands := r.candidates(req.Model)
	if len(cands) == 0 {
		return nil, &gwerrors.AllFailedError{}
	}

	var lastErr error
	for _, e := range cands {
		ctx, span := r.startSpan(ctx, "router.stream", e.provider.ID(), req.Model)
		ch, err := e.provider.Stream(ctx, req)
		if err != nil {
			e.breaker.RecordFailure()
			e.stats.RecordFailure(0)
			r.observeMetrics(e.provider.ID(), false)
			span.SetStatus(codes.Error, err.Error())
			span.RecordError(err)
			span.End()

			var rateLimited *gwerrors.RateLimitedError
			if errors.As(err, &rateLimited) {
				return nil, err
			}

			lastErr = err
			continue
		}
		e.breaker.RecordSuccess()
		e.stats.RecordSuccess(0)
		r.observeMetrics(e.provider.ID(), true)
		span.End()
		return ch, nil
	}
	return nil, &gwerrors.AllFailedError{LastErr: lastErr}
}

// HealthCheckAll runs every registered provider's health check concurrently
// and records success/failure on each breaker (spec §4.7).
func (r *Router) HealthCheckAll(ctx context.Context) error {
	r.mu.Lock()
	entries := make([]*entry, 0, len(r.order))
	for _, id := range r.order {
		entries = append(entries, r.entries[id])
	}
	r.mu.Unlock()

	g, ctx := errgroup.WithContext(ctx)
	for _, e := range entries {
		e := e
		g.Go(func() error {
			if err := e.provider.HealthCheck(ctx); err != nil {
				e.breaker.RecordFailure()
			} else {
				e.breaker.RecordSuccess()
			}
			return nil
		})
	}
	return g.Wait()
}

func (r *Router) startSpan(ctx context.Context, name, providerID, model string) (context.Context, trace.Span) {
	if r.tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return r.tracer.Start(ctx, name, trace.WithAttributes(
		attribute.String("llmgateway.provider", providerID),
		attribute.String("llmgateway.model", model),
	))
}

func (r *Router) observeMetrics(providerID string, success bool) {
	if r.metrics == nil {
		return
	}
	r.metrics.Observe(providerID, success, r.Breaker(providerID).State())
}

// ModelInfo is one entry of the GET /v1/models catalog (spec §6.1).
type ModelInfo struct {
	ID      string
	OwnedBy string
}

// Models lists every model every registered provider advertises, in
// registration order.
func (r *Router) Models() []ModelInfo {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []ModelInfo
	for _, id := range r.order {
		e := r.entries[id]
		for _, m := range e.provider.SupportedModels() {
			out = append(out, ModelInfo{ID: m, OwnedBy: e.provider.ID()})
		}
	}
	return out
}
