// Package providerhttp implements the per-provider HTTP transport of
// spec §4.5: auth header composition, endpoint fallback, status
// classification and the streaming byte pump that drives a
// transform.StreamState. Each Client satisfies router.Provider.
package providerhttp

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/dshills/llmgateway/internal/gwerrors"
	"github.com/dshills/llmgateway/internal/gwtypes"
	"github.com/dshills/llmgateway/internal/router"
	"github.com/dshills/llmgateway/internal/sseparser"
	"github.com/dshills/llmgateway/internal/transform"
	"github.com/dshills/llmgateway/internal/transformutil"
)

// TokenSource supplies a bearer token on demand, satisfied by the value
// StaticToken returns.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// staticToken is a TokenSource that always returns the same value, used for
// providers whose credential doesn't rotate within process lifetime.
type staticToken string

func (s staticToken) Token(context.Context) (string, error) { return string(s), nil }

// StaticToken wraps a fixed bearer token as a TokenSource.
func StaticToken(token string) TokenSource { return staticToken(token) }

// PathFunc builds the request path (and query string) for a model, given
// whether the request streams. Anthropic/Copilot/LiteLLM use a fixed path;
// Gemini's path embeds the model name and a differing streaming suffix.
type PathFunc func(model string, streaming bool) string

// FixedPath returns a PathFunc that ignores model/streaming.
func FixedPath(path string) PathFunc {
	return func(string, bool) string { return path }
}

// HeaderFunc sets provider-specific headers (auth, versioning) on an
// outbound request. model is the canonical model id of the request being
// sent.
type HeaderFunc func(ctx context.Context, req *http.Request, model string) error

// Config wires one provider's transport.
type Config struct {
	ID          string
	Name        string
	Transformer transform.ProviderTransformer
	// BaseURLs is tried in order; 403/404 responses and connect/timeout
	// network errors fall through to the next entry (spec §4.5).
	BaseURLs    []string
	Path        PathFunc
	SetHeaders  HeaderFunc
	HTTPClient  *http.Client
}

// Client is a spec-§4.5-compliant transport for a single upstream provider.
type Client struct {
	cfg Config
}

// New returns a Client. cfg.HTTPClient defaults to DefaultHTTPClient() if nil.
func New(cfg Config) *Client {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = DefaultHTTPClient()
	}
	if cfg.Path == nil {
		cfg.Path = FixedPath("")
	}
	return &Client{cfg: cfg}
}

// DefaultHTTPClient clones http.DefaultTransport with a response-header
// timeout, matching the teacher pack's forward-proxy transport tuning.
func DefaultHTTPClient() *http.Client {
	t := http.DefaultTransport.(*http.Transport).Clone()
	t.ResponseHeaderTimeout = 30 * time.Second
	return &http.Client{Transport: t}
}

var _ router.Provider = (*Client)(nil)

func (c *Client) ID() string                       { return c.cfg.ID }
func (c *Client) Name() string                      { return c.cfg.Name }
func (c *Client) SupportsModel(model string) bool   { return c.cfg.Transformer.SupportsModel(model) }
func (c *Client) SupportedModels() []string         { return c.cfg.Transformer.SupportedModels() }

// Chat issues a non-streaming request, trying each configured base URL in
// fallback order, and returns the transformed canonical response.
func (c *Client) Chat(ctx context.Context, req gwtypes.ChatRequest) (*gwtypes.ChatResponse, error) {
	req.Stream = false
	body, err := c.cfg.Transformer.TransformRequest(req)
	if err != nil {
		return nil, &gwerrors.InvalidRequestError{Message: err.Error()}
	}

	_, respBody, err := c.send(ctx, body, req.Model, false)
	if err != nil {
		return nil, err
	}

	meta := transform.ResponseMeta{Model: req.Model, Provider: c.cfg.ID}
	return c.cfg.Transformer.TransformResponse(respBody, meta)
}

// Stream issues a streaming request and returns a channel of decoded
// chunks. Once the stream is open, no fallback to another base URL or
// provider is attempted (spec §4.7); mid-stream failures surface as a
// terminal router.StreamEvent.Err.
func (c *Client) Stream(ctx context.Context, req gwtypes.ChatRequest) (<-chan router.StreamEvent, error) {
	req.Stream = true
	body, err := c.cfg.Transformer.TransformRequest(req)
	if err != nil {
		return nil, &gwerrors.InvalidRequestError{Message: err.Error()}
	}

	httpResp, err := c.sendOnce(ctx, body, req.Model, true)
	if err != nil {
		return nil, err
	}

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		defer httpResp.Body.Close()
		raw, _ := io.ReadAll(httpResp.Body)
		return nil, classifyStatus(c.cfg.ID, httpResp, raw)
	}

	meta := transform.ResponseMeta{Model: req.Model, Provider: c.cfg.ID}
	state := c.cfg.Transformer.NewStreamState(meta)

	out := make(chan router.StreamEvent)
	go c.pump(httpResp.Body, state, out)
	return out, nil
}

// pump reads SSE frames off body as they arrive, stepping state for each
// decoded event and forwarding produced chunks, until EOF, [DONE], or an
// error (spec §4.2/§4.4 shared streaming pipeline, driven incrementally
// instead of transform.RunStream's buffered variant so chunks reach the
// caller as soon as they're decoded).
func (c *Client) pump(body io.ReadCloser, state transform.StreamState, out chan<- router.StreamEvent) {
	defer close(out)
	defer body.Close()

	parser := sseparser.New()
	buf := make([]byte, 4096)

	emit := func(events []sseparser.Event) bool {
		for _, ev := range events {
			if ev.Kind == sseparser.EventDone {
				return false
			}
			chunks, err := state.Step(ev)
			for _, chunk := range chunks {
				out <- router.StreamEvent{Chunk: chunk}
			}
			if err != nil {
				out <- router.StreamEvent{Err: err}
				return false
			}
		}
		return true
	}

	for {
		n, err := body.Read(buf)
		if n > 0 {
			events, perr := parser.Feed(buf[:n])
			if perr != nil {
				out <- router.StreamEvent{Err: perr}
				return
			}
			if !emit(events) {
				return
			}
		}
		if err != nil {
			if err != io.EOF {
				out <- router.StreamEvent{Err: &gwerrors.StreamError{Message: err.Error()}}
				return
			}
			events, ferr := parser.Flush()
			if ferr != nil {
				out <- router.StreamEvent{Err: ferr}
				return
			}
			emit(events)
			return
		}
	}
}

// HealthCheck performs the cheapest viable request to confirm the upstream
// is reachable: a GET against the first base URL. Any HTTP response, of
// whatever status, counts as healthy; only a transport error fails.
func (c *Client) HealthCheck(ctx context.Context) error {
	if len(c.cfg.BaseURLs) == 0 {
		return fmt.Errorf("provider %q has no base URL configured", c.cfg.ID)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURLs[0], nil)
	if err != nil {
		return err
	}
	resp, err := c.cfg.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return nil
}

// send performs the fallback-aware POST and returns the response body read
// to completion (used by the non-streaming path).
func (c *Client) send(ctx context.Context, body []byte, model string, streaming bool) (*http.Response, []byte, error) {
	resp, err := c.sendOnce(ctx, body, model, streaming)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, &gwerrors.StreamError{Message: err.Error()}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, nil, classifyStatus(c.cfg.ID, resp, raw)
	}
	return resp, raw, nil
}

// sendOnce tries each base URL in order, falling through on 403/404 and on
// connect/timeout network errors, and returns the first response that
// either succeeds or fails for a non-fallback reason (spec §4.5).
func (c *Client) sendOnce(ctx context.Context, body []byte, model string, streaming bool) (*http.Response, error) {
	if len(c.cfg.BaseURLs) == 0 {
		return nil, fmt.Errorf("provider %q has no base URL configured", c.cfg.ID)
	}

	var lastErr error
	for i, base := range c.cfg.BaseURLs {
		url := base + c.cfg.Path(model, streaming)
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("content-type", "application/json")
		if streaming {
			req.Header.Set("Accept", "text/event-stream")
		}
		if c.cfg.SetHeaders != nil {
			if err := c.cfg.SetHeaders(ctx, req, model); err != nil {
				return nil, err
			}
		}

		resp, err := c.cfg.HTTPClient.Do(req)
		if err != nil {
			if isFallthroughNetErr(err) && i < len(c.cfg.BaseURLs)-1 {
				lastErr = err
				continue
			}
			return nil, err
		}

		if (resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusNotFound) && i < len(c.cfg.BaseURLs)-1 {
			resp.Body.Close()
			lastErr = fmt.Errorf("endpoint %q returned %d", url, resp.StatusCode)
			continue
		}
		return resp, nil
	}
	return nil, lastErr
}

// isFallthroughNetErr reports whether err is a connect/timeout/request-level
// network failure that should trigger trying the next base URL, rather than
// propagating immediately (spec §4.5). http.Client.Do wraps transport-level
// failures in *url.Error, which itself satisfies net.Error.
func isFallthroughNetErr(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr)
}

// classifyStatus maps a non-2xx response to the gateway's tagged error
// taxonomy per spec §4.5's status table.
func classifyStatus(provider string, resp *http.Response, body []byte) error {
	switch resp.StatusCode {
	case http.StatusUnauthorized:
		return &gwerrors.NoTokenError{Provider: provider, Reason: "upstream returned 401"}
	case http.StatusTooManyRequests:
		retryAfter := transformutil.ParseRateLimitHeaders(resp.Header, time.Now())
		return &gwerrors.RateLimitedError{Provider: provider, RetryAfter: retryAfter}
	case http.StatusForbidden, http.StatusNotFound:
		return &gwerrors.APIError{Provider: provider, Status: resp.StatusCode, Body: string(body)}
	default:
		if cw := transformutil.DetectContextWindowError(provider, resp.StatusCode, string(body)); cw != nil {
			return cw
		}
		return &gwerrors.APIError{Provider: provider, Status: resp.StatusCode, Body: string(body)}
	}
}
