// Command gateway wires configuration, provider transports, the Kiro auth
// subsystem, and the router into a running process. HTTP routing and
// middleware are out of scope (spec.md §1): this composition root exercises
// the dispatch/health-sweep/metrics machinery standalone and exposes
// Prometheus metrics for scraping.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"

	"github.com/dshills/llmgateway/internal/gatewaylog"
	"github.com/dshills/llmgateway/internal/gwconfig"
	"github.com/dshills/llmgateway/internal/health"
	"github.com/dshills/llmgateway/internal/kiroauth"
	"github.com/dshills/llmgateway/internal/providerhttp"
	"github.com/dshills/llmgateway/internal/router"
	"github.com/dshills/llmgateway/internal/transform/anthropicdialect"
	"github.com/dshills/llmgateway/internal/transform/copilotdialect"
	"github.com/dshills/llmgateway/internal/transform/geminidialect"
)

func main() {
	configPath := flag.String("config", "", "path to a gateway YAML config file")
	metricsAddr := flag.String("metrics-addr", ":9090", "address for the Prometheus /metrics endpoint")
	healthInterval := flag.Duration("health-interval", 30*time.Second, "interval between provider health sweeps")
	flag.Parse()

	logger, err := gatewaylog.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	cfg, err := gwconfig.Load(*configPath)
	if err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}

	registry := prometheus.NewRegistry()
	metrics := health.NewMetrics(registry)
	tracerProvider := sdktrace.NewTracerProvider()
	defer tracerProvider.Shutdown(context.Background())
	otel.SetTracerProvider(tracerProvider)
	tracer := tracerProvider.Tracer("llmgateway/router")

	strategy := routingStrategy(cfg.RoutingStrategy)
	rt := router.New(strategy, tracer, metrics)

	authProvider, err := kiroauth.NewAutoDetectProvider(kiroauth.AutoDetectOptions{
		JSONFilePath: cfg.KiroAuth.JSONFilePath,
		SqliteDBPath: cfg.KiroAuth.SqliteDBPath,
	})
	if err != nil {
		logger.Fatal("failed to set up kiro auth discovery", zap.Error(err))
	}

	breakerCfg := health.Config{
		FailureThreshold: cfg.Breaker.FailureThreshold,
		SuccessThreshold: cfg.Breaker.SuccessThreshold,
		Timeout:          cfg.Breaker.OpenTimeout,
	}

	for _, p := range cfg.Providers {
		if !p.Enabled {
			continue
		}
		client := buildProviderClient(p, authProvider)
		if client == nil {
			logger.Warn("skipping provider with unrecognized id", zap.String("id", p.ID))
			continue
		}
		rt.RegisterWithBreaker(client, breakerCfg)
		logger.WithProvider(p.ID).Info("registered provider")
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	metricsServer := &http.Server{Addr: *metricsAddr, Handler: mux}

	go func() {
		logger.Info("metrics server listening", zap.String("addr", *metricsAddr))
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server error", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ticker := time.NewTicker(*healthInterval)
	defer ticker.Stop()

	logger.Info("gateway started", zap.String("routing_strategy", cfg.RoutingStrategy))

	for {
		select {
		case <-ctx.Done():
			logger.Info("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			_ = metricsServer.Shutdown(shutdownCtx)
			cancel()
			return
		case <-ticker.C:
			if err := rt.HealthCheckAll(context.Background()); err != nil {
				logger.Warn("health sweep reported failures", zap.Error(err))
			}
		}
	}
}

// buildProviderClient resolves a provider's dialect transformer and auth
// header wiring from its configured id prefix. Returns nil for an id this
// gateway doesn't recognize.
func buildProviderClient(p gwconfig.ProviderConfig, authProvider *kiroauth.AutoDetectProvider) *providerhttp.Client {
	switch {
	case p.ID == "kiro" || p.ID == "claude":
		isKiro := p.ID == "kiro"
		transformer := anthropicdialect.New(p.ID, p.ID, isKiro, p.Models)
		setHeaders := func(ctx context.Context, req *http.Request, _ string) error {
			if isKiro {
				token, err := authProvider.GetToken(ctx)
				if err != nil {
					return err
				}
				req.Header.Set("Authorization", "Bearer "+token)
				return nil
			}
			req.Header.Set("x-api-key", p.APIKey)
			req.Header.Set("anthropic-version", "2023-06-01")
			return nil
		}
		return providerhttp.New(providerhttp.Config{
			ID:          p.ID,
			Name:        p.ID,
			Transformer: transformer,
			BaseURLs:    p.BaseURLs,
			Path:        providerhttp.FixedPath("/v1/messages"),
			SetHeaders:  setHeaders,
		})
	case p.ID == "gemini":
		transformer := geminidialect.New(p.ID, p.ID, p.Models)
		token := providerhttp.StaticToken(p.APIKey)
		return providerhttp.New(providerhttp.Config{
			ID:          p.ID,
			Name:        p.ID,
			Transformer: transformer,
			BaseURLs:    p.BaseURLs,
			Path: func(model string, streaming bool) string {
				if streaming {
					return fmt.Sprintf("/v1beta/models/%s:streamGenerateContent?alt=sse", model)
				}
				return fmt.Sprintf("/v1beta/models/%s:generateContent", model)
			},
			SetHeaders: func(ctx context.Context, req *http.Request, _ string) error {
				tok, err := token.Token(ctx)
				if err != nil {
					return err
				}
				req.Header.Set("x-goog-api-key", tok)
				return nil
			},
		})
	case p.ID == "copilot" || p.ID == "litellm":
		transformer := copilotdialect.New(p.ID, p.ID, p.ID == "litellm", p.Models)
		apiKey := p.APIKey
		return providerhttp.New(providerhttp.Config{
			ID:          p.ID,
			Name:        p.ID,
			Transformer: transformer,
			BaseURLs:    p.BaseURLs,
			Path:        providerhttp.FixedPath("/chat/completions"),
			SetHeaders: func(_ context.Context, req *http.Request, _ string) error {
				req.Header.Set("Authorization", "Bearer "+apiKey)
				return nil
			},
		})
	default:
		return nil
	}
}

func routingStrategy(name string) router.Strategy {
	switch name {
	case "round_robin":
		return router.RoundRobin
	case "least_used":
		return router.LeastUsed
	case "random":
		return router.Random
	default:
		return router.Priority
	}
}
