package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/ashutoshrp06/toolloop/internal/agent"
	"github.com/ashutoshrp06/toolloop/internal/config"
	"github.com/ashutoshrp06/toolloop/internal/functions"
	"github.com/ashutoshrp06/toolloop/internal/imaging"
	"github.com/ashutoshrp06/toolloop/internal/llm"
	"github.com/ashutoshrp06/toolloop/internal/observability"
	"github.com/ashutoshrp06/toolloop/internal/providers"
	"github.com/ashutoshrp06/toolloop/internal/tools"
	"github.com/ashutoshrp06/toolloop/internal/transcript"
	"github.com/ashutoshrp06/toolloop/internal/vision"
	"go.uber.org/zap"
)

// app is the fully wired agent plus what main needs to shut it down.
type app struct {
	cfg      *config.Config
	logger   *zap.Logger
	metrics  *observability.Metrics
	registry *tools.Registry
	agent    *agent.Agent
	chat     llm.Provider
	server   *http.Server
}

// buildApp builds the configured providers and wires the agent around them.
func buildApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*app, error) {
	chat, err := providers.Build(ctx, cfg.Provider)
	if err != nil {
		return nil, fmt.Errorf("build %s provider: %w", cfg.Provider.Name, err)
	}

	visionProvider := chat
	if vc := cfg.VisionProvider(); vc != cfg.Provider {
		if visionProvider, err = providers.Build(ctx, vc); err != nil {
			return nil, fmt.Errorf("build %s vision provider: %w", vc.Name, err)
		}
	}

	return newApp(cfg, logger, chat, visionProvider)
}

// newApp wires the agent from already constructed providers.
func newApp(cfg *config.Config, logger *zap.Logger, chat, visionProvider llm.Provider) (*app, error) {
	metrics := observability.NewMetrics()

	clientCfg := llm.ClientConfig{
		Timeout:         cfg.Provider.Timeout,
		MaxRetries:      cfg.Agent.MaxRetries,
		InitialInterval: cfg.Agent.RetryInitialInterval,
		MaxInterval:     cfg.Agent.RetryMaxInterval,
		Logger:          logger,
		Metrics:         metrics,
	}

	locator := vision.NewModelLocator(llm.NewClient(visionProvider, clientCfg), vision.LocatorConfig{
		Coordinates:   cfg.Vision.Coordinates,
		MinConfidence: cfg.Vision.MinConfidence,
		Logger:        logger,
	})

	drawer, err := imaging.NewFileDrawer(imaging.Config{
		OutputDir: cfg.Drawing.OutputDir,
		Color:     cfg.Drawing.Color,
		LineWidth: cfg.Drawing.LineWidth,
	})
	if err != nil {
		return nil, fmt.Errorf("configure drawing: %w", err)
	}

	registry, err := functions.NewRegistry(functions.Deps{
		Locator:     locator,
		Drawer:      drawer,
		Coordinates: cfg.Vision.Coordinates,
	})
	if err != nil {
		return nil, fmt.Errorf("register tools: %w", err)
	}

	agentCfg := agent.Config{
		AppConfig: cfg,
		LLM:       llm.NewClient(chat, clientCfg),
		Registry:  registry,
		Logger:    logger,
		Metrics:   metrics,
	}
	if cfg.Transcript.Enabled {
		rec, err := transcript.NewRecorder(cfg.Transcript.Dir, cfg.Transcript.Format, logger)
		if err != nil {
			return nil, err
		}
		agentCfg.Transcript = rec
	}

	a, err := agent.New(agentCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize agent: %w", err)
	}

	return &app{
		cfg:      cfg,
		logger:   logger,
		metrics:  metrics,
		registry: registry,
		agent:    a,
		chat:     chat,
	}, nil
}

// serveMetrics exposes the Prometheus endpoint when an address is configured.
func (a *app) serveMetrics() {
	if a.cfg.Metrics.Addr == "" {
		return
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", a.metrics.Handler())
	a.server = &http.Server{
		Addr:              a.cfg.Metrics.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Warn("Metrics server stopped", zap.Error(err))
		}
	}()
	a.logger.Info("Serving metrics", zap.String("addr", a.cfg.Metrics.Addr))
}

// ping checks connectivity for providers that support it.
func (a *app) ping(ctx context.Context) error {
	p, ok := a.chat.(interface{ Ping(context.Context) error })
	if !ok {
		return nil
	}
	return p.Ping(ctx)
}

func (a *app) Close() {
	if a.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = a.server.Shutdown(ctx)
	}
	_ = a.logger.Sync()
}
