package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"webhook-chat/internal/config"
	"webhook-chat/internal/conversation"
	"webhook-chat/internal/history"
	"webhook-chat/internal/logger"
	"webhook-chat/internal/store"
	"webhook-chat/internal/ui"
	"webhook-chat/internal/webhook"
)

// rootOptions are the persistent flags. Flags only override settings when set.
type rootOptions struct {
	settingsPath string
	dataDir      string
	backend      string
	webhookURL   string
	logLevel     string
	metricsAddr  string
	noMarkdown   bool
	ephemeral    bool
}

// app is everything a command needs, wired from settings.
type app struct {
	cfg     *config.Config
	in      io.Reader
	store   store.Store
	ctrl    *conversation.Controller
	display *ui.EnhancedDisplay
	metrics *http.Server

	closeOnce sync.Once
	closeErr  error
}

func loadConfig(opts *rootOptions, changed func(string) bool) (*config.Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		logger.WarnCF("config", "Failed to load .env", map[string]interface{}{"error": err.Error()})
	}

	cfg, err := config.Load(opts.settingsPath)
	if err != nil {
		return nil, err
	}

	if changed("data-dir") {
		cfg.DataDir = opts.dataDir
	}
	if changed("backend") {
		cfg.Backend = opts.backend
	}
	if changed("webhook-url") {
		cfg.WebhookURL = opts.webhookURL
	}
	if changed("log-level") {
		cfg.LogLevel = opts.logLevel
	}
	if changed("metrics-addr") {
		cfg.MetricsAddr = opts.metricsAddr
	}
	if opts.noMarkdown {
		cfg.RenderMarkdown = false
	}
	if opts.ephemeral {
		cfg.Backend = store.BackendMemory
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration error: %w", err)
	}
	return cfg, nil
}

func openApp(cfg *config.Config, in io.Reader, out io.Writer) (*app, error) {
	logger.Init(os.Stderr, cfg.LogLevel)

	s, err := store.Open(cfg.Backend, cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s store: %w", cfg.Backend, err)
	}
	logger.InfoCF("store", "Opened store", map[string]interface{}{
		"backend":  cfg.Backend,
		"data_dir": cfg.DataDir,
	})

	a := &app{cfg: cfg, in: in, store: s, display: ui.NewEnhancedDisplay(out, cfg.RenderMarkdown)}

	var clientOpts []webhook.Option
	if cfg.MetricsAddr != "" {
		reg := prometheus.NewRegistry()
		clientOpts = append(clientOpts, webhook.WithMetrics(webhook.NewMetrics(reg)))
		a.metrics = serveMetrics(cfg.MetricsAddr, reg)
	}

	a.ctrl = conversation.New(history.NewManager(s), webhook.NewClient(clientOpts...))

	if cfg.WebhookURL != "" && cfg.WebhookURL != a.ctrl.Snapshot().Config.WebhookURL {
		if err := a.ctrl.UpdateConfig(history.ChatConfig{WebhookURL: cfg.WebhookURL}); err != nil {
			a.Close()
			return nil, err
		}
	}

	return a, nil
}

func serveMetrics(addr string, reg *prometheus.Registry) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.ErrorCF("metrics", "Metrics server error", map[string]interface{}{"error": err.Error()})
		}
	}()
	logger.InfoCF("metrics", "Metrics listener started", map[string]interface{}{"addr": addr})
	return srv
}

// Close stops the metrics listener and closes the store. It is safe to call
// from the signal handler and the deferred cleanup both.
func (a *app) Close() error {
	a.closeOnce.Do(func() {
		if a.metrics != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := a.metrics.Shutdown(ctx); err != nil {
				logger.WarnCF("metrics", "Metrics server shutdown failed", map[string]interface{}{"error": err.Error()})
			}
		}
		a.closeErr = a.store.Close()
	})
	return a.closeErr
}
