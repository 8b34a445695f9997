package cli

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	client "github.com/peteraglen/spark-go-client"
	"github.com/peteraglen/spark-go-client/internal/hookconfig"
)

const shutdownTimeout = 10 * time.Second

var configPath string

var listenCmd = &cobra.Command{
	Use:   "listen",
	Short: "Start the webhook listener",
	Long: `Start the webhook listener described by a YAML configuration file.
The public URL of every endpoint is printed on startup; register it as the
target URL of the configured webhooks.

Example:
  sparkhook listen --config sparkhook.yaml`,
	RunE: runListen,
}

func init() {
	listenCmd.Flags().StringVarP(&configPath, "config", "c", "sparkhook.yaml", "Path to configuration file")
	rootCmd.AddCommand(listenCmd)
}

func runListen(cmd *cobra.Command, _ []string) error {
	cfg, err := hookconfig.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := newLogger(cfg.LogLevel)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	opts := []client.ListenerOption{
		client.WithWorkers(cfg.Workers),
		client.WithMaxBodySize(cfg.MaxBodySize),
		client.WithListenerLogger(client.NewSlogLogger(logger)),
		client.WithMetricsRegisterer(registry),
	}

	if cfg.HasHTTPS() {
		cert, err := tls.LoadX509KeyPair(cfg.TLS.CertFile, cfg.TLS.KeyFile)
		if err != nil {
			return fmt.Errorf("failed to load TLS certificate: %w", err)
		}
		opts = append(opts, client.WithTLSConfig(&tls.Config{
			Certificates: []tls.Certificate{cert},
			MinVersion:   tls.VersionTLS12,
		}))
	}

	listener, err := client.NewWebhookListener(opts...)
	if err != nil {
		return err
	}
	defer func() { _ = listener.Close() }()

	for _, ep := range cfg.Endpoints {
		u, err := listener.AddListenerEndpoint(ep.Host, ep.Port, ep.HTTPS)
		if err != nil {
			return fmt.Errorf("failed to add endpoint %s:%d: %w", ep.Host, ep.Port, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Webhook target URL: %s\n", u)
	}

	for _, wh := range cfg.Webhooks {
		webhook := &client.Webhook{ID: wh.ID, Name: wh.Name, Secret: wh.Secret}
		if err := listener.AddWebhookNotification(webhook, logEvent(logger)); err != nil {
			return fmt.Errorf("failed to register webhook %s: %w", wh.ID, err)
		}
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var metricsServer *http.Server
	if cfg.MetricsAddr != "" {
		metricsServer = serveMetrics(cfg.MetricsAddr, registry, logger)
	}

	if err := listener.Start(); err != nil {
		return fmt.Errorf("failed to start listener: %w", err)
	}

	logger.Info("webhook listener started", "endpoints", len(cfg.Endpoints), "webhooks", len(cfg.Webhooks))

	<-ctx.Done()

	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := listener.Stop(shutdownCtx); err != nil {
		logger.Error("failed to stop listener", "error", err)
	}

	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to stop metrics server", "error", err)
		}
	}

	return nil
}

func logEvent(logger *slog.Logger) client.WebhookHandler {
	return func(event *client.WebhookEvent) {
		logger.Info("webhook event",
			"webhook_id", event.ID,
			"name", event.Name,
			"resource", event.Resource,
			"event", event.Event,
			"data_id", event.Data.ID,
			"actor_id", event.ActorID,
		)
	}
}

func serveMetrics(addr string, registry *prometheus.Registry, logger *slog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "addr", addr, "error", err)
		}
	}()

	logger.Info("serving metrics", "addr", addr)

	return srv
}

// newLogger writes text to an interactive terminal and JSON otherwise.
func newLogger(level string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(level)}

	if term.IsTerminal(int(os.Stderr.Fd())) {
		return slog.New(slog.NewTextHandler(os.Stderr, opts))
	}

	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
