// Command gsecretd runs the gsecret broker: it loads a chain configuration
// file, builds the configured chains against the built-in gsecret stages,
// and serves them over HTTP alongside health and metrics endpoints.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/GoCodeAlone/gsecret/broker"
	"github.com/GoCodeAlone/gsecret/config"
	"github.com/GoCodeAlone/gsecret/observability"
	"github.com/GoCodeAlone/gsecret/secretapi"
)

var (
	configFile = flag.String("config", "broker.yaml", "Path to the broker chain configuration YAML file")
	addr       = flag.String("addr", ":8080", "HTTP listen address")
)

func main() {
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	if err := run(logger); err != nil {
		log.Fatalf("gsecretd: %v", err)
	}
	fmt.Println("Shutdown complete")
}

func run(logger *slog.Logger) error {
	src := config.NewFileSource(*configFile)
	cfg, err := src.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger.Info("configuration loaded", "source", src.Name(), "chains", len(cfg.Chains))

	metrics := observability.NewMetrics()
	health := observability.NewHealthChecker(5 * time.Second)

	gsecretPlugin, err := secretapi.NewPlugin(logger)
	if err != nil {
		return fmt.Errorf("build gsecret plugin: %w", err)
	}

	registry := broker.NewRegistry()
	if err := registry.Register(gsecretPlugin); err != nil {
		return fmt.Errorf("register gsecret plugin: %w", err)
	}

	mux := http.NewServeMux()
	builder := broker.NewBuilder(registry)
	if err := builder.Build(cfg, mux); err != nil {
		return fmt.Errorf("build chains: %w", err)
	}
	logger.Info("chains built", "names", registeredChainNames(cfg))

	mux.Handle("GET /metrics", metrics.Handler())
	mux.HandleFunc("GET /healthz", health.HealthHandler())
	mux.HandleFunc("GET /readyz", health.ReadyHandler())
	mux.HandleFunc("GET /livez", health.LiveHandler())
	health.MarkReady()

	handler := observability.RequestID(metrics.InstrumentHandler("gsecret", mux))

	srv := &http.Server{
		Addr:              *addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srvErrCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", *addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			srvErrCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-srvErrCh:
		return fmt.Errorf("server error: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	return nil
}

func registeredChainNames(cfg *config.RootConfig) []string {
	names := make([]string, 0, len(cfg.Chains))
	for _, c := range cfg.Chains {
		names = append(names, c.Name)
	}
	return names
}
