package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"campchain/config"
	"campchain/gateway/client"
	"campchain/gateway/middleware"
	"campchain/gateway/routes"
	"campchain/observability/logging"
	telemetry "campchain/observability/otel"
)

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv("CAMP_ENV"))

	cfg, err := config.Load(*configFile)
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	logger := logging.Setup("campgw", env, logging.Options{})

	if cfg.Telemetry.Enabled {
		shutdown, err := telemetry.Init(context.Background(), telemetry.Config{
			ServiceName: "campgw",
			Environment: env,
			Endpoint:    cfg.Telemetry.Endpoint,
			Insecure:    cfg.Telemetry.Insecure,
			Headers:     telemetry.ParseHeaders(os.Getenv("OTEL_EXPORTER_OTLP_HEADERS")),
			Metrics:     cfg.Telemetry.Metrics,
			Traces:      cfg.Telemetry.Traces,
		})
		if err != nil {
			logger.Error("Failed to initialise telemetry", slog.Any("error", err))
			os.Exit(1)
		}
		defer func() {
			_ = shutdown(context.Background())
		}()
	}

	nodeClient := client.New(cfg.Gateway.NodeURL, cfg.Gateway.NodeRPCToken, 10*time.Second)

	authenticator := middleware.NewAuthenticator(middleware.AuthConfig{
		Enabled:    cfg.Gateway.AuthEnabled,
		HMACSecret: cfg.Gateway.JWTSecret,
		Issuer:     cfg.Gateway.JWTIssuer,
		Audience:   cfg.Gateway.JWTAudience,
	}, logger)

	rateLimiter := middleware.NewRateLimiter(map[string]middleware.RateLimit{
		"campaigns": {
			RequestsPerMinute: cfg.Gateway.RequestsPerMinute,
			Burst:             cfg.Gateway.Burst,
		},
	})

	observer := middleware.NewObservability(middleware.ObservabilityConfig{
		ServiceName: "campgw",
		Enabled:     true,
		LogRequests: true,
	}, logger)

	handler, err := routes.New(routes.Config{
		Node:          nodeClient,
		Verifier:      cfg.Gateway.Verifier,
		Authenticator: authenticator,
		RateLimiter:   rateLimiter,
		Observability: observer,
		CORS:          middleware.CORSConfig{AllowedOrigins: cfg.Gateway.AllowedOrigins},
		WriteScopes:   []string{"campaign:write"},
	})
	if err != nil {
		logger.Error("Failed to build router", slog.Any("error", err))
		os.Exit(1)
	}

	server := &http.Server{
		Addr:              cfg.Gateway.ListenAddress,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("gateway listening", "address", cfg.Gateway.ListenAddress, "node", cfg.Gateway.NodeURL)
		errCh <- server.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("gateway stopped", slog.Any("error", err))
			os.Exit(1)
		}
	case sig := <-sigCh:
		logger.Info("shutting down", "signal", sig.String())
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			logger.Error("graceful shutdown failed", slog.Any("error", err))
			os.Exit(1)
		}
	}
}
