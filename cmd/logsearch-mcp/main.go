package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	mcpGoServer "github.com/mark3labs/mcp-go/server"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/observelabs/logsearch-mcp/configs"
	"github.com/observelabs/logsearch-mcp/internal/adapter/inbound/mcphttp"
	"github.com/observelabs/logsearch-mcp/internal/adapter/outbound/loganalytics"
	"github.com/observelabs/logsearch-mcp/internal/ratelimit"
	"github.com/observelabs/logsearch-mcp/internal/sanitize"
	"github.com/observelabs/logsearch-mcp/internal/usecase"
)

const version = "0.1.0"

func main() {
	var transport string
	flag.StringVar(&transport, "transport", "stdio", "Transport mode: stdio or http")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// .env is optional; real environments set variables directly.
	_ = godotenv.Load()

	// === Configuration ===
	cfg, err := configs.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// === Logging ===
	logLevel := cfg.ParsedLogLevel()
	var logger *slog.Logger

	if transport == "stdio" {
		// In stdio mode, log to file to avoid interfering with the
		// protocol stream.
		logFile, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			logger = slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: logLevel}))
		} else {
			logger = slog.New(slog.NewTextHandler(logFile, &slog.HandlerOptions{Level: logLevel}))
		}
	} else {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
	}

	slog.SetDefault(logger)
	logger.Info("Logger initialized.", slog.String("level", logLevel.String()), slog.String("transport", transport))

	// === OpenTelemetry Initialization ===
	shutdownOtel, err := initOtelProvider(cfg)
	if err != nil {
		logger.Error("Failed to initialize OpenTelemetry.", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := shutdownOtel(context.Background()); err != nil {
			logger.Error("Failed to shutdown OpenTelemetry TracerProvider.", slog.Any("error", err))
		}
	}()

	// === Startup Configuration Check ===
	// Missing query credentials are fatal for stdio; the network
	// transport starts anyway so operators can observe the failure via
	// the health endpoint.
	configErr := cfg.Validate()
	if configErr != nil {
		if transport == "stdio" {
			logger.Error("Invalid configuration.", slog.Any("error", configErr))
			fmt.Fprintf(os.Stderr, "%v\n", configErr)
			os.Exit(1)
		}
		logger.Warn("Invalid configuration; serving unhealthy.", slog.Any("error", configErr))
	}

	// === Dependency Injection ===
	httpClient := &http.Client{Timeout: cfg.HTTPClientTimeout}

	limiter := ratelimit.New(cfg.RateLimitMaxRequests, cfg.RateLimitWindow, logger)
	limiter.StartSweeping(ctx)

	executor := loganalytics.New(httpClient, cfg, logger)
	sanitizer := sanitize.New(logger)
	searchUC := usecase.NewSearchLogsUseCase(limiter, executor, sanitizer, configErr, logger)

	// === Transport Mode Selection ===
	switch transport {
	case "stdio":
		logger.Info("Starting in stdio mode.")

		mcpSrv := usecase.NewToolServer(searchUC, version)
		stdioServer := mcpGoServer.NewStdioServer(mcpSrv)
		if err := stdioServer.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Stdio server error.", slog.Any("error", err))
			os.Exit(1)
		}

	case "http":
		logger.Info("Starting in HTTP mode.", slog.String("address", cfg.ListenAddr))

		registry := mcphttp.NewRegistry(logger)
		handler := mcphttp.NewHandler(
			registry,
			func() *mcpGoServer.MCPServer { return usecase.NewToolServer(searchUC, version) },
			configErr,
			cfg.CORSAllowedOrigins,
			logger,
		)
		httpServer := &http.Server{
			Addr:    cfg.ListenAddr,
			Handler: handler.Routes(),
		}

		go func() {
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("HTTP server failed.", slog.Any("error", err))
				stop()
			}
		}()

		// Wait for termination signal.
		<-ctx.Done()

		// === Server Shutdown ===
		logger.Info("Shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server graceful shutdown failed.", slog.Any("error", err))
		}
		registry.CloseAll()
		logger.Info("Shut down gracefully.")

	default:
		logger.Error("Invalid transport mode.", slog.String("transport", transport))
		os.Exit(1)
	}
}

// initOtelProvider initializes the OpenTelemetry SDK and sets up the OTLP
// trace exporter. It returns a shutdown function to be called on exit.
func initOtelProvider(cfg *configs.Config) (func(context.Context) error, error) {
	ctx := context.Background()

	if cfg.OtelExporterOtlpEndpoint == "" {
		return func(context.Context) error { return nil }, nil
	}

	grpcOpts := []grpc.DialOption{}
	if cfg.OtelExporterOtlpInsecure {
		grpcOpts = append(grpcOpts, grpc.WithTransportCredentials(insecure.NewCredentials()))
	}

	conn, err := grpc.NewClient(cfg.OtelExporterOtlpEndpoint, grpcOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create gRPC connection to OTLP endpoint: %w", err)
	}

	traceExporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to create OTLP trace exporter: %w", err)
	}

	r, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceNameKey.String("logsearch-mcp"),
		),
	)
	if err != nil {
		_ = traceExporter.Shutdown(ctx)
		_ = conn.Close()
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExporter),
		sdktrace.WithResource(r),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))

	return func(ctx context.Context) error {
		providerErr := tp.Shutdown(ctx)
		connErr := conn.Close()
		return errors.Join(providerErr, connErr)
	}, nil
}
