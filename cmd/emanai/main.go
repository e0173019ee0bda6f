// Copyright (C) 2025 EmanAI (eman@emancancode.online)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"

	"github.com/emancancode/emanai/services/llm"
	"github.com/emancancode/emanai/services/relay/conversation"
	"github.com/emancancode/emanai/services/relay/middleware"
	"github.com/emancancode/emanai/services/relay/observability"
	"github.com/emancancode/emanai/services/relay/routes"
	"github.com/emancancode/emanai/services/relay/session"
)

const serviceName = "emanai-relay"

// initTracer wires the OTLP/gRPC exporter. Only called when
// OTEL_EXPORTER_OTLP_ENDPOINT is set; the relay usually runs next to a
// desktop client with no collector around.
func initTracer(otelEndpoint string) (func(context.Context), error) {
	ctx := context.Background()

	conn, err := grpc.NewClient(otelEndpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, err
	}
	traceExporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		return nil, err
	}
	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceNameKey.String(serviceName)))
	if err != nil {
		return nil, err
	}
	bsp := sdktrace.NewBatchSpanProcessor(traceExporter)
	traceProvider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(bsp))
	otel.SetTracerProvider(traceProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{}))

	return func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, time.Second*5)
		defer cancel()
		if err := traceExporter.Shutdown(ctx); err != nil {
			slog.Error("failed to shutdown OTLP exporter", "error", err)
		}
	}, nil
}

// newStore picks the conversation backend. The flat-file layout is the
// default; CONVO_BACKEND=badger switches to the embedded KV store.
func newStore() (conversation.DocumentStore, error) {
	dir := os.Getenv("CONVO_DIR")
	if dir == "" {
		dir = "convo-history"
	}
	switch backend := os.Getenv("CONVO_BACKEND"); backend {
	case "", "file":
		return conversation.NewFileStore(dir)
	case "badger":
		return conversation.NewBadgerStore(dir)
	default:
		return nil, errors.New("unknown CONVO_BACKEND: " + backend)
	}
}

func main() {
	// Local .env is optional; environment wins when both are present.
	if err := godotenv.Load(); err != nil {
		slog.Debug("No .env file loaded", "error", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	if otelEndpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); otelEndpoint != "" {
		cleanup, err := initTracer(otelEndpoint)
		if err != nil {
			log.Fatalf("failed to setup the OTLP tracer: %v", err)
		}
		defer cleanup(context.Background())
	} else {
		slog.Info("OTEL_EXPORTER_OTLP_ENDPOINT not set, tracing disabled")
	}

	observability.InitMetrics()

	client, err := llm.NewOllamaClient()
	if err != nil {
		log.Fatalf("Failed to initialize Ollama client: %v", err)
	}

	store, err := newStore()
	if err != nil {
		log.Fatalf("Failed to initialize conversation store: %v", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			slog.Error("Failed to close conversation store", "error", err)
		}
	}()

	registry := session.NewRegistry()

	router := gin.Default()
	router.Use(middleware.CORS(os.Getenv("PUBLIC_ORIGIN")))
	router.Use(otelgin.Middleware(serviceName))

	routes.SetupRoutes(router, client, store, registry, session.DefaultConfig())

	port := os.Getenv("PORT")
	if port == "" {
		port = "3000"
	}
	bindHost := os.Getenv("BIND_HOST")
	if bindHost == "" {
		bindHost = "127.0.0.1"
	}

	server := &http.Server{
		Addr:    bindHost + ":" + port,
		Handler: router,
	}

	ctx, stop := signal.NotifyContext(context.Background(),
		syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		slog.Info("Starting relay server", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil &&
			!errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	<-ctx.Done()
	slog.Info("Shutdown signal received",
		"active_sessions", registry.Active())

	// Live streams get a shutdown error event before the listener drops.
	registry.Shutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server shutdown failed", "error", err)
	}
}
