// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
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
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/AleutianChat/pkg/extensions"
	"github.com/AleutianAI/AleutianChat/pkg/logging"
	"github.com/AleutianAI/AleutianChat/services/chat/observability"
	"github.com/AleutianAI/AleutianChat/services/chat/routes"
	"github.com/AleutianAI/AleutianChat/services/chat/store"
	"github.com/AleutianAI/AleutianChat/services/llm"

	// --- OpenTelemetry imports ---
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

func initTracer() (func(context.Context), error) {
	ctx := context.Background()

	otelEndpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	if otelEndpoint == "" {
		otelEndpoint = "aleutian-otel-collector:4317"
	}
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
		resource.WithAttributes(semconv.ServiceNameKey.String("chat-service")))
	if err != nil {
		return nil, err
	}
	bsp := sdktrace.NewBatchSpanProcessor(traceExporter)
	traceProvider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(bsp))
	otel.SetTracerProvider(traceProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.
		TraceContext{}, propagation.Baggage{}))

	return func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, time.Second*5)
		defer cancel()
		if err := traceExporter.Shutdown(ctx); err != nil {
			slog.Error("failed to shutdown OTLP exporter", "error", err)
		}
	}, nil
}

// buildStore selects the persistence backend. A set MONGO_URI means
// MongoDB; otherwise the service runs on the in-memory store and every
// conversation dies with the process.
func buildStore(ctx context.Context) store.ConversationStore {
	mongoURI := os.Getenv("MONGO_URI")
	if mongoURI == "" {
		slog.Info("MONGO_URI not set. Running in lightweight mode (in-memory store).")
		return store.NewMemoryStore()
	}

	database := os.Getenv("MONGO_DATABASE")
	if database == "" {
		database = "aleutian_chat"
	}

	mongoStore, err := store.NewMongoStore(ctx, mongoURI, database)
	if err != nil {
		log.Fatalf("Failed to connect to MongoDB: %v", err)
	}
	slog.Info("Connected to MongoDB", "database", database)
	return mongoStore
}

// buildAuthProvider selects the auth backend. CHAT_AUTH_TOKENS holds
// comma-separated token:userId pairs; when unset every request runs as
// local-user.
func buildAuthProvider() extensions.AuthProvider {
	raw := os.Getenv("CHAT_AUTH_TOKENS")
	if raw == "" {
		slog.Info("CHAT_AUTH_TOKENS not set, authentication disabled (local-user)")
		return &extensions.NopAuthProvider{}
	}

	tokens := extensions.ParseTokenPairs(raw)
	if len(tokens) == 0 {
		log.Fatalf("CHAT_AUTH_TOKENS is set but contains no valid token:user pairs")
	}
	slog.Info("Static token authentication enabled", "tokens", len(tokens))
	return extensions.NewStaticTokenProvider(tokens)
}

func main() {
	// .env is optional; real deployments inject the environment directly.
	if err := godotenv.Load(); err == nil {
		slog.Info("Loaded configuration from .env")
	}

	port := os.Getenv("CHAT_PORT")
	if port == "" {
		port = "12230"
	}

	logger, err := logging.New(logging.Config{
		Service: "chatd",
		LogDir:  os.Getenv("CHAT_LOG_DIR"),
	})
	if err != nil {
		log.Fatalf("failed to setup logging: %v", err)
	}
	defer logger.Close()
	slog.SetDefault(logger.Slog())

	// --- Init the tracer ---
	cleanup, err := initTracer()
	if err != nil {
		log.Fatalf("failed to setup the OTLP tracer: %v", err)
	}
	defer cleanup(context.Background())

	observability.InitMetrics()

	ctx, stop := signal.NotifyContext(context.Background(),
		syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	conversationStore := buildStore(ctx)
	authProvider := buildAuthProvider()

	log.Println("Configuring the LLM Client")
	llmClient, err := llm.NewOpenAIClient()
	if err != nil {
		log.Fatalf("Failed to initialize LLM client: %v", err)
	}
	slog.Info("Using OpenAI LLM backend", "model", llmClient.Model())

	router := gin.Default()
	router.Use(otelgin.Middleware("chat-service"))

	routes.SetupRoutes(router, conversationStore, llmClient, authProvider)

	server := &http.Server{
		Addr:    ":" + port,
		Handler: router,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Println("Starting the chat server on port ", port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("Shutting down chat server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Fatalf("Server exited with error: %v", err)
	}
	slog.Info("Chat server stopped")
}
