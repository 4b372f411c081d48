// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"log"
	"log/slog"
	"math/rand"
	"os"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jinterlante1206/DemoForge/pkg/logging"
	"github.com/jinterlante1206/DemoForge/services/provisioner/content"
	"github.com/jinterlante1206/DemoForge/services/provisioner/devrev"
	"github.com/jinterlante1206/DemoForge/services/provisioner/handlers"
	"github.com/jinterlante1206/DemoForge/services/provisioner/llm"
	"github.com/jinterlante1206/DemoForge/services/provisioner/observability"
	"github.com/jinterlante1206/DemoForge/services/provisioner/pipeline"
	"github.com/jinterlante1206/DemoForge/services/provisioner/registry"
	"github.com/jinterlante1206/DemoForge/services/provisioner/routes"
	"github.com/jinterlante1206/DemoForge/services/provisioner/seeds"
	"github.com/jinterlante1206/DemoForge/services/provisioner/session"

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
		otelEndpoint = "demoforge-otel-collector:4317"
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
		resource.WithAttributes(semconv.ServiceNameKey.String("provisioner-service")))
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

// runProgress adapts the registry to the pipeline's progress interface.
type runProgress struct {
	reg       *registry.Registry
	sessionID string
}

func (p runProgress) Set(percent int, detail string) {
	p.reg.Update(p.sessionID, detail, percent)
}

// randSeed returns the seed for a run's random source. Operators can pin
// it through DEMOFORGE_RAND_SEED to replay a run draw for draw.
func randSeed() int64 {
	if raw := os.Getenv("DEMOFORGE_RAND_SEED"); raw != "" {
		if seed, err := strconv.ParseInt(raw, 10, 64); err == nil {
			slog.Info("using pinned random seed", "seed", seed)
			return seed
		}
		slog.Warn("DEMOFORGE_RAND_SEED is not an integer, using clock seed", "value", raw)
	}
	return time.Now().UnixNano()
}

func main() {
	port := os.Getenv("PROVISIONER_PORT")
	if port == "" {
		port = "8090"
	}

	appLog := logging.New(logging.Config{
		Level:   logging.ParseLevel(os.Getenv("DEMOFORGE_LOG_LEVEL")),
		LogDir:  os.Getenv("DEMOFORGE_LOG_DIR"),
		Service: "provisioner",
		JSON:    true,
	})
	defer appLog.Close()
	slog.SetDefault(appLog.Slog())

	// --- Init the tracer ---
	cleanup, err := initTracer()
	if err != nil {
		log.Fatalf("failed to setup the OTLP tracer: %v", err)
	}
	defer cleanup(context.Background())

	metrics := observability.InitMetrics()

	sessionsRoot := os.Getenv("SESSIONS_DIR")
	if sessionsRoot == "" {
		sessionsRoot = "sessions"
	}
	store, err := session.NewStore(sessionsRoot)
	if err != nil {
		log.Fatalf("failed to open the session store at %s: %v", sessionsRoot, err)
	}

	seedsDir := os.Getenv("SEEDS_DIR")
	if seedsDir == "" {
		seedsDir = "seed_data"
	}
	loader := seeds.NewLoader(seedsDir)
	pools, err := loader.Load()
	if err != nil {
		log.Fatalf("failed to load seed pools from %s: %v", seedsDir, err)
	}
	snapshot := seeds.NewSnapshot(pools)

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	if watcher, err := seeds.NewWatcher(seedsDir, loader, snapshot); err != nil {
		slog.Warn("seed watcher unavailable, pools are fixed for this process", "error", err)
	} else if err := watcher.Start(ctx); err != nil {
		slog.Warn("seed watcher failed to start", "error", err)
	} else {
		defer watcher.Stop()
	}

	log.Println("Configuring the LLM client")
	llmClient, err := llm.NewOpenAIClient()
	if err != nil {
		log.Fatalf("Failed to initialize the LLM client: %v", err)
	}
	generator := content.NewGenerator(llmClient)

	reg := registry.NewRegistry()
	sweeper := registry.NewSweeper(store, reg, registry.DefaultSweeperConfig())
	if err := sweeper.Start(ctx); err != nil {
		log.Fatalf("failed to start the session sweeper: %v", err)
	}
	defer sweeper.Stop()

	deps := handlers.Deps{
		Registry: reg,
		Store:    store,
		RunProvision: func(ctx context.Context, sessionID string, params pipeline.Params) error {
			p := &pipeline.Pipeline{
				Client:  devrev.NewClient(params.BaseURL(), params.PAT()),
				Gen:     generator,
				Store:   store,
				Tracker: pipeline.NewTracker(runProgress{reg, sessionID}, pipeline.ProvisionStages()),
				Rand:    rand.New(rand.NewSource(randSeed())),
				Seeds:   snapshot.Get(),
				Metrics: metrics,
				Params:  params,
			}
			return p.Run(ctx)
		},
		RunCleanup: func(ctx context.Context, sessionID string, params pipeline.Params) error {
			p := &pipeline.Pipeline{
				Client:  devrev.NewClient(params.BaseURL(), params.PAT()),
				Store:   store,
				Tracker: pipeline.NewTracker(runProgress{reg, sessionID}, pipeline.CleanupStages()),
				Rand:    rand.New(rand.NewSource(randSeed())),
				Metrics: metrics,
				Params:  params,
			}
			return p.RunCleanup(ctx)
		},
	}

	router := gin.Default()
	router.Use(otelgin.Middleware("provisioner-service"))

	routes.SetupRoutes(router, deps)
	log.Println("started up the container")

	log.Println("Starting the provisioner server on port ", port)
	if err := router.Run(":" + port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
