// CrisisLens API — операторская поверхность и Observer Plane.
//
// Отдаёт снимки workflow, листинг review, claim/decide, cancel,
// архив предупреждений и WebSocket-канал событий (/ws).
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/adityashenoy-ai/CrisisLens-MumbaiHacks/internal/api"
	"github.com/adityashenoy-ai/CrisisLens-MumbaiHacks/internal/bus"
	"github.com/adityashenoy-ai/CrisisLens-MumbaiHacks/internal/config"
	"github.com/adityashenoy-ai/CrisisLens-MumbaiHacks/internal/observer"
	"github.com/adityashenoy-ai/CrisisLens-MumbaiHacks/internal/orchestrator"
	"github.com/adityashenoy-ai/CrisisLens-MumbaiHacks/internal/repo"
	"github.com/adityashenoy-ai/CrisisLens-MumbaiHacks/internal/review"
	"github.com/adityashenoy-ai/CrisisLens-MumbaiHacks/internal/runtime"
	"github.com/adityashenoy-ai/CrisisLens-MumbaiHacks/internal/stages"
	"github.com/adityashenoy-ai/CrisisLens-MumbaiHacks/internal/store"
	"github.com/adityashenoy-ai/CrisisLens-MumbaiHacks/internal/telemetry"
)

func main() {
	logger := telemetry.SetupLogger()
	logger.Info("starting crisislens-api")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load(os.Getenv("CRISISLENS_CONFIG"))
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	metrics := telemetry.InitMetrics(prometheus.DefaultRegisterer)

	st, err := store.NewRedisStore(ctx, cfg.StoreURL, logger)
	if err != nil {
		logger.Error("failed to connect to state store", "error", err)
		os.Exit(1)
	}
	defer st.Close()

	conn, err := bus.NewConnection(cfg.BusURL, logger)
	if err != nil {
		logger.Error("failed to connect to event bus", "error", err)
		os.Exit(1)
	}
	defer conn.Close()
	publisher := bus.NewPublisher(conn, logger)

	coord := review.New(review.Config{
		Store:     st,
		Publisher: publisher,
		Cfg:       cfg,
		Metrics:   metrics,
		Logger:    logger,
	})

	// Cancel с API идёт через оркестраторную логику (tombstone + CAS);
	// конвейер здесь не запускается, стадии API-процессу не нужны.
	orch := orchestrator.New(orchestrator.Config{
		Store:     st,
		Publisher: publisher,
		Runtime:   runtime.New(runtime.Config{Store: st, Cfg: cfg, Metrics: metrics, Logger: logger}),
		Stages:    stages.DefaultSet(stages.Deps{}),
		Cfg:       cfg,
		Metrics:   metrics,
		Logger:    logger,
	})

	var advisories *repo.AdvisoryRepo
	if cfg.ArchiveURL != "" {
		pool, err := repo.NewPool(ctx, cfg.ArchiveURL)
		if err != nil {
			logger.Error("failed to connect to advisory archive", "error", err)
			os.Exit(1)
		}
		defer pool.Close()
		advisories = repo.NewAdvisoryRepo(pool)
	}

	// Observer Plane
	hub := observer.NewHub(observer.Config{
		Store:   st,
		Cfg:     cfg,
		Metrics: metrics,
		Logger:  logger,
	})
	go func() {
		if err := hub.Run(ctx); err != nil && ctx.Err() == nil {
			logger.Error("observer hub error", "error", err)
		}
	}()

	handler := api.NewHandler(api.Config{
		Store:      st,
		Coord:      coord,
		Canceller:  orch,
		Advisories: advisories,
		Logger:     logger,
	})

	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)
	mux.HandleFunc("/ws", hub.ServeWS)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:    cfg.APIAddr,
		Handler: mux,
	}

	go func() {
		logger.Info("listening", "addr", cfg.APIAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", "error", err)
	}

	// Даём hub'у закрыть подключения.
	time.Sleep(100 * time.Millisecond)
	logger.Info("crisislens-api stopped")
}
