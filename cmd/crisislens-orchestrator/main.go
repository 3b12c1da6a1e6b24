// CrisisLens Orchestrator — процесс оркестрации верификации.
//
// Supervisor связывает потребителей raw-items с оркестратором,
// запускает восстановительный проход, подписку на решения операторов
// и напоминания review; на SIGTERM дренирует in-flight работу.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/adityashenoy-ai/CrisisLens-MumbaiHacks/internal/bus"
	"github.com/adityashenoy-ai/CrisisLens-MumbaiHacks/internal/config"
	"github.com/adityashenoy-ai/CrisisLens-MumbaiHacks/internal/orchestrator"
	"github.com/adityashenoy-ai/CrisisLens-MumbaiHacks/internal/repo"
	"github.com/adityashenoy-ai/CrisisLens-MumbaiHacks/internal/review"
	"github.com/adityashenoy-ai/CrisisLens-MumbaiHacks/internal/runtime"
	"github.com/adityashenoy-ai/CrisisLens-MumbaiHacks/internal/stages"
	"github.com/adityashenoy-ai/CrisisLens-MumbaiHacks/internal/store"
	"github.com/adityashenoy-ai/CrisisLens-MumbaiHacks/internal/supervisor"
	"github.com/adityashenoy-ai/CrisisLens-MumbaiHacks/internal/telemetry"
)

func main() {
	logger := telemetry.SetupLogger()
	logger.Info("starting crisislens-orchestrator")

	// graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load(os.Getenv("CRISISLENS_CONFIG"))
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	metrics := telemetry.InitMetrics(prometheus.DefaultRegisterer)

	// State Store
	st, err := store.NewRedisStore(ctx, cfg.StoreURL, logger)
	if err != nil {
		logger.Error("failed to connect to state store", "error", err)
		os.Exit(1)
	}
	defer st.Close()

	// Event bus
	conn, err := bus.NewConnection(cfg.BusURL, logger)
	if err != nil {
		logger.Error("failed to connect to event bus", "error", err)
		os.Exit(1)
	}
	defer conn.Close()
	publisher := bus.NewPublisher(conn, logger)

	// Архив предупреждений (опционален).
	deps := stages.Deps{}
	if cfg.ArchiveURL != "" {
		pool, err := repo.NewPool(ctx, cfg.ArchiveURL)
		if err != nil {
			logger.Error("failed to connect to advisory archive", "error", err)
			os.Exit(1)
		}
		defer pool.Close()
		deps.Archive = repo.NewAdvisoryRepo(pool)
		logger.Info("advisory archive connected")
	}
	if endpoint := os.Getenv("CRISISLENS_FACTCHECK_URL"); endpoint != "" {
		deps.FactCheck = stages.NewHTTPCollaborator(endpoint)
	}
	if endpoint := os.Getenv("CRISISLENS_TRANSLATOR_URL"); endpoint != "" {
		deps.Translator = stages.NewHTTPCollaborator(endpoint)
	}

	rt := runtime.New(runtime.Config{
		Store:   st,
		Cfg:     cfg,
		Metrics: metrics,
		Logger:  logger,
	})

	orch := orchestrator.New(orchestrator.Config{
		Store:     st,
		Publisher: publisher,
		Runtime:   rt,
		Stages:    stages.DefaultSet(deps),
		Cfg:       cfg,
		Metrics:   metrics,
		Logger:    logger,
	})

	coord := review.New(review.Config{
		Store:     st,
		Publisher: publisher,
		Cfg:       cfg,
		Metrics:   metrics,
		Logger:    logger,
	})

	sup := supervisor.New(supervisor.Config{
		Cfg:       cfg,
		Logger:    logger,
		Conn:      conn,
		Publisher: publisher,
		Orch:      orch,
		Coord:     coord,
	})

	if err := sup.Start(ctx); err != nil {
		logger.Error("failed to start supervisor", "error", err)
		os.Exit(1)
	}

	// HTTP mux: /healthz + /metrics
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.Handler())

	go func() {
		logger.Info("listening", "addr", cfg.OrchestratorAddr)
		if err := http.ListenAndServe(cfg.OrchestratorAddr, mux); err != nil {
			logger.Error("http server error", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()

	sup.Stop()
	logger.Info("crisislens-orchestrator stopped")
}
