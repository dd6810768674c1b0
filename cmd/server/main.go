package main

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/nadmax/nexdag/internal/alert"
	"github.com/nadmax/nexdag/internal/api"
	"github.com/nadmax/nexdag/internal/config"
	"github.com/nadmax/nexdag/internal/engine"
	"github.com/nadmax/nexdag/internal/metrics"
	"github.com/nadmax/nexdag/internal/middleware"
	"github.com/nadmax/nexdag/internal/plan"
	"github.com/nadmax/nexdag/internal/repository"
	"github.com/nadmax/nexdag/internal/repository/postgres"
	"github.com/nadmax/nexdag/internal/statestore"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	eng := engine.New(nil,
		engine.WithExecutor(engine.NewSimulatedExecutor(cfg.TimeScale, cfg.RandomSeed)),
		engine.WithMaxRetries(cfg.MaxRetries),
	)
	eng.Subscribe(metrics.NewRecorder())

	opts := []api.Option{api.WithBaseContext(ctx)}

	if cfg.RedisAddr != "" {
		store, err := statestore.NewStore(cfg.RedisAddr)
		if err != nil {
			log.Fatal(err)
		}

		defer func() {
			if err := store.Close(); err != nil {
				log.Printf("failed to close state store: %v", err)
			}
		}()

		mirror := statestore.NewMirror(store, eng)
		eng.Subscribe(mirror)
		opts = append(opts, api.WithStateStore(store, mirror))
		log.Printf("Mirroring task state to Redis at %s", cfg.RedisAddr)
	}

	if cfg.PostgresDSN != "" {
		repo, err := postgres.NewPostgresRunRepository(cfg.PostgresDSN)
		if err != nil {
			log.Fatal(err)
		}

		defer func() {
			if err := repo.Close(); err != nil {
				log.Printf("failed to close Postgres repository: %v", err)
			}
		}()

		if err := repo.EnsureSchema(ctx); err != nil {
			log.Fatal(err)
		}

		eng.Subscribe(repository.NewHistoryRecorder(repo))
		opts = append(opts, api.WithRunRepository(repo))
		log.Println("Recording run history to Postgres")
	}

	if cfg.Alert.Enabled() {
		eng.Subscribe(alert.NewFailureAlerter(cfg.Alert))
		log.Printf("Sending failure alerts to %s", cfg.Alert.To)
	}

	if cfg.PlanFile != "" {
		f, err := plan.Load(cfg.PlanFile)
		if err != nil {
			log.Fatal(err)
		}
		if err := plan.Apply(eng, f); err != nil {
			log.Fatal(err)
		}
		log.Printf("Loaded %d tasks from %s", len(f.Tasks), cfg.PlanFile)
	}

	apiHandler := api.NewAPI(eng, opts...)
	apiHandler.Handle("/metrics", promhttp.Handler())

	go startMetricsCollector(ctx, eng)

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           middleware.MetricsMiddleware(apiHandler),
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	go func() {
		<-ctx.Done()
		log.Println("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("failed to shut down server: %v", err)
		}
	}()

	log.Printf("Server starting on %s", cfg.Addr())

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal(err)
	}
}
