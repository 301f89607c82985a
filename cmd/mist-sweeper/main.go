// Mist Sweeper — чистит истёкшие записи кэша результатов.
//
// Чтение кэша не фильтрует по expires_at: устаревание обеспечивает
// sweeper по расписанию. При нескольких экземплярах лидер выбирается
// advisory lock'ом в Postgres.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/billyhotjava/mist-ce/internal/repo"
	"github.com/billyhotjava/mist-ce/internal/sweeper"
	"github.com/billyhotjava/mist-ce/internal/telemetry"
)

func main() {
	// Инициализируем structured logging
	logger := telemetry.SetupLogger()
	logger.Info("starting mist-sweeper")

	// graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// DB pool
	pool, err := repo.NewPool(ctx)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	logger.Info("database connected")

	s, err := sweeper.New(sweeper.Config{
		Store:    repo.NewKVRepo(pool),
		Leader:   repo.NewIdentityLock(pool),
		CronExpr: os.Getenv("SWEEP_CRON"),
		Logger:   logger,
	})
	if err != nil {
		logger.Error("failed to create sweeper", "error", err)
		os.Exit(1)
	}

	if err := s.Start(ctx); err != nil {
		logger.Error("failed to start sweeper", "error", err)
		os.Exit(1)
	}

	// HTTP mux: /healthz + /metrics
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.Handler())

	port := ":8083"
	if v := os.Getenv("SWEEPER_PORT"); v != "" {
		port = ":" + v
	}

	go func() {
		logger.Info("listening", "addr", port)
		if err := http.ListenAndServe(port, mux); err != nil {
			logger.Error("http server error", "error", err)
			cancel()
		}
	}()

	// Ожидаем сигнал завершения
	<-ctx.Done()

	s.Stop()
	logger.Info("mist-sweeper stopped")
}
