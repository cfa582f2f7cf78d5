package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/openshelf/lendhub/internal/config"
	"github.com/openshelf/lendhub/internal/db"
	"github.com/openshelf/lendhub/internal/notifications"
	"github.com/openshelf/lendhub/internal/observability"
	"github.com/openshelf/lendhub/internal/queue/worker"
	"github.com/openshelf/lendhub/internal/repo/postgres"
)

func main() {
	cfg := config.Load()

	log := observability.NewLogger(cfg.Env)

	ctx, stop := signal.NotifyContext(
		context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
	)
	defer stop()

	pool, err := db.NewPool(cfg.DBURL)

	if err != nil {
		log.Error("db connect failed", "err", err)
		os.Exit(1)
	}

	defer pool.Close()

	prom := observability.NewProm(prometheus.NewRegistry())
	jobsRepo := postgres.NewJobsRepo(pool, prom)

	var provider notifications.Notifier

	if cfg.NotifierURL != "" {
		provider = notifications.NewHTTPNotifier(cfg.NotifierURL)
	} else {
		provider = notifications.NewLogNotifier(log)
	}

	notifier := notifications.NewProtectedNotifier(provider, notifications.ProtectedNotifierConfig{})

	host, _ := os.Hostname()
	workerID := host + "-" + strconv.Itoa(os.Getpid())

	w := worker.New(worker.Config{
		WorkerID:       workerID,
		PollInterval:   500 * time.Millisecond,
		LockTTL:        2 * time.Minute,
		SendsPerSecond: 10,
	}, jobsRepo, notifier, log, prom)

	// health endpoints on a side port
	healthSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.WorkerPort),
		Handler:           w.HealthHandler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := healthSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("worker health server failed", "err", err)
		}
	}()

	log.Info("worker started", "workerId", workerID)

	if err := w.Run(ctx); err != nil {
		log.Error("worker stopped with error", "err", err)
	}

	sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = healthSrv.Shutdown(sctx)

	log.Info("worker shutdown complete")
}
