package worker

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/openshelf/lendhub/internal/domain/job"
	"github.com/openshelf/lendhub/internal/notifications"
	"github.com/openshelf/lendhub/internal/observability"
)

type JobsRepository interface {
	ClaimNext(ctx context.Context, workerID string) (job.Job, error)
	MarkDone(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string, errMsg string) error
	Reschedule(ctx context.Context, id string, runAt time.Time, errMsg string) error
	RequeueStaleProcessing(ctx context.Context, lockTTL time.Duration) (int64, error)
}

type Config struct {
	WorkerID     string
	PollInterval time.Duration
	LockTTL      time.Duration

	// SendsPerSecond throttles outbound notifications so a burst of
	// signups does not hammer the provider. Zero means no throttle.
	SendsPerSecond float64
}

type Worker struct {
	cfg      Config
	repo     JobsRepository
	notifier notifications.Notifier
	log      *slog.Logger
	prom     *observability.Prom
	sends    *rate.Limiter

	readyMu sync.RWMutex
	ready   bool
}

func New(cfg Config, repo JobsRepository, notifier notifications.Notifier, log *slog.Logger, prom *observability.Prom) *Worker {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 500 * time.Millisecond
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 2 * time.Minute
	}

	var sends *rate.Limiter
	if cfg.SendsPerSecond > 0 {
		sends = rate.NewLimiter(rate.Limit(cfg.SendsPerSecond), 1)
	}

	return &Worker{
		cfg:      cfg,
		repo:     repo,
		notifier: notifier,
		log:      log,
		prom:     prom,
		sends:    sends,
	}
}

func (w *Worker) Run(ctx context.Context) error {
	w.setReady(true)
	defer w.setReady(false)

	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	reaper := time.NewTicker(w.cfg.LockTTL / 2)
	defer reaper.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info("worker received shutdown signal")
			return nil

		case <-reaper.C:
			n, err := w.repo.RequeueStaleProcessing(ctx, w.cfg.LockTTL)

			if err != nil {
				w.log.ErrorContext(ctx, "requeue stale jobs", slog.Any("error", err))
				continue
			}
			if n > 0 {
				w.log.WarnContext(ctx, "requeued stale jobs", slog.Int64("count", n))
			}

		case <-ticker.C:
			// Drain the backlog before sleeping again.
			for {
				processed, err := w.ProcessOne(ctx)

				if err != nil {
					w.log.ErrorContext(ctx, "process job", slog.Any("error", err))
					break
				}
				if !processed {
					break
				}
			}
		}
	}
}

func (w *Worker) setReady(v bool) {
	w.readyMu.Lock()
	w.ready = v
	w.readyMu.Unlock()
}

func (w *Worker) HealthHandler() http.Handler {
	r := gin.New()

	r.Use(gin.Recovery())

	// liveness: process is up
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})

	// readiness: the poll loop is running
	r.GET("/readyz", func(c *gin.Context) {
		w.readyMu.RLock()
		ready := w.ready
		w.readyMu.RUnlock()

		if !ready {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	return r
}
