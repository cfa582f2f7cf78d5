package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/openshelf/lendhub/internal/domain/job"
	"github.com/openshelf/lendhub/internal/jobs"
	"github.com/openshelf/lendhub/internal/notifications"
)

// ProcessOne claims and executes a single job. It reports whether a job was
// claimed at all so the poll loop knows when the backlog is drained.
func (w *Worker) ProcessOne(ctx context.Context) (bool, error) {
	claimCtx, cancel := context.WithTimeout(ctx, 2*time.Second)

	j, err := w.repo.ClaimNext(claimCtx, w.cfg.WorkerID)
	cancel()

	if err != nil {
		if errors.Is(err, job.ErrJobNotFound) {
			return false, nil
		}

		return false, err
	}

	w.prom.JobsInFlight.Inc()
	start := time.Now()

	err = w.execute(ctx, j)

	w.prom.JobsInFlight.Dec()

	if err != nil {
		result := w.handleFailure(ctx, j, err)
		w.prom.JobResults.WithLabelValues(j.Type, result).Inc()
		w.prom.JobDuration.WithLabelValues(j.Type, result).Observe(time.Since(start).Seconds())
		return true, nil
	}

	w.prom.JobResults.WithLabelValues(j.Type, "done").Inc()
	w.prom.JobDuration.WithLabelValues(j.Type, "done").Observe(time.Since(start).Seconds())

	err = w.repo.MarkDone(ctx, j.ID)

	if err != nil {
		_ = w.repo.MarkFailed(ctx, j.ID, "mark_done_failed: "+err.Error())
		return true, err
	}

	return true, nil
}

func (w *Worker) execute(ctx context.Context, j job.Job) error {
	decoded, err := jobs.DecodePayload(j.Type, j.Payload)

	if err != nil {
		// Permanent: a payload that did not decode today will not decode
		// tomorrow either.
		return fmt.Errorf("decode payload: %w", err)
	}

	switch p := decoded.(type) {
	case jobs.OnboardingWelcomePayload:
		if w.sends != nil {
			if err := w.sends.Wait(ctx); err != nil {
				return err
			}
		}

		return w.notifier.SendWelcome(ctx, notifications.SendWelcomeInput{
			Email:    p.Email,
			FullName: p.FullName,
			UserID:   p.UserID,
		})

	default:
		return jobs.ErrUnknownJobType
	}
}

// handleFailure decides between retry and terminal failure and returns the
// metrics result label.
func (w *Worker) handleFailure(ctx context.Context, j job.Job, execErr error) string {
	permanent := errors.Is(execErr, jobs.ErrUnknownJobType) ||
		errors.Is(execErr, jobs.ErrInvalidJobPayload)

	// Attempts counts prior failures; the attempt that just ran is +1.
	if permanent || j.Attempts+1 >= j.MaxAttempts {
		w.log.ErrorContext(ctx, "job failed",
			slog.String("jobId", j.ID),
			slog.String("type", j.Type),
			slog.Int("attempts", j.Attempts),
			slog.Any("error", execErr),
		)

		if err := w.repo.MarkFailed(ctx, j.ID, execErr.Error()); err != nil {
			w.log.ErrorContext(ctx, "mark job failed", slog.String("jobId", j.ID), slog.Any("error", err))
		}
		return "failed"
	}

	delay := ExponentialBackoff(j.Attempts)
	runAt := time.Now().UTC().Add(delay)

	w.log.WarnContext(ctx, "job retry scheduled",
		slog.String("jobId", j.ID),
		slog.String("type", j.Type),
		slog.Int("attempts", j.Attempts),
		slog.Duration("delay", delay),
		slog.Any("error", execErr),
	)

	if err := w.repo.Reschedule(ctx, j.ID, runAt, execErr.Error()); err != nil {
		w.log.ErrorContext(ctx, "reschedule job", slog.String("jobId", j.ID), slog.Any("error", err))
	}
	return "retry"
}
