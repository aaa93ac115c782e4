// Package janitor periodically removes conversation refs whose message was
// deleted by a rejected message request.
package janitor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/adhocore/gronx"

	"directchat/internal/domain"
	"directchat/internal/metrics"
)

const DefaultSchedule = "*/15 * * * *"

type Janitor struct {
	convs    domain.ConversationRepository
	schedule string
	log      *slog.Logger

	next func(after time.Time) (time.Time, error)
}

func New(convs domain.ConversationRepository, schedule string, log *slog.Logger) (*Janitor, error) {
	if schedule == "" {
		schedule = DefaultSchedule
	}
	if !gronx.IsValid(schedule) {
		return nil, fmt.Errorf("invalid janitor schedule %q", schedule)
	}
	j := &Janitor{convs: convs, schedule: schedule, log: log}
	j.next = func(after time.Time) (time.Time, error) {
		return gronx.NextTickAfter(j.schedule, after, false)
	}
	return j, nil
}

// RunOnce prunes dangling refs and returns how many were removed.
func (j *Janitor) RunOnce(ctx context.Context) (int64, error) {
	n, err := j.convs.PruneDanglingRefs(ctx)
	if err != nil {
		return 0, fmt.Errorf("prune dangling refs: %w", err)
	}
	metrics.RefsPruned.Add(float64(n))
	if n > 0 {
		j.log.Info("janitor_pruned", "refs", n)
	}
	return n, nil
}

// Run blocks, pruning on every tick of the schedule until ctx is done.
// Runs never overlap.
func (j *Janitor) Run(ctx context.Context) {
	j.log.Info("janitor_started", "schedule", j.schedule)
	for {
		next, err := j.next(time.Now().UTC())
		wait := time.Until(next)
		if err != nil {
			j.log.Error("janitor_nexttick_failed", "schedule", j.schedule, "err", err)
			wait = 30 * time.Second
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			j.log.Info("janitor_stopping")
			return
		case <-timer.C:
		}
		if err != nil {
			continue
		}

		if _, err := j.RunOnce(ctx); err != nil && ctx.Err() == nil {
			j.log.Error("janitor_run_failed", "err", err)
		}
	}
}
