package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"

	"agriweather/internal/types"
)

// Job is one scheduled task.
type Job interface {
	Run(ctx context.Context, now time.Time) (*RunSummary, error)
}

// Dispatcher routes a JobPayload to its job. One Lambda serves all tasks.
type Dispatcher struct {
	jobs   map[TaskType]Job
	clock  types.Clock
	logger *slog.Logger
}

// NewDispatcher creates a dispatcher for jobs.
func NewDispatcher(jobs map[TaskType]Job, clock types.Clock, logger *slog.Logger) *Dispatcher {
	if clock == nil {
		clock = types.RealClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{jobs: jobs, clock: clock, logger: logger}
}

// Handle runs the task named by payload. It fails when the task is unknown,
// when the job cannot start, or when every item of a non-empty run failed;
// the last case lets the Lambda retry policy try again while the advisory
// log keeps already delivered messages from repeating.
func (d *Dispatcher) Handle(ctx context.Context, payload JobPayload) (*RunSummary, error) {
	if payload.Task == "" {
		return nil, fmt.Errorf("empty task type in job payload")
	}
	job, ok := d.jobs[payload.Task]
	if !ok || job == nil {
		return nil, fmt.Errorf("unknown task type: %q", payload.Task)
	}

	now := d.clock.Now().UTC()
	if payload.ReferenceTime != nil {
		now = payload.ReferenceTime.UTC()
	}

	if types.GetRequestID(ctx) == "" {
		ctx = types.WithRequestID(ctx, uuid.NewString())
	}
	d.logger.InfoContext(ctx, "scheduled job invoked",
		"task", string(payload.Task),
		"reference_time", now.Format(time.RFC3339),
		"request_id", types.GetRequestID(ctx),
	)

	summary, err := job.Run(ctx, now)
	if err != nil {
		d.logger.ErrorContext(ctx, "scheduled job failed", "task", string(payload.Task), "error", err)
		return nil, fmt.Errorf("task %s failed: %w", payload.Task, err)
	}
	if summary.Errors != nil {
		level := slog.LevelWarn
		n := countUnrecoverable(summary.Errors)
		if n > 0 {
			level = slog.LevelError
		}
		d.logger.Log(ctx, level, "scheduled job finished with failures",
			"task", string(payload.Task),
			"failed", summary.Failed,
			"unrecoverable", n,
			"skip_reasons", summary.SkipReasons(),
			"error", summary.Errors,
		)
	}
	if summary.Failed > 0 && summary.Done == 0 && summary.Failed == summary.Considered {
		return summary, fmt.Errorf("task %s: all %d items failed: %w", payload.Task, summary.Failed, summary.Errors)
	}
	return summary, nil
}

// countUnrecoverable counts the failures that point at the system rather
// than at one item, such as a database outage.
func countUnrecoverable(err error) int {
	var merr *multierror.Error
	if !errors.As(err, &merr) {
		if err != nil && !types.Recoverable(err) {
			return 1
		}
		return 0
	}
	n := 0
	for _, e := range merr.Errors {
		if !types.Recoverable(e) {
			n++
		}
	}
	return n
}
