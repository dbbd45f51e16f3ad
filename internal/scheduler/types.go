// Package scheduler implements the scheduled jobs: the nightly frost
// broadcast, the API forecast refresh and the registration reminders.
//
// Jobs are triggered by EventBridge rules through a single Lambda. The
// JobPayload names the task; see Dispatcher.
package scheduler

import (
	"sort"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
)

// TaskType identifies which job a payload triggers.
type TaskType string

const (
	TaskBroadcastFrost TaskType = "broadcast_frost"
	TaskRefreshWeather TaskType = "refresh_weather"
	TaskSendReminders  TaskType = "send_reminders"
)

// JobPayload is the JSON payload sent by EventBridge:
//
//	{
//	  "task": "broadcast_frost",
//	  "reference_time": "2024-01-05T17:30:00Z"  // optional
//	}
//
// ReferenceTime overrides "now" for manual runs and backfills.
type JobPayload struct {
	Task          TaskType   `json:"task"`
	ReferenceTime *time.Time `json:"reference_time,omitempty"`
}

// Skip reasons reported in RunSummary and the FarmSkipped metric.
const (
	SkipNoPhone     = "no_phone"
	SkipBlocked     = "blocked"
	SkipOptedOut    = "opted_out"
	SkipAlreadySent = "already_sent"
	SkipNoRisk      = "no_risk"
)

// RunSummary is the outcome of one job run. Failures never abort a run;
// they are collected in Errors.
type RunSummary struct {
	Task       TaskType       `json:"task"`
	RunDate    string         `json:"run_date"`
	Considered int            `json:"considered"`
	Done       int            `json:"done"`
	Skipped    map[string]int `json:"skipped"`
	Failed     int            `json:"failed"`
	Errors     error          `json:"-"`
}

// SkipReasons returns the skip reasons in a stable order.
func (s *RunSummary) SkipReasons() []string {
	reasons := make([]string, 0, len(s.Skipped))
	for r := range s.Skipped {
		reasons = append(reasons, r)
	}
	sort.Strings(reasons)
	return reasons
}

// tally accumulates a RunSummary from concurrent workers.
type tally struct {
	mu      sync.Mutex
	summary RunSummary
	errs    *multierror.Error
}

func newTally(task TaskType, runDate string, considered int) *tally {
	return &tally{summary: RunSummary{
		Task:       task,
		RunDate:    runDate,
		Considered: considered,
		Skipped:    map[string]int{},
	}}
}

func (t *tally) done() {
	t.mu.Lock()
	t.summary.Done++
	t.mu.Unlock()
}

func (t *tally) skip(reason string) {
	t.mu.Lock()
	t.summary.Skipped[reason]++
	t.mu.Unlock()
}

func (t *tally) fail(err error) {
	t.mu.Lock()
	t.summary.Failed++
	t.errs = multierror.Append(t.errs, err)
	t.mu.Unlock()
}

func (t *tally) result() *RunSummary {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := t.summary
	s.Errors = t.errs.ErrorOrNil()
	return &s
}
