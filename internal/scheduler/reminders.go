package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"agriweather/internal/db"
	"agriweather/internal/forecasts"
	"agriweather/internal/notifications"
	"agriweather/internal/types"
)

// ReminderKind selects the reminder a user receives. A user gets at most one
// reminder per run, the first kind that applies in this order.
type ReminderKind string

const (
	// ReminderRegister: the user has no farm.
	ReminderRegister ReminderKind = "register"
	// ReminderNoLocation: none of the user's farms has a location.
	ReminderNoLocation ReminderKind = "no_location"
	// ReminderIncomplete: a farm has other registration steps missing.
	ReminderIncomplete ReminderKind = "incomplete"
)

var reminderText = map[ReminderKind]string{
	ReminderRegister:   "Dear farmer, please register your orchard so we can send forecasts and advice specific to your farm.",
	ReminderNoLocation: "Dear farmer, one step remains before we can send advice for your farm: please register its location.",
	ReminderIncomplete: "Dear farmer, your farm registration is incomplete. Please complete it to receive forecasts for your farm.",
}

var reminderAdvisory = map[ReminderKind]types.AdvisoryKind{
	ReminderRegister:   types.AdvisoryReminderRegister,
	ReminderNoLocation: types.AdvisoryReminderNoLocation,
	ReminderIncomplete: types.AdvisoryReminderIncomplete,
}

// ReminderText returns the SMS body for kind with the footer appended.
func ReminderText(kind ReminderKind, footer string) string {
	text := reminderText[kind]
	if text == "" || footer == "" {
		return text
	}
	return text + "\n" + footer
}

// UserLister lists users who never added a farm.
type UserLister interface {
	ListWithoutFarms(ctx context.Context) ([]*types.User, error)
}

// pendingReminder is one user and the reminder selected for them.
type pendingReminder struct {
	user *types.User
	kind ReminderKind
}

// selectReminders picks one reminder per user. Users come from two sources:
// those without farms and owners of the listed farms.
func selectReminders(noFarms []*types.User, farms []types.OwnedFarm) []pendingReminder {
	var out []pendingReminder
	for _, u := range noFarms {
		out = append(out, pendingReminder{user: u, kind: ReminderRegister})
	}

	type ownerState struct {
		user       *types.User
		located    bool
		incomplete bool
	}
	var order []string
	owners := map[string]*ownerState{}
	for _, of := range farms {
		st, ok := owners[of.Owner.ID]
		if !ok {
			st = &ownerState{user: of.Owner}
			owners[of.Owner.ID] = st
			order = append(order, of.Owner.ID)
		}
		if of.Farm.HasLocation() {
			st.located = true
		}
		if types.DeriveStatus(of.Farm) == types.FarmIncomplete {
			st.incomplete = true
		}
	}
	for _, id := range order {
		st := owners[id]
		switch {
		case !st.located:
			out = append(out, pendingReminder{user: st.user, kind: ReminderNoLocation})
		case st.incomplete:
			out = append(out, pendingReminder{user: st.user, kind: ReminderIncomplete})
		}
	}
	return out
}

// Reminders nudges users whose registration stops short of receiving
// advisories.
type Reminders struct {
	users   UserLister
	farms   FarmLister
	outbox  SMSPublisher
	log     AdvisoryLog
	metrics notifications.Metrics
	window  forecasts.DaytimeWindow
	footer  string
	logger  *slog.Logger
}

// NewReminders creates the reminder job. log and metrics may be nil.
func NewReminders(users UserLister, farms FarmLister, outbox SMSPublisher, log AdvisoryLog,
	metrics notifications.Metrics, cfg JobConfig, logger *slog.Logger) *Reminders {
	if metrics == nil {
		metrics = notifications.NopMetrics{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Reminders{
		users:   users,
		farms:   farms,
		outbox:  outbox,
		log:     log,
		metrics: metrics,
		window:  cfg.Window,
		footer:  cfg.Footer,
		logger:  logger,
	}
}

// Run sends the reminders. Each user/kind pair is sent at most once per
// local day.
func (r *Reminders) Run(ctx context.Context, now time.Time) (*RunSummary, error) {
	noFarms, err := r.users.ListWithoutFarms(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing users without farms: %w", err)
	}
	farms, err := r.farms.ListWithOwners(ctx, db.FarmFilter{})
	if err != nil {
		return nil, fmt.Errorf("listing farms: %w", err)
	}

	pending := selectReminders(noFarms, farms)
	runDate := r.window.LocalDay(now).Format(forecasts.DayLayout)
	t := newTally(TaskSendReminders, runDate, len(pending))

	for _, p := range pending {
		if err := ctx.Err(); err != nil {
			t.fail(err)
			break
		}
		r.remind(ctx, t, p, runDate)
	}

	summary := t.result()
	if err := r.metrics.Flush(ctx); err != nil {
		r.logger.WarnContext(ctx, "metrics flush failed", "error", err)
	}
	r.logger.InfoContext(ctx, "reminders finished",
		"users", summary.Considered, "sent", summary.Done,
		"skipped", summary.Skipped, "failed", summary.Failed)
	return summary, nil
}

func (r *Reminders) remind(ctx context.Context, t *tally, p pendingReminder, runDate string) {
	if reason := ownerSkipReason(p.user); reason != "" {
		t.skip(reason)
		return
	}
	kind := reminderAdvisory[p.kind]

	if r.log != nil {
		sent, err := r.log.Sent(ctx, p.user.ID, "", kind, runDate)
		if err != nil {
			t.fail(fmt.Errorf("user %s: checking advisory log: %w", p.user.ID, err))
			return
		}
		if sent {
			t.skip(SkipAlreadySent)
			return
		}
	}

	body := ReminderText(p.kind, r.footer)
	msgID, err := r.outbox.Publish(ctx, notifications.SMSMessage{
		To:     p.user.Phone,
		Body:   body,
		Kind:   kind,
		UserID: p.user.ID,
	})
	if err != nil {
		t.fail(fmt.Errorf("user %s: %w", p.user.ID, err))
		return
	}
	t.done()
	r.metrics.Count(types.MetricReminderSent, 1, map[string]string{types.DimKind: string(p.kind)})

	if r.log != nil {
		if _, err := r.log.Record(ctx, &types.AdvisoryLogEntry{
			UserID:    p.user.ID,
			Kind:      kind,
			RunDate:   runDate,
			MessageID: msgID,
			Body:      body,
		}); err != nil {
			r.logger.WarnContext(ctx, "failed to record reminder", "user_id", p.user.ID, "error", err)
		}
	}
}
