package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"agriweather/internal/advisory"
	"agriweather/internal/db"
	"agriweather/internal/forecasts"
	"agriweather/internal/notifications"
	"agriweather/internal/types"
)

// 17:30 UTC is 21:00 in Tehran.
var runTime = time.Date(2024, 1, 5, 17, 30, 0, 0, time.UTC)

func tehranWindow(t *testing.T) forecasts.DaytimeWindow {
	t.Helper()
	w, err := forecasts.ParseDaytimeWindow("Asia/Tehran", "07:00", "20:30")
	if err != nil {
		t.Fatalf("window: %v", err)
	}
	return w
}

func noSleep(ctx context.Context, _ time.Duration) error { return ctx.Err() }

func owner(id, phone string) *types.User {
	return &types.User{ID: id, Name: id, Phone: phone}
}

func locatedFarm(id, ownerID string) *types.Farm {
	area := 5.0
	return &types.Farm{
		ID:           id,
		OwnerID:      ownerID,
		Name:         "Farm " + id,
		Product:      types.ProductPistachio,
		Province:     "Kerman",
		City:         "Rafsanjan",
		Village:      "Bahreman",
		AreaHectares: &area,
		Location:     &types.Coordinate{Lat: 30.4, Lon: 56.0},
	}
}

// --- FarmLister ---

type fakeFarms struct {
	mu      sync.Mutex
	farms   []types.OwnedFarm
	err     error
	filters []db.FarmFilter
}

func (f *fakeFarms) ListWithOwners(_ context.Context, filter db.FarmFilter) ([]types.OwnedFarm, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.filters = append(f.filters, filter)
	if f.err != nil {
		return nil, f.err
	}
	var out []types.OwnedFarm
	for _, of := range f.farms {
		if filter.Product != "" && of.Farm.Product != filter.Product {
			continue
		}
		if filter.Located != nil && of.Farm.HasLocation() != *filter.Located {
			continue
		}
		out = append(out, of)
	}
	return out, nil
}

// --- FrostAdvisor ---

type advisorStep struct {
	adv *forecasts.FrostAdvisory
	err error
}

// fakeAdvisor replays a script of results per farm; the last step repeats.
type fakeAdvisor struct {
	mu     sync.Mutex
	script map[string][]advisorStep
	calls  map[string]int
	nows   []time.Time
}

func newFakeAdvisor() *fakeAdvisor {
	return &fakeAdvisor{script: map[string][]advisorStep{}, calls: map[string]int{}}
}

func (a *fakeAdvisor) on(farmID string, steps ...advisorStep) {
	a.script[farmID] = steps
}

func (a *fakeAdvisor) FrostAdvisory(_ context.Context, farm *types.Farm, now time.Time) (*forecasts.FrostAdvisory, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.nows = append(a.nows, now)
	steps := a.script[farm.ID]
	i := min(a.calls[farm.ID], len(steps)-1)
	a.calls[farm.ID]++
	if i < 0 {
		return nil, types.NewAppError(types.ErrCodeDataUnavailable, "no script", nil)
	}
	return steps[i].adv, steps[i].err
}

func frostAdvisory(t *testing.T, farm *types.Farm, frostCode, windCode int) *forecasts.FrostAdvisory {
	t.Helper()
	risk, err := advisory.ClassifyRisk(frostCode, windCode)
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	buckets := []advisory.BucketRisk{{
		Bucket:    advisory.BucketKey(1, 1),
		Date:      "01/06",
		Weekday:   "Saturday",
		Hours:     advisory.PeriodHours(1),
		FrostCode: frostCode,
		WindCode:  windCode,
		Risk:      risk,
	}}
	return &forecasts.FrostAdvisory{
		FarmID:      farm.ID,
		FarmName:    farm.Name,
		FileDate:    "20240105",
		Buckets:     buckets,
		Messages:    advisory.Messages(buckets),
		HighestTier: advisory.HighestTier(buckets),
	}
}

// --- SMSPublisher ---

type fakeOutbox struct {
	mu      sync.Mutex
	msgs    []notifications.SMSMessage
	failFor map[string]error
}

func (o *fakeOutbox) Publish(_ context.Context, msg notifications.SMSMessage) (string, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if err := o.failFor[msg.UserID]; err != nil {
		return "", err
	}
	o.msgs = append(o.msgs, msg)
	return "msg-" + msg.UserID + "-" + msg.FarmID, nil
}

func (o *fakeOutbox) byUser() map[string]notifications.SMSMessage {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := map[string]notifications.SMSMessage{}
	for _, m := range o.msgs {
		out[m.UserID] = m
	}
	return out
}

// --- AdvisoryLog ---

type logKey struct {
	user, farm string
	kind       types.AdvisoryKind
	day        string
}

type fakeLog struct {
	mu       sync.Mutex
	sent     map[logKey]bool
	recorded []types.AdvisoryLogEntry
}

func newFakeLog() *fakeLog { return &fakeLog{sent: map[logKey]bool{}} }

func (l *fakeLog) Sent(_ context.Context, userID, farmID string, kind types.AdvisoryKind, runDate string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.sent[logKey{userID, farmID, kind, runDate}], nil
}

func (l *fakeLog) Record(_ context.Context, e *types.AdvisoryLogEntry) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	k := logKey{e.UserID, e.FarmID, e.Kind, e.RunDate}
	if l.sent[k] {
		return false, nil
	}
	l.sent[k] = true
	l.recorded = append(l.recorded, *e)
	return true, nil
}

// --- Metrics ---

type recordingMetrics struct {
	mu      sync.Mutex
	counts  map[string]float64
	flushed int
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{counts: map[string]float64{}}
}

func (m *recordingMetrics) Count(metric string, value float64, dims map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counts[metric] += value
	for k, v := range dims {
		m.counts[metric+"/"+k+"="+v] += value
	}
}

func (m *recordingMetrics) Duration(string, time.Duration, map[string]string) {}

func (m *recordingMetrics) Flush(context.Context) error {
	m.mu.Lock()
	m.flushed++
	m.mu.Unlock()
	return nil
}
