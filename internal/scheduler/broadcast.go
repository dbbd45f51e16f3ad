package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"agriweather/internal/advisory"
	"agriweather/internal/db"
	"agriweather/internal/forecasts"
	"agriweather/internal/notifications"
	"agriweather/internal/types"
)

// Defaults for JobConfig zero values.
const (
	DefaultConcurrency = 8
	DefaultMaxAttempts = 3
	DefaultRetryWait   = 2 * time.Second
)

// FarmLister lists farms joined with their owners.
type FarmLister interface {
	ListWithOwners(ctx context.Context, filter db.FarmFilter) ([]types.OwnedFarm, error)
}

// FrostAdvisor builds the frost advisory of a farm as of now.
type FrostAdvisor interface {
	FrostAdvisory(ctx context.Context, farm *types.Farm, now time.Time) (*forecasts.FrostAdvisory, error)
}

// AssemblerAdvisor adapts a ReportAssembler to FrostAdvisor.
type AssemblerAdvisor struct {
	Assembler *forecasts.ReportAssembler
}

// FrostAdvisory implements FrostAdvisor.
func (a AssemblerAdvisor) FrostAdvisory(ctx context.Context, farm *types.Farm, now time.Time) (*forecasts.FrostAdvisory, error) {
	return a.Assembler.At(now).AssembleFrostAdvisory(ctx, farm)
}

// SMSPublisher hands a message to the SMS outbox.
type SMSPublisher interface {
	Publish(ctx context.Context, msg notifications.SMSMessage) (string, error)
}

// AdvisoryLog remembers what was sent so a retried run does not message a
// farmer twice.
type AdvisoryLog interface {
	Sent(ctx context.Context, userID, farmID string, kind types.AdvisoryKind, runDate string) (bool, error)
	Record(ctx context.Context, e *types.AdvisoryLogEntry) (bool, error)
}

// JobConfig holds the settings shared by the scheduled jobs. Zero values
// fall back to the defaults.
type JobConfig struct {
	Product     types.ProductType
	Window      forecasts.DaytimeWindow
	Concurrency int
	MaxAttempts int
	RetryWait   time.Duration
	Footer      string
}

// FrostBroadcaster sends the nightly frost SMS to every reachable owner of a
// located farm growing the configured product.
type FrostBroadcaster struct {
	farms   FarmLister
	advisor FrostAdvisor
	outbox  SMSPublisher
	log     AdvisoryLog
	metrics notifications.Metrics
	cfg     JobConfig
	retry   retrier
	logger  *slog.Logger
}

// NewFrostBroadcaster creates a broadcaster. metrics may be nil.
func NewFrostBroadcaster(farms FarmLister, advisor FrostAdvisor, outbox SMSPublisher, log AdvisoryLog,
	metrics notifications.Metrics, cfg JobConfig, logger *slog.Logger) *FrostBroadcaster {
	if cfg.Product == "" {
		cfg.Product = types.ProductPistachio
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.RetryWait <= 0 {
		cfg.RetryWait = DefaultRetryWait
	}
	if metrics == nil {
		metrics = notifications.NopMetrics{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &FrostBroadcaster{
		farms:   farms,
		advisor: advisor,
		outbox:  outbox,
		log:     log,
		metrics: metrics,
		cfg:     cfg,
		retry:   newRetrier(cfg.MaxAttempts, cfg.RetryWait),
		logger:  logger,
	}
}

// Run broadcasts to every eligible farm. Only a failure to list farms is
// returned as an error; per-farm failures are counted in the summary.
func (b *FrostBroadcaster) Run(ctx context.Context, now time.Time) (*RunSummary, error) {
	start := time.Now()
	located := true
	farms, err := b.farms.ListWithOwners(ctx, db.FarmFilter{Product: b.cfg.Product, Located: &located})
	if err != nil {
		return nil, fmt.Errorf("listing %s farms: %w", b.cfg.Product, err)
	}

	runDate := b.cfg.Window.LocalDay(now).Format(forecasts.DayLayout)
	t := newTally(TaskBroadcastFrost, runDate, len(farms))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.cfg.Concurrency)
	for _, of := range farms {
		g.Go(func() error {
			b.broadcastFarm(gctx, t, of, now, runDate)
			// Farm failures are isolated; never cancel the siblings.
			return nil
		})
	}
	_ = g.Wait()

	summary := t.result()
	b.metrics.Duration(types.MetricBroadcastDuration, time.Since(start),
		map[string]string{types.DimProduct: string(b.cfg.Product)})
	if err := b.metrics.Flush(ctx); err != nil {
		b.logger.WarnContext(ctx, "metrics flush failed", "error", err)
	}

	b.logger.InfoContext(ctx, "frost broadcast finished",
		"run_date", runDate,
		"farms", summary.Considered,
		"sent", summary.Done,
		"skipped", summary.Skipped,
		"failed", summary.Failed,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return summary, nil
}

func (b *FrostBroadcaster) skip(ctx context.Context, t *tally, farm *types.Farm, reason string) {
	t.skip(reason)
	b.metrics.Count(types.MetricFarmSkipped, 1, map[string]string{types.DimReason: reason})
	b.logger.DebugContext(ctx, "farm skipped", "farm_id", farm.ID, "reason", reason)
}

func (b *FrostBroadcaster) broadcastFarm(ctx context.Context, t *tally, of types.OwnedFarm, now time.Time, runDate string) {
	farm, owner := of.Farm, of.Owner
	if reason := ownerSkipReason(owner); reason != "" {
		b.skip(ctx, t, farm, reason)
		return
	}

	if b.log != nil {
		sent, err := b.log.Sent(ctx, owner.ID, farm.ID, types.AdvisoryFrost, runDate)
		if err != nil {
			t.fail(fmt.Errorf("farm %s: checking advisory log: %w", farm.ID, err))
			return
		}
		if sent {
			b.skip(ctx, t, farm, SkipAlreadySent)
			return
		}
	}

	var adv *forecasts.FrostAdvisory
	err := b.retry.do(ctx, func(ctx context.Context) error {
		var err error
		adv, err = b.advisor.FrostAdvisory(ctx, farm, now)
		return err
	})
	if err != nil {
		code := types.CodeOf(err)
		b.metrics.Count(types.MetricReportFailure, 1, map[string]string{types.DimReason: string(code)})
		switch code {
		case types.ErrCodeDataUnavailable, types.ErrCodeNoNearbyPoint, types.ErrCodeIncompleteFarmData:
			b.skip(ctx, t, farm, string(code))
		default:
			t.fail(fmt.Errorf("farm %s: %w", farm.ID, err))
		}
		return
	}

	body := advisory.ComposeFrostSMS(farm.Name, adv.Buckets, b.cfg.Footer)
	if body == "" {
		b.skip(ctx, t, farm, SkipNoRisk)
		return
	}

	var msgID string
	err = b.retry.do(ctx, func(ctx context.Context) error {
		var err error
		msgID, err = b.outbox.Publish(ctx, notifications.SMSMessage{
			To:     owner.Phone,
			Body:   body,
			Kind:   types.AdvisoryFrost,
			UserID: owner.ID,
			FarmID: farm.ID,
		})
		return err
	})
	if err != nil {
		t.fail(fmt.Errorf("farm %s: %w", farm.ID, err))
		return
	}

	t.done()
	b.metrics.Count(types.MetricAdvisorySent, 1, map[string]string{
		types.DimTier:    string(adv.HighestTier),
		types.DimProduct: string(farm.Product),
	})

	if b.log != nil {
		_, err := b.log.Record(ctx, &types.AdvisoryLogEntry{
			UserID:      owner.ID,
			FarmID:      farm.ID,
			Kind:        types.AdvisoryFrost,
			RunDate:     runDate,
			FileDate:    adv.FileDate,
			HighestTier: string(adv.HighestTier),
			MessageID:   msgID,
			Body:        body,
		})
		if err != nil {
			// The message is already queued; a missing log row only risks a
			// duplicate on a retried run.
			b.logger.WarnContext(ctx, "failed to record advisory", "farm_id", farm.ID, "error", err)
		}
	}
}
