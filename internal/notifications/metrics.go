package notifications

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"agriweather/internal/types"
)

// maxDatumsPerCall is the PutMetricData limit on datums per request.
const maxDatumsPerCall = 1000

// CloudWatchClient abstracts the CloudWatch PutMetricData operation for
// testability.
type CloudWatchClient interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// Metrics records job counters. Implementations must be safe for concurrent
// use; the broadcaster records from many goroutines.
type Metrics interface {
	Count(metric string, value float64, dims map[string]string)
	Duration(metric string, d time.Duration, dims map[string]string)
	Flush(ctx context.Context) error
}

// CloudWatchMetrics buffers datums in memory and sends them on Flush. Jobs
// flush once at the end of a run. A nil client disables sending.
type CloudWatchMetrics struct {
	client    CloudWatchClient
	namespace string
	clock     types.Clock
	logger    *slog.Logger

	mu      sync.Mutex
	pending []cwtypes.MetricDatum
}

var _ Metrics = (*CloudWatchMetrics)(nil)

// NewCloudWatchMetrics creates a recorder for namespace. An empty namespace
// uses types.MetricNamespace.
func NewCloudWatchMetrics(client CloudWatchClient, namespace string, clock types.Clock, logger *slog.Logger) *CloudWatchMetrics {
	if namespace == "" {
		namespace = types.MetricNamespace
	}
	if clock == nil {
		clock = types.RealClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CloudWatchMetrics{client: client, namespace: namespace, clock: clock, logger: logger}
}

// Count buffers a Count datum.
func (m *CloudWatchMetrics) Count(metric string, value float64, dims map[string]string) {
	m.add(metric, value, cwtypes.StandardUnitCount, dims)
}

// Duration buffers a Milliseconds datum.
func (m *CloudWatchMetrics) Duration(metric string, d time.Duration, dims map[string]string) {
	m.add(metric, float64(d.Milliseconds()), cwtypes.StandardUnitMilliseconds, dims)
}

func (m *CloudWatchMetrics) add(metric string, value float64, unit cwtypes.StandardUnit, dims map[string]string) {
	datum := cwtypes.MetricDatum{
		MetricName: aws.String(metric),
		Value:      aws.Float64(value),
		Unit:       unit,
		Timestamp:  aws.Time(m.clock.Now()),
		Dimensions: dimensions(dims),
	}
	m.mu.Lock()
	m.pending = append(m.pending, datum)
	m.mu.Unlock()
}

// dimensions sorts by name so identical dimension sets produce identical
// requests.
func dimensions(dims map[string]string) []cwtypes.Dimension {
	if len(dims) == 0 {
		return nil
	}
	names := make([]string, 0, len(dims))
	for name := range dims {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]cwtypes.Dimension, 0, len(names))
	for _, name := range names {
		out = append(out, cwtypes.Dimension{Name: aws.String(name), Value: aws.String(dims[name])})
	}
	return out
}

// Pending returns the number of buffered datums.
func (m *CloudWatchMetrics) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

// Flush sends buffered datums in chunks of maxDatumsPerCall. Datums of a
// failed chunk are dropped and the error is logged and returned; metrics
// never block a job.
func (m *CloudWatchMetrics) Flush(ctx context.Context) error {
	m.mu.Lock()
	pending := m.pending
	m.pending = nil
	m.mu.Unlock()

	if m.client == nil || len(pending) == 0 {
		return nil
	}

	var firstErr error
	for start := 0; start < len(pending); start += maxDatumsPerCall {
		end := min(start+maxDatumsPerCall, len(pending))
		_, err := m.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
			Namespace:  aws.String(m.namespace),
			MetricData: pending[start:end],
		})
		if err != nil {
			m.logger.ErrorContext(ctx, "failed to put metric data",
				"error", err, "datums", end-start)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// NopMetrics discards everything.
type NopMetrics struct{}

func (NopMetrics) Count(string, float64, map[string]string)        {}
func (NopMetrics) Duration(string, time.Duration, map[string]string) {}
func (NopMetrics) Flush(context.Context) error                       { return nil }
