package core

import (
	"context"
	"time"
)

// RequestMetrics records per-request telemetry.
type RequestMetrics interface {
	RecordRequest(method, route, status string, duration time.Duration)
}

// HealthProbe checks one dependency the API cannot serve without (database,
// point files).
type HealthProbe interface {
	Name() string
	// Check must honour the context deadline.
	Check(ctx context.Context) error
}
