package types

// Telemetry metric names for CloudWatch.
const (
	// Metric Names
	MetricAdvisorySent       = "AdvisorySent"
	MetricFarmSkipped        = "FarmSkipped"
	MetricBroadcastDuration  = "BroadcastDuration"
	MetricReportFailure      = "ReportFailure"
	MetricReminderSent       = "ReminderSent"
	MetricWeatherRefreshed   = "WeatherRefreshed"
	MetricExternalAPIFailure = "ExternalAPIFailure"
	MetricAPIRequestCount    = "APIRequestCount"
	MetricAPILatency         = "APILatency"

	// Dimension Keys
	DimReason  = "Reason"
	DimTier    = "Tier"
	DimProduct = "Product"
	DimKind    = "Kind"
	DimTask    = "Task"
	DimMethod  = "Method"
	DimRoute   = "Route"
	DimStatus  = "Status"

	// Metric Namespace
	MetricNamespace = "AgriWeather"
)
