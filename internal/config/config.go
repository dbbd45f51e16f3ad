// Package config defines the process configuration for the agriweather
// services. Configuration is loaded once at process start (Lambda cold start
// or API boot) and is immutable afterwards.
//
// Values are resolved via a priority chain:
//
//	OS Environment (Highest) -> Dotenv File -> AWS SSM Parameter Store (Lowest)
//
// A missing required value or an invalid format fails startup.
package config

import (
	"time"

	"agriweather/internal/types"
)

// SecretString is an alias for types.SecretString so config consumers do not
// need to import types for it.
type SecretString = types.SecretString

// Config is the top-level configuration struct. Sub-components receive only
// the section they need.
type Config struct {
	// System Metadata
	Environment string `envconfig:"APP_ENV" validate:"required,oneof=local dev staging prod"`
	Service     string `envconfig:"SERVICE_NAME" default:"agriweather"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`

	Server        ServerConfig
	Database      DatabaseConfig
	AWS           AWSConfig
	GeoPoint      GeoPointConfig
	Window        WindowConfig
	OpenMeteo     OpenMeteoConfig
	Broadcast     BroadcastConfig
	Security      SecurityConfig
	Observability ObservabilityConfig

	// Build Metadata (Injected via ldflags, not Env)
	Build BuildInfo
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port           string        `envconfig:"PORT" default:"8080"`
	RequestTimeout time.Duration `envconfig:"REQUEST_TIMEOUT" default:"20s"`
}

// DatabaseConfig holds database connection and pool tuning parameters.
type DatabaseConfig struct {
	URL SecretString `envconfig:"DATABASE_URL" validate:"required,url"`

	MaxConns        int           `envconfig:"DB_MAX_CONNS" default:"10"`
	MinConns        int           `envconfig:"DB_MIN_CONNS" default:"1"`
	MaxConnLifetime time.Duration `envconfig:"DB_MAX_CONN_LIFETIME" default:"30m"`
	AcquireTimeout  time.Duration `envconfig:"DB_ACQUIRE_TIMEOUT" default:"2s"`
}

// AWSConfig holds AWS resource identifiers and regional configuration.
type AWSConfig struct {
	Region string `envconfig:"AWS_REGION" default:"eu-central-1"`

	// GeoPointBucket is required when GeoPoint.Source is "s3".
	GeoPointBucket string `envconfig:"GEOPOINT_BUCKET"`
	SMSQueueURL    string `envconfig:"SQS_SMS_OUTBOX" validate:"required,url"`

	// LocalStack Support (Empty in Prod)
	EndpointURL string `envconfig:"AWS_ENDPOINT_URL"`
}

// GeoPointConfig describes where the daily national-model files live and how
// they are named: {FilePrefix}{YYYYMMDD}{FileSuffix}[.zst].
type GeoPointConfig struct {
	Source     string  `envconfig:"GEOPOINT_SOURCE" default:"s3" validate:"oneof=s3 local"`
	LocalDir   string  `envconfig:"GEOPOINT_LOCAL_DIR" default:"./data/geopoints"`
	KeyPrefix  string  `envconfig:"GEOPOINT_KEY_PREFIX" default:"geopoints/"`
	FilePrefix string  `envconfig:"GEOPOINT_FILE_PREFIX" default:"pesteh"`
	FileSuffix string  `envconfig:"GEOPOINT_FILE_SUFFIX" default:"_weather.geojson"`
	Compressed bool    `envconfig:"GEOPOINT_ZSTD" default:"false"`
	CacheDays  int     `envconfig:"GEOPOINT_CACHE_DAYS" default:"3" validate:"min=1"`
	Threshold  float64 `envconfig:"GEOPOINT_MATCH_THRESHOLD" default:"0.1" validate:"gt=0"`
}

// WindowConfig holds the daytime cutoffs. Outside [DayStart, DayEnd) the
// current day's national-model file is not yet usable and reports fall back to
// the previous day's file.
type WindowConfig struct {
	Timezone string `envconfig:"WINDOW_TIMEZONE" default:"Asia/Tehran" validate:"required,timezone"`
	DayStart string `envconfig:"WINDOW_DAY_START" default:"07:00" validate:"required,datetime=15:04"`
	DayEnd   string `envconfig:"WINDOW_DAY_END" default:"20:30" validate:"required,datetime=15:04"`
}

// OpenMeteoConfig holds the external weather API settings.
type OpenMeteoConfig struct {
	BaseURL      string        `envconfig:"OPENMETEO_BASE_URL" default:"https://api.open-meteo.com" validate:"required,url"`
	Timeout      time.Duration `envconfig:"OPENMETEO_TIMEOUT" default:"10s"`
	ForecastDays int           `envconfig:"OPENMETEO_FORECAST_DAYS" default:"7" validate:"min=3,max=16"`
}

// BroadcastConfig tunes the scheduled jobs.
type BroadcastConfig struct {
	Product             string `envconfig:"BROADCAST_PRODUCT" default:"pistachio" validate:"required"`
	Concurrency         int    `envconfig:"BROADCAST_CONCURRENCY" default:"8" validate:"min=1,max=64"`
	MaxUpstreamAttempts int    `envconfig:"BROADCAST_MAX_UPSTREAM_ATTEMPTS" default:"3" validate:"min=1,max=10"`
	HelpLine            string `envconfig:"BROADCAST_HELP_LINE" default:"Reply 1 for help, 11 to stop."`
}

// SecurityConfig holds the API credentials and CORS settings. The service
// key is presented by the bot front end on every /v1 call; the operator key
// additionally unlocks the admin routes.
type SecurityConfig struct {
	ServiceAPIKey      SecretString `envconfig:"SERVICE_API_KEY" validate:"required"`
	AdminAPIKey        SecretString `envconfig:"ADMIN_API_KEY" validate:"required"`
	CorsAllowedOrigins []string     `envconfig:"CORS_ALLOWED_ORIGINS" default:"*"`
}

// ObservabilityConfig holds telemetry settings.
type ObservabilityConfig struct {
	MetricNamespace string `envconfig:"METRIC_NAMESPACE" default:"AgriWeather"`
	EnableMetrics   bool   `envconfig:"ENABLE_METRICS" default:"true"`
}

// BuildInfo holds build-time metadata injected via ldflags.
type BuildInfo struct {
	Version   string
	Commit    string
	BuildTime string
}

// ConfigErrorType categorizes configuration loading failures.
type ConfigErrorType string

const (
	// ErrMissingEnv indicates a required environment variable was not found.
	ErrMissingEnv ConfigErrorType = "MISSING_ENV"
	// ErrSSMResolution indicates a failure when fetching secrets from AWS SSM.
	ErrSSMResolution ConfigErrorType = "SSM_FAILURE"
	// ErrValidation indicates the configuration failed validation rules.
	ErrValidation ConfigErrorType = "VALIDATION_FAILED"
	// ErrParsing indicates an environment value could not be parsed into its
	// target type.
	ErrParsing ConfigErrorType = "PARSING_FAILED"
)

// Location loads the configured time zone.
func (w WindowConfig) Location() (*time.Location, error) {
	return time.LoadLocation(w.Timezone)
}
