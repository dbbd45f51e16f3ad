package config

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// ConfigError is returned by LoadConfig and ResolveSecrets.
type ConfigError struct {
	Type    ConfigErrorType
	Message string
	Err     error
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

// Unwrap returns the underlying error for use with errors.Is/errors.As.
func (e *ConfigError) Unwrap() error {
	return e.Err
}

// ssmParamSuffix marks a pointer variable: GEOPOINT_BUCKET_SSM_PARAM holds the
// SSM path whose value becomes GEOPOINT_BUCKET.
const ssmParamSuffix = "_SSM_PARAM"

// localEnv is the APP_ENV value that bypasses SSM resolution.
const localEnv = "local"

// ssmTimeout bounds the whole secret resolution step.
const ssmTimeout = 30 * time.Second

// osEnv abstracts the process environment so tests do not mutate globals.
type osEnv struct {
	lookup  func(key string) (string, bool)
	set     func(key, value string) error
	environ func() []string
}

func processEnv() osEnv {
	return osEnv{lookup: os.LookupEnv, set: os.Setenv, environ: os.Environ}
}

// LoadConfig loads, resolves and validates the configuration.
//
// Steps:
//  1. Force the process time zone to UTC. Local civil time is only used
//     through WindowConfig.Location.
//  2. Load .env if present. Existing variables are not overridden.
//  3. Outside APP_ENV=local, resolve *_SSM_PARAM pointers through provider.
//  4. Populate Config from envconfig tags and attach build metadata.
//  5. Run struct validation and the cross-field checks.
//
// provider may be nil when APP_ENV is local or no pointers are present.
func LoadConfig(provider SecretProvider) (*Config, error) {
	return load(provider, processEnv())
}

func load(provider SecretProvider, env osEnv) (*Config, error) {
	time.Local = time.UTC
	_ = godotenv.Load()

	if appEnv, _ := env.lookup("APP_ENV"); appEnv != localEnv {
		if err := resolvePointers(provider, env); err != nil {
			return nil, err
		}
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, &ConfigError{
			Type:    ErrParsing,
			Message: "failed to process environment configuration",
			Err:     err,
		}
	}
	cfg.Build = NewBuildInfo()

	if err := validator.New().Struct(cfg); err != nil {
		return nil, &ConfigError{
			Type:    ErrValidation,
			Message: "configuration validation failed",
			Err:     err,
		}
	}
	if err := cfg.checkCrossField(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// checkCrossField enforces rules that struct tags cannot express.
func (c *Config) checkCrossField() error {
	if c.GeoPoint.Source == "s3" && c.AWS.GeoPointBucket == "" {
		return &ConfigError{
			Type:    ErrMissingEnv,
			Message: "GEOPOINT_BUCKET is required when GEOPOINT_SOURCE=s3",
		}
	}
	if c.GeoPoint.Source == "local" && c.GeoPoint.LocalDir == "" {
		return &ConfigError{
			Type:    ErrMissingEnv,
			Message: "GEOPOINT_LOCAL_DIR is required when GEOPOINT_SOURCE=local",
		}
	}
	// datetime=15:04 already validated both values; "HH:MM" compares lexically.
	if c.Window.DayStart >= c.Window.DayEnd {
		return &ConfigError{
			Type:    ErrValidation,
			Message: fmt.Sprintf("WINDOW_DAY_START (%s) must be before WINDOW_DAY_END (%s)", c.Window.DayStart, c.Window.DayEnd),
		}
	}
	return nil
}

// ResolveSecrets runs only the SSM pointer resolution step. Lambda entry
// points call it before LoadConfig when they want secret failures reported
// separately. It is a no-op for APP_ENV=local.
func ResolveSecrets(provider SecretProvider) error {
	env := processEnv()
	if appEnv, _ := env.lookup("APP_ENV"); appEnv == localEnv {
		return nil
	}
	return resolvePointers(provider, env)
}

// resolvePointers fetches every *_SSM_PARAM pointer whose target variable is
// not already set and writes the resolved value into the environment.
func resolvePointers(provider SecretProvider, env osEnv) error {
	// ssm path -> target variable
	targets := make(map[string]string)
	for _, entry := range env.environ() {
		key, path, ok := strings.Cut(entry, "=")
		if !ok || !strings.HasSuffix(key, ssmParamSuffix) || path == "" {
			continue
		}
		target := strings.TrimSuffix(key, ssmParamSuffix)
		if _, set := env.lookup(target); set {
			continue
		}
		targets[path] = target
	}
	if len(targets) == 0 {
		return nil
	}

	paths := make([]string, 0, len(targets))
	for path := range targets {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	if provider == nil {
		names := make([]string, 0, len(paths))
		for _, path := range paths {
			names = append(names, targets[path])
		}
		return &ConfigError{
			Type:    ErrSSMResolution,
			Message: fmt.Sprintf("SecretProvider is required to resolve: %s", strings.Join(names, ", ")),
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), ssmTimeout)
	defer cancel()

	resolved, err := provider.GetParametersBatch(ctx, paths)
	if err != nil {
		return &ConfigError{
			Type:    ErrSSMResolution,
			Message: fmt.Sprintf("failed to resolve %d SSM parameters", len(paths)),
			Err:     err,
		}
	}

	var missing []string
	for _, path := range paths {
		value, ok := resolved[path]
		if !ok {
			missing = append(missing, targets[path])
			continue
		}
		if err := env.set(targets[path], value); err != nil {
			return &ConfigError{
				Type:    ErrSSMResolution,
				Message: fmt.Sprintf("failed to set resolved value for %s", targets[path]),
				Err:     err,
			}
		}
	}
	if len(missing) > 0 {
		return &ConfigError{
			Type:    ErrSSMResolution,
			Message: fmt.Sprintf("SSM parameters not found for: %s", strings.Join(missing, ", ")),
		}
	}
	return nil
}
