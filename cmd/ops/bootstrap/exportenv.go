package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/joho/godotenv"
)

// localDefaults are added to an exported .env so the services run locally
// against the bootstrapped resources.
var localDefaults = map[string]string{
	"APP_ENV":          "local",
	"LOG_LEVEL":        "debug",
	"PORT":             "8080",
	"GEOPOINT_SOURCE":  "s3",
	"ENABLE_METRICS":   "false",
	"WINDOW_TIMEZONE":  "Asia/Tehran",
	"WINDOW_DAY_START": "07:00",
	"WINDOW_DAY_END":   "20:30",
}

// ExportEnvConfig controls ExportEnvFile.
type ExportEnvConfig struct {
	OutputPath  string
	Environment string
	SSM         *SSMManager
	Inventory   []BootstrapStep
	Stderr      io.Writer

	// IncludeLocalDefaults adds localDefaults for keys not read from SSM.
	IncludeLocalDefaults bool
}

// ExportEnvFile reads every inventory parameter back from SSM and writes
// them to a .env file readable only by the owner. Missing parameters are
// reported and left out; it fails only when none could be read.
func ExportEnvFile(ctx context.Context, cfg ExportEnvConfig) error {
	if cfg.Stderr == nil {
		cfg.Stderr = io.Discard
	}

	env := make(map[string]string, len(cfg.Inventory)+len(localDefaults))
	var missing []string
	for _, step := range cfg.Inventory {
		if err := ctx.Err(); err != nil {
			return err
		}
		value, err := cfg.SSM.GetParameterValue(ctx, cfg.SSM.SSMPath(step.SSMCategoryKey), step.ParamType == ParamSecureString)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			fmt.Fprintf(cfg.Stderr, "  Not exported: %s (%v)\n", step.EnvVar, err)
			missing = append(missing, step.EnvVar)
			continue
		}
		env[step.EnvVar] = value
	}
	if len(env) == 0 {
		return fmt.Errorf("no parameters could be read for environment %q", cfg.Environment)
	}

	if cfg.IncludeLocalDefaults {
		for k, v := range localDefaults {
			if _, ok := env[k]; !ok {
				env[k] = v
			}
		}
	}

	content, err := godotenv.Marshal(env)
	if err != nil {
		return fmt.Errorf("encoding .env: %w", err)
	}
	header := fmt.Sprintf("# Exported from SSM /%s/agriweather/ by cmd/ops/bootstrap. Do not commit.\n", cfg.Environment)
	if err := os.WriteFile(cfg.OutputPath, []byte(header+content+"\n"), 0o600); err != nil {
		return fmt.Errorf("writing %s: %w", cfg.OutputPath, err)
	}

	fmt.Fprintf(cfg.Stderr, "  Wrote %d variables to %s", len(env), cfg.OutputPath)
	if len(missing) > 0 {
		fmt.Fprintf(cfg.Stderr, " (%d missing)", len(missing))
	}
	fmt.Fprintln(cfg.Stderr)
	return nil
}
