package main

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
)

// ValidationResult is the outcome of a validation check, with a message
// suitable for display in the CLI.
type ValidationResult struct {
	Valid   bool
	Message string
}

// DatabaseConnector abstracts the connection probe for testing.
type DatabaseConnector interface {
	// Connect opens and closes a connection to dsn.
	Connect(ctx context.Context, dsn string) error
}

// PgxConnector probes the database with pgx.Connect.
type PgxConnector struct{}

// Connect establishes a connection and immediately closes it.
func (c *PgxConnector) Connect(ctx context.Context, dsn string) error {
	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		return err
	}
	return conn.Close(ctx)
}

// Validator holds the dependencies of the active checks.
type Validator struct {
	dbConn DatabaseConnector
}

// NewValidator creates a Validator that probes the real database.
func NewValidator() *Validator {
	return &Validator{dbConn: &PgxConnector{}}
}

// NewValidatorWithDeps creates a Validator with an injected connector.
func NewValidatorWithDeps(dbConn DatabaseConnector) *Validator {
	return &Validator{dbConn: dbConn}
}

// validateTimeout bounds each active probe.
const validateTimeout = 15 * time.Second

// ValidateDatabaseURL checks the scheme, host and database name, then
// connects once to verify credentials and reachability.
func (v *Validator) ValidateDatabaseURL(ctx context.Context, rawURL string) ValidationResult {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return ValidationResult{Message: "database URL must not be empty"}
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return ValidationResult{Message: fmt.Sprintf("invalid URL format: %v", err)}
	}
	if parsed.Scheme != "postgres" && parsed.Scheme != "postgresql" {
		return ValidationResult{Message: fmt.Sprintf("expected postgres:// or postgresql:// scheme, got %q", parsed.Scheme)}
	}
	if parsed.Hostname() == "" {
		return ValidationResult{Message: "database URL has no host"}
	}
	if strings.Trim(parsed.Path, "/") == "" {
		return ValidationResult{Message: "database URL has no database name"}
	}

	connCtx, cancel := context.WithTimeout(ctx, validateTimeout)
	defer cancel()
	if err := v.dbConn.Connect(connCtx, rawURL); err != nil {
		return ValidationResult{Message: fmt.Sprintf("connection failed: %v", err)}
	}

	return ValidationResult{
		Valid:   true,
		Message: fmt.Sprintf("database connection verified (host=%s)", parsed.Hostname()),
	}
}

// bucketNameRegex is the S3 bucket naming rule, without the IP-address and
// prefix exclusions.
var bucketNameRegex = regexp.MustCompile(`^[a-z0-9][a-z0-9.-]{1,61}[a-z0-9]$`)

// ValidateBucketName checks the point file bucket name.
func (v *Validator) ValidateBucketName(_ context.Context, name string) ValidationResult {
	name = strings.TrimSpace(name)
	if !bucketNameRegex.MatchString(name) || strings.Contains(name, "..") {
		return ValidationResult{Message: fmt.Sprintf("%q is not a valid S3 bucket name", name)}
	}
	return ValidationResult{Valid: true, Message: fmt.Sprintf("bucket name validated (%s)", name)}
}

// ValidateQueueURL checks that the SMS outbox looks like an SQS queue URL.
func (v *Validator) ValidateQueueURL(_ context.Context, rawURL string) ValidationResult {
	rawURL = strings.TrimSpace(rawURL)
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Scheme != "https" {
		return ValidationResult{Message: "queue URL must be an https:// SQS URL"}
	}
	if !strings.HasPrefix(parsed.Hostname(), "sqs.") || !strings.HasSuffix(parsed.Hostname(), ".amazonaws.com") {
		return ValidationResult{Message: fmt.Sprintf("unexpected SQS host %q", parsed.Hostname())}
	}
	// Path is /{account}/{queue}.
	parts := strings.Split(strings.Trim(parsed.Path, "/"), "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return ValidationResult{Message: "queue URL path must be /{account-id}/{queue-name}"}
	}
	return ValidationResult{Valid: true, Message: fmt.Sprintf("queue URL validated (%s)", parts[1])}
}

// ValidateRegex validates input against pattern. It is used for values that
// cannot be actively probed.
func (v *Validator) ValidateRegex(_ context.Context, input, pattern, fieldName string) ValidationResult {
	input = strings.TrimSpace(input)
	if input == "" {
		return ValidationResult{Message: fmt.Sprintf("%s must not be empty", fieldName)}
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return ValidationResult{Message: fmt.Sprintf("invalid regex pattern %q: %v", pattern, err)}
	}
	if !re.MatchString(input) {
		return ValidationResult{Message: fmt.Sprintf("%s does not match expected format (pattern: %s)", fieldName, pattern)}
	}
	return ValidationResult{Valid: true, Message: fmt.Sprintf("%s format validated", fieldName)}
}
