package config

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
)

// LoadSDKConfig builds the AWS SDK configuration for the configured region.
// A non-empty EndpointURL (LocalStack) overrides every service endpoint.
func (a AWSConfig) LoadSDKConfig(ctx context.Context) (aws.Config, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(a.Region))
	if err != nil {
		return aws.Config{}, fmt.Errorf("loading AWS config (region=%s): %w", a.Region, err)
	}
	if a.EndpointURL != "" {
		cfg.BaseEndpoint = aws.String(a.EndpointURL)
	}
	return cfg, nil
}

// UsePathStyle reports whether S3 requests must use path-style addressing,
// which LocalStack requires.
func (a AWSConfig) UsePathStyle() bool {
	return a.EndpointURL != ""
}
