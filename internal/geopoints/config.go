package geopoints

import (
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"agriweather/internal/config"
)

// NamingFromConfig returns the file naming configured for point files.
func NamingFromConfig(cfg config.GeoPointConfig) Naming {
	return Naming{
		FilePrefix: cfg.FilePrefix,
		FileSuffix: cfg.FileSuffix,
		Compressed: cfg.Compressed,
	}
}

// NewSourceFromConfig returns a DirSource when cfg.Source is "local" and an
// S3Source otherwise.
func NewSourceFromConfig(cfg *config.Config, awsCfg aws.Config, logger *slog.Logger) Source {
	naming := NamingFromConfig(cfg.GeoPoint)
	if cfg.GeoPoint.Source == "local" {
		if logger != nil {
			logger.Info("reading point files from disk", "dir", cfg.GeoPoint.LocalDir)
		}
		return NewDirSource(cfg.GeoPoint.LocalDir, naming)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.AWS.UsePathStyle()
	})
	return NewS3Source(client, cfg.AWS.GeoPointBucket, cfg.GeoPoint.KeyPrefix, naming, logger)
}
