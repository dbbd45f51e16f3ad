package geopoints

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/klauspost/compress/zstd"

	"agriweather/internal/types"
)

// DateLayout is the file date format used in point file names.
const DateLayout = "20060102"

// zstdExt is appended to compressed point files.
const zstdExt = ".zst"

// FileDate formats t as a point file date in t's location.
func FileDate(t time.Time) string {
	return t.Format(DateLayout)
}

// Source loads point files by date.
type Source interface {
	// Load returns the store for date (YYYYMMDD). A missing file is reported
	// as a data_unavailable AppError.
	Load(ctx context.Context, date string) (*Store, error)
	// AvailableDates lists the dates that have a file, oldest first.
	AvailableDates(ctx context.Context) ([]string, error)
}

// Naming describes the point file names: {FilePrefix}{YYYYMMDD}{FileSuffix},
// plus ".zst" when Compressed.
type Naming struct {
	FilePrefix string
	FileSuffix string
	Compressed bool
}

// FileName returns the file name for date.
func (n Naming) FileName(date string) string {
	name := n.FilePrefix + date + n.FileSuffix
	if n.Compressed {
		name += zstdExt
	}
	return name
}

// ParseFileName extracts the date from a file name produced by FileName.
func (n Naming) ParseFileName(name string) (string, bool) {
	if n.Compressed {
		var ok bool
		if name, ok = strings.CutSuffix(name, zstdExt); !ok {
			return "", false
		}
	}
	rest, ok := strings.CutPrefix(name, n.FilePrefix)
	if !ok {
		return "", false
	}
	date, ok := strings.CutSuffix(rest, n.FileSuffix)
	if !ok {
		return "", false
	}
	if _, err := time.Parse(DateLayout, date); err != nil {
		return "", false
	}
	return date, true
}

// decoderPool provides reusable zstd decoders.
var decoderPool = sync.Pool{
	New: func() any {
		d, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
		if err != nil {
			// Only fails on invalid options.
			panic(fmt.Sprintf("failed to create zstd decoder: %v", err))
		}
		return d
	},
}

// decodeFile decompresses raw if name carries the zstd extension and decodes
// the GeoJSON payload.
func decodeFile(date, name string, raw []byte) (*Store, error) {
	if strings.HasSuffix(name, zstdExt) {
		dec := decoderPool.Get().(*zstd.Decoder)
		plain, err := dec.DecodeAll(raw, nil)
		decoderPool.Put(dec)
		if err != nil {
			return nil, types.NewAppErrorWithDetails(types.ErrCodeInternalCorruptData,
				fmt.Sprintf("failed to decompress %s", name), err,
				map[string]any{"date": date})
		}
		raw = plain
	}
	return Decode(date, raw)
}

func unavailable(date, name string, err error) error {
	return types.NewAppErrorWithDetails(types.ErrCodeDataUnavailable,
		fmt.Sprintf("point file %s is not available", name), err,
		map[string]any{"date": date, "file": name})
}

func validateDate(date string) error {
	if _, err := time.Parse(DateLayout, date); err != nil {
		return types.NewAppError(types.ErrCodeValidationInvalidDate,
			fmt.Sprintf("date %q must be YYYYMMDD", date), err)
	}
	return nil
}

// S3Client is the subset of the S3 SDK client used by S3Source.
type S3Client interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// S3Source reads point files from an S3 bucket under a key prefix.
type S3Source struct {
	client S3Client
	bucket string
	prefix string
	naming Naming
	logger *slog.Logger
}

// NewS3Source creates a Source backed by s3://bucket/prefix.
func NewS3Source(client S3Client, bucket, prefix string, naming Naming, logger *slog.Logger) *S3Source {
	if logger == nil {
		logger = slog.Default()
	}
	return &S3Source{client: client, bucket: bucket, prefix: prefix, naming: naming, logger: logger}
}

// Load fetches and decodes the file for date.
func (s *S3Source) Load(ctx context.Context, date string) (*Store, error) {
	if err := validateDate(date); err != nil {
		return nil, err
	}
	name := s.naming.FileName(date)
	key := s.prefix + name

	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var noKey *s3types.NoSuchKey
		if errors.As(err, &noKey) {
			s.logger.InfoContext(ctx, "point file not found", "bucket", s.bucket, "key", key)
			return nil, unavailable(date, name, err)
		}
		return nil, types.NewAppErrorWithDetails(types.ErrCodeUpstreamObjectStorage,
			fmt.Sprintf("failed to fetch s3://%s/%s", s.bucket, key), err,
			map[string]any{"date": date})
	}
	defer out.Body.Close()

	raw, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, types.NewAppErrorWithDetails(types.ErrCodeUpstreamObjectStorage,
			fmt.Sprintf("failed to read s3://%s/%s", s.bucket, key), err,
			map[string]any{"date": date})
	}
	return decodeFile(date, name, raw)
}

// AvailableDates lists the bucket prefix and returns the dates of every
// matching file.
func (s *S3Source) AvailableDates(ctx context.Context) ([]string, error) {
	var dates []string
	var token *string
	for {
		out, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(s.bucket),
			Prefix:            aws.String(s.prefix + s.naming.FilePrefix),
			ContinuationToken: token,
		})
		if err != nil {
			return nil, types.NewAppError(types.ErrCodeUpstreamObjectStorage,
				fmt.Sprintf("failed to list s3://%s/%s", s.bucket, s.prefix), err)
		}
		for _, obj := range out.Contents {
			if obj.Key == nil {
				continue
			}
			if date, ok := s.naming.ParseFileName(strings.TrimPrefix(*obj.Key, s.prefix)); ok {
				dates = append(dates, date)
			}
		}
		if !aws.ToBool(out.IsTruncated) || out.NextContinuationToken == nil {
			break
		}
		token = out.NextContinuationToken
	}
	sort.Strings(dates)
	return dates, nil
}

// DirSource reads point files from a local directory.
type DirSource struct {
	dir    string
	naming Naming
}

// NewDirSource creates a Source backed by files in dir.
func NewDirSource(dir string, naming Naming) *DirSource {
	return &DirSource{dir: dir, naming: naming}
}

// Load reads and decodes the file for date.
func (s *DirSource) Load(ctx context.Context, date string) (*Store, error) {
	if err := validateDate(date); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	name := s.naming.FileName(date)
	raw, err := os.ReadFile(filepath.Join(s.dir, name))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, unavailable(date, name, err)
		}
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected,
			fmt.Sprintf("failed to read %s", name), err)
	}
	return decodeFile(date, name, raw)
}

// AvailableDates returns the dates of the matching files in the directory.
func (s *DirSource) AvailableDates(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected,
			fmt.Sprintf("failed to list %s", s.dir), err)
	}
	var dates []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if date, ok := s.naming.ParseFileName(e.Name()); ok {
			dates = append(dates, date)
		}
	}
	sort.Strings(dates)
	return dates, nil
}
