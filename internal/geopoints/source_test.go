package geopoints

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agriweather/internal/types"
)

// mockS3Client implements S3Client over an in-memory bucket.
type mockS3Client struct {
	objects  map[string][]byte
	failKeys map[string]error
	pageSize int
	gets     []string
}

func newMockS3Client() *mockS3Client {
	return &mockS3Client{
		objects:  make(map[string][]byte),
		failKeys: make(map[string]error),
	}
}

func (m *mockS3Client) putObject(bucket, key string, data []byte) {
	m.objects[bucket+"/"+key] = data
}

func (m *mockS3Client) setFailKey(bucket, key string, err error) {
	m.failKeys[bucket+"/"+key] = err
}

func (m *mockS3Client) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	full := aws.ToString(in.Bucket) + "/" + aws.ToString(in.Key)
	m.gets = append(m.gets, aws.ToString(in.Key))
	if err, ok := m.failKeys[full]; ok {
		return nil, err
	}
	data, ok := m.objects[full]
	if !ok {
		return nil, &s3types.NoSuchKey{Message: aws.String("not found: " + full)}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

// ListObjectsV2 pages through matching keys in sorted order.
func (m *mockS3Client) ListObjectsV2(_ context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	prefix := aws.ToString(in.Bucket) + "/" + aws.ToString(in.Prefix)
	var keys []string
	for full := range m.objects {
		if len(full) >= len(prefix) && full[:len(prefix)] == prefix {
			keys = append(keys, full[len(aws.ToString(in.Bucket))+1:])
		}
	}
	sort.Strings(keys)

	start := 0
	if in.ContinuationToken != nil {
		fmt.Sscanf(*in.ContinuationToken, "%d", &start)
	}
	end := len(keys)
	if m.pageSize > 0 && start+m.pageSize < end {
		end = start + m.pageSize
	}
	out := &s3.ListObjectsV2Output{IsTruncated: aws.Bool(end < len(keys))}
	for _, k := range keys[start:end] {
		out.Contents = append(out.Contents, s3types.Object{Key: aws.String(k)})
	}
	if end < len(keys) {
		out.NextContinuationToken = aws.String(fmt.Sprintf("%d", end))
	}
	return out, nil
}

func compress(t *testing.T, data []byte) []byte {
	t.Helper()
	enc, err := zstd.NewWriter(nil)
	require.NoError(t, err)
	defer enc.Close()
	return enc.EncodeAll(data, nil)
}

var defaultNaming = Naming{FilePrefix: "pesteh", FileSuffix: "_weather.geojson"}

func TestNaming(t *testing.T) {
	assert.Equal(t, "pesteh20240105_weather.geojson", defaultNaming.FileName("20240105"))

	zn := Naming{FilePrefix: "pesteh", FileSuffix: "_weather.geojson", Compressed: true}
	assert.Equal(t, "pesteh20240105_weather.geojson.zst", zn.FileName("20240105"))

	date, ok := zn.ParseFileName("pesteh20240105_weather.geojson.zst")
	assert.True(t, ok)
	assert.Equal(t, "20240105", date)

	for _, bad := range []string{
		"pesteh20240105_weather.geojson",
		"almond20240105_weather.geojson.zst",
		"pestehtoday_weather.geojson.zst",
	} {
		_, ok := zn.ParseFileName(bad)
		assert.False(t, ok, bad)
	}
}

func TestS3Source_Load(t *testing.T) {
	client := newMockS3Client()
	client.putObject("geo", "daily/pesteh20240105_weather.geojson", []byte(sampleGeoJSON))
	src := NewS3Source(client, "geo", "daily/", defaultNaming, nil)

	store, err := src.Load(context.Background(), "20240105")
	require.NoError(t, err)
	assert.Equal(t, 3, store.Len())
	assert.Equal(t, []string{"daily/pesteh20240105_weather.geojson"}, client.gets)
}

func TestS3Source_LoadCompressed(t *testing.T) {
	naming := defaultNaming
	naming.Compressed = true
	client := newMockS3Client()
	client.putObject("geo", "pesteh20240105_weather.geojson.zst", compress(t, []byte(sampleGeoJSON)))
	src := NewS3Source(client, "geo", "", naming, nil)

	store, err := src.Load(context.Background(), "20240105")
	require.NoError(t, err)
	assert.Equal(t, 3, store.Len())
}

func TestS3Source_LoadErrors(t *testing.T) {
	client := newMockS3Client()
	client.setFailKey("geo", "pesteh20240106_weather.geojson", errors.New("connection reset"))
	client.putObject("geo", "pesteh20240107_weather.geojson", []byte("not json"))
	src := NewS3Source(client, "geo", "", defaultNaming, nil)

	tests := []struct {
		date string
		code types.ErrorCode
	}{
		{"20240105", types.ErrCodeDataUnavailable},
		{"20240106", types.ErrCodeUpstreamObjectStorage},
		{"20240107", types.ErrCodeInternalCorruptData},
		{"2024-01-05", types.ErrCodeValidationInvalidDate},
	}
	for _, tt := range tests {
		t.Run(tt.date, func(t *testing.T) {
			_, err := src.Load(context.Background(), tt.date)
			assert.Equal(t, tt.code, types.CodeOf(err))
		})
	}
}

func TestS3Source_AvailableDates(t *testing.T) {
	client := newMockS3Client()
	client.pageSize = 2
	for _, d := range []string{"20240107", "20240105", "20240106"} {
		client.putObject("geo", "daily/pesteh"+d+"_weather.geojson", []byte("{}"))
	}
	client.putObject("geo", "daily/pesteh-notes.txt", []byte("x"))
	src := NewS3Source(client, "geo", "daily/", defaultNaming, nil)

	dates, err := src.AvailableDates(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"20240105", "20240106", "20240107"}, dates)
}

func TestDirSource(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "pesteh20240105_weather.geojson"), []byte(sampleGeoJSON), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "readme.md"), []byte("x"), 0o600))
	src := NewDirSource(dir, defaultNaming)

	store, err := src.Load(context.Background(), "20240105")
	require.NoError(t, err)
	assert.Equal(t, 3, store.Len())

	_, err = src.Load(context.Background(), "20240104")
	assert.Equal(t, types.ErrCodeDataUnavailable, types.CodeOf(err))

	dates, err := src.AvailableDates(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"20240105"}, dates)

	missing, err := NewDirSource(filepath.Join(dir, "nope"), defaultNaming).AvailableDates(context.Background())
	require.NoError(t, err)
	assert.Empty(t, missing)
}
