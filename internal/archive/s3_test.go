package archive

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgeops/snowedge/internal/logging"
)

func testLogger() logging.Logger {
	return logging.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func writeFrame(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "frame.jpg")
	require.NoError(t, os.WriteFile(path, []byte("jpegbytes"), 0o660))
	return path
}

func stubAWS(t *testing.T) {
	t.Helper()
	origLoad := loadDefaultAWSConfig
	origNew := newS3ClientFromConfig
	origPut := putObject
	t.Cleanup(func() {
		loadDefaultAWSConfig = origLoad
		newS3ClientFromConfig = origNew
		putObject = origPut
	})
}

func TestFrameStorageKey(t *testing.T) {
	d := time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC)
	key := frameStorageKey(d)
	assert.Regexp(t, regexp.MustCompile(`^frames/2026/08/29/[0-9a-f-]{36}\.jpg$`), key)
}

func TestArchiveFrame(t *testing.T) {
	stubAWS(t)

	loadDefaultAWSConfig = func(ctx context.Context, optFns ...func(*awsconfig.LoadOptions) error) (aws.Config, error) {
		var lo awsconfig.LoadOptions
		for _, fn := range optFns {
			require.NoError(t, fn(&lo))
		}
		assert.Equal(t, "us-east-1", lo.Region)
		return aws.Config{}, nil
	}

	var gotBaseEndpoint string
	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		var opts s3.Options
		for _, fn := range optFns {
			fn(&opts)
		}
		require.NotNil(t, opts.BaseEndpoint)
		gotBaseEndpoint = *opts.BaseEndpoint
		return &s3.Client{}
	}

	var gotInput *s3.PutObjectInput
	putObject = func(c *s3.Client, ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
		gotInput = in
		return &s3.PutObjectOutput{}, nil
	}

	a := NewArchiver(Config{
		Enabled:      true,
		Region:       "us-east-1",
		Bucket:       "edge-frames",
		AccessKey:    "minioadmin",
		SecretKey:    "minioadmin",
		BaseEndpoint: "http://127.0.0.1:9000",
	}, testLogger())

	key, archived := a.ArchiveFrame(context.Background(), writeFrame(t))
	require.True(t, archived)

	assert.Equal(t, "http://127.0.0.1:9000", gotBaseEndpoint)
	require.NotNil(t, gotInput)
	assert.Equal(t, "edge-frames", *gotInput.Bucket)
	assert.Equal(t, key, *gotInput.Key)
	assert.Equal(t, "image/jpeg", *gotInput.ContentType)

	body, err := io.ReadAll(gotInput.Body)
	require.NoError(t, err)
	assert.Equal(t, []byte("jpegbytes"), body)
}

func TestArchiveFrame_Disabled(t *testing.T) {
	stubAWS(t)
	putObject = func(c *s3.Client, ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
		t.Fatal("putObject must not run when archiving is disabled")
		return nil, nil
	}

	a := NewArchiver(Config{Enabled: false}, testLogger())
	_, archived := a.ArchiveFrame(context.Background(), writeFrame(t))
	assert.False(t, archived)
}

func TestArchiveFrame_MissingFrame(t *testing.T) {
	a := NewArchiver(Config{Enabled: true}, testLogger())
	_, archived := a.ArchiveFrame(context.Background(), filepath.Join(t.TempDir(), "missing.jpg"))
	assert.False(t, archived)
}

func TestArchiveFrame_ConfigLoadFailure(t *testing.T) {
	stubAWS(t)
	loadDefaultAWSConfig = func(ctx context.Context, optFns ...func(*awsconfig.LoadOptions) error) (aws.Config, error) {
		return aws.Config{}, errors.New("load-fail")
	}

	a := NewArchiver(Config{Enabled: true}, testLogger())
	_, archived := a.ArchiveFrame(context.Background(), writeFrame(t))
	assert.False(t, archived)
}

func TestArchiveFrame_PutFailureIsNonFatal(t *testing.T) {
	stubAWS(t)
	loadDefaultAWSConfig = func(ctx context.Context, optFns ...func(*awsconfig.LoadOptions) error) (aws.Config, error) {
		return aws.Config{}, nil
	}
	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		return &s3.Client{}
	}
	putObject = func(c *s3.Client, ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
		return nil, errors.New("access denied")
	}

	a := NewArchiver(Config{Enabled: true, Bucket: "edge-frames"}, testLogger())
	_, archived := a.ArchiveFrame(context.Background(), writeFrame(t))
	assert.False(t, archived)
}
