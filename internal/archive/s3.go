// Package archive copies captured frames to S3-compatible object storage.
// Archiving is best-effort: failures are logged and never block the upload
// cycle.
package archive

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"github.com/edgeops/snowedge/internal/logging"
)

var (
	loadDefaultAWSConfig = config.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		return s3.NewFromConfig(cfg, optFns...)
	}

	putObject = func(c *s3.Client, ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
		return c.PutObject(ctx, in, optFns...)
	}
)

// Config configures the frame archiver. BaseEndpoint is optional and allows
// MinIO-style S3-compatible endpoints.
type Config struct {
	Enabled      bool
	Region       string
	Bucket       string
	AccessKey    string
	SecretKey    string
	BaseEndpoint string
}

// Archiver uploads frames under frames/<yyyy>/<mm>/<dd>/<uuid>.jpg.
type Archiver struct {
	config Config
	log    logging.Logger
	now    func() time.Time
}

func NewArchiver(config Config, log logging.Logger) *Archiver {
	return &Archiver{config: config, log: log, now: time.Now}
}

func frameStorageKey(d time.Time) string {
	return fmt.Sprintf("frames/%04d/%02d/%02d/%v.jpg", d.Year(), d.Month(), d.Day(), uuid.New())
}

func (a *Archiver) getClient(ctx context.Context) (*s3.Client, error) {
	cfg, err := loadDefaultAWSConfig(ctx,
		config.WithRegion(a.config.Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			a.config.AccessKey,
			a.config.SecretKey,
			"",
		)))
	if err != nil {
		return nil, err
	}

	client := newS3ClientFromConfig(cfg, func(o *s3.Options) {
		if a.config.BaseEndpoint != "" {
			o.BaseEndpoint = aws.String(a.config.BaseEndpoint)
		}
	})

	return client, nil
}

// ArchiveFrame uploads the frame at imagePath and returns the object key.
// The second return reports whether the frame was archived.
func (a *Archiver) ArchiveFrame(ctx context.Context, imagePath string) (string, bool) {
	if !a.config.Enabled {
		return "", false
	}

	f, err := os.Open(imagePath)
	if err != nil {
		a.log.Warn(ctx, "frame archive skipped, frame unreadable", "path", imagePath, "error", err)
		return "", false
	}
	defer f.Close()

	client, err := a.getClient(ctx)
	if err != nil {
		a.log.Warn(ctx, "frame archive failed, no s3 client", "error", err)
		return "", false
	}

	key := frameStorageKey(a.now())
	_, err = putObject(client, ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.config.Bucket),
		Key:         aws.String(key),
		Body:        f,
		ContentType: aws.String("image/jpeg"),
	})
	if err != nil {
		a.log.Warn(ctx, "frame archive failed", "bucket", a.config.Bucket, "key", key, "error", err)
		return "", false
	}

	a.log.Debug(ctx, "frame archived", "bucket", a.config.Bucket, "key", key,
		"file", filepath.Base(imagePath))
	return key, true
}
