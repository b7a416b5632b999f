package refdata

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"

	lotapp "github.com/reconcile/backend/internal/application/lot"
	"github.com/reconcile/backend/internal/infrastructure/config"
)

// Ensure S3Source implements SnapshotSource
var _ lotapp.SnapshotSource = (*S3Source)(nil)

// maxSnapshotSize caps how much of a snapshot object is read. A reference
// table is small; anything this large is the wrong object.
const maxSnapshotSize = 64 << 20

// S3Source reads the reference snapshot from S3-compatible object storage
// (AWS S3, MinIO, RustFS, etc.)
type S3Source struct {
	client *s3.Client
	bucket string
	key    string
	logger *zap.Logger
}

// NewS3Source creates an object-storage-backed snapshot source. Without
// explicit credentials the default AWS provider chain is used; a custom
// endpoint switches the client to S3-compatible mode.
func NewS3Source(cfg *config.RefdataConfig, opts ...SourceOption) (*S3Source, error) {
	if cfg == nil {
		return nil, errors.New("refdata configuration is required")
	}
	if cfg.Bucket == "" {
		return nil, errors.New("refdata bucket is required")
	}
	if cfg.Key == "" {
		return nil, errors.New("refdata key is required")
	}

	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(region),
	}
	if cfg.AccessKeyID != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS config: %w", err)
	}

	endpoint := cfg.Endpoint
	if endpoint != "" {
		if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
			endpoint = "https://" + endpoint
		}
		if _, err := url.Parse(endpoint); err != nil {
			return nil, fmt.Errorf("invalid refdata endpoint: %w", err)
		}
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.UsePathStyle
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})

	o := applySourceOptions(opts)
	return &S3Source{
		client: client,
		bucket: cfg.Bucket,
		key:    cfg.Key,
		logger: o.logger,
	}, nil
}

// Fetch downloads and parses the snapshot object
func (s *S3Source) Fetch(ctx context.Context) (*lotapp.SnapshotData, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch reference snapshot %s: %w", s.Describe(), err)
	}
	defer func() { _ = out.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(out.Body, maxSnapshotSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read reference snapshot %s: %w", s.Describe(), err)
	}
	if len(data) > maxSnapshotSize {
		return nil, fmt.Errorf("reference snapshot %s exceeds %d bytes", s.Describe(), maxSnapshotSize)
	}

	parsed, err := ParseSnapshot(data)
	if err != nil {
		return nil, fmt.Errorf("reference snapshot %s: %w", s.Describe(), err)
	}

	s.logger.Debug("reference snapshot object read",
		zap.String("bucket", s.bucket),
		zap.String("key", s.key),
		zap.Int("bytes", len(data)),
		zap.Int("references", len(parsed.References)),
		zap.Int("corrections", len(parsed.Corrections)))
	return parsed, nil
}

// Describe names the source for logs and run records
func (s *S3Source) Describe() string {
	return fmt.Sprintf("s3://%s/%s", s.bucket, s.key)
}
