package archive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/ethanadams/solarnet-synthetics/internal/config"
	"github.com/ethanadams/solarnet-synthetics/internal/logging"
)

// ttlMetadataKey is honored by the Storj S3 gateway as an object expiry.
const ttlMetadataKey = "ttl-seconds"

// S3Sink archives to an S3-compatible gateway.
type S3Sink struct {
	client     *s3.Client
	bucket     string
	ttlSeconds int
}

// NewS3Sink creates an S3 sink and makes sure the bucket exists.
func NewS3Sink(ctx context.Context, cfg config.ArchiveConfig) (*S3Sink, error) {
	if cfg.S3.Endpoint == "" {
		return nil, errors.New("S3 endpoint is required")
	}
	if cfg.S3.AccessKey == "" || cfg.S3.SecretKey == "" {
		return nil, errors.New("S3 access key and secret key are required")
	}

	region := cfg.S3.Region
	if region == "" {
		region = "us-east-1"
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.S3.AccessKey, cfg.S3.SecretKey, "")),
		// S3-compatible gateways reject the CRC32 checksums newer SDKs send by default.
		awsconfig.WithRequestChecksumCalculation(aws.RequestChecksumCalculationWhenRequired),
		awsconfig.WithResponseChecksumValidation(aws.ResponseChecksumValidationWhenRequired),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(cfg.S3.Endpoint)
		o.UsePathStyle = true
	})

	sink := &S3Sink{
		client:     client,
		bucket:     cfg.Bucket,
		ttlSeconds: cfg.TTLSeconds,
	}
	if err := sink.ensureBucket(ctx); err != nil {
		return nil, err
	}
	return sink, nil
}

// Name implements Sink.
func (s *S3Sink) Name() string {
	return config.ArchiveBackendS3
}

// ensureBucket creates the bucket if it doesn't exist
func (s *S3Sink) ensureBucket(ctx context.Context) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucket)})
	if err == nil {
		return nil
	}

	_, err = s.client.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(s.bucket)})
	if err != nil {
		// Some S3-compatible services report an existing bucket differently
		logging.Warn("CreateBucket %s returned: %v (may be ignorable if bucket exists)", s.bucket, err)
	} else {
		logging.Info("Created archive bucket: %s", s.bucket)
	}

	_, err = s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucket)})
	if err != nil {
		return fmt.Errorf("bucket %s not accessible after creation attempt: %w", s.bucket, err)
	}
	return nil
}

// Put implements Sink.
func (s *S3Sink) Put(ctx context.Context, key string, data []byte, contentType string) error {
	input := &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String(contentType),
	}
	if s.ttlSeconds > 0 {
		input.Metadata = map[string]string{ttlMetadataKey: strconv.Itoa(s.ttlSeconds)}
	}

	if _, err := s.client.PutObject(ctx, input); err != nil {
		return fmt.Errorf("failed to put s3://%s/%s: %w", s.bucket, key, err)
	}
	return nil
}

// Close implements Sink. The SDK client holds no resources that need
// releasing.
func (s *S3Sink) Close() error {
	return nil
}

var _ Sink = (*S3Sink)(nil)
