// Package s3 is a storage.Backend on Amazon S3 or any S3-compatible
// endpoint, through aws-sdk-go-v2.
package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/sakif/snapcaption/internal/storage"
)

var _ storage.Backend = (*Backend)(nil)

// Options configures the S3 backend.
type Options struct {
	Bucket string
	Region string

	// AccessKeyID and SecretAccessKey select static credentials. When both
	// are empty the SDK's default chain (env, shared config, instance role)
	// is used.
	AccessKeyID     string
	SecretAccessKey string

	// Endpoint points the client at an S3-compatible service instead of AWS,
	// e.g. "http://localhost:9000". Requests then use path-style addressing.
	Endpoint string
}

// Backend stores objects in one S3 bucket.
type Backend struct {
	client  *s3.Client
	presign *s3.PresignClient
	bucket  string
	baseURL string
}

// New builds the S3 client from opts.
func New(ctx context.Context, opts Options) (*Backend, error) {
	if opts.Bucket == "" {
		return nil, errors.New("s3: bucket name is required")
	}
	if opts.Region == "" {
		return nil, errors.New("s3: region is required")
	}

	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(opts.Region)}
	if opts.AccessKeyID != "" || opts.SecretAccessKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKeyID, opts.SecretAccessKey, ""),
		))
	}

	cfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("s3: loading AWS config: %w", err)
	}

	return newFromConfig(cfg, opts), nil
}

func newFromConfig(cfg aws.Config, opts Options) *Backend {
	endpoint := strings.TrimRight(opts.Endpoint, "/")

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
		// Plain payloads; S3-compatible stores do not all accept the
		// aws-chunked trailing checksums the SDK sends by default.
		o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
	})

	baseURL := fmt.Sprintf("https://%s.s3.%s.amazonaws.com", opts.Bucket, opts.Region)
	if endpoint != "" {
		baseURL = endpoint + "/" + opts.Bucket
	}

	return &Backend{
		client:  client,
		presign: s3.NewPresignClient(client),
		bucket:  opts.Bucket,
		baseURL: baseURL,
	}
}

// PutObject uploads body under key.
func (b *Backend) PutObject(ctx context.Context, key string, body io.Reader, size int64, contentType string) error {
	_, err := b.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(b.bucket),
		Key:           aws.String(key),
		Body:          body,
		ContentLength: aws.Int64(size),
		ContentType:   aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("s3: putting %s: %w", key, err)
	}
	return nil
}

// PresignGet signs a GET for key. Signing is local; no request is sent.
func (b *Backend) PresignGet(ctx context.Context, key string, expiry time.Duration) (string, error) {
	req, err := b.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(expiry))
	if err != nil {
		return "", fmt.Errorf("s3: presigning %s: %w", key, err)
	}
	return req.URL, nil
}

// BaseURL is "https://<bucket>.s3.<region>.amazonaws.com" on AWS, or
// "<endpoint>/<bucket>" for a custom endpoint.
func (b *Backend) BaseURL() string {
	return b.baseURL
}
