package aws

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/acloudysky/s3drain"
	"github.com/acloudysky/s3drain/providers/aws/storage"
	"github.com/acloudysky/s3drain/services"
)

// Options tune how the S3 client is built. The zero value talks to AWS with
// the SDK defaults.
type Options struct {
	// Endpoint overrides the S3 endpoint, e.g. "http://localhost:4566" for
	// LocalStack.
	Endpoint string

	// PathStyle addresses buckets as http://host/bucket instead of
	// http://bucket.host. Most S3-compatible servers need it.
	PathStyle bool

	// RetryMaxAttempts overrides the SDK retry budget when positive.
	RetryMaxAttempts int

	// AccessKey and SecretKey replace the default credential chain when both
	// are set.
	AccessKey string
	SecretKey string
}

// AWSProvider implements the Provider interface for AWS
type AWSProvider struct {
	cfg     aws.Config
	opts    Options
	storage services.Storage
}

// NewAWSProvider creates a new AWS provider with default configuration
func NewAWSProvider(ctx context.Context, region string) (*AWSProvider, error) {
	return NewAWSProviderWithOptions(ctx, region, Options{})
}

// NewAWSProviderWithOptions creates an AWS provider that honours a custom
// endpoint, path-style addressing and retry budget.
func NewAWSProviderWithOptions(ctx context.Context, region string, opts Options) (*AWSProvider, error) {
	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if opts.RetryMaxAttempts > 0 {
		loadOpts = append(loadOpts, config.WithRetryMaxAttempts(opts.RetryMaxAttempts))
	}
	if opts.AccessKey != "" && opts.SecretKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKey, opts.SecretKey, ""),
		))
	}

	cfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, s3drain.NewInvalidConfigError("aws", "storage", "region", err.Error()).WithCause(err)
	}
	return newProvider(cfg, opts), nil
}

// NewFromConfig wraps an already loaded aws.Config.
func NewFromConfig(cfg aws.Config, opts Options) *AWSProvider {
	return newProvider(cfg, opts)
}

// Create AWS provider with cleaner API similar to Vercel AI SDK
func Create(ctx context.Context, region string) (*AWSProvider, error) {
	return NewAWSProvider(ctx, region)
}

func newProvider(cfg aws.Config, opts Options) *AWSProvider {
	return &AWSProvider{
		cfg:  cfg,
		opts: opts,
		storage: storage.New(cfg, func(o *s3.Options) {
			if opts.Endpoint != "" {
				o.BaseEndpoint = aws.String(opts.Endpoint)
			}
			o.UsePathStyle = opts.PathStyle
		}),
	}
}

// Storage returns the AWS storage service
func (p *AWSProvider) Storage() services.Storage {
	return p.storage
}

// Name returns "aws".
func (p *AWSProvider) Name() string {
	return "aws"
}

// Region returns the region the provider was configured with.
func (p *AWSProvider) Region() string {
	return p.cfg.Region
}

// Endpoint returns the endpoint override, if any.
func (p *AWSProvider) Endpoint() string {
	return p.opts.Endpoint
}
