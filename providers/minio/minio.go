// Package minio provides the MinIO backend, usable against MinIO itself or
// any S3-compatible server reachable with static credentials.
package minio

import (
	"net/url"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/acloudysky/s3drain"
	"github.com/acloudysky/s3drain/services"
)

// Options configures the MinIO client.
type Options struct {
	// Endpoint is "host:port" or a full URL. A URL scheme overrides Secure.
	Endpoint  string
	AccessKey string
	SecretKey string
	Region    string
	Secure    bool
}

// Provider implements s3drain.Provider on top of minio-go.
type Provider struct {
	region  string
	storage *Storage
}

// New connects a MinIO client. No request is made until the first call.
func New(opts Options) (*Provider, error) {
	endpoint, secure, err := parseEndpoint(opts.Endpoint, opts.Secure)
	if err != nil {
		return nil, err
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: secure,
		Region: opts.Region,
	})
	if err != nil {
		return nil, s3drain.NewInvalidConfigError("minio", "storage", "endpoint", err.Error()).WithCause(err)
	}

	return &Provider{region: opts.Region, storage: NewWithClient(client)}, nil
}

// Storage returns the MinIO storage service.
func (p *Provider) Storage() services.Storage {
	return p.storage
}

// Name returns "minio".
func (p *Provider) Name() string {
	return "minio"
}

// Region returns the configured region.
func (p *Provider) Region() string {
	return p.region
}

func parseEndpoint(endpoint string, secure bool) (string, bool, error) {
	if endpoint == "" {
		return "", false, s3drain.NewInvalidConfigError("minio", "storage", "endpoint", "endpoint is required").
			WithSuggestions("Set --endpoint or S3DRAIN_ENDPOINT, e.g. localhost:9000")
	}
	if !strings.Contains(endpoint, "://") {
		return endpoint, secure, nil
	}

	u, err := url.Parse(endpoint)
	if err != nil || u.Host == "" {
		return "", false, s3drain.NewInvalidConfigError("minio", "storage", "endpoint", "not a valid URL").WithCause(err)
	}
	switch u.Scheme {
	case "http":
		return u.Host, false, nil
	case "https":
		return u.Host, true, nil
	default:
		return "", false, s3drain.NewInvalidConfigError("minio", "storage", "endpoint", "scheme must be http or https")
	}
}
