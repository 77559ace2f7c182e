package storage

import (
	"bytes"
	"cmp"
	"context"
	"fmt"
	"io"
	"net/url"
	"slices"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/gabriel-vasile/mimetype"

	"github.com/acloudysky/s3drain"
	"github.com/acloudysky/s3drain/services"
)

// S3ClientInterface defines methods we need from S3 client for testing
type S3ClientInterface interface {
	CreateBucket(ctx context.Context, input *s3.CreateBucketInput, opts ...func(*s3.Options)) (*s3.CreateBucketOutput, error)
	ListBuckets(ctx context.Context, input *s3.ListBucketsInput, opts ...func(*s3.Options)) (*s3.ListBucketsOutput, error)
	PutBucketVersioning(ctx context.Context, input *s3.PutBucketVersioningInput, opts ...func(*s3.Options)) (*s3.PutBucketVersioningOutput, error)
	DeleteBucket(ctx context.Context, input *s3.DeleteBucketInput, opts ...func(*s3.Options)) (*s3.DeleteBucketOutput, error)
	PutObject(ctx context.Context, input *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, input *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, input *s3.DeleteObjectInput, opts ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	ListObjectsV2(ctx context.Context, input *s3.ListObjectsV2Input, opts ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	ListObjectVersions(ctx context.Context, input *s3.ListObjectVersionsInput, opts ...func(*s3.Options)) (*s3.ListObjectVersionsOutput, error)
}

// S3PresignerInterface is the part of *s3.PresignClient used for presigning.
type S3PresignerInterface interface {
	PresignGetObject(ctx context.Context, input *s3.GetObjectInput, opts ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// AWSStorage implements the Storage interface for AWS
type AWSStorage struct {
	client    S3ClientInterface
	presigner S3PresignerInterface
}

// Option configures an AWSStorage.
type Option func(*AWSStorage)

// WithPresigner enables PresignGetObject.
func WithPresigner(p S3PresignerInterface) Option {
	return func(s *AWSStorage) {
		s.presigner = p
	}
}

// New creates a new AWSStorage instance with real AWS client.
// optFns customise the S3 client, e.g. endpoint and path-style addressing.
func New(cfg aws.Config, optFns ...func(*s3.Options)) *AWSStorage {
	client := s3.NewFromConfig(cfg, optFns...)
	return NewWithClient(client, WithPresigner(s3.NewPresignClient(client)))
}

// NewWithClient creates a new AWSStorage instance with custom client (for testing)
func NewWithClient(client S3ClientInterface, opts ...Option) *AWSStorage {
	s := &AWSStorage{client: client}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateBucket creates a new S3 bucket
func (s *AWSStorage) CreateBucket(ctx context.Context, config *services.BucketConfig) error {
	if config == nil || config.Name == "" {
		return s3drain.NewInvalidConfigError("aws", "storage", "name", "bucket name is required")
	}

	input := &s3.CreateBucketInput{
		Bucket: aws.String(config.Name),
	}

	// us-east-1 is the default location and S3 rejects it as a constraint.
	if config.Region != "" && config.Region != "us-east-1" {
		input.CreateBucketConfiguration = &types.CreateBucketConfiguration{
			LocationConstraint: types.BucketLocationConstraint(config.Region),
		}
	}

	if _, err := s.client.CreateBucket(ctx, input); err != nil {
		return classify("CreateBucket", config.Name, err)
	}

	if aws.ToBool(config.Versioning) {
		_, err := s.client.PutBucketVersioning(ctx, &s3.PutBucketVersioningInput{
			Bucket: aws.String(config.Name),
			VersioningConfiguration: &types.VersioningConfiguration{
				Status: types.BucketVersioningStatusEnabled,
			},
		})
		if err != nil {
			return classify("PutBucketVersioning", config.Name, err)
		}
	}

	return nil
}

// ListBuckets lists all S3 buckets
func (s *AWSStorage) ListBuckets(ctx context.Context) ([]string, error) {
	resp, err := s.client.ListBuckets(ctx, &s3.ListBucketsInput{})
	if err != nil {
		return nil, classify("ListBuckets", "", err)
	}

	buckets := make([]string, len(resp.Buckets))
	for i, b := range resp.Buckets {
		buckets[i] = aws.ToString(b.Name)
	}
	return buckets, nil
}

// DeleteBucket removes an empty bucket.
func (s *AWSStorage) DeleteBucket(ctx context.Context, name string) error {
	_, err := s.client.DeleteBucket(ctx, &s3.DeleteBucketInput{Bucket: aws.String(name)})
	return classify("DeleteBucket", name, err)
}

// PutObject uploads body. The payload is buffered so the request carries a
// length and a detected content type.
func (s *AWSStorage) PutObject(ctx context.Context, bucket, key string, body io.Reader) error {
	data, err := io.ReadAll(body)
	if err != nil {
		return fmt.Errorf("read object body: %w", err)
	}

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String(mimetype.Detect(data).String()),
	})
	return classify("PutObject", bucket+"/"+key, err)
}

// GetObject opens the object for reading. The caller closes the body.
func (s *AWSStorage) GetObject(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, classify("GetObject", bucket+"/"+key, err)
	}
	return out.Body, nil
}

// DeleteObject deletes the live object. On a versioned bucket S3 answers by
// writing a delete marker.
func (s *AWSStorage) DeleteObject(ctx context.Context, bucket, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	return classify("DeleteObject", bucket+"/"+key, err)
}

// DeleteObjectVersion permanently deletes one version or delete marker.
func (s *AWSStorage) DeleteObjectVersion(ctx context.Context, bucket, key, versionID string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket:    aws.String(bucket),
		Key:       aws.String(key),
		VersionId: aws.String(versionID),
	})
	return classify("DeleteObjectVersion", bucket+"/"+key, err)
}

// ListObjects returns one ListObjectsV2 page.
func (s *AWSStorage) ListObjects(ctx context.Context, bucket string, opts services.ListOptions) (*services.ObjectPage, error) {
	input := &s3.ListObjectsV2Input{Bucket: aws.String(bucket)}
	if opts.Prefix != "" {
		input.Prefix = aws.String(opts.Prefix)
	}
	if opts.ContinuationToken != "" {
		input.ContinuationToken = aws.String(opts.ContinuationToken)
	}
	if opts.MaxKeys > 0 {
		input.MaxKeys = aws.Int32(int32(opts.MaxKeys))
	}

	out, err := s.client.ListObjectsV2(ctx, input)
	if err != nil {
		return nil, classify("ListObjects", bucket, err)
	}

	page := &services.ObjectPage{
		Objects:     make([]*services.Object, 0, len(out.Contents)),
		IsTruncated: aws.ToBool(out.IsTruncated),
		NextToken:   aws.ToString(out.NextContinuationToken),
	}
	for _, obj := range out.Contents {
		page.Objects = append(page.Objects, &services.Object{
			Key:          aws.ToString(obj.Key),
			Size:         aws.ToInt64(obj.Size),
			LastModified: formatTime(obj.LastModified),
			ETag:         aws.ToString(obj.ETag),
		})
	}
	return page, nil
}

// ListObjectVersions returns one ListObjectVersions page with versions and
// delete markers merged in key order. S3 resumes version listings from a
// (key, version id) marker pair, which is folded into a single token.
func (s *AWSStorage) ListObjectVersions(ctx context.Context, bucket string, opts services.ListOptions) (*services.VersionPage, error) {
	input := &s3.ListObjectVersionsInput{Bucket: aws.String(bucket)}
	if opts.Prefix != "" {
		input.Prefix = aws.String(opts.Prefix)
	}
	if opts.MaxKeys > 0 {
		input.MaxKeys = aws.Int32(int32(opts.MaxKeys))
	}
	if opts.ContinuationToken != "" {
		keyMarker, versionMarker, err := decodeVersionToken(opts.ContinuationToken)
		if err != nil {
			return nil, s3drain.NewInvalidConfigError("aws", "storage", "continuation_token", err.Error()).WithCause(err)
		}
		input.KeyMarker = aws.String(keyMarker)
		if versionMarker != "" {
			input.VersionIdMarker = aws.String(versionMarker)
		}
	}

	out, err := s.client.ListObjectVersions(ctx, input)
	if err != nil {
		return nil, classify("ListObjectVersions", bucket, err)
	}

	page := &services.VersionPage{
		Versions:    make([]*services.ObjectVersion, 0, len(out.Versions)+len(out.DeleteMarkers)),
		IsTruncated: aws.ToBool(out.IsTruncated),
	}
	for _, v := range out.Versions {
		page.Versions = append(page.Versions, &services.ObjectVersion{
			Key:          aws.ToString(v.Key),
			VersionID:    aws.ToString(v.VersionId),
			IsLatest:     aws.ToBool(v.IsLatest),
			Size:         aws.ToInt64(v.Size),
			LastModified: formatTime(v.LastModified),
		})
	}
	for _, m := range out.DeleteMarkers {
		page.Versions = append(page.Versions, &services.ObjectVersion{
			Key:            aws.ToString(m.Key),
			VersionID:      aws.ToString(m.VersionId),
			IsDeleteMarker: true,
			IsLatest:       aws.ToBool(m.IsLatest),
			LastModified:   formatTime(m.LastModified),
		})
	}
	slices.SortStableFunc(page.Versions, func(a, b *services.ObjectVersion) int {
		return cmp.Compare(a.Key, b.Key)
	})

	if page.IsTruncated && aws.ToString(out.NextKeyMarker) != "" {
		page.NextToken = encodeVersionToken(aws.ToString(out.NextKeyMarker), aws.ToString(out.NextVersionIdMarker))
	}
	return page, nil
}

// PresignGetObject returns a GET URL valid for expires.
func (s *AWSStorage) PresignGetObject(ctx context.Context, bucket, key string, expires time.Duration) (string, error) {
	if s.presigner == nil {
		return "", s3drain.NewCloudError(s3drain.ErrOperationNotSupported,
			"presigning is not configured", "aws", "storage", "PresignGetObject")
	}
	if expires <= 0 {
		return "", s3drain.NewInvalidConfigError("aws", "storage", "expires", "must be positive")
	}

	req, err := s.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(expires))
	if err != nil {
		return "", classify("PresignGetObject", bucket+"/"+key, err)
	}
	return req.URL, nil
}

func encodeVersionToken(keyMarker, versionMarker string) string {
	v := url.Values{}
	v.Set("key", keyMarker)
	if versionMarker != "" {
		v.Set("version", versionMarker)
	}
	return v.Encode()
}

func decodeVersionToken(token string) (string, string, error) {
	v, err := url.ParseQuery(token)
	if err != nil {
		return "", "", fmt.Errorf("malformed version token: %w", err)
	}
	if v.Get("key") == "" {
		return "", "", fmt.Errorf("malformed version token: missing key marker")
	}
	return v.Get("key"), v.Get("version"), nil
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
