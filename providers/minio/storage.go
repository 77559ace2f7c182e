package minio

import (
	"context"
	"io"
	"net/url"
	"time"

	"github.com/minio/minio-go/v7"

	"github.com/acloudysky/s3drain"
	"github.com/acloudysky/s3drain/services"
)

// defaultPageSize matches the S3 default for a listing page.
const defaultPageSize = 1000

// Client is the subset of *minio.Client used by Storage.
type Client interface {
	MakeBucket(ctx context.Context, bucketName string, opts minio.MakeBucketOptions) error
	EnableVersioning(ctx context.Context, bucketName string) error
	ListBuckets(ctx context.Context) ([]minio.BucketInfo, error)
	RemoveBucket(ctx context.Context, bucketName string) error
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	GetObject(ctx context.Context, bucketName, objectName string, opts minio.GetObjectOptions) (*minio.Object, error)
	RemoveObject(ctx context.Context, bucketName, objectName string, opts minio.RemoveObjectOptions) error
	ListObjects(ctx context.Context, bucketName string, opts minio.ListObjectsOptions) <-chan minio.ObjectInfo
	PresignedGetObject(ctx context.Context, bucketName, objectName string, expires time.Duration, reqParams url.Values) (*url.URL, error)
}

// Storage implements services.Storage with minio-go.
//
// minio-go streams listings over a channel instead of returning pages, so
// pages are cut from the stream here. The continuation token is the last key
// of the previous page; a version page always ends on a key boundary so no
// key's history is split across pages.
type Storage struct {
	client Client
}

// NewWithClient wraps an existing client.
func NewWithClient(client Client) *Storage {
	return &Storage{client: client}
}

// CreateBucket creates the bucket and optionally turns on versioning.
func (s *Storage) CreateBucket(ctx context.Context, config *services.BucketConfig) error {
	if config == nil || config.Name == "" {
		return s3drain.NewInvalidConfigError("minio", "storage", "name", "bucket name is required")
	}
	if err := s.client.MakeBucket(ctx, config.Name, minio.MakeBucketOptions{Region: config.Region}); err != nil {
		return classify("CreateBucket", config.Name, err)
	}
	if config.Versioning != nil && *config.Versioning {
		if err := s.client.EnableVersioning(ctx, config.Name); err != nil {
			return classify("EnableVersioning", config.Name, err)
		}
	}
	return nil
}

// ListBuckets returns every bucket name.
func (s *Storage) ListBuckets(ctx context.Context) ([]string, error) {
	infos, err := s.client.ListBuckets(ctx)
	if err != nil {
		return nil, classify("ListBuckets", "", err)
	}
	names := make([]string, len(infos))
	for i, b := range infos {
		names[i] = b.Name
	}
	return names, nil
}

// DeleteBucket removes an empty bucket.
func (s *Storage) DeleteBucket(ctx context.Context, name string) error {
	return classify("DeleteBucket", name, s.client.RemoveBucket(ctx, name))
}

// PutObject streams body with an unknown size.
func (s *Storage) PutObject(ctx context.Context, bucket, key string, body io.Reader) error {
	_, err := s.client.PutObject(ctx, bucket, key, body, -1, minio.PutObjectOptions{})
	return classify("PutObject", bucket+"/"+key, err)
}

// GetObject opens the object. minio-go defers the request until first use,
// so the object is stat'ed here to surface a missing key immediately.
func (s *Storage) GetObject(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	obj, err := s.client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, classify("GetObject", bucket+"/"+key, err)
	}
	if _, err := obj.Stat(); err != nil {
		_ = obj.Close()
		return nil, classify("GetObject", bucket+"/"+key, err)
	}
	return obj, nil
}

// DeleteObject removes the live object, leaving a delete marker on
// versioned buckets.
func (s *Storage) DeleteObject(ctx context.Context, bucket, key string) error {
	err := s.client.RemoveObject(ctx, bucket, key, minio.RemoveObjectOptions{})
	return classify("DeleteObject", bucket+"/"+key, err)
}

// DeleteObjectVersion permanently removes one version or delete marker.
func (s *Storage) DeleteObjectVersion(ctx context.Context, bucket, key, versionID string) error {
	err := s.client.RemoveObject(ctx, bucket, key, minio.RemoveObjectOptions{VersionID: versionID})
	return classify("DeleteObjectVersion", bucket+"/"+key, err)
}

// ListObjects returns up to MaxKeys live objects after the token key.
func (s *Storage) ListObjects(ctx context.Context, bucket string, opts services.ListOptions) (*services.ObjectPage, error) {
	infos, truncated, err := s.page(ctx, bucket, opts, false)
	if err != nil {
		return nil, classify("ListObjects", bucket, err)
	}

	page := &services.ObjectPage{Objects: make([]*services.Object, 0, len(infos))}
	for _, info := range infos {
		page.Objects = append(page.Objects, &services.Object{
			Key:          info.Key,
			Size:         info.Size,
			LastModified: formatTime(info.LastModified),
			ETag:         info.ETag,
		})
	}
	if truncated && len(infos) > 0 {
		page.IsTruncated = true
		page.NextToken = infos[len(infos)-1].Key
	}
	return page, nil
}

// ListObjectVersions returns whole key groups of version history, delete
// markers included, until at least MaxKeys entries are collected.
func (s *Storage) ListObjectVersions(ctx context.Context, bucket string, opts services.ListOptions) (*services.VersionPage, error) {
	infos, truncated, err := s.page(ctx, bucket, opts, true)
	if err != nil {
		return nil, classify("ListObjectVersions", bucket, err)
	}

	page := &services.VersionPage{Versions: make([]*services.ObjectVersion, 0, len(infos))}
	for _, info := range infos {
		page.Versions = append(page.Versions, &services.ObjectVersion{
			Key:            info.Key,
			VersionID:      info.VersionID,
			IsDeleteMarker: info.IsDeleteMarker,
			IsLatest:       info.IsLatest,
			Size:           info.Size,
			LastModified:   formatTime(info.LastModified),
		})
	}
	if truncated && len(infos) > 0 {
		page.IsTruncated = true
		page.NextToken = infos[len(infos)-1].Key
	}
	return page, nil
}

// PresignGetObject returns a GET URL valid for expires.
func (s *Storage) PresignGetObject(ctx context.Context, bucket, key string, expires time.Duration) (string, error) {
	if expires <= 0 {
		return "", s3drain.NewInvalidConfigError("minio", "storage", "expires", "must be positive")
	}
	u, err := s.client.PresignedGetObject(ctx, bucket, key, expires, nil)
	if err != nil {
		return "", classify("PresignGetObject", bucket+"/"+key, err)
	}
	return u.String(), nil
}

// page reads one page worth of entries from the listing stream. It reports
// whether the stream had more entries past the page.
func (s *Storage) page(ctx context.Context, bucket string, opts services.ListOptions, versions bool) ([]minio.ObjectInfo, bool, error) {
	limit := opts.MaxKeys
	if limit <= 0 {
		limit = defaultPageSize
	}

	// Stops the listing goroutine once the page is full.
	listCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	ch := s.client.ListObjects(listCtx, bucket, minio.ListObjectsOptions{
		Prefix:       opts.Prefix,
		Recursive:    true,
		WithVersions: versions,
		StartAfter:   opts.ContinuationToken,
	})

	var infos []minio.ObjectInfo
	for info := range ch {
		if info.Err != nil {
			return nil, false, info.Err
		}
		// Not every server honours StartAfter on version listings.
		if opts.ContinuationToken != "" && info.Key <= opts.ContinuationToken {
			continue
		}
		if len(infos) >= limit {
			if !versions || info.Key != infos[len(infos)-1].Key {
				return infos, true, nil
			}
		}
		infos = append(infos, info)
	}
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	return infos, false, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
