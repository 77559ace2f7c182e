package services

import (
	"context"
	"io"
	"time"
)

// BucketConfig represents the configuration for creating a storage bucket.
// Buckets are containers for objects and must have globally unique names.
// Supports JSON/YAML serialization for external configuration files.
//
// Bucket Naming Requirements:
//   - Must be globally unique across ALL accounts and regions
//   - Length: 3-63 characters
//   - Lowercase letters, numbers, and hyphens only
//   - Must start and end with a letter or number
//
// Example:
//
//	config := &BucketConfig{
//	    Name:       "mycompany-app-assets-prod-2024",
//	    Region:     "us-east-1",
//	    Versioning: aws.Bool(true),
//	}
type BucketConfig struct {
	// Name is the globally unique identifier for the bucket.
	// Once created, the name cannot be changed.
	Name string `json:"name" yaml:"name"`

	// Region specifies where the bucket should be created.
	// Leave empty to use the provider's default region.
	Region string `json:"region,omitempty" yaml:"region,omitempty"`

	// Versioning enables object versioning for the bucket.
	// With versioning on, DeleteObject adds a delete marker and keeps every
	// previous version; only DeleteObjectVersion removes data for good.
	//
	// Default: false (versioning disabled)
	Versioning *bool `json:"versioning,omitempty" yaml:"versioning,omitempty"`
}

// Object represents a live object stored in a bucket with its metadata.
type Object struct {
	// Key is the unique identifier for the object within the bucket.
	// Can include forward slashes to simulate folder structures.
	// Examples: "images/photo.jpg", "documents/2024/report.pdf", "data.json"
	Key string `json:"key" yaml:"key"`

	// Size is the object size in bytes.
	Size int64 `json:"size" yaml:"size"`

	// LastModified indicates when the object was last updated.
	// Format: RFC3339 timestamp (e.g., "2023-01-15T10:30:00Z")
	LastModified string `json:"last_modified,omitempty" yaml:"last_modified,omitempty"`

	// ETag is a hash of the object content used for integrity checking.
	ETag string `json:"etag,omitempty" yaml:"etag,omitempty"`
}

// ObjectVersion is one entry of a bucket's version history: a stored version
// of a key, or a delete marker.
//
// Buckets that never had versioning enabled still report one version per
// object; its VersionID is the literal "null".
type ObjectVersion struct {
	Key       string `json:"key" yaml:"key"`
	VersionID string `json:"version_id" yaml:"version_id"`

	// IsDeleteMarker is true for the placeholder versioned buckets write when
	// an object is deleted without a version id. Markers have no data but
	// still keep the bucket from being empty.
	IsDeleteMarker bool `json:"is_delete_marker" yaml:"is_delete_marker"`

	// IsLatest marks the current version of the key.
	IsLatest bool `json:"is_latest" yaml:"is_latest"`

	Size         int64  `json:"size" yaml:"size"`
	LastModified string `json:"last_modified,omitempty" yaml:"last_modified,omitempty"`
}

// ListOptions configures one page of a listing call.
type ListOptions struct {
	// Prefix filters results to keys starting with this value.
	// Empty string lists all keys.
	Prefix string

	// ContinuationToken resumes listing from a previous page.
	// Empty string starts from the beginning. A token is only valid for the
	// listing operation that returned it.
	ContinuationToken string

	// MaxKeys limits the number of entries returned per page.
	// Zero uses the provider default (typically 1000).
	MaxKeys int
}

// ObjectPage is one page of a ListObjects call.
type ObjectPage struct {
	Objects []*Object

	// IsTruncated indicates whether more results are available.
	IsTruncated bool

	// NextToken is passed back as ListOptions.ContinuationToken to fetch the
	// next page. Empty on the final page.
	NextToken string
}

// VersionPage is one page of a ListObjectVersions call.
type VersionPage struct {
	Versions []*ObjectVersion

	IsTruncated bool
	NextToken   string
}

// Storage provides object storage operations across providers.
// This interface abstracts the differences between AWS S3, MinIO and other
// S3-compatible services.
//
// Every method returns errors as *s3drain.CloudError so callers can branch on
// the error code (RESOURCE_NOT_FOUND, TRANSPORT_FAILED, ...) without knowing
// the backend.
type Storage interface {
	// CreateBucket creates a new storage bucket with the specified configuration.
	// Bucket names must be globally unique across all accounts and regions.
	//
	// Common errors:
	//   - ErrResourceConflict: Bucket name already exists
	//   - ErrAuthorization: Insufficient permissions to create buckets
	CreateBucket(ctx context.Context, config *BucketConfig) error

	// ListBuckets returns the names of all buckets in your account.
	// Returns an empty slice if no buckets exist.
	ListBuckets(ctx context.Context) ([]string, error)

	// DeleteBucket deletes an empty bucket.
	//
	// The bucket must be completely empty, including all object versions and
	// delete markers. Use the drainer package to get it there:
	//
	//	result := drainer.New().Drain(ctx, storage, "old-test-bucket")
	//	if result.Clean() {
	//	    err = storage.DeleteBucket(ctx, "old-test-bucket")
	//	}
	//
	// Common errors:
	//   - ErrResourceNotFound: Bucket doesn't exist
	//   - ErrResourceConflict: Bucket is not empty
	DeleteBucket(ctx context.Context, name string) error

	// PutObject uploads data to the specified bucket and key.
	// If an object with the same key already exists, it is overwritten (or, in
	// a versioned bucket, a new version is added).
	PutObject(ctx context.Context, bucket, key string, body io.Reader) error

	// GetObject downloads an object from the specified bucket and key.
	// The caller MUST close the returned ReadCloser.
	//
	// Common errors:
	//   - ErrResourceNotFound: Bucket or object doesn't exist
	GetObject(ctx context.Context, bucket, key string) (io.ReadCloser, error)

	// DeleteObject removes an object from the specified bucket.
	// If versioning is enabled, this creates a delete marker instead of
	// permanently deleting.
	//
	// Common errors:
	//   - ErrResourceNotFound: Bucket or object doesn't exist (callers that
	//     want idempotent deletes treat this as success)
	DeleteObject(ctx context.Context, bucket, key string) error

	// ListObjects returns one page of live objects.
	//
	// Example:
	//
	//	opts := services.ListOptions{}
	//	for {
	//	    page, err := storage.ListObjects(ctx, "my-bucket", opts)
	//	    if err != nil {
	//	        return err
	//	    }
	//	    for _, obj := range page.Objects {
	//	        fmt.Printf("%s (%d bytes)\n", obj.Key, obj.Size)
	//	    }
	//	    if !page.IsTruncated {
	//	        break
	//	    }
	//	    opts.ContinuationToken = page.NextToken
	//	}
	ListObjects(ctx context.Context, bucket string, opts ListOptions) (*ObjectPage, error)

	// ListObjectVersions returns one page of version history, delete markers
	// included. On buckets without versioning it returns one "null" version
	// per object.
	ListObjectVersions(ctx context.Context, bucket string, opts ListOptions) (*VersionPage, error)

	// DeleteObjectVersion permanently removes one version (or delete marker)
	// of a key.
	DeleteObjectVersion(ctx context.Context, bucket, key, versionID string) error
}

// Presigner is implemented by storage backends that can hand out
// time-limited GET URLs.
type Presigner interface {
	PresignGetObject(ctx context.Context, bucket, key string, expires time.Duration) (string, error)
}
