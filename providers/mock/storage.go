package mock

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/acloudysky/s3drain"
	"github.com/acloudysky/s3drain/services"
)

const (
	defaultPageSize = 1000
	nullVersionID   = "null"
)

// MockStorage implements the services.Storage interface for testing.
// It provides configurable responses and error injection for all storage operations.
type MockStorage struct {
	provider *MockProvider
}

// begin applies the configured delay and injected error for operation.
func (m *MockStorage) begin(ctx context.Context, operation, key string) error {
	if err := m.provider.applyDelay(ctx, operation); err != nil {
		return err
	}
	return m.provider.checkError(operation, key)
}

// bucket returns the bucket state. Callers hold stateMu.
func (m *MockStorage) bucket(operation, name string) (*BucketState, error) {
	state, exists := m.provider.bucketState[name]
	if !exists {
		err := s3drain.NewResourceNotFoundError("mock", "storage", "bucket", name)
		err.Operation = operation
		return nil, err
	}
	return state, nil
}

// CreateBucket creates a mock storage bucket.
// Returns an error if the bucket already exists or if configured to return an error.
//
// Error injection:
//   - Configure errors using WithError("CreateBucket", error)
//   - Automatically returns ErrResourceConflict if bucket already exists
func (m *MockStorage) CreateBucket(ctx context.Context, config *services.BucketConfig) error {
	err := m.createBucket(ctx, config)
	m.provider.recordOperation("CreateBucket", []interface{}{config}, nil, err)
	return err
}

func (m *MockStorage) createBucket(ctx context.Context, config *services.BucketConfig) error {
	if err := m.begin(ctx, "CreateBucket", ""); err != nil {
		return err
	}
	if config == nil || config.Name == "" {
		return s3drain.NewInvalidConfigError("mock", "storage", "name", "bucket name is required")
	}

	m.provider.stateMu.Lock()
	defer m.provider.stateMu.Unlock()

	if _, exists := m.provider.bucketState[config.Name]; exists {
		return s3drain.NewCloudError(
			s3drain.ErrResourceConflict,
			"Bucket already exists",
			"mock", "storage", "CreateBucket",
		).WithSuggestions(
			"Choose a different bucket name",
			"Delete the existing bucket first",
		)
	}

	region := config.Region
	if region == "" {
		region = m.provider.region
	}
	versioned := config.Versioning != nil && *config.Versioning
	m.provider.bucketState[config.Name] = newBucketState(config.Name, region, versioned)
	return nil
}

// ListBuckets returns all mock bucket names in lexical order.
//
// Error injection:
//   - Configure errors using WithError("ListBuckets", error)
func (m *MockStorage) ListBuckets(ctx context.Context) ([]string, error) {
	buckets, err := m.listBuckets(ctx)
	m.provider.recordOperation("ListBuckets", []interface{}{}, buckets, err)
	return buckets, err
}

func (m *MockStorage) listBuckets(ctx context.Context) ([]string, error) {
	if err := m.begin(ctx, "ListBuckets", ""); err != nil {
		return nil, err
	}

	m.provider.stateMu.Lock()
	defer m.provider.stateMu.Unlock()

	buckets := make([]string, 0, len(m.provider.bucketState))
	for name := range m.provider.bucketState {
		buckets = append(buckets, name)
	}
	slices.Sort(buckets)
	return buckets, nil
}

// DeleteBucket removes a mock storage bucket from the state.
// Like S3, a bucket that still holds any version or delete marker cannot be
// removed.
//
// Error injection:
//   - Configure errors using WithError("DeleteBucket", error)
//   - Automatically returns ErrResourceNotFound for non-existent buckets
//   - Returns ErrResourceConflict if bucket is not empty
func (m *MockStorage) DeleteBucket(ctx context.Context, name string) error {
	err := m.deleteBucket(ctx, name)
	m.provider.recordOperation("DeleteBucket", []interface{}{name}, nil, err)
	return err
}

func (m *MockStorage) deleteBucket(ctx context.Context, name string) error {
	if err := m.begin(ctx, "DeleteBucket", ""); err != nil {
		return err
	}

	m.provider.stateMu.Lock()
	defer m.provider.stateMu.Unlock()

	state, err := m.bucket("DeleteBucket", name)
	if err != nil {
		return err
	}
	if len(state.Keys) > 0 {
		return s3drain.NewCloudError(
			s3drain.ErrResourceConflict,
			"Bucket is not empty",
			"mock", "storage", "DeleteBucket",
		).WithSuggestions(
			"Drain the bucket first, including versions and delete markers",
		)
	}

	delete(m.provider.bucketState, name)
	return nil
}

// PutObject stores data under key. Versioned buckets keep the previous
// versions; unversioned buckets replace the single "null" version.
//
// Error injection:
//   - Configure errors using WithError("PutObject", error) or WithKeyError
//   - Automatically returns ErrResourceNotFound if bucket doesn't exist
func (m *MockStorage) PutObject(ctx context.Context, bucket, key string, data io.Reader) error {
	err := m.putObject(ctx, bucket, key, data)
	m.provider.recordOperation("PutObject", []interface{}{bucket, key}, nil, err)
	return err
}

func (m *MockStorage) putObject(ctx context.Context, bucket, key string, data io.Reader) error {
	if err := m.begin(ctx, "PutObject", key); err != nil {
		return err
	}

	dataBytes, err := io.ReadAll(data)
	if err != nil {
		return fmt.Errorf("read object body: %w", err)
	}

	m.provider.stateMu.Lock()
	defer m.provider.stateMu.Unlock()

	state, err := m.bucket("PutObject", bucket)
	if err != nil {
		return err
	}
	state.add(key, dataBytes, false)
	return nil
}

// GetObject returns the current version of key.
//
// Error injection:
//   - Configure errors using WithError("GetObject", error) or WithKeyError
//   - Automatically returns ErrResourceNotFound if the bucket or a live
//     object doesn't exist
func (m *MockStorage) GetObject(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	reader, err := m.getObject(ctx, bucket, key)
	m.provider.recordOperation("GetObject", []interface{}{bucket, key}, nil, err)
	return reader, err
}

func (m *MockStorage) getObject(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	if err := m.begin(ctx, "GetObject", key); err != nil {
		return nil, err
	}

	m.provider.stateMu.Lock()
	defer m.provider.stateMu.Unlock()

	state, err := m.bucket("GetObject", bucket)
	if err != nil {
		return nil, err
	}
	latest := state.latest(key)
	if latest == nil || latest.DeleteMarker {
		return nil, s3drain.NewResourceNotFoundError("mock", "storage", "object", key)
	}
	return io.NopCloser(bytes.NewReader(latest.Data)), nil
}

// DeleteObject removes the live object. On a versioned bucket a delete
// marker is written instead and every version is kept.
//
// Error injection:
//   - Configure errors using WithError("DeleteObject", error) or WithKeyError
//   - Automatically returns ErrResourceNotFound if the bucket or key doesn't exist
func (m *MockStorage) DeleteObject(ctx context.Context, bucket, key string) error {
	err := m.deleteObject(ctx, bucket, key)
	m.provider.recordOperation("DeleteObject", []interface{}{bucket, key}, nil, err)
	return err
}

func (m *MockStorage) deleteObject(ctx context.Context, bucket, key string) error {
	if err := m.begin(ctx, "DeleteObject", key); err != nil {
		return err
	}

	m.provider.stateMu.Lock()
	defer m.provider.stateMu.Unlock()

	state, err := m.bucket("DeleteObject", bucket)
	if err != nil {
		return err
	}
	if _, exists := state.Keys[key]; !exists {
		return s3drain.NewResourceNotFoundError("mock", "storage", "object", key)
	}

	if state.Versioned {
		state.add(key, nil, true)
		return nil
	}
	delete(state.Keys, key)
	return nil
}

// DeleteObjectVersion permanently removes one version or delete marker.
//
// Error injection:
//   - Configure errors using WithError("DeleteObjectVersion", error) or WithKeyError
//   - Automatically returns ErrResourceNotFound if the bucket or version doesn't exist
func (m *MockStorage) DeleteObjectVersion(ctx context.Context, bucket, key, versionID string) error {
	err := m.deleteObjectVersion(ctx, bucket, key, versionID)
	m.provider.recordOperation("DeleteObjectVersion", []interface{}{bucket, key, versionID}, nil, err)
	return err
}

func (m *MockStorage) deleteObjectVersion(ctx context.Context, bucket, key, versionID string) error {
	if err := m.begin(ctx, "DeleteObjectVersion", key); err != nil {
		return err
	}

	m.provider.stateMu.Lock()
	defer m.provider.stateMu.Unlock()

	state, err := m.bucket("DeleteObjectVersion", bucket)
	if err != nil {
		return err
	}
	versions := state.Keys[key]
	idx := slices.IndexFunc(versions, func(v *Version) bool { return v.ID == versionID })
	if idx < 0 {
		return s3drain.NewResourceNotFoundError("mock", "storage", "version", key+"@"+versionID)
	}

	versions = slices.Delete(versions, idx, idx+1)
	if len(versions) == 0 {
		delete(state.Keys, key)
	} else {
		state.Keys[key] = versions
	}
	return nil
}

// ListObjects returns one page of live objects in key order. The token is
// the last key of the previous page.
//
// Error injection:
//   - Configure errors using WithError("ListObjects", error)
//   - Automatically returns ErrResourceNotFound if bucket doesn't exist
func (m *MockStorage) ListObjects(ctx context.Context, bucket string, opts services.ListOptions) (*services.ObjectPage, error) {
	page, err := m.listObjects(ctx, bucket, opts)
	m.provider.recordOperation("ListObjects", []interface{}{bucket, opts}, page, err)
	return page, err
}

func (m *MockStorage) listObjects(ctx context.Context, bucket string, opts services.ListOptions) (*services.ObjectPage, error) {
	if err := m.begin(ctx, "ListObjects", ""); err != nil {
		return nil, err
	}

	m.provider.stateMu.Lock()
	defer m.provider.stateMu.Unlock()

	state, err := m.bucket("ListObjects", bucket)
	if err != nil {
		return nil, err
	}

	limit := m.limit(opts)
	page := &services.ObjectPage{Objects: make([]*services.Object, 0)}
	for _, key := range state.sortedKeys(opts.Prefix) {
		if opts.ContinuationToken != "" && key <= opts.ContinuationToken {
			continue
		}
		latest := state.latest(key)
		if latest.DeleteMarker {
			continue
		}
		if len(page.Objects) == limit {
			page.IsTruncated = true
			page.NextToken = page.Objects[limit-1].Key
			break
		}
		page.Objects = append(page.Objects, &services.Object{
			Key:          key,
			Size:         int64(len(latest.Data)),
			LastModified: latest.Modified.UTC().Format(time.RFC3339),
			ETag:         fmt.Sprintf("\"%032x\"", latest.seq),
		})
	}
	return page, nil
}

// ListObjectVersions returns one page of version history ordered by key and
// then newest first, delete markers included. The token names the last
// entry returned, so it stays valid while entries before it are deleted.
//
// Error injection:
//   - Configure errors using WithError("ListObjectVersions", error)
//   - Automatically returns ErrResourceNotFound if bucket doesn't exist
func (m *MockStorage) ListObjectVersions(ctx context.Context, bucket string, opts services.ListOptions) (*services.VersionPage, error) {
	page, err := m.listObjectVersions(ctx, bucket, opts)
	m.provider.recordOperation("ListObjectVersions", []interface{}{bucket, opts}, page, err)
	return page, err
}

func (m *MockStorage) listObjectVersions(ctx context.Context, bucket string, opts services.ListOptions) (*services.VersionPage, error) {
	if err := m.begin(ctx, "ListObjectVersions", ""); err != nil {
		return nil, err
	}

	var (
		afterKey string
		afterSeq int
	)
	if opts.ContinuationToken != "" {
		var err error
		afterKey, afterSeq, err = parseVersionToken(opts.ContinuationToken)
		if err != nil {
			return nil, err
		}
	}

	m.provider.stateMu.Lock()
	defer m.provider.stateMu.Unlock()

	state, err := m.bucket("ListObjectVersions", bucket)
	if err != nil {
		return nil, err
	}

	limit := m.limit(opts)
	page := &services.VersionPage{Versions: make([]*services.ObjectVersion, 0)}
	var lastSeq int
	for _, key := range state.sortedKeys(opts.Prefix) {
		if opts.ContinuationToken != "" && key < afterKey {
			continue
		}
		history := state.Keys[key]
		for i := len(history) - 1; i >= 0; i-- {
			v := history[i]
			if opts.ContinuationToken != "" && key == afterKey && v.seq >= afterSeq {
				continue
			}
			if len(page.Versions) == limit {
				page.IsTruncated = true
				page.NextToken = versionToken(page.Versions[limit-1].Key, lastSeq)
				return page, nil
			}
			page.Versions = append(page.Versions, &services.ObjectVersion{
				Key:            key,
				VersionID:      v.ID,
				IsDeleteMarker: v.DeleteMarker,
				IsLatest:       i == len(history)-1,
				Size:           int64(len(v.Data)),
				LastModified:   v.Modified.UTC().Format(time.RFC3339),
			})
			lastSeq = v.seq
		}
	}
	return page, nil
}

// PresignGetObject returns a fake URL for an existing bucket.
func (m *MockStorage) PresignGetObject(ctx context.Context, bucket, key string, expires time.Duration) (string, error) {
	u, err := m.presignGetObject(ctx, bucket, key, expires)
	m.provider.recordOperation("PresignGetObject", []interface{}{bucket, key, expires}, u, err)
	return u, err
}

func (m *MockStorage) presignGetObject(ctx context.Context, bucket, key string, expires time.Duration) (string, error) {
	if err := m.begin(ctx, "PresignGetObject", key); err != nil {
		return "", err
	}
	if expires <= 0 {
		return "", s3drain.NewInvalidConfigError("mock", "storage", "expires", "must be positive")
	}

	m.provider.stateMu.Lock()
	defer m.provider.stateMu.Unlock()

	if _, err := m.bucket("PresignGetObject", bucket); err != nil {
		return "", err
	}
	return fmt.Sprintf("https://mock.local/%s/%s?expires=%d",
		bucket, url.PathEscape(key), int(expires.Seconds())), nil
}

func (m *MockStorage) limit(opts services.ListOptions) int {
	switch {
	case opts.MaxKeys > 0:
		return opts.MaxKeys
	case m.provider.pageSize > 0:
		return m.provider.pageSize
	default:
		return defaultPageSize
	}
}

func (b *BucketState) add(key string, data []byte, marker bool) {
	b.seq++
	v := &Version{
		ID:           nullVersionID,
		Data:         data,
		DeleteMarker: marker,
		Modified:     time.Now(),
		seq:          b.seq,
	}
	if !b.Versioned {
		b.Keys[key] = []*Version{v}
		return
	}
	v.ID = fmt.Sprintf("v%06d", b.seq)
	b.Keys[key] = append(b.Keys[key], v)
}

func (b *BucketState) latest(key string) *Version {
	versions := b.Keys[key]
	if len(versions) == 0 {
		return nil
	}
	return versions[len(versions)-1]
}

func (b *BucketState) sortedKeys(prefix string) []string {
	keys := make([]string, 0, len(b.Keys))
	for key := range b.Keys {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	slices.Sort(keys)
	return keys
}

func versionToken(key string, seq int) string {
	return strconv.Itoa(seq) + "/" + key
}

func parseVersionToken(token string) (string, int, error) {
	seqStr, key, ok := strings.Cut(token, "/")
	seq, err := strconv.Atoi(seqStr)
	if !ok || err != nil {
		return "", 0, s3drain.NewInvalidConfigError("mock", "storage", "continuation_token", "malformed version token")
	}
	return key, seq, nil
}
