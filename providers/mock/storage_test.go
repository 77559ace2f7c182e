package mock

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/acloudysky/s3drain"
	"github.com/acloudysky/s3drain/services"
)

func put(t *testing.T, storage services.Storage, bucket string, keys ...string) {
	t.Helper()
	for _, key := range keys {
		require.NoError(t, storage.PutObject(context.Background(), bucket, key, strings.NewReader("data-"+key)))
	}
}

func allVersions(t *testing.T, storage services.Storage, bucket string, pageSize int) []*services.ObjectVersion {
	t.Helper()
	var out []*services.ObjectVersion
	opts := services.ListOptions{MaxKeys: pageSize}
	for {
		page, err := storage.ListObjectVersions(context.Background(), bucket, opts)
		require.NoError(t, err)
		out = append(out, page.Versions...)
		if !page.IsTruncated {
			return out
		}
		opts.ContinuationToken = page.NextToken
	}
}

func TestMockStorage_BucketLifecycle(t *testing.T) {
	provider := New("us-east-1")
	storage := provider.Storage()
	ctx := context.Background()

	require.NoError(t, storage.CreateBucket(ctx, &services.BucketConfig{Name: "b2"}))
	require.NoError(t, storage.CreateBucket(ctx, &services.BucketConfig{Name: "b1"}))

	err := storage.CreateBucket(ctx, &services.BucketConfig{Name: "b1"})
	assert.Equal(t, s3drain.ErrResourceConflict, s3drain.CodeOf(err))

	buckets, err := storage.ListBuckets(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"b1", "b2"}, buckets)

	put(t, storage, "b1", "k")
	err = storage.DeleteBucket(ctx, "b1")
	assert.Equal(t, s3drain.ErrResourceConflict, s3drain.CodeOf(err))

	require.NoError(t, storage.DeleteObject(ctx, "b1", "k"))
	require.NoError(t, storage.DeleteBucket(ctx, "b1"))
	assert.True(t, s3drain.IsNotFound(storage.DeleteBucket(ctx, "b1")))
	assert.Equal(t, -1, provider.EntryCount("b1"))
}

func TestMockStorage_UnversionedObjects(t *testing.T) {
	provider := New("us-east-1").WithBucket("plain", false)
	storage := provider.Storage()
	ctx := context.Background()

	put(t, storage, "plain", "a", "a")

	reader, err := storage.GetObject(ctx, "plain", "a")
	require.NoError(t, err)
	data, _ := io.ReadAll(reader)
	assert.Equal(t, "data-a", string(data))

	versions := allVersions(t, storage, "plain", 0)
	require.Len(t, versions, 1)
	assert.Equal(t, "null", versions[0].VersionID)

	require.NoError(t, storage.DeleteObject(ctx, "plain", "a"))
	assert.Equal(t, 0, provider.EntryCount("plain"))
	assert.True(t, s3drain.IsNotFound(storage.DeleteObject(ctx, "plain", "a")))
}

func TestMockStorage_VersionedDeleteLeavesMarker(t *testing.T) {
	provider := New("us-east-1").WithBucket("history", true)
	storage := provider.Storage()
	ctx := context.Background()

	put(t, storage, "history", "a", "a")
	require.NoError(t, storage.DeleteObject(ctx, "history", "a"))

	page, err := storage.ListObjects(ctx, "history", services.ListOptions{})
	require.NoError(t, err)
	assert.Empty(t, page.Objects)

	_, err = storage.GetObject(ctx, "history", "a")
	assert.True(t, s3drain.IsNotFound(err))

	versions := allVersions(t, storage, "history", 0)
	require.Len(t, versions, 3)
	assert.True(t, versions[0].IsDeleteMarker)
	assert.True(t, versions[0].IsLatest)
	assert.False(t, versions[1].IsDeleteMarker)
	assert.False(t, versions[2].IsLatest)

	err = storage.DeleteBucket(ctx, "history")
	assert.Equal(t, s3drain.ErrResourceConflict, s3drain.CodeOf(err))

	for _, v := range versions {
		require.NoError(t, storage.DeleteObjectVersion(ctx, "history", v.Key, v.VersionID))
	}
	assert.Equal(t, 0, provider.EntryCount("history"))
	assert.True(t, s3drain.IsNotFound(storage.DeleteObjectVersion(ctx, "history", "a", versions[0].VersionID)))
	require.NoError(t, storage.DeleteBucket(ctx, "history"))
}

func TestMockStorage_ListObjectsPages(t *testing.T) {
	provider := New("us-east-1").WithBucket("paged", false).WithPageSize(2)
	storage := provider.Storage()
	ctx := context.Background()
	put(t, storage, "paged", "e", "d", "c", "b", "a", "x/1")

	var keys []string
	opts := services.ListOptions{}
	for {
		page, err := storage.ListObjects(ctx, "paged", opts)
		require.NoError(t, err)
		for _, obj := range page.Objects {
			keys = append(keys, obj.Key)
		}
		if !page.IsTruncated {
			break
		}
		require.NotEmpty(t, page.NextToken)
		opts.ContinuationToken = page.NextToken
	}

	assert.Equal(t, []string{"a", "b", "c", "d", "e", "x/1"}, keys)
	assert.Equal(t, 3, provider.CallCount("ListObjects"))

	page, err := storage.ListObjects(ctx, "paged", services.ListOptions{Prefix: "x/"})
	require.NoError(t, err)
	require.Len(t, page.Objects, 1)
	assert.Equal(t, "x/1", page.Objects[0].Key)
}

func TestMockStorage_VersionTokenSurvivesDeletes(t *testing.T) {
	provider := New("us-east-1").WithBucket("history", true)
	storage := provider.Storage()
	ctx := context.Background()
	put(t, storage, "history", "a", "a", "a", "b", "b", "c")

	opts := services.ListOptions{MaxKeys: 2}
	seen := 0
	for {
		page, err := storage.ListObjectVersions(ctx, "history", opts)
		require.NoError(t, err)
		for _, v := range page.Versions {
			require.NoError(t, storage.DeleteObjectVersion(ctx, "history", v.Key, v.VersionID))
			seen++
		}
		if !page.IsTruncated {
			break
		}
		opts.ContinuationToken = page.NextToken
	}

	assert.Equal(t, 6, seen)
	assert.Equal(t, 0, provider.EntryCount("history"))
}

func TestMockStorage_BadVersionToken(t *testing.T) {
	storage := New("us-east-1").WithBucket("b", true).Storage()

	_, err := storage.ListObjectVersions(context.Background(), "b", services.ListOptions{ContinuationToken: "nope"})
	assert.Equal(t, s3drain.ErrInvalidConfig, s3drain.CodeOf(err))
}

func TestMockStorage_ErrorInjection(t *testing.T) {
	boom := s3drain.NewServiceError("mock", "storage", "DeleteObject", "InternalError", "boom")
	provider := New("us-east-1").
		WithBucket("b", false).
		WithKeyError("DeleteObject", "bad", boom).
		WithError("ListBuckets", s3drain.NewAuthenticationError("mock", nil))
	storage := provider.Storage()
	ctx := context.Background()
	put(t, storage, "b", "good", "bad")

	assert.NoError(t, storage.DeleteObject(ctx, "b", "good"))
	assert.ErrorIs(t, storage.DeleteObject(ctx, "b", "bad"), boom)

	_, err := storage.ListBuckets(ctx)
	assert.Equal(t, s3drain.ErrAuthentication, s3drain.CodeOf(err))

	ops := provider.AllOperations()
	require.NotEmpty(t, ops)
	last := ops[len(ops)-1]
	assert.Equal(t, "ListBuckets", last.Method)
	assert.Error(t, last.Error)
}

func TestMockStorage_DelayHonoursContext(t *testing.T) {
	provider := New("us-east-1").WithBucket("b", false).WithDelay("ListObjects", time.Minute)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := provider.Storage().ListObjects(ctx, "b", services.ListOptions{})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestMockStorage_Recording(t *testing.T) {
	provider := New("us-east-1").WithBucket("b", false)
	storage := provider.Storage()
	put(t, storage, "b", "k")

	require.NoError(t, storage.DeleteObject(context.Background(), "b", "k"))

	assert.True(t, provider.WasCalled("DeleteObject"))
	assert.Equal(t, 1, provider.CallCount("DeleteObject"))
	assert.Equal(t, []interface{}{"b", "k"}, provider.LastCallArgs("DeleteObject"))

	provider.Reset()
	assert.False(t, provider.WasCalled("DeleteObject"))
	assert.Equal(t, -1, provider.EntryCount("b"))
}

func TestMockStorage_Presign(t *testing.T) {
	provider := New("us-east-1").WithBucket("b", false)
	client := s3drain.New(provider)

	presigner, err := client.Presigner()
	require.NoError(t, err)

	u, err := presigner.PresignGetObject(context.Background(), "b", "dir/file name.txt", time.Hour)
	require.NoError(t, err)
	assert.Equal(t, "https://mock.local/b/dir%2Ffile%20name.txt?expires=3600", u)

	_, err = presigner.PresignGetObject(context.Background(), "missing", "k", time.Hour)
	assert.True(t, s3drain.IsNotFound(err))
}

func TestMockProvider(t *testing.T) {
	provider := New("eu-central-1")

	assert.Equal(t, "mock", provider.Name())
	assert.Equal(t, "eu-central-1", provider.Region())
	assert.NotNil(t, provider.Storage())
}
