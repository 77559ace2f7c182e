package drainer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/acloudysky/s3drain"
	"github.com/acloudysky/s3drain/services"
)

// fakeStore serves scripted listing pages by call index and records every
// call made against it.
type fakeStore struct {
	mu sync.Mutex

	objectPages  []services.ObjectPage
	versionPages []services.VersionPage
	endless      bool

	objectListErr  map[int]error
	versionListErr map[int]error
	deleteErr      map[string]error
	deleteBucket   error

	objectOpts      []services.ListOptions
	versionOpts     []services.ListOptions
	deleted         []string
	deletedVersions []string
	events          []string
	bucketDeleted   bool

	delay       time.Duration
	inFlight    int
	maxInFlight int
	afterDelete func()
}

func (f *fakeStore) ListObjects(ctx context.Context, bucket string, opts services.ListOptions) (*services.ObjectPage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	idx := len(f.objectOpts)
	f.objectOpts = append(f.objectOpts, opts)
	f.events = append(f.events, fmt.Sprintf("list-objects:%d", idx))

	if err := f.objectListErr[idx]; err != nil {
		return nil, err
	}
	if f.endless {
		return &services.ObjectPage{IsTruncated: true, NextToken: fmt.Sprintf("obj-%d", idx+1)}, nil
	}
	if idx >= len(f.objectPages) {
		return &services.ObjectPage{}, nil
	}
	page := f.objectPages[idx]
	return &page, nil
}

func (f *fakeStore) ListObjectVersions(ctx context.Context, bucket string, opts services.ListOptions) (*services.VersionPage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	idx := len(f.versionOpts)
	f.versionOpts = append(f.versionOpts, opts)
	f.events = append(f.events, fmt.Sprintf("list-versions:%d", idx))

	if err := f.versionListErr[idx]; err != nil {
		return nil, err
	}
	if idx >= len(f.versionPages) {
		return &services.VersionPage{}, nil
	}
	page := f.versionPages[idx]
	return &page, nil
}

func (f *fakeStore) DeleteObject(ctx context.Context, bucket, key string) error {
	return f.delete(key, "")
}

func (f *fakeStore) DeleteObjectVersion(ctx context.Context, bucket, key, versionID string) error {
	return f.delete(key, versionID)
}

func (f *fakeStore) DeleteBucket(ctx context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteBucket != nil {
		return f.deleteBucket
	}
	f.bucketDeleted = true
	return nil
}

func (f *fakeStore) delete(key, versionID string) error {
	id := key
	if versionID != "" {
		id = key + "@" + versionID
	}

	f.mu.Lock()
	f.inFlight++
	if f.inFlight > f.maxInFlight {
		f.maxInFlight = f.inFlight
	}
	f.events = append(f.events, "delete:"+id)
	if versionID == "" {
		f.deleted = append(f.deleted, key)
	} else {
		f.deletedVersions = append(f.deletedVersions, id)
	}
	err := f.deleteErr[id]
	f.mu.Unlock()

	if f.delay > 0 {
		time.Sleep(f.delay)
	}

	f.mu.Lock()
	f.inFlight--
	f.mu.Unlock()

	if f.afterDelete != nil {
		f.afterDelete()
	}
	return err
}

func objectPage(next string, keys ...string) services.ObjectPage {
	page := services.ObjectPage{IsTruncated: next != "", NextToken: next}
	for _, k := range keys {
		page.Objects = append(page.Objects, &services.Object{Key: k})
	}
	return page
}

func versionPage(next string, versions ...*services.ObjectVersion) services.VersionPage {
	return services.VersionPage{Versions: versions, IsTruncated: next != "", NextToken: next}
}

func serviceErr(code string) error {
	return s3drain.NewServiceError("fake", "storage", "DeleteObject", code, "rejected")
}

func TestDrain_EmptyBucket(t *testing.T) {
	store := &fakeStore{}

	result := Drain(context.Background(), store, "empty")

	assert.Equal(t, "empty", result.Bucket)
	assert.Equal(t, 0, result.ObjectsDeleted)
	assert.Equal(t, 0, result.VersionsDeleted)
	assert.Empty(t, result.Failures)
	assert.True(t, result.Clean())
	assert.Equal(t, 1, result.ObjectPages)
	assert.Equal(t, 1, result.VersionPages)
	assert.Empty(t, store.deleted)
	assert.Empty(t, store.deletedVersions)
}

func TestDrain_ObjectsAndDeleteMarker(t *testing.T) {
	store := &fakeStore{
		objectPages: []services.ObjectPage{objectPage("", "a.txt", "b.txt")},
		versionPages: []services.VersionPage{versionPage("",
			&services.ObjectVersion{Key: "a.txt", VersionID: "v1", IsDeleteMarker: true, IsLatest: true},
		)},
	}

	result := Drain(context.Background(), store, "demo")

	assert.Equal(t, []string{"a.txt", "b.txt"}, store.deleted)
	assert.Equal(t, []string{"a.txt@v1"}, store.deletedVersions)
	assert.Equal(t, 2, result.ObjectsDeleted)
	assert.Equal(t, 1, result.VersionsDeleted)
	assert.Empty(t, result.Failures)
}

func TestDrain_UnversionedBucket(t *testing.T) {
	keys := []string{"k1", "k2", "k3", "k4", "k5"}
	store := &fakeStore{objectPages: []services.ObjectPage{objectPage("", keys...)}}

	result := Drain(context.Background(), store, "plain")

	assert.ElementsMatch(t, keys, store.deleted)
	assert.Equal(t, len(keys), result.ObjectsDeleted)
	assert.Equal(t, 0, result.VersionsDeleted)
	assert.True(t, result.Clean())
}

func TestDrain_Idempotent(t *testing.T) {
	store := &fakeStore{objectPages: []services.ObjectPage{objectPage("", "a", "b")}}
	ctx := context.Background()

	first := Drain(ctx, store, "twice")
	require.Equal(t, 2, first.ObjectsDeleted)

	second := Drain(ctx, store, "twice")
	assert.Equal(t, 0, second.ObjectsDeleted)
	assert.Equal(t, 0, second.VersionsDeleted)
	assert.Empty(t, second.Failures)

	third := Drain(ctx, store, "twice")
	assert.Equal(t, second.ObjectsDeleted, third.ObjectsDeleted)
	assert.Empty(t, third.Failures)
}

func TestDrain_PartialFailure(t *testing.T) {
	store := &fakeStore{
		objectPages: []services.ObjectPage{objectPage("", "a", "b", "c")},
		deleteErr:   map[string]error{"b": serviceErr("InternalError")},
	}

	result := Drain(context.Background(), store, "partial")

	assert.ElementsMatch(t, []string{"a", "b", "c"}, store.deleted)
	assert.Equal(t, 2, result.ObjectsDeleted)
	require.Len(t, result.Failures, 1)

	f := result.Failures[0]
	assert.Equal(t, PhaseObjects, f.Phase)
	assert.Equal(t, "b", f.Key)
	assert.Equal(t, s3drain.ErrProviderError, f.Code)
	assert.NotEmpty(t, f.Reason)
	assert.False(t, f.Fatal())
	assert.False(t, result.Clean())
}

func TestDrain_Pagination(t *testing.T) {
	store := &fakeStore{
		objectPages: []services.ObjectPage{
			objectPage("t1", "a", "b"),
			objectPage("t2", "c", "d"),
			objectPage("", "e", "f"),
		},
	}

	result := Drain(context.Background(), store, "paged")

	require.Len(t, store.objectOpts, 3)
	assert.Equal(t, "", store.objectOpts[0].ContinuationToken)
	assert.Equal(t, "t1", store.objectOpts[1].ContinuationToken)
	assert.Equal(t, "t2", store.objectOpts[2].ContinuationToken)
	assert.Len(t, store.deleted, 6)
	assert.Equal(t, 6, result.ObjectsDeleted)
	assert.Equal(t, 3, result.ObjectPages)
}

func TestDrain_DeletesPageBeforeNextListing(t *testing.T) {
	store := &fakeStore{
		objectPages: []services.ObjectPage{
			objectPage("t1", "a", "b"),
			objectPage("", "c"),
		},
		versionPages: []services.VersionPage{versionPage("",
			&services.ObjectVersion{Key: "a", VersionID: "v1"},
		)},
	}

	New(WithConcurrency(4)).Drain(context.Background(), store, "ordered")

	require.Len(t, store.events, 7)
	assert.Equal(t, "list-objects:0", store.events[0])
	assert.ElementsMatch(t, []string{"delete:a", "delete:b"}, store.events[1:3])
	assert.Equal(t, []string{
		"list-objects:1",
		"delete:c",
		"list-versions:0",
		"delete:a@v1",
	}, store.events[3:])
}

func TestDrain_AlreadyDeletedIsSuccess(t *testing.T) {
	store := &fakeStore{
		objectPages: []services.ObjectPage{objectPage("", "gone", "here")},
		versionPages: []services.VersionPage{versionPage("",
			&services.ObjectVersion{Key: "gone", VersionID: "v9"},
		)},
		deleteErr: map[string]error{
			"gone":    s3drain.NewResourceNotFoundError("fake", "storage", "object", "gone"),
			"gone@v9": s3drain.NewResourceNotFoundError("fake", "storage", "version", "v9"),
		},
	}

	result := Drain(context.Background(), store, "racy")

	assert.Empty(t, result.Failures)
	assert.Equal(t, 2, result.ObjectsDeleted)
	assert.Equal(t, 1, result.VersionsDeleted)
}

func TestDrain_MissingBucket(t *testing.T) {
	store := &fakeStore{
		objectListErr: map[int]error{
			0: s3drain.NewResourceNotFoundError("fake", "storage", "bucket", "nope"),
		},
	}

	result := Drain(context.Background(), store, "nope")

	require.Len(t, result.Failures, 1)
	f := result.Failures[0]
	assert.True(t, f.Fatal())
	assert.Equal(t, PhaseObjects, f.Phase)
	assert.Equal(t, s3drain.ErrResourceNotFound, f.Code)
	assert.True(t, errors.Is(f.Err, s3drain.ErrNotFound))
	assert.Empty(t, store.versionOpts, "version listing must be skipped")
	assert.Equal(t, 0, result.ObjectPages)
}

func TestDrain_ObjectListingFailureStillDrainsVersions(t *testing.T) {
	store := &fakeStore{
		objectPages: []services.ObjectPage{objectPage("t1", "a")},
		objectListErr: map[int]error{
			1: s3drain.NewTransportError("fake", "storage", "ListObjects", errors.New("connection reset")),
		},
		versionPages: []services.VersionPage{versionPage("",
			&services.ObjectVersion{Key: "a", VersionID: "v1"},
			&services.ObjectVersion{Key: "b", VersionID: "v2"},
		)},
	}

	result := Drain(context.Background(), store, "flaky")

	assert.Equal(t, 1, result.ObjectsDeleted)
	assert.Equal(t, 2, result.VersionsDeleted)
	require.Len(t, result.Failures, 1)
	assert.True(t, result.Failures[0].Fatal())
	assert.Equal(t, PhaseObjects, result.Failures[0].Phase)
	assert.Equal(t, s3drain.ErrTransport, result.Failures[0].Code)
}

func TestDrain_NotFoundAfterFirstPageIsPhaseFailure(t *testing.T) {
	store := &fakeStore{
		objectPages: []services.ObjectPage{objectPage("t1", "a")},
		objectListErr: map[int]error{
			1: s3drain.NewResourceNotFoundError("fake", "storage", "bucket", "vanishing"),
		},
	}

	result := Drain(context.Background(), store, "vanishing")

	require.Len(t, result.Failures, 1)
	assert.Equal(t, s3drain.ErrResourceNotFound, result.Failures[0].Code)
	assert.Len(t, store.versionOpts, 1, "version phase still runs")
}

func TestDrain_VersionListingFailure(t *testing.T) {
	store := &fakeStore{
		objectPages: []services.ObjectPage{objectPage("", "a")},
		versionListErr: map[int]error{
			0: s3drain.NewAuthorizationError("fake", "storage", "ListObjectVersions", errors.New("AccessDenied")),
		},
	}

	result := Drain(context.Background(), store, "locked")

	assert.Equal(t, 1, result.ObjectsDeleted)
	require.Len(t, result.Failures, 1)
	assert.Equal(t, PhaseVersions, result.Failures[0].Phase)
	assert.Equal(t, s3drain.ErrAuthorization, result.Failures[0].Code)
	assert.True(t, result.Failures[0].Fatal())
}

func TestDrain_TruncatedPageWithoutToken(t *testing.T) {
	broken := objectPage("", "a")
	broken.IsTruncated = true
	store := &fakeStore{objectPages: []services.ObjectPage{broken}}

	result := Drain(context.Background(), store, "broken")

	assert.Equal(t, 1, result.ObjectsDeleted)
	assert.Len(t, store.objectOpts, 1)
	require.Len(t, result.Failures, 1)
	assert.Equal(t, s3drain.ErrTransport, result.Failures[0].Code)
	assert.True(t, result.Failures[0].Fatal())
}

func TestDrain_MaxPages(t *testing.T) {
	store := &fakeStore{endless: true}

	result := New(WithMaxPages(3)).Drain(context.Background(), store, "endless")

	assert.Len(t, store.objectOpts, 3)
	assert.Equal(t, 3, result.ObjectPages)
	require.Len(t, result.Failures, 1)
	assert.Equal(t, s3drain.ErrTransport, result.Failures[0].Code)
	assert.True(t, s3drain.IsTransport(result.Failures[0].Err))
	assert.ErrorIs(t, result.Failures[0].Err, s3drain.ErrTransportFailure)
	assert.Len(t, store.versionOpts, 1)
}

func TestDrain_ListOptions(t *testing.T) {
	store := &fakeStore{}

	New(WithPrefix("logs/"), WithPageSize(50)).Drain(context.Background(), store, "scoped")

	require.Len(t, store.objectOpts, 1)
	require.Len(t, store.versionOpts, 1)
	for _, opts := range append(store.objectOpts, store.versionOpts...) {
		assert.Equal(t, "logs/", opts.Prefix)
		assert.Equal(t, 50, opts.MaxKeys)
	}
}

func TestDrain_ConcurrencyLimit(t *testing.T) {
	keys := make([]string, 20)
	for i := range keys {
		keys[i] = fmt.Sprintf("key-%02d", i)
	}
	store := &fakeStore{
		objectPages: []services.ObjectPage{objectPage("", keys...)},
		delay:       5 * time.Millisecond,
	}

	result := New(WithConcurrency(4)).Drain(context.Background(), store, "wide")

	assert.Equal(t, 20, result.ObjectsDeleted)
	assert.ElementsMatch(t, keys, store.deleted)
	assert.LessOrEqual(t, store.maxInFlight, 4)
	assert.GreaterOrEqual(t, store.maxInFlight, 1)
}

func TestDrain_ConcurrentFailuresAreAllRecorded(t *testing.T) {
	keys := []string{"a", "b", "c", "d", "e", "f"}
	store := &fakeStore{
		objectPages: []services.ObjectPage{objectPage("", keys...)},
		deleteErr: map[string]error{
			"b": serviceErr("InternalError"),
			"d": serviceErr("InternalError"),
			"f": serviceErr("InternalError"),
		},
	}

	result := New(WithConcurrency(3)).Drain(context.Background(), store, "bumpy")

	assert.Equal(t, 3, result.ObjectsDeleted)
	require.Len(t, result.Failures, 3)
	var failed []string
	for _, f := range result.Failures {
		failed = append(failed, f.Key)
	}
	assert.ElementsMatch(t, []string{"b", "d", "f"}, failed)
}

func TestDrain_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := &fakeStore{
		objectPages: []services.ObjectPage{objectPage("t1", "a", "b", "c"), objectPage("", "d")},
	}
	var once sync.Once
	store.afterDelete = func() { once.Do(cancel) }

	result := Drain(ctx, store, "interrupted")

	assert.Equal(t, 1, result.ObjectsDeleted)
	assert.Equal(t, []string{"a"}, store.deleted)
	assert.Len(t, store.objectOpts, 1)
	assert.Empty(t, store.versionOpts)
	require.Len(t, result.Failures, 1)
	assert.True(t, result.Failures[0].Fatal())
	assert.ErrorIs(t, result.Failures[0].Err, context.Canceled)
}

func TestDrain_DeleteErrorRacingCancel(t *testing.T) {
	t.Run("service error is recorded", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		store := &fakeStore{
			objectPages: []services.ObjectPage{objectPage("", "a", "b")},
			deleteErr:   map[string]error{"a": serviceErr("AccessDenied")},
		}
		store.afterDelete = cancel

		result := Drain(ctx, store, "denied")

		assert.Equal(t, []string{"a"}, store.deleted)
		require.Len(t, result.Failures, 2)
		assert.Equal(t, "a", result.Failures[0].Key)
		assert.Equal(t, s3drain.ErrProviderError, result.Failures[0].Code)
		assert.False(t, result.Failures[0].Fatal())
		assert.True(t, result.Failures[1].Fatal())
		assert.ErrorIs(t, result.Failures[1].Err, context.Canceled)
	})

	t.Run("context error is folded into the phase failure", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		store := &fakeStore{
			objectPages: []services.ObjectPage{objectPage("", "a", "b")},
			deleteErr:   map[string]error{"a": fmt.Errorf("delete a: %w", context.Canceled)},
		}
		store.afterDelete = cancel

		result := Drain(ctx, store, "interrupted")

		require.Len(t, result.Failures, 1)
		assert.True(t, result.Failures[0].Fatal())
		assert.ErrorIs(t, result.Failures[0].Err, context.Canceled)
	})
}

func TestDrain_CancelledBeforeStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	store := &fakeStore{objectPages: []services.ObjectPage{objectPage("", "a")}}

	result := Drain(ctx, store, "never")

	assert.Empty(t, store.objectOpts)
	assert.Empty(t, store.deleted)
	require.Len(t, result.Failures, 1)
	assert.ErrorIs(t, result.Failures[0].Err, context.Canceled)
}

func TestDrain_CancelledBetweenPhases(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := &fakeStore{objectPages: []services.ObjectPage{objectPage("", "only")}}
	store.afterDelete = cancel

	result := Drain(ctx, store, "last-page")

	assert.Equal(t, 1, result.ObjectsDeleted)
	assert.Empty(t, store.versionOpts)
	require.Len(t, result.Failures, 1)
	assert.ErrorIs(t, result.Failures[0].Err, context.Canceled)
	assert.False(t, result.Clean())
}

func TestDrain_Logging(t *testing.T) {
	var buf bytes.Buffer
	log := zerolog.New(&buf).Level(zerolog.DebugLevel)
	store := &fakeStore{
		objectPages: []services.ObjectPage{objectPage("", "a", "b")},
		deleteErr:   map[string]error{"b": serviceErr("InternalError")},
	}

	New(WithLogger(log)).Drain(context.Background(), store, "noisy")

	out := buf.String()
	assert.Contains(t, out, `"bucket":"noisy"`)
	assert.Contains(t, out, `"message":"listed page"`)
	assert.Contains(t, out, `"message":"drain failure"`)
	assert.Contains(t, out, `"key":"b"`)
	assert.Contains(t, out, `"message":"drain finished"`)
}

func TestDrainAndDelete(t *testing.T) {
	t.Run("clean drain removes bucket", func(t *testing.T) {
		store := &fakeStore{objectPages: []services.ObjectPage{objectPage("", "a")}}

		result, err := New().DrainAndDelete(context.Background(), store, "done")

		require.NoError(t, err)
		assert.Equal(t, 1, result.ObjectsDeleted)
		assert.True(t, store.bucketDeleted)
	})

	t.Run("failures keep bucket", func(t *testing.T) {
		store := &fakeStore{
			objectPages: []services.ObjectPage{objectPage("", "a")},
			deleteErr:   map[string]error{"a": serviceErr("InternalError")},
		}

		result, err := New().DrainAndDelete(context.Background(), store, "stuck")

		assert.ErrorIs(t, err, ErrBucketNotDrained)
		assert.Len(t, result.Failures, 1)
		assert.False(t, store.bucketDeleted)
	})

	t.Run("bucket delete error is returned", func(t *testing.T) {
		conflict := s3drain.NewCloudError(s3drain.ErrResourceConflict, "bucket not empty", "fake", "storage", "DeleteBucket")
		store := &fakeStore{deleteBucket: conflict}

		result, err := New().DrainAndDelete(context.Background(), store, "raced")

		assert.True(t, result.Clean())
		assert.ErrorIs(t, err, conflict)
		assert.Equal(t, s3drain.ErrResourceConflict, s3drain.CodeOf(err))
	})
}

func TestOptions(t *testing.T) {
	d := New(WithConcurrency(0), WithMaxPages(-1), WithPageSize(-5))

	assert.Equal(t, 1, d.concurrency)
	assert.Equal(t, DefaultMaxPages, d.maxPages)
	assert.Equal(t, 0, d.pageSize)

	d = New(WithConcurrency(16), WithMaxPages(10), WithPageSize(250), WithPrefix("tmp/"))
	assert.Equal(t, 16, d.concurrency)
	assert.Equal(t, 10, d.maxPages)
	assert.Equal(t, 250, d.pageSize)
	assert.Equal(t, "tmp/", d.prefix)
}
