// Package drainer empties a bucket of every live object and every historical
// version, delete markers included, so the bucket can be removed.
//
// A drain runs two phases. The object phase pages through ListObjects and
// deletes each key; the version phase then pages through ListObjectVersions
// and deletes each (key, version id) pair. Both phases are best effort: a
// failed delete is recorded in the Result and the drain moves on. A failed
// listing stops only its own phase, except when the very first listing says
// the bucket does not exist, which ends the drain.
//
// Drain never returns an error and never panics on storage failures; inspect
// Result.Clean before removing the bucket, or use DrainAndDelete.
//
//	result := drainer.New(drainer.WithConcurrency(8)).Drain(ctx, storage, "old-bucket")
//	for _, f := range result.Failures {
//	    log.Printf("%s %s@%s: %s", f.Phase, f.Key, f.VersionID, f.Reason)
//	}
package drainer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/acloudysky/s3drain"
	"github.com/acloudysky/s3drain/services"
)

// Store is the storage capability a drain consumes. services.Storage
// satisfies it.
type Store interface {
	ListObjects(ctx context.Context, bucket string, opts services.ListOptions) (*services.ObjectPage, error)
	DeleteObject(ctx context.Context, bucket, key string) error
	ListObjectVersions(ctx context.Context, bucket string, opts services.ListOptions) (*services.VersionPage, error)
	DeleteObjectVersion(ctx context.Context, bucket, key, versionID string) error
}

// BucketRemover is a Store that can also remove the bucket once it is empty.
type BucketRemover interface {
	Store
	DeleteBucket(ctx context.Context, name string) error
}

// ErrBucketNotDrained is returned by DrainAndDelete when the drain left
// failures behind and the bucket was therefore kept.
var ErrBucketNotDrained = errors.New("drainer: bucket not drained")

// Drainer holds drain settings. It keeps no per-bucket state and may be
// reused, including concurrently.
type Drainer struct {
	concurrency int
	maxPages    int
	pageSize    int
	prefix      string
	log         zerolog.Logger
}

// New creates a Drainer. The zero configuration deletes sequentially, lets
// the backend pick page sizes and logs nothing.
func New(opts ...Option) *Drainer {
	d := &Drainer{
		concurrency: 1,
		maxPages:    DefaultMaxPages,
		log:         zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Drain empties bucket using the default Drainer.
func Drain(ctx context.Context, store Store, bucket string) Result {
	return New().Drain(ctx, store, bucket)
}

// Drain deletes every live object and then every version of bucket.
// Cancelling ctx stops new calls; the partial Result is still returned and
// carries the context error as a phase failure.
func (d *Drainer) Drain(ctx context.Context, store Store, bucket string) Result {
	start := time.Now()
	r := &run{
		d:      d,
		store:  store,
		bucket: bucket,
		log:    d.log.With().Str("bucket", bucket).Logger(),
	}

	missing := r.paginate(ctx, PhaseObjects, r.listObjects)
	if !missing && !r.canceled {
		r.paginate(ctx, PhaseVersions, r.listVersions)
	}

	result := r.result(time.Since(start))
	event := r.log.Info()
	if !result.Clean() {
		event = r.log.Warn()
	}
	event.
		Int("objects_deleted", result.ObjectsDeleted).
		Int("versions_deleted", result.VersionsDeleted).
		Int("failures", len(result.Failures)).
		Dur("duration", result.Duration).
		Msg("drain finished")
	return result
}

// DrainAndDelete drains bucket and removes it when the drain was clean.
func (d *Drainer) DrainAndDelete(ctx context.Context, store BucketRemover, bucket string) (Result, error) {
	result := d.Drain(ctx, store, bucket)
	if !result.Clean() {
		return result, fmt.Errorf("%w: %s has %d failures", ErrBucketNotDrained, bucket, len(result.Failures))
	}
	if err := store.DeleteBucket(ctx, bucket); err != nil {
		return result, fmt.Errorf("delete bucket %s: %w", bucket, err)
	}
	d.log.Info().Str("bucket", bucket).Msg("bucket deleted")
	return result, nil
}

type entry struct {
	key       string
	versionID string
}

type lister func(ctx context.Context, opts services.ListOptions) (entries []entry, truncated bool, next string, err error)

// run is the accumulator of a single Drain call.
type run struct {
	d      *Drainer
	store  Store
	bucket string
	log    zerolog.Logger

	mu           sync.Mutex
	objects      int
	versions     int
	objectPages  int
	versionPages int
	failures     []Failure
	canceled     bool
}

// paginate follows one listing to its last page, deleting every entry of a
// page before asking for the next one. It reports whether the first listing
// found the bucket missing.
func (r *run) paginate(ctx context.Context, phase Phase, list lister) bool {
	opts := services.ListOptions{Prefix: r.d.prefix, MaxKeys: r.d.pageSize}

	for pages := 0; ; pages++ {
		if err := ctx.Err(); err != nil {
			r.cancel(phase, err)
			return false
		}
		if pages >= r.d.maxPages {
			r.fail(phase, "", "", s3drain.NewCloudError(
				s3drain.ErrTransport,
				fmt.Sprintf("listing did not finish within %d pages", r.d.maxPages),
				"", "storage", string(phase),
			))
			return false
		}

		entries, truncated, next, err := list(ctx, opts)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				r.cancel(phase, ctxErr)
				return false
			}
			r.fail(phase, "", "", err)
			return pages == 0 && s3drain.IsNotFound(err)
		}
		r.countPage(phase)
		r.log.Debug().
			Str("phase", string(phase)).
			Int("page", pages+1).
			Int("entries", len(entries)).
			Bool("truncated", truncated).
			Msg("listed page")

		r.deleteAll(ctx, phase, entries)
		if err := ctx.Err(); err != nil {
			r.cancel(phase, err)
			return false
		}

		if !truncated {
			return false
		}
		if next == "" {
			r.fail(phase, "", "", s3drain.NewCloudError(
				s3drain.ErrTransport,
				"truncated page without continuation token",
				"", "storage", string(phase),
			))
			return false
		}
		opts.ContinuationToken = next
	}
}

func (r *run) deleteAll(ctx context.Context, phase Phase, entries []entry) {
	if r.d.concurrency <= 1 || len(entries) <= 1 {
		for _, e := range entries {
			if ctx.Err() != nil {
				return
			}
			r.deleteOne(ctx, phase, e)
		}
		return
	}

	var g errgroup.Group
	g.SetLimit(r.d.concurrency)
	for _, e := range entries {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			r.deleteOne(ctx, phase, e)
			return nil
		})
	}
	_ = g.Wait()
}

func (r *run) deleteOne(ctx context.Context, phase Phase, e entry) {
	var err error
	if phase == PhaseObjects {
		err = r.store.DeleteObject(ctx, r.bucket, e.key)
	} else {
		err = r.store.DeleteObjectVersion(ctx, r.bucket, e.key, e.versionID)
	}

	if s3drain.IsNotFound(err) {
		r.log.Debug().Str("key", e.key).Str("version_id", e.versionID).Msg("already deleted")
		err = nil
	}
	if err != nil {
		// The phase-level cancellation failure covers entries cut short.
		if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
			return
		}
		r.fail(phase, e.key, e.versionID, err)
		return
	}

	r.mu.Lock()
	if phase == PhaseObjects {
		r.objects++
	} else {
		r.versions++
	}
	r.mu.Unlock()
}

func (r *run) listObjects(ctx context.Context, opts services.ListOptions) ([]entry, bool, string, error) {
	page, err := r.store.ListObjects(ctx, r.bucket, opts)
	if err != nil || page == nil {
		return nil, false, "", err
	}
	entries := make([]entry, 0, len(page.Objects))
	for _, obj := range page.Objects {
		if obj == nil {
			continue
		}
		entries = append(entries, entry{key: obj.Key})
	}
	return entries, page.IsTruncated, page.NextToken, nil
}

func (r *run) listVersions(ctx context.Context, opts services.ListOptions) ([]entry, bool, string, error) {
	page, err := r.store.ListObjectVersions(ctx, r.bucket, opts)
	if err != nil || page == nil {
		return nil, false, "", err
	}
	entries := make([]entry, 0, len(page.Versions))
	for _, v := range page.Versions {
		if v == nil {
			continue
		}
		entries = append(entries, entry{key: v.Key, versionID: v.VersionID})
	}
	return entries, page.IsTruncated, page.NextToken, nil
}

func (r *run) countPage(phase Phase) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if phase == PhaseObjects {
		r.objectPages++
	} else {
		r.versionPages++
	}
}

func (r *run) fail(phase Phase, key, versionID string, err error) {
	f := newFailure(phase, key, versionID, err)

	r.mu.Lock()
	r.failures = append(r.failures, f)
	r.mu.Unlock()

	r.log.Warn().
		Err(err).
		Str("phase", string(phase)).
		Str("key", key).
		Str("version_id", versionID).
		Str("code", string(f.Code)).
		Msg("drain failure")
}

func (r *run) cancel(phase Phase, err error) {
	r.fail(phase, "", "", err)
	r.canceled = true
}

func (r *run) result(elapsed time.Duration) Result {
	r.mu.Lock()
	defer r.mu.Unlock()

	failures := make([]Failure, len(r.failures))
	copy(failures, r.failures)
	return Result{
		Bucket:          r.bucket,
		ObjectsDeleted:  r.objects,
		VersionsDeleted: r.versions,
		Failures:        failures,
		ObjectPages:     r.objectPages,
		VersionPages:    r.versionPages,
		Duration:        elapsed,
	}
}
