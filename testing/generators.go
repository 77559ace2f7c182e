package testing

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"sync/atomic"
	"time"

	"github.com/acloudysky/s3drain/services"
)

// Test data generators provide realistic configurations for testing

var bucketSeq atomic.Int64

// GenerateBucketConfig creates a realistic bucket configuration for testing
func GenerateBucketConfig(name string) *services.BucketConfig {
	return &services.BucketConfig{
		Name:   name,
		Region: "us-east-1",
	}
}

// GenerateVersionedBucketConfig creates a bucket configuration with
// versioning enabled
func GenerateVersionedBucketConfig(name string) *services.BucketConfig {
	versioning := true
	config := GenerateBucketConfig(name)
	config.Versioning = &versioning
	return config
}

// GenerateBucketName generates a valid, unique bucket name for testing
func GenerateBucketName(prefix string) string {
	n := bucketSeq.Add(1)
	return strings.ToLower(fmt.Sprintf("%s-test-%d-%d", prefix, time.Now().Unix(), n))
}

// GenerateObjectKey generates a realistic object key for testing
func GenerateObjectKey() string {
	paths := []string{
		"documents/file.pdf",
		"images/photo.jpg",
		"data/export.csv",
		"logs/application.log",
		"backups/database.sql",
	}
	return paths[rand.Intn(len(paths))]
}

// GenerateObjectKeys generates count distinct keys under prefix
func GenerateObjectKeys(prefix string, count int) []string {
	keys := make([]string, count)
	for i := 0; i < count; i++ {
		keys[i] = fmt.Sprintf("%sobject-%04d.txt", prefix, i)
	}
	return keys
}

// SeedOptions describes the history SeedBucket writes
type SeedOptions struct {
	// Objects is the number of distinct keys written.
	Objects int

	// Revisions is how many times each key is written. Values below 1 mean 1.
	Revisions int

	// DeleteMarkers is how many of the keys are deleted afterwards. On a
	// versioned bucket each delete leaves a marker.
	DeleteMarkers int

	// Prefix is prepended to every generated key.
	Prefix string
}

// SeedResult reports what the bucket holds after seeding, as listed back
// from the storage
type SeedResult struct {
	Keys         []string
	LiveObjects  int
	Entries      int
	DeleteMarker int
}

// SeedBucket fills a bucket with objects, overwritten revisions and delete
// markers, then lists it back so callers know what a drain must remove.
func SeedBucket(ctx context.Context, storage services.Storage, bucket string, opts SeedOptions) (*SeedResult, error) {
	revisions := opts.Revisions
	if revisions < 1 {
		revisions = 1
	}

	keys := GenerateObjectKeys(opts.Prefix, opts.Objects)
	for _, key := range keys {
		for rev := 0; rev < revisions; rev++ {
			body := fmt.Sprintf("%s revision %d", key, rev)
			if err := storage.PutObject(ctx, bucket, key, strings.NewReader(body)); err != nil {
				return nil, fmt.Errorf("seed %s/%s: %w", bucket, key, err)
			}
		}
	}

	for i := 0; i < opts.DeleteMarkers && i < len(keys); i++ {
		if err := storage.DeleteObject(ctx, bucket, keys[i]); err != nil {
			return nil, fmt.Errorf("seed delete %s/%s: %w", bucket, keys[i], err)
		}
	}

	result := &SeedResult{Keys: keys}

	listOpts := services.ListOptions{Prefix: opts.Prefix}
	for {
		page, err := storage.ListObjects(ctx, bucket, listOpts)
		if err != nil {
			return nil, err
		}
		result.LiveObjects += len(page.Objects)
		if !page.IsTruncated {
			break
		}
		listOpts.ContinuationToken = page.NextToken
	}

	listOpts = services.ListOptions{Prefix: opts.Prefix}
	for {
		page, err := storage.ListObjectVersions(ctx, bucket, listOpts)
		if err != nil {
			return nil, err
		}
		for _, v := range page.Versions {
			result.Entries++
			if v.IsDeleteMarker {
				result.DeleteMarker++
			}
		}
		if !page.IsTruncated {
			break
		}
		listOpts.ContinuationToken = page.NextToken
	}

	return result, nil
}

// GenerateBucketConfigs generates multiple bucket configurations for batch testing
func GenerateBucketConfigs(count int, namePrefix string) []*services.BucketConfig {
	configs := make([]*services.BucketConfig, count)
	for i := 0; i < count; i++ {
		configs[i] = GenerateBucketConfig(fmt.Sprintf("%s-%d", namePrefix, i))
	}
	return configs
}
