package testing

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/acloudysky/s3drain"
	"github.com/acloudysky/s3drain/drainer"
	"github.com/acloudysky/s3drain/services"
)

// StorageContractSuite tests that providers correctly implement the storage
// interface the drainer depends on
type StorageContractSuite struct {
	t        *testing.T
	provider s3drain.Provider
	client   *s3drain.Client
	timeout  time.Duration
}

// NewStorageContractSuite creates a new provider contract test suite
func NewStorageContractSuite(t *testing.T, provider s3drain.Provider) *StorageContractSuite {
	return &StorageContractSuite{
		t:        t,
		provider: provider,
		client:   s3drain.New(provider),
		timeout:  2 * time.Minute,
	}
}

// RunAllTests runs all contract tests for the provider
func (s *StorageContractSuite) RunAllTests() {
	s.t.Run("ProviderInterface", s.TestProviderInterface)
	s.t.Run("BucketLifecycle", s.TestBucketLifecycle)
	s.t.Run("ObjectOperations", s.TestObjectOperations)
	s.t.Run("Pagination", s.TestPagination)
	s.t.Run("VersionHistory", s.TestVersionHistory)
	s.t.Run("DrainUnversioned", s.TestDrainUnversioned)
	s.t.Run("DrainVersioned", s.TestDrainVersioned)
	s.t.Run("DrainAndDelete", s.TestDrainAndDelete)
	s.t.Run("MissingBucket", s.TestMissingBucket)
}

// TestProviderInterface tests the basic provider interface
func (s *StorageContractSuite) TestProviderInterface(t *testing.T) {
	if s.provider.Name() == "" {
		t.Error("Provider Name() returned empty string")
	}
	if s.provider.Region() == "" {
		t.Error("Provider Region() returned empty string")
	}

	MustNotPanic(t, func() {
		if s.client.Storage() == nil {
			t.Error("Client Storage() returned nil")
		}
	})
}

// TestBucketLifecycle creates, lists and deletes a bucket
func (s *StorageContractSuite) TestBucketLifecycle(t *testing.T) {
	storage := s.client.Storage()
	ctx, cancel := s.context()
	defer cancel()

	bucketName := GenerateBucketName("contract")
	AssertNoError(t, storage.CreateBucket(ctx, GenerateBucketConfig(bucketName)))

	buckets, err := storage.ListBuckets(ctx)
	AssertNoError(t, err)
	if !containsString(buckets, bucketName) {
		t.Error("Created bucket not found in ListBuckets result")
	}

	AssertNoError(t, storage.DeleteBucket(ctx, bucketName))

	err = storage.DeleteBucket(ctx, bucketName)
	if !s3drain.IsNotFound(err) {
		t.Errorf("Expected not found after deletion, got: %v", err)
	}
}

// TestObjectOperations tests object operations within a bucket
func (s *StorageContractSuite) TestObjectOperations(t *testing.T) {
	storage := s.client.Storage()
	ctx, cancel := s.context()
	defer cancel()

	bucketName := s.createBucket(t, ctx, false)
	defer s.dispose(ctx, bucketName)

	objectKey := "test-object.txt"
	testData := "Hello, World!"

	AssertNoError(t, storage.PutObject(ctx, bucketName, objectKey, strings.NewReader(testData)))

	reader, err := storage.GetObject(ctx, bucketName, objectKey)
	AssertNoError(t, err)
	data, err := io.ReadAll(reader)
	reader.Close()
	AssertNoError(t, err)
	AssertEqual(t, testData, string(data))

	page, err := storage.ListObjects(ctx, bucketName, services.ListOptions{})
	AssertNoError(t, err)
	if len(page.Objects) != 1 {
		t.Fatalf("Expected 1 object, got %d", len(page.Objects))
	}
	AssertEqual(t, objectKey, page.Objects[0].Key)
	AssertEqual(t, int64(len(testData)), page.Objects[0].Size)

	AssertNoError(t, storage.DeleteObject(ctx, bucketName, objectKey))

	_, err = storage.GetObject(ctx, bucketName, objectKey)
	if !s3drain.IsNotFound(err) {
		t.Errorf("Expected not found after deletion, got: %v", err)
	}
}

// TestPagination walks a listing in small pages and checks every key is
// seen exactly once
func (s *StorageContractSuite) TestPagination(t *testing.T) {
	storage := s.client.Storage()
	ctx, cancel := s.context()
	defer cancel()

	bucketName := s.createBucket(t, ctx, false)
	defer s.dispose(ctx, bucketName)

	seed, err := SeedBucket(ctx, storage, bucketName, SeedOptions{Objects: 5})
	AssertNoError(t, err)

	seen := make(map[string]int)
	pages := 0
	opts := services.ListOptions{MaxKeys: 2}
	for {
		page, err := storage.ListObjects(ctx, bucketName, opts)
		AssertNoError(t, err)
		pages++
		for _, obj := range page.Objects {
			seen[obj.Key]++
		}
		if !page.IsTruncated {
			break
		}
		if page.NextToken == "" {
			t.Fatal("Truncated page returned no continuation token")
		}
		opts.ContinuationToken = page.NextToken
	}

	AssertEqual(t, 3, pages)
	AssertEqual(t, len(seed.Keys), len(seen))
	for _, key := range seed.Keys {
		if seen[key] != 1 {
			t.Errorf("Key %s listed %d times", key, seen[key])
		}
	}
}

// TestVersionHistory checks that overwrites and deletes on a versioned
// bucket show up as versions and delete markers
func (s *StorageContractSuite) TestVersionHistory(t *testing.T) {
	storage := s.client.Storage()
	ctx, cancel := s.context()
	defer cancel()

	bucketName := s.createBucket(t, ctx, true)
	defer s.dispose(ctx, bucketName)

	seed, err := SeedBucket(ctx, storage, bucketName, SeedOptions{Objects: 2, Revisions: 2, DeleteMarkers: 1})
	AssertNoError(t, err)

	AssertEqual(t, 1, seed.LiveObjects)
	AssertEqual(t, 5, seed.Entries)
	AssertEqual(t, 1, seed.DeleteMarker)

	versions := listAllVersions(t, ctx, storage, bucketName)
	AssertEqual(t, seed.Entries, len(versions))
	for _, v := range versions {
		if v.VersionID == "" {
			t.Errorf("Version of %s has no version id", v.Key)
		}
	}

	AssertNoError(t, storage.DeleteObjectVersion(ctx, bucketName, versions[0].Key, versions[0].VersionID))

	after := listAllVersions(t, ctx, storage, bucketName)
	AssertEqual(t, seed.Entries-1, len(after))
}

// TestDrainUnversioned drains a bucket without versioning
func (s *StorageContractSuite) TestDrainUnversioned(t *testing.T) {
	storage := s.client.Storage()
	ctx, cancel := s.context()
	defer cancel()

	bucketName := s.createBucket(t, ctx, false)
	defer s.dispose(ctx, bucketName)

	seed, err := SeedBucket(ctx, storage, bucketName, SeedOptions{Objects: 7, Prefix: "logs/"})
	AssertNoError(t, err)

	result := drainer.New(drainer.WithPageSize(3), drainer.WithConcurrency(4)).Drain(ctx, storage, bucketName)

	AssertResultClean(t, result)
	AssertEqual(t, seed.LiveObjects, result.ObjectsDeleted)
	AssertEqual(t, 3, result.ObjectPages)
	AssertBucketEmpty(t, storage, bucketName)
}

// TestDrainVersioned drains a bucket holding overwritten versions and delete
// markers
func (s *StorageContractSuite) TestDrainVersioned(t *testing.T) {
	storage := s.client.Storage()
	ctx, cancel := s.context()
	defer cancel()

	bucketName := s.createBucket(t, ctx, true)
	defer s.dispose(ctx, bucketName)

	seed, err := SeedBucket(ctx, storage, bucketName, SeedOptions{Objects: 5, Revisions: 2, DeleteMarkers: 2})
	AssertNoError(t, err)

	result := drainer.New(drainer.WithPageSize(2), drainer.WithConcurrency(3)).Drain(ctx, storage, bucketName)

	AssertResultClean(t, result)
	AssertEqual(t, seed.LiveObjects, result.ObjectsDeleted)
	// every live delete in the first phase leaves one more marker behind
	AssertEqual(t, seed.Entries+seed.LiveObjects, result.VersionsDeleted)
	AssertBucketEmpty(t, storage, bucketName)

	again := drainer.Drain(ctx, storage, bucketName)
	AssertResultClean(t, again)
	AssertEqual(t, 0, again.ObjectsDeleted)
	AssertEqual(t, 0, again.VersionsDeleted)
}

// TestDrainAndDelete empties and removes a bucket in one call
func (s *StorageContractSuite) TestDrainAndDelete(t *testing.T) {
	storage := s.client.Storage()
	ctx, cancel := s.context()
	defer cancel()

	bucketName := s.createBucket(t, ctx, true)
	_, err := SeedBucket(ctx, storage, bucketName, SeedOptions{Objects: 3, Revisions: 2, DeleteMarkers: 1})
	AssertNoError(t, err)

	result, err := drainer.New().DrainAndDelete(ctx, storage, bucketName)
	AssertNoError(t, err)
	AssertResultClean(t, result)

	buckets, err := storage.ListBuckets(ctx)
	AssertNoError(t, err)
	if containsString(buckets, bucketName) {
		t.Errorf("Bucket %s still listed after DrainAndDelete", bucketName)
	}
}

// TestMissingBucket checks that draining a bucket that does not exist
// reports a single not-found failure instead of erroring out
func (s *StorageContractSuite) TestMissingBucket(t *testing.T) {
	ctx, cancel := s.context()
	defer cancel()

	result := drainer.Drain(ctx, s.client.Storage(), GenerateBucketName("missing"))

	if len(result.Failures) != 1 {
		t.Fatalf("Expected 1 failure, got %d", len(result.Failures))
	}
	failure := result.Failures[0]
	AssertEqual(t, drainer.PhaseObjects, failure.Phase)
	AssertEqual(t, s3drain.ErrResourceNotFound, failure.Code)
	if !failure.Fatal() {
		t.Error("Missing bucket failure should be phase-fatal")
	}
}

func (s *StorageContractSuite) context() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), s.timeout)
}

func (s *StorageContractSuite) createBucket(t *testing.T, ctx context.Context, versioned bool) string {
	t.Helper()
	name := GenerateBucketName("contract")
	config := GenerateBucketConfig(name)
	if versioned {
		config = GenerateVersionedBucketConfig(name)
	}
	config.Region = s.provider.Region()
	AssertNoError(t, s.client.Storage().CreateBucket(ctx, config))
	return name
}

// dispose removes a bucket a test created, whatever state it was left in
func (s *StorageContractSuite) dispose(ctx context.Context, bucketName string) {
	if _, err := drainer.New().DrainAndDelete(ctx, s.client.Storage(), bucketName); err != nil && !s3drain.IsNotFound(err) {
		s.t.Logf("Failed to dispose bucket %s: %v", bucketName, err)
	}
}

// listAllVersions follows continuation tokens to the end of the version
// listing.
func listAllVersions(t *testing.T, ctx context.Context, storage services.Storage, bucketName string) []*services.ObjectVersion {
	t.Helper()

	var versions []*services.ObjectVersion
	opts := services.ListOptions{}
	for {
		page, err := storage.ListObjectVersions(ctx, bucketName, opts)
		AssertNoError(t, err)
		versions = append(versions, page.Versions...)
		if !page.IsTruncated {
			return versions
		}
		if page.NextToken == "" {
			t.Fatal("Truncated page returned no continuation token")
		}
		opts.ContinuationToken = page.NextToken
	}
}

func containsString(values []string, want string) bool {
	for _, v := range values {
		if v == want {
			return true
		}
	}
	return false
}

// RunStorageContractTests is a convenience function to run all contract tests
func RunStorageContractTests(t *testing.T, provider s3drain.Provider) {
	suite := NewStorageContractSuite(t, provider)
	suite.RunAllTests()
}
