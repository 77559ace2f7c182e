package testing

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/acloudysky/s3drain"
	"github.com/acloudysky/s3drain/drainer"
)

// IntegrationSuite provides utilities for integration testing with automatic cleanup
type IntegrationSuite struct {
	t        *testing.T
	provider s3drain.Provider
	client   *s3drain.Client
	cleanup  bool

	// Resource tracking for cleanup
	mu             sync.RWMutex
	createdBuckets []string

	// Configuration
	timeout time.Duration
	region  string
}

// NewIntegrationSuite creates a new integration test suite
func NewIntegrationSuite(t *testing.T) *IntegrationSuite {
	return &IntegrationSuite{
		t:              t,
		cleanup:        true,
		timeout:        5 * time.Minute,
		region:         "us-east-1",
		createdBuckets: make([]string, 0),
	}
}

// WithProvider sets the storage provider for the integration suite
func (s *IntegrationSuite) WithProvider(provider s3drain.Provider) *IntegrationSuite {
	s.provider = provider
	s.client = s3drain.New(provider)
	s.region = provider.Region()
	return s
}

// WithCleanup enables or disables automatic resource cleanup
func (s *IntegrationSuite) WithCleanup(cleanup bool) *IntegrationSuite {
	s.cleanup = cleanup
	return s
}

// WithTimeout sets the timeout for operations
func (s *IntegrationSuite) WithTimeout(timeout time.Duration) *IntegrationSuite {
	s.timeout = timeout
	return s
}

// Client returns the client wrapping the suite's provider
func (s *IntegrationSuite) Client() *s3drain.Client {
	return s.client
}

// CreateTestBucket creates a bucket for testing and tracks it for cleanup
func (s *IntegrationSuite) CreateTestBucket(name string, versioned bool) string {
	s.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	config := GenerateBucketConfig(name)
	if versioned {
		config = GenerateVersionedBucketConfig(name)
	}
	config.Region = s.region

	if err := s.client.Storage().CreateBucket(ctx, config); err != nil {
		s.t.Fatalf("Failed to create test bucket: %v", err)
	}

	// Track for cleanup
	s.mu.Lock()
	s.createdBuckets = append(s.createdBuckets, name)
	s.mu.Unlock()

	return name
}

// Seed writes generated history into a bucket
func (s *IntegrationSuite) Seed(bucketName string, opts SeedOptions) *SeedResult {
	s.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	seed, err := SeedBucket(ctx, s.client.Storage(), bucketName, opts)
	if err != nil {
		s.t.Fatalf("Failed to seed bucket %s: %v", bucketName, err)
	}
	return seed
}

// AssertBucketExists asserts that a bucket exists
func (s *IntegrationSuite) AssertBucketExists(bucketName string) {
	s.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	buckets, err := s.client.Storage().ListBuckets(ctx)
	if err != nil {
		s.t.Fatalf("Failed to list buckets: %v", err)
	}

	if !containsString(buckets, bucketName) {
		s.t.Fatalf("Bucket %s not found", bucketName)
	}
}

// AssertDrained drains a bucket with the given options and asserts it ends
// up clean and empty
func (s *IntegrationSuite) AssertDrained(bucketName string, opts ...drainer.Option) drainer.Result {
	s.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	result := drainer.New(opts...).Drain(ctx, s.client.Storage(), bucketName)
	s.t.Logf("Drained %s: %d objects, %d versions in %v", bucketName, result.ObjectsDeleted, result.VersionsDeleted, result.Duration)

	AssertResultClean(s.t, result)
	AssertBucketEmpty(s.t, s.client.Storage(), bucketName)
	return result
}

// Cleanup removes all created resources
func (s *IntegrationSuite) Cleanup() {
	if !s.cleanup {
		s.t.Log("Cleanup disabled, skipping resource cleanup")
		return
	}

	s.t.Log("Starting integration test cleanup...")
	s.cleanupBuckets()
	s.t.Log("Integration test cleanup completed")
}

// cleanupBuckets drains and removes all created buckets
func (s *IntegrationSuite) cleanupBuckets() {
	s.mu.RLock()
	buckets := make([]string, len(s.createdBuckets))
	copy(buckets, s.createdBuckets)
	s.mu.RUnlock()

	d := drainer.New(drainer.WithConcurrency(8))
	for _, bucketName := range buckets {
		s.t.Logf("Cleaning up bucket: %s", bucketName)
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)

		result, err := d.DrainAndDelete(ctx, s.client.Storage(), bucketName)
		switch {
		case err == nil:
		case len(result.Failures) == 1 && s3drain.IsNotFound(result.Failures[0].Err):
			// removed by the test itself
		default:
			s.t.Logf("Failed to delete bucket %s: %v", bucketName, err)
		}

		cancel()
	}
}

// Performance testing utilities

// MeasureOperationLatency measures the latency of a storage operation
func (s *IntegrationSuite) MeasureOperationLatency(name string, operation func() error) time.Duration {
	s.t.Helper()
	duration, err := MeasureLatency(operation)
	if err != nil {
		s.t.Fatalf("Operation %s failed: %v", name, err)
	}

	s.t.Logf("Operation %s completed in %v", name, duration)
	return duration
}

// TestConcurrentOperations runs operation concurrently and fails on the
// first error
func (s *IntegrationSuite) TestConcurrentOperations(concurrency int, operation func(id int) error) {
	s.t.Helper()
	errs := make(chan error, concurrency)

	for i := 0; i < concurrency; i++ {
		go func(id int) {
			errs <- operation(id)
		}(i)
	}

	// Wait for all operations to complete
	for i := 0; i < concurrency; i++ {
		if err := <-errs; err != nil {
			s.t.Fatalf("Concurrent operation %d failed: %v", i, err)
		}
	}
}

// Reliability testing

// TestOperationReliability tests operation reliability with retries
func (s *IntegrationSuite) TestOperationReliability(operation func() error, maxRetries int) {
	s.t.Helper()
	var lastErr error

	for attempt := 0; attempt <= maxRetries; attempt++ {
		err := operation()
		if err == nil {
			if attempt > 0 {
				s.t.Logf("Operation succeeded after %d retries", attempt)
			}
			return
		}
		lastErr = err
		if attempt < maxRetries {
			s.t.Logf("Operation failed (attempt %d/%d): %v", attempt+1, maxRetries+1, err)
			time.Sleep(time.Duration(attempt+1) * time.Second)
		}
	}

	s.t.Fatalf("Operation failed after %d retries: %v", maxRetries+1, lastErr)
}
