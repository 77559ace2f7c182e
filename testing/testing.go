// Package testing provides testing utilities for storage providers and drains.
//
// This package offers helper functions, test data generators, assertion utilities,
// a provider contract suite and integration test helpers.
//
// FEATURES:
//   - Helper functions for common test assertions
//   - Generators for bucket configs, keys and seeded version history
//   - Cleanup utilities for integration tests
//   - Contract suite every storage provider must pass
//   - Mock provider integration and verification
//   - LocalStack container startup for integration tests
//
// QUICK START:
//
// Basic test setup with mock provider:
//
//	func TestDrain(t *testing.T) {
//	    provider := testing.NewMockProvider("us-east-1").WithBucket("demo", true)
//	    storage := provider.Storage()
//
//	    _, err := testing.SeedBucket(ctx, storage, "demo", testing.SeedOptions{Objects: 3, Revisions: 2})
//	    testing.AssertNoError(t, err)
//
//	    result := drainer.New().Drain(ctx, storage, "demo")
//	    testing.AssertResultClean(t, result)
//	    testing.AssertBucketEmpty(t, storage, "demo")
//	}
//
// Integration test with cleanup:
//
//	func TestIntegration(t *testing.T) {
//	    suite := testing.NewIntegrationSuite(t).
//	        WithProvider(awsProvider).
//	        WithCleanup(true)
//	    defer suite.Cleanup()
//
//	    bucket := suite.CreateTestBucket(testing.GenerateBucketName("it"), true)
//	    suite.Seed(bucket, testing.SeedOptions{Objects: 10, DeleteMarkers: 2})
//	    suite.AssertDrained(bucket)
//	}
//
// Provider contract testing:
//
//	func TestProviderContract(t *testing.T) {
//	    testing.RunStorageContractTests(t, mock.New("us-east-1"))
//	}
package testing

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/acloudysky/s3drain"
	"github.com/acloudysky/s3drain/drainer"
	"github.com/acloudysky/s3drain/providers/mock"
	"github.com/acloudysky/s3drain/services"
)

// TestHelper provides common testing utilities and assertions
type TestHelper struct {
	t testing.TB
}

// NewTestHelper creates a new test helper instance
func NewTestHelper(t testing.TB) *TestHelper {
	return &TestHelper{t: t}
}

// AssertNoError asserts that an error is nil
func (h *TestHelper) AssertNoError(err error) {
	h.t.Helper()
	if err != nil {
		h.t.Fatalf("Expected no error, got: %v", err)
	}
}

// AssertError asserts that an error is not nil
func (h *TestHelper) AssertError(err error) {
	h.t.Helper()
	if err == nil {
		h.t.Fatal("Expected an error, got nil")
	}
}

// AssertErrorCode asserts that an error is, or wraps, a CloudError with the
// expected code
func (h *TestHelper) AssertErrorCode(err error, expectedCode s3drain.ErrorCode) {
	h.t.Helper()
	if err == nil {
		h.t.Fatal("Expected an error, got nil")
	}

	var cloudErr *s3drain.CloudError
	if !errors.As(err, &cloudErr) {
		h.t.Fatalf("Expected CloudError, got %T", err)
	}
	if cloudErr.Code != expectedCode {
		h.t.Fatalf("Expected error code %s, got %s", expectedCode, cloudErr.Code)
	}
}

// AssertEqual asserts that two values are equal
func (h *TestHelper) AssertEqual(expected, actual interface{}) {
	h.t.Helper()
	if expected != actual {
		h.t.Fatalf("Expected %v, got %v", expected, actual)
	}
}

// AssertContains asserts that a string contains a substring
func (h *TestHelper) AssertContains(str, substr string) {
	h.t.Helper()
	if !strings.Contains(str, substr) {
		h.t.Fatalf("Expected string to contain %q, got %q", substr, str)
	}
}

// AssertResultClean asserts that a drain finished without failures
func (h *TestHelper) AssertResultClean(result drainer.Result) {
	h.t.Helper()
	if result.Clean() {
		return
	}
	for _, f := range result.Failures {
		h.t.Errorf("drain failure: phase=%s key=%q version=%q: %s", f.Phase, f.Key, f.VersionID, f.Reason)
	}
	h.t.FailNow()
}

// AssertBucketEmpty asserts that a bucket has no live objects and no
// version history left
func (h *TestHelper) AssertBucketEmpty(storage services.Storage, bucket string) {
	h.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	objects, err := storage.ListObjects(ctx, bucket, services.ListOptions{})
	h.AssertNoError(err)
	if len(objects.Objects) > 0 {
		h.t.Fatalf("Expected bucket %s to have no objects, found %d", bucket, len(objects.Objects))
	}

	versions, err := storage.ListObjectVersions(ctx, bucket, services.ListOptions{})
	h.AssertNoError(err)
	if len(versions.Versions) > 0 {
		h.t.Fatalf("Expected bucket %s to have no versions, found %d", bucket, len(versions.Versions))
	}
}

// AssertProviderCalled asserts that a mock provider method was called a specific number of times
func (h *TestHelper) AssertProviderCalled(provider *mock.MockProvider, method string, expectedCount int) {
	h.t.Helper()
	actualCount := provider.CallCount(method)
	if actualCount != expectedCount {
		h.t.Fatalf("Expected %s to be called %d times, got %d", method, expectedCount, actualCount)
	}
}

// AssertProviderNotCalled asserts that a mock provider method was not called
func (h *TestHelper) AssertProviderNotCalled(provider *mock.MockProvider, method string) {
	h.t.Helper()
	if provider.WasCalled(method) {
		h.t.Fatalf("Expected %s not to be called, but it was", method)
	}
}

// Standalone helper functions for convenience

// AssertNoError is a standalone version of TestHelper.AssertNoError
func AssertNoError(t testing.TB, err error) {
	t.Helper()
	NewTestHelper(t).AssertNoError(err)
}

// AssertError is a standalone version of TestHelper.AssertError
func AssertError(t testing.TB, err error) {
	t.Helper()
	NewTestHelper(t).AssertError(err)
}

// AssertErrorCode is a standalone version of TestHelper.AssertErrorCode
func AssertErrorCode(t testing.TB, err error, expectedCode s3drain.ErrorCode) {
	t.Helper()
	NewTestHelper(t).AssertErrorCode(err, expectedCode)
}

// AssertEqual is a standalone version of TestHelper.AssertEqual
func AssertEqual(t testing.TB, expected, actual interface{}) {
	t.Helper()
	NewTestHelper(t).AssertEqual(expected, actual)
}

// AssertResultClean is a standalone version of TestHelper.AssertResultClean
func AssertResultClean(t testing.TB, result drainer.Result) {
	t.Helper()
	NewTestHelper(t).AssertResultClean(result)
}

// AssertBucketEmpty is a standalone version of TestHelper.AssertBucketEmpty
func AssertBucketEmpty(t testing.TB, storage services.Storage, bucket string) {
	t.Helper()
	NewTestHelper(t).AssertBucketEmpty(storage, bucket)
}

// AssertProviderCalled is a standalone version of TestHelper.AssertProviderCalled
func AssertProviderCalled(t testing.TB, provider *mock.MockProvider, method string, expectedCount int) {
	t.Helper()
	NewTestHelper(t).AssertProviderCalled(provider, method, expectedCount)
}

// NewMockProvider creates a new mock provider for testing
func NewMockProvider(region string) *mock.MockProvider {
	return mock.New(region)
}

// WithTimeout runs a test function with a timeout
func WithTimeout(t testing.TB, timeout time.Duration, fn func()) {
	t.Helper()
	done := make(chan struct{})

	go func() {
		defer close(done)
		fn()
	}()

	select {
	case <-done:
	case <-time.After(timeout):
		t.Fatalf("Test timed out after %v", timeout)
	}
}

// RetryUntilSuccess retries a function until it succeeds or times out
func RetryUntilSuccess(t testing.TB, timeout time.Duration, interval time.Duration, fn func() error) {
	t.Helper()
	deadline := time.Now().Add(timeout)

	for time.Now().Before(deadline) {
		if err := fn(); err == nil {
			return
		}
		time.Sleep(interval)
	}

	// Final attempt
	if err := fn(); err != nil {
		t.Fatalf("Function did not succeed within %v: %v", timeout, err)
	}
}

// MustNotPanic fails the test if fn panics
func MustNotPanic(t testing.TB, fn func()) {
	t.Helper()
	defer func() {
		if r := recover(); r != nil {
			t.Fatalf("Function panicked: %v", r)
		}
	}()
	fn()
}

// SkipIfShort skips a test if running in short mode
func SkipIfShort(t testing.TB) {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping test in short mode")
	}
}

// SkipIfCI skips a test if running in CI environment
func SkipIfCI(t testing.TB) {
	t.Helper()
	ciEnvVars := []string{"CI", "CONTINUOUS_INTEGRATION", "GITHUB_ACTIONS", "JENKINS_URL", "TRAVIS"}
	for _, envVar := range ciEnvVars {
		if os.Getenv(envVar) != "" {
			t.Skip("Skipping test in CI environment")
		}
	}
}

// MeasureLatency measures the latency of an operation
func MeasureLatency(operation func() error) (time.Duration, error) {
	start := time.Now()
	err := operation()
	return time.Since(start), err
}
