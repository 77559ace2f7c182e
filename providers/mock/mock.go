// Package mock provides an in-memory storage provider for testing.
//
// The mock behaves like a small S3: buckets may be versioned, deletes on a
// versioned bucket leave delete markers, listings are paginated, and every
// operation can be made to fail. Operations are recorded for verification.
//
// FEATURES:
//   - Implements the s3drain.Provider interface
//   - Versioned and unversioned buckets with delete markers
//   - Paginated ListObjects / ListObjectVersions with opaque tokens
//   - Error injection per operation or per (operation, key)
//   - Configurable delays that honour context cancellation
//   - Request recording for verification
//   - Safe for concurrent use, so parallel drains can run against it
//
// QUICK START:
//
// Basic mock provider:
//
//	provider := mock.New("us-east-1").WithBucket("demo", true)
//	storage := provider.Storage()
//
//	_ = storage.PutObject(ctx, "demo", "a.txt", strings.NewReader("hello"))
//	_ = storage.DeleteObject(ctx, "demo", "a.txt") // leaves a delete marker
//
//	result := drainer.New().Drain(ctx, storage, "demo")
//
// Error injection for testing:
//
//	provider := mock.New("us-east-1").
//	    WithBucket("demo", false).
//	    WithKeyError("DeleteObject", "b.txt", s3drain.NewServiceError(
//	        "mock", "storage", "DeleteObject", "InternalError", "boom"))
//
// BUILDER PATTERN:
//
// The mock provider uses a fluent builder pattern for configuration:
//
//	provider := mock.New("us-east-1").
//	    WithBucket("logs", true).
//	    WithPageSize(2).
//	    WithError("ListBuckets", mockError).
//	    WithDelay("DeleteObject", 10*time.Millisecond)
//
// VERIFICATION:
//
// The mock provider records all operations for verification:
//
//	assert.True(t, provider.WasCalled("DeleteObjectVersion"))
//	assert.Equal(t, 3, provider.CallCount("ListObjects"))
//	assert.Equal(t, []interface{}{"demo", "a.txt"}, provider.LastCallArgs("DeleteObject"))
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/acloudysky/s3drain/services"
)

// MockProvider implements the s3drain.Provider interface for testing.
// It provides configurable responses, error injection, and operation recording
// to enable comprehensive testing without real cloud dependencies.
type MockProvider struct {
	// Configuration
	region   string
	pageSize int

	// Error injection
	errors    map[string]error
	keyErrors map[string]error
	delays    map[string]time.Duration

	// Operation recording
	mu           sync.RWMutex
	operations   []Operation
	callCounts   map[string]int
	lastCallArgs map[string][]interface{}

	// State management
	stateMu     sync.Mutex
	bucketState map[string]*BucketState
}

// Operation represents a recorded operation for verification
type Operation struct {
	Method    string
	Args      []interface{}
	Result    interface{}
	Error     error
	Timestamp time.Time
}

// BucketState represents the state of a mock bucket.
type BucketState struct {
	Name      string
	Region    string
	Versioned bool

	// Keys maps each key to its history, oldest first.
	Keys map[string][]*Version

	seq int
}

// Version is one stored version or delete marker of a key.
type Version struct {
	ID           string
	Data         []byte
	DeleteMarker bool
	Modified     time.Time

	seq int
}

// New creates a new mock provider with default configuration.
// By default it holds no buckets and returns success for every operation on
// state that exists.
//
// Parameters:
//   - region: The mock region (can be any string for testing)
//
// Example:
//
//	provider := mock.New("us-east-1")
//	client := s3drain.New(provider)
func New(region string) *MockProvider {
	return &MockProvider{
		region:       region,
		errors:       make(map[string]error),
		keyErrors:    make(map[string]error),
		delays:       make(map[string]time.Duration),
		operations:   make([]Operation, 0),
		callCounts:   make(map[string]int),
		lastCallArgs: make(map[string][]interface{}),
		bucketState:  make(map[string]*BucketState),
	}
}

// WithBucket pre-creates an empty bucket.
//
// Example:
//
//	// "history" keeps every version and writes delete markers
//	provider := mock.New("us-east-1").WithBucket("history", true)
func (m *MockProvider) WithBucket(name string, versioned bool) *MockProvider {
	m.stateMu.Lock()
	defer m.stateMu.Unlock()
	m.bucketState[name] = newBucketState(name, m.region, versioned)
	return m
}

// WithPageSize sets the page size listings use when the caller passes no
// MaxKeys. Zero means 1000, as on S3.
func (m *MockProvider) WithPageSize(n int) *MockProvider {
	m.pageSize = n
	return m
}

// WithError configures the mock provider to return a specific error
// for the specified operation. This enables testing error scenarios.
//
// Example:
//
//	// Test authentication error
//	provider := mock.New("us-east-1").
//	    WithError("ListObjects", s3drain.NewAuthenticationError("mock", nil))
//
//	// Test resource conflict
//	provider := mock.New("us-east-1").
//	    WithError("CreateBucket", s3drain.NewCloudError(
//	        s3drain.ErrResourceConflict,
//	        "Bucket already exists",
//	        "mock", "storage", "CreateBucket"))
func (m *MockProvider) WithError(operation string, err error) *MockProvider {
	m.errors[operation] = err
	return m
}

// WithKeyError makes operation fail for one key only, leaving every other key
// untouched.
//
// Example:
//
//	provider := mock.New("us-east-1").
//	    WithKeyError("DeleteObjectVersion", "locked.txt", s3drain.NewAuthorizationError(
//	        "mock", "storage", "DeleteObjectVersion", nil))
func (m *MockProvider) WithKeyError(operation, key string, err error) *MockProvider {
	m.keyErrors[operation+"\x00"+key] = err
	return m
}

// WithDelay configures the mock provider to introduce a delay
// for the specified operation. This enables testing timeout scenarios
// and concurrent operations.
//
// Example:
//
//	// Simulate slow deletes
//	provider := mock.New("us-east-1").
//	    WithDelay("DeleteObject", 50*time.Millisecond)
func (m *MockProvider) WithDelay(operation string, delay time.Duration) *MockProvider {
	m.delays[operation] = delay
	return m
}

// recordOperation records an operation for later verification
func (m *MockProvider) recordOperation(method string, args []interface{}, result interface{}, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	operation := Operation{
		Method:    method,
		Args:      args,
		Result:    result,
		Error:     err,
		Timestamp: time.Now(),
	}

	m.operations = append(m.operations, operation)
	m.callCounts[method]++
	m.lastCallArgs[method] = args
}

// checkError returns any configured error for the operation, preferring a
// key-specific one.
func (m *MockProvider) checkError(operation, key string) error {
	if key != "" {
		if err, exists := m.keyErrors[operation+"\x00"+key]; exists {
			return err
		}
	}
	if err, exists := m.errors[operation]; exists {
		return err
	}
	return nil
}

// applyDelay applies any configured delay for the operation. It returns
// early with the context error when ctx is done.
func (m *MockProvider) applyDelay(ctx context.Context, operation string) error {
	delay, exists := m.delays[operation]
	if !exists {
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// WasCalled returns true if the specified operation was called
func (m *MockProvider) WasCalled(operation string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.callCounts[operation] > 0
}

// CallCount returns the number of times the specified operation was called
func (m *MockProvider) CallCount(operation string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.callCounts[operation]
}

// LastCallArgs returns the arguments from the last call to the specified operation
func (m *MockProvider) LastCallArgs(operation string) []interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastCallArgs[operation]
}

// AllOperations returns all recorded operations for verification
func (m *MockProvider) AllOperations() []Operation {
	m.mu.RLock()
	defer m.mu.RUnlock()

	// Return a copy to prevent race conditions
	operations := make([]Operation, len(m.operations))
	copy(operations, m.operations)
	return operations
}

// Reset clears all recorded operations and state
func (m *MockProvider) Reset() {
	m.mu.Lock()
	m.operations = make([]Operation, 0)
	m.callCounts = make(map[string]int)
	m.lastCallArgs = make(map[string][]interface{})
	m.mu.Unlock()

	m.stateMu.Lock()
	m.bucketState = make(map[string]*BucketState)
	m.stateMu.Unlock()
}

// EntryCount returns how many versions and delete markers bucket holds, or
// -1 when the bucket does not exist.
func (m *MockProvider) EntryCount(bucket string) int {
	m.stateMu.Lock()
	defer m.stateMu.Unlock()

	state, exists := m.bucketState[bucket]
	if !exists {
		return -1
	}
	n := 0
	for _, versions := range state.Keys {
		n += len(versions)
	}
	return n
}

// Provider interface implementation

// Name returns the provider name identifier
func (m *MockProvider) Name() string {
	return "mock"
}

// Region returns the configured region
func (m *MockProvider) Region() string {
	return m.region
}

// Storage returns the mock storage service
func (m *MockProvider) Storage() services.Storage {
	return &MockStorage{provider: m}
}

func newBucketState(name, region string, versioned bool) *BucketState {
	return &BucketState{
		Name:      name,
		Region:    region,
		Versioned: versioned,
		Keys:      make(map[string][]*Version),
	}
}
