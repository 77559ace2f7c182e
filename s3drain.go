// Package s3drain empties object storage buckets, live objects and version
// history alike, so they can be removed.
//
// The root package holds the pieces shared by every backend: the structured
// CloudError taxonomy, the Provider interface and the Client wrapper. The
// draining engine itself lives in the drainer package and the backends live
// under providers/.
package s3drain

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/acloudysky/s3drain/services"
)

// ErrorCode represents standardized error types across all providers
type ErrorCode string

const (
	// Authentication and authorization errors
	ErrAuthentication ErrorCode = "AUTHENTICATION_FAILED"
	ErrAuthorization  ErrorCode = "AUTHORIZATION_FAILED"

	ErrOperationNotSupported ErrorCode = "OPERATION_NOT_SUPPORTED"

	// Resource errors
	ErrResourceNotFound ErrorCode = "RESOURCE_NOT_FOUND"
	ErrResourceConflict ErrorCode = "RESOURCE_CONFLICT"

	// Network and rate limiting
	ErrRateLimit      ErrorCode = "RATE_LIMIT_EXCEEDED"
	ErrNetworkTimeout ErrorCode = "NETWORK_TIMEOUT"
	ErrTransport      ErrorCode = "TRANSPORT_FAILED"

	// Configuration errors
	ErrInvalidConfig ErrorCode = "INVALID_CONFIGURATION"
	ErrProviderError ErrorCode = "PROVIDER_ERROR"
)

// Sentinel errors for use with errors.Is. Matching is by code only.
var (
	ErrNotFound         = &CloudError{Code: ErrResourceNotFound}
	ErrTransportFailure = &CloudError{Code: ErrTransport}
	ErrUnsupported      = &CloudError{Code: ErrOperationNotSupported}
)

// ErrorContext provides debugging information for troubleshooting
type ErrorContext struct {
	RequestID string            `json:"request_id,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Retryable bool              `json:"retryable"`
}

// CloudError provides structured error information with helpful context and suggestions.
// Every backend converts its SDK errors into a CloudError so callers can branch on Code
// without knowing which provider is in use.
type CloudError struct {
	Code        ErrorCode    `json:"code"`
	Message     string       `json:"message"`
	Provider    string       `json:"provider"`
	Service     string       `json:"service"`
	Operation   string       `json:"operation"`
	Suggestions []string     `json:"suggestions,omitempty"`
	Cause       error        `json:"-"`
	Context     ErrorContext `json:"context,omitempty"`
}

// Error implements the error interface with rich context
func (e *CloudError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s", e.Code, e.Message)
	if e.Provider != "" {
		fmt.Fprintf(&b, " (provider: %s)", e.Provider)
	}
	if e.Cause != nil {
		fmt.Fprintf(&b, ": %v", e.Cause)
	}
	if len(e.Suggestions) > 0 {
		b.WriteString("\nSuggestions:\n")
		for _, suggestion := range e.Suggestions {
			fmt.Fprintf(&b, "  - %s\n", suggestion)
		}
	}
	return b.String()
}

// Unwrap returns the underlying cause error for error wrapping
func (e *CloudError) Unwrap() error {
	return e.Cause
}

// Is reports whether target is a CloudError with the same code.
func (e *CloudError) Is(target error) bool {
	t, ok := target.(*CloudError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// NewCloudError creates a new CloudError with the specified parameters
func NewCloudError(code ErrorCode, message string, provider string, service string, operation string) *CloudError {
	return &CloudError{
		Code:      code,
		Message:   message,
		Provider:  provider,
		Service:   service,
		Operation: operation,
		Context: ErrorContext{
			Timestamp: time.Now(),
			Retryable: isRetryableError(code),
		},
	}
}

// WithSuggestions adds helpful suggestions to a CloudError
func (e *CloudError) WithSuggestions(suggestions ...string) *CloudError {
	e.Suggestions = append(e.Suggestions, suggestions...)
	return e
}

// WithCause adds the underlying cause error
func (e *CloudError) WithCause(cause error) *CloudError {
	e.Cause = cause
	return e
}

// WithContext adds debugging context
func (e *CloudError) WithContext(requestID string, metadata map[string]string) *CloudError {
	e.Context.RequestID = requestID
	if e.Context.Metadata == nil {
		e.Context.Metadata = make(map[string]string)
	}
	for k, v := range metadata {
		e.Context.Metadata[k] = v
	}
	return e
}

// isRetryableError determines if an error code represents a retryable condition
func isRetryableError(code ErrorCode) bool {
	switch code {
	case ErrRateLimit, ErrNetworkTimeout, ErrTransport:
		return true
	default:
		return false
	}
}

// CodeOf returns the ErrorCode carried by err, or "" when err is not a CloudError.
func CodeOf(err error) ErrorCode {
	var cloudErr *CloudError
	if errors.As(err, &cloudErr) {
		return cloudErr.Code
	}
	return ""
}

// IsNotFound reports whether err means the bucket, key or version is absent.
func IsNotFound(err error) bool {
	return CodeOf(err) == ErrResourceNotFound
}

// IsTransport reports whether err means the provider could not be reached
// or did not answer in time.
func IsTransport(err error) bool {
	switch CodeOf(err) {
	case ErrTransport, ErrNetworkTimeout:
		return true
	default:
		return false
	}
}

// Helper functions for common error scenarios

// NewAuthenticationError creates a new authentication error with helpful suggestions
func NewAuthenticationError(provider string, cause error) *CloudError {
	return NewCloudError(ErrAuthentication, "Authentication failed", provider, "", "authenticate").
		WithCause(cause).
		WithSuggestions(
			"Check your credentials are correctly configured",
			"Verify your access keys are not expired",
		)
}

// NewAuthorizationError creates a new authorization error with helpful suggestions
func NewAuthorizationError(provider string, service string, operation string, cause error) *CloudError {
	return NewCloudError(ErrAuthorization, "Authorization failed", provider, service, operation).
		WithCause(cause).
		WithSuggestions(
			"Check that your credentials have the required permissions",
			"Verify the bucket policy allows this operation",
		)
}

// NewResourceNotFoundError creates a new resource not found error
func NewResourceNotFoundError(provider string, service string, resourceType string, resourceID string) *CloudError {
	message := fmt.Sprintf("%s '%s' not found", resourceType, resourceID)
	return NewCloudError(ErrResourceNotFound, message, provider, service, "get").
		WithSuggestions(
			"Verify the resource name is correct",
			"Check that the resource exists in the specified region",
		)
}

// NewInvalidConfigError creates a new invalid configuration error
func NewInvalidConfigError(provider string, service string, field string, reason string) *CloudError {
	message := fmt.Sprintf("Invalid configuration for field '%s': %s", field, reason)
	return NewCloudError(ErrInvalidConfig, message, provider, service, "validate")
}

// NewRateLimitError creates a new rate limit error with retry suggestions
func NewRateLimitError(provider string, service string, operation string, retryAfter time.Duration) *CloudError {
	suggestions := []string{
		"Reduce drain concurrency",
	}
	if retryAfter > 0 {
		suggestions = append(suggestions, fmt.Sprintf("Retry after %v", retryAfter))
	}

	return NewCloudError(ErrRateLimit, "Rate limit exceeded", provider, service, operation).
		WithSuggestions(suggestions...)
}

// NewServiceError wraps a request the provider answered but rejected.
// providerCode is the raw code returned by the service (e.g. "InternalError").
func NewServiceError(provider, service, operation, providerCode, message string) *CloudError {
	if message == "" {
		message = "request rejected by service"
	}
	return NewCloudError(ErrProviderError, message, provider, service, operation).
		WithContext("", map[string]string{"provider_code": providerCode})
}

// NewTransportError wraps a failure to reach the provider at all.
func NewTransportError(provider, service, operation string, cause error) *CloudError {
	return NewCloudError(ErrTransport, "Provider unreachable", provider, service, operation).
		WithCause(cause).
		WithSuggestions(
			"Check network connectivity and the configured endpoint",
		)
}

// Provider defines the interface for object storage providers.
type Provider interface {
	// Storage returns the storage service for managing buckets and objects.
	Storage() services.Storage

	// Name returns the provider name (e.g., "aws", "minio", "mock").
	Name() string

	// Region returns the configured region for this provider.
	Region() string
}

// Client provides a unified interface to storage providers.
type Client struct {
	provider Provider
}

// New creates a new client for the given provider.
//
// Example:
//
//	provider, _ := aws.NewAWSProvider(ctx, "us-east-1")
//	client := s3drain.New(provider)
func New(provider Provider) *Client {
	return &Client{provider: provider}
}

// Provider returns the wrapped provider.
func (c *Client) Provider() Provider {
	return c.provider
}

// Storage returns the provider's storage service.
func (c *Client) Storage() services.Storage {
	return c.provider.Storage()
}

// Presigner returns the provider's presigning capability, or an
// OPERATION_NOT_SUPPORTED error when the backend has none.
func (c *Client) Presigner() (services.Presigner, error) {
	if p, ok := c.provider.Storage().(services.Presigner); ok {
		return p, nil
	}
	return nil, NewCloudError(
		ErrOperationNotSupported,
		"provider does not support presigned URLs",
		c.provider.Name(), "storage", "PresignGetObject",
	)
}
