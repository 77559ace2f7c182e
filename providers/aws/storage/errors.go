package storage

import (
	"context"
	"errors"
	"fmt"

	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	smithyhttp "github.com/aws/smithy-go/transport/http"

	"github.com/acloudysky/s3drain"
)

// classify converts an SDK error into a CloudError. resource is "bucket" or
// "bucket/key" and only feeds messages.
func classify(operation, resource string, err error) error {
	if err == nil {
		return nil
	}

	var cloudErr *s3drain.CloudError
	if errors.As(err, &cloudErr) {
		return err
	}
	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("%s: %w", operation, err)
	}

	var (
		noBucket *types.NoSuchBucket
		noKey    *types.NoSuchKey
		notFound *types.NotFound
	)
	switch {
	case errors.As(err, &noBucket):
		return notFoundError(operation, "bucket", resource, err)
	case errors.As(err, &noKey), errors.As(err, &notFound):
		return notFoundError(operation, "object", resource, err)
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return withRequestID(fromAPIError(operation, resource, apiErr, err), err)
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return s3drain.NewCloudError(s3drain.ErrNetworkTimeout, "Request timed out", "aws", "storage", operation).
			WithCause(err)
	}

	var sendErr *smithyhttp.RequestSendError
	if errors.As(err, &sendErr) {
		return s3drain.NewTransportError("aws", "storage", operation, err)
	}
	// Neither an answer from S3 nor a send failure: the response could not
	// be read back.
	return s3drain.NewTransportError("aws", "storage", operation, err).
		WithSuggestions("Check that the endpoint speaks the S3 API")
}

func fromAPIError(operation, resource string, apiErr smithy.APIError, err error) *s3drain.CloudError {
	switch apiErr.ErrorCode() {
	case "NoSuchBucket":
		return notFoundError(operation, "bucket", resource, err)
	case "NoSuchKey", "NotFound", "NoSuchVersion":
		return notFoundError(operation, "object", resource, err)
	case "AccessDenied", "AllAccessDisabled":
		return s3drain.NewAuthorizationError("aws", "storage", operation, err)
	case "InvalidAccessKeyId", "SignatureDoesNotMatch", "ExpiredToken", "InvalidToken":
		return s3drain.NewAuthenticationError("aws", err)
	case "SlowDown", "Throttling", "ThrottlingException", "TooManyRequests", "RequestLimitExceeded":
		return s3drain.NewRateLimitError("aws", "storage", operation, 0).WithCause(err)
	case "BucketNotEmpty", "BucketAlreadyExists", "BucketAlreadyOwnedByYou", "OperationAborted":
		return s3drain.NewCloudError(s3drain.ErrResourceConflict, apiErr.ErrorMessage(), "aws", "storage", operation).
			WithCause(err)
	default:
		return s3drain.NewServiceError("aws", "storage", operation, apiErr.ErrorCode(), apiErr.ErrorMessage()).
			WithCause(err)
	}
}

func notFoundError(operation, resourceType, resource string, err error) *s3drain.CloudError {
	e := s3drain.NewResourceNotFoundError("aws", "storage", resourceType, resource).WithCause(err)
	e.Operation = operation
	return e
}

func withRequestID(e *s3drain.CloudError, err error) *s3drain.CloudError {
	var respErr *awshttp.ResponseError
	if errors.As(err, &respErr) {
		e.WithContext(respErr.ServiceRequestID(), nil)
	}
	return e
}
