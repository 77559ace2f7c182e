package minio

import (
	"context"
	"errors"
	"fmt"

	"github.com/minio/minio-go/v7"

	"github.com/acloudysky/s3drain"
)

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
	if errors.Is(err, context.DeadlineExceeded) {
		return s3drain.NewCloudError(s3drain.ErrNetworkTimeout, "Request timed out", "minio", "storage", operation).
			WithCause(err)
	}

	resp := minio.ToErrorResponse(err)
	if resp.Code == "" && resp.StatusCode == 0 {
		return s3drain.NewTransportError("minio", "storage", operation, err)
	}

	var e *s3drain.CloudError
	switch resp.Code {
	case "NoSuchBucket":
		e = notFoundError(operation, "bucket", resource, err)
	case "NoSuchKey", "NoSuchVersion", "NotFound":
		e = notFoundError(operation, "object", resource, err)
	case "AccessDenied":
		e = s3drain.NewAuthorizationError("minio", "storage", operation, err)
	case "InvalidAccessKeyId", "SignatureDoesNotMatch", "ExpiredToken":
		e = s3drain.NewAuthenticationError("minio", err)
	case "SlowDown", "SlowDownRead", "SlowDownWrite", "TooManyRequests":
		e = s3drain.NewRateLimitError("minio", "storage", operation, 0).WithCause(err)
	case "BucketNotEmpty", "BucketAlreadyExists", "BucketAlreadyOwnedByYou":
		e = s3drain.NewCloudError(s3drain.ErrResourceConflict, resp.Message, "minio", "storage", operation).
			WithCause(err)
	default:
		e = s3drain.NewServiceError("minio", "storage", operation, resp.Code, resp.Message).WithCause(err)
	}
	if resp.RequestID != "" {
		e.WithContext(resp.RequestID, nil)
	}
	return e
}

func notFoundError(operation, resourceType, resource string, err error) *s3drain.CloudError {
	e := s3drain.NewResourceNotFoundError("minio", "storage", resourceType, resource).WithCause(err)
	e.Operation = operation
	return e
}
