// Package sinkerr defines the error taxonomy every other package wraps its
// failures in, and classifies raw store errors into retriable/fatal buckets
// by inspecting S3/HTTP status codes and smithy API error codes.
package sinkerr

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/aws/smithy-go"
)

// Sentinel errors. Wrap with fmt.Errorf("...: %w", Err*) at the call site so
// errors.Is keeps working through context.
var (
	// ErrConfig covers malformed KCQL, slashes in prefix/partition paths,
	// unknown formats, and incompatible option combinations.
	ErrConfig = errors.New("config error")

	// ErrRecordType covers TEXT-with-non-string, BYTES-with-non-bytes,
	// _key-non-primitive, and nested-partitioner-on-non-struct.
	ErrRecordType = errors.New("record type error")

	// ErrHeaderMissing covers a referenced partition header absent from a
	// record.
	ErrHeaderMissing = errors.New("header not found")

	// ErrStoreTransient covers connection refused, timeouts, 5xx, and
	// throttling responses from the object store.
	ErrStoreTransient = errors.New("transient store error")

	// ErrStoreFatal covers 4xx auth failures, permission denied, and a
	// missing bucket.
	ErrStoreFatal = errors.New("fatal store error")

	// ErrStageCorruption covers a local staging file that has disappeared
	// out from under an open writer.
	ErrStageCorruption = errors.New("stage corruption")

	// ErrNonPrimitiveKey covers PARTITIONBY _key against a non-primitive key.
	// It wraps ErrRecordType.
	ErrNonPrimitiveKey = fmt.Errorf("non-primitive key: %w", ErrRecordType)
)

// Classification is the outcome of classifying a raw store error.
type Classification int

const (
	// Fatal errors abort the task; the runtime will not redeliver for us.
	Fatal Classification = iota
	// Retriable errors preserve OpenFile state; the runtime is told to
	// redeliver after backing off.
	Retriable
)

// Classify inspects a raw error returned by the S3 client and decides
// whether it is Retriable or Fatal. HTTP response errors are examined by
// status code; connection-level errors (no response at all) are treated as
// transient since they typically mean the endpoint is momentarily down.
func Classify(err error) Classification {
	if err == nil {
		return Fatal
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return classifyAPIError(apiErr)
	}

	var respErr *smithyHTTPResponseError
	if errors.As(err, &respErr) {
		return classifyStatus(respErr.StatusCode)
	}

	// No structured error available (DNS failure, connection refused,
	// context deadline) — treat as transient; the store is probably just
	// unreachable right now.
	return Retriable
}

// smithyHTTPResponseError is a local error type carrying an HTTP status
// code, so Classify's status-code branch can be unit tested without a live
// S3 client. errors.As matches only this local type: SDK errors are
// classified through smithy.APIError above, and an SDK error that carries
// no API error code falls through to Retriable.
type smithyHTTPResponseError struct {
	StatusCode int
	err        error
}

func (e *smithyHTTPResponseError) Error() string { return e.err.Error() }
func (e *smithyHTTPResponseError) Unwrap() error { return e.err }

// NewHTTPError builds the local HTTP-status-carrying error that Classify
// examines by status code.
func NewHTTPError(statusCode int, cause error) error {
	return &smithyHTTPResponseError{StatusCode: statusCode, err: cause}
}

func classifyStatus(status int) Classification {
	switch {
	case status == http.StatusTooManyRequests:
		return Retriable
	case status >= 500:
		return Retriable
	case status >= 400:
		return Fatal
	default:
		return Retriable
	}
}

func classifyAPIError(apiErr smithy.APIError) Classification {
	switch apiErr.ErrorCode() {
	case "RequestTimeout", "RequestTimeTooSkewed", "SlowDown", "ServiceUnavailable", "InternalError", "Throttling", "ThrottlingException":
		return Retriable
	case "AccessDenied", "InvalidAccessKeyId", "SignatureDoesNotMatch", "NoSuchBucket", "InvalidBucketName":
		return Fatal
	default:
		return Fatal
	}
}

// AsTask wraps err with a task-identifying prefix, using the same
// fmt.Errorf("...: %w", err) idiom used throughout this package.
func AsTask(topic string, partition int, sentinel error, cause error) error {
	return fmt.Errorf("%s[%d]: %w: %v", topic, partition, sentinel, cause)
}
