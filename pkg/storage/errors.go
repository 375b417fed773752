package storage

import (
	"errors"
	"fmt"
)

// ErrorCode classifies gateway failures. Callers decide whether a code is
// fatal or can degrade to a temporary-URL fallback.
type ErrorCode string

const (
	CodeMissingInput   ErrorCode = "MISSING_INPUT"
	CodeInvalidFormat  ErrorCode = "INVALID_FORMAT"
	CodeSizeExceeded   ErrorCode = "SIZE_EXCEEDED"
	CodeDownloadFailed ErrorCode = "DOWNLOAD_FAILED"
	CodeUploadFailed   ErrorCode = "UPLOAD_FAILED"
)

// Error is the tagged error type returned by every gateway operation.
// No vendor exception types or raw HTTP errors escape the gateway boundary.
type Error struct {
	Code    ErrorCode
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func newError(code ErrorCode, msg string, err error) *Error {
	return &Error{Code: code, Message: msg, Err: err}
}

// CodeOf extracts the gateway error code, or "" for foreign errors.
func CodeOf(err error) ErrorCode {
	var se *Error
	if errors.As(err, &se) {
		return se.Code
	}
	return ""
}
