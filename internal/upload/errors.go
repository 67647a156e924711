package upload

import "errors"

// Validation failures. The HTTP layer maps each to its own status code;
// everything else from Submit is an internal failure.
var (
	ErrTitleMissing    = errors.New("title is required")
	ErrEmptyUpload     = errors.New("upload is empty")
	ErrTooLarge        = errors.New("upload exceeds maximum size")
	ErrUnsupportedType = errors.New("unsupported media type")
)

// ErrTransferFailed wraps object store failures during the byte transfer.
// The reserved path holds no durable object when this is returned.
var ErrTransferFailed = errors.New("media transfer failed")

// ErrRecordFailed wraps record store failures after a successful transfer.
// The stored object is cleaned up best-effort before returning.
var ErrRecordFailed = errors.New("video record creation failed")
