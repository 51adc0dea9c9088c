package common

import "errors"

var (
	// ErrArchiveUnavailable is returned when listing the archive failed (non-retryable or retries exhausted)
	ErrArchiveUnavailable = errors.New("archive unavailable")
	// ErrThrottledRetryExceeded is returned when the rate-limit retries are exhausted
	ErrThrottledRetryExceeded = errors.New("throttled: retries exceeded")
	// ErrUnsupportedRange is returned for cross-year or invalid date ranges
	ErrUnsupportedRange = errors.New("unsupported range")
	// ErrInvalidGeometry is returned when a region definition is malformed
	ErrInvalidGeometry = errors.New("invalid geometry")
	// ErrProjection is returned when a coordinate transform failed
	ErrProjection = errors.New("projection error")
	// ErrFilenameFormat is returned when an object name does not match the granule grammar
	ErrFilenameFormat = errors.New("invalid granule filename")
	// ErrDownloadFailed is returned when a transfer failed
	ErrDownloadFailed = errors.New("download failed")
)
