package core

import "errors"

// Validation errors
var (
	// ErrInvalidSeverity is returned for severities outside low/medium/high/critical
	ErrInvalidSeverity = errors.New("invalid severity")

	// ErrEmptyTag is returned when a manual tag is blank after trimming
	ErrEmptyTag = errors.New("tag cannot be empty")

	// ErrTagTooLong is returned when a manual tag exceeds MaxTagLength characters
	ErrTagTooLong = errors.New("tag exceeds 50 characters")

	// ErrDuplicateTag is returned when a tag is already present on the form
	ErrDuplicateTag = errors.New("tag already added")

	// ErrInvalidExportFormat is returned for export formats other than csv/json
	ErrInvalidExportFormat = errors.New("invalid export format")

	// ErrInvalidDate is returned when a filter date cannot be parsed
	ErrInvalidDate = errors.New("invalid date")

	// ErrValidation wraps struct validation failures
	ErrValidation = errors.New("validation failed")
)

// Worker pool errors
var (
	ErrWorkerPoolNotRunning = errors.New("worker pool is not running")
	ErrWorkerPoolQueueFull  = errors.New("worker pool queue is full")
)
