package storage

import "errors"

// Storage error constants
var (
	// ErrEventNotFound is returned when an event is not found
	ErrEventNotFound = errors.New("event not found")

	// ErrExportJobNotFound is returned when an export job is not found
	ErrExportJobNotFound = errors.New("export job not found")

	// ErrUserNotFound is returned when a user is not found
	ErrUserNotFound = errors.New("user not found")

	// ErrUserExists is returned when creating a user whose username is taken
	ErrUserExists = errors.New("user already exists")

	// ErrConfigNotFound is returned when the API settings were never saved
	ErrConfigNotFound = errors.New("config not found")

	// ErrNotMLProcessed is returned when verifying an event the ML provider never classified
	ErrNotMLProcessed = errors.New("event was not processed by ML")
)
