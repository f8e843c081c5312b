package ml

import "errors"

var (
	// ErrDisabled is returned when general.ml_classification_enabled is off
	ErrDisabled = errors.New("ML classification is disabled in system settings")

	ErrNoEventIDs    = errors.New("No event IDs provided")
	ErrNoEventsFound = errors.New("No events found with provided IDs")

	// ErrNoVerifiedEvents and ErrNoValidData are returned by UpdateMetrics when
	// there is nothing to score
	ErrNoVerifiedEvents = errors.New("No verified events found for metrics calculation")
	ErrNoValidData      = errors.New("No valid data found for metrics calculation")
)
