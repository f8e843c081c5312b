// Package export writes filtered events to CSV or JSON files in the
// background.
//
// Jobs are persisted before they are queued, so a job that was still
// pending at shutdown is picked up again by the next Start.
package export
