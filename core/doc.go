// Package core defines the domain model shared by the labeling server, its
// storage layer and the console client.
//
// # Entities
//
//   - Event: a security event pulled from a SIEM, with its analyst labels and
//     ML classification state
//   - Labels: the label document stored with an event (manual tags, auto tags,
//     ML suggestions and verification bookkeeping)
//   - ExportJob: an asynchronous CSV/JSON export of filtered events
//   - User: a console user record
//   - APIConfig and SystemConfig: integration endpoints and tunable settings
//
// JSON field names on these types are the wire format of the REST API.
//
// # Validation
//
// Request types carry go-playground/validator tags. Call Validate on them
// after Normalize; errors wrap the sentinel values declared in errors.go so
// HTTP handlers can map them with errors.Is.
package core
