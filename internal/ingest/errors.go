package ingest

import "errors"

// Ingestion errors. Use errors.Is() to check for these in calling code.
var (
	// ErrMalformedPayload indicates a status message that could not be
	// decoded. The message is dropped; ingestion continues.
	ErrMalformedPayload = errors.New("ingest: malformed payload")

	// ErrUnknownDevice indicates telemetry from a MAC not present in the
	// catalog. Recorded for operator visibility, otherwise discarded.
	ErrUnknownDevice = errors.New("ingest: unknown device")
)
