package device

import "errors"

// Catalog errors. Use errors.Is() to check for these in calling code.
var (
	// ErrNotFound indicates the device is not registered in the catalog.
	ErrNotFound = errors.New("device: not found")

	// ErrExists indicates a device with the same MAC is already registered.
	ErrExists = errors.New("device: already exists")
)
