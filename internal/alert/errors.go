package alert

import "errors"

// Alert pipeline errors. Use errors.Is() to check for these in calling code.
var (
	// ErrAlertNotFound indicates the alert does not exist or is already
	// resolved.
	ErrAlertNotFound = errors.New("alert: not found")

	// ErrStoreUnavailable indicates the live device state store could not
	// be updated; the reading was dropped.
	ErrStoreUnavailable = errors.New("alert: device state store unavailable")
)
