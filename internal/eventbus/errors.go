package eventbus

import "errors"

// Event bus errors. Use errors.Is() to check for these in calling code.
var (
	// ErrPublishFailed indicates the transport rejected a publish.
	ErrPublishFailed = errors.New("eventbus: publish failed")

	// ErrInvalidPattern indicates an empty pattern or nil handler.
	ErrInvalidPattern = errors.New("eventbus: invalid subscription")

	// ErrStopped indicates the bus has been stopped and no longer accepts
	// subscriptions.
	ErrStopped = errors.New("eventbus: stopped")
)
