package redis

import "errors"

// Redis client errors.
var (
	// ErrConnectionFailed indicates the Redis server could not be reached or
	// rejected the connection.
	ErrConnectionFailed = errors.New("redis connection failed")
)
