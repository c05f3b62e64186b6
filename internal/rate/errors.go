package rate

import "errors"

var (
	// ErrRateLimited is returned once an email exceeds its attempt budget.
	ErrRateLimited = errors.New("rate limited")
	// ErrRedisUnavailable wraps counter storage failures.
	ErrRedisUnavailable = errors.New("redis unavailable")
)
