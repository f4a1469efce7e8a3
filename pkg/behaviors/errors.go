package behaviors

import "errors"

var (
	// ErrCallDenied is returned when an authorization policy rejects a call.
	ErrCallDenied = errors.New("call denied by policy")
	// ErrRateLimited is returned when a method exceeds its call rate.
	ErrRateLimited = errors.New("call rate limit exceeded")
	// ErrClosed is returned for calls on a proxy after Close.
	ErrClosed = errors.New("target is closed")
	// ErrCallTimeout is returned when a call fails after its deadline expired.
	ErrCallTimeout = errors.New("call timed out")
)
