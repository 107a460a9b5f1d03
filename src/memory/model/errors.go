package model

import "errors"

var (
	// ErrInvalidKey marks an operation attempted without both agent and user ids.
	ErrInvalidKey = errors.New("invalid agent/user key")
	// ErrUnavailable marks an unreachable or unauthorized backend.
	ErrUnavailable = errors.New("backend unavailable")
)
