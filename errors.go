package companion

import "errors"

var (
	// ErrGeneration wraps a failed generation call. It is the only failure a
	// turn reports once the response cache has missed.
	ErrGeneration = errors.New("generation failed")
	// ErrRateLimited is returned when a caller exceeds its turn budget.
	ErrRateLimited = errors.New("rate limit exceeded")
	// ErrUnknownAgent is returned when the agent directory has no such agent.
	ErrUnknownAgent = errors.New("unknown agent")
	// ErrEmptyPrompt is returned for a blank prompt.
	ErrEmptyPrompt = errors.New("prompt is empty")
	// ErrNotEnoughHistory is returned when there is too little dialogue to analyze.
	ErrNotEnoughHistory = errors.New("not enough conversation history to analyze")
	// ErrMessageTooShort is returned when a single message is too short to analyze.
	ErrMessageTooShort = errors.New("message too short to analyze")
)
