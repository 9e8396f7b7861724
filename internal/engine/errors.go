package engine

import "errors"

var (
	// ErrInvalidVectorShape indicates a query or enrollment vector that is
	// not exactly 128 components. Rejected before any store access.
	ErrInvalidVectorShape = errors.New("feature vector must have exactly 128 components")

	// ErrNoMatch indicates no enrolled identity fell under the match
	// threshold. This is a valid negative result, not an internal error;
	// the transport layer maps it to an unauthorized response.
	ErrNoMatch = errors.New("no matching identity")

	// ErrMatchTimeout indicates the identify scan exceeded its deadline.
	// Partial scan progress is discarded.
	ErrMatchTimeout = errors.New("identify timed out")

	// ErrDuplicateIdentity indicates the candidate vector already matches
	// an enrolled identity. The same face cannot be registered twice under
	// different accounts.
	ErrDuplicateIdentity = errors.New("face already enrolled under another identity")

	// ErrInvalidEmotion indicates an emotion label outside the closed set.
	ErrInvalidEmotion = errors.New("unrecognized emotion label")

	// ErrInvalidConfidence indicates a mood confidence outside [0,1].
	ErrInvalidConfidence = errors.New("confidence must be between 0 and 1")
)
