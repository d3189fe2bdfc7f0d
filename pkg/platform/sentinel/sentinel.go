// Package sentinel holds the infrastructure facts stores report. Services
// translate them into domain errors with stable failure reasons.
package sentinel

import "errors"

var (
	// ErrAlreadyUsed marks a one-shot value, such as a signature digest, that
	// was consumed before.
	ErrAlreadyUsed = errors.New("already used")
	// ErrUnavailable marks a backing service that cannot be reached right now.
	ErrUnavailable = errors.New("unavailable")
)
