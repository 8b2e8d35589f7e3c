package transform

import "errors"

// Sentinel errors for the engine's failure taxonomy. Callers match them
// with errors.Is; wrapped messages carry the offending values.
var (
	// ErrInvalidParameter marks a malformed request, e.g. a smoothing
	// factor outside [0,1). Fails fast, never retried.
	ErrInvalidParameter = errors.New("transform: invalid parameter")

	// ErrEmptyInput marks an operation that cannot produce a result from
	// zero samples (only the range computer treats this as an error;
	// smoothing maps empty input to empty output).
	ErrEmptyInput = errors.New("transform: empty input")
)
