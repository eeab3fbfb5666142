package engine

import "errors"

// Engine registry errors.
var (
	// ErrEngineUnavailable is returned when a key is routed to an engine that
	// is not loaded or failed to load.
	ErrEngineUnavailable = errors.New("engine unavailable")

	// ErrUnknownEngine is returned by loaders that do not know an engine id.
	ErrUnknownEngine = errors.New("unknown engine")

	// ErrRegistryClosed is returned after Close.
	ErrRegistryClosed = errors.New("engine registry closed")

	// ErrTooManyAttempts is returned when a failed engine has used up its
	// load attempts.
	ErrTooManyAttempts = errors.New("engine load attempts exhausted")
)
