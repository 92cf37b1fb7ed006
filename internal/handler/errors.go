package handler

import "errors"

// Errors returned while resolving and invoking handlers.
//
// Resolution errors are fatal: they surface during startup and abort the
// daemon before any watch is live. Check them with errors.Is():
//
//	if errors.Is(err, handler.ErrUnknownFunction) {
//	    // the config names a function nothing registered
//	}
var (
	// ErrNoHandlerSpec is returned when a config entry sets none of
	// command, function, class, or method.
	ErrNoHandlerSpec = errors.New("handler spec sets no action")

	// ErrAmbiguousSpec is returned when a config entry sets more than
	// one of command, function, class, or method.
	ErrAmbiguousSpec = errors.New("handler spec sets more than one action")

	// ErrUnknownFunction is returned when a function: spec names a
	// function absent from the registration table.
	ErrUnknownFunction = errors.New("function not registered")

	// ErrUnknownClass is returned when a class: or method: spec names a
	// class absent from the registration table.
	ErrUnknownClass = errors.New("class not registered")

	// ErrInstantiation is returned when a registered class constructor
	// fails.
	ErrInstantiation = errors.New("class constructor failed")

	// ErrMissingMethod is returned when a resolved class instance does
	// not declare the requested handler method.
	ErrMissingMethod = errors.New("class does not declare the requested handler")

	// ErrHandlerFailed classifies failures during invocation of a
	// resolved handler: nonzero command exit, signal death, or an error
	// returned by a function/method. Always logged and swallowed by the
	// dispatch loop, never propagated.
	ErrHandlerFailed = errors.New("handler failed")
)

// IsResolutionError returns true for errors that mean the configuration
// cannot be turned into a runnable handler. These abort startup.
func IsResolutionError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, ErrNoHandlerSpec) || errors.Is(err, ErrAmbiguousSpec) {
		return true
	}
	if errors.Is(err, ErrUnknownFunction) || errors.Is(err, ErrUnknownClass) {
		return true
	}
	if errors.Is(err, ErrInstantiation) || errors.Is(err, ErrMissingMethod) {
		return true
	}

	return false
}

// IsRuntimeError returns true for failures that occur while invoking an
// already-resolved handler. These never stop the dispatch loop.
func IsRuntimeError(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrHandlerFailed)
}
