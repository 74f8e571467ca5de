// README: Error taxonomy shared by every state machine.
package domain

import "errors"

var (
	// ErrInvalidTransition: the transition is not legal from the current state. Never retried.
	ErrInvalidTransition = errors.New("invalid state transition")
	// ErrConflict: a compare-and-swap lost a race. Re-fetch and decide.
	ErrConflict      = errors.New("state conflict")
	ErrNotAuthorized = errors.New("not authorized")
	ErrNotFound      = errors.New("not found")
	// ErrExhausted: dispatch ran out of candidates; the order is back in pending_dispatch.
	ErrExhausted  = errors.New("dispatch candidates exhausted")
	ErrBadRequest = errors.New("bad request")
)
