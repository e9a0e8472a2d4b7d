package engine

import "errors"

var (
	// ErrIndexOutOfRange signals an answer index beyond the question count.
	// Treated as an internal logic bug: logged by the caller, never shown
	// to the learner.
	ErrIndexOutOfRange = errors.New("answer index out of range")

	// ErrInvalidPhase is returned when an operation is called outside the
	// state it is valid in.
	ErrInvalidPhase = errors.New("operation not valid in current session phase")

	// ErrPreviewLimited is returned when the current question is gated by
	// the free-preview limit. The transport layer reacts by prompting for
	// authentication; local session state is untouched.
	ErrPreviewLimited = errors.New("free preview limit reached")

	// ErrSessionClosed is returned after Close; the controller no longer
	// owns the session and discards late work.
	ErrSessionClosed = errors.New("session controller closed")
)
