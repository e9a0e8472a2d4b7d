package response

// ErrCode is a typed error code enum for consistent API error identification.
type ErrCode string

const (
	// ─── Authentication ────────────────────────────────────────────────
	ErrTokenInvalid ErrCode = "TOKEN_INVALID"
	ErrAuthRequired ErrCode = "AUTH_REQUIRED"

	// ─── Validation ────────────────────────────────────────────────────
	ErrValidation     ErrCode = "VALIDATION_ERROR"
	ErrInvalidID      ErrCode = "INVALID_ID"
	ErrInvalidPayload ErrCode = "INVALID_PAYLOAD"

	// ─── Resources ─────────────────────────────────────────────────────
	ErrNotFound ErrCode = "NOT_FOUND"

	// ─── Session lifecycle ─────────────────────────────────────────────
	ErrSessionCreateFailed ErrCode = "SESSION_CREATE_FAILED"
	ErrSessionUpdateFailed ErrCode = "SESSION_UPDATE_FAILED"
	ErrContentFetchFailed  ErrCode = "CONTENT_FETCH_FAILED"
	ErrNoActiveSession     ErrCode = "NO_ACTIVE_SESSION"
	ErrInvalidTransition   ErrCode = "INVALID_TRANSITION"

	// ─── Freemium preview ──────────────────────────────────────────────
	ErrPreviewLimitReached ErrCode = "PREVIEW_LIMIT_REACHED"

	// ─── Rate Limiting ─────────────────────────────────────────────────
	ErrRateLimitExceeded ErrCode = "RATE_LIMIT_EXCEEDED"

	// ─── Server ────────────────────────────────────────────────────────
	ErrInternal ErrCode = "INTERNAL_ERROR"
)

// GetMessage returns a human-readable message for a given error code.
func GetMessage(code ErrCode) string {
	switch code {
	case ErrTokenInvalid:
		return "The provided authentication token is invalid."
	case ErrAuthRequired:
		return "Sign in to continue."

	case ErrValidation:
		return "Validation failed. Please check your input."
	case ErrInvalidID:
		return "Invalid identifier format."
	case ErrInvalidPayload:
		return "Invalid request payload."

	case ErrNotFound:
		return "Resource not found."

	case ErrSessionCreateFailed:
		return "We couldn't start your exam session. Please try again."
	case ErrSessionUpdateFailed:
		return "Your progress couldn't be saved. We'll keep retrying."
	case ErrContentFetchFailed:
		return "The exam content couldn't be loaded. Please try again."
	case ErrNoActiveSession:
		return "No active session for this exam. Start the exam first."
	case ErrInvalidTransition:
		return "This action isn't available right now."

	case ErrPreviewLimitReached:
		return "You've reached the free preview limit. Sign in to keep practicing."

	case ErrRateLimitExceeded:
		return "Too many requests. Please try again later."

	case ErrInternal:
		return "An internal server error occurred."
	default:
		return "An unexpected error occurred."
	}
}
