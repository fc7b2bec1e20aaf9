package response

// ErrCode is a typed error code enum for consistent API error identification.
type ErrCode string

const (
	// ─── Authentication ────────────────────────────────────────────────
	ErrInvalidCredentials ErrCode = "INVALID_CREDENTIALS"
	ErrSessionActive      ErrCode = "SESSION_ALREADY_ACTIVE"
	ErrSessionInvalidated ErrCode = "SESSION_INVALIDATED"
	ErrTokenRequired      ErrCode = "TOKEN_REQUIRED"
	ErrTokenInvalid       ErrCode = "TOKEN_INVALID"
	ErrTokenExpired       ErrCode = "TOKEN_EXPIRED"

	// ─── Authorization ─────────────────────────────────────────────────
	ErrForbidden         ErrCode = "FORBIDDEN"
	ErrPermissionDenied  ErrCode = "PERMISSION_DENIED"
	ErrStudentAccessOnly ErrCode = "STUDENT_ACCESS_ONLY"
	ErrWrongSchool       ErrCode = "WRONG_SCHOOL"

	// ─── Validation ────────────────────────────────────────────────────
	ErrValidation     ErrCode = "VALIDATION_ERROR"
	ErrInvalidID      ErrCode = "INVALID_ID"
	ErrInvalidPayload ErrCode = "INVALID_PAYLOAD"

	// ─── Resources ─────────────────────────────────────────────────────
	ErrNotFound         ErrCode = "NOT_FOUND"
	ErrConflict         ErrCode = "CONFLICT"
	ErrDependencyExists ErrCode = "DEPENDENCY_EXISTS"

	// ─── Exam-specific ─────────────────────────────────────────────────
	ErrExamNotFound        ErrCode = "EXAM_NOT_FOUND"
	ErrExamNotApproved     ErrCode = "EXAM_NOT_APPROVED"
	ErrAlreadyAttempted    ErrCode = "ALREADY_ATTEMPTED"
	ErrNotExamAuthor       ErrCode = "NOT_EXAM_AUTHOR"
	ErrInvalidTransition   ErrCode = "INVALID_TRANSITION"
	ErrFeedbackRequired    ErrCode = "FEEDBACK_REQUIRED"
	ErrNoActiveSession     ErrCode = "NO_ACTIVE_SESSION"
	ErrInvalidSessionState ErrCode = "INVALID_SESSION_STATE"
	ErrUnknownQuestion     ErrCode = "UNKNOWN_QUESTION"
	ErrPersistence         ErrCode = "PERSISTENCE_ERROR"

	// ─── Rate Limiting ─────────────────────────────────────────────────
	ErrRateLimitExceeded ErrCode = "RATE_LIMIT_EXCEEDED"

	// ─── Server ────────────────────────────────────────────────────────
	ErrInternal ErrCode = "INTERNAL_ERROR"
)

// GetMessage returns a human-readable message for a given error code.
func GetMessage(code ErrCode) string {
	switch code {
	// ─── Authentication ────────────────────────────────────────────────
	case ErrInvalidCredentials:
		return "Invalid email, unique ID or password."
	case ErrSessionActive:
		return "You are already signed in on another device."
	case ErrSessionInvalidated:
		return "Your session has ended. Please sign in again."
	case ErrTokenRequired:
		return "Authentication token is required."
	case ErrTokenInvalid:
		return "Authentication token is invalid."
	case ErrTokenExpired:
		return "Authentication token has expired."

	// ─── Authorization ─────────────────────────────────────────────────
	case ErrForbidden:
		return "You are not allowed to access this resource."
	case ErrPermissionDenied:
		return "Permission denied."
	case ErrStudentAccessOnly:
		return "This resource is restricted to students."
	case ErrWrongSchool:
		return "This resource belongs to another school."

	// ─── Validation ────────────────────────────────────────────────────
	case ErrValidation:
		return "Validation failed. Please check your input."
	case ErrInvalidID:
		return "Invalid ID format."
	case ErrInvalidPayload:
		return "Invalid request payload."

	// ─── Resources ─────────────────────────────────────────────────────
	case ErrNotFound:
		return "Resource not found."
	case ErrConflict:
		return "Resource already exists."
	case ErrDependencyExists:
		return "This record cannot be deleted because other records depend on it."

	// ─── Exam-specific ─────────────────────────────────────────────────
	case ErrExamNotFound:
		return "No exam matches this code in your school."
	case ErrExamNotApproved:
		return "This exam has not been approved yet."
	case ErrAlreadyAttempted:
		return "You have already taken this exam."
	case ErrNotExamAuthor:
		return "You are not the author of this exam."
	case ErrInvalidTransition:
		return "This exam cannot move to the requested status."
	case ErrFeedbackRequired:
		return "Feedback is required when returning an exam for review."
	case ErrNoActiveSession:
		return "You have no exam in progress."
	case ErrInvalidSessionState:
		return "This action is not allowed at this point of the exam."
	case ErrUnknownQuestion:
		return "The question does not belong to this exam."
	case ErrPersistence:
		return "Your submission could not be saved. Your answers are kept, please retry."

	// ─── Rate Limiting ─────────────────────────────────────────────────
	case ErrRateLimitExceeded:
		return "Too many requests. Please try again later."

	// ─── Server ────────────────────────────────────────────────────────
	case ErrInternal:
		return "Internal server error."
	default:
		return "An unexpected error occurred."
	}
}
