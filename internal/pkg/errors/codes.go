package errors

import "net/http"

// Error code constants.
// Errors carry code + params; presentation layers translate them.

// Validation error codes.
const (
	CodeValidationFailed  = "VALIDATION_FAILED"
	CodeInvalidPhase      = "INVALID_PHASE"
	CodeInvalidItemKey    = "INVALID_ITEM_KEY"
	CodeInvalidReasonCode = "INVALID_REASON_CODE"
	CodeEmptyNeedsList    = "EMPTY_NEEDS_LIST"
)

// Workflow error codes.
const (
	CodeNeedsListNotFound  = "NEEDS_LIST_NOT_FOUND"
	CodeStatusConflict     = "STATUS_CONFLICT"
	CodeSelfApproval       = "SELF_APPROVAL_FORBIDDEN"
	CodeApproverRole       = "APPROVER_ROLE_UNAUTHORIZED"
	CodeEscalationRequired = "ESCALATION_REQUIRED"
	CodeReminderTooEarly   = "REMINDER_TOO_EARLY"
	CodePermissionDenied   = "PERMISSION_DENIED"
)

// Persistence error codes.
const (
	CodeDuplicateNumber   = "DUPLICATE_NUMBER"
	CodeStoreDisabled     = "STORE_DISABLED"
	CodeSnapshotLock      = "SNAPSHOT_LOCK_FAILED"
	CodeStorageFailure    = "STORAGE_FAILURE"
	CodeSupersedeConflict = "SUPERSEDE_CONFLICT"
)

// Convenience constructors using predefined codes.

// ErrNeedsListNotFoundf creates a needs-list not found error.
func ErrNeedsListNotFoundf(id string) *AppError {
	return &AppError{
		Code:       CodeNeedsListNotFound,
		Message:    "needs list not found",
		HTTPStatus: http.StatusNotFound,
		Params:     map[string]interface{}{"needs_list_id": id},
	}
}

// ErrStatusConflictf creates a wrong-current-status transition error.
func ErrStatusConflictf(current, requested string) *AppError {
	return &AppError{
		Code:       CodeStatusConflict,
		Message:    "needs list is not in a status that allows this transition",
		HTTPStatus: http.StatusConflict,
		Params:     map[string]interface{}{"current_status": current, "requested": requested},
	}
}

// ErrSelfApprovalf creates a submitter-equals-reviewer conflict error.
func ErrSelfApprovalf(actor string) *AppError {
	return &AppError{
		Code:       CodeSelfApproval,
		Message:    "submitter and reviewer must be different actors",
		HTTPStatus: http.StatusConflict,
		Params:     map[string]interface{}{"actor": actor},
	}
}

// ErrDuplicateNumberf creates a terminal duplicate-number error after retries.
func ErrDuplicateNumberf(number string, attempts int) *AppError {
	return &AppError{
		Code:       CodeDuplicateNumber,
		Message:    "record number collided after bounded retries",
		HTTPStatus: http.StatusConflict,
		Params:     map[string]interface{}{"number": number, "attempts": attempts},
	}
}
