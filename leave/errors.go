package leave

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrPolicyViolation wraps every rule failure from Policy.Validate.
	ErrPolicyViolation = errors.New("leave policy violation")

	ErrMissingParameter = errors.New("missing required parameter")
	ErrInvalidLeaveType = errors.New("invalid leave type")
	ErrInvalidStatus    = errors.New("invalid review status")

	ErrStudentNotFound = errors.New("student not found")
	ErrLessonNotFound  = errors.New("lesson not found")
	ErrRequestNotFound = errors.New("leave request not found")

	// ErrLeaveAlreadyExists is returned when the lesson already has a
	// pending or approved leave request.
	ErrLeaveAlreadyExists = errors.New("leave already requested for lesson")

	// ErrNotPending is returned when reviewing a request that was decided.
	ErrNotPending = errors.New("leave request is not pending")
)

// =============================================================================
// STRUCTURED ERRORS
// =============================================================================

// ViolationCode identifies which policy rule rejected a request.
type ViolationCode string

const (
	ViolationPersonalNotice ViolationCode = "personal_notice"
	ViolationMonthlyLimit   ViolationCode = "monthly_limit"
	ViolationSickWindow     ViolationCode = "sick_window"
	ViolationProofRequired  ViolationCode = "proof_required"
)

// Messages shown to students. These are returned to the caller verbatim.
const (
	MsgPersonalNotice = "事假需在 72 小時前申請"
	MsgMonthlyLimit   = "每月只能申請一次事假"
	MsgSickWindow     = "病假需在課堂前後 24 小時內申請"
	MsgProofRequired  = "病假需要提供證明文件"
)

// PolicyViolationError carries the rule and the user-facing message.
type PolicyViolationError struct {
	Code    ViolationCode
	Message string
}

func (e *PolicyViolationError) Error() string { return e.Message }

func (e *PolicyViolationError) Unwrap() error { return ErrPolicyViolation }

func violation(code ViolationCode, msg string) error {
	return &PolicyViolationError{Code: code, Message: msg}
}

// ParameterError names the request field that was missing or invalid.
type ParameterError struct {
	Field string
	Err   error
}

func (e *ParameterError) Error() string {
	switch {
	case errors.Is(e.Err, ErrInvalidLeaveType):
		return fmt.Sprintf("無效的請假類型: %s", e.Field)
	case errors.Is(e.Err, ErrInvalidStatus):
		return fmt.Sprintf("無效的審核狀態: %s", e.Field)
	default:
		return fmt.Sprintf("缺少必要參數: %s", e.Field)
	}
}

func (e *ParameterError) Unwrap() error { return e.Err }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError is true for errors caused by the request contents.
func IsClientError(err error) bool {
	return errors.Is(err, ErrPolicyViolation) ||
		errors.Is(err, ErrMissingParameter) ||
		errors.Is(err, ErrInvalidLeaveType) ||
		errors.Is(err, ErrInvalidStatus)
}

// IsNotFound is true when a referenced row does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrStudentNotFound) ||
		errors.Is(err, ErrLessonNotFound) ||
		errors.Is(err, ErrRequestNotFound)
}

// IsConflict is true when the request clashes with existing state.
func IsConflict(err error) bool {
	return errors.Is(err, ErrLeaveAlreadyExists) || errors.Is(err, ErrNotPending)
}
