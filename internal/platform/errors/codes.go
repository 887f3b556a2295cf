// Package errors provides structured domain error handling.
package errors

import "net/http"

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// CodeParamInvalid represents a malformed request parameter.
	CodeParamInvalid Code = "PARAM_INVALID"

	// Matrix errors
	CodeMatrixNameEmpty Code = "MATRIX_NAME_EMPTY"

	// Task errors
	CodeTaskNameEmpty          Code = "TASK_NAME_EMPTY"
	CodeTaskNameTooLong        Code = "TASK_NAME_TOO_LONG"
	CodeTaskDescriptionTooLong Code = "TASK_DESCRIPTION_TOO_LONG"
	CodeTaskRowOrderNegative   Code = "TASK_ROW_ORDER_NEGATIVE"
	CodeTaskRowOrderTaken      Code = "TASK_ROW_ORDER_TAKEN"

	// Participant errors
	CodeParticipantRefInvalid Code = "PARTICIPANT_REF_INVALID"
	CodeParticipantIneligible Code = "PARTICIPANT_INELIGIBLE"
	CodeColumnDuplicate       Code = "PARTICIPANT_COLUMN_DUPLICATE"
	CodeAssignmentNoColumn    Code = "ASSIGNMENT_COLUMN_MISSING"
	CodeRoleInvalid           Code = "ROLE_INVALID"
	CodeApproverIneligible    Code = "APPROVER_INELIGIBLE"

	// Storage errors
	CodeNotFound Code = "NOT_FOUND"
)

// HTTPStatus maps domain codes to HTTP status codes.
func (c Code) HTTPStatus() int {
	switch c {
	// Bad request - validation failures, bad input
	case CodeParamInvalid,
		CodeMatrixNameEmpty,
		CodeTaskNameEmpty,
		CodeTaskNameTooLong,
		CodeTaskDescriptionTooLong,
		CodeTaskRowOrderNegative,
		CodeTaskRowOrderTaken,
		CodeParticipantRefInvalid,
		CodeParticipantIneligible,
		CodeColumnDuplicate,
		CodeAssignmentNoColumn,
		CodeRoleInvalid,
		CodeApproverIneligible:
		return http.StatusBadRequest

	// Not found - resource doesn't exist
	case CodeNotFound:
		return http.StatusNotFound

	default:
		return http.StatusInternalServerError
	}
}
