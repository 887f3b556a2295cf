package domain

import (
	"fmt"
	"strings"
	"time"

	apperrors "github.com/openraci/raciboard/internal/platform/errors"
)

const (
	// MaxTaskNameLen is the task name length limit.
	MaxTaskNameLen = 50
	// MaxTaskDescriptionLen is the task description length limit.
	MaxTaskDescriptionLen = 100
)

// Matrix is the aggregate metadata record owning tasks, participant
// columns, and assignments for one project's RACI grid.
type Matrix struct {
	ID             string
	ProjectID      string
	Name           string
	Description    string
	ApproverUserID string // empty when no approver is set
	CreatedBy      string
	UpdatedBy      string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Task is one matrix row. RowOrder is unique within a matrix but not
// necessarily contiguous.
type Task struct {
	MatrixID    string
	RowOrder    int
	Name        string
	Description string
}

// CreateMatrixInput describes the metadata needed to create a matrix.
type CreateMatrixInput struct {
	ProjectID   string
	Name        string
	Description string
}

// NormalizeCreateMatrixInput trims and validates matrix input metadata.
func NormalizeCreateMatrixInput(input CreateMatrixInput) (CreateMatrixInput, error) {
	input.ProjectID = strings.TrimSpace(input.ProjectID)
	input.Name = strings.TrimSpace(input.Name)
	input.Description = strings.TrimSpace(input.Description)
	if input.Name == "" {
		return CreateMatrixInput{}, apperrors.New(apperrors.CodeMatrixNameEmpty, "matrix name is required")
	}
	return input, nil
}

// ValidateTaskName enforces the required, length-limited task name rule.
func ValidateTaskName(name string) error {
	if strings.TrimSpace(name) == "" {
		return apperrors.New(apperrors.CodeTaskNameEmpty, "task name is required")
	}
	if len([]rune(name)) > MaxTaskNameLen {
		return apperrors.WithMetadata(
			apperrors.CodeTaskNameTooLong,
			fmt.Sprintf("task name exceeds %d characters", MaxTaskNameLen),
			map[string]string{"field": "name"},
		)
	}
	return nil
}

// ValidateTaskDescription enforces the optional, length-limited task
// description rule.
func ValidateTaskDescription(description string) error {
	if len([]rune(description)) > MaxTaskDescriptionLen {
		return apperrors.WithMetadata(
			apperrors.CodeTaskDescriptionTooLong,
			fmt.Sprintf("task description exceeds %d characters", MaxTaskDescriptionLen),
			map[string]string{"field": "description"},
		)
	}
	return nil
}
