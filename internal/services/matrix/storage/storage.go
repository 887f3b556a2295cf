// Package storage defines persistence contracts for matrix engine state.
package storage

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound indicates a requested record is missing.
var ErrNotFound = errors.New("record not found")

// ErrAlreadyExists indicates a uniqueness constraint was violated.
var ErrAlreadyExists = errors.New("record already exists")

// MatrixRecord stores matrix aggregate metadata.
type MatrixRecord struct {
	ID             string
	ProjectID      string
	Name           string
	Description    string
	ApproverUserID string
	CreatedBy      string
	UpdatedBy      string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// TaskRecord stores one matrix row.
type TaskRecord struct {
	MatrixID    string
	RowOrder    int
	Name        string
	Description string
}

// ColumnRecord stores one ordered participant column reference.
type ColumnRecord struct {
	MatrixID       string
	Position       int
	ParticipantKey string
}

// AssignmentRecord stores one grid cell role.
type AssignmentRecord struct {
	MatrixID       string
	RowOrder       int
	ParticipantKey string
	RoleLetter     string
}

// Stamp carries the audit identity applied inside the same transaction
// as a structural mutation.
type Stamp struct {
	UserID string
	At     time.Time
}

// MatrixStore persists matrix aggregates. Every mutating method that
// takes a Stamp commits the structural change and the matrix audit
// touch as one transaction, and returns ErrNotFound when the matrix is
// absent.
type MatrixStore interface {
	CreateMatrix(ctx context.Context, record MatrixRecord) error
	GetMatrix(ctx context.Context, matrixID string) (MatrixRecord, error)
	ListMatrices(ctx context.Context, projectID string) ([]MatrixRecord, error)
	DeleteMatrix(ctx context.Context, matrixID string) error

	GetTask(ctx context.Context, matrixID string, rowOrder int) (TaskRecord, error)
	ListTasks(ctx context.Context, matrixID string) ([]TaskRecord, error)
	// InsertTask stores a new task row; ErrAlreadyExists when the row
	// order is taken. A negative RowOrder requests auto-assignment of
	// max(existing)+1, or 0 for an empty matrix; the stored row order
	// is returned.
	InsertTask(ctx context.Context, record TaskRecord, stamp Stamp) (TaskRecord, error)
	UpdateTask(ctx context.Context, record TaskRecord, stamp Stamp) error
	// DeleteTask removes the task and every assignment at its row order
	// in one transaction.
	DeleteTask(ctx context.Context, matrixID string, rowOrder int, stamp Stamp) error

	ListColumns(ctx context.Context, matrixID string) ([]ColumnRecord, error)
	// AppendColumn appends the participant to the end of the ordered
	// column list; ErrAlreadyExists when the participant is present.
	AppendColumn(ctx context.Context, matrixID string, participantKey string, stamp Stamp) error
	// RemoveColumn removes the column and every assignment referencing
	// it in one transaction; ErrNotFound when the column is absent.
	RemoveColumn(ctx context.Context, matrixID string, participantKey string, stamp Stamp) error

	ListAssignments(ctx context.Context, matrixID string) ([]AssignmentRecord, error)
	// UpsertAssignment creates the cell or replaces its role.
	UpsertAssignment(ctx context.Context, record AssignmentRecord, stamp Stamp) error
	// DeleteAssignment removes the cell if present; deleting an absent
	// cell is not an error.
	DeleteAssignment(ctx context.Context, matrixID string, rowOrder int, participantKey string, stamp Stamp) error

	SetApprover(ctx context.Context, matrixID string, approverUserID string, stamp Stamp) error
}
