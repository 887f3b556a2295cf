// Package service implements the matrix aggregate operations.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/openraci/raciboard/internal/platform/errors"
	"github.com/openraci/raciboard/internal/platform/requestctx"
	"github.com/openraci/raciboard/internal/services/matrix/domain"
	"github.com/openraci/raciboard/internal/services/matrix/participant"
	"github.com/openraci/raciboard/internal/services/matrix/storage"
	"github.com/openraci/raciboard/internal/services/matrix/view"
)

// Resolver is the participant surface the service depends on.
type Resolver interface {
	Resolve(ctx context.Context, projectID string, ref domain.ParticipantRef) (participant.Identity, error)
	ValidateMembership(ctx context.Context, projectID string, ref domain.ParticipantRef) (bool, error)
	EligibleApprovers(ctx context.Context, projectID string) ([]participant.Identity, error)
}

// Projects looks up project existence for matrix creation.
type Projects interface {
	Project(ctx context.Context, projectID string) (participant.ProjectInfo, error)
}

// TaskInput carries the fields for a new task row. A nil RowOrder
// requests the next free position.
type TaskInput struct {
	Name        string
	Description string
	RowOrder    *int
}

// Service coordinates matrix aggregate mutations. Every mutation commits
// atomically, stamps the acting user from context, and returns the fresh
// materialized snapshot.
type Service struct {
	store    storage.MatrixStore
	resolver Resolver
	projects Projects
	builder  *view.Builder

	clock func() time.Time
	newID func() string
}

// New creates a matrix service.
func New(store storage.MatrixStore, resolver Resolver, projects Projects) *Service {
	return &Service{
		store:    store,
		resolver: resolver,
		projects: projects,
		builder:  view.NewBuilder(store, resolver),
		clock:    time.Now,
		newID:    uuid.NewString,
	}
}

func (s *Service) stamp(ctx context.Context) storage.Stamp {
	return storage.Stamp{
		UserID: requestctx.UserIDFromContext(ctx),
		At:     s.clock().UTC(),
	}
}

func (s *Service) snapshot(ctx context.Context, matrixID string) (view.View, error) {
	matrix, err := s.store.GetMatrix(ctx, matrixID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return view.View{}, apperrors.Wrap(apperrors.CodeNotFound, fmt.Sprintf("matrix %s not found", matrixID), err)
		}
		return view.View{}, err
	}
	return s.builder.Build(ctx, matrix)
}

// CreateMatrix creates an empty matrix for an existing project and
// returns the bare matrix record; the first view comes from GetView.
func (s *Service) CreateMatrix(ctx context.Context, input domain.CreateMatrixInput) (domain.Matrix, error) {
	input, err := domain.NormalizeCreateMatrixInput(input)
	if err != nil {
		return domain.Matrix{}, err
	}
	if _, err := s.projects.Project(ctx, input.ProjectID); err != nil {
		if errors.Is(err, participant.ErrNotFound) {
			return domain.Matrix{}, apperrors.Wrap(apperrors.CodeNotFound, fmt.Sprintf("project %s not found", input.ProjectID), err)
		}
		return domain.Matrix{}, err
	}

	stamp := s.stamp(ctx)
	record := storage.MatrixRecord{
		ID:          s.newID(),
		ProjectID:   input.ProjectID,
		Name:        input.Name,
		Description: input.Description,
		CreatedBy:   stamp.UserID,
		UpdatedBy:   stamp.UserID,
		CreatedAt:   stamp.At,
		UpdatedAt:   stamp.At,
	}
	if err := s.store.CreateMatrix(ctx, record); err != nil {
		return domain.Matrix{}, err
	}
	return domain.Matrix{
		ID:          record.ID,
		ProjectID:   record.ProjectID,
		Name:        record.Name,
		Description: record.Description,
		CreatedBy:   record.CreatedBy,
		UpdatedBy:   record.UpdatedBy,
		CreatedAt:   record.CreatedAt,
		UpdatedAt:   record.UpdatedAt,
	}, nil
}

// GetView returns the materialized snapshot of a matrix.
func (s *Service) GetView(ctx context.Context, matrixID string) (view.View, error) {
	return s.snapshot(ctx, matrixID)
}

// ListMatrices returns a project's matrices in creation order.
func (s *Service) ListMatrices(ctx context.Context, projectID string) ([]domain.Matrix, error) {
	records, err := s.store.ListMatrices(ctx, projectID)
	if err != nil {
		return nil, err
	}
	matrices := make([]domain.Matrix, 0, len(records))
	for _, record := range records {
		matrices = append(matrices, domain.Matrix{
			ID:             record.ID,
			ProjectID:      record.ProjectID,
			Name:           record.Name,
			Description:    record.Description,
			ApproverUserID: record.ApproverUserID,
			CreatedBy:      record.CreatedBy,
			UpdatedBy:      record.UpdatedBy,
			CreatedAt:      record.CreatedAt,
			UpdatedAt:      record.UpdatedAt,
		})
	}
	return matrices, nil
}

// DeleteMatrix removes a matrix and all its rows, columns, and cells.
func (s *Service) DeleteMatrix(ctx context.Context, matrixID string) error {
	if err := s.store.DeleteMatrix(ctx, matrixID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return apperrors.Wrap(apperrors.CodeNotFound, fmt.Sprintf("matrix %s not found", matrixID), err)
		}
		return err
	}
	return nil
}

// AddTask appends a task row. A nil input row order takes the next free
// position after the current maximum.
func (s *Service) AddTask(ctx context.Context, matrixID string, input TaskInput) (view.View, error) {
	if err := domain.ValidateTaskName(input.Name); err != nil {
		return view.View{}, err
	}
	if err := domain.ValidateTaskDescription(input.Description); err != nil {
		return view.View{}, err
	}
	rowOrder := -1
	if input.RowOrder != nil {
		if *input.RowOrder < 0 {
			return view.View{}, apperrors.New(apperrors.CodeTaskRowOrderNegative, "task row order must not be negative")
		}
		rowOrder = *input.RowOrder
	}

	record := storage.TaskRecord{
		MatrixID:    matrixID,
		RowOrder:    rowOrder,
		Name:        input.Name,
		Description: input.Description,
	}
	if _, err := s.store.InsertTask(ctx, record, s.stamp(ctx)); err != nil {
		switch {
		case errors.Is(err, storage.ErrAlreadyExists):
			return view.View{}, apperrors.Wrap(apperrors.CodeTaskRowOrderTaken, fmt.Sprintf("row order %d is taken", rowOrder), err)
		case errors.Is(err, storage.ErrNotFound):
			return view.View{}, apperrors.Wrap(apperrors.CodeNotFound, fmt.Sprintf("matrix %s not found", matrixID), err)
		}
		return view.View{}, err
	}
	return s.snapshot(ctx, matrixID)
}

// UpdateTaskInput carries partial task updates; nil fields keep their
// stored values.
type UpdateTaskInput struct {
	Name        *string
	Description *string
}

// UpdateTask updates the name and description of an existing task row.
func (s *Service) UpdateTask(ctx context.Context, matrixID string, rowOrder int, input UpdateTaskInput) (view.View, error) {
	record, err := s.store.GetTask(ctx, matrixID, rowOrder)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return view.View{}, apperrors.Wrap(apperrors.CodeNotFound, fmt.Sprintf("task %d in matrix %s not found", rowOrder, matrixID), err)
		}
		return view.View{}, err
	}
	if input.Name != nil {
		record.Name = *input.Name
	}
	if input.Description != nil {
		record.Description = *input.Description
	}
	if err := domain.ValidateTaskName(record.Name); err != nil {
		return view.View{}, err
	}
	if err := domain.ValidateTaskDescription(record.Description); err != nil {
		return view.View{}, err
	}

	if err := s.store.UpdateTask(ctx, record, s.stamp(ctx)); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return view.View{}, apperrors.Wrap(apperrors.CodeNotFound, fmt.Sprintf("task %d in matrix %s not found", rowOrder, matrixID), err)
		}
		return view.View{}, err
	}
	return s.snapshot(ctx, matrixID)
}

// DeleteTask removes a task row and every cell on it in one commit.
func (s *Service) DeleteTask(ctx context.Context, matrixID string, rowOrder int) (view.View, error) {
	if err := s.store.DeleteTask(ctx, matrixID, rowOrder, s.stamp(ctx)); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return view.View{}, apperrors.Wrap(apperrors.CodeNotFound, fmt.Sprintf("task %d in matrix %s not found", rowOrder, matrixID), err)
		}
		return view.View{}, err
	}
	return s.snapshot(ctx, matrixID)
}

// AddParticipantColumn appends a participant column at the end of the
// ordered column list.
func (s *Service) AddParticipantColumn(ctx context.Context, matrixID string, ref domain.ParticipantRef) (view.View, error) {
	if err := ref.Validate(); err != nil {
		return view.View{}, err
	}
	matrix, err := s.store.GetMatrix(ctx, matrixID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return view.View{}, apperrors.Wrap(apperrors.CodeNotFound, fmt.Sprintf("matrix %s not found", matrixID), err)
		}
		return view.View{}, err
	}

	if _, err := s.resolver.Resolve(ctx, matrix.ProjectID, ref); err != nil {
		if errors.Is(err, participant.ErrNotFound) {
			// A missing team member is a missing entity; a special role
			// that does not resolve is an eligibility failure.
			if ref.Kind == domain.ParticipantTeamMember {
				return view.View{}, apperrors.Wrap(apperrors.CodeNotFound, fmt.Sprintf("team member %s not found", ref.ID), err)
			}
			return view.View{}, apperrors.Wrap(apperrors.CodeParticipantIneligible, fmt.Sprintf("participant %s is not eligible for project %s", ref.Key(), matrix.ProjectID), err)
		}
		return view.View{}, err
	}

	member, err := s.resolver.ValidateMembership(ctx, matrix.ProjectID, ref)
	if err != nil {
		return view.View{}, err
	}
	if !member {
		return view.View{}, apperrors.WithMetadata(
			apperrors.CodeParticipantIneligible,
			fmt.Sprintf("participant %s is not eligible for project %s", ref.Key(), matrix.ProjectID),
			map[string]string{"participant": ref.Key()},
		)
	}

	if err := s.store.AppendColumn(ctx, matrixID, ref.Key(), s.stamp(ctx)); err != nil {
		if errors.Is(err, storage.ErrAlreadyExists) {
			return view.View{}, apperrors.Wrap(apperrors.CodeColumnDuplicate, fmt.Sprintf("participant %s already has a column", ref.Key()), err)
		}
		return view.View{}, err
	}
	return s.snapshot(ctx, matrixID)
}

// RemoveParticipantColumn removes a participant column and every cell in
// it in one commit.
func (s *Service) RemoveParticipantColumn(ctx context.Context, matrixID string, ref domain.ParticipantRef) (view.View, error) {
	if err := ref.Validate(); err != nil {
		return view.View{}, err
	}
	if err := s.store.RemoveColumn(ctx, matrixID, ref.Key(), s.stamp(ctx)); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return view.View{}, apperrors.Wrap(apperrors.CodeNotFound, fmt.Sprintf("column %s in matrix %s not found", ref.Key(), matrixID), err)
		}
		return view.View{}, err
	}
	return s.snapshot(ctx, matrixID)
}

// SetAssignment writes one grid cell. RoleUnspecified clears the cell;
// clearing an already-empty cell succeeds without change. Both paths
// require the task row and the participant column to exist.
func (s *Service) SetAssignment(ctx context.Context, matrixID string, rowOrder int, ref domain.ParticipantRef, role domain.Role) (view.View, error) {
	if err := ref.Validate(); err != nil {
		return view.View{}, err
	}
	if role != domain.RoleUnspecified && role.Letter() == "" {
		return view.View{}, apperrors.New(apperrors.CodeRoleInvalid, "role is not one of R, A, C, I")
	}

	if _, err := s.store.GetTask(ctx, matrixID, rowOrder); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return view.View{}, apperrors.Wrap(apperrors.CodeNotFound, fmt.Sprintf("task %d in matrix %s not found", rowOrder, matrixID), err)
		}
		return view.View{}, err
	}
	columns, err := s.store.ListColumns(ctx, matrixID)
	if err != nil {
		return view.View{}, err
	}
	hasColumn := false
	for _, column := range columns {
		if column.ParticipantKey == ref.Key() {
			hasColumn = true
			break
		}
	}
	if !hasColumn {
		return view.View{}, apperrors.WithMetadata(
			apperrors.CodeAssignmentNoColumn,
			fmt.Sprintf("participant %s has no column in matrix %s", ref.Key(), matrixID),
			map[string]string{"participant": ref.Key()},
		)
	}

	if role == domain.RoleUnspecified {
		if err := s.store.DeleteAssignment(ctx, matrixID, rowOrder, ref.Key(), s.stamp(ctx)); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return view.View{}, apperrors.Wrap(apperrors.CodeNotFound, fmt.Sprintf("matrix %s not found", matrixID), err)
			}
			return view.View{}, err
		}
		return s.snapshot(ctx, matrixID)
	}

	record := storage.AssignmentRecord{
		MatrixID:       matrixID,
		RowOrder:       rowOrder,
		ParticipantKey: ref.Key(),
		RoleLetter:     role.Letter(),
	}
	if err := s.store.UpsertAssignment(ctx, record, s.stamp(ctx)); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			// The row or column vanished between the checks and the commit.
			return view.View{}, apperrors.Wrap(apperrors.CodeNotFound, fmt.Sprintf("cell %d/%s in matrix %s not found", rowOrder, ref.Key(), matrixID), err)
		}
		return view.View{}, err
	}
	return s.snapshot(ctx, matrixID)
}

// SetApprover records the matrix approver. The user must currently be an
// eligible approver for the project; an empty user id clears the field.
func (s *Service) SetApprover(ctx context.Context, matrixID string, approverUserID string) (view.View, error) {
	matrix, err := s.store.GetMatrix(ctx, matrixID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return view.View{}, apperrors.Wrap(apperrors.CodeNotFound, fmt.Sprintf("matrix %s not found", matrixID), err)
		}
		return view.View{}, err
	}

	if approverUserID != "" {
		candidates, err := s.resolver.EligibleApprovers(ctx, matrix.ProjectID)
		if err != nil {
			return view.View{}, err
		}
		eligible := false
		for _, candidate := range candidates {
			if candidate.ID == approverUserID {
				eligible = true
				break
			}
		}
		if !eligible {
			return view.View{}, apperrors.WithMetadata(
				apperrors.CodeApproverIneligible,
				fmt.Sprintf("user %s is not an eligible approver for project %s", approverUserID, matrix.ProjectID),
				map[string]string{"userId": approverUserID},
			)
		}
	}

	if err := s.store.SetApprover(ctx, matrixID, approverUserID, s.stamp(ctx)); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return view.View{}, apperrors.Wrap(apperrors.CodeNotFound, fmt.Sprintf("matrix %s not found", matrixID), err)
		}
		return view.View{}, err
	}
	return s.snapshot(ctx, matrixID)
}
