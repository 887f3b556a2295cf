// Package view materializes denormalized read snapshots of a matrix.
package view

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	apperrors "github.com/openraci/raciboard/internal/platform/errors"
	"github.com/openraci/raciboard/internal/services/matrix/domain"
	"github.com/openraci/raciboard/internal/services/matrix/participant"
	"github.com/openraci/raciboard/internal/services/matrix/storage"
)

// Store is the read surface the builder needs.
type Store interface {
	ListTasks(ctx context.Context, matrixID string) ([]storage.TaskRecord, error)
	ListColumns(ctx context.Context, matrixID string) ([]storage.ColumnRecord, error)
	ListAssignments(ctx context.Context, matrixID string) ([]storage.AssignmentRecord, error)
}

// Resolver maps participant references to identities.
type Resolver interface {
	Resolve(ctx context.Context, projectID string, ref domain.ParticipantRef) (participant.Identity, error)
	EligibleApprovers(ctx context.Context, projectID string) ([]participant.Identity, error)
}

// Task is one matrix row in the snapshot.
type Task struct {
	RowOrder    int    `json:"rowOrder"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// Participant is one resolved column in the snapshot.
type Participant struct {
	Key         string `json:"key"`
	DisplayName string `json:"displayName"`
	RoleLabel   string `json:"roleLabel,omitempty"`
}

// Approver is a resolved approver identity.
type Approver struct {
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName"`
	RoleLabel   string `json:"roleLabel,omitempty"`
}

// View is a complete denormalized matrix snapshot. Grid covers the full
// task/participant cross product; cells without a role hold the empty
// string.
type View struct {
	MatrixID           string                    `json:"matrixId"`
	ProjectID          string                    `json:"projectId"`
	Name               string                    `json:"name"`
	Description        string                    `json:"description,omitempty"`
	Tasks              []Task                    `json:"tasks"`
	Participants       []Participant             `json:"participants"`
	Grid               map[int]map[string]string `json:"grid"`
	Approver           *Approver                 `json:"approver,omitempty"`
	ApproverCandidates []Approver                `json:"approverCandidates"`
	CreatedBy          string                    `json:"createdBy"`
	UpdatedBy          string                    `json:"updatedBy"`
	CreatedAt          time.Time                 `json:"createdAt"`
	UpdatedAt          time.Time                 `json:"updatedAt"`
}

// Builder assembles snapshots from storage and the participant resolver.
type Builder struct {
	store    Store
	resolver Resolver
}

// NewBuilder creates a snapshot builder.
func NewBuilder(store Store, resolver Resolver) *Builder {
	return &Builder{store: store, resolver: resolver}
}

// Build materializes the snapshot for a matrix record. Columns whose
// reference no longer resolves are skipped along with their cells; the
// stored rows stay untouched so the column reappears if the reference
// becomes valid again.
func (b *Builder) Build(ctx context.Context, matrix storage.MatrixRecord) (View, error) {
	if b == nil || b.store == nil || b.resolver == nil {
		return View{}, fmt.Errorf("view builder is not configured")
	}

	tasks, err := b.store.ListTasks(ctx, matrix.ID)
	if err != nil {
		return View{}, fmt.Errorf("list tasks: %w", err)
	}
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].RowOrder < tasks[j].RowOrder })

	columns, err := b.store.ListColumns(ctx, matrix.ID)
	if err != nil {
		return View{}, fmt.Errorf("list columns: %w", err)
	}

	participants := make([]Participant, 0, len(columns))
	retained := make(map[string]bool, len(columns))
	for _, column := range columns {
		ref, err := domain.ParseParticipantKey(column.ParticipantKey)
		if err != nil {
			// Keys predating a directory cleanup may no longer parse.
			continue
		}
		identity, err := b.resolver.Resolve(ctx, matrix.ProjectID, ref)
		if err != nil {
			if errors.Is(err, participant.ErrNotFound) || apperrors.CodeOf(err) == apperrors.CodeParticipantRefInvalid {
				continue
			}
			return View{}, fmt.Errorf("resolve column %s: %w", column.ParticipantKey, err)
		}
		participants = append(participants, Participant{
			Key:         column.ParticipantKey,
			DisplayName: identity.DisplayName,
			RoleLabel:   identity.RoleLabel,
		})
		retained[column.ParticipantKey] = true
	}

	grid := make(map[int]map[string]string, len(tasks))
	viewTasks := make([]Task, 0, len(tasks))
	for _, task := range tasks {
		viewTasks = append(viewTasks, Task{
			RowOrder:    task.RowOrder,
			Name:        task.Name,
			Description: task.Description,
		})
		row := make(map[string]string, len(participants))
		for _, column := range participants {
			row[column.Key] = ""
		}
		grid[task.RowOrder] = row
	}

	assignments, err := b.store.ListAssignments(ctx, matrix.ID)
	if err != nil {
		return View{}, fmt.Errorf("list assignments: %w", err)
	}
	for _, assignment := range assignments {
		row, ok := grid[assignment.RowOrder]
		if !ok || !retained[assignment.ParticipantKey] {
			continue
		}
		row[assignment.ParticipantKey] = assignment.RoleLetter
	}

	candidates, err := b.resolver.EligibleApprovers(ctx, matrix.ProjectID)
	if err != nil {
		return View{}, fmt.Errorf("eligible approvers: %w", err)
	}
	approverCandidates := make([]Approver, 0, len(candidates))
	for _, candidate := range candidates {
		approverCandidates = append(approverCandidates, Approver{
			UserID:      candidate.ID,
			DisplayName: candidate.DisplayName,
			RoleLabel:   candidate.RoleLabel,
		})
	}

	// An approver who lost eligibility since being set stays nil until
	// the reference resolves again; the stored id is untouched.
	var approver *Approver
	if matrix.ApproverUserID != "" {
		for i := range approverCandidates {
			if approverCandidates[i].UserID == matrix.ApproverUserID {
				approver = &approverCandidates[i]
				break
			}
		}
	}

	return View{
		MatrixID:           matrix.ID,
		ProjectID:          matrix.ProjectID,
		Name:               matrix.Name,
		Description:        matrix.Description,
		Tasks:              viewTasks,
		Participants:       participants,
		Grid:               grid,
		Approver:           approver,
		ApproverCandidates: approverCandidates,
		CreatedBy:          matrix.CreatedBy,
		UpdatedBy:          matrix.UpdatedBy,
		CreatedAt:          matrix.CreatedAt,
		UpdatedAt:          matrix.UpdatedAt,
	}, nil
}
