package view

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/openraci/raciboard/internal/services/matrix/domain"
	"github.com/openraci/raciboard/internal/services/matrix/participant"
	"github.com/openraci/raciboard/internal/services/matrix/storage"
)

type fakeStore struct {
	tasks       []storage.TaskRecord
	columns     []storage.ColumnRecord
	assignments []storage.AssignmentRecord
}

func (f *fakeStore) ListTasks(context.Context, string) ([]storage.TaskRecord, error) {
	return f.tasks, nil
}

func (f *fakeStore) ListColumns(context.Context, string) ([]storage.ColumnRecord, error) {
	return f.columns, nil
}

func (f *fakeStore) ListAssignments(context.Context, string) ([]storage.AssignmentRecord, error) {
	return f.assignments, nil
}

type fakeResolver struct {
	identities map[string]participant.Identity // participant key -> identity
	candidates []participant.Identity
}

func (f *fakeResolver) Resolve(_ context.Context, _ string, ref domain.ParticipantRef) (participant.Identity, error) {
	identity, ok := f.identities[ref.Key()]
	if !ok {
		return participant.Identity{}, fmt.Errorf("ref %s: %w", ref.Key(), participant.ErrNotFound)
	}
	return identity, nil
}

func (f *fakeResolver) EligibleApprovers(context.Context, string) ([]participant.Identity, error) {
	return f.candidates, nil
}

func testMatrix() storage.MatrixRecord {
	now := time.UnixMilli(1700000000000).UTC()
	return storage.MatrixRecord{
		ID:        "mx-1",
		ProjectID: "proj-1",
		Name:      "Release readiness",
		CreatedBy: "user-1",
		UpdatedBy: "user-2",
		CreatedAt: now,
		UpdatedAt: now.Add(time.Hour),
	}
}

func TestBuildOrdersTasksAndColumns(t *testing.T) {
	store := &fakeStore{
		tasks: []storage.TaskRecord{
			{MatrixID: "mx-1", RowOrder: 5, Name: "Ship"},
			{MatrixID: "mx-1", RowOrder: 0, Name: "Plan"},
			{MatrixID: "mx-1", RowOrder: 2, Name: "Build"},
		},
		columns: []storage.ColumnRecord{
			{MatrixID: "mx-1", Position: 0, ParticipantKey: "member:tm-1"},
			{MatrixID: "mx-1", Position: 1, ParticipantKey: "po:user-po"},
		},
	}
	resolver := &fakeResolver{identities: map[string]participant.Identity{
		"member:tm-1": {ID: "tm-1", DisplayName: "Tara Miles", RoleLabel: "Developer"},
		"po:user-po":  {ID: "user-po", DisplayName: "Petra Owens", RoleLabel: participant.LabelProductOwner},
	}}

	view, err := NewBuilder(store, resolver).Build(context.Background(), testMatrix())
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	wantRows := []int{0, 2, 5}
	if len(view.Tasks) != len(wantRows) {
		t.Fatalf("tasks len = %d, want %d", len(view.Tasks), len(wantRows))
	}
	for i, task := range view.Tasks {
		if task.RowOrder != wantRows[i] {
			t.Fatalf("tasks[%d].RowOrder = %d, want %d", i, task.RowOrder, wantRows[i])
		}
	}
	if len(view.Participants) != 2 {
		t.Fatalf("participants len = %d, want 2", len(view.Participants))
	}
	if view.Participants[0].Key != "member:tm-1" || view.Participants[1].Key != "po:user-po" {
		t.Fatalf("participant order = %s, %s", view.Participants[0].Key, view.Participants[1].Key)
	}
	if view.Participants[0].DisplayName != "Tara Miles" {
		t.Fatalf("participant display name = %q", view.Participants[0].DisplayName)
	}
}

func TestBuildGridCoversCrossProduct(t *testing.T) {
	store := &fakeStore{
		tasks: []storage.TaskRecord{
			{MatrixID: "mx-1", RowOrder: 0, Name: "Plan"},
			{MatrixID: "mx-1", RowOrder: 1, Name: "Build"},
		},
		columns: []storage.ColumnRecord{
			{MatrixID: "mx-1", Position: 0, ParticipantKey: "member:tm-1"},
			{MatrixID: "mx-1", Position: 1, ParticipantKey: "member:tm-2"},
		},
		assignments: []storage.AssignmentRecord{
			{MatrixID: "mx-1", RowOrder: 0, ParticipantKey: "member:tm-1", RoleLetter: "A"},
			{MatrixID: "mx-1", RowOrder: 1, ParticipantKey: "member:tm-2", RoleLetter: "C"},
		},
	}
	resolver := &fakeResolver{identities: map[string]participant.Identity{
		"member:tm-1": {ID: "tm-1", DisplayName: "Tara Miles"},
		"member:tm-2": {ID: "tm-2", DisplayName: "Tom Iverson"},
	}}

	view, err := NewBuilder(store, resolver).Build(context.Background(), testMatrix())
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	if len(view.Grid) != 2 {
		t.Fatalf("grid rows = %d, want 2", len(view.Grid))
	}
	for rowOrder, row := range view.Grid {
		if len(row) != 2 {
			t.Fatalf("grid[%d] cells = %d, want 2", rowOrder, len(row))
		}
	}
	if got := view.Grid[0]["member:tm-1"]; got != "A" {
		t.Fatalf("grid[0][tm-1] = %q, want A", got)
	}
	if got := view.Grid[0]["member:tm-2"]; got != "" {
		t.Fatalf("grid[0][tm-2] = %q, want empty", got)
	}
	if got := view.Grid[1]["member:tm-2"]; got != "C" {
		t.Fatalf("grid[1][tm-2] = %q, want C", got)
	}
}

func TestBuildSkipsUnresolvableColumns(t *testing.T) {
	store := &fakeStore{
		tasks: []storage.TaskRecord{{MatrixID: "mx-1", RowOrder: 0, Name: "Plan"}},
		columns: []storage.ColumnRecord{
			{MatrixID: "mx-1", Position: 0, ParticipantKey: "member:tm-1"},
			{MatrixID: "mx-1", Position: 1, ParticipantKey: "sm:user-gone"},
		},
		assignments: []storage.AssignmentRecord{
			{MatrixID: "mx-1", RowOrder: 0, ParticipantKey: "sm:user-gone", RoleLetter: "R"},
		},
	}
	resolver := &fakeResolver{identities: map[string]participant.Identity{
		"member:tm-1": {ID: "tm-1", DisplayName: "Tara Miles"},
	}}

	view, err := NewBuilder(store, resolver).Build(context.Background(), testMatrix())
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	if len(view.Participants) != 1 || view.Participants[0].Key != "member:tm-1" {
		t.Fatalf("participants = %+v, want only member:tm-1", view.Participants)
	}
	if _, ok := view.Grid[0]["sm:user-gone"]; ok {
		t.Fatalf("grid should not carry cells for skipped columns")
	}
}

func TestBuildApprover(t *testing.T) {
	matrix := testMatrix()
	matrix.ApproverUserID = "user-po"
	store := &fakeStore{}
	resolver := &fakeResolver{candidates: []participant.Identity{
		{ID: "user-po", DisplayName: "Petra Owens", RoleLabel: participant.LabelProductOwner},
		{ID: "user-pmo", DisplayName: "Pam Office", RoleLabel: participant.LabelPMO},
	}}

	view, err := NewBuilder(store, resolver).Build(context.Background(), matrix)
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	if view.Approver == nil {
		t.Fatalf("approver should be set")
	}
	if view.Approver.DisplayName != "Petra Owens" || view.Approver.RoleLabel != participant.LabelProductOwner {
		t.Fatalf("approver = %+v", view.Approver)
	}
	if len(view.ApproverCandidates) != 2 {
		t.Fatalf("candidates len = %d, want 2", len(view.ApproverCandidates))
	}
}

func TestBuildApproverUnset(t *testing.T) {
	view, err := NewBuilder(&fakeStore{}, &fakeResolver{}).Build(context.Background(), testMatrix())
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if view.Approver != nil {
		t.Fatalf("approver = %+v, want nil", view.Approver)
	}
	if view.ApproverCandidates == nil || len(view.ApproverCandidates) != 0 {
		t.Fatalf("candidates = %+v, want empty non-nil", view.ApproverCandidates)
	}
}

func TestBuildApproverNilWhenNoLongerEligible(t *testing.T) {
	matrix := testMatrix()
	matrix.ApproverUserID = "user-old"
	resolver := &fakeResolver{candidates: []participant.Identity{
		{ID: "user-po", DisplayName: "Petra Owens", RoleLabel: participant.LabelProductOwner},
	}}

	view, err := NewBuilder(&fakeStore{}, resolver).Build(context.Background(), matrix)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if view.Approver != nil {
		t.Fatalf("approver = %+v, want nil for ineligible user-old", view.Approver)
	}
}
