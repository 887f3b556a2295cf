// Package storage defines persistence contracts for directory state:
// projects, team members, and project memberships.
package storage

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound indicates a requested directory record is missing.
var ErrNotFound = errors.New("record not found")

// ProjectRecord stores one project with its current role holders.
type ProjectRecord struct {
	ID             string
	Name           string
	ProductOwnerID string
	PMOUserID      string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// TeamMemberRecord stores one team member.
type TeamMemberRecord struct {
	ID          string
	DisplayName string
	Email       string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// MembershipRecord stores one project membership with its role label.
type MembershipRecord struct {
	ProjectID string
	MemberID  string
	RoleLabel string
	Active    bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ProjectStore persists projects.
type ProjectStore interface {
	PutProject(ctx context.Context, record ProjectRecord) error
	GetProject(ctx context.Context, projectID string) (ProjectRecord, error)
}

// TeamMemberStore persists team members.
type TeamMemberStore interface {
	PutTeamMember(ctx context.Context, record TeamMemberRecord) error
	GetTeamMember(ctx context.Context, memberID string) (TeamMemberRecord, error)
}

// MembershipStore persists project memberships.
type MembershipStore interface {
	PutMembership(ctx context.Context, record MembershipRecord) error
	ListMemberships(ctx context.Context, projectID string) ([]MembershipRecord, error)
	ListMemberProjectIDs(ctx context.Context, memberID string) ([]string, error)
}
