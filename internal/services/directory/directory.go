// Package directory exposes project and team member lookups to the
// matrix engine and to the directory HTTP surface.
package directory

import (
	"context"
	"errors"
	"fmt"

	"github.com/openraci/raciboard/internal/services/directory/storage"
	"github.com/openraci/raciboard/internal/services/matrix/participant"
)

// Store is the persistence surface the directory service needs.
type Store interface {
	storage.ProjectStore
	storage.TeamMemberStore
	storage.MembershipStore
}

// Directory adapts directory storage to the matrix resolver's contract.
type Directory struct {
	store Store
}

// New creates a directory backed by the given store.
func New(store Store) *Directory {
	return &Directory{store: store}
}

// Project returns a project's role holders.
func (d *Directory) Project(ctx context.Context, projectID string) (participant.ProjectInfo, error) {
	if d == nil || d.store == nil {
		return participant.ProjectInfo{}, fmt.Errorf("directory store is not configured")
	}
	record, err := d.store.GetProject(ctx, projectID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return participant.ProjectInfo{}, fmt.Errorf("project %s: %w", projectID, participant.ErrNotFound)
		}
		return participant.ProjectInfo{}, err
	}
	return participant.ProjectInfo{
		ID:             record.ID,
		Name:           record.Name,
		ProductOwnerID: record.ProductOwnerID,
		PMOUserID:      record.PMOUserID,
	}, nil
}

// TeamMember returns one team member by id.
func (d *Directory) TeamMember(ctx context.Context, memberID string) (participant.MemberInfo, error) {
	if d == nil || d.store == nil {
		return participant.MemberInfo{}, fmt.Errorf("directory store is not configured")
	}
	record, err := d.store.GetTeamMember(ctx, memberID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return participant.MemberInfo{}, fmt.Errorf("team member %s: %w", memberID, participant.ErrNotFound)
		}
		return participant.MemberInfo{}, err
	}
	return participant.MemberInfo{
		UserID:      record.ID,
		DisplayName: record.DisplayName,
	}, nil
}

// Members returns a project's membership roster with role labels.
func (d *Directory) Members(ctx context.Context, projectID string) ([]participant.MemberInfo, error) {
	if d == nil || d.store == nil {
		return nil, fmt.Errorf("directory store is not configured")
	}
	memberships, err := d.store.ListMemberships(ctx, projectID)
	if err != nil {
		return nil, err
	}
	members := make([]participant.MemberInfo, 0, len(memberships))
	for _, membership := range memberships {
		info := participant.MemberInfo{
			UserID:    membership.MemberID,
			RoleLabel: membership.RoleLabel,
			Active:    membership.Active,
		}
		record, err := d.store.GetTeamMember(ctx, membership.MemberID)
		if err == nil {
			info.DisplayName = record.DisplayName
		} else if !errors.Is(err, storage.ErrNotFound) {
			return nil, err
		}
		members = append(members, info)
	}
	return members, nil
}

// PutProject upserts one project record.
func (d *Directory) PutProject(ctx context.Context, record storage.ProjectRecord) error {
	if d == nil || d.store == nil {
		return fmt.Errorf("directory store is not configured")
	}
	return d.store.PutProject(ctx, record)
}

// PutTeamMember upserts one team member record.
func (d *Directory) PutTeamMember(ctx context.Context, record storage.TeamMemberRecord) error {
	if d == nil || d.store == nil {
		return fmt.Errorf("directory store is not configured")
	}
	return d.store.PutTeamMember(ctx, record)
}

// PutMembership upserts one project membership record.
func (d *Directory) PutMembership(ctx context.Context, record storage.MembershipRecord) error {
	if d == nil || d.store == nil {
		return fmt.Errorf("directory store is not configured")
	}
	return d.store.PutMembership(ctx, record)
}

// MemberProjectIDs returns the ids of projects a member belongs to.
func (d *Directory) MemberProjectIDs(ctx context.Context, memberID string) ([]string, error) {
	if d == nil || d.store == nil {
		return nil, fmt.Errorf("directory store is not configured")
	}
	return d.store.ListMemberProjectIDs(ctx, memberID)
}

var _ participant.Directory = (*Directory)(nil)
