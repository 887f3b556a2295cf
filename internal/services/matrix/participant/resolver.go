// Package participant resolves matrix participant references against the
// project directory and decides approver eligibility.
package participant

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/openraci/raciboard/internal/services/matrix/domain"
)

// ErrNotFound indicates a directory lookup found no matching record.
var ErrNotFound = errors.New("participant not found")

// Role labels for virtual project-role participants.
const (
	LabelProductOwner = "Product Owner"
	LabelPMO          = "PMO"
)

// scrumLabelFragment matches any member role label containing a Scrum
// role, case-insensitively. Role labels are free-form, e.g. "Scrum
// Master" or "Senior Scrum master".
const scrumLabelFragment = "scrum"

// ProjectInfo is the directory's view of a project's role holders.
type ProjectInfo struct {
	ID             string
	Name           string
	ProductOwnerID string
	PMOUserID      string
}

// MemberInfo is the directory's view of one project member.
type MemberInfo struct {
	UserID      string
	DisplayName string
	RoleLabel   string
	Active      bool
}

// Directory is the project/membership lookup consumed by the resolver.
// Implementations return an error matching ErrNotFound for missing
// projects and team members.
type Directory interface {
	Project(ctx context.Context, projectID string) (ProjectInfo, error)
	TeamMember(ctx context.Context, memberID string) (MemberInfo, error)
	Members(ctx context.Context, projectID string) ([]MemberInfo, error)
	MemberProjectIDs(ctx context.Context, memberID string) ([]string, error)
}

// Identity is the human-facing record a participant reference resolves to.
type Identity struct {
	ID          string
	DisplayName string
	RoleLabel   string
}

// Resolver maps participant references to identities and eligibility
// verdicts. Special-role identity is computed on every call from the
// project's current role holders; nothing is cached or persisted.
type Resolver struct {
	dir Directory
}

// NewResolver creates a resolver backed by the given directory.
func NewResolver(dir Directory) *Resolver {
	return &Resolver{dir: dir}
}

// Resolve maps a participant reference to a display identity. Team
// members resolve regardless of project membership; special roles
// resolve only while the referenced user currently holds the role.
func (r *Resolver) Resolve(ctx context.Context, projectID string, ref domain.ParticipantRef) (Identity, error) {
	if r == nil || r.dir == nil {
		return Identity{}, fmt.Errorf("directory is not configured")
	}
	if err := ref.Validate(); err != nil {
		return Identity{}, err
	}

	switch ref.Kind {
	case domain.ParticipantTeamMember:
		member, err := r.dir.TeamMember(ctx, ref.ID)
		if err != nil {
			return Identity{}, err
		}
		identity := Identity{ID: member.UserID, DisplayName: member.DisplayName}
		// The role label is project-scoped; a member without a
		// membership still resolves, just without a label.
		members, err := r.dir.Members(ctx, projectID)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return Identity{}, err
		}
		for _, candidate := range members {
			if candidate.UserID == ref.ID {
				identity.RoleLabel = candidate.RoleLabel
				break
			}
		}
		return identity, nil

	case domain.ParticipantProductOwner:
		project, err := r.dir.Project(ctx, projectID)
		if err != nil {
			return Identity{}, err
		}
		if project.ProductOwnerID == "" || project.ProductOwnerID != ref.ID {
			return Identity{}, fmt.Errorf("user %s is not the product owner: %w", ref.ID, ErrNotFound)
		}
		return r.userIdentity(ctx, ref.ID, LabelProductOwner)

	case domain.ParticipantPMO:
		project, err := r.dir.Project(ctx, projectID)
		if err != nil {
			return Identity{}, err
		}
		if project.PMOUserID == "" || project.PMOUserID != ref.ID {
			return Identity{}, fmt.Errorf("user %s is not the pmo: %w", ref.ID, ErrNotFound)
		}
		return r.userIdentity(ctx, ref.ID, LabelPMO)

	case domain.ParticipantScrumMaster:
		members, err := r.dir.Members(ctx, projectID)
		if err != nil {
			return Identity{}, err
		}
		for _, member := range members {
			if member.UserID == ref.ID && member.Active && hasScrumLabel(member.RoleLabel) {
				return Identity{ID: member.UserID, DisplayName: member.DisplayName, RoleLabel: member.RoleLabel}, nil
			}
		}
		return Identity{}, fmt.Errorf("user %s is not an active scrum master: %w", ref.ID, ErrNotFound)

	default:
		return Identity{}, fmt.Errorf("unsupported participant kind %d", ref.Kind)
	}
}

// userIdentity returns the display record for a role-holding user,
// preferring the team member registry for the display name.
func (r *Resolver) userIdentity(ctx context.Context, userID string, roleLabel string) (Identity, error) {
	member, err := r.dir.TeamMember(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			// Role holders without a team member record still display.
			return Identity{ID: userID, DisplayName: userID, RoleLabel: roleLabel}, nil
		}
		return Identity{}, err
	}
	return Identity{ID: userID, DisplayName: member.DisplayName, RoleLabel: roleLabel}, nil
}

// ValidateMembership reports whether the reference denotes a current,
// eligible participant of the project.
func (r *Resolver) ValidateMembership(ctx context.Context, projectID string, ref domain.ParticipantRef) (bool, error) {
	if r == nil || r.dir == nil {
		return false, fmt.Errorf("directory is not configured")
	}
	if err := ref.Validate(); err != nil {
		return false, err
	}

	if ref.Kind == domain.ParticipantTeamMember {
		projectIDs, err := r.dir.MemberProjectIDs(ctx, ref.ID)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return false, nil
			}
			return false, err
		}
		for _, id := range projectIDs {
			if id == projectID {
				return true, nil
			}
		}
		return false, nil
	}

	// For special roles membership is resolution.
	if _, err := r.Resolve(ctx, projectID, ref); err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// EligibleApprovers returns the authoritative approver candidate set:
// the project's Product Owner, its PMO, and the first active member
// holding a Scrum role, in that order.
func (r *Resolver) EligibleApprovers(ctx context.Context, projectID string) ([]Identity, error) {
	if r == nil || r.dir == nil {
		return nil, fmt.Errorf("directory is not configured")
	}
	project, err := r.dir.Project(ctx, projectID)
	if err != nil {
		return nil, err
	}

	var candidates []Identity
	if project.ProductOwnerID != "" {
		identity, err := r.userIdentity(ctx, project.ProductOwnerID, LabelProductOwner)
		if err != nil {
			return nil, err
		}
		candidates = append(candidates, identity)
	}
	if project.PMOUserID != "" {
		identity, err := r.userIdentity(ctx, project.PMOUserID, LabelPMO)
		if err != nil {
			return nil, err
		}
		candidates = append(candidates, identity)
	}

	members, err := r.dir.Members(ctx, projectID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	for _, member := range members {
		if member.Active && hasScrumLabel(member.RoleLabel) {
			candidates = append(candidates, Identity{
				ID:          member.UserID,
				DisplayName: member.DisplayName,
				RoleLabel:   member.RoleLabel,
			})
			break
		}
	}
	return candidates, nil
}

func hasScrumLabel(roleLabel string) bool {
	return strings.Contains(strings.ToLower(roleLabel), scrumLabelFragment)
}
