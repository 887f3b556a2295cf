package domain

import (
	"fmt"
	"strings"

	apperrors "github.com/openraci/raciboard/internal/platform/errors"
)

// ParticipantKind discriminates a participant reference.
type ParticipantKind int

const (
	// ParticipantUnspecified represents an invalid participant kind.
	ParticipantUnspecified ParticipantKind = iota
	// ParticipantTeamMember references a regular project team member.
	ParticipantTeamMember
	// ParticipantProductOwner references the project's current Product Owner.
	ParticipantProductOwner
	// ParticipantPMO references the project's current PMO.
	ParticipantPMO
	// ParticipantScrumMaster references an active member holding a Scrum role.
	ParticipantScrumMaster
)

// ParticipantRef identifies a matrix column participant. It is a tagged
// value: for team members ID is the team member id, for special roles ID
// is the user id the virtual role must currently resolve to.
type ParticipantRef struct {
	Kind ParticipantKind
	ID   string
}

// TeamMemberRef builds a reference to a regular team member.
func TeamMemberRef(memberID string) ParticipantRef {
	return ParticipantRef{Kind: ParticipantTeamMember, ID: memberID}
}

// SpecialRoleRef builds a reference to a virtual project-role participant.
func SpecialRoleRef(kind ParticipantKind, userID string) ParticipantRef {
	return ParticipantRef{Kind: kind, ID: userID}
}

// IsSpecial reports whether the reference denotes a virtual project role.
func (r ParticipantRef) IsSpecial() bool {
	switch r.Kind {
	case ParticipantProductOwner, ParticipantPMO, ParticipantScrumMaster:
		return true
	default:
		return false
	}
}

// Validate checks the reference is well formed.
func (r ParticipantRef) Validate() error {
	if strings.TrimSpace(r.ID) == "" {
		return apperrors.New(apperrors.CodeParticipantRefInvalid, "participant id is required")
	}
	switch r.Kind {
	case ParticipantTeamMember, ParticipantProductOwner, ParticipantPMO, ParticipantScrumMaster:
		return nil
	default:
		return apperrors.New(apperrors.CodeParticipantRefInvalid, "participant kind is required")
	}
}

// Participant key prefixes. The key is the single stable string form used
// at the storage and API boundaries; nothing else parses participant ids.
const (
	keyTeamMember   = "member"
	keyProductOwner = "po"
	keyPMO          = "pmo"
	keyScrumMaster  = "sm"
)

// Key returns the stable storage key for the reference.
func (r ParticipantRef) Key() string {
	switch r.Kind {
	case ParticipantTeamMember:
		return keyTeamMember + ":" + r.ID
	case ParticipantProductOwner:
		return keyProductOwner + ":" + r.ID
	case ParticipantPMO:
		return keyPMO + ":" + r.ID
	case ParticipantScrumMaster:
		return keyScrumMaster + ":" + r.ID
	default:
		return ""
	}
}

// ParseParticipantKey decodes a stable storage key back into a reference.
func ParseParticipantKey(key string) (ParticipantRef, error) {
	prefix, id, ok := strings.Cut(key, ":")
	if !ok || strings.TrimSpace(id) == "" {
		return ParticipantRef{}, apperrors.WithMetadata(
			apperrors.CodeParticipantRefInvalid,
			fmt.Sprintf("malformed participant key %q", key),
			map[string]string{"key": key},
		)
	}
	switch prefix {
	case keyTeamMember:
		return TeamMemberRef(id), nil
	case keyProductOwner:
		return SpecialRoleRef(ParticipantProductOwner, id), nil
	case keyPMO:
		return SpecialRoleRef(ParticipantPMO, id), nil
	case keyScrumMaster:
		return SpecialRoleRef(ParticipantScrumMaster, id), nil
	default:
		return ParticipantRef{}, apperrors.WithMetadata(
			apperrors.CodeParticipantRefInvalid,
			fmt.Sprintf("unknown participant key prefix %q", prefix),
			map[string]string{"key": key},
		)
	}
}
