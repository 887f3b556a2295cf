package domain

import (
	"fmt"

	apperrors "github.com/openraci/raciboard/internal/platform/errors"
)

// Role is one RACI role letter assignable to a grid cell.
type Role int

const (
	// RoleUnspecified represents an empty cell; it is never stored.
	RoleUnspecified Role = iota
	// RoleResponsible marks the participant doing the work.
	RoleResponsible
	// RoleAccountable marks the participant answerable for the task.
	RoleAccountable
	// RoleConsulted marks a participant consulted before decisions.
	RoleConsulted
	// RoleInformed marks a participant kept up to date.
	RoleInformed
)

// Letter returns the single-letter display form, or "" for an empty cell.
func (r Role) Letter() string {
	switch r {
	case RoleResponsible:
		return "R"
	case RoleAccountable:
		return "A"
	case RoleConsulted:
		return "C"
	case RoleInformed:
		return "I"
	default:
		return ""
	}
}

// RoleFromLetter parses a role letter. The empty string maps to
// RoleUnspecified so callers can express "clear this cell".
func RoleFromLetter(letter string) (Role, error) {
	switch letter {
	case "":
		return RoleUnspecified, nil
	case "R":
		return RoleResponsible, nil
	case "A":
		return RoleAccountable, nil
	case "C":
		return RoleConsulted, nil
	case "I":
		return RoleInformed, nil
	default:
		return RoleUnspecified, apperrors.WithMetadata(
			apperrors.CodeRoleInvalid,
			fmt.Sprintf("role %q is not one of R, A, C, I", letter),
			map[string]string{"role": letter},
		)
	}
}
