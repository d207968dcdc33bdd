package model

import (
	"fmt"
	"strings"
)

// RoleName enumerates the roles a user can hold.  The string values are
// the names transmitted over the API and stored in the `roles` table.
type RoleName string

const (
	RoleAdmin           RoleName = "Admin"
	RoleChairperson     RoleName = "Chairperson"
	RoleMember          RoleName = "Member"
	RoleSigningOfficial RoleName = "SigningOfficial"
	RoleResearcher      RoleName = "Researcher"
	RoleDataSubmitter   RoleName = "DataSubmitter"
	RoleITDirector      RoleName = "ITDirector"
	RoleAlumni          RoleName = "Alumni"
)

// roleIDs maps each role to its row id in the `roles` table.
var roleIDs = map[RoleName]uint8{
	RoleMember:          1,
	RoleChairperson:     2,
	RoleAlumni:          3,
	RoleAdmin:           4,
	RoleResearcher:      5,
	RoleDataSubmitter:   6,
	RoleSigningOfficial: 7,
	RoleITDirector:      8,
}

// AllRoles lists every known role in id order.
func AllRoles() []RoleName {
	return []RoleName{
		RoleMember, RoleChairperson, RoleAlumni, RoleAdmin,
		RoleResearcher, RoleDataSubmitter, RoleSigningOfficial, RoleITDirector,
	}
}

// ID returns the numeric id of the role, or zero for an unknown role.
func (r RoleName) ID() uint8 { return roleIDs[r] }

// Valid reports whether r is one of the known roles.
func (r RoleName) Valid() bool {
	_, ok := roleIDs[r]
	return ok
}

// DacScoped reports whether the role only makes sense with a DAC scope.
func (r RoleName) DacScoped() bool {
	return r == RoleChairperson || r == RoleMember
}

// InstitutionScoped reports whether the role's authority is limited to the
// holder's own institution.
func (r RoleName) InstitutionScoped() bool {
	return r == RoleSigningOfficial || r == RoleITDirector
}

// ParseRoleName resolves a role from its API name.  Matching ignores case
// and surrounding whitespace so "chairperson" and "Chairperson" agree.
func ParseRoleName(s string) (RoleName, error) {
	s = strings.TrimSpace(s)
	for _, r := range AllRoles() {
		if strings.EqualFold(string(r), s) {
			return r, nil
		}
	}
	return "", fmt.Errorf("unknown role %q", s)
}

// RoleNameByID resolves a role from its numeric id.
func RoleNameByID(id uint8) (RoleName, bool) {
	for r, rid := range roleIDs {
		if rid == id {
			return r, true
		}
	}
	return "", false
}

// UserRole is one role instance held by a user.  Chairperson and Member
// roles carry the DAC they are scoped to; the institution scope of
// SigningOfficial and ITDirector comes from the user's own institution.
type UserRole struct {
	RoleID uint8    `json:"roleId"`
	Name   RoleName `json:"name"`
	DacID  *uint64  `json:"dacId,omitempty"`
}

// NewUserRole builds a role instance with its id filled in.
func NewUserRole(name RoleName, dacID *uint64) UserRole {
	return UserRole{RoleID: name.ID(), Name: name, DacID: dacID}
}

// SameScope reports whether two role instances share name and DAC scope.
func (ur UserRole) SameScope(other UserRole) bool {
	if ur.Name != other.Name {
		return false
	}
	if ur.DacID == nil || other.DacID == nil {
		return ur.DacID == nil && other.DacID == nil
	}
	return *ur.DacID == *other.DacID
}
