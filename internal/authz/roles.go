package authz

import "github.com/iliyamo/dac-governance/internal/model"

// RoleOp distinguishes granting a role from revoking it.
type RoleOp int

const (
	Grant RoleOp = iota
	Revoke
)

// soAdjustable are the roles a signing official may grant or revoke.
var soAdjustable = map[model.RoleName]bool{
	model.RoleDataSubmitter:   true,
	model.RoleITDirector:      true,
	model.RoleSigningOfficial: true,
}

// CanModifyRole decides whether actor may grant or revoke role on target.
//
// Admins may change any role, though DAC roles need a DAC scope.  Signing
// officials may only change DataSubmitter, ITDirector and SigningOfficial,
// only on users of their own institution, and never their own signing
// official role.  A grant on a user with no institution is allowed; the
// caller attaches the signing official's institution to the user.
//
// Whether the target already holds the role is not decided here.
func CanModifyRole(actor, target model.User, role model.UserRole, op RoleOp) Result {
	if !role.Name.Valid() {
		return deny(ReasonRoleNotPermitted)
	}
	if role.Name.DacScoped() != (role.DacID != nil) {
		return deny(ReasonRoleNotPermitted)
	}
	if actor.HasRole(model.RoleAdmin) {
		return allow(model.RoleAdmin)
	}
	if !actor.HasRole(model.RoleSigningOfficial) {
		return deny(ReasonNoMatchingRole)
	}
	if !soAdjustable[role.Name] {
		return deny(ReasonRoleNotPermitted)
	}
	if actor.ID == target.ID && role.Name == model.RoleSigningOfficial {
		return deny(ReasonSelfRole)
	}
	if actor.InstitutionID == nil {
		return deny(ReasonNullInstitution)
	}
	if op == Grant && target.InstitutionID == nil {
		return allow(model.RoleSigningOfficial)
	}
	if r := SameInstitution(actor.InstitutionID, target.InstitutionID); r != ReasonNone {
		return deny(r)
	}
	return allow(model.RoleSigningOfficial)
}
