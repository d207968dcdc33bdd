// Package authz is the single place that decides who may see, vote on or
// alter an entity.  Handlers and services describe the entity as a Target
// and ask Authorize; nothing else inspects role names to make access
// decisions.
package authz

import (
	"github.com/iliyamo/dac-governance/internal/model"
)

// Action is the operation being attempted on a target.
type Action string

const (
	ActionView     Action = "view"
	ActionVote     Action = "vote"
	ActionCreate   Action = "create"
	ActionUpdate   Action = "update"
	ActionDelete   Action = "delete"
	ActionCancel   Action = "cancel"
	ActionResubmit Action = "resubmit"
)

// Decision is the outcome of an authorization check.
type Decision int

const (
	Deny Decision = iota
	Allow
)

func (d Decision) String() string {
	if d == Allow {
		return "allow"
	}
	return "deny"
}

// DenyReason describes why a check was denied.
type DenyReason int

const (
	ReasonNone DenyReason = iota
	// ReasonNoMatchingRole means no role of the actor applies to the target.
	ReasonNoMatchingRole
	// ReasonActionNotPermitted means a role applies but not for this action.
	ReasonActionNotPermitted
	// ReasonDacMismatch means the target's DACs and the actor's DACs are disjoint.
	ReasonDacMismatch
	// ReasonInstitutionMismatch means both institutions are set but differ.
	ReasonInstitutionMismatch
	// ReasonNullInstitution means the actor or the target has no institution.
	ReasonNullInstitution
	// ReasonRoleNotPermitted means the role cannot be granted or revoked by the actor.
	ReasonRoleNotPermitted
	// ReasonSelfRole means a signing official tried to change its own signing official role.
	ReasonSelfRole
)

func (r DenyReason) String() string {
	switch r {
	case ReasonNone:
		return "none"
	case ReasonNoMatchingRole:
		return "no role grants access to the target"
	case ReasonActionNotPermitted:
		return "action not permitted for role"
	case ReasonDacMismatch:
		return "target is outside the actor's DACs"
	case ReasonInstitutionMismatch:
		return "target belongs to another institution"
	case ReasonNullInstitution:
		return "institution is not set"
	case ReasonRoleNotPermitted:
		return "role cannot be modified by the actor"
	case ReasonSelfRole:
		return "signing officials cannot modify their own signing official role"
	default:
		return "unknown"
	}
}

// Result is the verdict of a check.  Role names the role that granted
// access when the decision is Allow; owner matches report RoleResearcher.
type Result struct {
	Decision Decision
	Reason   DenyReason
	Role     model.RoleName
}

// Allowed reports whether the decision is Allow.
func (r Result) Allowed() bool { return r.Decision == Allow }

func allow(role model.RoleName) Result { return Result{Decision: Allow, Role: role} }
func deny(reason DenyReason) Result    { return Result{Decision: Deny, Reason: reason} }

// Target describes the entity an action is attempted on by its owning
// scope.  OwnerID is zero when the entity has no owning user; DacIDs are
// the committees owning the datasets the entity refers to.
type Target struct {
	OwnerID            uint64
	OwnerInstitutionID *uint64
	DacIDs             []uint64
}

var (
	ownerActions  = actionSet(ActionView, ActionUpdate, ActionCancel, ActionResubmit, ActionDelete)
	chairActions  = actionSet(ActionView, ActionVote, ActionCreate, ActionUpdate, ActionDelete, ActionCancel)
	memberActions = actionSet(ActionView, ActionVote)
	soActions     = actionSet(ActionView, ActionCreate, ActionUpdate, ActionDelete)
	itActions     = actionSet(ActionView)
)

func actionSet(actions ...Action) map[Action]bool {
	m := make(map[Action]bool, len(actions))
	for _, a := range actions {
		m[a] = true
	}
	return m
}

// Authorize decides whether actor may perform action on target.
//
// Resolution order:
//  1. Admin is always allowed.
//  2. The owning user is allowed researcher actions on its own entities.
//  3. Chairperson/Member are allowed when the target's DACs intersect the
//     DACs they belong to; SigningOfficial/ITDirector when actor and owner
//     share an institution and neither institution is null.
//  4. Everything else is denied.
func Authorize(actor model.User, action Action, target Target) Result {
	if actor.HasRole(model.RoleAdmin) {
		return allow(model.RoleAdmin)
	}
	if target.OwnerID != 0 && actor.ID == target.OwnerID && ownerActions[action] {
		return allow(model.RoleResearcher)
	}

	reason := ReasonNoMatchingRole
	note := func(r DenyReason) {
		// keep the most specific reason seen
		if r > reason {
			reason = r
		}
	}
	for _, role := range actor.Roles {
		switch role.Name {
		case model.RoleChairperson, model.RoleMember:
			if role.DacID == nil || !containsID(target.DacIDs, *role.DacID) {
				note(ReasonDacMismatch)
				continue
			}
			actions := memberActions
			if role.Name == model.RoleChairperson {
				actions = chairActions
			}
			if !actions[action] {
				note(ReasonActionNotPermitted)
				continue
			}
			return allow(role.Name)
		case model.RoleSigningOfficial, model.RoleITDirector:
			if r := SameInstitution(actor.InstitutionID, target.OwnerInstitutionID); r != ReasonNone {
				note(r)
				continue
			}
			actions := itActions
			if role.Name == model.RoleSigningOfficial {
				actions = soActions
			}
			if !actions[action] {
				note(ReasonActionNotPermitted)
				continue
			}
			return allow(role.Name)
		}
	}
	return deny(reason)
}

// SameInstitution returns ReasonNone when both institutions are set and
// equal.  A null institution on either side is always a denial.
func SameInstitution(a, b *uint64) DenyReason {
	if a == nil || b == nil {
		return ReasonNullInstitution
	}
	if *a != *b {
		return ReasonInstitutionMismatch
	}
	return ReasonNone
}

// Filter keeps the items actor may perform action on.  It is the
// visibility filter for list operations.
func Filter[T any](actor model.User, action Action, items []T, target func(T) Target) []T {
	out := make([]T, 0, len(items))
	for _, it := range items {
		if Authorize(actor, action, target(it)).Allowed() {
			out = append(out, it)
		}
	}
	return out
}

func containsID(ids []uint64, id uint64) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
