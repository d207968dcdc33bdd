package service

import (
	"context"

	"github.com/iliyamo/dac-governance/internal/authz"
	"github.com/iliyamo/dac-governance/internal/model"
	"github.com/iliyamo/dac-governance/internal/repository"
)

// UserService changes the roles users hold.  Changing a DAC role also
// moves the user onto or off the voter rolls of that DAC's open elections.
type UserService struct {
	deps      Deps
	elections *ElectionService
}

func NewUserService(d Deps, elections *ElectionService) *UserService {
	return &UserService{deps: d.withDefaults(), elections: elections}
}

// AddRole grants role to the user.  A signing official granting a role to
// a user without an institution also moves that user into the official's
// institution.  Granting a role the user already holds is NotModified.
func (s *UserService) AddRole(ctx context.Context, actor model.User, userID uint64, roleName string, dacID uint64) (model.User, error) {
	return s.modify(ctx, actor, userID, roleName, dacID, authz.Grant)
}

// RemoveRole revokes role from the user.  Revoking a role the user does
// not hold is NotModified; revoking the only Chairperson of a DAC is
// Forbidden.
func (s *UserService) RemoveRole(ctx context.Context, actor model.User, userID uint64, roleName string, dacID uint64) (model.User, error) {
	return s.modify(ctx, actor, userID, roleName, dacID, authz.Revoke)
}

func (s *UserService) modify(ctx context.Context, actor model.User, userID uint64, roleName string, dacID uint64, op authz.RoleOp) (model.User, error) {
	name, err := model.ParseRoleName(roleName)
	if err != nil {
		return model.User{}, badRequest("%v", err)
	}
	var scope *uint64
	if name.DacScoped() {
		if dacID == 0 {
			return model.User{}, badRequest("role %s requires a dacId", name)
		}
		scope = &dacID
	}
	role := model.NewUserRole(name, scope)

	var (
		updated model.User
		settled []settlement
	)
	err = s.deps.Store.WithTx(ctx, func(tx repository.Store) error {
		settled = nil
		target, err := tx.GetUser(ctx, userID)
		if err != nil {
			return storeErr(err, "user")
		}
		if scope != nil {
			if _, err := tx.GetDac(ctx, dacID); err != nil {
				return storeErr(err, "DAC")
			}
		}
		res := authz.CanModifyRole(actor, target, role, op)
		if !res.Allowed() {
			if res.Reason == authz.ReasonRoleNotPermitted {
				return badRequest("role %s cannot be modified by this user", name)
			}
			return forbidden("not allowed to modify roles of user %d: %s", userID, res.Reason)
		}
		switch op {
		case authz.Grant:
			if target.HasRoleInstance(role) {
				return notModified("user %d already holds role %s", userID, name)
			}
			if res.Role == model.RoleSigningOfficial && target.InstitutionID == nil {
				if err := tx.SetUserInstitution(ctx, userID, *actor.InstitutionID); err != nil {
					return storeErr(err, "user")
				}
			}
			if err := tx.AddUserRole(ctx, userID, role); err != nil {
				return storeErr(err, "role")
			}
		case authz.Revoke:
			if !target.HasRoleInstance(role) {
				return notModified("user %d does not hold role %s", userID, name)
			}
			if name == model.RoleChairperson {
				if err := lastChairGuard(ctx, tx, userID, dacID); err != nil {
					return err
				}
			}
			if err := tx.RemoveUserRole(ctx, userID, role); err != nil {
				return storeErr(err, "role")
			}
		}
		updated, err = tx.GetUser(ctx, userID)
		if err != nil {
			return storeErr(err, "user")
		}
		if scope == nil {
			return nil
		}
		settled, err = s.elections.syncVoter(ctx, tx, updated, dacID)
		return err
	})
	if err != nil {
		return model.User{}, err
	}
	s.deps.Log.Info("user %d: role %s %s by user %d", userID, name, opName(op), actor.ID)
	s.elections.announce(ctx, settled)
	return updated, nil
}

// lastChairGuard refuses to leave a DAC without a chairperson; its open
// elections could never be decided.
func lastChairGuard(ctx context.Context, st repository.Store, userID, dacID uint64) error {
	members, err := st.ListDacMembers(ctx, dacID)
	if err != nil {
		return storeErr(err, "DAC")
	}
	for _, u := range members {
		if u.ID != userID && u.IsChairOf(dacID) {
			return nil
		}
	}
	return forbidden("user %d is the last chairperson of DAC %d", userID, dacID)
}

func opName(op authz.RoleOp) string {
	if op == authz.Grant {
		return "granted"
	}
	return "revoked"
}
