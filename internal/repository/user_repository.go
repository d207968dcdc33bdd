package repository

import (
	"context"
	"database/sql"
	"strings"

	"github.com/iliyamo/dac-governance/internal/model"
)

const userColumns = "id, email, display_name, institution_id, created_at"

func scanUser(row interface{ Scan(...interface{}) error }, u *model.User) error {
	var inst sql.NullInt64
	if err := row.Scan(&u.ID, &u.Email, &u.DisplayName, &inst, &u.CreatedAt); err != nil {
		return err
	}
	u.InstitutionID = uintPtr(inst)
	return nil
}

// GetUser fetches a user by id together with its roles.
func (s *SQLStore) GetUser(ctx context.Context, id uint64) (model.User, error) {
	var u model.User
	err := scanUser(s.q.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE id=? LIMIT 1", id), &u)
	if err != nil {
		return model.User{}, notFound(err)
	}
	if u.Roles, err = s.userRoles(ctx, u.ID); err != nil {
		return model.User{}, err
	}
	return u, nil
}

// GetUserCredentials fetches a user by normalized email and returns the
// stored bcrypt hash alongside it.
func (s *SQLStore) GetUserCredentials(ctx context.Context, email string) (model.User, string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	var (
		u    model.User
		inst sql.NullInt64
		hash string
	)
	err := s.q.QueryRowContext(ctx,
		"SELECT "+userColumns+", password_hash FROM users WHERE email=? LIMIT 1",
		email).Scan(&u.ID, &u.Email, &u.DisplayName, &inst, &u.CreatedAt, &hash)
	if err != nil {
		return model.User{}, "", notFound(err)
	}
	u.InstitutionID = uintPtr(inst)
	if u.Roles, err = s.userRoles(ctx, u.ID); err != nil {
		return model.User{}, "", err
	}
	return u, hash, nil
}

// CreateUser inserts the user and any roles it carries.
func (s *SQLStore) CreateUser(ctx context.Context, u *model.User, passwordHash string) error {
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	return s.WithTx(ctx, func(tx Store) error {
		st := tx.(*SQLStore)
		res, err := st.q.ExecContext(ctx,
			"INSERT INTO users (email, password_hash, display_name, institution_id) VALUES (?,?,?,?)",
			u.Email, passwordHash, u.DisplayName, nullUint(u.InstitutionID))
		if err != nil {
			if isDuplicate(err) {
				return ErrEmailExists
			}
			return err
		}
		id, err := res.LastInsertId()
		if err != nil {
			return err
		}
		u.ID = uint64(id)
		for _, r := range u.Roles {
			if err := st.AddUserRole(ctx, u.ID, r); err != nil {
				return err
			}
		}
		return st.q.QueryRowContext(ctx, "SELECT created_at FROM users WHERE id=?", u.ID).Scan(&u.CreatedAt)
	})
}

// SetUserInstitution returns ErrNotFound when no user has the id.
func (s *SQLStore) SetUserInstitution(ctx context.Context, userID, institutionID uint64) error {
	res, err := s.q.ExecContext(ctx, "UPDATE users SET institution_id=? WHERE id=?", institutionID, userID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// AddUserRole inserts a role instance.  MySQL unique keys treat NULL dac
// ids as distinct, so the existence check happens here.
func (s *SQLStore) AddUserRole(ctx context.Context, userID uint64, role model.UserRole) error {
	var n int
	err := s.q.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM user_roles WHERE user_id=? AND role_id=? AND dac_id <=> ?",
		userID, role.Name.ID(), nullUint(role.DacID)).Scan(&n)
	if err != nil {
		return err
	}
	if n > 0 {
		return ErrConflict
	}
	_, err = s.q.ExecContext(ctx,
		"INSERT INTO user_roles (user_id, role_id, dac_id) VALUES (?,?,?)",
		userID, role.Name.ID(), nullUint(role.DacID))
	if isDuplicate(err) {
		return ErrConflict
	}
	return err
}

// RemoveUserRole deletes one role instance, matching a NULL dac id
// exactly.  ErrNotFound when the user does not hold it.  Callers that
// follow up on open elections run it inside the same WithTx.
func (s *SQLStore) RemoveUserRole(ctx context.Context, userID uint64, role model.UserRole) error {
	res, err := s.q.ExecContext(ctx,
		"DELETE FROM user_roles WHERE user_id=? AND role_id=? AND dac_id <=> ?",
		userID, role.Name.ID(), nullUint(role.DacID))
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListDacMembers returns the chairs and members of a DAC.
func (s *SQLStore) ListDacMembers(ctx context.Context, dacID uint64) ([]model.User, error) {
	rows, err := s.q.QueryContext(ctx,
		"SELECT DISTINCT u.id, u.email, u.display_name, u.institution_id, u.created_at FROM users u "+
			"JOIN user_roles ur ON ur.user_id = u.id WHERE ur.dac_id=? AND ur.role_id IN (?,?) ORDER BY u.id",
		dacID, model.RoleChairperson.ID(), model.RoleMember.ID())
	if err != nil {
		return nil, err
	}
	var users []model.User
	for rows.Next() {
		var u model.User
		if err := scanUser(rows, &u); err != nil {
			rows.Close()
			return nil, err
		}
		users = append(users, u)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range users {
		if users[i].Roles, err = s.userRoles(ctx, users[i].ID); err != nil {
			return nil, err
		}
	}
	return users, nil
}

func (s *SQLStore) userRoles(ctx context.Context, userID uint64) ([]model.UserRole, error) {
	rows, err := s.q.QueryContext(ctx,
		"SELECT role_id, dac_id FROM user_roles WHERE user_id=? ORDER BY id", userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var roles []model.UserRole
	for rows.Next() {
		var (
			roleID uint8
			dacID  sql.NullInt64
		)
		if err := rows.Scan(&roleID, &dacID); err != nil {
			return nil, err
		}
		name, ok := model.RoleNameByID(roleID)
		if !ok {
			continue
		}
		roles = append(roles, model.NewUserRole(name, uintPtr(dacID)))
	}
	return roles, rows.Err()
}
