package model

import "time"

// User represents an application user record as stored in the `users`
// table together with the rows of `user_roles` that belong to it.
//
// Fields:
//  ID            – primary key identifier of the user.
//  Email         – unique email address.
//  DisplayName   – name shown to other users.
//  InstitutionID – institution the user belongs to, nil when unknown.
//  CreatedAt     – timestamp of creation.
//  Roles         – role instances held by the user.
type User struct {
	ID            uint64     `json:"id"`
	Email         string     `json:"email"`
	DisplayName   string     `json:"displayName"`
	InstitutionID *uint64    `json:"institutionId,omitempty"`
	CreatedAt     time.Time  `json:"createDate"`
	Roles         []UserRole `json:"roles"`
}

// HasRole reports whether the user holds the role under any scope.
func (u User) HasRole(name RoleName) bool {
	for _, r := range u.Roles {
		if r.Name == name {
			return true
		}
	}
	return false
}

// HasRoleInstance reports whether the user holds the exact role instance
// (same name and same DAC scope).
func (u User) HasRoleInstance(role UserRole) bool {
	for _, r := range u.Roles {
		if r.SameScope(role) {
			return true
		}
	}
	return false
}

// DacIDs returns the DACs the user belongs to as a chair or member.
func (u User) DacIDs() []uint64 {
	seen := map[uint64]bool{}
	var ids []uint64
	for _, r := range u.Roles {
		if !r.Name.DacScoped() || r.DacID == nil || seen[*r.DacID] {
			continue
		}
		seen[*r.DacID] = true
		ids = append(ids, *r.DacID)
	}
	return ids
}

// IsChairOf reports whether the user chairs the given DAC.
func (u User) IsChairOf(dacID uint64) bool {
	for _, r := range u.Roles {
		if r.Name == RoleChairperson && r.DacID != nil && *r.DacID == dacID {
			return true
		}
	}
	return false
}

// RefreshToken models an entry in the `refresh_tokens` table.  Only the
// SHA‑256 hash of the raw token is stored.
type RefreshToken struct {
	ID        uint64     // refresh_tokens.id
	UserID    uint64     // refresh_tokens.user_id
	TokenHash string     // refresh_tokens.token_hash
	ExpiresAt time.Time  // refresh_tokens.expires_at
	RevokedAt *time.Time // refresh_tokens.revoked_at
	CreatedAt time.Time  // refresh_tokens.created_at
}
