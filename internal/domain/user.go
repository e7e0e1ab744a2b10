package domain

import "time"

// RoleUser is granted to every account registered without explicit roles.
const RoleUser = "USER"

// RoleAdmin unlocks administrative operations.
const RoleAdmin = "ADMIN"

// User is the credential record owned by the credential store.
type User struct {
	ID           string
	Username     string
	PasswordHash string
	Roles        []string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// HasRole reports whether the user holds role.
func (u *User) HasRole(role string) bool {
	for _, r := range u.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// NormalizeRoles trims, de-duplicates and defaults a requested role set.
func NormalizeRoles(roles []string) []string {
	seen := make(map[string]struct{}, len(roles))
	out := make([]string, 0, len(roles))
	for _, role := range roles {
		if role == "" {
			continue
		}
		if _, dup := seen[role]; dup {
			continue
		}
		seen[role] = struct{}{}
		out = append(out, role)
	}
	if len(out) == 0 {
		return []string{RoleUser}
	}
	return out
}
