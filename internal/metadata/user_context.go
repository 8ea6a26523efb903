package metadata

// RoleAdmin grants access to everything.
const RoleAdmin = "admin"

// UserContext identifies the acting user for a request. The auth middleware
// builds it from token claims; the mapper reads the ID into updated-by fields.
type UserContext struct {
	ID    string   `json:"id"`
	Roles []string `json:"roles"`
}

// HasRole reports whether the user carries the given role.
func (u *UserContext) HasRole(role string) bool {
	for _, r := range u.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// IsAdmin reports whether the user carries the admin role.
func (u *UserContext) IsAdmin() bool {
	return u.HasRole(RoleAdmin)
}
