package auth

import "fmt"

// HasRole reports whether claims carry role. Matching is exact.
func HasRole(c Claims, role string) bool {
	return c.Roles.Has(role)
}

// HasAnyPermission reports whether claims carry at least one of perms.
func HasAnyPermission(c Claims, perms ...string) bool {
	return c.Permissions.Intersects(perms...)
}

// Requirement gates access on roles or permissions. It is satisfied when the
// principal holds any listed role or any listed permission. The zero value
// admits any authenticated principal.
type Requirement struct {
	AnyRole       []string
	AnyPermission []string
}

// RequireRole builds a requirement satisfied by any of roles.
func RequireRole(roles ...string) Requirement {
	return Requirement{AnyRole: roles}
}

// RequirePermission builds a requirement satisfied by any of perms.
func RequirePermission(perms ...string) Requirement {
	return Requirement{AnyPermission: perms}
}

// IsZero reports whether the requirement lists nothing.
func (r Requirement) IsZero() bool {
	return len(r.AnyRole) == 0 && len(r.AnyPermission) == 0
}

// Allows reports whether claims satisfy the requirement.
func (r Requirement) Allows(c Claims) bool {
	if r.IsZero() {
		return true
	}
	for _, role := range r.AnyRole {
		if HasRole(c, role) {
			return true
		}
	}
	return HasAnyPermission(c, r.AnyPermission...)
}

// Authorize returns ErrForbidden when claims do not satisfy req.
func Authorize(c Claims, req Requirement) error {
	if req.Allows(c) {
		return nil
	}
	return fmt.Errorf("%w: subject %s lacks required role or permission", ErrForbidden, c.SubjectID)
}
