package auth

import (
	"context"
	"fmt"
)

// Grants holds the effective roles and permissions of an identity.
type Grants struct {
	Roles       Set
	Permissions Set
}

// Resolver computes effective roles and permissions from the assignment and
// grant edges. It holds no state of its own.
type Resolver struct {
	grants GrantReader
}

// NewResolver constructs a Resolver over the given edge reader.
func NewResolver(grants GrantReader) *Resolver {
	return &Resolver{grants: grants}
}

// ResolveRoles returns the names of the roles assigned to identityID.
func (r *Resolver) ResolveRoles(ctx context.Context, identityID string) (Set, error) {
	roles, err := r.grants.RolesForIdentity(ctx, identityID)
	if err != nil {
		return Set{}, fmt.Errorf("resolve roles: %w", err)
	}
	names := make([]string, 0, len(roles))
	for _, role := range roles {
		names = append(names, role.Name)
	}
	return NewSet(names...), nil
}

// ResolvePermissions returns the union of permissions granted by the roles
// assigned to identityID.
func (r *Resolver) ResolvePermissions(ctx context.Context, identityID string) (Set, error) {
	g, err := r.Resolve(ctx, identityID)
	if err != nil {
		return Set{}, err
	}
	return g.Permissions, nil
}

// Resolve computes roles and permissions with one assignment scan and one
// grant scan.
func (r *Resolver) Resolve(ctx context.Context, identityID string) (Grants, error) {
	roles, err := r.grants.RolesForIdentity(ctx, identityID)
	if err != nil {
		return Grants{}, fmt.Errorf("resolve roles: %w", err)
	}
	if len(roles) == 0 {
		return Grants{}, nil
	}
	roleIDs := make([]string, 0, len(roles))
	names := make([]string, 0, len(roles))
	for _, role := range roles {
		roleIDs = append(roleIDs, role.ID)
		names = append(names, role.Name)
	}
	perms, err := r.grants.PermissionsForRoles(ctx, roleIDs)
	if err != nil {
		return Grants{}, fmt.Errorf("resolve permissions: %w", err)
	}
	permNames := make([]string, 0, len(perms))
	for _, p := range perms {
		permNames = append(permNames, p.Name)
	}
	return Grants{Roles: NewSet(names...), Permissions: NewSet(permNames...)}, nil
}
