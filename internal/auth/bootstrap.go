package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// BootstrapOptions controls the optional initial administrator.
type BootstrapOptions struct {
	AdminEmail    string
	AdminPassword string
}

// Bootstrap ensures the builtin permission catalog and roles exist, grants
// every permission to the Admin role and optionally creates an administrator.
// It is safe to run repeatedly.
func Bootstrap(ctx context.Context, store Store, opts BootstrapOptions) error {
	if err := store.EnsurePermissions(ctx, BuiltinPermissions); err != nil {
		return fmt.Errorf("ensure permissions: %w", err)
	}
	catalog, err := store.ListPermissions(ctx)
	if err != nil {
		return err
	}
	allIDs := make([]string, 0, len(catalog))
	for _, p := range catalog {
		allIDs = append(allIDs, p.ID)
	}

	roles := make(map[string]Role, len(BuiltinRoles))
	for _, r := range BuiltinRoles {
		role, err := ensureRole(ctx, store, r)
		if err != nil {
			return err
		}
		roles[role.Name] = role
	}
	if err := store.SetRolePermissions(ctx, roles[RoleAdmin].ID, allIDs); err != nil {
		return fmt.Errorf("grant admin permissions: %w", err)
	}

	email := strings.ToLower(strings.TrimSpace(opts.AdminEmail))
	if email == "" || opts.AdminPassword == "" {
		return nil
	}
	admin, err := store.IdentityByEmail(ctx, email)
	if errors.Is(err, ErrNotFound) {
		if err := validatePassword(opts.AdminPassword); err != nil {
			return err
		}
		hash, err := HashPassword(opts.AdminPassword)
		if err != nil {
			return err
		}
		now := time.Now().UTC()
		admin, err = store.CreateIdentity(ctx, Identity{
			Email:        email,
			FirstName:    "Admin",
			LastName:     "User",
			PasswordHash: hash,
			Active:       true,
			CreatedAt:    now,
			UpdatedAt:    now,
		}, roles[RoleAdmin].ID)
		if err != nil {
			return fmt.Errorf("create admin: %w", err)
		}
		return nil
	} else if err != nil {
		return err
	}
	return store.AssignRole(ctx, admin.ID, roles[RoleAdmin].ID)
}

func ensureRole(ctx context.Context, store Store, r Role) (Role, error) {
	role, err := store.RoleByName(ctx, r.Name)
	if err == nil {
		return role, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return Role{}, err
	}
	now := time.Now().UTC()
	r.CreatedAt, r.UpdatedAt = now, now
	role, err = store.CreateRole(ctx, r)
	if errors.Is(err, ErrConflict) {
		return store.RoleByName(ctx, r.Name)
	}
	return role, err
}
