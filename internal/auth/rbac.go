package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"gatehouse.dev/internal/obs"
)

const maxRoleNameLength = 100

// RBACService manages roles, grants and assignments.
type RBACService struct {
	store    Store
	creds    CredentialStore
	resolver *Resolver
	now      func() time.Time
	log      *slog.Logger
}

// NewRBACService constructs a standalone RBACService. creds may be nil, in
// which case refresh tokens are revoked through store.
func NewRBACService(store Store, creds CredentialStore) (*RBACService, error) {
	if store == nil {
		return nil, errors.New("rbac store is required")
	}
	if creds == nil {
		creds = store
	}
	return &RBACService{store: store, creds: creds, resolver: NewResolver(store), now: time.Now, log: obs.Logger()}, nil
}

func (s *RBACService) CreateRole(ctx context.Context, name, description string, permissions []string) (RoleDetail, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return RoleDetail{}, fmt.Errorf("%w: role name is required", ErrValidation)
	}
	if len(name) > maxRoleNameLength {
		return RoleDetail{}, fmt.Errorf("%w: role name must be at most %d characters", ErrValidation, maxRoleNameLength)
	}
	permIDs, err := s.permissionIDs(ctx, permissions)
	if err != nil {
		return RoleDetail{}, err
	}
	now := s.now().UTC()
	role, err := s.store.CreateRole(ctx, Role{
		Name:        name,
		Description: strings.TrimSpace(description),
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	if errors.Is(err, ErrConflict) {
		return RoleDetail{}, fmt.Errorf("%w: role %q already exists", ErrConflict, name)
	}
	if err != nil {
		return RoleDetail{}, err
	}
	if len(permIDs) > 0 {
		if err := s.store.SetRolePermissions(ctx, role.ID, permIDs); err != nil {
			return RoleDetail{}, err
		}
	}
	s.log.InfoContext(ctx, "role created", "role_id", role.ID, "name", role.Name, "permissions", len(permIDs))
	return s.detail(ctx, role)
}

func (s *RBACService) UpdateRole(ctx context.Context, id string, upd RoleUpdate) (RoleDetail, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return RoleDetail{}, fmt.Errorf("%w: role_id is required", ErrValidation)
	}
	if upd.Description != nil {
		trimmed := strings.TrimSpace(*upd.Description)
		upd.Description = &trimmed
	}
	role, err := s.store.UpdateRole(ctx, id, upd)
	if err != nil {
		return RoleDetail{}, err
	}
	return s.detail(ctx, role)
}

// SetRolePermissions replaces the permission set granted to a role.
func (s *RBACService) SetRolePermissions(ctx context.Context, roleID string, permissions []string) (RoleDetail, error) {
	roleID = strings.TrimSpace(roleID)
	if roleID == "" {
		return RoleDetail{}, fmt.Errorf("%w: role_id is required", ErrValidation)
	}
	role, err := s.store.RoleByID(ctx, roleID)
	if err != nil {
		return RoleDetail{}, err
	}
	permIDs, err := s.permissionIDs(ctx, permissions)
	if err != nil {
		return RoleDetail{}, err
	}
	if err := s.store.SetRolePermissions(ctx, role.ID, permIDs); err != nil {
		return RoleDetail{}, err
	}
	s.log.InfoContext(ctx, "role permissions replaced", "role_id", role.ID, "count", len(permIDs))
	return s.detail(ctx, role)
}

// DeleteRole removes a role that no identity holds.
func (s *RBACService) DeleteRole(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("%w: role_id is required", ErrValidation)
	}
	if _, err := s.store.RoleByID(ctx, id); err != nil {
		return err
	}
	holders, err := s.store.IdentitiesWithRole(ctx, id)
	if err != nil {
		return err
	}
	if len(holders) > 0 {
		return fmt.Errorf("%w: cannot delete role that is assigned to users", ErrConflict)
	}
	return s.store.DeleteRole(ctx, id)
}

func (s *RBACService) Role(ctx context.Context, id string) (RoleDetail, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return RoleDetail{}, fmt.Errorf("%w: role_id is required", ErrValidation)
	}
	role, err := s.store.RoleByID(ctx, id)
	if err != nil {
		return RoleDetail{}, err
	}
	return s.detail(ctx, role)
}

func (s *RBACService) RoleByName(ctx context.Context, name string) (RoleDetail, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return RoleDetail{}, fmt.Errorf("%w: role name is required", ErrValidation)
	}
	role, err := s.store.RoleByName(ctx, name)
	if err != nil {
		return RoleDetail{}, err
	}
	return s.detail(ctx, role)
}

func (s *RBACService) Roles(ctx context.Context) ([]RoleDetail, error) {
	roles, err := s.store.ListRoles(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]RoleDetail, 0, len(roles))
	for _, role := range roles {
		d, err := s.detail(ctx, role)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

func (s *RBACService) Permissions(ctx context.Context) ([]Permission, error) {
	perms, err := s.store.ListPermissions(ctx)
	if err != nil {
		return nil, err
	}
	sort.Slice(perms, func(i, j int) bool { return perms[i].Name < perms[j].Name })
	return perms, nil
}

// UsersByRole lists the identities holding the named role.
func (s *RBACService) UsersByRole(ctx context.Context, roleName string) ([]UserView, error) {
	roleName = strings.TrimSpace(roleName)
	if roleName == "" {
		return nil, fmt.Errorf("%w: role name is required", ErrValidation)
	}
	role, err := s.store.RoleByName(ctx, roleName)
	if err != nil {
		return nil, err
	}
	holders, err := s.store.IdentitiesWithRole(ctx, role.ID)
	if err != nil {
		return nil, err
	}
	out := make([]UserView, 0, len(holders))
	for _, id := range holders {
		view, err := s.view(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, view)
	}
	return out, nil
}

// SetUserRoles replaces the roles assigned to an identity.
func (s *RBACService) SetUserRoles(ctx context.Context, identityID string, roleNames []string) (UserView, error) {
	identityID = strings.TrimSpace(identityID)
	if identityID == "" {
		return UserView{}, fmt.Errorf("%w: user_id is required", ErrValidation)
	}
	identity, err := s.store.IdentityByID(ctx, identityID)
	if err != nil {
		return UserView{}, err
	}
	names := dedupeStrings(roleNames)
	roleIDs := make([]string, 0, len(names))
	for _, name := range names {
		role, err := s.store.RoleByName(ctx, name)
		if errors.Is(err, ErrNotFound) {
			return UserView{}, fmt.Errorf("%w: unknown role %q", ErrValidation, name)
		}
		if err != nil {
			return UserView{}, err
		}
		roleIDs = append(roleIDs, role.ID)
	}
	if err := s.store.SetIdentityRoles(ctx, identity.ID, roleIDs); err != nil {
		return UserView{}, err
	}
	s.log.InfoContext(ctx, "user roles replaced", "identity_id", identity.ID, "roles", names)
	return s.view(ctx, identity)
}

// SetUserActive toggles an identity. Deactivation revokes its refresh tokens.
func (s *RBACService) SetUserActive(ctx context.Context, identityID string, active bool) (UserView, error) {
	identityID = strings.TrimSpace(identityID)
	if identityID == "" {
		return UserView{}, fmt.Errorf("%w: user_id is required", ErrValidation)
	}
	if err := s.store.SetIdentityActive(ctx, identityID, active); err != nil {
		return UserView{}, err
	}
	if !active {
		n, err := s.creds.RevokeAllForIdentity(ctx, identityID, s.now().UTC())
		if err != nil {
			return UserView{}, err
		}
		s.log.InfoContext(ctx, "identity deactivated", "identity_id", identityID, "revoked_tokens", n)
	}
	return s.User(ctx, identityID)
}

// User returns the identity summary with its effective grants.
func (s *RBACService) User(ctx context.Context, identityID string) (UserView, error) {
	identityID = strings.TrimSpace(identityID)
	if identityID == "" {
		return UserView{}, fmt.Errorf("%w: user_id is required", ErrValidation)
	}
	identity, err := s.store.IdentityByID(ctx, identityID)
	if err != nil {
		return UserView{}, err
	}
	return s.view(ctx, identity)
}

func (s *RBACService) view(ctx context.Context, identity Identity) (UserView, error) {
	g, err := s.resolver.Resolve(ctx, identity.ID)
	if err != nil {
		return UserView{}, err
	}
	return newUserView(identity, Claims{Roles: g.Roles, Permissions: g.Permissions}), nil
}

func (s *RBACService) detail(ctx context.Context, role Role) (RoleDetail, error) {
	perms, err := s.store.PermissionsForRoles(ctx, []string{role.ID})
	if err != nil {
		return RoleDetail{}, err
	}
	names := make([]string, 0, len(perms))
	for _, p := range perms {
		names = append(names, p.Name)
	}
	return RoleDetail{Role: role, Permissions: NewSet(names...).Values()}, nil
}

// permissionIDs maps permission names to ids, rejecting unknown names.
func (s *RBACService) permissionIDs(ctx context.Context, names []string) ([]string, error) {
	names = dedupeStrings(names)
	if len(names) == 0 {
		return nil, nil
	}
	catalog, err := s.store.ListPermissions(ctx)
	if err != nil {
		return nil, err
	}
	byName := make(map[string]string, len(catalog))
	for _, p := range catalog {
		byName[p.Name] = p.ID
	}
	ids := make([]string, 0, len(names))
	for _, n := range names {
		id, ok := byName[n]
		if !ok {
			return nil, fmt.Errorf("%w: unknown permission %q", ErrValidation, n)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
