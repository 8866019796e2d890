package auth

import (
	"context"
	"time"
)

// Store describes persistence operations required by the auth subsystem.
type Store interface {
	IdentityStore
	RoleStore
	PermissionStore
	GrantReader
	CredentialStore
}

// IdentityStore manages accounts. Emails are stored lower-cased and unique.
type IdentityStore interface {
	// CreateIdentity inserts id together with its initial role assignments.
	// Either all of them are stored or none is.
	CreateIdentity(ctx context.Context, id Identity, roleIDs ...string) (Identity, error)
	IdentityByID(ctx context.Context, id string) (Identity, error)
	IdentityByEmail(ctx context.Context, email string) (Identity, error)
	SetIdentityActive(ctx context.Context, id string, active bool) error
}

// RoleStore manages roles and the assignment and grant edges.
type RoleStore interface {
	CreateRole(ctx context.Context, role Role) (Role, error)
	RoleByID(ctx context.Context, id string) (Role, error)
	RoleByName(ctx context.Context, name string) (Role, error)
	ListRoles(ctx context.Context) ([]Role, error)
	UpdateRole(ctx context.Context, id string, upd RoleUpdate) (Role, error)
	DeleteRole(ctx context.Context, id string) error

	SetRolePermissions(ctx context.Context, roleID string, permissionIDs []string) error
	AssignRole(ctx context.Context, identityID, roleID string) error
	SetIdentityRoles(ctx context.Context, identityID string, roleIDs []string) error
	IdentitiesWithRole(ctx context.Context, roleID string) ([]Identity, error)
}

// PermissionStore manages the permission catalog.
type PermissionStore interface {
	EnsurePermissions(ctx context.Context, perms []Permission) error
	ListPermissions(ctx context.Context) ([]Permission, error)
}

// GrantReader exposes the two edge scans used for permission resolution.
type GrantReader interface {
	// RolesForIdentity returns the roles assigned to the identity. Unknown
	// identities yield an empty result.
	RolesForIdentity(ctx context.Context, identityID string) ([]Role, error)
	// PermissionsForRoles returns the permissions granted to any of roleIDs.
	PermissionsForRoles(ctx context.Context, roleIDs []string) ([]Permission, error)
}

// CredentialStore exclusively owns refresh token records. Records are never
// deleted; revocation only sets RevokedAt.
type CredentialStore interface {
	InsertRefreshToken(ctx context.Context, tok RefreshToken) error
	// FindRefreshToken looks a record up by the digest of its value.
	FindRefreshToken(ctx context.Context, tokenHash string) (RefreshToken, error)
	// RevokeIfActive sets RevokedAt to at only when the record is neither
	// revoked nor expired at at. It reports whether this call revoked it.
	RevokeIfActive(ctx context.Context, id string, at time.Time) (bool, error)
	// RevokeAllForIdentity revokes every active record of the identity.
	RevokeAllForIdentity(ctx context.Context, identityID string, at time.Time) (int, error)
}
