package auth_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gatehouse.dev/internal/auth"
	"gatehouse.dev/internal/store/memory"
)

func TestBootstrapIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	opts := auth.BootstrapOptions{AdminEmail: "Root@Example.com", AdminPassword: "bootstrap-password"}

	require.NoError(t, auth.Bootstrap(ctx, store, opts))
	require.NoError(t, auth.Bootstrap(ctx, store, opts))

	roles, err := store.ListRoles(ctx)
	require.NoError(t, err)
	assert.Len(t, roles, len(auth.BuiltinRoles))

	perms, err := store.ListPermissions(ctx)
	require.NoError(t, err)
	assert.Len(t, perms, len(auth.BuiltinPermissions))

	admin, err := store.IdentityByEmail(ctx, "root@example.com")
	require.NoError(t, err)
	require.NoError(t, auth.VerifyPassword(admin.PasswordHash, "bootstrap-password"))

	g, err := auth.NewResolver(store).Resolve(ctx, admin.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{auth.RoleAdmin}, g.Roles.Values())
	assert.Equal(t, len(auth.BuiltinPermissions), g.Permissions.Len())
	assert.True(t, g.Permissions.Has(auth.PermRolesManage))
}

func TestBootstrapRejectsWeakAdminPassword(t *testing.T) {
	err := auth.Bootstrap(context.Background(), memory.New(), auth.BootstrapOptions{
		AdminEmail:    "root@example.com",
		AdminPassword: "short",
	})
	require.ErrorIs(t, err, auth.ErrValidation)
}
