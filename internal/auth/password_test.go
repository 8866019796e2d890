package auth_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"gatehouse.dev/internal/auth"
)

func TestPasswordRoundTrip(t *testing.T) {
	hash, err := auth.HashPassword("s3cret-passw0rd")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(hash, "$argon2id$v=19$"))

	require.NoError(t, auth.VerifyPassword(hash, "s3cret-passw0rd"))
	require.ErrorIs(t, auth.VerifyPassword(hash, "s3cret-passw0rD"), auth.ErrInvalidCredential)

	again, err := auth.HashPassword("s3cret-passw0rd")
	require.NoError(t, err)
	assert.NotEqual(t, hash, again, "salt must differ per hash")
}

func TestPasswordLegacyBcrypt(t *testing.T) {
	raw, err := bcrypt.GenerateFromPassword([]byte("legacy-password"), bcrypt.MinCost)
	require.NoError(t, err)

	require.NoError(t, auth.VerifyPassword(string(raw), "legacy-password"))
	require.ErrorIs(t, auth.VerifyPassword(string(raw), "other"), auth.ErrInvalidCredential)
}

func TestPasswordMalformedHash(t *testing.T) {
	for _, h := range []string{"", "plaintext", "$argon2id$v=19$broken", "$argon2id$v=18$m=1024,t=1,p=1$c2FsdA$aGFzaA"} {
		err := auth.VerifyPassword(h, "whatever")
		require.Error(t, err, h)
		assert.NotErrorIs(t, err, auth.ErrInvalidCredential, h)
	}

	_, err := auth.HashPassword("")
	require.Error(t, err)
}
