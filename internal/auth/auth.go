package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	DefaultIssuer     = "gatehouse"
	DefaultAudience   = "gatehouse-api"
	DefaultAccessTTL  = 60 * time.Minute
	DefaultRefreshTTL = 7 * 24 * time.Hour

	// MinSecretLength is the smallest accepted HS256 key, in bytes.
	MinSecretLength = 32

	refreshTokenBytes = 32
)

var errWeakSecret = errors.New("auth: signing secret must be at least 32 bytes")

// signingMethod is fixed per deployment; tokens declaring anything else are rejected.
var signingMethod = jwt.SigningMethodHS256

// TokenConfig configures access and refresh token issuance. The secret is
// read-only after construction.
type TokenConfig struct {
	Secret     []byte
	Issuer     string
	Audience   string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

func (c TokenConfig) normalize() (TokenConfig, error) {
	if len(c.Secret) < MinSecretLength {
		return TokenConfig{}, errWeakSecret
	}
	secret := make([]byte, len(c.Secret))
	copy(secret, c.Secret)
	c.Secret = secret
	c.Issuer = strings.TrimSpace(c.Issuer)
	if c.Issuer == "" {
		c.Issuer = DefaultIssuer
	}
	c.Audience = strings.TrimSpace(c.Audience)
	if c.Audience == "" {
		c.Audience = DefaultAudience
	}
	if c.AccessTTL <= 0 {
		c.AccessTTL = DefaultAccessTTL
	}
	if c.RefreshTTL <= 0 {
		c.RefreshTTL = DefaultRefreshTTL
	}
	return c, nil
}

// Claims is the verified content of an access token. It is built once per
// mint or parse and never mutated.
type Claims struct {
	SubjectID   string
	Email       string
	TokenID     string
	Roles       Set
	Permissions Set
	IssuedAt    time.Time
	ExpiresAt   time.Time
}

// accessClaims is the JWT payload layout.
type accessClaims struct {
	Email       string   `json:"email"`
	Roles       []string `json:"roles"`
	Permissions []string `json:"permissions"`
	jwt.RegisteredClaims
}

func (c *accessClaims) claims() Claims {
	out := Claims{
		SubjectID:   c.Subject,
		Email:       c.Email,
		TokenID:     c.ID,
		Roles:       NewSet(c.Roles...),
		Permissions: NewSet(c.Permissions...),
	}
	if c.IssuedAt != nil {
		out.IssuedAt = c.IssuedAt.Time.UTC()
	}
	if c.ExpiresAt != nil {
		out.ExpiresAt = c.ExpiresAt.Time.UTC()
	}
	return out
}

// HashRefreshToken returns the digest under which a refresh value is stored.
func HashRefreshToken(value string) string {
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])
}
