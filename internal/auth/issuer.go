package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"gatehouse.dev/internal/ids"
	"gatehouse.dev/internal/obs"
)

// Issuer mints access tokens and persists fresh refresh tokens.
type Issuer struct {
	cfg      TokenConfig
	resolver *Resolver
	creds    CredentialStore
	now      func() time.Time
	random   io.Reader
}

// NewIssuer constructs an Issuer. now defaults to time.Now.
func NewIssuer(cfg TokenConfig, resolver *Resolver, creds CredentialStore, now func() time.Time) (*Issuer, error) {
	cfg, err := cfg.normalize()
	if err != nil {
		return nil, err
	}
	if resolver == nil || creds == nil {
		return nil, fmt.Errorf("auth: issuer requires a resolver and a credential store")
	}
	if now == nil {
		now = time.Now
	}
	return &Issuer{cfg: cfg, resolver: resolver, creds: creds, now: now, random: rand.Reader}, nil
}

// Issue signs an access token for identity and stores a new refresh token.
// It returns the pair together with the claims embedded in the access token.
func (i *Issuer) Issue(ctx context.Context, identity Identity) (TokenPair, Claims, error) {
	grants, err := i.resolver.Resolve(ctx, identity.ID)
	if err != nil {
		return TokenPair{}, Claims{}, err
	}

	now := i.now().UTC()
	payload := accessClaims{
		Email:       identity.Email,
		Roles:       grants.Roles.Values(),
		Permissions: grants.Permissions.Values(),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.cfg.Issuer,
			Subject:   identity.ID,
			Audience:  jwt.ClaimStrings{i.cfg.Audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.cfg.AccessTTL)),
			ID:        uuid.NewString(),
		},
	}
	access, err := jwt.NewWithClaims(signingMethod, payload).SignedString(i.cfg.Secret)
	if err != nil {
		return TokenPair{}, Claims{}, fmt.Errorf("sign access token: %w", err)
	}

	value, err := i.newRefreshValue()
	if err != nil {
		return TokenPair{}, Claims{}, err
	}
	record := RefreshToken{
		ID:         ids.New(),
		IdentityID: identity.ID,
		TokenHash:  HashRefreshToken(value),
		IssuedAt:   now,
		ExpiresAt:  now.Add(i.cfg.RefreshTTL),
	}
	if err := i.creds.InsertRefreshToken(ctx, record); err != nil {
		return TokenPair{}, Claims{}, fmt.Errorf("store refresh token: %w", err)
	}
	obs.TokenIssued()

	claims := payload.claims()
	return TokenPair{
		AccessToken:      access,
		RefreshToken:     value,
		AccessExpiresAt:  claims.ExpiresAt,
		RefreshExpiresAt: record.ExpiresAt,
	}, claims, nil
}

func (i *Issuer) newRefreshValue() (string, error) {
	buf := make([]byte, refreshTokenBytes)
	if _, err := io.ReadFull(i.random, buf); err != nil {
		return "", fmt.Errorf("generate refresh token: %w", err)
	}
	return base64.StdEncoding.EncodeToString(buf), nil
}
