package auth

import (
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"gatehouse.dev/internal/ids"
)

// Validator verifies access tokens signed by an Issuer sharing the same config.
type Validator struct {
	cfg     TokenConfig
	lenient *jwt.Parser
	strict  *jwt.Parser
}

// NewValidator constructs a Validator. now defaults to time.Now.
func NewValidator(cfg TokenConfig, now func() time.Time) (*Validator, error) {
	cfg, err := cfg.normalize()
	if err != nil {
		return nil, err
	}
	if now == nil {
		now = time.Now
	}
	methods := []string{signingMethod.Alg()}
	return &Validator{
		cfg: cfg,
		lenient: jwt.NewParser(
			jwt.WithValidMethods(methods),
			jwt.WithoutClaimsValidation(),
		),
		strict: jwt.NewParser(
			jwt.WithValidMethods(methods),
			jwt.WithExpirationRequired(),
			jwt.WithIssuer(cfg.Issuer),
			jwt.WithAudience(cfg.Audience),
			jwt.WithTimeFunc(now),
		),
	}, nil
}

// ParseIgnoringExpiry verifies signature and algorithm but skips lifetime,
// issuer and audience checks. It exists for the refresh flow only.
func (v *Validator) ParseIgnoringExpiry(token string) (Claims, error) {
	return v.parse(v.lenient, token)
}

// Parse fully validates an access token, including expiry.
func (v *Validator) Parse(token string) (Claims, error) {
	return v.parse(v.strict, token)
}

func (v *Validator) parse(p *jwt.Parser, token string) (Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Claims{}, fmt.Errorf("%w: empty token", ErrInvalidToken)
	}
	var payload accessClaims
	parsed, err := p.ParseWithClaims(token, &payload, v.keyFunc)
	if err != nil {
		return Claims{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !parsed.Valid {
		return Claims{}, ErrInvalidToken
	}
	if !ids.Valid(payload.Subject) {
		return Claims{}, fmt.Errorf("%w: malformed subject", ErrInvalidToken)
	}
	return payload.claims(), nil
}

func (v *Validator) keyFunc(t *jwt.Token) (any, error) {
	if t.Method != signingMethod {
		return nil, ErrInvalidToken
	}
	return v.cfg.Secret, nil
}
