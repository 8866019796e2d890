package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gatehouse.dev/internal/obs"
)

// IdentityReader loads identities by id.
type IdentityReader interface {
	IdentityByID(ctx context.Context, id string) (Identity, error)
}

// Coordinator runs refresh token rotation and logout.
type Coordinator struct {
	validator  *Validator
	issuer     *Issuer
	identities IdentityReader
	creds      CredentialStore
	now        func() time.Time
	log        *slog.Logger
}

// NewCoordinator wires the rotation protocol over its collaborators.
func NewCoordinator(v *Validator, iss *Issuer, identities IdentityReader, creds CredentialStore, now func() time.Time, log *slog.Logger) *Coordinator {
	if now == nil {
		now = time.Now
	}
	if log == nil {
		log = obs.Logger()
	}
	return &Coordinator{validator: v, issuer: iss, identities: identities, creds: creds, now: now, log: log}
}

// Refresh exchanges a validly signed, possibly expired access token and an
// active refresh token for a new pair. The refresh token is revoked before
// the new pair is minted, so each value is redeemable at most once.
func (c *Coordinator) Refresh(ctx context.Context, accessToken, refreshValue string) (AuthResult, error) {
	res, err := c.refresh(ctx, accessToken, refreshValue)
	obs.ObserveRefresh(refreshOutcome(err))
	return res, err
}

func (c *Coordinator) refresh(ctx context.Context, accessToken, refreshValue string) (AuthResult, error) {
	claims, err := c.validator.ParseIgnoringExpiry(accessToken)
	if err != nil {
		return AuthResult{}, refreshFailure(ReasonInvalidToken, ErrInvalidToken)
	}
	subject := claims.SubjectID

	record, err := c.creds.FindRefreshToken(ctx, HashRefreshToken(refreshValue))
	switch {
	case errors.Is(err, ErrNotFound):
		return AuthResult{}, refreshFailure(ReasonInvalidRefreshToken, ErrInvalidCredential)
	case err != nil:
		return AuthResult{}, &RefreshError{Reason: "lookup refresh token", Err: err}
	}

	now := c.now().UTC()
	if record.IdentityID != subject || !record.IsActive(now) {
		c.log.WarnContext(ctx, "refresh rejected",
			"identity_id", subject,
			"token_id", record.ID,
			"revoked", record.IsRevoked(),
			"expired", record.IsExpired(now),
			"subject_match", record.IdentityID == subject,
		)
		return AuthResult{}, refreshFailure(ReasonInvalidRefreshToken, ErrInvalidCredential)
	}

	revoked, err := c.creds.RevokeIfActive(ctx, record.ID, now)
	if err != nil {
		return AuthResult{}, &RefreshError{Reason: "revoke refresh token", Err: err}
	}
	if !revoked {
		c.log.WarnContext(ctx, "refresh lost rotation race", "identity_id", subject, "token_id", record.ID)
		return AuthResult{}, refreshFailure(ReasonInvalidRefreshToken, ErrInvalidCredential)
	}

	identity, err := c.identities.IdentityByID(ctx, subject)
	switch {
	case errors.Is(err, ErrNotFound):
		return AuthResult{}, refreshFailure(ReasonUserNotFound, ErrNotFound)
	case err != nil:
		return AuthResult{}, &RefreshError{Reason: "load identity", Err: err}
	}
	if !identity.Active {
		return AuthResult{}, refreshFailure(ReasonAccountDeactivated, ErrInvalidCredential)
	}

	pair, minted, err := c.issuer.Issue(ctx, identity)
	if err != nil {
		return AuthResult{}, &RefreshError{Reason: "issue tokens", Err: err}
	}
	c.log.InfoContext(ctx, "refresh token rotated", "identity_id", subject, "revoked_token_id", record.ID)
	return AuthResult{Tokens: pair, User: newUserView(identity, minted)}, nil
}

// Logout revokes the refresh token if it belongs to identityID. Revoking an
// already inactive token succeeds without changing it.
func (c *Coordinator) Logout(ctx context.Context, identityID, refreshValue string) error {
	record, err := c.creds.FindRefreshToken(ctx, HashRefreshToken(refreshValue))
	if errors.Is(err, ErrNotFound) || (err == nil && record.IdentityID != identityID) {
		return fmt.Errorf("%w: refresh token not found", ErrNotFound)
	}
	if err != nil {
		return err
	}
	revoked, err := c.creds.RevokeIfActive(ctx, record.ID, c.now().UTC())
	if err != nil {
		return err
	}
	c.log.InfoContext(ctx, "logout", "identity_id", identityID, "token_id", record.ID, "revoked", revoked)
	return nil
}

func refreshOutcome(err error) string {
	var rerr *RefreshError
	switch {
	case err == nil:
		return "success"
	case errors.As(err, &rerr) && rerr.Reason == ReasonInvalidToken:
		return "invalid_token"
	case errors.As(err, &rerr) && rerr.Reason == ReasonInvalidRefreshToken:
		return "invalid_refresh_token"
	case errors.Is(err, ErrNotFound):
		return "user_not_found"
	case errors.Is(err, ErrInvalidCredential):
		return "deactivated"
	default:
		return "error"
	}
}
