package pg

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"gatehouse.dev/internal/auth"
)

func (s *Store) InsertRefreshToken(ctx context.Context, tok auth.RefreshToken) error {
	if s.db == nil {
		return errNoDB
	}
	_, err := s.db.ExecContext(ctx, `
		insert into refresh_tokens (id, user_id, token_hash, issued_at, expires_at, revoked_at)
		values ($1, $2, $3, $4, $5, $6)
	`, tok.ID, tok.IdentityID, tok.TokenHash, tok.IssuedAt.UTC(), tok.ExpiresAt.UTC(), nullTime(tok.RevokedAt))
	if err != nil {
		return mapConstraint(err, auth.ErrNotFound)
	}
	return nil
}

func (s *Store) FindRefreshToken(ctx context.Context, tokenHash string) (auth.RefreshToken, error) {
	if s.db == nil {
		return auth.RefreshToken{}, errNoDB
	}
	var (
		tok     auth.RefreshToken
		revoked sql.NullTime
	)
	err := s.db.QueryRowContext(ctx, `
		select id, user_id, token_hash, issued_at, expires_at, revoked_at
		from refresh_tokens
		where token_hash = $1
	`, tokenHash).Scan(&tok.ID, &tok.IdentityID, &tok.TokenHash, &tok.IssuedAt, &tok.ExpiresAt, &revoked)
	if errors.Is(err, sql.ErrNoRows) {
		return auth.RefreshToken{}, auth.ErrNotFound
	}
	if err != nil {
		return auth.RefreshToken{}, err
	}
	if revoked.Valid {
		at := revoked.Time.UTC()
		tok.RevokedAt = &at
	}
	tok.IssuedAt = tok.IssuedAt.UTC()
	tok.ExpiresAt = tok.ExpiresAt.UTC()
	return tok, nil
}

// RevokeIfActive relies on the conditional update being atomic per row: of
// several concurrent callers only one observes an affected row.
func (s *Store) RevokeIfActive(ctx context.Context, id string, at time.Time) (bool, error) {
	if s.db == nil {
		return false, errNoDB
	}
	res, err := s.db.ExecContext(ctx, `
		update refresh_tokens
		set revoked_at = $2
		where id = $1 and revoked_at is null and expires_at > $2
	`, id, at.UTC())
	if err != nil {
		return false, err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return aff == 1, nil
}

func (s *Store) RevokeAllForIdentity(ctx context.Context, identityID string, at time.Time) (int, error) {
	if s.db == nil {
		return 0, errNoDB
	}
	res, err := s.db.ExecContext(ctx, `
		update refresh_tokens
		set revoked_at = $2
		where user_id = $1 and revoked_at is null and expires_at > $2
	`, identityID, at.UTC())
	if err != nil {
		return 0, err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(aff), nil
}
