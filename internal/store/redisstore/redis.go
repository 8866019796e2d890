// Package redisstore keeps refresh token records in Redis. It implements
// auth.CredentialStore only; identities and roles stay in the primary store.
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"gatehouse.dev/internal/auth"
)

const defaultPrefix = "gatehouse"

var _ auth.CredentialStore = (*Store)(nil)

// Record fields are stored in a hash. Times are unix microseconds and an
// empty revoked_at means the record is not revoked.
const (
	fieldIdentity  = "identity_id"
	fieldHash      = "token_hash"
	fieldIssuedAt  = "issued_at"
	fieldExpiresAt = "expires_at"
	fieldRevokedAt = "revoked_at"
)

var insertLua = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 1 or redis.call("EXISTS", KEYS[2]) == 1 then
  return 0
end
redis.call("HSET", KEYS[1],
  "identity_id", ARGV[2],
  "token_hash", ARGV[3],
  "issued_at", ARGV[4],
  "expires_at", ARGV[5],
  "revoked_at", ARGV[6])
redis.call("SET", KEYS[2], ARGV[1])
redis.call("SADD", KEYS[3], ARGV[1])
return 1
`)

// revokeLua sets revoked_at only when the record exists, is not revoked and
// has not expired at ARGV[1]. Returns 1 when this call revoked it.
var revokeLua = redis.NewScript(`
local revoked = redis.call("HGET", KEYS[1], "revoked_at")
if not revoked or revoked ~= "" then
  return 0
end
local expires = tonumber(redis.call("HGET", KEYS[1], "expires_at"))
if not expires or expires <= tonumber(ARGV[1]) then
  return 0
end
redis.call("HSET", KEYS[1], "revoked_at", ARGV[1])
return 1
`)

// Config contains configuration options for the Redis credential store.
type Config struct {
	Client redis.UniversalClient
	// KeyPrefix namespaces all keys. Default: "gatehouse".
	KeyPrefix string
}

// Store implements auth.CredentialStore on Redis.
type Store struct {
	client redis.UniversalClient
	prefix string
}

// New creates a Redis-backed credential store.
func New(cfg Config) (*Store, error) {
	if cfg.Client == nil {
		return nil, errors.New("redis client is required")
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = defaultPrefix
	}
	return &Store{client: cfg.Client, prefix: cfg.KeyPrefix}, nil
}

// Ping reports whether Redis is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *Store) recordKey(id string) string   { return s.prefix + ":rt:" + id }
func (s *Store) hashKey(hash string) string   { return s.prefix + ":rth:" + hash }
func (s *Store) identityKey(id string) string { return s.prefix + ":rtu:" + id }

func (s *Store) InsertRefreshToken(ctx context.Context, tok auth.RefreshToken) error {
	revoked := ""
	if tok.RevokedAt != nil {
		revoked = micros(*tok.RevokedAt)
	}
	keys := []string{s.recordKey(tok.ID), s.hashKey(tok.TokenHash), s.identityKey(tok.IdentityID)}
	n, err := insertLua.Run(ctx, s.client, keys,
		tok.ID, tok.IdentityID, tok.TokenHash, micros(tok.IssuedAt), micros(tok.ExpiresAt), revoked,
	).Int()
	if err != nil {
		return fmt.Errorf("insert refresh token: %w", err)
	}
	if n == 0 {
		return auth.ErrConflict
	}
	return nil
}

func (s *Store) FindRefreshToken(ctx context.Context, tokenHash string) (auth.RefreshToken, error) {
	id, err := s.client.Get(ctx, s.hashKey(tokenHash)).Result()
	if errors.Is(err, redis.Nil) {
		return auth.RefreshToken{}, auth.ErrNotFound
	}
	if err != nil {
		return auth.RefreshToken{}, fmt.Errorf("lookup refresh token: %w", err)
	}
	fields, err := s.client.HGetAll(ctx, s.recordKey(id)).Result()
	if err != nil {
		return auth.RefreshToken{}, fmt.Errorf("load refresh token: %w", err)
	}
	if len(fields) == 0 {
		return auth.RefreshToken{}, auth.ErrNotFound
	}
	return decodeRecord(id, fields)
}

func (s *Store) RevokeIfActive(ctx context.Context, id string, at time.Time) (bool, error) {
	n, err := revokeLua.Run(ctx, s.client, []string{s.recordKey(id)}, micros(at)).Int()
	if err != nil {
		return false, fmt.Errorf("revoke refresh token: %w", err)
	}
	return n == 1, nil
}

func (s *Store) RevokeAllForIdentity(ctx context.Context, identityID string, at time.Time) (int, error) {
	ids, err := s.client.SMembers(ctx, s.identityKey(identityID)).Result()
	if err != nil {
		return 0, fmt.Errorf("list refresh tokens: %w", err)
	}
	revoked := 0
	for _, id := range ids {
		ok, err := s.RevokeIfActive(ctx, id, at)
		if err != nil {
			return revoked, err
		}
		if ok {
			revoked++
		}
	}
	return revoked, nil
}

func decodeRecord(id string, fields map[string]string) (auth.RefreshToken, error) {
	issued, err := parseMicros(fields[fieldIssuedAt])
	if err != nil {
		return auth.RefreshToken{}, fmt.Errorf("decode issued_at: %w", err)
	}
	expires, err := parseMicros(fields[fieldExpiresAt])
	if err != nil {
		return auth.RefreshToken{}, fmt.Errorf("decode expires_at: %w", err)
	}
	tok := auth.RefreshToken{
		ID:         id,
		IdentityID: fields[fieldIdentity],
		TokenHash:  fields[fieldHash],
		IssuedAt:   issued,
		ExpiresAt:  expires,
	}
	if raw := fields[fieldRevokedAt]; raw != "" {
		at, err := parseMicros(raw)
		if err != nil {
			return auth.RefreshToken{}, fmt.Errorf("decode revoked_at: %w", err)
		}
		tok.RevokedAt = &at
	}
	return tok, nil
}

func micros(t time.Time) string {
	return strconv.FormatInt(t.UnixMicro(), 10)
}

func parseMicros(raw string) (time.Time, error) {
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.UnixMicro(v).UTC(), nil
}
