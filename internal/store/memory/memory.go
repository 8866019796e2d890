// Package memory keeps identities, roles and refresh tokens in process memory.
// Relations live in edge tables keyed by id.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"gatehouse.dev/internal/auth"
	"gatehouse.dev/internal/ids"
)

var _ auth.Store = (*Store)(nil)

// Store implements auth.Store with in-process concurrency safety.
type Store struct {
	mu sync.RWMutex

	identities map[string]auth.Identity
	byEmail    map[string]string

	roles      map[string]auth.Role
	roleByName map[string]string

	permissions map[string]auth.Permission
	permByName  map[string]string

	assignments map[string]map[string]time.Time // identity -> role -> assigned at
	grants      map[string]map[string]struct{}  // role -> permission

	tokens      map[string]auth.RefreshToken
	tokenByHash map[string]string
}

// New returns an empty store.
func New() *Store {
	return &Store{
		identities:  make(map[string]auth.Identity),
		byEmail:     make(map[string]string),
		roles:       make(map[string]auth.Role),
		roleByName:  make(map[string]string),
		permissions: make(map[string]auth.Permission),
		permByName:  make(map[string]string),
		assignments: make(map[string]map[string]time.Time),
		grants:      make(map[string]map[string]struct{}),
		tokens:      make(map[string]auth.RefreshToken),
		tokenByHash: make(map[string]string),
	}
}

func (s *Store) CreateIdentity(_ context.Context, id auth.Identity, roleIDs ...string) (auth.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	email := strings.ToLower(strings.TrimSpace(id.Email))
	if _, ok := s.byEmail[email]; ok {
		return auth.Identity{}, auth.ErrConflict
	}
	for _, rid := range roleIDs {
		if _, ok := s.roles[rid]; !ok {
			return auth.Identity{}, auth.ErrNotFound
		}
	}
	if id.ID == "" {
		id.ID = ids.New()
	}
	now := time.Now().UTC()
	if id.CreatedAt.IsZero() {
		id.CreatedAt = now
	}
	if id.UpdatedAt.IsZero() {
		id.UpdatedAt = id.CreatedAt
	}
	id.Email = email
	s.identities[id.ID] = id
	s.byEmail[email] = id.ID
	if len(roleIDs) > 0 {
		held := make(map[string]time.Time, len(roleIDs))
		for _, rid := range roleIDs {
			held[rid] = now
		}
		s.assignments[id.ID] = held
	}
	return id, nil
}

func (s *Store) IdentityByID(_ context.Context, id string) (auth.Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ident, ok := s.identities[id]
	if !ok {
		return auth.Identity{}, auth.ErrNotFound
	}
	return ident, nil
}

func (s *Store) IdentityByEmail(_ context.Context, email string) (auth.Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byEmail[strings.ToLower(strings.TrimSpace(email))]
	if !ok {
		return auth.Identity{}, auth.ErrNotFound
	}
	return s.identities[id], nil
}

func (s *Store) SetIdentityActive(_ context.Context, id string, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ident, ok := s.identities[id]
	if !ok {
		return auth.ErrNotFound
	}
	ident.Active = active
	ident.UpdatedAt = time.Now().UTC()
	s.identities[id] = ident
	return nil
}

func (s *Store) CreateRole(_ context.Context, role auth.Role) (auth.Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.roleByName[role.Name]; ok {
		return auth.Role{}, auth.ErrConflict
	}
	if role.ID == "" {
		role.ID = ids.New()
	}
	if role.CreatedAt.IsZero() {
		role.CreatedAt = time.Now().UTC()
		role.UpdatedAt = role.CreatedAt
	}
	s.roles[role.ID] = role
	s.roleByName[role.Name] = role.ID
	return role, nil
}

func (s *Store) RoleByID(_ context.Context, id string) (auth.Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	role, ok := s.roles[id]
	if !ok {
		return auth.Role{}, auth.ErrNotFound
	}
	return role, nil
}

func (s *Store) RoleByName(_ context.Context, name string) (auth.Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.roleByName[name]
	if !ok {
		return auth.Role{}, auth.ErrNotFound
	}
	return s.roles[id], nil
}

func (s *Store) ListRoles(_ context.Context) ([]auth.Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]auth.Role, 0, len(s.roles))
	for _, r := range s.roles {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) UpdateRole(_ context.Context, id string, upd auth.RoleUpdate) (auth.Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	role, ok := s.roles[id]
	if !ok {
		return auth.Role{}, auth.ErrNotFound
	}
	if upd.Description != nil {
		role.Description = *upd.Description
	}
	role.UpdatedAt = time.Now().UTC()
	s.roles[id] = role
	return role, nil
}

func (s *Store) DeleteRole(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	role, ok := s.roles[id]
	if !ok {
		return auth.ErrNotFound
	}
	for _, held := range s.assignments {
		if _, ok := held[id]; ok {
			return auth.ErrConflict
		}
	}
	delete(s.roles, id)
	delete(s.roleByName, role.Name)
	delete(s.grants, id)
	return nil
}

func (s *Store) SetRolePermissions(_ context.Context, roleID string, permissionIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.roles[roleID]; !ok {
		return auth.ErrNotFound
	}
	set := make(map[string]struct{}, len(permissionIDs))
	for _, pid := range permissionIDs {
		if _, ok := s.permissions[pid]; !ok {
			return auth.ErrNotFound
		}
		set[pid] = struct{}{}
	}
	s.grants[roleID] = set
	return nil
}

func (s *Store) AssignRole(_ context.Context, identityID, roleID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkEdgeLocked(identityID, roleID); err != nil {
		return err
	}
	held := s.assignments[identityID]
	if held == nil {
		held = make(map[string]time.Time)
		s.assignments[identityID] = held
	}
	if _, ok := held[roleID]; !ok {
		held[roleID] = time.Now().UTC()
	}
	return nil
}

func (s *Store) SetIdentityRoles(_ context.Context, identityID string, roleIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.identities[identityID]; !ok {
		return auth.ErrNotFound
	}
	prev := s.assignments[identityID]
	next := make(map[string]time.Time, len(roleIDs))
	now := time.Now().UTC()
	for _, rid := range roleIDs {
		if _, ok := s.roles[rid]; !ok {
			return auth.ErrNotFound
		}
		if at, ok := prev[rid]; ok {
			next[rid] = at
			continue
		}
		next[rid] = now
	}
	s.assignments[identityID] = next
	return nil
}

func (s *Store) IdentitiesWithRole(_ context.Context, roleID string) ([]auth.Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []auth.Identity
	for identityID, held := range s.assignments {
		if _, ok := held[roleID]; ok {
			out = append(out, s.identities[identityID])
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Email < out[j].Email })
	return out, nil
}

func (s *Store) EnsurePermissions(_ context.Context, perms []auth.Permission) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range perms {
		if _, ok := s.permByName[p.Name]; ok {
			continue
		}
		if p.ID == "" {
			p.ID = ids.New()
		}
		if p.CreatedAt.IsZero() {
			p.CreatedAt = time.Now().UTC()
		}
		s.permissions[p.ID] = p
		s.permByName[p.Name] = p.ID
	}
	return nil
}

func (s *Store) ListPermissions(_ context.Context) ([]auth.Permission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]auth.Permission, 0, len(s.permissions))
	for _, p := range s.permissions {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) RolesForIdentity(_ context.Context, identityID string) ([]auth.Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	held := s.assignments[identityID]
	out := make([]auth.Role, 0, len(held))
	for rid := range held {
		if role, ok := s.roles[rid]; ok {
			out = append(out, role)
		}
	}
	return out, nil
}

func (s *Store) PermissionsForRoles(_ context.Context, roleIDs []string) ([]auth.Permission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := make(map[string]struct{})
	var out []auth.Permission
	for _, rid := range roleIDs {
		for pid := range s.grants[rid] {
			if _, dup := seen[pid]; dup {
				continue
			}
			seen[pid] = struct{}{}
			out = append(out, s.permissions[pid])
		}
	}
	return out, nil
}

func (s *Store) InsertRefreshToken(_ context.Context, tok auth.RefreshToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tokens[tok.ID]; ok {
		return auth.ErrConflict
	}
	if _, ok := s.tokenByHash[tok.TokenHash]; ok {
		return auth.ErrConflict
	}
	s.tokens[tok.ID] = tok
	s.tokenByHash[tok.TokenHash] = tok.ID
	return nil
}

func (s *Store) FindRefreshToken(_ context.Context, tokenHash string) (auth.RefreshToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.tokenByHash[tokenHash]
	if !ok {
		return auth.RefreshToken{}, auth.ErrNotFound
	}
	return copyToken(s.tokens[id]), nil
}

func (s *Store) RevokeIfActive(_ context.Context, id string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tok, ok := s.tokens[id]
	if !ok || !tok.IsActive(at) {
		return false, nil
	}
	revokedAt := at
	tok.RevokedAt = &revokedAt
	s.tokens[id] = tok
	return true, nil
}

func (s *Store) RevokeAllForIdentity(_ context.Context, identityID string, at time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, tok := range s.tokens {
		if tok.IdentityID != identityID || !tok.IsActive(at) {
			continue
		}
		revokedAt := at
		tok.RevokedAt = &revokedAt
		s.tokens[id] = tok
		n++
	}
	return n, nil
}

func (s *Store) checkEdgeLocked(identityID, roleID string) error {
	if _, ok := s.identities[identityID]; !ok {
		return auth.ErrNotFound
	}
	if _, ok := s.roles[roleID]; !ok {
		return auth.ErrNotFound
	}
	return nil
}

func copyToken(t auth.RefreshToken) auth.RefreshToken {
	if t.RevokedAt != nil {
		at := *t.RevokedAt
		t.RevokedAt = &at
	}
	return t
}
