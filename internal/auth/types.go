package auth

import "time"

// Identity is a registered account.
type Identity struct {
	ID           string
	Email        string
	FirstName    string
	LastName     string
	PasswordHash string
	Active       bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Role groups permissions. Names are unique and case-sensitive.
type Role struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Permission is a fine-grained capability.
type Permission struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// RoleAssignment links an identity to a role.
type RoleAssignment struct {
	IdentityID string
	RoleID     string
	CreatedAt  time.Time
}

// RolePermissionGrant links a role to a permission.
type RolePermissionGrant struct {
	RoleID       string
	PermissionID string
}

// RefreshToken is a persisted refresh credential. Only the SHA-256 digest of
// the issued value is stored.
type RefreshToken struct {
	ID         string
	IdentityID string
	TokenHash  string
	IssuedAt   time.Time
	ExpiresAt  time.Time
	RevokedAt  *time.Time
}

// IsExpired reports whether the token lifetime has elapsed at now.
func (t RefreshToken) IsExpired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

// IsRevoked reports whether the token was revoked by rotation or logout.
func (t RefreshToken) IsRevoked() bool {
	return t.RevokedAt != nil
}

// IsActive reports whether the token can still be redeemed at now.
func (t RefreshToken) IsActive(now time.Time) bool {
	return !t.IsRevoked() && !t.IsExpired(now)
}

// TokenPair represents access and refresh tokens along with their expirations.
type TokenPair struct {
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

// UserView is the identity summary returned to callers.
type UserView struct {
	ID          string    `json:"id"`
	Email       string    `json:"email"`
	FirstName   string    `json:"first_name"`
	LastName    string    `json:"last_name"`
	Active      bool      `json:"active"`
	Roles       []string  `json:"roles"`
	Permissions []string  `json:"permissions"`
	CreatedAt   time.Time `json:"created_at"`
}

// AuthResult is returned by Register, Login and Refresh.
type AuthResult struct {
	Tokens TokenPair `json:"tokens"`
	User   UserView  `json:"user"`
}

// RoleUpdate carries optional role changes.
type RoleUpdate struct {
	Description *string
}

// RoleDetail is a role with its granted permission names.
type RoleDetail struct {
	Role
	Permissions []string `json:"permissions"`
}

func newUserView(id Identity, claims Claims) UserView {
	return UserView{
		ID:          id.ID,
		Email:       id.Email,
		FirstName:   id.FirstName,
		LastName:    id.LastName,
		Active:      id.Active,
		Roles:       claims.Roles.Values(),
		Permissions: claims.Permissions.Values(),
		CreatedAt:   id.CreatedAt,
	}
}
