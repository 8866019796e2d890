package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"gatehouse.dev/internal/obs"
)

const (
	minPasswordLength = 8
	maxPasswordLength = 128
	maxNameLength     = 100
)

// Service exposes registration, login, token refresh and logout.
type Service struct {
	store       Store
	creds       CredentialStore
	resolver    *Resolver
	issuer      *Issuer
	validator   *Validator
	coordinator *Coordinator
	rbac        *RBACService

	tokens      TokenConfig
	now         func() time.Time
	log         *slog.Logger
	defaultRole string

	dummyOnce sync.Once
	dummyHash string
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service) error

// WithAccessTTL configures access token lifetime.
func WithAccessTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) error {
		if ttl > 0 {
			s.tokens.AccessTTL = ttl
		}
		return nil
	}
}

// WithRefreshTTL configures refresh token lifetime.
func WithRefreshTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) error {
		if ttl > 0 {
			s.tokens.RefreshTTL = ttl
		}
		return nil
	}
}

// WithClock overrides time source (useful for tests).
func WithClock(fn func() time.Time) ServiceOption {
	return func(s *Service) error {
		if fn != nil {
			s.now = fn
		}
		return nil
	}
}

// WithLogger overrides the structured logger.
func WithLogger(l *slog.Logger) ServiceOption {
	return func(s *Service) error {
		if l != nil {
			s.log = l
		}
		return nil
	}
}

// WithCredentialStore keeps refresh tokens outside the primary store.
func WithCredentialStore(cs CredentialStore) ServiceOption {
	return func(s *Service) error {
		if cs == nil {
			return errors.New("auth: credential store is nil")
		}
		s.creds = cs
		return nil
	}
}

// WithDefaultRole sets the role granted on registration. Empty disables it.
func WithDefaultRole(name string) ServiceOption {
	return func(s *Service) error {
		s.defaultRole = strings.TrimSpace(name)
		return nil
	}
}

// NewService constructs Service with optional configuration.
func NewService(store Store, tokens TokenConfig, opts ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, errors.New("auth: store is required")
	}
	svc := &Service{
		store:       store,
		creds:       store,
		tokens:      tokens,
		now:         time.Now,
		log:         obs.Logger(),
		defaultRole: RoleUser,
	}
	for _, opt := range opts {
		if err := opt(svc); err != nil {
			return nil, err
		}
	}

	var err error
	svc.resolver = NewResolver(store)
	if svc.issuer, err = NewIssuer(svc.tokens, svc.resolver, svc.creds, svc.now); err != nil {
		return nil, err
	}
	if svc.validator, err = NewValidator(svc.tokens, svc.now); err != nil {
		return nil, err
	}
	svc.coordinator = NewCoordinator(svc.validator, svc.issuer, store, svc.creds, svc.now, svc.log)
	svc.rbac = &RBACService{store: store, creds: svc.creds, resolver: svc.resolver, now: svc.now, log: svc.log}
	return svc, nil
}

// Validator returns the access token validator shared with adapters.
func (s *Service) Validator() *Validator { return s.validator }

// Resolver returns the permission resolver.
func (s *Service) Resolver() *Resolver { return s.resolver }

// RBAC returns the role administration service.
func (s *Service) RBAC() *RBACService { return s.rbac }

// RegisterInput carries the fields accepted on sign-up.
type RegisterInput struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
}

// Register creates an active identity, grants the default role and issues tokens.
func (s *Service) Register(ctx context.Context, in RegisterInput) (AuthResult, error) {
	email, err := normalizeEmail(in.Email)
	if err != nil {
		return AuthResult{}, err
	}
	if err := validatePassword(in.Password); err != nil {
		return AuthResult{}, err
	}
	first := strings.TrimSpace(in.FirstName)
	last := strings.TrimSpace(in.LastName)
	if utf8.RuneCountInString(first) > maxNameLength || utf8.RuneCountInString(last) > maxNameLength {
		return AuthResult{}, fmt.Errorf("%w: names must be at most %d characters", ErrValidation, maxNameLength)
	}

	var roleIDs []string
	if s.defaultRole != "" {
		role, err := s.store.RoleByName(ctx, s.defaultRole)
		switch {
		case errors.Is(err, ErrNotFound):
			s.log.WarnContext(ctx, "default role missing", "role", s.defaultRole)
		case err != nil:
			return AuthResult{}, err
		default:
			roleIDs = append(roleIDs, role.ID)
		}
	}

	hash, err := HashPassword(in.Password)
	if err != nil {
		return AuthResult{}, err
	}
	now := s.now().UTC()
	// The identity and its default role are written together. A failed
	// Issue leaves a complete account that can still log in.
	identity, err := s.store.CreateIdentity(ctx, Identity{
		Email:        email,
		FirstName:    first,
		LastName:     last,
		PasswordHash: hash,
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, roleIDs...)
	if errors.Is(err, ErrConflict) {
		return AuthResult{}, fmt.Errorf("%w: user with this email already exists", ErrConflict)
	}
	if err != nil {
		return AuthResult{}, err
	}

	pair, claims, err := s.issuer.Issue(ctx, identity)
	if err != nil {
		return AuthResult{}, err
	}
	s.log.InfoContext(ctx, "identity registered", "identity_id", identity.ID)
	return AuthResult{Tokens: pair, User: newUserView(identity, claims)}, nil
}

// Login verifies credentials and issues tokens. Unknown emails and wrong
// passwords fail identically.
func (s *Service) Login(ctx context.Context, email, password string) (AuthResult, error) {
	res, err := s.login(ctx, email, password)
	obs.ObserveLogin(loginOutcome(err))
	return res, err
}

func (s *Service) login(ctx context.Context, email, password string) (AuthResult, error) {
	errBadCredentials := fmt.Errorf("%w: invalid email or password", ErrInvalidCredential)

	email = strings.ToLower(strings.TrimSpace(email))
	identity, err := s.store.IdentityByEmail(ctx, email)
	if errors.Is(err, ErrNotFound) {
		_ = VerifyPassword(s.dummyPasswordHash(), password)
		return AuthResult{}, errBadCredentials
	}
	if err != nil {
		return AuthResult{}, err
	}
	if err := VerifyPassword(identity.PasswordHash, password); err != nil {
		if !errors.Is(err, ErrInvalidCredential) {
			s.log.ErrorContext(ctx, "password verification failed", "identity_id", identity.ID, "error", err)
		}
		return AuthResult{}, errBadCredentials
	}
	if !identity.Active {
		return AuthResult{}, fmt.Errorf("%w: account is deactivated", ErrInvalidCredential)
	}

	pair, claims, err := s.issuer.Issue(ctx, identity)
	if err != nil {
		return AuthResult{}, err
	}
	s.log.InfoContext(ctx, "login succeeded", "identity_id", identity.ID)
	return AuthResult{Tokens: pair, User: newUserView(identity, claims)}, nil
}

// Refresh rotates a refresh token. See Coordinator.Refresh.
func (s *Service) Refresh(ctx context.Context, accessToken, refreshToken string) (AuthResult, error) {
	return s.coordinator.Refresh(ctx, accessToken, refreshToken)
}

// Logout revokes a refresh token owned by identityID.
func (s *Service) Logout(ctx context.Context, identityID, refreshToken string) error {
	return s.coordinator.Logout(ctx, identityID, refreshToken)
}

// Authenticate fully validates an access token for request routing.
func (s *Service) Authenticate(token string) (Claims, error) {
	return s.validator.Parse(token)
}

func (s *Service) dummyPasswordHash() string {
	s.dummyOnce.Do(func() {
		h, err := HashPassword("gatehouse-timing-equalizer")
		if err == nil {
			s.dummyHash = h
		}
	})
	return s.dummyHash
}

func normalizeEmail(raw string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(raw))
	if email == "" {
		return "", fmt.Errorf("%w: email is required", ErrValidation)
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", fmt.Errorf("%w: email is invalid", ErrValidation)
	}
	return email, nil
}

func validatePassword(pw string) error {
	n := utf8.RuneCountInString(pw)
	if n < minPasswordLength {
		return fmt.Errorf("%w: password must be at least %d characters", ErrValidation, minPasswordLength)
	}
	if n > maxPasswordLength {
		return fmt.Errorf("%w: password must be at most %d characters", ErrValidation, maxPasswordLength)
	}
	return nil
}

func loginOutcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrInvalidCredential):
		return "invalid_credentials"
	default:
		return "error"
	}
}
