package auth

import "errors"

var (
	ErrValidation        = errors.New("validation failed")
	ErrNotFound          = errors.New("not found")
	ErrConflict          = errors.New("resource conflict")
	ErrInvalidCredential = errors.New("invalid credential")
	ErrInvalidToken      = errors.New("invalid token")
	ErrForbidden         = errors.New("forbidden")
)

// Reasons reported by RefreshError.
const (
	ReasonInvalidToken        = "invalid token"
	ReasonInvalidRefreshToken = "invalid refresh token"
	ReasonUserNotFound        = "user not found"
	ReasonAccountDeactivated  = "account is deactivated"
)

// RefreshError describes why a refresh attempt was rejected. Err carries the
// error kind (ErrInvalidToken, ErrInvalidCredential, ErrNotFound) or the
// underlying storage failure.
type RefreshError struct {
	Reason string
	Err    error
}

func (e *RefreshError) Error() string {
	if e.Err == nil {
		return "refresh: " + e.Reason
	}
	return "refresh: " + e.Reason + ": " + e.Err.Error()
}

func (e *RefreshError) Unwrap() error { return e.Err }

func refreshFailure(reason string, kind error) *RefreshError {
	return &RefreshError{Reason: reason, Err: kind}
}
