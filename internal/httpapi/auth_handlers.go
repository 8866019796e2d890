package httpapi

import (
	"net/http"
	"strings"

	"gatehouse.dev/internal/auth"
)

type registerRequest struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

type logoutRequest struct {
	RefreshToken string `json:"refresh_token"`
}

func (a *API) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	res, err := a.svc.Register(r.Context(), auth.RegisterInput{
		Email:     req.Email,
		Password:  req.Password,
		FirstName: req.FirstName,
		LastName:  req.LastName,
	})
	if err != nil {
		handleError(w, r, err)
		return
	}
	a.audit(r.Context(), "auth.register", map[string]any{"user_id": res.User.ID})
	w.Header().Set("Location", "/v1/users/"+res.User.ID)
	writeJSON(w, http.StatusCreated, res)
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		writeError(w, r, http.StatusBadRequest, "email and password are required")
		return
	}
	res, err := a.svc.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		a.audit(r.Context(), "auth.login.failed", map[string]any{"remote_ip": clientIP(r)})
		handleError(w, r, err)
		return
	}
	a.audit(r.Context(), "auth.login", map[string]any{"user_id": res.User.ID})
	writeJSON(w, http.StatusOK, res)
}

// handleRefresh accepts the possibly expired access token in the body or in
// the Authorization header.
func (a *API) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	access := strings.TrimSpace(req.AccessToken)
	if access == "" {
		if tok, err := extractBearerToken(r.Header.Get(authHeader)); err == nil {
			access = tok
		}
	}
	if access == "" || strings.TrimSpace(req.RefreshToken) == "" {
		writeError(w, r, http.StatusBadRequest, "access_token and refresh_token are required")
		return
	}
	res, err := a.svc.Refresh(r.Context(), access, strings.TrimSpace(req.RefreshToken))
	if err != nil {
		handleError(w, r, err)
		return
	}
	a.audit(r.Context(), "auth.refresh", map[string]any{"user_id": res.User.ID})
	writeJSON(w, http.StatusOK, res)
}

func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	var req logoutRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.RefreshToken) == "" {
		writeError(w, r, http.StatusBadRequest, "refresh_token is required")
		return
	}
	subject, _ := auth.SubjectFromContext(r.Context())
	if err := a.svc.Logout(r.Context(), subject, strings.TrimSpace(req.RefreshToken)); err != nil {
		handleError(w, r, err)
		return
	}
	a.audit(r.Context(), "auth.logout", nil)
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	subject, _ := auth.SubjectFromContext(r.Context())
	view, err := a.rbac.User(r.Context(), subject)
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}
