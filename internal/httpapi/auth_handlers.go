package httpapi

import (
	"net/http"

	"gatehouse.org/internal/audit"
	"gatehouse.org/internal/auth"
)

type loginRequest struct {
	EmailOrUsername string `json:"email_or_username"`
	Password        string `json:"password"`
}

type identityPayload struct {
	auth.User
	Permissions []auth.Permission `json:"permissions"`
	Roles       []auth.Role       `json:"roles"`
}

func toIdentityPayload(identity auth.Identity) identityPayload {
	return identityPayload{
		User:        identity.User,
		Permissions: identity.Permissions,
		Roles:       identity.Roles,
	}
}

type loginResponse struct {
	Token string          `json:"token"`
	User  identityPayload `json:"user"`
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if a.sessions == nil {
		writeError(w, r, http.StatusServiceUnavailable, "auth service unavailable")
		return
	}

	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	token, identity, err := a.sessions.Login(r.Context(), req.EmailOrUsername, req.Password)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}

	_ = audit.LogEvent(r.Context(), "auth.login", map[string]any{
		"user_id":  identity.User.ID.String(),
		"username": identity.User.Username,
	})
	writeJSON(w, http.StatusOK, loginResponse{
		Token: token,
		User:  toIdentityPayload(identity),
	})
}

func (a *API) handleCurrentUser(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "token not found")
		return
	}
	writeJSON(w, http.StatusOK, toIdentityPayload(identity))
}

func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		methodNotAllowed(w, r, http.MethodDelete)
		return
	}
	if a.sessions == nil {
		writeError(w, r, http.StatusServiceUnavailable, "auth service unavailable")
		return
	}
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "token not found")
		return
	}
	tokenID, _ := auth.TokenIDFromContext(r.Context())

	if err := a.sessions.Logout(r.Context(), tokenID, identity.User.ID); err != nil {
		handleAuthError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "auth.logout", map[string]any{
		"user_id": identity.User.ID.String(),
	})
	w.WriteHeader(http.StatusNoContent)
}

type verifyEmailRequest struct {
	Token string `json:"token"`
}

// handleVerifyEmail confirms a verification token. Public: the link in
// the email is followed without a session.
func (a *API) handleVerifyEmail(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if a.verifier == nil {
		writeError(w, r, http.StatusServiceUnavailable, "verification unavailable")
		return
	}

	var req verifyEmailRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	userID, err := a.verifier.Confirm(r.Context(), req.Token)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "auth.email.verified", map[string]any{
		"user_id": userID.String(),
	})
	writeJSON(w, http.StatusOK, map[string]any{"status": "verified"})
}

// handleVerifyEmailRequest issues a fresh verification token for the
// caller. Delivery is left to the operator's mailer.
func (a *API) handleVerifyEmailRequest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if a.verifier == nil {
		writeError(w, r, http.StatusServiceUnavailable, "verification unavailable")
		return
	}
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "token not found")
		return
	}

	token, err := a.verifier.Issue(identity.User.ID, identity.User.Email)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "auth.email.verification_requested", map[string]any{
		"user_id": identity.User.ID.String(),
	})
	writeJSON(w, http.StatusOK, map[string]any{"verification_token": token})
}
