package httpapi

import (
	"net/http"

	"gatehouse.org/internal/auth"
)

const authHeader = "Authorization"

var publicPaths = []string{
	"/v1/auth/login",
	"/v1/auth/verify-email",
	"/metrics",
	"/healthz",
	"/readyz",
	"/v1/info",
	"/",
}

// withAuth authenticates every non-public request and stashes the
// resolved identity plus the presented token id on the context.
func (a *API) withAuth(next http.Handler) http.Handler {
	if a == nil || a.authn == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}
		if isPublicPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		header := r.Header.Get(authHeader)
		identity, err := a.authn.Authenticate(r.Context(), header)
		if err != nil {
			handleAuthError(w, r, err)
			return
		}

		ctx := auth.ContextWithIdentity(r.Context(), identity)
		if tokenID, err := auth.ParseBearer(header); err == nil {
			ctx = auth.ContextWithTokenID(ctx, tokenID)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// ensurePermission replies 401/403 and returns false unless the caller
// holds the permission.
func (a *API) ensurePermission(w http.ResponseWriter, r *http.Request, perm string) bool {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "token not found")
		return false
	}
	if !identity.HasPermission(perm) {
		writeError(w, r, http.StatusForbidden, "permission denied")
		return false
	}
	return true
}

func isPublicPath(path string) bool {
	for _, p := range publicPaths {
		if path == p {
			return true
		}
	}
	return false
}
