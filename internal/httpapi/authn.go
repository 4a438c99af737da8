package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"surveysync.org/internal/auth"
)

const (
	authHeader = "Authorization"
	bearer     = "Bearer "

	msgNoToken      = "No authorization token provided"
	msgInvalidToken = "Invalid or expired device token"
)

var errMissingBearer = errors.New("missing bearer token")

// requireDevice admits requests carrying a valid device credential.
func (a *API) requireDevice(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, err := extractBearerToken(r.Header.Get(authHeader))
		if err != nil {
			writeError(w, r, http.StatusUnauthorized, msgNoToken)
			return
		}
		res, err := a.auth.Verify(r.Context(), token, originOf(r))
		if err != nil {
			internalError(w, r, "verify device token", err)
			return
		}
		if !res.Valid {
			writeJSON(w, http.StatusUnauthorized, map[string]any{
				"success":        false,
				"error":          msgInvalidToken,
				"requiresReauth": res.Reason.RequiresReauth(),
			})
			return
		}
		ctx := auth.ContextWithCredential(r.Context(), *res.Info)
		ctx = auth.ContextWithToken(ctx, token)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// identifyDevice resolves the bearer's owner whatever the credential's
// lifecycle state, so a device can still revoke a dead credential.
func (a *API) identifyDevice(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, err := extractBearerToken(r.Header.Get(authHeader))
		if err != nil {
			writeError(w, r, http.StatusUnauthorized, msgNoToken)
			return
		}
		info, err := a.auth.Identify(r.Context(), token)
		switch {
		case errors.Is(err, auth.ErrInvalidCredentials):
			writeError(w, r, http.StatusUnauthorized, msgInvalidToken)
			return
		case err != nil:
			internalError(w, r, "identify device token", err)
			return
		}
		ctx := auth.ContextWithCredential(r.Context(), info)
		ctx = auth.ContextWithToken(ctx, token)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		info, ok := auth.CredentialFromContext(r.Context())
		if !ok {
			writeError(w, r, http.StatusUnauthorized, msgNoToken)
			return
		}
		if !info.User.IsAdministrative() {
			writeError(w, r, http.StatusForbidden, "Access denied")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// credential returns the verified credential placed by requireDevice.
func credential(r *http.Request) auth.CredentialInfo {
	info, _ := auth.CredentialFromContext(r.Context())
	return info
}

func extractBearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", errMissingBearer
	}
	if len(header) < len(bearer) || !strings.EqualFold(header[:len(bearer)], bearer) {
		return "", errors.New("invalid authorization scheme")
	}
	token := strings.TrimSpace(header[len(bearer):])
	if token == "" {
		return "", errMissingBearer
	}
	return token, nil
}
