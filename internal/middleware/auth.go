package middleware

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/unichat/internal/auth"
)

// Verifier resolves a bearer token to a registration number.
type Verifier interface {
	Verify(token string) (string, error)
}

// CodeTokenExpired tells the client to log in again rather than treat the token as forged.
const CodeTokenExpired = "TOKEN_EXPIRED"

type authError struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// BearerAuth requires "Authorization: Bearer <jwt>". When allowQuery is set the token may
// also come as ?token=, which browsers need for WebSocket upgrades.
func BearerAuth(v Verifier, allowQuery bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" && allowQuery {
				token = r.URL.Query().Get("token")
			}
			if token == "" {
				writeAuthError(w, http.StatusUnauthorized, authError{Error: "Access denied. No token provided."})
				return
			}
			userID, err := v.Verify(token)
			switch {
			case errors.Is(err, auth.ErrTokenExpired):
				writeAuthError(w, http.StatusUnauthorized, authError{Error: "Token expired. Please login again.", Code: CodeTokenExpired})
				return
			case err != nil:
				writeAuthError(w, http.StatusForbidden, authError{Error: "Invalid token."})
				return
			}
			next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), userID)))
		})
	}
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

func writeAuthError(w http.ResponseWriter, status int, body authError) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
