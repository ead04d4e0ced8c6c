package middleware

import (
	"context"
	"net/http"
	"strings"

	"device-hub-server/pkg/response"
)

type contextKey string

const UserIDKey contextKey = "userID"

// TokenCookieName is the cookie the login handler sets and the middleware
// falls back to when no Authorization header is present.
const TokenCookieName = "token"

// Authenticator resolves an access token to a user id.
type Authenticator interface {
	Authenticate(token string) (string, error)
}

// TokenFromRequest returns the bearer token from the Authorization header or,
// failing that, the token cookie.
func TokenFromRequest(r *http.Request) string {
	if authHeader := r.Header.Get("Authorization"); authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
		return ""
	}

	if cookie, err := r.Cookie(TokenCookieName); err == nil {
		return cookie.Value
	}

	return ""
}

func AuthMiddleware(auth Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := TokenFromRequest(r)
			if token == "" {
				response.Unauthorized(w, "No authentication token")
				return
			}

			userID, err := auth.Authenticate(token)
			if err != nil || userID == "" {
				response.Unauthorized(w, "Invalid or expired token")
				return
			}

			setRequestUser(r, userID)
			ctx := context.WithValue(r.Context(), UserIDKey, userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func GetUserID(r *http.Request) string {
	userID, ok := r.Context().Value(UserIDKey).(string)
	if !ok {
		return ""
	}
	return userID
}
