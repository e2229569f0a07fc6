/**
 * @description
 * This file contains custom middleware for the HTTP router. The auth middleware
 * accepts the session access token from the "access" cookie or an
 * "Authorization: Bearer" header and puts the caller on the request context.
 *
 * @dependencies
 * - github.com/onegen/bank-api/internal/app: token verification.
 */

package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/onegen/bank-api/internal/app"
	"github.com/onegen/bank-api/internal/domain"
)

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

const authUserKey contextKey = "authUser"

const (
	accessCookieName   = "access"
	refreshCookieName  = "refresh"
	loggedInCookieName = "logged_in"
)

// AuthUser is the authenticated caller of a request.
type AuthUser struct {
	ID   uuid.UUID
	Role domain.Role
}

// AuthMiddleware rejects requests without a valid access token.
func AuthMiddleware(tokens *app.TokenIssuer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString := accessTokenFromRequest(r)
			if tokenString == "" {
				writeError(w, http.StatusUnauthorized, "Authentication credentials were not provided.")
				return
			}

			claims, err := tokens.Parse(tokenString, app.AccessTokenType)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "Given token not valid for any token type")
				return
			}

			user := AuthUser{ID: claims.UserID(), Role: claims.Role}
			ctx := context.WithValue(r.Context(), authUserKey, user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func accessTokenFromRequest(r *http.Request) string {
	if authHeader := r.Header.Get("Authorization"); authHeader != "" {
		if token := strings.TrimPrefix(authHeader, "Bearer "); token != authHeader {
			return strings.TrimSpace(token)
		}
	}
	if cookie, err := r.Cookie(accessCookieName); err == nil {
		return strings.TrimSpace(cookie.Value)
	}
	return ""
}

// GetAuthUser retrieves the authenticated caller from the request context.
func GetAuthUser(ctx context.Context) (AuthUser, bool) {
	user, ok := ctx.Value(authUserKey).(AuthUser)
	return user, ok
}
