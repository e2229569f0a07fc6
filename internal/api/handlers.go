/**
 * @description
 * This file contains the shared pieces of the HTTP handlers: the Handlers type,
 * JSON helpers, and the mapping from service errors to HTTP responses.
 *
 * @notes
 * - Validation failures are returned as {"errors": {field: message}} so clients
 *   see every problem at once. Everything else uses {"error": message}.
 * - Unexpected errors are logged with their cause and reported as a plain 500.
 */

package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/onegen/bank-api/internal/app"
	"github.com/onegen/bank-api/internal/store"
)

const maxJSONBodyBytes = 1 << 20

// CookieConfig controls the attributes of the session cookies.
type CookieConfig struct {
	Path     string
	Secure   bool
	SameSite http.SameSite
}

// ParseSameSite maps a COOKIE_SAMESITE value to its http.SameSite mode.
func ParseSameSite(value string) http.SameSite {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "strict":
		return http.SameSiteStrictMode
	case "none":
		return http.SameSiteNoneMode
	default:
		return http.SameSiteLaxMode
	}
}

// Handlers holds the application services the HTTP handlers use.
type Handlers struct {
	auth      *app.AuthService
	profiles  *app.ProfileService
	accounts  *app.AccountService
	cookies   CookieConfig
	uploadDir string
}

// NewHandlers creates a new instance of Handlers.
func NewHandlers(auth *app.AuthService, profiles *app.ProfileService, accounts *app.AccountService, cookies CookieConfig, uploadDir string) *Handlers {
	if cookies.Path == "" {
		cookies.Path = "/"
	}
	return &Handlers{
		auth:      auth,
		profiles:  profiles,
		accounts:  accounts,
		cookies:   cookies,
		uploadDir: uploadDir,
	}
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// writeServiceError translates an application error into an HTTP response.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		validationErr *app.ValidationError
		lockedErr     *app.LockedError
		limitedErr    *app.RateLimitedError
	)

	switch {
	case errors.As(err, &validationErr):
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{"errors": validationErr.Fields})
	case errors.As(err, &lockedErr):
		writeJSON(w, http.StatusForbidden, map[string]interface{}{
			"error":             "Account is locked due to multiple failed login attempts. Please try again later.",
			"remaining_minutes": lockedErr.RemainingMinutes,
		})
	case errors.As(err, &limitedErr):
		w.Header().Set("Retry-After", strconv.Itoa(limitedErr.RetryAfterSeconds))
		writeError(w, http.StatusTooManyRequests, "Too many login attempts. Please try again later.")
	case errors.Is(err, app.ErrInvalidCredentials):
		writeError(w, http.StatusBadRequest, "Your login credentials are not correct")
	case errors.Is(err, app.ErrInvalidOrExpiredOTP):
		writeError(w, http.StatusBadRequest, "Invalid or expired OTP")
	case errors.Is(err, app.ErrInvalidRefreshToken):
		writeError(w, http.StatusUnauthorized, "Token is invalid or expired")
	case errors.Is(err, app.ErrForbidden):
		writeError(w, http.StatusForbidden, app.ErrForbidden.Error())
	case errors.Is(err, store.ErrUserNotFound),
		errors.Is(err, store.ErrProfileNotFound),
		errors.Is(err, store.ErrNextOfKinNotFound),
		errors.Is(err, store.ErrAccountNotFound):
		writeError(w, http.StatusNotFound, "Not found.")
	case errors.Is(err, store.ErrInsufficientFunds):
		writeError(w, http.StatusBadRequest, "Insufficient funds")
	case errors.Is(err, app.ErrAccountInactive),
		errors.Is(err, app.ErrCurrencyMismatch),
		errors.Is(err, app.ErrAccountNumberExhausted):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		log.Printf("level=error component=api method=%s path=%s msg=\"request failed\" err=%v", r.Method, r.URL.Path, err)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

// decodeJSON reads a JSON request body into dst, writing a 400 on failure.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	return decodeJSONLimit(w, r, dst, maxJSONBodyBytes)
}

func decodeJSONLimit(w http.ResponseWriter, r *http.Request, dst interface{}, limit int64) bool {
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}

func currentUser(w http.ResponseWriter, r *http.Request) (AuthUser, bool) {
	user, ok := GetAuthUser(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Authentication credentials were not provided.")
	}
	return user, ok
}

func pathUUID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid "+name)
		return uuid.Nil, false
	}
	return id, true
}
