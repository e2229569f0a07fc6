package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/onegen/bank-api/internal/app"
	"github.com/onegen/bank-api/internal/domain"
)

type refreshRequest struct {
	Refresh string `json:"refresh"`
}

// RegisterHandler creates a customer account.
func (h *Handlers) RegisterHandler(w http.ResponseWriter, r *http.Request) {
	var req domain.RegisterUserRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	user, err := h.auth.Register(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, user)
}

// LoginHandler checks credentials and emails a one-time password.
func (h *Handlers) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var req domain.LoginRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	email, err := h.auth.Login(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"success": "OTP sent to your email",
		"email":   email,
	})
}

// VerifyOTPHandler completes the login and sets the session cookies.
func (h *Handlers) VerifyOTPHandler(w http.ResponseWriter, r *http.Request) {
	var req domain.VerifyOTPRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	_, tokens, err := h.auth.VerifyOTP(r.Context(), req.OTP)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	h.setAuthCookies(w, tokens)
	writeJSON(w, http.StatusOK, map[string]string{
		"success": "Login successful. Now add your profile information, so that we can create an account for you.",
	})
}

// RefreshHandler renews the session from the refresh cookie, or the request
// body when no cookie is present.
func (h *Handlers) RefreshHandler(w http.ResponseWriter, r *http.Request) {
	refreshToken := ""
	if cookie, err := r.Cookie(refreshCookieName); err == nil {
		refreshToken = cookie.Value
	}
	if refreshToken == "" && r.Body != nil {
		var req refreshRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)).Decode(&req); err == nil {
			refreshToken = req.Refresh
		}
	}
	if refreshToken == "" {
		writeError(w, http.StatusUnauthorized, "Refresh token was not provided.")
		return
	}

	tokens, err := h.auth.Refresh(r.Context(), refreshToken)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	h.setAuthCookies(w, tokens)
	writeJSON(w, http.StatusOK, map[string]string{"message": "Access tokens refreshed successfully."})
}

// LogoutHandler clears the session cookies.
func (h *Handlers) LogoutHandler(w http.ResponseWriter, r *http.Request) {
	for _, name := range []string{accessCookieName, refreshCookieName, loggedInCookieName} {
		http.SetCookie(w, &http.Cookie{
			Name:     name,
			Value:    "",
			Path:     h.cookies.Path,
			MaxAge:   -1,
			Expires:  time.Unix(0, 0),
			Secure:   h.cookies.Secure,
			SameSite: h.cookies.SameSite,
		})
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) setAuthCookies(w http.ResponseWriter, tokens app.TokenPair) {
	accessMaxAge := int(tokens.AccessLifetime.Seconds())
	h.setCookie(w, accessCookieName, tokens.Access, accessMaxAge, true)
	h.setCookie(w, refreshCookieName, tokens.Refresh, int(tokens.RefreshLifetime.Seconds()), true)
	h.setCookie(w, loggedInCookieName, "true", accessMaxAge, false)
}

func (h *Handlers) setCookie(w http.ResponseWriter, name, value string, maxAge int, httpOnly bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     h.cookies.Path,
		MaxAge:   maxAge,
		Secure:   h.cookies.Secure,
		HttpOnly: httpOnly,
		SameSite: h.cookies.SameSite,
	})
}
