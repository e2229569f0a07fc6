/**
 * @description
 * This file contains the authentication use cases: registration, the password
 * step that issues a one-time password, OTP verification that issues session
 * tokens, and token refresh.
 *
 * @notes
 * - Unknown emails and wrong passwords produce the same ErrInvalidCredentials.
 * - The per-email rate limit applies before the user lookup, so known and
 *   unknown emails are throttled identically.
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/onegen/bank-api/internal/domain"
	"github.com/onegen/bank-api/internal/store"
)

const minPasswordLength = 8

// AuthConfig holds the tunables of the login flow.
type AuthConfig struct {
	LoginAttempts   int
	LockoutDuration time.Duration
	OTPExpiration   time.Duration
}

// AuthService implements registration and the two-step login.
type AuthService struct {
	repo          store.Repository
	guard         *LoginGuard
	tokens        *TokenIssuer
	mailer        Mailer
	throttle      LoginThrottle
	otpExpiration time.Duration
	now           func() time.Time
}

// NewAuthService wires the login flow. throttle may be nil to disable per-email
// rate limiting.
func NewAuthService(repo store.Repository, tokens *TokenIssuer, mailer Mailer, throttle LoginThrottle, cfg AuthConfig) *AuthService {
	return &AuthService{
		repo:          repo,
		guard:         NewLoginGuard(repo, cfg.LoginAttempts, cfg.LockoutDuration),
		tokens:        tokens,
		mailer:        mailer,
		throttle:      throttle,
		otpExpiration: cfg.OTPExpiration,
		now:           time.Now,
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Register creates a customer and their empty profile in one transaction.
func (s *AuthService) Register(ctx context.Context, req domain.RegisterUserRequest) (*domain.User, error) {
	errs := fieldErrors{}
	email := normalizeEmail(req.Email)
	if email == "" {
		errs.add("email", "this field is required")
	} else if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
		errs.add("email", "enter a valid email address")
	}
	required := map[string]string{
		"username":          req.Username,
		"first_name":        req.FirstName,
		"last_name":         req.LastName,
		"id_no":             req.IDNo,
		"security_question": req.SecurityQuestion,
		"security_answer":   req.SecurityAnswer,
	}
	for field, value := range required {
		if strings.TrimSpace(value) == "" {
			errs.add(field, "this field is required")
		}
	}
	if len(req.Password) < minPasswordLength {
		errs.add("password", fmt.Sprintf("password must be at least %d characters", minPasswordLength))
	}
	if req.Password != req.RePassword {
		errs.add("re_password", "passwords do not match")
	}
	if err := errs.err(); err != nil {
		return nil, err
	}

	passwordHash, err := hashSecret(req.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}
	answerHash, err := hashSecret(strings.ToLower(strings.TrimSpace(req.SecurityAnswer)))
	if err != nil {
		return nil, fmt.Errorf("failed to hash security answer: %w", err)
	}

	user := &domain.User{
		ID:               uuid.New(),
		Email:            email,
		Username:         strings.TrimSpace(req.Username),
		FirstName:        strings.TrimSpace(req.FirstName),
		MiddleName:       strings.TrimSpace(req.MiddleName),
		LastName:         strings.TrimSpace(req.LastName),
		IDNo:             strings.TrimSpace(req.IDNo),
		SecurityQuestion: strings.TrimSpace(req.SecurityQuestion),
		SecurityAnswer:   answerHash,
		PasswordHash:     passwordHash,
		Role:             domain.RoleCustomer,
	}

	err = s.repo.WithTx(ctx, func(tx store.Repository) error {
		if err := tx.CreateUser(ctx, user); err != nil {
			return err
		}
		_, err := tx.CreateProfile(ctx, user.ID)
		return err
	})
	if err != nil {
		var dup *store.DuplicateUserError
		if errors.As(err, &dup) {
			return nil, validationFailed(dup.Field, dup.Error())
		}
		return nil, err
	}

	log.Printf("level=info component=auth_service msg=\"user registered\" user_id=%s", user.ID)
	return user, nil
}

// Login checks the password and, on success, emails a one-time password.
// It returns the address the code was sent to.
func (s *AuthService) Login(ctx context.Context, req domain.LoginRequest) (string, error) {
	email := normalizeEmail(req.Email)
	errs := fieldErrors{}
	if email == "" {
		errs.add("email", "this field is required")
	}
	if req.Password == "" {
		errs.add("password", "this field is required")
	}
	if err := errs.err(); err != nil {
		return "", err
	}

	if err := s.checkThrottle(ctx, email); err != nil {
		return "", err
	}

	user, err := s.repo.FindUserByEmail(ctx, email)
	if errors.Is(err, store.ErrUserNotFound) {
		log.Printf("level=info component=auth_service msg=\"login rejected\" reason=invalid_credentials")
		return "", ErrInvalidCredentials
	}
	if err != nil {
		return "", err
	}

	if err := s.guard.MaybeUnlock(ctx, user); err != nil {
		return "", err
	}
	if err := s.guard.Check(user); err != nil {
		log.Printf("level=warn component=auth_service msg=\"login rejected\" reason=locked user_id=%s", user.ID)
		return "", err
	}

	if !secretMatches(user.PasswordHash, req.Password) {
		if err := s.guard.RecordFailure(ctx, user); err != nil {
			log.Printf("level=warn component=auth_service msg=\"login rejected\" reason=threshold_reached user_id=%s attempts=%d", user.ID, user.FailedLoginAttempt)
			return "", err
		}
		log.Printf("level=info component=auth_service msg=\"login rejected\" reason=invalid_credentials user_id=%s attempts=%d", user.ID, user.FailedLoginAttempt)
		return "", ErrInvalidCredentials
	}

	if err := s.guard.RecordSuccess(ctx, user); err != nil {
		return "", err
	}

	otp, err := generateOTP()
	if err != nil {
		return "", err
	}
	otpHash, err := hashSecret(otp)
	if err != nil {
		return "", fmt.Errorf("failed to hash otp: %w", err)
	}
	if err := s.repo.SetOTP(ctx, user.ID, otpHash, s.now().Add(s.otpExpiration)); err != nil {
		return "", fmt.Errorf("failed to store otp: %w", err)
	}

	sendBestEffort(ctx, s.mailer, user.Email, domain.TemplateLoginOTP, map[string]any{
		"otp":            otp,
		"user_name":      user.FullName(),
		"expiry_minutes": int(math.Ceil(s.otpExpiration.Minutes())),
	})

	log.Printf("level=info component=auth_service msg=\"otp issued\" user_id=%s", user.ID)
	return user.Email, nil
}

func (s *AuthService) checkThrottle(ctx context.Context, email string) error {
	if s.throttle == nil {
		return nil
	}
	decision, err := s.throttle.Allow(ctx, email)
	if err != nil {
		log.Printf("level=warn component=auth_service msg=\"login throttle unavailable; allowing request\" err=%v", err)
		return nil
	}
	if !decision.Allowed {
		return &RateLimitedError{RetryAfterSeconds: decision.RetryAfterSeconds()}
	}
	return nil
}

// VerifyOTP consumes a one-time password and issues session tokens for its owner.
func (s *AuthService) VerifyOTP(ctx context.Context, otp string) (*domain.User, TokenPair, error) {
	otp = strings.TrimSpace(otp)
	if otp == "" {
		return nil, TokenPair{}, validationFailed("otp", "OTP is required")
	}

	candidates, err := s.repo.ListUsersWithActiveOTP(ctx, s.now())
	if err != nil {
		return nil, TokenPair{}, fmt.Errorf("failed to load pending otps: %w", err)
	}

	var user *domain.User
	for i := range candidates {
		if secretMatches(candidates[i].OTP, otp) {
			user = &candidates[i]
			break
		}
	}
	if user == nil {
		log.Printf("level=info component=auth_service msg=\"otp rejected\" reason=no_match")
		return nil, TokenPair{}, ErrInvalidOrExpiredOTP
	}

	if err := s.guard.MaybeUnlock(ctx, user); err != nil {
		return nil, TokenPair{}, err
	}
	if err := s.guard.Check(user); err != nil {
		log.Printf("level=warn component=auth_service msg=\"otp rejected\" reason=locked user_id=%s", user.ID)
		return nil, TokenPair{}, err
	}

	consumed, err := s.repo.ClearOTP(ctx, user.ID, user.OTP)
	if err != nil {
		return nil, TokenPair{}, fmt.Errorf("failed to clear otp: %w", err)
	}
	if !consumed {
		return nil, TokenPair{}, ErrInvalidOrExpiredOTP
	}
	user.OTP = ""
	user.OTPExpiryTime = nil

	tokens, err := s.tokens.Issue(user.ID, user.Role)
	if err != nil {
		return nil, TokenPair{}, err
	}
	log.Printf("level=info component=auth_service msg=\"login completed\" user_id=%s", user.ID)
	return user, tokens, nil
}

// Refresh exchanges a valid refresh token for a new token pair.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (TokenPair, error) {
	claims, err := s.tokens.Parse(strings.TrimSpace(refreshToken), RefreshTokenType)
	if err != nil {
		return TokenPair{}, ErrInvalidRefreshToken
	}
	user, err := s.repo.FindUserByID(ctx, claims.UserID())
	if errors.Is(err, store.ErrUserNotFound) {
		return TokenPair{}, ErrInvalidRefreshToken
	}
	if err != nil {
		return TokenPair{}, err
	}
	return s.tokens.Issue(user.ID, user.Role)
}

// PurgeExpiredOTPs clears one-time passwords that can no longer be used.
func (s *AuthService) PurgeExpiredOTPs(ctx context.Context) (int64, error) {
	return s.repo.PurgeExpiredOTPs(ctx, s.now())
}
