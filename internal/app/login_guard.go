/**
 * @description
 * This file implements the login attempt guard: a per-user failed-attempt counter
 * and lockout window that gates OTP issuance and OTP verification.
 *
 * The guard has two states. A user is LOCKED while lockout_time is set and the
 * lockout duration has not elapsed since it; otherwise the user is NORMAL. The
 * transition back to NORMAL is evaluated lazily by MaybeUnlock at the start of
 * every login-related operation, so no background sweeper is needed.
 */

package app

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/onegen/bank-api/internal/domain"
	"github.com/onegen/bank-api/internal/store"
)

// LoginGuard evaluates and updates the lockout state of users.
type LoginGuard struct {
	repo            store.Repository
	maxAttempts     int
	lockoutDuration time.Duration
	now             func() time.Time
}

// NewLoginGuard creates a guard that locks a user for lockoutDuration once
// maxAttempts consecutive logins have failed.
func NewLoginGuard(repo store.Repository, maxAttempts int, lockoutDuration time.Duration) *LoginGuard {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &LoginGuard{
		repo:            repo,
		maxAttempts:     maxAttempts,
		lockoutDuration: lockoutDuration,
		now:             time.Now,
	}
}

// MaybeUnlock resets the counter and clears the lockout once the window has
// elapsed. user is updated in place.
func (g *LoginGuard) MaybeUnlock(ctx context.Context, user *domain.User) error {
	if user.LockoutTime == nil {
		return nil
	}
	if g.now().Sub(*user.LockoutTime) < g.lockoutDuration {
		return nil
	}
	if err := g.repo.ResetLoginAttempts(ctx, user.ID); err != nil {
		return fmt.Errorf("failed to unlock user: %w", err)
	}
	user.FailedLoginAttempt = 0
	user.LockoutTime = nil
	return nil
}

// Check returns a *LockedError while user is inside the lockout window.
func (g *LoginGuard) Check(user *domain.User) error {
	if remaining, locked := g.remaining(user); locked {
		return &LockedError{RemainingMinutes: remaining}
	}
	return nil
}

func (g *LoginGuard) remaining(user *domain.User) (int, bool) {
	if user.LockoutTime == nil {
		return 0, false
	}
	left := user.LockoutTime.Add(g.lockoutDuration).Sub(g.now())
	if left <= 0 {
		return 0, false
	}
	minutes := int(math.Ceil(left.Minutes()))
	if minutes < 1 {
		minutes = 1
	}
	return minutes, true
}

// RecordFailure counts one failed password check. It returns a *LockedError when
// this failure reaches the threshold and nil otherwise. Callers must have
// evaluated Check first so a locked user is never counted again.
func (g *LoginGuard) RecordFailure(ctx context.Context, user *domain.User) error {
	updated, err := g.repo.RecordFailedLogin(ctx, user.ID, g.maxAttempts, g.now())
	if err != nil {
		return fmt.Errorf("failed to record failed login: %w", err)
	}
	*user = *updated
	if updated.FailedLoginAttempt >= g.maxAttempts {
		if lockErr := g.Check(user); lockErr != nil {
			return lockErr
		}
	}
	return nil
}

// RecordSuccess resets the counter after a correct password.
func (g *LoginGuard) RecordSuccess(ctx context.Context, user *domain.User) error {
	if user.FailedLoginAttempt == 0 && user.LockoutTime == nil {
		return nil
	}
	if err := g.repo.ResetLoginAttempts(ctx, user.ID); err != nil {
		return fmt.Errorf("failed to reset login attempts: %w", err)
	}
	user.FailedLoginAttempt = 0
	user.LockoutTime = nil
	return nil
}
