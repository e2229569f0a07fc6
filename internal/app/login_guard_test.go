package app

import (
	"errors"
	"testing"
	"time"

	"github.com/onegen/bank-api/internal/domain"
)

func TestLoginGuardCheckRemainingMinutes(t *testing.T) {
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	guard := NewLoginGuard(newMemoryRepo(), 3, 5*time.Minute)
	guard.now = func() time.Time { return now }

	tests := []struct {
		name        string
		lockedAgo   time.Duration
		unlocked    bool
		wantMinutes int
	}{
		{name: "never locked", unlocked: true},
		{name: "just locked", lockedAgo: 0, wantMinutes: 5},
		{name: "partial minute rounds up", lockedAgo: 90 * time.Second, wantMinutes: 4},
		{name: "last seconds report one minute", lockedAgo: 5*time.Minute - time.Second, wantMinutes: 1},
		{name: "window elapsed", lockedAgo: 5 * time.Minute, wantMinutes: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			user := &domain.User{}
			if !tt.unlocked {
				lockedAt := now.Add(-tt.lockedAgo)
				user.LockoutTime = &lockedAt
			}

			err := guard.Check(user)
			if tt.wantMinutes == 0 {
				if err != nil {
					t.Fatalf("expected no lockout, got %v", err)
				}
				return
			}
			var locked *LockedError
			if !errors.As(err, &locked) {
				t.Fatalf("expected LockedError, got %v", err)
			}
			if locked.RemainingMinutes != tt.wantMinutes {
				t.Fatalf("expected %d minutes, got %d", tt.wantMinutes, locked.RemainingMinutes)
			}
		})
	}
}

func TestNewLoginGuardClampsThreshold(t *testing.T) {
	guard := NewLoginGuard(newMemoryRepo(), 0, time.Minute)
	if guard.maxAttempts != 1 {
		t.Fatalf("expected threshold clamped to 1, got %d", guard.maxAttempts)
	}
}
