/**
 * @description
 * This file defines the `Repository` interface, the contract for all data access
 * performed by the bank API. Business logic in internal/app depends only on this
 * interface, so tests can swap PostgreSQL for an in-memory implementation.
 *
 * @dependencies
 * - github.com/google/uuid: identifiers.
 * - github.com/shopspring/decimal: monetary amounts.
 * - internal/domain: the service's domain models.
 */

package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/onegen/bank-api/internal/domain"
	"github.com/shopspring/decimal"
)

var (
	ErrUserNotFound        = errors.New("user not found")
	ErrProfileNotFound     = errors.New("profile not found")
	ErrNextOfKinNotFound   = errors.New("next of kin not found")
	ErrAccountNotFound     = errors.New("account not found")
	ErrInsufficientFunds   = errors.New("insufficient funds")
	ErrDuplicateUser       = errors.New("user already exists")
	ErrPrimaryNextOfKin    = errors.New("profile already has a primary next of kin")
	ErrAccountNumberExists = errors.New("account number already exists")
)

// DuplicateUserError reports which unique user attribute collided.
type DuplicateUserError struct {
	Field string
}

func (e *DuplicateUserError) Error() string {
	return "user with this " + e.Field + " already exists"
}

// Is lets errors.Is(err, ErrDuplicateUser) match.
func (e *DuplicateUserError) Is(target error) bool {
	return target == ErrDuplicateUser
}

// Repository defines the set of methods for interacting with the database.
type Repository interface {
	// WithTx runs fn inside a serializable transaction. The Repository passed to fn
	// is bound to that transaction. Serialization failures are retried a bounded
	// number of times, so fn must be safe to run more than once.
	WithTx(ctx context.Context, fn func(Repository) error) error

	// User methods
	CreateUser(ctx context.Context, user *domain.User) error
	FindUserByID(ctx context.Context, userID uuid.UUID) (*domain.User, error)
	FindUserByEmail(ctx context.Context, email string) (*domain.User, error)
	ListUsersWithActiveOTP(ctx context.Context, now time.Time) ([]domain.User, error)
	ResetLoginAttempts(ctx context.Context, userID uuid.UUID) error
	RecordFailedLogin(ctx context.Context, userID uuid.UUID, maxAttempts int, now time.Time) (*domain.User, error)
	SetOTP(ctx context.Context, userID uuid.UUID, otpHash string, expiresAt time.Time) error
	ClearOTP(ctx context.Context, userID uuid.UUID, otpHash string) (bool, error)
	PurgeExpiredOTPs(ctx context.Context, now time.Time) (int64, error)

	// Profile methods
	CreateProfile(ctx context.Context, userID uuid.UUID) (*domain.Profile, error)
	FindProfileByUserID(ctx context.Context, userID uuid.UUID) (*domain.Profile, error)
	FindProfileByID(ctx context.Context, profileID uuid.UUID) (*domain.Profile, error)
	UpdateProfile(ctx context.Context, profile *domain.Profile) error
	UpdateProfilePhoto(ctx context.Context, profileID uuid.UUID, field domain.PhotoField, publicID, url string) error
	ListCustomerProfiles(ctx context.Context) ([]domain.Profile, error)
	RecordProfileView(ctx context.Context, view *domain.ProfileView) error

	// Next of kin methods
	CreateNextOfKin(ctx context.Context, kin *domain.NextOfKin) error
	UpdateNextOfKin(ctx context.Context, kin *domain.NextOfKin) error
	FindNextOfKin(ctx context.Context, profileID, kinID uuid.UUID) (*domain.NextOfKin, error)
	ListNextOfKin(ctx context.Context, profileID uuid.UUID) ([]domain.NextOfKin, error)
	CountNextOfKin(ctx context.Context, profileID uuid.UUID) (int, error)
	DeleteNextOfKin(ctx context.Context, profileID, kinID uuid.UUID) error

	// Bank account methods
	CreateAccount(ctx context.Context, account *domain.BankAccount) (bool, error)
	AccountNumberExists(ctx context.Context, accountNumber string) (bool, error)
	FindAccountByUserCurrencyType(ctx context.Context, userID uuid.UUID, currency domain.AccountCurrency, accountType domain.AccountType) (*domain.BankAccount, error)
	FindAccountByID(ctx context.Context, accountID uuid.UUID) (*domain.BankAccount, error)
	FindAccountByNumberForUpdate(ctx context.Context, accountNumber string) (*domain.BankAccount, error)
	ListAccountsByUserID(ctx context.Context, userID uuid.UUID) ([]domain.BankAccount, error)
	DemoteAccounts(ctx context.Context, userID uuid.UUID) error
	PromoteAccount(ctx context.Context, userID, accountID uuid.UUID) error
	UpdateAccountVerification(ctx context.Context, account *domain.BankAccount) error
	AdjustAccountBalance(ctx context.Context, accountID uuid.UUID, delta decimal.Decimal) (decimal.Decimal, error)

	// Transaction methods
	CreateTransaction(ctx context.Context, txn *domain.Transaction) error
	ListTransactionsByUserID(ctx context.Context, userID uuid.UUID) ([]domain.Transaction, error)
}
