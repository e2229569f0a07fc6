package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/onegen/bank-api/internal/domain"
	"github.com/shopspring/decimal"
)

const accountColumns = `
	id, user_id, account_number, account_balance, currency, account_type, account_status,
	is_primary, kyc_submitted, kyc_verified, verified_by, verification_date,
	verification_notes, fully_activated, created_at, updated_at`

func scanAccount(row pgx.Row) (*domain.BankAccount, error) {
	var a domain.BankAccount
	err := row.Scan(
		&a.ID,
		&a.UserID,
		&a.AccountNumber,
		&a.AccountBalance,
		&a.Currency,
		&a.AccountType,
		&a.AccountStatus,
		&a.IsPrimary,
		&a.KYCSubmitted,
		&a.KYCVerified,
		&a.VerifiedBy,
		&a.VerificationDate,
		&a.VerificationNotes,
		&a.FullyActivated,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return &a, nil
}

// CreateAccount inserts account unless the user already holds one with the same
// currency and type, in which case it returns false and no error. An account
// number collision returns ErrAccountNumberExists. Conflicts are absorbed by
// ON CONFLICT so the surrounding transaction stays usable for a retry.
func (r *PostgresRepository) CreateAccount(ctx context.Context, account *domain.BankAccount) (bool, error) {
	if account.ID == uuid.Nil {
		account.ID = uuid.New()
	}
	query := `
		INSERT INTO bank_accounts (
			id, user_id, account_number, account_balance, currency, account_type,
			account_status, is_primary, kyc_submitted, kyc_verified
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT DO NOTHING
		RETURNING created_at, updated_at
	`
	err := r.db.QueryRow(ctx, query,
		account.ID,
		account.UserID,
		account.AccountNumber,
		account.AccountBalance,
		account.Currency,
		account.AccountType,
		account.AccountStatus,
		account.IsPrimary,
		account.KYCSubmitted,
		account.KYCVerified,
	).Scan(&account.CreatedAt, &account.UpdatedAt)
	if err == nil {
		return true, nil
	}
	if err != pgx.ErrNoRows {
		return false, err
	}

	_, lookupErr := r.FindAccountByUserCurrencyType(ctx, account.UserID, account.Currency, account.AccountType)
	if lookupErr == nil {
		return false, nil
	}
	if lookupErr == ErrAccountNotFound {
		return false, ErrAccountNumberExists
	}
	return false, lookupErr
}

// AccountNumberExists reports whether an account number is already issued.
func (r *PostgresRepository) AccountNumberExists(ctx context.Context, accountNumber string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM bank_accounts WHERE account_number = $1)`, accountNumber).Scan(&exists)
	return exists, err
}

// FindAccountByUserCurrencyType retrieves a user's account of the given currency and type.
func (r *PostgresRepository) FindAccountByUserCurrencyType(ctx context.Context, userID uuid.UUID, currency domain.AccountCurrency, accountType domain.AccountType) (*domain.BankAccount, error) {
	query := `SELECT ` + accountColumns + ` FROM bank_accounts WHERE user_id = $1 AND currency = $2 AND account_type = $3`
	return scanAccount(r.db.QueryRow(ctx, query, userID, currency, accountType))
}

// FindAccountByID retrieves an account by its ID.
func (r *PostgresRepository) FindAccountByID(ctx context.Context, accountID uuid.UUID) (*domain.BankAccount, error) {
	return scanAccount(r.db.QueryRow(ctx, `SELECT `+accountColumns+` FROM bank_accounts WHERE id = $1`, accountID))
}

// FindAccountByNumberForUpdate retrieves an account by number and locks its row
// until the surrounding transaction ends.
func (r *PostgresRepository) FindAccountByNumberForUpdate(ctx context.Context, accountNumber string) (*domain.BankAccount, error) {
	query := `SELECT ` + accountColumns + ` FROM bank_accounts WHERE account_number = $1 FOR UPDATE`
	return scanAccount(r.db.QueryRow(ctx, query, accountNumber))
}

// ListAccountsByUserID returns a user's accounts, primary first.
func (r *PostgresRepository) ListAccountsByUserID(ctx context.Context, userID uuid.UUID) ([]domain.BankAccount, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+accountColumns+`
		FROM bank_accounts
		WHERE user_id = $1
		ORDER BY is_primary DESC, created_at ASC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var accounts []domain.BankAccount
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, *account)
	}
	return accounts, rows.Err()
}

// DemoteAccounts clears the primary flag on all of a user's accounts.
func (r *PostgresRepository) DemoteAccounts(ctx context.Context, userID uuid.UUID) error {
	_, err := r.db.Exec(ctx, `
		UPDATE bank_accounts SET is_primary = FALSE, updated_at = NOW()
		WHERE user_id = $1 AND is_primary
	`, userID)
	return err
}

// PromoteAccount marks one of a user's accounts as primary.
func (r *PostgresRepository) PromoteAccount(ctx context.Context, userID, accountID uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE bank_accounts SET is_primary = TRUE, updated_at = NOW()
		WHERE id = $1 AND user_id = $2
	`, accountID, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAccountNotFound
	}
	return nil
}

// UpdateAccountVerification writes the KYC and activation fields of account.
func (r *PostgresRepository) UpdateAccountVerification(ctx context.Context, account *domain.BankAccount) error {
	err := r.db.QueryRow(ctx, `
		UPDATE bank_accounts SET
			kyc_submitted = $2, kyc_verified = $3, verified_by = $4, verification_date = $5,
			verification_notes = $6, account_status = $7, fully_activated = $8, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at
	`,
		account.ID,
		account.KYCSubmitted,
		account.KYCVerified,
		account.VerifiedBy,
		account.VerificationDate,
		account.VerificationNotes,
		account.AccountStatus,
		account.FullyActivated,
	).Scan(&account.UpdatedAt)
	if err == pgx.ErrNoRows {
		return ErrAccountNotFound
	}
	return err
}

// AdjustAccountBalance adds delta (which may be negative) to an account balance and
// returns the new balance. A debit below zero returns ErrInsufficientFunds.
func (r *PostgresRepository) AdjustAccountBalance(ctx context.Context, accountID uuid.UUID, delta decimal.Decimal) (decimal.Decimal, error) {
	var balance decimal.Decimal
	err := r.db.QueryRow(ctx, `
		UPDATE bank_accounts SET account_balance = account_balance + $2, updated_at = NOW()
		WHERE id = $1
		RETURNING account_balance
	`, accountID, delta).Scan(&balance)
	if err != nil {
		if err == pgx.ErrNoRows {
			return decimal.Zero, ErrAccountNotFound
		}
		if constraint, ok := isCheckViolation(err); ok && constraint == "bank_accounts_balance_non_negative" {
			return decimal.Zero, ErrInsufficientFunds
		}
		return decimal.Zero, err
	}
	return balance, nil
}
