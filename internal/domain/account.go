/**
 * @description
 * This file defines the bank account and ledger models. Monetary values are
 * decimals with two places, matching the NUMERIC(20,2) columns they map to.
 *
 * @notes
 * - A user holds at most one account per (currency, account type).
 * - At most one of a user's accounts is primary.
 */
package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AccountType defines the product type of a bank account.
type AccountType string

const (
	AccountTypeCurrent AccountType = "current"
	AccountTypeSavings AccountType = "savings"
)

// Valid reports whether t is a known account type.
func (t AccountType) Valid() bool {
	return t == AccountTypeCurrent || t == AccountTypeSavings
}

// AccountStatus defines whether an account may transact.
type AccountStatus string

const (
	AccountStatusActive   AccountStatus = "active"
	AccountStatusInactive AccountStatus = "inactive"
)

// Valid reports whether s is a known account status.
func (s AccountStatus) Valid() bool {
	return s == AccountStatusActive || s == AccountStatusInactive
}

// AccountCurrency defines the currency an account is held in.
type AccountCurrency string

const (
	CurrencyUSDollar      AccountCurrency = "us_dollar"
	CurrencyPoundSterling AccountCurrency = "pound_sterling"
	CurrencyNaira         AccountCurrency = "naira"
)

// Valid reports whether c is a supported currency.
func (c AccountCurrency) Valid() bool {
	_, ok := currencyNumericCodes[c]
	return ok
}

// ISO 4217 numeric codes.
var currencyNumericCodes = map[AccountCurrency]string{
	CurrencyUSDollar:      "840",
	CurrencyPoundSterling: "826",
	CurrencyNaira:         "566",
}

// NumericCode returns the ISO 4217 numeric code of c, or "" if c is unknown.
func (c AccountCurrency) NumericCode() string {
	return currencyNumericCodes[c]
}

// BankAccount is a customer's account held at the bank.
type BankAccount struct {
	ID                uuid.UUID       `json:"id"`
	UserID            uuid.UUID       `json:"user_id"`
	AccountNumber     string          `json:"account_number"`
	AccountBalance    decimal.Decimal `json:"account_balance"`
	Currency          AccountCurrency `json:"currency"`
	AccountType       AccountType     `json:"account_type"`
	AccountStatus     AccountStatus   `json:"account_status"`
	IsPrimary         bool            `json:"is_primary"`
	KYCSubmitted      bool            `json:"kyc_submitted"`
	KYCVerified       bool            `json:"kyc_verified"`
	VerifiedBy        *uuid.UUID      `json:"verified_by,omitempty"`
	VerificationDate  *time.Time      `json:"verification_date,omitempty"`
	VerificationNotes string          `json:"verification_notes"`
	FullyActivated    bool            `json:"fully_activated"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// AccountVerificationRequest is the payload an account executive submits to
// record the KYC outcome of an account.
type AccountVerificationRequest struct {
	KYCSubmitted      *bool          `json:"kyc_submitted"`
	KYCVerified       *bool          `json:"kyc_verified"`
	VerificationDate  *Date          `json:"verification_date"`
	VerificationNotes *string        `json:"verification_notes"`
	AccountStatus     *AccountStatus `json:"account_status"`
}

// TransactionStatus is the lifecycle state of a ledger entry.
type TransactionStatus string

const (
	TransactionPending   TransactionStatus = "pending"
	TransactionCompleted TransactionStatus = "completed"
	TransactionFailed    TransactionStatus = "failed"
)

// TransactionType classifies a ledger entry.
type TransactionType string

const (
	TransactionDeposit    TransactionType = "deposit"
	TransactionWithdrawal TransactionType = "withdrawal"
	TransactionTransfer   TransactionType = "transfer"
	TransactionInterest   TransactionType = "interest"
)

// Transaction is the ledger record of a money movement.
type Transaction struct {
	ID                uuid.UUID         `json:"id"`
	UserID            *uuid.UUID        `json:"user_id,omitempty"`
	Amount            decimal.Decimal   `json:"amount"`
	Description       string            `json:"description"`
	SenderID          *uuid.UUID        `json:"sender_id,omitempty"`
	ReceiverID        *uuid.UUID        `json:"receiver_id,omitempty"`
	SenderAccountID   *uuid.UUID        `json:"sender_account_id,omitempty"`
	ReceiverAccountID *uuid.UUID        `json:"receiver_account_id,omitempty"`
	Status            TransactionStatus `json:"status"`
	Type              TransactionType   `json:"transaction_type"`
	CreatedAt         time.Time         `json:"created_at"`
	UpdatedAt         time.Time         `json:"updated_at"`
}

// DepositRequest is submitted by a teller to credit an account.
type DepositRequest struct {
	AccountNumber string          `json:"account_number"`
	Amount        decimal.Decimal `json:"amount"`
	Description   string          `json:"description"`
}

// WithdrawalRequest is submitted by an account owner to debit their account.
type WithdrawalRequest struct {
	AccountNumber string          `json:"account_number"`
	Amount        decimal.Decimal `json:"amount"`
	Description   string          `json:"description"`
}

// TransferRequest moves money between two accounts of the same currency.
type TransferRequest struct {
	SenderAccountNumber   string          `json:"sender_account"`
	ReceiverAccountNumber string          `json:"receiver_account"`
	Amount                decimal.Decimal `json:"amount"`
	Description           string          `json:"description"`
}
