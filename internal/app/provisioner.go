/**
 * @description
 * This file implements profile completion and bank account provisioning. When a
 * profile update leaves the profile complete, exactly one account is opened for
 * the (currency, account type) the customer selected.
 *
 * @notes
 * - Provision must run inside the same transaction as the profile update, so a
 *   failure rolls back both.
 * - The (user, currency, type) unique constraint is the final arbiter of races;
 *   a conflicting insert is reported as already_exists, never as an error.
 */

package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/onegen/bank-api/internal/domain"
	"github.com/onegen/bank-api/internal/store"
	"github.com/shopspring/decimal"
)

// ProvisionOutcome reports which branch account provisioning took.
type ProvisionOutcome string

const (
	ProvisionIncomplete    ProvisionOutcome = "incomplete"
	ProvisionAlreadyExists ProvisionOutcome = "already_exists"
	ProvisionCreated       ProvisionOutcome = "created"
)

const provisionMaxAttempts = 5

// ProvisionResult is the outcome of one provisioning run and, unless incomplete,
// the account it refers to.
type ProvisionResult struct {
	Outcome       ProvisionOutcome
	Account       *domain.BankAccount
	MissingFields []string
}

// MissingProfileFields lists the required onboarding fields that are still empty.
func MissingProfileFields(p *domain.Profile, nextOfKinCount int) []string {
	var missing []string
	check := func(field string, empty bool) {
		if empty {
			missing = append(missing, field)
		}
	}

	check("title", p.Title == "")
	check("gender", p.Gender == "")
	check("date_of_birth", p.DateOfBirth == nil)
	check("country_of_birth", p.CountryOfBirth == "")
	check("place_of_birth", p.PlaceOfBirth == "")
	check("marital_status", p.MaritalStatus == "")
	check("means_of_identification", p.MeansOfIdentification == "")
	if p.MeansOfIdentification == domain.IdentificationPassport {
		check("passport_number", p.PassportNumber == "")
	}
	check("id_issue_date", p.IDIssueDate == nil)
	check("id_expiry_date", p.IDExpiryDate == nil)
	check("nationality", p.Nationality == "")
	check("phone_number", p.PhoneNumber == "")
	check("address", p.Address == "")
	check("city", p.City == "")
	check("country", p.Country == "")
	check("employment_status", p.EmploymentStatus == "")
	check("photo", p.Photo == "")
	check("id_photo", p.IDPhoto == "")
	check("signature_photo", p.SignaturePhoto == "")
	check("account_currency", p.AccountCurrency == "")
	check("account_type", p.AccountType == "")
	if p.EmploymentStatus.RequiresEmployer() {
		check("employer_name", p.EmployerName == "")
	}
	check("next_of_kin", nextOfKinCount < 1)
	return missing
}

// IsComplete reports whether every required field is filled and at least one
// next of kin exists.
func IsComplete(p *domain.Profile, nextOfKinCount int) bool {
	return len(MissingProfileFields(p, nextOfKinCount)) == 0
}

// AccountProvisioner opens the account selected on a completed profile.
type AccountProvisioner struct {
	numbers AccountNumberGenerator
}

func NewAccountProvisioner(numbers AccountNumberGenerator) *AccountProvisioner {
	return &AccountProvisioner{numbers: numbers}
}

// Provision opens the profile's selected account if the profile is complete and
// the user does not hold one yet. repo must be bound to the caller's transaction.
func (ap *AccountProvisioner) Provision(ctx context.Context, repo store.Repository, profile *domain.Profile) (*ProvisionResult, error) {
	kinCount, err := repo.CountNextOfKin(ctx, profile.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to count next of kin: %w", err)
	}
	if missing := MissingProfileFields(profile, kinCount); len(missing) > 0 {
		return &ProvisionResult{Outcome: ProvisionIncomplete, MissingFields: missing}, nil
	}

	existing, err := repo.FindAccountByUserCurrencyType(ctx, profile.UserID, profile.AccountCurrency, profile.AccountType)
	if err == nil {
		return &ProvisionResult{Outcome: ProvisionAlreadyExists, Account: existing}, nil
	}
	if !errors.Is(err, store.ErrAccountNotFound) {
		return nil, fmt.Errorf("failed to look up existing account: %w", err)
	}

	accounts, err := repo.ListAccountsByUserID(ctx, profile.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}

	for attempt := 0; attempt < provisionMaxAttempts; attempt++ {
		number, err := ap.numbers.Generate(ctx, profile.AccountCurrency)
		if err != nil {
			return nil, fmt.Errorf("failed to generate account number: %w", err)
		}

		account := &domain.BankAccount{
			UserID:         profile.UserID,
			AccountNumber:  number,
			AccountBalance: decimal.Zero,
			Currency:       profile.AccountCurrency,
			AccountType:    profile.AccountType,
			AccountStatus:  domain.AccountStatusInactive,
			IsPrimary:      len(accounts) == 0,
		}
		created, err := repo.CreateAccount(ctx, account)
		if errors.Is(err, store.ErrAccountNumberExists) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to create account: %w", err)
		}
		if !created {
			existing, err := repo.FindAccountByUserCurrencyType(ctx, profile.UserID, profile.AccountCurrency, profile.AccountType)
			if err != nil {
				return nil, fmt.Errorf("failed to load conflicting account: %w", err)
			}
			return &ProvisionResult{Outcome: ProvisionAlreadyExists, Account: existing}, nil
		}
		return &ProvisionResult{Outcome: ProvisionCreated, Account: account}, nil
	}
	return nil, ErrAccountNumberExhausted
}
