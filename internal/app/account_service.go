package app

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/google/uuid"
	"github.com/onegen/bank-api/internal/domain"
	"github.com/onegen/bank-api/internal/store"
)

// AccountService implements bank account use cases and money movements.
type AccountService struct {
	repo   store.Repository
	mailer Mailer
}

func NewAccountService(repo store.Repository, mailer Mailer) *AccountService {
	return &AccountService{repo: repo, mailer: mailer}
}

// ListAccounts returns the caller's accounts.
func (s *AccountService) ListAccounts(ctx context.Context, userID uuid.UUID) ([]domain.BankAccount, error) {
	return s.repo.ListAccountsByUserID(ctx, userID)
}

// SetPrimaryAccount makes accountID the caller's only primary account.
func (s *AccountService) SetPrimaryAccount(ctx context.Context, userID, accountID uuid.UUID) (*domain.BankAccount, error) {
	var account *domain.BankAccount
	err := s.repo.WithTx(ctx, func(tx store.Repository) error {
		current, err := tx.FindAccountByID(ctx, accountID)
		if err != nil {
			return err
		}
		if current.UserID != userID {
			return store.ErrAccountNotFound
		}
		if err := tx.DemoteAccounts(ctx, userID); err != nil {
			return fmt.Errorf("failed to demote accounts: %w", err)
		}
		if err := tx.PromoteAccount(ctx, userID, accountID); err != nil {
			return err
		}
		current.IsPrimary = true
		account = current
		return nil
	})
	if err != nil {
		return nil, err
	}
	return account, nil
}

// VerifyAccount records an account executive's KYC decision on an account.
func (s *AccountService) VerifyAccount(ctx context.Context, executiveID uuid.UUID, role domain.Role, accountID uuid.UUID, req domain.AccountVerificationRequest) (*domain.BankAccount, error) {
	if role != domain.RoleAccountExecutive {
		return nil, ErrForbidden
	}

	errs := fieldErrors{}
	if req.KYCVerified != nil && *req.KYCVerified {
		if req.VerificationDate == nil {
			errs.add("verification_date", "Verification date is required when verifying an account.")
		}
		if req.VerificationNotes == nil || strings.TrimSpace(*req.VerificationNotes) == "" {
			errs.add("verification_notes", "Verification notes is required when verifying an account.")
		}
	}
	if req.AccountStatus != nil && !req.AccountStatus.Valid() {
		errs.add("account_status", fmt.Sprintf("%q is not a valid choice", *req.AccountStatus))
	}
	if err := errs.err(); err != nil {
		return nil, err
	}

	var (
		account        *domain.BankAccount
		newlyActivated bool
	)
	err := s.repo.WithTx(ctx, func(tx store.Repository) error {
		current, err := tx.FindAccountByID(ctx, accountID)
		if err != nil {
			return err
		}
		wasActivated := current.FullyActivated

		if req.KYCSubmitted != nil {
			current.KYCSubmitted = *req.KYCSubmitted
		}
		if req.KYCVerified != nil {
			current.KYCVerified = *req.KYCVerified
		}
		if req.VerificationDate != nil {
			current.VerificationDate = req.VerificationDate.Ptr()
		}
		if req.VerificationNotes != nil {
			current.VerificationNotes = strings.TrimSpace(*req.VerificationNotes)
		}
		if req.AccountStatus != nil {
			current.AccountStatus = *req.AccountStatus
		}
		if req.KYCVerified != nil && *req.KYCVerified {
			verifier := executiveID
			current.VerifiedBy = &verifier
		}
		current.FullyActivated = current.KYCSubmitted && current.KYCVerified && current.AccountStatus == domain.AccountStatusActive

		if err := tx.UpdateAccountVerification(ctx, current); err != nil {
			return err
		}
		account = current
		newlyActivated = current.FullyActivated && !wasActivated
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Printf("level=info component=account_service msg=\"account verification recorded\" account_id=%s verified_by=%s fully_activated=%t", account.ID, executiveID, account.FullyActivated)

	if newlyActivated {
		if owner, err := s.repo.FindUserByID(ctx, account.UserID); err == nil {
			sendBestEffort(ctx, s.mailer, owner.Email, domain.TemplateAccountActivated, map[string]any{
				"user_name":      owner.FullName(),
				"account_number": account.AccountNumber,
			})
		}
	}
	return account, nil
}
