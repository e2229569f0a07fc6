package app

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/onegen/bank-api/internal/domain"
	"github.com/onegen/bank-api/internal/store"
	"github.com/shopspring/decimal"
)

const maxDescriptionLength = 255

func validateMoney(errs fieldErrors, amount decimal.Decimal, description string) {
	if !amount.IsPositive() {
		errs.add("amount", "amount must be greater than zero")
	} else if !amount.Equal(amount.Round(2)) {
		errs.add("amount", "amount cannot have more than two decimal places")
	}
	if len(description) > maxDescriptionLength {
		errs.add("description", fmt.Sprintf("description cannot exceed %d characters", maxDescriptionLength))
	}
}

// Deposit credits an active account. Only tellers may deposit.
func (s *AccountService) Deposit(ctx context.Context, tellerID uuid.UUID, role domain.Role, req domain.DepositRequest) (*domain.Transaction, error) {
	if role != domain.RoleTeller {
		return nil, ErrForbidden
	}
	errs := fieldErrors{}
	accountNumber := strings.TrimSpace(req.AccountNumber)
	if accountNumber == "" {
		errs.add("account_number", "this field is required")
	}
	validateMoney(errs, req.Amount, req.Description)
	if err := errs.err(); err != nil {
		return nil, err
	}

	var txn *domain.Transaction
	err := s.repo.WithTx(ctx, func(tx store.Repository) error {
		account, err := tx.FindAccountByNumberForUpdate(ctx, accountNumber)
		if err != nil {
			return err
		}
		if account.AccountStatus != domain.AccountStatusActive {
			return ErrAccountInactive
		}
		if _, err := tx.AdjustAccountBalance(ctx, account.ID, req.Amount); err != nil {
			return err
		}

		teller := tellerID
		owner := account.UserID
		accountID := account.ID
		txn = &domain.Transaction{
			UserID:            &teller,
			Amount:            req.Amount,
			Description:       strings.TrimSpace(req.Description),
			ReceiverID:        &owner,
			ReceiverAccountID: &accountID,
			Status:            domain.TransactionCompleted,
			Type:              domain.TransactionDeposit,
		}
		return tx.CreateTransaction(ctx, txn)
	})
	if err != nil {
		return nil, err
	}
	log.Printf("level=info component=account_service msg=\"deposit completed\" transaction_id=%s teller_id=%s amount=%s", txn.ID, tellerID, txn.Amount)
	return txn, nil
}

// Withdraw debits one of the caller's active accounts.
func (s *AccountService) Withdraw(ctx context.Context, userID uuid.UUID, req domain.WithdrawalRequest) (*domain.Transaction, error) {
	errs := fieldErrors{}
	accountNumber := strings.TrimSpace(req.AccountNumber)
	if accountNumber == "" {
		errs.add("account_number", "this field is required")
	}
	validateMoney(errs, req.Amount, req.Description)
	if err := errs.err(); err != nil {
		return nil, err
	}

	var txn *domain.Transaction
	err := s.repo.WithTx(ctx, func(tx store.Repository) error {
		account, err := tx.FindAccountByNumberForUpdate(ctx, accountNumber)
		if err != nil {
			return err
		}
		if account.UserID != userID {
			return store.ErrAccountNotFound
		}
		if account.AccountStatus != domain.AccountStatusActive {
			return ErrAccountInactive
		}
		if account.AccountBalance.LessThan(req.Amount) {
			return store.ErrInsufficientFunds
		}
		if _, err := tx.AdjustAccountBalance(ctx, account.ID, req.Amount.Neg()); err != nil {
			return err
		}

		user := userID
		accountID := account.ID
		txn = &domain.Transaction{
			UserID:          &user,
			Amount:          req.Amount,
			Description:     strings.TrimSpace(req.Description),
			SenderID:        &user,
			SenderAccountID: &accountID,
			Status:          domain.TransactionCompleted,
			Type:            domain.TransactionWithdrawal,
		}
		return tx.CreateTransaction(ctx, txn)
	})
	if err != nil {
		return nil, err
	}
	log.Printf("level=info component=account_service msg=\"withdrawal completed\" transaction_id=%s user_id=%s amount=%s", txn.ID, userID, txn.Amount)
	return txn, nil
}

// Transfer moves money from one of the caller's accounts to another account of
// the same currency. Both rows are locked in account-number order.
func (s *AccountService) Transfer(ctx context.Context, userID uuid.UUID, req domain.TransferRequest) (*domain.Transaction, error) {
	errs := fieldErrors{}
	senderNumber := strings.TrimSpace(req.SenderAccountNumber)
	receiverNumber := strings.TrimSpace(req.ReceiverAccountNumber)
	if senderNumber == "" {
		errs.add("sender_account", "this field is required")
	}
	if receiverNumber == "" {
		errs.add("receiver_account", "this field is required")
	}
	if senderNumber != "" && senderNumber == receiverNumber {
		errs.add("receiver_account", ErrSameAccountTransfer.Error())
	}
	validateMoney(errs, req.Amount, req.Description)
	if err := errs.err(); err != nil {
		return nil, err
	}

	var txn *domain.Transaction
	err := s.repo.WithTx(ctx, func(tx store.Repository) error {
		ordered := []string{senderNumber, receiverNumber}
		sort.Strings(ordered)
		locked := make(map[string]*domain.BankAccount, 2)
		for _, number := range ordered {
			account, err := tx.FindAccountByNumberForUpdate(ctx, number)
			if err != nil {
				return err
			}
			locked[number] = account
		}
		sender, receiver := locked[senderNumber], locked[receiverNumber]

		if sender.UserID != userID {
			return store.ErrAccountNotFound
		}
		if sender.AccountStatus != domain.AccountStatusActive || receiver.AccountStatus != domain.AccountStatusActive {
			return ErrAccountInactive
		}
		if sender.Currency != receiver.Currency {
			return ErrCurrencyMismatch
		}
		if sender.AccountBalance.LessThan(req.Amount) {
			return store.ErrInsufficientFunds
		}

		if _, err := tx.AdjustAccountBalance(ctx, sender.ID, req.Amount.Neg()); err != nil {
			return err
		}
		if _, err := tx.AdjustAccountBalance(ctx, receiver.ID, req.Amount); err != nil {
			return err
		}

		user := userID
		receiverID := receiver.UserID
		senderAccountID, receiverAccountID := sender.ID, receiver.ID
		txn = &domain.Transaction{
			UserID:            &user,
			Amount:            req.Amount,
			Description:       strings.TrimSpace(req.Description),
			SenderID:          &user,
			ReceiverID:        &receiverID,
			SenderAccountID:   &senderAccountID,
			ReceiverAccountID: &receiverAccountID,
			Status:            domain.TransactionCompleted,
			Type:              domain.TransactionTransfer,
		}
		return tx.CreateTransaction(ctx, txn)
	})
	if err != nil {
		return nil, err
	}
	log.Printf("level=info component=account_service msg=\"transfer completed\" transaction_id=%s user_id=%s amount=%s", txn.ID, userID, txn.Amount)
	return txn, nil
}

// ListTransactions returns the caller's ledger, newest first.
func (s *AccountService) ListTransactions(ctx context.Context, userID uuid.UUID) ([]domain.Transaction, error) {
	return s.repo.ListTransactionsByUserID(ctx, userID)
}
