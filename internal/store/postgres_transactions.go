package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/onegen/bank-api/internal/domain"
)

// CreateTransaction inserts a ledger entry.
func (r *PostgresRepository) CreateTransaction(ctx context.Context, txn *domain.Transaction) error {
	if txn.ID == uuid.Nil {
		txn.ID = uuid.New()
	}
	query := `
		INSERT INTO transactions (
			id, user_id, amount, description, sender_id, receiver_id,
			sender_account_id, receiver_account_id, status, transaction_type
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at, updated_at
	`
	return r.db.QueryRow(ctx, query,
		txn.ID,
		txn.UserID,
		txn.Amount,
		txn.Description,
		txn.SenderID,
		txn.ReceiverID,
		txn.SenderAccountID,
		txn.ReceiverAccountID,
		txn.Status,
		txn.Type,
	).Scan(&txn.CreatedAt, &txn.UpdatedAt)
}

// ListTransactionsByUserID returns the ledger entries a user initiated, sent or
// received, newest first.
func (r *PostgresRepository) ListTransactionsByUserID(ctx context.Context, userID uuid.UUID) ([]domain.Transaction, error) {
	rows, err := r.db.Query(ctx, `
		SELECT
			id, user_id, amount, description, sender_id, receiver_id,
			sender_account_id, receiver_account_id, status, transaction_type, created_at, updated_at
		FROM transactions
		WHERE user_id = $1 OR sender_id = $1 OR receiver_id = $1
		ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var txns []domain.Transaction
	for rows.Next() {
		var t domain.Transaction
		if err := rows.Scan(
			&t.ID,
			&t.UserID,
			&t.Amount,
			&t.Description,
			&t.SenderID,
			&t.ReceiverID,
			&t.SenderAccountID,
			&t.ReceiverAccountID,
			&t.Status,
			&t.Type,
			&t.CreatedAt,
			&t.UpdatedAt,
		); err != nil {
			return nil, err
		}
		txns = append(txns, t)
	}
	return txns, rows.Err()
}
