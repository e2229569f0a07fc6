package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/onegen/bank-api/internal/domain"
)

const nextOfKinColumns = `
	id, profile_id, title, first_name, last_name, other_names, date_of_birth, gender,
	relationship, email_address, phone_number, address, city, country, is_primary,
	created_at, updated_at`

func scanNextOfKin(row pgx.Row) (*domain.NextOfKin, error) {
	var kin domain.NextOfKin
	err := row.Scan(
		&kin.ID,
		&kin.ProfileID,
		&kin.Title,
		&kin.FirstName,
		&kin.LastName,
		&kin.OtherNames,
		&kin.DateOfBirth,
		&kin.Gender,
		&kin.Relationship,
		&kin.EmailAddress,
		&kin.PhoneNumber,
		&kin.Address,
		&kin.City,
		&kin.Country,
		&kin.IsPrimary,
		&kin.CreatedAt,
		&kin.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrNextOfKinNotFound
		}
		return nil, err
	}
	return &kin, nil
}

// primaryConflict maps a violation of the one-primary-per-profile index.
func primaryConflict(err error) error {
	if constraint, ok := isUniqueViolation(err); ok && constraint == "next_of_kin_one_primary_idx" {
		return ErrPrimaryNextOfKin
	}
	return err
}

// CreateNextOfKin inserts a next of kin record.
func (r *PostgresRepository) CreateNextOfKin(ctx context.Context, kin *domain.NextOfKin) error {
	if kin.ID == uuid.Nil {
		kin.ID = uuid.New()
	}
	query := `
		INSERT INTO next_of_kin (
			id, profile_id, title, first_name, last_name, other_names, date_of_birth, gender,
			relationship, email_address, phone_number, address, city, country, is_primary
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		RETURNING created_at, updated_at
	`
	err := r.db.QueryRow(ctx, query,
		kin.ID, kin.ProfileID, kin.Title, kin.FirstName, kin.LastName, kin.OtherNames,
		kin.DateOfBirth, kin.Gender, kin.Relationship, kin.EmailAddress, kin.PhoneNumber,
		kin.Address, kin.City, kin.Country, kin.IsPrimary,
	).Scan(&kin.CreatedAt, &kin.UpdatedAt)
	return primaryConflict(err)
}

// UpdateNextOfKin overwrites a next of kin record of the same profile.
func (r *PostgresRepository) UpdateNextOfKin(ctx context.Context, kin *domain.NextOfKin) error {
	query := `
		UPDATE next_of_kin SET
			title = $3, first_name = $4, last_name = $5, other_names = $6, date_of_birth = $7,
			gender = $8, relationship = $9, email_address = $10, phone_number = $11,
			address = $12, city = $13, country = $14, is_primary = $15, updated_at = NOW()
		WHERE id = $1 AND profile_id = $2
		RETURNING updated_at
	`
	err := r.db.QueryRow(ctx, query,
		kin.ID, kin.ProfileID, kin.Title, kin.FirstName, kin.LastName, kin.OtherNames,
		kin.DateOfBirth, kin.Gender, kin.Relationship, kin.EmailAddress, kin.PhoneNumber,
		kin.Address, kin.City, kin.Country, kin.IsPrimary,
	).Scan(&kin.UpdatedAt)
	if err == pgx.ErrNoRows {
		return ErrNextOfKinNotFound
	}
	return primaryConflict(err)
}

// FindNextOfKin retrieves one next of kin of a profile.
func (r *PostgresRepository) FindNextOfKin(ctx context.Context, profileID, kinID uuid.UUID) (*domain.NextOfKin, error) {
	query := `SELECT ` + nextOfKinColumns + ` FROM next_of_kin WHERE id = $1 AND profile_id = $2`
	return scanNextOfKin(r.db.QueryRow(ctx, query, kinID, profileID))
}

// ListNextOfKin returns the next of kin of a profile, primary first.
func (r *PostgresRepository) ListNextOfKin(ctx context.Context, profileID uuid.UUID) ([]domain.NextOfKin, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+nextOfKinColumns+`
		FROM next_of_kin
		WHERE profile_id = $1
		ORDER BY is_primary DESC, created_at ASC
	`, profileID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var kins []domain.NextOfKin
	for rows.Next() {
		kin, err := scanNextOfKin(rows)
		if err != nil {
			return nil, err
		}
		kins = append(kins, *kin)
	}
	return kins, rows.Err()
}

// CountNextOfKin returns how many next of kin a profile has.
func (r *PostgresRepository) CountNextOfKin(ctx context.Context, profileID uuid.UUID) (int, error) {
	var count int
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM next_of_kin WHERE profile_id = $1`, profileID).Scan(&count)
	return count, err
}

// DeleteNextOfKin removes one next of kin of a profile.
func (r *PostgresRepository) DeleteNextOfKin(ctx context.Context, profileID, kinID uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM next_of_kin WHERE id = $1 AND profile_id = $2`, kinID, profileID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNextOfKinNotFound
	}
	return nil
}
