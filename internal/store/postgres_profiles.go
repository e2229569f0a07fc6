package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/onegen/bank-api/internal/domain"
)

const profileColumns = `
	p.id, p.user_id, p.title, p.gender, p.date_of_birth, p.country_of_birth, p.place_of_birth,
	p.marital_status, p.means_of_identification, p.id_issue_date, p.id_expiry_date,
	p.passport_number, p.nationality, p.phone_number, p.address, p.city, p.country,
	p.employment_status, p.employer_name, p.annual_income, p.date_of_employment,
	p.employer_address, p.employer_city, p.employer_state,
	p.photo, p.photo_url, p.id_photo, p.id_photo_url, p.signature_photo, p.signature_photo_url,
	p.account_currency, p.account_type, p.created_at, p.updated_at`

func scanProfile(row pgx.Row) (*domain.Profile, error) {
	var p domain.Profile
	err := row.Scan(
		&p.ID,
		&p.UserID,
		&p.Title,
		&p.Gender,
		&p.DateOfBirth,
		&p.CountryOfBirth,
		&p.PlaceOfBirth,
		&p.MaritalStatus,
		&p.MeansOfIdentification,
		&p.IDIssueDate,
		&p.IDExpiryDate,
		&p.PassportNumber,
		&p.Nationality,
		&p.PhoneNumber,
		&p.Address,
		&p.City,
		&p.Country,
		&p.EmploymentStatus,
		&p.EmployerName,
		&p.AnnualIncome,
		&p.DateOfEmployment,
		&p.EmployerAddress,
		&p.EmployerCity,
		&p.EmployerState,
		&p.Photo,
		&p.PhotoURL,
		&p.IDPhoto,
		&p.IDPhotoURL,
		&p.SignaturePhoto,
		&p.SignaturePhotoURL,
		&p.AccountCurrency,
		&p.AccountType,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrProfileNotFound
		}
		return nil, err
	}
	return &p, nil
}

// CreateProfile inserts the empty onboarding profile of a user.
func (r *PostgresRepository) CreateProfile(ctx context.Context, userID uuid.UUID) (*domain.Profile, error) {
	query := `
		INSERT INTO profiles AS p (id, user_id) VALUES ($1, $2)
		RETURNING ` + profileColumns
	return scanProfile(r.db.QueryRow(ctx, query, uuid.New(), userID))
}

// FindProfileByUserID retrieves the profile owned by a user.
func (r *PostgresRepository) FindProfileByUserID(ctx context.Context, userID uuid.UUID) (*domain.Profile, error) {
	return scanProfile(r.db.QueryRow(ctx, `SELECT `+profileColumns+` FROM profiles p WHERE p.user_id = $1`, userID))
}

// FindProfileByID retrieves a profile by its ID.
func (r *PostgresRepository) FindProfileByID(ctx context.Context, profileID uuid.UUID) (*domain.Profile, error) {
	return scanProfile(r.db.QueryRow(ctx, `SELECT `+profileColumns+` FROM profiles p WHERE p.id = $1`, profileID))
}

// UpdateProfile writes every onboarding field of profile. Photo references are
// owned by the upload worker and are not touched here.
func (r *PostgresRepository) UpdateProfile(ctx context.Context, profile *domain.Profile) error {
	query := `
		UPDATE profiles SET
			title = $2, gender = $3, date_of_birth = $4, country_of_birth = $5, place_of_birth = $6,
			marital_status = $7, means_of_identification = $8, id_issue_date = $9, id_expiry_date = $10,
			passport_number = $11, nationality = $12, phone_number = $13, address = $14, city = $15,
			country = $16, employment_status = $17, employer_name = $18, annual_income = $19,
			date_of_employment = $20, employer_address = $21, employer_city = $22, employer_state = $23,
			account_currency = $24, account_type = $25, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at
	`
	err := r.db.QueryRow(ctx, query,
		profile.ID,
		profile.Title,
		profile.Gender,
		profile.DateOfBirth,
		profile.CountryOfBirth,
		profile.PlaceOfBirth,
		profile.MaritalStatus,
		profile.MeansOfIdentification,
		profile.IDIssueDate,
		profile.IDExpiryDate,
		profile.PassportNumber,
		profile.Nationality,
		profile.PhoneNumber,
		profile.Address,
		profile.City,
		profile.Country,
		profile.EmploymentStatus,
		profile.EmployerName,
		profile.AnnualIncome,
		profile.DateOfEmployment,
		profile.EmployerAddress,
		profile.EmployerCity,
		profile.EmployerState,
		profile.AccountCurrency,
		profile.AccountType,
	).Scan(&profile.UpdatedAt)
	if err == pgx.ErrNoRows {
		return ErrProfileNotFound
	}
	return err
}

var photoColumns = map[domain.PhotoField][2]string{
	domain.PhotoFieldPhoto:          {"photo", "photo_url"},
	domain.PhotoFieldIDPhoto:        {"id_photo", "id_photo_url"},
	domain.PhotoFieldSignaturePhoto: {"signature_photo", "signature_photo_url"},
}

// UpdateProfilePhoto records the storage id and URL of one uploaded document image.
func (r *PostgresRepository) UpdateProfilePhoto(ctx context.Context, profileID uuid.UUID, field domain.PhotoField, publicID, url string) error {
	cols, ok := photoColumns[field]
	if !ok {
		return fmt.Errorf("unknown photo field %q", field)
	}
	query := fmt.Sprintf(`UPDATE profiles SET %s = $2, %s = $3, updated_at = NOW() WHERE id = $1`, cols[0], cols[1])
	tag, err := r.db.Exec(ctx, query, profileID, publicID, url)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrProfileNotFound
	}
	return nil
}

// ListCustomerProfiles returns the profiles of all non-staff users, newest first.
func (r *PostgresRepository) ListCustomerProfiles(ctx context.Context) ([]domain.Profile, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+profileColumns+`
		FROM profiles p
		JOIN users u ON u.id = p.user_id
		WHERE u.is_staff = FALSE
		ORDER BY p.created_at DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var profiles []domain.Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		profiles = append(profiles, *p)
	}
	return profiles, rows.Err()
}

// RecordProfileView stores the view, or moves last_viewed forward if this viewer
// already read the profile from the same address.
func (r *PostgresRepository) RecordProfileView(ctx context.Context, view *domain.ProfileView) error {
	query := `
		INSERT INTO profile_views (id, profile_id, viewer_id, viewer_ip, last_viewed)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT ON CONSTRAINT profile_views_viewer_key
		DO UPDATE SET last_viewed = GREATEST(profile_views.last_viewed, EXCLUDED.last_viewed)
	`
	if _, err := r.db.Exec(ctx, query, uuid.New(), view.ProfileID, view.ViewerID, view.ViewerIP, view.LastViewed); err != nil {
		return fmt.Errorf("failed to record profile view: %w", err)
	}
	return nil
}
