package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/onegen/bank-api/internal/domain"
)

const userColumns = `
	id, email, username, first_name, middle_name, last_name, id_no,
	security_question, security_answer, password_hash, role, is_staff,
	failed_login_attempt, lockout_time, otp, otp_expiry_time, created_at, updated_at`

func scanUser(row pgx.Row) (*domain.User, error) {
	var user domain.User
	err := row.Scan(
		&user.ID,
		&user.Email,
		&user.Username,
		&user.FirstName,
		&user.MiddleName,
		&user.LastName,
		&user.IDNo,
		&user.SecurityQuestion,
		&user.SecurityAnswer,
		&user.PasswordHash,
		&user.Role,
		&user.IsStaff,
		&user.FailedLoginAttempt,
		&user.LockoutTime,
		&user.OTP,
		&user.OTPExpiryTime,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

// CreateUser inserts a new user. Unique violations are reported as *DuplicateUserError.
func (r *PostgresRepository) CreateUser(ctx context.Context, user *domain.User) error {
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	query := `
		INSERT INTO users (
			id, email, username, first_name, middle_name, last_name, id_no,
			security_question, security_answer, password_hash, role, is_staff
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING created_at, updated_at
	`
	err := r.db.QueryRow(ctx, query,
		user.ID,
		user.Email,
		user.Username,
		user.FirstName,
		user.MiddleName,
		user.LastName,
		user.IDNo,
		user.SecurityQuestion,
		user.SecurityAnswer,
		user.PasswordHash,
		user.Role,
		user.IsStaff,
	).Scan(&user.CreatedAt, &user.UpdatedAt)
	if constraint, ok := isUniqueViolation(err); ok {
		switch constraint {
		case "users_email_key":
			return &DuplicateUserError{Field: "email"}
		case "users_username_key":
			return &DuplicateUserError{Field: "username"}
		case "users_id_no_key":
			return &DuplicateUserError{Field: "id_no"}
		}
		return ErrDuplicateUser
	}
	return err
}

// FindUserByID retrieves a user by their ID.
func (r *PostgresRepository) FindUserByID(ctx context.Context, userID uuid.UUID) (*domain.User, error) {
	return scanUser(r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, userID))
}

// FindUserByEmail retrieves a user by email, case-insensitively.
func (r *PostgresRepository) FindUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	return scanUser(r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = lower(btrim($1))`, email))
}

// ListUsersWithActiveOTP returns users holding an OTP that has not expired at now.
func (r *PostgresRepository) ListUsersWithActiveOTP(ctx context.Context, now time.Time) ([]domain.User, error) {
	rows, err := r.db.Query(ctx, `SELECT `+userColumns+` FROM users WHERE otp <> '' AND otp_expiry_time > $1`, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []domain.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *user)
	}
	return users, rows.Err()
}

// ResetLoginAttempts clears the failed-attempt counter and any lockout.
func (r *PostgresRepository) ResetLoginAttempts(ctx context.Context, userID uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE users
		SET failed_login_attempt = 0, lockout_time = NULL, updated_at = NOW()
		WHERE id = $1
	`, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// RecordFailedLogin atomically increments the failed-attempt counter and starts the
// lockout window at now once the counter reaches maxAttempts.
func (r *PostgresRepository) RecordFailedLogin(ctx context.Context, userID uuid.UUID, maxAttempts int, now time.Time) (*domain.User, error) {
	query := `
		UPDATE users
		SET
			failed_login_attempt = failed_login_attempt + 1,
			lockout_time = CASE
				WHEN failed_login_attempt + 1 >= $2 AND lockout_time IS NULL THEN $3
				ELSE lockout_time
			END,
			updated_at = NOW()
		WHERE id = $1
		RETURNING ` + userColumns
	return scanUser(r.db.QueryRow(ctx, query, userID, maxAttempts, now))
}

// SetOTP stores a hashed one-time password and its expiry.
func (r *PostgresRepository) SetOTP(ctx context.Context, userID uuid.UUID, otpHash string, expiresAt time.Time) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE users SET otp = $2, otp_expiry_time = $3, updated_at = NOW() WHERE id = $1
	`, userID, otpHash, expiresAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// ClearOTP clears the OTP only if it still equals otpHash. It reports whether this
// call consumed the code, so concurrent submissions of one code succeed at most once.
func (r *PostgresRepository) ClearOTP(ctx context.Context, userID uuid.UUID, otpHash string) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE users SET otp = '', otp_expiry_time = NULL, updated_at = NOW()
		WHERE id = $1 AND otp = $2 AND otp <> ''
	`, userID, otpHash)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// PurgeExpiredOTPs clears every OTP whose expiry is at or before now.
func (r *PostgresRepository) PurgeExpiredOTPs(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE users SET otp = '', otp_expiry_time = NULL, updated_at = NOW()
		WHERE otp <> '' AND otp_expiry_time <= $1
	`, now)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
