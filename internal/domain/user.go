/**
 * @description
 * This file defines the User model owned by the identity store. Besides the
 * identity fields it carries the login-guard state (failed attempts, lockout
 * start) and the hashed one-time password used as the second login factor.
 *
 * @notes
 * - Secrets (password hash, OTP hash, security answer) are never serialized.
 */
package domain

import (
	"time"

	"github.com/google/uuid"
)

// Role identifies what a user is allowed to do in the back office.
type Role string

const (
	RoleCustomer         Role = "customer"
	RoleAccountExecutive Role = "account_executive"
	RoleTeller           Role = "teller"
	RoleBranchManager    Role = "branch_manager"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleCustomer, RoleAccountExecutive, RoleTeller, RoleBranchManager:
		return true
	}
	return false
}

// User represents a bank customer or staff member.
type User struct {
	ID                 uuid.UUID  `json:"id"`
	Email              string     `json:"email"`
	Username           string     `json:"username"`
	FirstName          string     `json:"first_name"`
	MiddleName         string     `json:"middle_name,omitempty"`
	LastName           string     `json:"last_name"`
	IDNo               string     `json:"id_no"`
	SecurityQuestion   string     `json:"security_question"`
	SecurityAnswer     string     `json:"-"`
	PasswordHash       string     `json:"-"`
	Role               Role       `json:"role"`
	IsStaff            bool       `json:"is_staff"`
	FailedLoginAttempt int        `json:"-"`
	LockoutTime        *time.Time `json:"-"`
	OTP                string     `json:"-"`
	OTPExpiryTime      *time.Time `json:"-"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// FullName joins the user's name parts.
func (u *User) FullName() string {
	name := u.FirstName
	if u.MiddleName != "" {
		name += " " + u.MiddleName
	}
	if u.LastName != "" {
		name += " " + u.LastName
	}
	return name
}

// RegisterUserRequest is the payload accepted by the registration endpoint.
type RegisterUserRequest struct {
	Email            string `json:"email"`
	Username         string `json:"username"`
	Password         string `json:"password"`
	RePassword       string `json:"re_password"`
	FirstName        string `json:"first_name"`
	MiddleName       string `json:"middle_name"`
	LastName         string `json:"last_name"`
	IDNo             string `json:"id_no"`
	SecurityQuestion string `json:"security_question"`
	SecurityAnswer   string `json:"security_answer"`
}

// LoginRequest carries the first-factor credentials.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// VerifyOTPRequest carries the one-time code submitted after login.
type VerifyOTPRequest struct {
	OTP string `json:"otp"`
}
