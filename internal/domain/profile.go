package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Salutation string

const (
	SalutationMr   Salutation = "mr"
	SalutationMrs  Salutation = "mrs"
	SalutationMiss Salutation = "miss"
)

func (s Salutation) Valid() bool {
	return s == SalutationMr || s == SalutationMrs || s == SalutationMiss
}

type Gender string

const (
	GenderMale   Gender = "male"
	GenderFemale Gender = "female"
)

func (g Gender) Valid() bool {
	return g == GenderMale || g == GenderFemale
}

type MaritalStatus string

const (
	MaritalStatusMarried   MaritalStatus = "married"
	MaritalStatusSingle    MaritalStatus = "single"
	MaritalStatusDivorced  MaritalStatus = "divorced"
	MaritalStatusWidowed   MaritalStatus = "widowed"
	MaritalStatusSeparated MaritalStatus = "separated"
)

func (m MaritalStatus) Valid() bool {
	switch m {
	case MaritalStatusMarried, MaritalStatusSingle, MaritalStatusDivorced, MaritalStatusWidowed, MaritalStatusSeparated:
		return true
	}
	return false
}

type IdentificationMeans string

const (
	IdentificationDriverLicense IdentificationMeans = "driver_license"
	IdentificationNationalID    IdentificationMeans = "national_id"
	IdentificationPassport      IdentificationMeans = "passport"
)

func (i IdentificationMeans) Valid() bool {
	return i == IdentificationDriverLicense || i == IdentificationNationalID || i == IdentificationPassport
}

type EmploymentStatus string

const (
	EmploymentSelfEmployed EmploymentStatus = "self_employed"
	EmploymentEmployed     EmploymentStatus = "employed"
	EmploymentUnemployed   EmploymentStatus = "un_employed"
	EmploymentRetired      EmploymentStatus = "retired"
	EmploymentStudent      EmploymentStatus = "student"
)

func (s EmploymentStatus) Valid() bool {
	switch s {
	case EmploymentSelfEmployed, EmploymentEmployed, EmploymentUnemployed, EmploymentRetired, EmploymentStudent:
		return true
	}
	return false
}

// RequiresEmployer reports whether an employer name must be on file for s.
func (s EmploymentStatus) RequiresEmployer() bool {
	return s == EmploymentEmployed || s == EmploymentSelfEmployed
}

// PhotoField names one of the document images stored on a profile.
type PhotoField string

const (
	PhotoFieldPhoto          PhotoField = "photo"
	PhotoFieldIDPhoto        PhotoField = "id_photo"
	PhotoFieldSignaturePhoto PhotoField = "signature_photo"
)

// PhotoFields lists every document image a profile carries.
var PhotoFields = []PhotoField{PhotoFieldPhoto, PhotoFieldIDPhoto, PhotoFieldSignaturePhoto}

func (f PhotoField) Valid() bool {
	return f == PhotoFieldPhoto || f == PhotoFieldIDPhoto || f == PhotoFieldSignaturePhoto
}

// Profile is the customer's onboarding (KYC) record. It is created empty together
// with its user and filled in by the owner over one or more updates.
type Profile struct {
	ID                    uuid.UUID           `json:"id"`
	UserID                uuid.UUID           `json:"user_id"`
	Title                 Salutation          `json:"title"`
	Gender                Gender              `json:"gender"`
	DateOfBirth           *time.Time          `json:"date_of_birth"`
	CountryOfBirth        string              `json:"country_of_birth"`
	PlaceOfBirth          string              `json:"place_of_birth"`
	MaritalStatus         MaritalStatus       `json:"marital_status"`
	MeansOfIdentification IdentificationMeans `json:"means_of_identification"`
	IDIssueDate           *time.Time          `json:"id_issue_date"`
	IDExpiryDate          *time.Time          `json:"id_expiry_date"`
	PassportNumber        string              `json:"passport_number"`
	Nationality           string              `json:"nationality"`
	PhoneNumber           string              `json:"phone_number"`
	Address               string              `json:"address"`
	City                  string              `json:"city"`
	Country               string              `json:"country"`
	EmploymentStatus      EmploymentStatus    `json:"employment_status"`
	EmployerName          string              `json:"employer_name"`
	AnnualIncome          decimal.Decimal     `json:"annual_income"`
	DateOfEmployment      *time.Time          `json:"date_of_employment"`
	EmployerAddress       string              `json:"employer_address"`
	EmployerCity          string              `json:"employer_city"`
	EmployerState         string              `json:"employer_state"`
	Photo                 string              `json:"photo"`
	PhotoURL              string              `json:"photo_url"`
	IDPhoto               string              `json:"id_photo"`
	IDPhotoURL            string              `json:"id_photo_url"`
	SignaturePhoto        string              `json:"signature_photo"`
	SignaturePhotoURL     string              `json:"signature_photo_url"`
	AccountCurrency       AccountCurrency     `json:"account_currency"`
	AccountType           AccountType         `json:"account_type"`
	CreatedAt             time.Time           `json:"created_at"`
	UpdatedAt             time.Time           `json:"updated_at"`
}

// SetPhoto records the storage id and URL of an uploaded document image.
func (p *Profile) SetPhoto(field PhotoField, publicID, url string) {
	switch field {
	case PhotoFieldPhoto:
		p.Photo, p.PhotoURL = publicID, url
	case PhotoFieldIDPhoto:
		p.IDPhoto, p.IDPhotoURL = publicID, url
	case PhotoFieldSignaturePhoto:
		p.SignaturePhoto, p.SignaturePhotoURL = publicID, url
	}
}

// ProfileView is the last time one viewer, from one address, read a profile.
type ProfileView struct {
	ProfileID  uuid.UUID `json:"profile_id"`
	ViewerID   uuid.UUID `json:"viewer_id"`
	ViewerIP   string    `json:"viewer_ip"`
	LastViewed time.Time `json:"last_viewed"`
}

// ProfileUpdate is a partial update; nil fields are left untouched.
type ProfileUpdate struct {
	Title                 *Salutation          `json:"title"`
	Gender                *Gender              `json:"gender"`
	DateOfBirth           *Date                `json:"date_of_birth"`
	CountryOfBirth        *string              `json:"country_of_birth"`
	PlaceOfBirth          *string              `json:"place_of_birth"`
	MaritalStatus         *MaritalStatus       `json:"marital_status"`
	MeansOfIdentification *IdentificationMeans `json:"means_of_identification"`
	IDIssueDate           *Date                `json:"id_issue_date"`
	IDExpiryDate          *Date                `json:"id_expiry_date"`
	PassportNumber        *string              `json:"passport_number"`
	Nationality           *string              `json:"nationality"`
	PhoneNumber           *string              `json:"phone_number"`
	Address               *string              `json:"address"`
	City                  *string              `json:"city"`
	Country               *string              `json:"country"`
	EmploymentStatus      *EmploymentStatus    `json:"employment_status"`
	EmployerName          *string              `json:"employer_name"`
	AnnualIncome          *decimal.Decimal     `json:"annual_income"`
	DateOfEmployment      *Date                `json:"date_of_employment"`
	EmployerAddress       *string              `json:"employer_address"`
	EmployerCity          *string              `json:"employer_city"`
	EmployerState         *string              `json:"employer_state"`
	AccountCurrency       *AccountCurrency     `json:"account_currency"`
	AccountType           *AccountType         `json:"account_type"`

	// Photos holds document images to upload, keyed by field.
	Photos map[PhotoField]PhotoSource `json:"-"`
}

// NextOfKin is a contact person attached to a profile.
type NextOfKin struct {
	ID           uuid.UUID  `json:"id"`
	ProfileID    uuid.UUID  `json:"profile_id"`
	Title        Salutation `json:"title"`
	FirstName    string     `json:"first_name"`
	LastName     string     `json:"last_name"`
	OtherNames   string     `json:"other_names"`
	DateOfBirth  *time.Time `json:"date_of_birth"`
	Gender       Gender     `json:"gender"`
	Relationship string     `json:"relationship"`
	EmailAddress string     `json:"email_address"`
	PhoneNumber  string     `json:"phone_number"`
	Address      string     `json:"address"`
	City         string     `json:"city"`
	Country      string     `json:"country"`
	IsPrimary    bool       `json:"is_primary"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// NextOfKinInput is the create/update payload for a next of kin.
type NextOfKinInput struct {
	Title        *Salutation `json:"title"`
	FirstName    *string     `json:"first_name"`
	LastName     *string     `json:"last_name"`
	OtherNames   *string     `json:"other_names"`
	DateOfBirth  *Date       `json:"date_of_birth"`
	Gender       *Gender     `json:"gender"`
	Relationship *string     `json:"relationship"`
	EmailAddress *string     `json:"email_address"`
	PhoneNumber  *string     `json:"phone_number"`
	Address      *string     `json:"address"`
	City         *string     `json:"city"`
	Country      *string     `json:"country"`
	IsPrimary    *bool       `json:"is_primary"`
}
