/**
 * @description
 * This file contains the customer onboarding use cases: reading and updating the
 * caller's profile, managing next of kin, and the branch manager's profile list.
 *
 * Key features:
 * - A profile update and the account provisioning it may trigger commit or roll
 *   back together.
 * - Document images are handed to the photo upload job after commit.
 * - The account-created email is sent after commit and never fails the update.
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/mail"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/onegen/bank-api/internal/domain"
	"github.com/onegen/bank-api/internal/store"
)

var phonePattern = regexp.MustCompile(`^\+?[0-9]{7,15}$`)

// PhotoJobQueue schedules a photo upload job.
type PhotoJobQueue interface {
	Enqueue(ctx context.Context, job domain.PhotoUploadJob) error
}

// ProfileUpdateResult is the updated profile plus the provisioning branch taken.
type ProfileUpdateResult struct {
	Profile   *domain.Profile
	Provision *ProvisionResult
}

// ProfileService implements profile and next-of-kin use cases.
type ProfileService struct {
	repo        store.Repository
	provisioner *AccountProvisioner
	photos      PhotoJobQueue
	mailer      Mailer
	now         func() time.Time
}

func NewProfileService(repo store.Repository, provisioner *AccountProvisioner, photos PhotoJobQueue, mailer Mailer) *ProfileService {
	return &ProfileService{
		repo:        repo,
		provisioner: provisioner,
		photos:      photos,
		mailer:      mailer,
		now:         time.Now,
	}
}

// GetProfile returns the caller's profile.
func (s *ProfileService) GetProfile(ctx context.Context, userID uuid.UUID) (*domain.Profile, error) {
	return s.repo.FindProfileByUserID(ctx, userID)
}

// RecordProfileView notes that viewerID read profileID from viewerIP. A failure is
// logged and never fails the request that triggered it.
func (s *ProfileService) RecordProfileView(ctx context.Context, profileID, viewerID uuid.UUID, viewerIP string) {
	view := &domain.ProfileView{ProfileID: profileID, ViewerID: viewerID, ViewerIP: viewerIP, LastViewed: s.now()}
	if err := s.repo.RecordProfileView(ctx, view); err != nil {
		log.Printf("level=warn component=profile_service msg=\"profile view not recorded\" profile_id=%s err=%v", profileID, err)
	}
}

// ListCustomerProfiles returns every non-staff profile. Only branch managers may call it.
func (s *ProfileService) ListCustomerProfiles(ctx context.Context, role domain.Role) ([]domain.Profile, error) {
	if role != domain.RoleBranchManager {
		return nil, ErrForbidden
	}
	return s.repo.ListCustomerProfiles(ctx)
}

// UpdateProfile applies a partial update to the caller's profile and, when the
// result is complete, provisions the selected bank account in the same transaction.
func (s *ProfileService) UpdateProfile(ctx context.Context, userID uuid.UUID, update domain.ProfileUpdate) (*ProfileUpdateResult, error) {
	if err := s.validateProfileUpdate(update); err != nil {
		return nil, err
	}

	var result *ProfileUpdateResult
	err := s.repo.WithTx(ctx, func(tx store.Repository) error {
		profile, err := tx.FindProfileByUserID(ctx, userID)
		if err != nil {
			return err
		}
		applyProfileUpdate(profile, update)
		if err := tx.UpdateProfile(ctx, profile); err != nil {
			return fmt.Errorf("failed to update profile: %w", err)
		}

		provision, err := s.provisioner.Provision(ctx, tx, profile)
		if err != nil {
			return err
		}
		result = &ProfileUpdateResult{Profile: profile, Provision: provision}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Printf("level=info component=profile_service msg=\"profile updated\" user_id=%s provisioning=%s", userID, result.Provision.Outcome)

	if result.Provision.Outcome == ProvisionCreated {
		s.notifyAccountCreated(ctx, userID, result.Provision.Account)
	}

	if len(update.Photos) > 0 {
		job := domain.PhotoUploadJob{ProfileID: result.Profile.ID, Photos: update.Photos}
		if err := s.photos.Enqueue(ctx, job); err != nil {
			log.Printf("level=error component=profile_service msg=\"photo upload enqueue failed\" profile_id=%s err=%v", result.Profile.ID, err)
		}
	}

	return result, nil
}

// ReconcileProvisioning re-runs provisioning for a profile whose fields changed
// outside UpdateProfile, such as document images set by the upload job.
func (s *ProfileService) ReconcileProvisioning(ctx context.Context, profileID uuid.UUID) (*ProvisionResult, error) {
	var (
		result *ProvisionResult
		userID uuid.UUID
	)
	err := s.repo.WithTx(ctx, func(tx store.Repository) error {
		profile, err := tx.FindProfileByID(ctx, profileID)
		if err != nil {
			return err
		}
		userID = profile.UserID
		result, err = s.provisioner.Provision(ctx, tx, profile)
		return err
	})
	if err != nil {
		return nil, err
	}
	if result.Outcome == ProvisionCreated {
		log.Printf("level=info component=profile_service msg=\"account provisioned after photo upload\" profile_id=%s", profileID)
		s.notifyAccountCreated(ctx, userID, result.Account)
	}
	return result, nil
}

func (s *ProfileService) notifyAccountCreated(ctx context.Context, userID uuid.UUID, account *domain.BankAccount) {
	user, err := s.repo.FindUserByID(ctx, userID)
	if err != nil {
		log.Printf("level=warn component=profile_service msg=\"account created email skipped\" user_id=%s err=%v", userID, err)
		return
	}
	sendBestEffort(ctx, s.mailer, user.Email, domain.TemplateAccountCreated, map[string]any{
		"user_name":      user.FullName(),
		"account_number": account.AccountNumber,
		"currency":       string(account.Currency),
		"account_type":   string(account.AccountType),
	})
}

func (s *ProfileService) validateProfileUpdate(u domain.ProfileUpdate) error {
	errs := fieldErrors{}
	today := s.now().UTC().Truncate(24 * time.Hour)

	if u.Title != nil && !u.Title.Valid() {
		errs.add("title", fmt.Sprintf("%q is not a valid choice", *u.Title))
	}
	if u.Gender != nil && !u.Gender.Valid() {
		errs.add("gender", fmt.Sprintf("%q is not a valid choice", *u.Gender))
	}
	if u.MaritalStatus != nil && !u.MaritalStatus.Valid() {
		errs.add("marital_status", fmt.Sprintf("%q is not a valid choice", *u.MaritalStatus))
	}
	if u.MeansOfIdentification != nil && !u.MeansOfIdentification.Valid() {
		errs.add("means_of_identification", fmt.Sprintf("%q is not a valid choice", *u.MeansOfIdentification))
	}
	if u.EmploymentStatus != nil && !u.EmploymentStatus.Valid() {
		errs.add("employment_status", fmt.Sprintf("%q is not a valid choice", *u.EmploymentStatus))
	}
	if u.AccountCurrency != nil && !u.AccountCurrency.Valid() {
		errs.add("account_currency", fmt.Sprintf("%q is not a valid choice", *u.AccountCurrency))
	}
	if u.AccountType != nil && !u.AccountType.Valid() {
		errs.add("account_type", fmt.Sprintf("%q is not a valid choice", *u.AccountType))
	}
	if u.DateOfBirth != nil && !u.DateOfBirth.Time.Before(today) {
		errs.add("date_of_birth", "date of birth must be in the past")
	}
	if u.IDIssueDate != nil && u.IDIssueDate.Time.After(today) {
		errs.add("id_issue_date", "issue date cannot be in the future")
	}
	if u.IDIssueDate != nil && u.IDExpiryDate != nil && !u.IDExpiryDate.Time.After(u.IDIssueDate.Time) {
		errs.add("id_expiry_date", "expiry date must be after the issue date")
	}
	if u.DateOfEmployment != nil && u.DateOfEmployment.Time.After(today) {
		errs.add("date_of_employment", "date of employment cannot be in the future")
	}
	if u.PhoneNumber != nil && *u.PhoneNumber != "" && !phonePattern.MatchString(normalizePhone(*u.PhoneNumber)) {
		errs.add("phone_number", "enter a valid phone number")
	}
	if u.AnnualIncome != nil && u.AnnualIncome.IsNegative() {
		errs.add("annual_income", "annual income cannot be negative")
	}
	for field, src := range u.Photos {
		if !field.Valid() {
			errs.add(string(field), "unknown photo field")
			continue
		}
		if src.Type != domain.PhotoSourceBase64 && src.Type != domain.PhotoSourceFile {
			errs.add(string(field), "unsupported photo source")
		}
		if strings.TrimSpace(src.Data) == "" {
			errs.add(string(field), "photo data is empty")
		}
	}
	return errs.err()
}

func normalizePhone(phone string) string {
	return strings.NewReplacer(" ", "", "-", "", "(", "", ")", "").Replace(strings.TrimSpace(phone))
}

func applyProfileUpdate(p *domain.Profile, u domain.ProfileUpdate) {
	setString := func(dst *string, src *string) {
		if src != nil {
			*dst = strings.TrimSpace(*src)
		}
	}

	if u.Title != nil {
		p.Title = *u.Title
	}
	if u.Gender != nil {
		p.Gender = *u.Gender
	}
	if u.DateOfBirth != nil {
		p.DateOfBirth = u.DateOfBirth.Ptr()
	}
	setString(&p.CountryOfBirth, u.CountryOfBirth)
	setString(&p.PlaceOfBirth, u.PlaceOfBirth)
	if u.MaritalStatus != nil {
		p.MaritalStatus = *u.MaritalStatus
	}
	if u.MeansOfIdentification != nil {
		p.MeansOfIdentification = *u.MeansOfIdentification
	}
	if u.IDIssueDate != nil {
		p.IDIssueDate = u.IDIssueDate.Ptr()
	}
	if u.IDExpiryDate != nil {
		p.IDExpiryDate = u.IDExpiryDate.Ptr()
	}
	setString(&p.PassportNumber, u.PassportNumber)
	setString(&p.Nationality, u.Nationality)
	if u.PhoneNumber != nil {
		p.PhoneNumber = normalizePhone(*u.PhoneNumber)
	}
	setString(&p.Address, u.Address)
	setString(&p.City, u.City)
	setString(&p.Country, u.Country)
	if u.EmploymentStatus != nil {
		p.EmploymentStatus = *u.EmploymentStatus
	}
	setString(&p.EmployerName, u.EmployerName)
	if u.AnnualIncome != nil {
		p.AnnualIncome = u.AnnualIncome.Round(2)
	}
	if u.DateOfEmployment != nil {
		p.DateOfEmployment = u.DateOfEmployment.Ptr()
	}
	setString(&p.EmployerAddress, u.EmployerAddress)
	setString(&p.EmployerCity, u.EmployerCity)
	setString(&p.EmployerState, u.EmployerState)
	if u.AccountCurrency != nil {
		p.AccountCurrency = *u.AccountCurrency
	}
	if u.AccountType != nil {
		p.AccountType = *u.AccountType
	}
}

// ListNextOfKin returns the caller's next of kin.
func (s *ProfileService) ListNextOfKin(ctx context.Context, userID uuid.UUID) ([]domain.NextOfKin, error) {
	profile, err := s.repo.FindProfileByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.repo.ListNextOfKin(ctx, profile.ID)
}

// GetNextOfKin returns one of the caller's next of kin.
func (s *ProfileService) GetNextOfKin(ctx context.Context, userID, kinID uuid.UUID) (*domain.NextOfKin, error) {
	profile, err := s.repo.FindProfileByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.repo.FindNextOfKin(ctx, profile.ID, kinID)
}

// AddNextOfKin attaches a new next of kin to the caller's profile.
func (s *ProfileService) AddNextOfKin(ctx context.Context, userID uuid.UUID, input domain.NextOfKinInput) (*domain.NextOfKin, error) {
	profile, err := s.repo.FindProfileByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}

	kin := &domain.NextOfKin{ProfileID: profile.ID}
	applyNextOfKinInput(kin, input)
	if err := s.validateNextOfKin(kin); err != nil {
		return nil, err
	}

	if err := s.repo.CreateNextOfKin(ctx, kin); err != nil {
		return nil, mapNextOfKinError(err)
	}
	return kin, nil
}

// UpdateNextOfKin partially updates one of the caller's next of kin.
func (s *ProfileService) UpdateNextOfKin(ctx context.Context, userID, kinID uuid.UUID, input domain.NextOfKinInput) (*domain.NextOfKin, error) {
	profile, err := s.repo.FindProfileByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	kin, err := s.repo.FindNextOfKin(ctx, profile.ID, kinID)
	if err != nil {
		return nil, err
	}

	applyNextOfKinInput(kin, input)
	if err := s.validateNextOfKin(kin); err != nil {
		return nil, err
	}

	if err := s.repo.UpdateNextOfKin(ctx, kin); err != nil {
		return nil, mapNextOfKinError(err)
	}
	return kin, nil
}

// DeleteNextOfKin removes one of the caller's next of kin.
func (s *ProfileService) DeleteNextOfKin(ctx context.Context, userID, kinID uuid.UUID) error {
	profile, err := s.repo.FindProfileByUserID(ctx, userID)
	if err != nil {
		return err
	}
	return s.repo.DeleteNextOfKin(ctx, profile.ID, kinID)
}

func mapNextOfKinError(err error) error {
	if errors.Is(err, store.ErrPrimaryNextOfKin) {
		return validationFailed("is_primary", "this profile already has a primary next of kin")
	}
	return err
}

func applyNextOfKinInput(kin *domain.NextOfKin, in domain.NextOfKinInput) {
	setString := func(dst *string, src *string) {
		if src != nil {
			*dst = strings.TrimSpace(*src)
		}
	}

	if in.Title != nil {
		kin.Title = *in.Title
	}
	setString(&kin.FirstName, in.FirstName)
	setString(&kin.LastName, in.LastName)
	setString(&kin.OtherNames, in.OtherNames)
	if in.DateOfBirth != nil {
		kin.DateOfBirth = in.DateOfBirth.Ptr()
	}
	if in.Gender != nil {
		kin.Gender = *in.Gender
	}
	setString(&kin.Relationship, in.Relationship)
	if in.EmailAddress != nil {
		kin.EmailAddress = strings.ToLower(strings.TrimSpace(*in.EmailAddress))
	}
	if in.PhoneNumber != nil {
		kin.PhoneNumber = normalizePhone(*in.PhoneNumber)
	}
	setString(&kin.Address, in.Address)
	setString(&kin.City, in.City)
	setString(&kin.Country, in.Country)
	if in.IsPrimary != nil {
		kin.IsPrimary = *in.IsPrimary
	}
}

func (s *ProfileService) validateNextOfKin(kin *domain.NextOfKin) error {
	errs := fieldErrors{}
	required := map[string]string{
		"first_name":   kin.FirstName,
		"last_name":    kin.LastName,
		"relationship": kin.Relationship,
		"phone_number": kin.PhoneNumber,
		"address":      kin.Address,
	}
	for field, value := range required {
		if value == "" {
			errs.add(field, "this field is required")
		}
	}
	if kin.Title != "" && !kin.Title.Valid() {
		errs.add("title", fmt.Sprintf("%q is not a valid choice", kin.Title))
	}
	if kin.Gender != "" && !kin.Gender.Valid() {
		errs.add("gender", fmt.Sprintf("%q is not a valid choice", kin.Gender))
	}
	if kin.DateOfBirth != nil && !kin.DateOfBirth.Before(s.now().UTC().Truncate(24*time.Hour)) {
		errs.add("date_of_birth", "date of birth must be in the past")
	}
	if kin.PhoneNumber != "" && !phonePattern.MatchString(kin.PhoneNumber) {
		errs.add("phone_number", "enter a valid phone number")
	}
	if kin.EmailAddress != "" {
		if _, err := mail.ParseAddress(kin.EmailAddress); err != nil {
			errs.add("email_address", "enter a valid email address")
		}
	}
	return errs.err()
}
