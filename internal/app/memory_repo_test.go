package app

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/onegen/bank-api/internal/domain"
	"github.com/onegen/bank-api/internal/store"
	"github.com/shopspring/decimal"
)

// memoryState is an in-memory stand-in for PostgreSQL. It emulates the unique
// constraints and the non-negative balance check the migrations declare.
type memoryState struct {
	users    map[uuid.UUID]domain.User
	profiles map[uuid.UUID]domain.Profile
	kins     map[uuid.UUID]domain.NextOfKin
	accounts map[uuid.UUID]domain.BankAccount
	txns     []domain.Transaction
	views    map[profileViewKey]domain.ProfileView
}

type profileViewKey struct {
	profileID uuid.UUID
	viewerID  uuid.UUID
	viewerIP  string
}

func (s memoryState) clone() memoryState {
	c := memoryState{
		users:    make(map[uuid.UUID]domain.User, len(s.users)),
		profiles: make(map[uuid.UUID]domain.Profile, len(s.profiles)),
		kins:     make(map[uuid.UUID]domain.NextOfKin, len(s.kins)),
		accounts: make(map[uuid.UUID]domain.BankAccount, len(s.accounts)),
		txns:     append([]domain.Transaction(nil), s.txns...),
		views:    make(map[profileViewKey]domain.ProfileView, len(s.views)),
	}
	for k, v := range s.views {
		c.views[k] = v
	}
	for k, v := range s.users {
		c.users[k] = v
	}
	for k, v := range s.profiles {
		c.profiles[k] = v
	}
	for k, v := range s.kins {
		c.kins[k] = v
	}
	for k, v := range s.accounts {
		c.accounts[k] = v
	}
	return c
}

type memoryDB struct {
	mu    sync.Mutex
	txMu  sync.Mutex
	state memoryState

	createAccountErr error
	txCount          int

	// staleAccountLookups makes that many FindAccountByUserCurrencyType calls
	// miss, as if a concurrent insert were not yet visible.
	staleAccountLookups int
	// beforeCreateAccount runs under the lock ahead of each CreateAccount.
	beforeCreateAccount func(state *memoryState)
}

type memoryRepo struct {
	db   *memoryDB
	inTx bool
}

var _ store.Repository = (*memoryRepo)(nil)

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{db: &memoryDB{state: memoryState{
		users:    map[uuid.UUID]domain.User{},
		profiles: map[uuid.UUID]domain.Profile{},
		kins:     map[uuid.UUID]domain.NextOfKin{},
		accounts: map[uuid.UUID]domain.BankAccount{},
		views:    map[profileViewKey]domain.ProfileView{},
	}}}
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(store.Repository) error) error {
	if r.inTx {
		return fn(r)
	}
	r.db.txMu.Lock()
	defer r.db.txMu.Unlock()

	r.db.mu.Lock()
	snapshot := r.db.state.clone()
	r.db.txCount++
	r.db.mu.Unlock()

	if err := fn(&memoryRepo{db: r.db, inTx: true}); err != nil {
		r.db.mu.Lock()
		r.db.state = snapshot
		r.db.mu.Unlock()
		return err
	}
	return nil
}

func (r *memoryRepo) lock() func() {
	r.db.mu.Lock()
	return r.db.mu.Unlock
}

// Users

func (r *memoryRepo) CreateUser(ctx context.Context, user *domain.User) error {
	defer r.lock()()
	for _, u := range r.db.state.users {
		switch {
		case u.Email == user.Email:
			return &store.DuplicateUserError{Field: "email"}
		case u.Username == user.Username:
			return &store.DuplicateUserError{Field: "username"}
		case u.IDNo == user.IDNo:
			return &store.DuplicateUserError{Field: "id_no"}
		}
	}
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	user.CreatedAt = time.Now()
	user.UpdatedAt = user.CreatedAt
	r.db.state.users[user.ID] = *user
	return nil
}

func (r *memoryRepo) FindUserByID(ctx context.Context, userID uuid.UUID) (*domain.User, error) {
	defer r.lock()()
	u, ok := r.db.state.users[userID]
	if !ok {
		return nil, store.ErrUserNotFound
	}
	return &u, nil
}

func (r *memoryRepo) FindUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	defer r.lock()()
	for _, u := range r.db.state.users {
		if u.Email == normalizeEmail(email) {
			found := u
			return &found, nil
		}
	}
	return nil, store.ErrUserNotFound
}

func (r *memoryRepo) ListUsersWithActiveOTP(ctx context.Context, now time.Time) ([]domain.User, error) {
	defer r.lock()()
	var users []domain.User
	for _, u := range r.db.state.users {
		if u.OTP != "" && u.OTPExpiryTime != nil && u.OTPExpiryTime.After(now) {
			users = append(users, u)
		}
	}
	return users, nil
}

func (r *memoryRepo) ResetLoginAttempts(ctx context.Context, userID uuid.UUID) error {
	defer r.lock()()
	u, ok := r.db.state.users[userID]
	if !ok {
		return store.ErrUserNotFound
	}
	u.FailedLoginAttempt = 0
	u.LockoutTime = nil
	r.db.state.users[userID] = u
	return nil
}

func (r *memoryRepo) RecordFailedLogin(ctx context.Context, userID uuid.UUID, maxAttempts int, now time.Time) (*domain.User, error) {
	defer r.lock()()
	u, ok := r.db.state.users[userID]
	if !ok {
		return nil, store.ErrUserNotFound
	}
	u.FailedLoginAttempt++
	if u.FailedLoginAttempt >= maxAttempts && u.LockoutTime == nil {
		lockedAt := now
		u.LockoutTime = &lockedAt
	}
	r.db.state.users[userID] = u
	return &u, nil
}

func (r *memoryRepo) SetOTP(ctx context.Context, userID uuid.UUID, otpHash string, expiresAt time.Time) error {
	defer r.lock()()
	u, ok := r.db.state.users[userID]
	if !ok {
		return store.ErrUserNotFound
	}
	u.OTP = otpHash
	u.OTPExpiryTime = &expiresAt
	r.db.state.users[userID] = u
	return nil
}

func (r *memoryRepo) ClearOTP(ctx context.Context, userID uuid.UUID, otpHash string) (bool, error) {
	defer r.lock()()
	u, ok := r.db.state.users[userID]
	if !ok || u.OTP == "" || u.OTP != otpHash {
		return false, nil
	}
	u.OTP = ""
	u.OTPExpiryTime = nil
	r.db.state.users[userID] = u
	return true, nil
}

func (r *memoryRepo) PurgeExpiredOTPs(ctx context.Context, now time.Time) (int64, error) {
	defer r.lock()()
	var n int64
	for id, u := range r.db.state.users {
		if u.OTP != "" && u.OTPExpiryTime != nil && !u.OTPExpiryTime.After(now) {
			u.OTP = ""
			u.OTPExpiryTime = nil
			r.db.state.users[id] = u
			n++
		}
	}
	return n, nil
}

// Profiles

func (r *memoryRepo) CreateProfile(ctx context.Context, userID uuid.UUID) (*domain.Profile, error) {
	defer r.lock()()
	p := domain.Profile{ID: uuid.New(), UserID: userID, CreatedAt: time.Now(), UpdatedAt: time.Now()}
	r.db.state.profiles[p.ID] = p
	return &p, nil
}

func (r *memoryRepo) FindProfileByUserID(ctx context.Context, userID uuid.UUID) (*domain.Profile, error) {
	defer r.lock()()
	for _, p := range r.db.state.profiles {
		if p.UserID == userID {
			found := p
			return &found, nil
		}
	}
	return nil, store.ErrProfileNotFound
}

func (r *memoryRepo) FindProfileByID(ctx context.Context, profileID uuid.UUID) (*domain.Profile, error) {
	defer r.lock()()
	p, ok := r.db.state.profiles[profileID]
	if !ok {
		return nil, store.ErrProfileNotFound
	}
	return &p, nil
}

func (r *memoryRepo) UpdateProfile(ctx context.Context, profile *domain.Profile) error {
	defer r.lock()()
	current, ok := r.db.state.profiles[profile.ID]
	if !ok {
		return store.ErrProfileNotFound
	}
	updated := *profile
	updated.Photo, updated.PhotoURL = current.Photo, current.PhotoURL
	updated.IDPhoto, updated.IDPhotoURL = current.IDPhoto, current.IDPhotoURL
	updated.SignaturePhoto, updated.SignaturePhotoURL = current.SignaturePhoto, current.SignaturePhotoURL
	updated.UpdatedAt = time.Now()
	r.db.state.profiles[profile.ID] = updated
	return nil
}

func (r *memoryRepo) UpdateProfilePhoto(ctx context.Context, profileID uuid.UUID, field domain.PhotoField, publicID, url string) error {
	defer r.lock()()
	p, ok := r.db.state.profiles[profileID]
	if !ok {
		return store.ErrProfileNotFound
	}
	p.SetPhoto(field, publicID, url)
	r.db.state.profiles[profileID] = p
	return nil
}

func (r *memoryRepo) RecordProfileView(ctx context.Context, view *domain.ProfileView) error {
	defer r.lock()()
	if _, ok := r.db.state.profiles[view.ProfileID]; !ok {
		return store.ErrProfileNotFound
	}
	key := profileViewKey{profileID: view.ProfileID, viewerID: view.ViewerID, viewerIP: view.ViewerIP}
	if current, ok := r.db.state.views[key]; ok && current.LastViewed.After(view.LastViewed) {
		return nil
	}
	r.db.state.views[key] = *view
	return nil
}

func (r *memoryRepo) ListCustomerProfiles(ctx context.Context) ([]domain.Profile, error) {
	defer r.lock()()
	var profiles []domain.Profile
	for _, p := range r.db.state.profiles {
		if u, ok := r.db.state.users[p.UserID]; ok && !u.IsStaff {
			profiles = append(profiles, p)
		}
	}
	return profiles, nil
}

// Next of kin

func (r *memoryRepo) primaryTaken(kin *domain.NextOfKin) bool {
	if !kin.IsPrimary {
		return false
	}
	for id, k := range r.db.state.kins {
		if id != kin.ID && k.ProfileID == kin.ProfileID && k.IsPrimary {
			return true
		}
	}
	return false
}

func (r *memoryRepo) CreateNextOfKin(ctx context.Context, kin *domain.NextOfKin) error {
	defer r.lock()()
	if kin.ID == uuid.Nil {
		kin.ID = uuid.New()
	}
	if r.primaryTaken(kin) {
		return store.ErrPrimaryNextOfKin
	}
	kin.CreatedAt = time.Now()
	kin.UpdatedAt = kin.CreatedAt
	r.db.state.kins[kin.ID] = *kin
	return nil
}

func (r *memoryRepo) UpdateNextOfKin(ctx context.Context, kin *domain.NextOfKin) error {
	defer r.lock()()
	current, ok := r.db.state.kins[kin.ID]
	if !ok || current.ProfileID != kin.ProfileID {
		return store.ErrNextOfKinNotFound
	}
	if r.primaryTaken(kin) {
		return store.ErrPrimaryNextOfKin
	}
	r.db.state.kins[kin.ID] = *kin
	return nil
}

func (r *memoryRepo) FindNextOfKin(ctx context.Context, profileID, kinID uuid.UUID) (*domain.NextOfKin, error) {
	defer r.lock()()
	k, ok := r.db.state.kins[kinID]
	if !ok || k.ProfileID != profileID {
		return nil, store.ErrNextOfKinNotFound
	}
	return &k, nil
}

func (r *memoryRepo) ListNextOfKin(ctx context.Context, profileID uuid.UUID) ([]domain.NextOfKin, error) {
	defer r.lock()()
	var kins []domain.NextOfKin
	for _, k := range r.db.state.kins {
		if k.ProfileID == profileID {
			kins = append(kins, k)
		}
	}
	return kins, nil
}

func (r *memoryRepo) CountNextOfKin(ctx context.Context, profileID uuid.UUID) (int, error) {
	kins, _ := r.ListNextOfKin(ctx, profileID)
	return len(kins), nil
}

func (r *memoryRepo) DeleteNextOfKin(ctx context.Context, profileID, kinID uuid.UUID) error {
	defer r.lock()()
	k, ok := r.db.state.kins[kinID]
	if !ok || k.ProfileID != profileID {
		return store.ErrNextOfKinNotFound
	}
	delete(r.db.state.kins, kinID)
	return nil
}

// Accounts

func (r *memoryRepo) CreateAccount(ctx context.Context, account *domain.BankAccount) (bool, error) {
	defer r.lock()()
	if r.db.createAccountErr != nil {
		return false, r.db.createAccountErr
	}
	if r.db.beforeCreateAccount != nil {
		r.db.beforeCreateAccount(&r.db.state)
	}
	for _, a := range r.db.state.accounts {
		if a.UserID == account.UserID && a.Currency == account.Currency && a.AccountType == account.AccountType {
			return false, nil
		}
		if a.AccountNumber == account.AccountNumber {
			return false, store.ErrAccountNumberExists
		}
	}
	if account.ID == uuid.Nil {
		account.ID = uuid.New()
	}
	account.CreatedAt = time.Now()
	account.UpdatedAt = account.CreatedAt
	r.db.state.accounts[account.ID] = *account
	return true, nil
}

func (r *memoryRepo) AccountNumberExists(ctx context.Context, accountNumber string) (bool, error) {
	defer r.lock()()
	for _, a := range r.db.state.accounts {
		if a.AccountNumber == accountNumber {
			return true, nil
		}
	}
	return false, nil
}

func (r *memoryRepo) FindAccountByUserCurrencyType(ctx context.Context, userID uuid.UUID, currency domain.AccountCurrency, accountType domain.AccountType) (*domain.BankAccount, error) {
	defer r.lock()()
	if r.db.staleAccountLookups > 0 {
		r.db.staleAccountLookups--
		return nil, store.ErrAccountNotFound
	}
	for _, a := range r.db.state.accounts {
		if a.UserID == userID && a.Currency == currency && a.AccountType == accountType {
			found := a
			return &found, nil
		}
	}
	return nil, store.ErrAccountNotFound
}

func (r *memoryRepo) FindAccountByID(ctx context.Context, accountID uuid.UUID) (*domain.BankAccount, error) {
	defer r.lock()()
	a, ok := r.db.state.accounts[accountID]
	if !ok {
		return nil, store.ErrAccountNotFound
	}
	return &a, nil
}

func (r *memoryRepo) FindAccountByNumberForUpdate(ctx context.Context, accountNumber string) (*domain.BankAccount, error) {
	defer r.lock()()
	for _, a := range r.db.state.accounts {
		if a.AccountNumber == accountNumber {
			found := a
			return &found, nil
		}
	}
	return nil, store.ErrAccountNotFound
}

func (r *memoryRepo) ListAccountsByUserID(ctx context.Context, userID uuid.UUID) ([]domain.BankAccount, error) {
	defer r.lock()()
	var accounts []domain.BankAccount
	for _, a := range r.db.state.accounts {
		if a.UserID == userID {
			accounts = append(accounts, a)
		}
	}
	sort.Slice(accounts, func(i, j int) bool { return accounts[i].AccountNumber < accounts[j].AccountNumber })
	return accounts, nil
}

func (r *memoryRepo) DemoteAccounts(ctx context.Context, userID uuid.UUID) error {
	defer r.lock()()
	for id, a := range r.db.state.accounts {
		if a.UserID == userID {
			a.IsPrimary = false
			r.db.state.accounts[id] = a
		}
	}
	return nil
}

func (r *memoryRepo) PromoteAccount(ctx context.Context, userID, accountID uuid.UUID) error {
	defer r.lock()()
	a, ok := r.db.state.accounts[accountID]
	if !ok || a.UserID != userID {
		return store.ErrAccountNotFound
	}
	a.IsPrimary = true
	r.db.state.accounts[accountID] = a
	return nil
}

func (r *memoryRepo) UpdateAccountVerification(ctx context.Context, account *domain.BankAccount) error {
	defer r.lock()()
	if _, ok := r.db.state.accounts[account.ID]; !ok {
		return store.ErrAccountNotFound
	}
	r.db.state.accounts[account.ID] = *account
	return nil
}

func (r *memoryRepo) AdjustAccountBalance(ctx context.Context, accountID uuid.UUID, delta decimal.Decimal) (decimal.Decimal, error) {
	defer r.lock()()
	a, ok := r.db.state.accounts[accountID]
	if !ok {
		return decimal.Zero, store.ErrAccountNotFound
	}
	next := a.AccountBalance.Add(delta)
	if next.IsNegative() {
		return decimal.Zero, store.ErrInsufficientFunds
	}
	a.AccountBalance = next
	r.db.state.accounts[accountID] = a
	return next, nil
}

// Transactions

func (r *memoryRepo) CreateTransaction(ctx context.Context, txn *domain.Transaction) error {
	defer r.lock()()
	if txn.ID == uuid.Nil {
		txn.ID = uuid.New()
	}
	txn.CreatedAt = time.Now()
	txn.UpdatedAt = txn.CreatedAt
	r.db.state.txns = append(r.db.state.txns, *txn)
	return nil
}

func (r *memoryRepo) ListTransactionsByUserID(ctx context.Context, userID uuid.UUID) ([]domain.Transaction, error) {
	defer r.lock()()
	var txns []domain.Transaction
	for i := len(r.db.state.txns) - 1; i >= 0; i-- {
		t := r.db.state.txns[i]
		if (t.UserID != nil && *t.UserID == userID) || (t.SenderID != nil && *t.SenderID == userID) || (t.ReceiverID != nil && *t.ReceiverID == userID) {
			txns = append(txns, t)
		}
	}
	return txns, nil
}

// Test helpers

func (r *memoryRepo) accountsOf(userID uuid.UUID) []domain.BankAccount {
	accounts, _ := r.ListAccountsByUserID(context.Background(), userID)
	return accounts
}

func (r *memoryRepo) putAccount(a domain.BankAccount) domain.BankAccount {
	defer r.lock()()
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	r.db.state.accounts[a.ID] = a
	return a
}

func (r *memoryRepo) profileViews(profileID uuid.UUID) []domain.ProfileView {
	defer r.lock()()
	var views []domain.ProfileView
	for _, v := range r.db.state.views {
		if v.ProfileID == profileID {
			views = append(views, v)
		}
	}
	return views
}

func (r *memoryRepo) user(id uuid.UUID) domain.User {
	defer r.lock()()
	return r.db.state.users[id]
}

// recordingMailer captures sent emails.
type recordingMailer struct {
	mu   sync.Mutex
	sent []sentEmail
	err  error
}

type sentEmail struct {
	To       string
	Template string
	Data     map[string]any
}

func (m *recordingMailer) Send(ctx context.Context, recipient, template string, data map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, sentEmail{To: recipient, Template: template, Data: data})
	return m.err
}

func (m *recordingMailer) last(template string) (sentEmail, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.sent) - 1; i >= 0; i-- {
		if m.sent[i].Template == template {
			return m.sent[i], true
		}
	}
	return sentEmail{}, false
}

func (m *recordingMailer) count(template string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, e := range m.sent {
		if e.Template == template {
			n++
		}
	}
	return n
}

// fakeClock is a manually advanced clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
