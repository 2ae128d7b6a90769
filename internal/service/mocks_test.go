package service_test

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/cassaevelyn/smartlib/internal/domain"
	"github.com/cassaevelyn/smartlib/internal/repository"
	"github.com/cassaevelyn/smartlib/pkg/auth"
)

// ---------- users ----------

type mockUserRepo struct {
	mu     sync.Mutex
	nextID int64
	users  map[int64]*domain.User
	verify *mockVerifyRepo
}

func newMockUserRepo() *mockUserRepo {
	return &mockUserRepo{nextID: 1, users: make(map[int64]*domain.User)}
}

func (m *mockUserRepo) add(u *domain.User) *domain.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u.ID == 0 {
		u.ID = m.nextID
		m.nextID++
	} else if u.ID >= m.nextID {
		m.nextID = u.ID + 1
	}
	u.CreatedAt = time.Now()
	m.users[u.ID] = u
	return u
}

func (m *mockUserRepo) CreateWithActivation(_ context.Context, u *domain.User, rec *domain.VerificationRecord) (*domain.User, error) {
	for _, existing := range m.users {
		if existing.Email == u.Email {
			return nil, domain.ErrEmailExists
		}
	}
	created := m.add(u)
	rec.UserID = created.ID
	if m.verify != nil {
		if _, err := m.verify.UpsertLive(context.Background(), rec); err != nil {
			return nil, err
		}
	}
	cp := *created
	return &cp, nil
}

func (m *mockUserRepo) CompleteWithActivation(_ context.Context, u *domain.User, rec *domain.VerificationRecord) (*domain.User, error) {
	m.mu.Lock()
	existing, ok := m.users[u.ID]
	m.mu.Unlock()
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	existing.Username = u.Username
	existing.Email = u.Email
	existing.PasswordHash = u.PasswordHash
	existing.FirstName = u.FirstName
	existing.LastName = u.LastName
	existing.CRN = u.CRN
	existing.Phone = u.Phone
	rec.UserID = existing.ID
	if m.verify != nil {
		if _, err := m.verify.UpsertLive(context.Background(), rec); err != nil {
			return nil, err
		}
	}
	cp := *existing
	return &cp, nil
}

func (m *mockUserRepo) CreatePlaceholder(_ context.Context, email, username, passwordHash string) (*domain.User, error) {
	created := m.add(&domain.User{
		Username:     username,
		Email:        email,
		PasswordHash: passwordHash,
		Role:         domain.RoleStudent,
	})
	cp := *created
	return &cp, nil
}

func (m *mockUserRepo) FindByEmail(_ context.Context, email string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *mockUserRepo) FindByID(_ context.Context, id int64) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[id]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, nil
}

func (m *mockUserRepo) RecordLogin(_ context.Context, userID int64, ip net.IP) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[userID]; ok {
		u.LoginCount++
		if ip != nil {
			u.LastLoginIP = &ip
		}
	}
	return nil
}

func (m *mockUserRepo) MarkVerifiedAndActive(_ context.Context, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[userID]; ok {
		u.IsVerified = true
		u.IsActive = true
	}
	return nil
}

func (m *mockUserRepo) UpdateProfile(_ context.Context, userID int64, firstName, lastName, phone string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[userID]; ok {
		u.FirstName = firstName
		u.LastName = lastName
		u.Phone = phone
	}
	return nil
}

func (m *mockUserRepo) UpdatePassword(_ context.Context, userID int64, passwordHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[userID]; ok {
		u.PasswordHash = passwordHash
	}
	return nil
}

func (m *mockUserRepo) SetApproval(_ context.Context, userID int64, approved bool, approvedBy *int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[userID]; ok {
		u.IsApproved = approved
		u.ApprovedBy = approvedBy
		if approved {
			now := time.Now()
			u.ApprovalDate = &now
		} else {
			u.ApprovalDate = nil
		}
	}
	return nil
}

func (m *mockUserRepo) Deactivate(_ context.Context, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[userID]; ok {
		u.IsActive = false
	}
	return nil
}

// ---------- verifications ----------

type mockVerifyRepo struct {
	nextID  int64
	records map[int64]*domain.VerificationRecord
}

func newMockVerifyRepo() *mockVerifyRepo {
	return &mockVerifyRepo{nextID: 1, records: make(map[int64]*domain.VerificationRecord)}
}

func (m *mockVerifyRepo) live(userID int64, vtype string) *domain.VerificationRecord {
	for _, r := range m.records {
		if r.UserID == userID && r.Type == vtype && !r.IsVerified {
			return r
		}
	}
	return nil
}

func (m *mockVerifyRepo) GetLive(_ context.Context, userID int64, vtype string) (*domain.VerificationRecord, error) {
	if r := m.live(userID, vtype); r != nil {
		cp := *r
		return &cp, nil
	}
	return nil, nil
}

func (m *mockVerifyRepo) GetLiveByToken(_ context.Context, vtype, token string) (*domain.VerificationRecord, error) {
	for _, r := range m.records {
		if r.Type == vtype && r.Token == token && !r.IsVerified {
			cp := *r
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *mockVerifyRepo) UpsertLive(_ context.Context, rec *domain.VerificationRecord) (*domain.VerificationRecord, error) {
	if existing := m.live(rec.UserID, rec.Type); existing != nil {
		existing.Token = rec.Token
		existing.CodeHash = rec.CodeHash
		existing.ExpiresAt = rec.ExpiresAt
		existing.FailedAttempts = 0
		existing.ResendCount = 0
		existing.LastResendAt = nil
		cp := *existing
		return &cp, nil
	}
	stored := *rec
	stored.ID = m.nextID
	m.nextID++
	m.records[stored.ID] = &stored
	cp := stored
	return &cp, nil
}

func (m *mockVerifyRepo) MarkResent(_ context.Context, id int64, token, codeHash string, expiresAt time.Time) (*domain.VerificationRecord, error) {
	r, ok := m.records[id]
	if !ok || r.IsVerified {
		return nil, domain.ErrVerificationNotFound
	}
	now := time.Now()
	r.Token = token
	r.CodeHash = codeHash
	r.ExpiresAt = expiresAt
	r.FailedAttempts = 0
	r.ResendCount++
	r.LastResendAt = &now
	cp := *r
	return &cp, nil
}

func (m *mockVerifyRepo) RegisterFailedAttempt(_ context.Context, id int64) (int, error) {
	r, ok := m.records[id]
	if !ok || r.IsVerified {
		return 0, domain.ErrVerificationNotFound
	}
	r.FailedAttempts++
	return r.FailedAttempts, nil
}

func (m *mockVerifyRepo) MarkVerified(_ context.Context, id int64) (bool, error) {
	r, ok := m.records[id]
	if !ok || r.IsVerified {
		return false, nil
	}
	now := time.Now()
	r.IsVerified = true
	r.VerifiedAt = &now
	return true, nil
}

// ---------- sessions ----------

type mockSessionRepo struct {
	nextID   int64
	sessions map[int64]*domain.Session
}

func newMockSessionRepo() *mockSessionRepo {
	return &mockSessionRepo{nextID: 1, sessions: make(map[int64]*domain.Session)}
}

func (m *mockSessionRepo) Create(_ context.Context, sessionKey string, in *domain.StartSessionInput) (*domain.Session, error) {
	s := &domain.Session{
		ID:           m.nextID,
		UserID:       in.UserID,
		SessionKey:   sessionKey,
		IPAddress:    in.IPAddress,
		UserAgent:    in.UserAgent,
		DeviceInfo:   in.DeviceInfo,
		IsActive:     true,
		CreatedAt:    time.Now(),
		LastActivity: time.Now(),
	}
	m.nextID++
	m.sessions[s.ID] = s
	cp := *s
	return &cp, nil
}

func (m *mockSessionRepo) End(_ context.Context, userID, sessionID int64) (bool, error) {
	s, ok := m.sessions[sessionID]
	if !ok || s.UserID != userID || !s.IsActive {
		return false, nil
	}
	now := time.Now()
	s.IsActive = false
	s.LogoutTime = &now
	return true, nil
}

func (m *mockSessionRepo) Touch(_ context.Context, sessionID int64) error {
	if s, ok := m.sessions[sessionID]; ok {
		s.LastActivity = time.Now()
	}
	return nil
}

func (m *mockSessionRepo) ListByUser(_ context.Context, userID int64) ([]domain.Session, error) {
	var out []domain.Session
	for _, s := range m.sessions {
		if s.UserID == userID {
			out = append(out, *s)
		}
	}
	return out, nil
}

// ---------- loyalty ----------

type mockLoyaltyRepo struct {
	nextID  int64
	entries []domain.LoyaltyTransaction
}

func newMockLoyaltyRepo() *mockLoyaltyRepo { return &mockLoyaltyRepo{nextID: 1} }

func (m *mockLoyaltyRepo) Append(_ context.Context, t *domain.LoyaltyTransaction) (*domain.LoyaltyTransaction, error) {
	stored := *t
	stored.ID = m.nextID
	m.nextID++
	stored.CreatedAt = time.Now()
	m.entries = append(m.entries, stored)
	cp := stored
	return &cp, nil
}

func (m *mockLoyaltyRepo) Balance(_ context.Context, userID int64) (int, error) {
	total := 0
	for _, e := range m.entries {
		if e.UserID == userID {
			total += e.Points
		}
	}
	return total, nil
}

func (m *mockLoyaltyRepo) ListByUser(_ context.Context, userID int64, limit, offset int) ([]domain.LoyaltyTransaction, error) {
	var out []domain.LoyaltyTransaction
	for _, e := range m.entries {
		if e.UserID == userID {
			out = append(out, e)
		}
	}
	return out, nil
}

// ---------- activity ----------

type mockActivityRepo struct {
	entries []domain.ActivityLogEntry
}

func (m *mockActivityRepo) Append(_ context.Context, e *domain.ActivityLogEntry) error {
	m.entries = append(m.entries, *e)
	return nil
}

func (m *mockActivityRepo) ListByUser(_ context.Context, userID int64, limit, offset int) ([]domain.ActivityLogEntry, error) {
	var out []domain.ActivityLogEntry
	for _, e := range m.entries {
		if e.UserID == userID {
			out = append(out, e)
		}
	}
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ---------- access grants ----------

type mockAccessRepo struct {
	users  *mockUserRepo
	nextID int64
	grants map[int64]*domain.LibraryAccessGrant
}

func newMockAccessRepo(users *mockUserRepo) *mockAccessRepo {
	return &mockAccessRepo{users: users, nextID: 1, grants: make(map[int64]*domain.LibraryAccessGrant)}
}

func (m *mockAccessRepo) Apply(_ context.Context, userID, libraryID int64, notes string) (*domain.LibraryAccessGrant, error) {
	for _, g := range m.grants {
		if g.UserID == userID && g.LibraryID == libraryID {
			return nil, domain.ErrGrantExists
		}
	}
	g := &domain.LibraryAccessGrant{
		ID:         m.nextID,
		UserID:     userID,
		LibraryID:  libraryID,
		AccessType: domain.AccessStandard,
		Notes:      notes,
		CreatedAt:  time.Now(),
	}
	m.nextID++
	m.grants[g.ID] = g
	cp := *g
	return &cp, nil
}

func (m *mockAccessRepo) recompute(userID int64) (bool, bool) {
	m.users.mu.Lock()
	defer m.users.mu.Unlock()
	u := m.users.users[userID]
	hasActive := false
	for _, g := range m.grants {
		if g.UserID == userID && g.IsActive {
			hasActive = true
			break
		}
	}
	approved, changed := domain.ResolveApproval(u.Role, hasActive, u.IsApproved)
	if changed {
		u.IsApproved = approved
	}
	return approved, changed
}

func (m *mockAccessRepo) CreateActive(_ context.Context, userID, libraryID int64, accessType string, grantedBy int64, expiresAt *time.Time, notes string) (*repository.GrantResult, error) {
	now := time.Now()
	g := &domain.LibraryAccessGrant{
		ID:         m.nextID,
		UserID:     userID,
		LibraryID:  libraryID,
		AccessType: accessType,
		IsActive:   true,
		GrantedBy:  &grantedBy,
		GrantedAt:  &now,
		ExpiresAt:  expiresAt,
		Notes:      notes,
		CreatedAt:  now,
	}
	m.nextID++
	m.grants[g.ID] = g
	approved, changed := m.recompute(userID)
	cp := *g
	return &repository.GrantResult{Grant: &cp, Approved: approved, ApprovalChanged: changed}, nil
}

func (m *mockAccessRepo) Activate(_ context.Context, grantID, grantedBy int64) (*repository.GrantResult, error) {
	g, ok := m.grants[grantID]
	if !ok {
		return nil, domain.ErrGrantNotFound
	}
	now := time.Now()
	g.IsActive = true
	g.GrantedBy = &grantedBy
	g.GrantedAt = &now
	approved, changed := m.recompute(g.UserID)
	cp := *g
	return &repository.GrantResult{Grant: &cp, Approved: approved, ApprovalChanged: changed}, nil
}

func (m *mockAccessRepo) Revoke(_ context.Context, grantID int64) (*repository.GrantResult, error) {
	g, ok := m.grants[grantID]
	if !ok {
		return nil, domain.ErrGrantNotFound
	}
	g.IsActive = false
	approved, changed := m.recompute(g.UserID)
	cp := *g
	return &repository.GrantResult{Grant: &cp, Approved: approved, ApprovalChanged: changed}, nil
}

func (m *mockAccessRepo) ListByUser(_ context.Context, userID int64) ([]domain.LibraryAccessGrant, error) {
	var out []domain.LibraryAccessGrant
	for _, g := range m.grants {
		if g.UserID == userID {
			out = append(out, *g)
		}
	}
	return out, nil
}

// ---------- event bus ----------

type published struct {
	Subject string
	Payload any
}

type mockPublisher struct {
	events []published
}

func (m *mockPublisher) Publish(_ context.Context, subject string, data interface{}) error {
	m.events = append(m.events, published{Subject: subject, Payload: data})
	return nil
}

func (m *mockPublisher) Close() error { return nil }

func (m *mockPublisher) bySubject(subject string) []published {
	var out []published
	for _, e := range m.events {
		if e.Subject == subject {
			out = append(out, e)
		}
	}
	return out
}

// ---------- token revoker ----------

type mockRevoker struct {
	secret  string
	revoked []string
	jtis    map[string]bool
	err     error
}

func (m *mockRevoker) Revoke(_ context.Context, tokenString string) error {
	if m.err != nil {
		return m.err
	}
	m.revoked = append(m.revoked, tokenString)
	if claims, err := auth.Parse(tokenString, m.secret); err == nil {
		if m.jtis == nil {
			m.jtis = make(map[string]bool)
		}
		m.jtis[claims.ID] = true
	}
	return nil
}

func (m *mockRevoker) IsRevoked(_ context.Context, claims *auth.Claims) (bool, error) {
	return m.jtis[claims.ID], nil
}
