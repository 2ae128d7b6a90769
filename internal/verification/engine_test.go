package verification_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cassaevelyn/smartlib/internal/domain"
	"github.com/cassaevelyn/smartlib/internal/verification"
)

// ---------- Mocks ----------

type memVerifyRepo struct {
	nextID  int64
	records map[int64]*domain.VerificationRecord
	now     func() time.Time
}

func newMemVerifyRepo(now func() time.Time) *memVerifyRepo {
	return &memVerifyRepo{
		nextID:  1,
		records: make(map[int64]*domain.VerificationRecord),
		now:     now,
	}
}

func (m *memVerifyRepo) live(userID int64, vtype string) *domain.VerificationRecord {
	for _, r := range m.records {
		if r.UserID == userID && r.Type == vtype && !r.IsVerified {
			return r
		}
	}
	return nil
}

func (m *memVerifyRepo) GetLive(_ context.Context, userID int64, vtype string) (*domain.VerificationRecord, error) {
	if r := m.live(userID, vtype); r != nil {
		cp := *r
		return &cp, nil
	}
	return nil, nil
}

func (m *memVerifyRepo) GetLiveByToken(_ context.Context, vtype, token string) (*domain.VerificationRecord, error) {
	for _, r := range m.records {
		if r.Type == vtype && r.Token == token && !r.IsVerified {
			cp := *r
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memVerifyRepo) UpsertLive(_ context.Context, rec *domain.VerificationRecord) (*domain.VerificationRecord, error) {
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
	stored.CreatedAt = m.now()
	m.records[stored.ID] = &stored
	cp := stored
	return &cp, nil
}

func (m *memVerifyRepo) MarkResent(_ context.Context, id int64, token, codeHash string, expiresAt time.Time) (*domain.VerificationRecord, error) {
	r, ok := m.records[id]
	if !ok || r.IsVerified {
		return nil, domain.ErrVerificationNotFound
	}
	now := m.now()
	r.Token = token
	r.CodeHash = codeHash
	r.ExpiresAt = expiresAt
	r.FailedAttempts = 0
	r.ResendCount++
	r.LastResendAt = &now
	cp := *r
	return &cp, nil
}

func (m *memVerifyRepo) RegisterFailedAttempt(_ context.Context, id int64) (int, error) {
	r, ok := m.records[id]
	if !ok || r.IsVerified {
		return 0, domain.ErrVerificationNotFound
	}
	r.FailedAttempts++
	return r.FailedAttempts, nil
}

func (m *memVerifyRepo) MarkVerified(_ context.Context, id int64) (bool, error) {
	r, ok := m.records[id]
	if !ok || r.IsVerified {
		return false, nil
	}
	now := m.now()
	r.IsVerified = true
	r.VerifiedAt = &now
	return true, nil
}

// ---------- Helpers ----------

type clock struct{ t time.Time }

func (c *clock) Now() time.Time          { return c.t }
func (c *clock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newEngine(t *testing.T) (*verification.Engine, *memVerifyRepo, *clock) {
	t.Helper()
	c := &clock{t: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
	repo := newMemVerifyRepo(c.Now)
	eng := verification.NewEngine(repo, verification.Options{
		OTPLength:   6,
		MaxAttempts: 5,
		Now:         c.Now,
	})
	return eng, repo, c
}

const userID = int64(7)

// ---------- Tests ----------

func TestIssueCreatesLiveRecord(t *testing.T) {
	eng, repo, c := newEngine(t)
	ctx := context.Background()

	issued, err := eng.Issue(ctx, userID, domain.VerificationOTP, 24*time.Hour)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if len(issued.Code) != 6 {
		t.Errorf("code length = %d, want 6", len(issued.Code))
	}
	if issued.Token == "" {
		t.Error("expected non-empty token")
	}

	rec := repo.live(userID, domain.VerificationOTP)
	if rec == nil {
		t.Fatal("no live record stored")
	}
	if got, want := rec.ExpiresAt, c.Now().Add(24*time.Hour); !got.Equal(want) {
		t.Errorf("expires_at = %v, want %v", got, want)
	}
	if rec.FailedAttempts != 0 || rec.ResendCount != 0 {
		t.Errorf("counters not zeroed: failed=%d resend=%d", rec.FailedAttempts, rec.ResendCount)
	}
}

func TestIssueSupersedesPriorSecret(t *testing.T) {
	eng, _, _ := newEngine(t)
	ctx := context.Background()

	first, err := eng.Issue(ctx, userID, domain.VerificationOTP, time.Hour)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := eng.Issue(ctx, userID, domain.VerificationOTP, time.Hour); err != nil {
		t.Fatalf("second Issue: %v", err)
	}

	_, err = eng.AttemptCode(ctx, userID, domain.VerificationOTP, first.Code)
	if !errors.Is(err, domain.ErrInvalidCode) {
		t.Errorf("superseded code verified, err = %v, want ErrInvalidCode", err)
	}
}

func TestAttemptCodeHappyPath(t *testing.T) {
	eng, _, _ := newEngine(t)
	ctx := context.Background()

	issued, err := eng.Issue(ctx, userID, domain.VerificationOTP, time.Hour)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	rec, err := eng.AttemptCode(ctx, userID, domain.VerificationOTP, issued.Code)
	if err != nil {
		t.Fatalf("AttemptCode: %v", err)
	}
	if !rec.IsVerified || rec.VerifiedAt == nil {
		t.Error("record not marked verified")
	}

	// A verified record is invisible to further attempts.
	_, err = eng.AttemptCode(ctx, userID, domain.VerificationOTP, issued.Code)
	if !errors.Is(err, domain.ErrVerificationNotFound) {
		t.Errorf("replayed code err = %v, want ErrVerificationNotFound", err)
	}
}

func TestAttemptCodeWrongCodeIncrementsAndLocks(t *testing.T) {
	eng, repo, _ := newEngine(t)
	ctx := context.Background()

	issued, err := eng.Issue(ctx, userID, domain.VerificationOTP, time.Hour)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	for i := 1; i <= 5; i++ {
		_, err := eng.AttemptCode(ctx, userID, domain.VerificationOTP, "000000")
		if !errors.Is(err, domain.ErrInvalidCode) {
			t.Fatalf("attempt %d err = %v, want ErrInvalidCode", i, err)
		}
	}
	if got := repo.live(userID, domain.VerificationOTP).FailedAttempts; got != 5 {
		t.Fatalf("failed_attempts = %d, want 5", got)
	}

	// Correct code after lockout still fails.
	_, err = eng.AttemptCode(ctx, userID, domain.VerificationOTP, issued.Code)
	if !errors.Is(err, domain.ErrTooManyAttempts) {
		t.Errorf("post-lockout err = %v, want ErrTooManyAttempts", err)
	}
}

func TestAttemptCodeExpired(t *testing.T) {
	eng, _, c := newEngine(t)
	ctx := context.Background()

	issued, err := eng.Issue(ctx, userID, domain.VerificationOTP, time.Hour)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	c.Advance(time.Hour + time.Minute)

	_, err = eng.AttemptCode(ctx, userID, domain.VerificationOTP, issued.Code)
	if !errors.Is(err, domain.ErrCodeExpired) {
		t.Errorf("err = %v, want ErrCodeExpired", err)
	}
}

func TestAttemptCodeNoLiveRecord(t *testing.T) {
	eng, _, _ := newEngine(t)

	_, err := eng.AttemptCode(context.Background(), userID, domain.VerificationOTP, "123456")
	if !errors.Is(err, domain.ErrVerificationNotFound) {
		t.Errorf("err = %v, want ErrVerificationNotFound", err)
	}
}

func TestResendCooldown(t *testing.T) {
	eng, _, c := newEngine(t)
	ctx := context.Background()

	first, err := eng.Issue(ctx, userID, domain.VerificationOTP, time.Hour)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	// First resend: no prior resend, allowed immediately.
	second, err := eng.Resend(ctx, userID, domain.VerificationOTP, time.Hour)
	if err != nil {
		t.Fatalf("first Resend: %v", err)
	}
	if second.Record.ResendCount != 1 {
		t.Fatalf("resend_count = %d, want 1", second.Record.ResendCount)
	}

	// Old code no longer verifies.
	if _, err := eng.AttemptCode(ctx, userID, domain.VerificationOTP, first.Code); !errors.Is(err, domain.ErrInvalidCode) {
		t.Errorf("superseded code err = %v, want ErrInvalidCode", err)
	}

	// Within the cooldown window a second resend is rejected.
	c.Advance(30 * time.Second)
	if _, err := eng.Resend(ctx, userID, domain.VerificationOTP, time.Hour); !errors.Is(err, domain.ErrResendRateLimited) {
		t.Fatalf("err = %v, want ErrResendRateLimited", err)
	}

	// After the cooldown (resend_count=1 -> 2 minutes) it succeeds and the
	// new code verifies.
	c.Advance(2 * time.Minute)
	third, err := eng.Resend(ctx, userID, domain.VerificationOTP, time.Hour)
	if err != nil {
		t.Fatalf("post-cooldown Resend: %v", err)
	}
	if _, err := eng.AttemptCode(ctx, userID, domain.VerificationOTP, third.Code); err != nil {
		t.Errorf("fresh code failed to verify: %v", err)
	}
}

func TestResendHourlyHardCap(t *testing.T) {
	eng, repo, c := newEngine(t)
	ctx := context.Background()

	if _, err := eng.Issue(ctx, userID, domain.VerificationOTP, 24*time.Hour); err != nil {
		t.Fatalf("Issue: %v", err)
	}

	// Drive resend_count to the cap, waiting out each cooldown.
	for i := 0; i < domain.MaxResendsPerHour; i++ {
		if _, err := eng.Resend(ctx, userID, domain.VerificationOTP, 24*time.Hour); err != nil {
			t.Fatalf("resend %d: %v", i+1, err)
		}
		c.Advance(time.Duration(i+1)*2*time.Minute + time.Second)
	}
	if got := repo.live(userID, domain.VerificationOTP).ResendCount; got != domain.MaxResendsPerHour {
		t.Fatalf("resend_count = %d, want %d", got, domain.MaxResendsPerHour)
	}

	// At the cap the hard hourly limit applies even though the per-resend
	// cooldown has passed.
	if _, err := eng.Resend(ctx, userID, domain.VerificationOTP, 24*time.Hour); !errors.Is(err, domain.ErrResendRateLimited) {
		t.Fatalf("err = %v, want ErrResendRateLimited", err)
	}

	// An hour after the last resend it is allowed again.
	c.Advance(time.Hour)
	if _, err := eng.Resend(ctx, userID, domain.VerificationOTP, 24*time.Hour); err != nil {
		t.Errorf("resend after hard cap window: %v", err)
	}
}

func TestResendWithoutLiveRecordIssuesFresh(t *testing.T) {
	eng, repo, _ := newEngine(t)

	issued, err := eng.Resend(context.Background(), userID, domain.VerificationOTP, time.Hour)
	if err != nil {
		t.Fatalf("Resend: %v", err)
	}
	if issued.Record.ResendCount != 0 {
		t.Errorf("fresh issue has resend_count = %d, want 0", issued.Record.ResendCount)
	}
	if repo.live(userID, domain.VerificationOTP) == nil {
		t.Error("no live record created")
	}
}

func TestConsumeToken(t *testing.T) {
	eng, _, c := newEngine(t)
	ctx := context.Background()

	issued, err := eng.Issue(ctx, userID, domain.VerificationPasswordReset, 2*time.Hour)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	rec, err := eng.ConsumeToken(ctx, domain.VerificationPasswordReset, issued.Token)
	if err != nil {
		t.Fatalf("ConsumeToken: %v", err)
	}
	if !rec.IsVerified {
		t.Error("record not verified")
	}

	// Second consumption behaves like an unknown token.
	if _, err := eng.ConsumeToken(ctx, domain.VerificationPasswordReset, issued.Token); !errors.Is(err, domain.ErrInvalidToken) {
		t.Errorf("replay err = %v, want ErrInvalidToken", err)
	}

	// Expired tokens are dead even when unused.
	expired, err := eng.Issue(ctx, userID, domain.VerificationPasswordReset, time.Hour)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	c.Advance(2 * time.Hour)
	if _, err := eng.ConsumeToken(ctx, domain.VerificationPasswordReset, expired.Token); !errors.Is(err, domain.ErrCodeExpired) {
		t.Errorf("expired err = %v, want ErrCodeExpired", err)
	}
}

func TestConsumeTokenUnknown(t *testing.T) {
	eng, _, _ := newEngine(t)

	_, err := eng.ConsumeToken(context.Background(), domain.VerificationPasswordReset, "no-such-token")
	if !errors.Is(err, domain.ErrInvalidToken) {
		t.Errorf("err = %v, want ErrInvalidToken", err)
	}
}
