package tokens

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/diagnosis/refcheck/internal/domain"
	"github.com/diagnosis/refcheck/internal/repo"
	"github.com/diagnosis/refcheck/internal/repo/memory"
)

var base = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

type clock struct{ t time.Time }

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func tok(id string, created time.Time) domain.ResponseToken {
	return domain.ResponseToken{
		Token:           id,
		RequestID:       "req-1",
		CompanyID:       "co-1",
		RespondentEmail: id + "@example.com",
		RespondentName:  "Respondent " + id,
		CreatedAt:       created,
		ExpiresAt:       created.Add(DefaultTTL),
	}
}

func newService(c *clock, seed ...domain.ResponseToken) *Service {
	return NewService(memory.NewTokenRepo(seed...), memory.NewRejectionRepo(), WithClock(c.now))
}

func TestValidateResponseToken(t *testing.T) {
	ctx := context.Background()
	usedAt := base.Add(time.Hour)

	used := tok("used", base)
	used.IsUsed = true
	used.UsedAt = &usedAt

	expired := tok("expired", base)
	expired.ExpiresAt = base.Add(-time.Minute)

	usedAndExpired := tok("both", base)
	usedAndExpired.IsUsed = true
	usedAndExpired.UsedAt = &usedAt
	usedAndExpired.ExpiresAt = base.Add(-time.Minute)

	c := &clock{t: base.Add(2 * time.Hour)}
	svc := newService(c, tok("ok", base), used, expired, usedAndExpired)

	t.Run("unknown", func(t *testing.T) {
		v, err := svc.ValidateResponseToken(ctx, "nope")
		require.NoError(t, err)
		assert.False(t, v.IsValid)
		assert.Equal(t, domain.TokenNotFound, v.Error)
		assert.NotEmpty(t, v.Message)
	})

	t.Run("used", func(t *testing.T) {
		v, err := svc.ValidateResponseToken(ctx, "used")
		require.NoError(t, err)
		assert.Equal(t, domain.TokenAlreadyUsed, v.Error)
		require.NotNil(t, v.UsedAt)
		assert.True(t, usedAt.Equal(*v.UsedAt))
	})

	t.Run("expired", func(t *testing.T) {
		v, err := svc.ValidateResponseToken(ctx, "expired")
		require.NoError(t, err)
		assert.Equal(t, domain.TokenExpired, v.Error)
		require.NotNil(t, v.ExpiresAt)
		assert.True(t, expired.ExpiresAt.Equal(*v.ExpiresAt))
	})

	t.Run("used wins over expired", func(t *testing.T) {
		v, err := svc.ValidateResponseToken(ctx, "both")
		require.NoError(t, err)
		assert.Equal(t, domain.TokenAlreadyUsed, v.Error)
	})

	t.Run("valid", func(t *testing.T) {
		v, err := svc.ValidateResponseToken(ctx, "ok")
		require.NoError(t, err)
		assert.True(t, v.IsValid)
		assert.Empty(t, v.Error)
		require.NotNil(t, v.TokenData)
		assert.Equal(t, "ok", v.TokenData.Token)
	})
}

func TestValidateAtExactExpiry(t *testing.T) {
	c := &clock{t: base}
	svc := newService(c, tok("edge", base))

	c.t = base.Add(DefaultTTL)
	v, err := svc.ValidateResponseToken(context.Background(), "edge")
	require.NoError(t, err)
	assert.True(t, v.IsValid)

	c.advance(time.Millisecond)
	v, err = svc.ValidateResponseToken(context.Background(), "edge")
	require.NoError(t, err)
	assert.Equal(t, domain.TokenExpired, v.Error)
}

func TestMarkTokenAsUsedIsSingleUse(t *testing.T) {
	ctx := context.Background()
	c := &clock{t: base}
	svc := newService(c, tok("a", base))

	ok, err := svc.MarkTokenAsUsed(ctx, "a")
	require.NoError(t, err)
	assert.True(t, ok)

	first, err := svc.tokens.Get(ctx, "a")
	require.NoError(t, err)
	require.NotNil(t, first.UsedAt)

	c.advance(time.Hour)
	ok, err = svc.MarkTokenAsUsed(ctx, "a")
	require.NoError(t, err)
	assert.False(t, ok)

	again, err := svc.tokens.Get(ctx, "a")
	require.NoError(t, err)
	assert.True(t, first.UsedAt.Equal(*again.UsedAt))

	ok, err = svc.MarkTokenAsUsed(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestIsTokenExpired(t *testing.T) {
	ctx := context.Background()
	c := &clock{t: base}
	svc := newService(c, tok("a", base))

	expired, err := svc.IsTokenExpired(ctx, "a")
	require.NoError(t, err)
	assert.False(t, expired)

	c.advance(DefaultTTL + time.Second)
	expired, err = svc.IsTokenExpired(ctx, "a")
	require.NoError(t, err)
	assert.True(t, expired)

	expired, err = svc.IsTokenExpired(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, expired)
}

func TestGetTokenStats(t *testing.T) {
	ctx := context.Background()

	t.Run("empty set has zero rate", func(t *testing.T) {
		svc := newService(&clock{t: base})
		st, err := svc.GetTokenStats(ctx, "")
		require.NoError(t, err)
		assert.Equal(t, domain.TokenStats{}, st)
	})

	t.Run("counts", func(t *testing.T) {
		usedAt := base
		used := tok("used", base)
		used.IsUsed = true
		used.UsedAt = &usedAt

		expired := tok("expired", base)
		expired.ExpiresAt = base.Add(time.Hour)

		other := tok("other", base)
		other.RequestID = "req-2"

		c := &clock{t: base.Add(2 * time.Hour)}
		svc := newService(c, used, expired, tok("pending", base), other)

		st, err := svc.GetTokenStats(ctx, "req-1")
		require.NoError(t, err)
		assert.Equal(t, 3, st.Total)
		assert.Equal(t, 1, st.Used)
		assert.Equal(t, 1, st.Expired)
		assert.Equal(t, 1, st.Pending)
		assert.InDelta(t, 33.333, st.ResponseRate, 0.01)

		all, err := svc.GetTokenStats(ctx, "")
		require.NoError(t, err)
		assert.Equal(t, 4, all.Total)
		assert.Equal(t, 2, all.Pending)
		assert.InDelta(t, 25.0, all.ResponseRate, 0.001)
	})
}

func TestGetTokensNeedingReminder(t *testing.T) {
	ctx := context.Background()
	day := 24 * time.Hour
	now := base.Add(10 * day)
	at := func(d time.Duration) *time.Time { v := now.Add(-d); return &v }

	fresh := tok("fresh", now.Add(-2*day))
	stale := tok("stale", now.Add(-4*day))

	recentlyReminded := tok("recent", now.Add(-9*day))
	recentlyReminded.RemindersSent = 1
	recentlyReminded.LastReminderAt = at(day)

	due := tok("due", now.Add(-9*day))
	due.RemindersSent = 2
	due.LastReminderAt = at(4 * day)

	exhausted := tok("exhausted", now.Add(-9*day))
	exhausted.RemindersSent = domain.MaxReminders
	exhausted.LastReminderAt = at(4 * day)

	used := tok("used", now.Add(-5*day))
	used.IsUsed = true
	used.UsedAt = at(day)

	expired := tok("expired", now.Add(-20*day))

	svc := newService(&clock{t: now}, fresh, stale, recentlyReminded, due, exhausted, used, expired)

	got, err := svc.GetTokensNeedingReminder(ctx)
	require.NoError(t, err)

	ids := make([]string, 0, len(got))
	for _, g := range got {
		ids = append(ids, g.Token)
	}
	assert.ElementsMatch(t, []string{"stale", "due"}, ids)
}

func TestIssue(t *testing.T) {
	ctx := context.Background()
	c := &clock{t: base}
	svc := NewService(memory.NewTokenRepo(), memory.NewRejectionRepo(), WithClock(c.now), WithTTL(48*time.Hour))

	a := svc.Issue("req-1", "co-1", "  Boss@Example.com ", " 박부장 ")
	b := svc.Issue("req-1", "co-2", "other@example.com", "최과장")

	assert.NotEqual(t, a.Token, b.Token)
	assert.Len(t, a.Token, 36)
	assert.Equal(t, "boss@example.com", a.RespondentEmail)
	assert.Equal(t, "박부장", a.RespondentName)
	assert.Equal(t, base, a.CreatedAt)
	assert.Equal(t, base.Add(48*time.Hour), a.ExpiresAt)
	assert.False(t, a.IsUsed)

	list, err := svc.GetTokensByRequestID(ctx, "req-1")
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestRecordReminderAndConsent(t *testing.T) {
	ctx := context.Background()
	c := &clock{t: base}
	svc := newService(c, tok("a", base))

	require.NoError(t, svc.RecordReminder(ctx, "a"))
	c.advance(time.Hour)
	require.NoError(t, svc.RecordConsent(ctx, "a"))
	c.advance(time.Hour)
	require.NoError(t, svc.RecordConsent(ctx, "a"))

	got, err := svc.tokens.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, 1, got.RemindersSent)
	assert.Equal(t, base, *got.LastReminderAt)
	assert.Equal(t, base.Add(time.Hour), *got.ConsentedAt)

	assert.ErrorIs(t, svc.RecordReminder(ctx, "missing"), repo.ErrNotFound)
}

func TestRejectIsIndependentOfUse(t *testing.T) {
	ctx := context.Background()
	c := &clock{t: base}
	svc := newService(c, tok("a", base))

	rejected, err := svc.IsRejected(ctx, "a")
	require.NoError(t, err)
	assert.False(t, rejected)

	v, err := svc.ValidateResponseToken(ctx, "a")
	require.NoError(t, err)

	rec, err := svc.Reject(ctx, v.TokenData, "  연락처가 없습니다 ")
	require.NoError(t, err)
	assert.Equal(t, "연락처가 없습니다", rec.Reason)
	assert.Equal(t, "req-1", rec.RequestID)

	rejected, err = svc.IsRejected(ctx, "a")
	require.NoError(t, err)
	assert.True(t, rejected)

	v, err = svc.ValidateResponseToken(ctx, "a")
	require.NoError(t, err)
	assert.True(t, v.IsValid)

	_, err = svc.Reject(ctx, v.TokenData, "again")
	assert.ErrorIs(t, err, repo.ErrDuplicate)

	recs, err := svc.Rejections(ctx, "req-1")
	require.NoError(t, err)
	assert.Len(t, recs, 1)
}
