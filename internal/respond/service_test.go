package respond

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/diagnosis/refcheck/internal/domain"
	"github.com/diagnosis/refcheck/internal/repo"
	"github.com/diagnosis/refcheck/internal/repo/memory"
	"github.com/diagnosis/refcheck/internal/snapshot"
	"github.com/diagnosis/refcheck/internal/tokens"
	"github.com/diagnosis/refcheck/pkg/events"
)

var base = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

type refresher struct{ calls []string }

func (r *refresher) RefreshStatus(_ context.Context, id string) (bool, error) {
	r.calls = append(r.calls, id)
	return false, nil
}

// flakySubmissions fails SubmitResponse while err is set.
type flakySubmissions struct {
	repo.SubmissionRepository
	err error
}

func (f *flakySubmissions) SubmitResponse(ctx context.Context, r *domain.Response) error {
	if f.err != nil {
		return f.err
	}
	return f.SubmissionRepository.SubmitResponse(ctx, r)
}

type fixture struct {
	svc       *Service
	tokens    *tokens.Service
	responses *memory.ResponseRepo
	submits   *flakySubmissions
	drafts    *snapshot.MemoryStore
	status    *refresher
	published []string
	now       time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{now: base, drafts: snapshot.NewMemoryStore(), status: &refresher{}}
	clock := func() time.Time { return f.now }

	req := domain.ReferenceRequest{
		ID:      "req-1",
		OwnerID: "owner-1",
		Talent:  domain.TalentInfo{Name: "김민수"},
		TargetCompanies: []domain.TargetCompany{
			{ID: "co-1", Name: "Acme", Domain: "acme.com"},
		},
		Questions: []domain.Question{
			{ID: "q1", Text: "역할은?", IsDefault: true, IsEnabled: true, Order: 1},
			{ID: "q2", Text: "강점은?", IsDefault: true, IsEnabled: true, Order: 2},
		},
		Status:    domain.RequestInProgress,
		CreatedAt: base,
	}
	requests := memory.NewRequestRepo()
	require.NoError(t, requests.Create(context.Background(), &req))

	tok := func(id string, expires time.Time) domain.ResponseToken {
		return domain.ResponseToken{
			Token: id, RequestID: "req-1", CompanyID: "co-1",
			RespondentEmail: "boss@acme.com", RespondentName: "박부장",
			CreatedAt: base, ExpiresAt: expires,
		}
	}
	tokenRepo := memory.NewTokenRepo(
		tok("live", base.Add(tokens.DefaultTTL)),
		tok("stale", base.Add(-time.Hour)),
	)
	f.tokens = tokens.NewService(tokenRepo, memory.NewRejectionRepo(), tokens.WithClock(clock))
	f.responses = memory.NewResponseRepo()
	f.submits = &flakySubmissions{SubmissionRepository: memory.NewSubmissionRepo(requests, tokenRepo, f.responses)}

	bus := events.NewLogBus()
	for _, subj := range []string{events.ResponseConsented, events.ResponseSubmitted, events.ResponseRejected} {
		require.NoError(t, bus.Subscribe(subj, func(msg *events.Message) {
			f.published = append(f.published, msg.Subject)
		}))
	}

	f.svc = NewService(f.tokens, requests, f.submits, f.drafts, f.status, bus, WithClock(clock))
	return f
}

func accessCode(t *testing.T, err error) domain.TokenError {
	t.Helper()
	var ae *AccessError
	require.ErrorAs(t, err, &ae)
	return ae.Validation.Error
}

func answers() []domain.Answer {
	return []domain.Answer{
		{QuestionID: "q2", Text: " 꼼꼼합니다 "},
		{QuestionID: "q1", Text: "백엔드 개발"},
	}
}

func TestAccess(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	view, err := f.svc.Access(ctx, "live")
	require.NoError(t, err)
	assert.Equal(t, "김민수", view.TalentName)
	assert.Equal(t, "Acme", view.CompanyName)
	assert.Len(t, view.Questions, 2)
	assert.False(t, view.Consented)

	_, err = f.svc.Access(ctx, "missing")
	assert.Equal(t, domain.TokenNotFound, accessCode(t, err))

	_, err = f.svc.Access(ctx, "stale")
	assert.Equal(t, domain.TokenExpired, accessCode(t, err))
}

func TestRejectionIsCheckedFirst(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Reject(ctx, "live", "함께 일한 적이 없습니다")
	require.NoError(t, err)

	f.now = base.Add(tokens.DefaultTTL + time.Hour)
	_, err = f.svc.Access(ctx, "live")
	assert.Equal(t, domain.TokenRejected, accessCode(t, err))

	_, err = f.svc.Reject(ctx, "live", "again")
	assert.Equal(t, domain.TokenRejected, accessCode(t, err))

	assert.Equal(t, []string{events.ResponseRejected}, f.published)
	assert.Equal(t, []string{"req-1"}, f.status.calls)
}

func TestConsentIsRecordedOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	view, err := f.svc.Consent(ctx, "live")
	require.NoError(t, err)
	assert.True(t, view.Consented)

	f.now = base.Add(time.Hour)
	_, err = f.svc.Consent(ctx, "live")
	require.NoError(t, err)

	view, err = f.svc.Access(ctx, "live")
	require.NoError(t, err)
	assert.True(t, view.Consented)
	assert.Equal(t, []string{events.ResponseConsented}, f.published)
}

func TestRespondRequiresConsent(t *testing.T) {
	f := newFixture(t)

	_, _, err := f.svc.Respond(context.Background(), "live", answers())
	assert.ErrorIs(t, err, ErrConsentRequired)
}

func TestRespondValidatesAnswers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.Consent(ctx, "live")
	require.NoError(t, err)

	resp, fields, err := f.svc.Respond(ctx, "live", []domain.Answer{
		{QuestionID: "q1", Text: "   "},
		{QuestionID: "q9", Text: "extra"},
	})
	require.NoError(t, err)
	assert.Nil(t, resp)
	assert.Contains(t, fields, "q1")
	assert.Contains(t, fields, "q2")
	assert.Contains(t, fields, "q9")

	v, err := f.tokens.ValidateResponseToken(ctx, "live")
	require.NoError(t, err)
	assert.True(t, v.IsValid)
}

func TestRespondSpendsToken(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.Consent(ctx, "live")
	require.NoError(t, err)
	_, err = f.svc.SaveDraft(ctx, "live", answers())
	require.NoError(t, err)

	resp, fields, err := f.svc.Respond(ctx, "live", answers())
	require.NoError(t, err)
	require.Nil(t, fields)
	require.Len(t, resp.Answers, 2)
	assert.Equal(t, "q1", resp.Answers[0].QuestionID)
	assert.Equal(t, "꼼꼼합니다", resp.Answers[1].Text)

	_, _, err = f.svc.Respond(ctx, "live", answers())
	assert.Equal(t, domain.TokenAlreadyUsed, accessCode(t, err))

	stored, err := f.responses.GetByToken(ctx, "live")
	require.NoError(t, err)
	assert.Equal(t, resp.ID, stored.ID)

	_, err = f.drafts.Get(ctx, snapshot.ResponseDraftKey("live"))
	assert.ErrorIs(t, err, snapshot.ErrMissing)

	assert.Contains(t, f.published, events.ResponseSubmitted)
	assert.Equal(t, []string{"req-1"}, f.status.calls)
}

func TestRespondWriteFailureKeepsTokenUsable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.Consent(ctx, "live")
	require.NoError(t, err)

	f.submits.err = errors.New("db blip")
	_, _, err = f.svc.Respond(ctx, "live", answers())
	require.ErrorIs(t, err, f.submits.err)

	v, err := f.tokens.ValidateResponseToken(ctx, "live")
	require.NoError(t, err)
	assert.True(t, v.IsValid)
	_, err = f.responses.GetByToken(ctx, "live")
	assert.ErrorIs(t, err, repo.ErrNotFound)
	assert.Empty(t, f.status.calls)

	f.submits.err = nil
	resp, fields, err := f.svc.Respond(ctx, "live", answers())
	require.NoError(t, err)
	require.Nil(t, fields)

	stored, err := f.responses.GetByToken(ctx, "live")
	require.NoError(t, err)
	assert.Equal(t, resp.ID, stored.ID)
	stats, err := f.tokens.GetTokenStats(ctx, "req-1")
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Used)
	assert.Equal(t, 0, stats.Pending)
}

// racingSubmissions lets another submit for the same token land first.
type racingSubmissions struct {
	repo.SubmissionRepository
	at time.Time
}

func (r *racingSubmissions) SubmitResponse(ctx context.Context, resp *domain.Response) error {
	first := *resp
	first.ID = "winner"
	first.SubmittedAt = r.at
	if err := r.SubmissionRepository.SubmitResponse(ctx, &first); err != nil {
		return err
	}
	return r.SubmissionRepository.SubmitResponse(ctx, resp)
}

func TestRespondLosingRaceReportsUsedAt(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.Consent(ctx, "live")
	require.NoError(t, err)

	f.svc.submissions = &racingSubmissions{SubmissionRepository: f.submits.SubmissionRepository, at: base}

	_, _, err = f.svc.Respond(ctx, "live", answers())
	var ae *AccessError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, domain.TokenAlreadyUsed, ae.Validation.Error)
	require.NotNil(t, ae.Validation.UsedAt)
	assert.Equal(t, base, *ae.Validation.UsedAt)

	stored, err := f.responses.GetByToken(ctx, "live")
	require.NoError(t, err)
	assert.Equal(t, "winner", stored.ID)
	assert.Empty(t, f.status.calls)
}

func TestDrafts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	draft, err := f.svc.LoadDraft(ctx, "live")
	require.NoError(t, err)
	assert.Nil(t, draft)

	saved, err := f.svc.SaveDraft(ctx, "live", answers())
	require.NoError(t, err)
	assert.Equal(t, "꼼꼼합니다", saved.Answers[0].Text)

	draft, err = f.svc.LoadDraft(ctx, "live")
	require.NoError(t, err)
	require.NotNil(t, draft)
	assert.Equal(t, saved.Answers, draft.Answers)

	require.NoError(t, f.drafts.Set(ctx, snapshot.ResponseDraftKey("live"), []byte("{broken"), 0))
	draft, err = f.svc.LoadDraft(ctx, "live")
	require.NoError(t, err)
	assert.Nil(t, draft)

	_, err = f.svc.SaveDraft(ctx, "stale", answers())
	assert.Equal(t, domain.TokenExpired, accessCode(t, err))
}
