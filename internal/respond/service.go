// Package respond serves the respondent side of a reference request: the
// consent screen, answer drafts, the final answers and declining.
package respond

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/diagnosis/refcheck/internal/domain"
	"github.com/diagnosis/refcheck/internal/repo"
	"github.com/diagnosis/refcheck/internal/snapshot"
	"github.com/diagnosis/refcheck/internal/tokens"
	"github.com/diagnosis/refcheck/pkg/events"
	"github.com/diagnosis/refcheck/pkg/logger"
)

const maxAnswerLength = 5000

var ErrConsentRequired = errors.New("consent required before answering")

// AccessError carries the token validation result that denied access.
type AccessError struct {
	Validation domain.TokenValidation
}

func (e *AccessError) Error() string {
	return fmt.Sprintf("token not usable: %s", e.Validation.Error)
}

func denied(v domain.TokenValidation) error { return &AccessError{Validation: v} }

// StatusRefresher is satisfied by requests.Service.
type StatusRefresher interface {
	RefreshStatus(ctx context.Context, requestID string) (bool, error)
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

type Service struct {
	tokens      *tokens.Service
	requests    repo.RequestRepository
	submissions repo.SubmissionRepository
	drafts      snapshot.Store
	status      StatusRefresher
	bus         events.Publisher
	now         func() time.Time
}

func NewService(
	tokenSvc *tokens.Service,
	requests repo.RequestRepository,
	submissions repo.SubmissionRepository,
	drafts snapshot.Store,
	status StatusRefresher,
	bus events.Publisher,
	opts ...Option,
) *Service {
	s := &Service{
		tokens:      tokenSvc,
		requests:    requests,
		submissions: submissions,
		drafts:      drafts,
		status:      status,
		bus:         bus,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type access struct {
	token   *domain.ResponseToken
	request *domain.ReferenceRequest
	company domain.TargetCompany
}

// resolve checks rejection before the token's own state, so a declined
// request reports TOKEN_REJECTED even after it expires.
func (s *Service) resolve(ctx context.Context, token string) (*access, error) {
	rejected, err := s.tokens.IsRejected(ctx, token)
	if err != nil {
		return nil, err
	}
	if rejected {
		return nil, denied(domain.InvalidToken(domain.TokenRejected))
	}

	v, err := s.tokens.ValidateResponseToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if !v.IsValid {
		return nil, denied(v)
	}

	req, err := s.requests.Get(ctx, v.TokenData.RequestID)
	if err != nil {
		return nil, fmt.Errorf("get request %s: %w", v.TokenData.RequestID, err)
	}
	company, _ := req.Company(v.TokenData.CompanyID)
	return &access{token: v.TokenData, request: req, company: company}, nil
}

func (a *access) view() *domain.RespondentView {
	return &domain.RespondentView{
		Token:          a.token.Token,
		TalentName:     a.request.Talent.Name,
		CompanyName:    a.company.Name,
		RespondentName: a.token.RespondentName,
		Questions:      a.request.Questions,
		ExpiresAt:      a.token.ExpiresAt,
		Consented:      a.token.ConsentedAt != nil,
	}
}

func (s *Service) Access(ctx context.Context, token string) (*domain.RespondentView, error) {
	a, err := s.resolve(ctx, token)
	if err != nil {
		return nil, err
	}
	return a.view(), nil
}

func (s *Service) Consent(ctx context.Context, token string) (*domain.RespondentView, error) {
	a, err := s.resolve(ctx, token)
	if err != nil {
		return nil, err
	}
	if a.token.ConsentedAt == nil {
		if err := s.tokens.RecordConsent(ctx, token); err != nil {
			return nil, err
		}
		at := s.now()
		a.token.ConsentedAt = &at
		s.publish(ctx, events.ResponseConsented, events.ResponseConsentedEvent{
			RequestID:   a.request.ID,
			CompanyID:   a.company.ID,
			ConsentedAt: at,
		})
	}
	return a.view(), nil
}

// SaveDraft keeps in-progress answers until the token expires. Store
// failures are logged and the draft is still returned.
func (s *Service) SaveDraft(ctx context.Context, token string, answers []domain.Answer) (*domain.ResponseDraft, error) {
	a, err := s.resolve(ctx, token)
	if err != nil {
		return nil, err
	}
	now := s.now()
	draft := &domain.ResponseDraft{Answers: trimAnswers(answers), SavedAt: now}
	if s.drafts == nil {
		return draft, nil
	}
	ttl := a.token.ExpiresAt.Sub(now)
	if ttl <= 0 {
		ttl = time.Minute
	}
	if err := snapshot.Save(ctx, s.drafts, snapshot.ResponseDraftKey(token), draft, ttl, now); err != nil {
		logger.WarnContext(ctx, "Draft save failed", "request_id", a.request.ID, "error", err)
	}
	return draft, nil
}

// LoadDraft returns nil when nothing usable is stored.
func (s *Service) LoadDraft(ctx context.Context, token string) (*domain.ResponseDraft, error) {
	if _, err := s.resolve(ctx, token); err != nil {
		return nil, err
	}
	if s.drafts == nil {
		return nil, nil
	}
	var draft domain.ResponseDraft
	if _, err := snapshot.Load(ctx, s.drafts, snapshot.ResponseDraftKey(token), &draft); err != nil {
		if !errors.Is(err, snapshot.ErrMissing) {
			logger.WarnContext(ctx, "Draft discarded", "error", err)
		}
		return nil, nil
	}
	return &draft, nil
}

// Respond stores the final answers and spends the token in one write. Every
// question of the request needs a non-empty answer; problems come back as
// FieldErrors keyed by question id.
func (s *Service) Respond(ctx context.Context, token string, answers []domain.Answer) (*domain.Response, domain.FieldErrors, error) {
	a, err := s.resolve(ctx, token)
	if err != nil {
		return nil, nil, err
	}
	if a.token.ConsentedAt == nil {
		return nil, nil, ErrConsentRequired
	}

	ordered, fieldErrs := matchAnswers(a.request.Questions, answers)
	if !fieldErrs.Empty() {
		return nil, fieldErrs, nil
	}

	now := s.now()
	resp := &domain.Response{
		ID:          uuid.NewString(),
		Token:       token,
		RequestID:   a.request.ID,
		CompanyID:   a.token.CompanyID,
		Answers:     ordered,
		SubmittedAt: now,
	}
	if err := s.submissions.SubmitResponse(ctx, resp); err != nil {
		if errors.Is(err, repo.ErrDuplicate) {
			// lost a race with another submit; report the stored usedAt
			if v, verr := s.tokens.ValidateResponseToken(ctx, token); verr == nil && !v.IsValid {
				return nil, nil, denied(v)
			}
			return nil, nil, denied(domain.InvalidToken(domain.TokenAlreadyUsed))
		}
		return nil, nil, fmt.Errorf("submit response: %w", err)
	}

	if s.drafts != nil {
		if err := s.drafts.Delete(ctx, snapshot.ResponseDraftKey(token)); err != nil {
			logger.WarnContext(ctx, "Draft clear failed", "request_id", a.request.ID, "error", err)
		}
	}
	s.publish(ctx, events.ResponseSubmitted, events.ResponseSubmittedEvent{
		RequestID:   a.request.ID,
		CompanyID:   a.token.CompanyID,
		ResponseID:  resp.ID,
		Answers:     len(ordered),
		SubmittedAt: now,
	})
	s.refresh(ctx, a.request.ID)

	logger.InfoContext(ctx, "Reference response submitted", "request_id", a.request.ID, "company_id", a.token.CompanyID)
	return resp, nil, nil
}

// Reject declines the request on behalf of the respondent. The token stays
// unused; later access reports TOKEN_REJECTED.
func (s *Service) Reject(ctx context.Context, token, reason string) (*domain.RejectionRecord, error) {
	a, err := s.resolve(ctx, token)
	if err != nil {
		return nil, err
	}
	rec, err := s.tokens.Reject(ctx, a.token, reason)
	if errors.Is(err, repo.ErrDuplicate) {
		return nil, denied(domain.InvalidToken(domain.TokenRejected))
	}
	if err != nil {
		return nil, err
	}

	if s.drafts != nil {
		_ = s.drafts.Delete(ctx, snapshot.ResponseDraftKey(token))
	}
	s.publish(ctx, events.ResponseRejected, events.ResponseRejectedEvent{
		RequestID:  rec.RequestID,
		CompanyID:  rec.CompanyID,
		Reason:     rec.Reason,
		RejectedAt: rec.RejectedAt,
	})
	s.refresh(ctx, a.request.ID)
	return rec, nil
}

func (s *Service) refresh(ctx context.Context, requestID string) {
	if s.status == nil {
		return
	}
	if _, err := s.status.RefreshStatus(ctx, requestID); err != nil {
		logger.ErrorContext(ctx, "Request status refresh failed", "request_id", requestID, "error", err)
	}
}

func (s *Service) publish(ctx context.Context, subject string, data interface{}) {
	if s.bus == nil {
		return
	}
	if err := s.bus.Publish(ctx, subject, data); err != nil {
		logger.ErrorContext(ctx, "Failed to publish event", "subject", subject, "error", err)
	}
}

func trimAnswers(answers []domain.Answer) []domain.Answer {
	out := make([]domain.Answer, 0, len(answers))
	for _, a := range answers {
		out = append(out, domain.Answer{QuestionID: a.QuestionID, Text: strings.TrimSpace(a.Text)})
	}
	return out
}

// matchAnswers lines answers up with the request's questions.
func matchAnswers(questions []domain.Question, answers []domain.Answer) ([]domain.Answer, domain.FieldErrors) {
	errs := domain.FieldErrors{}
	byID := make(map[string]string, len(answers))
	for _, a := range trimAnswers(answers) {
		byID[a.QuestionID] = a.Text
	}

	known := make(map[string]struct{}, len(questions))
	out := make([]domain.Answer, 0, len(questions))
	for _, q := range questions {
		known[q.ID] = struct{}{}
		text := byID[q.ID]
		switch {
		case text == "":
			errs.Add(q.ID, "An answer is required")
		case utf8.RuneCountInString(text) > maxAnswerLength:
			errs.Add(q.ID, fmt.Sprintf("Answers are limited to %d characters", maxAnswerLength))
		default:
			out = append(out, domain.Answer{QuestionID: q.ID, Text: text})
		}
	}
	for id := range byID {
		if _, ok := known[id]; !ok {
			errs.Add(id, "Unknown question")
		}
	}
	return out, errs
}
