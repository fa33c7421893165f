// Package requests turns a completed wizard into a reference request, issues
// one respondent token per target company and mails the invitations.
package requests

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"github.com/diagnosis/refcheck/internal/domain"
	"github.com/diagnosis/refcheck/internal/links"
	"github.com/diagnosis/refcheck/internal/platform/mailer"
	"github.com/diagnosis/refcheck/internal/repo"
	"github.com/diagnosis/refcheck/internal/tokens"
	"github.com/diagnosis/refcheck/internal/wizard"
	"github.com/diagnosis/refcheck/pkg/events"
	"github.com/diagnosis/refcheck/pkg/logger"
)

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithFailureRate makes Submit fail with domain.ErrSimulatedFailure for the
// given share of calls. roll returns values in [0,1); nil keeps math/rand.
func WithFailureRate(rate float64, roll func() float64) Option {
	return func(s *Service) {
		s.failureRate = rate
		if roll != nil {
			s.roll = roll
		}
	}
}

type Service struct {
	requests    repo.RequestRepository
	responses   repo.ResponseRepository
	submissions repo.SubmissionRepository
	tokens      *tokens.Service
	wizards   *wizard.Registry
	mailer    mailer.Service
	links     *links.Builder
	bus       events.Publisher

	failureRate float64
	roll        func() float64
	now         func() time.Time
}

func NewService(
	requests repo.RequestRepository,
	responses repo.ResponseRepository,
	submissions repo.SubmissionRepository,
	tokenSvc *tokens.Service,
	wizards *wizard.Registry,
	mail mailer.Service,
	linkBuilder *links.Builder,
	bus events.Publisher,
	opts ...Option,
) *Service {
	s := &Service{
		requests:    requests,
		responses:   responses,
		submissions: submissions,
		tokens:      tokenSvc,
		wizards:     wizards,
		mailer:      mail,
		links:       linkBuilder,
		bus:         bus,
		roll:        rand.Float64,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Submit validates every wizard step, stores the request together with one
// token per company and sends invitations. Nothing is stored when the write
// fails, and the owner's wizard is kept for a retry.
func (s *Service) Submit(ctx context.Context, ownerID string) (*domain.RequestSummary, error) {
	engine := s.wizards.Get(ctx, ownerID)
	data := engine.FormData()

	if step := wizard.FirstInvalidStep(data); step != 0 {
		return nil, &domain.StepError{Step: step}
	}
	if s.failureRate > 0 && s.roll() < s.failureRate {
		logger.WarnContext(ctx, "Simulated submit failure", "owner_id", ownerID)
		return nil, domain.ErrSimulatedFailure
	}

	now := s.now()
	req := &domain.ReferenceRequest{
		ID:              uuid.NewString(),
		OwnerID:         ownerID,
		Talent:          data.TalentInfo,
		WorkHistory:     data.WorkHistory,
		TargetCompanies: data.TargetCompanies,
		Questions:       data.EnabledQuestions(),
		Status:          domain.RequestInProgress,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	issued := make([]domain.ResponseToken, 0, len(req.TargetCompanies))
	for _, c := range req.TargetCompanies {
		issued = append(issued, s.tokens.Issue(req.ID, c.ID, c.ContactEmail, c.ContactPerson))
	}
	if err := s.submissions.CreateRequest(ctx, req, issued); err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	for _, t := range issued {
		c, _ := req.Company(t.CompanyID)
		if err := s.mailer.SendInvitation(ctx, Invitation(s.links, req, c, &t, 0)); err != nil {
			logger.ErrorContext(ctx, "Failed to send invitation",
				"request_id", req.ID, "company_id", c.ID, "error", err)
		}
	}

	if err := s.bus.Publish(ctx, events.RequestSubmitted, events.RequestSubmittedEvent{
		RequestID:   req.ID,
		OwnerID:     ownerID,
		TalentName:  req.Talent.Name,
		Companies:   len(req.TargetCompanies),
		Tokens:      len(issued),
		SubmittedAt: now,
	}); err != nil {
		logger.ErrorContext(ctx, "Failed to publish request submitted event", "request_id", req.ID, "error", err)
	}

	s.wizards.Discard(ownerID)

	logger.InfoContext(ctx, "Reference request submitted",
		"request_id", req.ID, "owner_id", ownerID, "tokens", len(issued))

	return &domain.RequestSummary{Request: req, Stats: tokens.Stats(issued, now)}, nil
}

// Invitation builds the respondent email for token t. reminder is 0 for the
// first message.
func Invitation(b *links.Builder, req *domain.ReferenceRequest, c domain.TargetCompany, t *domain.ResponseToken, reminder int) mailer.Invitation {
	return mailer.Invitation{
		ToEmail:     t.RespondentEmail,
		ToName:      t.RespondentName,
		TalentName:  req.Talent.Name,
		CompanyName: c.Name,
		ConsentURL:  b.Consent(t.Token),
		RejectURL:   b.Reject(t.Token),
		ExpiresAt:   t.ExpiresAt,
		Reminder:    reminder,
	}
}

// List returns the owner's requests, newest first, with token stats.
func (s *Service) List(ctx context.Context, ownerID string, status *domain.RequestStatus) ([]domain.RequestSummary, error) {
	list, err := s.requests.ListByOwner(ctx, ownerID, status)
	if err != nil {
		return nil, fmt.Errorf("list requests: %w", err)
	}
	out := make([]domain.RequestSummary, 0, len(list))
	for i := range list {
		st, err := s.tokens.GetTokenStats(ctx, list[i].ID)
		if err != nil {
			return nil, err
		}
		out = append(out, domain.RequestSummary{Request: &list[i], Stats: st})
	}
	return out, nil
}

// Get returns repo.ErrNotFound for requests owned by someone else.
func (s *Service) Get(ctx context.Context, ownerID, id string) (*domain.RequestDetail, error) {
	req, err := s.owned(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	st, err := s.tokens.GetTokenStats(ctx, id)
	if err != nil {
		return nil, err
	}
	responses, err := s.responses.ListByRequest(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("list responses: %w", err)
	}
	rejections, err := s.tokens.Rejections(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("list rejections: %w", err)
	}
	return &domain.RequestDetail{
		RequestSummary: domain.RequestSummary{Request: req, Stats: st},
		Responses:      responses,
		Rejections:     rejections,
	}, nil
}

func (s *Service) Tokens(ctx context.Context, ownerID, id string) ([]domain.ResponseToken, error) {
	if _, err := s.owned(ctx, ownerID, id); err != nil {
		return nil, err
	}
	return s.tokens.GetTokensByRequestID(ctx, id)
}

func (s *Service) owned(ctx context.Context, ownerID, id string) (*domain.ReferenceRequest, error) {
	req, err := s.requests.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.OwnerID != ownerID {
		return nil, repo.ErrNotFound
	}
	return req, nil
}

// RefreshStatus marks the request completed once every token is either used
// or rejected. It reports whether the status changed.
func (s *Service) RefreshStatus(ctx context.Context, requestID string) (bool, error) {
	req, err := s.requests.Get(ctx, requestID)
	if err != nil {
		return false, err
	}
	if req.Status == domain.RequestCompleted {
		return false, nil
	}

	list, err := s.tokens.GetTokensByRequestID(ctx, requestID)
	if err != nil {
		return false, err
	}
	rejections, err := s.tokens.Rejections(ctx, requestID)
	if err != nil {
		return false, err
	}
	rejected := make(map[string]struct{}, len(rejections))
	for _, r := range rejections {
		rejected[r.Token] = struct{}{}
	}
	for _, t := range list {
		if _, ok := rejected[t.Token]; !ok && !t.IsUsed {
			return false, nil
		}
	}

	now := s.now()
	if err := s.requests.UpdateStatus(ctx, requestID, domain.RequestCompleted, now); err != nil {
		return false, fmt.Errorf("update request status: %w", err)
	}
	if err := s.bus.Publish(ctx, events.RequestCompleted, events.RequestCompletedEvent{
		RequestID:   requestID,
		CompletedAt: now,
	}); err != nil {
		logger.ErrorContext(ctx, "Failed to publish request completed event", "request_id", requestID, "error", err)
	}
	return true, nil
}
