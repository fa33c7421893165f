// Package tokens owns the lifecycle of respondent tokens: issuing,
// validation, single use, reminder selection and rejection.
package tokens

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/diagnosis/refcheck/internal/domain"
	"github.com/diagnosis/refcheck/internal/repo"
)

const DefaultTTL = 14 * 24 * time.Hour

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

type Service struct {
	tokens     repo.TokenRepository
	rejections repo.RejectionRepository
	ttl        time.Duration
	now        func() time.Time
}

func NewService(tokens repo.TokenRepository, rejections repo.RejectionRepository, opts ...Option) *Service {
	s := &Service{
		tokens:     tokens,
		rejections: rejections,
		ttl:        DefaultTTL,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ValidateResponseToken checks existence, then single use, then expiry.
func (s *Service) ValidateResponseToken(ctx context.Context, token string) (domain.TokenValidation, error) {
	t, err := s.tokens.Get(ctx, token)
	if errors.Is(err, repo.ErrNotFound) {
		return domain.InvalidToken(domain.TokenNotFound), nil
	}
	if err != nil {
		return domain.TokenValidation{}, fmt.Errorf("get token: %w", err)
	}

	if t.IsUsed {
		v := domain.InvalidToken(domain.TokenAlreadyUsed)
		v.UsedAt = t.UsedAt
		return v, nil
	}
	if t.IsExpiredAt(s.now()) {
		v := domain.InvalidToken(domain.TokenExpired)
		expires := t.ExpiresAt
		v.ExpiresAt = &expires
		return v, nil
	}
	return domain.TokenValidation{IsValid: true, TokenData: t}, nil
}

// MarkTokenAsUsed reports false when the token is missing or was used
// before. The first used_at is never overwritten.
func (s *Service) MarkTokenAsUsed(ctx context.Context, token string) (bool, error) {
	ok, err := s.tokens.MarkUsed(ctx, token, s.now())
	if err != nil {
		return false, fmt.Errorf("mark token used: %w", err)
	}
	return ok, nil
}

// IsTokenExpired is false for unknown tokens.
func (s *Service) IsTokenExpired(ctx context.Context, token string) (bool, error) {
	t, err := s.tokens.Get(ctx, token)
	if errors.Is(err, repo.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("get token: %w", err)
	}
	return t.IsExpiredAt(s.now()), nil
}

func (s *Service) GetTokensByRequestID(ctx context.Context, requestID string) ([]domain.ResponseToken, error) {
	return s.tokens.ListByRequest(ctx, requestID)
}

// GetTokenStats aggregates over one request, or over every token when
// requestID is empty.
func (s *Service) GetTokenStats(ctx context.Context, requestID string) (domain.TokenStats, error) {
	var (
		list []domain.ResponseToken
		err  error
	)
	if requestID == "" {
		list, err = s.tokens.List(ctx)
	} else {
		list, err = s.tokens.ListByRequest(ctx, requestID)
	}
	if err != nil {
		return domain.TokenStats{}, fmt.Errorf("list tokens: %w", err)
	}
	return Stats(list, s.now()), nil
}

// Stats counts used, expired-unused and pending tokens at now.
func Stats(list []domain.ResponseToken, now time.Time) domain.TokenStats {
	st := domain.TokenStats{Total: len(list)}
	for i := range list {
		switch {
		case list[i].IsUsed:
			st.Used++
		case list[i].IsExpiredAt(now):
			st.Expired++
		default:
			st.Pending++
		}
	}
	if st.Total > 0 {
		st.ResponseRate = float64(st.Used) / float64(st.Total) * 100
	}
	return st
}

func (s *Service) GetTokensNeedingReminder(ctx context.Context) ([]domain.ResponseToken, error) {
	now := s.now()
	pending, err := s.tokens.ListPending(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("list pending tokens: %w", err)
	}
	out := make([]domain.ResponseToken, 0, len(pending))
	for _, t := range pending {
		if t.NeedsReminderAt(now) {
			out = append(out, t)
		}
	}
	return out, nil
}

// Issue mints a token for one respondent of a request, expiring after the
// configured TTL. It is not stored here; the request and all of its tokens
// are written together through repo.SubmissionRepository.
func (s *Service) Issue(requestID, companyID, email, name string) domain.ResponseToken {
	now := s.now()
	return domain.ResponseToken{
		Token:           uuid.NewString(),
		RequestID:       requestID,
		CompanyID:       companyID,
		RespondentEmail: strings.ToLower(strings.TrimSpace(email)),
		RespondentName:  strings.TrimSpace(name),
		CreatedAt:       now,
		ExpiresAt:       now.Add(s.ttl),
	}
}

func (s *Service) RecordReminder(ctx context.Context, token string) error {
	if err := s.tokens.RecordReminder(ctx, token, s.now()); err != nil {
		return fmt.Errorf("record reminder: %w", err)
	}
	return nil
}

func (s *Service) RecordConsent(ctx context.Context, token string) error {
	if err := s.tokens.RecordConsent(ctx, token, s.now()); err != nil {
		return fmt.Errorf("record consent: %w", err)
	}
	return nil
}

// Reject stores a rejection record for the token. The token's own used flag
// is left untouched. A second rejection returns repo.ErrDuplicate.
func (s *Service) Reject(ctx context.Context, t *domain.ResponseToken, reason string) (*domain.RejectionRecord, error) {
	rec := &domain.RejectionRecord{
		ID:              uuid.NewString(),
		Token:           t.Token,
		RequestID:       t.RequestID,
		CompanyID:       t.CompanyID,
		RespondentEmail: t.RespondentEmail,
		Reason:          strings.TrimSpace(reason),
		RejectedAt:      s.now(),
	}
	if err := s.rejections.Create(ctx, rec); err != nil {
		return nil, fmt.Errorf("create rejection: %w", err)
	}
	return rec, nil
}

func (s *Service) IsRejected(ctx context.Context, token string) (bool, error) {
	_, err := s.rejections.GetByToken(ctx, token)
	if errors.Is(err, repo.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("get rejection: %w", err)
	}
	return true, nil
}

func (s *Service) Rejections(ctx context.Context, requestID string) ([]domain.RejectionRecord, error) {
	return s.rejections.ListByRequest(ctx, requestID)
}
