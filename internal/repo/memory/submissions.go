package memory

import (
	"context"

	"github.com/diagnosis/refcheck/internal/domain"
	"github.com/diagnosis/refcheck/internal/repo"
)

// SubmissionRepo writes across the request, token and response maps under
// all of their locks. Locks are always taken in that order.
type SubmissionRepo struct {
	requests  *RequestRepo
	tokens    *TokenRepo
	responses *ResponseRepo
}

func NewSubmissionRepo(requests *RequestRepo, tokens *TokenRepo, responses *ResponseRepo) *SubmissionRepo {
	return &SubmissionRepo{requests: requests, tokens: tokens, responses: responses}
}

func (s *SubmissionRepo) CreateRequest(_ context.Context, req *domain.ReferenceRequest, tokens []domain.ResponseToken) error {
	s.requests.mu.Lock()
	defer s.requests.mu.Unlock()
	s.tokens.mu.Lock()
	defer s.tokens.mu.Unlock()

	if _, exists := s.requests.requests[req.ID]; exists {
		return repo.ErrDuplicate
	}
	seen := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		if _, exists := s.tokens.tokens[t.Token]; exists {
			return repo.ErrDuplicate
		}
		if _, dup := seen[t.Token]; dup {
			return repo.ErrDuplicate
		}
		seen[t.Token] = struct{}{}
	}

	s.requests.requests[req.ID] = *req
	for _, t := range tokens {
		s.tokens.tokens[t.Token] = t
	}
	return nil
}

func (s *SubmissionRepo) SubmitResponse(_ context.Context, resp *domain.Response) error {
	s.tokens.mu.Lock()
	defer s.tokens.mu.Unlock()
	s.responses.mu.Lock()
	defer s.responses.mu.Unlock()

	t, ok := s.tokens.tokens[resp.Token]
	if !ok {
		return repo.ErrNotFound
	}
	if t.IsUsed {
		return repo.ErrDuplicate
	}
	if _, exists := s.responses.byToken[resp.Token]; exists {
		return repo.ErrDuplicate
	}

	at := resp.SubmittedAt
	t.IsUsed = true
	t.UsedAt = &at
	s.tokens.tokens[resp.Token] = t
	s.responses.byToken[resp.Token] = *resp
	return nil
}

var _ repo.SubmissionRepository = (*SubmissionRepo)(nil)
