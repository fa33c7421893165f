package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/diagnosis/refcheck/internal/domain"
	"github.com/diagnosis/refcheck/internal/repo"
)

type RejectionRepo struct {
	mu      sync.RWMutex
	byToken map[string]domain.RejectionRecord
}

func NewRejectionRepo() *RejectionRepo {
	return &RejectionRepo{byToken: make(map[string]domain.RejectionRecord)}
}

func (r *RejectionRepo) Create(_ context.Context, rec *domain.RejectionRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byToken[rec.Token]; exists {
		return repo.ErrDuplicate
	}
	r.byToken[rec.Token] = *rec
	return nil
}

func (r *RejectionRepo) GetByToken(_ context.Context, token string) (*domain.RejectionRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.byToken[token]
	if !ok {
		return nil, repo.ErrNotFound
	}
	return &rec, nil
}

func (r *RejectionRepo) ListByRequest(_ context.Context, requestID string) ([]domain.RejectionRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.RejectionRecord, 0)
	for _, rec := range r.byToken {
		if rec.RequestID == requestID {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RejectedAt.Before(out[j].RejectedAt) })
	return out, nil
}

type RequestRepo struct {
	mu       sync.RWMutex
	requests map[string]domain.ReferenceRequest
}

func NewRequestRepo() *RequestRepo {
	return &RequestRepo{requests: make(map[string]domain.ReferenceRequest)}
}

func (r *RequestRepo) Create(_ context.Context, req *domain.ReferenceRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.requests[req.ID]; exists {
		return repo.ErrDuplicate
	}
	r.requests[req.ID] = *req
	return nil
}

func (r *RequestRepo) Get(_ context.Context, id string) (*domain.ReferenceRequest, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	req, ok := r.requests[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	return &req, nil
}

func (r *RequestRepo) ListByOwner(_ context.Context, ownerID string, status *domain.RequestStatus) ([]domain.ReferenceRequest, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.ReferenceRequest, 0)
	for _, req := range r.requests {
		if req.OwnerID != ownerID {
			continue
		}
		if status != nil && req.Status != *status {
			continue
		}
		out = append(out, req)
	}
	// newest first
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *RequestRepo) UpdateStatus(_ context.Context, id string, status domain.RequestStatus, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	req, ok := r.requests[id]
	if !ok {
		return repo.ErrNotFound
	}
	req.Status = status
	req.UpdatedAt = at
	r.requests[id] = req
	return nil
}

type ResponseRepo struct {
	mu      sync.RWMutex
	byToken map[string]domain.Response
}

func NewResponseRepo() *ResponseRepo {
	return &ResponseRepo{byToken: make(map[string]domain.Response)}
}

func (r *ResponseRepo) Create(_ context.Context, resp *domain.Response) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byToken[resp.Token]; exists {
		return repo.ErrDuplicate
	}
	r.byToken[resp.Token] = *resp
	return nil
}

func (r *ResponseRepo) GetByToken(_ context.Context, token string) (*domain.Response, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	resp, ok := r.byToken[token]
	if !ok {
		return nil, repo.ErrNotFound
	}
	return &resp, nil
}

func (r *ResponseRepo) ListByRequest(_ context.Context, requestID string) ([]domain.Response, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.Response, 0)
	for _, resp := range r.byToken {
		if resp.RequestID == requestID {
			out = append(out, resp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SubmittedAt.Before(out[j].SubmittedAt) })
	return out, nil
}

var (
	_ repo.RejectionRepository = (*RejectionRepo)(nil)
	_ repo.RequestRepository   = (*RequestRepo)(nil)
	_ repo.ResponseRepository  = (*ResponseRepo)(nil)
)
