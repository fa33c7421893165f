// Package memory implements the repo interfaces on maps guarded by
// RWMutexes. Each constructor returns an isolated store, so tests never share
// state.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/diagnosis/refcheck/internal/domain"
	"github.com/diagnosis/refcheck/internal/repo"
)

type TokenRepo struct {
	mu     sync.RWMutex
	tokens map[string]domain.ResponseToken
}

func NewTokenRepo(seed ...domain.ResponseToken) *TokenRepo {
	r := &TokenRepo{tokens: make(map[string]domain.ResponseToken, len(seed))}
	for _, t := range seed {
		r.tokens[t.Token] = t
	}
	return r
}

func (r *TokenRepo) Create(_ context.Context, t *domain.ResponseToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tokens[t.Token]; exists {
		return repo.ErrDuplicate
	}
	r.tokens[t.Token] = *t
	return nil
}

func (r *TokenRepo) Get(_ context.Context, token string) (*domain.ResponseToken, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.tokens[token]
	if !ok {
		return nil, repo.ErrNotFound
	}
	return &t, nil
}

func (r *TokenRepo) ListByRequest(_ context.Context, requestID string) ([]domain.ResponseToken, error) {
	return r.filter(func(t domain.ResponseToken) bool { return t.RequestID == requestID }), nil
}

func (r *TokenRepo) List(_ context.Context) ([]domain.ResponseToken, error) {
	return r.filter(func(domain.ResponseToken) bool { return true }), nil
}

func (r *TokenRepo) ListPending(_ context.Context, now time.Time) ([]domain.ResponseToken, error) {
	return r.filter(func(t domain.ResponseToken) bool { return t.IsValidAt(now) }), nil
}

func (r *TokenRepo) filter(keep func(domain.ResponseToken) bool) []domain.ResponseToken {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.ResponseToken, 0)
	for _, t := range r.tokens {
		if keep(t) {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].Token < out[j].Token
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func (r *TokenRepo) MarkUsed(_ context.Context, token string, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.tokens[token]
	if !ok || t.IsUsed {
		return false, nil
	}
	t.IsUsed = true
	t.UsedAt = &at
	r.tokens[token] = t
	return true, nil
}

func (r *TokenRepo) RecordReminder(_ context.Context, token string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.tokens[token]
	if !ok {
		return repo.ErrNotFound
	}
	t.RemindersSent++
	t.LastReminderAt = &at
	r.tokens[token] = t
	return nil
}

func (r *TokenRepo) RecordConsent(_ context.Context, token string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.tokens[token]
	if !ok {
		return repo.ErrNotFound
	}
	if t.ConsentedAt == nil {
		t.ConsentedAt = &at
		r.tokens[token] = t
	}
	return nil
}

var _ repo.TokenRepository = (*TokenRepo)(nil)
