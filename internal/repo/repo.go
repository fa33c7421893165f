// Package repo declares the storage contracts used by the services. The
// memory package backs tests and dev mode; the postgres package backs
// deployments.
package repo

import (
	"context"
	"errors"
	"time"

	"github.com/diagnosis/refcheck/internal/domain"
)

// ErrNotFound is returned by lookups that match nothing.
var ErrNotFound = domain.ErrNotFound

// ErrDuplicate is returned when a key is already taken. Tokens are never
// reissued under an existing key.
var ErrDuplicate = errors.New("duplicate key")

type TokenRepository interface {
	Create(ctx context.Context, t *domain.ResponseToken) error
	Get(ctx context.Context, token string) (*domain.ResponseToken, error)
	ListByRequest(ctx context.Context, requestID string) ([]domain.ResponseToken, error)
	List(ctx context.Context) ([]domain.ResponseToken, error)
	// ListPending returns unused tokens that have not expired at now.
	ListPending(ctx context.Context, now time.Time) ([]domain.ResponseToken, error)
	// MarkUsed flips is_used once. It reports false when the token is
	// missing or already used, leaving used_at as it was.
	MarkUsed(ctx context.Context, token string, at time.Time) (bool, error)
	RecordReminder(ctx context.Context, token string, at time.Time) error
	RecordConsent(ctx context.Context, token string, at time.Time) error
}

type RejectionRepository interface {
	Create(ctx context.Context, r *domain.RejectionRecord) error
	GetByToken(ctx context.Context, token string) (*domain.RejectionRecord, error)
	ListByRequest(ctx context.Context, requestID string) ([]domain.RejectionRecord, error)
}

type RequestRepository interface {
	Create(ctx context.Context, r *domain.ReferenceRequest) error
	Get(ctx context.Context, id string) (*domain.ReferenceRequest, error)
	ListByOwner(ctx context.Context, ownerID string, status *domain.RequestStatus) ([]domain.ReferenceRequest, error)
	UpdateStatus(ctx context.Context, id string, status domain.RequestStatus, at time.Time) error
}

type ResponseRepository interface {
	Create(ctx context.Context, r *domain.Response) error
	GetByToken(ctx context.Context, token string) (*domain.Response, error)
	ListByRequest(ctx context.Context, requestID string) ([]domain.Response, error)
}

// SubmissionRepository groups writes that must land together or not at all.
type SubmissionRepository interface {
	// CreateRequest stores a request with every one of its tokens.
	CreateRequest(ctx context.Context, r *domain.ReferenceRequest, tokens []domain.ResponseToken) error
	// SubmitResponse stores the response and marks its token used at
	// SubmittedAt. ErrDuplicate means the token was already spent.
	SubmitResponse(ctx context.Context, r *domain.Response) error
}
