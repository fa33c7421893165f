package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/diagnosis/refcheck/internal/domain"
	"github.com/diagnosis/refcheck/internal/repo"
)

// SubmissionRepoImpl runs each multi-row write in one transaction.
type SubmissionRepoImpl struct{ pool *pgxpool.Pool }

func NewSubmissionRepo(pool *pgxpool.Pool) *SubmissionRepoImpl {
	return &SubmissionRepoImpl{pool: pool}
}

func (r *SubmissionRepoImpl) CreateRequest(ctx context.Context, req *domain.ReferenceRequest, tokens []domain.ResponseToken) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	return pgx.BeginTxFunc(ctx, r.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		if err := insertRequest(ctx, tx, req); err != nil {
			return fmt.Errorf("insert request: %w", err)
		}
		for i := range tokens {
			if err := insertToken(ctx, tx, &tokens[i]); err != nil {
				return fmt.Errorf("insert token for company %s: %w", tokens[i].CompanyID, err)
			}
		}
		return nil
	})
}

// SubmitResponse spends the token first so a concurrent submit loses on the
// guarded update rather than on the insert.
func (r *SubmissionRepoImpl) SubmitResponse(ctx context.Context, resp *domain.Response) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	return pgx.BeginTxFunc(ctx, r.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		ok, err := markUsed(ctx, tx, resp.Token, resp.SubmittedAt)
		if err != nil {
			return fmt.Errorf("mark token used: %w", err)
		}
		if !ok {
			return repo.ErrDuplicate
		}
		if err := insertResponse(ctx, tx, resp); err != nil {
			return fmt.Errorf("insert response: %w", err)
		}
		return nil
	})
}

var _ repo.SubmissionRepository = (*SubmissionRepoImpl)(nil)
