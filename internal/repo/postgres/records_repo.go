package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/diagnosis/refcheck/internal/domain"
	"github.com/diagnosis/refcheck/internal/repo"
)

type RejectionRepoImpl struct{ pool *pgxpool.Pool }

func NewRejectionRepo(pool *pgxpool.Pool) *RejectionRepoImpl { return &RejectionRepoImpl{pool: pool} }

const rejectionCols = `id, token, request_id, company_id, respondent_email, reason, rejected_at`

func scanRejection(row pgx.Row) (*domain.RejectionRecord, error) {
	var rec domain.RejectionRecord
	err := row.Scan(&rec.ID, &rec.Token, &rec.RequestID, &rec.CompanyID,
		&rec.RespondentEmail, &rec.Reason, &rec.RejectedAt)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *RejectionRepoImpl) Create(ctx context.Context, rec *domain.RejectionRecord) error {
	const q = `INSERT INTO token_rejections (` + rejectionCols + `) VALUES ($1,$2,$3,$4,$5,$6,$7)`
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	_, err := r.pool.Exec(ctx, q, rec.ID, rec.Token, rec.RequestID, rec.CompanyID,
		rec.RespondentEmail, rec.Reason, rec.RejectedAt)
	if isUniqueViolation(err) {
		return repo.ErrDuplicate
	}
	return err
}

func (r *RejectionRepoImpl) GetByToken(ctx context.Context, token string) (*domain.RejectionRecord, error) {
	const q = `SELECT ` + rejectionCols + ` FROM token_rejections WHERE token=$1`
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	rec, err := scanRejection(r.pool.QueryRow(ctx, q, token))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, repo.ErrNotFound
	}
	return rec, err
}

func (r *RejectionRepoImpl) ListByRequest(ctx context.Context, requestID string) ([]domain.RejectionRecord, error) {
	const q = `SELECT ` + rejectionCols + ` FROM token_rejections WHERE request_id=$1 ORDER BY rejected_at`
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	rows, err := r.pool.Query(ctx, q, requestID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.RejectionRecord, 0)
	for rows.Next() {
		rec, err := scanRejection(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

type ResponseRepoImpl struct{ pool *pgxpool.Pool }

func NewResponseRepo(pool *pgxpool.Pool) *ResponseRepoImpl { return &ResponseRepoImpl{pool: pool} }

const responseCols = `id, token, request_id, company_id, answers, submitted_at`

func scanResponse(row pgx.Row) (*domain.Response, error) {
	var (
		resp    domain.Response
		answers []byte
	)
	if err := row.Scan(&resp.ID, &resp.Token, &resp.RequestID, &resp.CompanyID, &answers, &resp.SubmittedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(answers, &resp.Answers); err != nil {
		return nil, fmt.Errorf("decode answers %s: %w", resp.ID, err)
	}
	return &resp, nil
}

func insertResponse(ctx context.Context, db dbtx, resp *domain.Response) error {
	const q = `INSERT INTO responses (` + responseCols + `) VALUES ($1,$2,$3,$4,$5,$6)`
	answers, err := json.Marshal(resp.Answers)
	if err != nil {
		return err
	}
	_, err = db.Exec(ctx, q, resp.ID, resp.Token, resp.RequestID, resp.CompanyID, answers, resp.SubmittedAt)
	if isUniqueViolation(err) {
		return repo.ErrDuplicate
	}
	return err
}

func (r *ResponseRepoImpl) Create(ctx context.Context, resp *domain.Response) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	return insertResponse(ctx, r.pool, resp)
}

func (r *ResponseRepoImpl) GetByToken(ctx context.Context, token string) (*domain.Response, error) {
	const q = `SELECT ` + responseCols + ` FROM responses WHERE token=$1`
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	resp, err := scanResponse(r.pool.QueryRow(ctx, q, token))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, repo.ErrNotFound
	}
	return resp, err
}

func (r *ResponseRepoImpl) ListByRequest(ctx context.Context, requestID string) ([]domain.Response, error) {
	const q = `SELECT ` + responseCols + ` FROM responses WHERE request_id=$1 ORDER BY submitted_at`
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	rows, err := r.pool.Query(ctx, q, requestID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.Response, 0)
	for rows.Next() {
		resp, err := scanResponse(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *resp)
	}
	return out, rows.Err()
}

var (
	_ repo.RejectionRepository = (*RejectionRepoImpl)(nil)
	_ repo.ResponseRepository  = (*ResponseRepoImpl)(nil)
)
