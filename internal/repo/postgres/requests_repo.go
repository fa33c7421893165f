package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/diagnosis/refcheck/internal/domain"
	"github.com/diagnosis/refcheck/internal/repo"
)

type RequestRepoImpl struct{ pool *pgxpool.Pool }

func NewRequestRepo(pool *pgxpool.Pool) *RequestRepoImpl { return &RequestRepoImpl{pool: pool} }

const requestCols = `id, owner_id, talent, work_history, target_companies, questions, status, created_at, updated_at`

func scanRequest(row pgx.Row) (*domain.ReferenceRequest, error) {
	var (
		req                                   domain.ReferenceRequest
		talent, history, companies, questions []byte
	)
	if err := row.Scan(&req.ID, &req.OwnerID, &talent, &history, &companies, &questions,
		&req.Status, &req.CreatedAt, &req.UpdatedAt); err != nil {
		return nil, err
	}
	for _, f := range []struct {
		raw []byte
		dst any
	}{
		{talent, &req.Talent},
		{history, &req.WorkHistory},
		{companies, &req.TargetCompanies},
		{questions, &req.Questions},
	} {
		if err := json.Unmarshal(f.raw, f.dst); err != nil {
			return nil, fmt.Errorf("decode request %s: %w", req.ID, err)
		}
	}
	return &req, nil
}

func insertRequest(ctx context.Context, db dbtx, req *domain.ReferenceRequest) error {
	const q = `INSERT INTO reference_requests (` + requestCols + `)
	VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`

	talent, err := json.Marshal(req.Talent)
	if err != nil {
		return err
	}
	history, err := json.Marshal(req.WorkHistory)
	if err != nil {
		return err
	}
	companies, err := json.Marshal(req.TargetCompanies)
	if err != nil {
		return err
	}
	questions, err := json.Marshal(req.Questions)
	if err != nil {
		return err
	}

	_, err = db.Exec(ctx, q, req.ID, req.OwnerID, talent, history, companies, questions,
		req.Status, req.CreatedAt, req.UpdatedAt)
	if isUniqueViolation(err) {
		return repo.ErrDuplicate
	}
	return err
}

func (r *RequestRepoImpl) Create(ctx context.Context, req *domain.ReferenceRequest) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	return insertRequest(ctx, r.pool, req)
}

func (r *RequestRepoImpl) Get(ctx context.Context, id string) (*domain.ReferenceRequest, error) {
	const q = `SELECT ` + requestCols + ` FROM reference_requests WHERE id=$1`
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	req, err := scanRequest(r.pool.QueryRow(ctx, q, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, repo.ErrNotFound
	}
	return req, err
}

func (r *RequestRepoImpl) ListByOwner(ctx context.Context, ownerID string, status *domain.RequestStatus) ([]domain.ReferenceRequest, error) {
	q := `SELECT ` + requestCols + ` FROM reference_requests WHERE owner_id=$1`
	args := []any{ownerID}
	if status != nil {
		q += ` AND status=$2`
		args = append(args, *status)
	}
	q += ` ORDER BY created_at DESC`

	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.ReferenceRequest, 0)
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *req)
	}
	return out, rows.Err()
}

func (r *RequestRepoImpl) UpdateStatus(ctx context.Context, id string, status domain.RequestStatus, at time.Time) error {
	const q = `UPDATE reference_requests SET status=$2, updated_at=$3 WHERE id=$1`
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	ct, err := r.pool.Exec(ctx, q, id, status, at)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return repo.ErrNotFound
	}
	return nil
}

var _ repo.RequestRepository = (*RequestRepoImpl)(nil)
