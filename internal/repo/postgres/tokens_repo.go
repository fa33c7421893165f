package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/diagnosis/refcheck/internal/domain"
	"github.com/diagnosis/refcheck/internal/repo"
)

const queryTimeout = 3 * time.Second

type TokenRepoImpl struct{ pool *pgxpool.Pool }

func NewTokenRepo(pool *pgxpool.Pool) *TokenRepoImpl { return &TokenRepoImpl{pool: pool} }

const tokenCols = `token, request_id, company_id,
respondent_email, respondent_name,
created_at, expires_at, is_used, used_at,
reminders_sent, last_reminder_at, consented_at`

func scanToken(row pgx.Row) (*domain.ResponseToken, error) {
	var t domain.ResponseToken
	err := row.Scan(
		&t.Token, &t.RequestID, &t.CompanyID,
		&t.RespondentEmail, &t.RespondentName,
		&t.CreatedAt, &t.ExpiresAt, &t.IsUsed, &t.UsedAt,
		&t.RemindersSent, &t.LastReminderAt, &t.ConsentedAt,
	)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func collectTokens(rows pgx.Rows) ([]domain.ResponseToken, error) {
	defer rows.Close()
	out := make([]domain.ResponseToken, 0)
	for rows.Next() {
		t, err := scanToken(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// dbtx is satisfied by both the pool and a transaction.
type dbtx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func insertToken(ctx context.Context, db dbtx, t *domain.ResponseToken) error {
	const q = `INSERT INTO response_tokens (` + tokenCols + `)
	VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`

	_, err := db.Exec(ctx, q,
		t.Token, t.RequestID, t.CompanyID,
		t.RespondentEmail, t.RespondentName,
		t.CreatedAt, t.ExpiresAt, t.IsUsed, t.UsedAt,
		t.RemindersSent, t.LastReminderAt, t.ConsentedAt,
	)
	if isUniqueViolation(err) {
		return repo.ErrDuplicate
	}
	return err
}

func (r *TokenRepoImpl) Create(ctx context.Context, t *domain.ResponseToken) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	return insertToken(ctx, r.pool, t)
}

func (r *TokenRepoImpl) Get(ctx context.Context, token string) (*domain.ResponseToken, error) {
	const q = `SELECT ` + tokenCols + ` FROM response_tokens WHERE token=$1`
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	t, err := scanToken(r.pool.QueryRow(ctx, q, token))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, repo.ErrNotFound
	}
	return t, err
}

func (r *TokenRepoImpl) ListByRequest(ctx context.Context, requestID string) ([]domain.ResponseToken, error) {
	const q = `SELECT ` + tokenCols + ` FROM response_tokens WHERE request_id=$1 ORDER BY created_at, token`
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	rows, err := r.pool.Query(ctx, q, requestID)
	if err != nil {
		return nil, err
	}
	return collectTokens(rows)
}

func (r *TokenRepoImpl) List(ctx context.Context) ([]domain.ResponseToken, error) {
	const q = `SELECT ` + tokenCols + ` FROM response_tokens ORDER BY created_at, token`
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	rows, err := r.pool.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	return collectTokens(rows)
}

func (r *TokenRepoImpl) ListPending(ctx context.Context, now time.Time) ([]domain.ResponseToken, error) {
	const q = `SELECT ` + tokenCols + ` FROM response_tokens
	WHERE NOT is_used AND expires_at >= $1
	ORDER BY created_at, token`
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	rows, err := r.pool.Query(ctx, q, now)
	if err != nil {
		return nil, err
	}
	return collectTokens(rows)
}

func markUsed(ctx context.Context, db dbtx, token string, at time.Time) (bool, error) {
	const q = `UPDATE response_tokens SET is_used=true, used_at=$2 WHERE token=$1 AND NOT is_used`
	ct, err := db.Exec(ctx, q, token, at)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() > 0, nil
}

func (r *TokenRepoImpl) MarkUsed(ctx context.Context, token string, at time.Time) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	return markUsed(ctx, r.pool, token, at)
}

func (r *TokenRepoImpl) RecordReminder(ctx context.Context, token string, at time.Time) error {
	const q = `UPDATE response_tokens
	SET reminders_sent = reminders_sent + 1, last_reminder_at = $2
	WHERE token=$1`
	return r.execOne(ctx, q, token, at)
}

func (r *TokenRepoImpl) RecordConsent(ctx context.Context, token string, at time.Time) error {
	const q = `UPDATE response_tokens SET consented_at = COALESCE(consented_at, $2) WHERE token=$1`
	return r.execOne(ctx, q, token, at)
}

func (r *TokenRepoImpl) execOne(ctx context.Context, q string, args ...any) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	ct, err := r.pool.Exec(ctx, q, args...)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return repo.ErrNotFound
	}
	return nil
}

var _ repo.TokenRepository = (*TokenRepoImpl)(nil)
