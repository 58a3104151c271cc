package sqlite

import (
	"context"
	"time"
)

type revocationsRepo struct {
	q dbtx
}

func (r *revocationsRepo) Add(ctx context.Context, tokenID string, expiresAt time.Time) error {
	// INSERT OR IGNORE keeps revocation idempotent; a double logout is fine.
	_, err := r.q.ExecContext(ctx,
		`INSERT OR IGNORE INTO revocations (token_id, expires_at, revoked_at)
		 VALUES (?, ?, ?)`,
		tokenID, expiresAt.UTC(), time.Now().UTC())
	return err
}

func (r *revocationsRepo) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	var n int
	err := r.q.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM revocations WHERE token_id = ?`, tokenID).Scan(&n)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *revocationsRepo) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	res, err := r.q.ExecContext(ctx,
		`DELETE FROM revocations WHERE expires_at <= ?`, now.UTC())
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}
