package auth

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PGSessions records login sessions in PostgreSQL.
type PGSessions struct {
	pool *pgxpool.Pool
}

// NewPGSessions constructs the session recorder.
func NewPGSessions(pool *pgxpool.Pool) *PGSessions {
	return &PGSessions{pool: pool}
}

// CreateSession persists a new login session for auditing.
func (r *PGSessions) CreateSession(ctx context.Context, id string, userID int64, expiresAt time.Time, ip, ua string) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO sessions (id, user_id, created_at, expires_at, ip, ua) VALUES ($1, $2, NOW(), $3, $4, $5)`,
		id, userID, expiresAt.UTC(), ip, ua)
	return err
}

// DeleteSession removes a session record.
func (r *PGSessions) DeleteSession(ctx context.Context, id string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM sessions WHERE id = $1`, id)
	return err
}

var _ SessionRecorder = (*PGSessions)(nil)
