// Package audit persists the grant/revoke audit trail.
package audit

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/harborwatch/harborwatch/internal/access"
	"github.com/harborwatch/harborwatch/internal/shared"
)

// Entry is one recorded grant lifecycle event.
type Entry struct {
	ID           int64
	ActorID      int64
	TargetUserID int64
	ResourceID   int64
	ResourceKind string
	Action       string
	At           time.Time
}

// Service writes and reads access audit entries. Writes arrive through the
// background worker, so a slow audit insert never sits on the request path.
type Service struct {
	pool *pgxpool.Pool
}

// NewService constructs the Service.
func NewService(pool *pgxpool.Pool) *Service {
	return &Service{pool: pool}
}

// Record persists one access audit event.
func (s *Service) Record(ctx context.Context, event access.AuditEvent) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO access_audit (actor_id, target_user_id, resource_id, resource_kind, action, occurred_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		event.ActorID, event.TargetUserID, event.ResourceID, string(event.ResourceKind), event.Action, event.At)
	return err
}

// ListForUser returns one page of the audit trail touching the target user,
// newest first. Tenant scoping happens in the handler before this runs.
func (s *Service) ListForUser(ctx context.Context, targetUserID int64, page, perPage int) ([]Entry, shared.Pagination, error) {
	if perPage > 200 {
		perPage = 200
	}
	var total int
	if err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM access_audit WHERE target_user_id = $1`,
		targetUserID).Scan(&total); err != nil {
		return nil, shared.Pagination{}, err
	}
	p := shared.NewPagination(page, perPage, total)
	rows, err := s.pool.Query(ctx,
		`SELECT id, actor_id, target_user_id, resource_id, resource_kind, action, occurred_at
		 FROM access_audit WHERE target_user_id = $1
		 ORDER BY occurred_at DESC LIMIT $2 OFFSET $3`,
		targetUserID, p.PerPage, (p.Page-1)*p.PerPage)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	defer rows.Close()
	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.ActorID, &e.TargetUserID, &e.ResourceID, &e.ResourceKind, &e.Action, &e.At); err != nil {
			return nil, shared.Pagination{}, err
		}
		entries = append(entries, e)
	}
	return entries, p, rows.Err()
}
