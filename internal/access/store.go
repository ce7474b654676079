package access

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// GrantStore persists grant rows. List operations return rows regardless of
// expiry; callers decide what "active" means against their own captured now.
type GrantStore interface {
	UpsertFleetGrant(ctx context.Context, userID, fleetID, grantedBy int64, expiresAt *time.Time) (Grant, error)
	UpsertVesselGrant(ctx context.Context, userID, vesselID, grantedBy int64, expiresAt *time.Time) (Grant, error)
	// RevokeFleetGrant deletes the row if present. The bool reports whether a
	// row existed; absence is success, not an error.
	RevokeFleetGrant(ctx context.Context, userID, fleetID int64) (bool, error)
	RevokeVesselGrant(ctx context.Context, userID, vesselID int64) (bool, error)
	ListFleetGrants(ctx context.Context, userID int64) ([]Grant, error)
	ListVesselGrants(ctx context.Context, userID int64) ([]Grant, error)
	// Cascade cleanup when the resource itself is deleted, so no dangling
	// grant row can outlive its target.
	DeleteGrantsForFleet(ctx context.Context, fleetID int64) error
	DeleteGrantsForVessel(ctx context.Context, vesselID int64) error
}

// PGGrantStore is the PostgreSQL grant store. Upserts rely on the unique
// constraint over (user_id, resource id) plus ON CONFLICT, so two concurrent
// grants for the same pair can never produce duplicate rows.
type PGGrantStore struct {
	pool    *pgxpool.Pool
	timeout time.Duration
}

// NewPGGrantStore constructs the store. A non-positive timeout disables the
// per-call deadline.
func NewPGGrantStore(pool *pgxpool.Pool, timeout time.Duration) *PGGrantStore {
	return &PGGrantStore{pool: pool, timeout: timeout}
}

func (s *PGGrantStore) callCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.timeout)
}

// storeErr wraps any storage failure (including timeouts) so callers can
// translate it to a 503 while still failing closed.
func storeErr(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrStoreUnavailable, err)
}

const upsertFleetGrantSQL = `
INSERT INTO fleet_grants (user_id, fleet_id, granted_by, granted_at, expires_at)
VALUES ($1, $2, $3, NOW(), $4)
ON CONFLICT (user_id, fleet_id) DO UPDATE
SET granted_by = EXCLUDED.granted_by,
    granted_at = EXCLUDED.granted_at,
    expires_at = EXCLUDED.expires_at
RETURNING user_id, fleet_id, granted_by, granted_at, expires_at`

// UpsertFleetGrant inserts or overwrites the grant row for (userID, fleetID).
func (s *PGGrantStore) UpsertFleetGrant(ctx context.Context, userID, fleetID, grantedBy int64, expiresAt *time.Time) (Grant, error) {
	ctx, cancel := s.callCtx(ctx)
	defer cancel()
	grant := Grant{Kind: KindFleet}
	err := s.pool.QueryRow(ctx, upsertFleetGrantSQL, userID, fleetID, grantedBy, expiresAt).
		Scan(&grant.UserID, &grant.ResourceID, &grant.GrantedBy, &grant.GrantedAt, &grant.ExpiresAt)
	if err != nil {
		return Grant{}, storeErr("access: upsert fleet grant", err)
	}
	return grant, nil
}

const upsertVesselGrantSQL = `
INSERT INTO vessel_grants (user_id, vessel_id, granted_by, granted_at, expires_at)
VALUES ($1, $2, $3, NOW(), $4)
ON CONFLICT (user_id, vessel_id) DO UPDATE
SET granted_by = EXCLUDED.granted_by,
    granted_at = EXCLUDED.granted_at,
    expires_at = EXCLUDED.expires_at
RETURNING user_id, vessel_id, granted_by, granted_at, expires_at`

// UpsertVesselGrant inserts or overwrites the grant row for (userID, vesselID).
func (s *PGGrantStore) UpsertVesselGrant(ctx context.Context, userID, vesselID, grantedBy int64, expiresAt *time.Time) (Grant, error) {
	ctx, cancel := s.callCtx(ctx)
	defer cancel()
	grant := Grant{Kind: KindVessel}
	err := s.pool.QueryRow(ctx, upsertVesselGrantSQL, userID, vesselID, grantedBy, expiresAt).
		Scan(&grant.UserID, &grant.ResourceID, &grant.GrantedBy, &grant.GrantedAt, &grant.ExpiresAt)
	if err != nil {
		return Grant{}, storeErr("access: upsert vessel grant", err)
	}
	return grant, nil
}

// RevokeFleetGrant deletes the grant row if present.
func (s *PGGrantStore) RevokeFleetGrant(ctx context.Context, userID, fleetID int64) (bool, error) {
	ctx, cancel := s.callCtx(ctx)
	defer cancel()
	tag, err := s.pool.Exec(ctx, `DELETE FROM fleet_grants WHERE user_id = $1 AND fleet_id = $2`, userID, fleetID)
	if err != nil {
		return false, storeErr("access: revoke fleet grant", err)
	}
	return tag.RowsAffected() > 0, nil
}

// RevokeVesselGrant deletes the grant row if present.
func (s *PGGrantStore) RevokeVesselGrant(ctx context.Context, userID, vesselID int64) (bool, error) {
	ctx, cancel := s.callCtx(ctx)
	defer cancel()
	tag, err := s.pool.Exec(ctx, `DELETE FROM vessel_grants WHERE user_id = $1 AND vessel_id = $2`, userID, vesselID)
	if err != nil {
		return false, storeErr("access: revoke vessel grant", err)
	}
	return tag.RowsAffected() > 0, nil
}

// ListFleetGrants returns every fleet grant for the user, expired included.
func (s *PGGrantStore) ListFleetGrants(ctx context.Context, userID int64) ([]Grant, error) {
	return s.listGrants(ctx, userID, KindFleet,
		`SELECT user_id, fleet_id, granted_by, granted_at, expires_at FROM fleet_grants WHERE user_id = $1 ORDER BY fleet_id`)
}

// ListVesselGrants returns every vessel grant for the user, expired included.
func (s *PGGrantStore) ListVesselGrants(ctx context.Context, userID int64) ([]Grant, error) {
	return s.listGrants(ctx, userID, KindVessel,
		`SELECT user_id, vessel_id, granted_by, granted_at, expires_at FROM vessel_grants WHERE user_id = $1 ORDER BY vessel_id`)
}

func (s *PGGrantStore) listGrants(ctx context.Context, userID int64, kind ResourceKind, query string) ([]Grant, error) {
	ctx, cancel := s.callCtx(ctx)
	defer cancel()
	rows, err := s.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, storeErr("access: list grants", err)
	}
	defer rows.Close()

	var grants []Grant
	for rows.Next() {
		grant := Grant{Kind: kind}
		if err := rows.Scan(&grant.UserID, &grant.ResourceID, &grant.GrantedBy, &grant.GrantedAt, &grant.ExpiresAt); err != nil {
			return nil, storeErr("access: scan grant", err)
		}
		grants = append(grants, grant)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("access: list grants", err)
	}
	return grants, nil
}

// DeleteGrantsForFleet removes every grant row targeting the fleet.
func (s *PGGrantStore) DeleteGrantsForFleet(ctx context.Context, fleetID int64) error {
	ctx, cancel := s.callCtx(ctx)
	defer cancel()
	if _, err := s.pool.Exec(ctx, `DELETE FROM fleet_grants WHERE fleet_id = $1`, fleetID); err != nil {
		return storeErr("access: delete grants for fleet", err)
	}
	return nil
}

// DeleteGrantsForVessel removes every grant row targeting the vessel.
func (s *PGGrantStore) DeleteGrantsForVessel(ctx context.Context, vesselID int64) error {
	ctx, cancel := s.callCtx(ctx)
	defer cancel()
	if _, err := s.pool.Exec(ctx, `DELETE FROM vessel_grants WHERE vessel_id = $1`, vesselID); err != nil {
		return storeErr("access: delete grants for vessel", err)
	}
	return nil
}

// IsUnavailable reports whether err represents a storage failure rather than
// a domain outcome.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrStoreUnavailable)
}
