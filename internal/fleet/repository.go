package fleet

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/harborwatch/harborwatch/internal/access"
	"github.com/harborwatch/harborwatch/internal/platform/db"
)

var (
	// ErrNotFound indicates the record does not exist in the tenant.
	ErrNotFound = errors.New("fleet: record not found")
	// ErrDuplicate indicates a unique constraint (fleet name or IMO number)
	// was violated.
	ErrDuplicate = errors.New("fleet: record already exists")
)

// Repository provides PostgreSQL backed persistence for fleets and vessels.
// Every query is tenant-scoped; no read or write can reach across tenants.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func translateErr(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrDuplicate
	}
	return err
}

// CreateFleet inserts a fleet.
func (r *Repository) CreateFleet(ctx context.Context, f Fleet) (Fleet, error) {
	err := r.pool.QueryRow(ctx,
		`INSERT INTO fleets (tenant_id, name, operator, created_at, updated_at)
		 VALUES ($1, $2, $3, NOW(), NOW())
		 RETURNING id, created_at, updated_at`,
		f.TenantID, f.Name, f.Operator,
	).Scan(&f.ID, &f.CreatedAt, &f.UpdatedAt)
	if err != nil {
		return Fleet{}, translateErr(err)
	}
	return f, nil
}

// GetFleet fetches a fleet within the tenant.
func (r *Repository) GetFleet(ctx context.Context, tenantID, id int64) (Fleet, error) {
	var f Fleet
	err := r.pool.QueryRow(ctx,
		`SELECT id, tenant_id, name, operator, created_at, updated_at
		 FROM fleets WHERE id = $1 AND tenant_id = $2`,
		id, tenantID,
	).Scan(&f.ID, &f.TenantID, &f.Name, &f.Operator, &f.CreatedAt, &f.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Fleet{}, ErrNotFound
		}
		return Fleet{}, err
	}
	return f, nil
}

// ListFleets returns every fleet in the tenant ordered by name.
func (r *Repository) ListFleets(ctx context.Context, tenantID int64) ([]Fleet, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, tenant_id, name, operator, created_at, updated_at
		 FROM fleets WHERE tenant_id = $1 ORDER BY name`,
		tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var fleets []Fleet
	for rows.Next() {
		var f Fleet
		if err := rows.Scan(&f.ID, &f.TenantID, &f.Name, &f.Operator, &f.CreatedAt, &f.UpdatedAt); err != nil {
			return nil, err
		}
		fleets = append(fleets, f)
	}
	return fleets, rows.Err()
}

// UpdateFleet updates name and operator.
func (r *Repository) UpdateFleet(ctx context.Context, tenantID, id int64, name, operator string) (Fleet, error) {
	var f Fleet
	err := r.pool.QueryRow(ctx,
		`UPDATE fleets SET name = $3, operator = $4, updated_at = NOW()
		 WHERE id = $1 AND tenant_id = $2
		 RETURNING id, tenant_id, name, operator, created_at, updated_at`,
		id, tenantID, name, operator,
	).Scan(&f.ID, &f.TenantID, &f.Name, &f.Operator, &f.CreatedAt, &f.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Fleet{}, ErrNotFound
		}
		return Fleet{}, translateErr(err)
	}
	return f, nil
}

// DeleteFleet removes the fleet row and detaches its vessels. Grant cascade
// is the access service's job and runs after this returns.
func (r *Repository) DeleteFleet(ctx context.Context, tenantID, id int64) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`UPDATE vessels SET fleet_id = NULL, updated_at = NOW() WHERE fleet_id = $1 AND tenant_id = $2`,
			id, tenantID); err != nil {
			return err
		}
		tag, err := tx.Exec(ctx, `DELETE FROM fleets WHERE id = $1 AND tenant_id = $2`, id, tenantID)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// CreateVessel inserts a vessel.
func (r *Repository) CreateVessel(ctx context.Context, v Vessel) (Vessel, error) {
	err := r.pool.QueryRow(ctx,
		`INSERT INTO vessels (tenant_id, fleet_id, name, imo_number, vessel_type, gross_tonnage, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())
		 RETURNING id, created_at, updated_at`,
		v.TenantID, v.FleetID, v.Name, v.IMONumber, v.VesselType, v.GrossTonnage,
	).Scan(&v.ID, &v.CreatedAt, &v.UpdatedAt)
	if err != nil {
		return Vessel{}, translateErr(err)
	}
	return v, nil
}

// GetVessel fetches a vessel within the tenant.
func (r *Repository) GetVessel(ctx context.Context, tenantID, id int64) (Vessel, error) {
	var v Vessel
	err := r.pool.QueryRow(ctx,
		`SELECT id, tenant_id, fleet_id, name, imo_number, vessel_type, gross_tonnage, created_at, updated_at
		 FROM vessels WHERE id = $1 AND tenant_id = $2`,
		id, tenantID,
	).Scan(&v.ID, &v.TenantID, &v.FleetID, &v.Name, &v.IMONumber, &v.VesselType, &v.GrossTonnage, &v.CreatedAt, &v.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Vessel{}, ErrNotFound
		}
		return Vessel{}, err
	}
	return v, nil
}

// ListVessels returns every vessel in the tenant ordered by name. A non-nil
// fleetID narrows the listing to one fleet.
func (r *Repository) ListVessels(ctx context.Context, tenantID int64, fleetID *int64) ([]Vessel, error) {
	query := `SELECT id, tenant_id, fleet_id, name, imo_number, vessel_type, gross_tonnage, created_at, updated_at
		 FROM vessels WHERE tenant_id = $1`
	args := []any{tenantID}
	if fleetID != nil {
		query += ` AND fleet_id = $2`
		args = append(args, *fleetID)
	}
	query += ` ORDER BY name`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var vessels []Vessel
	for rows.Next() {
		var v Vessel
		if err := rows.Scan(&v.ID, &v.TenantID, &v.FleetID, &v.Name, &v.IMONumber, &v.VesselType, &v.GrossTonnage, &v.CreatedAt, &v.UpdatedAt); err != nil {
			return nil, err
		}
		vessels = append(vessels, v)
	}
	return vessels, rows.Err()
}

// UpdateVessel updates mutable vessel fields, including fleet assignment.
func (r *Repository) UpdateVessel(ctx context.Context, tenantID, id int64, fleetID *int64, name, vesselType string, grossTonnage float64) (Vessel, error) {
	var v Vessel
	err := r.pool.QueryRow(ctx,
		`UPDATE vessels SET fleet_id = $3, name = $4, vessel_type = $5, gross_tonnage = $6, updated_at = NOW()
		 WHERE id = $1 AND tenant_id = $2
		 RETURNING id, tenant_id, fleet_id, name, imo_number, vessel_type, gross_tonnage, created_at, updated_at`,
		id, tenantID, fleetID, name, vesselType, grossTonnage,
	).Scan(&v.ID, &v.TenantID, &v.FleetID, &v.Name, &v.IMONumber, &v.VesselType, &v.GrossTonnage, &v.CreatedAt, &v.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Vessel{}, ErrNotFound
		}
		return Vessel{}, translateErr(err)
	}
	return v, nil
}

// DeleteVessel removes the vessel row.
func (r *Repository) DeleteVessel(ctx context.Context, tenantID, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM vessels WHERE id = $1 AND tenant_id = $2`, id, tenantID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Directory adapts the repository to the access resolver's read API. Lookup
// failures map to access.ErrResourceNotFound so the resolver can distinguish
// "no such resource" (deny) from "store down" (deny plus 503).
type Directory struct {
	repo *Repository
}

// NewDirectory constructs the directory view over the repository.
func NewDirectory(repo *Repository) *Directory {
	return &Directory{repo: repo}
}

// FleetTenant returns the owning tenant of a fleet.
func (d *Directory) FleetTenant(ctx context.Context, fleetID int64) (int64, error) {
	var tenantID int64
	err := d.repo.pool.QueryRow(ctx, `SELECT tenant_id FROM fleets WHERE id = $1`, fleetID).Scan(&tenantID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, fmt.Errorf("%w: fleet %d", access.ErrResourceNotFound, fleetID)
		}
		return 0, err
	}
	return tenantID, nil
}

// VesselRef returns a vessel's tenant and owning fleet, if any.
func (d *Directory) VesselRef(ctx context.Context, vesselID int64) (int64, *int64, error) {
	var tenantID int64
	var fleetID *int64
	err := d.repo.pool.QueryRow(ctx, `SELECT tenant_id, fleet_id FROM vessels WHERE id = $1`, vesselID).Scan(&tenantID, &fleetID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil, fmt.Errorf("%w: vessel %d", access.ErrResourceNotFound, vesselID)
		}
		return 0, nil, err
	}
	return tenantID, fleetID, nil
}

// TenantFleetIDs enumerates every fleet id in the tenant.
func (d *Directory) TenantFleetIDs(ctx context.Context, tenantID int64) ([]int64, error) {
	return d.scanIDs(ctx, `SELECT id FROM fleets WHERE tenant_id = $1`, tenantID)
}

// TenantVesselIDs enumerates every vessel id in the tenant.
func (d *Directory) TenantVesselIDs(ctx context.Context, tenantID int64) ([]int64, error) {
	return d.scanIDs(ctx, `SELECT id FROM vessels WHERE tenant_id = $1`, tenantID)
}

// FleetVesselIDs enumerates the vessels currently assigned to the fleets.
func (d *Directory) FleetVesselIDs(ctx context.Context, fleetIDs []int64) ([]int64, error) {
	if len(fleetIDs) == 0 {
		return nil, nil
	}
	return d.scanIDs(ctx, `SELECT id FROM vessels WHERE fleet_id = ANY($1)`, fleetIDs)
}

func (d *Directory) scanIDs(ctx context.Context, query string, arg any) ([]int64, error) {
	rows, err := d.repo.pool.Query(ctx, query, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
