package voyage

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound indicates the voyage does not exist in the tenant.
var ErrNotFound = errors.New("voyage: record not found")

// Repository provides PostgreSQL backed persistence for voyages.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create inserts a voyage.
func (r *Repository) Create(ctx context.Context, v Voyage) (Voyage, error) {
	err := r.pool.QueryRow(ctx,
		`INSERT INTO voyages (tenant_id, vessel_id, departure_port, arrival_port, departed_at, arrived_at, distance_nm, fuel_tonnes, co2_tonnes)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 RETURNING id`,
		v.TenantID, v.VesselID, v.DeparturePort, v.ArrivalPort, v.DepartedAt, v.ArrivedAt, v.DistanceNM, v.FuelTonnes, v.CO2Tonnes,
	).Scan(&v.ID)
	if err != nil {
		return Voyage{}, err
	}
	return v, nil
}

// Get fetches a voyage within the tenant.
func (r *Repository) Get(ctx context.Context, tenantID, id int64) (Voyage, error) {
	var v Voyage
	err := r.pool.QueryRow(ctx,
		`SELECT id, tenant_id, vessel_id, departure_port, arrival_port, departed_at, arrived_at, distance_nm, fuel_tonnes, co2_tonnes
		 FROM voyages WHERE id = $1 AND tenant_id = $2`,
		id, tenantID,
	).Scan(&v.ID, &v.TenantID, &v.VesselID, &v.DeparturePort, &v.ArrivalPort, &v.DepartedAt, &v.ArrivedAt, &v.DistanceNM, &v.FuelTonnes, &v.CO2Tonnes)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Voyage{}, ErrNotFound
		}
		return Voyage{}, err
	}
	return v, nil
}

// List returns every voyage in the tenant, most recent departure first.
func (r *Repository) List(ctx context.Context, tenantID int64) ([]Voyage, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, tenant_id, vessel_id, departure_port, arrival_port, departed_at, arrived_at, distance_nm, fuel_tonnes, co2_tonnes
		 FROM voyages WHERE tenant_id = $1 ORDER BY departed_at DESC`,
		tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var voyages []Voyage
	for rows.Next() {
		var v Voyage
		if err := rows.Scan(&v.ID, &v.TenantID, &v.VesselID, &v.DeparturePort, &v.ArrivalPort, &v.DepartedAt, &v.ArrivedAt, &v.DistanceNM, &v.FuelTonnes, &v.CO2Tonnes); err != nil {
			return nil, err
		}
		voyages = append(voyages, v)
	}
	return voyages, rows.Err()
}

// VesselEmissionTotals sums CO2 per vessel across the tenant's voyages.
func (r *Repository) VesselEmissionTotals(ctx context.Context, tenantID int64) (map[int64]float64, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT vessel_id, COALESCE(SUM(co2_tonnes), 0) FROM voyages WHERE tenant_id = $1 GROUP BY vessel_id`,
		tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	totals := make(map[int64]float64)
	for rows.Next() {
		var vesselID int64
		var total float64
		if err := rows.Scan(&vesselID, &total); err != nil {
			return nil, err
		}
		totals[vesselID] = total
	}
	return totals, rows.Err()
}
