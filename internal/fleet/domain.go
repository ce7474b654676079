// Package fleet manages tenant-scoped fleets and vessels and implements the
// directory read API consumed by the access resolver.
package fleet

import "time"

// Fleet is a named group of vessels owned by exactly one tenant.
type Fleet struct {
	ID        int64
	TenantID  int64
	Name      string
	Operator  string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Vessel is a ship registered under a tenant. A vessel belongs to at most one
// fleet at a time; FleetID is nil for unassigned vessels.
type Vessel struct {
	ID           int64
	TenantID     int64
	FleetID      *int64
	Name         string
	IMONumber    string
	VesselType   string
	GrossTonnage float64
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
