// Package voyage records vessel voyages and serves the compliance dashboard.
package voyage

import "time"

// Voyage is one completed passage of a vessel between two ports.
type Voyage struct {
	ID            int64
	TenantID      int64
	VesselID      int64
	DeparturePort string
	ArrivalPort   string
	DepartedAt    time.Time
	ArrivedAt     time.Time
	DistanceNM    float64
	FuelTonnes    float64
	CO2Tonnes     float64
}
