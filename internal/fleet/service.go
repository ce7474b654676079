package fleet

import (
	"context"
	"log/slog"
	"strings"
)

// Store is the persistence surface the service needs.
type Store interface {
	CreateFleet(ctx context.Context, f Fleet) (Fleet, error)
	GetFleet(ctx context.Context, tenantID, id int64) (Fleet, error)
	ListFleets(ctx context.Context, tenantID int64) ([]Fleet, error)
	UpdateFleet(ctx context.Context, tenantID, id int64, name, operator string) (Fleet, error)
	DeleteFleet(ctx context.Context, tenantID, id int64) error
	CreateVessel(ctx context.Context, v Vessel) (Vessel, error)
	GetVessel(ctx context.Context, tenantID, id int64) (Vessel, error)
	ListVessels(ctx context.Context, tenantID int64, fleetID *int64) ([]Vessel, error)
	UpdateVessel(ctx context.Context, tenantID, id int64, fleetID *int64, name, vesselType string, grossTonnage float64) (Vessel, error)
	DeleteVessel(ctx context.Context, tenantID, id int64) error
}

// GrantCascader removes grant rows once their target resource is gone.
// Implemented by the access service.
type GrantCascader interface {
	FleetDeleted(ctx context.Context, tenantID, fleetID int64) error
	VesselDeleted(ctx context.Context, tenantID, vesselID int64) error
}

// Service wraps fleet and vessel business rules.
type Service struct {
	store  Store
	grants GrantCascader
	logger *slog.Logger
}

// NewService constructs a Service.
func NewService(store Store, grants GrantCascader, logger *slog.Logger) *Service {
	return &Service{store: store, grants: grants, logger: logger}
}

// CreateFleet validates and inserts a fleet.
func (s *Service) CreateFleet(ctx context.Context, tenantID int64, name, operator string) (Fleet, error) {
	return s.store.CreateFleet(ctx, Fleet{
		TenantID: tenantID,
		Name:     strings.TrimSpace(name),
		Operator: strings.TrimSpace(operator),
	})
}

// GetFleet fetches a fleet within the tenant.
func (s *Service) GetFleet(ctx context.Context, tenantID, id int64) (Fleet, error) {
	return s.store.GetFleet(ctx, tenantID, id)
}

// ListFleets returns every fleet in the tenant.
func (s *Service) ListFleets(ctx context.Context, tenantID int64) ([]Fleet, error) {
	return s.store.ListFleets(ctx, tenantID)
}

// UpdateFleet updates a fleet's mutable fields.
func (s *Service) UpdateFleet(ctx context.Context, tenantID, id int64, name, operator string) (Fleet, error) {
	return s.store.UpdateFleet(ctx, tenantID, id, strings.TrimSpace(name), strings.TrimSpace(operator))
}

// DeleteFleet removes a fleet and cascades grant cleanup so no grant row can
// keep referencing a fleet that no longer exists.
func (s *Service) DeleteFleet(ctx context.Context, tenantID, id int64) error {
	if err := s.store.DeleteFleet(ctx, tenantID, id); err != nil {
		return err
	}
	if err := s.grants.FleetDeleted(ctx, tenantID, id); err != nil {
		// The fleet row is gone; a failed cascade leaves unreachable grant
		// rows behind. Surface it so the operation is retried.
		return err
	}
	return nil
}

// CreateVessel validates and inserts a vessel.
func (s *Service) CreateVessel(ctx context.Context, v Vessel) (Vessel, error) {
	v.Name = strings.TrimSpace(v.Name)
	v.IMONumber = strings.TrimSpace(v.IMONumber)
	v.VesselType = strings.TrimSpace(v.VesselType)
	return s.store.CreateVessel(ctx, v)
}

// GetVessel fetches a vessel within the tenant.
func (s *Service) GetVessel(ctx context.Context, tenantID, id int64) (Vessel, error) {
	return s.store.GetVessel(ctx, tenantID, id)
}

// ListVessels returns vessels in the tenant, optionally narrowed to a fleet.
func (s *Service) ListVessels(ctx context.Context, tenantID int64, fleetID *int64) ([]Vessel, error) {
	return s.store.ListVessels(ctx, tenantID, fleetID)
}

// UpdateVessel updates a vessel's mutable fields.
func (s *Service) UpdateVessel(ctx context.Context, tenantID, id int64, fleetID *int64, name, vesselType string, grossTonnage float64) (Vessel, error) {
	return s.store.UpdateVessel(ctx, tenantID, id, fleetID, strings.TrimSpace(name), strings.TrimSpace(vesselType), grossTonnage)
}

// DeleteVessel removes a vessel and cascades grant cleanup.
func (s *Service) DeleteVessel(ctx context.Context, tenantID, id int64) error {
	if err := s.store.DeleteVessel(ctx, tenantID, id); err != nil {
		return err
	}
	return s.grants.VesselDeleted(ctx, tenantID, id)
}
