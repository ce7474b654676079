package access

import (
	"context"
	"log/slog"
	"time"
)

// Service owns the grant lifecycle: grant, revoke, and the cascade cleanup
// that runs when a fleet or vessel is deleted.
//
// Callers are assumed to be authorized already (the route layer checks the
// access.manage capability); the service re-derives nothing about the actor
// beyond tenant membership.
type Service struct {
	store  GrantStore
	guard  TenantGuard
	cache  *SetCache
	audit  AuditDispatcher
	clock  Clock
	logger *slog.Logger
}

// ServiceOption customizes a Service.
type ServiceOption func(*Service)

// WithServiceClock overrides the audit timestamp source.
func WithServiceClock(clock Clock) ServiceOption {
	return func(s *Service) { s.clock = clock }
}

// WithServiceCache attaches the accessible-set cache so mutations can
// invalidate it synchronously.
func WithServiceCache(cache *SetCache) ServiceOption {
	return func(s *Service) { s.cache = cache }
}

// WithAuditDispatcher attaches the audit trail.
func WithAuditDispatcher(dispatcher AuditDispatcher) ServiceOption {
	return func(s *Service) { s.audit = dispatcher }
}

// NewService constructs a Service.
func NewService(store GrantStore, guard TenantGuard, logger *slog.Logger, opts ...ServiceOption) *Service {
	s := &Service{
		store:  store,
		guard:  guard,
		clock:  time.Now,
		logger: logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GrantFleetAccess creates or refreshes the grant row for (userID, fleetID).
// The tenant guard runs first, so a cross-tenant grant is never written.
func (s *Service) GrantFleetAccess(ctx context.Context, actor Identity, userID, fleetID int64, expiresAt *time.Time) (Grant, error) {
	tenantID, err := s.guard.CheckFleetGrant(ctx, actor, userID, fleetID)
	if err != nil {
		return Grant{}, err
	}
	grant, err := s.store.UpsertFleetGrant(ctx, userID, fleetID, actor.UserID, expiresAt)
	if err != nil {
		return Grant{}, err
	}
	s.invalidate(ctx, tenantID, userID)
	s.dispatchAudit(ctx, actor, userID, fleetID, KindFleet, AuditActionGrant)
	return grant, nil
}

// GrantVesselAccess is the vessel counterpart of GrantFleetAccess.
func (s *Service) GrantVesselAccess(ctx context.Context, actor Identity, userID, vesselID int64, expiresAt *time.Time) (Grant, error) {
	tenantID, err := s.guard.CheckVesselGrant(ctx, actor, userID, vesselID)
	if err != nil {
		return Grant{}, err
	}
	grant, err := s.store.UpsertVesselGrant(ctx, userID, vesselID, actor.UserID, expiresAt)
	if err != nil {
		return Grant{}, err
	}
	s.invalidate(ctx, tenantID, userID)
	s.dispatchAudit(ctx, actor, userID, vesselID, KindVessel, AuditActionGrant)
	return grant, nil
}

// RevokeFleetAccess deletes the grant row for (userID, fleetID). Revoking a
// grant that was never created is a successful no-op and is not audited.
func (s *Service) RevokeFleetAccess(ctx context.Context, actor Identity, userID, fleetID int64) (bool, error) {
	tenantID, err := s.guard.CheckFleetGrant(ctx, actor, userID, fleetID)
	if err != nil {
		return false, err
	}
	removed, err := s.store.RevokeFleetGrant(ctx, userID, fleetID)
	if err != nil {
		return false, err
	}
	if removed {
		s.invalidate(ctx, tenantID, userID)
		s.dispatchAudit(ctx, actor, userID, fleetID, KindFleet, AuditActionRevoke)
	}
	return true, nil
}

// RevokeVesselAccess is the vessel counterpart of RevokeFleetAccess.
func (s *Service) RevokeVesselAccess(ctx context.Context, actor Identity, userID, vesselID int64) (bool, error) {
	tenantID, err := s.guard.CheckVesselGrant(ctx, actor, userID, vesselID)
	if err != nil {
		return false, err
	}
	removed, err := s.store.RevokeVesselGrant(ctx, userID, vesselID)
	if err != nil {
		return false, err
	}
	if removed {
		s.invalidate(ctx, tenantID, userID)
		s.dispatchAudit(ctx, actor, userID, vesselID, KindVessel, AuditActionRevoke)
	}
	return true, nil
}

// UserGrants lists every grant row held by the user, expired rows included,
// so administrators can see the full grant history still on record.
func (s *Service) UserGrants(ctx context.Context, actor Identity, userID int64) (fleets, vessels []Grant, err error) {
	if err := s.guard.CheckUser(ctx, actor, userID); err != nil {
		return nil, nil, err
	}
	fleets, err = s.store.ListFleetGrants(ctx, userID)
	if err != nil {
		return nil, nil, err
	}
	vessels, err = s.store.ListVesselGrants(ctx, userID)
	if err != nil {
		return nil, nil, err
	}
	return fleets, vessels, nil
}

// FleetDeleted cascades grant cleanup after a fleet row is removed, and
// orphans every cached set in the tenant since fleet-derived vessel access
// may have changed for any user.
func (s *Service) FleetDeleted(ctx context.Context, tenantID, fleetID int64) error {
	if err := s.store.DeleteGrantsForFleet(ctx, fleetID); err != nil {
		return err
	}
	if s.cache != nil {
		s.cache.BumpTenant(ctx, tenantID)
	}
	return nil
}

// VesselDeleted cascades grant cleanup after a vessel row is removed.
func (s *Service) VesselDeleted(ctx context.Context, tenantID, vesselID int64) error {
	if err := s.store.DeleteGrantsForVessel(ctx, vesselID); err != nil {
		return err
	}
	if s.cache != nil {
		s.cache.BumpTenant(ctx, tenantID)
	}
	return nil
}

func (s *Service) invalidate(ctx context.Context, tenantID, userID int64) {
	if s.cache != nil {
		s.cache.Invalidate(ctx, tenantID, userID)
	}
}

func (s *Service) dispatchAudit(ctx context.Context, actor Identity, userID, resourceID int64, kind ResourceKind, action string) {
	if s.audit == nil {
		return
	}
	event := AuditEvent{
		ActorID:      actor.UserID,
		TargetUserID: userID,
		ResourceID:   resourceID,
		ResourceKind: kind,
		Action:       action,
		At:           s.clock(),
	}
	if err := s.audit.Dispatch(ctx, event); err != nil {
		s.logger.Warn("audit dispatch failed",
			slog.String("action", action),
			slog.String("kind", string(kind)),
			slog.Int64("resource_id", resourceID),
			slog.Any("error", err))
	}
}
