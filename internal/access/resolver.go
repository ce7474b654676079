package access

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// DecisionObserver receives the outcome of every point check. Implemented by
// the observability package; nil disables recording.
type DecisionObserver interface {
	AccessDecision(kind string, allowed bool)
}

// Resolver answers access-check and access-enumeration queries by combining
// role bypass, direct grants, and fleet-derived vessel grants.
//
// The resolver is stateless per call and fails closed: if the grant store or
// the directory cannot be reached, point checks return false and set
// enumerations return empty, alongside ErrStoreUnavailable so the transport
// layer can answer 503 instead of 403.
type Resolver struct {
	store   GrantStore
	dir     Directory
	cache   *SetCache
	clock   Clock
	logger  *slog.Logger
	metrics DecisionObserver
}

// ResolverOption customizes a Resolver.
type ResolverOption func(*Resolver)

// WithClock overrides the time source used to evaluate grant expiry.
func WithClock(clock Clock) ResolverOption {
	return func(r *Resolver) { r.clock = clock }
}

// WithSetCache attaches the accessible-set cache.
func WithSetCache(cache *SetCache) ResolverOption {
	return func(r *Resolver) { r.cache = cache }
}

// WithDecisionObserver attaches decision metrics.
func WithDecisionObserver(obs DecisionObserver) ResolverOption {
	return func(r *Resolver) { r.metrics = obs }
}

// NewResolver constructs a Resolver.
func NewResolver(store GrantStore, dir Directory, logger *slog.Logger, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		store:  store,
		dir:    dir,
		clock:  time.Now,
		logger: logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Resolver) observe(kind ResourceKind, allowed bool) {
	if r.metrics != nil {
		r.metrics.AccessDecision(string(kind), allowed)
	}
}

// unavailable normalizes a storage or directory failure into a fail-closed
// ErrStoreUnavailable, logging the underlying cause once.
func (r *Resolver) unavailable(op string, err error) error {
	if r.logger != nil {
		r.logger.Error("access resolution degraded", slog.String("op", op), slog.Any("error", err))
	}
	if errors.Is(err, ErrStoreUnavailable) {
		return err
	}
	return fmt.Errorf("%s: %w: %w", op, ErrStoreUnavailable, err)
}

// HasFleetAccess reports whether the identity may access the fleet.
// Tenant mismatch denies before anything else, bypass roles included: bypass
// widens permission, never the tenant boundary. Unknown fleets deny without
// error.
func (r *Resolver) HasFleetAccess(ctx context.Context, id Identity, fleetID int64) (bool, error) {
	tenantID, err := r.dir.FleetTenant(ctx, fleetID)
	if err != nil {
		if errors.Is(err, ErrResourceNotFound) {
			r.observe(KindFleet, false)
			return false, nil
		}
		r.observe(KindFleet, false)
		return false, r.unavailable("access: resolve fleet", err)
	}
	if tenantID != id.TenantID {
		r.observe(KindFleet, false)
		return false, nil
	}
	if id.Bypass() {
		r.observe(KindFleet, true)
		return true, nil
	}

	allowed, err := r.fleetGrantActive(ctx, id.UserID, fleetID, r.clock())
	if err != nil {
		r.observe(KindFleet, false)
		return false, err
	}
	r.observe(KindFleet, allowed)
	return allowed, nil
}

// HasVesselAccess reports whether the identity may access the vessel, either
// through a direct vessel grant or derived from a grant on the vessel's
// owning fleet. A single instant, captured here, governs both checks so one
// decision cannot straddle an expiry boundary.
func (r *Resolver) HasVesselAccess(ctx context.Context, id Identity, vesselID int64) (bool, error) {
	tenantID, fleetID, err := r.dir.VesselRef(ctx, vesselID)
	if err != nil {
		if errors.Is(err, ErrResourceNotFound) {
			r.observe(KindVessel, false)
			return false, nil
		}
		r.observe(KindVessel, false)
		return false, r.unavailable("access: resolve vessel", err)
	}
	if tenantID != id.TenantID {
		r.observe(KindVessel, false)
		return false, nil
	}
	if id.Bypass() {
		r.observe(KindVessel, true)
		return true, nil
	}

	now := r.clock()
	grants, err := r.store.ListVesselGrants(ctx, id.UserID)
	if err != nil {
		r.observe(KindVessel, false)
		return false, r.unavailable("access: list vessel grants", err)
	}
	for _, grant := range grants {
		if grant.ResourceID == vesselID && grant.ActiveAt(now) {
			r.observe(KindVessel, true)
			return true, nil
		}
	}

	// No direct grant: a vessel inside a fleet inherits that fleet's access.
	if fleetID != nil {
		allowed, err := r.fleetGrantActive(ctx, id.UserID, *fleetID, now)
		if err != nil {
			r.observe(KindVessel, false)
			return false, err
		}
		r.observe(KindVessel, allowed)
		return allowed, nil
	}
	r.observe(KindVessel, false)
	return false, nil
}

func (r *Resolver) fleetGrantActive(ctx context.Context, userID, fleetID int64, now time.Time) (bool, error) {
	grants, err := r.store.ListFleetGrants(ctx, userID)
	if err != nil {
		return false, r.unavailable("access: list fleet grants", err)
	}
	for _, grant := range grants {
		if grant.ResourceID == fleetID && grant.ActiveAt(now) {
			return true, nil
		}
	}
	return false, nil
}

// AccessibleFleets returns the set of fleet ids the identity may access.
// Bypass roles see the full tenant-scoped fleet set; everyone else sees the
// fleets carrying an active grant.
func (r *Resolver) AccessibleFleets(ctx context.Context, id Identity) (IDSet, error) {
	if id.Bypass() {
		ids, err := r.dir.TenantFleetIDs(ctx, id.TenantID)
		if err != nil {
			return IDSet{}, r.unavailable("access: tenant fleets", err)
		}
		return NewIDSet(ids...), nil
	}
	if r.cache != nil {
		set, err := r.cache.Fleets(ctx, id, func(ctx context.Context) (IDSet, error) {
			return r.grantedFleets(ctx, id)
		})
		if err != nil {
			return IDSet{}, err
		}
		return set, nil
	}
	return r.grantedFleets(ctx, id)
}

func (r *Resolver) grantedFleets(ctx context.Context, id Identity) (IDSet, error) {
	now := r.clock()
	grants, err := r.store.ListFleetGrants(ctx, id.UserID)
	if err != nil {
		return IDSet{}, r.unavailable("access: list fleet grants", err)
	}
	set := make(IDSet, len(grants))
	for _, grant := range grants {
		if grant.ActiveAt(now) {
			set.Add(grant.ResourceID)
		}
	}
	return set, nil
}

// AccessibleVessels returns the set of vessel ids the identity may access:
// for bypass roles the full tenant-scoped set, otherwise the deduplicated
// union of explicitly granted vessels and every vessel belonging to an
// accessible fleet.
func (r *Resolver) AccessibleVessels(ctx context.Context, id Identity) (IDSet, error) {
	if id.Bypass() {
		ids, err := r.dir.TenantVesselIDs(ctx, id.TenantID)
		if err != nil {
			return IDSet{}, r.unavailable("access: tenant vessels", err)
		}
		return NewIDSet(ids...), nil
	}
	if r.cache != nil {
		set, err := r.cache.Vessels(ctx, id, func(ctx context.Context) (IDSet, error) {
			return r.grantedVessels(ctx, id)
		})
		if err != nil {
			return IDSet{}, err
		}
		return set, nil
	}
	return r.grantedVessels(ctx, id)
}

func (r *Resolver) grantedVessels(ctx context.Context, id Identity) (IDSet, error) {
	now := r.clock()
	grants, err := r.store.ListVesselGrants(ctx, id.UserID)
	if err != nil {
		return IDSet{}, r.unavailable("access: list vessel grants", err)
	}
	set := make(IDSet, len(grants))
	for _, grant := range grants {
		if grant.ActiveAt(now) {
			set.Add(grant.ResourceID)
		}
	}

	fleetGrants, err := r.store.ListFleetGrants(ctx, id.UserID)
	if err != nil {
		return IDSet{}, r.unavailable("access: list fleet grants", err)
	}
	var fleetIDs []int64
	for _, grant := range fleetGrants {
		if grant.ActiveAt(now) {
			fleetIDs = append(fleetIDs, grant.ResourceID)
		}
	}
	if len(fleetIDs) > 0 {
		vesselIDs, err := r.dir.FleetVesselIDs(ctx, fleetIDs)
		if err != nil {
			return IDSet{}, r.unavailable("access: fleet vessels", err)
		}
		for _, vesselID := range vesselIDs {
			set.Add(vesselID)
		}
	}
	return set, nil
}
