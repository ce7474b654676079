package access

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harborwatch/harborwatch/internal/roles"
)

// ============================================================================
// STUBS
// ============================================================================

type stubStore struct {
	fleetGrants  map[int64][]Grant
	vesselGrants map[int64][]Grant
	listErr      error

	upserts       []Grant
	revokeHits    map[string]bool
	revokeErr     error
	upsertErr     error
	deletedFleets []int64
	deletedShips  []int64
}

func newStubStore() *stubStore {
	return &stubStore{
		fleetGrants:  make(map[int64][]Grant),
		vesselGrants: make(map[int64][]Grant),
		revokeHits:   make(map[string]bool),
	}
}

func (s *stubStore) UpsertFleetGrant(ctx context.Context, userID, fleetID, grantedBy int64, expiresAt *time.Time) (Grant, error) {
	if s.upsertErr != nil {
		return Grant{}, s.upsertErr
	}
	g := Grant{UserID: userID, ResourceID: fleetID, Kind: KindFleet, GrantedBy: grantedBy, GrantedAt: time.Now(), ExpiresAt: expiresAt}
	s.upserts = append(s.upserts, g)
	grants := s.fleetGrants[userID][:0]
	for _, existing := range s.fleetGrants[userID] {
		if existing.ResourceID != fleetID {
			grants = append(grants, existing)
		}
	}
	s.fleetGrants[userID] = append(grants, g)
	return g, nil
}

func (s *stubStore) UpsertVesselGrant(ctx context.Context, userID, vesselID, grantedBy int64, expiresAt *time.Time) (Grant, error) {
	if s.upsertErr != nil {
		return Grant{}, s.upsertErr
	}
	g := Grant{UserID: userID, ResourceID: vesselID, Kind: KindVessel, GrantedBy: grantedBy, GrantedAt: time.Now(), ExpiresAt: expiresAt}
	s.upserts = append(s.upserts, g)
	grants := s.vesselGrants[userID][:0]
	for _, existing := range s.vesselGrants[userID] {
		if existing.ResourceID != vesselID {
			grants = append(grants, existing)
		}
	}
	s.vesselGrants[userID] = append(grants, g)
	return g, nil
}

func (s *stubStore) RevokeFleetGrant(ctx context.Context, userID, fleetID int64) (bool, error) {
	if s.revokeErr != nil {
		return false, s.revokeErr
	}
	key := fmt.Sprintf("fleet:%d:%d", userID, fleetID)
	s.revokeHits[key] = true
	kept := s.fleetGrants[userID][:0]
	removed := false
	for _, g := range s.fleetGrants[userID] {
		if g.ResourceID == fleetID {
			removed = true
			continue
		}
		kept = append(kept, g)
	}
	s.fleetGrants[userID] = kept
	return removed, nil
}

func (s *stubStore) RevokeVesselGrant(ctx context.Context, userID, vesselID int64) (bool, error) {
	if s.revokeErr != nil {
		return false, s.revokeErr
	}
	kept := s.vesselGrants[userID][:0]
	removed := false
	for _, g := range s.vesselGrants[userID] {
		if g.ResourceID == vesselID {
			removed = true
			continue
		}
		kept = append(kept, g)
	}
	s.vesselGrants[userID] = kept
	return removed, nil
}

func (s *stubStore) ListFleetGrants(ctx context.Context, userID int64) ([]Grant, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	return s.fleetGrants[userID], nil
}

func (s *stubStore) ListVesselGrants(ctx context.Context, userID int64) ([]Grant, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	return s.vesselGrants[userID], nil
}

func (s *stubStore) DeleteGrantsForFleet(ctx context.Context, fleetID int64) error {
	s.deletedFleets = append(s.deletedFleets, fleetID)
	return nil
}

func (s *stubStore) DeleteGrantsForVessel(ctx context.Context, vesselID int64) error {
	s.deletedShips = append(s.deletedShips, vesselID)
	return nil
}

type vesselRef struct {
	tenantID int64
	fleetID  *int64
}

type stubDirectory struct {
	fleetTenants  map[int64]int64
	vessels       map[int64]vesselRef
	tenantFleets  map[int64][]int64
	tenantVessels map[int64][]int64
	fleetVessels  map[int64][]int64
	err           error
}

func newStubDirectory() *stubDirectory {
	return &stubDirectory{
		fleetTenants:  make(map[int64]int64),
		vessels:       make(map[int64]vesselRef),
		tenantFleets:  make(map[int64][]int64),
		tenantVessels: make(map[int64][]int64),
		fleetVessels:  make(map[int64][]int64),
	}
}

func (d *stubDirectory) FleetTenant(ctx context.Context, fleetID int64) (int64, error) {
	if d.err != nil {
		return 0, d.err
	}
	tenantID, ok := d.fleetTenants[fleetID]
	if !ok {
		return 0, fmt.Errorf("%w: fleet %d", ErrResourceNotFound, fleetID)
	}
	return tenantID, nil
}

func (d *stubDirectory) VesselRef(ctx context.Context, vesselID int64) (int64, *int64, error) {
	if d.err != nil {
		return 0, nil, d.err
	}
	ref, ok := d.vessels[vesselID]
	if !ok {
		return 0, nil, fmt.Errorf("%w: vessel %d", ErrResourceNotFound, vesselID)
	}
	return ref.tenantID, ref.fleetID, nil
}

func (d *stubDirectory) TenantFleetIDs(ctx context.Context, tenantID int64) ([]int64, error) {
	if d.err != nil {
		return nil, d.err
	}
	return d.tenantFleets[tenantID], nil
}

func (d *stubDirectory) TenantVesselIDs(ctx context.Context, tenantID int64) ([]int64, error) {
	if d.err != nil {
		return nil, d.err
	}
	return d.tenantVessels[tenantID], nil
}

func (d *stubDirectory) FleetVesselIDs(ctx context.Context, fleetIDs []int64) ([]int64, error) {
	if d.err != nil {
		return nil, d.err
	}
	var out []int64
	for _, fleetID := range fleetIDs {
		out = append(out, d.fleetVessels[fleetID]...)
	}
	return out, nil
}

func ptrTime(t time.Time) *time.Time { return &t }

func fixedClock(t time.Time) Clock {
	return func() time.Time { return t }
}

var testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

// ============================================================================
// POINT CHECKS
// ============================================================================

func TestHasFleetAccessBypass(t *testing.T) {
	dir := newStubDirectory()
	dir.fleetTenants[10] = 1
	r := NewResolver(newStubStore(), dir, testLogger)

	allowed, err := r.HasFleetAccess(context.Background(), Identity{UserID: 5, TenantID: 1, Role: roles.RoleAdmin}, 10)
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestHasFleetAccessBypassDoesNotCrossTenants(t *testing.T) {
	dir := newStubDirectory()
	dir.fleetTenants[10] = 2
	r := NewResolver(newStubStore(), dir, testLogger)

	allowed, err := r.HasFleetAccess(context.Background(), Identity{UserID: 5, TenantID: 1, Role: roles.RoleOwner}, 10)
	require.NoError(t, err)
	assert.False(t, allowed, "bypass must not widen the tenant boundary")
}

func TestHasFleetAccessUnknownFleetDeniesWithoutError(t *testing.T) {
	r := NewResolver(newStubStore(), newStubDirectory(), testLogger)

	allowed, err := r.HasFleetAccess(context.Background(), Identity{UserID: 5, TenantID: 1, Role: roles.RoleOwner}, 999)
	require.NoError(t, err)
	assert.False(t, allowed)
}

func TestHasFleetAccessGrantExpiry(t *testing.T) {
	t0 := time.Date(2026, 7, 1, 12, 0, 0, 0, time.UTC)
	dir := newStubDirectory()
	dir.fleetTenants[10] = 1
	store := newStubStore()
	store.fleetGrants[5] = []Grant{
		{UserID: 5, ResourceID: 10, Kind: KindFleet, ExpiresAt: ptrTime(t0.Add(2 * time.Hour))},
	}
	id := Identity{UserID: 5, TenantID: 1, Role: roles.RoleOps}

	cases := []struct {
		name string
		now  time.Time
		want bool
	}{
		{"before expiry", t0.Add(30 * time.Minute), true},
		{"at expiry", t0.Add(2 * time.Hour), false},
		{"after expiry", t0.Add(3 * time.Hour), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := NewResolver(store, dir, testLogger, WithClock(fixedClock(tc.now)))
			allowed, err := r.HasFleetAccess(context.Background(), id, 10)
			require.NoError(t, err)
			assert.Equal(t, tc.want, allowed)
		})
	}
}

func TestHasFleetAccessNilExpiryNeverExpires(t *testing.T) {
	dir := newStubDirectory()
	dir.fleetTenants[10] = 1
	store := newStubStore()
	store.fleetGrants[5] = []Grant{{UserID: 5, ResourceID: 10, Kind: KindFleet}}

	farFuture := time.Date(2100, 1, 1, 0, 0, 0, 0, time.UTC)
	r := NewResolver(store, dir, testLogger, WithClock(fixedClock(farFuture)))
	allowed, err := r.HasFleetAccess(context.Background(), Identity{UserID: 5, TenantID: 1, Role: roles.RoleViewer}, 10)
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestHasFleetAccessStoreFailureFailsClosed(t *testing.T) {
	dir := newStubDirectory()
	dir.fleetTenants[10] = 1
	store := newStubStore()
	store.listErr = errors.New("connection refused")

	r := NewResolver(store, dir, testLogger)
	allowed, err := r.HasFleetAccess(context.Background(), Identity{UserID: 5, TenantID: 1, Role: roles.RoleOps}, 10)
	assert.False(t, allowed)
	require.Error(t, err)
	assert.True(t, IsUnavailable(err))
}

func TestHasVesselAccessDirectGrant(t *testing.T) {
	dir := newStubDirectory()
	dir.vessels[20] = vesselRef{tenantID: 1}
	store := newStubStore()
	store.vesselGrants[5] = []Grant{{UserID: 5, ResourceID: 20, Kind: KindVessel}}

	r := NewResolver(store, dir, testLogger)
	allowed, err := r.HasVesselAccess(context.Background(), Identity{UserID: 5, TenantID: 1, Role: roles.RoleAnalyst}, 20)
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestHasVesselAccessDerivedFromFleet(t *testing.T) {
	dir := newStubDirectory()
	dir.vessels[20] = vesselRef{tenantID: 1, fleetID: ptrInt64(10)}
	store := newStubStore()
	store.fleetGrants[5] = []Grant{{UserID: 5, ResourceID: 10, Kind: KindFleet}}

	r := NewResolver(store, dir, testLogger)
	allowed, err := r.HasVesselAccess(context.Background(), Identity{UserID: 5, TenantID: 1, Role: roles.RoleOps}, 20)
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestHasVesselAccessUnassignedVesselNeedsDirectGrant(t *testing.T) {
	dir := newStubDirectory()
	dir.vessels[20] = vesselRef{tenantID: 1}
	store := newStubStore()
	store.fleetGrants[5] = []Grant{{UserID: 5, ResourceID: 10, Kind: KindFleet}}

	r := NewResolver(store, dir, testLogger)
	allowed, err := r.HasVesselAccess(context.Background(), Identity{UserID: 5, TenantID: 1, Role: roles.RoleOps}, 20)
	require.NoError(t, err)
	assert.False(t, allowed, "a fleet grant must not reach vessels outside the fleet")
}

func TestHasVesselAccessExpiredDirectButActiveFleet(t *testing.T) {
	t0 := time.Date(2026, 7, 1, 12, 0, 0, 0, time.UTC)
	dir := newStubDirectory()
	dir.vessels[20] = vesselRef{tenantID: 1, fleetID: ptrInt64(10)}
	store := newStubStore()
	store.vesselGrants[5] = []Grant{{UserID: 5, ResourceID: 20, Kind: KindVessel, ExpiresAt: ptrTime(t0.Add(-time.Hour))}}
	store.fleetGrants[5] = []Grant{{UserID: 5, ResourceID: 10, Kind: KindFleet}}

	r := NewResolver(store, dir, testLogger, WithClock(fixedClock(t0)))
	allowed, err := r.HasVesselAccess(context.Background(), Identity{UserID: 5, TenantID: 1, Role: roles.RoleOps}, 20)
	require.NoError(t, err)
	assert.True(t, allowed, "an expired direct grant must not mask fleet-derived access")
}

// ============================================================================
// ENUMERATION
// ============================================================================

func TestAccessibleFleetsBypassSeesTenantSet(t *testing.T) {
	dir := newStubDirectory()
	dir.tenantFleets[1] = []int64{10, 11, 12}
	r := NewResolver(newStubStore(), dir, testLogger)

	set, err := r.AccessibleFleets(context.Background(), Identity{UserID: 5, TenantID: 1, Role: roles.RoleOwner})
	require.NoError(t, err)
	assert.Len(t, set, 3)
	assert.True(t, set.Contains(11))
}

func TestAccessibleFleetsFiltersExpired(t *testing.T) {
	t0 := time.Date(2026, 7, 1, 12, 0, 0, 0, time.UTC)
	store := newStubStore()
	store.fleetGrants[5] = []Grant{
		{UserID: 5, ResourceID: 10, Kind: KindFleet},
		{UserID: 5, ResourceID: 11, Kind: KindFleet, ExpiresAt: ptrTime(t0.Add(-time.Minute))},
		{UserID: 5, ResourceID: 12, Kind: KindFleet, ExpiresAt: ptrTime(t0.Add(time.Minute))},
	}
	r := NewResolver(store, newStubDirectory(), testLogger, WithClock(fixedClock(t0)))

	set, err := r.AccessibleFleets(context.Background(), Identity{UserID: 5, TenantID: 1, Role: roles.RoleOps})
	require.NoError(t, err)
	assert.Equal(t, NewIDSet(10, 12), set)
}

func TestAccessibleVesselsUnionDeduplicates(t *testing.T) {
	store := newStubStore()
	store.vesselGrants[5] = []Grant{
		{UserID: 5, ResourceID: 20, Kind: KindVessel},
		{UserID: 5, ResourceID: 21, Kind: KindVessel},
	}
	store.fleetGrants[5] = []Grant{{UserID: 5, ResourceID: 10, Kind: KindFleet}}
	dir := newStubDirectory()
	dir.fleetVessels[10] = []int64{21, 22} // 21 also granted directly

	r := NewResolver(store, dir, testLogger)
	set, err := r.AccessibleVessels(context.Background(), Identity{UserID: 5, TenantID: 1, Role: roles.RoleOps})
	require.NoError(t, err)
	assert.Equal(t, NewIDSet(20, 21, 22), set)
}

func TestAccessibleVesselsEmptyWithoutGrants(t *testing.T) {
	r := NewResolver(newStubStore(), newStubDirectory(), testLogger)
	set, err := r.AccessibleVessels(context.Background(), Identity{UserID: 5, TenantID: 1, Role: roles.RoleViewer})
	require.NoError(t, err)
	assert.Empty(t, set)
}

func TestAccessibleFleetsStoreFailureFailsClosed(t *testing.T) {
	store := newStubStore()
	store.listErr = errors.New("connection refused")
	r := NewResolver(store, newStubDirectory(), testLogger)

	set, err := r.AccessibleFleets(context.Background(), Identity{UserID: 5, TenantID: 1, Role: roles.RoleOps})
	assert.Empty(t, set)
	require.Error(t, err)
	assert.True(t, IsUnavailable(err))
}

func ptrInt64(v int64) *int64 { return &v }
