package access

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harborwatch/harborwatch/internal/roles"
)

type stubUserDirectory struct {
	tenants map[int64]int64
	err     error
}

func (d *stubUserDirectory) UserTenant(ctx context.Context, userID int64) (int64, error) {
	if d.err != nil {
		return 0, d.err
	}
	tenantID, ok := d.tenants[userID]
	if !ok {
		return 0, fmt.Errorf("%w: user %d", ErrUserNotFound, userID)
	}
	return tenantID, nil
}

func TestCheckFleetGrantHappyPath(t *testing.T) {
	dir := newStubDirectory()
	dir.fleetTenants[10] = 1
	users := &stubUserDirectory{tenants: map[int64]int64{7: 1}}
	guard := NewTenantGuard(dir, users)

	actor := Identity{UserID: 2, TenantID: 1, Role: roles.RoleAdmin}
	tenantID, err := guard.CheckFleetGrant(context.Background(), actor, 7, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1), tenantID)
}

func TestCheckFleetGrantUnknownFleet(t *testing.T) {
	guard := NewTenantGuard(newStubDirectory(), &stubUserDirectory{tenants: map[int64]int64{}})

	actor := Identity{UserID: 2, TenantID: 1, Role: roles.RoleAdmin}
	_, err := guard.CheckFleetGrant(context.Background(), actor, 7, 999)
	require.ErrorIs(t, err, ErrResourceNotFound)
}

func TestCheckFleetGrantActorOutsideResourceTenant(t *testing.T) {
	dir := newStubDirectory()
	dir.fleetTenants[10] = 2
	guard := NewTenantGuard(dir, &stubUserDirectory{tenants: map[int64]int64{7: 2}})

	actor := Identity{UserID: 2, TenantID: 1, Role: roles.RoleAdmin}
	_, err := guard.CheckFleetGrant(context.Background(), actor, 7, 10)
	require.ErrorIs(t, err, ErrCrossTenant)
}

func TestCheckFleetGrantGranteeOutsideResourceTenant(t *testing.T) {
	dir := newStubDirectory()
	dir.fleetTenants[10] = 1
	guard := NewTenantGuard(dir, &stubUserDirectory{tenants: map[int64]int64{7: 2}})

	actor := Identity{UserID: 2, TenantID: 1, Role: roles.RoleAdmin}
	_, err := guard.CheckFleetGrant(context.Background(), actor, 7, 10)
	require.ErrorIs(t, err, ErrCrossTenant)
}

func TestCheckVesselGrantUnknownGrantee(t *testing.T) {
	dir := newStubDirectory()
	dir.vessels[20] = vesselRef{tenantID: 1}
	guard := NewTenantGuard(dir, &stubUserDirectory{tenants: map[int64]int64{}})

	actor := Identity{UserID: 2, TenantID: 1, Role: roles.RoleAdmin}
	_, err := guard.CheckVesselGrant(context.Background(), actor, 7, 20)
	require.ErrorIs(t, err, ErrUserNotFound)
}

func TestCheckUserCrossTenant(t *testing.T) {
	guard := NewTenantGuard(newStubDirectory(), &stubUserDirectory{tenants: map[int64]int64{7: 2}})

	actor := Identity{UserID: 2, TenantID: 1, Role: roles.RoleManager}
	err := guard.CheckUser(context.Background(), actor, 7)
	require.ErrorIs(t, err, ErrCrossTenant)
}
