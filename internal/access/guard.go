package access

import (
	"context"
	"errors"
	"fmt"
)

// UserDirectory resolves a grantee's tenant. Implemented by the users
// repository.
type UserDirectory interface {
	UserTenant(ctx context.Context, userID int64) (int64, error)
}

// TenantGuard rejects any grant mutation or resolution that would cross a
// tenant boundary. It runs before the grant store is touched, so a
// cross-tenant grant is never persisted, not even transiently.
type TenantGuard struct {
	dir   Directory
	users UserDirectory
}

// NewTenantGuard constructs a TenantGuard.
func NewTenantGuard(dir Directory, users UserDirectory) TenantGuard {
	return TenantGuard{dir: dir, users: users}
}

// CheckFleetGrant validates that the fleet exists, the actor shares its
// tenant, and the grantee shares its tenant. Returns the fleet's tenant id.
func (g TenantGuard) CheckFleetGrant(ctx context.Context, actor Identity, granteeID, fleetID int64) (int64, error) {
	tenantID, err := g.dir.FleetTenant(ctx, fleetID)
	if err != nil {
		if errors.Is(err, ErrResourceNotFound) {
			return 0, fmt.Errorf("%w: fleet %d", ErrResourceNotFound, fleetID)
		}
		return 0, err
	}
	return tenantID, g.checkParties(ctx, actor, granteeID, tenantID)
}

// CheckVesselGrant is the vessel counterpart of CheckFleetGrant.
func (g TenantGuard) CheckVesselGrant(ctx context.Context, actor Identity, granteeID, vesselID int64) (int64, error) {
	tenantID, _, err := g.dir.VesselRef(ctx, vesselID)
	if err != nil {
		if errors.Is(err, ErrResourceNotFound) {
			return 0, fmt.Errorf("%w: vessel %d", ErrResourceNotFound, vesselID)
		}
		return 0, err
	}
	return tenantID, g.checkParties(ctx, actor, granteeID, tenantID)
}

// CheckUser validates that the target user exists and shares the actor's
// tenant.
func (g TenantGuard) CheckUser(ctx context.Context, actor Identity, userID int64) error {
	tenantID, err := g.users.UserTenant(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return fmt.Errorf("%w: user %d", ErrUserNotFound, userID)
		}
		return err
	}
	if tenantID != actor.TenantID {
		return ErrCrossTenant
	}
	return nil
}

func (g TenantGuard) checkParties(ctx context.Context, actor Identity, granteeID, resourceTenant int64) error {
	if resourceTenant != actor.TenantID {
		return ErrCrossTenant
	}
	granteeTenant, err := g.users.UserTenant(ctx, granteeID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return fmt.Errorf("%w: user %d", ErrUserNotFound, granteeID)
		}
		return err
	}
	if granteeTenant != resourceTenant {
		return ErrCrossTenant
	}
	return nil
}
