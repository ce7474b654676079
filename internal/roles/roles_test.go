package roles

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsBypass(t *testing.T) {
	assert.True(t, RoleOwner.IsBypass())
	assert.True(t, RoleAdmin.IsBypass())
	assert.False(t, RoleManager.IsBypass())
	assert.False(t, RoleViewer.IsBypass())
	assert.False(t, Role("SUPERADMIN").IsBypass())
}

func TestPermissionsOfUnknownRoleIsEmpty(t *testing.T) {
	assert.Nil(t, PermissionsOf(Role("CAPTAIN")))
	assert.Nil(t, PermissionsOf(Role("")))
}

func TestHasCapability(t *testing.T) {
	cases := []struct {
		role Role
		perm Permission
		want bool
	}{
		{RoleOwner, PermAccessManage, true},
		{RoleAdmin, PermAuditView, true},
		{RoleManager, PermAccessManage, true},
		{RoleManager, PermUsersManage, false},
		{RoleOps, PermVesselsManage, true},
		{RoleOps, PermAccessManage, false},
		{RoleAnalyst, PermAuditView, true},
		{RoleAnalyst, PermVoyagesManage, false},
		{RoleViewer, PermFleetsView, true},
		{RoleViewer, PermFleetsManage, false},
		{Role("CAPTAIN"), PermFleetsView, false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, HasCapability(tc.role, tc.perm), "%s / %s", tc.role, tc.perm)
	}
}

func TestValid(t *testing.T) {
	assert.True(t, RoleOps.Valid())
	assert.False(t, Role("ops").Valid(), "canonical roles are upper case")
	assert.False(t, Role("CAPTAIN").Valid())
}

func TestDisplayNameRoundTrip(t *testing.T) {
	for _, role := range []Role{RoleOwner, RoleAdmin, RoleManager, RoleOps, RoleAnalyst, RoleViewer} {
		display := DisplayName(role)
		assert.NotEmpty(t, display)
		parsed, ok := FromDisplayName(display)
		assert.True(t, ok, "display name %q must parse back", display)
		assert.Equal(t, role, parsed)
	}
}

func TestFromDisplayNameAcceptsCanonical(t *testing.T) {
	parsed, ok := FromDisplayName("OPS")
	assert.True(t, ok)
	assert.Equal(t, RoleOps, parsed)

	parsed, ok = FromDisplayName("fleet operator")
	assert.True(t, ok)
	assert.Equal(t, RoleOps, parsed)

	_, ok = FromDisplayName("Harbour Master")
	assert.False(t, ok)
}
