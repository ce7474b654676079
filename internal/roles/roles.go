// Package roles holds the static role→permission matrix used by every
// authorization decision. The matrix is configuration, not runtime state.
package roles

// Role is the canonical role identifier stored on a user record.
type Role string

// Canonical roles. OWNER and ADMIN are bypass roles: they satisfy every
// permission and access check unconditionally, subject only to tenant
// isolation.
const (
	RoleOwner   Role = "OWNER"
	RoleAdmin   Role = "ADMIN"
	RoleManager Role = "MANAGER"
	RoleOps     Role = "OPS"
	RoleAnalyst Role = "ANALYST"
	RoleViewer  Role = "VIEWER"
)

// Permission is an atomic capability granted through a role.
type Permission string

const (
	PermFleetsView   Permission = "fleets.view"
	PermFleetsManage Permission = "fleets.manage"

	PermVesselsView   Permission = "vessels.view"
	PermVesselsManage Permission = "vessels.manage"

	PermVoyagesView   Permission = "voyages.view"
	PermVoyagesManage Permission = "voyages.manage"

	PermAccessView   Permission = "access.view"
	PermAccessManage Permission = "access.manage"

	PermUsersView   Permission = "users.view"
	PermUsersManage Permission = "users.manage"

	PermAuditView Permission = "audit.view"
)

// capabilities maps each role to its permission set. Bypass roles are listed
// for documentation value only; HasCapability short-circuits for them.
var capabilities = map[Role]map[Permission]struct{}{
	RoleOwner: permSet(
		PermFleetsView, PermFleetsManage,
		PermVesselsView, PermVesselsManage,
		PermVoyagesView, PermVoyagesManage,
		PermAccessView, PermAccessManage,
		PermUsersView, PermUsersManage,
		PermAuditView,
	),
	RoleAdmin: permSet(
		PermFleetsView, PermFleetsManage,
		PermVesselsView, PermVesselsManage,
		PermVoyagesView, PermVoyagesManage,
		PermAccessView, PermAccessManage,
		PermUsersView, PermUsersManage,
		PermAuditView,
	),
	RoleManager: permSet(
		PermFleetsView, PermFleetsManage,
		PermVesselsView, PermVesselsManage,
		PermVoyagesView, PermVoyagesManage,
		PermAccessView, PermAccessManage,
	),
	RoleOps: permSet(
		PermFleetsView,
		PermVesselsView, PermVesselsManage,
		PermVoyagesView, PermVoyagesManage,
	),
	RoleAnalyst: permSet(
		PermFleetsView,
		PermVesselsView,
		PermVoyagesView,
		PermAuditView,
	),
	RoleViewer: permSet(
		PermFleetsView,
		PermVesselsView,
		PermVoyagesView,
	),
}

func permSet(perms ...Permission) map[Permission]struct{} {
	set := make(map[Permission]struct{}, len(perms))
	for _, p := range perms {
		set[p] = struct{}{}
	}
	return set
}

// IsBypass reports whether the role satisfies every access check without
// consulting grants.
func (r Role) IsBypass() bool {
	return r == RoleOwner || r == RoleAdmin
}

// Valid reports whether r is one of the canonical roles.
func (r Role) Valid() bool {
	_, ok := capabilities[r]
	return ok
}

// PermissionsOf returns a copy of the permission set for the role. Unknown
// roles resolve to an empty set rather than an error, so a bad role string
// degrades to "no access" instead of failing the request pipeline.
func PermissionsOf(role Role) []Permission {
	set, ok := capabilities[role]
	if !ok {
		return nil
	}
	perms := make([]Permission, 0, len(set))
	for p := range set {
		perms = append(perms, p)
	}
	return perms
}

// HasCapability reports whether the role carries the permission. Bypass
// roles hold every permission; unknown roles hold none.
func HasCapability(role Role, perm Permission) bool {
	if role.IsBypass() {
		return true
	}
	set, ok := capabilities[role]
	if !ok {
		return false
	}
	_, ok = set[perm]
	return ok
}
