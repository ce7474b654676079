package roles

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// The API serializes roles under display labels for historical reasons while
// the resolver only ever sees the canonical Role. Both directions live here
// so no second role vocabulary leaks inward.

var displayNames = map[Role]string{
	RoleOwner:   "Account Owner",
	RoleAdmin:   "Administrator",
	RoleManager: "Fleet Manager",
	RoleOps:     "Fleet Operator",
	RoleAnalyst: "Compliance Analyst",
	RoleViewer:  "Viewer",
}

var titleCaser = cases.Title(language.English)

// DisplayName returns the external label for a role. Unknown roles fall back
// to a title-cased rendering of the raw value so old records stay readable.
func DisplayName(role Role) string {
	if name, ok := displayNames[role]; ok {
		return name
	}
	return titleCaser.String(strings.ToLower(string(role)))
}

// FromDisplayName maps an external label back to the canonical role. The
// canonical spelling itself is also accepted. Unrecognized input returns
// false; callers treat that as a validation error, never as a default role.
func FromDisplayName(label string) (Role, bool) {
	trimmed := strings.TrimSpace(label)
	for role, name := range displayNames {
		if strings.EqualFold(trimmed, name) || strings.EqualFold(trimmed, string(role)) {
			return role, true
		}
	}
	return "", false
}
