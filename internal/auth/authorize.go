package auth

import "strings"

// Role is one of the fixed platform roles.
type Role string

const (
	RoleNationalAdmin  Role = "national_admin"
	RoleDataManager    Role = "data_manager"
	RolePartnerManager Role = "partner_manager"
	RoleTeamMember     Role = "team_member"
)

// administrativeRoles bypass partner scoping everywhere.
var administrativeRoles = map[Role]struct{}{
	RoleNationalAdmin: {},
	RoleDataManager:   {},
}

// ParseRole normalizes raw into a known role.
func ParseRole(raw string) (Role, bool) {
	r := Role(strings.TrimSpace(strings.ToLower(raw)))
	switch r {
	case RoleNationalAdmin, RoleDataManager, RolePartnerManager, RoleTeamMember:
		return r, true
	}
	return "", false
}

// IsAdministrative reports whether role has platform-wide reach.
func IsAdministrative(role Role) bool {
	_, ok := administrativeRoles[role]
	return ok
}

// IsAdministrative reports whether the identity has platform-wide reach.
func (id Identity) IsAdministrative() bool {
	return IsAdministrative(id.Role)
}
