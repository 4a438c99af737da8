package bulksync

import "surveysync.org/internal/auth"

// IsAuthorizedForSchool is the single school-scope predicate shared by the
// batch and direct submission paths.
func IsAuthorizedForSchool(user auth.Identity, school School) bool {
	if user.IsAdministrative() {
		return true
	}
	return user.PartnerID != "" && school.PartnerID == user.PartnerID
}
