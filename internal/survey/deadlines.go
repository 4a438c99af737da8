package survey

import (
	"time"

	"surveysync.org/internal/auth"
)

const (
	// TeamEditWindow is how long the original collector may edit a record.
	TeamEditWindow = 24 * time.Hour
	// PartnerEditWindow is how long a supervising partner manager may edit a record.
	PartnerEditWindow = 15 * 24 * time.Hour
)

// Deadlines are the edit cut-offs stamped on a record at creation.
type Deadlines struct {
	Team    time.Time
	Partner time.Time
}

// ComputeEditDeadlines derives both deadlines from the submission time. The
// result is persisted with the record and never recomputed.
func ComputeEditDeadlines(submittedAt time.Time) Deadlines {
	return Deadlines{
		Team:    submittedAt.Add(TeamEditWindow),
		Partner: submittedAt.Add(PartnerEditWindow),
	}
}

// CanEdit reports whether a user holding role may still modify a record
// submitted by submittedBy, judged against the stored deadlines.
func CanEdit(role auth.Role, userID, submittedBy string, d Deadlines, now time.Time) bool {
	if auth.IsAdministrative(role) {
		return true
	}
	switch role {
	case auth.RolePartnerManager:
		return now.Before(d.Partner)
	case auth.RoleTeamMember:
		return userID != "" && userID == submittedBy && now.Before(d.Team)
	default:
		return false
	}
}
