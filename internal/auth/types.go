package auth

import "time"

// User is a console or field account.
type User struct {
	ID           string
	Email        string
	Name         string
	Role         Role
	PartnerID    string
	PasswordHash string
	IsActive     bool
	LastLoginAt  *time.Time
	CreatedAt    time.Time
}

// Identity is the subset of a user exposed to callers once authenticated.
type Identity struct {
	UserID    string `json:"id"`
	Email     string `json:"email"`
	Role      Role   `json:"role"`
	PartnerID string `json:"partnerId"`
	Name      string `json:"name"`
}

// Identity projects the user to its caller-facing form.
func (u *User) Identity() Identity {
	return Identity{
		UserID:    u.ID,
		Email:     u.Email,
		Role:      u.Role,
		PartnerID: u.PartnerID,
		Name:      u.Name,
	}
}

// DeviceToken is the persisted record behind one (user, device) credential.
type DeviceToken struct {
	ID         string
	UserID     string
	DeviceID   string
	Token      string
	// RefreshID is the jti of the only refresh artifact that may rotate this row.
	RefreshID  string
	DeviceInfo string
	ExpiresAt  time.Time
	LastUsed   time.Time
	Revoked    bool
	RevokedAt  *time.Time
	RevokedBy  string
	IPAddress  string
	UserAgent  string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// State evaluates the lifecycle state of the record at now.
func (t *DeviceToken) State(now time.Time) State {
	switch {
	case t.Revoked:
		return StateRevoked
	case !now.Before(t.ExpiresAt):
		return StateExpired
	default:
		return StateActive
	}
}

// Origin carries the network details of the request presenting a credential.
type Origin struct {
	IPAddress string
	UserAgent string
}

// CredentialInfo is what a successful verification yields.
type CredentialInfo struct {
	TokenID    string
	DeviceID   string
	Token      string
	DeviceInfo string
	ExpiresAt  time.Time
	LastUsed   time.Time
	User       Identity
}
