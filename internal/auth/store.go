package auth

import (
	"context"
	"time"
)

// Store describes persistence operations required by the auth subsystem.
type Store interface {
	Users(ctx context.Context) UserStore
	DeviceTokens(ctx context.Context) DeviceTokenStore
}

// UserStore manages console and field accounts.
type UserStore interface {
	Create(ctx context.Context, u *User) error
	Find(ctx context.Context, id string) (*User, error)
	// FindActiveByEmail matches the normalized address of an active account only.
	FindActiveByEmail(ctx context.Context, email string) (*User, error)
	TouchLogin(ctx context.Context, userID string, at time.Time) error
	// PartnerName returns "" without error for an empty partner id.
	PartnerName(ctx context.Context, partnerID string) (string, error)
}

// DeviceTokenStore manages device credential rows. At most one non-revoked
// row may exist per (user, device).
type DeviceTokenStore interface {
	// Upsert overwrites the non-revoked row for (UserID, DeviceID) in place,
	// or inserts a new one. ID and CreatedAt are filled in on return.
	Upsert(ctx context.Context, tok *DeviceToken) error
	FindByID(ctx context.Context, id string) (*DeviceToken, error)
	// FindByToken returns the row in any lifecycle state together with its
	// owner, active or not.
	FindByToken(ctx context.Context, token, userID, deviceID string) (*DeviceToken, *User, error)
	// FindActive returns the non-revoked row for the pair, expired or not.
	FindActive(ctx context.Context, userID, deviceID string) (*DeviceToken, error)
	Touch(ctx context.Context, id string, at time.Time, origin Origin) error
	// Rotate reports ErrNotFound when the row is revoked or no longer carries
	// r.PrevRefreshID.
	Rotate(ctx context.Context, id string, r Rotation) error
	// MarkRevoked keeps the first revoked_at and revoked_by on repeat calls.
	MarkRevoked(ctx context.Context, id, revokedBy string, at time.Time) error
	RevokeAllForUser(ctx context.Context, userID, revokedBy string, at time.Time) (int, error)
	// ListByUser orders by last use, most recent first.
	ListByUser(ctx context.Context, userID string) ([]DeviceToken, error)
}

// Rotation replaces the credential and refresh artifact bound to a row.
type Rotation struct {
	Token         string
	RefreshID     string
	PrevRefreshID string
	ExpiresAt     time.Time
	At            time.Time
}
