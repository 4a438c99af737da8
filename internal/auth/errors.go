package auth

import "errors"

var (
	ErrNotFound           = errors.New("auth: not found")
	ErrInvalidInput       = errors.New("auth: invalid input")
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	ErrInvalidRefresh     = errors.New("auth: invalid refresh token")
	ErrNoActiveCredential = errors.New("auth: no active device token")
	ErrDeviceMismatch     = errors.New("auth: device id mismatch")
	ErrMissingSecret      = errors.New("auth: signing secret is not configured")
	ErrForbidden          = errors.New("auth: credential belongs to another user")
	ErrAlreadyRevoked     = errors.New("auth: device token already revoked")
)
