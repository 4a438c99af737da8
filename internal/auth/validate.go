package auth

import (
	"regexp"
	"strings"
)

var (
	emailPattern    = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	deviceIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{10,255}$`)
)

// NormalizeEmail lower-cases and trims an address for lookup.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidateEmail performs a shape check only.
func ValidateEmail(email string) bool {
	return emailPattern.MatchString(email)
}

// ValidateDeviceID accepts 10 to 255 URL-safe characters.
func ValidateDeviceID(id string) bool {
	return deviceIDPattern.MatchString(id)
}
