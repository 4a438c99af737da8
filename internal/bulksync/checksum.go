package bulksync

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strings"
)

// Checksum is hex(SHA-256(data || key)).
func Checksum(data, key string) string {
	sum := sha256.Sum256([]byte(data + key))
	return hex.EncodeToString(sum[:])
}

// VerifyChecksum compares in constant time. Hex case is ignored.
func VerifyChecksum(data, key, checksum string) bool {
	expected := Checksum(data, key)
	got := strings.ToLower(strings.TrimSpace(checksum))
	return subtle.ConstantTimeCompare([]byte(expected), []byte(got)) == 1
}
