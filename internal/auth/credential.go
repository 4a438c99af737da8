package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"time"
)

const (
	credentialAlg  = "HS256"
	credentialTyp  = "JWT"
	credentialKind = "device_token"
	nonceBytes     = 16
)

var (
	errMalformedCredential = errors.New("malformed device credential")
	errBadSignature        = errors.New("device credential signature mismatch")
)

type credentialHeader struct {
	Alg string `json:"alg"`
	Typ string `json:"typ"`
}

// Credential is the signed payload of a device token. Field order fixes the
// serialized form.
type Credential struct {
	UserID    string `json:"userId"`
	DeviceID  string `json:"deviceId"`
	Type      string `json:"type"`
	Timestamp int64  `json:"timestamp"`
	Random    string `json:"random"`
}

// NewCredential builds a payload for (userID, deviceID) with a fresh nonce read from rnd.
func NewCredential(userID, deviceID string, issuedAt time.Time, rnd io.Reader) (Credential, error) {
	nonce := make([]byte, nonceBytes)
	if _, err := io.ReadFull(rnd, nonce); err != nil {
		return Credential{}, err
	}
	return Credential{
		UserID:    userID,
		DeviceID:  deviceID,
		Type:      credentialKind,
		Timestamp: issuedAt.UnixMilli(),
		Random:    hex.EncodeToString(nonce),
	}, nil
}

// Sign serializes the credential and appends its HMAC-SHA256 signature.
func (c Credential) Sign(secret []byte) (string, error) {
	headerJSON, err := json.Marshal(credentialHeader{Alg: credentialAlg, Typ: credentialTyp})
	if err != nil {
		return "", err
	}
	payloadJSON, err := json.Marshal(c)
	if err != nil {
		return "", err
	}
	signingString := base64.RawURLEncoding.EncodeToString(headerJSON) + "." +
		base64.RawURLEncoding.EncodeToString(payloadJSON)
	return signingString + "." + signatureSegment(signingString, secret), nil
}

// ParseCredential checks shape and signature before trusting any payload
// field. Dots past the second belong to the signature segment, so every
// mutation of that segment fails as a signature mismatch.
func ParseCredential(raw string, secret []byte) (Credential, error) {
	segments := strings.SplitN(raw, ".", 3)
	if len(segments) != 3 || segments[0] == "" || segments[1] == "" {
		return Credential{}, errMalformedCredential
	}
	signingString := segments[0] + "." + segments[1]
	if !subtleCompare(segments[2], signatureSegment(signingString, secret)) {
		return Credential{}, errBadSignature
	}

	headerJSON, err := base64.RawURLEncoding.DecodeString(segments[0])
	if err != nil {
		return Credential{}, errMalformedCredential
	}
	var header credentialHeader
	if err := json.Unmarshal(headerJSON, &header); err != nil || header.Alg != credentialAlg {
		return Credential{}, errMalformedCredential
	}
	payloadJSON, err := base64.RawURLEncoding.DecodeString(segments[1])
	if err != nil {
		return Credential{}, errMalformedCredential
	}
	var c Credential
	if err := json.Unmarshal(payloadJSON, &c); err != nil {
		return Credential{}, errMalformedCredential
	}
	if c.Type != credentialKind || strings.TrimSpace(c.UserID) == "" || strings.TrimSpace(c.DeviceID) == "" {
		return Credential{}, errMalformedCredential
	}
	return c, nil
}

// TokenPrefix returns a short, non-replayable hint of raw for audit records.
func TokenPrefix(raw string) string {
	const n = 10
	if len(raw) <= n {
		return raw + "..."
	}
	return raw[:n] + "..."
}

func signatureSegment(signingString string, secret []byte) string {
	return base64.RawURLEncoding.EncodeToString(hmacSign([]byte(signingString), secret))
}

func hmacSign(data []byte, secret []byte) []byte {
	mac := hmac.New(sha256.New, secret)
	mac.Write(data)
	return mac.Sum(nil)
}

func subtleCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
