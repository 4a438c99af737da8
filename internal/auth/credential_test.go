package auth

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"
)

var testSecret = []byte("test-device-secret")

func mustSign(t *testing.T, userID, deviceID string) string {
	t.Helper()
	c, err := NewCredential(userID, deviceID, time.UnixMilli(1700000000000), bytes.NewReader(make([]byte, nonceBytes)))
	if err != nil {
		t.Fatalf("NewCredential: %v", err)
	}
	raw, err := c.Sign(testSecret)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	return raw
}

func TestCredentialRoundTrip(t *testing.T) {
	raw := mustSign(t, "user-1", "device-0001")
	if got := strings.Count(raw, "."); got != 2 {
		t.Fatalf("expected three segments, got %d dots", got)
	}
	c, err := ParseCredential(raw, testSecret)
	if err != nil {
		t.Fatalf("ParseCredential: %v", err)
	}
	if c.UserID != "user-1" || c.DeviceID != "device-0001" {
		t.Fatalf("unexpected identity: %+v", c)
	}
	if c.Type != "device_token" || c.Timestamp != 1700000000000 {
		t.Fatalf("unexpected payload: %+v", c)
	}
	if len(c.Random) != 2*nonceBytes {
		t.Fatalf("nonce should be %d hex chars, got %q", 2*nonceBytes, c.Random)
	}
}

func TestCredentialDeterministicPayload(t *testing.T) {
	a := mustSign(t, "user-1", "device-0001")
	b := mustSign(t, "user-1", "device-0001")
	if a != b {
		t.Fatalf("same inputs must serialize identically:\n%s\n%s", a, b)
	}
}

func TestCredentialSignatureBitFlip(t *testing.T) {
	raw := mustSign(t, "user-1", "device-0001")
	sigStart := strings.LastIndexByte(raw, '.') + 1
	for i := sigStart; i < len(raw); i++ {
		for bit := 0; bit < 8; bit++ {
			b := []byte(raw)
			b[i] ^= 1 << bit
			_, err := ParseCredential(string(b), testSecret)
			if !errors.Is(err, errBadSignature) {
				t.Fatalf("flip byte %d bit %d: got %v, want signature mismatch", i, bit, err)
			}
		}
	}
}

func TestCredentialWrongSecret(t *testing.T) {
	raw := mustSign(t, "user-1", "device-0001")
	if _, err := ParseCredential(raw, []byte("other")); !errors.Is(err, errBadSignature) {
		t.Fatalf("expected signature mismatch, got %v", err)
	}
}

func TestCredentialMalformed(t *testing.T) {
	cases := map[string]string{
		"empty":        "",
		"one segment":  "abc",
		"two segments": "abc.def",
		"empty header": ".def.ghi",
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := ParseCredential(raw, testSecret); !errors.Is(err, errMalformedCredential) {
				t.Fatalf("expected malformed, got %v", err)
			}
		})
	}
}

func TestCredentialSignedGarbagePayload(t *testing.T) {
	signing := "e30." + "bm90LWpzb24"
	raw := signing + "." + signatureSegment(signing, testSecret)
	if _, err := ParseCredential(raw, testSecret); !errors.Is(err, errMalformedCredential) {
		t.Fatalf("expected malformed for a signed non-JSON payload, got %v", err)
	}
}

func TestTokenPrefix(t *testing.T) {
	if got := TokenPrefix("abcdefghijklmnop"); got != "abcdefghij..." {
		t.Fatalf("unexpected prefix %q", got)
	}
	if got := TokenPrefix("abc"); got != "abc..." {
		t.Fatalf("unexpected prefix %q", got)
	}
}
