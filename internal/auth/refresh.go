package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	refreshIssuer    = "surveysync"
	refreshTokenType = "device_refresh"
)

// RefreshClaims binds a refresh artifact to the device that received it.
type RefreshClaims struct {
	DeviceID  string `json:"did"`
	TokenType string `json:"token_type"`
	jwt.RegisteredClaims
}

type refreshSigner struct {
	secret []byte
	ttl    time.Duration
}

// mint signs an artifact carrying jti, the id stored on the device token row.
func (s refreshSigner) mint(userID, deviceID, jti string, now time.Time) (string, time.Time, error) {
	if len(s.secret) == 0 {
		return "", time.Time{}, ErrMissingSecret
	}
	exp := now.Add(s.ttl)
	claims := RefreshClaims{
		DeviceID:  deviceID,
		TokenType: refreshTokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    refreshIssuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        jti,
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign refresh token: %w", err)
	}
	return signed, exp, nil
}

func (s refreshSigner) parse(raw string, now func() time.Time) (*RefreshClaims, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || len(s.secret) == 0 {
		return nil, ErrInvalidRefresh
	}
	parsed, err := jwt.ParseWithClaims(raw, &RefreshClaims{}, func(t *jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(refreshIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(now),
	)
	if err != nil {
		return nil, ErrInvalidRefresh
	}
	claims, ok := parsed.Claims.(*RefreshClaims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidRefresh
	}
	if err := validateRefreshClaims(claims); err != nil {
		return nil, ErrInvalidRefresh
	}
	return claims, nil
}

func validateRefreshClaims(claims *RefreshClaims) error {
	if claims.TokenType != refreshTokenType {
		return fmt.Errorf("unexpected token type: %s", claims.TokenType)
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return errors.New("subject missing")
	}
	if strings.TrimSpace(claims.DeviceID) == "" {
		return errors.New("device id missing")
	}
	if strings.TrimSpace(claims.ID) == "" {
		return errors.New("jti missing")
	}
	return nil
}
