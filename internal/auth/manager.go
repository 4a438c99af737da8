package auth

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"

	"surveysync.org/internal/audit"
	"surveysync.org/internal/obs"
)

const (
	defaultCredentialTTL = 365 * 24 * time.Hour
	defaultRefreshTTL    = 30 * 24 * time.Hour

	// systemActor is recorded as revoked_by for lazy expiry revocations.
	systemActor = "system"
)

// Manager issues, verifies, refreshes and revokes device credentials.
type Manager struct {
	store   Store
	now     func() time.Time
	random  io.Reader
	auditor audit.Sink

	secret        []byte
	credentialTTL time.Duration
	refresh       refreshSigner
}

// ManagerOption configures Manager behavior.
type ManagerOption func(*Manager) error

// WithSecret sets the device credential signing secret.
func WithSecret(secret string) ManagerOption {
	return func(m *Manager) error {
		if strings.TrimSpace(secret) == "" {
			return ErrMissingSecret
		}
		m.secret = []byte(secret)
		return nil
	}
}

// WithRefreshSecret signs refresh artifacts with a separate secret. Without
// it the credential secret is used.
func WithRefreshSecret(secret string) ManagerOption {
	return func(m *Manager) error {
		if strings.TrimSpace(secret) != "" {
			m.refresh.secret = []byte(secret)
		}
		return nil
	}
}

// WithCredentialTTL configures device credential lifetime.
func WithCredentialTTL(ttl time.Duration) ManagerOption {
	return func(m *Manager) error {
		if ttl > 0 {
			m.credentialTTL = ttl
		}
		return nil
	}
}

// WithRefreshTTL configures refresh artifact lifetime.
func WithRefreshTTL(ttl time.Duration) ManagerOption {
	return func(m *Manager) error {
		if ttl > 0 {
			m.refresh.ttl = ttl
		}
		return nil
	}
}

// WithClock overrides time source (useful for tests).
func WithClock(fn func() time.Time) ManagerOption {
	return func(m *Manager) error {
		if fn != nil {
			m.now = fn
		}
		return nil
	}
}

// WithRandom overrides the nonce source.
func WithRandom(r io.Reader) ManagerOption {
	return func(m *Manager) error {
		if r != nil {
			m.random = r
		}
		return nil
	}
}

// WithAuditor sets the audit sink. The default discards.
func WithAuditor(sink audit.Sink) ManagerOption {
	return func(m *Manager) error {
		if sink != nil {
			m.auditor = sink
		}
		return nil
	}
}

// NewManager constructs Manager. A signing secret is required.
func NewManager(store Store, opts ...ManagerOption) (*Manager, error) {
	if store == nil {
		return nil, errors.New("auth: store is required")
	}
	m := &Manager{
		store:         store,
		now:           time.Now,
		random:        rand.Reader,
		auditor:       audit.Nop{},
		credentialTTL: defaultCredentialTTL,
		refresh:       refreshSigner{ttl: defaultRefreshTTL},
	}
	for _, opt := range opts {
		if err := opt(m); err != nil {
			return nil, err
		}
	}
	if len(m.secret) == 0 {
		return nil, ErrMissingSecret
	}
	if len(m.refresh.secret) == 0 {
		m.refresh.secret = m.secret
	}
	return m, nil
}

// CredentialTTL reports the configured credential lifetime.
func (m *Manager) CredentialTTL() time.Duration { return m.credentialTTL }

// Issue mints a signed credential string for (userID, deviceID). It does not
// touch storage.
func (m *Manager) Issue(userID, deviceID string) (string, error) {
	c, err := NewCredential(userID, deviceID, m.now(), m.random)
	if err != nil {
		return "", fmt.Errorf("read nonce: %w", err)
	}
	return c.Sign(m.secret)
}

// LoginRequest carries the field device's sign-in form.
type LoginRequest struct {
	Email      string
	Password   string
	DeviceID   string
	DeviceInfo string
	IPAddress  string
	UserAgent  string
}

// LoginResult is returned after a successful login.
type LoginResult struct {
	User             Identity
	PartnerName      string
	TokenID          string
	DeviceToken      string
	ExpiresAt        time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
}

// Login authenticates the account and binds a fresh credential to the device.
func (m *Manager) Login(ctx context.Context, req LoginRequest) (LoginResult, error) {
	email := NormalizeEmail(req.Email)
	if email == "" || req.Password == "" || strings.TrimSpace(req.DeviceID) == "" {
		return LoginResult{}, ErrInvalidInput
	}
	origin := Origin{IPAddress: req.IPAddress, UserAgent: req.UserAgent}
	users := m.store.Users(ctx)

	user, err := users.FindActiveByEmail(ctx, email)
	if errors.Is(err, ErrNotFound) {
		m.record(ctx, audit.Event{
			Action:     "login_failed",
			EntityType: "user",
			Severity:   audit.SeverityWarning,
			NewData:    map[string]any{"email": email, "reason": "user_not_found", "deviceId": req.DeviceID},
		}, origin)
		return LoginResult{}, ErrInvalidCredentials
	}
	if err != nil {
		return LoginResult{}, fmt.Errorf("find user: %w", err)
	}
	if err := VerifyPassword(user.PasswordHash, req.Password); err != nil {
		m.record(ctx, audit.Event{
			Action:     "login_failed",
			EntityType: "user",
			EntityID:   user.ID,
			UserID:     user.ID,
			Severity:   audit.SeverityWarning,
			NewData:    map[string]any{"email": email, "reason": "invalid_password", "deviceId": req.DeviceID},
		}, origin)
		return LoginResult{}, ErrInvalidCredentials
	}

	now := m.now()
	if err := users.TouchLogin(ctx, user.ID, now); err != nil {
		return LoginResult{}, fmt.Errorf("touch login: %w", err)
	}
	user.LastLoginAt = &now
	partnerName, err := users.PartnerName(ctx, user.PartnerID)
	if err != nil {
		return LoginResult{}, fmt.Errorf("partner name: %w", err)
	}

	token, err := m.Issue(user.ID, req.DeviceID)
	if err != nil {
		return LoginResult{}, err
	}
	refreshID := uuid.NewString()
	refresh, refreshExp, err := m.refresh.mint(user.ID, req.DeviceID, refreshID, now)
	if err != nil {
		return LoginResult{}, err
	}
	row := &DeviceToken{
		UserID:     user.ID,
		DeviceID:   req.DeviceID,
		Token:      token,
		RefreshID:  refreshID,
		DeviceInfo: req.DeviceInfo,
		ExpiresAt:  now.Add(m.credentialTTL),
		LastUsed:   now,
		IPAddress:  req.IPAddress,
		UserAgent:  req.UserAgent,
	}
	if err := m.store.DeviceTokens(ctx).Upsert(ctx, row); err != nil {
		return LoginResult{}, fmt.Errorf("store device token: %w", err)
	}

	m.record(ctx, audit.Event{
		Action:     "device_token_issued",
		EntityType: "device_token",
		EntityID:   row.ID,
		UserID:     user.ID,
		NewData: map[string]any{
			"deviceId":   req.DeviceID,
			"deviceInfo": req.DeviceInfo,
			"expiresAt":  row.ExpiresAt,
		},
	}, origin)

	return LoginResult{
		User:             user.Identity(),
		PartnerName:      partnerName,
		TokenID:          row.ID,
		DeviceToken:      token,
		ExpiresAt:        row.ExpiresAt,
		RefreshToken:     refresh,
		RefreshExpiresAt: refreshExp,
	}, nil
}

// Reason tags a failed verification. It is recorded for audit only; callers
// only see valid or invalid.
type Reason string

const (
	ReasonMalformed    Reason = "malformed"
	ReasonBadSignature Reason = "bad_signature"
	ReasonUnknown      Reason = "unknown"
	ReasonInactiveUser Reason = "inactive_user"
	ReasonExpired      Reason = "expired"
	ReasonRevoked      Reason = "revoked"
)

// RequiresReauth reports whether the device must sign in with a password again.
func (r Reason) RequiresReauth() bool {
	switch r {
	case ReasonExpired, ReasonRevoked, ReasonInactiveUser:
		return true
	}
	return false
}

// VerifyResult is the outcome of Verify. Info is set only when Valid.
type VerifyResult struct {
	Valid  bool
	Reason Reason
	Info   *CredentialInfo
}

// Verify authenticates a presented credential. Storage faults are returned as
// errors and never folded into a Reason.
func (m *Manager) Verify(ctx context.Context, raw string, origin Origin) (VerifyResult, error) {
	c, err := ParseCredential(raw, m.secret)
	switch {
	case errors.Is(err, errBadSignature):
		return m.reject(ctx, raw, ReasonBadSignature, "", origin), nil
	case err != nil:
		return m.reject(ctx, raw, ReasonMalformed, "", origin), nil
	}

	tokens := m.store.DeviceTokens(ctx)
	tok, user, err := tokens.FindByToken(ctx, raw, c.UserID, c.DeviceID)
	if errors.Is(err, ErrNotFound) {
		return m.reject(ctx, raw, ReasonUnknown, c.UserID, origin), nil
	}
	if err != nil {
		return VerifyResult{}, fmt.Errorf("find device token: %w", err)
	}
	// Expired rows are revoked on first observation whatever the owner's state.
	var reason Reason
	now := m.now()
	switch state := tok.State(now); state {
	case StateExpired:
		if _, err := Transition(state, EventRevoke); err != nil {
			return VerifyResult{}, err
		}
		if err := tokens.MarkRevoked(ctx, tok.ID, systemActor, now); err != nil {
			return VerifyResult{}, fmt.Errorf("revoke expired token: %w", err)
		}
		m.record(ctx, audit.Event{
			Action:     "device_token_expired",
			EntityType: "device_token",
			EntityID:   tok.ID,
			UserID:     tok.UserID,
			NewData:    map[string]any{"deviceId": tok.DeviceID, "expiresAt": tok.ExpiresAt},
		}, origin)
		reason = ReasonExpired
	case StateRevoked:
		reason = ReasonRevoked
	}
	if user == nil || !user.IsActive {
		reason = ReasonInactiveUser
	}
	if reason != "" {
		return m.reject(ctx, raw, reason, c.UserID, origin), nil
	}

	if err := tokens.Touch(ctx, tok.ID, now, origin); err != nil {
		return VerifyResult{}, fmt.Errorf("touch device token: %w", err)
	}
	tok.LastUsed = now
	obs.DeviceVerification("ok")
	info := infoFor(tok, user)
	return VerifyResult{Valid: true, Info: &info}, nil
}

func (m *Manager) reject(ctx context.Context, raw string, reason Reason, userID string, origin Origin) VerifyResult {
	obs.DeviceVerification(string(reason))
	m.record(ctx, audit.Event{
		Action:     "token_verification_failed",
		EntityType: "device_token",
		UserID:     userID,
		Severity:   audit.SeverityWarning,
		NewData:    map[string]any{"reason": string(reason), "tokenPrefix": TokenPrefix(raw)},
	}, origin)
	return VerifyResult{Reason: reason}
}

// Identify resolves a signature-valid credential to its row and owner in any
// lifecycle state. It has no side effects.
func (m *Manager) Identify(ctx context.Context, raw string) (CredentialInfo, error) {
	c, err := ParseCredential(raw, m.secret)
	if err != nil {
		return CredentialInfo{}, ErrInvalidCredentials
	}
	tok, user, err := m.store.DeviceTokens(ctx).FindByToken(ctx, raw, c.UserID, c.DeviceID)
	if errors.Is(err, ErrNotFound) || (err == nil && user == nil) {
		return CredentialInfo{}, ErrInvalidCredentials
	}
	if err != nil {
		return CredentialInfo{}, fmt.Errorf("find device token: %w", err)
	}
	return infoFor(tok, user), nil
}

// RefreshResult carries the rotated credential and refresh artifact.
type RefreshResult struct {
	DeviceToken      string
	ExpiresAt        time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
}

// Refresh rotates the credential bound to (artifact subject, deviceID). The
// existing row may be expired but must not be revoked.
func (m *Manager) Refresh(ctx context.Context, artifact, deviceID string, origin Origin) (RefreshResult, error) {
	claims, err := m.refresh.parse(artifact, m.now)
	if err != nil {
		return RefreshResult{}, ErrInvalidRefresh
	}
	if claims.DeviceID != deviceID {
		return RefreshResult{}, ErrInvalidRefresh
	}
	user, err := m.store.Users(ctx).Find(ctx, claims.Subject)
	if errors.Is(err, ErrNotFound) {
		return RefreshResult{}, ErrInvalidRefresh
	}
	if err != nil {
		return RefreshResult{}, fmt.Errorf("find user: %w", err)
	}
	if !user.IsActive {
		return RefreshResult{}, ErrInvalidRefresh
	}

	tokens := m.store.DeviceTokens(ctx)
	tok, err := tokens.FindActive(ctx, user.ID, deviceID)
	if errors.Is(err, ErrNotFound) {
		return RefreshResult{}, ErrNoActiveCredential
	}
	if err != nil {
		return RefreshResult{}, fmt.Errorf("find device token: %w", err)
	}
	if !subtleCompare(tok.RefreshID, claims.ID) {
		m.rejectRefresh(ctx, tok, origin)
		return RefreshResult{}, ErrInvalidRefresh
	}
	now := m.now()
	if _, err := Transition(tok.State(now), EventRefresh); err != nil {
		return RefreshResult{}, ErrNoActiveCredential
	}

	token, err := m.Issue(user.ID, deviceID)
	if err != nil {
		return RefreshResult{}, err
	}
	refreshID := uuid.NewString()
	refresh, refreshExp, err := m.refresh.mint(user.ID, deviceID, refreshID, now)
	if err != nil {
		return RefreshResult{}, err
	}
	expiresAt := now.Add(m.credentialTTL)
	err = tokens.Rotate(ctx, tok.ID, Rotation{
		Token:         token,
		RefreshID:     refreshID,
		PrevRefreshID: claims.ID,
		ExpiresAt:     expiresAt,
		At:            now,
	})
	if errors.Is(err, ErrNotFound) {
		// revoked or rotated by a concurrent refresh
		m.rejectRefresh(ctx, tok, origin)
		return RefreshResult{}, ErrInvalidRefresh
	}
	if err != nil {
		return RefreshResult{}, fmt.Errorf("rotate device token: %w", err)
	}

	m.record(ctx, audit.Event{
		Action:     "device_token_refreshed",
		EntityType: "device_token",
		EntityID:   tok.ID,
		UserID:     user.ID,
		OldData:    map[string]any{"expiresAt": tok.ExpiresAt},
		NewData:    map[string]any{"deviceId": deviceID, "expiresAt": expiresAt},
	}, origin)

	return RefreshResult{
		DeviceToken:      token,
		ExpiresAt:        expiresAt,
		RefreshToken:     refresh,
		RefreshExpiresAt: refreshExp,
	}, nil
}

// rejectRefresh audits an artifact that no longer matches its row: one already
// rotated away, or one minted for a credential that has since been replaced.
func (m *Manager) rejectRefresh(ctx context.Context, tok *DeviceToken, origin Origin) {
	m.record(ctx, audit.Event{
		Action:     "refresh_token_rejected",
		EntityType: "device_token",
		EntityID:   tok.ID,
		UserID:     tok.UserID,
		Severity:   audit.SeverityWarning,
		NewData:    map[string]any{"deviceId": tok.DeviceID, "reason": "stale_refresh_token"},
	}, origin)
}

// Revoke marks the credential revoked. Repeat calls succeed and keep the
// original revocation metadata.
func (m *Manager) Revoke(ctx context.Context, credentialID, revokedBy string) (bool, error) {
	if err := m.store.DeviceTokens(ctx).MarkRevoked(ctx, credentialID, revokedBy, m.now()); err != nil {
		return false, fmt.Errorf("revoke device token: %w", err)
	}
	return true, nil
}

// FindForRevocation resolves a row by its uuid or by a signature-valid raw
// credential, whatever its lifecycle state.
func (m *Manager) FindForRevocation(ctx context.Context, idOrToken string) (*DeviceToken, error) {
	idOrToken = strings.TrimSpace(idOrToken)
	if idOrToken == "" {
		return nil, ErrNotFound
	}
	tokens := m.store.DeviceTokens(ctx)
	if _, err := uuid.Parse(idOrToken); err == nil {
		return tokens.FindByID(ctx, idOrToken)
	}
	c, err := ParseCredential(idOrToken, m.secret)
	if err != nil {
		return nil, ErrNotFound
	}
	tok, _, err := tokens.FindByToken(ctx, idOrToken, c.UserID, c.DeviceID)
	return tok, err
}

// RevokeOwned revokes idOrToken on behalf of caller, who must own it.
func (m *Manager) RevokeOwned(ctx context.Context, caller Identity, idOrToken string) error {
	tok, err := m.FindForRevocation(ctx, idOrToken)
	if err != nil {
		return err
	}
	if tok.UserID != caller.UserID {
		return ErrForbidden
	}
	if tok.Revoked {
		return ErrAlreadyRevoked
	}
	if _, err := m.Revoke(ctx, tok.ID, caller.UserID); err != nil {
		return err
	}
	m.record(ctx, audit.Event{
		Action:     "device_token_revoked",
		EntityType: "device_token",
		EntityID:   tok.ID,
		UserID:     caller.UserID,
		OldData:    map[string]any{"isRevoked": false},
		NewData:    map[string]any{"isRevoked": true, "deviceId": tok.DeviceID},
	}, OriginFromContext(ctx))
	return nil
}

// ListForUser returns every credential of the user, most recently used first.
func (m *Manager) ListForUser(ctx context.Context, userID string) ([]DeviceToken, error) {
	list, err := m.store.DeviceTokens(ctx).ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list device tokens: %w", err)
	}
	return list, nil
}

// RevokeAll revokes every non-revoked credential of the user, the calling one included.
func (m *Manager) RevokeAll(ctx context.Context, userID, revokedBy string) (int, error) {
	n, err := m.store.DeviceTokens(ctx).RevokeAllForUser(ctx, userID, revokedBy, m.now())
	if err != nil {
		return 0, fmt.Errorf("revoke all device tokens: %w", err)
	}
	m.record(ctx, audit.Event{
		Action:     "all_device_tokens_revoked",
		EntityType: "device_token",
		UserID:     revokedBy,
		NewData:    map[string]any{"revokedCount": n, "userId": userID},
	}, OriginFromContext(ctx))
	return n, nil
}

// Logout revokes the presented credential. A non-empty requestedDeviceID must
// match the authenticated device.
func (m *Manager) Logout(ctx context.Context, info CredentialInfo, requestedDeviceID string) error {
	if requestedDeviceID != "" && requestedDeviceID != info.DeviceID {
		return ErrDeviceMismatch
	}
	if _, err := m.Revoke(ctx, info.TokenID, info.User.UserID); err != nil {
		return err
	}
	m.record(ctx, audit.Event{
		Action:     "device_logout",
		EntityType: "device_token",
		EntityID:   info.TokenID,
		UserID:     info.User.UserID,
		NewData:    map[string]any{"deviceId": info.DeviceID},
	}, OriginFromContext(ctx))
	return nil
}

func (m *Manager) record(ctx context.Context, ev audit.Event, origin Origin) {
	ev.IPAddress = origin.IPAddress
	ev.UserAgent = origin.UserAgent
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = m.now()
	}
	if err := m.auditor.Record(ctx, ev); err != nil {
		obs.Logger().ErrorContext(ctx, "audit record failed", "action", ev.Action, "error", err)
	}
}

func infoFor(tok *DeviceToken, user *User) CredentialInfo {
	return CredentialInfo{
		TokenID:    tok.ID,
		DeviceID:   tok.DeviceID,
		Token:      tok.Token,
		DeviceInfo: tok.DeviceInfo,
		ExpiresAt:  tok.ExpiresAt,
		LastUsed:   tok.LastUsed,
		User:       user.Identity(),
	}
}
