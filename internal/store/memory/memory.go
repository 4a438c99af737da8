// Package memory holds in-process stores that enforce the same unique
// constraints as the Postgres schema. It backs tests and the API when no DSN
// is configured.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"surveysync.org/internal/auth"
	"surveysync.org/internal/bulksync"
	"surveysync.org/internal/survey"
)

var (
	_ auth.Store     = (*Store)(nil)
	_ bulksync.Store = (*Store)(nil)
)

// Store keeps all tables behind one mutex.
type Store struct {
	mu       sync.RWMutex
	now      func() time.Time
	partners map[string]string
	users    map[string]*auth.User
	tokens   map[string]*auth.DeviceToken
	schools  map[string]*bulksync.School
	surveys  map[string]*survey.Record
	naturals map[string]string
}

// New returns an empty store.
func New() *Store {
	return &Store{
		now:      time.Now,
		partners: make(map[string]string),
		users:    make(map[string]*auth.User),
		tokens:   make(map[string]*auth.DeviceToken),
		schools:  make(map[string]*bulksync.School),
		surveys:  make(map[string]*survey.Record),
		naturals: make(map[string]string),
	}
}

func (s *Store) Users(context.Context) auth.UserStore               { return userStore{s} }
func (s *Store) DeviceTokens(context.Context) auth.DeviceTokenStore { return tokenStore{s} }
func (s *Store) Schools(context.Context) bulksync.SchoolStore       { return schoolStore{s} }
func (s *Store) Surveys(context.Context) bulksync.SurveyStore       { return surveyStore{s} }

// AddPartner registers a partner name.
func (s *Store) AddPartner(id, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.partners[id] = name
}

// AddSchool registers a school. PartnerID is the district's owning partner.
func (s *Store) AddSchool(school bulksync.School) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sc := school
	s.schools[school.ID] = &sc
}

// SetUserActive flips the account flag.
func (s *Store) SetUserActive(userID string, active bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[userID]; ok {
		u.IsActive = active
	}
}

// ActiveTokenCount counts non-revoked rows for the pair.
func (s *Store) ActiveTokenCount(userID, deviceID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, t := range s.tokens {
		if t.UserID == userID && t.DeviceID == deviceID && !t.Revoked {
			n++
		}
	}
	return n
}

// SurveyCount counts persisted records.
func (s *Store) SurveyCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.surveys)
}

// Users ----------------------------------------------------------------------
type userStore struct{ s *Store }

func (u userStore) Create(_ context.Context, user *auth.User) error {
	u.s.mu.Lock()
	defer u.s.mu.Unlock()
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	user.Email = auth.NormalizeEmail(user.Email)
	for _, existing := range u.s.users {
		if existing.Email == user.Email {
			return auth.ErrInvalidInput
		}
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = u.s.now()
	}
	cp := *user
	u.s.users[user.ID] = &cp
	return nil
}

func (u userStore) Find(_ context.Context, id string) (*auth.User, error) {
	u.s.mu.RLock()
	defer u.s.mu.RUnlock()
	user, ok := u.s.users[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	cp := *user
	return &cp, nil
}

func (u userStore) FindActiveByEmail(_ context.Context, email string) (*auth.User, error) {
	email = auth.NormalizeEmail(email)
	u.s.mu.RLock()
	defer u.s.mu.RUnlock()
	for _, user := range u.s.users {
		if user.Email == email && user.IsActive {
			cp := *user
			return &cp, nil
		}
	}
	return nil, auth.ErrNotFound
}

func (u userStore) TouchLogin(_ context.Context, userID string, at time.Time) error {
	u.s.mu.Lock()
	defer u.s.mu.Unlock()
	if user, ok := u.s.users[userID]; ok {
		at := at
		user.LastLoginAt = &at
	}
	return nil
}

func (u userStore) PartnerName(_ context.Context, partnerID string) (string, error) {
	u.s.mu.RLock()
	defer u.s.mu.RUnlock()
	return u.s.partners[partnerID], nil
}

// Device tokens --------------------------------------------------------------
type tokenStore struct{ s *Store }

func (t tokenStore) Upsert(_ context.Context, tok *auth.DeviceToken) error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	now := t.s.now()
	for _, existing := range t.s.tokens {
		if existing.UserID == tok.UserID && existing.DeviceID == tok.DeviceID && !existing.Revoked {
			existing.Token = tok.Token
			existing.RefreshID = tok.RefreshID
			existing.DeviceInfo = tok.DeviceInfo
			existing.ExpiresAt = tok.ExpiresAt
			existing.LastUsed = tok.LastUsed
			existing.IPAddress = tok.IPAddress
			existing.UserAgent = tok.UserAgent
			existing.UpdatedAt = now
			tok.ID = existing.ID
			tok.CreatedAt = existing.CreatedAt
			return nil
		}
	}
	if tok.ID == "" {
		tok.ID = uuid.NewString()
	}
	tok.CreatedAt = now
	tok.UpdatedAt = now
	cp := *tok
	t.s.tokens[tok.ID] = &cp
	return nil
}

func (t tokenStore) FindByID(_ context.Context, id string) (*auth.DeviceToken, error) {
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	tok, ok := t.s.tokens[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	cp := *tok
	return &cp, nil
}

func (t tokenStore) FindByToken(_ context.Context, token, userID, deviceID string) (*auth.DeviceToken, *auth.User, error) {
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	for _, tok := range t.s.tokens {
		if tok.Token != token || tok.UserID != userID || tok.DeviceID != deviceID {
			continue
		}
		user, ok := t.s.users[tok.UserID]
		if !ok {
			return nil, nil, auth.ErrNotFound
		}
		tc, uc := *tok, *user
		return &tc, &uc, nil
	}
	return nil, nil, auth.ErrNotFound
}

func (t tokenStore) FindActive(_ context.Context, userID, deviceID string) (*auth.DeviceToken, error) {
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	for _, tok := range t.s.tokens {
		if tok.UserID == userID && tok.DeviceID == deviceID && !tok.Revoked {
			cp := *tok
			return &cp, nil
		}
	}
	return nil, auth.ErrNotFound
}

func (t tokenStore) Touch(_ context.Context, id string, at time.Time, origin auth.Origin) error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	tok, ok := t.s.tokens[id]
	if !ok {
		return auth.ErrNotFound
	}
	tok.LastUsed = at
	tok.IPAddress = origin.IPAddress
	tok.UserAgent = origin.UserAgent
	tok.UpdatedAt = at
	return nil
}

func (t tokenStore) Rotate(_ context.Context, id string, r auth.Rotation) error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	tok, ok := t.s.tokens[id]
	if !ok || tok.Revoked || tok.RefreshID != r.PrevRefreshID {
		return auth.ErrNotFound
	}
	tok.Token = r.Token
	tok.RefreshID = r.RefreshID
	tok.ExpiresAt = r.ExpiresAt
	tok.LastUsed = r.At
	tok.UpdatedAt = r.At
	return nil
}

func (t tokenStore) MarkRevoked(_ context.Context, id, revokedBy string, at time.Time) error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	tok, ok := t.s.tokens[id]
	if !ok {
		return auth.ErrNotFound
	}
	revoke(tok, revokedBy, at)
	return nil
}

func (t tokenStore) RevokeAllForUser(_ context.Context, userID, revokedBy string, at time.Time) (int, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	n := 0
	for _, tok := range t.s.tokens {
		if tok.UserID == userID && !tok.Revoked {
			revoke(tok, revokedBy, at)
			n++
		}
	}
	return n, nil
}

func revoke(tok *auth.DeviceToken, revokedBy string, at time.Time) {
	tok.UpdatedAt = at
	if tok.Revoked {
		return
	}
	tok.Revoked = true
	revokedAt := at
	tok.RevokedAt = &revokedAt
	tok.RevokedBy = revokedBy
}

func (t tokenStore) ListByUser(_ context.Context, userID string) ([]auth.DeviceToken, error) {
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	var out []auth.DeviceToken
	for _, tok := range t.s.tokens {
		if tok.UserID == userID {
			out = append(out, *tok)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastUsed.After(out[j].LastUsed) })
	return out, nil
}

// Schools --------------------------------------------------------------------
type schoolStore struct{ s *Store }

func (sc schoolStore) Find(_ context.Context, id string) (*bulksync.School, error) {
	sc.s.mu.RLock()
	defer sc.s.mu.RUnlock()
	school, ok := sc.s.schools[id]
	if !ok {
		return nil, bulksync.ErrSchoolNotFound
	}
	cp := *school
	return &cp, nil
}

func (sc schoolStore) ListByPartner(_ context.Context, partnerID string) ([]bulksync.School, error) {
	sc.s.mu.RLock()
	defer sc.s.mu.RUnlock()
	out := []bulksync.School{}
	for _, school := range sc.s.schools {
		if school.PartnerID == partnerID && school.IsActive {
			out = append(out, *school)
		}
	}
	sort.Slice(out, func(i, j int) bool { return strings.ToLower(out[i].Name) < strings.ToLower(out[j].Name) })
	return out, nil
}

// Surveys --------------------------------------------------------------------
type surveyStore struct{ s *Store }

func (ss surveyStore) Insert(_ context.Context, rec *survey.Record) error {
	ss.s.mu.Lock()
	defer ss.s.mu.Unlock()
	if _, taken := ss.s.naturals[rec.SurveyUniqueID]; taken {
		return bulksync.ErrDuplicate
	}
	if _, ok := ss.s.schools[rec.SchoolID]; !ok {
		return bulksync.ErrSchoolNotFound
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	cp := *rec
	ss.s.surveys[rec.ID] = &cp
	ss.s.naturals[rec.SurveyUniqueID] = rec.ID
	return nil
}

func (ss surveyStore) FindByUniqueID(_ context.Context, uniqueID string) (*survey.Record, error) {
	ss.s.mu.RLock()
	defer ss.s.mu.RUnlock()
	id, ok := ss.s.naturals[uniqueID]
	if !ok {
		return nil, bulksync.ErrNotFound
	}
	cp := *ss.s.surveys[id]
	return &cp, nil
}

func (ss surveyStore) FindByUniqueIDs(_ context.Context, uniqueIDs []string) (map[string]*survey.Record, error) {
	ss.s.mu.RLock()
	defer ss.s.mu.RUnlock()
	out := make(map[string]*survey.Record)
	for _, uid := range uniqueIDs {
		if id, ok := ss.s.naturals[uid]; ok {
			cp := *ss.s.surveys[id]
			out[uid] = &cp
		}
	}
	return out, nil
}

func (ss surveyStore) ListBySubmitter(_ context.Context, userID string) ([]survey.Record, error) {
	ss.s.mu.RLock()
	defer ss.s.mu.RUnlock()
	var out []survey.Record
	for _, rec := range ss.s.surveys {
		if rec.SubmittedBy == userID {
			out = append(out, *rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SubmittedAt.After(out[j].SubmittedAt) })
	return out, nil
}
