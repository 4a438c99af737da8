package auth

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

var _ Store = (*PGStore)(nil)

// PGStore implements Store using PostgreSQL.
type PGStore struct {
	db *sql.DB
}

func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) Users(context.Context) UserStore { return &userStore{db: s.db} }
func (s *PGStore) DeviceTokens(context.Context) DeviceTokenStore {
	return &deviceTokenStore{db: s.db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

// User store ---------------------------------------------------------------
type userStore struct{ db *sql.DB }

const userColumns = `u.id, u.email, u.name, u.role, coalesce(u.partner_id::text, ''), u.password_hash, u.is_active, u.last_login_at, u.created_at`

func scanUser(row rowScanner, u *User) error {
	var (
		role      string
		lastLogin sql.NullTime
	)
	if err := row.Scan(&u.ID, &u.Email, &u.Name, &role, &u.PartnerID, &u.PasswordHash, &u.IsActive, &lastLogin, &u.CreatedAt); err != nil {
		return err
	}
	u.Role = Role(role)
	if lastLogin.Valid {
		t := lastLogin.Time
		u.LastLoginAt = &t
	}
	return nil
}

func (s *userStore) Create(ctx context.Context, u *User) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	u.Email = NormalizeEmail(u.Email)
	_, err := s.db.ExecContext(ctx,
		`insert into users(id, email, name, role, partner_id, password_hash, is_active) values($1,$2,$3,$4,$5,$6,$7)`,
		u.ID, u.Email, u.Name, string(u.Role), nullString(u.PartnerID), u.PasswordHash, u.IsActive,
	)
	return err
}

func (s *userStore) Find(ctx context.Context, id string) (*User, error) {
	row := s.db.QueryRowContext(ctx, `select `+userColumns+` from users u where u.id=$1`, id)
	var u User
	if err := scanUser(row, &u); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

func (s *userStore) FindActiveByEmail(ctx context.Context, email string) (*User, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+userColumns+` from users u where u.email=$1 and u.is_active`, NormalizeEmail(email))
	var u User
	if err := scanUser(row, &u); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

func (s *userStore) TouchLogin(ctx context.Context, userID string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `update users set last_login_at=$2 where id=$1`, userID, at)
	return err
}

func (s *userStore) PartnerName(ctx context.Context, partnerID string) (string, error) {
	if strings.TrimSpace(partnerID) == "" {
		return "", nil
	}
	var name string
	err := s.db.QueryRowContext(ctx, `select name from partners where id=$1`, partnerID).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return name, err
}

// Device token store -------------------------------------------------------
type deviceTokenStore struct{ db *sql.DB }

const tokenColumns = `t.id, t.user_id, t.device_id, t.token, coalesce(t.refresh_jti, ''), coalesce(t.device_info, ''), t.expires_at, t.last_used,
	t.is_revoked, t.revoked_at, coalesce(t.revoked_by, ''), coalesce(t.ip_address, ''), coalesce(t.user_agent, ''),
	t.created_at, t.updated_at`

func scanToken(row rowScanner, extra ...any) (*DeviceToken, error) {
	var (
		t         DeviceToken
		revokedAt sql.NullTime
	)
	dest := []any{&t.ID, &t.UserID, &t.DeviceID, &t.Token, &t.RefreshID, &t.DeviceInfo, &t.ExpiresAt, &t.LastUsed,
		&t.Revoked, &revokedAt, &t.RevokedBy, &t.IPAddress, &t.UserAgent, &t.CreatedAt, &t.UpdatedAt}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	if revokedAt.Valid {
		at := revokedAt.Time
		t.RevokedAt = &at
	}
	return &t, nil
}

func (s *deviceTokenStore) Upsert(ctx context.Context, tok *DeviceToken) error {
	id := tok.ID
	if id == "" {
		id = uuid.NewString()
	}
	row := s.db.QueryRowContext(ctx,
		`insert into device_tokens(id, user_id, device_id, token, device_info, expires_at, last_used, ip_address, user_agent, refresh_jti)
		 values($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		 on conflict (user_id, device_id) where not is_revoked
		 do update set token=excluded.token, refresh_jti=excluded.refresh_jti, device_info=excluded.device_info, expires_at=excluded.expires_at,
		   last_used=excluded.last_used, ip_address=excluded.ip_address, user_agent=excluded.user_agent, updated_at=now()
		 returning id, created_at`,
		id, tok.UserID, tok.DeviceID, tok.Token, tok.DeviceInfo, tok.ExpiresAt, tok.LastUsed,
		nullString(tok.IPAddress), nullString(tok.UserAgent), nullString(tok.RefreshID),
	)
	return row.Scan(&tok.ID, &tok.CreatedAt)
}

func (s *deviceTokenStore) FindByID(ctx context.Context, id string) (*DeviceToken, error) {
	row := s.db.QueryRowContext(ctx, `select `+tokenColumns+` from device_tokens t where t.id=$1`, id)
	tok, err := scanToken(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return tok, err
}

func (s *deviceTokenStore) FindByToken(ctx context.Context, token, userID, deviceID string) (*DeviceToken, *User, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+tokenColumns+`, `+userColumns+`
		 from device_tokens t join users u on u.id = t.user_id
		 where t.token=$1 and t.user_id=$2 and t.device_id=$3`,
		token, userID, deviceID,
	)
	var (
		u         User
		role      string
		lastLogin sql.NullTime
	)
	tok, err := scanToken(row, &u.ID, &u.Email, &u.Name, &role, &u.PartnerID, &u.PasswordHash, &u.IsActive, &lastLogin, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil, ErrNotFound
	}
	if err != nil {
		return nil, nil, err
	}
	u.Role = Role(role)
	if lastLogin.Valid {
		at := lastLogin.Time
		u.LastLoginAt = &at
	}
	return tok, &u, nil
}

func (s *deviceTokenStore) FindActive(ctx context.Context, userID, deviceID string) (*DeviceToken, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+tokenColumns+` from device_tokens t where t.user_id=$1 and t.device_id=$2 and not t.is_revoked`,
		userID, deviceID)
	tok, err := scanToken(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return tok, err
}

func (s *deviceTokenStore) Touch(ctx context.Context, id string, at time.Time, origin Origin) error {
	_, err := s.db.ExecContext(ctx,
		`update device_tokens set last_used=$2, ip_address=$3, user_agent=$4, updated_at=$2 where id=$1`,
		id, at, nullString(origin.IPAddress), nullString(origin.UserAgent))
	return err
}

func (s *deviceTokenStore) Rotate(ctx context.Context, id string, r Rotation) error {
	res, err := s.db.ExecContext(ctx,
		`update device_tokens set token=$2, refresh_jti=$3, expires_at=$4, last_used=$5, updated_at=$5
		 where id=$1 and not is_revoked and refresh_jti=$6`,
		id, r.Token, r.RefreshID, r.ExpiresAt, r.At, r.PrevRefreshID)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (s *deviceTokenStore) MarkRevoked(ctx context.Context, id, revokedBy string, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`update device_tokens
		 set is_revoked=true, revoked_at=coalesce(revoked_at, $2), revoked_by=coalesce(revoked_by, $3), updated_at=$2
		 where id=$1`,
		id, at, nullString(revokedBy))
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (s *deviceTokenStore) RevokeAllForUser(ctx context.Context, userID, revokedBy string, at time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`update device_tokens set is_revoked=true, revoked_at=$2, revoked_by=$3, updated_at=$2
		 where user_id=$1 and not is_revoked`,
		userID, at, nullString(revokedBy))
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (s *deviceTokenStore) ListByUser(ctx context.Context, userID string) ([]DeviceToken, error) {
	rows, err := s.db.QueryContext(ctx,
		`select `+tokenColumns+` from device_tokens t where t.user_id=$1 order by t.last_used desc`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []DeviceToken
	for rows.Next() {
		tok, err := scanToken(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *tok)
	}
	return out, rows.Err()
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
