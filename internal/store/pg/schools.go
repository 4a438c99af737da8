package pg

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"

	"surveysync.org/internal/bulksync"
)

type schoolStore struct{ db *sql.DB }

const schoolColumns = `s.id, s.name, s.code, s.district_id, d.name, coalesce(d.partner_id::text, ''),
	coalesce(s.address, ''), s.school_type, s.area_type, s.is_active`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSchool(row rowScanner) (bulksync.School, error) {
	var sc bulksync.School
	err := row.Scan(&sc.ID, &sc.Name, &sc.Code, &sc.DistrictID, &sc.DistrictName, &sc.PartnerID,
		&sc.Address, &sc.SchoolType, &sc.AreaType, &sc.IsActive)
	return sc, err
}

// Find reports ErrSchoolNotFound for ids that cannot name a row, including
// values that do not parse as a uuid.
func (s *schoolStore) Find(ctx context.Context, id string) (*bulksync.School, error) {
	if !isUUID(id) {
		return nil, bulksync.ErrSchoolNotFound
	}
	row := s.db.QueryRowContext(ctx, `
		select `+schoolColumns+`
		from schools s
		join districts d on d.id = s.district_id
		where s.id = $1
	`, id)
	sc, err := scanSchool(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, bulksync.ErrSchoolNotFound
	}
	if err != nil {
		return nil, err
	}
	return &sc, nil
}

func (s *schoolStore) ListByPartner(ctx context.Context, partnerID string) ([]bulksync.School, error) {
	if !isUUID(partnerID) {
		return []bulksync.School{}, nil
	}
	rows, err := s.db.QueryContext(ctx, `
		select `+schoolColumns+`
		from schools s
		join districts d on d.id = s.district_id
		where d.partner_id = $1 and s.is_active
		order by s.name
	`, partnerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []bulksync.School{}
	for rows.Next() {
		sc, err := scanSchool(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sc)
	}
	return out, rows.Err()
}

func isUUID(v string) bool {
	_, err := uuid.Parse(v)
	return err == nil
}
