package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"surveysync.org/internal/bulksync"
	"surveysync.org/internal/survey"
)

type surveyStore struct{ db *sql.DB }

const surveyColumns = `id, survey_unique_id, form_data, survey_date, coalesce(partner_id::text, ''),
	submitted_by, submitted_at, team_edit_deadline, partner_edit_deadline, created_at`

func scanSurvey(row rowScanner) (survey.Record, error) {
	var (
		rec     survey.Record
		rawForm []byte
	)
	if err := row.Scan(&rec.ID, &rec.SurveyUniqueID, &rawForm, &rec.SurveyDay, &rec.PartnerID,
		&rec.SubmittedBy, &rec.SubmittedAt, &rec.Deadlines.Team, &rec.Deadlines.Partner, &rec.CreatedAt); err != nil {
		return survey.Record{}, err
	}
	uniqueID := rec.SurveyUniqueID
	if len(rawForm) > 0 {
		if err := json.Unmarshal(rawForm, &rec.Form); err != nil {
			return survey.Record{}, fmt.Errorf("decode form data: %w", err)
		}
	}
	rec.SurveyUniqueID = uniqueID
	return rec, nil
}

// Insert maps a unique violation to ErrDuplicate. A school or district that
// does not exist, or is not a uuid, maps to ErrSchoolNotFound.
func (s *surveyStore) Insert(ctx context.Context, rec *survey.Record) error {
	if !isUUID(rec.SchoolID) || (rec.DistrictID != "" && !isUUID(rec.DistrictID)) {
		return bulksync.ErrSchoolNotFound
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	form, err := json.Marshal(rec.Form)
	if err != nil {
		return fmt.Errorf("encode form data: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		insert into survey_responses(
			id, survey_unique_id, local_id, school_id, district_id, partner_id,
			survey_date, student_name, form_data, submitted_by, submitted_at,
			team_edit_deadline, partner_edit_deadline, created_at)
		values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
	`, rec.ID, rec.SurveyUniqueID, rec.LocalID, rec.SchoolID, nullIfEmpty(rec.DistrictID), nullIfEmpty(rec.PartnerID),
		rec.SurveyDay, rec.StudentName, form, rec.SubmittedBy, rec.SubmittedAt,
		rec.Deadlines.Team, rec.Deadlines.Partner, rec.CreatedAt)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok {
			switch pgErr.Code {
			case pgErrUniqueViolation:
				return bulksync.ErrDuplicate
			case pgErrForeignKeyViolation:
				return bulksync.ErrSchoolNotFound
			}
		}
		return err
	}
	return nil
}

func (s *surveyStore) FindByUniqueID(ctx context.Context, uniqueID string) (*survey.Record, error) {
	row := s.db.QueryRowContext(ctx, `select `+surveyColumns+` from survey_responses where survey_unique_id = $1`, uniqueID)
	rec, err := scanSurvey(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, bulksync.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *surveyStore) FindByUniqueIDs(ctx context.Context, uniqueIDs []string) (map[string]*survey.Record, error) {
	out := make(map[string]*survey.Record, len(uniqueIDs))
	if len(uniqueIDs) == 0 {
		return out, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`select `+surveyColumns+` from survey_responses where survey_unique_id = any($1)`, uniqueIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		rec, err := scanSurvey(rows)
		if err != nil {
			return nil, err
		}
		out[rec.SurveyUniqueID] = &rec
	}
	return out, rows.Err()
}

func (s *surveyStore) ListBySubmitter(ctx context.Context, userID string) ([]survey.Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`select `+surveyColumns+` from survey_responses where submitted_by = $1 order by submitted_at desc`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []survey.Record
	for rows.Next() {
		rec, err := scanSurvey(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
