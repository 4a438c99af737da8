package bulksync

import (
	"context"
	"errors"

	"surveysync.org/internal/survey"
)

var (
	// ErrDuplicate reports a unique violation on the survey natural id.
	ErrDuplicate = errors.New("bulksync: duplicate survey")
	// ErrSchoolNotFound reports an unknown school id.
	ErrSchoolNotFound = errors.New("bulksync: school not found")
	// ErrNotFound reports a missing survey record.
	ErrNotFound = errors.New("bulksync: not found")

	ErrMissingForms  = errors.New("bulksync: forms array is required")
	ErrMissingKey    = errors.New("bulksync: encryption key is required")
	ErrBatchTooLarge = errors.New("bulksync: too many forms in one batch")

	ErrPartnerRequired  = errors.New("bulksync: partner id is required")
	ErrPartnerForbidden = errors.New("bulksync: schools of another partner")
)

// School is the authorization scope of a survey. PartnerID is the partner
// owning the school's district.
type School struct {
	ID           string
	Name         string
	Code         string
	DistrictID   string
	DistrictName string
	PartnerID    string
	Address      string
	SchoolType   string
	AreaType     string
	IsActive     bool
}

// Store describes persistence operations required by the sync subsystem.
type Store interface {
	Schools(ctx context.Context) SchoolStore
	Surveys(ctx context.Context) SurveyStore
}

// SchoolStore resolves schools.
type SchoolStore interface {
	Find(ctx context.Context, id string) (*School, error)
	// ListByPartner returns the partner's active schools ordered by name.
	ListByPartner(ctx context.Context, partnerID string) ([]School, error)
}

// SurveyStore manages survey records keyed by their natural id.
type SurveyStore interface {
	// Insert assigns ID and reports ErrDuplicate when the natural id exists.
	Insert(ctx context.Context, rec *survey.Record) error
	FindByUniqueID(ctx context.Context, uniqueID string) (*survey.Record, error)
	// FindByUniqueIDs returns the subset of ids that exist, keyed by natural id.
	FindByUniqueIDs(ctx context.Context, uniqueIDs []string) (map[string]*survey.Record, error)
	ListBySubmitter(ctx context.Context, userID string) ([]survey.Record, error)
}
