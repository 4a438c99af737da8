package survey

import (
	"errors"
	"strings"
	"time"
)

// ErrInvalidDate is returned when a survey date cannot be parsed.
var ErrInvalidDate = errors.New("survey: invalid survey date")

var dateLayouts = []string{"2006-01-02", time.RFC3339Nano, time.RFC3339}

// Form is the questionnaire payload as sent by a field device.
type Form struct {
	LocalID        string `json:"localId"`
	SurveyUniqueID string `json:"surveyUniqueId"`

	// Section A: basic details
	SurveyDate  string `json:"surveyDate"`
	DistrictID  string `json:"districtId"`
	AreaType    string `json:"areaType"`
	SchoolID    string `json:"schoolId"`
	SchoolType  string `json:"schoolType"`
	Class       int    `json:"class"`
	Section     string `json:"section"`
	RollNo      string `json:"rollNo"`
	StudentName string `json:"studentName"`
	Sex         string `json:"sex"`
	Age         int    `json:"age"`
	Consent     string `json:"consent"`

	// Section B: distance vision
	UsesDistanceGlasses   bool    `json:"usesDistanceGlasses"`
	UnaidedVARightEye     *string `json:"unaidedVaRightEye,omitempty"`
	UnaidedVALeftEye      *string `json:"unaidedVaLeftEye,omitempty"`
	PresentingVARightEye  string  `json:"presentingVaRightEye"`
	PresentingVALeftEye   string  `json:"presentingVaLeftEye"`
	ReferredForRefraction bool    `json:"referredForRefraction"`

	// Section C: refraction
	SphericalPowerRight   *float64 `json:"sphericalPowerRight,omitempty"`
	SphericalPowerLeft    *float64 `json:"sphericalPowerLeft,omitempty"`
	CylindricalPowerRight *float64 `json:"cylindricalPowerRight,omitempty"`
	CylindricalPowerLeft  *float64 `json:"cylindricalPowerLeft,omitempty"`
	AxisRight             *int     `json:"axisRight,omitempty"`
	AxisLeft              *int     `json:"axisLeft,omitempty"`
	BCVARightEye          *string  `json:"bcvaRightEye,omitempty"`
	BCVALeftEye           *string  `json:"bcvaLeftEye,omitempty"`

	// Section D: main cause
	CauseRightEye      *string `json:"causeRightEye,omitempty"`
	CauseRightEyeOther *string `json:"causeRightEyeOther,omitempty"`
	CauseLeftEye       *string `json:"causeLeftEye,omitempty"`
	CauseLeftEyeOther  *string `json:"causeLeftEyeOther,omitempty"`

	// Section E: barriers
	Barrier1 *string `json:"barrier1,omitempty"`
	Barrier2 *string `json:"barrier2,omitempty"`

	// Section F: follow-up
	TimeSinceLastCheckup        *string `json:"timeSinceLastCheckup,omitempty"`
	PlaceOfLastRefraction       *string `json:"placeOfLastRefraction,omitempty"`
	CostOfGlasses               *string `json:"costOfGlasses,omitempty"`
	UsesSpectacleRegularly      *bool   `json:"usesSpectacleRegularly,omitempty"`
	SpectacleAlignmentCentering *bool   `json:"spectacleAlignmentCentering,omitempty"`
	SpectacleScratches          *string `json:"spectacleScratches,omitempty"`
	SpectacleFrameIntegrity     *string `json:"spectacleFrameIntegrity,omitempty"`

	// Section G: advice
	SpectaclesPrescribed      bool `json:"spectaclesPrescribed"`
	ReferredToOphthalmologist bool `json:"referredToOphthalmologist"`

	SubmittedAt *time.Time `json:"submittedAt,omitempty"`
}

// RequiredFields lists the payload keys a direct submission must carry.
var RequiredFields = []string{
	"localId", "surveyUniqueId", "surveyDate", "districtId", "areaType",
	"schoolId", "schoolType", "class", "section", "rollNo", "studentName",
	"sex", "age", "consent", "usesDistanceGlasses", "presentingVaRightEye",
	"presentingVaLeftEye", "referredForRefraction", "spectaclesPrescribed",
	"referredToOphthalmologist",
}

// Record is a persisted survey response.
type Record struct {
	Form

	ID          string
	SurveyDay   time.Time
	PartnerID   string
	SubmittedBy string
	SubmittedAt time.Time
	Deadlines   Deadlines
	CreatedAt   time.Time
}

// NewRecord stamps a form with submission metadata. Deadlines always derive
// from now, the server receive time; the client-reported submittedAt is kept
// only as the record's submission timestamp.
func NewRecord(f Form, partnerID, submittedBy string, now time.Time) (*Record, error) {
	submittedAt := now
	if f.SubmittedAt != nil && !f.SubmittedAt.IsZero() {
		submittedAt = f.SubmittedAt.UTC()
	}
	day := submittedAt
	if strings.TrimSpace(f.SurveyDate) != "" {
		parsed, err := ParseSurveyDate(f.SurveyDate)
		if err != nil {
			return nil, err
		}
		day = parsed
	}
	f.StudentName = strings.TrimSpace(f.StudentName)
	f.SubmittedAt = nil
	return &Record{
		Form:        f,
		SurveyDay:   day,
		PartnerID:   partnerID,
		SubmittedBy: submittedBy,
		SubmittedAt: submittedAt,
		Deadlines:   ComputeEditDeadlines(now),
		CreatedAt:   now,
	}, nil
}

// ParseSurveyDate accepts a calendar date or an RFC 3339 timestamp.
func ParseSurveyDate(v string) (time.Time, error) {
	v = strings.TrimSpace(v)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, ErrInvalidDate
}
