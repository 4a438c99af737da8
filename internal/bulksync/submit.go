package bulksync

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"

	"surveysync.org/internal/audit"
	"surveysync.org/internal/auth"
	"surveysync.org/internal/stream"
	"surveysync.org/internal/survey"
)

// Submit persists one record sent outside a batch. There is no checksum, but
// every field in survey.RequiredFields must be present. Storage faults are
// returned as errors.
func (p *Processor) Submit(ctx context.Context, payload []byte, user auth.Identity, origin auth.Origin) (Outcome, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(payload, &fields); err != nil {
		return failure("", KindMalformed, MsgStructure), nil
	}
	for _, name := range survey.RequiredFields {
		raw, ok := fields[name]
		if !ok || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
			return failure("", KindMalformed, MsgMissingField+name), nil
		}
	}
	var form survey.Form
	if err := json.Unmarshal(payload, &form); err != nil {
		return failure("", KindMalformed, MsgStructure), nil
	}
	if !survey.ValidateUniqueID(form.SurveyUniqueID) {
		return failure(form.LocalID, KindInvalidIdentifier, MsgInvalidUniqueID), nil
	}

	out, denial, err := p.accept(ctx, form, user)
	if err != nil {
		return Outcome{}, err
	}
	switch out.Kind {
	case KindAccessDenied:
		p.record(ctx, audit.Event{
			Action:     "survey_submission_unauthorized",
			EntityType: "survey_response",
			UserID:     user.UserID,
			Severity:   audit.SeverityWarning,
			NewData: map[string]any{
				"schoolId":       form.SchoolID,
				"reason":         denial,
				"surveyUniqueId": form.SurveyUniqueID,
				"localId":        form.LocalID,
			},
		}, origin)
	case KindDuplicate:
		p.record(ctx, audit.Event{
			Action:     "survey_duplicate_submission",
			EntityType: "survey_response",
			EntityID:   out.ExistingID,
			UserID:     user.UserID,
			NewData: map[string]any{
				"surveyUniqueId": form.SurveyUniqueID,
				"localId":        form.LocalID,
				"existingId":     out.ExistingID,
			},
		}, origin)
	case KindSuccess:
		p.record(ctx, audit.Event{
			Action:     "create",
			EntityType: "survey_response",
			EntityID:   out.SurveyID,
			UserID:     user.UserID,
			NewData: map[string]any{
				"surveyUniqueId": form.SurveyUniqueID,
				"localId":        form.LocalID,
				"schoolId":       form.SchoolID,
			},
		}, origin)
	}
	p.countItem(string(out.Kind))
	succeeded := 0
	if out.Success() {
		succeeded = 1
	}
	p.publish(stream.SyncEvent{
		Kind:      stream.KindSubmit,
		UserID:    user.UserID,
		PartnerID: user.PartnerID,
		Total:     1,
		Succeeded: succeeded,
		Failed:    1 - succeeded,
		Outcomes:  map[string]int{string(out.Kind): 1},
	})
	return out, nil
}

// UniqueIDCheck answers the pre-submission availability probe.
type UniqueIDCheck struct {
	IsValid          bool
	Exists           bool
	ExistingSurveyID string
	Message          string
}

// CheckUniqueID validates the format of id and reports whether it is taken.
func (p *Processor) CheckUniqueID(ctx context.Context, id string) (UniqueIDCheck, error) {
	id = strings.TrimSpace(id)
	if !survey.ValidateUniqueID(id) {
		return UniqueIDCheck{
			Message: "Invalid survey unique ID format. Expected format: " + survey.UniqueIDFormat,
		}, nil
	}
	existing, err := p.store.Surveys(ctx).FindByUniqueID(ctx, id)
	switch {
	case err == nil:
		return UniqueIDCheck{
			IsValid:          true,
			Exists:           true,
			ExistingSurveyID: existing.ID,
			Message:          "Survey unique ID already exists",
		}, nil
	case isNotFound(err):
		return UniqueIDCheck{IsValid: true, Message: "Survey unique ID is available"}, nil
	default:
		return UniqueIDCheck{}, err
	}
}
