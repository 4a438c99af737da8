package bulksync

import (
	"context"
	"errors"
	"time"

	"surveysync.org/internal/audit"
	"surveysync.org/internal/auth"
)

// SubmittedSurvey is one record a user has already synced.
type SubmittedSurvey struct {
	ID             string
	SurveyUniqueID string
	SubmittedAt    time.Time
}

// StatusSummary answers GET sync/status.
type StatusSummary struct {
	Surveys      []SubmittedSurvey
	LastSyncTime time.Time
}

// Status lists the records submitted by the credential's user. LastSyncTime
// is the credential's last use.
func (p *Processor) Status(ctx context.Context, info auth.CredentialInfo) (StatusSummary, error) {
	records, err := p.store.Surveys(ctx).ListBySubmitter(ctx, info.User.UserID)
	if err != nil {
		return StatusSummary{}, err
	}
	out := StatusSummary{LastSyncTime: info.LastUsed, Surveys: make([]SubmittedSurvey, 0, len(records))}
	for _, r := range records {
		out.Surveys = append(out.Surveys, SubmittedSurvey{
			ID:             r.ID,
			SurveyUniqueID: r.SurveyUniqueID,
			SubmittedAt:    r.SubmittedAt,
		})
	}
	return out, nil
}

// Item sync states.
const (
	StatusSynced  = "synced"
	StatusPending = "pending"
)

// ItemStatus is the server view of one natural id.
type ItemStatus struct {
	Status    string
	ServerID  string
	Timestamp *time.Time
}

// StatusFor reports synced or pending for every requested natural id.
func (p *Processor) StatusFor(ctx context.Context, user auth.Identity, uniqueIDs []string, origin auth.Origin) (map[string]ItemStatus, error) {
	found, err := p.store.Surveys(ctx).FindByUniqueIDs(ctx, uniqueIDs)
	if err != nil {
		return nil, err
	}
	statuses := make(map[string]ItemStatus, len(uniqueIDs))
	synced := 0
	for _, id := range uniqueIDs {
		rec, ok := found[id]
		if !ok {
			statuses[id] = ItemStatus{Status: StatusPending}
			continue
		}
		at := rec.SubmittedAt
		statuses[id] = ItemStatus{Status: StatusSynced, ServerID: rec.ID, Timestamp: &at}
		synced++
	}
	p.record(ctx, audit.Event{
		Action:     "sync_status_checked",
		EntityType: "sync_operation",
		UserID:     user.UserID,
		NewData: map[string]any{
			"surveyIdsChecked": len(uniqueIDs),
			"synced":           synced,
		},
	}, origin)
	return statuses, nil
}

func isNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
