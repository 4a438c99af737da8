package bulksync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"surveysync.org/internal/audit"
	"surveysync.org/internal/auth"
	"surveysync.org/internal/obs"
	"surveysync.org/internal/stream"
	"surveysync.org/internal/survey"
)

// DefaultMaxBatch is the per-request item ceiling.
const DefaultMaxBatch = 100

// Item is one client-wrapped record inside a batch.
type Item struct {
	LocalID       string `json:"localId"`
	EncryptedData string `json:"encryptedData"`
	Checksum      string `json:"checksum"`
}

// Batch is one upload. A nil Items slice means the forms field was absent.
type Batch struct {
	Items         []Item
	EncryptionKey string
	DeviceID      string
}

// Publisher receives a summary of every sync call.
type Publisher interface {
	Publish(stream.SyncEvent)
}

// Processor validates, authorizes and persists survey records.
type Processor struct {
	store     Store
	now       func() time.Time
	auditor   audit.Sink
	maxBatch  int
	publisher Publisher
	countItem func(outcome string)
}

// Option configures Processor behavior.
type Option func(*Processor)

// WithClock overrides time source (useful for tests).
func WithClock(fn func() time.Time) Option {
	return func(p *Processor) {
		if fn != nil {
			p.now = fn
		}
	}
}

// WithAuditor sets the audit sink. The default discards.
func WithAuditor(sink audit.Sink) Option {
	return func(p *Processor) {
		if sink != nil {
			p.auditor = sink
		}
	}
}

// WithMaxBatch overrides DefaultMaxBatch.
func WithMaxBatch(n int) Option {
	return func(p *Processor) {
		if n > 0 {
			p.maxBatch = n
		}
	}
}

// WithPublisher attaches the sync activity stream.
func WithPublisher(pub Publisher) Option {
	return func(p *Processor) {
		p.publisher = pub
	}
}

// WithMetrics overrides the per-item counter. The default is obs.SyncItem.
func WithMetrics(fn func(outcome string)) Option {
	return func(p *Processor) {
		if fn != nil {
			p.countItem = fn
		}
	}
}

// NewProcessor constructs Processor with optional configuration.
func NewProcessor(store Store, opts ...Option) *Processor {
	p := &Processor{
		store:     store,
		now:       time.Now,
		auditor:   audit.Nop{},
		maxBatch:  DefaultMaxBatch,
		countItem: obs.SyncItem,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// MaxBatch reports the configured item ceiling.
func (p *Processor) MaxBatch() int { return p.maxBatch }

// ProcessBatch returns exactly one outcome per item, in input order. Only the
// batch-level checks and context cancellation produce an error; when ctx ends
// mid-batch the outcomes gathered so far are returned with ctx.Err().
func (p *Processor) ProcessBatch(ctx context.Context, batch Batch, user auth.Identity, origin auth.Origin) ([]Outcome, error) {
	if batch.Items == nil {
		return nil, ErrMissingForms
	}
	if strings.TrimSpace(batch.EncryptionKey) == "" {
		return nil, ErrMissingKey
	}
	if len(batch.Items) > p.maxBatch {
		return nil, ErrBatchTooLarge
	}

	outcomes := make([]Outcome, 0, len(batch.Items))
	var ctxErr error
	for _, item := range batch.Items {
		if err := ctx.Err(); err != nil {
			ctxErr = err
			break
		}
		out := p.processItem(ctx, item, batch, user, origin)
		p.countItem(string(out.Kind))
		outcomes = append(outcomes, out)
	}

	p.finishBatch(ctx, batch, outcomes, user, origin)
	return outcomes, ctxErr
}

func (p *Processor) processItem(ctx context.Context, item Item, batch Batch, user auth.Identity, origin auth.Origin) Outcome {
	if !VerifyChecksum(item.EncryptedData, batch.EncryptionKey, item.Checksum) {
		p.itemError(ctx, item, batch, user, origin, "checksum_mismatch")
		return failure(item.LocalID, KindIntegrityFailure, MsgChecksum)
	}

	form, msg := decodeForm([]byte(item.EncryptedData))
	if msg != "" {
		p.itemError(ctx, item, batch, user, origin, malformedReason(msg))
		return failure(item.LocalID, KindMalformed, msg)
	}
	if !survey.ValidateUniqueID(form.SurveyUniqueID) {
		p.itemError(ctx, item, batch, user, origin, "invalid_unique_id")
		return failure(item.LocalID, KindInvalidIdentifier, MsgInvalidUniqueID)
	}

	out, denial, err := p.accept(ctx, form, user)
	out.LocalID = item.LocalID
	switch {
	case err != nil:
		obs.Logger().ErrorContext(ctx, "bulk sync item failed", "local_id", item.LocalID, "error", err)
		p.itemError(ctx, item, batch, user, origin, "processing_error")
		return failure(item.LocalID, KindProcessingError, MsgProcessing)
	case denial != "":
		p.itemError(ctx, item, batch, user, origin, denial)
	case out.Kind == KindMalformed:
		p.itemError(ctx, item, batch, user, origin, "invalid_survey_date")
	}
	return out
}

func malformedReason(msg string) string {
	if msg == MsgDecrypt {
		return "decrypt_failed"
	}
	return "invalid_structure"
}

// accept runs the checks shared with direct submission: school scope,
// uniqueness, then persistence. denial names the reason of an access_denied
// outcome. err is a storage fault.
func (p *Processor) accept(ctx context.Context, form survey.Form, user auth.Identity) (out Outcome, denial string, err error) {
	school, err := p.store.Schools(ctx).Find(ctx, form.SchoolID)
	if errors.Is(err, ErrSchoolNotFound) {
		return failure(form.LocalID, KindAccessDenied, MsgAccessDenied), "school_not_found", nil
	}
	if err != nil {
		return Outcome{}, "", fmt.Errorf("find school: %w", err)
	}
	if !IsAuthorizedForSchool(user, *school) {
		return failure(form.LocalID, KindAccessDenied, MsgAccessDenied), "partner_mismatch", nil
	}

	surveys := p.store.Surveys(ctx)
	existing, err := surveys.FindByUniqueID(ctx, form.SurveyUniqueID)
	switch {
	case err == nil:
		return duplicateOf(form.LocalID, existing), "", nil
	case !errors.Is(err, ErrNotFound):
		return Outcome{}, "", fmt.Errorf("find survey: %w", err)
	}

	rec, err := survey.NewRecord(form, school.PartnerID, user.UserID, p.now())
	if errors.Is(err, survey.ErrInvalidDate) {
		return failure(form.LocalID, KindMalformed, MsgStructure), "", nil
	}
	if err != nil {
		return Outcome{}, "", err
	}
	// references are taken from the stored school, never from the client
	rec.SchoolID = school.ID
	rec.DistrictID = school.DistrictID
	err = surveys.Insert(ctx, rec)
	if errors.Is(err, ErrSchoolNotFound) {
		// school removed between Find and Insert
		return failure(form.LocalID, KindAccessDenied, MsgAccessDenied), "school_not_found", nil
	}
	if errors.Is(err, ErrDuplicate) {
		// lost a race with a concurrent submission of the same natural id
		existing, lookupErr := surveys.FindByUniqueID(ctx, form.SurveyUniqueID)
		if lookupErr != nil {
			return Outcome{}, "", fmt.Errorf("find survey after conflict: %w", lookupErr)
		}
		return duplicateOf(form.LocalID, existing), "", nil
	}
	if err != nil {
		return Outcome{}, "", fmt.Errorf("insert survey: %w", err)
	}
	return Outcome{
		LocalID:   form.LocalID,
		Kind:      KindSuccess,
		SurveyID:  rec.ID,
		Timestamp: rec.SubmittedAt,
		Ack:       MsgAck,
	}, "", nil
}

func duplicateOf(localID string, existing *survey.Record) Outcome {
	return Outcome{
		LocalID:    localID,
		Kind:       KindDuplicate,
		Message:    MsgDuplicate,
		ExistingID: existing.ID,
	}
}

// decodeForm maps a JSON syntax failure to MsgDecrypt and a shape failure to
// MsgStructure. The transport carries plain JSON in the ciphertext slot.
func decodeForm(data []byte) (survey.Form, string) {
	var form survey.Form
	if err := json.Unmarshal(data, &form); err != nil {
		var syntaxErr *json.SyntaxError
		if errors.As(err, &syntaxErr) || !json.Valid(data) {
			return survey.Form{}, MsgDecrypt
		}
		return survey.Form{}, MsgStructure
	}
	if strings.TrimSpace(form.SurveyUniqueID) == "" || strings.TrimSpace(form.SchoolID) == "" {
		return survey.Form{}, MsgStructure
	}
	return form, ""
}

func (p *Processor) itemError(ctx context.Context, item Item, batch Batch, user auth.Identity, origin auth.Origin, reason string) {
	p.record(ctx, audit.Event{
		Action:     "bulk_sync_form_error",
		EntityType: "survey_response",
		UserID:     user.UserID,
		Severity:   audit.SeverityWarning,
		NewData: map[string]any{
			"localId":  item.LocalID,
			"error":    reason,
			"deviceId": batch.DeviceID,
		},
	}, origin)
}

func (p *Processor) finishBatch(ctx context.Context, batch Batch, outcomes []Outcome, user auth.Identity, origin auth.Origin) {
	succeeded := 0
	byKind := make(map[string]int)
	for _, o := range outcomes {
		if o.Success() {
			succeeded++
		}
		byKind[string(o.Kind)]++
	}
	failed := len(outcomes) - succeeded

	p.record(ctx, audit.Event{
		Action:     "bulk_sync_completed",
		EntityType: "sync_operation",
		UserID:     user.UserID,
		NewData: map[string]any{
			"totalForms":      len(batch.Items),
			"successfulForms": succeeded,
			"failedForms":     failed,
			"deviceId":        batch.DeviceID,
		},
	}, origin)

	p.publish(stream.SyncEvent{
		Kind:      stream.KindBatch,
		UserID:    user.UserID,
		PartnerID: user.PartnerID,
		DeviceID:  batch.DeviceID,
		Total:     len(batch.Items),
		Succeeded: succeeded,
		Failed:    failed,
		Outcomes:  byKind,
	})
}

func (p *Processor) publish(evt stream.SyncEvent) {
	if p.publisher == nil {
		return
	}
	evt.Timestamp = p.now().UTC()
	p.publisher.Publish(evt)
}

func (p *Processor) record(ctx context.Context, ev audit.Event, origin auth.Origin) {
	ev.IPAddress = origin.IPAddress
	ev.UserAgent = origin.UserAgent
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = p.now()
	}
	if err := p.auditor.Record(ctx, ev); err != nil {
		obs.Logger().ErrorContext(ctx, "audit record failed", "action", ev.Action, "error", err)
	}
}
