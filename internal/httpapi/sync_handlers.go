package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"surveysync.org/internal/bulksync"
)

type uploadRequest struct {
	Forms         []bulksync.Item `json:"forms"`
	EncryptionKey string          `json:"encryptionKey"`
}

type resultView struct {
	LocalID    string     `json:"localId"`
	Success    bool       `json:"success"`
	SurveyID   string     `json:"surveyId,omitempty"`
	Timestamp  *time.Time `json:"timestamp,omitempty"`
	Ack        string     `json:"ack,omitempty"`
	Error      string     `json:"error,omitempty"`
	ExistingID string     `json:"existingId,omitempty"`
}

func newResultView(o bulksync.Outcome) resultView {
	v := resultView{
		LocalID:    o.LocalID,
		Success:    o.Success(),
		SurveyID:   o.SurveyID,
		Ack:        o.Ack,
		ExistingID: o.ExistingID,
	}
	if !o.Timestamp.IsZero() {
		ts := o.Timestamp
		v.Timestamp = &ts
	}
	if !o.Success() {
		v.Error = o.Message
	}
	return v
}

type uploadResponse struct {
	Success   bool         `json:"success"`
	Processed int          `json:"processed"`
	Results   []resultView `json:"results"`
	Error     string       `json:"error,omitempty"`
}

func (a *API) handleSyncUpload(w http.ResponseWriter, r *http.Request) {
	var req uploadRequest
	if err := decodeJSON(r, &req); err != nil {
		a.rejectUpload(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	info := credential(r)
	outcomes, err := a.sync.ProcessBatch(r.Context(), bulksync.Batch{
		Items:         req.Forms,
		EncryptionKey: req.EncryptionKey,
		DeviceID:      info.DeviceID,
	}, info.User, originOf(r))
	switch {
	case errors.Is(err, bulksync.ErrMissingForms):
		a.rejectUpload(w, http.StatusBadRequest, "Forms array is required")
		return
	case errors.Is(err, bulksync.ErrMissingKey):
		a.rejectUpload(w, http.StatusBadRequest, "Encryption key is required")
		return
	case errors.Is(err, bulksync.ErrBatchTooLarge):
		a.rejectUpload(w, http.StatusBadRequest,
			"Maximum "+strconv.Itoa(a.sync.MaxBatch())+" forms allowed per bulk sync request")
		return
	case err != nil:
		// cancelled mid-batch; the client re-queries status
		internalError(w, r, "bulk sync", err)
		return
	}

	results := make([]resultView, 0, len(outcomes))
	for _, o := range outcomes {
		results = append(results, newResultView(o))
	}
	writeJSON(w, http.StatusOK, uploadResponse{
		Success:   true,
		Processed: len(outcomes),
		Results:   results,
	})
}

func (a *API) rejectUpload(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, uploadResponse{Results: []resultView{}, Error: msg})
}

type pendingView struct {
	LocalID        string    `json:"localId"`
	SurveyUniqueID string    `json:"surveyUniqueId"`
	LastAttempt    time.Time `json:"lastAttempt"`
	Attempts       int       `json:"attempts"`
}

func (a *API) handleSyncSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := a.sync.Status(r.Context(), credential(r))
	if err != nil {
		internalError(w, r, "sync status", err)
		return
	}
	pending := make([]pendingView, 0, len(summary.Surveys))
	for _, s := range summary.Surveys {
		pending = append(pending, pendingView{
			LocalID:        s.ID,
			SurveyUniqueID: s.SurveyUniqueID,
			LastAttempt:    s.SubmittedAt,
			Attempts:       1,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":        true,
		"totalPending":   len(pending),
		"lastSyncTime":   summary.LastSyncTime,
		"pendingSurveys": pending,
	})
}

type statusRequest struct {
	SurveyIDs []string `json:"surveyIds"`
}

type statusView struct {
	Status    string     `json:"status"`
	ServerID  string     `json:"serverId,omitempty"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
}

func (a *API) handleSyncStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if err := decodeJSON(r, &req); err != nil || req.SurveyIDs == nil {
		writeError(w, r, http.StatusBadRequest, "Survey IDs array is required")
		return
	}
	if len(req.SurveyIDs) > a.sync.MaxBatch() {
		writeError(w, r, http.StatusBadRequest,
			"Maximum "+strconv.Itoa(a.sync.MaxBatch())+" survey IDs allowed per request")
		return
	}
	info := credential(r)
	statuses, err := a.sync.StatusFor(r.Context(), info.User, req.SurveyIDs, originOf(r))
	if err != nil {
		internalError(w, r, "sync status check", err)
		return
	}
	out := make(map[string]statusView, len(statuses))
	for id, s := range statuses {
		out[id] = statusView{Status: s.Status, ServerID: s.ServerID, Timestamp: s.Timestamp}
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "statuses": out})
}
