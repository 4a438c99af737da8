package httpapi

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"surveysync.org/internal/bulksync"
)

type submitResponse struct {
	Success    bool       `json:"success"`
	SurveyID   string     `json:"surveyId,omitempty"`
	Timestamp  *time.Time `json:"timestamp,omitempty"`
	Ack        string     `json:"ack,omitempty"`
	Error      string     `json:"error,omitempty"`
	ExistingID string     `json:"existingId,omitempty"`
}

func submitStatus(k bulksync.Kind) int {
	switch k {
	case bulksync.KindSuccess:
		return http.StatusOK
	case bulksync.KindAccessDenied:
		return http.StatusForbidden
	case bulksync.KindDuplicate:
		return http.StatusConflict
	case bulksync.KindProcessingError:
		return http.StatusInternalServerError
	default:
		return http.StatusBadRequest
	}
}

func (a *API) handleSubmitSurvey(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, r, http.StatusRequestEntityTooLarge, "Request body too large")
			return
		}
		writeError(w, r, http.StatusBadRequest, "Invalid request body")
		return
	}
	info := credential(r)
	out, err := a.sync.Submit(r.Context(), payload, info.User, originOf(r))
	if err != nil {
		internalError(w, r, "submit survey", err)
		return
	}
	resp := submitResponse{
		Success:    out.Success(),
		SurveyID:   out.SurveyID,
		Ack:        out.Ack,
		ExistingID: out.ExistingID,
	}
	if !out.Timestamp.IsZero() {
		ts := out.Timestamp
		resp.Timestamp = &ts
	}
	if !out.Success() {
		resp.Error = out.Message
	}
	writeJSON(w, submitStatus(out.Kind), resp)
}

type uniqueIDRequest struct {
	SurveyUniqueID string `json:"surveyUniqueId"`
}

func (a *API) handleCheckUniqueID(w http.ResponseWriter, r *http.Request) {
	var req uniqueIDRequest
	if err := decodeJSON(r, &req); err != nil || strings.TrimSpace(req.SurveyUniqueID) == "" {
		writeError(w, r, http.StatusBadRequest, "Survey unique ID is required")
		return
	}
	check, err := a.sync.CheckUniqueID(r.Context(), req.SurveyUniqueID)
	if err != nil {
		internalError(w, r, "check unique id", err)
		return
	}
	if !check.IsValid {
		writeJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"isValid": false,
			"message": check.Message,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":          true,
		"isValid":          true,
		"exists":           check.Exists,
		"existingSurveyId": check.ExistingSurveyID,
		"message":          check.Message,
	})
}
