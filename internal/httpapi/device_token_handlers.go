package httpapi

import (
	"errors"
	"net/http"
	"time"

	"surveysync.org/internal/auth"
)

type deviceTokenView struct {
	ID         string    `json:"id"`
	DeviceID   string    `json:"deviceId"`
	DeviceInfo string    `json:"deviceInfo"`
	CreatedAt  time.Time `json:"createdAt"`
	LastUsed   time.Time `json:"lastUsed"`
	ExpiresAt  time.Time `json:"expiresAt"`
	IsRevoked  bool      `json:"isRevoked"`
	IPAddress  string    `json:"ipAddress,omitempty"`
	IsCurrent  bool      `json:"isCurrent"`
}

func (a *API) handleListDeviceTokens(w http.ResponseWriter, r *http.Request) {
	info := credential(r)
	list, err := a.auth.ListForUser(r.Context(), info.User.UserID)
	if err != nil {
		internalError(w, r, "list device tokens", err)
		return
	}
	tokens := make([]deviceTokenView, 0, len(list))
	for _, t := range list {
		tokens = append(tokens, deviceTokenView{
			ID:         t.ID,
			DeviceID:   t.DeviceID,
			DeviceInfo: t.DeviceInfo,
			CreatedAt:  t.CreatedAt,
			LastUsed:   t.LastUsed,
			ExpiresAt:  t.ExpiresAt,
			IsRevoked:  t.Revoked,
			IPAddress:  t.IPAddress,
			IsCurrent:  t.ID == info.TokenID,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "tokens": tokens})
}

func (a *API) handleRevokeAllDeviceTokens(w http.ResponseWriter, r *http.Request) {
	info := credential(r)
	n, err := a.auth.RevokeAll(r.Context(), info.User.UserID, info.User.UserID)
	if err != nil {
		internalError(w, r, "revoke all device tokens", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"revoked": n,
		"message": "All device tokens revoked",
	})
}

func (a *API) handleRevokeDeviceToken(w http.ResponseWriter, r *http.Request) {
	info := credential(r)
	err := a.auth.RevokeOwned(r.Context(), info.User, r.PathValue("id"))
	switch {
	case errors.Is(err, auth.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "Device token not found")
		return
	case errors.Is(err, auth.ErrForbidden):
		writeError(w, r, http.StatusForbidden, "Access denied")
		return
	case errors.Is(err, auth.ErrAlreadyRevoked):
		writeError(w, r, http.StatusBadRequest, "Device token is already revoked")
		return
	case err != nil:
		internalError(w, r, "revoke device token", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Device token revoked successfully"})
}
