package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"surveysync.org/internal/auth"
)

type loginRequest struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	DeviceID   string `json:"deviceId"`
	DeviceInfo string `json:"deviceInfo"`
}

type userResponse struct {
	ID          string    `json:"id"`
	Email       string    `json:"email"`
	Role        auth.Role `json:"role"`
	PartnerID   string    `json:"partnerId"`
	PartnerName string    `json:"partnerName,omitempty"`
	Name        string    `json:"name"`
}

func newUserResponse(id auth.Identity, partnerName string) userResponse {
	return userResponse{
		ID:          id.UserID,
		Email:       id.Email,
		Role:        id.Role,
		PartnerID:   id.PartnerID,
		PartnerName: partnerName,
		Name:        id.Name,
	}
}

type loginResponse struct {
	Success          bool         `json:"success"`
	User             userResponse `json:"user"`
	DeviceToken      string       `json:"deviceToken"`
	RefreshToken     string       `json:"refreshToken"`
	ExpiresAt        time.Time    `json:"expiresAt"`
	RequiresPinSetup bool         `json:"requiresPinSetup"`
	Message          string       `json:"message"`
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "Invalid request body")
		return
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" ||
		strings.TrimSpace(req.DeviceID) == "" || strings.TrimSpace(req.DeviceInfo) == "" {
		writeError(w, r, http.StatusBadRequest, "Missing required fields: email, password, deviceId, deviceInfo")
		return
	}
	if !auth.ValidateEmail(auth.NormalizeEmail(req.Email)) {
		writeError(w, r, http.StatusBadRequest, "Invalid email format")
		return
	}
	if !auth.ValidateDeviceID(req.DeviceID) {
		writeError(w, r, http.StatusBadRequest, "Invalid device ID format")
		return
	}

	origin := originOf(r)
	res, err := a.auth.Login(r.Context(), auth.LoginRequest{
		Email:      req.Email,
		Password:   req.Password,
		DeviceID:   req.DeviceID,
		DeviceInfo: req.DeviceInfo,
		IPAddress:  origin.IPAddress,
		UserAgent:  origin.UserAgent,
	})
	switch {
	case errors.Is(err, auth.ErrInvalidCredentials):
		writeError(w, r, http.StatusUnauthorized, "Invalid credentials")
		return
	case errors.Is(err, auth.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, "Missing required fields: email, password, deviceId, deviceInfo")
		return
	case err != nil:
		internalError(w, r, "login", err)
		return
	}

	writeJSON(w, http.StatusOK, loginResponse{
		Success:          true,
		User:             newUserResponse(res.User, res.PartnerName),
		DeviceToken:      res.DeviceToken,
		RefreshToken:     res.RefreshToken,
		ExpiresAt:        res.ExpiresAt,
		RequiresPinSetup: true,
		Message:          "Login successful",
	})
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
	DeviceID     string `json:"deviceId"`
}

type refreshResponse struct {
	Success      bool      `json:"success"`
	DeviceToken  string    `json:"deviceToken"`
	RefreshToken string    `json:"refreshToken"`
	ExpiresAt    time.Time `json:"expiresAt"`
}

func (a *API) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "Invalid request body")
		return
	}
	if strings.TrimSpace(req.RefreshToken) == "" || strings.TrimSpace(req.DeviceID) == "" {
		writeError(w, r, http.StatusBadRequest, "Missing required fields: refreshToken, deviceId")
		return
	}

	res, err := a.auth.Refresh(r.Context(), req.RefreshToken, req.DeviceID, originOf(r))
	switch {
	case errors.Is(err, auth.ErrInvalidRefresh):
		writeError(w, r, http.StatusUnauthorized, "Invalid refresh token")
		return
	case errors.Is(err, auth.ErrNoActiveCredential):
		writeError(w, r, http.StatusUnauthorized, "No valid device token found for refresh")
		return
	case err != nil:
		internalError(w, r, "refresh", err)
		return
	}

	writeJSON(w, http.StatusOK, refreshResponse{
		Success:      true,
		DeviceToken:  res.DeviceToken,
		RefreshToken: res.RefreshToken,
		ExpiresAt:    res.ExpiresAt,
	})
}

type verifyResponse struct {
	Valid     bool          `json:"valid"`
	User      *userResponse `json:"user,omitempty"`
	DeviceID  string        `json:"deviceId,omitempty"`
	ExpiresAt *time.Time    `json:"expiresAt,omitempty"`
}

func (a *API) handleVerify(w http.ResponseWriter, r *http.Request) {
	token, err := extractBearerToken(r.Header.Get(authHeader))
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"valid": false, "error": msgNoToken})
		return
	}
	res, err := a.auth.Verify(r.Context(), token, originOf(r))
	if err != nil {
		internalError(w, r, "verify", err)
		return
	}
	if !res.Valid {
		writeJSON(w, http.StatusUnauthorized, map[string]any{
			"valid":          false,
			"error":          msgInvalidToken,
			"requiresReauth": res.Reason.RequiresReauth(),
		})
		return
	}
	user := newUserResponse(res.Info.User, "")
	exp := res.Info.ExpiresAt
	writeJSON(w, http.StatusOK, verifyResponse{
		Valid:     true,
		User:      &user,
		DeviceID:  res.Info.DeviceID,
		ExpiresAt: &exp,
	})
}

type logoutRequest struct {
	DeviceID string `json:"deviceId"`
}

func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	var req logoutRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, errBodyRequired) {
		writeError(w, r, http.StatusBadRequest, "Invalid request body")
		return
	}
	err := a.auth.Logout(r.Context(), credential(r), strings.TrimSpace(req.DeviceID))
	switch {
	case errors.Is(err, auth.ErrDeviceMismatch):
		writeError(w, r, http.StatusBadRequest, "Device ID mismatch")
		return
	case err != nil:
		internalError(w, r, "logout", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Logged out successfully"})
}
