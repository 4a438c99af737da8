package httpapi

import (
	"errors"
	"net/http"

	"surveysync.org/internal/bulksync"
)

type schoolView struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Code         string `json:"code"`
	DistrictID   string `json:"districtId"`
	DistrictName string `json:"districtName"`
	Address      string `json:"address,omitempty"`
	SchoolType   string `json:"schoolType"`
	AreaType     string `json:"areaType"`
	IsActive     bool   `json:"isActive"`
}

func (a *API) handleSchoolsByPartner(w http.ResponseWriter, r *http.Request) {
	info := credential(r)
	list, err := a.sync.SchoolsForPartner(r.Context(), info.User, r.URL.Query().Get("partnerId"))
	switch {
	case errors.Is(err, bulksync.ErrPartnerRequired):
		writeError(w, r, http.StatusBadRequest, "Partner ID is required")
		return
	case errors.Is(err, bulksync.ErrPartnerForbidden):
		writeError(w, r, http.StatusForbidden, "Access denied: Cannot access schools from other partners")
		return
	case err != nil:
		internalError(w, r, "list schools", err)
		return
	}
	schools := make([]schoolView, 0, len(list))
	for _, s := range list {
		schools = append(schools, schoolView{
			ID:           s.ID,
			Name:         s.Name,
			Code:         s.Code,
			DistrictID:   s.DistrictID,
			DistrictName: s.DistrictName,
			Address:      s.Address,
			SchoolType:   s.SchoolType,
			AreaType:     s.AreaType,
			IsActive:     s.IsActive,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "schools": schools})
}
