package handlers

import (
	"net/http"

	"github.com/julienbonastre/produce-shipping/internal/calculator"
)

// ZoneRequest is the request body for creating or renaming a zone
type ZoneRequest struct {
	Name         string `json:"name" validate:"required,max=50"`
	DisplayOrder int    `json:"displayOrder" validate:"gte=0"`
}

// AssignmentRequest moves a prefecture into a zone
type AssignmentRequest struct {
	ZoneID int64 `json:"zoneId" validate:"gt=0"`
}

// ListZones returns the tenant's zones
func (h *Handler) ListZones(w http.ResponseWriter, r *http.Request) {
	zones, err := h.db.ListZones(r.Context(), tenantID(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, map[string]interface{}{
		"zones": zones,
		"total": len(zones),
	})
}

// CreateZone adds a zone
func (h *Handler) CreateZone(w http.ResponseWriter, r *http.Request) {
	var req ZoneRequest
	if err := h.decodeAndValidate(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	id, err := h.db.CreateZone(r.Context(), tenantID(r), req.Name, req.DisplayOrder)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusCreated, calculator.Zone{ID: id, Name: req.Name, DisplayOrder: req.DisplayOrder})
}

// UpdateZone renames or reorders a zone
func (h *Handler) UpdateZone(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	var req ZoneRequest
	if err := h.decodeAndValidate(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	zone := calculator.Zone{ID: id, Name: req.Name, DisplayOrder: req.DisplayOrder}
	if err := h.db.UpdateZone(r.Context(), tenantID(r), zone); err != nil {
		h.writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, zone)
}

// DeleteZone removes a zone with its rates and assignments
func (h *Handler) DeleteZone(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.db.DeleteZone(r.Context(), tenantID(r), id); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListZoneAssignments returns every prefecture to zone assignment, plus the prefectures
// that have none
func (h *Handler) ListZoneAssignments(w http.ResponseWriter, r *http.Request) {
	assignments, err := h.db.ListPrefectureZoneAssignments(r.Context(), tenantID(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	assigned := make(map[string]bool, len(assignments))
	for _, a := range assignments {
		assigned[a.Prefecture] = true
	}
	unassigned := []string{}
	for _, p := range calculator.Prefectures {
		if !assigned[p] {
			unassigned = append(unassigned, p)
		}
	}

	jsonResponse(w, http.StatusOK, map[string]interface{}{
		"assignments": assignments,
		"unassigned":  unassigned,
	})
}

// AssignPrefecture moves a prefecture into a zone, replacing any earlier assignment
func (h *Handler) AssignPrefecture(w http.ResponseWriter, r *http.Request) {
	prefecture := r.PathValue("prefecture")

	var req AssignmentRequest
	if err := h.decodeAndValidate(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	if err := h.db.AssignPrefectureToZone(r.Context(), tenantID(r), prefecture, req.ZoneID); err != nil {
		h.writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, calculator.PrefectureZoneAssignment{Prefecture: prefecture, ZoneID: req.ZoneID})
}

// UnassignPrefecture removes a prefecture from its zone
func (h *Handler) UnassignPrefecture(w http.ResponseWriter, r *http.Request) {
	if err := h.db.UnassignPrefecture(r.Context(), tenantID(r), r.PathValue("prefecture")); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
