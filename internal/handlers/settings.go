package handlers

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/julienbonastre/produce-shipping/internal/calculator"
)

// RuleRequest is the request body for creating or replacing a consolidation rule
type RuleRequest struct {
	Name     string `json:"name" validate:"required,max=100"`
	FromSize int    `json:"fromSize" validate:"required"`
	Quantity int    `json:"quantity" validate:"required"`
	ToSize   int    `json:"toSize" validate:"required"`
	Enabled  *bool  `json:"enabled"`
}

// Sizes are checked by ConsolidationRule.Validate so bad ones surface as INVALID_RULE
func (req *RuleRequest) toRule(id int64) calculator.ConsolidationRule {
	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}
	return calculator.ConsolidationRule{
		ID:       id,
		Name:     req.Name,
		FromSize: calculator.ShippingSize(req.FromSize),
		Quantity: req.Quantity,
		ToSize:   calculator.ShippingSize(req.ToSize),
		Enabled:  enabled,
	}
}

// ListRules returns every consolidation rule, enabled or not
func (h *Handler) ListRules(w http.ResponseWriter, r *http.Request) {
	rules, err := h.db.ListConsolidationRules(r.Context(), tenantID(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, map[string]interface{}{
		"rules": rules,
		"total": len(rules),
	})
}

// CreateRule adds a consolidation rule
func (h *Handler) CreateRule(w http.ResponseWriter, r *http.Request) {
	var req RuleRequest
	if err := h.decodeAndValidate(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	rule := req.toRule(0)
	id, err := h.db.CreateConsolidationRule(r.Context(), tenantID(r), rule)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	rule.ID = id
	jsonResponse(w, http.StatusCreated, rule)
}

// UpdateRule replaces a consolidation rule
func (h *Handler) UpdateRule(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	var req RuleRequest
	if err := h.decodeAndValidate(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	rule := req.toRule(id)
	if err := h.db.UpdateConsolidationRule(r.Context(), tenantID(r), rule); err != nil {
		h.writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, rule)
}

// DeleteRule removes a consolidation rule
func (h *Handler) DeleteRule(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.db.DeleteConsolidationRule(r.Context(), tenantID(r), id); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// PricingModeRequest is the request body for switching pricing mode
type PricingModeRequest struct {
	Mode string `json:"mode" validate:"required"`
}

// GetPricingMode returns the active pricing mode
func (h *Handler) GetPricingMode(w http.ResponseWriter, r *http.Request) {
	mode, err := h.db.GetActivePricingMode(r.Context(), tenantID(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, map[string]interface{}{
		"mode":  mode,
		"modes": calculator.AllPricingModes,
	})
}

// SetPricingMode switches the active pricing mode
func (h *Handler) SetPricingMode(w http.ResponseWriter, r *http.Request) {
	var req PricingModeRequest
	if err := h.decodeAndValidate(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	mode, err := calculator.ParsePricingMode(req.Mode)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.db.SetPricingMode(r.Context(), tenantID(r), mode); err != nil {
		h.writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, map[string]interface{}{"mode": mode})
}

// RateRequest is one rate row. ZoneID is used in zone mode, Prefecture in prefecture mode.
type RateRequest struct {
	Carrier       string `json:"carrier" validate:"required"`
	Size          int    `json:"size" validate:"required"`
	ZoneID        int64  `json:"zoneId" validate:"gte=0"`
	Prefecture    string `json:"prefecture"`
	BasePrice     int64  `json:"basePrice" validate:"gte=0"`
	CoolSurcharge int64  `json:"coolSurcharge" validate:"gte=0"`
}

// rateKey is the parsed key of a rate row in any mode
type rateKey struct {
	carrier    calculator.Carrier
	size       calculator.ShippingSize
	zoneID     int64
	prefecture string
}

func parseRateKey(mode calculator.PricingMode, carrier string, size int, zoneID int64, prefecture string) (rateKey, error) {
	var key rateKey
	var err error
	if key.carrier, err = calculator.ParseCarrier(carrier); err != nil {
		return key, err
	}
	if key.size, err = calculator.ParseShippingSize(size); err != nil {
		return key, err
	}

	switch mode {
	case calculator.ModeZone:
		if zoneID <= 0 {
			return key, fmt.Errorf("%w: zoneId is required in zone mode", errBadRequest)
		}
		key.zoneID = zoneID
	case calculator.ModePrefecture:
		if !calculator.IsPrefecture(prefecture) {
			return key, fmt.Errorf("%w: %q", calculator.ErrUnknownPrefecture, prefecture)
		}
		key.prefecture = prefecture
	}
	return key, nil
}

func pathMode(r *http.Request) (calculator.PricingMode, error) {
	return calculator.ParsePricingMode(r.PathValue("mode"))
}

// ListRates returns every row of one mode's rate table
func (h *Handler) ListRates(w http.ResponseWriter, r *http.Request) {
	mode, err := pathMode(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	var rates interface{}
	switch mode {
	case calculator.ModeFlatRate:
		rates, err = h.db.ListFlatRates(r.Context(), tenantID(r))
	case calculator.ModeZone:
		rates, err = h.db.ListZoneRates(r.Context(), tenantID(r))
	case calculator.ModePrefecture:
		rates, err = h.db.ListPrefectureRates(r.Context(), tenantID(r))
	}
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	jsonResponse(w, http.StatusOK, map[string]interface{}{
		"mode":  mode,
		"rates": rates,
	})
}

// UpsertRate creates or replaces one rate row
func (h *Handler) UpsertRate(w http.ResponseWriter, r *http.Request) {
	mode, err := pathMode(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	var req RateRequest
	if err := h.decodeAndValidate(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	key, err := parseRateKey(mode, req.Carrier, req.Size, req.ZoneID, req.Prefecture)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	ctx := r.Context()
	var row interface{}
	switch mode {
	case calculator.ModeFlatRate:
		rate := calculator.FlatRate{Carrier: key.carrier, Size: key.size, BasePrice: req.BasePrice, CoolSurcharge: req.CoolSurcharge}
		row = rate
		err = h.db.UpsertFlatRate(ctx, tenantID(r), rate)
	case calculator.ModeZone:
		rate := calculator.ZoneRate{Carrier: key.carrier, Size: key.size, ZoneID: key.zoneID, BasePrice: req.BasePrice, CoolSurcharge: req.CoolSurcharge}
		row = rate
		err = h.db.UpsertZoneRate(ctx, tenantID(r), rate)
	case calculator.ModePrefecture:
		rate := calculator.PrefectureRate{Carrier: key.carrier, Size: key.size, Prefecture: key.prefecture, BasePrice: req.BasePrice, CoolSurcharge: req.CoolSurcharge}
		row = rate
		err = h.db.UpsertPrefectureRate(ctx, tenantID(r), rate)
	}
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	jsonResponse(w, http.StatusOK, row)
}

// DeleteRate removes one rate row, keyed by query parameters
// carrier, size, and zoneId or prefecture depending on the mode.
func (h *Handler) DeleteRate(w http.ResponseWriter, r *http.Request) {
	mode, err := pathMode(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	q := r.URL.Query()
	size, _ := strconv.Atoi(q.Get("size"))
	zoneID, _ := strconv.ParseInt(q.Get("zoneId"), 10, 64)
	key, err := parseRateKey(mode, q.Get("carrier"), size, zoneID, q.Get("prefecture"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	ctx := r.Context()
	switch mode {
	case calculator.ModeFlatRate:
		err = h.db.DeleteFlatRate(ctx, tenantID(r), key.carrier, key.size)
	case calculator.ModeZone:
		err = h.db.DeleteZoneRate(ctx, tenantID(r), key.carrier, key.size, key.zoneID)
	case calculator.ModePrefecture:
		err = h.db.DeletePrefectureRate(ctx, tenantID(r), key.carrier, key.size, key.prefecture)
	}
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
