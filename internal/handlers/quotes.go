package handlers

import (
	"net/http"
	"strconv"

	"github.com/julienbonastre/produce-shipping/internal/calculator"
	"github.com/julienbonastre/produce-shipping/internal/database"
	"github.com/julienbonastre/produce-shipping/internal/quote"
)

// CartLineInput is one line of an explicit cart
type CartLineInput struct {
	Size     int `json:"size" validate:"required"`
	Quantity int `json:"quantity" validate:"gte=1"`
}

// ItemInput selects a product, optionally one of its variants
type ItemInput struct {
	ProductID int64 `json:"productId" validate:"gt=0"`
	VariantID int64 `json:"variantId" validate:"gte=0"`
	Quantity  int   `json:"quantity" validate:"gte=1"`
}

// QuoteRequest is the request body for the quote endpoints. Lines and items may be mixed.
type QuoteRequest struct {
	Lines        []CartLineInput `json:"lines" validate:"dive"`
	Items        []ItemInput     `json:"items" validate:"dive"`
	Carrier      string          `json:"carrier"`
	Carriers     []string        `json:"carriers"` // compare only; empty means every carrier
	Prefecture   string          `json:"prefecture"`
	CoolDelivery bool            `json:"coolDelivery"`
}

func (req *QuoteRequest) toServiceRequest() (quote.Request, error) {
	out := quote.Request{
		Prefecture:   req.Prefecture,
		CoolDelivery: req.CoolDelivery,
	}

	for _, l := range req.Lines {
		size, err := calculator.ParseShippingSize(l.Size)
		if err != nil {
			return out, err
		}
		out.Lines = append(out.Lines, calculator.CartLine{Size: size, Quantity: l.Quantity})
	}
	for _, it := range req.Items {
		out.Items = append(out.Items, database.ItemSelection{
			ProductID: it.ProductID,
			VariantID: it.VariantID,
			Quantity:  it.Quantity,
		})
	}
	if req.Prefecture != "" && !calculator.IsPrefecture(req.Prefecture) {
		return out, calculator.ErrUnknownPrefecture
	}
	return out, nil
}

// CalculateQuote prices a shipment for one carrier
func (h *Handler) CalculateQuote(w http.ResponseWriter, r *http.Request) {
	var req QuoteRequest
	if err := h.decodeAndValidate(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	carrier, err := calculator.ParseCarrier(req.Carrier)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	svcReq, err := req.toServiceRequest()
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	svcReq.Carrier = carrier

	result, err := h.quotes.Quote(r.Context(), tenantID(r), svcReq)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	jsonResponse(w, http.StatusOK, result)
}

// CompareCarriers prices a shipment for several carriers and marks the cheapest
func (h *Handler) CompareCarriers(w http.ResponseWriter, r *http.Request) {
	var req QuoteRequest
	if err := h.decodeAndValidate(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	carriers := make([]calculator.Carrier, 0, len(req.Carriers))
	for _, c := range req.Carriers {
		carrier, err := calculator.ParseCarrier(c)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		carriers = append(carriers, carrier)
	}
	svcReq, err := req.toServiceRequest()
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	result, err := h.quotes.Compare(r.Context(), tenantID(r), svcReq, carriers)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	jsonResponse(w, http.StatusOK, result)
}

// GetQuoteHistory returns the tenant's recent quotes
func (h *Handler) GetQuoteHistory(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	history, err := h.db.ListQuoteHistory(r.Context(), tenantID(r), limit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	jsonResponse(w, http.StatusOK, map[string]interface{}{
		"history": history,
		"total":   len(history),
	})
}
