package handlers

import (
	"net/http"

	"github.com/julienbonastre/produce-shipping/internal/calculator"
	"github.com/julienbonastre/produce-shipping/internal/database"
)

// ProductRequest is the request body for a product or a variant
type ProductRequest struct {
	Name         string `json:"name" validate:"required,max=200"`
	ShippingSize int    `json:"shippingSize" validate:"required"`
	WeightGrams  int    `json:"weightGrams" validate:"gte=0"`
	Price        int64  `json:"price" validate:"gte=0"`
}

// ListProducts returns the tenant's products with their variants
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.db.ListProducts(r.Context(), tenantID(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, map[string]interface{}{
		"products": products,
		"total":    len(products),
	})
}

// CreateProduct adds a product
func (h *Handler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var req ProductRequest
	if err := h.decodeAndValidate(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	size, err := calculator.ParseShippingSize(req.ShippingSize)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	product := database.Product{
		Name:         req.Name,
		ShippingSize: size,
		WeightGrams:  req.WeightGrams,
		Price:        req.Price,
		Variants:     []database.ProductVariant{},
	}
	product.ID, err = h.db.CreateProduct(r.Context(), tenantID(r), product)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusCreated, product)
}

// CreateProductVariant adds a variant with its own shipping size to a product
func (h *Handler) CreateProductVariant(w http.ResponseWriter, r *http.Request) {
	productID, err := pathID(r, "id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	var req ProductRequest
	if err := h.decodeAndValidate(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	size, err := calculator.ParseShippingSize(req.ShippingSize)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	variant := database.ProductVariant{
		ProductID:    productID,
		Name:         req.Name,
		ShippingSize: size,
		WeightGrams:  req.WeightGrams,
		Price:        req.Price,
	}
	variant.ID, err = h.db.CreateProductVariant(r.Context(), tenantID(r), variant)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusCreated, variant)
}
