package handlers

import "net/http"

// Routes registers every endpoint and returns the root handler
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()

	public := func(pattern string, fn http.HandlerFunc) {
		mux.Handle(pattern, h.instrument(pattern, fn))
	}
	private := func(pattern string, fn http.HandlerFunc) {
		mux.Handle(pattern, h.instrument(pattern, h.requireTenant(fn)))
	}

	public("GET /api/health", h.HealthCheck)
	public("GET /api/reference", h.GetReference)

	// Auth
	public("GET /api/auth/login", h.Login)
	public("GET /api/oauth/callback", h.OAuthCallback)
	public("POST /api/auth/logout", h.Logout)
	public("GET /api/auth/status", h.GetAuthStatus)
	private("POST /api/auth/refresh", h.RefreshProfile)

	// Quotes
	private("POST /api/quote", h.CalculateQuote)
	private("POST /api/quote/compare", h.CompareCarriers)
	private("GET /api/quote/history", h.GetQuoteHistory)

	// Settings
	private("GET /api/rules", h.ListRules)
	private("POST /api/rules", h.CreateRule)
	private("PUT /api/rules/{id}", h.UpdateRule)
	private("DELETE /api/rules/{id}", h.DeleteRule)

	private("GET /api/pricing-mode", h.GetPricingMode)
	private("PUT /api/pricing-mode", h.SetPricingMode)

	private("GET /api/rates/{mode}", h.ListRates)
	private("PUT /api/rates/{mode}", h.UpsertRate)
	private("DELETE /api/rates/{mode}", h.DeleteRate)

	private("GET /api/zones", h.ListZones)
	private("POST /api/zones", h.CreateZone)
	private("PUT /api/zones/{id}", h.UpdateZone)
	private("DELETE /api/zones/{id}", h.DeleteZone)
	private("GET /api/zones/assignments", h.ListZoneAssignments)
	private("PUT /api/zones/assignments/{prefecture}", h.AssignPrefecture)
	private("DELETE /api/zones/assignments/{prefecture}", h.UnassignPrefecture)

	private("GET /api/settings/export", h.ExportSettings)
	private("POST /api/settings/import", h.ImportSettings)

	// Products
	private("GET /api/products", h.ListProducts)
	private("POST /api/products", h.CreateProduct)
	private("POST /api/products/{id}/variants", h.CreateProductVariant)

	if h.metrics != nil {
		mux.Handle("GET /metrics", h.metrics.Handler())
	}

	return h.withRequestID(mux)
}
