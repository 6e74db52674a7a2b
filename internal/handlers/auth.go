package handlers

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/julienbonastre/produce-shipping/internal/auth"
	"github.com/julienbonastre/produce-shipping/internal/database"
	"github.com/julienbonastre/produce-shipping/internal/logging"
)

// Login redirects to the identity provider
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	url, err := h.auth.BeginLogin(w, r)
	if errors.Is(err, auth.ErrOAuthDisabled) {
		errorResponse(w, http.StatusNotFound, CodeOAuthDisabled, err.Error(), nil)
		return
	}
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	http.Redirect(w, r, url, http.StatusFound)
}

// OAuthCallback handles the OAuth callback
func (h *Handler) OAuthCallback(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context(), h.logger)
	query := r.URL.Query()

	if errParam := query.Get("error"); errParam != "" {
		log.Warn("oauth error from provider",
			zap.String("error", errParam),
			zap.String("description", query.Get("error_description")))
		errorResponse(w, http.StatusBadRequest, CodeUnauthenticated, "login failed: "+errParam, nil)
		return
	}

	tenant, err := h.auth.CompleteLogin(w, r, query.Get("state"), query.Get("code"))
	switch {
	case errors.Is(err, auth.ErrOAuthDisabled):
		errorResponse(w, http.StatusNotFound, CodeOAuthDisabled, err.Error(), nil)
		return
	case errors.Is(err, auth.ErrInvalidState):
		log.Warn("oauth state mismatch")
		errorResponse(w, http.StatusBadRequest, CodeUnauthenticated, err.Error(), nil)
		return
	case err != nil:
		log.Error("oauth login failed", zap.Error(err))
		errorResponse(w, http.StatusBadGateway, CodeUnauthenticated, "login failed", nil)
		return
	}

	log.Info("tenant signed in", zap.Int64("tenant_id", tenant.ID))
	http.Redirect(w, r, "/?auth=success", http.StatusFound)
}

// Logout ends the session; ?everywhere=true signs the tenant out of every browser
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.auth.Logout(w, r, r.URL.Query().Get("everywhere") == "true"); err != nil {
		h.writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, map[string]string{"status": "logged_out"})
}

// RefreshProfile updates the tenant's profile from the provider using the stored refresh token
func (h *Handler) RefreshProfile(w http.ResponseWriter, r *http.Request) {
	tenant, err := h.auth.RefreshProfile(r.Context(), tenantID(r))
	switch {
	case errors.Is(err, auth.ErrOAuthDisabled):
		errorResponse(w, http.StatusNotFound, CodeOAuthDisabled, err.Error(), nil)
		return
	case errors.Is(err, auth.ErrNoRefreshToken):
		errorResponse(w, http.StatusConflict, CodeNoRefreshToken, err.Error(), nil)
		return
	case errors.Is(err, database.ErrNotFound):
		h.writeError(w, r, err)
		return
	case err != nil:
		logging.FromContext(r.Context(), h.logger).Error("profile refresh failed", zap.Error(err))
		errorResponse(w, http.StatusBadGateway, CodeUnauthenticated, "profile refresh failed", nil)
		return
	}
	jsonResponse(w, http.StatusOK, tenant)
}

// GetAuthStatus returns current auth status
func (h *Handler) GetAuthStatus(w http.ResponseWriter, r *http.Request) {
	resp := map[string]interface{}{
		"authenticated": false,
		"oauthEnabled":  h.auth.OAuthEnabled(),
		"devMode":       h.auth.DevMode(),
	}

	if tenantID, ok := h.auth.CurrentTenant(r); ok {
		tenant, err := h.db.GetTenant(r.Context(), tenantID)
		if err == nil {
			resp["authenticated"] = true
			resp["tenant"] = tenant
		}
	}

	jsonResponse(w, http.StatusOK, resp)
}
