package handlers

import (
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/julienbonastre/produce-shipping/internal/logging"
	settingsync "github.com/julienbonastre/produce-shipping/internal/sync"
)

// ExportSettings downloads the tenant's rules, zones and rates as a bundle
func (h *Handler) ExportSettings(w http.ResponseWriter, r *http.Request) {
	bundle, err := h.settings.Export(r.Context(), tenantID(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	filename := fmt.Sprintf("shipping-settings-%s.json", bundle.ExportedAt.Format("20060102-150405"))
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	jsonResponse(w, http.StatusOK, bundle)
}

// ImportSettings applies an exported bundle to the tenant
func (h *Handler) ImportSettings(w http.ResponseWriter, r *http.Request) {
	var bundle settingsync.Bundle
	if err := h.decodeAndValidate(w, r, &bundle); err != nil {
		h.writeError(w, r, err)
		return
	}

	start := time.Now()
	result, err := h.settings.Import(r.Context(), tenantID(r), &bundle)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	if len(result.Errors) > 0 {
		logging.FromContext(r.Context(), h.logger).Warn("settings import skipped entries",
			zap.Strings("errors", result.Errors),
			zap.Duration("duration", time.Since(start)))
	}
	jsonResponse(w, http.StatusOK, result)
}
