package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/julienbonastre/produce-shipping/internal/auth"
	"github.com/julienbonastre/produce-shipping/internal/calculator"
	"github.com/julienbonastre/produce-shipping/internal/database"
	"github.com/julienbonastre/produce-shipping/internal/logging"
	"github.com/julienbonastre/produce-shipping/internal/metrics"
	"github.com/julienbonastre/produce-shipping/internal/quote"
	settingsync "github.com/julienbonastre/produce-shipping/internal/sync"
)

// API error codes besides the calculator's
const (
	CodeValidation      = "VALIDATION_ERROR"
	CodeNotFound        = "NOT_FOUND"
	CodeConflict        = "CONFLICT"
	CodeUnauthenticated = "UNAUTHENTICATED"
	CodeOAuthDisabled   = "OAUTH_DISABLED"
	CodeNoRefreshToken  = "NO_REFRESH_TOKEN"
	CodeInternal        = "INTERNAL_ERROR"
)

const maxBodyBytes = 1 << 20

// Handler holds dependencies for HTTP handlers
type Handler struct {
	db       *database.DB
	quotes   *quote.Service
	settings *settingsync.Service
	auth     *auth.Authenticator
	logger   *zap.Logger
	metrics  *metrics.Metrics
	validate *validator.Validate
}

// NewHandler creates a new handler
func NewHandler(db *database.DB, quotes *quote.Service, settings *settingsync.Service, authn *auth.Authenticator, logger *zap.Logger, m *metrics.Metrics) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}

	validate := validator.New(validator.WithRequiredStructEnabled())
	// Report fields by their JSON names
	validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	return &Handler{
		db:       db,
		quotes:   quotes,
		settings: settings,
		auth:     authn,
		logger:   logger,
		metrics:  m,
		validate: validate,
	}
}

// ErrorBody is the JSON shape of every error response
type ErrorBody struct {
	Error   string                 `json:"error"`
	Code    string                 `json:"code"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// JSON response helper
func jsonResponse(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		zap.L().Warn("failed to encode JSON response", zap.Error(err))
	}
}

// Error response helper
func errorResponse(w http.ResponseWriter, status int, code, message string, details map[string]interface{}) {
	jsonResponse(w, status, ErrorBody{Error: message, Code: code, Details: details})
}

// writeError maps an error to its status and code. Calculator business errors become 422.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	if code := quote.ErrorCode(err); code != "" {
		errorResponse(w, http.StatusUnprocessableEntity, code, err.Error(), businessErrorDetails(err))
		return
	}

	var validationErrs validator.ValidationErrors
	switch {
	case errors.As(err, &validationErrs):
		errorResponse(w, http.StatusBadRequest, CodeValidation, "request validation failed", validationDetails(validationErrs))
	case errors.Is(err, calculator.ErrInvalidShippingSize),
		errors.Is(err, calculator.ErrInvalidCarrier),
		errors.Is(err, calculator.ErrUnknownPricingMode),
		errors.Is(err, calculator.ErrUnknownPrefecture),
		errors.Is(err, settingsync.ErrUnsupportedVersion),
		errors.Is(err, errBadRequest):
		errorResponse(w, http.StatusBadRequest, CodeValidation, err.Error(), nil)
	case errors.Is(err, database.ErrNotFound):
		errorResponse(w, http.StatusNotFound, CodeNotFound, err.Error(), nil)
	case database.IsConflict(err):
		errorResponse(w, http.StatusConflict, CodeConflict, "record already exists", nil)
	default:
		logging.FromContext(r.Context(), h.logger).Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err))
		errorResponse(w, http.StatusInternalServerError, CodeInternal, "internal error", nil)
	}
}

func businessErrorDetails(err error) map[string]interface{} {
	var (
		noRate   *calculator.NoMatchingRateError
		zoneless *calculator.UnassignedZoneError
		badRule  *calculator.InvalidRuleConfigurationError
	)
	switch {
	case errors.As(err, &noRate):
		details := map[string]interface{}{
			"mode":    noRate.Mode,
			"carrier": noRate.Carrier,
			"size":    noRate.Size,
		}
		switch noRate.Mode {
		case calculator.ModeZone:
			details["zoneId"] = noRate.ZoneID
		case calculator.ModePrefecture:
			details["prefecture"] = noRate.Prefecture
		}
		return details
	case errors.As(err, &zoneless):
		return map[string]interface{}{"prefecture": zoneless.Prefecture}
	case errors.As(err, &badRule):
		details := map[string]interface{}{"reason": badRule.Reason}
		if badRule.RuleID != 0 {
			details["ruleId"] = badRule.RuleID
		}
		return details
	}
	return nil
}

func validationDetails(errs validator.ValidationErrors) map[string]interface{} {
	details := make(map[string]interface{}, len(errs))
	for _, fe := range errs {
		msg := "failed on " + fe.Tag()
		if fe.Param() != "" {
			msg += "=" + fe.Param()
		}
		// Drop the top-level type name: "quoteRequest.lines[0].quantity" -> "lines[0].quantity"
		field := fe.Namespace()
		if i := strings.Index(field, "."); i >= 0 {
			field = field[i+1:]
		}
		details[field] = msg
	}
	return details
}

var errBadRequest = errors.New("bad request")

// decodeAndValidate reads a JSON body into dst and runs its validate tags
func (h *Handler) decodeAndValidate(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return fmt.Errorf("%w: invalid request body: %v", errBadRequest, err)
	}
	return h.validate.Struct(dst)
}

func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid %s %q", errBadRequest, name, r.PathValue(name))
	}
	return id, nil
}

// tenantID returns the tenant set by requireTenant
func tenantID(r *http.Request) int64 {
	id, _ := auth.TenantFromContext(r.Context())
	return id
}

// HealthCheck returns API health status
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	code := http.StatusOK
	if err := h.db.PingContext(r.Context()); err != nil {
		logging.FromContext(r.Context(), h.logger).Error("database ping failed", zap.Error(err))
		status = "degraded"
		code = http.StatusServiceUnavailable
	}

	jsonResponse(w, code, map[string]interface{}{
		"status":       status,
		"oauthEnabled": h.auth.OAuthEnabled(),
		"devMode":      h.auth.DevMode(),
	})
}

// GetReference returns the fixed vocabularies: sizes, carriers, pricing modes, prefectures
func (h *Handler) GetReference(w http.ResponseWriter, r *http.Request) {
	jsonResponse(w, http.StatusOK, map[string]interface{}{
		"sizes":        calculator.GetShippingSizes(),
		"carriers":     calculator.GetCarriers(),
		"pricingModes": calculator.AllPricingModes,
		"prefectures":  calculator.Prefectures,
	})
}
