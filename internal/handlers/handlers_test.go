package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/gorilla/sessions"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/julienbonastre/produce-shipping/internal/auth"
	"github.com/julienbonastre/produce-shipping/internal/database"
	"github.com/julienbonastre/produce-shipping/internal/metrics"
	"github.com/julienbonastre/produce-shipping/internal/quote"
	settingsync "github.com/julienbonastre/produce-shipping/internal/sync"
)

type testServer struct {
	handler  http.Handler
	db       *database.DB
	tenantID int64
}

func newTestServer(t *testing.T, devMode bool) *testServer {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	tenant, _, err := db.GetOrCreateTenantFromLogin(context.Background(), "dev:test", "", "Test Farm")
	require.NoError(t, err)

	authn := auth.New(auth.Config{}, db, sessions.NewCookieStore([]byte("0123456789abcdef0123456789abcdef")), nil, zap.NewNop())
	if devMode {
		authn.SetDevTenant(tenant.ID)
	}

	m := metrics.New()
	h := NewHandler(db, quote.NewService(db, zap.NewNop(), m), settingsync.NewService(db, zap.NewNop()), authn, zap.NewNop(), m)
	return &testServer{handler: h.Routes(), db: db, tenantID: tenant.ID}
}

func (s *testServer) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, dst interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), dst))
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorBody {
	t.Helper()
	var body ErrorBody
	decode(t, rec, &body)
	return body
}

type quoteResponse struct {
	QuoteID   string `json:"quoteId"`
	FinalSize int    `json:"finalSize"`
	Total     int64  `json:"total"`
	Merges    []struct {
		FromSize int `json:"fromSize"`
		ToSize   int `json:"toSize"`
		Sets     int `json:"sets"`
	} `json:"merges"`
}

func TestHealthCheck(t *testing.T) {
	s := newTestServer(t, true)

	rec := s.do(t, "GET", "/api/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(RequestIDHeader))

	var body map[string]interface{}
	decode(t, rec, &body)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, true, body["devMode"])
}

func TestRequestIDIsEchoed(t *testing.T) {
	s := newTestServer(t, true)

	req := httptest.NewRequest("GET", "/api/reference", nil)
	req.Header.Set(RequestIDHeader, "req-abc")
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)

	assert.Equal(t, "req-abc", rec.Header().Get(RequestIDHeader))

	var body struct {
		Sizes       []interface{} `json:"sizes"`
		Carriers    []interface{} `json:"carriers"`
		Prefectures []string      `json:"prefectures"`
	}
	decode(t, rec, &body)
	assert.Len(t, body.Sizes, 6)
	assert.Len(t, body.Carriers, 3)
	assert.Len(t, body.Prefectures, 47)
}

func TestProtectedRoutesRequireLogin(t *testing.T) {
	s := newTestServer(t, false)

	rec := s.do(t, "GET", "/api/rules", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, CodeUnauthenticated, decodeError(t, rec).Code)

	rec = s.do(t, "GET", "/api/auth/status", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	var status map[string]interface{}
	decode(t, rec, &status)
	assert.Equal(t, false, status["authenticated"])

	rec = s.do(t, "GET", "/api/auth/login", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, CodeOAuthDisabled, decodeError(t, rec).Code)
}

func TestRefreshProfileWithoutProvider(t *testing.T) {
	rec := newTestServer(t, false).do(t, "POST", "/api/auth/refresh", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = newTestServer(t, true).do(t, "POST", "/api/auth/refresh", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, CodeOAuthDisabled, decodeError(t, rec).Code)
}

func TestFlatRateQuoteWithConsolidation(t *testing.T) {
	s := newTestServer(t, true)

	rec := s.do(t, "PUT", "/api/rates/flat_rate", map[string]interface{}{
		"carrier": "yamato", "size": 80, "basePrice": 1150, "coolSurcharge": 220,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = s.do(t, "POST", "/api/rules", map[string]interface{}{
		"name": "60x2 to 80", "fromSize": 60, "quantity": 2, "toSize": 80,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = s.do(t, "POST", "/api/quote", map[string]interface{}{
		"lines":        []map[string]int{{"size": 60, "quantity": 2}},
		"carrier":      "Yamato",
		"coolDelivery": true,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var q quoteResponse
	decode(t, rec, &q)
	assert.NotEmpty(t, q.QuoteID)
	assert.Equal(t, 80, q.FinalSize)
	assert.Equal(t, int64(1370), q.Total)
	require.Len(t, q.Merges, 1)
	assert.Equal(t, 1, q.Merges[0].Sets)

	rec = s.do(t, "GET", "/api/quote/history", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var history struct {
		History []database.QuoteRecord `json:"history"`
		Total   int                    `json:"total"`
	}
	decode(t, rec, &history)
	require.Equal(t, 1, history.Total)
	assert.Equal(t, q.QuoteID, history.History[0].ID)

	rec = s.do(t, "GET", "/metrics", nil)
	assert.Contains(t, rec.Body.String(), `shipcalc_quotes_total{mode="flat_rate",outcome="success"} 1`)
}

func TestBusinessErrorsAre422(t *testing.T) {
	s := newTestServer(t, true)

	rec := s.do(t, "POST", "/api/quote", map[string]interface{}{
		"lines":   []map[string]int{{"size": 100, "quantity": 1}},
		"carrier": "sagawa",
	})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	body := decodeError(t, rec)
	assert.Equal(t, quote.CodeNoMatchingRate, body.Code)
	assert.Equal(t, "flat_rate", body.Details["mode"])
	assert.Equal(t, "sagawa", body.Details["carrier"])
	assert.Equal(t, float64(100), body.Details["size"])

	rec = s.do(t, "POST", "/api/quote", map[string]interface{}{"carrier": "sagawa"})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, quote.CodeEmptyCart, decodeError(t, rec).Code)

	rec = s.do(t, "PUT", "/api/pricing-mode", map[string]string{"mode": "zone"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, "POST", "/api/quote", map[string]interface{}{
		"lines":      []map[string]int{{"size": 60, "quantity": 1}},
		"carrier":    "sagawa",
		"prefecture": "沖縄県",
	})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	body = decodeError(t, rec)
	assert.Equal(t, quote.CodeUnassignedZone, body.Code)
	assert.Equal(t, "沖縄県", body.Details["prefecture"])

	rec = s.do(t, "POST", "/api/rules", map[string]interface{}{
		"name": "bad", "fromSize": 80, "quantity": 2, "toSize": 60,
	})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, quote.CodeInvalidRule, decodeError(t, rec).Code)
}

func TestValidationErrors(t *testing.T) {
	s := newTestServer(t, true)

	rec := s.do(t, "POST", "/api/quote", map[string]interface{}{
		"lines":   []map[string]int{{"size": 60, "quantity": 0}},
		"carrier": "yamato",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	body := decodeError(t, rec)
	assert.Equal(t, CodeValidation, body.Code)
	assert.Contains(t, body.Details, "lines[0].quantity")

	rec = s.do(t, "POST", "/api/quote", map[string]interface{}{
		"lines":   []map[string]int{{"size": 90, "quantity": 1}},
		"carrier": "yamato",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, "POST", "/api/quote", map[string]interface{}{
		"lines":   []map[string]int{{"size": 60, "quantity": 1}},
		"carrier": "fedex",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, "PUT", "/api/pricing-mode", map[string]string{"mode": "distance"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, "GET", "/api/rates/bogus", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req := httptest.NewRequest("POST", "/api/rules", bytes.NewBufferString("{not json"))
	raw := httptest.NewRecorder()
	s.handler.ServeHTTP(raw, req)
	assert.Equal(t, http.StatusBadRequest, raw.Code)
}

func TestZoneModeEndToEnd(t *testing.T) {
	s := newTestServer(t, true)

	rec := s.do(t, "POST", "/api/zones", map[string]interface{}{"name": "九州", "displayOrder": 1})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var zone struct {
		ID int64 `json:"id"`
	}
	decode(t, rec, &zone)

	rec = s.do(t, "POST", "/api/zones", map[string]interface{}{"name": "九州"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = s.do(t, "PUT", "/api/zones/assignments/"+url.PathEscape("福岡県"), map[string]int64{"zoneId": zone.ID})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = s.do(t, "PUT", "/api/zones/assignments/"+url.PathEscape("Atlantis"), map[string]int64{"zoneId": zone.ID})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, "GET", "/api/zones/assignments", nil)
	var assignments struct {
		Assignments []map[string]interface{} `json:"assignments"`
		Unassigned  []string                 `json:"unassigned"`
	}
	decode(t, rec, &assignments)
	assert.Len(t, assignments.Assignments, 1)
	assert.Len(t, assignments.Unassigned, 46)

	rec = s.do(t, "PUT", "/api/rates/zone", map[string]interface{}{
		"carrier": "japan_post", "size": 60, "zoneId": zone.ID, "basePrice": 1210,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = s.do(t, "PUT", "/api/rates/zone", map[string]interface{}{
		"carrier": "japan_post", "size": 60, "basePrice": 1210,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, "PUT", "/api/pricing-mode", map[string]string{"mode": "zone"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, "POST", "/api/quote/compare", map[string]interface{}{
		"lines":      []map[string]int{{"size": 60, "quantity": 1}},
		"prefecture": "福岡県",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var compare struct {
		Carriers []struct {
			Carrier  string `json:"carrier"`
			Cheapest bool   `json:"cheapest"`
			Error    string `json:"error"`
		} `json:"carriers"`
	}
	decode(t, rec, &compare)
	require.Len(t, compare.Carriers, 3)
	for _, c := range compare.Carriers {
		if c.Carrier == "japan_post" {
			assert.True(t, c.Cheapest)
			assert.Empty(t, c.Error)
		} else {
			assert.NotEmpty(t, c.Error)
		}
	}

	rec = s.do(t, "DELETE", "/api/rates/zone?carrier=japan_post&size=60&zoneId="+strconv.FormatInt(zone.ID, 10), nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = s.do(t, "DELETE", "/api/zones/assignments/"+url.PathEscape("福岡県"), nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = s.do(t, "DELETE", "/api/zones/"+strconv.FormatInt(zone.ID, 10), nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestProductQuote(t *testing.T) {
	s := newTestServer(t, true)

	rec := s.do(t, "PUT", "/api/rates/prefecture", map[string]interface{}{
		"carrier": "sagawa", "size": 120, "prefecture": "大阪府", "basePrice": 1800, "coolSurcharge": 440,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = s.do(t, "PUT", "/api/pricing-mode", map[string]string{"mode": "prefecture"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, "POST", "/api/products", map[string]interface{}{"name": "みかん", "shippingSize": 80, "price": 2500})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var product struct {
		ID int64 `json:"id"`
	}
	decode(t, rec, &product)

	rec = s.do(t, "POST", "/api/products/"+strconv.FormatInt(product.ID, 10)+"/variants", map[string]interface{}{
		"name": "10kg", "shippingSize": 120, "weightGrams": 10000, "price": 4800,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var variant struct {
		ID int64 `json:"id"`
	}
	decode(t, rec, &variant)

	rec = s.do(t, "POST", "/api/quote", map[string]interface{}{
		"items":        []map[string]int64{{"productId": product.ID, "variantId": variant.ID, "quantity": 1}},
		"carrier":      "sagawa",
		"prefecture":   "大阪府",
		"coolDelivery": true,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var q quoteResponse
	decode(t, rec, &q)
	assert.Equal(t, 120, q.FinalSize)
	assert.Equal(t, int64(2240), q.Total)

	rec = s.do(t, "POST", "/api/quote", map[string]interface{}{
		"items":   []map[string]int64{{"productId": 999, "quantity": 1}},
		"carrier": "sagawa",
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, "GET", "/api/products", nil)
	var list struct {
		Total int `json:"total"`
	}
	decode(t, rec, &list)
	assert.Equal(t, 1, list.Total)
}

func TestRuleCRUD(t *testing.T) {
	s := newTestServer(t, true)

	rec := s.do(t, "POST", "/api/rules", map[string]interface{}{
		"name": "80x3 to 120", "fromSize": 80, "quantity": 3, "toSize": 120, "enabled": false,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var rule struct {
		ID      int64 `json:"id"`
		Enabled bool  `json:"enabled"`
	}
	decode(t, rec, &rule)
	assert.False(t, rule.Enabled)

	path := "/api/rules/" + strconv.FormatInt(rule.ID, 10)
	rec = s.do(t, "PUT", path, map[string]interface{}{
		"name": "80x2 to 100", "fromSize": 80, "quantity": 2, "toSize": 100,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = s.do(t, "GET", "/api/rules", nil)
	var list struct {
		Rules []struct {
			Quantity int  `json:"quantity"`
			Enabled  bool `json:"enabled"`
		} `json:"rules"`
	}
	decode(t, rec, &list)
	require.Len(t, list.Rules, 1)
	assert.Equal(t, 2, list.Rules[0].Quantity)
	assert.True(t, list.Rules[0].Enabled)

	rec = s.do(t, "DELETE", path, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = s.do(t, "DELETE", path, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, CodeNotFound, decodeError(t, rec).Code)

	rec = s.do(t, "DELETE", "/api/rules/abc", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSettingsExportImport(t *testing.T) {
	s := newTestServer(t, true)

	rec := s.do(t, "POST", "/api/rules", map[string]interface{}{
		"name": "60x2 to 80", "fromSize": 60, "quantity": 2, "toSize": 80,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = s.do(t, "GET", "/api/settings/export", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "shipping-settings-")

	var bundle map[string]interface{}
	decode(t, rec, &bundle)
	assert.EqualValues(t, 1, bundle["version"])
	assert.Equal(t, "flat_rate", bundle["pricingMode"])
	assert.Len(t, bundle["rules"], 1)

	rec = s.do(t, "POST", "/api/settings/import", bundle)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var result struct {
		Status string `json:"status"`
		Rules  int    `json:"rules"`
	}
	decode(t, rec, &result)
	assert.Equal(t, "success", result.Status)
	assert.Equal(t, 1, result.Rules)

	// Import replaces rules rather than appending
	rules, err := s.db.ListConsolidationRules(context.Background(), s.tenantID)
	require.NoError(t, err)
	assert.Len(t, rules, 1)

	rec = s.do(t, "POST", "/api/settings/import", map[string]interface{}{"version": 2})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, CodeValidation, decodeError(t, rec).Code)
}
