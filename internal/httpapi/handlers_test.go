package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"tiendapos/backend/internal/cache"
	"tiendapos/backend/internal/service"
	"tiendapos/backend/internal/store/memory"
)

func newTestAPI(t *testing.T) http.Handler {
	t.Helper()
	repo := memory.New()
	svc := service.New(repo, cache.NoopSettingsCache{}, nil, zerolog.Nop(), decimal.RequireFromString("8.25"), 30*time.Second)
	auth := NewAuthManager("test-secret", time.Hour, "1234", "")
	api := New(svc, auth, nil, zerolog.Nop(), "http://127.0.0.1:3000")
	return api.Handler()
}

func doJSON(t *testing.T, handler http.Handler, method string, path string, body any, token string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode request body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func adminToken(t *testing.T, handler http.Handler) string {
	t.Helper()
	rec := doJSON(t, handler, http.MethodPost, "/api/auth/admin-login", map[string]string{"pin": "1234"}, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("admin login failed: status %d body %s", rec.Code, rec.Body.String())
	}
	var resp TokenResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode login response: %v", err)
	}
	return resp.AccessToken
}

func TestSubmitSaleEndpoint(t *testing.T) {
	handler := newTestAPI(t)

	body := map[string]any{
		"status":         "paid",
		"payment_method": "cash",
		"discount_total": "20.00",
		"items": []map[string]any{
			{"name": "Thing One", "price": "100.00", "qty": 2},
			{"name": "Thing Two", "price": "50.00", "discount": "5.00", "qty": 1},
			{"name": "Small Thing", "price": "5.00", "qty": 1},
		},
	}
	rec := doJSON(t, handler, http.MethodPost, "/api/sales", body, "")
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		ID    int64  `json:"id"`
		Total string `json:"total"`
		Tax   string `json:"tax"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.ID < 1 {
		t.Fatalf("expected assigned sale id, got %d", resp.ID)
	}
	// subtotal 250.00, order discount 20.00, base 230.00,
	// tax 8.25% = 18.975 rounds to 18.98
	if resp.Tax != "18.98" {
		t.Fatalf("expected tax 18.98, got %q", resp.Tax)
	}
	if resp.Total != "248.98" {
		t.Fatalf("expected total 248.98, got %q", resp.Total)
	}

	getRec := doJSON(t, handler, http.MethodGet, fmt.Sprintf("/api/sales/%d", resp.ID), nil, "")
	if getRec.Code != http.StatusOK {
		t.Fatalf("expected 200 on sale read, got %d", getRec.Code)
	}
}

func TestSubmitSaleOrderDiscountFieldName(t *testing.T) {
	handler := newTestAPI(t)

	// The order-level discount is named discount_total; only line items use
	// the bare discount name. Strict decoding rejects a misplaced name
	// instead of silently dropping the discount.
	rec := doJSON(t, handler, http.MethodPost, "/api/sales", map[string]any{
		"status":         "paid",
		"discount_total": "10.00",
		"items":          []map[string]any{{"name": "Widget", "price": "100.00", "qty": 1}},
	}, "")
	if rec.Code != http.StatusCreated {
		t.Fatalf("documented body must be accepted, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Total string `json:"total"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	// 90.00 base + 8.25% tax = 97.43 (7.425 rounds up)
	if resp.Total != "97.43" {
		t.Fatalf("order discount was not applied, total %q", resp.Total)
	}

	rec = doJSON(t, handler, http.MethodPost, "/api/sales", map[string]any{
		"status":   "paid",
		"discount": "10.00",
		"items":    []map[string]any{{"name": "Widget", "price": "100.00", "qty": 1}},
	}, "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("sale-level discount field must be rejected as unknown, got %d", rec.Code)
	}
}

func TestSubmitSaleValidationNamesFields(t *testing.T) {
	handler := newTestAPI(t)

	rec := doJSON(t, handler, http.MethodPost, "/api/sales", map[string]any{
		"status": "paid",
		"items": []map[string]any{
			{"name": "", "price": "1.00", "qty": 0},
		},
	}, "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Error  string            `json:"error"`
		Fields map[string]string `json:"fields"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Fields) == 0 {
		t.Fatalf("expected offending fields in validation response, got %s", rec.Body.String())
	}
	if _, ok := resp.Fields["items[0].name"]; !ok {
		t.Fatalf("expected items[0].name violation, got %v", resp.Fields)
	}
	if _, ok := resp.Fields["items[0].qty"]; !ok {
		t.Fatalf("expected items[0].qty violation, got %v", resp.Fields)
	}
}

func TestSubmitSaleAcceptsLongSellerAndNote(t *testing.T) {
	handler := newTestAPI(t)

	rec := doJSON(t, handler, http.MethodPost, "/api/sales", map[string]any{
		"status":      "paid",
		"seller_name": strings.Repeat("s", 200),
		"note":        strings.Repeat("n", 1000),
		"items":       []map[string]any{{"name": "Widget", "price": "1.00", "qty": 1}},
	}, "")
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 at field limits, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, handler, http.MethodPost, "/api/sales", map[string]any{
		"status": "paid",
		"note":   strings.Repeat("n", 1001),
		"items":  []map[string]any{{"name": "Widget", "price": "1.00", "qty": 1}},
	}, "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 over the note limit, got %d", rec.Code)
	}
}

func TestSubmitSaleUnknownStatusRejectedByValidator(t *testing.T) {
	handler := newTestAPI(t)

	rec := doJSON(t, handler, http.MethodPost, "/api/sales", map[string]any{
		"status": "refunded",
		"items":  []map[string]any{{"name": "Widget", "price": "1.00", "qty": 1}},
	}, "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestGetSaleNotFound(t *testing.T) {
	handler := newTestAPI(t)

	rec := doJSON(t, handler, http.MethodGet, "/api/sales/999", nil, "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestAdminLoginWrongPIN(t *testing.T) {
	handler := newTestAPI(t)

	rec := doJSON(t, handler, http.MethodPost, "/api/auth/admin-login", map[string]string{"pin": "9999"}, "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestProductMutationRequiresToken(t *testing.T) {
	handler := newTestAPI(t)

	body := map[string]any{"name": "Widget", "price": "12.50"}
	rec := doJSON(t, handler, http.MethodPost, "/api/products", body, "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}

	token := adminToken(t, handler)
	rec = doJSON(t, handler, http.MethodPost, "/api/products", body, token)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 with token, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestProductSearchEndpoint(t *testing.T) {
	handler := newTestAPI(t)
	token := adminToken(t, handler)

	rec := doJSON(t, handler, http.MethodPost, "/api/products", map[string]any{"name": "House Blend Coffee", "price": "12.50"}, token)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create product failed: %d", rec.Code)
	}

	rec = doJSON(t, handler, http.MethodGet, "/api/products/search?q=coffee", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp struct {
		Products []json.RawMessage `json:"products"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Products) != 1 {
		t.Fatalf("expected 1 search hit, got %d", len(resp.Products))
	}

	rec = doJSON(t, handler, http.MethodGet, "/api/products/search?q=c", nil, "")
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Products) != 0 {
		t.Fatalf("one-character query must return nothing, got %d", len(resp.Products))
	}
}

func TestSettingsRoundTrip(t *testing.T) {
	handler := newTestAPI(t)
	token := adminToken(t, handler)

	rec := doJSON(t, handler, http.MethodPost, "/api/settings", map[string]string{"tax_rate": "5", "brand_name": "Tienda"}, token)
	if rec.Code != http.StatusOK {
		t.Fatalf("settings update failed: %d %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, handler, http.MethodGet, "/api/settings", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("settings read failed: %d", rec.Code)
	}
	var resp struct {
		Settings map[string]string `json:"settings"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Settings["tax_rate"] != "5" || resp.Settings["brand_name"] != "Tienda" {
		t.Fatalf("unexpected settings: %v", resp.Settings)
	}

	// The stored rate now drives checkout tax.
	saleRec := doJSON(t, handler, http.MethodPost, "/api/sales", map[string]any{
		"status": "paid",
		"items":  []map[string]any{{"name": "Widget", "price": "100.00", "qty": 1}},
	}, "")
	if saleRec.Code != http.StatusCreated {
		t.Fatalf("sale failed: %d %s", saleRec.Code, saleRec.Body.String())
	}
	var saleResp struct {
		Tax string `json:"tax"`
	}
	if err := json.Unmarshal(saleRec.Body.Bytes(), &saleResp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if saleResp.Tax != "5.00" {
		t.Fatalf("expected tax 5.00 at stored 5%% rate, got %q", saleResp.Tax)
	}
}

func TestSettingsRejectUnknownKey(t *testing.T) {
	handler := newTestAPI(t)
	token := adminToken(t, handler)

	rec := doJSON(t, handler, http.MethodPost, "/api/settings", map[string]string{"receipt_footer": "thanks"}, token)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown setting, got %d", rec.Code)
	}
}

func TestAdminLoginRateLimited(t *testing.T) {
	handler := newTestAPI(t)

	var last int
	for i := 0; i < 7; i++ {
		rec := doJSON(t, handler, http.MethodPost, "/api/auth/admin-login", map[string]string{"pin": "0000"}, "")
		last = rec.Code
	}
	if last != http.StatusTooManyRequests {
		t.Fatalf("expected 429 after repeated failures, got %d", last)
	}
}
