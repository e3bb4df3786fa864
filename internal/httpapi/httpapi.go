// Package httpapi exposes the sale engine over HTTP: open checkout and read
// endpoints, admin-guarded catalog and settings mutations, and /metrics.
package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/netip"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"tiendapos/backend/internal/domain"
	"tiendapos/backend/internal/money"
	"tiendapos/backend/internal/obs"
	"tiendapos/backend/internal/sale"
	"tiendapos/backend/internal/service"
	"tiendapos/backend/internal/store"
)

type API struct {
	service       *service.Service
	auth          *AuthManager
	validate      *validator.Validate
	logger        zerolog.Logger
	metrics       *obs.Metrics
	allowedOrigin string
	loginLimiter  *attemptLimiter
}

func New(svc *service.Service, auth *AuthManager, metrics *obs.Metrics, logger zerolog.Logger, allowedOrigin string) *API {
	validate := validator.New(validator.WithRequiredStructEnabled())
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	validate.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			f, _ := d.Float64()
			return f
		}
		return nil
	}, decimal.Decimal{})

	return &API{
		service:       svc,
		auth:          auth,
		validate:      validate,
		logger:        logger,
		metrics:       metrics,
		allowedOrigin: allowedOrigin,
		loginLimiter:  newAttemptLimiter(5, time.Minute),
	}
}

func (a *API) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(a.securityHeaders)
	r.Use(obs.RequestLogger{Logger: a.logger}.Middleware)
	if a.metrics != nil {
		r.Use(a.metrics.Middleware)
	}
	r.Use(middleware.Recoverer)

	r.Get("/api/health", a.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Post("/api/auth/admin-login", a.handleAdminLogin)

	r.Get("/api/settings", a.handleGetSettings)
	r.With(a.requireAdmin).Post("/api/settings", a.handleUpdateSettings)

	r.Get("/api/products", a.handleListProducts)
	r.Get("/api/products/search", a.handleSearchProducts)
	r.With(a.requireAdmin).Post("/api/products", a.handleCreateProduct)
	r.With(a.requireAdmin).Put("/api/products/{id}", a.handleUpdateProduct)
	r.With(a.requireAdmin).Delete("/api/products/{id}", a.handleDeleteProduct)

	r.Get("/api/customers", a.handleListCustomers)
	r.Post("/api/customers", a.handleCreateCustomer)

	r.Post("/api/sales", a.handleSubmitSale)
	r.Get("/api/sales", a.handleListSales)
	r.Get("/api/sales/{id}", a.handleGetSale)

	r.Get("/api/reports/summary", a.handleDailySummary)
	r.With(a.requireAdmin).Get("/api/audit-logs", a.handleAuditLogs)

	return r
}

// ---- request payloads ----

type saleItemPayload struct {
	Name     string          `json:"name" validate:"required,max=200"`
	SKU      string          `json:"sku" validate:"omitempty,max=100"`
	Price    decimal.Decimal `json:"price" validate:"gte=0"`
	Discount decimal.Decimal `json:"discount" validate:"gte=0"`
	Qty      int             `json:"qty" validate:"required,min=1,max=1000"`
}

type newCustomerPayload struct {
	Name    string `json:"name" validate:"required,max=200"`
	Phone   string `json:"phone" validate:"omitempty,max=50"`
	Address string `json:"address" validate:"omitempty,max=300"`
}

type saleSubmitPayload struct {
	Status         string              `json:"status" validate:"omitempty,oneof=paid layaway quote"`
	CustomerID     *int64              `json:"customer_id" validate:"omitempty,min=1"`
	NewCustomer    *newCustomerPayload `json:"new_customer"`
	SellerName     string              `json:"seller_name" validate:"omitempty,max=200"`
	PaymentMethod  string              `json:"payment_method" validate:"omitempty,max=50"`
	PaymentDetails string              `json:"payment_details" validate:"omitempty,max=200"`
	Discount       decimal.Decimal     `json:"discount_total" validate:"gte=0"`
	Note           string              `json:"note" validate:"omitempty,max=1000"`
	Items          []saleItemPayload   `json:"items" validate:"required,min=1,dive"`
}

type productPayload struct {
	Name  string          `json:"name" validate:"required,max=200"`
	SKU   string          `json:"sku" validate:"omitempty,max=100"`
	Price decimal.Decimal `json:"price" validate:"gte=0"`
}

type customerPayload struct {
	Name    string `json:"name" validate:"required,max=200"`
	Phone   string `json:"phone" validate:"omitempty,max=50"`
	Email   string `json:"email" validate:"omitempty,max=200"`
	Address string `json:"address" validate:"omitempty,max=300"`
	Notes   string `json:"notes" validate:"omitempty,max=500"`
}

type adminLoginPayload struct {
	PIN string `json:"pin" validate:"required,max=100"`
}

// ---- handlers ----

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ok": true,
		"at": time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) handleAdminLogin(w http.ResponseWriter, r *http.Request) {
	if !a.loginLimiter.Allow(clientKey(r)) {
		writeError(w, http.StatusTooManyRequests, errors.New("too many login attempts"))
		return
	}

	var req adminLoginPayload
	if !a.decodeValid(w, r, &req) {
		return
	}

	resp, err := a.auth.LoginAdmin(req.PIN)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleSubmitSale(w http.ResponseWriter, r *http.Request) {
	var req saleSubmitPayload
	if !a.decodeValid(w, r, &req) {
		return
	}

	sub, err := req.toSubmission()
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	result, err := a.service.SubmitSale(r.Context(), sub)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"id":    result.SaleID,
		"total": result.TotalCents.Dollars(),
		"tax":   result.TaxCents.Dollars(),
	})
}

func (p saleSubmitPayload) toSubmission() (domain.SaleSubmission, error) {
	discount, err := money.NonNegative(p.Discount)
	if err != nil {
		return domain.SaleSubmission{}, fmt.Errorf("%w: discount_total", err)
	}

	items := make([]domain.LineItemRequest, 0, len(p.Items))
	for i, item := range p.Items {
		price, err := money.NonNegative(item.Price)
		if err != nil {
			return domain.SaleSubmission{}, fmt.Errorf("%w: items[%d].price", err, i)
		}
		itemDiscount, err := money.NonNegative(item.Discount)
		if err != nil {
			return domain.SaleSubmission{}, fmt.Errorf("%w: items[%d].discount", err, i)
		}
		items = append(items, domain.LineItemRequest{
			Name:         strings.TrimSpace(item.Name),
			SKU:          strings.TrimSpace(item.SKU),
			UnitPrice:    price,
			UnitDiscount: itemDiscount,
			Qty:          item.Qty,
		})
	}

	var newCustomer *domain.NewCustomer
	if p.NewCustomer != nil {
		newCustomer = &domain.NewCustomer{
			Name:    p.NewCustomer.Name,
			Phone:   p.NewCustomer.Phone,
			Address: p.NewCustomer.Address,
		}
	}

	return domain.SaleSubmission{
		Status:         p.Status,
		CustomerID:     p.CustomerID,
		NewCustomer:    newCustomer,
		SellerName:     p.SellerName,
		PaymentMethod:  p.PaymentMethod,
		PaymentDetails: p.PaymentDetails,
		DiscountCents:  discount,
		Note:           p.Note,
		Items:          items,
	}, nil
}

func (a *API) handleListSales(w http.ResponseWriter, r *http.Request) {
	limit := parsePositiveLimit(r.URL.Query().Get("limit"), 200, 200)
	sales, err := a.service.ListSales(r.Context(), limit)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sales": sales})
}

func (a *API) handleGetSale(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, errors.New("sale id must be an integer"))
		return
	}

	detail, err := a.service.GetSale(r.Context(), id)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

func (a *API) handleDailySummary(w http.ResponseWriter, r *http.Request) {
	summary, err := a.service.DailySummary(r.Context(), r.URL.Query().Get("date"))
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (a *API) handleListCustomers(w http.ResponseWriter, r *http.Request) {
	customers, err := a.service.ListCustomers(r.Context())
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"customers": customers})
}

func (a *API) handleCreateCustomer(w http.ResponseWriter, r *http.Request) {
	var req customerPayload
	if !a.decodeValid(w, r, &req) {
		return
	}

	created, err := a.service.CreateCustomer(r.Context(), domain.Customer{
		Name:    req.Name,
		Phone:   req.Phone,
		Email:   req.Email,
		Address: req.Address,
		Notes:   req.Notes,
	})
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"customer": created})
}

func (a *API) handleListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := a.service.ListProducts(r.Context())
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"products": products})
}

func (a *API) handleSearchProducts(w http.ResponseWriter, r *http.Request) {
	products, err := a.service.SearchProducts(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"products": products})
}

func (a *API) handleCreateProduct(w http.ResponseWriter, r *http.Request) {
	var req productPayload
	if !a.decodeValid(w, r, &req) {
		return
	}

	price, err := money.NonNegative(req.Price)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("%w: price", err))
		return
	}

	created, err := a.service.CreateProduct(r.Context(), domain.Product{
		Name:       req.Name,
		SKU:        req.SKU,
		PriceCents: price,
	})
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"product": created})
}

func (a *API) handleUpdateProduct(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, errors.New("product id must be an integer"))
		return
	}

	var req productPayload
	if !a.decodeValid(w, r, &req) {
		return
	}

	price, err := money.NonNegative(req.Price)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("%w: price", err))
		return
	}

	updated, err := a.service.UpdateProduct(r.Context(), domain.Product{
		ID:         id,
		Name:       req.Name,
		SKU:        req.SKU,
		PriceCents: price,
	})
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"product": updated})
}

func (a *API) handleDeleteProduct(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, errors.New("product id must be an integer"))
		return
	}

	if err := a.service.DeleteProduct(r.Context(), id); err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (a *API) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	values, err := a.service.GetSettings(r.Context())
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"settings": values})
}

func (a *API) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	var values map[string]string
	if err := decodeJSON(r, &values); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	updated, err := a.service.UpdateSettings(r.Context(), values)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"settings": updated})
}

func (a *API) handleAuditLogs(w http.ResponseWriter, r *http.Request) {
	limit := parsePositiveLimit(r.URL.Query().Get("limit"), 100, 500)
	logs, err := a.service.ListAuditLogs(r.Context(), r.URL.Query().Get("date"), limit)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"logs": logs})
}

// ---- middleware ----

func (a *API) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authorization := strings.TrimSpace(r.Header.Get("Authorization"))
		if !strings.HasPrefix(strings.ToLower(authorization), "bearer ") {
			writeError(w, http.StatusUnauthorized, errors.New("missing bearer token"))
			return
		}

		actor, err := a.auth.ParseToken(strings.TrimSpace(authorization[len("Bearer "):]))
		if err != nil {
			writeError(w, http.StatusUnauthorized, err)
			return
		}
		if actor.Role != "admin" {
			writeError(w, http.StatusForbidden, errors.New("forbidden role"))
			return
		}

		next.ServeHTTP(w, r.WithContext(service.WithActor(r.Context(), actor)))
	})
}

func (a *API) securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Access-Control-Allow-Origin", a.allowedOrigin)
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
		w.Header().Set("Vary", "Origin")

		if r.Method == http.MethodPost || r.Method == http.MethodPut {
			r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// ---- login rate limiting ----

type attemptLimiter struct {
	mu      sync.Mutex
	max     int
	window  time.Duration
	entries map[string][]time.Time
}

func newAttemptLimiter(max int, window time.Duration) *attemptLimiter {
	if max < 1 {
		max = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &attemptLimiter{max: max, window: window, entries: make(map[string][]time.Time)}
}

func (l *attemptLimiter) Allow(key string) bool {
	if l == nil {
		return true
	}
	now := time.Now()
	cutoff := now.Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	history := l.entries[key]
	kept := make([]time.Time, 0, len(history)+1)
	for _, ts := range history {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	if len(kept) >= l.max {
		l.entries[key] = kept
		return false
	}
	kept = append(kept, now)
	l.entries[key] = kept
	return true
}

func clientKey(r *http.Request) string {
	host := strings.TrimSpace(r.RemoteAddr)
	if host == "" {
		return "unknown"
	}
	if addr, err := netip.ParseAddrPort(host); err == nil {
		return addr.Addr().String()
	}
	if idx := strings.LastIndex(host, ":"); idx > 0 {
		return host[:idx]
	}
	return host
}

// ---- helpers ----

// decodeValid decodes the JSON body into dest and runs struct validation,
// answering 400 with per-field messages on failure.
func (a *API) decodeValid(w http.ResponseWriter, r *http.Request, dest any) bool {
	if err := decodeJSON(r, dest); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return false
	}
	if err := a.validate.Struct(dest); err != nil {
		var invalid validator.ValidationErrors
		if errors.As(err, &invalid) {
			fields := make(map[string]string, len(invalid))
			for _, fe := range invalid {
				fields[fieldPath(fe)] = validationMessage(fe)
			}
			writeJSON(w, http.StatusBadRequest, map[string]any{
				"error":  "validation failed",
				"fields": fields,
			})
			return false
		}
		writeError(w, http.StatusBadRequest, err)
		return false
	}
	return true
}

// fieldPath turns validator's namespace ("saleSubmitPayload.Items[0].Qty")
// into the request's own field path ("items[0].qty").
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if idx := strings.Index(ns, "."); idx >= 0 {
		ns = ns[idx+1:]
	}
	return strings.ToLower(ns)
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return "must be at least " + fe.Param()
	case "max":
		return "must be at most " + fe.Param()
	case "gte":
		return "must not be negative"
	case "oneof":
		return "must be one of: " + fe.Param()
	default:
		return "is invalid"
	}
}

func (a *API) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, money.ErrInvalidAmount),
		errors.Is(err, sale.ErrInvalidLineItem),
		errors.Is(err, sale.ErrInvalidCustomer),
		errors.Is(err, service.ErrInvalidRequest):
		writeError(w, http.StatusBadRequest, err)
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, err)
	case errors.Is(err, service.ErrForbidden):
		writeError(w, http.StatusForbidden, err)
	case errors.Is(err, store.ErrStorageFailure):
		a.logger.Error().Err(err).Msg("storage failure")
		writeError(w, http.StatusInternalServerError, err)
	default:
		a.logger.Error().Err(err).Msg("unhandled service error")
		writeError(w, http.StatusInternalServerError, err)
	}
}

func decodeJSON(r *http.Request, dest any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(dest)
}

func parsePositiveLimit(raw string, fallback int, max int) int {
	limit := fallback
	if trimmed := strings.TrimSpace(raw); trimmed != "" {
		if parsed, err := strconv.Atoi(trimmed); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if max > 0 && limit > max {
		return max
	}
	return limit
}

func writeError(w http.ResponseWriter, status int, err error) {
	msg := err.Error()
	if status >= 500 {
		// Internal details stay in the log, not the response.
		msg = "internal server error"
	}
	writeJSON(w, status, map[string]any{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
