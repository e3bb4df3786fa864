package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"tiendapos/backend/internal/cache"
	"tiendapos/backend/internal/domain"
	"tiendapos/backend/internal/obs"
	"tiendapos/backend/internal/sale"
	"tiendapos/backend/internal/store"
	"tiendapos/backend/internal/xid"
)

var (
	// ErrInvalidRequest marks a request the calculators accept structurally
	// but the service rejects (bad status, non-whitelisted setting,
	// oversized field).
	ErrInvalidRequest = errors.New("invalid request")
	// ErrForbidden marks an operation the acting role may not perform.
	ErrForbidden = errors.New("admin role required")
)

const (
	settingsCacheKey = "settings:v1"
	maxMethodLen     = 50
)

// settingKeys is the closed set of persisted configuration keys.
var settingKeys = map[string]struct{}{
	"tax_rate":      {},
	"brand_name":    {},
	"brand_address": {},
	"brand_phone":   {},
	"brand_taxid":   {},
}

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

type Service struct {
	repo           store.Repository
	settingsCache  cache.SettingsCache
	metrics        *obs.Metrics
	logger         zerolog.Logger
	defaultTaxRate decimal.Decimal
	cacheTTL       time.Duration
}

func New(repo store.Repository, settingsCache cache.SettingsCache, metrics *obs.Metrics, logger zerolog.Logger, defaultTaxRate decimal.Decimal, cacheTTL time.Duration) *Service {
	if settingsCache == nil {
		settingsCache = cache.NoopSettingsCache{}
	}
	if cacheTTL < time.Second {
		cacheTTL = 30 * time.Second
	}

	return &Service{
		repo:           repo,
		settingsCache:  settingsCache,
		metrics:        metrics,
		logger:         logger,
		defaultTaxRate: defaultTaxRate,
		cacheTTL:       cacheTTL,
	}
}

// SubmitSale runs one sale through the full pipeline: tax-rate snapshot,
// customer resolution, line computation, totals, then a single atomic store
// call. Nothing persists unless every step succeeds.
func (s *Service) SubmitSale(ctx context.Context, sub domain.SaleSubmission) (domain.SaleResult, error) {
	status := strings.TrimSpace(sub.Status)
	if status == "" {
		status = domain.SaleStatusPaid
	}
	switch status {
	case domain.SaleStatusPaid, domain.SaleStatusLayaway, domain.SaleStatusQuote:
	default:
		return domain.SaleResult{}, fmt.Errorf("%w: unsupported status %q", ErrInvalidRequest, status)
	}

	if len(sub.Items) == 0 {
		return domain.SaleResult{}, fmt.Errorf("%w: sale requires at least one item", sale.ErrInvalidLineItem)
	}
	if sub.DiscountCents < 0 {
		return domain.SaleResult{}, fmt.Errorf("%w: negative order discount", ErrInvalidRequest)
	}
	if len(sub.PaymentMethod) > maxMethodLen {
		return domain.SaleResult{}, fmt.Errorf("%w: payment_method too long", ErrInvalidRequest)
	}

	newCustomer, customerID, err := sale.ResolveCustomer(sub.CustomerID, sub.NewCustomer)
	if err != nil {
		return domain.SaleResult{}, err
	}

	// One rate per transaction; every item shares the snapshot.
	taxRate := s.resolveTaxRate(ctx)

	items := make([]domain.LineItem, 0, len(sub.Items))
	for _, req := range sub.Items {
		item, err := sale.ComputeLine(req)
		if err != nil {
			return domain.SaleResult{}, err
		}
		items = append(items, item)
	}

	totals := sale.ComputeTotals(items, sub.DiscountCents, taxRate)

	header := domain.Sale{
		Status:         status,
		CustomerID:     customerID,
		SellerName:     strings.TrimSpace(sub.SellerName),
		SubtotalCents:  totals.SubtotalCents,
		DiscountCents:  totals.DiscountApplied,
		TaxRate:        taxRate,
		TaxCents:       totals.TaxCents,
		TotalCents:     totals.TotalCents,
		PaymentMethod:  strings.TrimSpace(sub.PaymentMethod),
		PaymentDetails: strings.TrimSpace(sub.PaymentDetails),
		Note:           strings.TrimSpace(sub.Note),
		CreatedAt:      time.Now().UTC(),
	}

	var payment *domain.Payment
	if status == domain.SaleStatusPaid && totals.TotalCents > 0 {
		payment = &domain.Payment{
			Method:      header.PaymentMethod,
			AmountCents: totals.TotalCents,
		}
	}

	result, err := s.repo.CreateSale(ctx, header, items, newCustomer, payment)
	if err != nil {
		return domain.SaleResult{}, err
	}

	if s.metrics != nil {
		s.metrics.SalesCreated.WithLabelValues(status).Inc()
	}
	s.logAudit(ctx, "sale_submit", "sale", strconv.FormatInt(result.SaleID, 10),
		fmt.Sprintf("status=%s,total_cents=%d,items=%d", status, result.TotalCents, len(items)))
	s.logger.Info().
		Int64("sale_id", result.SaleID).
		Str("status", status).
		Int64("total_cents", int64(result.TotalCents)).
		Int64("tax_cents", int64(result.TaxCents)).
		Msg("sale_created")

	return result, nil
}

func (s *Service) ListSales(ctx context.Context, limit int) ([]domain.Sale, error) {
	if limit < 1 || limit > 200 {
		limit = 200
	}
	return s.repo.ListSales(ctx, limit)
}

func (s *Service) GetSale(ctx context.Context, id int64) (*domain.SaleDetail, error) {
	if id < 1 {
		return nil, store.ErrNotFound
	}
	return s.repo.GetSale(ctx, id)
}

func (s *Service) DailySummary(ctx context.Context, date string) (domain.DailySummary, error) {
	var day time.Time
	if strings.TrimSpace(date) == "" {
		now := time.Now().UTC()
		day = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	} else {
		parsed, err := time.Parse("2006-01-02", date)
		if err != nil {
			return domain.DailySummary{}, fmt.Errorf("%w: bad date %q", ErrInvalidRequest, date)
		}
		day = parsed.UTC()
	}
	return s.repo.GetDailySummary(ctx, day, day.Add(24*time.Hour))
}

func (s *Service) ListCustomers(ctx context.Context) ([]domain.Customer, error) {
	return s.repo.ListCustomers(ctx)
}

func (s *Service) CreateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error) {
	customer.Name = strings.TrimSpace(customer.Name)
	if customer.Name == "" {
		return nil, sale.ErrInvalidCustomer
	}
	created, err := s.repo.CreateCustomer(ctx, customer)
	if err != nil {
		return nil, err
	}
	s.logAudit(ctx, "customer_create", "customer", strconv.FormatInt(created.ID, 10), created.Name)
	return created, nil
}

func (s *Service) ListProducts(ctx context.Context) ([]domain.Product, error) {
	return s.repo.ListProducts(ctx)
}

// SearchProducts returns an empty result for queries under two characters,
// matching the autocomplete behavior the endpoint serves.
func (s *Service) SearchProducts(ctx context.Context, query string) ([]domain.Product, error) {
	query = strings.TrimSpace(query)
	if len(query) < 2 {
		return []domain.Product{}, nil
	}
	return s.repo.SearchProducts(ctx, query, 10)
}

func (s *Service) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if err := s.requireAdmin(ctx); err != nil {
		return nil, err
	}
	product.Name = strings.TrimSpace(product.Name)
	product.SKU = strings.TrimSpace(product.SKU)
	if product.Name == "" || product.PriceCents < 0 {
		return nil, fmt.Errorf("%w: product requires a name and non-negative price", ErrInvalidRequest)
	}

	created, err := s.repo.CreateProduct(ctx, product)
	if err != nil {
		return nil, err
	}
	s.logAudit(ctx, "product_create", "product", strconv.FormatInt(created.ID, 10),
		fmt.Sprintf("name=%s,price_cents=%d", created.Name, created.PriceCents))
	return created, nil
}

func (s *Service) UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if err := s.requireAdmin(ctx); err != nil {
		return nil, err
	}
	product.Name = strings.TrimSpace(product.Name)
	product.SKU = strings.TrimSpace(product.SKU)
	if product.ID < 1 || product.Name == "" || product.PriceCents < 0 {
		return nil, fmt.Errorf("%w: product update requires id, name and non-negative price", ErrInvalidRequest)
	}

	updated, err := s.repo.UpdateProduct(ctx, product)
	if err != nil {
		return nil, err
	}
	s.logAudit(ctx, "product_update", "product", strconv.FormatInt(updated.ID, 10),
		fmt.Sprintf("name=%s,price_cents=%d", updated.Name, updated.PriceCents))
	return updated, nil
}

func (s *Service) DeleteProduct(ctx context.Context, id int64) error {
	if err := s.requireAdmin(ctx); err != nil {
		return err
	}
	if id < 1 {
		return store.ErrNotFound
	}
	if err := s.repo.DeleteProduct(ctx, id); err != nil {
		return err
	}
	s.logAudit(ctx, "product_delete", "product", strconv.FormatInt(id, 10), "")
	return nil
}

func (s *Service) GetSettings(ctx context.Context) (map[string]string, error) {
	return s.loadSettings(ctx)
}

// UpdateSettings accepts only whitelisted keys and rejects the batch when any
// key is unknown or tax_rate does not parse as a percentage.
func (s *Service) UpdateSettings(ctx context.Context, values map[string]string) (map[string]string, error) {
	if err := s.requireAdmin(ctx); err != nil {
		return nil, err
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("%w: no settings supplied", ErrInvalidRequest)
	}

	accepted := make(map[string]string, len(values))
	for key, value := range values {
		key = strings.TrimSpace(key)
		if _, ok := settingKeys[key]; !ok {
			return nil, fmt.Errorf("%w: unknown setting %q", ErrInvalidRequest, key)
		}
		value = strings.TrimSpace(value)
		if key == "tax_rate" {
			rate, err := decimal.NewFromString(value)
			if err != nil || rate.IsNegative() || rate.GreaterThan(decimal.NewFromInt(100)) {
				return nil, fmt.Errorf("%w: tax_rate must be a percentage between 0 and 100", ErrInvalidRequest)
			}
		}
		accepted[key] = value
	}

	if err := s.repo.UpsertSettings(ctx, accepted); err != nil {
		return nil, err
	}
	if err := s.settingsCache.Invalidate(ctx, settingsCacheKey); err != nil {
		s.logger.Warn().Err(err).Msg("settings cache invalidate failed")
	}

	keys := make([]string, 0, len(accepted))
	for key := range accepted {
		keys = append(keys, key)
	}
	s.logAudit(ctx, "settings_update", "settings", "global", strings.Join(keys, ","))

	return s.loadSettings(ctx)
}

func (s *Service) ListAuditLogs(ctx context.Context, date string, limit int) ([]domain.AuditLog, error) {
	if err := s.requireAdmin(ctx); err != nil {
		return nil, err
	}
	if limit < 1 {
		limit = 100
	}

	var from time.Time
	if strings.TrimSpace(date) == "" {
		from = time.Now().UTC().Add(-24 * time.Hour)
	} else {
		parsed, err := time.Parse("2006-01-02", date)
		if err != nil {
			return nil, fmt.Errorf("%w: bad date %q", ErrInvalidRequest, date)
		}
		from = parsed.UTC()
	}
	return s.repo.ListAuditLogs(ctx, from, from.Add(24*time.Hour), limit)
}

// resolveTaxRate reads the configured rate once: settings tax_rate key first,
// then the environment-provided default. A broken stored value falls back
// rather than failing the sale.
func (s *Service) resolveTaxRate(ctx context.Context) decimal.Decimal {
	values, err := s.loadSettings(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("settings read failed, using default tax rate")
		return s.defaultTaxRate
	}

	raw, ok := values["tax_rate"]
	if !ok || strings.TrimSpace(raw) == "" {
		return s.defaultTaxRate
	}
	rate, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil || rate.IsNegative() || rate.GreaterThan(decimal.NewFromInt(100)) {
		s.logger.Warn().Str("tax_rate", raw).Msg("stored tax_rate invalid, using default")
		return s.defaultTaxRate
	}
	return rate
}

func (s *Service) loadSettings(ctx context.Context) (map[string]string, error) {
	if cached, ok, err := s.settingsCache.Get(ctx, settingsCacheKey); err == nil && ok {
		return cached, nil
	} else if err != nil {
		s.logger.Debug().Err(err).Msg("settings cache read failed")
	}

	values, err := s.repo.GetSettings(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.settingsCache.Set(ctx, settingsCacheKey, values, s.cacheTTL); err != nil {
		s.logger.Debug().Err(err).Msg("settings cache write failed")
	}
	return values, nil
}

func (s *Service) requireAdmin(ctx context.Context) error {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return ErrForbidden
	}
	return nil
}

func (s *Service) logAudit(ctx context.Context, action string, entityType string, entityID string, detail string) {
	role := "public"
	if actor, ok := ActorFromContext(ctx); ok && actor.Role != "" {
		role = actor.Role
	}

	entry := domain.AuditLog{
		ID:         xid.New("audit"),
		ActorRole:  role,
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		Detail:     detail,
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.repo.CreateAuditLog(ctx, entry); err != nil {
		s.logger.Warn().Err(err).Str("action", action).Msg("audit log write failed")
	}
}
