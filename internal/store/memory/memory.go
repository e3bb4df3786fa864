// Package memory holds an in-memory Repository used for local development
// and tests when no DATABASE_URL is configured.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"tiendapos/backend/internal/domain"
	"tiendapos/backend/internal/money"
	"tiendapos/backend/internal/store"
	"tiendapos/backend/internal/xid"
)

type Store struct {
	mu sync.RWMutex

	settings  map[string]string
	products  map[int64]domain.Product
	customers map[int64]domain.Customer
	sales     map[int64]domain.Sale
	items     map[int64][]domain.LineItem
	payments  map[int64]domain.Payment
	audits    []domain.AuditLog

	nextProductID  int64
	nextCustomerID int64
	nextSaleID     int64
	nextItemID     int64
	nextPaymentID  int64
}

func New() *Store {
	return &Store{
		settings:       make(map[string]string),
		products:       make(map[int64]domain.Product),
		customers:      make(map[int64]domain.Customer),
		sales:          make(map[int64]domain.Sale),
		items:          make(map[int64][]domain.LineItem),
		payments:       make(map[int64]domain.Payment),
		nextProductID:  1,
		nextCustomerID: 1,
		nextSaleID:     1,
		nextItemID:     1,
		nextPaymentID:  1,
	}
}

// NewSeeded returns a store preloaded with a small catalog so the API is
// usable out of the box in dev mode.
func NewSeeded() *Store {
	s := New()
	now := time.Now().UTC()

	seedProducts := []domain.Product{
		{Name: "House Blend Coffee 12oz", SKU: "COF-012", PriceCents: 1250},
		{Name: "Espresso Roast 12oz", SKU: "COF-013", PriceCents: 1395},
		{Name: "Ceramic Mug", SKU: "MUG-001", PriceCents: 899},
		{Name: "Travel Tumbler 16oz", SKU: "TUM-016", PriceCents: 2199},
		{Name: "Gift Card Sleeve", SKU: "GFT-100", PriceCents: 150},
	}
	for _, p := range seedProducts {
		p.ID = s.nextProductID
		p.CreatedAt = now
		s.products[p.ID] = p
		s.nextProductID++
	}

	seedCustomers := []domain.Customer{
		{Name: "Dana Whitfield", Phone: "555-0142"},
		{Name: "Marcus Lee", Phone: "555-0177", Email: "marcus@example.com"},
	}
	for _, c := range seedCustomers {
		c.ID = s.nextCustomerID
		c.CreatedAt = now
		s.customers[c.ID] = c
		s.nextCustomerID++
	}

	s.settings["brand_name"] = "Tienda POS"
	s.settings["tax_rate"] = "8.25"
	return s
}

func (s *Store) Close() error { return nil }

func (s *Store) CreateSale(_ context.Context, header domain.Sale, items []domain.LineItem, newCustomer *domain.NewCustomer, payment *domain.Payment) (domain.SaleResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if newCustomer != nil {
		customer := domain.Customer{
			ID:        s.nextCustomerID,
			Name:      newCustomer.Name,
			Phone:     newCustomer.Phone,
			Address:   newCustomer.Address,
			CreatedAt: time.Now().UTC(),
		}
		s.nextCustomerID++
		s.customers[customer.ID] = customer
		header.CustomerID = &customer.ID
		header.CustomerName = customer.Name
	} else if header.CustomerID != nil {
		customer, ok := s.customers[*header.CustomerID]
		if !ok {
			return domain.SaleResult{}, store.ErrNotFound
		}
		header.CustomerName = customer.Name
	}

	header.ID = s.nextSaleID
	s.nextSaleID++
	if header.CreatedAt.IsZero() {
		header.CreatedAt = time.Now().UTC()
	}
	s.sales[header.ID] = header

	stored := make([]domain.LineItem, 0, len(items))
	for _, item := range items {
		item.ID = s.nextItemID
		s.nextItemID++
		item.SaleID = header.ID
		stored = append(stored, item)
	}
	s.items[header.ID] = stored

	if payment != nil {
		p := *payment
		p.ID = s.nextPaymentID
		s.nextPaymentID++
		p.SaleID = header.ID
		s.payments[header.ID] = p
	}

	return domain.SaleResult{
		SaleID:     header.ID,
		TotalCents: header.TotalCents,
		TaxCents:   header.TaxCents,
	}, nil
}

func (s *Store) ListSales(_ context.Context, limit int) ([]domain.Sale, error) {
	if limit < 1 {
		limit = 200
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	sales := make([]domain.Sale, 0, len(s.sales))
	for _, sale := range s.sales {
		sales = append(sales, sale)
	}
	sort.Slice(sales, func(i, j int) bool { return sales[i].ID > sales[j].ID })
	if len(sales) > limit {
		sales = sales[:limit]
	}
	return sales, nil
}

func (s *Store) GetSale(_ context.Context, id int64) (*domain.SaleDetail, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sale, ok := s.sales[id]
	if !ok {
		return nil, store.ErrNotFound
	}

	detail := &domain.SaleDetail{
		Sale:  sale,
		Items: append([]domain.LineItem(nil), s.items[id]...),
	}
	if payment, ok := s.payments[id]; ok {
		p := payment
		detail.Payment = &p
	}
	return detail, nil
}

func (s *Store) GetDailySummary(_ context.Context, from time.Time, to time.Time) (domain.DailySummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var total money.Cents
	byMethod := make(map[string]money.Cents)
	for _, sale := range s.sales {
		if sale.Status != domain.SaleStatusPaid {
			continue
		}
		if sale.CreatedAt.Before(from) || !sale.CreatedAt.Before(to) {
			continue
		}
		total += sale.TotalCents
		byMethod[sale.PaymentMethod] += sale.TotalCents
	}

	methods := make([]string, 0, len(byMethod))
	for method := range byMethod {
		methods = append(methods, method)
	}
	sort.Strings(methods)

	summary := domain.DailySummary{
		Date:       from.Format("2006-01-02"),
		TodayTotal: total.Dollars(),
		ByMethod:   make([]domain.PaymentMethodTotal, 0, len(methods)),
	}
	for _, method := range methods {
		summary.ByMethod = append(summary.ByMethod, domain.PaymentMethodTotal{
			Method: method,
			Total:  byMethod[method].Dollars(),
		})
	}
	return summary, nil
}

func (s *Store) ListCustomers(_ context.Context) ([]domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	customers := make([]domain.Customer, 0, len(s.customers))
	for _, c := range s.customers {
		customers = append(customers, c)
	}
	sort.Slice(customers, func(i, j int) bool { return customers[i].ID > customers[j].ID })
	return customers, nil
}

func (s *Store) CreateCustomer(_ context.Context, customer domain.Customer) (*domain.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	customer.ID = s.nextCustomerID
	s.nextCustomerID++
	customer.CreatedAt = time.Now().UTC()
	s.customers[customer.ID] = customer
	return &customer, nil
}

func (s *Store) ListProducts(_ context.Context) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		products = append(products, p)
	}
	sort.Slice(products, func(i, j int) bool { return products[i].ID > products[j].ID })
	return products, nil
}

func (s *Store) SearchProducts(_ context.Context, query string, limit int) ([]domain.Product, error) {
	if limit < 1 {
		limit = 10
	}
	needle := strings.ToLower(query)

	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := make([]domain.Product, 0, limit)
	for _, p := range s.products {
		if strings.Contains(strings.ToLower(p.Name), needle) {
			matched = append(matched, p)
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].Name < matched[j].Name })
	if len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	product.ID = s.nextProductID
	s.nextProductID++
	product.CreatedAt = time.Now().UTC()
	s.products[product.ID] = product
	return &product, nil
}

func (s *Store) UpdateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.products[product.ID]
	if !ok {
		return nil, store.ErrNotFound
	}
	product.CreatedAt = existing.CreatedAt
	s.products[product.ID] = product
	return &product, nil
}

func (s *Store) DeleteProduct(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.products[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.products, id)
	return nil
}

func (s *Store) GetSettings(_ context.Context) (map[string]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	values := make(map[string]string, len(s.settings))
	for k, v := range s.settings {
		values[k] = v
	}
	return values, nil
}

func (s *Store) UpsertSettings(_ context.Context, values map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for k, v := range values {
		s.settings[k] = v
	}
	return nil
}

func (s *Store) CreateAuditLog(_ context.Context, entry domain.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	s.audits = append(s.audits, entry)
	return nil
}

func (s *Store) ListAuditLogs(_ context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	if limit < 1 {
		limit = 100
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	logs := make([]domain.AuditLog, 0, limit)
	for i := len(s.audits) - 1; i >= 0 && len(logs) < limit; i-- {
		entry := s.audits[i]
		if entry.CreatedAt.Before(from) || !entry.CreatedAt.Before(to) {
			continue
		}
		logs = append(logs, entry)
	}
	return logs, nil
}
