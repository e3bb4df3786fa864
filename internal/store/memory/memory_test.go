package memory

import (
	"context"
	"errors"
	"testing"

	"tiendapos/backend/internal/domain"
	"tiendapos/backend/internal/store"
)

func TestCreateSaleUnknownCustomerPersistsNothing(t *testing.T) {
	s := New()
	missing := int64(42)

	_, err := s.CreateSale(context.Background(), domain.Sale{
		Status:     domain.SaleStatusPaid,
		CustomerID: &missing,
		TotalCents: 100,
	}, []domain.LineItem{{Name: "Widget", Qty: 1, UnitPriceCents: 100, LineTotalCents: 100}}, nil, nil)
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	sales, err := s.ListSales(context.Background(), 10)
	if err != nil {
		t.Fatalf("ListSales failed: %v", err)
	}
	if len(sales) != 0 {
		t.Fatalf("failed sale must not persist, found %d", len(sales))
	}
}

func TestCreateSaleLinksInlineCustomer(t *testing.T) {
	s := New()

	result, err := s.CreateSale(context.Background(), domain.Sale{
		Status:     domain.SaleStatusPaid,
		TotalCents: 100,
	}, []domain.LineItem{{Name: "Widget", Qty: 1, UnitPriceCents: 100, LineTotalCents: 100}},
		&domain.NewCustomer{Name: "Walk In"},
		&domain.Payment{Method: "cash", AmountCents: 100})
	if err != nil {
		t.Fatalf("CreateSale failed: %v", err)
	}

	detail, err := s.GetSale(context.Background(), result.SaleID)
	if err != nil {
		t.Fatalf("GetSale failed: %v", err)
	}
	if detail.Sale.CustomerID == nil || detail.Sale.CustomerName != "Walk In" {
		t.Fatalf("expected inline customer linked, got %+v", detail.Sale)
	}
	if detail.Payment == nil || detail.Payment.SaleID != result.SaleID {
		t.Fatalf("expected payment bound to sale, got %+v", detail.Payment)
	}

	customers, err := s.ListCustomers(context.Background())
	if err != nil {
		t.Fatalf("ListCustomers failed: %v", err)
	}
	if len(customers) != 1 {
		t.Fatalf("expected 1 created customer, got %d", len(customers))
	}
}

func TestSeededStoreHasCatalog(t *testing.T) {
	s := NewSeeded()

	products, err := s.ListProducts(context.Background())
	if err != nil {
		t.Fatalf("ListProducts failed: %v", err)
	}
	if len(products) == 0 {
		t.Fatalf("seeded store should expose a starter catalog")
	}

	settings, err := s.GetSettings(context.Background())
	if err != nil {
		t.Fatalf("GetSettings failed: %v", err)
	}
	if settings["tax_rate"] == "" {
		t.Fatalf("seeded store should carry a tax_rate setting")
	}
}
