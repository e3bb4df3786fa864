package store

import (
	"context"
	"errors"
	"time"

	"tiendapos/backend/internal/domain"
)

var (
	ErrNotFound = errors.New("not found")
	// ErrStorageFailure marks a transaction that could not commit. The whole
	// operation has been rolled back; nothing partial persists.
	ErrStorageFailure = errors.New("storage failure")
)

type Repository interface {
	// CreateSale persists one submitted sale as a single atomic unit:
	// the optional inline customer, the sale header, every line item and the
	// optional payment row all succeed together or not at all. The store
	// assigns ids; item SaleID and payment SaleID are filled from the new
	// header row.
	CreateSale(ctx context.Context, header domain.Sale, items []domain.LineItem, newCustomer *domain.NewCustomer, payment *domain.Payment) (domain.SaleResult, error)
	ListSales(ctx context.Context, limit int) ([]domain.Sale, error)
	GetSale(ctx context.Context, id int64) (*domain.SaleDetail, error)
	GetDailySummary(ctx context.Context, from time.Time, to time.Time) (domain.DailySummary, error)

	ListCustomers(ctx context.Context) ([]domain.Customer, error)
	CreateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error)

	ListProducts(ctx context.Context) ([]domain.Product, error)
	SearchProducts(ctx context.Context, query string, limit int) ([]domain.Product, error)
	CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	DeleteProduct(ctx context.Context, id int64) error

	GetSettings(ctx context.Context) (map[string]string, error)
	UpsertSettings(ctx context.Context, values map[string]string) error

	CreateAuditLog(ctx context.Context, entry domain.AuditLog) error
	ListAuditLogs(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error)
}
