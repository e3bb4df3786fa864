package domain

import (
	"time"

	"github.com/shopspring/decimal"

	"tiendapos/backend/internal/money"
)

const (
	SaleStatusPaid    = "paid"
	SaleStatusLayaway = "layaway"
	SaleStatusQuote   = "quote"
)

type Product struct {
	ID         int64       `json:"id"`
	Name       string      `json:"name"`
	SKU        string      `json:"sku,omitempty"`
	PriceCents money.Cents `json:"price_cents"`
	CreatedAt  time.Time   `json:"created_at"`
}

type Customer struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Phone     string    `json:"phone,omitempty"`
	Email     string    `json:"email,omitempty"`
	Address   string    `json:"address,omitempty"`
	Notes     string    `json:"notes,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// NewCustomer carries the inline customer attributes a sale submission may
// provide instead of an existing customer id.
type NewCustomer struct {
	Name    string `json:"name"`
	Phone   string `json:"phone,omitempty"`
	Address string `json:"address,omitempty"`
}

// LineItemRequest is one proposed cart line. Amounts are already in cents;
// conversion from decimal dollars happens at the HTTP boundary.
type LineItemRequest struct {
	Name         string
	SKU          string
	UnitPrice    money.Cents
	UnitDiscount money.Cents
	Qty          int
}

// LineItem is the computed, persisted form of a LineItemRequest. Owned by its
// parent sale and immutable once written.
type LineItem struct {
	ID             int64       `json:"id"`
	SaleID         int64       `json:"sale_id"`
	Name           string      `json:"product_name"`
	SKU            string      `json:"sku,omitempty"`
	Qty            int         `json:"qty"`
	UnitPriceCents money.Cents `json:"price_cents"`
	DiscountCents  money.Cents `json:"discount_cents"`
	LineTotalCents money.Cents `json:"line_total_cents"`
}

// Sale is the aggregate root. Financial fields are immutable after creation;
// there is no update path for totals.
type Sale struct {
	ID             int64           `json:"id"`
	Status         string          `json:"status"`
	CustomerID     *int64          `json:"customer_id,omitempty"`
	CustomerName   string          `json:"customer_name,omitempty"`
	SellerName     string          `json:"seller_name,omitempty"`
	SubtotalCents  money.Cents     `json:"subtotal_cents"`
	DiscountCents  money.Cents     `json:"discount_total_cents"`
	TaxRate        decimal.Decimal `json:"tax_rate"`
	TaxCents       money.Cents     `json:"tax_cents"`
	TotalCents     money.Cents     `json:"total_cents"`
	PaymentMethod  string          `json:"payment_method,omitempty"`
	PaymentDetails string          `json:"payment_details,omitempty"`
	Note           string          `json:"note,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}

// Payment is the single full-amount payment row created for a paid sale.
// Exactly one per paid sale; never created independently.
type Payment struct {
	ID          int64       `json:"id"`
	SaleID      int64       `json:"sale_id"`
	Method      string      `json:"method,omitempty"`
	AmountCents money.Cents `json:"amount_cents"`
}

// SaleSubmission is the coordinator's input: a fully converted, cents-typed
// proposed sale. The tax rate is not part of it; the coordinator snapshots
// the configured rate once per transaction.
type SaleSubmission struct {
	Status         string
	CustomerID     *int64
	NewCustomer    *NewCustomer
	SellerName     string
	PaymentMethod  string
	PaymentDetails string
	DiscountCents  money.Cents
	Note           string
	Items          []LineItemRequest
}

// SaleResult is what a successful submission returns.
type SaleResult struct {
	SaleID     int64
	TotalCents money.Cents
	TaxCents   money.Cents
}

// SaleDetail bundles a sale header with its owned rows for read endpoints.
type SaleDetail struct {
	Sale    Sale       `json:"sale"`
	Items   []LineItem `json:"items"`
	Payment *Payment   `json:"payment,omitempty"`
}

type PaymentMethodTotal struct {
	Method string `json:"method"`
	Total  string `json:"total"`
}

type DailySummary struct {
	Date       string               `json:"date"`
	TodayTotal string               `json:"today_total"`
	ByMethod   []PaymentMethodTotal `json:"by_method"`
}

type Actor struct {
	Role string
}

type AuditLog struct {
	ID         string    `json:"id"`
	ActorRole  string    `json:"actor_role"`
	Action     string    `json:"action"`
	EntityType string    `json:"entity_type"`
	EntityID   string    `json:"entity_id"`
	Detail     string    `json:"detail"`
	CreatedAt  time.Time `json:"created_at"`
}
