// Package sale holds the pure calculators of the sale transaction engine:
// per-line totals and aggregate totals. No side effects, no storage.
package sale

import (
	"errors"
	"strings"

	"github.com/shopspring/decimal"

	"tiendapos/backend/internal/domain"
	"tiendapos/backend/internal/money"
)

var (
	ErrInvalidLineItem = errors.New("invalid line item")
	ErrInvalidCustomer = errors.New("invalid customer")
)

const (
	maxItemNameLen = 200
	maxSKULen      = 100
	maxQty         = 1000
)

var hundred = decimal.NewFromInt(100)

// ComputeLine validates one cart line and produces its persisted form.
// The per-item discount is floored at zero: a discount above the unit price
// yields a zero line total, never a negative one.
func ComputeLine(req domain.LineItemRequest) (domain.LineItem, error) {
	if req.Name == "" || len(req.Name) > maxItemNameLen {
		return domain.LineItem{}, ErrInvalidLineItem
	}
	if len(req.SKU) > maxSKULen {
		return domain.LineItem{}, ErrInvalidLineItem
	}
	if req.Qty < 1 || req.Qty > maxQty {
		return domain.LineItem{}, ErrInvalidLineItem
	}
	if req.UnitPrice < 0 || req.UnitDiscount < 0 {
		return domain.LineItem{}, ErrInvalidLineItem
	}

	net := req.UnitPrice - req.UnitDiscount
	if net < 0 {
		net = 0
	}

	return domain.LineItem{
		Name:           req.Name,
		SKU:            req.SKU,
		Qty:            req.Qty,
		UnitPriceCents: req.UnitPrice,
		DiscountCents:  req.UnitDiscount,
		LineTotalCents: net * money.Cents(req.Qty),
	}, nil
}

// Totals is the aggregate output of ComputeTotals.
type Totals struct {
	SubtotalCents    money.Cents
	DiscountApplied  money.Cents
	TaxableBaseCents money.Cents
	TaxCents         money.Cents
	TotalCents       money.Cents
}

// ComputeTotals aggregates computed line items into sale totals. The order
// level discount is capped at the subtotal, so the taxable base can never go
// negative; tax is rounded half away from zero, once, at this step.
// Callers guarantee at least one item (an empty cart is rejected upstream).
func ComputeTotals(items []domain.LineItem, requestedDiscount money.Cents, taxRate decimal.Decimal) Totals {
	subtotal := money.Cents(0)
	for _, item := range items {
		subtotal += item.LineTotalCents
	}

	applied := requestedDiscount
	if applied > subtotal {
		applied = subtotal
	}
	base := subtotal - applied

	tax := money.Cents(decimal.NewFromInt(int64(base)).Mul(taxRate).Div(hundred).Round(0).IntPart())

	return Totals{
		SubtotalCents:    subtotal,
		DiscountApplied:  applied,
		TaxableBaseCents: base,
		TaxCents:         tax,
		TotalCents:       base + tax,
	}
}

// ResolveCustomer applies the documented precedence rule: inline new-customer
// attributes win over an explicit customer id when both are supplied. It
// returns the inline customer to create (or nil) and the id to reference
// (or nil for an anonymous walk-in sale). Existence of a referenced id is a
// storage-layer concern and is not checked here.
func ResolveCustomer(customerID *int64, inline *domain.NewCustomer) (*domain.NewCustomer, *int64, error) {
	if inline != nil {
		trimmed := domain.NewCustomer{
			Name:    strings.TrimSpace(inline.Name),
			Phone:   strings.TrimSpace(inline.Phone),
			Address: strings.TrimSpace(inline.Address),
		}
		if trimmed.Name == "" {
			return nil, nil, ErrInvalidCustomer
		}
		return &trimmed, nil, nil
	}
	return nil, customerID, nil
}
