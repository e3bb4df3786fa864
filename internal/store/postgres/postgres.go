package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"tiendapos/backend/internal/domain"
	"tiendapos/backend/internal/money"
	"tiendapos/backend/internal/store"
	"tiendapos/backend/internal/xid"
)

//go:embed schema.sql
var schema string

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// EnsureSchema applies the idempotent schema at startup.
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

func (s *Store) CreateSale(ctx context.Context, header domain.Sale, items []domain.LineItem, newCustomer *domain.NewCustomer, payment *domain.Payment) (domain.SaleResult, error) {
	if len(items) == 0 {
		return domain.SaleResult{}, fmt.Errorf("%w: sale without items", store.ErrStorageFailure)
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return domain.SaleResult{}, storageErr(err)
	}
	defer func() { _ = tx.Rollback() }()

	customerID := header.CustomerID
	if newCustomer != nil {
		var id int64
		err := tx.QueryRowContext(ctx, `
			INSERT INTO customers (name, phone, address)
			VALUES ($1, $2, $3)
			RETURNING id
		`, newCustomer.Name, nullIfEmpty(newCustomer.Phone), nullIfEmpty(newCustomer.Address)).Scan(&id)
		if err != nil {
			return domain.SaleResult{}, storageErr(err)
		}
		customerID = &id
	}

	var saleID int64
	err = tx.QueryRowContext(ctx, `
		INSERT INTO sales (
			status, customer_id, seller_name, subtotal_cents, discount_total_cents,
			tax_rate, tax_cents, total_cents, payment_method, payment_details, note
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		RETURNING id
	`, header.Status, customerID, nullIfEmpty(header.SellerName), header.SubtotalCents,
		header.DiscountCents, header.TaxRate, header.TaxCents, header.TotalCents,
		nullIfEmpty(header.PaymentMethod), nullIfEmpty(header.PaymentDetails),
		nullIfEmpty(header.Note)).Scan(&saleID)
	if err != nil {
		return domain.SaleResult{}, storageErr(err)
	}

	for _, item := range items {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO sale_items (sale_id, product_name, sku, qty, price_cents, discount_cents, line_total_cents)
			VALUES ($1,$2,$3,$4,$5,$6,$7)
		`, saleID, item.Name, nullIfEmpty(item.SKU), item.Qty, item.UnitPriceCents, item.DiscountCents, item.LineTotalCents)
		if err != nil {
			return domain.SaleResult{}, storageErr(err)
		}
	}

	if payment != nil {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO payments (sale_id, method, amount_cents)
			VALUES ($1,$2,$3)
		`, saleID, nullIfEmpty(payment.Method), payment.AmountCents)
		if err != nil {
			return domain.SaleResult{}, storageErr(err)
		}
	}

	if err := tx.Commit(); err != nil {
		return domain.SaleResult{}, storageErr(err)
	}

	return domain.SaleResult{
		SaleID:     saleID,
		TotalCents: header.TotalCents,
		TaxCents:   header.TaxCents,
	}, nil
}

func (s *Store) ListSales(ctx context.Context, limit int) ([]domain.Sale, error) {
	if limit < 1 {
		limit = 200
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT s.id, s.status, s.customer_id, COALESCE(c.name, ''), s.seller_name,
			s.subtotal_cents, s.discount_total_cents, s.tax_rate, s.tax_cents,
			s.total_cents, s.payment_method, s.payment_details, s.note, s.created_at
		FROM sales s
		LEFT JOIN customers c ON c.id = s.customer_id
		ORDER BY s.id DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sales := make([]domain.Sale, 0, limit)
	for rows.Next() {
		sale, err := scanSale(rows)
		if err != nil {
			return nil, err
		}
		sales = append(sales, sale)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return sales, nil
}

func (s *Store) GetSale(ctx context.Context, id int64) (*domain.SaleDetail, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT s.id, s.status, s.customer_id, COALESCE(c.name, ''), s.seller_name,
			s.subtotal_cents, s.discount_total_cents, s.tax_rate, s.tax_cents,
			s.total_cents, s.payment_method, s.payment_details, s.note, s.created_at
		FROM sales s
		LEFT JOIN customers c ON c.id = s.customer_id
		WHERE s.id = $1
	`, id)
	sale, err := scanSale(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	itemRows, err := s.db.QueryContext(ctx, `
		SELECT id, sale_id, product_name, COALESCE(sku, ''), qty, price_cents, discount_cents, line_total_cents
		FROM sale_items
		WHERE sale_id = $1
		ORDER BY id ASC
	`, id)
	if err != nil {
		return nil, err
	}
	defer itemRows.Close()

	items := make([]domain.LineItem, 0, 8)
	for itemRows.Next() {
		var item domain.LineItem
		if err := itemRows.Scan(&item.ID, &item.SaleID, &item.Name, &item.SKU, &item.Qty, &item.UnitPriceCents, &item.DiscountCents, &item.LineTotalCents); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := itemRows.Err(); err != nil {
		return nil, err
	}

	detail := &domain.SaleDetail{Sale: sale, Items: items}

	var payment domain.Payment
	var method sql.NullString
	err = s.db.QueryRowContext(ctx, `
		SELECT id, sale_id, method, amount_cents
		FROM payments
		WHERE sale_id = $1
	`, id).Scan(&payment.ID, &payment.SaleID, &method, &payment.AmountCents)
	if err == nil {
		payment.Method = method.String
		detail.Payment = &payment
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	return detail, nil
}

func (s *Store) GetDailySummary(ctx context.Context, from time.Time, to time.Time) (domain.DailySummary, error) {
	summary := domain.DailySummary{
		Date:     from.Format("2006-01-02"),
		ByMethod: make([]domain.PaymentMethodTotal, 0, 4),
	}

	var totalCents money.Cents
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(total_cents), 0)::bigint
		FROM sales
		WHERE status = $1 AND created_at >= $2 AND created_at < $3
	`, domain.SaleStatusPaid, from, to).Scan(&totalCents)
	if err != nil {
		return summary, err
	}
	summary.TodayTotal = totalCents.Dollars()

	rows, err := s.db.QueryContext(ctx, `
		SELECT COALESCE(payment_method, ''), COALESCE(SUM(total_cents), 0)::bigint
		FROM sales
		WHERE status = $1 AND created_at >= $2 AND created_at < $3
		GROUP BY payment_method
		ORDER BY payment_method
	`, domain.SaleStatusPaid, from, to)
	if err != nil {
		return summary, err
	}
	defer rows.Close()

	for rows.Next() {
		var method string
		var cents money.Cents
		if err := rows.Scan(&method, &cents); err != nil {
			return summary, err
		}
		summary.ByMethod = append(summary.ByMethod, domain.PaymentMethodTotal{
			Method: method,
			Total:  cents.Dollars(),
		})
	}
	if err := rows.Err(); err != nil {
		return summary, err
	}
	return summary, nil
}

func (s *Store) ListCustomers(ctx context.Context) ([]domain.Customer, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, COALESCE(phone, ''), COALESCE(email, ''), COALESCE(address, ''), COALESCE(notes, ''), created_at
		FROM customers
		ORDER BY id DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	customers := make([]domain.Customer, 0, 64)
	for rows.Next() {
		var c domain.Customer
		if err := rows.Scan(&c.ID, &c.Name, &c.Phone, &c.Email, &c.Address, &c.Notes, &c.CreatedAt); err != nil {
			return nil, err
		}
		c.CreatedAt = c.CreatedAt.UTC()
		customers = append(customers, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return customers, nil
}

func (s *Store) CreateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error) {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO customers (name, phone, email, address, notes)
		VALUES ($1,$2,$3,$4,$5)
		RETURNING id, created_at
	`, customer.Name, nullIfEmpty(customer.Phone), nullIfEmpty(customer.Email),
		nullIfEmpty(customer.Address), nullIfEmpty(customer.Notes)).Scan(&customer.ID, &customer.CreatedAt)
	if err != nil {
		return nil, err
	}
	customer.CreatedAt = customer.CreatedAt.UTC()
	return &customer, nil
}

func (s *Store) ListProducts(ctx context.Context) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, COALESCE(sku, ''), price_cents, created_at
		FROM products
		ORDER BY id DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectProducts(rows)
}

func (s *Store) SearchProducts(ctx context.Context, query string, limit int) ([]domain.Product, error) {
	if limit < 1 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, COALESCE(sku, ''), price_cents, created_at
		FROM products
		WHERE name ILIKE '%' || $1 || '%'
		ORDER BY name
		LIMIT $2
	`, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectProducts(rows)
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO products (name, sku, price_cents)
		VALUES ($1,$2,$3)
		RETURNING id, created_at
	`, product.Name, nullIfEmpty(product.SKU), product.PriceCents).Scan(&product.ID, &product.CreatedAt)
	if err != nil {
		return nil, err
	}
	product.CreatedAt = product.CreatedAt.UTC()
	return &product, nil
}

func (s *Store) UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE products
		SET name = $2, sku = $3, price_cents = $4
		WHERE id = $1
	`, product.ID, product.Name, nullIfEmpty(product.SKU), product.PriceCents)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}
	updated := product
	return &updated, nil
}

func (s *Store) DeleteProduct(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) GetSettings(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM settings`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	values := make(map[string]string, 8)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, err
		}
		values[key] = value
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return values, nil
}

func (s *Store) UpsertSettings(ctx context.Context, values map[string]string) error {
	if len(values) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return storageErr(err)
	}
	defer func() { _ = tx.Rollback() }()

	for key, value := range values {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO settings (key, value)
			VALUES ($1, $2)
			ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value
		`, key, value)
		if err != nil {
			return storageErr(err)
		}
	}

	if err := tx.Commit(); err != nil {
		return storageErr(err)
	}
	return nil
}

func (s *Store) CreateAuditLog(ctx context.Context, entry domain.AuditLog) error {
	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_logs (id, actor_role, action, entity_type, entity_id, detail, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, entry.ID, entry.ActorRole, entry.Action, entry.EntityType, entry.EntityID, entry.Detail, entry.CreatedAt)
	return err
}

func (s *Store) ListAuditLogs(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	if limit < 1 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, actor_role, action, entity_type, entity_id, detail, created_at
		FROM audit_logs
		WHERE created_at >= $1 AND created_at < $2
		ORDER BY created_at DESC
		LIMIT $3
	`, from, to, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]domain.AuditLog, 0, limit)
	for rows.Next() {
		var entry domain.AuditLog
		if err := rows.Scan(&entry.ID, &entry.ActorRole, &entry.Action, &entry.EntityType, &entry.EntityID, &entry.Detail, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entry.CreatedAt = entry.CreatedAt.UTC()
		logs = append(logs, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return logs, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSale(row rowScanner) (domain.Sale, error) {
	var sale domain.Sale
	var customerID sql.NullInt64
	var sellerName, paymentMethod, paymentDetails, note sql.NullString

	err := row.Scan(
		&sale.ID,
		&sale.Status,
		&customerID,
		&sale.CustomerName,
		&sellerName,
		&sale.SubtotalCents,
		&sale.DiscountCents,
		&sale.TaxRate,
		&sale.TaxCents,
		&sale.TotalCents,
		&paymentMethod,
		&paymentDetails,
		&note,
		&sale.CreatedAt,
	)
	if err != nil {
		return domain.Sale{}, err
	}
	if customerID.Valid {
		id := customerID.Int64
		sale.CustomerID = &id
	}
	sale.SellerName = sellerName.String
	sale.PaymentMethod = paymentMethod.String
	sale.PaymentDetails = paymentDetails.String
	sale.Note = note.String
	sale.CreatedAt = sale.CreatedAt.UTC()
	return sale, nil
}

func collectProducts(rows *sql.Rows) ([]domain.Product, error) {
	products := make([]domain.Product, 0, 64)
	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.SKU, &p.PriceCents, &p.CreatedAt); err != nil {
			return nil, err
		}
		p.CreatedAt = p.CreatedAt.UTC()
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return products, nil
}

func storageErr(err error) error {
	return fmt.Errorf("%w: %v", store.ErrStorageFailure, err)
}

func nullIfEmpty(value string) any {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return value
}
