package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"qayd/backend/internal/domain"
	"qayd/backend/internal/store"
	"qayd/backend/internal/xid"
)

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

func (s *Store) ListProducts(ctx context.Context, branchID string) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, category, unit_type, price_cents, price_per_kg_cents, track_stock, active, created_at
		FROM products
		WHERE active = true
		ORDER BY category, name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 128)
	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Category, &p.UnitType, &p.PriceCents, &p.PricePerKgCents, &p.TrackStock, &p.Active, &p.CreatedAt); err != nil {
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

func (s *Store) CreateProduct(ctx context.Context, branchID string, product domain.Product, initialStock int) (*domain.Product, error) {
	if product.Name == "" || product.Category == "" {
		return nil, store.ErrInvalidRecord
	}
	if product.UnitType == domain.UnitGram {
		if product.PricePerKgCents < 1 {
			return nil, store.ErrInvalidRecord
		}
	} else if product.PriceCents < 1 {
		return nil, store.ErrInvalidRecord
	}
	if product.ID == "" {
		product.ID = xid.New("prd")
	}
	if product.CreatedAt.IsZero() {
		product.CreatedAt = time.Now().UTC()
	}
	product.Active = true

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO products (id, name, category, unit_type, price_cents, price_per_kg_cents, track_stock, active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,now())
	`, product.ID, product.Name, product.Category, product.UnitType, product.PriceCents, product.PricePerKgCents, product.TrackStock, product.Active, product.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrInvalidRecord
		}
		return nil, err
	}

	if product.TrackStock {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO branch_stocks (branch_id, product_id, qty, updated_at)
			VALUES ($1,$2,$3,now())
			ON CONFLICT (branch_id, product_id)
			DO UPDATE SET qty = EXCLUDED.qty, updated_at = now()
		`, branchID, product.ID, initialStock)
		if err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	created := product
	return &created, nil
}

func (s *Store) GetProductByID(ctx context.Context, id string) (*domain.Product, error) {
	var p domain.Product
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, category, unit_type, price_cents, price_per_kg_cents, track_stock, active, created_at
		FROM products
		WHERE id = $1
	`, id).Scan(&p.ID, &p.Name, &p.Category, &p.UnitType, &p.PriceCents, &p.PricePerKgCents, &p.TrackStock, &p.Active, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	p.CreatedAt = p.CreatedAt.UTC()
	return &p, nil
}

func (s *Store) GetProductsByIDs(ctx context.Context, ids []string) (map[string]domain.Product, error) {
	result := make(map[string]domain.Product, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, category, unit_type, price_cents, price_per_kg_cents, track_stock, active, created_at
		FROM products
		WHERE active = true AND id = ANY($1)
	`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Category, &p.UnitType, &p.PriceCents, &p.PricePerKgCents, &p.TrackStock, &p.Active, &p.CreatedAt); err != nil {
			return nil, err
		}
		p.CreatedAt = p.CreatedAt.UTC()
		result[p.ID] = p
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (s *Store) UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if product.ID == "" || product.Name == "" || product.Category == "" {
		return nil, store.ErrInvalidRecord
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE products
		SET name = $2, category = $3, price_cents = $4, price_per_kg_cents = $5, active = $6, updated_at = now()
		WHERE id = $1
	`, product.ID, product.Name, product.Category, product.PriceCents, product.PricePerKgCents, product.Active)
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

func (s *Store) CreatePriceHistory(ctx context.Context, entry domain.ProductPriceHistory) error {
	if entry.ID == "" {
		entry.ID = xid.New("ph")
	}
	if entry.ChangedAt.IsZero() {
		entry.ChangedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO product_price_history (id, product_id, old_price_cents, new_price_cents, changed_by, changed_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, entry.ID, entry.ProductID, entry.OldPriceCents, entry.NewPriceCents, entry.ChangedBy, entry.ChangedAt)
	return err
}

func (s *Store) ListPriceHistory(ctx context.Context, productID string, limit int) ([]domain.ProductPriceHistory, error) {
	if limit < 1 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, product_id, old_price_cents, new_price_cents, changed_by, changed_at
		FROM product_price_history
		WHERE product_id = $1
		ORDER BY changed_at DESC
		LIMIT $2
	`, productID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	history := make([]domain.ProductPriceHistory, 0, limit)
	for rows.Next() {
		var entry domain.ProductPriceHistory
		if err := rows.Scan(&entry.ID, &entry.ProductID, &entry.OldPriceCents, &entry.NewPriceCents, &entry.ChangedBy, &entry.ChangedAt); err != nil {
			return nil, err
		}
		entry.ChangedAt = entry.ChangedAt.UTC()
		history = append(history, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return history, nil
}

func (s *Store) GetStockMap(ctx context.Context, branchID string, productIDs []string) (map[string]int, error) {
	stockMap := make(map[string]int, len(productIDs))
	if len(productIDs) == 0 {
		return stockMap, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT product_id, qty
		FROM branch_stocks
		WHERE branch_id = $1 AND product_id = ANY($2)
	`, branchID, productIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var productID string
		var qty int
		if err := rows.Scan(&productID, &qty); err != nil {
			return nil, err
		}
		stockMap[productID] = qty
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, id := range productIDs {
		if _, ok := stockMap[id]; !ok {
			stockMap[id] = 0
		}
	}

	return stockMap, nil
}

func (s *Store) SetStock(ctx context.Context, branchID string, productID string, qty int) error {
	if productID == "" || qty < 0 {
		return store.ErrInvalidRecord
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO branch_stocks (branch_id, product_id, qty, updated_at)
		VALUES ($1,$2,$3,now())
		ON CONFLICT (branch_id, product_id)
		DO UPDATE SET qty = EXCLUDED.qty, updated_at = now()
	`, branchID, productID, qty)
	return err
}

func (s *Store) ListAddons(ctx context.Context) ([]domain.Addon, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, price_cents, active, created_at
		FROM addons
		ORDER BY name ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	addons := make([]domain.Addon, 0, 32)
	for rows.Next() {
		var a domain.Addon
		if err := rows.Scan(&a.ID, &a.Name, &a.PriceCents, &a.Active, &a.CreatedAt); err != nil {
			return nil, err
		}
		a.CreatedAt = a.CreatedAt.UTC()
		addons = append(addons, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return addons, nil
}

func (s *Store) GetAddonsByIDs(ctx context.Context, ids []string) (map[string]domain.Addon, error) {
	result := make(map[string]domain.Addon, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, price_cents, active, created_at
		FROM addons
		WHERE active = true AND id = ANY($1)
	`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var a domain.Addon
		if err := rows.Scan(&a.ID, &a.Name, &a.PriceCents, &a.Active, &a.CreatedAt); err != nil {
			return nil, err
		}
		result[a.ID] = a
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) CreateAddon(ctx context.Context, addon domain.Addon) (*domain.Addon, error) {
	addon.Name = strings.TrimSpace(addon.Name)
	if addon.Name == "" || addon.PriceCents < 1 {
		return nil, store.ErrInvalidRecord
	}
	if addon.ID == "" {
		addon.ID = xid.New("add")
	}
	if addon.CreatedAt.IsZero() {
		addon.CreatedAt = time.Now().UTC()
	}
	addon.Active = true

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO addons (id, name, price_cents, active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,now())
	`, addon.ID, addon.Name, addon.PriceCents, addon.Active, addon.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrInvalidRecord
		}
		return nil, err
	}
	created := addon
	return &created, nil
}

func (s *Store) UpdateAddon(ctx context.Context, addon domain.Addon) (*domain.Addon, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE addons
		SET name = $2, price_cents = $3, active = $4, updated_at = now()
		WHERE id = $1
	`, addon.ID, addon.Name, addon.PriceCents, addon.Active)
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
	updated := addon
	return &updated, nil
}

func (s *Store) ListCoupons(ctx context.Context) ([]domain.Coupon, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, code, type, discount_percent, flat_discount_cents, min_subtotal_cents, expires_at, active, created_at
		FROM coupons
		ORDER BY created_at ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	coupons := make([]domain.Coupon, 0, 16)
	for rows.Next() {
		coupon, err := scanCoupon(rows)
		if err != nil {
			return nil, err
		}
		coupons = append(coupons, coupon)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return coupons, nil
}

func (s *Store) GetCouponByCode(ctx context.Context, code string) (*domain.Coupon, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	row := s.db.QueryRowContext(ctx, `
		SELECT id, code, type, discount_percent, flat_discount_cents, min_subtotal_cents, expires_at, active, created_at
		FROM coupons
		WHERE code = $1
	`, code)
	coupon, err := scanCoupon(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &coupon, nil
}

func (s *Store) CreateCoupon(ctx context.Context, coupon domain.Coupon) (*domain.Coupon, error) {
	coupon.Code = strings.ToUpper(strings.TrimSpace(coupon.Code))
	if coupon.Code == "" {
		return nil, store.ErrInvalidRecord
	}
	if coupon.Type != "percent" && coupon.Type != "flat" {
		return nil, store.ErrInvalidRecord
	}
	if coupon.Type == "percent" && (coupon.DiscountPercent <= 0 || coupon.DiscountPercent > 100) {
		return nil, store.ErrInvalidRecord
	}
	if coupon.Type == "flat" && coupon.FlatDiscountCents <= 0 {
		return nil, store.ErrInvalidRecord
	}
	if coupon.ID == "" {
		coupon.ID = xid.New("cpn")
	}
	if coupon.CreatedAt.IsZero() {
		coupon.CreatedAt = time.Now().UTC()
	}
	coupon.Active = true

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO coupons (id, code, type, discount_percent, flat_discount_cents, min_subtotal_cents, expires_at, active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,now())
	`, coupon.ID, coupon.Code, coupon.Type, coupon.DiscountPercent, coupon.FlatDiscountCents, coupon.MinSubtotalCents, nullTime(coupon.ExpiresAt), coupon.Active, coupon.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrInvalidRecord
		}
		return nil, err
	}
	created := coupon
	return &created, nil
}

func (s *Store) SetCouponActive(ctx context.Context, couponID string, active bool) (*domain.Coupon, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE coupons
		SET active = $2, updated_at = now()
		WHERE id = $1
		RETURNING id, code, type, discount_percent, flat_discount_cents, min_subtotal_cents, expires_at, active, created_at
	`, couponID, active)
	coupon, err := scanCoupon(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &coupon, nil
}

func (s *Store) ListZones(ctx context.Context) ([]domain.DeliveryZone, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, delivery_fee_cents, polygon, active, created_at
		FROM delivery_zones
		ORDER BY name ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	zones := make([]domain.DeliveryZone, 0, 16)
	for rows.Next() {
		var zone domain.DeliveryZone
		var polygonRaw []byte
		if err := rows.Scan(&zone.ID, &zone.Name, &zone.DeliveryFeeCents, &polygonRaw, &zone.Active, &zone.CreatedAt); err != nil {
			return nil, err
		}
		zone.CreatedAt = zone.CreatedAt.UTC()
		if len(polygonRaw) > 0 {
			if err := json.Unmarshal(polygonRaw, &zone.Polygon); err != nil {
				return nil, err
			}
		}
		zones = append(zones, zone)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return zones, nil
}

func (s *Store) GetZoneByID(ctx context.Context, id string) (*domain.DeliveryZone, error) {
	var zone domain.DeliveryZone
	var polygonRaw []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, delivery_fee_cents, polygon, active, created_at
		FROM delivery_zones
		WHERE id = $1
	`, id).Scan(&zone.ID, &zone.Name, &zone.DeliveryFeeCents, &polygonRaw, &zone.Active, &zone.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	zone.CreatedAt = zone.CreatedAt.UTC()
	if len(polygonRaw) > 0 {
		if err := json.Unmarshal(polygonRaw, &zone.Polygon); err != nil {
			return nil, err
		}
	}
	return &zone, nil
}

func (s *Store) CreateZone(ctx context.Context, zone domain.DeliveryZone) (*domain.DeliveryZone, error) {
	zone.Name = strings.TrimSpace(zone.Name)
	if zone.Name == "" || zone.DeliveryFeeCents < 0 {
		return nil, store.ErrInvalidRecord
	}
	if len(zone.Polygon) > 0 && len(zone.Polygon) < 3 {
		return nil, store.ErrInvalidRecord
	}
	if zone.ID == "" {
		zone.ID = xid.New("zone")
	}
	if zone.CreatedAt.IsZero() {
		zone.CreatedAt = time.Now().UTC()
	}
	zone.Active = true

	polygonJSON, err := json.Marshal(zone.Polygon)
	if err != nil {
		return nil, err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO delivery_zones (id, name, delivery_fee_cents, polygon, active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,now())
	`, zone.ID, zone.Name, zone.DeliveryFeeCents, polygonJSON, zone.Active, zone.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrInvalidRecord
		}
		return nil, err
	}
	created := zone
	return &created, nil
}

func (s *Store) UpdateZone(ctx context.Context, zone domain.DeliveryZone) (*domain.DeliveryZone, error) {
	if len(zone.Polygon) > 0 && len(zone.Polygon) < 3 {
		return nil, store.ErrInvalidRecord
	}
	polygonJSON, err := json.Marshal(zone.Polygon)
	if err != nil {
		return nil, err
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE delivery_zones
		SET name = $2, delivery_fee_cents = $3, polygon = $4, active = $5, updated_at = now()
		WHERE id = $1
	`, zone.ID, zone.Name, zone.DeliveryFeeCents, polygonJSON, zone.Active)
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
	updated := zone
	return &updated, nil
}

func (s *Store) CreateOrder(ctx context.Context, order domain.Order, payments []domain.Payment, deductions []domain.StockAdjustment) (*domain.Order, error) {
	if order.IdempotencyKey == "" || len(order.Items) == 0 {
		return nil, store.ErrInvalidRecord
	}
	if order.ID == "" {
		order.ID = xid.New("ord")
	}
	if order.CreatedAt.IsZero() {
		order.CreatedAt = time.Now().UTC()
	}
	order.UpdatedAt = order.CreatedAt
	if order.Status == "" {
		order.Status = domain.OrderStatusPaid
	}

	itemsJSON, err := json.Marshal(order.Items)
	if err != nil {
		return nil, err
	}
	splitsJSON, err := json.Marshal(order.PaymentSplits)
	if err != nil {
		return nil, err
	}

	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	lockedShifts := make(map[string]bool, 1)
	for _, p := range payments {
		if lockedShifts[p.ShiftID] {
			continue
		}
		if err := lockOpenShift(ctx, pgTx, p.ShiftID); err != nil {
			return nil, err
		}
		lockedShifts[p.ShiftID] = true
	}

	for _, adj := range deductions {
		if adj.Qty < 1 {
			continue
		}
		var qty int
		err := pgTx.QueryRowContext(ctx, `
			SELECT qty
			FROM branch_stocks
			WHERE branch_id = $1 AND product_id = $2
			FOR UPDATE
		`, order.BranchID, adj.ProductID).Scan(&qty)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, store.ErrInsufficientStock
			}
			return nil, err
		}
		if qty < adj.Qty {
			return nil, store.ErrInsufficientStock
		}
		_, err = pgTx.ExecContext(ctx, `
			UPDATE branch_stocks
			SET qty = qty - $1, updated_at = now()
			WHERE branch_id = $2 AND product_id = $3
		`, adj.Qty, order.BranchID, adj.ProductID)
		if err != nil {
			return nil, err
		}
	}

	_, err = pgTx.ExecContext(ctx, `
		INSERT INTO orders (
			id, branch_id, terminal_id, shift_id, idempotency_key, order_source, status,
			customer_name, phone_number, address, delivery_zone_id, items,
			subtotal_cents, discount_cents, coupon_code, delivery_fee_cents,
			tax_rate_percent, tax_cents, total_cents, currency, fx_rate, base_total_cents,
			payment_method, payment_reference, payment_splits, cash_received_cents, change_cents,
			note, invoice_print_count, created_at, updated_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24,$25,$26,$27,$28,$29,$30,$31)
	`, order.ID, order.BranchID, order.TerminalID, nullIfEmpty(order.ShiftID), order.IdempotencyKey,
		order.OrderSource, order.Status, order.CustomerName, order.PhoneNumber, order.Address,
		nullIfEmpty(order.DeliveryZoneID), itemsJSON, order.SubtotalCents, order.DiscountCents,
		nullIfEmpty(order.CouponCode), order.DeliveryFeeCents, order.TaxRatePercent, order.TaxCents,
		order.TotalCents, order.Currency, order.FXRate, order.BaseTotalCents, order.PaymentMethod,
		nullIfEmpty(order.PaymentReference), splitsJSON, order.CashReceivedCents, order.ChangeCents,
		order.Note, order.InvoicePrintCount, order.CreatedAt, order.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			existing, lookupErr := s.FindOrderByIdempotency(ctx, order.IdempotencyKey)
			if lookupErr == nil {
				return existing, nil
			}
		}
		return nil, err
	}

	for _, p := range payments {
		if p.ID == "" {
			p.ID = xid.New("pay")
		}
		if p.CreatedAt.IsZero() {
			p.CreatedAt = order.CreatedAt
		}
		if p.Direction == "" {
			p.Direction = domain.PaymentDirectionIn
		}
		_, err := pgTx.ExecContext(ctx, `
			INSERT INTO shift_payments (id, shift_id, order_id, method, direction, amount_cents, reference, created_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		`, p.ID, p.ShiftID, order.ID, p.Method, p.Direction, p.AmountCents, nullIfEmpty(p.Reference), p.CreatedAt)
		if err != nil {
			return nil, err
		}
	}

	if err := pgTx.Commit(); err != nil {
		return nil, err
	}

	return &order, nil
}

func (s *Store) FindOrderByID(ctx context.Context, id string) (*domain.Order, error) {
	return s.findOrder(ctx, "id", id)
}

func (s *Store) FindOrderByIdempotency(ctx context.Context, key string) (*domain.Order, error) {
	return s.findOrder(ctx, "idempotency_key", key)
}

const orderColumns = `
	id, branch_id, terminal_id, COALESCE(shift_id,''), idempotency_key, order_source, status,
	customer_name, phone_number, address, COALESCE(delivery_zone_id,''), items,
	subtotal_cents, discount_cents, COALESCE(coupon_code,''), delivery_fee_cents,
	tax_rate_percent, tax_cents, total_cents, currency, fx_rate, base_total_cents,
	payment_method, COALESCE(payment_reference,''), payment_splits, cash_received_cents, change_cents,
	note, void_reason, voided_at, invoice_snapshot, invoice_print_count, created_at, updated_at
`

func (s *Store) findOrder(ctx context.Context, column string, value string) (*domain.Order, error) {
	if column != "id" && column != "idempotency_key" {
		return nil, errors.New("unsupported lookup column")
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE `+column+` = $1
	`, value)
	order, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return order, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (*domain.Order, error) {
	var order domain.Order
	var itemsRaw, splitsRaw, snapshotRaw []byte
	var voidReason sql.NullString
	var voidedAt sql.NullTime

	err := row.Scan(
		&order.ID,
		&order.BranchID,
		&order.TerminalID,
		&order.ShiftID,
		&order.IdempotencyKey,
		&order.OrderSource,
		&order.Status,
		&order.CustomerName,
		&order.PhoneNumber,
		&order.Address,
		&order.DeliveryZoneID,
		&itemsRaw,
		&order.SubtotalCents,
		&order.DiscountCents,
		&order.CouponCode,
		&order.DeliveryFeeCents,
		&order.TaxRatePercent,
		&order.TaxCents,
		&order.TotalCents,
		&order.Currency,
		&order.FXRate,
		&order.BaseTotalCents,
		&order.PaymentMethod,
		&order.PaymentReference,
		&splitsRaw,
		&order.CashReceivedCents,
		&order.ChangeCents,
		&order.Note,
		&voidReason,
		&voidedAt,
		&snapshotRaw,
		&order.InvoicePrintCount,
		&order.CreatedAt,
		&order.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if voidReason.Valid {
		order.VoidReason = voidReason.String
	}
	if voidedAt.Valid {
		at := voidedAt.Time.UTC()
		order.VoidedAt = &at
	}
	order.CreatedAt = order.CreatedAt.UTC()
	order.UpdatedAt = order.UpdatedAt.UTC()
	if len(itemsRaw) > 0 {
		if err := json.Unmarshal(itemsRaw, &order.Items); err != nil {
			return nil, err
		}
	}
	if len(splitsRaw) > 0 {
		_ = json.Unmarshal(splitsRaw, &order.PaymentSplits)
	}
	if len(snapshotRaw) > 0 {
		var snap domain.InvoiceSnapshot
		if err := json.Unmarshal(snapshotRaw, &snap); err != nil {
			return nil, err
		}
		order.InvoiceSnapshot = &snap
	}
	return &order, nil
}

func (s *Store) ListOrdersBetween(ctx context.Context, branchID string, from time.Time, to time.Time) ([]domain.Order, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE ($1 = '' OR branch_id = $1)
			AND created_at >= $2
			AND created_at < $3
		ORDER BY created_at ASC, id ASC
	`, branchID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	orders := make([]domain.Order, 0, 128)
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, *order)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return orders, nil
}

func (s *Store) UpdateOrderContact(ctx context.Context, id string, update domain.OrderContactUpdateRequest, at time.Time) (*domain.Order, error) {
	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	row := pgTx.QueryRowContext(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE id = $1
		FOR UPDATE
	`, id)
	order, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	if update.CustomerName != nil {
		order.CustomerName = *update.CustomerName
	}
	if update.PhoneNumber != nil {
		order.PhoneNumber = *update.PhoneNumber
	}
	if update.Address != nil {
		order.Address = *update.Address
	}
	if update.Note != nil {
		order.Note = *update.Note
	}
	order.UpdatedAt = at

	_, err = pgTx.ExecContext(ctx, `
		UPDATE orders
		SET customer_name = $2, phone_number = $3, address = $4, note = $5, updated_at = $6
		WHERE id = $1
	`, id, order.CustomerName, order.PhoneNumber, order.Address, order.Note, at)
	if err != nil {
		return nil, err
	}
	if err := pgTx.Commit(); err != nil {
		return nil, err
	}
	return order, nil
}

func (s *Store) VoidOrder(ctx context.Context, id string, reason string, at time.Time) (*domain.Order, error) {
	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	row := pgTx.QueryRowContext(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE id = $1
		FOR UPDATE
	`, id)
	order, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if order.Status != domain.OrderStatusPaid {
		return nil, store.ErrInvalidRecord
	}

	_, err = pgTx.ExecContext(ctx, `
		UPDATE orders
		SET status = $2, void_reason = $3, voided_at = $4, updated_at = $4
		WHERE id = $1 AND status = $5
	`, id, domain.OrderStatusVoided, reason, at, domain.OrderStatusPaid)
	if err != nil {
		return nil, err
	}

	// Piece items tracked by stock go back on the shelf.
	for _, item := range order.Items {
		var trackStock bool
		err := pgTx.QueryRowContext(ctx, `
			SELECT track_stock FROM products WHERE id = $1
		`, item.ProductID).Scan(&trackStock)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				continue
			}
			return nil, err
		}
		if !trackStock || item.Qty < 1 {
			continue
		}
		_, err = pgTx.ExecContext(ctx, `
			INSERT INTO branch_stocks (branch_id, product_id, qty, updated_at)
			VALUES ($1,$2,$3,now())
			ON CONFLICT (branch_id, product_id)
			DO UPDATE SET qty = branch_stocks.qty + EXCLUDED.qty, updated_at = now()
		`, order.BranchID, item.ProductID, item.Qty)
		if err != nil {
			return nil, err
		}
	}

	if err := pgTx.Commit(); err != nil {
		return nil, err
	}

	order.Status = domain.OrderStatusVoided
	order.VoidReason = reason
	order.VoidedAt = &at
	order.UpdatedAt = at
	return order, nil
}

func (s *Store) CreateRefund(ctx context.Context, refund domain.Refund) (*domain.Refund, error) {
	if refund.ID == "" {
		refund.ID = xid.New("refund")
	}
	if refund.CreatedAt.IsZero() {
		refund.CreatedAt = time.Now().UTC()
	}

	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	var orderTotal int64
	var orderStatus string
	err = pgTx.QueryRowContext(ctx, `
		SELECT total_cents, status
		FROM orders
		WHERE id = $1
		FOR UPDATE
	`, refund.OrderID).Scan(&orderTotal, &orderStatus)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if orderStatus != domain.OrderStatusPaid {
		return nil, store.ErrInvalidRecord
	}

	var refundedSoFar int64
	err = pgTx.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(amount_cents),0)::bigint
		FROM refunds
		WHERE order_id = $1
	`, refund.OrderID).Scan(&refundedSoFar)
	if err != nil {
		return nil, err
	}
	if refund.AmountCents < 1 || refundedSoFar+refund.AmountCents > orderTotal {
		return nil, store.ErrInvalidRecord
	}

	_, err = pgTx.ExecContext(ctx, `
		INSERT INTO refunds (id, order_id, reason, amount_cents, method, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, refund.ID, refund.OrderID, refund.Reason, refund.AmountCents, refund.Method, refund.CreatedAt)
	if err != nil {
		return nil, err
	}

	if refundedSoFar+refund.AmountCents == orderTotal {
		_, err = pgTx.ExecContext(ctx, `
			UPDATE orders
			SET status = $2, updated_at = $3
			WHERE id = $1
		`, refund.OrderID, domain.OrderStatusRefunded, refund.CreatedAt)
		if err != nil {
			return nil, err
		}
	}

	if err := pgTx.Commit(); err != nil {
		return nil, err
	}
	return &refund, nil
}

func (s *Store) IssueInvoiceSnapshot(ctx context.Context, orderID string, build func(seq int64) domain.InvoiceSnapshot) (*domain.Order, error) {
	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	row := pgTx.QueryRowContext(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE id = $1
		FOR UPDATE
	`, orderID)
	order, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	// Issuance is once-only; a second issue returns the order untouched.
	// The sequence claim happens in the same transaction as the attach, so
	// a losing racer rolls the claim back and the numbering stays gapless.
	if order.InvoiceSnapshot == nil {
		var seq int64
		err = pgTx.QueryRowContext(ctx, `
			INSERT INTO invoice_sequences (branch_id, last_number)
			VALUES ($1, 1)
			ON CONFLICT (branch_id)
			DO UPDATE SET last_number = invoice_sequences.last_number + 1
			RETURNING last_number
		`, order.BranchID).Scan(&seq)
		if err != nil {
			return nil, err
		}

		snapshot := build(seq)
		snapshotJSON, err := json.Marshal(snapshot)
		if err != nil {
			return nil, err
		}
		_, err = pgTx.ExecContext(ctx, `
			UPDATE orders
			SET invoice_snapshot = $2, updated_at = $3
			WHERE id = $1 AND invoice_snapshot IS NULL
		`, orderID, snapshotJSON, snapshot.IssuedAt)
		if err != nil {
			return nil, err
		}
		snap := snapshot
		order.InvoiceSnapshot = &snap
		order.UpdatedAt = snapshot.IssuedAt
	}

	if err := pgTx.Commit(); err != nil {
		return nil, err
	}
	return order, nil
}

func (s *Store) IncrementInvoicePrintCount(ctx context.Context, orderID string) (*domain.Order, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE orders
		SET invoice_print_count = invoice_print_count + 1
		WHERE id = $1
	`, orderID)
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
	return s.FindOrderByID(ctx, orderID)
}

func (s *Store) CreateShift(ctx context.Context, shift domain.CashShift) (*domain.CashShift, error) {
	if strings.TrimSpace(shift.BranchID) == "" || strings.TrimSpace(shift.TerminalID) == "" || strings.TrimSpace(shift.CashierName) == "" {
		return nil, store.ErrInvalidRecord
	}
	if shift.ID == "" {
		shift.ID = xid.New("shift")
	}
	if shift.OpenedAt.IsZero() {
		shift.OpenedAt = time.Now().UTC()
	}
	shift.Status = domain.ShiftStatusOpen
	shift.ClosedAt = nil

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cash_shifts (
			id, branch_id, terminal_id, cashier_name, opening_float_cents,
			expected_cash_cents, counted_cash_cents, difference_cents, close_reason,
			status, opened_at, closed_at
		)
		VALUES ($1,$2,$3,$4,$5,0,0,0,'',$6,$7,NULL)
	`, shift.ID, shift.BranchID, shift.TerminalID, shift.CashierName, shift.OpeningFloatCents,
		shift.Status, shift.OpenedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrInvalidRecord
		}
		return nil, err
	}
	saved := shift
	return &saved, nil
}

const shiftColumns = `
	id, branch_id, terminal_id, cashier_name, opening_float_cents,
	expected_cash_cents, counted_cash_cents, difference_cents, close_reason,
	status, opened_at, closed_at
`

func scanShift(row rowScanner) (*domain.CashShift, error) {
	var shift domain.CashShift
	var closedAt sql.NullTime
	err := row.Scan(
		&shift.ID,
		&shift.BranchID,
		&shift.TerminalID,
		&shift.CashierName,
		&shift.OpeningFloatCents,
		&shift.ExpectedCashCents,
		&shift.CountedCashCents,
		&shift.DifferenceCents,
		&shift.CloseReason,
		&shift.Status,
		&shift.OpenedAt,
		&closedAt,
	)
	if err != nil {
		return nil, err
	}
	shift.OpenedAt = shift.OpenedAt.UTC()
	if closedAt.Valid {
		at := closedAt.Time.UTC()
		shift.ClosedAt = &at
	}
	return &shift, nil
}

func (s *Store) GetActiveShift(ctx context.Context, branchID string, terminalID string) (*domain.CashShift, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+shiftColumns+`
		FROM cash_shifts
		WHERE branch_id = $1 AND terminal_id = $2 AND status = 'open'
		ORDER BY opened_at DESC
		LIMIT 1
	`, branchID, terminalID)
	shift, err := scanShift(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return shift, nil
}

func (s *Store) GetShiftByID(ctx context.Context, id string) (*domain.CashShift, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+shiftColumns+`
		FROM cash_shifts
		WHERE id = $1
	`, id)
	shift, err := scanShift(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return shift, nil
}

func (s *Store) CloseShift(ctx context.Context, shiftID string, countedCents int64, reason string, closedAt time.Time) (*domain.CashShift, error) {
	if closedAt.IsZero() {
		closedAt = time.Now().UTC()
	}

	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	// Lock the shift row first: payment and movement inserts lock it too,
	// so the tally below cannot miss a sale landing mid-close.
	row := pgTx.QueryRowContext(ctx, `
		SELECT `+shiftColumns+`
		FROM cash_shifts
		WHERE id = $1
		FOR UPDATE
	`, shiftID)
	shift, err := scanShift(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if shift.Status != domain.ShiftStatusOpen {
		return nil, fmt.Errorf("%w: shift already closed", store.ErrInvalidRecord)
	}

	var cashNet int64
	err = pgTx.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(CASE WHEN direction = 'out' THEN -amount_cents ELSE amount_cents END), 0)
		FROM shift_payments
		WHERE shift_id = $1 AND method = 'cash'
	`, shiftID).Scan(&cashNet)
	if err != nil {
		return nil, err
	}

	var moveNet int64
	err = pgTx.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(CASE WHEN direction = 'out' THEN -amount_cents ELSE amount_cents END), 0)
		FROM cash_movements
		WHERE shift_id = $1
	`, shiftID).Scan(&moveNet)
	if err != nil {
		return nil, err
	}

	expected := shift.OpeningFloatCents + cashNet + moveNet
	if countedCents != expected && strings.TrimSpace(reason) == "" {
		return nil, fmt.Errorf("%w: close reason required when counted cash differs from expected", store.ErrInvalidRecord)
	}

	_, err = pgTx.ExecContext(ctx, `
		UPDATE cash_shifts
		SET status = 'closed', expected_cash_cents = $2, counted_cash_cents = $3,
			difference_cents = $3 - $2, close_reason = $4, closed_at = $5
		WHERE id = $1
	`, shiftID, expected, countedCents, reason, closedAt)
	if err != nil {
		return nil, err
	}
	if err := pgTx.Commit(); err != nil {
		return nil, err
	}

	shift.Status = domain.ShiftStatusClosed
	shift.ExpectedCashCents = expected
	shift.CountedCashCents = countedCents
	shift.DifferenceCents = countedCents - expected
	shift.CloseReason = reason
	shift.ClosedAt = &closedAt
	return shift, nil
}

// lockOpenShift takes a row lock on the shift and verifies it is still
// open, so cash activity cannot land on a shift that is closing.
func lockOpenShift(ctx context.Context, pgTx *sql.Tx, shiftID string) error {
	var status string
	err := pgTx.QueryRowContext(ctx, `
		SELECT status
		FROM cash_shifts
		WHERE id = $1
		FOR UPDATE
	`, shiftID).Scan(&status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: unknown shift", store.ErrInvalidRecord)
		}
		return err
	}
	if status != domain.ShiftStatusOpen {
		return fmt.Errorf("%w: shift is closed", store.ErrInvalidRecord)
	}
	return nil
}

func (s *Store) ListClosedShifts(ctx context.Context, branchID string, from time.Time, to time.Time) ([]domain.CashShift, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+shiftColumns+`
		FROM cash_shifts
		WHERE ($1 = '' OR branch_id = $1)
			AND status = 'closed'
			AND closed_at >= $2
			AND closed_at < $3
		ORDER BY closed_at ASC, id ASC
	`, branchID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	shifts := make([]domain.CashShift, 0, 16)
	for rows.Next() {
		shift, err := scanShift(rows)
		if err != nil {
			return nil, err
		}
		shifts = append(shifts, *shift)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return shifts, nil
}

func (s *Store) CreatePayment(ctx context.Context, payment domain.Payment) (*domain.Payment, error) {
	if payment.ShiftID == "" || payment.Method == "" || payment.AmountCents < 1 {
		return nil, store.ErrInvalidRecord
	}
	if payment.ID == "" {
		payment.ID = xid.New("pay")
	}
	if payment.CreatedAt.IsZero() {
		payment.CreatedAt = time.Now().UTC()
	}
	if payment.Direction == "" {
		payment.Direction = domain.PaymentDirectionIn
	}

	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	if err := lockOpenShift(ctx, pgTx, payment.ShiftID); err != nil {
		return nil, err
	}
	_, err = pgTx.ExecContext(ctx, `
		INSERT INTO shift_payments (id, shift_id, order_id, method, direction, amount_cents, reference, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, payment.ID, payment.ShiftID, nullIfEmpty(payment.OrderID), payment.Method, payment.Direction,
		payment.AmountCents, nullIfEmpty(payment.Reference), payment.CreatedAt)
	if err != nil {
		return nil, err
	}
	if err := pgTx.Commit(); err != nil {
		return nil, err
	}
	created := payment
	return &created, nil
}

func (s *Store) ListShiftPayments(ctx context.Context, shiftID string) ([]domain.Payment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, shift_id, COALESCE(order_id,''), method, direction, amount_cents, COALESCE(reference,''), created_at
		FROM shift_payments
		WHERE shift_id = $1
		ORDER BY created_at ASC, id ASC
	`, shiftID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	payments := make([]domain.Payment, 0, 64)
	for rows.Next() {
		var p domain.Payment
		if err := rows.Scan(&p.ID, &p.ShiftID, &p.OrderID, &p.Method, &p.Direction, &p.AmountCents, &p.Reference, &p.CreatedAt); err != nil {
			return nil, err
		}
		p.CreatedAt = p.CreatedAt.UTC()
		payments = append(payments, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return payments, nil
}

func (s *Store) CreateCashMovement(ctx context.Context, movement domain.CashMovement) (*domain.CashMovement, error) {
	if movement.ShiftID == "" || movement.AmountCents < 1 {
		return nil, store.ErrInvalidRecord
	}
	if movement.Direction != domain.PaymentDirectionIn && movement.Direction != domain.PaymentDirectionOut {
		return nil, store.ErrInvalidRecord
	}
	if movement.ID == "" {
		movement.ID = xid.New("mov")
	}
	if movement.CreatedAt.IsZero() {
		movement.CreatedAt = time.Now().UTC()
	}

	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	if err := lockOpenShift(ctx, pgTx, movement.ShiftID); err != nil {
		return nil, err
	}
	_, err = pgTx.ExecContext(ctx, `
		INSERT INTO cash_movements (id, shift_id, direction, amount_cents, reason, recorded_by, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, movement.ID, movement.ShiftID, movement.Direction, movement.AmountCents, movement.Reason, movement.RecordedBy, movement.CreatedAt)
	if err != nil {
		return nil, err
	}
	if err := pgTx.Commit(); err != nil {
		return nil, err
	}
	created := movement
	return &created, nil
}

func (s *Store) ListShiftMovements(ctx context.Context, shiftID string) ([]domain.CashMovement, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, shift_id, direction, amount_cents, reason, recorded_by, created_at
		FROM cash_movements
		WHERE shift_id = $1
		ORDER BY created_at ASC, id ASC
	`, shiftID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	movements := make([]domain.CashMovement, 0, 16)
	for rows.Next() {
		var m domain.CashMovement
		if err := rows.Scan(&m.ID, &m.ShiftID, &m.Direction, &m.AmountCents, &m.Reason, &m.RecordedBy, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.CreatedAt = m.CreatedAt.UTC()
		movements = append(movements, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return movements, nil
}

func (s *Store) CreateAuditLog(ctx context.Context, entry domain.AuditLog) error {
	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_logs (
			id, branch_id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, entry.ID, entry.BranchID, entry.ActorUsername, entry.ActorRole, entry.Action, entry.EntityType, entry.EntityID, entry.Detail, entry.CreatedAt)
	return err
}

func (s *Store) ListAuditLogs(ctx context.Context, branchID string, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	if limit < 1 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, branch_id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at
		FROM audit_logs
		WHERE branch_id = $1
			AND created_at >= $2
			AND created_at < $3
		ORDER BY created_at DESC
		LIMIT $4
	`, branchID, from, to, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]domain.AuditLog, 0, limit)
	for rows.Next() {
		var entry domain.AuditLog
		if err := rows.Scan(&entry.ID, &entry.BranchID, &entry.ActorUsername, &entry.ActorRole, &entry.Action, &entry.EntityType, &entry.EntityID, &entry.Detail, &entry.CreatedAt); err != nil {
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

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	user.Username = strings.ToLower(strings.TrimSpace(user.Username))
	if user.Username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrInvalidRecord
	}
	if user.Role == "" {
		user.Role = "cashier"
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO app_users (username, password, role, active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,now())
	`, user.Username, user.Password, user.Role, user.Active, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrInvalidRecord
		}
		return err
	}
	return nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, password, role, active, created_at
		FROM app_users
		ORDER BY username ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 16)
	for rows.Next() {
		var user domain.UserAccount
		if err := rows.Scan(&user.Username, &user.Password, &user.Role, &user.Active, &user.CreatedAt); err != nil {
			return nil, err
		}
		user.CreatedAt = user.CreatedAt.UTC()
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrInvalidRecord
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE app_users
		SET password = $2, updated_at = now()
		WHERE username = $1
	`, username, password)
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

func scanCoupon(row rowScanner) (domain.Coupon, error) {
	var coupon domain.Coupon
	var expiresAt sql.NullTime
	err := row.Scan(
		&coupon.ID,
		&coupon.Code,
		&coupon.Type,
		&coupon.DiscountPercent,
		&coupon.FlatDiscountCents,
		&coupon.MinSubtotalCents,
		&expiresAt,
		&coupon.Active,
		&coupon.CreatedAt,
	)
	if err != nil {
		return coupon, err
	}
	coupon.CreatedAt = coupon.CreatedAt.UTC()
	if expiresAt.Valid {
		at := expiresAt.Time.UTC()
		coupon.ExpiresAt = &at
	}
	return coupon, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func nullIfEmpty(val string) any {
	if val == "" {
		return nil
	}
	return val
}

func nullTime(val *time.Time) any {
	if val == nil {
		return nil
	}
	return *val
}
