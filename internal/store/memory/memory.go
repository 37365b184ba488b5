package memory

import (
	"context"
	"fmt"
	"log"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"qayd/backend/internal/domain"
	"qayd/backend/internal/reconcile"
	"qayd/backend/internal/store"
	"qayd/backend/internal/xid"
)

type Store struct {
	mu               sync.RWMutex
	products         map[string]domain.Product
	inventory        map[string]map[string]int
	addonsByID       map[string]domain.Addon
	couponsByID      map[string]domain.Coupon
	zonesByID        map[string]domain.DeliveryZone
	ordersByID       map[string]*domain.Order
	ordersByIdem     map[string]*domain.Order
	refundsByID      map[string]domain.Refund
	priceHistory     map[string][]domain.ProductPriceHistory
	invoiceSequences map[string]int64
	shiftsByID       map[string]domain.CashShift
	activeShiftByKey map[string]string
	paymentsByShift  map[string][]domain.Payment
	movementsByShift map[string][]domain.CashMovement
	auditLogs        []domain.AuditLog
	usersByUsername  map[string]domain.UserAccount
}

// seedUsers builds the initial in-memory user accounts for dev/demo mode.
// Credentials come from SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD; if
// unset, hardcoded dev defaults are used with a warning. These credentials
// are never used in production (the backend uses PostgreSQL when
// DATABASE_URL is set).
func seedUsers() map[string]domain.UserAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	cashierPwd := envOr("SEED_CASHIER_PASSWORD", "cashier123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_CASHIER_PASSWORD") == "" {
		log.Println("[memory-store] WARNING: using default dev credentials. Set SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD to override.")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username string
		password string
		role     string
	}{
		{"admin", adminPwd, "admin"},
		{"cashier", cashierPwd, "cashier"},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("[memory-store] failed to hash seed password for %s: %v", u.username, err)
		}
		users[u.username] = domain.UserAccount{
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			Active:    true,
			CreatedAt: now,
		}
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func NewSeeded() *Store {
	now := time.Now().UTC()
	products := []domain.Product{
		{ID: "prd-shawarma", Name: "Chicken Shawarma", Category: "sandwiches", UnitType: domain.UnitPiece, PriceCents: 1500, TrackStock: true, Active: true, CreatedAt: now},
		{ID: "prd-falafel", Name: "Falafel Wrap", Category: "sandwiches", UnitType: domain.UnitPiece, PriceCents: 900, TrackStock: true, Active: true, CreatedAt: now},
		{ID: "prd-kabsa", Name: "Kabsa Plate", Category: "plates", UnitType: domain.UnitPiece, PriceCents: 3200, TrackStock: true, Active: true, CreatedAt: now},
		{ID: "prd-baklava", Name: "Baklava", Category: "sweets", UnitType: domain.UnitGram, PricePerKgCents: 6000, Active: true, CreatedAt: now},
		{ID: "prd-kunafa", Name: "Kunafa", Category: "sweets", UnitType: domain.UnitGram, PricePerKgCents: 7500, Active: true, CreatedAt: now},
		{ID: "prd-lamb", Name: "Fresh Lamb", Category: "butcher", UnitType: domain.UnitKg, PriceCents: 9000, Active: true, CreatedAt: now},
		{ID: "prd-juice", Name: "Fresh Orange Juice", Category: "drinks", UnitType: domain.UnitPiece, PriceCents: 800, TrackStock: true, Active: true, CreatedAt: now},
		{ID: "prd-water", Name: "Mineral Water", Category: "drinks", UnitType: domain.UnitPiece, PriceCents: 200, TrackStock: true, Active: true, CreatedAt: now},
	}

	addons := []domain.Addon{
		{ID: "add-garlic", Name: "Extra Garlic Sauce", PriceCents: 300, Active: true, CreatedAt: now},
		{ID: "add-cheese", Name: "Extra Cheese", PriceCents: 400, Active: true, CreatedAt: now},
		{ID: "add-fries", Name: "Side Fries", PriceCents: 700, Active: true, CreatedAt: now},
		{ID: "add-pistachio", Name: "Pistachio Topping", PriceCents: 2, Active: true, CreatedAt: now},
	}

	zones := []domain.DeliveryZone{
		{
			ID: "zone-olaya", Name: "Olaya", DeliveryFeeCents: 700, Active: true, CreatedAt: now,
			Polygon: []domain.LatLng{{Lat: 24.68, Lng: 46.68}, {Lat: 24.72, Lng: 46.68}, {Lat: 24.72, Lng: 46.72}, {Lat: 24.68, Lng: 46.72}},
		},
		{
			ID: "zone-malaz", Name: "Al Malaz", DeliveryFeeCents: 1000, Active: true, CreatedAt: now,
			Polygon: []domain.LatLng{{Lat: 24.63, Lng: 46.72}, {Lat: 24.67, Lng: 46.72}, {Lat: 24.67, Lng: 46.76}, {Lat: 24.63, Lng: 46.76}},
		},
	}

	coupons := []domain.Coupon{
		{ID: "cpn-welcome", Code: "WELCOME10", Type: "percent", DiscountPercent: 10, MinSubtotalCents: 2000, Active: true, CreatedAt: now},
		{ID: "cpn-fiver", Code: "FIVER", Type: "flat", FlatDiscountCents: 500, MinSubtotalCents: 3000, Active: true, CreatedAt: now},
	}

	productMap := make(map[string]domain.Product, len(products))
	inventory := make(map[string]map[string]int)
	inventory["main-branch"] = make(map[string]int)
	for _, p := range products {
		productMap[p.ID] = p
		if p.TrackStock {
			inventory["main-branch"][p.ID] = 120
		}
	}
	addonMap := make(map[string]domain.Addon, len(addons))
	for _, a := range addons {
		addonMap[a.ID] = a
	}
	zoneMap := make(map[string]domain.DeliveryZone, len(zones))
	for _, z := range zones {
		zoneMap[z.ID] = z
	}
	couponMap := make(map[string]domain.Coupon, len(coupons))
	for _, c := range coupons {
		couponMap[c.ID] = c
	}

	return &Store{
		products:         productMap,
		inventory:        inventory,
		addonsByID:       addonMap,
		couponsByID:      couponMap,
		zonesByID:        zoneMap,
		ordersByID:       make(map[string]*domain.Order),
		ordersByIdem:     make(map[string]*domain.Order),
		refundsByID:      make(map[string]domain.Refund),
		priceHistory:     make(map[string][]domain.ProductPriceHistory),
		invoiceSequences: make(map[string]int64),
		shiftsByID:       make(map[string]domain.CashShift),
		activeShiftByKey: make(map[string]string),
		paymentsByShift:  make(map[string][]domain.Payment),
		movementsByShift: make(map[string][]domain.CashMovement),
		auditLogs:        make([]domain.AuditLog, 0, 128),
		usersByUsername:  seedUsers(),
	}
}

func (s *Store) ListProducts(_ context.Context, _ string) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		if !p.Active {
			continue
		}
		products = append(products, p)
	}

	slices.SortFunc(products, func(a, b domain.Product) int {
		if a.Category == b.Category {
			return cmpString(a.Name, b.Name)
		}
		return cmpString(a.Category, b.Category)
	})

	return products, nil
}

func (s *Store) CreateProduct(_ context.Context, branchID string, product domain.Product, initialStock int) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

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
	s.products[product.ID] = product

	if product.TrackStock {
		branchStock, ok := s.inventory[branchID]
		if !ok {
			branchStock = make(map[string]int)
			s.inventory[branchID] = branchStock
		}
		branchStock[product.ID] = initialStock
	}

	created := product
	return &created, nil
}

func (s *Store) GetProductByID(_ context.Context, id string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	product, exists := s.products[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	copyProduct := product
	return &copyProduct, nil
}

func (s *Store) GetProductsByIDs(_ context.Context, ids []string) (map[string]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[string]domain.Product, len(ids))
	for _, id := range ids {
		if p, ok := s.products[id]; ok && p.Active {
			result[id] = p
		}
	}
	return result, nil
}

func (s *Store) UpdateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if product.ID == "" || product.Name == "" || product.Category == "" {
		return nil, store.ErrInvalidRecord
	}
	if _, exists := s.products[product.ID]; !exists {
		return nil, store.ErrNotFound
	}

	s.products[product.ID] = product
	updated := product
	return &updated, nil
}

func (s *Store) CreatePriceHistory(_ context.Context, entry domain.ProductPriceHistory) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = xid.New("ph")
	}
	if entry.ChangedAt.IsZero() {
		entry.ChangedAt = time.Now().UTC()
	}
	s.priceHistory[entry.ProductID] = append(s.priceHistory[entry.ProductID], entry)
	return nil
}

func (s *Store) ListPriceHistory(_ context.Context, productID string, limit int) ([]domain.ProductPriceHistory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	history := s.priceHistory[productID]
	if len(history) == 0 {
		return []domain.ProductPriceHistory{}, nil
	}

	result := make([]domain.ProductPriceHistory, len(history))
	copy(result, history)
	slices.SortFunc(result, func(a, b domain.ProductPriceHistory) int {
		if a.ChangedAt.Equal(b.ChangedAt) {
			return cmpString(b.ID, a.ID)
		}
		if a.ChangedAt.After(b.ChangedAt) {
			return -1
		}
		return 1
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) GetStockMap(_ context.Context, branchID string, productIDs []string) (map[string]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stockMap := make(map[string]int, len(productIDs))
	branchStock := s.inventory[branchID]
	for _, id := range productIDs {
		if branchStock == nil {
			stockMap[id] = 0
			continue
		}
		stockMap[id] = branchStock[id]
	}
	return stockMap, nil
}

func (s *Store) SetStock(_ context.Context, branchID string, productID string, qty int) error {
	if productID == "" || qty < 0 {
		return store.ErrInvalidRecord
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.products[productID]; !exists {
		return fmt.Errorf("product %s unavailable", productID)
	}
	branchStock, ok := s.inventory[branchID]
	if !ok {
		branchStock = make(map[string]int)
		s.inventory[branchID] = branchStock
	}
	branchStock[productID] = qty
	return nil
}

func (s *Store) ListAddons(_ context.Context) ([]domain.Addon, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	addons := make([]domain.Addon, 0, len(s.addonsByID))
	for _, a := range s.addonsByID {
		addons = append(addons, a)
	}
	slices.SortFunc(addons, func(a, b domain.Addon) int {
		return cmpString(a.Name, b.Name)
	})
	return addons, nil
}

func (s *Store) GetAddonsByIDs(_ context.Context, ids []string) (map[string]domain.Addon, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[string]domain.Addon, len(ids))
	for _, id := range ids {
		if a, ok := s.addonsByID[id]; ok && a.Active {
			result[id] = a
		}
	}
	return result, nil
}

func (s *Store) CreateAddon(_ context.Context, addon domain.Addon) (*domain.Addon, error) {
	if strings.TrimSpace(addon.Name) == "" || addon.PriceCents < 1 {
		return nil, store.ErrInvalidRecord
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if addon.ID == "" {
		addon.ID = xid.New("add")
	}
	if addon.CreatedAt.IsZero() {
		addon.CreatedAt = time.Now().UTC()
	}
	addon.Active = true
	s.addonsByID[addon.ID] = addon
	created := addon
	return &created, nil
}

func (s *Store) UpdateAddon(_ context.Context, addon domain.Addon) (*domain.Addon, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.addonsByID[addon.ID]; !exists {
		return nil, store.ErrNotFound
	}
	s.addonsByID[addon.ID] = addon
	updated := addon
	return &updated, nil
}

func (s *Store) ListCoupons(_ context.Context) ([]domain.Coupon, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	coupons := make([]domain.Coupon, 0, len(s.couponsByID))
	for _, c := range s.couponsByID {
		coupons = append(coupons, c)
	}
	slices.SortFunc(coupons, func(a, b domain.Coupon) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return cmpString(a.Code, b.Code)
		}
		if a.CreatedAt.Before(b.CreatedAt) {
			return -1
		}
		return 1
	})
	return coupons, nil
}

func (s *Store) GetCouponByCode(_ context.Context, code string) (*domain.Coupon, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	code = strings.ToUpper(strings.TrimSpace(code))
	for _, c := range s.couponsByID {
		if c.Code == code {
			copyCoupon := c
			return &copyCoupon, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) CreateCoupon(_ context.Context, coupon domain.Coupon) (*domain.Coupon, error) {
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

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, c := range s.couponsByID {
		if c.Code == coupon.Code {
			return nil, store.ErrInvalidRecord
		}
	}
	if coupon.ID == "" {
		coupon.ID = xid.New("cpn")
	}
	if coupon.CreatedAt.IsZero() {
		coupon.CreatedAt = time.Now().UTC()
	}
	coupon.Active = true
	s.couponsByID[coupon.ID] = coupon
	created := coupon
	return &created, nil
}

func (s *Store) SetCouponActive(_ context.Context, couponID string, active bool) (*domain.Coupon, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	coupon, exists := s.couponsByID[couponID]
	if !exists {
		return nil, store.ErrNotFound
	}
	coupon.Active = active
	s.couponsByID[couponID] = coupon
	copyCoupon := coupon
	return &copyCoupon, nil
}

func (s *Store) ListZones(_ context.Context) ([]domain.DeliveryZone, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	zones := make([]domain.DeliveryZone, 0, len(s.zonesByID))
	for _, z := range s.zonesByID {
		zones = append(zones, cloneZone(z))
	}
	slices.SortFunc(zones, func(a, b domain.DeliveryZone) int {
		return cmpString(a.Name, b.Name)
	})
	return zones, nil
}

func (s *Store) GetZoneByID(_ context.Context, id string) (*domain.DeliveryZone, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	zone, exists := s.zonesByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	copyZone := cloneZone(zone)
	return &copyZone, nil
}

func (s *Store) CreateZone(_ context.Context, zone domain.DeliveryZone) (*domain.DeliveryZone, error) {
	if strings.TrimSpace(zone.Name) == "" || zone.DeliveryFeeCents < 0 {
		return nil, store.ErrInvalidRecord
	}
	if len(zone.Polygon) > 0 && len(zone.Polygon) < 3 {
		return nil, store.ErrInvalidRecord
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if zone.ID == "" {
		zone.ID = xid.New("zone")
	}
	if zone.CreatedAt.IsZero() {
		zone.CreatedAt = time.Now().UTC()
	}
	zone.Active = true
	s.zonesByID[zone.ID] = cloneZone(zone)
	created := cloneZone(zone)
	return &created, nil
}

func (s *Store) UpdateZone(_ context.Context, zone domain.DeliveryZone) (*domain.DeliveryZone, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.zonesByID[zone.ID]; !exists {
		return nil, store.ErrNotFound
	}
	if len(zone.Polygon) > 0 && len(zone.Polygon) < 3 {
		return nil, store.ErrInvalidRecord
	}
	s.zonesByID[zone.ID] = cloneZone(zone)
	updated := cloneZone(zone)
	return &updated, nil
}

func (s *Store) CreateOrder(_ context.Context, order domain.Order, payments []domain.Payment, deductions []domain.StockAdjustment) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if order.IdempotencyKey == "" || len(order.Items) == 0 {
		return nil, store.ErrInvalidRecord
	}
	if existing, ok := s.ordersByIdem[order.IdempotencyKey]; ok {
		return cloneOrder(existing), nil
	}
	for _, p := range payments {
		if err := s.requireOpenShiftLocked(p.ShiftID); err != nil {
			return nil, err
		}
	}

	branchStock, ok := s.inventory[order.BranchID]
	if !ok {
		branchStock = make(map[string]int)
		s.inventory[order.BranchID] = branchStock
	}
	for _, adj := range deductions {
		if adj.Qty < 1 {
			continue
		}
		if branchStock[adj.ProductID] < adj.Qty {
			return nil, store.ErrInsufficientStock
		}
	}
	for _, adj := range deductions {
		if adj.Qty < 1 {
			continue
		}
		branchStock[adj.ProductID] -= adj.Qty
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

	saved := cloneOrder(&order)
	s.ordersByID[order.ID] = saved
	s.ordersByIdem[order.IdempotencyKey] = saved

	for _, p := range payments {
		if p.ID == "" {
			p.ID = xid.New("pay")
		}
		if p.CreatedAt.IsZero() {
			p.CreatedAt = order.CreatedAt
		}
		p.OrderID = order.ID
		s.paymentsByShift[p.ShiftID] = append(s.paymentsByShift[p.ShiftID], p)
	}

	return cloneOrder(saved), nil
}

func (s *Store) FindOrderByID(_ context.Context, id string) (*domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	order, ok := s.ordersByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return cloneOrder(order), nil
}

func (s *Store) FindOrderByIdempotency(_ context.Context, key string) (*domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	order, ok := s.ordersByIdem[key]
	if !ok {
		return nil, store.ErrNotFound
	}
	return cloneOrder(order), nil
}

func (s *Store) ListOrdersBetween(_ context.Context, branchID string, from time.Time, to time.Time) ([]domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Order, 0, 64)
	for _, order := range s.ordersByID {
		if branchID != "" && order.BranchID != branchID {
			continue
		}
		if order.CreatedAt.Before(from) || !order.CreatedAt.Before(to) {
			continue
		}
		result = append(result, *cloneOrder(order))
	}
	slices.SortFunc(result, func(a, b domain.Order) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return cmpString(a.ID, b.ID)
		}
		if a.CreatedAt.Before(b.CreatedAt) {
			return -1
		}
		return 1
	})
	return result, nil
}

func (s *Store) UpdateOrderContact(_ context.Context, id string, update domain.OrderContactUpdateRequest, at time.Time) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, ok := s.ordersByID[id]
	if !ok {
		return nil, store.ErrNotFound
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
	return cloneOrder(order), nil
}

func (s *Store) VoidOrder(_ context.Context, id string, reason string, at time.Time) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, ok := s.ordersByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if order.Status != domain.OrderStatusPaid {
		return nil, store.ErrInvalidRecord
	}

	branchStock := s.inventory[order.BranchID]
	if branchStock != nil {
		for _, item := range order.Items {
			product, exists := s.products[item.ProductID]
			if !exists || !product.TrackStock {
				continue
			}
			branchStock[item.ProductID] += item.Qty
		}
	}

	order.Status = domain.OrderStatusVoided
	order.VoidReason = reason
	order.VoidedAt = &at
	order.UpdatedAt = at
	return cloneOrder(order), nil
}

func (s *Store) CreateRefund(_ context.Context, refund domain.Refund) (*domain.Refund, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, ok := s.ordersByID[refund.OrderID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if order.Status != domain.OrderStatusPaid {
		return nil, store.ErrInvalidRecord
	}

	refundedSoFar := int64(0)
	for _, r := range s.refundsByID {
		if r.OrderID == refund.OrderID {
			refundedSoFar += r.AmountCents
		}
	}
	if refund.AmountCents < 1 || refundedSoFar+refund.AmountCents > order.TotalCents {
		return nil, store.ErrInvalidRecord
	}

	if refund.ID == "" {
		refund.ID = xid.New("refund")
	}
	if refund.CreatedAt.IsZero() {
		refund.CreatedAt = time.Now().UTC()
	}
	if refundedSoFar+refund.AmountCents == order.TotalCents {
		order.Status = domain.OrderStatusRefunded
		order.UpdatedAt = refund.CreatedAt
	}

	s.refundsByID[refund.ID] = refund
	created := refund
	return &created, nil
}

func (s *Store) IssueInvoiceSnapshot(_ context.Context, orderID string, build func(seq int64) domain.InvoiceSnapshot) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, ok := s.ordersByID[orderID]
	if !ok {
		return nil, store.ErrNotFound
	}
	// Issuance is once-only; a second issue returns the order untouched
	// without advancing the branch sequence.
	if order.InvoiceSnapshot == nil {
		s.invoiceSequences[order.BranchID]++
		snap := build(s.invoiceSequences[order.BranchID])
		order.InvoiceSnapshot = &snap
		order.UpdatedAt = snap.IssuedAt
	}
	return cloneOrder(order), nil
}

func (s *Store) IncrementInvoicePrintCount(_ context.Context, orderID string) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, ok := s.ordersByID[orderID]
	if !ok {
		return nil, store.ErrNotFound
	}
	order.InvoicePrintCount++
	return cloneOrder(order), nil
}

func (s *Store) CreateShift(_ context.Context, shift domain.CashShift) (*domain.CashShift, error) {
	if strings.TrimSpace(shift.BranchID) == "" || strings.TrimSpace(shift.TerminalID) == "" {
		return nil, store.ErrInvalidRecord
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := shiftMapKey(shift.BranchID, shift.TerminalID)
	if _, exists := s.activeShiftByKey[key]; exists {
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
	shift.CountedCashCents = 0
	shift.DifferenceCents = 0

	s.shiftsByID[shift.ID] = shift
	s.activeShiftByKey[key] = shift.ID
	copyShift := shift
	return &copyShift, nil
}

func (s *Store) GetActiveShift(_ context.Context, branchID string, terminalID string) (*domain.CashShift, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	key := shiftMapKey(branchID, terminalID)
	shiftID, exists := s.activeShiftByKey[key]
	if !exists {
		return nil, store.ErrNotFound
	}
	shift, exists := s.shiftsByID[shiftID]
	if !exists || shift.Status != domain.ShiftStatusOpen {
		return nil, store.ErrNotFound
	}
	copyShift := shift
	return &copyShift, nil
}

func (s *Store) GetShiftByID(_ context.Context, id string) (*domain.CashShift, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	shift, exists := s.shiftsByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	copyShift := shift
	return &copyShift, nil
}

func (s *Store) CloseShift(_ context.Context, shiftID string, countedCents int64, reason string, closedAt time.Time) (*domain.CashShift, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	shift, exists := s.shiftsByID[shiftID]
	if !exists {
		return nil, store.ErrNotFound
	}
	if shift.Status != domain.ShiftStatusOpen {
		return nil, fmt.Errorf("%w: shift already closed", store.ErrInvalidRecord)
	}

	// Expected cash is derived under the same lock that guards payment and
	// movement writes, so no sale can slip in between the tally and the
	// close.
	expected := reconcile.ExpectedCash(shift.OpeningFloatCents, s.paymentsByShift[shiftID], s.movementsByShift[shiftID])
	if countedCents != expected && strings.TrimSpace(reason) == "" {
		return nil, fmt.Errorf("%w: close reason required when counted cash differs from expected", store.ErrInvalidRecord)
	}

	if closedAt.IsZero() {
		closedAt = time.Now().UTC()
	}
	shift.Status = domain.ShiftStatusClosed
	shift.ExpectedCashCents = expected
	shift.CountedCashCents = countedCents
	shift.DifferenceCents = countedCents - expected
	shift.CloseReason = reason
	shift.ClosedAt = &closedAt

	delete(s.activeShiftByKey, shiftMapKey(shift.BranchID, shift.TerminalID))
	s.shiftsByID[shiftID] = shift
	copyShift := shift
	return &copyShift, nil
}

// requireOpenShiftLocked rejects cash activity against a shift that is
// missing or no longer open. Callers must hold the write lock.
func (s *Store) requireOpenShiftLocked(shiftID string) error {
	shift, exists := s.shiftsByID[shiftID]
	if !exists {
		return fmt.Errorf("%w: unknown shift", store.ErrInvalidRecord)
	}
	if shift.Status != domain.ShiftStatusOpen {
		return fmt.Errorf("%w: shift is closed", store.ErrInvalidRecord)
	}
	return nil
}

func (s *Store) ListClosedShifts(_ context.Context, branchID string, from time.Time, to time.Time) ([]domain.CashShift, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.CashShift, 0, 16)
	for _, shift := range s.shiftsByID {
		if shift.Status != domain.ShiftStatusClosed || shift.ClosedAt == nil {
			continue
		}
		if branchID != "" && shift.BranchID != branchID {
			continue
		}
		if shift.ClosedAt.Before(from) || !shift.ClosedAt.Before(to) {
			continue
		}
		result = append(result, shift)
	}
	slices.SortFunc(result, func(a, b domain.CashShift) int {
		if a.ClosedAt.Equal(*b.ClosedAt) {
			return cmpString(a.ID, b.ID)
		}
		if a.ClosedAt.Before(*b.ClosedAt) {
			return -1
		}
		return 1
	})
	return result, nil
}

func (s *Store) CreatePayment(_ context.Context, payment domain.Payment) (*domain.Payment, error) {
	if payment.ShiftID == "" || payment.Method == "" || payment.AmountCents < 1 {
		return nil, store.ErrInvalidRecord
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireOpenShiftLocked(payment.ShiftID); err != nil {
		return nil, err
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
	s.paymentsByShift[payment.ShiftID] = append(s.paymentsByShift[payment.ShiftID], payment)
	created := payment
	return &created, nil
}

func (s *Store) ListShiftPayments(_ context.Context, shiftID string) ([]domain.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	payments := s.paymentsByShift[shiftID]
	result := make([]domain.Payment, len(payments))
	copy(result, payments)
	return result, nil
}

func (s *Store) CreateCashMovement(_ context.Context, movement domain.CashMovement) (*domain.CashMovement, error) {
	if movement.ShiftID == "" || movement.AmountCents < 1 {
		return nil, store.ErrInvalidRecord
	}
	if movement.Direction != domain.PaymentDirectionIn && movement.Direction != domain.PaymentDirectionOut {
		return nil, store.ErrInvalidRecord
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireOpenShiftLocked(movement.ShiftID); err != nil {
		return nil, err
	}
	if movement.ID == "" {
		movement.ID = xid.New("mov")
	}
	if movement.CreatedAt.IsZero() {
		movement.CreatedAt = time.Now().UTC()
	}
	s.movementsByShift[movement.ShiftID] = append(s.movementsByShift[movement.ShiftID], movement)
	created := movement
	return &created, nil
}

func (s *Store) ListShiftMovements(_ context.Context, shiftID string) ([]domain.CashMovement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	movements := s.movementsByShift[shiftID]
	result := make([]domain.CashMovement, len(movements))
	copy(result, movements)
	return result, nil
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
	s.auditLogs = append(s.auditLogs, entry)
	return nil
}

func (s *Store) ListAuditLogs(_ context.Context, branchID string, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.AuditLog, 0, 64)
	for _, entry := range s.auditLogs {
		if branchID != "" && entry.BranchID != branchID {
			continue
		}
		if entry.CreatedAt.Before(from) || !entry.CreatedAt.Before(to) {
			continue
		}
		result = append(result, entry)
	}

	slices.SortFunc(result, func(a, b domain.AuditLog) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return cmpString(b.ID, a.ID)
		}
		if a.CreatedAt.After(b.CreatedAt) {
			return -1
		}
		return 1
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username := strings.ToLower(strings.TrimSpace(user.Username))
	if username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrInvalidRecord
	}
	if _, exists := s.usersByUsername[username]; exists {
		return store.ErrInvalidRecord
	}
	user.Username = username
	if user.Role == "" {
		user.Role = "cashier"
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	user.Active = true
	s.usersByUsername[user.Username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.usersByUsername))
	for _, user := range s.usersByUsername {
		users = append(users, user)
	}
	slices.SortFunc(users, func(a, b domain.UserAccount) int {
		return cmpString(a.Username, b.Username)
	})
	return users, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrInvalidRecord
	}
	user, exists := s.usersByUsername[username]
	if !exists {
		return store.ErrNotFound
	}
	user.Password = password
	s.usersByUsername[username] = user
	return nil
}

func shiftMapKey(branchID string, terminalID string) string {
	return branchID + "::" + terminalID
}

func cmpString(a string, b string) int {
	if a == b {
		return 0
	}
	if a < b {
		return -1
	}
	return 1
}

func cloneOrder(src *domain.Order) *domain.Order {
	if src == nil {
		return nil
	}
	dup := *src
	items := make([]domain.OrderItem, len(src.Items))
	copy(items, src.Items)
	for i := range items {
		if len(src.Items[i].Addons) > 0 {
			addons := make([]domain.AddonSelection, len(src.Items[i].Addons))
			copy(addons, src.Items[i].Addons)
			items[i].Addons = addons
		}
	}
	dup.Items = items
	if src.PaymentSplits != nil {
		splits := make([]domain.PaymentSplit, len(src.PaymentSplits))
		copy(splits, src.PaymentSplits)
		dup.PaymentSplits = splits
	}
	if src.InvoiceSnapshot != nil {
		snap := *src.InvoiceSnapshot
		snapItems := make([]domain.OrderItem, len(src.InvoiceSnapshot.Items))
		copy(snapItems, src.InvoiceSnapshot.Items)
		snap.Items = snapItems
		dup.InvoiceSnapshot = &snap
	}
	return &dup
}

func cloneZone(src domain.DeliveryZone) domain.DeliveryZone {
	dup := src
	if src.Polygon != nil {
		polygon := make([]domain.LatLng, len(src.Polygon))
		copy(polygon, src.Polygon)
		dup.Polygon = polygon
	}
	return dup
}
