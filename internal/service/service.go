// Package service holds the business rules of the POS backend. Handlers
// decode requests and call into here; persistence stays behind
// store.Repository.
package service

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"qayd/backend/internal/cache"
	"qayd/backend/internal/domain"
	"qayd/backend/internal/store"
	"qayd/backend/internal/xid"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

type Service struct {
	repo            store.Repository
	reports         cache.ReportCache
	identity        domain.MerchantIdentity
	defaultBranchID string
	reportTTL       time.Duration
}

func New(repo store.Repository, reports cache.ReportCache, identity domain.MerchantIdentity, defaultBranchID string, reportTTL time.Duration) *Service {
	if defaultBranchID == "" {
		defaultBranchID = "main-branch"
	}
	if reports == nil {
		reports = cache.NoopReportCache{}
	}
	if reportTTL < time.Second {
		reportTTL = 5 * time.Minute
	}
	if identity.Currency == "" {
		identity.Currency = "SAR"
	}
	if identity.FXRate <= 0 {
		identity.FXRate = 1
	}

	return &Service{
		repo:            repo,
		reports:         reports,
		identity:        identity,
		defaultBranchID: defaultBranchID,
		reportTTL:       reportTTL,
	}
}

func (s *Service) Identity() domain.MerchantIdentity {
	return s.identity
}

func (s *Service) ListProducts(ctx context.Context, branchID string) ([]domain.Product, error) {
	if branchID == "" {
		branchID = s.defaultBranchID
	}
	return s.repo.ListProducts(ctx, branchID)
}

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (domain.Product, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return domain.Product{}, fmt.Errorf("admin role required")
	}

	if req.BranchID == "" {
		req.BranchID = s.defaultBranchID
	}
	req.Name = strings.TrimSpace(req.Name)
	req.Category = strings.TrimSpace(req.Category)
	req.UnitType = strings.ToLower(strings.TrimSpace(req.UnitType))
	if req.UnitType == "" {
		req.UnitType = domain.UnitPiece
	}

	if req.Name == "" || req.Category == "" {
		return domain.Product{}, store.ErrInvalidRecord
	}
	switch req.UnitType {
	case domain.UnitPiece, domain.UnitKg:
		if req.PriceCents < 1 {
			return domain.Product{}, store.ErrInvalidRecord
		}
	case domain.UnitGram:
		if req.PricePerKgCents < 1 {
			return domain.Product{}, store.ErrInvalidRecord
		}
	default:
		return domain.Product{}, store.ErrInvalidRecord
	}
	if req.InitialStock < 0 {
		return domain.Product{}, store.ErrInvalidRecord
	}

	// Stock counts only exist for piece goods; weight goods are sold
	// from bulk and never tracked per unit.
	if req.UnitType != domain.UnitPiece {
		req.TrackStock = false
	}
	initialStock := 0
	if req.TrackStock {
		initialStock = req.InitialStock
	}

	product := domain.Product{
		ID:              xid.New("prd"),
		Name:            req.Name,
		Category:        req.Category,
		UnitType:        req.UnitType,
		PriceCents:      req.PriceCents,
		PricePerKgCents: req.PricePerKgCents,
		TrackStock:      req.TrackStock,
		Active:          true,
		CreatedAt:       time.Now().UTC(),
	}

	created, err := s.repo.CreateProduct(ctx, req.BranchID, product, initialStock)
	if err != nil {
		return domain.Product{}, err
	}

	s.logAudit(ctx, req.BranchID, "product_create", "product", created.ID, fmt.Sprintf("name=%s,unit=%s,stock=%d", created.Name, created.UnitType, initialStock))
	return *created, nil
}

func (s *Service) UpdateProduct(ctx context.Context, productID string, req domain.ProductUpdateRequest) (domain.Product, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return domain.Product{}, fmt.Errorf("admin role required")
	}

	productID = strings.TrimSpace(productID)
	if productID == "" {
		return domain.Product{}, store.ErrInvalidRecord
	}

	existing, err := s.repo.GetProductByID(ctx, productID)
	if err != nil {
		return domain.Product{}, err
	}

	updated := *existing
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return domain.Product{}, store.ErrInvalidRecord
		}
		updated.Name = name
	}
	if req.Category != nil {
		category := strings.TrimSpace(*req.Category)
		if category == "" {
			return domain.Product{}, store.ErrInvalidRecord
		}
		updated.Category = category
	}
	if req.PriceCents != nil {
		if *req.PriceCents < 1 {
			return domain.Product{}, store.ErrInvalidRecord
		}
		updated.PriceCents = *req.PriceCents
	}
	if req.PricePerKgCents != nil {
		if *req.PricePerKgCents < 1 {
			return domain.Product{}, store.ErrInvalidRecord
		}
		updated.PricePerKgCents = *req.PricePerKgCents
	}
	if req.Active != nil {
		updated.Active = *req.Active
	}

	saved, err := s.repo.UpdateProduct(ctx, updated)
	if err != nil {
		return domain.Product{}, err
	}

	oldPrice := effectivePrice(*existing)
	newPrice := effectivePrice(*saved)
	if oldPrice != newPrice {
		if err := s.repo.CreatePriceHistory(ctx, domain.ProductPriceHistory{
			ID:            xid.New("ph"),
			ProductID:     saved.ID,
			OldPriceCents: oldPrice,
			NewPriceCents: newPrice,
			ChangedBy:     actor.Username,
			ChangedAt:     time.Now().UTC(),
		}); err != nil {
			log.Printf("[service] WARN: failed to record price history product=%s: %v", saved.ID, err)
		}
	}

	s.logAudit(ctx, s.defaultBranchID, "product_update", "product", saved.ID, fmt.Sprintf("active=%t,price=%d", saved.Active, newPrice))
	return *saved, nil
}

func (s *Service) ListProductPriceHistory(ctx context.Context, productID string, limit int) ([]domain.ProductPriceHistory, error) {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return nil, store.ErrInvalidRecord
	}
	if limit < 1 {
		limit = 50
	}
	return s.repo.ListPriceHistory(ctx, productID, limit)
}

func (s *Service) ListAddons(ctx context.Context) ([]domain.Addon, error) {
	return s.repo.ListAddons(ctx)
}

func (s *Service) CreateAddon(ctx context.Context, req domain.AddonCreateRequest) (domain.Addon, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return domain.Addon{}, fmt.Errorf("admin role required")
	}

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" || req.PriceCents < 0 {
		return domain.Addon{}, store.ErrInvalidRecord
	}

	addon := domain.Addon{
		ID:         xid.New("add"),
		Name:       req.Name,
		PriceCents: req.PriceCents,
		Active:     true,
		CreatedAt:  time.Now().UTC(),
	}
	created, err := s.repo.CreateAddon(ctx, addon)
	if err != nil {
		return domain.Addon{}, err
	}

	s.logAudit(ctx, s.defaultBranchID, "addon_create", "addon", created.ID, fmt.Sprintf("name=%s,price=%d", created.Name, created.PriceCents))
	return *created, nil
}

func (s *Service) UpdateAddon(ctx context.Context, addonID string, req domain.AddonUpdateRequest) (domain.Addon, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return domain.Addon{}, fmt.Errorf("admin role required")
	}

	addonID = strings.TrimSpace(addonID)
	if addonID == "" {
		return domain.Addon{}, store.ErrInvalidRecord
	}

	addons, err := s.repo.GetAddonsByIDs(ctx, []string{addonID})
	if err != nil {
		return domain.Addon{}, err
	}
	existing, ok := addons[addonID]
	if !ok {
		return domain.Addon{}, store.ErrNotFound
	}

	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return domain.Addon{}, store.ErrInvalidRecord
		}
		existing.Name = name
	}
	if req.PriceCents != nil {
		if *req.PriceCents < 0 {
			return domain.Addon{}, store.ErrInvalidRecord
		}
		existing.PriceCents = *req.PriceCents
	}
	if req.Active != nil {
		existing.Active = *req.Active
	}

	saved, err := s.repo.UpdateAddon(ctx, existing)
	if err != nil {
		return domain.Addon{}, err
	}

	s.logAudit(ctx, s.defaultBranchID, "addon_update", "addon", saved.ID, fmt.Sprintf("active=%t,price=%d", saved.Active, saved.PriceCents))
	return *saved, nil
}

func (s *Service) ListCoupons(ctx context.Context) ([]domain.Coupon, error) {
	return s.repo.ListCoupons(ctx)
}

func (s *Service) CreateCoupon(ctx context.Context, req domain.CouponCreateRequest) (domain.Coupon, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return domain.Coupon{}, fmt.Errorf("admin role required")
	}

	code := strings.ToUpper(strings.TrimSpace(req.Code))
	couponType := strings.ToLower(strings.TrimSpace(req.Type))
	if code == "" || req.MinSubtotalCents < 0 {
		return domain.Coupon{}, store.ErrInvalidRecord
	}
	switch couponType {
	case "percent":
		if req.DiscountPercent <= 0 || req.DiscountPercent > 100 {
			return domain.Coupon{}, store.ErrInvalidRecord
		}
	case "flat":
		if req.FlatDiscountCents < 1 {
			return domain.Coupon{}, store.ErrInvalidRecord
		}
	default:
		return domain.Coupon{}, store.ErrInvalidRecord
	}

	var expiresAt *time.Time
	if strings.TrimSpace(req.ExpiresAt) != "" {
		parsed, err := time.Parse("2006-01-02", req.ExpiresAt)
		if err != nil {
			return domain.Coupon{}, store.ErrInvalidRecord
		}
		// Coupons stay valid through their expiry date.
		exp := parsed.UTC().Add(24 * time.Hour)
		expiresAt = &exp
	}

	coupon := domain.Coupon{
		ID:                xid.New("cpn"),
		Code:              code,
		Type:              couponType,
		DiscountPercent:   req.DiscountPercent,
		FlatDiscountCents: req.FlatDiscountCents,
		MinSubtotalCents:  req.MinSubtotalCents,
		ExpiresAt:         expiresAt,
		Active:            true,
		CreatedAt:         time.Now().UTC(),
	}
	created, err := s.repo.CreateCoupon(ctx, coupon)
	if err != nil {
		return domain.Coupon{}, err
	}

	s.logAudit(ctx, s.defaultBranchID, "coupon_create", "coupon", created.ID, fmt.Sprintf("code=%s,type=%s", created.Code, created.Type))
	return *created, nil
}

func (s *Service) SetCouponActive(ctx context.Context, couponID string, active bool) (domain.Coupon, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return domain.Coupon{}, fmt.Errorf("admin role required")
	}

	couponID = strings.TrimSpace(couponID)
	if couponID == "" {
		return domain.Coupon{}, store.ErrInvalidRecord
	}

	saved, err := s.repo.SetCouponActive(ctx, couponID, active)
	if err != nil {
		return domain.Coupon{}, err
	}
	s.logAudit(ctx, s.defaultBranchID, "coupon_toggle", "coupon", saved.ID, fmt.Sprintf("active=%t", active))
	return *saved, nil
}

func (s *Service) ListAuditLogs(ctx context.Context, branchID string, date string, limit int) ([]domain.AuditLog, error) {
	if branchID == "" {
		branchID = s.defaultBranchID
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
			return nil, store.ErrInvalidRecord
		}
		from = parsed.UTC()
	}
	to := from.Add(24 * time.Hour)

	return s.repo.ListAuditLogs(ctx, branchID, from, to, limit)
}

func (s *Service) logAudit(ctx context.Context, branchID string, action string, entityType string, entityID string, detail string) {
	if branchID == "" {
		branchID = s.defaultBranchID
	}

	actor, ok := ActorFromContext(ctx)
	if !ok {
		actor = domain.Actor{Username: "system", Role: "system"}
	}

	if err := s.repo.CreateAuditLog(ctx, domain.AuditLog{
		ID:            xid.New("audit"),
		BranchID:      branchID,
		ActorUsername: actor.Username,
		ActorRole:     actor.Role,
		Action:        action,
		EntityType:    entityType,
		EntityID:      entityID,
		Detail:        detail,
		CreatedAt:     time.Now().UTC(),
	}); err != nil {
		log.Printf("[audit] WARN: failed to write audit log action=%s entity=%s/%s: %v", action, entityType, entityID, err)
	}
}

func effectivePrice(product domain.Product) int64 {
	if product.UnitType == domain.UnitGram {
		return product.PricePerKgCents
	}
	return product.PriceCents
}

func parseDay(date string) (time.Time, error) {
	if strings.TrimSpace(date) == "" {
		now := time.Now().UTC()
		return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC), nil
	}
	parsed, err := time.Parse("2006-01-02", date)
	if err != nil {
		return time.Time{}, store.ErrInvalidRecord
	}
	return parsed.UTC(), nil
}

func defaultString(value string, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
