package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"strings"
	"time"

	"qayd/backend/internal/domain"
	"qayd/backend/internal/pricing"
	"qayd/backend/internal/store"
	"qayd/backend/internal/xid"
)

func (s *Service) Checkout(ctx context.Context, req domain.CheckoutRequest) (domain.CheckoutResponse, error) {
	if req.BranchID == "" {
		req.BranchID = s.defaultBranchID
	}
	req.OrderSource = strings.ToLower(strings.TrimSpace(req.OrderSource))
	if req.OrderSource == "" {
		req.OrderSource = domain.OrderSourceDineIn
	}
	if !isSupportedOrderSource(req.OrderSource) {
		return domain.CheckoutResponse{}, store.ErrInvalidRecord
	}

	req.PaymentSplits = normalizePaymentSplits(req.PaymentSplits)
	if len(req.PaymentSplits) > 0 {
		req.PaymentMethod = "split"
	}
	if req.PaymentMethod == "" {
		req.PaymentMethod = "cash"
	}
	if !isSupportedPaymentMethod(req.PaymentMethod) {
		return domain.CheckoutResponse{}, store.ErrInvalidRecord
	}
	if req.IdempotencyKey == "" {
		req.IdempotencyKey = xid.New("idem")
	}

	shift, err := s.repo.GetActiveShift(ctx, req.BranchID, req.TerminalID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.CheckoutResponse{}, fmt.Errorf("active shift required")
		}
		return domain.CheckoutResponse{}, err
	}

	if existing, err := s.repo.FindOrderByIdempotency(ctx, req.IdempotencyKey); err == nil {
		return domain.CheckoutResponse{Order: *existing, Duplicate: true}, nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return domain.CheckoutResponse{}, err
	}

	items, deductions, subtotal, err := s.buildOrderItems(ctx, req.Items)
	if err != nil {
		return domain.CheckoutResponse{}, err
	}

	deliveryFee := int64(0)
	zoneID := ""
	if req.OrderSource == domain.OrderSourceDelivery {
		if strings.TrimSpace(req.Address) == "" {
			return domain.CheckoutResponse{}, fmt.Errorf("%w: delivery order requires an address", store.ErrInvalidRecord)
		}
		if strings.TrimSpace(req.DeliveryZoneID) != "" {
			zone, err := s.repo.GetZoneByID(ctx, strings.TrimSpace(req.DeliveryZoneID))
			if err != nil {
				return domain.CheckoutResponse{}, err
			}
			if !zone.Active {
				return domain.CheckoutResponse{}, fmt.Errorf("%w: delivery zone inactive", store.ErrInvalidRecord)
			}
			deliveryFee = zone.DeliveryFeeCents
			zoneID = zone.ID
		}
	}

	discount := int64(0)
	couponCode := strings.ToUpper(strings.TrimSpace(req.CouponCode))
	if couponCode != "" {
		discount, err = s.couponDiscount(ctx, couponCode, subtotal)
		if err != nil {
			return domain.CheckoutResponse{}, err
		}
	}
	if discount > subtotal {
		discount = subtotal
	}

	taxable := subtotal - discount + deliveryFee
	taxCents := int64(math.Round(float64(taxable) * s.identity.TaxRatePercent / 100))
	totalCents := taxable + taxCents
	baseTotalCents := int64(math.Round(float64(totalCents) * s.identity.FXRate))

	changeCents := int64(0)
	switch req.PaymentMethod {
	case "cash":
		if req.CashReceivedCents < totalCents {
			return domain.CheckoutResponse{}, fmt.Errorf("%w: cash received below total", store.ErrInvalidRecord)
		}
		changeCents = req.CashReceivedCents - totalCents
	case "split":
		if len(req.PaymentSplits) < 2 {
			return domain.CheckoutResponse{}, store.ErrInvalidRecord
		}
		splitTotal := int64(0)
		for _, split := range req.PaymentSplits {
			if !isSplitMethodSupported(split.Method) || split.AmountCents < 1 {
				return domain.CheckoutResponse{}, store.ErrInvalidRecord
			}
			if split.Method != "cash" && strings.TrimSpace(split.Reference) == "" {
				return domain.CheckoutResponse{}, store.ErrInvalidRecord
			}
			splitTotal += split.AmountCents
		}
		if splitTotal != totalCents {
			return domain.CheckoutResponse{}, fmt.Errorf("%w: split amounts must sum to total", store.ErrInvalidRecord)
		}
		req.CashReceivedCents = totalCents
	default:
		// Non-cash single payment.
		if strings.TrimSpace(req.PaymentReference) == "" {
			return domain.CheckoutResponse{}, fmt.Errorf("%w: payment reference required", store.ErrInvalidRecord)
		}
		req.CashReceivedCents = totalCents
	}

	now := time.Now().UTC()
	order := domain.Order{
		ID:                xid.New("ord"),
		BranchID:          req.BranchID,
		TerminalID:        req.TerminalID,
		ShiftID:           shift.ID,
		IdempotencyKey:    req.IdempotencyKey,
		OrderSource:       req.OrderSource,
		Status:            domain.OrderStatusPaid,
		CustomerName:      strings.TrimSpace(req.CustomerName),
		PhoneNumber:       strings.TrimSpace(req.PhoneNumber),
		Address:           strings.TrimSpace(req.Address),
		DeliveryZoneID:    zoneID,
		Items:             items,
		SubtotalCents:     subtotal,
		DiscountCents:     discount,
		CouponCode:        couponCode,
		DeliveryFeeCents:  deliveryFee,
		TaxRatePercent:    s.identity.TaxRatePercent,
		TaxCents:          taxCents,
		TotalCents:        totalCents,
		Currency:          s.identity.Currency,
		FXRate:            s.identity.FXRate,
		BaseTotalCents:    baseTotalCents,
		PaymentMethod:     req.PaymentMethod,
		PaymentReference:  strings.TrimSpace(req.PaymentReference),
		PaymentSplits:     req.PaymentSplits,
		CashReceivedCents: req.CashReceivedCents,
		ChangeCents:       changeCents,
		Note:              strings.TrimSpace(req.Note),
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	created, err := s.repo.CreateOrder(ctx, order, orderPayments(order), deductions)
	if err != nil {
		return domain.CheckoutResponse{}, err
	}
	// The store resolves idempotency races by returning the first order
	// written under the key.
	if created.ID != order.ID {
		return domain.CheckoutResponse{Order: *created, Duplicate: true}, nil
	}

	s.logAudit(
		ctx,
		req.BranchID,
		"checkout",
		"order",
		created.ID,
		fmt.Sprintf(
			"total=%d,payment=%s,source=%s,discount=%d,delivery_fee=%d",
			created.TotalCents,
			created.PaymentMethod,
			created.OrderSource,
			created.DiscountCents,
			created.DeliveryFeeCents,
		),
	)

	return domain.CheckoutResponse{Order: *created}, nil
}

// buildOrderItems resolves catalog rows into priced order lines and the
// stock deductions the order will take.
func (s *Service) buildOrderItems(ctx context.Context, reqs []domain.OrderItemRequest) ([]domain.OrderItem, []domain.StockAdjustment, int64, error) {
	if len(reqs) == 0 {
		return nil, nil, 0, store.ErrInvalidRecord
	}

	productIDs := make([]string, 0, len(reqs))
	addonIDs := make([]string, 0)
	for _, req := range reqs {
		if strings.TrimSpace(req.ProductID) == "" {
			return nil, nil, 0, store.ErrInvalidRecord
		}
		productIDs = append(productIDs, req.ProductID)
		for _, sel := range req.Addons {
			addonIDs = append(addonIDs, sel.AddonID)
		}
	}

	products, err := s.repo.GetProductsByIDs(ctx, productIDs)
	if err != nil {
		return nil, nil, 0, err
	}
	addons := map[string]domain.Addon{}
	if len(addonIDs) > 0 {
		addons, err = s.repo.GetAddonsByIDs(ctx, addonIDs)
		if err != nil {
			return nil, nil, 0, err
		}
	}

	items := make([]domain.OrderItem, 0, len(reqs))
	deductionByProduct := make(map[string]int, len(reqs))
	subtotal := int64(0)

	for _, req := range reqs {
		product, exists := products[req.ProductID]
		if !exists || !product.Active {
			return nil, nil, 0, fmt.Errorf("%w: unknown product %s", store.ErrInvalidRecord, req.ProductID)
		}

		if pricing.IsWeightBased(product.UnitType) {
			if req.Weight <= 0 && req.Qty < 1 {
				return nil, nil, 0, fmt.Errorf("%w: weight required for %s", store.ErrInvalidRecord, product.Name)
			}
		} else if req.Qty < 1 {
			return nil, nil, 0, fmt.Errorf("%w: qty required for %s", store.ErrInvalidRecord, product.Name)
		}

		selections := make([]domain.AddonSelection, 0, len(req.Addons))
		for _, sel := range req.Addons {
			addon, exists := addons[sel.AddonID]
			if !exists || !addon.Active {
				return nil, nil, 0, fmt.Errorf("%w: unknown addon %s", store.ErrInvalidRecord, sel.AddonID)
			}
			qty := sel.Qty
			if qty == 0 {
				qty = 1
			}
			if qty < 0 {
				return nil, nil, 0, store.ErrInvalidRecord
			}
			selections = append(selections, domain.AddonSelection{
				AddonID:    addon.ID,
				Name:       addon.Name,
				PriceCents: addon.PriceCents,
				Qty:        qty,
			})
		}

		item := domain.OrderItem{
			ProductID:       product.ID,
			Name:            product.Name,
			UnitType:        product.UnitType,
			PriceCents:      product.PriceCents,
			PricePerKgCents: product.PricePerKgCents,
			Qty:             req.Qty,
			Weight:          req.Weight,
			Addons:          selections,
		}
		priced := pricing.Aggregate(item)
		item.Addons = priced.Addons
		item.LineTotalCents = priced.LineTotalCents
		subtotal += priced.LineTotalCents

		if product.TrackStock && !priced.IsWeightBased {
			deductionByProduct[product.ID] += item.Qty
		}

		items = append(items, item)
	}

	deductions := make([]domain.StockAdjustment, 0, len(deductionByProduct))
	for _, item := range items {
		qty, ok := deductionByProduct[item.ProductID]
		if !ok {
			continue
		}
		delete(deductionByProduct, item.ProductID)
		deductions = append(deductions, domain.StockAdjustment{ProductID: item.ProductID, Qty: qty})
	}

	return items, deductions, subtotal, nil
}

func (s *Service) couponDiscount(ctx context.Context, code string, subtotal int64) (int64, error) {
	coupon, err := s.repo.GetCouponByCode(ctx, code)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return 0, fmt.Errorf("%w: unknown coupon %s", store.ErrInvalidRecord, code)
		}
		return 0, err
	}
	if !coupon.Active {
		return 0, fmt.Errorf("%w: coupon %s is disabled", store.ErrInvalidRecord, code)
	}
	if coupon.ExpiresAt != nil && time.Now().UTC().After(*coupon.ExpiresAt) {
		return 0, fmt.Errorf("%w: coupon %s has expired", store.ErrInvalidRecord, code)
	}
	if subtotal < coupon.MinSubtotalCents {
		return 0, fmt.Errorf("%w: coupon %s needs a larger order", store.ErrInvalidRecord, code)
	}

	switch coupon.Type {
	case "percent":
		return int64(math.Round(float64(subtotal) * coupon.DiscountPercent / 100)), nil
	case "flat":
		return coupon.FlatDiscountCents, nil
	}
	return 0, fmt.Errorf("%w: coupon %s has an unknown type", store.ErrInvalidRecord, code)
}

// orderPayments expands an order into the shift payment rows recorded
// alongside it.
func orderPayments(order domain.Order) []domain.Payment {
	now := order.CreatedAt
	if order.PaymentMethod == "split" {
		payments := make([]domain.Payment, 0, len(order.PaymentSplits))
		for _, split := range order.PaymentSplits {
			payments = append(payments, domain.Payment{
				ID:          xid.New("pay"),
				ShiftID:     order.ShiftID,
				OrderID:     order.ID,
				Method:      split.Method,
				Direction:   domain.PaymentDirectionIn,
				AmountCents: split.AmountCents,
				Reference:   split.Reference,
				CreatedAt:   now,
			})
		}
		return payments
	}

	return []domain.Payment{{
		ID:          xid.New("pay"),
		ShiftID:     order.ShiftID,
		OrderID:     order.ID,
		Method:      order.PaymentMethod,
		Direction:   domain.PaymentDirectionIn,
		AmountCents: order.TotalCents,
		Reference:   order.PaymentReference,
		CreatedAt:   now,
	}}
}

func (s *Service) GetOrder(ctx context.Context, orderID string) (domain.Order, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return domain.Order{}, store.ErrInvalidRecord
	}
	order, err := s.repo.FindOrderByID(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	return *order, nil
}

func (s *Service) ListOrders(ctx context.Context, branchID string, date string) ([]domain.Order, error) {
	if branchID == "" {
		branchID = s.defaultBranchID
	}
	day, err := parseDay(date)
	if err != nil {
		return nil, err
	}
	return s.repo.ListOrdersBetween(ctx, branchID, day, day.Add(24*time.Hour))
}

func (s *Service) UpdateOrderContact(ctx context.Context, orderID string, req domain.OrderContactUpdateRequest) (domain.Order, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return domain.Order{}, store.ErrInvalidRecord
	}
	if req.CustomerName == nil && req.PhoneNumber == nil && req.Address == nil && req.Note == nil {
		return domain.Order{}, store.ErrInvalidRecord
	}

	updated, err := s.repo.UpdateOrderContact(ctx, orderID, req, time.Now().UTC())
	if err != nil {
		return domain.Order{}, err
	}

	s.logAudit(ctx, updated.BranchID, "order_contact_update", "order", updated.ID, "contact fields changed")
	return *updated, nil
}

func (s *Service) VoidOrder(ctx context.Context, req domain.VoidOrderRequest) (domain.VoidOrderResponse, error) {
	if strings.TrimSpace(req.OrderID) == "" {
		return domain.VoidOrderResponse{}, store.ErrInvalidRecord
	}
	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		reason = "unspecified"
	}

	voidedAt := time.Now().UTC()
	order, err := s.repo.VoidOrder(ctx, req.OrderID, reason, voidedAt)
	if err != nil {
		return domain.VoidOrderResponse{}, err
	}

	s.reverseCashPayment(ctx, order, cashPortion(*order), "void "+order.ID)
	s.logAudit(ctx, order.BranchID, "void_order", "order", order.ID, reason)

	return domain.VoidOrderResponse{
		OrderID:  order.ID,
		Status:   order.Status,
		VoidedAt: voidedAt.Format(time.RFC3339),
	}, nil
}

func (s *Service) Refund(ctx context.Context, req domain.RefundRequest) (domain.RefundResponse, error) {
	if strings.TrimSpace(req.OrderID) == "" || req.AmountCents <= 0 {
		return domain.RefundResponse{}, store.ErrInvalidRecord
	}

	order, err := s.repo.FindOrderByID(ctx, req.OrderID)
	if err != nil {
		return domain.RefundResponse{}, err
	}
	if order.Status == domain.OrderStatusVoided {
		return domain.RefundResponse{}, fmt.Errorf("%w: voided order cannot be refunded", store.ErrInvalidRecord)
	}
	if req.AmountCents > order.TotalCents {
		return domain.RefundResponse{}, fmt.Errorf("%w: refund exceeds order total", store.ErrInvalidRecord)
	}
	method := strings.ToLower(strings.TrimSpace(req.Method))
	if method == "" {
		method = "cash"
	}
	if !isSplitMethodSupported(method) {
		return domain.RefundResponse{}, store.ErrInvalidRecord
	}

	refund := domain.Refund{
		ID:          xid.New("rfd"),
		OrderID:     order.ID,
		Reason:      strings.TrimSpace(req.Reason),
		AmountCents: req.AmountCents,
		Method:      method,
		CreatedAt:   time.Now().UTC(),
	}
	created, err := s.repo.CreateRefund(ctx, refund)
	if err != nil {
		return domain.RefundResponse{}, err
	}

	if method == "cash" {
		s.reverseCashPayment(ctx, order, req.AmountCents, "refund "+created.ID)
	}
	s.logAudit(ctx, order.BranchID, "refund_order", "order", order.ID, fmt.Sprintf("amount=%d,method=%s,reason=%s", req.AmountCents, method, refund.Reason))

	return domain.RefundResponse{Refund: *created}, nil
}

// reverseCashPayment records cash leaving the drawer against the open
// shift on the order's terminal. Without an open shift the reversal is
// logged and skipped; the closed shift's numbers stay as counted.
func (s *Service) reverseCashPayment(ctx context.Context, order *domain.Order, amountCents int64, reference string) {
	if amountCents < 1 {
		return
	}
	shift, err := s.repo.GetActiveShift(ctx, order.BranchID, order.TerminalID)
	if err != nil {
		log.Printf("[service] WARN: no open shift for cash reversal order=%s amount=%d: %v", order.ID, amountCents, err)
		return
	}
	if _, err := s.repo.CreatePayment(ctx, domain.Payment{
		ID:          xid.New("pay"),
		ShiftID:     shift.ID,
		OrderID:     order.ID,
		Method:      "cash",
		Direction:   domain.PaymentDirectionOut,
		AmountCents: amountCents,
		Reference:   reference,
		CreatedAt:   time.Now().UTC(),
	}); err != nil {
		log.Printf("[service] WARN: failed to record cash reversal order=%s: %v", order.ID, err)
	}
}

// cashPortion is how much of an order was paid in physical cash.
func cashPortion(order domain.Order) int64 {
	switch order.PaymentMethod {
	case "cash":
		return order.TotalCents
	case "split":
		total := int64(0)
		for _, split := range order.PaymentSplits {
			if split.Method == "cash" {
				total += split.AmountCents
			}
		}
		return total
	}
	return 0
}

func (s *Service) SyncOffline(ctx context.Context, req domain.OfflineSyncRequest) (domain.OfflineSyncResponse, error) {
	resp := domain.OfflineSyncResponse{
		EnvelopeID: req.EnvelopeID,
		Statuses:   make([]domain.OfflineSyncStatus, 0, len(req.Orders)),
	}

	for _, offline := range req.Orders {
		checkoutReq := offline.Checkout
		if checkoutReq.BranchID == "" {
			checkoutReq.BranchID = req.BranchID
		}
		if checkoutReq.TerminalID == "" {
			checkoutReq.TerminalID = req.TerminalID
		}
		if checkoutReq.IdempotencyKey == "" {
			checkoutReq.IdempotencyKey = offline.ClientOrderID
		}

		checkoutResp, err := s.Checkout(ctx, checkoutReq)
		status := domain.OfflineSyncStatus{
			ClientOrderID: offline.ClientOrderID,
		}
		if err != nil {
			status.Status = "rejected"
			status.Reason = err.Error()
			resp.Statuses = append(resp.Statuses, status)
			continue
		}

		if checkoutResp.Duplicate {
			status.Status = "duplicate"
		} else {
			status.Status = "accepted"
		}
		status.OrderID = checkoutResp.Order.ID
		resp.Statuses = append(resp.Statuses, status)
	}

	return resp, nil
}

func normalizePaymentSplits(splits []domain.PaymentSplit) []domain.PaymentSplit {
	normalized := make([]domain.PaymentSplit, 0, len(splits))
	for _, split := range splits {
		split.Method = strings.ToLower(strings.TrimSpace(split.Method))
		split.Reference = strings.TrimSpace(split.Reference)
		if split.Method == "" || split.AmountCents == 0 {
			continue
		}
		normalized = append(normalized, split)
	}
	return normalized
}

func isSupportedOrderSource(source string) bool {
	switch source {
	case domain.OrderSourceDineIn, domain.OrderSourceTakeaway, domain.OrderSourceDelivery, domain.OrderSourceOnline:
		return true
	}
	return false
}

func isSupportedPaymentMethod(method string) bool {
	if method == "split" {
		return true
	}
	return isSplitMethodSupported(method)
}

func isSplitMethodSupported(method string) bool {
	switch method {
	case "cash", "card", "mada", "stc_pay", "transfer":
		return true
	}
	return false
}
