package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"qayd/backend/internal/cache"
	"qayd/backend/internal/domain"
	"qayd/backend/internal/store"
	"qayd/backend/internal/store/memory"
)

func testIdentity() domain.MerchantIdentity {
	return domain.MerchantIdentity{
		TradeName:      "Qayd Restaurant",
		VATNumber:      "310000000000003",
		Currency:       "SAR",
		TaxRatePercent: 15,
		FXRate:         1,
		InvoiceTerms:   "Due on receipt",
	}
}

func newTestService(t *testing.T) (*Service, *memory.Store) {
	t.Helper()
	repo := memory.NewSeeded()
	svc := New(repo, cache.NewMemoryReportCache(), testIdentity(), "main-branch", time.Minute)
	return svc, repo
}

func adminContext() context.Context {
	return WithActor(context.Background(), domain.Actor{Username: "admin", Role: "admin"})
}

func openTestShift(t *testing.T, svc *Service, terminalID string, openingFloat int64) domain.CashShift {
	t.Helper()
	resp, err := svc.OpenShift(context.Background(), domain.ShiftOpenRequest{
		TerminalID:        terminalID,
		CashierName:       "Huda",
		OpeningFloatCents: openingFloat,
	})
	if err != nil {
		t.Fatalf("open shift: %v", err)
	}
	return resp.Shift
}

func mustCheckout(t *testing.T, svc *Service, req domain.CheckoutRequest) domain.Order {
	t.Helper()
	resp, err := svc.Checkout(context.Background(), req)
	if err != nil {
		t.Fatalf("checkout: %v", err)
	}
	if resp.Duplicate {
		t.Fatalf("unexpected duplicate for key %s", req.IdempotencyKey)
	}
	return resp.Order
}

func TestCheckoutRequiresOpenShift(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Checkout(context.Background(), domain.CheckoutRequest{
		TerminalID:        "t1",
		CashReceivedCents: 10000,
		Items:             []domain.OrderItemRequest{{ProductID: "prd-shawarma", Qty: 1}},
	})
	if err == nil || !strings.Contains(err.Error(), "active shift required") {
		t.Fatalf("expected active shift error, got %v", err)
	}
}

func TestCheckoutPieceAndGramTotals(t *testing.T) {
	svc, repo := newTestService(t)
	openTestShift(t, svc, "t1", 10000)

	order := mustCheckout(t, svc, domain.CheckoutRequest{
		TerminalID:        "t1",
		IdempotencyKey:    "chk-totals",
		CashReceivedCents: 6000,
		Items: []domain.OrderItemRequest{
			{ProductID: "prd-shawarma", Qty: 2, Addons: []domain.OrderItemAddonRequest{{AddonID: "add-garlic", Qty: 1}}},
			{ProductID: "prd-baklava", Weight: 250},
		},
	})

	// (1500+300)*2 + 250g at 6000/kg = 3600 + 1500.
	if order.SubtotalCents != 5100 {
		t.Fatalf("subtotal = %d, want 5100", order.SubtotalCents)
	}
	if order.TaxCents != 765 {
		t.Fatalf("tax = %d, want 765", order.TaxCents)
	}
	if order.TotalCents != 5865 {
		t.Fatalf("total = %d, want 5865", order.TotalCents)
	}
	if order.ChangeCents != 135 {
		t.Fatalf("change = %d, want 135", order.ChangeCents)
	}
	if order.Status != domain.OrderStatusPaid {
		t.Fatalf("status = %s, want paid", order.Status)
	}

	stock, err := repo.GetStockMap(context.Background(), "main-branch", []string{"prd-shawarma"})
	if err != nil {
		t.Fatalf("stock map: %v", err)
	}
	if stock["prd-shawarma"] != 118 {
		t.Fatalf("shawarma stock = %d, want 118", stock["prd-shawarma"])
	}
}

func TestCheckoutIdempotencyReturnsFirstOrder(t *testing.T) {
	svc, _ := newTestService(t)
	openTestShift(t, svc, "t1", 10000)

	req := domain.CheckoutRequest{
		TerminalID:        "t1",
		IdempotencyKey:    "chk-dup",
		CashReceivedCents: 2000,
		Items:             []domain.OrderItemRequest{{ProductID: "prd-juice", Qty: 1}},
	}
	first := mustCheckout(t, svc, req)

	resp, err := svc.Checkout(context.Background(), req)
	if err != nil {
		t.Fatalf("replay checkout: %v", err)
	}
	if !resp.Duplicate {
		t.Fatal("expected duplicate flag on replay")
	}
	if resp.Order.ID != first.ID {
		t.Fatalf("replay order = %s, want %s", resp.Order.ID, first.ID)
	}
}

func TestCheckoutDeliveryZoneFeeAndCoupon(t *testing.T) {
	svc, _ := newTestService(t)
	openTestShift(t, svc, "t1", 10000)

	order := mustCheckout(t, svc, domain.CheckoutRequest{
		TerminalID:        "t1",
		IdempotencyKey:    "chk-delivery",
		OrderSource:       domain.OrderSourceDelivery,
		CustomerName:      "Salem",
		PhoneNumber:       "+966500000001",
		Address:           "Olaya St 12",
		DeliveryZoneID:    "zone-olaya",
		CouponCode:        "welcome10",
		CashReceivedCents: 5000,
		Items:             []domain.OrderItemRequest{{ProductID: "prd-kabsa", Qty: 1}},
	})

	if order.DiscountCents != 320 {
		t.Fatalf("discount = %d, want 320", order.DiscountCents)
	}
	if order.DeliveryFeeCents != 700 {
		t.Fatalf("delivery fee = %d, want 700", order.DeliveryFeeCents)
	}
	// (3200-320+700) plus 15% VAT.
	if order.TaxCents != 537 {
		t.Fatalf("tax = %d, want 537", order.TaxCents)
	}
	if order.TotalCents != 4117 {
		t.Fatalf("total = %d, want 4117", order.TotalCents)
	}
	if order.CouponCode != "WELCOME10" {
		t.Fatalf("coupon code = %q, want WELCOME10", order.CouponCode)
	}
}

func TestCheckoutDeliveryRequiresAddress(t *testing.T) {
	svc, _ := newTestService(t)
	openTestShift(t, svc, "t1", 10000)

	_, err := svc.Checkout(context.Background(), domain.CheckoutRequest{
		TerminalID:        "t1",
		OrderSource:       domain.OrderSourceDelivery,
		CashReceivedCents: 10000,
		Items:             []domain.OrderItemRequest{{ProductID: "prd-kabsa", Qty: 1}},
	})
	if !errors.Is(err, store.ErrInvalidRecord) {
		t.Fatalf("expected invalid record error, got %v", err)
	}
}

func TestCheckoutCouponBelowMinimumRejected(t *testing.T) {
	svc, _ := newTestService(t)
	openTestShift(t, svc, "t1", 10000)

	_, err := svc.Checkout(context.Background(), domain.CheckoutRequest{
		TerminalID:        "t1",
		CouponCode:        "FIVER",
		CashReceivedCents: 2000,
		Items:             []domain.OrderItemRequest{{ProductID: "prd-falafel", Qty: 1}},
	})
	if !errors.Is(err, store.ErrInvalidRecord) {
		t.Fatalf("expected invalid record error, got %v", err)
	}
}

func TestCheckoutSplitMustSumToTotal(t *testing.T) {
	svc, _ := newTestService(t)
	openTestShift(t, svc, "t1", 10000)

	// Juice at 800 plus VAT is 920.
	bad := domain.CheckoutRequest{
		TerminalID:     "t1",
		IdempotencyKey: "chk-split-bad",
		PaymentSplits: []domain.PaymentSplit{
			{Method: "cash", AmountCents: 500},
			{Method: "card", AmountCents: 400, Reference: "card-001"},
		},
		Items: []domain.OrderItemRequest{{ProductID: "prd-juice", Qty: 1}},
	}
	if _, err := svc.Checkout(context.Background(), bad); !errors.Is(err, store.ErrInvalidRecord) {
		t.Fatalf("expected split sum error, got %v", err)
	}

	good := bad
	good.IdempotencyKey = "chk-split-good"
	good.PaymentSplits = []domain.PaymentSplit{
		{Method: "cash", AmountCents: 500},
		{Method: "card", AmountCents: 420, Reference: "card-001"},
	}
	resp, err := svc.Checkout(context.Background(), good)
	if err != nil {
		t.Fatalf("split checkout: %v", err)
	}
	if resp.Order.PaymentMethod != "split" {
		t.Fatalf("payment method = %s, want split", resp.Order.PaymentMethod)
	}
	if resp.Order.TotalCents != 920 {
		t.Fatalf("total = %d, want 920", resp.Order.TotalCents)
	}
}

func TestIssueInvoiceSnapshotWinsAndIsOnceOnly(t *testing.T) {
	svc, _ := newTestService(t)
	openTestShift(t, svc, "t1", 10000)

	order := mustCheckout(t, svc, domain.CheckoutRequest{
		TerminalID:        "t1",
		IdempotencyKey:    "chk-invoice",
		CustomerName:      "Salem",
		CashReceivedCents: 2000,
		Items:             []domain.OrderItemRequest{{ProductID: "prd-juice", Qty: 1}},
	})

	first, err := svc.IssueInvoice(context.Background(), order.ID)
	if err != nil {
		t.Fatalf("issue invoice: %v", err)
	}
	if first.Invoice.InvoiceNumber != "INV-MAIN-BRANCH-000001" {
		t.Fatalf("invoice number = %s", first.Invoice.InvoiceNumber)
	}
	if first.Invoice.Source != "snapshot" {
		t.Fatalf("source = %s, want snapshot", first.Invoice.Source)
	}
	if first.QRPayload == "" {
		t.Fatal("expected QR payload")
	}

	// Live edits after issuance must not leak into the invoice.
	newName := "Totally Different"
	if _, err := svc.UpdateOrderContact(context.Background(), order.ID, domain.OrderContactUpdateRequest{CustomerName: &newName}); err != nil {
		t.Fatalf("update contact: %v", err)
	}

	second, err := svc.IssueInvoice(context.Background(), order.ID)
	if err != nil {
		t.Fatalf("reissue invoice: %v", err)
	}
	if second.Invoice.InvoiceNumber != first.Invoice.InvoiceNumber {
		t.Fatalf("reissue changed number: %s vs %s", second.Invoice.InvoiceNumber, first.Invoice.InvoiceNumber)
	}
	if second.Invoice.CustomerName != "Salem" {
		t.Fatalf("invoice customer = %q, want snapshot value Salem", second.Invoice.CustomerName)
	}
}

func TestDuplicateIssueDoesNotBurnSequenceNumbers(t *testing.T) {
	svc, repo := newTestService(t)
	openTestShift(t, svc, "t1", 10000)

	first := mustCheckout(t, svc, domain.CheckoutRequest{
		TerminalID:        "t1",
		IdempotencyKey:    "chk-seq-1",
		CashReceivedCents: 2000,
		Items:             []domain.OrderItemRequest{{ProductID: "prd-juice", Qty: 1}},
	})
	if _, err := svc.IssueInvoice(context.Background(), first.ID); err != nil {
		t.Fatalf("issue invoice: %v", err)
	}

	// Issuing the same order again at the store level must not claim a
	// sequence number: the builder never runs.
	built := false
	reissued, err := repo.IssueInvoiceSnapshot(context.Background(), first.ID, func(seq int64) domain.InvoiceSnapshot {
		built = true
		return domain.InvoiceSnapshot{}
	})
	if err != nil {
		t.Fatalf("reissue: %v", err)
	}
	if built {
		t.Fatal("builder ran for an already-issued order")
	}
	if reissued.InvoiceSnapshot.InvoiceNumber != "INV-MAIN-BRANCH-000001" {
		t.Fatalf("reissue number = %s", reissued.InvoiceSnapshot.InvoiceNumber)
	}

	second := mustCheckout(t, svc, domain.CheckoutRequest{
		TerminalID:        "t1",
		IdempotencyKey:    "chk-seq-2",
		CashReceivedCents: 2000,
		Items:             []domain.OrderItemRequest{{ProductID: "prd-juice", Qty: 1}},
	})
	resp, err := svc.IssueInvoice(context.Background(), second.ID)
	if err != nil {
		t.Fatalf("issue second invoice: %v", err)
	}
	if resp.Invoice.InvoiceNumber != "INV-MAIN-BRANCH-000002" {
		t.Fatalf("second invoice number = %s, want contiguous INV-MAIN-BRANCH-000002", resp.Invoice.InvoiceNumber)
	}
}

func TestPrintInvoiceIncrementsCounter(t *testing.T) {
	svc, _ := newTestService(t)
	openTestShift(t, svc, "t1", 10000)

	order := mustCheckout(t, svc, domain.CheckoutRequest{
		TerminalID:        "t1",
		IdempotencyKey:    "chk-print",
		CashReceivedCents: 2000,
		Items:             []domain.OrderItemRequest{{ProductID: "prd-juice", Qty: 1}},
	})

	if _, err := svc.PrintInvoice(context.Background(), order.ID); !errors.Is(err, store.ErrInvalidRecord) {
		t.Fatalf("expected print before issue to fail, got %v", err)
	}

	if _, err := svc.IssueInvoice(context.Background(), order.ID); err != nil {
		t.Fatalf("issue invoice: %v", err)
	}

	first, err := svc.PrintInvoice(context.Background(), order.ID)
	if err != nil {
		t.Fatalf("print invoice: %v", err)
	}
	second, err := svc.PrintInvoice(context.Background(), order.ID)
	if err != nil {
		t.Fatalf("reprint invoice: %v", err)
	}
	if first.PrintCount != 1 || second.PrintCount != 2 {
		t.Fatalf("print counts = %d, %d, want 1, 2", first.PrintCount, second.PrintCount)
	}
	if second.EscposBase64 == "" || second.PreviewText == "" {
		t.Fatal("expected rendered receipt output")
	}
}

func TestCloseShiftReconciliation(t *testing.T) {
	svc, _ := newTestService(t)
	shift := openTestShift(t, svc, "t1", 10000)

	mustCheckout(t, svc, domain.CheckoutRequest{
		TerminalID:        "t1",
		IdempotencyKey:    "chk-close",
		CashReceivedCents: 2000,
		Items:             []domain.OrderItemRequest{{ProductID: "prd-shawarma", Qty: 1}},
	})
	if _, err := svc.RecordCashMovement(context.Background(), domain.CashMovementRequest{
		TerminalID:  "t1",
		Direction:   domain.PaymentDirectionOut,
		AmountCents: 2000,
		Reason:      "bank drop",
	}); err != nil {
		t.Fatalf("cash movement: %v", err)
	}

	// 10000 float + 1725 cash sale - 2000 drop.
	report, err := svc.ShiftReport(context.Background(), shift.ID)
	if err != nil {
		t.Fatalf("shift report: %v", err)
	}
	if report.ExpectedCashCents != 9725 {
		t.Fatalf("expected cash = %d, want 9725", report.ExpectedCashCents)
	}

	if _, err := svc.CloseShift(context.Background(), domain.ShiftCloseRequest{
		TerminalID:       "t1",
		CountedCashCents: 9000,
	}); !errors.Is(err, store.ErrInvalidRecord) {
		t.Fatalf("expected reason-required error, got %v", err)
	}

	closed, err := svc.CloseShift(context.Background(), domain.ShiftCloseRequest{
		TerminalID:       "t1",
		CountedCashCents: 9000,
		Reason:           "missing cash",
	})
	if err != nil {
		t.Fatalf("close shift: %v", err)
	}
	if closed.Shift.DifferenceCents != -725 {
		t.Fatalf("difference = %d, want -725", closed.Shift.DifferenceCents)
	}
	if closed.Shift.Status != domain.ShiftStatusClosed {
		t.Fatalf("status = %s, want closed", closed.Shift.Status)
	}

	alerts, err := svc.ShiftMismatchAlerts(context.Background(), "", "")
	if err != nil {
		t.Fatalf("mismatch alerts: %v", err)
	}
	if len(alerts.Alerts) != 1 {
		t.Fatalf("alerts = %d, want 1", len(alerts.Alerts))
	}
	if alerts.Alerts[0].Severity != "low" {
		t.Fatalf("severity = %s, want low", alerts.Alerts[0].Severity)
	}
}

// failingTallyRepo breaks the read paths a close must not depend on: the
// store derives expected cash itself, inside its own atomicity boundary.
type failingTallyRepo struct {
	store.Repository
}

func (r *failingTallyRepo) ListShiftPayments(context.Context, string) ([]domain.Payment, error) {
	return nil, errors.New("tally read not allowed")
}

func (r *failingTallyRepo) ListShiftMovements(context.Context, string) ([]domain.CashMovement, error) {
	return nil, errors.New("tally read not allowed")
}

func TestCloseShiftTalliesInsideStore(t *testing.T) {
	repo := &failingTallyRepo{Repository: memory.NewSeeded()}
	svc := New(repo, cache.NewMemoryReportCache(), testIdentity(), "main-branch", time.Minute)
	openTestShift(t, svc, "t1", 10000)

	mustCheckout(t, svc, domain.CheckoutRequest{
		TerminalID:        "t1",
		IdempotencyKey:    "chk-store-tally",
		CashReceivedCents: 2000,
		Items:             []domain.OrderItemRequest{{ProductID: "prd-shawarma", Qty: 1}},
	})

	// 10000 float + 1725 cash sale; counting that exactly needs no reason.
	closed, err := svc.CloseShift(context.Background(), domain.ShiftCloseRequest{
		TerminalID:       "t1",
		CountedCashCents: 11725,
	})
	if err != nil {
		t.Fatalf("close shift: %v", err)
	}
	if closed.Shift.ExpectedCashCents != 11725 {
		t.Fatalf("expected cash = %d, want 11725", closed.Shift.ExpectedCashCents)
	}
	if closed.Shift.DifferenceCents != 0 {
		t.Fatalf("difference = %d, want 0", closed.Shift.DifferenceCents)
	}
}

func TestClosedShiftRejectsLateCashActivity(t *testing.T) {
	svc, repo := newTestService(t)
	shift := openTestShift(t, svc, "t1", 10000)

	if _, err := svc.CloseShift(context.Background(), domain.ShiftCloseRequest{
		TerminalID:       "t1",
		CountedCashCents: 10000,
	}); err != nil {
		t.Fatalf("close shift: %v", err)
	}

	ctx := context.Background()
	if _, err := repo.CreatePayment(ctx, domain.Payment{
		ShiftID:     shift.ID,
		Method:      "cash",
		AmountCents: 500,
	}); !errors.Is(err, store.ErrInvalidRecord) {
		t.Fatalf("expected payment on closed shift to be rejected, got %v", err)
	}
	if _, err := repo.CreateCashMovement(ctx, domain.CashMovement{
		ShiftID:     shift.ID,
		Direction:   domain.PaymentDirectionIn,
		AmountCents: 500,
		Reason:      "late float",
	}); !errors.Is(err, store.ErrInvalidRecord) {
		t.Fatalf("expected movement on closed shift to be rejected, got %v", err)
	}
	if _, err := repo.CreateOrder(ctx, domain.Order{
		BranchID:       "main-branch",
		TerminalID:     "t1",
		ShiftID:        shift.ID,
		IdempotencyKey: "chk-late-order",
		Items:          []domain.OrderItem{{ProductID: "prd-juice", Qty: 1}},
	}, []domain.Payment{{
		ShiftID:     shift.ID,
		Method:      "cash",
		AmountCents: 920,
	}}, nil); !errors.Is(err, store.ErrInvalidRecord) {
		t.Fatalf("expected order payment on closed shift to be rejected, got %v", err)
	}
}

func TestVoidOrderRestocksAndReversesCash(t *testing.T) {
	svc, repo := newTestService(t)
	shift := openTestShift(t, svc, "t1", 10000)

	order := mustCheckout(t, svc, domain.CheckoutRequest{
		TerminalID:        "t1",
		IdempotencyKey:    "chk-void",
		CashReceivedCents: 2000,
		Items:             []domain.OrderItemRequest{{ProductID: "prd-shawarma", Qty: 1}},
	})

	resp, err := svc.VoidOrder(context.Background(), domain.VoidOrderRequest{OrderID: order.ID, Reason: "wrong order"})
	if err != nil {
		t.Fatalf("void order: %v", err)
	}
	if resp.Status != domain.OrderStatusVoided {
		t.Fatalf("status = %s, want voided", resp.Status)
	}

	stock, err := repo.GetStockMap(context.Background(), "main-branch", []string{"prd-shawarma"})
	if err != nil {
		t.Fatalf("stock map: %v", err)
	}
	if stock["prd-shawarma"] != 120 {
		t.Fatalf("shawarma stock = %d, want 120 after restock", stock["prd-shawarma"])
	}

	payments, err := repo.ListShiftPayments(context.Background(), shift.ID)
	if err != nil {
		t.Fatalf("shift payments: %v", err)
	}
	var reversed bool
	for _, payment := range payments {
		if payment.Direction == domain.PaymentDirectionOut && payment.Method == "cash" && payment.AmountCents == order.TotalCents {
			reversed = true
		}
	}
	if !reversed {
		t.Fatal("expected a cash-out payment reversing the voided order")
	}
}

func TestRefundPartialCash(t *testing.T) {
	svc, _ := newTestService(t)
	openTestShift(t, svc, "t1", 10000)

	order := mustCheckout(t, svc, domain.CheckoutRequest{
		TerminalID:        "t1",
		IdempotencyKey:    "chk-refund",
		CashReceivedCents: 4000,
		Items:             []domain.OrderItemRequest{{ProductID: "prd-kabsa", Qty: 1}},
	})

	if _, err := svc.Refund(context.Background(), domain.RefundRequest{
		OrderID:     order.ID,
		AmountCents: order.TotalCents + 1,
	}); !errors.Is(err, store.ErrInvalidRecord) {
		t.Fatalf("expected over-refund rejection, got %v", err)
	}

	resp, err := svc.Refund(context.Background(), domain.RefundRequest{
		OrderID:     order.ID,
		Reason:      "cold food",
		AmountCents: 1000,
	})
	if err != nil {
		t.Fatalf("refund: %v", err)
	}
	if resp.Refund.AmountCents != 1000 || resp.Refund.Method != "cash" {
		t.Fatalf("refund = %+v", resp.Refund)
	}
}

func TestLookupZonePicksCheapestContainingZone(t *testing.T) {
	svc, _ := newTestService(t)

	found, err := svc.LookupZone(context.Background(), domain.LatLng{Lat: 24.70, Lng: 46.70})
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if !found.Found || found.Zone.ID != "zone-olaya" {
		t.Fatalf("lookup = %+v, want zone-olaya", found)
	}

	missed, err := svc.LookupZone(context.Background(), domain.LatLng{Lat: 25.5, Lng: 45.0})
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if missed.Found {
		t.Fatalf("expected no zone, got %+v", missed.Zone)
	}
}

func TestProductSalesReportNormalizesGrams(t *testing.T) {
	svc, _ := newTestService(t)
	openTestShift(t, svc, "t1", 10000)

	mustCheckout(t, svc, domain.CheckoutRequest{
		TerminalID:        "t1",
		IdempotencyKey:    "chk-gram-1",
		CashReceivedCents: 2000,
		Items:             []domain.OrderItemRequest{{ProductID: "prd-baklava", Weight: 250}},
	})
	mustCheckout(t, svc, domain.CheckoutRequest{
		TerminalID:        "t1",
		IdempotencyKey:    "chk-gram-2",
		CashReceivedCents: 6000,
		Items:             []domain.OrderItemRequest{{ProductID: "prd-baklava", Weight: 750}},
	})

	report, err := svc.ProductSalesReport(context.Background(), "", "", "")
	if err != nil {
		t.Fatalf("product sales report: %v", err)
	}

	var row *domain.ProductSalesRow
	for i := range report.Rows {
		if report.Rows[i].ProductID == "prd-baklava" {
			row = &report.Rows[i]
		}
	}
	if row == nil {
		t.Fatal("missing baklava row")
	}
	if row.Unit != domain.UnitKg {
		t.Fatalf("unit = %s, want kg", row.Unit)
	}
	if row.QtySold != 1.0 {
		t.Fatalf("qty sold = %v, want 1.0", row.QtySold)
	}
	if row.RevenueCents != 6000 {
		t.Fatalf("revenue = %d, want 6000", row.RevenueCents)
	}
}

type failingOrdersRepo struct {
	store.Repository
	fail bool
}

func (r *failingOrdersRepo) ListOrdersBetween(ctx context.Context, branchID string, from time.Time, to time.Time) ([]domain.Order, error) {
	if r.fail {
		return nil, errors.New("store down")
	}
	return r.Repository.ListOrdersBetween(ctx, branchID, from, to)
}

func TestSalesReportServesStaleCacheOnStoreFailure(t *testing.T) {
	repo := &failingOrdersRepo{Repository: memory.NewSeeded()}
	reports := cache.NewMemoryReportCache()
	svc := New(repo, reports, testIdentity(), "main-branch", time.Minute)

	openTestShift(t, svc, "t1", 10000)
	mustCheckout(t, svc, domain.CheckoutRequest{
		TerminalID:        "t1",
		IdempotencyKey:    "chk-report",
		CashReceivedCents: 2000,
		Items:             []domain.OrderItemRequest{{ProductID: "prd-juice", Qty: 1}},
	})

	fresh, err := svc.SalesReport(context.Background(), "", "")
	if err != nil {
		t.Fatalf("sales report: %v", err)
	}
	if fresh.Orders != 1 || fresh.NetCents != 920 {
		t.Fatalf("report = %+v", fresh)
	}

	// Age the cached entry past the freshness window, then take the
	// store down: the stale report should still be served.
	dateKey := time.Now().UTC().Format("2006-01-02")
	cacheKey := fmt.Sprintf("report:sales:main-branch:%s", dateKey)
	stale := cache.ReportEntry{Report: fresh, CachedAt: time.Now().UTC().Add(-2 * time.Minute)}
	if err := reports.Set(context.Background(), cacheKey, stale, time.Hour); err != nil {
		t.Fatalf("seed stale cache: %v", err)
	}
	repo.fail = true

	got, err := svc.SalesReport(context.Background(), "", "")
	if err != nil {
		t.Fatalf("stale sales report: %v", err)
	}
	if got.Orders != 1 || got.NetCents != 920 {
		t.Fatalf("stale report = %+v", got)
	}

	// With no cache entry at all the failure surfaces.
	if _, err := svc.SalesReport(context.Background(), "", "2020-01-01"); err == nil {
		t.Fatal("expected error when store is down and cache is cold")
	}
}

func TestSyncOfflineReplaysWithIdempotency(t *testing.T) {
	svc, _ := newTestService(t)
	openTestShift(t, svc, "t1", 10000)

	envelope := domain.OfflineSyncRequest{
		TerminalID: "t1",
		EnvelopeID: "env-1",
		Orders: []domain.OfflineOrder{
			{
				ClientOrderID: "client-1",
				Checkout: domain.CheckoutRequest{
					CashReceivedCents: 2000,
					Items:             []domain.OrderItemRequest{{ProductID: "prd-juice", Qty: 1}},
				},
			},
			{
				ClientOrderID: "client-2",
				Checkout: domain.CheckoutRequest{
					Items: []domain.OrderItemRequest{{ProductID: "prd-missing", Qty: 1}},
				},
			},
		},
	}

	resp, err := svc.SyncOffline(context.Background(), envelope)
	if err != nil {
		t.Fatalf("sync offline: %v", err)
	}
	if resp.Statuses[0].Status != "accepted" {
		t.Fatalf("first status = %+v", resp.Statuses[0])
	}
	if resp.Statuses[1].Status != "rejected" {
		t.Fatalf("second status = %+v", resp.Statuses[1])
	}

	replay, err := svc.SyncOffline(context.Background(), envelope)
	if err != nil {
		t.Fatalf("replay sync: %v", err)
	}
	if replay.Statuses[0].Status != "duplicate" {
		t.Fatalf("replay status = %+v", replay.Statuses[0])
	}
	if replay.Statuses[0].OrderID != resp.Statuses[0].OrderID {
		t.Fatalf("replay order id = %s, want %s", replay.Statuses[0].OrderID, resp.Statuses[0].OrderID)
	}
}

func TestCreateProductRequiresAdmin(t *testing.T) {
	svc, _ := newTestService(t)

	req := domain.ProductCreateRequest{Name: "Mutabbaq", Category: "sweets", UnitType: domain.UnitGram, PricePerKgCents: 5000}
	if _, err := svc.CreateProduct(context.Background(), req); err == nil {
		t.Fatal("expected role error without actor")
	}

	created, err := svc.CreateProduct(adminContext(), req)
	if err != nil {
		t.Fatalf("create product: %v", err)
	}
	if created.TrackStock {
		t.Fatal("weight products must not track stock")
	}
}

func TestUpdateProductRecordsPriceHistory(t *testing.T) {
	svc, _ := newTestService(t)

	newPrice := int64(1800)
	if _, err := svc.UpdateProduct(adminContext(), "prd-shawarma", domain.ProductUpdateRequest{PriceCents: &newPrice}); err != nil {
		t.Fatalf("update product: %v", err)
	}

	history, err := svc.ListProductPriceHistory(context.Background(), "prd-shawarma", 10)
	if err != nil {
		t.Fatalf("price history: %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("history entries = %d, want 1", len(history))
	}
	if history[0].OldPriceCents != 1500 || history[0].NewPriceCents != 1800 {
		t.Fatalf("history = %+v", history[0])
	}
}

func TestExpiredCouponRejected(t *testing.T) {
	svc, _ := newTestService(t)
	openTestShift(t, svc, "t1", 10000)

	if _, err := svc.CreateCoupon(adminContext(), domain.CouponCreateRequest{
		Code:            "OLD5",
		Type:            "percent",
		DiscountPercent: 5,
		ExpiresAt:       "2020-01-01",
	}); err != nil {
		t.Fatalf("create coupon: %v", err)
	}

	_, err := svc.Checkout(context.Background(), domain.CheckoutRequest{
		TerminalID:        "t1",
		CouponCode:        "OLD5",
		CashReceivedCents: 5000,
		Items:             []domain.OrderItemRequest{{ProductID: "prd-kabsa", Qty: 1}},
	})
	if !errors.Is(err, store.ErrInvalidRecord) || !strings.Contains(err.Error(), "expired") {
		t.Fatalf("expected expired coupon error, got %v", err)
	}
}
