package invoice

import (
	"reflect"
	"testing"
	"time"

	"qayd/backend/internal/domain"
)

func sampleOrder() domain.Order {
	return domain.Order{
		ID:           "ord-1",
		OrderSource:  domain.OrderSourceDelivery,
		Status:       domain.OrderStatusPaid,
		CustomerName: "Salem",
		PhoneNumber:  "0550000001",
		Address:      "Olaya St 12",
		Items: []domain.OrderItem{
			{ProductID: "p-1", Name: "Shawarma", UnitType: domain.UnitPiece, PriceCents: 1500, Qty: 2, LineTotalCents: 3000},
		},
		SubtotalCents:    3000,
		DeliveryFeeCents: 700,
		DiscountCents:    0,
		TaxRatePercent:   15,
		TaxCents:         555,
		TotalCents:       4255,
		Currency:         "SAR",
		FXRate:           1,
		BaseTotalCents:   4255,
		PaymentMethod:    "cash",
		CreatedAt:        time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC),
	}
}

func TestComposeLiveOrder(t *testing.T) {
	order := sampleOrder()
	view := Compose(order)

	if view.Source != "live" {
		t.Fatalf("source = %q, want live", view.Source)
	}
	if view.TotalCents != 4255 || view.TaxCents != 555 {
		t.Fatalf("totals = %d/%d, want 4255/555", view.TotalCents, view.TaxCents)
	}
	if view.InvoiceNumber != "" || view.IssuedAt != nil {
		t.Fatalf("live view carries invoice identity")
	}
}

func TestComposeSnapshotWinsOverLiveEdits(t *testing.T) {
	order := sampleOrder()
	identity := domain.MerchantIdentity{InvoiceTerms: "Due on receipt", NetDays: 0}
	issuedAt := time.Date(2026, 3, 1, 18, 30, 0, 0, time.UTC)
	snap := Snapshot(order, identity, "INV-RYD01-000042", issuedAt, "2026-03-01")
	order.InvoiceSnapshot = &snap

	// Post-issuance edits to the live order must not leak into the view.
	order.CustomerName = "Changed"
	order.TotalCents = 9999
	order.TaxCents = 1
	order.Items = nil

	view := Compose(order)
	if view.Source != "snapshot" {
		t.Fatalf("source = %q, want snapshot", view.Source)
	}
	if view.InvoiceNumber != "INV-RYD01-000042" {
		t.Fatalf("invoice number = %q", view.InvoiceNumber)
	}
	if view.CustomerName != "Salem" {
		t.Fatalf("customer name = %q, want Salem", view.CustomerName)
	}
	if view.TotalCents != 4255 || view.TaxCents != 555 {
		t.Fatalf("totals = %d/%d, want snapshot 4255/555", view.TotalCents, view.TaxCents)
	}
	if len(view.Items) != 1 {
		t.Fatalf("items = %d, want 1 from snapshot", len(view.Items))
	}
	if view.InvoiceTerms != "Due on receipt" {
		t.Fatalf("terms = %q", view.InvoiceTerms)
	}
}

func TestComposeOldSnapshotFallsBackForMissingFields(t *testing.T) {
	order := sampleOrder()
	// A snapshot written before the fiscal fields were added: every
	// optional pointer is nil.
	order.InvoiceSnapshot = &domain.InvoiceSnapshot{
		InvoiceNumber: "INV-RYD01-000007",
		IssuedAt:      time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC),
		CreatedAt:     order.CreatedAt,
		OrderSource:   order.OrderSource,
		CustomerName:  order.CustomerName,
		Items:         order.Items,
		SubtotalCents: order.SubtotalCents,
		TotalCents:    order.TotalCents,
		PaymentMethod: order.PaymentMethod,
	}

	view := Compose(order)
	if view.Source != "snapshot" {
		t.Fatalf("source = %q, want snapshot", view.Source)
	}
	if view.TaxCents != order.TaxCents {
		t.Fatalf("tax = %d, want live fallback %d", view.TaxCents, order.TaxCents)
	}
	if view.Currency != "SAR" || view.FXRate != 1 {
		t.Fatalf("currency fallback = %q/%v", view.Currency, view.FXRate)
	}
	if view.TaxRatePercent != 15 {
		t.Fatalf("tax rate fallback = %v", view.TaxRatePercent)
	}
}

func TestComposeIsIdempotentAndPure(t *testing.T) {
	order := sampleOrder()
	identity := domain.MerchantIdentity{InvoiceTerms: "Net 7", NetDays: 7}
	snap := Snapshot(order, identity, "INV-RYD01-000001", time.Now().UTC(), "2026-03-08")
	order.InvoiceSnapshot = &snap

	before := order
	a := Compose(order)
	b := Compose(order)
	if !reflect.DeepEqual(a, b) {
		t.Fatalf("compose is not idempotent")
	}
	if !reflect.DeepEqual(order, before) {
		t.Fatalf("compose mutated its input")
	}
}
