package invoice

import (
	"time"

	"qayd/backend/internal/domain"
)

// Compose resolves an order into the view an invoice renders from.
//
// Once a snapshot exists every fiscal field reads from it, so reprints
// stay byte-stable no matter how the live order is edited afterwards.
// Snapshot fields added after the first release are pointers; a nil
// pointer means the snapshot predates the field and the live order's
// value is used instead. Orders without a snapshot render live.
// The input order is never mutated.
func Compose(order domain.Order) domain.InvoiceView {
	view := domain.InvoiceView{
		Source:           "live",
		OrderID:          order.ID,
		CreatedAt:        order.CreatedAt,
		OrderSource:      order.OrderSource,
		DeliveryZoneID:   order.DeliveryZoneID,
		CustomerName:     order.CustomerName,
		PhoneNumber:      order.PhoneNumber,
		Address:          order.Address,
		Items:            order.Items,
		SubtotalCents:    order.SubtotalCents,
		DeliveryFeeCents: order.DeliveryFeeCents,
		DiscountCents:    order.DiscountCents,
		TaxRatePercent:   order.TaxRatePercent,
		TaxCents:         order.TaxCents,
		TotalCents:       order.TotalCents,
		Currency:         order.Currency,
		FXRate:           order.FXRate,
		BaseTotalCents:   order.BaseTotalCents,
		PaymentMethod:    order.PaymentMethod,
		PaymentSplits:    order.PaymentSplits,
		PrintCount:       order.InvoicePrintCount,
	}

	snap := order.InvoiceSnapshot
	if snap == nil {
		return view
	}

	view.Source = "snapshot"
	view.InvoiceNumber = snap.InvoiceNumber
	issuedAt := snap.IssuedAt
	view.IssuedAt = &issuedAt
	view.CreatedAt = snap.CreatedAt
	view.OrderSource = snap.OrderSource
	view.DeliveryZoneID = snap.DeliveryZoneID
	view.CustomerName = snap.CustomerName
	view.PhoneNumber = snap.PhoneNumber
	view.Address = snap.Address
	view.Items = snap.Items
	view.SubtotalCents = snap.SubtotalCents
	view.DeliveryFeeCents = snap.DeliveryFeeCents
	view.DiscountCents = snap.DiscountCents
	view.TotalCents = snap.TotalCents
	view.PaymentMethod = snap.PaymentMethod

	if snap.TaxCents != nil {
		view.TaxCents = *snap.TaxCents
	}
	if snap.TaxRatePercent != nil {
		view.TaxRatePercent = *snap.TaxRatePercent
	}
	if snap.Currency != nil {
		view.Currency = *snap.Currency
	}
	if snap.FXRate != nil {
		view.FXRate = *snap.FXRate
	}
	if snap.BaseTotalCents != nil {
		view.BaseTotalCents = *snap.BaseTotalCents
	}
	if snap.InvoiceTerms != nil {
		view.InvoiceTerms = *snap.InvoiceTerms
	}
	if snap.NetDays != nil {
		view.NetDays = *snap.NetDays
	}
	if snap.DueDate != nil {
		view.DueDate = *snap.DueDate
	}
	if snap.PaymentSplits != nil {
		view.PaymentSplits = snap.PaymentSplits
	}
	return view
}

// Snapshot captures an order's current fiscal fields as a new immutable
// snapshot. Every optional field is populated; the pointer optionality
// exists only for snapshots written by earlier releases.
func Snapshot(order domain.Order, identity domain.MerchantIdentity, invoiceNumber string, issuedAt time.Time, dueDate string) domain.InvoiceSnapshot {
	taxCents := order.TaxCents
	taxRate := order.TaxRatePercent
	currency := order.Currency
	fxRate := order.FXRate
	baseTotal := order.BaseTotalCents
	terms := identity.InvoiceTerms
	netDays := identity.NetDays
	due := dueDate

	snap := domain.InvoiceSnapshot{
		InvoiceNumber:    invoiceNumber,
		IssuedAt:         issuedAt,
		CreatedAt:        order.CreatedAt,
		OrderSource:      order.OrderSource,
		DeliveryZoneID:   order.DeliveryZoneID,
		CustomerName:     order.CustomerName,
		PhoneNumber:      order.PhoneNumber,
		Address:          order.Address,
		Items:            append([]domain.OrderItem(nil), order.Items...),
		SubtotalCents:    order.SubtotalCents,
		DeliveryFeeCents: order.DeliveryFeeCents,
		DiscountCents:    order.DiscountCents,
		TotalCents:       order.TotalCents,
		PaymentMethod:    order.PaymentMethod,
		TaxCents:         &taxCents,
		TaxRatePercent:   &taxRate,
		Currency:         &currency,
		FXRate:           &fxRate,
		BaseTotalCents:   &baseTotal,
		InvoiceTerms:     &terms,
		NetDays:          &netDays,
		DueDate:          &due,
	}
	if order.PaymentSplits != nil {
		snap.PaymentSplits = append([]domain.PaymentSplit(nil), order.PaymentSplits...)
	}
	return snap
}
