package service

import (
	"context"
	"encoding/base64"
	"fmt"
	"log"
	"strings"
	"time"

	"qayd/backend/internal/domain"
	"qayd/backend/internal/invoice"
	"qayd/backend/internal/store"
)

// IssueInvoice assigns the next sequential invoice number for the branch
// and freezes the order's fiscal fields into a snapshot. Issuing twice is
// a no-op: the first snapshot wins and is returned.
func (s *Service) IssueInvoice(ctx context.Context, orderID string) (domain.InvoiceResponse, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return domain.InvoiceResponse{}, store.ErrInvalidRecord
	}

	order, err := s.repo.FindOrderByID(ctx, orderID)
	if err != nil {
		return domain.InvoiceResponse{}, err
	}
	if order.Status == domain.OrderStatusVoided {
		return domain.InvoiceResponse{}, fmt.Errorf("%w: voided order cannot be invoiced", store.ErrInvalidRecord)
	}
	if order.InvoiceSnapshot != nil {
		return s.invoiceResponse(*order)
	}

	// The sequence claim and the snapshot attach happen in one store
	// operation, so a concurrent issue of the same order never leaves a
	// gap in the branch numbering.
	updated, err := s.repo.IssueInvoiceSnapshot(ctx, order.ID, func(seq int64) domain.InvoiceSnapshot {
		number := fmt.Sprintf("INV-%s-%06d", strings.ToUpper(order.BranchID), seq)
		issuedAt := time.Now().UTC()
		dueDate := issuedAt.AddDate(0, 0, s.identity.NetDays).Format("2006-01-02")
		return invoice.Snapshot(*order, s.identity, number, issuedAt, dueDate)
	})
	if err != nil {
		return domain.InvoiceResponse{}, err
	}

	s.logAudit(ctx, updated.BranchID, "invoice_issue", "order", updated.ID, "number="+updated.InvoiceSnapshot.InvoiceNumber)
	return s.invoiceResponse(*updated)
}

func (s *Service) GetInvoice(ctx context.Context, orderID string) (domain.InvoiceResponse, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return domain.InvoiceResponse{}, store.ErrInvalidRecord
	}
	order, err := s.repo.FindOrderByID(ctx, orderID)
	if err != nil {
		return domain.InvoiceResponse{}, err
	}
	return s.invoiceResponse(*order)
}

func (s *Service) invoiceResponse(order domain.Order) (domain.InvoiceResponse, error) {
	view := invoice.Compose(order)

	issuedAt := view.CreatedAt
	if view.IssuedAt != nil {
		issuedAt = *view.IssuedAt
	}
	payload, err := invoice.EncodeTLV(s.identity.TradeName, s.identity.VATNumber, issuedAt.Format(time.RFC3339), view.TotalCents, view.TaxCents)
	if err != nil {
		return domain.InvoiceResponse{}, err
	}

	image, err := invoice.QRImageBase64(payload, 256)
	if err != nil {
		// Rendering failure degrades the response; the payload alone
		// is enough for compliant clients.
		log.Printf("[invoice] WARN: failed to render QR image order=%s: %v", order.ID, err)
		image = ""
	}

	return domain.InvoiceResponse{
		Invoice:   view,
		QRPayload: payload,
		QRImage:   image,
	}, nil
}

// PrintInvoice increments the reprint counter and renders the receipt as
// both plain text and ESC/POS bytes with an embedded QR code.
func (s *Service) PrintInvoice(ctx context.Context, orderID string) (domain.InvoicePrintResponse, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return domain.InvoicePrintResponse{}, store.ErrInvalidRecord
	}

	order, err := s.repo.FindOrderByID(ctx, orderID)
	if err != nil {
		return domain.InvoicePrintResponse{}, err
	}
	if order.InvoiceSnapshot == nil {
		return domain.InvoicePrintResponse{}, fmt.Errorf("%w: invoice not issued", store.ErrInvalidRecord)
	}

	updated, err := s.repo.IncrementInvoicePrintCount(ctx, order.ID)
	if err != nil {
		return domain.InvoicePrintResponse{}, err
	}

	view := invoice.Compose(*updated)
	issuedAt := view.CreatedAt
	if view.IssuedAt != nil {
		issuedAt = *view.IssuedAt
	}
	payload, err := invoice.EncodeTLV(s.identity.TradeName, s.identity.VATNumber, issuedAt.Format(time.RFC3339), view.TotalCents, view.TaxCents)
	if err != nil {
		return domain.InvoicePrintResponse{}, err
	}

	lines := receiptLines(s.identity, view)
	escpos := []byte{0x1b, 0x40}
	for _, line := range lines {
		escpos = append(escpos, []byte(line)...)
		escpos = append(escpos, '\n')
	}
	escpos = append(escpos, escposQR(payload)...)
	escpos = append(escpos, []byte{0x1d, 0x56, 0x41, 0x10}...)

	s.logAudit(ctx, updated.BranchID, "invoice_print", "order", updated.ID, fmt.Sprintf("print_count=%d", updated.InvoicePrintCount))

	return domain.InvoicePrintResponse{
		OrderID:      updated.ID,
		PrintCount:   updated.InvoicePrintCount,
		EscposBase64: base64.StdEncoding.EncodeToString(escpos),
		PreviewText:  strings.Join(lines, "\n"),
		FileName:     fmt.Sprintf("invoice-%s.bin", view.InvoiceNumber),
	}, nil
}

func receiptLines(identity domain.MerchantIdentity, view domain.InvoiceView) []string {
	lines := []string{
		identity.TradeName,
		"VAT: " + identity.VATNumber,
		"========================",
		"Invoice: " + view.InvoiceNumber,
	}
	if view.IssuedAt != nil {
		lines = append(lines, "Date: "+view.IssuedAt.Format("2006-01-02 15:04:05"))
	}
	lines = append(lines, "------------------------")

	for _, item := range view.Items {
		lines = append(lines, item.Name)
		if item.Weight > 0 {
			lines = append(lines, fmt.Sprintf("  %.3f %s  %s", item.Weight, item.UnitType, formatMoney(item.LineTotalCents, view.Currency)))
		} else {
			lines = append(lines, fmt.Sprintf("  x%d  %s", item.Qty, formatMoney(item.LineTotalCents, view.Currency)))
		}
		for _, addon := range item.Addons {
			lines = append(lines, fmt.Sprintf("  + %s x%d", addon.Name, addon.Qty))
		}
	}

	lines = append(lines, "------------------------",
		"Subtotal : "+formatMoney(view.SubtotalCents, view.Currency))
	if view.DiscountCents > 0 {
		lines = append(lines, "Discount : -"+formatMoney(view.DiscountCents, view.Currency))
	}
	if view.DeliveryFeeCents > 0 {
		lines = append(lines, "Delivery : "+formatMoney(view.DeliveryFeeCents, view.Currency))
	}
	lines = append(lines,
		fmt.Sprintf("VAT %.0f%%  : %s", view.TaxRatePercent, formatMoney(view.TaxCents, view.Currency)),
		"Total    : "+formatMoney(view.TotalCents, view.Currency),
		"Payment  : "+view.PaymentMethod,
	)
	if view.InvoiceTerms != "" {
		lines = append(lines, "Terms    : "+view.InvoiceTerms)
	}
	if view.DueDate != "" {
		lines = append(lines, "Due      : "+view.DueDate)
	}
	lines = append(lines, "========================", "", "")
	return lines
}

// escposQR emits the native GS ( k sequence so the printer renders the
// ZATCA payload itself instead of receiving a bitmap.
func escposQR(payload string) []byte {
	data := []byte(payload)
	storeLen := len(data) + 3
	cmd := []byte{
		0x1d, 0x28, 0x6b, 0x04, 0x00, 0x31, 0x41, 0x32, 0x00, // model 2
		0x1d, 0x28, 0x6b, 0x03, 0x00, 0x31, 0x43, 0x06, // module size 6
		0x1d, 0x28, 0x6b, 0x03, 0x00, 0x31, 0x45, 0x31, // error correction M
	}
	cmd = append(cmd, 0x1d, 0x28, 0x6b, byte(storeLen&0xff), byte(storeLen>>8), 0x31, 0x50, 0x30)
	cmd = append(cmd, data...)
	cmd = append(cmd, 0x1d, 0x28, 0x6b, 0x03, 0x00, 0x31, 0x51, 0x30)
	return cmd
}

func formatMoney(cents int64, currency string) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s%d.%02d %s", sign, cents/100, cents%100, currency)
}

func (s *Service) OpenCashDrawer(_ context.Context, req domain.CashDrawerOpenRequest) (domain.CashDrawerOpenResponse, error) {
	terminalID := strings.TrimSpace(req.TerminalID)
	if terminalID == "" {
		terminalID = "main-terminal"
	}
	// Standard ESC/POS pulse command for drawer kick on pin2.
	command := []byte{0x1b, 0x70, 0x00, 0x19, 0xfa}
	return domain.CashDrawerOpenResponse{
		TerminalID:    terminalID,
		CommandBase64: base64.StdEncoding.EncodeToString(command),
		Note:          "Send this ESC/POS pulse command via local printer bridge to open cash drawer.",
	}, nil
}
