package domain

import "time"

const (
	UnitPiece = "piece"
	UnitKg    = "kg"
	UnitGram  = "gram"
)

const (
	OrderSourceDineIn   = "dine_in"
	OrderSourceTakeaway = "takeaway"
	OrderSourceDelivery = "delivery"
	OrderSourceOnline   = "online"
)

const (
	OrderStatusPaid     = "paid"
	OrderStatusVoided   = "voided"
	OrderStatusRefunded = "refunded"
)

const (
	ShiftStatusOpen   = "open"
	ShiftStatusClosed = "closed"
)

const (
	PaymentDirectionIn  = "in"
	PaymentDirectionOut = "out"
)

type Product struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	Category        string    `json:"category"`
	UnitType        string    `json:"unit_type"`
	PriceCents      int64     `json:"price_cents"`
	PricePerKgCents int64     `json:"price_per_kg_cents,omitempty"`
	TrackStock      bool      `json:"track_stock"`
	Active          bool      `json:"active"`
	CreatedAt       time.Time `json:"created_at"`
}

type ProductCreateRequest struct {
	BranchID        string `json:"branch_id"`
	Name            string `json:"name"`
	Category        string `json:"category"`
	UnitType        string `json:"unit_type"`
	PriceCents      int64  `json:"price_cents"`
	PricePerKgCents int64  `json:"price_per_kg_cents"`
	TrackStock      bool   `json:"track_stock"`
	InitialStock    int    `json:"initial_stock"`
}

type ProductUpdateRequest struct {
	Name            *string `json:"name,omitempty"`
	Category        *string `json:"category,omitempty"`
	PriceCents      *int64  `json:"price_cents,omitempty"`
	PricePerKgCents *int64  `json:"price_per_kg_cents,omitempty"`
	Active          *bool   `json:"active,omitempty"`
}

type ProductPriceHistory struct {
	ID            string    `json:"id"`
	ProductID     string    `json:"product_id"`
	OldPriceCents int64     `json:"old_price_cents"`
	NewPriceCents int64     `json:"new_price_cents"`
	ChangedBy     string    `json:"changed_by"`
	ChangedAt     time.Time `json:"changed_at"`
}

type Addon struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	PriceCents int64     `json:"price_cents"`
	Active     bool      `json:"active"`
	CreatedAt  time.Time `json:"created_at"`
}

type AddonCreateRequest struct {
	Name       string `json:"name"`
	PriceCents int64  `json:"price_cents"`
}

type AddonUpdateRequest struct {
	Name       *string `json:"name,omitempty"`
	PriceCents *int64  `json:"price_cents,omitempty"`
	Active     *bool   `json:"active,omitempty"`
}

// AddonSelection is one chosen addon on an order line. Name and price are
// captured at order time so later catalog edits do not change old orders.
type AddonSelection struct {
	AddonID    string `json:"addon_id"`
	Name       string `json:"name"`
	PriceCents int64  `json:"price_cents"`
	Qty        int    `json:"qty"`
}

// OrderItem is one purchased line. Exactly one of Qty/Weight is the
// authoritative multiplier, selected by the resolved unit type: piece
// lines count Qty, kg lines weigh Weight in kilograms, gram lines weigh
// Weight in grams. PricePerKgCents applies to gram lines only.
type OrderItem struct {
	ProductID       string           `json:"product_id"`
	Name            string           `json:"name"`
	UnitType        string           `json:"unit_type,omitempty"`
	Unit            string           `json:"unit,omitempty"`
	PriceCents      int64            `json:"price_cents"`
	PricePerKgCents int64            `json:"price_per_kg_cents,omitempty"`
	Qty             int              `json:"qty"`
	Weight          float64          `json:"weight,omitempty"`
	Addons          []AddonSelection `json:"addons,omitempty"`
	LineTotalCents  int64            `json:"line_total_cents"`
}

type PaymentSplit struct {
	Method      string `json:"method"`
	AmountCents int64  `json:"amount_cents"`
	Reference   string `json:"reference,omitempty"`
}

// InvoiceSnapshot is the immutable copy of an order's fiscal fields taken
// once at invoice issuance. Pointer fields were added after the first
// release; nil means the snapshot predates the field and readers fall
// back to the live order.
type InvoiceSnapshot struct {
	InvoiceNumber    string         `json:"invoice_number"`
	IssuedAt         time.Time      `json:"issued_at"`
	CreatedAt        time.Time      `json:"created_at"`
	OrderSource      string         `json:"order_source"`
	DeliveryZoneID   string         `json:"delivery_zone_id,omitempty"`
	CustomerName     string         `json:"customer_name,omitempty"`
	PhoneNumber      string         `json:"phone_number,omitempty"`
	Address          string         `json:"address,omitempty"`
	Items            []OrderItem    `json:"items"`
	SubtotalCents    int64          `json:"subtotal_cents"`
	DeliveryFeeCents int64          `json:"delivery_fee_cents"`
	DiscountCents    int64          `json:"discount_cents"`
	TotalCents       int64          `json:"total_cents"`
	PaymentMethod    string         `json:"payment_method"`
	TaxCents         *int64         `json:"tax_cents,omitempty"`
	TaxRatePercent   *float64       `json:"tax_rate_percent,omitempty"`
	Currency         *string        `json:"currency,omitempty"`
	FXRate           *float64       `json:"fx_rate,omitempty"`
	BaseTotalCents   *int64         `json:"base_total_cents,omitempty"`
	InvoiceTerms     *string        `json:"invoice_terms,omitempty"`
	NetDays          *int           `json:"net_days,omitempty"`
	DueDate          *string        `json:"due_date,omitempty"`
	PaymentSplits    []PaymentSplit `json:"payment_splits,omitempty"`
}

type Order struct {
	ID                string           `json:"id"`
	BranchID          string           `json:"branch_id"`
	TerminalID        string           `json:"terminal_id"`
	ShiftID           string           `json:"shift_id"`
	IdempotencyKey    string           `json:"idempotency_key,omitempty"`
	OrderSource       string           `json:"order_source"`
	Status            string           `json:"status"`
	CustomerName      string           `json:"customer_name,omitempty"`
	PhoneNumber       string           `json:"phone_number,omitempty"`
	Address           string           `json:"address,omitempty"`
	DeliveryZoneID    string           `json:"delivery_zone_id,omitempty"`
	Items             []OrderItem      `json:"items"`
	SubtotalCents     int64            `json:"subtotal_cents"`
	DiscountCents     int64            `json:"discount_cents"`
	CouponCode        string           `json:"coupon_code,omitempty"`
	DeliveryFeeCents  int64            `json:"delivery_fee_cents"`
	TaxRatePercent    float64          `json:"tax_rate_percent"`
	TaxCents          int64            `json:"tax_cents"`
	TotalCents        int64            `json:"total_cents"`
	Currency          string           `json:"currency"`
	FXRate            float64          `json:"fx_rate"`
	BaseTotalCents    int64            `json:"base_total_cents"`
	PaymentMethod     string           `json:"payment_method"`
	PaymentReference  string           `json:"payment_reference,omitempty"`
	PaymentSplits     []PaymentSplit   `json:"payment_splits,omitempty"`
	CashReceivedCents int64            `json:"cash_received_cents"`
	ChangeCents       int64            `json:"change_cents"`
	Note              string           `json:"note,omitempty"`
	VoidReason        string           `json:"void_reason,omitempty"`
	VoidedAt          *time.Time       `json:"voided_at,omitempty"`
	InvoiceSnapshot   *InvoiceSnapshot `json:"invoice_snapshot,omitempty"`
	InvoicePrintCount int              `json:"invoice_print_count"`
	CreatedAt         time.Time        `json:"created_at"`
	UpdatedAt         time.Time        `json:"updated_at"`
}

type OrderItemRequest struct {
	ProductID string                  `json:"product_id"`
	Qty       int                     `json:"qty"`
	Weight    float64                 `json:"weight,omitempty"`
	Addons    []OrderItemAddonRequest `json:"addons,omitempty"`
}

type OrderItemAddonRequest struct {
	AddonID string `json:"addon_id"`
	Qty     int    `json:"qty"`
}

type CheckoutRequest struct {
	BranchID          string             `json:"branch_id"`
	TerminalID        string             `json:"terminal_id"`
	IdempotencyKey    string             `json:"idempotency_key"`
	OrderSource       string             `json:"order_source"`
	CustomerName      string             `json:"customer_name"`
	PhoneNumber       string             `json:"phone_number"`
	Address           string             `json:"address"`
	DeliveryZoneID    string             `json:"delivery_zone_id"`
	CouponCode        string             `json:"coupon_code"`
	PaymentMethod     string             `json:"payment_method"`
	PaymentReference  string             `json:"payment_reference,omitempty"`
	PaymentSplits     []PaymentSplit     `json:"payment_splits,omitempty"`
	CashReceivedCents int64              `json:"cash_received_cents"`
	Note              string             `json:"note"`
	Items             []OrderItemRequest `json:"items"`
}

type CheckoutResponse struct {
	Order     Order `json:"order"`
	Duplicate bool  `json:"duplicate"`
}

type OrderContactUpdateRequest struct {
	CustomerName *string `json:"customer_name,omitempty"`
	PhoneNumber  *string `json:"phone_number,omitempty"`
	Address      *string `json:"address,omitempty"`
	Note         *string `json:"note,omitempty"`
}

type VoidOrderRequest struct {
	OrderID    string `json:"order_id"`
	Reason     string `json:"reason"`
	ManagerPIN string `json:"manager_pin"`
}

type VoidOrderResponse struct {
	OrderID  string `json:"order_id"`
	Status   string `json:"status"`
	VoidedAt string `json:"voided_at"`
}

type RefundRequest struct {
	OrderID     string `json:"order_id"`
	Reason      string `json:"reason"`
	AmountCents int64  `json:"amount_cents"`
	Method      string `json:"method"`
	ManagerPIN  string `json:"manager_pin"`
}

type Refund struct {
	ID          string    `json:"id"`
	OrderID     string    `json:"order_id"`
	Reason      string    `json:"reason"`
	AmountCents int64     `json:"amount_cents"`
	Method      string    `json:"method"`
	CreatedAt   time.Time `json:"created_at"`
}

type RefundResponse struct {
	Refund Refund `json:"refund"`
}

// InvoiceView is the stable, fully-resolved rendition of an order for
// invoice display and printing. Source reports where the fiscal fields
// came from: "snapshot" once an invoice has been issued, "live" before.
type InvoiceView struct {
	Source           string         `json:"source"`
	OrderID          string         `json:"order_id"`
	InvoiceNumber    string         `json:"invoice_number,omitempty"`
	IssuedAt         *time.Time     `json:"issued_at,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
	OrderSource      string         `json:"order_source"`
	DeliveryZoneID   string         `json:"delivery_zone_id,omitempty"`
	CustomerName     string         `json:"customer_name,omitempty"`
	PhoneNumber      string         `json:"phone_number,omitempty"`
	Address          string         `json:"address,omitempty"`
	Items            []OrderItem    `json:"items"`
	SubtotalCents    int64          `json:"subtotal_cents"`
	DeliveryFeeCents int64          `json:"delivery_fee_cents"`
	DiscountCents    int64          `json:"discount_cents"`
	TaxRatePercent   float64        `json:"tax_rate_percent"`
	TaxCents         int64          `json:"tax_cents"`
	TotalCents       int64          `json:"total_cents"`
	Currency         string         `json:"currency"`
	FXRate           float64        `json:"fx_rate"`
	BaseTotalCents   int64          `json:"base_total_cents"`
	PaymentMethod    string         `json:"payment_method"`
	PaymentSplits    []PaymentSplit `json:"payment_splits,omitempty"`
	InvoiceTerms     string         `json:"invoice_terms,omitempty"`
	NetDays          int            `json:"net_days"`
	DueDate          string         `json:"due_date,omitempty"`
	PrintCount       int            `json:"print_count"`
}

type InvoiceResponse struct {
	Invoice   InvoiceView `json:"invoice"`
	QRPayload string      `json:"qr_payload"`
	QRImage   string      `json:"qr_image_base64,omitempty"`
}

type InvoicePrintResponse struct {
	OrderID      string `json:"order_id"`
	PrintCount   int    `json:"print_count"`
	EscposBase64 string `json:"escpos_base64,omitempty"`
	PreviewText  string `json:"preview_text,omitempty"`
	FileName     string `json:"file_name,omitempty"`
}

type CashShift struct {
	ID                string     `json:"id"`
	BranchID          string     `json:"branch_id"`
	TerminalID        string     `json:"terminal_id"`
	CashierName       string     `json:"cashier_name"`
	OpeningFloatCents int64      `json:"opening_float_cents"`
	ExpectedCashCents int64      `json:"expected_cash_cents,omitempty"`
	CountedCashCents  int64      `json:"counted_cash_cents,omitempty"`
	DifferenceCents   int64      `json:"difference_cents"`
	CloseReason       string     `json:"close_reason,omitempty"`
	Status            string     `json:"status"`
	OpenedAt          time.Time  `json:"opened_at"`
	ClosedAt          *time.Time `json:"closed_at,omitempty"`
}

type ShiftOpenRequest struct {
	BranchID          string `json:"branch_id"`
	TerminalID        string `json:"terminal_id"`
	CashierName       string `json:"cashier_name"`
	OpeningFloatCents int64  `json:"opening_float_cents"`
}

type ShiftCloseRequest struct {
	BranchID         string `json:"branch_id"`
	TerminalID       string `json:"terminal_id"`
	CountedCashCents int64  `json:"counted_cash_cents"`
	Reason           string `json:"reason"`
}

type ShiftResponse struct {
	Shift CashShift `json:"shift"`
}

type Payment struct {
	ID          string    `json:"id"`
	ShiftID     string    `json:"shift_id"`
	OrderID     string    `json:"order_id,omitempty"`
	Method      string    `json:"method"`
	Direction   string    `json:"direction"`
	AmountCents int64     `json:"amount_cents"`
	Reference   string    `json:"reference,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

type CashMovement struct {
	ID          string    `json:"id"`
	ShiftID     string    `json:"shift_id"`
	Direction   string    `json:"direction"`
	AmountCents int64     `json:"amount_cents"`
	Reason      string    `json:"reason"`
	RecordedBy  string    `json:"recorded_by"`
	CreatedAt   time.Time `json:"created_at"`
}

type CashMovementRequest struct {
	BranchID    string `json:"branch_id"`
	TerminalID  string `json:"terminal_id"`
	Direction   string `json:"direction"`
	AmountCents int64  `json:"amount_cents"`
	Reason      string `json:"reason"`
}

type ShiftMethodTotal struct {
	Method   string `json:"method"`
	InCents  int64  `json:"in_cents"`
	OutCents int64  `json:"out_cents"`
	NetCents int64  `json:"net_cents"`
}

type ShiftReport struct {
	Shift             CashShift          `json:"shift"`
	ByMethod          []ShiftMethodTotal `json:"by_method"`
	MovementInCents   int64              `json:"movement_in_cents"`
	MovementOutCents  int64              `json:"movement_out_cents"`
	ExpectedCashCents int64              `json:"expected_cash_cents"`
	CountedCashCents  int64              `json:"counted_cash_cents"`
	DifferenceCents   int64              `json:"difference_cents"`
}

type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

type DeliveryZone struct {
	ID               string    `json:"id"`
	Name             string    `json:"name"`
	DeliveryFeeCents int64     `json:"delivery_fee_cents"`
	Polygon          []LatLng  `json:"polygon,omitempty"`
	Active           bool      `json:"active"`
	CreatedAt        time.Time `json:"created_at"`
}

// Contains reports whether p lies inside the zone polygon (ray casting).
// A zone without a polygon contains nothing.
func (z DeliveryZone) Contains(p LatLng) bool {
	n := len(z.Polygon)
	if n < 3 {
		return false
	}
	inside := false
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		a, b := z.Polygon[i], z.Polygon[j]
		if (a.Lng > p.Lng) != (b.Lng > p.Lng) &&
			p.Lat < (b.Lat-a.Lat)*(p.Lng-a.Lng)/(b.Lng-a.Lng)+a.Lat {
			inside = !inside
		}
	}
	return inside
}

type ZoneCreateRequest struct {
	Name             string   `json:"name"`
	DeliveryFeeCents int64    `json:"delivery_fee_cents"`
	Polygon          []LatLng `json:"polygon"`
}

type ZoneUpdateRequest struct {
	Name             *string   `json:"name,omitempty"`
	DeliveryFeeCents *int64    `json:"delivery_fee_cents,omitempty"`
	Polygon          *[]LatLng `json:"polygon,omitempty"`
	Active           *bool     `json:"active,omitempty"`
}

type ZoneLookupResponse struct {
	Found bool          `json:"found"`
	Zone  *DeliveryZone `json:"zone,omitempty"`
}

type Coupon struct {
	ID                string     `json:"id"`
	Code              string     `json:"code"`
	Type              string     `json:"type"`
	DiscountPercent   float64    `json:"discount_percent,omitempty"`
	FlatDiscountCents int64      `json:"flat_discount_cents,omitempty"`
	MinSubtotalCents  int64      `json:"min_subtotal_cents"`
	ExpiresAt         *time.Time `json:"expires_at,omitempty"`
	Active            bool       `json:"active"`
	CreatedAt         time.Time  `json:"created_at"`
}

type CouponCreateRequest struct {
	Code              string  `json:"code"`
	Type              string  `json:"type"`
	DiscountPercent   float64 `json:"discount_percent"`
	FlatDiscountCents int64   `json:"flat_discount_cents"`
	MinSubtotalCents  int64   `json:"min_subtotal_cents"`
	ExpiresAt         string  `json:"expires_at,omitempty"`
}

type CouponToggleRequest struct {
	Active bool `json:"active"`
}

type SalesReportPayment struct {
	Method     string `json:"method"`
	Orders     int64  `json:"orders"`
	TotalCents int64  `json:"total_cents"`
}

type SalesReportSource struct {
	Source     string `json:"source"`
	Orders     int64  `json:"orders"`
	TotalCents int64  `json:"total_cents"`
}

type SalesReport struct {
	BranchID         string               `json:"branch_id"`
	Date             string               `json:"date"`
	Orders           int64                `json:"orders"`
	GrossCents       int64                `json:"gross_cents"`
	DiscountCents    int64                `json:"discount_cents"`
	DeliveryFeeCents int64                `json:"delivery_fee_cents"`
	TaxCents         int64                `json:"tax_cents"`
	NetCents         int64                `json:"net_cents"`
	ByPayment        []SalesReportPayment `json:"by_payment"`
	BySource         []SalesReportSource  `json:"by_source"`
}

type ProductSalesRow struct {
	ProductID    string  `json:"product_id"`
	Name         string  `json:"name"`
	Unit         string  `json:"unit"`
	QtySold      float64 `json:"qty_sold"`
	RevenueCents int64   `json:"revenue_cents"`
}

type ProductSalesReport struct {
	BranchID string            `json:"branch_id"`
	From     string            `json:"from"`
	To       string            `json:"to"`
	Rows     []ProductSalesRow `json:"rows"`
}

type CustomerReportRow struct {
	PhoneNumber  string    `json:"phone_number"`
	CustomerName string    `json:"customer_name"`
	Orders       int64     `json:"orders"`
	TotalCents   int64     `json:"total_cents"`
	LastOrderAt  time.Time `json:"last_order_at"`
}

type CustomerReport struct {
	BranchID string              `json:"branch_id"`
	Rows     []CustomerReportRow `json:"rows"`
}

type ShiftMismatchAlert struct {
	ShiftID         string `json:"shift_id"`
	TerminalID      string `json:"terminal_id"`
	CashierName     string `json:"cashier_name"`
	DifferenceCents int64  `json:"difference_cents"`
	Severity        string `json:"severity"`
	ClosedAt        string `json:"closed_at"`
}

type ShiftMismatchAlertResponse struct {
	BranchID string               `json:"branch_id"`
	Date     string               `json:"date"`
	Alerts   []ShiftMismatchAlert `json:"alerts"`
}

type OfflineOrder struct {
	ClientOrderID string          `json:"client_order_id"`
	Checkout      CheckoutRequest `json:"checkout"`
}

type OfflineSyncRequest struct {
	BranchID   string         `json:"branch_id"`
	TerminalID string         `json:"terminal_id"`
	EnvelopeID string         `json:"envelope_id"`
	Orders     []OfflineOrder `json:"orders"`
}

type OfflineSyncStatus struct {
	ClientOrderID string `json:"client_order_id"`
	Status        string `json:"status"`
	Reason        string `json:"reason,omitempty"`
	OrderID       string `json:"order_id,omitempty"`
}

type OfflineSyncResponse struct {
	EnvelopeID string              `json:"envelope_id"`
	Statuses   []OfflineSyncStatus `json:"statuses"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type Actor struct {
	Username string
	Role     string
}

type CashierCreateRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type CashierUser struct {
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	Username  string
	Password  string
	Role      string
	Active    bool
	CreatedAt time.Time
}

type AuditLog struct {
	ID            string    `json:"id"`
	BranchID      string    `json:"branch_id"`
	ActorUsername string    `json:"actor_username"`
	ActorRole     string    `json:"actor_role"`
	Action        string    `json:"action"`
	EntityType    string    `json:"entity_type"`
	EntityID      string    `json:"entity_id"`
	Detail        string    `json:"detail"`
	CreatedAt     time.Time `json:"created_at"`
}

type StockAdjustment struct {
	ProductID string `json:"product_id"`
	Qty       int    `json:"qty"`
}

type CashDrawerOpenRequest struct {
	TerminalID string `json:"terminal_id"`
}

type CashDrawerOpenResponse struct {
	TerminalID    string `json:"terminal_id"`
	CommandBase64 string `json:"command_base64"`
	Note          string `json:"note"`
}

// MerchantIdentity is the fiscal identity printed on every invoice and
// encoded into the ZATCA QR payload.
type MerchantIdentity struct {
	TradeName      string  `json:"trade_name"`
	VATNumber      string  `json:"vat_number"`
	Currency       string  `json:"currency"`
	TaxRatePercent float64 `json:"tax_rate_percent"`
	FXRate         float64 `json:"fx_rate"`
	InvoiceTerms   string  `json:"invoice_terms"`
	NetDays        int     `json:"net_days"`
}
