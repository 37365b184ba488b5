package store

import (
	"context"
	"errors"
	"time"

	"qayd/backend/internal/domain"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrInvalidRecord     = errors.New("invalid record")
)

type Repository interface {
	ListProducts(ctx context.Context, branchID string) ([]domain.Product, error)
	CreateProduct(ctx context.Context, branchID string, product domain.Product, initialStock int) (*domain.Product, error)
	GetProductByID(ctx context.Context, id string) (*domain.Product, error)
	GetProductsByIDs(ctx context.Context, ids []string) (map[string]domain.Product, error)
	UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	CreatePriceHistory(ctx context.Context, entry domain.ProductPriceHistory) error
	ListPriceHistory(ctx context.Context, productID string, limit int) ([]domain.ProductPriceHistory, error)
	GetStockMap(ctx context.Context, branchID string, productIDs []string) (map[string]int, error)
	SetStock(ctx context.Context, branchID string, productID string, qty int) error

	ListAddons(ctx context.Context) ([]domain.Addon, error)
	GetAddonsByIDs(ctx context.Context, ids []string) (map[string]domain.Addon, error)
	CreateAddon(ctx context.Context, addon domain.Addon) (*domain.Addon, error)
	UpdateAddon(ctx context.Context, addon domain.Addon) (*domain.Addon, error)

	ListCoupons(ctx context.Context) ([]domain.Coupon, error)
	GetCouponByCode(ctx context.Context, code string) (*domain.Coupon, error)
	CreateCoupon(ctx context.Context, coupon domain.Coupon) (*domain.Coupon, error)
	SetCouponActive(ctx context.Context, couponID string, active bool) (*domain.Coupon, error)

	ListZones(ctx context.Context) ([]domain.DeliveryZone, error)
	GetZoneByID(ctx context.Context, id string) (*domain.DeliveryZone, error)
	CreateZone(ctx context.Context, zone domain.DeliveryZone) (*domain.DeliveryZone, error)
	UpdateZone(ctx context.Context, zone domain.DeliveryZone) (*domain.DeliveryZone, error)

	CreateOrder(ctx context.Context, order domain.Order, payments []domain.Payment, deductions []domain.StockAdjustment) (*domain.Order, error)
	FindOrderByID(ctx context.Context, id string) (*domain.Order, error)
	FindOrderByIdempotency(ctx context.Context, key string) (*domain.Order, error)
	ListOrdersBetween(ctx context.Context, branchID string, from time.Time, to time.Time) ([]domain.Order, error)
	UpdateOrderContact(ctx context.Context, id string, update domain.OrderContactUpdateRequest, at time.Time) (*domain.Order, error)
	VoidOrder(ctx context.Context, id string, reason string, at time.Time) (*domain.Order, error)
	CreateRefund(ctx context.Context, refund domain.Refund) (*domain.Refund, error)

	// IssueInvoiceSnapshot attaches an invoice snapshot exactly once. The
	// sequence number is claimed and the snapshot built inside the store's
	// own atomicity boundary so a lost race never burns a number; if a
	// snapshot already exists the order is returned untouched.
	IssueInvoiceSnapshot(ctx context.Context, orderID string, build func(seq int64) domain.InvoiceSnapshot) (*domain.Order, error)
	IncrementInvoicePrintCount(ctx context.Context, orderID string) (*domain.Order, error)

	CreateShift(ctx context.Context, shift domain.CashShift) (*domain.CashShift, error)
	GetActiveShift(ctx context.Context, branchID string, terminalID string) (*domain.CashShift, error)
	GetShiftByID(ctx context.Context, id string) (*domain.CashShift, error)
	// CloseShift computes the expected cash from the shift's payments and
	// movements atomically with the close, so a payment landing between a
	// read and the close can never skew the stored difference. A counted
	// amount that disagrees with the expectation requires a reason.
	CloseShift(ctx context.Context, shiftID string, countedCents int64, reason string, closedAt time.Time) (*domain.CashShift, error)
	ListClosedShifts(ctx context.Context, branchID string, from time.Time, to time.Time) ([]domain.CashShift, error)
	CreatePayment(ctx context.Context, payment domain.Payment) (*domain.Payment, error)
	ListShiftPayments(ctx context.Context, shiftID string) ([]domain.Payment, error)
	CreateCashMovement(ctx context.Context, movement domain.CashMovement) (*domain.CashMovement, error)
	ListShiftMovements(ctx context.Context, shiftID string) ([]domain.CashMovement, error)

	CreateAuditLog(ctx context.Context, entry domain.AuditLog) error
	ListAuditLogs(ctx context.Context, branchID string, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error)

	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}
