package service

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"qayd/backend/internal/cache"
	"qayd/backend/internal/domain"
	"qayd/backend/internal/pricing"
	"qayd/backend/internal/store"
)

// reportRetention bounds how long a cached report may be served as a
// stale fallback; freshness within that window is judged by CachedAt.
const reportRetention = 24 * time.Hour

// SalesReport aggregates one day of orders. Results are cached; when the
// store is unreachable a stale cached report is served rather than an
// error, since the dashboard tolerates old numbers better than none.
func (s *Service) SalesReport(ctx context.Context, branchID string, date string) (domain.SalesReport, error) {
	if branchID == "" {
		branchID = s.defaultBranchID
	}
	day, err := parseDay(date)
	if err != nil {
		return domain.SalesReport{}, err
	}
	dateKey := day.Format("2006-01-02")
	cacheKey := fmt.Sprintf("report:sales:%s:%s", branchID, dateKey)

	cached, hit, cacheErr := s.reports.Get(ctx, cacheKey)
	if cacheErr != nil {
		log.Printf("[report] WARN: cache read failed key=%s: %v", cacheKey, cacheErr)
	}
	if hit && time.Since(cached.CachedAt) <= s.reportTTL {
		return cached.Report, nil
	}

	orders, err := s.repo.ListOrdersBetween(ctx, branchID, day, day.Add(24*time.Hour))
	if err != nil {
		if hit {
			log.Printf("[report] WARN: store unavailable, serving stale sales report branch=%s date=%s: %v", branchID, dateKey, err)
			return cached.Report, nil
		}
		return domain.SalesReport{}, err
	}

	report := buildSalesReport(branchID, dateKey, orders)

	// Entries are retained well past the freshness window so a store
	// outage can still serve yesterday's numbers.
	if err := s.reports.Set(ctx, cacheKey, cache.ReportEntry{Report: report, CachedAt: time.Now().UTC()}, reportRetention); err != nil {
		log.Printf("[report] WARN: cache write failed key=%s: %v", cacheKey, err)
	}

	return report, nil
}

func buildSalesReport(branchID string, dateKey string, orders []domain.Order) domain.SalesReport {
	report := domain.SalesReport{
		BranchID: branchID,
		Date:     dateKey,
	}

	byPayment := make(map[string]*domain.SalesReportPayment)
	bySource := make(map[string]*domain.SalesReportSource)

	for _, order := range orders {
		if order.Status == domain.OrderStatusVoided {
			continue
		}
		report.Orders++
		report.GrossCents += order.SubtotalCents
		report.DiscountCents += order.DiscountCents
		report.DeliveryFeeCents += order.DeliveryFeeCents
		report.TaxCents += order.TaxCents
		report.NetCents += order.TotalCents

		pay, ok := byPayment[order.PaymentMethod]
		if !ok {
			pay = &domain.SalesReportPayment{Method: order.PaymentMethod}
			byPayment[order.PaymentMethod] = pay
		}
		pay.Orders++
		pay.TotalCents += order.TotalCents

		src, ok := bySource[order.OrderSource]
		if !ok {
			src = &domain.SalesReportSource{Source: order.OrderSource}
			bySource[order.OrderSource] = src
		}
		src.Orders++
		src.TotalCents += order.TotalCents
	}

	report.ByPayment = make([]domain.SalesReportPayment, 0, len(byPayment))
	for _, pay := range byPayment {
		report.ByPayment = append(report.ByPayment, *pay)
	}
	sort.Slice(report.ByPayment, func(i, j int) bool {
		return report.ByPayment[i].Method < report.ByPayment[j].Method
	})

	report.BySource = make([]domain.SalesReportSource, 0, len(bySource))
	for _, src := range bySource {
		report.BySource = append(report.BySource, *src)
	}
	sort.Slice(report.BySource, func(i, j int) bool {
		return report.BySource[i].Source < report.BySource[j].Source
	})

	return report
}

// ProductSalesReport sums quantity and revenue per product over a date
// range. Gram lines are normalized to kilograms so one product always
// aggregates in a single unit.
func (s *Service) ProductSalesReport(ctx context.Context, branchID string, fromDate string, toDate string) (domain.ProductSalesReport, error) {
	if branchID == "" {
		branchID = s.defaultBranchID
	}
	from, to, err := parseRange(fromDate, toDate)
	if err != nil {
		return domain.ProductSalesReport{}, err
	}

	orders, err := s.repo.ListOrdersBetween(ctx, branchID, from, to)
	if err != nil {
		return domain.ProductSalesReport{}, err
	}

	type rowAgg struct {
		name    string
		unit    string
		qty     float64
		revenue int64
	}
	byProduct := make(map[string]*rowAgg)

	for _, order := range orders {
		if order.Status == domain.OrderStatusVoided {
			continue
		}
		for _, item := range order.Items {
			unitType := pricing.ResolveUnitType(item)
			qty, unit := pricing.NormalizedQty(unitType, pricing.EffectiveQuantity(item))

			agg, ok := byProduct[item.ProductID]
			if !ok {
				agg = &rowAgg{name: item.Name, unit: unit}
				byProduct[item.ProductID] = agg
			}
			agg.qty += qty
			agg.revenue += item.LineTotalCents
		}
	}

	rows := make([]domain.ProductSalesRow, 0, len(byProduct))
	for productID, agg := range byProduct {
		rows = append(rows, domain.ProductSalesRow{
			ProductID:    productID,
			Name:         agg.name,
			Unit:         agg.unit,
			QtySold:      agg.qty,
			RevenueCents: agg.revenue,
		})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].RevenueCents != rows[j].RevenueCents {
			return rows[i].RevenueCents > rows[j].RevenueCents
		}
		return rows[i].ProductID < rows[j].ProductID
	})

	return domain.ProductSalesReport{
		BranchID: branchID,
		From:     from.Format("2006-01-02"),
		To:       to.Add(-24 * time.Hour).Format("2006-01-02"),
		Rows:     rows,
	}, nil
}

// CustomerReport groups orders by phone number. Orders without a phone
// number are anonymous walk-ins and are skipped.
func (s *Service) CustomerReport(ctx context.Context, branchID string, fromDate string, toDate string) (domain.CustomerReport, error) {
	if branchID == "" {
		branchID = s.defaultBranchID
	}
	from, to, err := parseRange(fromDate, toDate)
	if err != nil {
		return domain.CustomerReport{}, err
	}

	orders, err := s.repo.ListOrdersBetween(ctx, branchID, from, to)
	if err != nil {
		return domain.CustomerReport{}, err
	}

	byPhone := make(map[string]*domain.CustomerReportRow)
	for _, order := range orders {
		if order.Status == domain.OrderStatusVoided {
			continue
		}
		phone := strings.TrimSpace(order.PhoneNumber)
		if phone == "" {
			continue
		}

		row, ok := byPhone[phone]
		if !ok {
			row = &domain.CustomerReportRow{PhoneNumber: phone}
			byPhone[phone] = row
		}
		row.Orders++
		row.TotalCents += order.TotalCents
		if order.CreatedAt.After(row.LastOrderAt) {
			row.LastOrderAt = order.CreatedAt
			if order.CustomerName != "" {
				row.CustomerName = order.CustomerName
			}
		}
	}

	rows := make([]domain.CustomerReportRow, 0, len(byPhone))
	for _, row := range byPhone {
		rows = append(rows, *row)
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].TotalCents != rows[j].TotalCents {
			return rows[i].TotalCents > rows[j].TotalCents
		}
		return rows[i].PhoneNumber < rows[j].PhoneNumber
	})

	return domain.CustomerReport{BranchID: branchID, Rows: rows}, nil
}

// parseRange turns inclusive from/to dates into a [from, to) window.
// Empty dates default to today.
func parseRange(fromDate string, toDate string) (time.Time, time.Time, error) {
	from, err := parseDay(fromDate)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	to, err := parseDay(toDate)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	to = to.Add(24 * time.Hour)
	if !from.Before(to) {
		return time.Time{}, time.Time{}, store.ErrInvalidRecord
	}
	return from, to, nil
}
