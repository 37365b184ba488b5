// Package pricing is the single home of line-item price aggregation and
// weight-unit conversion. Checkout, reports, and document rendering all go
// through it so the gram/kg/piece rules cannot drift between call sites.
package pricing

import (
	"math"

	"qayd/backend/internal/domain"
)

// Result is the derived pricing of one order line. It is computed, never
// stored: persisted orders keep only the rounded line total.
type Result struct {
	UnitType        string
	IsWeightBased   bool
	Quantity        float64
	UnitPriceCents  float64
	AddonTotalCents int64
	LineTotalCents  int64
	Addons          []domain.AddonSelection
}

// ResolveUnitType returns the effective unit type of a line: UnitType,
// falling back to the legacy Unit field, falling back to piece.
func ResolveUnitType(item domain.OrderItem) string {
	switch item.UnitType {
	case domain.UnitPiece, domain.UnitKg, domain.UnitGram:
		return item.UnitType
	}
	switch item.Unit {
	case domain.UnitPiece, domain.UnitKg, domain.UnitGram:
		return item.Unit
	}
	return domain.UnitPiece
}

// IsWeightBased reports whether the unit type is measured by weight.
func IsWeightBased(unitType string) bool {
	return unitType == domain.UnitKg || unitType == domain.UnitGram
}

// EffectiveQuantity returns the authoritative multiplier for a line:
// Weight for weight-based units, Qty for piece units. A weight-based line
// with a missing or non-positive weight falls back to its quantity rather
// than pricing to zero.
func EffectiveQuantity(item domain.OrderItem) float64 {
	if IsWeightBased(ResolveUnitType(item)) {
		if item.Weight > 0 && !math.IsNaN(item.Weight) && !math.IsInf(item.Weight, 0) {
			return item.Weight
		}
		return float64(item.Qty)
	}
	return float64(item.Qty)
}

// unitPriceCents returns the per-effective-unit item price, before addons.
// Gram lines priced per kilogram are converted to a per-gram price.
func unitPriceCents(item domain.OrderItem, unitType string) float64 {
	if unitType == domain.UnitGram && item.PricePerKgCents > 0 {
		return float64(item.PricePerKgCents) / 1000
	}
	return float64(item.PriceCents)
}

// Aggregate computes the full pricing of one order line.
//
// Addons are flat per effective unit in every mode: the addon total joins
// the unit price, then the whole unit price is multiplied by the effective
// quantity. The line total is rounded to whole cents.
func Aggregate(item domain.OrderItem) Result {
	addons := make([]domain.AddonSelection, 0, len(item.Addons))
	addonTotal := int64(0)
	for _, sel := range item.Addons {
		if sel.Qty < 1 {
			continue
		}
		addons = append(addons, sel)
		addonTotal += sel.PriceCents * int64(sel.Qty)
	}

	unitType := ResolveUnitType(item)
	qty := EffectiveQuantity(item)
	unitPrice := unitPriceCents(item, unitType) + float64(addonTotal)

	return Result{
		UnitType:        unitType,
		IsWeightBased:   IsWeightBased(unitType),
		Quantity:        qty,
		UnitPriceCents:  unitPrice,
		AddonTotalCents: addonTotal,
		LineTotalCents:  int64(math.Round(unitPrice * qty)),
		Addons:          addons,
	}
}

// NormalizedQty converts an effective quantity to reporting units: grams
// become kilograms, everything else passes through. Report rows for the
// same product therefore aggregate in one unit regardless of how the line
// was captured.
func NormalizedQty(unitType string, qty float64) (float64, string) {
	switch unitType {
	case domain.UnitGram:
		return qty / 1000, domain.UnitKg
	case domain.UnitKg:
		return qty, domain.UnitKg
	default:
		return qty, "pcs"
	}
}
