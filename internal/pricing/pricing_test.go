package pricing

import (
	"testing"

	"qayd/backend/internal/domain"
)

func TestAggregatePieceWithAddons(t *testing.T) {
	item := domain.OrderItem{
		ProductID:  "p-1",
		Name:       "Shawarma",
		UnitType:   domain.UnitPiece,
		PriceCents: 1500,
		Qty:        2,
		Addons: []domain.AddonSelection{
			{AddonID: "a-1", Name: "Extra garlic", PriceCents: 300, Qty: 1},
		},
	}

	got := Aggregate(item)
	if got.IsWeightBased {
		t.Fatalf("piece line reported weight-based")
	}
	if got.AddonTotalCents != 300 {
		t.Fatalf("addon total = %d, want 300", got.AddonTotalCents)
	}
	if got.UnitPriceCents != 1800 {
		t.Fatalf("unit price = %v, want 1800", got.UnitPriceCents)
	}
	if got.LineTotalCents != 3600 {
		t.Fatalf("line total = %d, want 3600", got.LineTotalCents)
	}
}

func TestAggregateGramPricedPerKg(t *testing.T) {
	item := domain.OrderItem{
		ProductID:       "p-2",
		Name:            "Baklava",
		UnitType:        domain.UnitGram,
		PricePerKgCents: 6000,
		Weight:          250,
	}

	got := Aggregate(item)
	if !got.IsWeightBased {
		t.Fatalf("gram line not reported weight-based")
	}
	if got.UnitPriceCents != 6 {
		t.Fatalf("per-gram price = %v, want 6", got.UnitPriceCents)
	}
	if got.LineTotalCents != 1500 {
		t.Fatalf("line total = %d, want 1500", got.LineTotalCents)
	}
}

func TestAggregateMissingWeightFallsBackToQty(t *testing.T) {
	item := domain.OrderItem{
		ProductID:  "p-3",
		Name:       "Lamb",
		UnitType:   domain.UnitKg,
		PriceCents: 9000,
		Qty:        3,
		Weight:     0,
	}

	got := Aggregate(item)
	if got.Quantity != 3 {
		t.Fatalf("effective quantity = %v, want 3", got.Quantity)
	}
	if got.LineTotalCents != 27000 {
		t.Fatalf("line total = %d, want 27000", got.LineTotalCents)
	}
}

func TestAggregateAddonsMultiplyByWeight(t *testing.T) {
	item := domain.OrderItem{
		ProductID:       "p-4",
		Name:            "Mixed nuts",
		UnitType:        domain.UnitGram,
		PricePerKgCents: 8000,
		Weight:          500,
		Addons: []domain.AddonSelection{
			{AddonID: "a-2", Name: "Gift wrap", PriceCents: 2, Qty: 1},
		},
	}

	// (8 per gram + 2 addon) * 500
	got := Aggregate(item)
	if got.LineTotalCents != 5000 {
		t.Fatalf("line total = %d, want 5000", got.LineTotalCents)
	}
}

func TestResolveUnitTypeLegacyField(t *testing.T) {
	cases := []struct {
		name string
		item domain.OrderItem
		want string
	}{
		{"explicit kg", domain.OrderItem{UnitType: domain.UnitKg}, domain.UnitKg},
		{"legacy unit", domain.OrderItem{Unit: domain.UnitGram}, domain.UnitGram},
		{"unknown defaults to piece", domain.OrderItem{UnitType: "box"}, domain.UnitPiece},
		{"empty defaults to piece", domain.OrderItem{}, domain.UnitPiece},
	}
	for _, tc := range cases {
		if got := ResolveUnitType(tc.item); got != tc.want {
			t.Fatalf("%s: unit type = %q, want %q", tc.name, got, tc.want)
		}
	}
}

func TestAggregateSkipsZeroQtyAddons(t *testing.T) {
	item := domain.OrderItem{
		ProductID:  "p-5",
		UnitType:   domain.UnitPiece,
		PriceCents: 1000,
		Qty:        1,
		Addons: []domain.AddonSelection{
			{AddonID: "a-3", PriceCents: 500, Qty: 0},
			{AddonID: "a-4", PriceCents: 200, Qty: 2},
		},
	}

	got := Aggregate(item)
	if len(got.Addons) != 1 {
		t.Fatalf("kept %d addons, want 1", len(got.Addons))
	}
	if got.AddonTotalCents != 400 {
		t.Fatalf("addon total = %d, want 400", got.AddonTotalCents)
	}
}

func TestNormalizedQty(t *testing.T) {
	qty, unit := NormalizedQty(domain.UnitGram, 250)
	if qty != 0.25 || unit != domain.UnitKg {
		t.Fatalf("gram normalization = %v %s, want 0.25 kg", qty, unit)
	}
	qty, unit = NormalizedQty(domain.UnitKg, 1.5)
	if qty != 1.5 || unit != domain.UnitKg {
		t.Fatalf("kg normalization = %v %s, want 1.5 kg", qty, unit)
	}
	qty, unit = NormalizedQty(domain.UnitPiece, 4)
	if qty != 4 || unit != "pcs" {
		t.Fatalf("piece normalization = %v %s, want 4 pcs", qty, unit)
	}
}
