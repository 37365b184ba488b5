package reconcile

import (
	"testing"

	"qayd/backend/internal/domain"
)

func TestByMethodAggregatesDirections(t *testing.T) {
	payments := []domain.Payment{
		{Method: "cash", Direction: domain.PaymentDirectionIn, AmountCents: 10000},
		{Method: "cash", Direction: domain.PaymentDirectionIn, AmountCents: 2500},
		{Method: "cash", Direction: domain.PaymentDirectionOut, AmountCents: 1500},
		{Method: "card", Direction: domain.PaymentDirectionIn, AmountCents: 8000},
	}

	totals := ByMethod(payments)
	if len(totals) != 2 {
		t.Fatalf("got %d methods, want 2", len(totals))
	}
	// Sorted by method name: card then cash.
	if totals[0].Method != "card" || totals[0].NetCents != 8000 {
		t.Fatalf("card total = %+v", totals[0])
	}
	cash := totals[1]
	if cash.InCents != 12500 || cash.OutCents != 1500 || cash.NetCents != 11000 {
		t.Fatalf("cash total = %+v, want in 12500 out 1500 net 11000", cash)
	}
}

func TestByMethodEmpty(t *testing.T) {
	if got := ByMethod(nil); len(got) != 0 {
		t.Fatalf("expected no totals, got %d", len(got))
	}
}

func TestExpectedCashIgnoresNonCashMethods(t *testing.T) {
	payments := []domain.Payment{
		{Method: "cash", Direction: domain.PaymentDirectionIn, AmountCents: 50000},
		{Method: "cash", Direction: domain.PaymentDirectionOut, AmountCents: 5000},
		{Method: "card", Direction: domain.PaymentDirectionIn, AmountCents: 30000},
	}
	movements := []domain.CashMovement{
		{Direction: domain.PaymentDirectionIn, AmountCents: 2000},
		{Direction: domain.PaymentDirectionOut, AmountCents: 7000},
	}

	// 10000 float + (50000-5000) cash net + 2000 in - 7000 out
	got := ExpectedCash(10000, payments, movements)
	if got != 50000 {
		t.Fatalf("expected cash = %d, want 50000", got)
	}
}

func TestMovementTotals(t *testing.T) {
	in, out := MovementTotals([]domain.CashMovement{
		{Direction: domain.PaymentDirectionIn, AmountCents: 100},
		{Direction: domain.PaymentDirectionOut, AmountCents: 40},
		{Direction: domain.PaymentDirectionOut, AmountCents: 60},
	})
	if in != 100 || out != 100 {
		t.Fatalf("movements = in %d out %d, want 100/100", in, out)
	}
}
