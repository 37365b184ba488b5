// Package reconcile aggregates shift payments and cash movements into
// the totals a cash-shift close is settled against.
package reconcile

import (
	"sort"

	"qayd/backend/internal/domain"
)

// MethodCash is the payment method that moves physical drawer cash.
const MethodCash = "cash"

// ByMethod folds payments into per-method in/out/net totals, sorted by
// method name so reports and tests see a stable order.
func ByMethod(payments []domain.Payment) []domain.ShiftMethodTotal {
	totals := make(map[string]*domain.ShiftMethodTotal)
	for _, p := range payments {
		t := totals[p.Method]
		if t == nil {
			t = &domain.ShiftMethodTotal{Method: p.Method}
			totals[p.Method] = t
		}
		if p.Direction == domain.PaymentDirectionOut {
			t.OutCents += p.AmountCents
		} else {
			t.InCents += p.AmountCents
		}
		t.NetCents = t.InCents - t.OutCents
	}

	out := make([]domain.ShiftMethodTotal, 0, len(totals))
	for _, t := range totals {
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Method < out[j].Method })
	return out
}

// MovementTotals sums manual drawer movements by direction.
func MovementTotals(movements []domain.CashMovement) (inCents, outCents int64) {
	for _, m := range movements {
		if m.Direction == domain.PaymentDirectionOut {
			outCents += m.AmountCents
		} else {
			inCents += m.AmountCents
		}
	}
	return inCents, outCents
}

// ExpectedCash computes what the drawer should hold at close: the opening
// float, plus net cash payments, plus manual movements in, minus manual
// movements out. Non-cash methods never touch the drawer.
func ExpectedCash(openingFloatCents int64, payments []domain.Payment, movements []domain.CashMovement) int64 {
	expected := openingFloatCents
	for _, t := range ByMethod(payments) {
		if t.Method == MethodCash {
			expected += t.NetCents
		}
	}
	moveIn, moveOut := MovementTotals(movements)
	return expected + moveIn - moveOut
}
