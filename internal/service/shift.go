package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"qayd/backend/internal/domain"
	"qayd/backend/internal/reconcile"
	"qayd/backend/internal/store"
	"qayd/backend/internal/xid"
)

func (s *Service) OpenShift(ctx context.Context, req domain.ShiftOpenRequest) (domain.ShiftResponse, error) {
	if req.BranchID == "" {
		req.BranchID = s.defaultBranchID
	}
	if strings.TrimSpace(req.TerminalID) == "" || strings.TrimSpace(req.CashierName) == "" {
		return domain.ShiftResponse{}, store.ErrInvalidRecord
	}
	if req.OpeningFloatCents < 0 {
		return domain.ShiftResponse{}, store.ErrInvalidRecord
	}

	shift := domain.CashShift{
		ID:                xid.New("shift"),
		BranchID:          req.BranchID,
		TerminalID:        strings.TrimSpace(req.TerminalID),
		CashierName:       strings.TrimSpace(req.CashierName),
		OpeningFloatCents: req.OpeningFloatCents,
		Status:            domain.ShiftStatusOpen,
		OpenedAt:          time.Now().UTC(),
	}
	saved, err := s.repo.CreateShift(ctx, shift)
	if err != nil {
		if errors.Is(err, store.ErrInvalidRecord) {
			return domain.ShiftResponse{}, fmt.Errorf("shift already open")
		}
		return domain.ShiftResponse{}, err
	}

	s.logAudit(ctx, req.BranchID, "shift_open", "shift", saved.ID, saved.CashierName)
	return domain.ShiftResponse{Shift: *saved}, nil
}

// CloseShift reconciles the drawer. The store computes expected cash from
// the opening float, cash payments, and cash movements atomically with the
// close, and rejects a counted amount that misses the expectation without
// a reason.
func (s *Service) CloseShift(ctx context.Context, req domain.ShiftCloseRequest) (domain.ShiftResponse, error) {
	if req.BranchID == "" {
		req.BranchID = s.defaultBranchID
	}
	if strings.TrimSpace(req.TerminalID) == "" {
		return domain.ShiftResponse{}, store.ErrInvalidRecord
	}
	if req.CountedCashCents < 0 {
		return domain.ShiftResponse{}, store.ErrInvalidRecord
	}

	shift, err := s.repo.GetActiveShift(ctx, req.BranchID, req.TerminalID)
	if err != nil {
		return domain.ShiftResponse{}, err
	}

	reason := strings.TrimSpace(req.Reason)
	closed, err := s.repo.CloseShift(ctx, shift.ID, req.CountedCashCents, reason, time.Now().UTC())
	if err != nil {
		return domain.ShiftResponse{}, err
	}
	if closed.DifferenceCents != 0 {
		log.Printf("[shift] WARN: cash mismatch shift=%s terminal=%s difference=%d reason=%q", closed.ID, closed.TerminalID, closed.DifferenceCents, reason)
	}

	s.logAudit(ctx, req.BranchID, "shift_close", "shift", closed.ID, fmt.Sprintf("expected=%d,counted=%d,difference=%d", closed.ExpectedCashCents, req.CountedCashCents, closed.DifferenceCents))
	return domain.ShiftResponse{Shift: *closed}, nil
}

func (s *Service) GetActiveShift(ctx context.Context, branchID string, terminalID string) (domain.ShiftResponse, error) {
	if branchID == "" {
		branchID = s.defaultBranchID
	}
	if strings.TrimSpace(terminalID) == "" {
		return domain.ShiftResponse{}, store.ErrInvalidRecord
	}

	shift, err := s.repo.GetActiveShift(ctx, branchID, terminalID)
	if err != nil {
		return domain.ShiftResponse{}, err
	}
	return domain.ShiftResponse{Shift: *shift}, nil
}

func (s *Service) RecordCashMovement(ctx context.Context, req domain.CashMovementRequest) (domain.CashMovement, error) {
	if req.BranchID == "" {
		req.BranchID = s.defaultBranchID
	}
	direction := strings.ToLower(strings.TrimSpace(req.Direction))
	reason := strings.TrimSpace(req.Reason)
	if direction != domain.PaymentDirectionIn && direction != domain.PaymentDirectionOut {
		return domain.CashMovement{}, store.ErrInvalidRecord
	}
	if req.AmountCents < 1 || reason == "" {
		return domain.CashMovement{}, store.ErrInvalidRecord
	}

	shift, err := s.repo.GetActiveShift(ctx, req.BranchID, req.TerminalID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.CashMovement{}, fmt.Errorf("active shift required")
		}
		return domain.CashMovement{}, err
	}

	actor, _ := ActorFromContext(ctx)
	movement := domain.CashMovement{
		ID:          xid.New("cm"),
		ShiftID:     shift.ID,
		Direction:   direction,
		AmountCents: req.AmountCents,
		Reason:      reason,
		RecordedBy:  defaultString(actor.Username, "system"),
		CreatedAt:   time.Now().UTC(),
	}
	saved, err := s.repo.CreateCashMovement(ctx, movement)
	if err != nil {
		return domain.CashMovement{}, err
	}

	s.logAudit(ctx, req.BranchID, "cash_movement", "shift", shift.ID, fmt.Sprintf("direction=%s,amount=%d,reason=%s", direction, req.AmountCents, reason))
	return *saved, nil
}

func (s *Service) ShiftReport(ctx context.Context, shiftID string) (domain.ShiftReport, error) {
	shiftID = strings.TrimSpace(shiftID)
	if shiftID == "" {
		return domain.ShiftReport{}, store.ErrInvalidRecord
	}

	shift, err := s.repo.GetShiftByID(ctx, shiftID)
	if err != nil {
		return domain.ShiftReport{}, err
	}
	payments, err := s.repo.ListShiftPayments(ctx, shift.ID)
	if err != nil {
		return domain.ShiftReport{}, err
	}
	movements, err := s.repo.ListShiftMovements(ctx, shift.ID)
	if err != nil {
		return domain.ShiftReport{}, err
	}

	movementIn, movementOut := reconcile.MovementTotals(movements)
	report := domain.ShiftReport{
		Shift:            *shift,
		ByMethod:         reconcile.ByMethod(payments),
		MovementInCents:  movementIn,
		MovementOutCents: movementOut,
	}

	if shift.Status == domain.ShiftStatusClosed {
		report.ExpectedCashCents = shift.ExpectedCashCents
		report.CountedCashCents = shift.CountedCashCents
		report.DifferenceCents = shift.DifferenceCents
	} else {
		// Open shifts report the running expectation; counted cash
		// does not exist yet.
		report.ExpectedCashCents = reconcile.ExpectedCash(shift.OpeningFloatCents, payments, movements)
	}

	return report, nil
}

// ShiftMismatchAlerts surfaces closed shifts whose counted cash missed the
// expectation, graded by the size of the gap.
func (s *Service) ShiftMismatchAlerts(ctx context.Context, branchID string, date string) (domain.ShiftMismatchAlertResponse, error) {
	if branchID == "" {
		branchID = s.defaultBranchID
	}
	day, err := parseDay(date)
	if err != nil {
		return domain.ShiftMismatchAlertResponse{}, err
	}

	shifts, err := s.repo.ListClosedShifts(ctx, branchID, day, day.Add(24*time.Hour))
	if err != nil {
		return domain.ShiftMismatchAlertResponse{}, err
	}

	alerts := make([]domain.ShiftMismatchAlert, 0)
	for _, shift := range shifts {
		if shift.DifferenceCents == 0 {
			continue
		}
		closedAt := ""
		if shift.ClosedAt != nil {
			closedAt = shift.ClosedAt.Format(time.RFC3339)
		}
		alerts = append(alerts, domain.ShiftMismatchAlert{
			ShiftID:         shift.ID,
			TerminalID:      shift.TerminalID,
			CashierName:     shift.CashierName,
			DifferenceCents: shift.DifferenceCents,
			Severity:        mismatchSeverity(shift.DifferenceCents),
			ClosedAt:        closedAt,
		})
	}

	return domain.ShiftMismatchAlertResponse{
		BranchID: branchID,
		Date:     day.Format("2006-01-02"),
		Alerts:   alerts,
	}, nil
}

func mismatchSeverity(differenceCents int64) string {
	abs := differenceCents
	if abs < 0 {
		abs = -abs
	}
	switch {
	case abs >= 5000:
		return "high"
	case abs >= 1000:
		return "medium"
	}
	return "low"
}
