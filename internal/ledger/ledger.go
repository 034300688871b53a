// Package ledger implements Settlement & Ledger (C5): applies win/loss/push/
// void outcomes to wagers, credits customer balances, and appends to the
// append-only settlement log. Grounded on the teacher's gas bank module
// (internal/app/services/gasbank), with deposit/withdraw bookkeeping
// replaced by win/loss/push/void settlement semantics.
package ledger

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/brightline-ops/bookcore/internal/apperrors"
	"github.com/brightline-ops/bookcore/internal/domain"
	"github.com/brightline-ops/bookcore/internal/store"
	"github.com/brightline-ops/bookcore/pkg/logger"
)

// Ledger applies settlements against wagers held by the store adapter (C3).
// All cross-call atomicity is provided by store.WagerStore.SettleWager's
// conditional update; the ledger itself holds no mutable wager state.
type Ledger struct {
	store store.Store
	log   *logger.Logger

	mu            sync.Mutex
	lastSettledAt time.Time
}

// New constructs a Ledger over st.
func New(st store.Store, log *logger.Logger) *Ledger {
	if log == nil {
		log = logger.NewFromEnv("ledger")
	}
	return &Ledger{store: st, log: log}
}

// validKinds are the only settlement types a settle call accepts; pending
// is a wager's initial state, never a target of settle.
var validKinds = map[domain.SettlementStatus]bool{
	domain.SettlementWin:  true,
	domain.SettlementLoss: true,
	domain.SettlementPush: true,
	domain.SettlementVoid: true,
}

// settlementAmount computes settlement_amount per spec §4.5: win pays
// to_win, loss pays nothing, and push/void both return the stake. The open
// question on push's amount is resolved in favor of returning the stake
// (see DESIGN.md).
func settlementAmount(w domain.Wager, kind domain.SettlementStatus) decimal.Decimal {
	switch kind {
	case domain.SettlementWin:
		return w.ToWin
	case domain.SettlementPush, domain.SettlementVoid:
		return w.AmountWagered
	default:
		return decimal.Zero
	}
}

// Settle applies a single win/loss/push/void outcome to wagerNumber.
//
// Steps 4-6 of spec §4.5 (update wager, credit balance, append ledger
// entry) are made atomic relative to other concurrent settle calls on the
// same wager by store.SettleWager's conditional update, conditioned on the
// wager still being "pending": of two concurrent calls, exactly one wins
// the conditional update and the other receives a conflict error.
func (l *Ledger) Settle(ctx context.Context, wagerNumber int64, kind domain.SettlementStatus, settledBy, note string, batchID *string) (domain.SettleResult, error) {
	if !validKinds[kind] {
		return domain.SettleResult{}, apperrors.InvalidInput("type", "must be one of win, loss, push, void")
	}
	if settledBy == "" {
		return domain.SettleResult{}, apperrors.MissingParameter("settled_by")
	}

	w, err := l.store.WagerGet(ctx, wagerNumber)
	if err != nil {
		return domain.SettleResult{}, err
	}
	if w.SettlementStatus.IsTerminal() {
		return domain.SettleResult{}, apperrors.AlreadySettled(wagerNumber)
	}

	customer, err := l.store.CustomerGet(ctx, w.CustomerID)
	if err != nil {
		return domain.SettleResult{}, err
	}
	balanceBefore := customer.Balance
	amount := settlementAmount(w, kind)
	settledAt := time.Now().UTC()

	updated, ok, err := l.store.SettleWager(ctx, wagerNumber, kind, amount, settledBy, note, batchID, settledAt)
	if err != nil {
		l.log.LogSettlement(wagerNumber, string(kind), amount.String(), err)
		return domain.SettleResult{}, apperrors.StoreError("settle_wager", err)
	}
	if !ok {
		// Lost the race to another concurrent settle call: the update's
		// pending-only condition did not hold.
		return domain.SettleResult{}, apperrors.AlreadySettled(wagerNumber)
	}

	balanceAfter := balanceBefore
	if amount.IsPositive() {
		balanceAfter, err = l.store.CreditCustomer(ctx, w.CustomerID, amount)
		if err != nil {
			// The wager is already marked terminal; a failure to credit at
			// this point is a genuine invariant violation, not a retryable
			// condition, since settlement is not itself reversible.
			return domain.SettleResult{}, apperrors.InvariantViolation("credit failed after wager settled").WithDetails("wager_number", wagerNumber)
		}
	}

	entry := domain.SettlementEntry{
		WagerNumber:      wagerNumber,
		CustomerID:       w.CustomerID,
		AgentID:          w.AgentID,
		SettlementType:   kind,
		OriginalAmount:   w.AmountWagered,
		SettlementAmount: amount,
		BalanceBefore:    balanceBefore,
		BalanceAfter:     balanceAfter,
		SettledBy:        settledBy,
		BatchID:          batchID,
		Note:             note,
		CreatedAt:        settledAt,
	}
	appended, err := l.store.SettlementsAppend(ctx, entry)
	if err != nil {
		return domain.SettleResult{}, apperrors.StoreError("settlements_append", err)
	}

	l.mu.Lock()
	l.lastSettledAt = settledAt
	l.mu.Unlock()

	l.log.LogSettlement(wagerNumber, string(kind), amount.String(), nil)
	return domain.SettleResult{
		Success:       true,
		Wager:         updated,
		Entry:         &appended,
		BalanceBefore: balanceBefore,
		BalanceAfter:  balanceAfter,
	}, nil
}

// BulkSettle creates a batch, processes each item independently so one
// item's failure never blocks the rest, then rolls up totals onto the
// batch row.
func (l *Ledger) BulkSettle(ctx context.Context, items []domain.BulkSettleItem, settledBy, batchNote string) (domain.BulkSettleSummary, error) {
	batch := domain.SettlementBatch{
		BatchID:    uuid.NewString(),
		CreatedBy:  settledBy,
		CreatedAt:  time.Now().UTC(),
		TotalCount: len(items),
		Status:     domain.BatchOpen,
	}
	created, err := l.store.SettlementBatchCreate(ctx, batch)
	if err != nil {
		return domain.BulkSettleSummary{}, apperrors.StoreError("settlement_batch_create", err)
	}

	results := make([]domain.SettleResult, 0, len(items))
	succeeded := 0
	total := decimal.Zero
	for _, item := range items {
		note := item.Note
		if note == "" {
			note = batchNote
		}
		batchID := created.BatchID
		res, err := l.Settle(ctx, item.WagerNumber, item.Type, settledBy, note, &batchID)
		if err != nil {
			svcErr := apperrors.GetServiceError(err)
			reason := err.Error()
			if svcErr != nil {
				reason = svcErr.Message
			}
			results = append(results, domain.SettleResult{Success: false, Reason: reason, Wager: domain.Wager{WagerNumber: item.WagerNumber}})
			continue
		}
		results = append(results, res)
		succeeded++
		total = total.Add(res.BalanceAfter.Sub(res.BalanceBefore))
	}

	status := domain.BatchCompleted
	if succeeded == 0 {
		status = domain.BatchFailed
	}
	totals := domain.BatchTotals{
		CompletedCount:        succeeded,
		FailedCount:           len(items) - succeeded,
		TotalSettlementAmount: total,
		Status:                status,
	}
	if _, err := l.store.SettlementBatchComplete(ctx, created.BatchID, totals); err != nil {
		return domain.BulkSettleSummary{}, apperrors.StoreError("settlement_batch_complete", err)
	}

	return domain.BulkSettleSummary{
		BatchID:               created.BatchID,
		Results:               results,
		TotalCount:            len(items),
		SucceededCount:        succeeded,
		FailedCount:           len(items) - succeeded,
		TotalSettlementAmount: total,
	}, nil
}

// SettlementLag reports the time since the last successful settle, for the
// health surface's settlement-lag check (C8). A zero lastSettledAt (no
// settlement has ever completed) reports zero lag rather than a large
// bogus duration.
func (l *Ledger) SettlementLag() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.lastSettledAt.IsZero() {
		return 0
	}
	return time.Since(l.lastSettledAt)
}
