package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// SettlementEntry is one append-only ledger row. Immutable once written.
type SettlementEntry struct {
	ID               int64
	WagerNumber      int64
	CustomerID       string
	AgentID          string
	SettlementType   SettlementStatus
	OriginalAmount   decimal.Decimal
	SettlementAmount decimal.Decimal
	BalanceBefore    decimal.Decimal
	BalanceAfter     decimal.Decimal
	SettledBy        string
	BatchID          *string
	Note             string
	CreatedAt        time.Time
}

// SettlementFilter narrows settlements_list results.
type SettlementFilter struct {
	AgentID     *string
	CustomerID  *string
	WagerNumber *int64
	BatchID     *string
	Limit       int
	Offset      int
}

// BatchStatus is the lifecycle state of a SettlementBatch.
type BatchStatus string

const (
	BatchOpen      BatchStatus = "open"
	BatchCompleted BatchStatus = "completed"
	BatchFailed    BatchStatus = "failed"
)

// SettlementBatch groups a bulk_settle call's entries.
type SettlementBatch struct {
	BatchID               string
	CreatedBy             string
	CreatedAt             time.Time
	TotalCount            int
	CompletedCount        int
	FailedCount           int
	TotalSettlementAmount decimal.Decimal
	Status                BatchStatus
}

// BatchTotals is applied to a batch once all items have been processed.
type BatchTotals struct {
	CompletedCount        int
	FailedCount           int
	TotalSettlementAmount decimal.Decimal
	Status                BatchStatus
}

// SettleResult is the outcome of one settle call.
type SettleResult struct {
	Success       bool
	Reason        string
	Wager         Wager
	Entry         *SettlementEntry
	BalanceBefore decimal.Decimal
	BalanceAfter  decimal.Decimal
}

// BulkSettleItem is one line of a bulk_settle request.
type BulkSettleItem struct {
	WagerNumber int64
	Type        SettlementStatus
	Note        string
}

// BulkSettleSummary aggregates a bulk_settle call's outcome.
type BulkSettleSummary struct {
	BatchID               string
	Results               []SettleResult
	TotalCount            int
	SucceededCount        int
	FailedCount           int
	TotalSettlementAmount decimal.Decimal
}
