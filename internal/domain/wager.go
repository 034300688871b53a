package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// SettlementStatus is the lifecycle state of a Wager.
type SettlementStatus string

const (
	SettlementPending SettlementStatus = "pending"
	SettlementWin     SettlementStatus = "win"
	SettlementLoss    SettlementStatus = "loss"
	SettlementPush    SettlementStatus = "push"
	SettlementVoid    SettlementStatus = "void"
)

// IsTerminal reports whether the status is frozen (no further transitions).
func (s SettlementStatus) IsTerminal() bool {
	return s != SettlementPending
}

// Wager is a single bet placed by a Customer.
type Wager struct {
	WagerNumber   int64
	CustomerID    string
	AgentID       string
	AmountWagered decimal.Decimal
	ToWin         decimal.Decimal
	Description   string
	PlacedAt      time.Time

	SettlementStatus SettlementStatus
	SettlementAmount *decimal.Decimal
	SettledAt        *time.Time
	SettledBy        *string
}

// WagerFilter narrows wagers_list results.
type WagerFilter struct {
	AgentID    *string
	CustomerID *string
	Status     *SettlementStatus
	Limit      int
	Offset     int
}
