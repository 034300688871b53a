package domain

import "time"

import "github.com/shopspring/decimal"

// Customer is a bettor account scoped to one Agent.
type Customer struct {
	CustomerID string
	AgentID    string
	Login      string
	DisplayName string
	Phone      string
	Email      string

	Balance        decimal.Decimal
	PendingBalance decimal.Decimal

	// DailyPL is a per-day profit/loss vector, index 0 = today.
	DailyPL [7]decimal.Decimal

	LastTicketAt   *time.Time
	LastVerifiedAt *time.Time

	SuspectBot          bool
	ZeroBalance         bool
	Active              bool
	SportsbookSuspended bool
	CasinoSuspended     bool
}

// AvailableBalance enforces available_balance = balance - pending_balance.
func (c Customer) AvailableBalance() decimal.Decimal {
	return c.Balance.Sub(c.PendingBalance)
}

// CustomerFilter narrows customers_list results.
type CustomerFilter struct {
	AgentID *string
	Status  *string
	Search  string
	Limit   int
	Offset  int
}

// CustomerPatch is a partial update applied by customer_update.
type CustomerPatch struct {
	DisplayName         *string
	Phone               *string
	Email               *string
	SuspectBot          *bool
	Active              *bool
	SportsbookSuspended *bool
	CasinoSuspended     *bool
}
