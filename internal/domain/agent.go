// Package domain holds the canonical, language-neutral data model shared by
// every component: the shape normalization (C4) produces, the store
// adapter (C3) persists, and the ledger/matching engines (C5/C6) operate on.
package domain

import "github.com/shopspring/decimal"

// AgentStatus is the lifecycle state of an Agent.
type AgentStatus string

const (
	AgentActive    AgentStatus = "active"
	AgentSuspended AgentStatus = "suspended"
	AgentClosed    AgentStatus = "closed"
)

// Agent is a sportsbook agent account in the operator hierarchy.
type Agent struct {
	ID             string
	DisplayName    string
	ParentAgentID  *string
	Status         AgentStatus
	CanPlaceBet    bool
	RateInternet   decimal.Decimal
	RateCasino     decimal.Decimal
	RateSports     decimal.Decimal
	RateProp       decimal.Decimal
	RateLiveCasino decimal.Decimal
	CreditLimit    decimal.Decimal
	OutstandingCredit decimal.Decimal
}

// AvailableCredit enforces the invariant
// available_credit = max(0, credit_limit - outstanding_credit).
func (a Agent) AvailableCredit() decimal.Decimal {
	avail := a.CreditLimit.Sub(a.OutstandingCredit)
	if avail.IsNegative() {
		return decimal.Zero
	}
	return avail
}

// AgentFilter narrows agents_list results.
type AgentFilter struct {
	Status        *AgentStatus
	ParentAgentID *string
	Search        string
}

// AgentPatch is a partial update applied to an Agent by agent_update.
type AgentPatch struct {
	DisplayName    *string
	Status         *AgentStatus
	CanPlaceBet    *bool
	RateInternet   *decimal.Decimal
	RateCasino     *decimal.Decimal
	RateSports     *decimal.Decimal
	RateProp       *decimal.Decimal
	RateLiveCasino *decimal.Decimal
	CreditLimit    *decimal.Decimal
}
