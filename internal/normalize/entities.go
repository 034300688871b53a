package normalize

import (
	"time"

	"github.com/brightline-ops/bookcore/internal/domain"
)

// raw is one upstream envelope row or local store row, keyed by the
// upstream's native field names.
type raw = map[string]interface{}

func str(r raw, key string) string {
	v, ok := r[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

// Agent converts one raw upstream/local row into a canonical Agent. It
// returns ok=false when the identity field (agent id) is missing.
func Agent(r raw) (domain.Agent, bool) {
	id := TrimString(str(r, "agentID"))
	if id == "" {
		id = TrimString(str(r, "agent_id"))
	}
	if id == "" {
		return domain.Agent{}, false
	}

	a := domain.Agent{
		ID:                id,
		DisplayName:       TrimString(str(r, "agentName")),
		Status:            agentStatus(str(r, "status")),
		CanPlaceBet:       CoerceBool(r["canPlaceBet"]),
		RateInternet:      CoerceDecimal(r["rateInternet"]),
		RateCasino:        CoerceDecimal(r["rateCasino"]),
		RateSports:        CoerceDecimal(r["rateSports"]),
		RateProp:          CoerceDecimal(r["rateProp"]),
		RateLiveCasino:    CoerceDecimal(r["rateLiveCasino"]),
		CreditLimit:       CoerceDecimal(r["creditLimit"]),
		OutstandingCredit: CoerceDecimal(r["outstandingCredit"]),
	}
	// The upstream reports lineage as a human-readable "MASTER / MID /
	// PARENT" chain; only the immediate parent is stored, and full chains
	// are recomputed on demand by following parents.
	if chain := SplitHierarchy(str(r, "parentAgentID")); len(chain) > 0 {
		parent := chain[len(chain)-1]
		a.ParentAgentID = &parent
	}
	return a, true
}

func agentStatus(raw string) domain.AgentStatus {
	switch TrimString(raw) {
	case "suspended":
		return domain.AgentSuspended
	case "closed":
		return domain.AgentClosed
	default:
		return domain.AgentActive
	}
}

// Customer converts one raw row into a canonical Customer. It stores only
// the fields read from the row; derived values such as the available
// balance come from methods on domain.Customer.
func Customer(r raw) (domain.Customer, bool) {
	id := TrimString(str(r, "customerID"))
	if id == "" {
		id = TrimString(str(r, "customer_id"))
	}
	agentID := TrimString(str(r, "agentID"))
	if id == "" || agentID == "" {
		return domain.Customer{}, false
	}

	c := domain.Customer{
		CustomerID:          id,
		AgentID:             agentID,
		Login:               TrimString(str(r, "login")),
		DisplayName:         TrimString(str(r, "customerName")),
		Phone:               TrimString(str(r, "phone")),
		Email:               TrimString(str(r, "email")),
		Balance:             CoerceDecimal(r["balance"]),
		PendingBalance:      CoerceDecimal(r["pendingBalance"]),
		SuspectBot:          CoerceBool(r["suspectBot"]),
		ZeroBalance:         CoerceBool(r["zeroBalance"]),
		Active:              CoerceBool(r["active"]),
		SportsbookSuspended: CoerceBool(r["sportsbookSuspended"]),
		CasinoSuspended:     CoerceBool(r["casinoSuspended"]),
	}
	return c, true
}

// Wager converts one raw row into a canonical Wager.
func Wager(r raw) (domain.Wager, bool) {
	numStr := TrimString(str(r, "wagerNumber"))
	if numStr == "" {
		return domain.Wager{}, false
	}
	n := CoerceInt(numStr)
	if n == 0 {
		return domain.Wager{}, false
	}

	placedAt := time.Now().UTC()
	if ts, ok := r["placedAt"].(time.Time); ok {
		placedAt = ts
	}

	w := domain.Wager{
		WagerNumber:      int64(n),
		CustomerID:       TrimString(str(r, "customerID")),
		AgentID:          TrimString(str(r, "agentID")),
		AmountWagered:    CoerceDecimal(r["amountWagered"]),
		ToWin:            CoerceDecimal(r["toWin"]),
		Description:      TrimString(str(r, "description")),
		PlacedAt:         placedAt,
		SettlementStatus: domain.SettlementPending,
	}
	return w, true
}
