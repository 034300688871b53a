// Package memory implements the Local Store Adapter (C3) as a thread-safe
// in-memory fake: the default zero-config backend and the backend used by
// every package's tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/brightline-ops/bookcore/internal/apperrors"
	"github.com/brightline-ops/bookcore/internal/domain"
	"github.com/brightline-ops/bookcore/internal/store"
)

var _ store.Store = (*Memory)(nil)

// Memory is a thread-safe in-memory persistence layer. Deliberately simple:
// every call copies in and out so callers can never observe a partially
// applied mutation.
type Memory struct {
	mu sync.RWMutex

	agents      map[string]domain.Agent
	customers   map[string]domain.Customer
	wagers      map[int64]domain.Wager
	settlements []domain.SettlementEntry
	batches     map[string]domain.SettlementBatch
	queueItems  map[string]domain.QueueItem
	matches     map[string]domain.Match
	audit       []domain.AuditEntry

	nextSettlementID int64
	nextAuditID       int64
}

// New creates an empty in-memory store.
func New() *Memory {
	return &Memory{
		agents:     make(map[string]domain.Agent),
		customers:  make(map[string]domain.Customer),
		wagers:     make(map[int64]domain.Wager),
		batches:    make(map[string]domain.SettlementBatch),
		queueItems: make(map[string]domain.QueueItem),
		matches:    make(map[string]domain.Match),

		nextSettlementID: 1,
		nextAuditID:       1,
	}
}

// Ping always succeeds; there is no connection to check.
func (m *Memory) Ping(_ context.Context) error { return nil }

// Seed helpers (not part of store.Store; used by tests to pre-populate).

func (m *Memory) SeedAgent(a domain.Agent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.agents[a.ID] = a
}

func (m *Memory) SeedCustomer(c domain.Customer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.customers[c.CustomerID] = c
}

func (m *Memory) SeedWager(w domain.Wager) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.wagers[w.WagerNumber] = w
}

// AgentStore -----------------------------------------------------------------

func (m *Memory) AgentsList(_ context.Context, filter domain.AgentFilter) ([]domain.Agent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]domain.Agent, 0, len(m.agents))
	for _, a := range m.agents {
		if filter.Status != nil && a.Status != *filter.Status {
			continue
		}
		if filter.ParentAgentID != nil {
			if a.ParentAgentID == nil || *a.ParentAgentID != *filter.ParentAgentID {
				continue
			}
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) AgentGet(_ context.Context, id string) (domain.Agent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.agents[id]
	if !ok {
		return domain.Agent{}, apperrors.NotFound("agent", id)
	}
	return a, nil
}

func (m *Memory) AgentUpdate(_ context.Context, id string, patch domain.AgentPatch) (domain.Agent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.agents[id]
	if !ok {
		return domain.Agent{}, apperrors.NotFound("agent", id)
	}
	if patch.DisplayName != nil {
		a.DisplayName = *patch.DisplayName
	}
	if patch.Status != nil {
		a.Status = *patch.Status
	}
	if patch.CanPlaceBet != nil {
		a.CanPlaceBet = *patch.CanPlaceBet
	}
	if patch.RateInternet != nil {
		a.RateInternet = *patch.RateInternet
	}
	if patch.RateCasino != nil {
		a.RateCasino = *patch.RateCasino
	}
	if patch.RateSports != nil {
		a.RateSports = *patch.RateSports
	}
	if patch.RateProp != nil {
		a.RateProp = *patch.RateProp
	}
	if patch.RateLiveCasino != nil {
		a.RateLiveCasino = *patch.RateLiveCasino
	}
	if patch.CreditLimit != nil {
		a.CreditLimit = *patch.CreditLimit
	}
	m.agents[id] = a
	return a, nil
}

// CustomerStore ----------------------------------------------------------------

func (m *Memory) CustomersList(_ context.Context, filter domain.CustomerFilter) ([]domain.Customer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]domain.Customer, 0, len(m.customers))
	for _, c := range m.customers {
		if filter.AgentID != nil && c.AgentID != *filter.AgentID {
			continue
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CustomerID < out[j].CustomerID })

	if filter.Offset > 0 && filter.Offset < len(out) {
		out = out[filter.Offset:]
	} else if filter.Offset >= len(out) {
		out = nil
	}
	if filter.Limit > 0 && filter.Limit < len(out) {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (m *Memory) CustomerGet(_ context.Context, id string) (domain.Customer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.customers[id]
	if !ok {
		return domain.Customer{}, apperrors.NotFound("customer", id)
	}
	return c, nil
}

func (m *Memory) CustomerUpdate(_ context.Context, id string, patch domain.CustomerPatch) (domain.Customer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.customers[id]
	if !ok {
		return domain.Customer{}, apperrors.NotFound("customer", id)
	}
	if patch.DisplayName != nil {
		c.DisplayName = *patch.DisplayName
	}
	if patch.Phone != nil {
		c.Phone = *patch.Phone
	}
	if patch.Email != nil {
		c.Email = *patch.Email
	}
	if patch.SuspectBot != nil {
		c.SuspectBot = *patch.SuspectBot
	}
	if patch.Active != nil {
		c.Active = *patch.Active
	}
	if patch.SportsbookSuspended != nil {
		c.SportsbookSuspended = *patch.SportsbookSuspended
	}
	if patch.CasinoSuspended != nil {
		c.CasinoSuspended = *patch.CasinoSuspended
	}
	m.customers[id] = c
	return c, nil
}

// WagerStore -------------------------------------------------------------------

func (m *Memory) WagersList(_ context.Context, filter domain.WagerFilter) ([]domain.Wager, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]domain.Wager, 0, len(m.wagers))
	for _, w := range m.wagers {
		if filter.AgentID != nil && w.AgentID != *filter.AgentID {
			continue
		}
		if filter.CustomerID != nil && w.CustomerID != *filter.CustomerID {
			continue
		}
		if filter.Status != nil && w.SettlementStatus != *filter.Status {
			continue
		}
		out = append(out, w)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].WagerNumber < out[j].WagerNumber })
	return out, nil
}

func (m *Memory) WagerGet(_ context.Context, wagerNumber int64) (domain.Wager, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	w, ok := m.wagers[wagerNumber]
	if !ok {
		return domain.Wager{}, apperrors.NotFound("wager", fmt.Sprintf("%d", wagerNumber))
	}
	return w, nil
}

// SettleWager is the conditional update C5 depends on for settlement
// exclusivity: the transition only applies if the wager is still pending.
func (m *Memory) SettleWager(_ context.Context, wagerNumber int64, status domain.SettlementStatus, settlementAmount decimal.Decimal, settledBy, note string, batchID *string, settledAt time.Time) (domain.Wager, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	w, ok := m.wagers[wagerNumber]
	if !ok {
		return domain.Wager{}, false, apperrors.NotFound("wager", fmt.Sprintf("%d", wagerNumber))
	}
	if w.SettlementStatus != domain.SettlementPending {
		return domain.Wager{}, false, nil
	}

	amt := settlementAmount
	w.SettlementStatus = status
	w.SettlementAmount = &amt
	w.SettledAt = &settledAt
	by := settledBy
	w.SettledBy = &by
	m.wagers[wagerNumber] = w
	return w, true, nil
}

// SettlementStore ----------------------------------------------------------

func (m *Memory) SettlementsAppend(_ context.Context, entry domain.SettlementEntry) (domain.SettlementEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry.ID = m.nextSettlementID
	m.nextSettlementID++
	m.settlements = append(m.settlements, entry)
	return entry, nil
}

func (m *Memory) SettlementsList(_ context.Context, filter domain.SettlementFilter) ([]domain.SettlementEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]domain.SettlementEntry, 0)
	for _, e := range m.settlements {
		if filter.AgentID != nil && e.AgentID != *filter.AgentID {
			continue
		}
		if filter.CustomerID != nil && e.CustomerID != *filter.CustomerID {
			continue
		}
		if filter.WagerNumber != nil && e.WagerNumber != *filter.WagerNumber {
			continue
		}
		if filter.BatchID != nil {
			if e.BatchID == nil || *e.BatchID != *filter.BatchID {
				continue
			}
		}
		out = append(out, e)
	}
	return out, nil
}

func (m *Memory) SettlementBatchCreate(_ context.Context, batch domain.SettlementBatch) (domain.SettlementBatch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if batch.BatchID == "" {
		batch.BatchID = uuid.NewString()
	}
	m.batches[batch.BatchID] = batch
	return batch, nil
}

func (m *Memory) SettlementBatchComplete(_ context.Context, id string, totals domain.BatchTotals) (domain.SettlementBatch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.batches[id]
	if !ok {
		return domain.SettlementBatch{}, apperrors.NotFound("settlement_batch", id)
	}
	b.CompletedCount = totals.CompletedCount
	b.FailedCount = totals.FailedCount
	b.TotalSettlementAmount = totals.TotalSettlementAmount
	b.Status = totals.Status
	m.batches[id] = b
	return b, nil
}

// QueueStore ------------------------------------------------------------------

func (m *Memory) QueueInsert(_ context.Context, item domain.QueueItem) (domain.QueueItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	m.queueItems[item.ID] = item
	return item, nil
}

func (m *Memory) QueueList(_ context.Context, filter domain.QueueFilter) ([]domain.QueueItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]domain.QueueItem, 0, len(m.queueItems))
	for _, it := range m.queueItems {
		if filter.Kind != nil && it.Kind != *filter.Kind {
			continue
		}
		if filter.Status != nil && it.Status != *filter.Status {
			continue
		}
		out = append(out, it)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (m *Memory) QueueGet(_ context.Context, id string) (domain.QueueItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	it, ok := m.queueItems[id]
	if !ok {
		return domain.QueueItem{}, apperrors.NotFound("queue_item", id)
	}
	return it, nil
}

func (m *Memory) QueueUpdateStatus(_ context.Context, id string, status domain.QueueStatus, matchedWith *string) (domain.QueueItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.queueItems[id]
	if !ok {
		return domain.QueueItem{}, apperrors.NotFound("queue_item", id)
	}
	it.Status = status
	if matchedWith != nil {
		it.MatchedWith = matchedWith
	}
	m.queueItems[id] = it
	return it, nil
}

// PairItems performs the matching engine's atomic pairing: both items
// transition pending -> matched conditioned on both still being pending.
func (m *Memory) PairItems(_ context.Context, withdrawalID, depositID string, match domain.Match) (domain.Match, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	w, ok := m.queueItems[withdrawalID]
	if !ok || w.Status != domain.QueuePending {
		return domain.Match{}, false, nil
	}
	d, ok := m.queueItems[depositID]
	if !ok || d.Status != domain.QueuePending {
		return domain.Match{}, false, nil
	}

	if match.ID == "" {
		match.ID = uuid.NewString()
	}
	w.Status = domain.QueueMatched
	w.MatchedWith = &match.DepositID
	d.Status = domain.QueueMatched
	d.MatchedWith = &match.WithdrawalID
	m.queueItems[withdrawalID] = w
	m.queueItems[depositID] = d
	m.matches[match.ID] = match
	return match, true, nil
}

func (m *Memory) MatchInsert(_ context.Context, match domain.Match) (domain.Match, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if match.ID == "" {
		match.ID = uuid.NewString()
	}
	m.matches[match.ID] = match
	return match, nil
}

func (m *Memory) MatchGet(_ context.Context, id string) (domain.Match, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	match, ok := m.matches[id]
	if !ok {
		return domain.Match{}, apperrors.NotFound("match", id)
	}
	return match, nil
}

func (m *Memory) MatchUpdateStatus(_ context.Context, id string, status domain.MatchStatus, completedAt *time.Time, note string) (domain.Match, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	match, ok := m.matches[id]
	if !ok {
		return domain.Match{}, apperrors.NotFound("match", id)
	}
	match.Status = status
	if completedAt != nil {
		match.CompletedAt = completedAt
	}
	if note != "" {
		match.Note = note
	}
	m.matches[id] = match
	return match, nil
}

// BalanceStore ------------------------------------------------------------

func (m *Memory) CustomerBalance(_ context.Context, customerID string) (decimal.Decimal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.customers[customerID]
	if !ok {
		return decimal.Zero, apperrors.NotFound("customer", customerID)
	}
	return c.Balance, nil
}

func (m *Memory) CreditCustomer(_ context.Context, customerID string, amount decimal.Decimal) (decimal.Decimal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.customers[customerID]
	if !ok {
		return decimal.Zero, apperrors.NotFound("customer", customerID)
	}
	c.Balance = c.Balance.Add(amount)
	m.customers[customerID] = c
	return c.Balance, nil
}

// AuditStore ----------------------------------------------------------------

func (m *Memory) AuditAppend(_ context.Context, entry domain.AuditEntry) (domain.AuditEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry.ID = m.nextAuditID
	m.nextAuditID++
	m.audit = append(m.audit, entry)
	return entry, nil
}
