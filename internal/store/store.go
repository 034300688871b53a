// Package store defines the narrow, driver-agnostic Local Store Adapter
// (C3): typed operations only, never SQL strings, so implementations may be
// Postgres, SQLite, or an in-memory fake for tests.
package store

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/brightline-ops/bookcore/internal/domain"
)

// AgentStore persists agent configuration and permissions.
type AgentStore interface {
	AgentsList(ctx context.Context, filter domain.AgentFilter) ([]domain.Agent, error)
	AgentGet(ctx context.Context, id string) (domain.Agent, error)
	AgentUpdate(ctx context.Context, id string, patch domain.AgentPatch) (domain.Agent, error)
}

// CustomerStore persists customer overrides.
type CustomerStore interface {
	CustomersList(ctx context.Context, filter domain.CustomerFilter) ([]domain.Customer, error)
	CustomerGet(ctx context.Context, id string) (domain.Customer, error)
	CustomerUpdate(ctx context.Context, id string, patch domain.CustomerPatch) (domain.Customer, error)
}

// WagerStore persists wagers and drives settlement's conditional update.
type WagerStore interface {
	WagersList(ctx context.Context, filter domain.WagerFilter) ([]domain.Wager, error)
	WagerGet(ctx context.Context, wagerNumber int64) (domain.Wager, error)

	// SettleWager performs the atomic win/loss/push/void transition: the
	// update is conditioned on the wager's current settlement_status
	// still being "pending". Returns (updated, true, nil) on success and
	// (_, false, nil) when the condition did not hold (already settled).
	SettleWager(ctx context.Context, wagerNumber int64, status domain.SettlementStatus, settlementAmount decimal.Decimal, settledBy string, note string, batchID *string, settledAt time.Time) (domain.Wager, bool, error)
}

// SettlementStore persists the append-only settlement log and batches.
type SettlementStore interface {
	SettlementsAppend(ctx context.Context, entry domain.SettlementEntry) (domain.SettlementEntry, error)
	SettlementsList(ctx context.Context, filter domain.SettlementFilter) ([]domain.SettlementEntry, error)

	SettlementBatchCreate(ctx context.Context, batch domain.SettlementBatch) (domain.SettlementBatch, error)
	SettlementBatchComplete(ctx context.Context, id string, totals domain.BatchTotals) (domain.SettlementBatch, error)
}

// QueueStore persists withdrawal/deposit queue items and matches.
type QueueStore interface {
	QueueInsert(ctx context.Context, item domain.QueueItem) (domain.QueueItem, error)
	QueueList(ctx context.Context, filter domain.QueueFilter) ([]domain.QueueItem, error)
	QueueGet(ctx context.Context, id string) (domain.QueueItem, error)
	QueueUpdateStatus(ctx context.Context, id string, status domain.QueueStatus, matchedWith *string) (domain.QueueItem, error)

	// PairItems performs C6's atomic pairing: both items transition from
	// pending to matched, conditioned on both still being pending, and a
	// Match row is inserted in the same operation. ok=false means the
	// condition failed for at least one item (a concurrent change) and
	// the caller must abort and continue to the next candidate.
	PairItems(ctx context.Context, withdrawalID, depositID string, match domain.Match) (domain.Match, bool, error)

	MatchInsert(ctx context.Context, match domain.Match) (domain.Match, error)
	MatchGet(ctx context.Context, id string) (domain.Match, error)
	MatchUpdateStatus(ctx context.Context, id string, status domain.MatchStatus, completedAt *time.Time, note string) (domain.Match, error)
}

// BalanceStore is the narrow customer-balance surface the ledger needs;
// implemented by the same backing store as CustomerStore.
type BalanceStore interface {
	CustomerBalance(ctx context.Context, customerID string) (decimal.Decimal, error)
	CreditCustomer(ctx context.Context, customerID string, amount decimal.Decimal) (balanceAfter decimal.Decimal, err error)
}

// AuditStore persists the audit log.
type AuditStore interface {
	AuditAppend(ctx context.Context, entry domain.AuditEntry) (domain.AuditEntry, error)
}

// Store is the union every component depends on. Postgres and in-memory
// implementations both satisfy it in full.
type Store interface {
	AgentStore
	CustomerStore
	WagerStore
	SettlementStore
	QueueStore
	BalanceStore
	AuditStore

	Ping(ctx context.Context) error
}
