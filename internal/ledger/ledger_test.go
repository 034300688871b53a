package ledger

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brightline-ops/bookcore/internal/apperrors"
	"github.com/brightline-ops/bookcore/internal/domain"
	"github.com/brightline-ops/bookcore/internal/store/memory"
)

func seedWagerAndCustomer(t *testing.T, m *memory.Memory, balance, wagered, toWin decimal.Decimal) {
	t.Helper()
	m.SeedCustomer(domain.Customer{CustomerID: "cust-1", AgentID: "agent-1", Balance: balance})
	m.SeedWager(domain.Wager{
		WagerNumber:      777,
		CustomerID:       "cust-1",
		AgentID:          "agent-1",
		AmountWagered:    wagered,
		ToWin:            toWin,
		SettlementStatus: domain.SettlementPending,
		PlacedAt:         time.Now().UTC(),
	})
}

// S1 settle win: matches spec §8 scenario S1.
func TestSettleWin(t *testing.T) {
	m := memory.New()
	seedWagerAndCustomer(t, m, decimal.NewFromInt(100), decimal.NewFromInt(10), decimal.NewFromInt(25))
	l := New(m, nil)

	res, err := l.Settle(context.Background(), 777, domain.SettlementWin, "op1", "", nil)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.True(t, res.BalanceBefore.Equal(decimal.NewFromInt(100)))
	assert.True(t, res.BalanceAfter.Equal(decimal.NewFromInt(125)))
	assert.Equal(t, domain.SettlementWin, res.Wager.SettlementStatus)

	entries, err := m.SettlementsList(context.Background(), domain.SettlementFilter{})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, entries[0].BalanceBefore.Equal(decimal.NewFromInt(100)))
	assert.True(t, entries[0].BalanceAfter.Equal(decimal.NewFromInt(125)))
}

func TestSettleLossPaysNothing(t *testing.T) {
	m := memory.New()
	seedWagerAndCustomer(t, m, decimal.NewFromInt(100), decimal.NewFromInt(10), decimal.NewFromInt(25))
	l := New(m, nil)

	res, err := l.Settle(context.Background(), 777, domain.SettlementLoss, "op1", "", nil)
	require.NoError(t, err)
	assert.True(t, res.BalanceAfter.Equal(decimal.NewFromInt(100)))
}

func TestSettlePushReturnsStake(t *testing.T) {
	m := memory.New()
	seedWagerAndCustomer(t, m, decimal.NewFromInt(100), decimal.NewFromInt(10), decimal.NewFromInt(25))
	l := New(m, nil)

	res, err := l.Settle(context.Background(), 777, domain.SettlementPush, "op1", "", nil)
	require.NoError(t, err)
	assert.True(t, res.BalanceAfter.Equal(decimal.NewFromInt(110)))
}

// S2 concurrent settle: exactly one succeeds, the other gets conflict.
func TestSettleConcurrentExclusivity(t *testing.T) {
	m := memory.New()
	seedWagerAndCustomer(t, m, decimal.NewFromInt(100), decimal.NewFromInt(10), decimal.NewFromInt(25))
	l := New(m, nil)

	var wg sync.WaitGroup
	results := make([]error, 2)
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, results[0] = l.Settle(context.Background(), 777, domain.SettlementWin, "op1", "", nil)
	}()
	go func() {
		defer wg.Done()
		_, results[1] = l.Settle(context.Background(), 777, domain.SettlementLoss, "op2", "", nil)
	}()
	wg.Wait()

	successes, conflicts := 0, 0
	for _, err := range results {
		if err == nil {
			successes++
			continue
		}
		require.Equal(t, apperrors.KindConflict, apperrors.GetKind(err))
		conflicts++
	}
	assert.Equal(t, 1, successes)
	assert.Equal(t, 1, conflicts)

	entries, err := m.SettlementsList(context.Background(), domain.SettlementFilter{})
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestSettleAlreadyTerminalReturnsConflict(t *testing.T) {
	m := memory.New()
	seedWagerAndCustomer(t, m, decimal.NewFromInt(100), decimal.NewFromInt(10), decimal.NewFromInt(25))
	l := New(m, nil)

	_, err := l.Settle(context.Background(), 777, domain.SettlementWin, "op1", "", nil)
	require.NoError(t, err)

	_, err = l.Settle(context.Background(), 777, domain.SettlementLoss, "op2", "", nil)
	require.Error(t, err)
	assert.Equal(t, apperrors.KindConflict, apperrors.GetKind(err))
}

func TestSettleUnknownWagerIsNotFound(t *testing.T) {
	m := memory.New()
	l := New(m, nil)

	_, err := l.Settle(context.Background(), 9999, domain.SettlementWin, "op1", "", nil)
	require.Error(t, err)
	assert.Equal(t, apperrors.KindNotFound, apperrors.GetKind(err))
}

func TestSettleInvalidKindIsValidationError(t *testing.T) {
	m := memory.New()
	seedWagerAndCustomer(t, m, decimal.NewFromInt(100), decimal.NewFromInt(10), decimal.NewFromInt(25))
	l := New(m, nil)

	_, err := l.Settle(context.Background(), 777, domain.SettlementPending, "op1", "", nil)
	require.Error(t, err)
	assert.Equal(t, apperrors.KindValidation, apperrors.GetKind(err))
}

func TestBulkSettleIndependentOutcomes(t *testing.T) {
	m := memory.New()
	m.SeedCustomer(domain.Customer{CustomerID: "cust-1", AgentID: "agent-1", Balance: decimal.NewFromInt(100)})
	m.SeedWager(domain.Wager{WagerNumber: 1, CustomerID: "cust-1", AgentID: "agent-1", AmountWagered: decimal.NewFromInt(10), ToWin: decimal.NewFromInt(20), SettlementStatus: domain.SettlementPending, PlacedAt: time.Now()})
	m.SeedWager(domain.Wager{WagerNumber: 2, CustomerID: "cust-1", AgentID: "agent-1", AmountWagered: decimal.NewFromInt(5), ToWin: decimal.NewFromInt(5), SettlementStatus: domain.SettlementWin, PlacedAt: time.Now()})

	l := New(m, nil)
	summary, err := l.BulkSettle(context.Background(), []domain.BulkSettleItem{
		{WagerNumber: 1, Type: domain.SettlementWin},
		{WagerNumber: 2, Type: domain.SettlementWin},
		{WagerNumber: 999, Type: domain.SettlementWin},
	}, "op1", "bulk note")
	require.NoError(t, err)
	assert.Equal(t, 3, summary.TotalCount)
	assert.Equal(t, 1, summary.SucceededCount)
	assert.Equal(t, 2, summary.FailedCount)
	assert.NotEmpty(t, summary.BatchID)
}

func TestSettlementLagReportsSinceLastSettle(t *testing.T) {
	m := memory.New()
	seedWagerAndCustomer(t, m, decimal.NewFromInt(100), decimal.NewFromInt(10), decimal.NewFromInt(25))
	l := New(m, nil)

	assert.Equal(t, time.Duration(0), l.SettlementLag())

	_, err := l.Settle(context.Background(), 777, domain.SettlementWin, "op1", "", nil)
	require.NoError(t, err)
	assert.Less(t, l.SettlementLag(), 2*time.Second)
}
