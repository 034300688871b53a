package livepush

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brightline-ops/bookcore/internal/domain"
	"github.com/brightline-ops/bookcore/internal/matching"
	"github.com/brightline-ops/bookcore/internal/store/memory"
)

func TestHubBroadcastDeliversToAllSubscribers(t *testing.T) {
	h := NewHub(4)
	s1 := h.Register()
	s2 := h.Register()
	assert.Equal(t, 2, h.SubscriberCount())

	delivered, dropped := h.Broadcast(Event{Type: EventSnapshot, Timestamp: time.Now()})
	assert.Equal(t, 2, delivered)
	assert.Equal(t, 0, dropped)

	<-s1.Events()
	<-s2.Events()
}

func TestHubBroadcastDropsOnFullBuffer(t *testing.T) {
	h := NewHub(1)
	sub := h.Register()

	_, _ = h.Broadcast(Event{Type: EventSnapshot, Timestamp: time.Now()})
	delivered, dropped := h.Broadcast(Event{Type: EventSnapshot, Timestamp: time.Now()})
	assert.Equal(t, 0, delivered)
	assert.Equal(t, 1, dropped)
	assert.Equal(t, int64(1), h.SlowConsumerCount())

	<-sub.Events()
}

// A slow subscriber that never drains caps at its buffer size and never
// blocks a fast subscriber or the broadcaster.
func TestSlowSubscriberNeverBlocksFastOne(t *testing.T) {
	h := NewHub(2)
	fast := h.Register()
	slow := h.Register()

	const ticks = 10
	for i := 0; i < ticks; i++ {
		h.Broadcast(Event{Type: EventSnapshot, Timestamp: time.Now()})
		<-fast.Events()
	}

	// The slow subscriber holds at most its buffer capacity.
	received := 0
	for {
		select {
		case <-slow.Events():
			received++
			continue
		default:
		}
		break
	}
	assert.Equal(t, 2, received)
	assert.Equal(t, int64(ticks-2), h.SlowConsumerCount())
}

func TestHubUnregisterClosesChannel(t *testing.T) {
	h := NewHub(4)
	sub := h.Register()
	h.Unregister(sub)
	assert.Equal(t, 0, h.SubscriberCount())

	_, ok := <-sub.Events()
	assert.False(t, ok)
}

func TestAggregatorConnectPrimesConnectedThenSnapshot(t *testing.T) {
	m := memory.New()
	m.SeedCustomer(domain.Customer{CustomerID: "cust-1", AgentID: "agent-1", Active: true, Balance: decimal.NewFromInt(100)})
	m.SeedWager(domain.Wager{WagerNumber: 1, CustomerID: "cust-1", AgentID: "agent-1", AmountWagered: decimal.NewFromInt(10), ToWin: decimal.NewFromInt(20), SettlementStatus: domain.SettlementPending, PlacedAt: time.Now().UTC()})

	hub := NewHub(4)
	engine := matching.New(m, matching.Config{Tick: time.Hour}, nil)
	agg := NewAggregator(hub, m, engine, nil, time.Hour, nil)

	sub, err := agg.Connect(context.Background())
	require.NoError(t, err)

	connected := <-sub.Events()
	assert.Equal(t, EventConnected, connected.Type)

	snapEvt := <-sub.Events()
	assert.Equal(t, EventSnapshot, snapEvt.Type)
	require.NotNil(t, snapEvt.Snapshot)
	assert.Equal(t, 1, snapEvt.Snapshot.KPI.ActivePlayers)
	assert.True(t, snapEvt.Snapshot.KPI.TotalLiability.Equal(decimal.NewFromInt(20)))
}

func TestAggregatorStartBroadcastsOnTick(t *testing.T) {
	m := memory.New()
	hub := NewHub(4)
	engine := matching.New(m, matching.Config{Tick: time.Hour}, nil)
	agg := NewAggregator(hub, m, engine, nil, 20*time.Millisecond, nil)

	sub := hub.Register()
	require.NoError(t, agg.Start(context.Background()))
	defer agg.Stop(context.Background())

	select {
	case evt := <-sub.Events():
		assert.Equal(t, EventSnapshot, evt.Type)
	case <-time.After(time.Second):
		t.Fatal("expected a snapshot broadcast within one second")
	}
}

func TestAggregatorStopBroadcastsTerminalAndCloses(t *testing.T) {
	m := memory.New()
	hub := NewHub(4)
	engine := matching.New(m, matching.Config{Tick: time.Hour}, nil)
	agg := NewAggregator(hub, m, engine, nil, time.Hour, nil)

	sub := hub.Register()
	require.NoError(t, agg.Start(context.Background()))
	require.NoError(t, agg.Stop(context.Background()))

	var sawTerminal bool
	for evt := range sub.Events() {
		if evt.Type == EventTerminal {
			sawTerminal = true
		}
	}
	assert.True(t, sawTerminal)
}
