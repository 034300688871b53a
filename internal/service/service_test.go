package service

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brightline-ops/bookcore/internal/apperrors"
	"github.com/brightline-ops/bookcore/internal/cache"
	"github.com/brightline-ops/bookcore/internal/domain"
	"github.com/brightline-ops/bookcore/internal/health"
	"github.com/brightline-ops/bookcore/internal/ledger"
	"github.com/brightline-ops/bookcore/internal/livepush"
	"github.com/brightline-ops/bookcore/internal/matching"
	"github.com/brightline-ops/bookcore/internal/resilience"
	"github.com/brightline-ops/bookcore/internal/store/memory"
	"github.com/brightline-ops/bookcore/internal/upstream"
)

func principal(role domain.Role) domain.AuthPrincipal {
	return domain.AuthPrincipal{UserID: "u-1", Username: "op1", Role: role}
}

func newTestService(t *testing.T, upstreamHandler http.HandlerFunc) (*Service, *memory.Memory, func()) {
	t.Helper()
	m := memory.New()

	var srv *httptest.Server
	baseURL := "http://unreachable.invalid"
	cleanup := func() {}
	if upstreamHandler != nil {
		srv = httptest.NewServer(upstreamHandler)
		baseURL = srv.URL
		cleanup = srv.Close
	}

	c := cache.New(time.Minute, nil)
	up := upstream.New(baseURL, "tok", "", resilience.BreakerConfig{Fails: 100, Window: time.Minute, Cooldown: time.Second}, c, nil)
	lg := ledger.New(m, nil)
	eng := matching.New(m, matching.Config{}, nil)
	hub := livepush.NewHub(4)
	agg := livepush.NewAggregator(hub, m, eng, c, time.Second, nil)
	checker := health.NewChecker(nil)
	checker.Register("store", 1, health.StoreCheck(m))

	svc := New(up, m, lg, eng, agg, checker, nil)
	// Tighten retry backoff so degraded-path tests stay fast.
	svc.retryCfg = resilience.RetryConfig{MaxAttempts: 2, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 1}
	return svc, m, cleanup
}

func TestSettleRequiresManager(t *testing.T) {
	svc, m, cleanup := newTestService(t, nil)
	defer cleanup()
	m.SeedCustomer(domain.Customer{CustomerID: "cust-1", AgentID: "agent-1", Balance: decimal.NewFromInt(100)})
	m.SeedWager(domain.Wager{WagerNumber: 777, CustomerID: "cust-1", AgentID: "agent-1", AmountWagered: decimal.NewFromInt(10), ToWin: decimal.NewFromInt(25), SettlementStatus: domain.SettlementPending, PlacedAt: time.Now()})

	_, err := svc.Settle(context.Background(), principal(domain.RoleAgent), 777, domain.SettlementWin, "")
	require.Error(t, err)
	assert.Equal(t, apperrors.KindAuth, apperrors.GetKind(err))

	res, err := svc.Settle(context.Background(), principal(domain.RoleManager), 777, domain.SettlementWin, "")
	require.NoError(t, err)
	assert.True(t, res.BalanceAfter.Equal(decimal.NewFromInt(125)))
}

func TestBulkSettleRejectsEmpty(t *testing.T) {
	svc, _, cleanup := newTestService(t, nil)
	defer cleanup()

	_, err := svc.BulkSettle(context.Background(), principal(domain.RoleAdmin), nil, "")
	require.Error(t, err)
	assert.Equal(t, apperrors.KindValidation, apperrors.GetKind(err))
}

func TestEnqueueAndRunMatcher(t *testing.T) {
	svc, m, cleanup := newTestService(t, nil)
	defer cleanup()
	m.SeedCustomer(domain.Customer{CustomerID: "cust-1", AgentID: "agent-1", Balance: decimal.NewFromInt(500)})

	w, err := svc.EnqueueWithdrawal(context.Background(), principal(domain.RoleAgent), domain.QueueItem{
		CustomerID: "cust-1", Amount: decimal.NewFromInt(100), PaymentMethod: "ACH", Priority: 1,
	})
	require.NoError(t, err)

	d, err := svc.EnqueueDeposit(context.Background(), principal(domain.RoleAgent), domain.QueueItem{
		CustomerID: "cust-2", Amount: decimal.NewFromInt(100), PaymentMethod: "ACH", Priority: 1,
	})
	require.NoError(t, err)

	// The enqueue-triggered pass already paired them.
	wItem, err := m.QueueGet(context.Background(), w.ID)
	require.NoError(t, err)
	dItem, err := m.QueueGet(context.Background(), d.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.QueueMatched, wItem.Status)
	assert.Equal(t, domain.QueueMatched, dItem.Status)

	stats, err := svc.Stats(context.Background(), principal(domain.RoleViewer))
	require.NoError(t, err)
	assert.Equal(t, 1, stats.WithdrawalsByStatus[domain.QueueMatched])
}

func TestEnqueueRequiresAgentRole(t *testing.T) {
	svc, _, cleanup := newTestService(t, nil)
	defer cleanup()

	_, err := svc.EnqueueDeposit(context.Background(), principal(domain.RoleViewer), domain.QueueItem{
		CustomerID: "cust-1", Amount: decimal.NewFromInt(10), PaymentMethod: "ACH",
	})
	require.Error(t, err)
	assert.Equal(t, apperrors.KindAuth, apperrors.GetKind(err))
}

func TestFetchOperationServesUpstream(t *testing.T) {
	svc, _, cleanup := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"PENDING": [{"wagerNumber": 1}]}`))
	})
	defer cleanup()

	res, err := svc.FetchOperation(context.Background(), principal(domain.RoleViewer), "getPending", nil)
	require.NoError(t, err)
	assert.Equal(t, SourceUpstream, res.Source)
	assert.False(t, res.Degraded)
}

func TestFetchOperationDegradesToLocalStore(t *testing.T) {
	svc, m, cleanup := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	defer cleanup()
	m.SeedCustomer(domain.Customer{CustomerID: "cust-1", AgentID: "agent-1", Balance: decimal.NewFromInt(50)})

	res, err := svc.FetchOperation(context.Background(), principal(domain.RoleViewer), "getCustomerAdmin", nil)
	require.NoError(t, err)
	assert.Equal(t, SourceLocal, res.Source)
	assert.True(t, res.Degraded)

	customers, ok := res.Value.([]domain.Customer)
	require.True(t, ok)
	require.Len(t, customers, 1)
	assert.Equal(t, "cust-1", customers[0].CustomerID)
}

func TestFetchOperationWithoutFallbackSurfacesUpstreamError(t *testing.T) {
	svc, _, cleanup := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	defer cleanup()

	_, err := svc.FetchOperation(context.Background(), principal(domain.RoleViewer), "getLiveActivity", nil)
	require.Error(t, err)
	assert.Equal(t, apperrors.KindUpstream, apperrors.GetKind(err))
}

func TestFetchOperationEnforcesAgentScope(t *testing.T) {
	svc, _, cleanup := newTestService(t, nil)
	defer cleanup()

	scope := "agent-1"
	p := domain.AuthPrincipal{UserID: "u-1", Role: domain.RoleAgent, AgentScope: &scope}

	_, err := svc.FetchOperation(context.Background(), p, "getPending", map[string]string{"agentID": "agent-2"})
	require.Error(t, err)
	assert.Equal(t, apperrors.KindAuth, apperrors.GetKind(err))
}

func TestHealthReportsRegisteredChecks(t *testing.T) {
	svc, _, cleanup := newTestService(t, nil)
	defer cleanup()

	report, err := svc.Health(context.Background(), principal(domain.RoleViewer))
	require.NoError(t, err)
	assert.Equal(t, health.StatusOK, report.Status)
	assert.Contains(t, report.Checks, "store")
}

func TestSubscribeLiveDeliversInitialEvents(t *testing.T) {
	svc, _, cleanup := newTestService(t, nil)
	defer cleanup()

	sub, err := svc.SubscribeLive(context.Background(), principal(domain.RoleViewer))
	require.NoError(t, err)
	defer svc.Unsubscribe(sub)

	evt := <-sub.Events()
	assert.Equal(t, livepush.EventConnected, evt.Type)
	evt = <-sub.Events()
	assert.Equal(t, livepush.EventSnapshot, evt.Type)
	require.NotNil(t, evt.Snapshot)
}
