package upstream

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"context"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brightline-ops/bookcore/internal/apperrors"
	"github.com/brightline-ops/bookcore/internal/cache"
	"github.com/brightline-ops/bookcore/internal/resilience"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	c := New(srv.URL, "tok-1", "session=abc", resilience.BreakerConfig{Fails: 2, Window: time.Minute, Cooldown: time.Second}, nil, nil)
	return c, srv
}

func TestCallParsesSingleFieldEnvelope(t *testing.T) {
	var gotForm string
	c, srv := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		gotForm = r.Form.Get("operation")
		assert.Equal(t, "Bearer tok-1", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"PENDING": [{"wagerNumber": 1}]}`))
	})
	defer srv.Close()

	value, err := c.Call(context.Background(), "getPending", map[string]string{"agentID": "agent-1"}, CallOpts{})
	require.NoError(t, err)
	assert.Equal(t, "getPending", gotForm)

	rows, ok := value.([]interface{})
	require.True(t, ok)
	assert.Len(t, rows, 1)
}

func TestCallCombinesMultiFieldEnvelope(t *testing.T) {
	c, srv := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"GENERAL": {"wins": 1}, "EXTRA": {"bonus": 2}}`))
	})
	defer srv.Close()

	value, err := c.Call(context.Background(), "getWeeklyFigureByAgentLite", nil, CallOpts{})
	require.NoError(t, err)

	combined, ok := value.(map[string]interface{})
	require.True(t, ok)
	assert.Contains(t, combined, "GENERAL")
	assert.Contains(t, combined, "EXTRA")
}

func TestCallExtractsNestedEnvelopePath(t *testing.T) {
	c, srv := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"INFO": {"LIST": [{"agentID": "AG1"}, {"agentID": "AG2"}]}, "LIST": "decoy"}`))
	})
	defer srv.Close()

	value, err := c.Call(context.Background(), "getAgentPerformance", nil, CallOpts{})
	require.NoError(t, err)

	rows, ok := value.([]interface{})
	require.True(t, ok)
	require.Len(t, rows, 2)
	first, ok := rows[0].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "AG1", first["agentID"])
}

func TestCallUnknownOperationIsValidationError(t *testing.T) {
	c := New("http://unused.invalid", "tok", "", resilience.BreakerConfig{}, nil, nil)
	_, err := c.Call(context.Background(), "notARealOperation", nil, CallOpts{})
	require.Error(t, err)
	assert.Equal(t, apperrors.KindValidation, apperrors.GetKind(err))
}

func TestCallClassifiesNon2xxAsUpstreamError(t *testing.T) {
	c, srv := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("boom"))
	})
	defer srv.Close()

	_, err := c.Call(context.Background(), "getPending", nil, CallOpts{})
	require.Error(t, err)
	assert.Equal(t, apperrors.KindUpstream, apperrors.GetKind(err))
}

// S5 cache hit/miss: the second call within the TTL never reaches the
// network, and the cache records one miss then one hit.
func TestCallSecondHitServedFromCache(t *testing.T) {
	requests := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ACTIVITY": []}`))
	}))
	defer srv.Close()

	ttlCache := cache.New(time.Minute, nil)
	c := New(srv.URL, "tok", "", resilience.BreakerConfig{}, ttlCache, nil)

	_, err := c.Call(context.Background(), "getLiveActivity", nil, CallOpts{UseCache: true})
	require.NoError(t, err)
	_, err = c.Call(context.Background(), "getLiveActivity", nil, CallOpts{UseCache: true})
	require.NoError(t, err)

	assert.Equal(t, 1, requests)
	stats := ttlCache.Stats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
}

func TestCallTripsBreakerAfterRepeatedFailures(t *testing.T) {
	c, srv := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	defer srv.Close()

	for i := 0; i < 2; i++ {
		_, err := c.Call(context.Background(), "getPending", nil, CallOpts{})
		require.Error(t, err)
	}

	_, err := c.Call(context.Background(), "getPending", nil, CallOpts{})
	require.Error(t, err)
	svcErr := apperrors.GetServiceError(err)
	require.NotNil(t, svcErr)
	assert.Equal(t, string(apperrors.UpstreamBreakerOpen), svcErr.Details["upstream_kind"])

	states := c.BreakerStates()
	assert.Equal(t, resilience.StateOpen, states["getPending"])
}
