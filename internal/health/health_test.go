package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brightline-ops/bookcore/internal/cache"
	"github.com/brightline-ops/bookcore/internal/resilience"
)

func staticCheck(status Status, score int) CheckFunc {
	return func(_ context.Context) CheckResult {
		return CheckResult{Status: status, Score: score}
	}
}

func TestEvaluateWeightedMeanAndWorstStatus(t *testing.T) {
	c := NewChecker(nil)
	c.Register("a", 1, staticCheck(StatusOK, 100))
	c.Register("b", 3, staticCheck(StatusWarning, 40))

	report := c.Evaluate(context.Background())
	assert.Equal(t, StatusWarning, report.Status)
	// (100*1 + 40*3) / 4 = 55
	assert.Equal(t, 55, report.Score)
	assert.Len(t, report.Checks, 2)
}

func TestEvaluateWorstStatusIsError(t *testing.T) {
	c := NewChecker(nil)
	c.Register("ok", 1, staticCheck(StatusOK, 100))
	c.Register("warn", 1, staticCheck(StatusWarning, 60))
	c.Register("err", 1, staticCheck(StatusError, 0))

	report := c.Evaluate(context.Background())
	assert.Equal(t, StatusError, report.Status)
}

func TestEvaluateEmptyCheckerIsHealthy(t *testing.T) {
	c := NewChecker(nil)
	report := c.Evaluate(context.Background())
	assert.Equal(t, StatusOK, report.Status)
	assert.Equal(t, 100, report.Score)
}

func TestHandlerServesJSONAnd503OnError(t *testing.T) {
	c := NewChecker(nil)
	c.Register("down", 1, staticCheck(StatusError, 0))

	rec := httptest.NewRecorder()
	c.Handler()(rec, httptest.NewRequest("GET", "/healthz", nil))

	assert.Equal(t, 503, rec.Code)
	var report Report
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, StatusError, report.Status)
	assert.Contains(t, report.Checks, "down")
}

type fakePinger struct{ err error }

func (f fakePinger) Ping(_ context.Context) error { return f.err }

func TestStoreCheck(t *testing.T) {
	ok := StoreCheck(fakePinger{})(context.Background())
	assert.Equal(t, StatusOK, ok.Status)
	assert.Equal(t, 100, ok.Score)

	down := StoreCheck(fakePinger{err: errors.New("connection refused")})(context.Background())
	assert.Equal(t, StatusError, down.Status)
	assert.Equal(t, 0, down.Score)
}

func TestBreakerCheck(t *testing.T) {
	states := map[string]resilience.State{}
	fn := BreakerCheck(func() map[string]resilience.State { return states })

	assert.Equal(t, StatusOK, fn(context.Background()).Status)

	states = map[string]resilience.State{"getPending": resilience.StateClosed, "getLiveActivity": resilience.StateOpen}
	res := fn(context.Background())
	assert.Equal(t, StatusWarning, res.Status)
	assert.Equal(t, 50, res.Score)

	states = map[string]resilience.State{"getPending": resilience.StateOpen}
	assert.Equal(t, StatusError, fn(context.Background()).Status)
}

func TestCacheCheck(t *testing.T) {
	c := cache.New(time.Minute, nil)
	fn := CacheCheck(c.Stats)

	// Cold cache scores perfect.
	assert.Equal(t, 100, fn(context.Background()).Score)

	c.Put("k", 1, time.Minute)
	c.Get("k")
	c.Get("missing")
	res := fn(context.Background())
	assert.Equal(t, 50, res.Score)
	assert.Equal(t, StatusOK, res.Status)
}

func TestQueueDepthCheck(t *testing.T) {
	depth := 0
	fn := QueueDepthCheck(func(_ context.Context) (int, error) { return depth, nil }, 10)

	assert.Equal(t, StatusOK, fn(context.Background()).Status)

	depth = 10
	assert.Equal(t, StatusWarning, fn(context.Background()).Status)

	depth = 20
	assert.Equal(t, StatusError, fn(context.Background()).Status)
}

func TestSettlementLagCheck(t *testing.T) {
	lag := time.Duration(0)
	fn := SettlementLagCheck(func() time.Duration { return lag }, time.Minute)

	assert.Equal(t, StatusOK, fn(context.Background()).Status)

	lag = 90 * time.Second
	assert.Equal(t, StatusWarning, fn(context.Background()).Status)

	lag = 3 * time.Minute
	assert.Equal(t, StatusError, fn(context.Background()).Status)
}

func TestMetricsRegistryServes(t *testing.T) {
	m := NewMetrics(GaugeSources{
		CacheSize: func() float64 { return 3 },
	})
	m.RecordUpstreamCall("getPending", "success", 12*time.Millisecond)
	m.RecordMatcherPass(2)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	assert.Equal(t, 200, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "bookcore_upstream_calls_total")
	assert.Contains(t, body, "bookcore_matcher_passes_total")
	assert.Contains(t, body, "bookcore_cache_entries")
}
