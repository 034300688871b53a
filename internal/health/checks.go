package health

import (
	"context"
	"fmt"
	"time"

	"github.com/brightline-ops/bookcore/internal/cache"
	"github.com/brightline-ops/bookcore/internal/resilience"
)

// Pinger is the slice of the store adapter the reachability check needs.
type Pinger interface {
	Ping(ctx context.Context) error
}

// StoreCheck reports store reachability: a failed ping is an error with
// score zero, since every degraded path in the core leans on the store.
func StoreCheck(p Pinger) CheckFunc {
	return func(ctx context.Context) CheckResult {
		if err := p.Ping(ctx); err != nil {
			return CheckResult{Status: StatusError, Score: 0, Detail: err.Error()}
		}
		return CheckResult{Status: StatusOK, Score: 100}
	}
}

// BreakerCheck reports the upstream breaker state per operation. Any open
// breaker degrades the check to warning; all-open is an error.
func BreakerCheck(states func() map[string]resilience.State) CheckFunc {
	return func(_ context.Context) CheckResult {
		all := states()
		if len(all) == 0 {
			return CheckResult{Status: StatusOK, Score: 100, Detail: "no upstream calls yet"}
		}
		open := 0
		for _, s := range all {
			if s == resilience.StateOpen {
				open++
			}
		}
		switch {
		case open == 0:
			return CheckResult{Status: StatusOK, Score: 100}
		case open == len(all):
			return CheckResult{Status: StatusError, Score: 0, Detail: "all upstream operations skipped"}
		default:
			score := 100 - (open*100)/len(all)
			return CheckResult{
				Status: StatusWarning,
				Score:  score,
				Detail: fmt.Sprintf("%d of %d operations skipped", open, len(all)),
			}
		}
	}
}

// CacheCheck scores the cache hit rate directly: hit_rate * 100. A cold
// cache (no lookups yet) is healthy, not alarming.
func CacheCheck(stats func() cache.Stats) CheckFunc {
	return func(_ context.Context) CheckResult {
		s := stats()
		if s.Hits+s.Misses == 0 {
			return CheckResult{Status: StatusOK, Score: 100, Detail: "cache cold"}
		}
		score := int(s.HitRate * 100)
		status := StatusOK
		if score < 20 {
			status = StatusWarning
		}
		return CheckResult{
			Status: status,
			Score:  score,
			Detail: fmt.Sprintf("hits=%d misses=%d", s.Hits, s.Misses),
		}
	}
}

// QueueDepthCheck compares the matcher's pending depth against threshold:
// at or past the threshold is a warning, at or past double is an error.
func QueueDepthCheck(depth func(ctx context.Context) (int, error), threshold int) CheckFunc {
	if threshold <= 0 {
		threshold = 100
	}
	return func(ctx context.Context) CheckResult {
		d, err := depth(ctx)
		if err != nil {
			return CheckResult{Status: StatusError, Score: 0, Detail: err.Error()}
		}
		detail := fmt.Sprintf("pending=%d threshold=%d", d, threshold)
		switch {
		case d >= threshold*2:
			return CheckResult{Status: StatusError, Score: 0, Detail: detail}
		case d >= threshold:
			return CheckResult{Status: StatusWarning, Score: 50, Detail: detail}
		default:
			score := 100 - (d*50)/threshold
			return CheckResult{Status: StatusOK, Score: score, Detail: detail}
		}
	}
}

// SettlementLagCheck reports seconds since the last ledger append. Zero lag
// (nothing settled yet, or a settle just landed) is healthy; lag at or past
// warnAfter is a warning (score 50), and at or past twice that an error
// (score 0).
func SettlementLagCheck(lag func() time.Duration, warnAfter time.Duration) CheckFunc {
	if warnAfter <= 0 {
		warnAfter = 10 * time.Minute
	}
	return func(_ context.Context) CheckResult {
		l := lag()
		detail := fmt.Sprintf("lag=%s", l.Round(time.Second))
		switch {
		case l >= 2*warnAfter:
			return CheckResult{Status: StatusError, Score: 0, Detail: detail}
		case l >= warnAfter:
			return CheckResult{Status: StatusWarning, Score: 50, Detail: detail}
		default:
			return CheckResult{Status: StatusOK, Score: 100, Detail: detail}
		}
	}
}
