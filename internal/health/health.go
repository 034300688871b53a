// Package health implements Health & Metrics (C8): multi-check health
// composition with a weighted overall score, plus the Prometheus surface.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/brightline-ops/bookcore/pkg/logger"
)

// Status is one check's disposition. The overall status is the worst
// individual status; the overall score is a weighted mean.
type Status string

const (
	StatusOK      Status = "ok"
	StatusWarning Status = "warning"
	StatusError   Status = "error"
)

var statusRank = map[Status]int{StatusOK: 0, StatusWarning: 1, StatusError: 2}

// worse returns the more severe of two statuses.
func worse(a, b Status) Status {
	if statusRank[b] > statusRank[a] {
		return b
	}
	return a
}

// CheckResult is one check's outcome: a status plus a score in [0,100].
type CheckResult struct {
	Status Status `json:"status"`
	Score  int    `json:"score"`
	Detail string `json:"detail,omitempty"`
}

// CheckFunc evaluates one aspect of the system's health.
type CheckFunc func(ctx context.Context) CheckResult

type check struct {
	name   string
	weight float64
	fn     CheckFunc
}

// Report is the stable JSON shape consumed by ops dashboards.
type Report struct {
	Status    Status                 `json:"status"`
	Score     int                    `json:"score"`
	Timestamp string                 `json:"timestamp"`
	Uptime    string                 `json:"uptime"`
	Checks    map[string]CheckResult `json:"checks"`
}

// Checker composes registered checks into an overall report.
type Checker struct {
	mu        sync.RWMutex
	checks    []check
	startTime time.Time
	log       *logger.Logger
}

// NewChecker creates an empty Checker.
func NewChecker(log *logger.Logger) *Checker {
	if log == nil {
		log = logger.NewFromEnv("health")
	}
	return &Checker{startTime: time.Now(), log: log}
}

// Register adds a named, weighted check. Weights are relative; a zero or
// negative weight is treated as 1.
func (c *Checker) Register(name string, weight float64, fn CheckFunc) {
	if weight <= 0 {
		weight = 1
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks = append(c.checks, check{name: name, weight: weight, fn: fn})
}

// Evaluate runs every registered check and composes the report. Checks run
// sequentially; each gets the caller's ctx, so a store outage surfaces as
// that check's error rather than hanging the whole report.
func (c *Checker) Evaluate(ctx context.Context) Report {
	c.mu.RLock()
	checks := append([]check(nil), c.checks...)
	start := c.startTime
	c.mu.RUnlock()

	report := Report{
		Status:    StatusOK,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Uptime:    time.Since(start).Round(time.Second).String(),
		Checks:    make(map[string]CheckResult, len(checks)),
	}

	var weightedSum, totalWeight float64
	for _, ch := range checks {
		res := ch.fn(ctx)
		if res.Score < 0 {
			res.Score = 0
		}
		if res.Score > 100 {
			res.Score = 100
		}
		report.Checks[ch.name] = res
		report.Status = worse(report.Status, res.Status)
		weightedSum += float64(res.Score) * ch.weight
		totalWeight += ch.weight
	}
	if totalWeight > 0 {
		report.Score = int(weightedSum / totalWeight)
	} else {
		report.Score = 100
	}
	return report
}

// Handler serves the report as JSON; an error overall status maps to 503
// (a warning still answers 200) so load balancers can act on it directly.
func (c *Checker) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report := c.Evaluate(r.Context())
		w.Header().Set("Content-Type", "application/json")
		if report.Status == StatusError {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		if err := json.NewEncoder(w).Encode(report); err != nil {
			c.log.WithError(err).Warn("health report encode failed")
		}
	}
}

// CheckNames returns the registered check names, sorted, for tests and the
// ops surface.
func (c *Checker) CheckNames() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.checks))
	for _, ch := range c.checks {
		names = append(names, ch.name)
	}
	sort.Strings(names)
	return names
}
