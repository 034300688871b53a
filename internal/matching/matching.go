// Package matching implements the Matching Engine (C6): two priority
// queues (withdrawal, deposit), a scorer, and an atomic pairing pass.
// Grounded on the teacher's automation scheduler for ticker lifecycle
// (internal/app/services/automation.Scheduler) and the gas bank module's
// queue/transaction domain shapes for the pairing workflow.
package matching

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/brightline-ops/bookcore/internal/apperrors"
	"github.com/brightline-ops/bookcore/internal/domain"
	"github.com/brightline-ops/bookcore/internal/store"
	"github.com/brightline-ops/bookcore/internal/system"
	"github.com/brightline-ops/bookcore/pkg/logger"
)

var _ system.Service = (*Engine)(nil)

// Proximity and bonus constants from the spec §4.6 score function.
const (
	scorePaymentMatch    = 20
	scoreProximityTier1  = 30 // |w.amount - d.amount| < 10
	scoreProximityTier2  = 20 // < 50
	scoreProximityTier3  = 10 // < 100
	scoreCanCover        = 25 // w.amount <= d.amount
	defaultTick          = time.Second
	defaultMaxPendingTTL = 15 * time.Minute
	activityRingSize     = 20
)

var (
	tierOne   = decimal.NewFromInt(10)
	tierTwo   = decimal.NewFromInt(50)
	tierThree = decimal.NewFromInt(100)
)

// Config tunes the engine's background pass cadence and staleness window.
type Config struct {
	Tick              time.Duration
	PendingTTL        time.Duration
	MaxDepositsPerPass int // 0 = unbounded; bounds per-pass work for very large queues
}

// Stats is the snapshot returned by Stats().
type Stats struct {
	WithdrawalsByStatus map[domain.QueueStatus]int
	DepositsByStatus    map[domain.QueueStatus]int
	AverageWait         time.Duration
	PassCount           int64
}

// Engine is the matching engine (C6): in-memory ordering backed by the
// store adapter for durability and for the atomic pairing transition.
type Engine struct {
	store store.Store
	log   *logger.Logger
	cfg   Config

	mu        sync.Mutex
	activity  []domain.Activity
	passCount int64

	runMu   sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

// New constructs a matching Engine. Zero fields in cfg fall back to the
// spec's defaults (1s tick, 15m pending TTL).
func New(st store.Store, cfg Config, log *logger.Logger) *Engine {
	if cfg.Tick <= 0 {
		cfg.Tick = defaultTick
	}
	if cfg.PendingTTL <= 0 {
		cfg.PendingTTL = defaultMaxPendingTTL
	}
	if log == nil {
		log = logger.NewFromEnv("matching")
	}
	return &Engine{store: st, cfg: cfg, log: log}
}

// EnqueueWithdrawal validates the customer has sufficient balance, inserts
// the item as pending, and immediately runs a matching pass (spec §4.6:
// "Invoked on a timer ... and on every enqueue").
func (e *Engine) EnqueueWithdrawal(ctx context.Context, item domain.QueueItem) (domain.QueueItem, error) {
	if item.Amount.IsZero() || item.Amount.IsNegative() {
		return domain.QueueItem{}, apperrors.InvalidInput("amount", "must be positive")
	}
	customer, err := e.store.CustomerGet(ctx, item.CustomerID)
	if err != nil {
		return domain.QueueItem{}, err
	}
	if customer.Balance.LessThan(item.Amount) {
		return domain.QueueItem{}, apperrors.InvalidInput("amount", "exceeds customer balance")
	}

	item.Kind = domain.QueueWithdrawal
	item.Status = domain.QueuePending
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now().UTC()
	}
	inserted, err := e.store.QueueInsert(ctx, item)
	if err != nil {
		return domain.QueueItem{}, apperrors.StoreError("queue_insert", err)
	}

	if _, err := e.RunMatchingPass(ctx); err != nil {
		e.log.WithError(err).Warn("matching pass after enqueue_withdrawal failed")
	}
	return inserted, nil
}

// EnqueueDeposit inserts a deposit as pending and runs a matching pass.
func (e *Engine) EnqueueDeposit(ctx context.Context, item domain.QueueItem) (domain.QueueItem, error) {
	if item.Amount.IsZero() || item.Amount.IsNegative() {
		return domain.QueueItem{}, apperrors.InvalidInput("amount", "must be positive")
	}

	item.Kind = domain.QueueDeposit
	item.Status = domain.QueuePending
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now().UTC()
	}
	inserted, err := e.store.QueueInsert(ctx, item)
	if err != nil {
		return domain.QueueItem{}, apperrors.StoreError("queue_insert", err)
	}

	if _, err := e.RunMatchingPass(ctx); err != nil {
		e.log.WithError(err).Warn("matching pass after enqueue_deposit failed")
	}
	return inserted, nil
}

// candidateScore implements spec §4.6's score function. ok=false means the
// pair is rejected outright (incompatible payment method or the withdrawal
// exceeds the deposit).
func candidateScore(w, d domain.QueueItem) (int, bool) {
	if w.PaymentMethod != d.PaymentMethod {
		return 0, false
	}
	if w.Amount.GreaterThan(d.Amount) {
		return 0, false
	}

	score := scorePaymentMatch
	diff := w.Amount.Sub(d.Amount).Abs()
	switch {
	case diff.LessThan(tierOne):
		score += scoreProximityTier1
	case diff.LessThan(tierTwo):
		score += scoreProximityTier2
	case diff.LessThan(tierThree):
		score += scoreProximityTier3
	}
	score += scoreCanCover
	return score, true
}

// betterCandidate reports whether candidate d2 should replace the current
// best d1 for withdrawal w, applying spec §4.6's tie-break order: smaller
// |amount diff|, then earlier created_at, then lexicographically smaller id.
func betterCandidate(w, d1, d2 domain.QueueItem, score1, score2 int) bool {
	if score2 != score1 {
		return score2 > score1
	}
	diff1 := w.Amount.Sub(d1.Amount).Abs()
	diff2 := w.Amount.Sub(d2.Amount).Abs()
	if !diff1.Equal(diff2) {
		return diff2.LessThan(diff1)
	}
	if !d1.CreatedAt.Equal(d2.CreatedAt) {
		return d2.CreatedAt.Before(d1.CreatedAt)
	}
	return d2.ID < d1.ID
}

// RunMatchingPass executes one pairing pass over the pending queues:
// snapshot, score, pick best candidate per withdrawal, attempt an atomic
// pairing conditioned on both items still being pending. Returns the
// number of new matches created in this pass.
func (e *Engine) RunMatchingPass(ctx context.Context) (int, error) {
	pendingWithdrawal := domain.QueueWithdrawal
	pendingDeposit := domain.QueueDeposit
	pendingStatus := domain.QueuePending

	withdrawals, err := e.store.QueueList(ctx, domain.QueueFilter{Kind: &pendingWithdrawal, Status: &pendingStatus})
	if err != nil {
		return 0, apperrors.StoreError("queue_list", err)
	}
	deposits, err := e.store.QueueList(ctx, domain.QueueFilter{Kind: &pendingDeposit, Status: &pendingStatus})
	if err != nil {
		return 0, apperrors.StoreError("queue_list", err)
	}
	if e.cfg.MaxDepositsPerPass > 0 && len(deposits) > e.cfg.MaxDepositsPerPass {
		deposits = deposits[:e.cfg.MaxDepositsPerPass]
	}

	removed := make(map[string]bool, len(deposits))
	matched := 0

	for _, w := range withdrawals {
		var best *domain.QueueItem
		bestScore := -1
		for i := range deposits {
			d := deposits[i]
			if removed[d.ID] {
				continue
			}
			s, ok := candidateScore(w, d)
			if !ok {
				continue
			}
			if best == nil || betterCandidate(w, *best, d, bestScore, s) {
				dCopy := d
				best = &dCopy
				bestScore = s
			}
		}
		if best == nil {
			continue
		}

		amount := w.Amount
		if best.Amount.LessThan(amount) {
			amount = best.Amount
		}
		match := domain.Match{
			ID:           uuid.NewString(),
			WithdrawalID: w.ID,
			DepositID:    best.ID,
			Amount:       amount,
			Score:        bestScore,
			Status:       domain.MatchPending,
			CreatedAt:    time.Now().UTC(),
		}
		created, ok, err := e.store.PairItems(ctx, w.ID, best.ID, match)
		if err != nil {
			e.log.WithError(err).Warn("pair_items failed")
			continue
		}
		if !ok {
			// A concurrent change invalidated one of the two items; skip
			// this withdrawal for this pass rather than retry.
			continue
		}

		removed[best.ID] = true
		matched++
		e.log.LogMatch(created.ID, created.WithdrawalID, created.DepositID, created.Score)
		e.recordActivity(domain.Activity{
			Timestamp: created.CreatedAt,
			Kind:      "match",
			Message:   "withdrawal matched with deposit",
		})
	}

	e.mu.Lock()
	e.passCount++
	e.mu.Unlock()

	if err := e.expireStaleMatches(ctx); err != nil {
		e.log.WithError(err).Warn("expire stale matches failed")
	}

	return matched, nil
}

// expireStaleMatches auto-fails any match that has sat in "pending" longer
// than the configured TTL, returning both items to pending.
func (e *Engine) expireStaleMatches(ctx context.Context) error {
	// The store does not expose a direct "list matches by status" query in
	// the narrow C3 interface; stale detection instead piggybacks on the
	// pending queue items, whose matched_with points at the paired item.
	// A match record itself is looked up lazily by StartProcessing/
	// FailMatch callers; periodic staleness here is a best-effort sweep
	// driven off queue items still in "matched" past the TTL.
	matchedStatus := domain.QueueMatched
	items, err := e.store.QueueList(ctx, domain.QueueFilter{Status: &matchedStatus})
	if err != nil {
		return apperrors.StoreError("queue_list", err)
	}
	cutoff := time.Now().Add(-e.cfg.PendingTTL)
	seen := make(map[string]bool)
	for _, item := range items {
		if item.MatchedWith == nil || item.CreatedAt.After(cutoff) {
			continue
		}
		if seen[item.ID] {
			continue
		}
		seen[item.ID] = true
		seen[*item.MatchedWith] = true
		if _, err := e.store.QueueUpdateStatus(ctx, item.ID, domain.QueuePending, nil); err != nil {
			e.log.WithError(err).Warn("failed to release stale queue item")
		}
	}
	return nil
}

// CompleteMatch moves a match from processing to completed and both of its
// queue items from processing to completed.
func (e *Engine) CompleteMatch(ctx context.Context, matchID, note string) (domain.Match, error) {
	m, err := e.store.MatchGet(ctx, matchID)
	if err != nil {
		return domain.Match{}, err
	}
	if m.Status != domain.MatchProcessing {
		return domain.Match{}, apperrors.Conflict("match is not processing")
	}

	now := time.Now().UTC()
	updated, err := e.store.MatchUpdateStatus(ctx, matchID, domain.MatchCompleted, &now, note)
	if err != nil {
		return domain.Match{}, apperrors.StoreError("match_update_status", err)
	}
	if _, err := e.store.QueueUpdateStatus(ctx, updated.WithdrawalID, domain.QueueCompleted, nil); err != nil {
		return domain.Match{}, apperrors.StoreError("queue_update_status", err)
	}
	if _, err := e.store.QueueUpdateStatus(ctx, updated.DepositID, domain.QueueCompleted, nil); err != nil {
		return domain.Match{}, apperrors.StoreError("queue_update_status", err)
	}

	e.recordActivity(domain.Activity{Timestamp: now, Kind: "match_completed", Message: "match completed"})
	return updated, nil
}

// StartProcessing moves a match from pending to processing, representing
// an operator beginning fulfillment (spec §4.6's completion workflow).
func (e *Engine) StartProcessing(ctx context.Context, matchID string) (domain.Match, error) {
	m, err := e.store.MatchGet(ctx, matchID)
	if err != nil {
		return domain.Match{}, err
	}
	if m.Status != domain.MatchPending {
		return domain.Match{}, apperrors.Conflict("match is not pending")
	}
	updated, err := e.store.MatchUpdateStatus(ctx, matchID, domain.MatchProcessing, nil, "")
	if err != nil {
		return domain.Match{}, apperrors.StoreError("match_update_status", err)
	}
	if _, err := e.store.QueueUpdateStatus(ctx, updated.WithdrawalID, domain.QueueProcessing, nil); err != nil {
		return domain.Match{}, apperrors.StoreError("queue_update_status", err)
	}
	if _, err := e.store.QueueUpdateStatus(ctx, updated.DepositID, domain.QueueProcessing, nil); err != nil {
		return domain.Match{}, apperrors.StoreError("queue_update_status", err)
	}
	return updated, nil
}

// FailMatch moves a match to failed. When retryable, both queue items
// return to pending so a future pass can re-match them; otherwise they are
// marked failed alongside the match.
func (e *Engine) FailMatch(ctx context.Context, matchID, reason string, retryable bool) (domain.Match, error) {
	m, err := e.store.MatchGet(ctx, matchID)
	if err != nil {
		return domain.Match{}, err
	}
	updated, err := e.store.MatchUpdateStatus(ctx, matchID, domain.MatchFailed, nil, reason)
	if err != nil {
		return domain.Match{}, apperrors.StoreError("match_update_status", err)
	}

	nextStatus := domain.QueuePending
	if !retryable {
		nextStatus = domain.QueueFailed
	}
	if _, err := e.store.QueueUpdateStatus(ctx, m.WithdrawalID, nextStatus, nil); err != nil {
		return domain.Match{}, apperrors.StoreError("queue_update_status", err)
	}
	if _, err := e.store.QueueUpdateStatus(ctx, m.DepositID, nextStatus, nil); err != nil {
		return domain.Match{}, apperrors.StoreError("queue_update_status", err)
	}

	e.recordActivity(domain.Activity{Timestamp: time.Now().UTC(), Kind: "match_failed", Message: reason})
	return updated, nil
}

// Stats aggregates queue counts by status and the matcher pass count,
// served through the service facade's Stats call.
func (e *Engine) Stats(ctx context.Context) (Stats, error) {
	withdrawals, err := e.store.QueueList(ctx, domain.QueueFilter{Kind: kindPtr(domain.QueueWithdrawal)})
	if err != nil {
		return Stats{}, apperrors.StoreError("queue_list", err)
	}
	deposits, err := e.store.QueueList(ctx, domain.QueueFilter{Kind: kindPtr(domain.QueueDeposit)})
	if err != nil {
		return Stats{}, apperrors.StoreError("queue_list", err)
	}

	withdrawalCounts := countByStatus(withdrawals)
	depositCounts := countByStatus(deposits)

	var totalWait time.Duration
	var waitSamples int
	now := time.Now()
	for _, items := range [][]domain.QueueItem{withdrawals, deposits} {
		for _, item := range items {
			if item.Status == domain.QueuePending {
				totalWait += now.Sub(item.CreatedAt)
				waitSamples++
			}
		}
	}
	avgWait := time.Duration(0)
	if waitSamples > 0 {
		avgWait = totalWait / time.Duration(waitSamples)
	}

	e.mu.Lock()
	passes := e.passCount
	e.mu.Unlock()

	return Stats{
		WithdrawalsByStatus: withdrawalCounts,
		DepositsByStatus:    depositCounts,
		AverageWait:         avgWait,
		PassCount:           passes,
	}, nil
}

func kindPtr(k domain.QueueKind) *domain.QueueKind { return &k }

func countByStatus(items []domain.QueueItem) map[domain.QueueStatus]int {
	out := make(map[domain.QueueStatus]int)
	for _, item := range items {
		out[item.Status]++
	}
	return out
}

// RecentActivity returns the most recent matcher events, newest first,
// bounded to activityRingSize. Consumed by the live fabric (C7).
func (e *Engine) RecentActivity() []domain.Activity {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]domain.Activity, len(e.activity))
	copy(out, e.activity)
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	return out
}

func (e *Engine) recordActivity(a domain.Activity) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.activity = append(e.activity, a)
	if len(e.activity) > activityRingSize {
		e.activity = e.activity[len(e.activity)-activityRingSize:]
	}
}

// QueueDepth returns the number of pending items across both queues, used
// by the health surface's "matcher queue depth vs. threshold" check.
func (e *Engine) QueueDepth(ctx context.Context) (int, error) {
	pendingStatus := domain.QueuePending
	withdrawals, err := e.store.QueueList(ctx, domain.QueueFilter{Status: &pendingStatus})
	if err != nil {
		return 0, apperrors.StoreError("queue_list", err)
	}
	return len(withdrawals), nil
}

// Name identifies the engine as a lifecycle service.
func (e *Engine) Name() string { return "matching-engine" }

// Descriptor advertises the engine's architectural placement.
func (e *Engine) Descriptor() system.Descriptor {
	return system.Descriptor{
		Name:         "matching-engine",
		Layer:        system.LayerEngine,
		Capabilities: []string{"enqueue", "match", "settle-handoff"},
	}
}

// Start launches the periodic matching pass ticker.
func (e *Engine) Start(ctx context.Context) error {
	e.runMu.Lock()
	if e.running {
		e.runMu.Unlock()
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.running = true
	e.runMu.Unlock()

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		ticker := time.NewTicker(e.cfg.Tick)
		defer ticker.Stop()
		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				if _, err := e.RunMatchingPass(runCtx); err != nil {
					e.log.WithError(err).Warn("periodic matching pass failed")
				}
			}
		}
	}()
	return nil
}

// Stop halts the ticker and waits for the in-flight pass, if any, to exit.
func (e *Engine) Stop(ctx context.Context) error {
	e.runMu.Lock()
	if !e.running {
		e.runMu.Unlock()
		return nil
	}
	cancel := e.cancel
	e.running = false
	e.cancel = nil
	e.runMu.Unlock()

	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		e.wg.Wait()
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
