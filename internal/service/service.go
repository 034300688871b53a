// Package service is the typed inbound surface consumed by the HTTP/routing
// collaborator: every public method takes an AuthPrincipal and a typed
// request, enforces role and scope through the auth gate, and returns a
// typed response or a tagged error. The routing layer owns the mapping to
// verbs and paths; nothing here reads a request or writes a response.
package service

import (
	"context"
	"time"

	"github.com/brightline-ops/bookcore/internal/apperrors"
	"github.com/brightline-ops/bookcore/internal/authgate"
	"github.com/brightline-ops/bookcore/internal/domain"
	"github.com/brightline-ops/bookcore/internal/health"
	"github.com/brightline-ops/bookcore/internal/ledger"
	"github.com/brightline-ops/bookcore/internal/livepush"
	"github.com/brightline-ops/bookcore/internal/matching"
	"github.com/brightline-ops/bookcore/internal/resilience"
	"github.com/brightline-ops/bookcore/internal/store"
	"github.com/brightline-ops/bookcore/internal/upstream"
	"github.com/brightline-ops/bookcore/pkg/logger"
)

// Source tags where a read's data came from.
type Source string

const (
	SourceUpstream Source = "upstream"
	SourceLocal    Source = "local"
)

// ReadResult wraps an upstream read with its provenance: Degraded is set
// when the upstream failed and the local store supplied the answer.
type ReadResult struct {
	Value    interface{} `json:"value"`
	Source   Source      `json:"source"`
	Degraded bool        `json:"degraded,omitempty"`
}

// Service composes the core's subsystems behind the typed operations listed
// in the external interface contract.
type Service struct {
	upstream *upstream.Client
	store    store.Store
	ledger   *ledger.Ledger
	matcher  *matching.Engine
	live     *livepush.Aggregator
	checker  *health.Checker
	log      *logger.Logger

	retryCfg resilience.RetryConfig
}

// New wires the facade. checker may be nil when the process exposes health
// elsewhere.
func New(up *upstream.Client, st store.Store, lg *ledger.Ledger, m *matching.Engine, live *livepush.Aggregator, checker *health.Checker, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewFromEnv("service")
	}
	return &Service{
		upstream: up,
		store:    st,
		ledger:   lg,
		matcher:  m,
		live:     live,
		checker:  checker,
		log:      log,
		retryCfg: resilience.DefaultRetryConfig(),
	}
}

// retryableUpstream retries timeouts and transport failures but never a
// breaker-open (retrying would defeat the skip window) or a parse failure
// (the payload will not improve on a retry).
func retryableUpstream(err error) bool {
	svcErr := apperrors.GetServiceError(err)
	if svcErr == nil || svcErr.Kind != apperrors.KindUpstream {
		return false
	}
	kind, _ := svcErr.Details["upstream_kind"].(string)
	switch apperrors.UpstreamKind(kind) {
	case apperrors.UpstreamTimeout, apperrors.UpstreamHTTP:
		return true
	default:
		return false
	}
}

// FetchOperation performs an idempotent upstream read on behalf of the
// caller: role check, cache-backed call with the small retry budget, and on
// exhaustion a degraded fallback from the local store where one exists.
func (s *Service) FetchOperation(ctx context.Context, p domain.AuthPrincipal, operation string, params map[string]string) (ReadResult, error) {
	if err := authgate.Require(p, domain.RoleViewer); err != nil {
		return ReadResult{}, err
	}
	if target, ok := params["agentID"]; ok && target != "" {
		if err := authgate.RequireAgentScope(p, target); err != nil {
			return ReadResult{}, err
		}
	}

	var value interface{}
	err := resilience.Retry(ctx, s.retryCfg, retryableUpstream, func() error {
		var callErr error
		value, callErr = s.upstream.Call(ctx, operation, params, upstream.CallOpts{UseCache: true})
		return callErr
	})
	if err == nil {
		return ReadResult{Value: value, Source: SourceUpstream}, nil
	}
	if apperrors.GetKind(err) != apperrors.KindUpstream {
		return ReadResult{}, err
	}

	local, ok, localErr := s.localFallback(ctx, operation, params)
	if localErr != nil || !ok {
		// No degraded path for this operation; surface the upstream error.
		return ReadResult{}, err
	}
	s.log.WithFields(nil).
		WithField("operation", operation).
		Warn("upstream unavailable, serving degraded response from local store")
	return ReadResult{Value: local, Source: SourceLocal, Degraded: true}, nil
}

// localFallback supplies a degraded answer from the store for the
// operations whose data the store mirrors. ok=false means this operation
// has no local equivalent and the upstream error must stand.
func (s *Service) localFallback(ctx context.Context, operation string, params map[string]string) (interface{}, bool, error) {
	switch operation {
	case "getCustomerAdmin":
		filter := domain.CustomerFilter{}
		if agentID := params["agentID"]; agentID != "" {
			filter.AgentID = &agentID
		}
		customers, err := s.store.CustomersList(ctx, filter)
		return customers, err == nil, err
	case "getCustomerDetails":
		id := params["customerID"]
		if id == "" {
			return nil, false, nil
		}
		customer, err := s.store.CustomerGet(ctx, id)
		return customer, err == nil, err
	case "getListAgenstByAgent":
		agents, err := s.store.AgentsList(ctx, domain.AgentFilter{})
		return agents, err == nil, err
	case "getPending":
		pending := domain.SettlementPending
		wagers, err := s.store.WagersList(ctx, domain.WagerFilter{Status: &pending})
		return wagers, err == nil, err
	default:
		return nil, false, nil
	}
}

// Settle applies one win/loss/push/void outcome. Requires manager.
func (s *Service) Settle(ctx context.Context, p domain.AuthPrincipal, wagerNumber int64, kind domain.SettlementStatus, note string) (domain.SettleResult, error) {
	if err := authgate.Require(p, domain.RoleManager); err != nil {
		return domain.SettleResult{}, err
	}
	res, err := s.ledger.Settle(ctx, wagerNumber, kind, p.Username, note, nil)
	if err != nil {
		return domain.SettleResult{}, err
	}
	s.audit(ctx, "wager", res.Wager.CustomerID, "settle", p)
	return res, nil
}

// BulkSettle processes a batch of settlements. Requires manager.
func (s *Service) BulkSettle(ctx context.Context, p domain.AuthPrincipal, items []domain.BulkSettleItem, batchNote string) (domain.BulkSettleSummary, error) {
	if err := authgate.Require(p, domain.RoleManager); err != nil {
		return domain.BulkSettleSummary{}, err
	}
	if len(items) == 0 {
		return domain.BulkSettleSummary{}, apperrors.InvalidInput("items", "must not be empty")
	}
	summary, err := s.ledger.BulkSettle(ctx, items, p.Username, batchNote)
	if err != nil {
		return domain.BulkSettleSummary{}, err
	}
	s.audit(ctx, "settlement_batch", summary.BatchID, "bulk_settle", p)
	return summary, nil
}

// EnqueueWithdrawal submits a withdrawal to the matching engine. Requires
// agent.
func (s *Service) EnqueueWithdrawal(ctx context.Context, p domain.AuthPrincipal, item domain.QueueItem) (domain.QueueItem, error) {
	if err := authgate.Require(p, domain.RoleAgent); err != nil {
		return domain.QueueItem{}, err
	}
	inserted, err := s.matcher.EnqueueWithdrawal(ctx, item)
	if err != nil {
		return domain.QueueItem{}, err
	}
	s.audit(ctx, "queue_item", inserted.ID, "enqueue_withdrawal", p)
	return inserted, nil
}

// EnqueueDeposit submits a deposit to the matching engine. Requires agent.
func (s *Service) EnqueueDeposit(ctx context.Context, p domain.AuthPrincipal, item domain.QueueItem) (domain.QueueItem, error) {
	if err := authgate.Require(p, domain.RoleAgent); err != nil {
		return domain.QueueItem{}, err
	}
	inserted, err := s.matcher.EnqueueDeposit(ctx, item)
	if err != nil {
		return domain.QueueItem{}, err
	}
	s.audit(ctx, "queue_item", inserted.ID, "enqueue_deposit", p)
	return inserted, nil
}

// RunMatcher triggers an immediate matching pass. Requires manager.
func (s *Service) RunMatcher(ctx context.Context, p domain.AuthPrincipal) (int, error) {
	if err := authgate.Require(p, domain.RoleManager); err != nil {
		return 0, err
	}
	return s.matcher.RunMatchingPass(ctx)
}

// CompleteMatch finishes a processing match. Requires manager.
func (s *Service) CompleteMatch(ctx context.Context, p domain.AuthPrincipal, matchID, note string) (domain.Match, error) {
	if err := authgate.Require(p, domain.RoleManager); err != nil {
		return domain.Match{}, err
	}
	m, err := s.matcher.CompleteMatch(ctx, matchID, note)
	if err != nil {
		return domain.Match{}, err
	}
	s.audit(ctx, "match", m.ID, "complete_match", p)
	return m, nil
}

// FailMatch fails a match, optionally returning its items to pending.
// Requires manager.
func (s *Service) FailMatch(ctx context.Context, p domain.AuthPrincipal, matchID, reason string, retryable bool) (domain.Match, error) {
	if err := authgate.Require(p, domain.RoleManager); err != nil {
		return domain.Match{}, err
	}
	m, err := s.matcher.FailMatch(ctx, matchID, reason, retryable)
	if err != nil {
		return domain.Match{}, err
	}
	s.audit(ctx, "match", m.ID, "fail_match", p)
	return m, nil
}

// Stats returns the matcher's queue statistics. Requires viewer.
func (s *Service) Stats(ctx context.Context, p domain.AuthPrincipal) (matching.Stats, error) {
	if err := authgate.Require(p, domain.RoleViewer); err != nil {
		return matching.Stats{}, err
	}
	return s.matcher.Stats(ctx)
}

// Health evaluates the composed health report. Requires viewer.
func (s *Service) Health(ctx context.Context, p domain.AuthPrincipal) (health.Report, error) {
	if err := authgate.Require(p, domain.RoleViewer); err != nil {
		return health.Report{}, err
	}
	if s.checker == nil {
		return health.Report{Status: health.StatusOK, Score: 100, Timestamp: time.Now().UTC().Format(time.RFC3339)}, nil
	}
	return s.checker.Evaluate(ctx), nil
}

// SubscribeLive registers a live-push subscriber for the caller's
// transport to drain. Requires viewer. The caller must Unsubscribe when
// its transport drops.
func (s *Service) SubscribeLive(ctx context.Context, p domain.AuthPrincipal) (*livepush.Subscriber, error) {
	if err := authgate.Require(p, domain.RoleViewer); err != nil {
		return nil, err
	}
	return s.live.Connect(ctx)
}

// Unsubscribe releases a subscriber obtained from SubscribeLive.
func (s *Service) Unsubscribe(sub *livepush.Subscriber) {
	s.live.Disconnect(sub)
}

// audit records a mutating action; a failed append is logged, never
// surfaced, since the action itself already committed.
func (s *Service) audit(ctx context.Context, entity, entityID, action string, p domain.AuthPrincipal) {
	_, err := s.store.AuditAppend(ctx, domain.AuditEntry{
		Entity:    entity,
		EntityID:  entityID,
		Action:    action,
		ActorID:   p.UserID,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		s.log.WithError(err).Warn("audit append failed")
	}
}
