// Package livepush implements the Live-Push Fabric (C7): one periodic
// aggregator feeding many long-lived subscriber connections, each with its
// own bounded send buffer so a slow subscriber never blocks the others.
// Grounded on NevzatMmc-updown/internal/ws's Hub/Client — register/
// unregister channels, a non-blocking per-client send, ping/pong
// keepalive — generalized from raw []byte frames to typed Events.
package livepush

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/brightline-ops/bookcore/internal/cache"
	"github.com/brightline-ops/bookcore/internal/domain"
	"github.com/brightline-ops/bookcore/internal/matching"
	"github.com/brightline-ops/bookcore/internal/store"
	"github.com/brightline-ops/bookcore/internal/system"
	"github.com/brightline-ops/bookcore/pkg/logger"
)

const (
	defaultBufferSize   = 4
	defaultTick         = 3 * time.Second
	defaultShutdownGrace = 2 * time.Second
)

// EventType distinguishes the three messages a subscriber ever receives.
type EventType string

const (
	EventConnected EventType = "connected"
	EventSnapshot  EventType = "snapshot"
	EventTerminal  EventType = "terminal"
)

// Event is one message delivered to a subscriber.
type Event struct {
	Type      EventType          `json:"type"`
	Snapshot  *domain.LiveSnapshot `json:"snapshot,omitempty"`
	Timestamp time.Time          `json:"timestamp"`
}

// Subscriber is one registered receiver. Its channel is bounded; a full
// channel causes the offer to be dropped rather than block the sender.
type Subscriber struct {
	id   string
	ch   chan Event
	once sync.Once
}

// Events returns the channel the subscriber's transport should drain.
func (s *Subscriber) Events() <-chan Event { return s.ch }

// ID returns the subscriber's registration id.
func (s *Subscriber) ID() string { return s.id }

func (s *Subscriber) close() {
	s.once.Do(func() { close(s.ch) })
}

// offer performs the hub's non-blocking send, reporting whether it was
// delivered (false means the subscriber's buffer was full and the event
// was dropped for it specifically).
func (s *Subscriber) offer(evt Event) bool {
	select {
	case s.ch <- evt:
		return true
	default:
		return false
	}
}

// Hub tracks the registered subscriber set and performs the fan-out.
// Mutation happens only on register/unregister; a broadcast iterates a
// snapshot of the set taken under a read lock, so one tick never blocks
// concurrent (un)registration for long.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[string]*Subscriber
	bufferSize  int

	slowConsumers int64
}

// NewHub creates an empty hub. bufferSize defaults to 4 (spec §4.7).
func NewHub(bufferSize int) *Hub {
	if bufferSize <= 0 {
		bufferSize = defaultBufferSize
	}
	return &Hub{subscribers: make(map[string]*Subscriber), bufferSize: bufferSize}
}

// Register adds a new subscriber and returns it.
func (h *Hub) Register() *Subscriber {
	sub := &Subscriber{id: uuid.NewString(), ch: make(chan Event, h.bufferSize)}
	h.mu.Lock()
	h.subscribers[sub.id] = sub
	h.mu.Unlock()
	return sub
}

// Unregister removes a subscriber and releases its buffer. Safe to call
// more than once for the same subscriber.
func (h *Hub) Unregister(sub *Subscriber) {
	h.mu.Lock()
	_, ok := h.subscribers[sub.id]
	if ok {
		delete(h.subscribers, sub.id)
	}
	h.mu.Unlock()
	if ok {
		sub.close()
	}
}

// Broadcast offers evt to every currently registered subscriber,
// non-blockingly. Returns the counts of deliveries and drops.
func (h *Hub) Broadcast(evt Event) (delivered, dropped int) {
	h.mu.RLock()
	targets := make([]*Subscriber, 0, len(h.subscribers))
	for _, sub := range h.subscribers {
		targets = append(targets, sub)
	}
	h.mu.RUnlock()

	for _, sub := range targets {
		if sub.offer(evt) {
			delivered++
		} else {
			dropped++
			atomic.AddInt64(&h.slowConsumers, 1)
		}
	}
	return delivered, dropped
}

// SubscriberCount reports the number of currently registered subscribers.
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}

// SlowConsumerCount returns the cumulative number of dropped offers across
// all subscribers, consumed by the health surface.
func (h *Hub) SlowConsumerCount() int64 {
	return atomic.LoadInt64(&h.slowConsumers)
}

// shutdown broadcasts a terminal event and closes every subscriber,
// releasing the set.
func (h *Hub) shutdown() {
	h.mu.Lock()
	targets := make([]*Subscriber, 0, len(h.subscribers))
	for id, sub := range h.subscribers {
		targets = append(targets, sub)
		delete(h.subscribers, id)
	}
	h.mu.Unlock()

	terminal := Event{Type: EventTerminal, Timestamp: time.Now().UTC()}
	for _, sub := range targets {
		sub.offer(terminal)
		sub.close()
	}
}

// Aggregator is the Live-Push Fabric (C7): it polls the store and the
// matching engine on a fixed tick, composes a LiveSnapshot, and publishes
// it through the Hub. It holds a cache handle but does not read from it
// when building a snapshot. It implements system.Service.
type Aggregator struct {
	hub     *Hub
	store   store.Store
	matcher *matching.Engine
	cache   *cache.Cache
	log     *logger.Logger

	tick          time.Duration
	shutdownGrace time.Duration

	runMu   sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

// NewAggregator constructs an Aggregator. tick defaults to 3s when zero.
func NewAggregator(hub *Hub, st store.Store, matcher *matching.Engine, c *cache.Cache, tick time.Duration, log *logger.Logger) *Aggregator {
	if tick <= 0 {
		tick = defaultTick
	}
	if log == nil {
		log = logger.NewFromEnv("livepush")
	}
	return &Aggregator{
		hub:           hub,
		store:         st,
		matcher:       matcher,
		cache:         c,
		log:           log,
		tick:          tick,
		shutdownGrace: defaultShutdownGrace,
	}
}

// Connect registers a new subscriber and primes it with a connected event
// followed by a freshly-computed snapshot (spec §4.7 subscriber lifecycle
// step 1). Both are buffered sends against a brand new, empty channel, so
// they cannot be dropped.
func (a *Aggregator) Connect(ctx context.Context) (*Subscriber, error) {
	sub := a.hub.Register()

	snap, err := a.BuildSnapshot(ctx)
	if err != nil {
		a.hub.Unregister(sub)
		return nil, err
	}
	sub.offer(Event{Type: EventConnected, Timestamp: time.Now().UTC()})
	sub.offer(Event{Type: EventSnapshot, Snapshot: &snap, Timestamp: snap.Timestamp})
	return sub, nil
}

// Disconnect unregisters sub, releasing its buffer. Safe on transport abort.
func (a *Aggregator) Disconnect(sub *Subscriber) {
	a.hub.Unregister(sub)
}

// BuildSnapshot composes one LiveSnapshot by reading the local store and
// the matching engine's in-memory state (spec §3 LiveSnapshot); the TTL
// cache is not consulted.
func (a *Aggregator) BuildSnapshot(ctx context.Context) (domain.LiveSnapshot, error) {
	now := time.Now().UTC()
	weekAgo := now.AddDate(0, 0, -7)

	customers, err := a.store.CustomersList(ctx, domain.CustomerFilter{})
	if err != nil {
		return domain.LiveSnapshot{}, err
	}
	wagers, err := a.store.WagersList(ctx, domain.WagerFilter{})
	if err != nil {
		return domain.LiveSnapshot{}, err
	}

	kpi := domain.KPISnapshot{}
	weekly := domain.WeeklyFigures{}
	activePlayers := 0
	for _, c := range customers {
		if c.Active {
			activePlayers++
		}
	}
	kpi.ActivePlayers = activePlayers

	for _, w := range wagers {
		if w.SettlementStatus == domain.SettlementPending {
			kpi.TotalLiability = kpi.TotalLiability.Add(w.ToWin)
		}
		if w.PlacedAt.Before(weekAgo) {
			continue
		}
		weekly.Handle = weekly.Handle.Add(w.AmountWagered)
		weekly.Volume = weekly.Volume.Add(w.AmountWagered)
		weekly.Bets++
		switch w.SettlementStatus {
		case domain.SettlementWin:
			weekly.Win = weekly.Win.Add(w.ToWin)
		}
	}
	kpi.Revenue = weekly.Handle.Sub(weekly.Win)

	if a.matcher != nil {
		depth, err := a.matcher.QueueDepth(ctx)
		if err == nil {
			kpi.PendingCount = depth
		}
	}

	pendingItems, err := a.store.QueueList(ctx, domain.QueueFilter{})
	if err != nil {
		return domain.LiveSnapshot{}, err
	}
	pending := make([]domain.QueueItem, 0, domain.MaxPendingItems)
	for _, item := range pendingItems {
		if item.Status != domain.QueuePending {
			continue
		}
		pending = append(pending, item)
		if len(pending) == domain.MaxPendingItems {
			break
		}
	}

	var activities []domain.Activity
	if a.matcher != nil {
		activities = a.matcher.RecentActivity()
		if len(activities) > domain.MaxActivities {
			activities = activities[:domain.MaxActivities]
		}
	}

	return domain.LiveSnapshot{
		Timestamp:    now,
		KPI:          kpi,
		Weekly:       weekly,
		PendingItems: pending,
		Activities:   activities,
	}, nil
}

// Name identifies the aggregator as a lifecycle service.
func (a *Aggregator) Name() string { return "livepush-aggregator" }

// Descriptor advertises the aggregator's architectural placement.
func (a *Aggregator) Descriptor() system.Descriptor {
	return system.Descriptor{
		Name:         "livepush-aggregator",
		Layer:        system.LayerEgress,
		Capabilities: []string{"broadcast", "subscribe"},
	}
}

// Start launches the periodic broadcast ticker.
func (a *Aggregator) Start(ctx context.Context) error {
	a.runMu.Lock()
	if a.running {
		a.runMu.Unlock()
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	a.running = true
	a.runMu.Unlock()

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		ticker := time.NewTicker(a.tick)
		defer ticker.Stop()
		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				snap, err := a.BuildSnapshot(runCtx)
				if err != nil {
					a.log.WithError(err).Warn("snapshot build failed")
					continue
				}
				delivered, dropped := a.hub.Broadcast(Event{Type: EventSnapshot, Snapshot: &snap, Timestamp: snap.Timestamp})
				a.log.WithFields(nil).
					WithField("delivered", delivered).
					WithField("dropped", dropped).
					Debug("snapshot broadcast")
			}
		}
	}()
	return nil
}

// Stop broadcasts a terminal event, closes every subscriber, and halts the
// ticker, all within the configured grace period.
func (a *Aggregator) Stop(ctx context.Context) error {
	a.runMu.Lock()
	if !a.running {
		a.runMu.Unlock()
		return nil
	}
	cancel := a.cancel
	a.running = false
	a.cancel = nil
	a.runMu.Unlock()

	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		a.wg.Wait()
	}()

	graceCtx, graceCancel := context.WithTimeout(context.Background(), a.shutdownGrace)
	defer graceCancel()
	select {
	case <-done:
	case <-graceCtx.Done():
	}

	a.hub.shutdown()

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}
