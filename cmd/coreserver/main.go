// Command coreserver runs the aggregation and control plane: the upstream
// client, TTL cache, matching engine, settlement ledger, live-push fabric,
// and the health/metrics surface. HTTP routing beyond that surface belongs
// to the external routing collaborator; this process only mounts the three
// endpoints the core itself owns (/healthz, /metrics, the live-push
// upgrade).
package main

import (
	"context"
	"database/sql"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/mux"

	"github.com/brightline-ops/bookcore/internal/authgate"
	"github.com/brightline-ops/bookcore/internal/cache"
	"github.com/brightline-ops/bookcore/internal/config"
	"github.com/brightline-ops/bookcore/internal/domain"
	"github.com/brightline-ops/bookcore/internal/health"
	"github.com/brightline-ops/bookcore/internal/ledger"
	"github.com/brightline-ops/bookcore/internal/livepush"
	"github.com/brightline-ops/bookcore/internal/matching"
	"github.com/brightline-ops/bookcore/internal/platform/database"
	"github.com/brightline-ops/bookcore/internal/platform/migrations"
	"github.com/brightline-ops/bookcore/internal/resilience"
	"github.com/brightline-ops/bookcore/internal/store"
	"github.com/brightline-ops/bookcore/internal/store/memory"
	"github.com/brightline-ops/bookcore/internal/store/postgres"
	"github.com/brightline-ops/bookcore/internal/system"
	"github.com/brightline-ops/bookcore/internal/upstream"
	"github.com/brightline-ops/bookcore/pkg/logger"
)

func main() {
	addr := flag.String("addr", "", "HTTP listen address (defaults to HTTP_ADDR or :8080)")
	dsn := flag.String("dsn", "", "PostgreSQL DSN (overrides DATABASE_URL; in-memory storage when empty)")
	runMigrations := flag.Bool("migrate", true, "run embedded database migrations on startup (ignored for in-memory)")
	flag.Parse()

	cfg := config.Load()
	log := logger.New("coreserver", cfg.LogLevel, cfg.LogFormat)

	rootCtx := context.Background()

	var (
		st store.Store
		db *sql.DB
	)
	dsnVal := strings.TrimSpace(*dsn)
	if dsnVal == "" {
		dsnVal = cfg.DatabaseURL
	}
	if dsnVal != "" {
		var err error
		db, err = database.Open(rootCtx, dsnVal)
		if err != nil {
			log.WithError(err).Fatal("connect to postgres")
		}
		defer db.Close()
		if *runMigrations {
			if err := migrations.Apply(rootCtx, db); err != nil {
				log.WithError(err).Fatal("apply migrations")
			}
		}
		st = postgres.New(db)
		log.Info("using postgres storage")
	} else {
		st = memory.New()
		log.Warn("no DSN configured; using in-memory storage")
	}

	ttlCache := cache.New(30*time.Second, log)
	breakerCfg := resilience.BreakerConfig{
		Fails:    cfg.BreakerFails,
		Window:   cfg.BreakerWindow,
		Cooldown: cfg.BreakerCooldown,
	}
	up := upstream.New(cfg.UpstreamBaseURL, cfg.UpstreamToken, cfg.UpstreamSession, breakerCfg, ttlCache, log)

	lg := ledger.New(st, log)
	matcher := matching.New(st, matching.Config{
		Tick:       cfg.MatcherTick,
		PendingTTL: cfg.MatcherPendingTTL,
	}, log)

	hub := livepush.NewHub(cfg.LiveSubscriberBuffer)
	aggregator := livepush.NewAggregator(hub, st, matcher, ttlCache, cfg.LiveTick, log)
	transport := livepush.NewTransport(aggregator, nil, log)

	gate := authgate.New(cfg.AuthSecret, cfg.TokenTTL)

	checker := health.NewChecker(log)
	checker.Register("store", 2, health.StoreCheck(st))
	checker.Register("upstream_breakers", 2, health.BreakerCheck(up.BreakerStates))
	checker.Register("cache_hit_rate", 1, health.CacheCheck(ttlCache.Stats))
	checker.Register("matcher_queue_depth", 1, health.QueueDepthCheck(matcher.QueueDepth, 100))
	checker.Register("settlement_lag", 1, health.SettlementLagCheck(lg.SettlementLag, 10*time.Minute))

	metrics := health.NewMetrics(health.GaugeSources{
		CacheSize:     func() float64 { return float64(ttlCache.Stats().Size) },
		CacheHitRate:  func() float64 { return ttlCache.Stats().HitRate },
		Subscribers:   func() float64 { return float64(hub.SubscriberCount()) },
		SlowConsumers: func() float64 { return float64(hub.SlowConsumerCount()) },
	})

	manager := system.NewManager()
	for _, s := range []system.Service{ttlCache, matcher, aggregator} {
		if err := manager.Register(s); err != nil {
			log.WithError(err).Fatal("register service")
		}
	}
	if err := manager.Start(rootCtx); err != nil {
		log.WithError(err).Fatal("start services")
	}

	router := mux.NewRouter()
	router.HandleFunc("/healthz", checker.Handler()).Methods(http.MethodGet)
	router.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)
	router.HandleFunc("/live", requireViewer(gate, transport.ServeWS))

	listenAddr := strings.TrimSpace(*addr)
	if listenAddr == "" {
		listenAddr = cfg.HTTPAddr
	}
	srv := &http.Server{
		Addr:         listenAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // websocket writes manage their own deadlines
	}

	go func() {
		log.WithFields(map[string]interface{}{"addr": listenAddr}).Info("listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("http server")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("http shutdown")
	}
	if err := manager.Stop(shutdownCtx); err != nil {
		log.WithError(err).Warn("service shutdown")
	}
}

// requireViewer gates the live-push upgrade behind a verified token of at
// least viewer rank. Browsers cannot set headers on a WebSocket dial, so a
// token query parameter is accepted alongside the Authorization header.
func requireViewer(gate *authgate.Gate, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := ""
		if h := strings.TrimSpace(r.Header.Get("Authorization")); h != "" {
			parts := strings.Fields(h)
			if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
				token = parts[1]
			}
		}
		if token == "" {
			token = r.URL.Query().Get("token")
		}
		p, err := gate.Verify(token)
		if err != nil {
			http.Error(w, "unauthorised", http.StatusUnauthorized)
			return
		}
		if err := authgate.Require(p, domain.RoleViewer); err != nil {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		next(w, r)
	}
}
