package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"stockhistory/internal/amqp"
	"stockhistory/internal/cache"
	"stockhistory/internal/core"
	applog "stockhistory/internal/log"
)

const (
	pairCacheKey         = "pair"
	cacheCleanupInterval = 10 * time.Minute
	exportLimit          = 10
	exportWindow         = time.Minute
)

// SnapshotStore provides the persisted value/quantity pair.
type SnapshotStore interface {
	Exists() (bool, error)
	Load() (value, quantity core.Table, err error)
}

type snapshotPair struct {
	value    core.Table
	quantity core.Table
}

func (p snapshotPair) table(kind TableKind) core.Table {
	if kind == KindQuantity {
		return p.quantity
	}
	return p.value
}

// Server wraps http.Server with the stock read API.
type Server struct {
	http.Server
	store        SnapshotStore
	pairs        *cache.LRUCache[snapshotPair]
	cacheManager *cache.Manager
	rateLimiter  *rateLimiter
	metrics      *securityMetrics
	logger       *applog.Logger
	shutdownOnce sync.Once
}

// NewServer configures routes and returns a ready-to-run server. Loaded
// tables are cached for cacheTTL or until Invalidate.
func NewServer(addr string, store SnapshotStore, cacheTTL time.Duration, logger *applog.Logger) *Server {
	if logger == nil {
		logger = applog.Default()
	}
	logger = logger.WithComponent(applog.ComponentHTTP)

	s := &Server{
		store:        store,
		pairs:        cache.NewLRUCache[snapshotPair](1, cacheTTL),
		cacheManager: cache.NewManager(logger.WithComponent(applog.ComponentCache).Logger),
		rateLimiter:  newRateLimiter(exportLimit, exportWindow),
		metrics:      &securityMetrics{},
		logger:       logger,
	}
	s.cacheManager.Register(s.pairs)
	s.cacheManager.StartCleanup(cacheCleanupInterval)
	go s.rateLimiter.startCleanup(5 * time.Minute)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /api/assortments", s.handleAssortments)
	mux.HandleFunc("GET /api/horizons", handleHorizons)
	mux.HandleFunc("GET /api/stock", s.handleStock)
	mux.HandleFunc("GET /api/stock/{kind}", s.handleStockKind)
	mux.HandleFunc("GET /api/export", s.withRateLimit(s.handleExport))

	s.Server = http.Server{
		Addr:              addr,
		Handler:           s.withSecurityHeaders(applog.Middleware(logger)(mux)),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

// loadPair returns the cached pair, loading it from the store on a miss.
func (s *Server) loadPair() (snapshotPair, error) {
	return s.pairs.GetOrLoad(pairCacheKey, func() (snapshotPair, error) {
		value, quantity, err := s.store.Load()
		if err != nil {
			return snapshotPair{}, err
		}
		return snapshotPair{value: value, quantity: quantity}, nil
	})
}

// Invalidate drops the cached tables so the next request reloads them.
func (s *Server) Invalidate() {
	s.pairs.Purge()
}

// HandleSnapshotUpdated invalidates the cache when the accumulator announces
// new rows. It satisfies amqp.Handler.
func (s *Server) HandleSnapshotUpdated(ctx context.Context, msg *amqp.SnapshotUpdatedMessage) error {
	s.Invalidate()
	s.logger.InfoContext(ctx, "Snapshot cache invalidated",
		applog.FieldLastDate, msg.LastDate,
		applog.FieldMonthsAppended, msg.MonthsAppended)
	return nil
}

// Shutdown gracefully shuts down the server and cleanup routines.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.cacheManager.Stop()
		s.rateLimiter.stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}
