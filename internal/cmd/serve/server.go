package serve

import (
	"context"
	"errors"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/chirino/movie-service/internal/agent"
	"github.com/chirino/movie-service/internal/catalog"
	"github.com/chirino/movie-service/internal/cmd/backend"
	"github.com/chirino/movie-service/internal/config"
	"github.com/chirino/movie-service/internal/convlock"
	"github.com/chirino/movie-service/internal/model"
	"github.com/chirino/movie-service/internal/monitoring"
	"github.com/chirino/movie-service/internal/plugin/route/admin"
	"github.com/chirino/movie-service/internal/plugin/route/chat"
	"github.com/chirino/movie-service/internal/plugin/route/movies"
	routesystem "github.com/chirino/movie-service/internal/plugin/route/system"
	routetools "github.com/chirino/movie-service/internal/plugin/route/tools"
	"github.com/chirino/movie-service/internal/querycache"
	registrycache "github.com/chirino/movie-service/internal/registry/cache"
	registrycatalog "github.com/chirino/movie-service/internal/registry/catalog"
	registrymigrate "github.com/chirino/movie-service/internal/registry/migrate"
	registryroute "github.com/chirino/movie-service/internal/registry/route"
	registrystore "github.com/chirino/movie-service/internal/registry/store"
	registryvector "github.com/chirino/movie-service/internal/registry/vector"
	"github.com/chirino/movie-service/internal/semantic"
	"github.com/chirino/movie-service/internal/service"
	"github.com/chirino/movie-service/internal/session"
	"github.com/gin-gonic/gin"
	"github.com/tmc/langchaingo/tools"
)

// Version is reported by the MCP endpoint. It is set at link time.
var Version = "dev"

// Server holds the running server and its subsystems.
type Server struct {
	Config  *config.Config
	Store   registrystore.Store
	Router  *gin.Engine
	Locks   *convlock.Registry
	Running *Listener

	cache           registrycache.FastCache
	catalog         registrycatalog.CatalogStore
	vectors         registryvector.VectorStore
	stopIndexer     context.CancelFunc
	closeManagement func(context.Context) error
}

// Shutdown drains in-flight requests, then releases every conversation lock
// and closes the backends.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.stopIndexer != nil {
		s.stopIndexer()
	}
	var errs []error
	if s.closeManagement != nil {
		errs = append(errs, s.closeManagement(ctx))
	}
	errs = append(errs, s.Running.Close(ctx))

	if n := s.Locks.Teardown(); n > 0 {
		log.Info("Released conversation locks", "locks", n)
	}
	if s.vectors != nil {
		backend.Close("vector store", s.vectors)
	}
	backend.Close("catalog", s.catalog)
	if s.cache != nil {
		backend.Close("cache", s.cache)
	}
	errs = append(errs, s.Store.Close())
	return errors.Join(errs...)
}

// StartServer initializes all subsystems and starts the HTTP listeners.
// Use cfg.Listener.Port=0 for a random port. Actual port: Server.Running.Port.
func StartServer(ctx context.Context, cfg *config.Config) (*Server, error) {
	log.Info("Starting movie service",
		"httpPort", cfg.Listener.Port,
		"db", cfg.DatastoreType,
		"cache", cfg.CacheType,
		"catalog", cfg.CatalogType,
		"vector", cfg.VectorType,
		"embedding", cfg.EmbedType,
		"agent", cfg.AgentType,
	)

	// Initialize Prometheus metrics with configured constant labels.
	metricsLabels, err := monitoring.ParseMetricsLabels(cfg.MetricsLabels)
	if err != nil {
		return nil, fmt.Errorf("invalid --metrics-labels: %w", err)
	}
	monitoring.InitMetrics(metricsLabels)

	if err := registrymigrate.RunAll(ctx); err != nil {
		return nil, fmt.Errorf("migrations failed: %w", err)
	}

	store, err := backend.Store(ctx, cfg)
	if err != nil {
		return nil, err
	}
	fastCache := backend.FastCache(ctx, cfg)
	catalogStore, err := backend.Catalog(ctx, cfg)
	if err != nil {
		return nil, err
	}
	embedder, vectors, err := backend.Semantic(ctx, cfg)
	if err != nil {
		return nil, err
	}

	queryCache, err := querycache.New[[]model.MovieRecord]("catalog", cfg.QueryCacheSize)
	if err != nil {
		return nil, err
	}
	searchCache, err := querycache.New[[]model.ScoredMovie]("semantic", cfg.SearchCacheSize)
	if err != nil {
		return nil, err
	}
	engine := catalog.NewEngine(catalogStore, queryCache, catalog.WithVersionInterval(cfg.VersionCheckInterval))
	searcher := semantic.New(embedder, vectors, catalogStore, searchCache, semantic.WithVersionInterval(cfg.VersionCheckInterval))

	toolset := []tools.Tool{
		&agent.QueryTool{Engine: engine},
		&agent.SearchTool{Searcher: searcher, DefaultTopK: cfg.SearchDefaultTopK},
	}
	chatAgent, err := agent.Load(cfg, searcher, toolset)
	if err != nil {
		return nil, err
	}

	locks := convlock.New()
	sessions := session.New(store, fastCache, session.Options{
		UserTTL:     cfg.CacheUserTTL,
		ChatPairTTL: cfg.CacheChatPairTTL,
	})
	chats := service.NewChatService(sessions, store, locks, chatAgent)
	routesystem.SetHealthChecker(service.NewHealthChecker(store, fastCache, chatAgent))

	// Set up gin
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	if cfg.ManagementAccessLog {
		router.Use(monitoring.AccessLogMiddleware())
	} else {
		router.Use(monitoring.AccessLogMiddleware("/health", "/ready", "/metrics"))
	}
	router.Use(monitoring.MetricsMiddleware())
	router.Use(maxBodySizeMiddleware(cfg.MaxBodySize))
	if cfg.CORSEnabled {
		router.Use(corsMiddleware(cfg.CORSOrigins))
	}

	chat.MountRoutes(router, chats)
	movies.MountRoutes(router, engine, searcher, cfg.SearchDefaultTopK)
	admin.MountRoutes(router, locks, queryCache, searchCache)
	if cfg.MCPEnabled {
		if err := routetools.MountRoutes(router, cfg.MCPPath, Version, toolset...); err != nil {
			return nil, fmt.Errorf("failed to mount MCP tools: %w", err)
		}
	}

	// Management routes get their own listener when a port is configured.
	var closeManagement func(context.Context) error
	if cfg.ManagementListenerEnabled {
		mgmtRouter := gin.New()
		mgmtRouter.Use(gin.Recovery())
		if cfg.ManagementAccessLog {
			mgmtRouter.Use(monitoring.AccessLogMiddleware())
		}
		if err := registryroute.Mount(mgmtRouter); err != nil {
			return nil, err
		}
		// Management listener shares TLS cert/key with the main listener.
		mgmtCfg := cfg.ManagementListener
		mgmtCfg.TLSCertFile = cfg.Listener.TLSCertFile
		mgmtCfg.TLSKeyFile = cfg.Listener.TLSKeyFile
		if !mgmtCfg.EnablePlainText && !mgmtCfg.EnableTLS {
			mgmtCfg.EnablePlainText = true
		}
		mgmt, err := startListener("management", mgmtCfg, mgmtRouter)
		if err != nil {
			return nil, fmt.Errorf("failed to start management server: %w", err)
		}
		closeManagement = mgmt.Close
	} else {
		if err := registryroute.Mount(router); err != nil {
			return nil, err
		}
	}

	running, err := startListener("main", cfg.Listener, router)
	if err != nil {
		if closeManagement != nil {
			_ = closeManagement(context.Background())
		}
		return nil, err
	}

	indexCtx, stopIndexer := context.WithCancel(ctx)
	if cfg.VectorIndexerInterval > 0 && searcher.Enabled() {
		indexer := service.NewIndexer(catalogStore, embedder, vectors, cfg.VectorIndexerBatchSize)
		go indexer.Start(indexCtx, cfg.VectorIndexerInterval)
		log.Info("Background indexer started", "interval", cfg.VectorIndexerInterval)
	}

	routesystem.MarkReady()
	return &Server{
		Config:          cfg,
		Store:           store,
		Router:          router,
		Locks:           locks,
		Running:         running,
		cache:           fastCache,
		catalog:         catalogStore,
		vectors:         vectors,
		stopIndexer:     stopIndexer,
		closeManagement: closeManagement,
	}, nil
}
