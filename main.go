package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/ledgerline/ledgerline/backend/session-gateway/handlers"
	"github.com/ledgerline/ledgerline/backend/session-gateway/internal/config"
	"github.com/ledgerline/ledgerline/backend/session-gateway/internal/database"
	"github.com/ledgerline/ledgerline/backend/session-gateway/internal/logout"
	"github.com/ledgerline/ledgerline/backend/session-gateway/internal/respcache"
	"github.com/ledgerline/ledgerline/backend/session-gateway/internal/session"
	"github.com/ledgerline/ledgerline/backend/session-gateway/internal/storage"
	"github.com/ledgerline/ledgerline/backend/session-gateway/internal/structcache"
	"github.com/ledgerline/ledgerline/backend/session-gateway/internal/uistate"
	"github.com/ledgerline/ledgerline/backend/session-gateway/internal/upstream"
	"github.com/ledgerline/ledgerline/backend/session-gateway/pkg/logger"
	"github.com/ledgerline/ledgerline/backend/session-gateway/pkg/metrics"
	"github.com/ledgerline/ledgerline/backend/session-gateway/pkg/middleware"
)

var startTime = time.Now()

func main() {
	// initialize logging (controlled with LOG_LEVEL env: debug|info|warn|error|fatal)
	logger.Init(os.Getenv("LOG_LEVEL"))

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatalf("failed to load config: %v", err)
	}
	logger.Infof("config loaded: upstream=%v redis=%v mongo=%v", cfg.Upstream.BaseURL != "", cfg.Redis.Host != "", cfg.MongoDB.URI != "")

	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())

	// Lightweight CORS middleware for dev/test: set common headers and respond to OPTIONS.
	// (Keep this intentionally simple — production should use a stricter policy.)
	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Expose-Headers", "Content-Length")
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(200)
			return
		}
		c.Next()
	})

	ctx := context.Background()

	// Connect to Redis early: the persisted session store, the token
	// blacklist and the Redis rate limiter all want it.
	var redisClient *redis.Client
	if cfg.Redis.Host != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.Redis.Host + ":" + cfg.Redis.Port, Password: cfg.Redis.Password})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Warnf("failed to connect to Redis (%s:%s): %v", cfg.Redis.Host, cfg.Redis.Port, err)
			redisClient = nil
		} else {
			session.SetBlacklistClient(redisClient)
			logger.Infof("Connected to Redis for session storage: %s:%s", cfg.Redis.Host, cfg.Redis.Port)
		}
	}

	// Optional global rate limiter (per-session when authenticated, otherwise per-IP)
	if cfg.RateLimit.Enabled {
		if cfg.RateLimit.UseRedis && redisClient != nil {
			win := time.Duration(cfg.RateLimit.WindowSeconds) * time.Second
			r.Use(middleware.RedisRateLimitMiddleware(redisClient, cfg.RateLimit.RPS, cfg.RateLimit.Burst, win))
		} else {
			r.Use(middleware.RateLimitMiddleware(cfg.RateLimit.RPS, cfg.RateLimit.Burst))
		}
	}

	// Session stores: Redis-backed when available, in-memory otherwise.
	var store session.Store
	if redisClient != nil {
		store = session.NewRedisStore(redisClient, cfg.Session.StoreTTL)
	} else {
		logger.Warn("no Redis configured; persisted session store is in-process only")
		store = session.NewMemoryStore()
	}
	mgr := session.NewManager(store)

	api := upstream.NewClient(cfg.Upstream.BaseURL, cfg.Upstream.Timeout)
	resolver := session.NewResolver(mgr, api, cfg.Session.FetchTimeout)

	// MongoDB-backed structured cache (optional)
	var sc *structcache.Store
	if cfg.MongoDB.URI != "" {
		client, err := database.ConnectMongo(ctx, cfg.MongoDB.URI, cfg.MongoDB.Timeout)
		if err != nil {
			logger.Warnf("could not connect to MongoDB: %v", err)
		} else {
			defer func() { _ = client.Disconnect(ctx) }()
			sc = structcache.NewStore(client.Database(cfg.MongoDB.Database))
			logger.Infof("Using MongoDB for the structured cache")
		}
	}

	// MinIO-backed named cache buckets (optional)
	var buckets *storage.CacheBuckets
	if b, err := storage.NewCacheBuckets(storage.LoadMinIOConfig()); err != nil {
		logger.Warnf("cache buckets disabled: %v", err)
	} else {
		buckets = b
	}

	respCache := respcache.New(30 * time.Second)
	uiState := uistate.NewStore()

	sequencer := &logout.Sequencer{
		Cache:       respCache,
		UIState:     uiState,
		Manager:     mgr,
		Resolver:    resolver,
		RedirectURL: cfg.Logout.RedirectURL,
		NavDelay:    cfg.Logout.NavDelay,
		Debug:       cfg.IsDebug(),
	}
	if buckets != nil {
		sequencer.Buckets = buckets
	}
	if sc != nil {
		sequencer.StructCache = sc
	}

	gates := &middleware.Gates{
		Resolver:     resolver,
		Manager:      mgr,
		CookieSecret: cfg.Session.CookieSecret,
		CookieName:   cfg.Session.CookieName,
	}

	// Basic health endpoint
	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "healthy")
	})

	// readiness endpoint — return 200 only when critical dependencies are available
	r.GET("/ready", func(c *gin.Context) {
		ready := true
		deps := map[string]bool{}

		deps["upstream"] = cfg.Upstream.BaseURL != ""
		if !deps["upstream"] {
			ready = false
		}
		// Redis readiness when used for sessions or the rate limiter
		if cfg.Redis.Host != "" {
			deps["redis"] = redisClient != nil
			if !deps["redis"] {
				ready = false
			}
		} else {
			deps["redis"] = true
		}
		// optional backends are reported but never gate readiness
		deps["mongo"] = sc != nil
		deps["minio"] = buckets != nil

		status := gin.H{"deps": deps, "uptime": fmt.Sprintf("%s", time.Since(startTime))}
		if !ready {
			status["status"] = "not_ready"
			c.JSON(http.StatusServiceUnavailable, status)
			return
		}
		status["status"] = "ready"
		c.JSON(http.StatusOK, status)
	})

	h := handlers.NewAuthHandler(cfg, api, mgr, resolver, sequencer, gates)
	h.Register(r.Group("/"))

	proxy := handlers.NewProxyHandler(api, mgr, respCache, sc)
	proxy.Register(r, gates)

	handlers.RegisterSwagger(r)

	// Expose Prometheus metrics
	metrics.RegisterCollectors(prometheus.DefaultRegisterer)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
	logger.Infof("Starting session gateway on %s", addr)
	if err := r.Run(addr); err != nil {
		logger.Fatalf("server failed: %v", err)
	}
}
