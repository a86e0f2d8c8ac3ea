// Package httpapi assembles the Gin engine: the middleware chain, the health
// and metrics endpoints, and the versioned catalog/session/message API. All
// dependencies (database, LLM provider, vector index, index trigger) are
// injected so tests can swap any of them.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	"github.com/farmassist/go-pharmacy-backend/internal/config"
	"github.com/farmassist/go-pharmacy-backend/internal/domain"
	"github.com/farmassist/go-pharmacy-backend/internal/http/handlers"
	"github.com/farmassist/go-pharmacy-backend/internal/http/middleware"
	"github.com/farmassist/go-pharmacy-backend/internal/llm"
	"github.com/farmassist/go-pharmacy-backend/internal/rag"
	"github.com/farmassist/go-pharmacy-backend/internal/repo"
	"github.com/farmassist/go-pharmacy-backend/internal/services"
)

// catalogShim and historyShim adapt the repo free functions to the narrow
// rag.ProductSource and rag.HistorySource interfaces, keeping the retrieval
// core ignorant of GORM.

type catalogShim struct{ db *gorm.DB }

func (s catalogShim) ListAllProducts(ctx context.Context) ([]domain.Product, error) {
	return repo.ListAllProducts(ctx, s.db)
}

type historyShim struct{ db *gorm.DB }

func (s historyShim) RecentMessages(ctx context.Context, sessionID string, limit int) ([]domain.ChatMessage, error) {
	return repo.RecentMessages(ctx, s.db, sessionID, limit)
}

// NewCatalogSource returns a rag.ProductSource backed by the given database.
// main uses it to feed the background index syncer from the same catalog the
// HTTP layer serves.
func NewCatalogSource(db *gorm.DB) rag.ProductSource { return catalogShim{db: db} }

// RegisterRoutes attaches the middleware chain and every endpoint to r.
//
// The chain order is load-bearing: tracing wraps everything, the request ID
// must exist before the logger runs, recovery sits below the logger so panics
// are logged, and the idempotency validator runs before the rate limiter so a
// replay can bypass it.
func RegisterRoutes(r *gin.Engine, db *gorm.DB, provider *llm.Client, index *rag.Manager, sync services.IndexTrigger, log zerolog.Logger, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))
	r.Use(middleware.RequestID())
	r.Use(middleware.RedactingLogger(middleware.RedactOptions{
		MaskHeaders: []string{"X-API-Key"},
	}))
	r.Use(middleware.Recovery())
	r.Use(limitBody(1 << 20))
	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.Use(middleware.IdempotencyValidator(
		middleware.IdempotencyOptions{MaxLen: 200},
		func(ctx context.Context, userID, sessionID, key string, now time.Time) (bool, error) {
			rec, err := repo.GetIdempotency(ctx, db, userID, sessionID, key, now)
			return err == nil && rec != nil, nil
		},
	))

	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByUserOrIP())
	r.Use(rl.Handler())

	installCORS(r, cfg.CORS.AllowedOrigins)

	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:   cfg.Security.EnableHSTS,
		HSTSMaxAge:   cfg.Security.HSTSMaxAge,
		NoStore:      false,
		EnablePolicy: true,
	}))

	// Compress everything except the Prometheus scrape.
	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/metrics"})))

	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	productSvc := &services.ProductService{DB: db, Sync: sync}
	responder := &rag.Responder{
		Products:     catalogShim{db: db},
		History:      historyShim{db: db},
		Index:        index,
		Embedder:     provider,
		LLM:          provider,
		HistoryLimit: cfg.RAG.HistoryLimit,
		TopK:         cfg.RAG.TopK,
	}
	chatSvc := services.NewChatService(db)
	msgSvc := services.NewMessageService(db, responder, log)

	h := handlers.New(chatSvc, msgSvc, productSvc)

	api := groupWithPrefix(r, cfg.APIBasePath)
	{
		api.POST("/products", h.CreateProduct)
		api.GET("/products", h.ListProducts)
		api.GET("/products/:id", h.GetProduct)
		api.PUT("/products/:id", h.UpdateProduct)
		api.DELETE("/products/:id", h.DeleteProduct)

		api.POST("/sessions", h.CreateSession)
		api.GET("/sessions", h.ListSessions)
		api.PUT("/sessions/:id/title", h.UpdateSessionTitle)
		api.DELETE("/sessions/:id", h.CloseSession)

		api.GET("/sessions/:id/messages", h.ListMessages)
		api.POST("/sessions/:id/messages", h.PostMessage)
	}
}

// installCORS configures the browser posture. With no allowlist the API is
// open to any origin (credentials stay off); with one, only listed origins
// are echoed back.
func installCORS(r *gin.Engine, origins []string) {
	base := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-User-ID", middleware.HeaderIdempotencyKey},
		ExposeHeaders:    []string{"X-Request-ID", "Content-Length"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}

	if len(origins) == 0 {
		// Set the wildcard even for requests without an Origin header, which
		// gin-contrib/cors skips; health probes and simple clients rely on it.
		r.Use(func(c *gin.Context) {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
			c.Next()
		})
		base.AllowAllOrigins = true
		r.Use(cors.New(base))
		return
	}

	allowed := make(map[string]struct{}, len(origins))
	for _, o := range origins {
		allowed[o] = struct{}{}
	}
	r.Use(func(c *gin.Context) {
		if origin := c.GetHeader("Origin"); origin != "" {
			if _, ok := allowed[origin]; ok {
				h := c.Writer.Header()
				h.Set("Access-Control-Allow-Origin", origin)
				h.Add("Vary", "Origin")
			}
		}
		c.Next()
	})
	base.AllowOrigins = origins
	r.Use(cors.New(base))
}

// limitBody caps every request body at maxBytes; reads past the cap fail in
// the handler's bind.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}
