package httpapi

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	sqlite "github.com/glebarez/sqlite"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/farmassist/go-pharmacy-backend/internal/config"
	"github.com/farmassist/go-pharmacy-backend/internal/domain"
	"github.com/farmassist/go-pharmacy-backend/internal/http/middleware"
	"github.com/farmassist/go-pharmacy-backend/internal/rag"
)

func newTestDB(t *testing.T, name string) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:"+name+"?mode=memory&cache=shared"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&domain.Product{}, &domain.ChatSession{}, &domain.ChatMessage{}, &domain.Idempotency{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func testConfig(base string) config.Config {
	return config.Config{
		APIBasePath: base,
		RateRPS:     100,
		RateBurst:   10,
		OTEL:        config.OTELConfig{ServiceName: "test-svc"},
		RAG:         config.RAGConfig{HistoryLimit: 15, TopK: 5},
	}
}

// newRouter wires a full engine against a fresh in-memory database. The LLM
// provider and index trigger are nil; no test here reaches the chat path.
func newRouter(t *testing.T, dbName string, cfg config.Config) (*gin.Engine, *gorm.DB) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	db := newTestDB(t, dbName)
	index := rag.NewManager(nil, filepath.Join(t.TempDir(), "index.gob"), zerolog.Nop())
	RegisterRoutes(r, db, nil, index, nil, zerolog.Nop(), cfg)
	return r, db
}

func hit(r *gin.Engine, method, path string, header map[string]string) *httptest.ResponseRecorder {
	var body io.Reader
	if method != http.MethodGet {
		body = strings.NewReader("{}")
	}
	req := httptest.NewRequest(method, path, body)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRegisterRoutes_BaselineEndpoints(t *testing.T) {
	r, _ := newRouter(t, "routerdb", testConfig("/api/v1"))

	t.Run("health with allow-all CORS", func(t *testing.T) {
		w := hit(r, http.MethodGet, "/health", nil)
		if w.Code != http.StatusOK {
			t.Fatalf("GET /health = %d", w.Code)
		}
		if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
			t.Fatalf("expected wildcard origin, got %q", got)
		}
	})

	t.Run("metrics scrape", func(t *testing.T) {
		w := hit(r, http.MethodGet, "/metrics", nil)
		if w.Code != http.StatusOK || w.Body.Len() == 0 {
			t.Fatalf("GET /metrics: code=%d len=%d", w.Code, w.Body.Len())
		}
	})

	t.Run("unknown route is 404", func(t *testing.T) {
		if w := hit(r, http.MethodGet, "/nope", nil); w.Code != http.StatusNotFound {
			t.Fatalf("GET /nope = %d", w.Code)
		}
	})

	t.Run("wrong method is 405", func(t *testing.T) {
		if w := hit(r, http.MethodPost, "/health", nil); w.Code != http.StatusMethodNotAllowed {
			t.Fatalf("POST /health = %d", w.Code)
		}
	})
}

func TestRegisterRoutes_CORSAllowlistEcho(t *testing.T) {
	cfg := testConfig("/api/v2")
	cfg.CORS = config.CORSConfig{AllowedOrigins: []string{"http://example.com"}}
	r, _ := newRouter(t, "routerdb_cors", cfg)

	w := hit(r, http.MethodGet, "/health", map[string]string{"Origin": "http://example.com"})
	if w.Code != http.StatusOK {
		t.Fatalf("GET /health = %d", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://example.com" {
		t.Fatalf("expected origin echo, got %q", got)
	}
}

func Test_limitBody_Middleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(limitBody(10))
	r.POST("/echo", func(c *gin.Context) {
		if _, err := io.ReadAll(c.Request.Body); err != nil {
			c.String(http.StatusRequestEntityTooLarge, "too big")
			return
		}
		c.String(http.StatusOK, "ok")
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/echo", bytes.NewBufferString("0123456789AB")))
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413 past the cap, got %d", w.Code)
	}
}

func Test_groupWithPrefix(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()

	groupWithPrefix(r, "/").GET("/one", func(c *gin.Context) { c.String(http.StatusOK, "one") })
	groupWithPrefix(r, "").GET("/two", func(c *gin.Context) { c.String(http.StatusOK, "two") })
	groupWithPrefix(r, "/api").GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })

	for path, want := range map[string]string{"/one": "one", "/two": "two", "/api/ping": "pong"} {
		w := hit(r, http.MethodGet, path, nil)
		if w.Code != http.StatusOK || w.Body.String() != want {
			t.Fatalf("GET %s got %d %q", path, w.Code, w.Body.String())
		}
	}
}

// A request must survive the full chain: tracing, request id, logging,
// metrics, idempotency, rate limit, CORS, security headers, gzip.
func TestPipeline_Smoke(t *testing.T) {
	cfg := testConfig("/api/v1")
	cfg.Security = config.SecurityConfig{EnableHSTS: true, HSTSMaxAge: time.Hour}
	r, _ := newRouter(t, "routerdb_smoke", cfg)

	w := hit(r, http.MethodGet, "/health", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("pipeline GET /health = %d", w.Code)
	}
	if w.Header().Get("X-Request-ID") == "" {
		t.Fatalf("expected X-Request-ID on the response")
	}
}

func Test_catalogAndHistoryShims_Proxy(t *testing.T) {
	db := newTestDB(t, "routerdb_shims")
	ctx := context.Background()

	if err := db.Create(&domain.Product{Name: "Amoxicilina 500mg", Price: 8.5, Stock: 12}).Error; err != nil {
		t.Fatalf("seed product: %v", err)
	}
	sess := &domain.ChatSession{ID: "s1", UserID: "u1", Title: "t", IsActive: true}
	if err := db.Create(sess).Error; err != nil {
		t.Fatalf("seed session: %v", err)
	}
	for i, m := range []string{"hola", "buenas"} {
		msg := &domain.ChatMessage{ID: string(rune('a' + i)), SessionID: sess.ID, Sender: domain.SenderUser, Message: m}
		if err := db.Create(msg).Error; err != nil {
			t.Fatalf("seed message %d: %v", i, err)
		}
	}

	products, err := NewCatalogSource(db).ListAllProducts(ctx)
	if err != nil {
		t.Fatalf("ListAllProducts: %v", err)
	}
	if len(products) != 1 || products[0].Name != "Amoxicilina 500mg" {
		t.Fatalf("unexpected products: %+v", products)
	}

	history, err := historyShim{db: db}.RecentMessages(ctx, sess.ID, 10)
	if err != nil {
		t.Fatalf("RecentMessages: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("expected 2 history messages, got %d", len(history))
	}
}

func TestRegisterRoutes_IdempotencyCallback(t *testing.T) {
	r, db := newRouter(t, "routerdb_idem", testConfig("/api/vX"))

	header := map[string]string{
		"X-User-ID":                     "u1",
		middleware.HeaderIdempotencyKey: "key-hit",
	}

	// Miss: nothing recorded yet. POST /health answers 405 either way; the
	// point is driving the lookup closure.
	hit(r, http.MethodPost, "/health", header)

	seed := &domain.Idempotency{
		ID:        "idem-seed-1",
		UserID:    "u1",
		SessionID: "",
		Key:       "key-hit",
		MessageID: "m-1",
		Status:    200,
		ExpiresAt: time.Now().Add(time.Hour),
	}
	if err := db.Create(seed).Error; err != nil {
		t.Fatalf("seed idempotency: %v", err)
	}

	if w := hit(r, http.MethodPost, "/health", header); w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", w.Code)
	}
}

func TestRegisterRoutes_IdempotencyCallback_QueryError(t *testing.T) {
	r, db := newRouter(t, "routerdb_err", testConfig("/api/v1"))

	// Close the underlying connection so the lookup's query fails; the
	// middleware must treat that as a miss, not an error.
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db.DB(): %v", err)
	}
	_ = sqlDB.Close()

	w := hit(r, http.MethodPost, "/health", map[string]string{
		"X-User-ID":                     "u1",
		middleware.HeaderIdempotencyKey: "force-error",
	})
	if w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", w.Code)
	}
}
