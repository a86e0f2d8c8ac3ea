package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/farmassist/go-pharmacy-backend/internal/domain"
	"github.com/farmassist/go-pharmacy-backend/internal/services"
)

// ---------- test DB + wiring ----------

func newHandlerDB(t *testing.T) *gorm.DB {
	t.Helper()

	// Unique DSN per call to avoid cross-test contamination
	dsn := fmt.Sprintf("file:handlers_%s?mode=memory&cache=shared", uuid.NewString())

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}

	db.Exec("PRAGMA foreign_keys=ON;")
	if err := db.AutoMigrate(&domain.Product{}, &domain.ChatSession{}, &domain.ChatMessage{}, &domain.Idempotency{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

// newTestHandlers wires real services over an in-memory DB with a stubbed
// response generator, mirroring the production wiring in the router.
func newTestHandlers(t *testing.T, gen services.ResponseGenerator) (*Handlers, *gorm.DB) {
	t.Helper()
	db := newHandlerDB(t)
	chatSvc := services.NewChatService(db)
	msgSvc := services.NewMessageService(db, gen, zerolog.Nop())
	productSvc := &services.ProductService{DB: db}
	return New(chatSvc, msgSvc, productSvc), db
}

func newSessionRouter(h *Handlers) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/sessions", h.CreateSession)
	r.GET("/sessions", h.ListSessions)
	r.PUT("/sessions/:id/title", h.UpdateSessionTitle)
	r.DELETE("/sessions/:id", h.CloseSession)
	return r
}

func doJSON(t *testing.T, r *gin.Engine, method, path, user string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if user != "" {
		req.Header.Set("X-User-ID", user)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

// ---------- tests ----------

func TestCreateSession_DefaultsAndBadJSON(t *testing.T) {
	h, _ := newTestHandlers(t, nil)
	r := newSessionRouter(h)

	w := doJSON(t, r, http.MethodPost, "/sessions", "u1", CreateSessionRequest{})
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	var s domain.ChatSession
	if err := json.Unmarshal(w.Body.Bytes(), &s); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if s.Title != "Nueva conversación" || s.UserID != "u1" || !s.IsActive {
		t.Fatalf("unexpected session: %+v", s)
	}

	// Malformed JSON → 400 with stable code.
	req := httptest.NewRequest(http.MethodPost, "/sessions", bytes.NewBufferString("{"))
	w2 := httptest.NewRecorder()
	r.ServeHTTP(w2, req)
	if w2.Code != http.StatusBadRequest {
		t.Fatalf("bad json status = %d", w2.Code)
	}
	var er ErrorResponse
	_ = json.Unmarshal(w2.Body.Bytes(), &er)
	if er.Code != ErrCodeBadRequest {
		t.Fatalf("error code = %q", er.Code)
	}
}

func TestListSessions_PaginationAndETag(t *testing.T) {
	h, _ := newTestHandlers(t, nil)
	r := newSessionRouter(h)

	for i := 0; i < 3; i++ {
		if w := doJSON(t, r, http.MethodPost, "/sessions", "u1", CreateSessionRequest{Title: fmt.Sprintf("s%d", i)}); w.Code != http.StatusCreated {
			t.Fatalf("seed %d: %d", i, w.Code)
		}
	}

	w := doJSON(t, r, http.MethodGet, "/sessions?page=1&page_size=2", "u1", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp ListSessionsResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Sessions) != 2 || resp.Pagination.Total != 3 || !resp.Pagination.HasNext {
		t.Fatalf("unexpected page: %+v", resp.Pagination)
	}

	etag := w.Header().Get("ETag")
	if etag == "" {
		t.Fatalf("expected ETag header")
	}
	req := httptest.NewRequest(http.MethodGet, "/sessions", nil)
	req.Header.Set("X-User-ID", "u1")
	req.Header.Set("If-None-Match", etag)
	w2 := httptest.NewRecorder()
	r.ServeHTTP(w2, req)
	if w2.Code != http.StatusNotModified {
		t.Fatalf("expected 304, got %d", w2.Code)
	}
}

func TestUpdateSessionTitle_Paths(t *testing.T) {
	h, _ := newTestHandlers(t, nil)
	r := newSessionRouter(h)

	w := doJSON(t, r, http.MethodPost, "/sessions", "u1", CreateSessionRequest{})
	var s domain.ChatSession
	_ = json.Unmarshal(w.Body.Bytes(), &s)

	// Not a UUID → 400.
	if w := doJSON(t, r, http.MethodPut, "/sessions/not-a-uuid/title", "u1", UpdateSessionTitleRequest{Title: "x"}); w.Code != http.StatusBadRequest {
		t.Fatalf("bad uuid status = %d", w.Code)
	}
	// Unknown session → 404.
	if w := doJSON(t, r, http.MethodPut, "/sessions/"+uuid.NewString()+"/title", "u1", UpdateSessionTitleRequest{Title: "x"}); w.Code != http.StatusNotFound {
		t.Fatalf("missing session status = %d", w.Code)
	}
	// Foreign owner → 404.
	if w := doJSON(t, r, http.MethodPut, "/sessions/"+s.ID+"/title", "u2", UpdateSessionTitleRequest{Title: "x"}); w.Code != http.StatusNotFound {
		t.Fatalf("foreign owner status = %d", w.Code)
	}
	// Success → 204.
	if w := doJSON(t, r, http.MethodPut, "/sessions/"+s.ID+"/title", "u1", UpdateSessionTitleRequest{Title: "Dolor de cabeza"}); w.Code != http.StatusNoContent {
		t.Fatalf("rename status = %d, body = %s", w.Code, w.Body.String())
	}
}

func TestCloseSession_Paths(t *testing.T) {
	h, _ := newTestHandlers(t, nil)
	r := newSessionRouter(h)

	w := doJSON(t, r, http.MethodPost, "/sessions", "u1", CreateSessionRequest{})
	var s domain.ChatSession
	_ = json.Unmarshal(w.Body.Bytes(), &s)

	if w := doJSON(t, r, http.MethodDelete, "/sessions/"+s.ID, "u1", nil); w.Code != http.StatusNoContent {
		t.Fatalf("close status = %d", w.Code)
	}
	if w := doJSON(t, r, http.MethodDelete, "/sessions/"+uuid.NewString(), "u1", nil); w.Code != http.StatusNotFound {
		t.Fatalf("missing close status = %d", w.Code)
	}
	if w := doJSON(t, r, http.MethodDelete, "/sessions/zzz", "u1", nil); w.Code != http.StatusBadRequest {
		t.Fatalf("bad uuid close status = %d", w.Code)
	}
}
