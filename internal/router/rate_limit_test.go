package router

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

type memoryWindow struct {
	mu     sync.Mutex
	counts map[string]int64
	keys   []string
	err    error
}

func (m *memoryWindow) Incr(_ context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return 0, 0, m.err
	}
	if m.counts == nil {
		m.counts = map[string]int64{}
	}
	m.counts[key]++
	m.keys = append(m.keys, key)
	return m.counts[key], window / 2, nil
}

func newLimitedEngine(counter windowCounter, rule RateLimitRule) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/api/orders", rateLimitHandler(counter, func(k string) string { return "test:" + k }, rule, KeyByIPAndJSONField("customer_email")), func(c *gin.Context) {
		body, _ := io.ReadAll(c.Request.Body)
		c.String(http.StatusOK, string(body))
	})
	return r
}

func postOrder(r *gin.Engine, email string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/orders", strings.NewReader(`{"customer_email":"`+email+`"}`))
	req.Header.Set("Content-Type", "application/json")
	req.RemoteAddr = "10.0.0.9:4000"
	r.ServeHTTP(w, req)
	return w
}

func TestKeyByIPAndJSONField(t *testing.T) {
	gin.SetMode(gin.TestMode)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/api/orders", strings.NewReader(`{"customer_email":" Buyer@Example.com ","quantity":2}`))
	c.Request.Header.Set("Content-Type", "application/json")
	c.Request.RemoteAddr = "1.2.3.4:5678"

	key := KeyByIPAndJSONField("customer_email")(c)
	if key != "buyer@example.com|1.2.3.4" {
		t.Fatalf("key want buyer@example.com|1.2.3.4 got %s", key)
	}
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		t.Fatalf("read body after key extraction failed: %v", err)
	}
	if !strings.Contains(string(body), "Buyer@Example.com") {
		t.Fatalf("request body should be restored after reading field")
	}
}

func TestKeyByIPAndJSONFieldFallsBackToIP(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodPost, "/api/orders", strings.NewReader(`{"customer_email":42}`))
	c.Request.RemoteAddr = "1.2.3.4:5678"

	if key := KeyByIPAndJSONField("customer_email")(c); key != "1.2.3.4" {
		t.Fatalf("non-string field should fall back to ip, got %s", key)
	}
}

func TestRateLimitBlocksAfterMax(t *testing.T) {
	counter := &memoryWindow{}
	r := newLimitedEngine(counter, RateLimitRule{Scene: "order", WindowSeconds: 60, MaxRequests: 2})

	for i := 0; i < 2; i++ {
		w := postOrder(r, "a@example.com")
		if w.Code != http.StatusOK {
			t.Fatalf("request %d want 200 got %d", i, w.Code)
		}
		if !strings.Contains(w.Body.String(), "a@example.com") {
			t.Fatalf("handler should still see the body, got %s", w.Body.String())
		}
	}
	w := postOrder(r, "a@example.com")
	if w.Code != http.StatusOK {
		t.Fatalf("envelope responses use http 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"status_code":429`) {
		t.Fatalf("third request should be limited, got %s", w.Body.String())
	}
	if w.Header().Get("Retry-After") != "30" {
		t.Fatalf("retry-after want 30 got %q", w.Header().Get("Retry-After"))
	}
	if w.Header().Get("X-RateLimit-Remaining") != "0" {
		t.Fatalf("remaining want 0 got %q", w.Header().Get("X-RateLimit-Remaining"))
	}

	// 不同邮箱独立计数
	if w := postOrder(r, "b@example.com"); strings.Contains(w.Body.String(), `"status_code":429`) {
		t.Fatalf("another subject should not be limited")
	}
	if counter.keys[0] != "test:ratelimit:order:a@example.com|10.0.0.9" {
		t.Fatalf("unexpected counter key %s", counter.keys[0])
	}
}

func TestRateLimitCounterFailure(t *testing.T) {
	down := &memoryWindow{err: errors.New("redis down")}

	open := postOrder(newLimitedEngine(down, RateLimitRule{Scene: "callback", WindowSeconds: 60, MaxRequests: 1, FailOpen: true}), "a@example.com")
	if strings.Contains(open.Body.String(), "status_code") {
		t.Fatalf("fail-open rule should pass through, got %s", open.Body.String())
	}

	closed := postOrder(newLimitedEngine(down, RateLimitRule{Scene: "order", WindowSeconds: 60, MaxRequests: 1}), "a@example.com")
	if !strings.Contains(closed.Body.String(), `"status_code":500`) {
		t.Fatalf("fail-closed rule should reject, got %s", closed.Body.String())
	}
}

func TestRateLimitMiddlewareWithoutClient(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.Use(RateLimitMiddleware(nil, RateLimitRule{WindowSeconds: 60, MaxRequests: 1}, KeyByIP))
	r.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})

	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
		if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"ok":true`) {
			t.Fatalf("request %d should pass through, got %d %s", i, w.Code, w.Body.String())
		}
	}
}
