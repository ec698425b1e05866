package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mgrafton/linktally/internal/middleware"
)

const testRateLimit = 3

func newLimitedRouter(t *testing.T) *gin.Engine {
	t.Helper()

	gin.SetMode(gin.TestMode)
	done := make(chan struct{})
	t.Cleanup(func() { close(done) })

	r := gin.New()
	r.Use(middleware.RateLimiter(testRateLimit, time.Minute, done))
	r.POST("/api/track-click", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})

	return r
}

func doTrack(r *gin.Engine, remoteAddr string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/track-click", http.NoBody)
	req.RemoteAddr = remoteAddr
	r.ServeHTTP(w, req)
	return w
}

func TestRateLimiter_AllowsUnderLimit(t *testing.T) {
	r := newLimitedRouter(t)

	for i := 0; i < testRateLimit; i++ {
		if w := doTrack(r, "1.2.3.4:1234"); w.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i, w.Code)
		}
	}
}

func TestRateLimiter_BlocksOverLimit(t *testing.T) {
	r := newLimitedRouter(t)

	for i := 0; i < testRateLimit; i++ {
		if w := doTrack(r, "1.2.3.4:1234"); w.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i, w.Code)
		}
	}

	if w := doTrack(r, "1.2.3.4:1234"); w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 over limit, got %d", w.Code)
	}
}

func TestRateLimiter_TracksIPsIndependently(t *testing.T) {
	r := newLimitedRouter(t)

	for i := 0; i < testRateLimit; i++ {
		doTrack(r, "1.2.3.4:1234")
	}

	// A different IP still has a fresh budget.
	if w := doTrack(r, "5.6.7.8:1234"); w.Code != http.StatusOK {
		t.Fatalf("expected 200 for fresh IP, got %d", w.Code)
	}
}
