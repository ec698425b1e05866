package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/mgrafton/linktally/internal/middleware"
)

func botFlagForUA(t *testing.T, userAgent string) bool {
	t.Helper()

	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(middleware.BotFilter())

	var flagged bool
	r.POST("/api/track-click", func(c *gin.Context) {
		flagged = c.GetBool(middleware.IsBotKey)
		c.String(http.StatusOK, "ok")
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/track-click", http.NoBody)
	if userAgent != "" {
		req.Header.Set("User-Agent", userAgent)
	}
	r.ServeHTTP(w, req)

	return flagged
}

func TestBotFilter(t *testing.T) {
	cases := []struct {
		name      string
		userAgent string
		wantBot   bool
	}{
		{"browser", "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) Safari/605.1.15", false},
		{"googlebot", "Googlebot/2.1 (+http://www.google.com/bot.html)", true},
		{"mixed case", "Mozilla/5.0 (compatible; AhrefsBot/7.0)", true},
		{"empty user agent", "", true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := botFlagForUA(t, tc.userAgent); got != tc.wantBot {
				t.Errorf("bot flag for %q: got %v, want %v", tc.userAgent, got, tc.wantBot)
			}
		})
	}
}
