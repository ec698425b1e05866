package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
)

// IsBotKey is the context key set by BotFilter.
const IsBotKey = "is_bot"

// botPatterns are known bot User-Agent substrings (lowercase).
var botPatterns = []string{
	"googlebot", "bingbot", "slurp", "duckduckbot",
	"baiduspider", "yandexbot", "facebookexternalhit",
	"twitterbot", "rogerbot", "linkedinbot", "embedly",
	"quora link preview", "showyoubot", "outbrain",
	"pinterest", "applebot", "semrushbot", "ahrefsbot",
	"mj12bot", "dotbot", "petalbot", "bytespider",
}

// BotFilter sets IsBotKey for known bot user agents. The track handler
// checks the flag to skip recording and broadcasting while still
// redirecting, so crawlers never pollute the click counts.
func BotFilter() gin.HandlerFunc {
	return func(c *gin.Context) {
		ua := strings.ToLower(c.Request.UserAgent())
		if ua == "" || isBot(ua) {
			c.Set(IsBotKey, true)
		}
		c.Next()
	}
}

func isBot(ua string) bool {
	for _, pattern := range botPatterns {
		if strings.Contains(ua, pattern) {
			return true
		}
	}
	return false
}
