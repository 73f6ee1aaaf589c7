package middleware

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
)

// OriginChecker builds the websocket upgrader's CheckOrigin. An empty list
// or a "*" entry allows every origin; requests without an Origin header
// (non-browser clients) always pass.
func OriginChecker(allowed []string) func(*http.Request) bool {
	set, all := originSet(allowed)
	return func(r *http.Request) bool {
		if all {
			return true
		}
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[normOrigin(origin)]
		return ok
	}
}

// CORS answers preflight requests and sets the allow headers for origins in
// the list, mirroring the websocket check.
func CORS(allowed []string) gin.HandlerFunc {
	set, all := originSet(allowed)
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin != "" {
			_, ok := set[normOrigin(origin)]
			if all || ok {
				h := c.Writer.Header()
				h.Set("Access-Control-Allow-Origin", origin)
				h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
				h.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Internal-Token")
				h.Add("Vary", "Origin")
			}
		}
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
		}
	}
}

func originSet(allowed []string) (map[string]struct{}, bool) {
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		o = strings.TrimSpace(o)
		if o == "" {
			continue
		}
		if o == "*" {
			return nil, true
		}
		set[normOrigin(o)] = struct{}{}
	}
	return set, len(set) == 0
}

// normOrigin lowercases scheme and host and drops any trailing slash.
func normOrigin(o string) string {
	u, err := url.Parse(strings.TrimSpace(o))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return strings.ToLower(strings.TrimRight(o, "/"))
	}
	return strings.ToLower(u.Scheme + "://" + u.Host)
}
