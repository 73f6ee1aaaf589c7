package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestOriginChecker(t *testing.T) {
	check := OriginChecker([]string{"https://Chat.Example.com/", " http://localhost:5173 "})

	req := func(origin string) *http.Request {
		r := httptest.NewRequest(http.MethodGet, "/ws", nil)
		if origin != "" {
			r.Header.Set("Origin", origin)
		}
		return r
	}
	assert.True(t, check(req("https://chat.example.com")))
	assert.True(t, check(req("http://localhost:5173")))
	assert.True(t, check(req("")))
	assert.False(t, check(req("https://evil.example.com")))
	assert.False(t, check(req("http://chat.example.com")))

	assert.True(t, OriginChecker(nil)(req("https://anything.io")))
	assert.True(t, OriginChecker([]string{"*"})(req("https://anything.io")))
}

func newEngine(mids ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(mids...)
	r.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })
	r.GET("/boom", func(*gin.Context) { panic("boom") })
	return r
}

func TestCORS(t *testing.T) {
	r := newEngine(CORS([]string{"https://chat.example.com"}))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("Origin", "https://chat.example.com")
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "https://chat.example.com", w.Header().Get("Access-Control-Allow-Origin"))

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	r.ServeHTTP(w, req)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodOptions, "/ping", nil)
	req.Header.Set("Origin", "https://chat.example.com")
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestAccessLogAndRecovery(t *testing.T) {
	r := newEngine(Recovery(), AccessLog("/healthz"))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	assert.Equal(t, "pong", w.Body.String())

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestMiddlewareManager(t *testing.T) {
	var order []string
	m := NewManager(func(c *gin.Context) { order = append(order, "a") })
	m.Add(func(c *gin.Context) { order = append(order, "b") })
	assert.Equal(t, 2, m.Len())

	r := newEngine(m.Use())
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/ping", nil))
	assert.Equal(t, []string{"a", "b"}, order)

	m.Add(func(c *gin.Context) { c.AbortWithStatus(http.StatusTeapot) })
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	assert.Equal(t, http.StatusTeapot, w.Code)

	m.Clear()
	assert.Zero(t, m.Len())
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRouteGuards(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	deny := func(c *gin.Context) { c.AbortWithStatus(http.StatusForbidden) }
	ok := func(c *gin.Context) { c.Status(http.StatusOK) }
	POST(r, "/guarded", ok, RouteOpt{Guards: []gin.HandlerFunc{nil, deny}})
	GET(r, "/open", ok, RouteOpt{})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/guarded", nil))
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/open", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}
