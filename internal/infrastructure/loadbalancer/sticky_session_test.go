package loadbalancer

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func affinityRouter(a *Affinity) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(a.Middleware())
	r.GET("/ws", func(c *gin.Context) { c.Status(http.StatusOK) })
	return r
}

func TestAffinity_SetsSignedCookieOnFirstRequest(t *testing.T) {
	a := NewAffinity("secret", "dm_affinity", 3600)
	router := affinityRouter(a)

	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	req.RemoteAddr = "10.0.0.1:40000"
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, "dm_affinity", cookies[0].Name)
	assert.Contains(t, cookies[0].Value, ".")
}

func TestAffinity_ValidCookiePreserved(t *testing.T) {
	a := NewAffinity("secret", "dm_affinity", 3600)
	router := affinityRouter(a)

	first := httptest.NewRequest(http.MethodGet, "/ws", nil)
	first.RemoteAddr = "10.0.0.1:40000"
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, first)
	issued := rec.Result().Cookies()[0]

	second := httptest.NewRequest(http.MethodGet, "/ws", nil)
	second.RemoteAddr = "10.0.0.1:40001"
	second.AddCookie(issued)
	rec2 := httptest.NewRecorder()
	router.ServeHTTP(rec2, second)

	assert.Empty(t, rec2.Result().Cookies())
}

func TestAffinity_TamperedCookieReplaced(t *testing.T) {
	a := NewAffinity("secret", "dm_affinity", 3600)
	router := affinityRouter(a)

	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	req.RemoteAddr = "10.0.0.1:40000"
	req.AddCookie(&http.Cookie{Name: "dm_affinity", Value: "forged.deadbeef"})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.NotEqual(t, "forged.deadbeef", cookies[0].Value)
}

func TestAffinity_SessionIDStableForSameClient(t *testing.T) {
	a := NewAffinity("secret", "dm_affinity", 3600)

	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	req.RemoteAddr = "10.0.0.1:40000"
	req.Header.Set("User-Agent", "bench/1")

	assert.Equal(t, a.SessionID(req), a.SessionID(req))

	other := httptest.NewRequest(http.MethodGet, "/ws", nil)
	other.RemoteAddr = "10.0.0.2:40000"
	other.Header.Set("User-Agent", "bench/1")
	assert.NotEqual(t, a.SessionID(req), a.SessionID(other))
}
