package loadbalancer

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// Affinity pins a browser's signaling connection to one broker instance
// across reconnects. When several broker instances share a Redis-backed
// room registry, the load balancer reads the affinity cookie to route a
// capture/viewer pair back to the instance that holds their dispatcher,
// instead of bouncing them mid-session.
type Affinity struct {
	secret     []byte
	cookieName string
	maxAge     int
}

func NewAffinity(secret, cookieName string, maxAge int) *Affinity {
	return &Affinity{secret: []byte(secret), cookieName: cookieName, maxAge: maxAge}
}

// Middleware ensures every response carries a signed affinity cookie. A
// valid incoming cookie is preserved untouched; a missing or tampered one
// is replaced with a fresh identity derived from the client fingerprint.
func (a *Affinity) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := a.sessionFromRequest(c.Request); !ok {
			a.setCookie(c.Writer, a.fingerprint(c))
		}
		c.Next()
	}
}

// SessionID returns the affinity identity for the request, minting one if
// the cookie is absent or fails signature verification.
func (a *Affinity) SessionID(r *http.Request) string {
	if id, ok := a.sessionFromRequest(r); ok {
		return id
	}
	return a.fingerprintRequest(r)
}

func (a *Affinity) sessionFromRequest(r *http.Request) (string, bool) {
	cookie, err := r.Cookie(a.cookieName)
	if err != nil || cookie.Value == "" {
		return "", false
	}

	id, sig, found := strings.Cut(cookie.Value, ".")
	if !found {
		return "", false
	}
	if !hmac.Equal([]byte(sig), []byte(a.sign(id))) {
		return "", false
	}
	return id, true
}

func (a *Affinity) setCookie(w http.ResponseWriter, id string) {
	http.SetCookie(w, &http.Cookie{
		Name:     a.cookieName,
		Value:    id + "." + a.sign(id),
		Path:     "/",
		MaxAge:   a.maxAge,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

func (a *Affinity) sign(id string) string {
	mac := hmac.New(sha256.New, a.secret)
	mac.Write([]byte(id))
	return hex.EncodeToString(mac.Sum(nil))
}

// fingerprint derives a stable identity from the client address and
// user agent, so a client that lost its cookie tends to land on the
// same instance anyway.
func (a *Affinity) fingerprint(c *gin.Context) string {
	sum := sha256.Sum256([]byte(c.ClientIP() + "|" + c.Request.UserAgent()))
	return hex.EncodeToString(sum[:16])
}

func (a *Affinity) fingerprintRequest(r *http.Request) string {
	host := r.RemoteAddr
	if idx := strings.LastIndex(host, ":"); idx != -1 {
		host = host[:idx]
	}
	sum := sha256.Sum256([]byte(host + "|" + r.UserAgent()))
	return hex.EncodeToString(sum[:16])
}
