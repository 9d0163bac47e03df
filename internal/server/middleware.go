package server

import (
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"crmapp/internal/host"
)

const requestIDHeader = "X-Request-ID"

// requestID tags every request with an id, reusing a sane incoming one.
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		c.Set(requestIDHeader, id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

// requestLogger logs one line per request; static assets and health checks
// are logged at debug.
func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		level := slog.LevelInfo
		switch {
		case c.Writer.Status() >= 500:
			level = slog.LevelError
		case c.FullPath() == "/api/healthz" || c.FullPath() == "/static/*filepath":
			level = slog.LevelDebug
		}
		logger.LogAttrs(c.Request.Context(), level, "request",
			slog.String("method", c.Request.Method),
			slog.String("path", c.Request.URL.Path),
			slog.Int("status", c.Writer.Status()),
			slog.Duration("latency", time.Since(start)),
			slog.String("request_id", c.GetString(requestIDHeader)),
		)
	}
}

// sameOrigin rejects state-changing requests issued by other sites. Under
// TLS the session cookie is SameSite=None, so the browser attaches it to
// cross-site form posts. Explicitly allowed origins pass; the "*" wildcard
// does not count.
func sameOrigin(allowed []string, logger *slog.Logger) gin.HandlerFunc {
	trusted := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		if o != "*" {
			trusted[strings.TrimRight(o, "/")] = true
		}
	}
	return func(c *gin.Context) {
		switch c.Request.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			c.Next()
			return
		}

		origin := c.GetHeader("Origin")
		ok := true
		switch {
		case origin != "":
			u, err := url.Parse(origin)
			ok = trusted[origin] || (err == nil && u.Host != "" && u.Host == c.Request.Host)
		default:
			// Browsers that omit Origin still send fetch metadata.
			site := c.GetHeader("Sec-Fetch-Site")
			ok = site != "cross-site" && site != "same-site"
		}
		if !ok {
			logger.Warn("cross-site request rejected",
				slog.String("path", c.Request.URL.Path),
				slog.String("origin", origin),
				slog.String("request_id", c.GetString(requestIDHeader)))
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "cross-site request rejected"})
			return
		}
		c.Next()
	}
}

// pendingEffects holds haptic effects of actions until the page rendered
// after the redirect replays them.
type pendingEffects struct {
	mu     sync.Mutex
	byUser map[int64][]host.Effect
}

func newPendingEffects() *pendingEffects {
	return &pendingEffects{byUser: make(map[int64][]host.Effect)}
}

func (p *pendingEffects) add(userID int64, effects []host.Effect) {
	if len(effects) == 0 {
		return
	}
	p.mu.Lock()
	p.byUser[userID] = append(p.byUser[userID], effects...)
	p.mu.Unlock()
}

func (p *pendingEffects) take(userID int64) []host.Effect {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := p.byUser[userID]
	delete(p.byUser, userID)
	return out
}
