package server

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"crmapp/internal/host"
)

const viewerKey = "crmapp.viewer"

// viewer is the identity a request acts as.
type viewer struct {
	UserID   int64
	Identity host.Identity
	// Known is false for the fallback identity, whose display data comes
	// from the backend instead of the host.
	Known  bool
	Scheme host.Scheme
}

func (v viewer) host() *host.Recorder {
	return host.NewRecorder(v.Identity, v.Known, v.Scheme)
}

type sessionClaims struct {
	UserID    int64  `json:"uid"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	Username  string `json:"username,omitempty"`
	Scheme    string `json:"scheme,omitempty"`
	jwt.RegisteredClaims
}

type sessions struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// issue signs a session token for id.
func (s *sessions) issue(id host.Identity, scheme host.Scheme) (string, error) {
	now := s.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, sessionClaims{
		UserID:    id.UserID,
		FirstName: id.FirstName,
		LastName:  id.LastName,
		Username:  id.Username,
		Scheme:    string(scheme),
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	})
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// verify parses a session token back into a viewer.
func (s *sessions) verify(raw string) (viewer, error) {
	var claims sessionClaims
	_, err := jwt.ParseWithClaims(raw, &claims, func(token *jwt.Token) (any, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(s.now))
	if err != nil {
		return viewer{}, fmt.Errorf("failed to parse token: %w", err)
	}
	if claims.UserID == 0 {
		return viewer{}, errors.New("token without user")
	}
	return viewer{
		UserID: claims.UserID,
		Identity: host.Identity{
			UserID:    claims.UserID,
			FirstName: claims.FirstName,
			LastName:  claims.LastName,
			Username:  claims.Username,
		},
		Known:  true,
		Scheme: host.ParseScheme(claims.Scheme),
	}, nil
}

type telegramAuthRequest struct {
	InitData    string `json:"init_data" form:"init_data" binding:"required"`
	ColorScheme string `json:"color_scheme" form:"color_scheme"`
}

// handleTelegramAuth exchanges the init-data injected by the chat client for
// a session cookie.
func (s *Server) handleTelegramAuth(c *gin.Context) {
	if s.opts.BotToken == "" {
		s.respondError(c, http.StatusServiceUnavailable, errors.New("telegram authentication is not configured"))
		return
	}

	var req telegramAuthRequest
	if err := c.ShouldBind(&req); err != nil {
		s.respondError(c, http.StatusBadRequest, err)
		return
	}

	id, err := host.ValidateInitData(req.InitData, s.opts.BotToken, s.opts.InitDataMaxAge, s.opts.Now())
	if err != nil {
		s.respondError(c, http.StatusUnauthorized, err)
		return
	}

	token, err := s.sessions.issue(id, host.ParseScheme(req.ColorScheme))
	if err != nil {
		s.respondError(c, http.StatusInternalServerError, err)
		return
	}
	s.setSessionCookie(c, token, int(s.sessions.ttl.Seconds()))
	c.JSON(http.StatusOK, gin.H{"user_id": id.UserID})
}

// handleLogout clears the cookie. A valid session also drops the user's
// controller and persisted page state.
func (s *Server) handleLogout(c *gin.Context) {
	if raw, err := c.Cookie(s.opts.CookieName); err == nil && raw != "" {
		if v, err := s.sessions.verify(raw); err == nil {
			if err := s.registry.Forget(c.Request.Context(), v.UserID); err != nil {
				s.logger.Warn("forget session", slog.Int64("user", v.UserID), slog.String("error", err.Error()))
			}
		}
	}
	s.setSessionCookie(c, "", -1)
	c.Status(http.StatusNoContent)
}

func (s *Server) setSessionCookie(c *gin.Context, value string, maxAge int) {
	secure := c.Request.TLS != nil
	if secure {
		// The web client embeds the app in a cross-site iframe.
		c.SetSameSite(http.SameSiteNoneMode)
	} else {
		c.SetSameSite(http.SameSiteLaxMode)
	}
	c.SetCookie(s.opts.CookieName, value, maxAge, "/", "", secure, true)
}

// identify resolves the viewer from the session cookie, falling back to the
// configured identity. Pages without a viewer get the sign-in page; other
// requests get 401.
func (s *Server) identify(pages bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		if raw, err := c.Cookie(s.opts.CookieName); err == nil && raw != "" {
			v, err := s.sessions.verify(raw)
			if err == nil {
				c.Set(viewerKey, v)
				c.Next()
				return
			}
			s.logger.Debug("rejecting session", "error", err)
		}

		if s.opts.FallbackUserID != 0 {
			c.Set(viewerKey, viewer{UserID: s.opts.FallbackUserID, Scheme: host.SchemeDark})
			c.Next()
			return
		}

		switch {
		case !pages:
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
		case c.Request.Method == http.MethodGet:
			s.renderAuth(c, "Signing in…")
			c.Abort()
		default:
			c.Redirect(http.StatusSeeOther, "/")
			c.Abort()
		}
	}
}

func viewerFrom(c *gin.Context) viewer {
	v, _ := c.Get(viewerKey)
	out, _ := v.(viewer)
	return out
}
