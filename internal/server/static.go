package server

import (
	"embed"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
)

//go:embed static
var staticFS embed.FS

// mountStatic serves the bridge script and stylesheet, from the configured
// directory when it exists and from the binary otherwise.
func (s *Server) mountStatic() {
	assets, err := fs.Sub(staticFS, "static")
	if err != nil {
		s.logger.Error("embedded assets missing", "error", err)
		return
	}
	root := http.FS(assets)

	if s.opts.StaticDir != "" {
		info, err := os.Stat(s.opts.StaticDir)
		if err != nil || !info.IsDir() {
			s.logger.Warn("static directory missing; using embedded assets", "path", s.opts.StaticDir, "error", err)
		} else {
			root = gin.Dir(s.opts.StaticDir, false)
		}
	}
	s.engine.StaticFS("/static", root)

	favicon := filepath.Join(s.opts.StaticDir, "favicon.ico")
	if _, err := os.Stat(favicon); s.opts.StaticDir != "" && err == nil {
		s.engine.StaticFile("/favicon.ico", favicon)
	}

	s.engine.NoRoute(func(c *gin.Context) {
		if strings.HasPrefix(c.Request.URL.Path, "/api/") || c.Request.Method != http.MethodGet {
			c.JSON(http.StatusNotFound, gin.H{"error": "endpoint not found"})
			return
		}
		c.Redirect(http.StatusFound, "/")
	})
}
