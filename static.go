package main

import (
	"bytes"
	"embed"
	"io/fs"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// Embed built frontend distribution.
//
//go:embed all:frontend/dist
var staticAssets embed.FS

// attachStatic registers embedded static asset middleware:
//  1. Intercepts GET/HEAD requests not under /api
//  2. If a static file matches, serve it directly and Abort
//  3. If no match and the path has no '.' and Accept includes text/html,
//     treat as SPA route and serve index.html
//  4. otherwise pass through
func attachStatic(engine *gin.Engine) {
	distFS, err := fs.Sub(staticAssets, "frontend/dist")
	if err != nil {
		return
	}
	if _, err := fs.Stat(distFS, "index.html"); err != nil {
		return
	}

	var (
		indexOnce  sync.Once
		indexBytes []byte
	)
	loadIndex := func() {
		indexBytes, _ = fs.ReadFile(distFS, "index.html")
	}

	fileServer := http.FileServer(http.FS(distFS))
	started := time.Now()

	serveIndex := func(c *gin.Context) {
		indexOnce.Do(loadIndex)
		if len(indexBytes) == 0 {
			return
		}
		c.Header("Cache-Control", "no-cache")
		c.Header("Content-Type", "text/html; charset=utf-8")
		http.ServeContent(c.Writer, c.Request, "index.html", started, bytes.NewReader(indexBytes))
		c.Abort()
	}

	engine.Use(func(c *gin.Context) {
		if c.Request.Method != http.MethodGet && c.Request.Method != http.MethodHead {
			return
		}
		p := c.Request.URL.Path
		// Let API + websocket routes fall through.
		if strings.HasPrefix(p, "/api") || p == "/healthz" {
			return
		}
		if p == "/" {
			serveIndex(c)
			return
		}
		trimmed := strings.TrimPrefix(p, "/")
		if trimmed == "" {
			return
		}
		if f, err := distFS.Open(trimmed); err == nil {
			_ = f.Close()
			if fi, serr := fs.Stat(distFS, trimmed); serr == nil && fi.IsDir() {
				serveIndex(c)
				return
			}
			fileServer.ServeHTTP(c.Writer, c.Request)
			c.Abort()
			return
		}

		// SPA fallback: serve index.html for client-side routes.
		if !strings.Contains(trimmed, ".") && acceptHTML(c.Request.Header.Get("Accept")) {
			serveIndex(c)
		}
	})
}

// acceptHTML determines if the given accept header string indicates
// that the client accepts HTML content.
func acceptHTML(accept string) bool {
	// Treat missing Accept as HTML navigation.
	if accept == "" {
		return true
	}
	for _, part := range strings.Split(accept, ",") {
		p := strings.TrimSpace(strings.ToLower(part))
		if strings.HasPrefix(p, "text/html") || strings.HasPrefix(p, "application/xhtml+xml") {
			return true
		}
	}
	return false
}
