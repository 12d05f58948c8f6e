package server

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

// apiPrefixes are always routed to the API handler.
var apiPrefixes = []string{
	"/api/", "/auth/", "/user/", "/news/", "/ws/", "/ai-assistant",
	"/market-impact/", "/analysis-history", "/comparison/",
}

func isAPIPath(p string) bool {
	if p == "/healthz" || p == "/metrics" {
		return true
	}
	for _, prefix := range apiPrefixes {
		if strings.HasPrefix(p, prefix) {
			return true
		}
	}
	return false
}

// SPAMiddleware wraps an http.Handler to serve a Single Page Application
// from staticDir. API paths pass through. Existing files are served as is and
// every other path gets index.html so client side routing works.
func SPAMiddleware(next http.Handler, staticDir string) http.Handler {
	files := http.FileServer(http.Dir(staticDir))
	index := filepath.Join(staticDir, "index.html")

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isAPIPath(r.URL.Path) || (r.Method != http.MethodGet && r.Method != http.MethodHead) {
			next.ServeHTTP(w, r)
			return
		}
		if r.URL.Path == "/" {
			http.ServeFile(w, r, index)
			return
		}

		path := filepath.Join(staticDir, filepath.Clean("/"+r.URL.Path))
		if info, err := os.Stat(path); err != nil || info.IsDir() {
			http.ServeFile(w, r, index)
			return
		}
		files.ServeHTTP(w, r)
	})
}
