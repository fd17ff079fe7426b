package api

import (
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
)

const indexFile = "index.html"

var contentTypes = map[string]string{
	".html": "text/html",
	".js":   "text/javascript",
	".css":  "text/css",
	".json": "application/json",
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".wav":  "audio/wav",
}

// ContentType maps a file name to the Content-Type the asset server sends.
func ContentType(name string) string {
	if ct, ok := contentTypes[strings.ToLower(filepath.Ext(name))]; ok {
		return ct
	}
	return "application/octet-stream"
}

// resolveAsset maps a URL path to a file under root. Cleaning the rooted path
// strips any ".." so the result never leaves root.
func resolveAsset(root, urlPath string) string {
	clean := path.Clean("/" + urlPath)
	if clean == "/" {
		clean = "/" + indexFile
	}
	return filepath.Join(root, filepath.FromSlash(clean))
}

// handleAsset serves a file from the web root with no caching headers.
// Anything that cannot be read as a regular file is a plain 404.
func (s *Server) handleAsset(w http.ResponseWriter, r *http.Request) {
	name := resolveAsset(s.webRoot, r.URL.Path)

	info, err := os.Stat(name)
	if err != nil || !info.Mode().IsRegular() {
		s.notFound(w)
		return
	}
	body, err := os.ReadFile(name)
	if err != nil {
		s.logger.Printf("asset_read_failed path=%s err=%v", r.URL.Path, err)
		s.notFound(w)
		return
	}

	w.Header().Set("Content-Type", ContentType(name))
	w.WriteHeader(http.StatusOK)
	if r.Method != http.MethodHead {
		w.Write(body)
	}
}

func (s *Server) notFound(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusNotFound)
	w.Write([]byte("Not found"))
}
