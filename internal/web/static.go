package web

import (
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
)

const indexFile = "index.html"

// Only front-end asset types are served. The static roots may include the
// working directory, which also holds the data files and .env.
var assetExtensions = map[string]bool{
	".html": true, ".htm": true, ".css": true, ".js": true, ".mjs": true, ".map": true,
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".svg": true, ".webp": true, ".ico": true,
	".woff": true, ".woff2": true, ".ttf": true, ".otf": true,
	".webmanifest": true, ".txt": true,
}

// StaticFiles serves the storefront front end from the first root that has
// the requested file.
type StaticFiles struct {
	roots []string
}

func NewStaticFiles(roots []string) *StaticFiles {
	return &StaticFiles{roots: roots}
}

// Index returns the first index.html found across the roots.
func (s *StaticFiles) Index() (string, bool) {
	for _, root := range s.roots {
		candidate := filepath.Join(root, indexFile)
		if isRegularFile(candidate) {
			return candidate, true
		}
	}
	return "", false
}

// Lookup maps a URL path onto a file under one of the roots. Dot segments
// and non-asset extensions never match.
func (s *StaticFiles) Lookup(urlPath string) (string, bool) {
	clean := path.Clean("/" + urlPath)
	if clean == "/" {
		return "", false
	}
	for _, segment := range strings.Split(clean[1:], "/") {
		if strings.HasPrefix(segment, ".") {
			return "", false
		}
	}
	if !assetExtensions[strings.ToLower(path.Ext(clean))] {
		return "", false
	}

	for _, root := range s.roots {
		candidate := filepath.Join(root, filepath.FromSlash(clean))
		if isRegularFile(candidate) {
			return candidate, true
		}
	}
	return "", false
}

// ServeAsset writes the file for r's path when one exists.
func (s *StaticFiles) ServeAsset(w http.ResponseWriter, r *http.Request) bool {
	file, ok := s.Lookup(r.URL.Path)
	if !ok {
		return false
	}
	http.ServeFile(w, r, file)
	return true
}

// ServeIndex writes the SPA entry point when one exists.
func (s *StaticFiles) ServeIndex(w http.ResponseWriter, r *http.Request) bool {
	file, ok := s.Index()
	if !ok {
		return false
	}
	http.ServeFile(w, r, file)
	return true
}

func isRegularFile(name string) bool {
	info, err := os.Stat(name)
	return err == nil && info.Mode().IsRegular()
}
