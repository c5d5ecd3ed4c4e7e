// Package content serves the compressed media tree under <baseUrl>/content/,
// honoring HTTP Range requests for streaming playback.
package content

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/julienschmidt/httprouter"
)

// immutableExts get a far-future cache lifetime: once written, a job's
// output files are never mutated in place (Layout.Clean removes and
// regenerates them wholesale on reprocessing).
var immutableExts = map[string]bool{
	".mp4":  true,
	".webm": true,
	".ts":   true,
	".webp": true,
}

// Server serves files under Root at the URL path prefix it's mounted on.
type Server struct {
	Root string
}

func NewServer(root string) *Server {
	return &Server{Root: root}
}

// Handle implements httprouter.Handle for a wildcard route capturing the
// rest of the path after /content/ as "filepath".
func (s *Server) Handle(w http.ResponseWriter, req *http.Request, ps httprouter.Params) {
	for _, seg := range strings.Split(ps.ByName("filepath"), "/") {
		if seg == ".." {
			http.NotFound(w, req)
			return
		}
	}
	rel := filepath.Clean("/" + ps.ByName("filepath"))
	path := filepath.Join(s.Root, rel)

	if !strings.HasPrefix(path, filepath.Clean(s.Root)+string(filepath.Separator)) {
		http.NotFound(w, req)
		return
	}

	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".m3u8" {
		w.Header().Set("Cache-Control", "public, max-age=10")
	} else if immutableExts[ext] {
		w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	}
	w.Header().Set("Accept-Ranges", "bytes")

	if info, err := os.Stat(path); err == nil {
		w.Header().Set("ETag", etagFor(info.Size(), info.ModTime().UnixNano()))
	}

	// http.ServeFile sets Last-Modified and handles the full RFC 7233 Range
	// negotiation (including suffix ranges and 416 on an unsatisfiable
	// range) without reimplementing any of it by hand; it doesn't generate
	// an ETag itself, so that's set above from the file's size and mtime.
	http.ServeFile(w, req, path)
}

func etagFor(size, mtimeNano int64) string {
	return fmt.Sprintf(`"%x-%x"`, size, mtimeNano)
}
