package content

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/julienschmidt/httprouter"
	"github.com/stretchr/testify/require"
)

func TestHandleServesFileWithExpectedCacheControl(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "2026", "08", "1"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "2026", "08", "1", "480p.mp4"), []byte("data"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "2026", "08", "1", "master.m3u8"), []byte("#EXTM3U"), 0o644))

	s := NewServer(root)

	req := httptest.NewRequest(http.MethodGet, "/content/2026/08/1/480p.mp4", nil)
	rec := httptest.NewRecorder()
	s.Handle(rec, req, httprouter.Params{{Key: "filepath", Value: "/2026/08/1/480p.mp4"}})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Header().Get("Cache-Control"), "immutable")

	req = httptest.NewRequest(http.MethodGet, "/content/2026/08/1/master.m3u8", nil)
	rec = httptest.NewRecorder()
	s.Handle(rec, req, httprouter.Params{{Key: "filepath", Value: "/2026/08/1/master.m3u8"}})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Header().Get("Cache-Control"), "max-age=10")
}

func TestHandleSetsETagFromSizeAndModTime(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "480p.mp4"), []byte("some video bytes"), 0o644))

	s := NewServer(root)
	req := httptest.NewRequest(http.MethodGet, "/content/480p.mp4", nil)
	rec := httptest.NewRecorder()
	s.Handle(rec, req, httprouter.Params{{Key: "filepath", Value: "/480p.mp4"}})

	require.Equal(t, http.StatusOK, rec.Code)
	etag := rec.Header().Get("ETag")
	require.NotEmpty(t, etag)
	require.True(t, strings.HasPrefix(etag, `"`) && strings.HasSuffix(etag, `"`))
}

func TestHandleRejectsPathTraversal(t *testing.T) {
	root := t.TempDir()
	s := NewServer(root)

	req := httptest.NewRequest(http.MethodGet, "/content/../../etc/passwd", nil)
	rec := httptest.NewRecorder()
	s.Handle(rec, req, httprouter.Params{{Key: "filepath", Value: "/../../etc/passwd"}})
	require.Equal(t, http.StatusNotFound, rec.Code)
}
