package utils

import (
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsVideoFile(t *testing.T) {
	assert.True(t, IsVideoFile("/media/Movie.MKV"))
	assert.True(t, IsVideoFile("clip.mp4"))
	assert.False(t, IsVideoFile("poster.jpg"))
	assert.False(t, IsVideoFile("noext"))
}

func TestIsTrickplayDirectory(t *testing.T) {
	assert.True(t, IsTrickplayDirectory("/media/movie.trickplay"))
	assert.True(t, IsTrickplayDirectory("/media/movie.trickplay/.staging-1234"))
	assert.True(t, IsTrickplayDirectory("/media/.jellyfin"))
	assert.False(t, IsTrickplayDirectory("/media/movies"))

	assert.True(t, IsInsideTrickplayDirectory("/media", "/media/a.trickplay/frames/0.jpg"))
	assert.False(t, IsInsideTrickplayDirectory("/media", "/media/shows/s01/e01.mp4"))
	assert.False(t, IsInsideTrickplayDirectory("/media/x.trickplay", "/media/x.trickplay/clip.mp4"),
		"the root itself is not checked")
}

func TestFileAndDirExists(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "a.mp4")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0644))

	assert.True(t, FileExists(file))
	assert.False(t, FileExists(dir))
	assert.False(t, FileExists(filepath.Join(dir, "missing")))
	assert.True(t, DirExists(dir))
	assert.False(t, DirExists(file))
}

func TestGetAssetContentType(t *testing.T) {
	tests := map[string]string{
		"0.jpg":          "image/jpeg",
		"1.JPEG":         "image/jpeg",
		"2.webp":         "image/webp",
		"thumbnails.vtt": "text/vtt; charset=utf-8",
		"manifest.json":  "application/json",
		"unknown":        "application/octet-stream",
	}
	for name, want := range tests {
		assert.Equal(t, want, GetAssetContentType(name), name)
	}
}

func TestSafeJoin(t *testing.T) {
	path, err := SafeJoin("/out", "0.jpg")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/out", "0.jpg"), path)

	for _, name := range []string{"", ".", "..", "../etc/passwd", "a/b.jpg", `a\b.jpg`} {
		_, err := SafeJoin("/out", name)
		assert.Error(t, err, name)
	}
}

func TestSetCacheHeaders(t *testing.T) {
	w := httptest.NewRecorder()
	SetCacheHeaders(w, "abc")
	assert.Equal(t, `"abc"`, w.Header().Get("ETag"))
	assert.NotEmpty(t, w.Header().Get("Cache-Control"))

	w = httptest.NewRecorder()
	SetCacheHeaders(w, "")
	assert.Empty(t, w.Header().Get("ETag"))
}

func TestContentHash(t *testing.T) {
	a := ContentHash("job-1", "0.jpg")
	assert.Len(t, a, 64)
	assert.Equal(t, a, ContentHash("job-1", "0.jpg"))
	assert.NotEqual(t, a, ContentHash("job-10", ".jpg"))
}

func TestUUIDs(t *testing.T) {
	assert.Len(t, GenerateUUID(), 36)
	assert.NotEqual(t, GenerateUUID(), GenerateUUID())
	assert.Len(t, GenerateShortUUID(), 8)
}

func TestCPUCount(t *testing.T) {
	assert.GreaterOrEqual(t, CPUCount(), 1)
}
