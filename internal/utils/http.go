package utils

import (
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
)

// GetAssetContentType returns the MIME type for a generated trickplay asset.
//
// Examples:
//   - "0.jpg" -> "image/jpeg"
//   - "thumbnails.vtt" -> "text/vtt"
//   - "unknown" -> "application/octet-stream"
func GetAssetContentType(filePath string) string {
	switch GetFileExtension(filePath) {
	case "jpg", "jpeg":
		return "image/jpeg"
	case "png":
		return "image/png"
	case "webp":
		return "image/webp"
	case "gif":
		return "image/gif"
	case "bmp":
		return "image/bmp"
	case "tif", "tiff":
		return "image/tiff"
	case "vtt":
		return "text/vtt; charset=utf-8"
	case "json":
		return "application/json"
	default:
		return "application/octet-stream"
	}
}

// SetCacheHeaders marks a response as cacheable. Completed tilesheet sets
// are replaced as a whole, so the ETag only needs to identify the set.
func SetCacheHeaders(w http.ResponseWriter, etag string) {
	w.Header().Set("Cache-Control", "public, max-age=3600")
	if etag != "" {
		w.Header().Set("ETag", fmt.Sprintf("%q", etag))
	}
}

// SafeJoin joins a single file name onto dir, rejecting names that would
// escape it.
func SafeJoin(dir, name string) (string, error) {
	if name == "" || name == "." || name == ".." ||
		strings.ContainsAny(name, `/\`) || filepath.Base(name) != name {
		return "", fmt.Errorf("invalid file name: %q", name)
	}
	return filepath.Join(dir, name), nil
}

// GetFileExtension returns the file extension from a file path.
// The extension is returned in lowercase without the leading dot.
//
// Examples:
//   - "/path/to/0.JPG" -> "jpg"
//   - "/path/to/file" -> ""
func GetFileExtension(filePath string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(filePath), "."))
}
