// Package utils provides file system helpers, ID generation and host
// introspection shared by the trickplay packages.
package utils

import (
	"os"
	"path/filepath"
	"strings"
)

// VideoExtensions contains the source video extensions the watcher picks up.
var VideoExtensions = map[string]bool{
	".mp4":  true,
	".mkv":  true,
	".avi":  true,
	".mov":  true,
	".wmv":  true,
	".flv":  true,
	".webm": true,
	".m4v":  true,
	".3gp":  true,
	".ogv":  true,
	".ts":   true,
}

// IsVideoFile reports whether the path has a known video extension.
func IsVideoFile(filePath string) bool {
	return VideoExtensions[strings.ToLower(filepath.Ext(filePath))]
}

// IsTrickplayDirectory returns true if a directory looks like generated
// preview output (ours or another media server's). The watcher skips these so
// it never reacts to files it produced itself.
func IsTrickplayDirectory(dirPath string) bool {
	dirName := strings.ToLower(filepath.Base(dirPath))
	patterns := []string{
		".trickplay", "previews", "thumbnails", "sprites",
		"storyboard", ".staging-", ".plex", ".emby", ".jellyfin",
	}

	for _, pattern := range patterns {
		if strings.Contains(dirName, pattern) {
			return true
		}
	}
	return false
}

// IsInsideTrickplayDirectory checks every directory between root
// (exclusive) and filePath.
func IsInsideTrickplayDirectory(root, filePath string) bool {
	root = filepath.Clean(root)
	dir := filepath.Dir(filepath.Clean(filePath))
	for dir != root {
		if IsTrickplayDirectory(dir) {
			return true
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return false
		}
		dir = parent
	}
	return false
}

// FileExists reports whether path exists and is a regular file.
func FileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// DirExists reports whether path exists and is a directory.
func DirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
