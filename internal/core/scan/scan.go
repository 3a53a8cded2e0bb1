// Package scan discovers optimization candidates in a folder tree.
package scan

import (
	"io/fs"
	"path/filepath"
	"strings"
)

// DefaultExtensions is the set of file extensions treated as video.
var DefaultExtensions = []string{
	".avi", ".mkv", ".mov", ".flv", ".wmv", ".webm", ".m4v",
	".ts", ".mpg", ".mpeg", ".3gp", ".mp4", ".ogg",
}

// ExtensionSet builds a lowercase lookup set from an extension list.
func ExtensionSet(exts []string) map[string]bool {
	set := make(map[string]bool, len(exts))
	for _, ext := range exts {
		ext = strings.ToLower(ext)
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		set[ext] = true
	}
	return set
}

// IsCandidate reports whether a file name looks like a processable video:
// known extension and not hidden. Hidden files include macOS "._" metadata.
func IsCandidate(name string, exts map[string]bool) bool {
	if strings.HasPrefix(name, ".") {
		return false
	}
	return exts[strings.ToLower(filepath.Ext(name))]
}

// Videos walks the tree rooted at dir and returns candidate video paths in
// walk order. Unreadable subtrees are skipped rather than failing the scan.
func Videos(dir string, exts map[string]bool) ([]string, error) {
	var videos []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		if IsCandidate(d.Name(), exts) {
			videos = append(videos, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return videos, nil
}
