package storage

import (
	"path"
	"path/filepath"
	"strings"
)

// Join builds an object key from slash separated parts.
func Join(parts ...string) string {
	var kept []string
	for _, p := range parts {
		p = strings.Trim(filepath.ToSlash(p), "/")
		if p != "" {
			kept = append(kept, p)
		}
	}
	return path.Join(kept...)
}

// NormalizeKey strips leading slashes and converts separators.
func NormalizeKey(key string) string {
	return strings.TrimPrefix(filepath.ToSlash(key), "/")
}

// Base returns the last element of a key.
func Base(key string) string {
	return path.Base(NormalizeKey(key))
}
