package utils

import (
	"os"
	"path/filepath"
	"strings"
)

// DefaultCacheDirName is the directory created under the system temp dir
const DefaultCacheDirName = "image-collection-manager"

// GetDefaultCacheLocation returns the default location of the hash cache
func GetDefaultCacheLocation() string {
	return filepath.Join(os.TempDir(), DefaultCacheDirName)
}

// IsRedisLocation reports whether a cache location is a redis URL
func IsRedisLocation(location string) bool {
	lower := strings.ToLower(location)
	return strings.HasPrefix(lower, "redis://") || strings.HasPrefix(lower, "rediss://")
}

// IsDirectory reports whether path exists and is a directory
func IsDirectory(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
