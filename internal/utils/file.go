package utils

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// EnsureDir creates a directory if it doesn't exist.
func EnsureDir(dir string) error {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return os.MkdirAll(dir, 0755)
	}
	return nil
}

// FileExists checks if a file exists and is not a directory.
func FileExists(filename string) bool {
	info, err := os.Stat(filename)
	if err != nil {
		return false
	}
	return !info.IsDir()
}

// DirExists checks if a directory exists.
func DirExists(dirname string) bool {
	info, err := os.Stat(dirname)
	if err != nil {
		return false
	}
	return info.IsDir()
}

// FormatCoord renders a coordinate component for use in filenames. Six
// decimal places (~0.1m) with trailing zeros trimmed, so the same coordinate
// always maps to the same name across runs.
func FormatCoord(v float64) string {
	s := strconv.FormatFloat(v, 'f', 6, 64)
	s = strings.TrimRight(s, "0")
	s = strings.TrimSuffix(s, ".")
	return s
}

// OriginalImagePath derives the deterministic on-disk path for a panorama
// identified by its sequence index within a session.
func OriginalImagePath(dir string, index int, lng, lat float64) string {
	name := fmt.Sprintf("streetview_%04d_%s_%s.jpg", index, FormatCoord(lng), FormatCoord(lat))
	return filepath.Join(dir, name)
}

// AnalysisImagePath derives the deterministic on-disk path for the overlay
// image matching OriginalImagePath's naming.
func AnalysisImagePath(dir string, index int, lng, lat float64) string {
	name := fmt.Sprintf("analysis_%04d_%s_%s.png", index, FormatCoord(lng), FormatCoord(lat))
	return filepath.Join(dir, name)
}

// FormatFileSize formats file size in human-readable format.
func FormatFileSize(size int64) string {
	const unit = 1024
	if size < unit {
		return fmt.Sprintf("%d B", size)
	}

	div, exp := int64(unit), 0
	for n := size / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}

	return fmt.Sprintf("%.1f %cB", float64(size)/float64(div), "KMGTPE"[exp])
}
