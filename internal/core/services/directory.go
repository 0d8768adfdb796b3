package services

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/melih/gamehost/internal/core/domain"
)

// ValidateDirectory resolves path and checks that it is a directory holding
// the entry marker file. Only directories that pass are Verified.
func ValidateDirectory(path, marker string) (domain.GameDirectory, error) {
	if strings.TrimSpace(path) == "" {
		return domain.GameDirectory{}, fmt.Errorf("%w: empty path", domain.ErrInvalidDirectory)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return domain.GameDirectory{}, fmt.Errorf("%w: %v", domain.ErrInvalidDirectory, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return domain.GameDirectory{}, fmt.Errorf("%w: %v", domain.ErrInvalidDirectory, err)
	}
	if !info.IsDir() {
		return domain.GameDirectory{}, fmt.Errorf("%w: %s is not a directory", domain.ErrInvalidDirectory, abs)
	}
	markerInfo, err := os.Stat(filepath.Join(abs, marker))
	if err != nil || markerInfo.IsDir() {
		return domain.GameDirectory{}, fmt.Errorf("%w: '%s' not found in %s", domain.ErrInvalidDirectory, marker, abs)
	}
	return domain.GameDirectory{Path: abs, Verified: true}, nil
}

// DefaultContainerName derives a container name from a game directory: its
// base name, or the parent's when the directory itself is called "www".
func DefaultContainerName(dir, fallback string) string {
	clean := filepath.Clean(dir)
	base := filepath.Base(clean)
	if base == "www" {
		base = filepath.Base(filepath.Dir(clean))
	}
	name := sanitizeName(base)
	if name == "" {
		return fallback
	}
	return name
}

// sanitizeName keeps the characters Docker accepts in container names.
func sanitizeName(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '_' || r == '.' || r == '-':
			if b.Len() > 0 {
				b.WriteRune(r)
			}
		default:
			if b.Len() > 0 {
				b.WriteRune('-')
			}
		}
	}
	return strings.TrimRight(b.String(), "-.")
}
