package fsutil

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ExpandHome expands a leading '~' to the user's home directory.
func ExpandHome(path string) (string, error) {
	if path == "" {
		return path, nil
	}
	if path[0] != '~' {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("home dir: %w", err)
	}
	if path == "~" {
		return home, nil
	}
	// handle cases like ~/models/llm
	return filepath.Join(home, strings.TrimPrefix(path, "~/")), nil
}

// PathExists checks if the given path exists.
func PathExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil || !errors.Is(err, os.ErrNotExist)
}

// ErrOutsideRoot is returned by JoinWithin for paths escaping their root.
var ErrOutsideRoot = errors.New("path escapes root")

// JoinWithin joins slash-separated rel onto root and rejects results that
// leave root.
func JoinWithin(root, rel string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash("/" + rel))
	if clean == string(filepath.Separator) {
		return "", fmt.Errorf("%w: %q", ErrOutsideRoot, rel)
	}
	p := filepath.Join(root, clean)
	r, err := filepath.Rel(root, p)
	if err != nil || r == ".." || strings.HasPrefix(r, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q", ErrOutsideRoot, rel)
	}
	return p, nil
}
