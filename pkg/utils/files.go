package utils

import (
	"path/filepath"
	"strings"
)

// GetPathInfo returns the absolute form of relPath and its directory.
func GetPathInfo(relPath string) (fullPath string, parentDir string, err error) {
	fullPath, err = filepath.Abs(relPath)
	if err != nil {
		return "", "", err
	}
	parentDir = filepath.Dir(fullPath)
	return fullPath, parentDir, nil
}

// ReplaceExt swaps the extension of path for ext, or appends ext when path
// has none.
func ReplaceExt(path, ext string) string {
	old := filepath.Ext(path)
	if old == "" {
		return path + ext
	}
	return strings.TrimSuffix(path, old) + ext
}

// OutputPath picks the binary path for input: out when given, otherwise the
// input path with a .bin extension.
func OutputPath(input, out string) string {
	if out != "" {
		return out
	}
	return ReplaceExt(input, ".bin")
}

// ListingPath places the listing next to the binary at out.
func ListingPath(out string) string {
	return ReplaceExt(out, ".lst")
}
