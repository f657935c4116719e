// Package fileutil copies files without ever touching the source.
package fileutil

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

// CopyFile copies src to dest on fs. It refuses to overwrite an existing
// dest and carries over the source modification time. A partially written
// dest is removed on failure.
func CopyFile(fs afero.Fs, src, dest string) error {
	srcFile, err := fs.Open(src)
	if err != nil {
		return err
	}
	defer srcFile.Close()

	srcInfo, err := srcFile.Stat()
	if err != nil {
		return err
	}

	destFile, err := fs.OpenFile(dest, os.O_CREATE|os.O_EXCL|os.O_WRONLY, srcInfo.Mode().Perm())
	if err != nil {
		return err
	}

	if _, err := io.Copy(destFile, srcFile); err != nil {
		destFile.Close()
		fs.Remove(dest) // Clean up on failure
		return err
	}
	if err := destFile.Close(); err != nil {
		fs.Remove(dest)
		return err
	}

	// Timestamps are best effort
	_ = fs.Chtimes(dest, srcInfo.ModTime(), srcInfo.ModTime())
	return nil
}

// UniqueName finds a unique filename by appending a counter if needed.
// isAvailable should return true if the name can be used.
func UniqueName(filename string, isAvailable func(string) bool) string {
	if isAvailable(filename) {
		return filename
	}

	name, ext := SplitExt(filename)
	for counter := 1; ; counter++ {
		candidate := fmt.Sprintf("%s_%d%s", name, counter, ext)
		if isAvailable(candidate) {
			return candidate
		}
	}
}

// SplitExt splits a base name into stem and extension (with the dot)
func SplitExt(filename string) (string, string) {
	ext := filepath.Ext(filename)
	return strings.TrimSuffix(filename, ext), ext
}

// Exists reports whether path exists on fs. Stat errors other than
// not-exist count as existing so callers never overwrite.
func Exists(fs afero.Fs, path string) bool {
	_, err := fs.Stat(path)
	return err == nil || !os.IsNotExist(err)
}
