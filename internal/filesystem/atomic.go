// Package filesystem writes result files so readers never observe a partial
// document. Fetched result sets and merged documents both go through here.
package filesystem

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// TempPattern is the name pattern of in-flight files. Watchers should ignore
// anything matching it.
const TempPattern = ".kgmerge-*.tmp"

// WriteFileAtomic writes data next to target in a temporary file, syncs it,
// and renames it over target. Parent directories are created as needed. On
// failure target is left as it was.
func WriteFileAtomic(target string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(target)
	if err := os.MkdirAll(dir, 0o755); err != nil { //nolint:gosec // G301: data directories are shared with the user
		return fmt.Errorf("creating parent directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, TempPattern)
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpPath) }

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("syncing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, perm); err != nil {
		cleanup()
		return fmt.Errorf("setting permissions: %w", err)
	}

	if err := os.Rename(tmpPath, target); err != nil {
		cleanup()
		return fmt.Errorf("renaming temp to target: %w", err)
	}
	return nil
}

// WriteAtomic renders into a buffer with write and stores the result with
// WriteFileAtomic. Nothing is written when write fails.
func WriteAtomic(target string, perm os.FileMode, write func(io.Writer) error) error {
	var buf bytes.Buffer
	if err := write(&buf); err != nil {
		return err
	}
	return WriteFileAtomic(target, buf.Bytes(), perm)
}

// IsTemp reports whether name is an in-flight file created by WriteFileAtomic.
func IsTemp(name string) bool {
	ok, _ := filepath.Match(TempPattern, filepath.Base(name))
	return ok
}
