// SPDX-License-Identifier: MIT

package pipeline

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// shardPaths returns the destination directory and the basename stem for a
// fingerprint, the layout being save/<id[0:2]>/<id[2:]>.<ext>.
func shardPaths(save, id string) (dir, stem string) {
	if len(id) < 2 {
		return filepath.Join(save, id), ""
	}
	return filepath.Join(save, id[:2]), id[2:]
}

func ensureDir(dir string) error {
	return os.MkdirAll(dir, 0o755)
}

// copyFile copies src to dst with the given mode. dst is truncated if it
// exists.
func copyFile(src, dst string, mode fs.FileMode) error {
	in, err := os.Open(src) // #nosec G304 -- paths come from the scanner
	if err != nil {
		return fmt.Errorf("copy %s: %w", src, err)
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode) // #nosec G304
	if err != nil {
		return fmt.Errorf("copy to %s: %w", dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("copy %s to %s: %w", src, dst, err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("copy to %s: %w", dst, err)
	}
	return os.Chmod(dst, mode)
}

// removeQuiet deletes the given paths, ignoring files that are already gone.
// Used for cleanup after a failed conversion.
func removeQuiet(paths ...string) {
	for _, p := range paths {
		if p == "" {
			continue
		}
		_ = os.Remove(p)
	}
}

// removeIfEmpty deletes dir when it holds no entries.
func removeIfEmpty(dir string) {
	entries, err := os.ReadDir(dir)
	if err != nil || len(entries) > 0 {
		return
	}
	_ = os.Remove(dir)
}
