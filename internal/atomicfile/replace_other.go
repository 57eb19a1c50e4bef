//go:build !windows

package atomicfile

import "os"

// replace moves src over dst. rename(2) replaces dst atomically.
func replace(src, dst string) error {
	return os.Rename(src, dst)
}
