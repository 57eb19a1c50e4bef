//go:build windows

package atomicfile

import (
	"os"

	"golang.org/x/sys/windows"
)

// replace moves src over dst. os.Rename refuses an existing target on
// some Windows versions, so MoveFileEx is called directly.
func replace(src, dst string) error {
	from, err := windows.UTF16PtrFromString(src)
	if err != nil {
		return &os.LinkError{Op: "movefileex", Old: src, New: dst, Err: err}
	}
	to, err := windows.UTF16PtrFromString(dst)
	if err != nil {
		return &os.LinkError{Op: "movefileex", Old: src, New: dst, Err: err}
	}
	if err := windows.MoveFileEx(from, to, windows.MOVEFILE_REPLACE_EXISTING|windows.MOVEFILE_WRITE_THROUGH); err != nil {
		return &os.LinkError{Op: "movefileex", Old: src, New: dst, Err: err}
	}
	return nil
}
