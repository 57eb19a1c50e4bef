//go:build !windows

// Package singleinstance keeps the launcher itself to one running copy.
package singleinstance

// AcquireLock always succeeds outside Windows. The launcher can only
// unlock Windows processes, so there is nothing to guard elsewhere.
func AcquireLock() (release func(), ok bool, err error) {
	return AcquireNamed("")
}

// AcquireNamed always succeeds outside Windows.
func AcquireNamed(string) (release func(), ok bool, err error) {
	return func() {}, true, nil
}
