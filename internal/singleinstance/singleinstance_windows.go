//go:build windows

// Package singleinstance keeps the launcher itself to one running copy.
package singleinstance

import (
	"errors"

	"golang.org/x/sys/windows"

	"github.com/graaaaa/scr-multilauncher/internal/appinfo"
)

// AcquireLock creates the launcher's session-scoped named mutex.
//
// ok is false when another launcher already holds it. The returned release
// closes the mutex handle and must be called on exit.
func AcquireLock() (release func(), ok bool, err error) {
	return AcquireNamed(appinfo.MutexName)
}

// AcquireNamed is AcquireLock with an explicit mutex name.
func AcquireNamed(name string) (release func(), ok bool, err error) {
	namePtr, err := windows.UTF16PtrFromString(name)
	if err != nil {
		return nil, false, err
	}

	h, err := windows.CreateMutex(nil, false, namePtr)
	if errors.Is(err, windows.ERROR_ALREADY_EXISTS) {
		if h != 0 {
			windows.CloseHandle(h)
		}
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	return func() {
		windows.CloseHandle(h)
	}, true, nil
}
