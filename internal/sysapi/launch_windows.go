//go:build windows

package sysapi

import (
	"syscall"

	"golang.org/x/sys/windows"
)

func launchAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{
		CreationFlags: windows.CREATE_NEW_CONSOLE | windows.CREATE_NO_WINDOW,
	}
}
