//go:build !windows

package sysapi

import "syscall"

func launchAttr() *syscall.SysProcAttr {
	return nil
}
