//go:build windows

package sysapi

import (
	"errors"
	"unsafe"

	"github.com/graaaaa/scr-multilauncher/internal/ntbuf"
	"golang.org/x/sys/windows"
)

const (
	systemProcessInformation = 5
	processHandleInformation = 51
	objectNameInformation    = 1
	objectTypeInformation    = 2
)

var (
	ntdll             = windows.NewLazySystemDLL("ntdll.dll")
	procNtQueryObject = ntdll.NewProc("NtQueryObject")
)

type windowsSystem struct{}

// New returns the native System.
func New() System {
	return windowsSystem{}
}

// statusError maps the size negotiation statuses onto ntbuf.ErrBufferTooSmall.
func statusError(status error) error {
	var st windows.NTStatus
	if errors.As(status, &st) {
		switch st {
		case windows.STATUS_SUCCESS:
			return nil
		case windows.STATUS_INFO_LENGTH_MISMATCH, windows.STATUS_BUFFER_TOO_SMALL, windows.STATUS_BUFFER_OVERFLOW:
			return ntbuf.ErrBufferTooSmall
		}
	}
	return status
}

func bufPtr(buf []byte) unsafe.Pointer {
	if len(buf) == 0 {
		return nil
	}
	return unsafe.Pointer(&buf[0])
}

func (windowsSystem) QueryProcessList(buf []byte) (uint32, error) {
	var needed uint32
	err := windows.NtQuerySystemInformation(systemProcessInformation, bufPtr(buf), uint32(len(buf)), &needed)
	if err != nil {
		return needed, statusError(err)
	}
	return needed, nil
}

func (windowsSystem) OpenProcess(pid uint32) (Handle, error) {
	h, err := windows.OpenProcess(windows.PROCESS_ALL_ACCESS, false, pid)
	if err != nil {
		return 0, err
	}
	return Handle(h), nil
}

func (windowsSystem) QueryHandleSnapshot(process Handle, buf []byte) (uint32, error) {
	var needed uint32
	err := windows.NtQueryInformationProcess(windows.Handle(process), processHandleInformation, bufPtr(buf), uint32(len(buf)), &needed)
	if err != nil {
		return needed, statusError(err)
	}
	return needed, nil
}

func (windowsSystem) DuplicateHandle(process Handle, value uintptr, closeSource bool) (Handle, error) {
	options := uint32(windows.DUPLICATE_SAME_ACCESS)
	if closeSource {
		options = windows.DUPLICATE_CLOSE_SOURCE
	}
	var dup windows.Handle
	err := windows.DuplicateHandle(windows.Handle(process), windows.Handle(value), windows.CurrentProcess(), &dup, 0, false, options)
	if err != nil {
		return 0, err
	}
	return Handle(dup), nil
}

func queryObject(h Handle, class uintptr, buf []byte) (uint32, error) {
	var needed uint32
	r1, _, _ := procNtQueryObject.Call(
		uintptr(h),
		class,
		uintptr(bufPtr(buf)),
		uintptr(len(buf)),
		uintptr(unsafe.Pointer(&needed)),
	)
	if r1 != 0 {
		return needed, statusError(windows.NTStatus(r1))
	}
	return needed, nil
}

func (windowsSystem) QueryObjectName(h Handle, buf []byte) (uint32, error) {
	return queryObject(h, objectNameInformation, buf)
}

func (windowsSystem) QueryObjectType(h Handle, buf []byte) (uint32, error) {
	return queryObject(h, objectTypeInformation, buf)
}

func (windowsSystem) TerminateProcess(process Handle, exitCode uint32) error {
	return windows.TerminateProcess(windows.Handle(process), exitCode)
}

func (windowsSystem) CloseHandle(h Handle) error {
	return windows.CloseHandle(windows.Handle(h))
}
