//go:build !windows

package sysapi

type unsupportedSystem struct{}

// New returns a System whose calls all fail with ErrUnsupported.
// Handle introspection is only implemented for Windows (the target
// platform); this keeps the rest of the module buildable elsewhere.
func New() System {
	return unsupportedSystem{}
}

func (unsupportedSystem) QueryProcessList([]byte) (uint32, error) { return 0, ErrUnsupported }

func (unsupportedSystem) OpenProcess(uint32) (Handle, error) { return 0, ErrUnsupported }

func (unsupportedSystem) QueryHandleSnapshot(Handle, []byte) (uint32, error) {
	return 0, ErrUnsupported
}

func (unsupportedSystem) DuplicateHandle(Handle, uintptr, bool) (Handle, error) {
	return 0, ErrUnsupported
}

func (unsupportedSystem) QueryObjectName(Handle, []byte) (uint32, error) { return 0, ErrUnsupported }

func (unsupportedSystem) QueryObjectType(Handle, []byte) (uint32, error) { return 0, ErrUnsupported }

func (unsupportedSystem) TerminateProcess(Handle, uint32) error { return ErrUnsupported }

func (unsupportedSystem) CloseHandle(Handle) error { return ErrUnsupported }
