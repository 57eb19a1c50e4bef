package sysapi

import (
	"errors"
	"fmt"
	"os/exec"
)

// ErrNoExecutable is returned by Launch when no path is configured.
var ErrNoExecutable = errors.New("no executable configured")

// Launch starts path with args as a detached process and returns its PID.
// The child is not waited on; it is discovered by the next scan like any
// other instance.
func Launch(path string, args ...string) (uint32, error) {
	if path == "" {
		return 0, ErrNoExecutable
	}

	cmd := exec.Command(path, args...)
	cmd.SysProcAttr = launchAttr()
	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("start %s: %w", path, err)
	}

	pid := uint32(cmd.Process.Pid)
	if err := cmd.Process.Release(); err != nil {
		return pid, fmt.Errorf("release process %d: %w", pid, err)
	}
	return pid, nil
}
