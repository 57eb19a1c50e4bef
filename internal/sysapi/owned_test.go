package sysapi_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/graaaaa/scr-multilauncher/internal/sysapi"
	"github.com/graaaaa/scr-multilauncher/internal/sysapi/sysapitest"
)

func TestOwnedHandle_CloseOnce(t *testing.T) {
	sys := sysapitest.New()
	sys.AddProcess(&sysapitest.Process{PID: 42, Image: "starcraft.exe"})

	h, err := sysapi.OpenProcess(sys, 42)
	require.NoError(t, err)
	assert.NotZero(t, h.Raw())

	require.NoError(t, h.Close())
	require.NoError(t, h.Close())

	assert.Zero(t, h.Raw())
	assert.True(t, h.Closed())
	assert.Equal(t, 1, sys.Closed())
	assert.Zero(t, sys.BadCloses())
	assert.Zero(t, sys.LiveHandles())
}

func TestOpenProcess_ExitedProcess(t *testing.T) {
	sys := sysapitest.New()
	sys.AddProcess(&sysapitest.Process{PID: 7, Image: "starcraft.exe", Exited: true})

	h, err := sysapi.OpenProcess(sys, 7)
	require.Error(t, err)
	assert.Nil(t, h)
	assert.ErrorIs(t, err, sysapi.ErrProcessUnavailable)

	var callErr *sysapi.CallError
	require.True(t, errors.As(err, &callErr))
	assert.Equal(t, "OpenProcess", callErr.Op)
	assert.Equal(t, uint32(7), callErr.PID)
	assert.Zero(t, sys.LiveHandles())
}

func TestDuplicate_IndependentOwnership(t *testing.T) {
	sys := sysapitest.New()
	sys.AddProcess(&sysapitest.Process{
		PID:     42,
		Image:   "starcraft.exe",
		Objects: []*sysapitest.Object{{Value: 0x44, Name: `\BaseNamedObjects\x`, Type: "Event"}},
	})

	process, err := sysapi.OpenProcess(sys, 42)
	require.NoError(t, err)
	defer process.Close()

	dup, err := sysapi.Duplicate(sys, process, sysapi.RemoteHandle{PID: 42, Value: 0x44}, false)
	require.NoError(t, err)
	assert.NotEqual(t, process.Raw(), dup.Raw())

	require.NoError(t, dup.Close())
	assert.False(t, process.Closed())
	assert.True(t, sys.HasObject(42, 0x44), "plain duplication leaves the source entry")
	assert.Equal(t, 1, sys.LiveHandles())
}

func TestDuplicate_ClosedProcess(t *testing.T) {
	sys := sysapitest.New()
	sys.AddProcess(&sysapitest.Process{PID: 42, Image: "starcraft.exe"})

	process, err := sysapi.OpenProcess(sys, 42)
	require.NoError(t, err)
	require.NoError(t, process.Close())

	_, err = sysapi.Duplicate(sys, process, sysapi.RemoteHandle{PID: 42, Value: 0x44}, false)
	assert.ErrorIs(t, err, sysapi.ErrProcessUnavailable)
	assert.Zero(t, sys.BadCloses())
}

func TestRemoteHandle_String(t *testing.T) {
	assert.Equal(t, "0x1A4", sysapi.RemoteHandle{PID: 1, Value: 0x1a4}.String())
}
