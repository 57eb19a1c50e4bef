package registry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/graaaaa/scr-multilauncher/internal/handles"
	"github.com/graaaaa/scr-multilauncher/internal/sysapi"
	"github.com/graaaaa/scr-multilauncher/internal/sysapi/sysapitest"
)

const lockName = `\Sessions\1\BaseNamedObjects\Starcraft Check For Other Instances`

func addTarget(sys *sysapitest.System, pid uint32, withLock bool) *sysapitest.Process {
	objs := []*sysapitest.Object{
		{Value: 0x04, Name: `\KnownDlls`, Type: "Directory"},
		{Value: 0x08, Name: `\BaseNamedObjects\A`, Type: "Event"},
		{Value: 0x0C, Name: `\BaseNamedObjects\B`, Type: "Section"},
	}
	if withLock {
		objs = append(objs, &sysapitest.Object{Value: 0x1A4, Name: lockName, Type: "Mutant"})
	}
	return sys.AddProcess(&sysapitest.Process{PID: pid, Image: "starcraft.exe", Objects: objs})
}

// stubInspector returns canned results and counts calls per PID.
type stubInspector struct {
	mu      sync.Mutex
	calls   map[uint32]int
	results map[uint32]*handles.UnlockResult
	errs    map[uint32]error
}

func newStub() *stubInspector {
	return &stubInspector{
		calls:   make(map[uint32]int),
		results: make(map[uint32]*handles.UnlockResult),
		errs:    make(map[uint32]error),
	}
}

func (s *stubInspector) Inspect(_ context.Context, pid uint32) (*handles.UnlockResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[pid]++
	return s.results[pid], s.errs[pid]
}

func (s *stubInspector) count(pid uint32) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[pid]
}

func TestMerge_DoesNotResetProcessed(t *testing.T) {
	r := New(sysapitest.New(), newStub())
	r.Merge(NewEntry(10))
	r.entries[10].Processed = true

	r.Merge(NewEntry(10), NewEntry(20))

	assert.Equal(t, []ProcessEntry{
		{PID: 10, Processed: true},
		{PID: 20},
	}, r.Entries())
}

func TestMerge_IgnoresZeroPID(t *testing.T) {
	r := New(sysapitest.New(), newStub())
	r.Merge(NewEntry(0))
	assert.Zero(t, r.Len())
}

func TestPrune_RemovesExitedOnce(t *testing.T) {
	sys := sysapitest.New()
	addTarget(sys, 10, false)
	addTarget(sys, 20, false)
	r := New(sys, newStub())
	r.Merge(NewEntry(10), NewEntry(20))

	sys.Exit(20)
	msgs := r.Prune(context.Background())
	assert.Equal(t, []string{"Invalid PID: 20"}, msgs)
	assert.Equal(t, []ProcessEntry{{PID: 10}}, r.Entries())

	assert.Empty(t, r.Prune(context.Background()), "second prune emits nothing")
	assert.Zero(t, sys.LiveHandles())
}

func TestPrune_ListedButNotOpenable(t *testing.T) {
	sys := sysapitest.New()
	addTarget(sys, 77, true)
	sys.OpenErr = errors.New("access denied")
	r := New(sys, handles.NewInspector(sys))

	var lines []string
	for range 5 {
		r.Observe(NewEntry(77))
		lines = append(lines, r.Prune(context.Background())...)
		msgs, _ := r.ProcessUnprocessed(context.Background())
		lines = append(lines, msgs...)
	}

	assert.Empty(t, lines, "a running process we cannot open is retried silently")
	assert.Equal(t, []ProcessEntry{{PID: 77}}, r.Entries())
	assert.Zero(t, sys.LiveHandles())
}

func TestPrune_ProcessedNotOpenableLogsOnce(t *testing.T) {
	sys := sysapitest.New()
	addTarget(sys, 77, false)
	r := New(sys, newStub())
	r.Observe(NewEntry(77))
	r.entries[77].Processed = true
	sys.OpenErr = errors.New("access denied")

	var lines []string
	for range 4 {
		r.Observe(NewEntry(77))
		lines = append(lines, r.Prune(context.Background())...)
	}

	assert.Equal(t, []string{"Invalid PID: 77"}, lines)
	assert.Equal(t, []ProcessEntry{{PID: 77}}, r.Entries(), "rediscovered as unprocessed")
}

func TestPrune_UnprocessedNoLongerListed(t *testing.T) {
	sys := sysapitest.New()
	addTarget(sys, 10, false)
	addTarget(sys, 20, false)
	r := New(sys, newStub())
	r.Observe(NewEntry(10), NewEntry(20))

	sys.Exit(20)
	r.Observe(NewEntry(10))
	assert.Equal(t, []string{"Invalid PID: 20"}, r.Prune(context.Background()))

	r.Observe(NewEntry(10))
	assert.Empty(t, r.Prune(context.Background()))
	assert.Equal(t, []ProcessEntry{{PID: 10}}, r.Entries())
}

func TestProcessUnprocessed_EndToEnd(t *testing.T) {
	sys := sysapitest.New()
	addTarget(sys, 4242, true)
	r := New(sys, handles.NewInspector(sys))
	r.Merge(NewEntry(4242))

	msgs, unlocks := r.ProcessUnprocessed(context.Background())
	require.Equal(t, []string{"Closed 0x1A4 for starcraft.exe (PID: 4242)"}, msgs)
	require.Len(t, unlocks, 1)
	assert.Equal(t, lockName, unlocks[0].Result.ObjectName)
	assert.Equal(t, []ProcessEntry{{PID: 4242, Processed: true}}, r.Entries())
	assert.Equal(t, 1, sys.SnapshotCalls(4242))

	msgs, unlocks = r.ProcessUnprocessed(context.Background())
	assert.Empty(t, msgs)
	assert.Empty(t, unlocks)
	assert.Equal(t, 1, sys.SnapshotCalls(4242), "processed entries are not rescanned")
	assert.Zero(t, sys.LiveHandles())
}

func TestProcessUnprocessed_OneShotPolicy(t *testing.T) {
	sys := sysapitest.New()
	addTarget(sys, 10, false)
	r := New(sys, handles.NewInspector(sys), WithMaxAttempts(1))
	r.Merge(NewEntry(10))

	msgs, _ := r.ProcessUnprocessed(context.Background())
	assert.Empty(t, msgs)
	assert.Equal(t, []ProcessEntry{{PID: 10, Processed: true, Attempts: 1}}, r.Entries())

	r.ProcessUnprocessed(context.Background())
	assert.Equal(t, 1, sys.SnapshotCalls(10))
}

func TestProcessUnprocessed_RetriesUntilLockAppears(t *testing.T) {
	sys := sysapitest.New()
	p := addTarget(sys, 10, false)
	r := New(sys, handles.NewInspector(sys), WithMaxAttempts(3))
	r.Merge(NewEntry(10))

	msgs, _ := r.ProcessUnprocessed(context.Background())
	assert.Empty(t, msgs)
	assert.False(t, r.Entries()[0].Processed)

	p.Objects = append(p.Objects, &sysapitest.Object{Value: 0x200, Name: lockName, Type: "Mutant"})
	msgs, _ = r.ProcessUnprocessed(context.Background())
	assert.Equal(t, []string{"Closed 0x200 for starcraft.exe (PID: 10)"}, msgs)
	assert.Equal(t, []ProcessEntry{{PID: 10, Processed: true, Attempts: 1}}, r.Entries())
}

func TestProcessUnprocessed_ZeroAttemptsRetriesForever(t *testing.T) {
	stub := newStub()
	r := New(sysapitest.New(), stub, WithMaxAttempts(0))
	r.Merge(NewEntry(10))

	for range 50 {
		r.ProcessUnprocessed(context.Background())
	}
	assert.Equal(t, 50, stub.count(10))
	assert.False(t, r.Entries()[0].Processed)
}

func TestProcessUnprocessed_ErrorPolicy(t *testing.T) {
	stub := newStub()
	stub.errs[1] = fmt.Errorf("%w: denied", handles.ErrUnlockFailed)
	stub.errs[2] = &sysapi.CallError{Op: "OpenProcess", PID: 2, Err: sysapi.ErrProcessUnavailable}
	stub.errs[3] = errors.New("snapshot failed")
	r := New(sysapitest.New(), stub, WithMaxAttempts(5))
	r.Merge(NewEntry(1), NewEntry(2), NewEntry(3))

	msgs, unlocks := r.ProcessUnprocessed(context.Background())

	assert.Equal(t, []string{"Failed to close lock for starcraft.exe (PID: 1)"}, msgs)
	assert.Empty(t, unlocks)
	assert.Equal(t, []ProcessEntry{
		{PID: 1, Processed: true},
		{PID: 2},
		{PID: 3, Attempts: 1},
	}, r.Entries())
}

func TestProcessUnprocessed_ParallelManyProcesses(t *testing.T) {
	sys := sysapitest.New()
	r := New(sys, handles.NewInspector(sys), WithConcurrency(8), WithTarget("StarCraft.exe"))
	for pid := uint32(1); pid <= 32; pid++ {
		addTarget(sys, pid*4, pid%2 == 0)
		r.Merge(NewEntry(pid * 4))
	}

	msgs, unlocks := r.ProcessUnprocessed(context.Background())

	assert.Len(t, msgs, 16)
	assert.Len(t, unlocks, 16)
	assert.Contains(t, msgs, "Closed 0x1A4 for StarCraft.exe (PID: 8)")
	assert.Len(t, sys.ClosedRemote(), 16)
	assert.Zero(t, sys.LiveHandles())
	assert.Zero(t, sys.BadCloses())
}

func TestTerminateAll(t *testing.T) {
	sys := sysapitest.New()
	addTarget(sys, 10, false)
	stuck := addTarget(sys, 20, false)
	stuck.TerminateErr = errors.New("access denied")
	addTarget(sys, 30, false)
	r := New(sys, newStub())
	r.Merge(NewEntry(10), NewEntry(20), NewEntry(30), NewEntry(40))

	msgs, failed := r.TerminateAll(context.Background())

	assert.Equal(t, []string{
		"Successfully terminated process with PID 10",
		"Failed to terminate process with PID 20",
		"Successfully terminated process with PID 30",
	}, msgs)
	assert.Equal(t, 1, failed)
	assert.Equal(t, []ProcessEntry{{PID: 20}}, r.Entries(), "failed terminations stay tracked, gone ones are dropped")
	assert.Equal(t, []uint32{10, 30}, sys.Terminated())
	assert.Zero(t, sys.LiveHandles())
}
