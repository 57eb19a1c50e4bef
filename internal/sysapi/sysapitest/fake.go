// Package sysapitest provides an in-memory sysapi.System that produces
// native-format buffers, for testing code that scans processes and revokes
// handles without touching the real operating system.
package sysapitest

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/graaaaa/scr-multilauncher/internal/ntbuf"
	"github.com/graaaaa/scr-multilauncher/internal/sysapi"
)

var (
	// ErrNoProcess is returned when opening an unknown or exited process.
	ErrNoProcess = errors.New("fake: no such process")

	// ErrInvalidHandle is returned for handles that are not live.
	ErrInvalidHandle = errors.New("fake: invalid handle")
)

// Object is one entry of a fake process's handle table.
type Object struct {
	Value uintptr
	Name  string
	Type  string

	// DupErr makes every duplication of this entry fail.
	DupErr error
	// NameErr makes name queries against duplicates of this entry fail.
	NameErr error
}

// Process is a fake running process.
type Process struct {
	PID     uint32
	Image   string
	Objects []*Object

	// Exited makes OpenProcess fail.
	Exited bool
	// TerminateErr makes TerminateProcess fail.
	TerminateErr error
}

type liveKind int

const (
	kindProcess liveKind = iota
	kindObject
)

type live struct {
	kind liveKind
	pid  uint32
	obj  *Object
}

// System is a fake sysapi.System. All methods are safe for concurrent use.
type System struct {
	mu sync.Mutex

	procs map[uint32]*Process
	next  sysapi.Handle
	live  map[sysapi.Handle]live

	// ProcessListErr, when set, is returned by QueryProcessList.
	ProcessListErr error
	// SnapshotErr, when set, is returned by QueryHandleSnapshot.
	SnapshotErr error
	// CloseSourceErr, when set, fails duplicate-with-close-source calls
	// without touching the handle table.
	CloseSourceErr error
	// CloseObjectErr, when set, is returned when closing any local object
	// handle. The handle is still released.
	CloseObjectErr error
	// OpenErr, when set, is returned by every OpenProcess call.
	OpenErr error

	opened        int
	closed        int
	badCloses     int
	snapshotCalls map[uint32]int
	closedRemote  []sysapi.RemoteHandle
	terminated    []uint32
	types         map[string]uint32
	nameQueries   int

	ptrSize int
}

// New returns an empty fake using the native pointer width.
func New() *System {
	return &System{
		procs:         make(map[uint32]*Process),
		live:          make(map[sysapi.Handle]live),
		snapshotCalls: make(map[uint32]int),
		types:         make(map[string]uint32),
		next:          0x100,
		ptrSize:       ntbuf.PointerSize,
	}
}

// AddProcess registers p and returns it.
func (s *System) AddProcess(p *Process) *Process {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.procs[p.PID] = p
	return p
}

// Exit marks pid as exited.
func (s *System) Exit(pid uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.procs[pid]; ok {
		p.Exited = true
	}
}

// LiveHandles returns the number of local handles that are still open.
func (s *System) LiveHandles() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.live)
}

// Opened returns the number of handles created so far.
func (s *System) Opened() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.opened
}

// Closed returns the number of successful releases.
func (s *System) Closed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// BadCloses returns the number of CloseHandle calls on handles that were
// not live (double closes or closes of foreign values).
func (s *System) BadCloses() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.badCloses
}

// SnapshotCalls returns how many times pid's handle table was queried.
func (s *System) SnapshotCalls(pid uint32) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotCalls[pid]
}

// NameQueries returns how many object name queries were made.
func (s *System) NameQueries() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nameQueries
}

// ClosedRemote returns the remote handles removed with close-source.
func (s *System) ClosedRemote() []sysapi.RemoteHandle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]sysapi.RemoteHandle(nil), s.closedRemote...)
}

// Terminated returns the PIDs terminated so far.
func (s *System) Terminated() []uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]uint32(nil), s.terminated...)
}

// HasObject reports whether pid's handle table still holds value.
func (s *System) HasObject(pid uint32, value uintptr) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.procs[pid]
	if !ok {
		return false
	}
	for _, o := range p.Objects {
		if o.Value == value {
			return true
		}
	}
	return false
}

func (s *System) alloc(l live) sysapi.Handle {
	s.next += 4
	s.live[s.next] = l
	s.opened++
	return s.next
}

func (s *System) sortedPIDs() []uint32 {
	pids := make([]uint32, 0, len(s.procs))
	for pid := range s.procs {
		pids = append(pids, pid)
	}
	sort.Slice(pids, func(i, j int) bool { return pids[i] < pids[j] })
	return pids
}

func align(n, a int) int {
	return (n + a - 1) / a * a
}

// QueryProcessList writes a SYSTEM_PROCESS_INFORMATION chain. An idle
// process record with PID 0 and no name always comes first.
func (s *System) QueryProcessList(buf []byte) (uint32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ProcessListErr != nil {
		return 0, s.ProcessListErr
	}

	layout := sysapi.ProcessInfoLayoutFor(s.ptrSize)
	type rec struct {
		pid  uint32
		name string
		size int
	}
	recs := []rec{{pid: 0, name: ""}}
	for _, pid := range s.sortedPIDs() {
		p := s.procs[pid]
		if p.Exited {
			continue
		}
		recs = append(recs, rec{pid: p.PID, name: p.Image})
	}

	total := 0
	for i := range recs {
		recs[i].size = align(layout.MinSize+len(ntbuf.EncodeUTF16(recs[i].name))+2, 8)
		total += recs[i].size
	}
	if len(buf) < total {
		return uint32(total), ntbuf.ErrBufferTooSmall
	}

	clear(buf)
	w := ntbuf.NewWriter(buf, s.ptrSize)
	off := 0
	for i, r := range recs {
		next := uint32(0)
		if i < len(recs)-1 {
			next = uint32(r.size)
		}
		w.PutUint32(off+layout.NextEntryOffset, next)
		w.PutUnicodeString(off+layout.ImageName, off+layout.MinSize, r.name)
		w.PutPointer(off+layout.UniqueProcessID, uint64(r.pid))
		off += r.size
	}
	return uint32(total), nil
}

// OpenProcess opens a live fake process.
func (s *System) OpenProcess(pid uint32) (sysapi.Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.OpenErr != nil {
		return 0, s.OpenErr
	}
	p, ok := s.procs[pid]
	if !ok || p.Exited {
		return 0, fmt.Errorf("%w: %d", ErrNoProcess, pid)
	}
	return s.alloc(live{kind: kindProcess, pid: pid}), nil
}

func (s *System) processFor(h sysapi.Handle) (*Process, error) {
	l, ok := s.live[h]
	if !ok || l.kind != kindProcess {
		return nil, ErrInvalidHandle
	}
	p, ok := s.procs[l.pid]
	if !ok || p.Exited {
		return nil, ErrNoProcess
	}
	return p, nil
}

// QueryHandleSnapshot writes a PROCESS_HANDLE_SNAPSHOT_INFORMATION block.
func (s *System) QueryHandleSnapshot(process sysapi.Handle, buf []byte) (uint32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.processFor(process)
	if err != nil {
		return 0, err
	}
	s.snapshotCalls[p.PID]++
	if s.SnapshotErr != nil {
		return 0, s.SnapshotErr
	}

	layout := sysapi.HandleSnapshotLayoutFor(s.ptrSize)
	total := layout.Header + len(p.Objects)*layout.EntrySize
	if len(buf) < total {
		return uint32(total), ntbuf.ErrBufferTooSmall
	}

	clear(buf)
	w := ntbuf.NewWriter(buf, s.ptrSize)
	w.PutPointer(layout.NumberOfHandles, uint64(len(p.Objects)))
	for i, o := range p.Objects {
		off := layout.Header + i*layout.EntrySize
		w.PutPointer(off+layout.HandleValue, uint64(o.Value))
		w.PutPointer(off+layout.HandleCount, 1)
		w.PutPointer(off+layout.PointerCount, 1)
		w.PutUint32(off+layout.GrantedAccess, 0x1F0003)
		w.PutUint32(off+layout.ObjectTypeIndex, s.typeIndex(o.Type))
	}
	return uint32(total), nil
}

// typeIndex returns a stable per-system index for an object type name.
func (s *System) typeIndex(name string) uint32 {
	idx, ok := s.types[name]
	if !ok {
		idx = uint32(len(s.types)) + 2
		s.types[name] = idx
	}
	return idx
}

// DuplicateHandle copies value out of process's table.
func (s *System) DuplicateHandle(process sysapi.Handle, value uintptr, closeSource bool) (sysapi.Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.processFor(process)
	if err != nil {
		return 0, err
	}
	idx := -1
	for i, o := range p.Objects {
		if o.Value == value {
			idx = i
			break
		}
	}
	if idx < 0 {
		return 0, ErrInvalidHandle
	}
	obj := p.Objects[idx]
	if obj.DupErr != nil {
		return 0, obj.DupErr
	}
	if closeSource {
		if s.CloseSourceErr != nil {
			return 0, s.CloseSourceErr
		}
		p.Objects = append(p.Objects[:idx:idx], p.Objects[idx+1:]...)
		s.closedRemote = append(s.closedRemote, sysapi.RemoteHandle{PID: p.PID, Value: value})
	}
	return s.alloc(live{kind: kindObject, pid: p.PID, obj: obj}), nil
}

func (s *System) objectFor(h sysapi.Handle) (*Object, error) {
	l, ok := s.live[h]
	if !ok || l.kind != kindObject {
		return nil, ErrInvalidHandle
	}
	return l.obj, nil
}

// writeUnicodeInfo writes a structure that starts with a UNICODE_STRING
// whose data follows the header.
func (s *System) writeUnicodeInfo(buf []byte, str string) (uint32, error) {
	header := 2 * s.ptrSize
	total := header + len(ntbuf.EncodeUTF16(str)) + 2
	if len(buf) < total {
		return uint32(total), ntbuf.ErrBufferTooSmall
	}
	clear(buf)
	ntbuf.NewWriter(buf, s.ptrSize).PutUnicodeString(0, header, str)
	return uint32(total), nil
}

// QueryObjectName writes OBJECT_NAME_INFORMATION for a duplicated handle.
func (s *System) QueryObjectName(h sysapi.Handle, buf []byte) (uint32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	obj, err := s.objectFor(h)
	if err != nil {
		return 0, err
	}
	s.nameQueries++
	if obj.NameErr != nil {
		return 0, obj.NameErr
	}
	return s.writeUnicodeInfo(buf, obj.Name)
}

// QueryObjectType writes the leading TypeName of OBJECT_TYPE_INFORMATION.
func (s *System) QueryObjectType(h sysapi.Handle, buf []byte) (uint32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	obj, err := s.objectFor(h)
	if err != nil {
		return 0, err
	}
	return s.writeUnicodeInfo(buf, obj.Type)
}

// TerminateProcess marks the process exited unless TerminateErr is set.
func (s *System) TerminateProcess(process sysapi.Handle, exitCode uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.processFor(process)
	if err != nil {
		return err
	}
	if p.TerminateErr != nil {
		return p.TerminateErr
	}
	p.Exited = true
	s.terminated = append(s.terminated, p.PID)
	return nil
}

// CloseHandle releases a live handle.
func (s *System) CloseHandle(h sysapi.Handle) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.live[h]
	if !ok {
		s.badCloses++
		return ErrInvalidHandle
	}
	delete(s.live, h)
	s.closed++
	if l.kind == kindObject && s.CloseObjectErr != nil {
		return s.CloseObjectErr
	}
	return nil
}
