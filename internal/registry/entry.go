// Package registry tracks the target processes discovered across scan
// cycles and drives inspection and termination of each of them.
package registry

import (
	"cmp"
	"slices"
)

// ProcessEntry is one tracked target process. Identity and ordering are
// defined by PID alone.
type ProcessEntry struct {
	PID uint32 `json:"pid"`
	// Processed is set once an unlock attempt has concluded for the
	// process, successfully or not.
	Processed bool `json:"processed"`
	// Attempts counts the inspections that found no lock object.
	Attempts int `json:"attempts"`
}

// NewEntry returns an unprocessed entry for pid.
func NewEntry(pid uint32) ProcessEntry {
	return ProcessEntry{PID: pid}
}

// Compare orders entries by PID.
func Compare(a, b ProcessEntry) int {
	return cmp.Compare(a.PID, b.PID)
}

// SortEntries sorts entries by PID in place.
func SortEntries(entries []ProcessEntry) {
	slices.SortFunc(entries, Compare)
}
