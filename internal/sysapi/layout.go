package sysapi

// ProcessInfoLayout holds the field offsets of SYSTEM_PROCESS_INFORMATION
// that are read by the scanner.
type ProcessInfoLayout struct {
	NextEntryOffset int
	ImageName       int
	UniqueProcessID int
	// MinSize is the smallest record that contains every field above.
	MinSize int
}

// ProcessInfoLayoutFor returns the layout for the given pointer width.
func ProcessInfoLayoutFor(ptrSize int) ProcessInfoLayout {
	if ptrSize == 4 {
		return ProcessInfoLayout{NextEntryOffset: 0, ImageName: 56, UniqueProcessID: 68, MinSize: 72}
	}
	return ProcessInfoLayout{NextEntryOffset: 0, ImageName: 56, UniqueProcessID: 80, MinSize: 88}
}

// HandleSnapshotLayout holds the offsets of PROCESS_HANDLE_SNAPSHOT_INFORMATION
// and of each PROCESS_HANDLE_TABLE_ENTRY_INFO that follows its header.
type HandleSnapshotLayout struct {
	NumberOfHandles int
	Header          int
	EntrySize       int

	HandleValue      int
	HandleCount      int
	PointerCount     int
	GrantedAccess    int
	ObjectTypeIndex  int
	HandleAttributes int
}

// HandleSnapshotLayoutFor returns the layout for the given pointer width.
func HandleSnapshotLayoutFor(ptrSize int) HandleSnapshotLayout {
	p := ptrSize
	return HandleSnapshotLayout{
		NumberOfHandles:  0,
		Header:           2 * p,
		EntrySize:        3*p + 16,
		HandleValue:      0,
		HandleCount:      p,
		PointerCount:     2 * p,
		GrantedAccess:    3 * p,
		ObjectTypeIndex:  3*p + 4,
		HandleAttributes: 3*p + 8,
	}
}
