package emu

import "os"

// fileDescriptor is one open slot in the guest's descriptor space. The
// stdio descriptors carry no host file: the syscall handler routes them
// to its own stdin/stdout/stderr streams.
type fileDescriptor struct {
	hostFile *os.File
	open     bool
}

// FDTable maps guest file descriptors for the open/read/write/close
// syscalls onto host files. Descriptors 0-2 are pre-seeded as the
// standard streams; fresh descriptors are allocated from 3 upward.
type FDTable struct {
	fds    map[uint32]*fileDescriptor
	nextFD uint32
}

// NewFDTable creates a table with stdin/stdout/stderr already open.
func NewFDTable() *FDTable {
	return &FDTable{
		fds: map[uint32]*fileDescriptor{
			0: {open: true},
			1: {open: true},
			2: {open: true},
		},
		nextFD: 3,
	}
}

// Open opens path on the host and returns the guest descriptor for it.
func (t *FDTable) Open(path string, flags int, mode os.FileMode) (uint32, error) {
	hostFile, err := os.OpenFile(path, flags, mode)
	if err != nil {
		return 0, err
	}

	fd := t.nextFD
	t.nextFD++
	t.fds[fd] = &fileDescriptor{hostFile: hostFile, open: true}
	return fd, nil
}

// Close closes a guest descriptor. Closing a stdio descriptor marks it
// unusable without touching the host stream.
func (t *FDTable) Close(fd uint32) error {
	entry, ok := t.fds[fd]
	if !ok || !entry.open {
		return os.ErrInvalid
	}

	entry.open = false
	if entry.hostFile != nil {
		err := entry.hostFile.Close()
		entry.hostFile = nil
		return err
	}
	return nil
}

// Read fills buf from a guest descriptor's host file. The stdio
// descriptors are the syscall handler's concern, not the table's.
func (t *FDTable) Read(fd uint32, buf []byte) (int, error) {
	entry, ok := t.fds[fd]
	if !ok || !entry.open || entry.hostFile == nil {
		return 0, os.ErrInvalid
	}
	return entry.hostFile.Read(buf)
}

// Write writes buf to a guest descriptor's host file.
func (t *FDTable) Write(fd uint32, buf []byte) (int, error) {
	entry, ok := t.fds[fd]
	if !ok || !entry.open || entry.hostFile == nil {
		return 0, os.ErrInvalid
	}
	return entry.hostFile.Write(buf)
}
