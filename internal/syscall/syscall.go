// Package syscall implements the software-interrupt ABI: a fixed table
// of 32-bit call numbers routed to handlers,
// dispatched from irqtimer.Dispatcher's SVC path. PUTS/GETC/YIELD/TIME/
// SLEEP are implemented directly against sched and pty; the filesystem
// and service-manager verbs remain the external collaborator's own
// business and are represented here only as table
// entries with the handler signature collaborators must satisfy,
// calling one before a real handler is installed returns the
// register-sized ENOSYS value below.
package syscall

import (
	"unsafe"

	"kestrel/internal/pty"
	"kestrel/internal/sched"
)

// Call numbers are fixed once assigned: a number must never be reused
// for a different call, so callers compiled against an older table
// still dispatch to the right handler.
const (
	Puts uint32 = iota
	Getc
	Yield
	Time
	Sleep

	Create
	Write
	Read
	Remove
	Mkdir
	List
	Export
	Import
	RemoveRecursive

	Start
	Stop
	Restart
	Reload
	Enable
	Disable
	Status
	LoadAll
	LoadUnit

	numCalls
)

// ENOSYS is returned (cast to uintptr) by any table slot whose handler
// has not been installed: the filesystem and service-manager verbs,
// until a collaborator registers real handlers via Table.Register.
const ENOSYS uintptr = ^uintptr(0)

// Handler services one syscall number. a0-a2 are the register-sized
// arguments (pointer arguments are kernel-readable memory; there is no
// userspace); the return value is register-sized.
type Handler func(a0, a1, a2 uintptr) uintptr

// Table is the fixed call-number → handler array.
type Table struct {
	handlers [numCalls]Handler
}

// NewTable builds a table with PUTS/GETC/YIELD/TIME/SLEEP wired against
// sched and the console PTY; every other slot returns ENOSYS until a
// collaborator calls Register. YIELD and SLEEP recover the calling task
// via s.CurrentHandle, the same way real hardware would resolve a
// current-task pointer rather than receiving one as an argument.
func NewTable(s *sched.Scheduler, console *pty.PTY, puts func(string)) *Table {
	t := &Table{}

	t.handlers[Puts] = func(a0, a1, a2 uintptr) uintptr {
		str, ok := readCString(a0)
		if ok && puts != nil {
			puts(str)
		}
		return 0
	}
	t.handlers[Getc] = func(a0, a1, a2 uintptr) uintptr {
		var buf [1]byte
		if n, ok := console.ReadIn(buf[:]); ok && n == 1 {
			return uintptr(buf[0])
		}
		return ENOSYS
	}
	t.handlers[Yield] = func(a0, a1, a2 uintptr) uintptr {
		if h := s.CurrentHandle(); h != nil {
			h.Yield()
		}
		return 0
	}
	t.handlers[Time] = func(a0, a1, a2 uintptr) uintptr {
		return uintptr(s.Tick())
	}
	t.handlers[Sleep] = func(a0, a1, a2 uintptr) uintptr {
		if h := s.CurrentHandle(); h != nil {
			h.BlockUntil(s.Tick() + uint32(a0))
		}
		return 0
	}

	for i := Create; i < numCalls; i++ {
		t.handlers[i] = unimplemented
	}
	return t
}

func unimplemented(a0, a1, a2 uintptr) uintptr { return ENOSYS }

// Register installs (or overrides) the handler for call number num,
// letting a collaborator wire its own filesystem or service-manager
// verbs into the table.
func (t *Table) Register(num uint32, h Handler) {
	if num >= numCalls {
		return
	}
	t.handlers[num] = h
}

// Dispatch routes num to its installed handler, matching the signature
// irqtimer.Dispatcher.SVC expects. An unknown call number also returns
// ENOSYS.
func (t *Table) Dispatch(num uint32, a0, a1, a2 uintptr) uintptr {
	if num >= numCalls || t.handlers[num] == nil {
		return ENOSYS
	}
	return t.handlers[num](a0, a1, a2)
}

// maxCStringLen bounds the scan in readCString so a missing NUL
// terminator cannot walk off into unrelated memory.
const maxCStringLen = 4096

// readCString reads a NUL-terminated string out of the same process's
// address space starting at addr, mirroring how PUTS(str*) would read
// guest memory on real hardware; here "guest memory" is just this
// process's heap, since the hosted simulator has no separate address
// space and there is no userspace.
func readCString(addr uintptr) (string, bool) {
	if addr == 0 {
		return "", false
	}
	buf := unsafe.Slice((*byte)(unsafe.Pointer(addr)), maxCStringLen)
	for i, b := range buf {
		if b == 0 {
			return string(buf[:i]), true
		}
	}
	return string(buf[:maxCStringLen]), true
}
