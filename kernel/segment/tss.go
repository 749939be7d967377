package segment

import (
	"trapos/kernel"
	"unsafe"
)

const (
	// NumInterruptStacks is the number of IST slots in the TSS.
	NumInterruptStacks = 7

	// numPrivilegeStacks is the number of RSPn slots (rings 0-2).
	numPrivilegeStacks = 3
)

var errBadStackIndex = &kernel.Error{Module: "segment", Message: "stack index out of range"}

// TaskStateSegment mirrors the 104-byte long mode TSS. Hardware task
// switching is not available in long mode; the TSS only supplies the ring
// transition stacks (RSP0-2) and the interrupt stack table (IST1-7).
//
// The 64-bit stack pointers sit at 4-byte aligned offsets so they are stored
// as lo/hi 32-bit pairs to keep the Go layout identical to the hardware one.
type TaskStateSegment struct {
	_         uint32
	rsp       [numPrivilegeStacks * 2]uint32
	_         [2]uint32
	ist       [NumInterruptStacks * 2]uint32
	_         [2]uint32
	_         uint16
	ioMapBase uint16
}

// NewTaskStateSegment returns a TSS with all stack pointers cleared and the
// I/O permission bitmap disabled: its offset points past the end of the
// structure so every port access from ring 3 faults.
func NewTaskStateSegment() TaskStateSegment {
	return TaskStateSegment{
		ioMapBase: uint16(unsafe.Sizeof(TaskStateSegment{})),
	}
}

// SetInterruptStack stores the stack top used when a gate with IST index
// i+1 is taken. Valid values for i are 0 to 6.
func (t *TaskStateSegment) SetInterruptStack(i uint8, top uintptr) {
	if i >= NumInterruptStacks {
		panic(errBadStackIndex)
	}
	t.ist[2*i] = uint32(top)
	t.ist[2*i+1] = uint32(uint64(top) >> 32)
}

// InterruptStack returns the value of IST slot i (0-based).
func (t *TaskStateSegment) InterruptStack(i uint8) uintptr {
	if i >= NumInterruptStacks {
		panic(errBadStackIndex)
	}
	return uintptr(uint64(t.ist[2*i]) | uint64(t.ist[2*i+1])<<32)
}

// SetPrivilegeStack stores the stack top the CPU switches to when an
// interrupt raises the privilege level to ring.
func (t *TaskStateSegment) SetPrivilegeStack(ring PrivilegeLevel, top uintptr) {
	if ring >= numPrivilegeStacks {
		panic(errBadPrivilegeLevel)
	}
	t.rsp[2*ring] = uint32(top)
	t.rsp[2*ring+1] = uint32(uint64(top) >> 32)
}

// PrivilegeStack returns the RSPn value for the given ring.
func (t *TaskStateSegment) PrivilegeStack(ring PrivilegeLevel) uintptr {
	if ring >= numPrivilegeStacks {
		panic(errBadPrivilegeLevel)
	}
	return uintptr(uint64(t.rsp[2*ring]) | uint64(t.rsp[2*ring+1])<<32)
}

// IOMapBase returns the offset of the I/O permission bitmap.
func (t *TaskStateSegment) IOMapBase() uint16 {
	return t.ioMapBase
}

// Limit returns the byte limit that the TSS descriptor must advertise.
func (t *TaskStateSegment) Limit() uint32 {
	return uint32(unsafe.Sizeof(*t) - 1)
}
