package segment

import "trapos/kernel"

// PrivilegeLevel is an x86 protection ring. Ring0 is the most privileged
// level and the one the kernel runs at.
type PrivilegeLevel uint8

// The four x86 protection rings.
const (
	Ring0 PrivilegeLevel = iota
	Ring1
	Ring2
	Ring3
)

// Selector is a 16-bit reference to a descriptor table entry. Bits 0-1 hold
// the requested privilege level, bit 2 the table indicator (0 = GDT, 1 = LDT)
// and bits 3-15 the descriptor index.
type Selector uint16

const (
	selectorRPLMask    = 0x3
	selectorTableBit   = 1 << 2
	selectorIndexShift = 3

	// MaxSelectorIndex is the largest descriptor index that fits in a
	// selector.
	MaxSelectorIndex = 1<<13 - 1
)

// NullSelector references the mandatory null descriptor.
const NullSelector = Selector(0)

var (
	errBadSelectorIndex  = &kernel.Error{Module: "segment", Message: "selector index out of range"}
	errBadPrivilegeLevel = &kernel.Error{Module: "segment", Message: "privilege level out of range"}
)

// NewSelector returns a GDT selector for the descriptor at the given index
// with the requested privilege level. Indices above MaxSelectorIndex and
// privilege levels above Ring3 are programming errors and cause a panic.
func NewSelector(index uint16, rpl PrivilegeLevel) Selector {
	if index > MaxSelectorIndex {
		panic(errBadSelectorIndex)
	}
	if rpl > Ring3 {
		panic(errBadPrivilegeLevel)
	}

	return Selector(index<<selectorIndexShift | uint16(rpl))
}

// Index returns the descriptor index referenced by the selector.
func (s Selector) Index() uint16 {
	return uint16(s) >> selectorIndexShift
}

// RPL returns the requested privilege level encoded in the selector.
func (s Selector) RPL() PrivilegeLevel {
	return PrivilegeLevel(s & selectorRPLMask)
}

// LocalTable returns true if the selector references the LDT instead of the
// GDT.
func (s Selector) LocalTable() bool {
	return s&selectorTableBit != 0
}
