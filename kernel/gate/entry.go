package gate

import "trapos/kernel/segment"

// Entry is a 16-byte long mode gate descriptor. The field order matches the
// hardware layout so a [NumVectors]Entry array can be handed to LIDT as-is.
type Entry struct {
	offsetLow  uint16
	selector   segment.Selector
	options    EntryOptions
	offsetMid  uint16
	offsetHigh uint32
	reserved   uint32
}

// MissingEntry returns a non-present gate with a zero offset.
func MissingEntry() Entry {
	return Entry{options: MinimalOptions()}
}

// newEntry returns a present ring 0 interrupt gate that jumps to offset via
// the code segment sel.
func newEntry(sel segment.Selector, offset uintptr) Entry {
	return Entry{
		offsetLow:  uint16(offset),
		selector:   sel,
		options:    NewOptions(),
		offsetMid:  uint16(offset >> 16),
		offsetHigh: uint32(uint64(offset) >> 32),
	}
}

// Offset returns the address of the code the gate transfers control to.
func (e *Entry) Offset() uintptr {
	return uintptr(e.offsetLow) | uintptr(e.offsetMid)<<16 | uintptr(uint64(e.offsetHigh)<<32)
}

// Selector returns the code segment selector loaded into CS on entry.
func (e *Entry) Selector() segment.Selector {
	return e.selector
}

// Options returns a pointer to the gate attribute word so callers can tune
// it in place.
func (e *Entry) Options() *EntryOptions {
	return &e.options
}

// EntryFromWords rebuilds a gate from the two quadwords it occupies in the
// table, low quadword first.
func EntryFromWords(lo, hi uint64) Entry {
	return Entry{
		offsetLow:  uint16(lo),
		selector:   segment.Selector(lo >> 16),
		options:    EntryOptions(lo >> 32),
		offsetMid:  uint16(lo >> 48),
		offsetHigh: uint32(hi),
		reserved:   uint32(hi >> 32),
	}
}

// Words returns the two quadwords the gate occupies in the table.
func (e *Entry) Words() (lo, hi uint64) {
	lo = uint64(e.offsetLow) | uint64(e.selector)<<16 | uint64(e.options)<<32 | uint64(e.offsetMid)<<48
	hi = uint64(e.offsetHigh) | uint64(e.reserved)<<32
	return lo, hi
}
