package gate

import (
	"trapos/kernel"
	"trapos/kernel/segment"
)

// EntryOptions is the 16-bit attribute word of a gate descriptor:
//
//	bits 0-2   IST index (0 = stay on the current stack)
//	bits 3-7   reserved
//	bits 8-11  gate type (0b1110 interrupt gate, 0b1111 trap gate)
//	bit  12    reserved, zero
//	bits 13-14 DPL
//	bit  15    present
type EntryOptions uint16

const (
	optISTMask        = EntryOptions(0x7)
	optReservedMask   = EntryOptions(0xf8)
	optTrapBit        = EntryOptions(1 << 8)
	optTypeHighBits   = EntryOptions(0x7 << 9)
	optZeroBit        = EntryOptions(1 << 12)
	optDPLShift       = 13
	optDPLMask        = EntryOptions(0x3) << optDPLShift
	optPresentBit     = EntryOptions(1 << 15)
	optTypeShift      = 8
	optTypeMask       = EntryOptions(0xf) << optTypeShift
	maxStackIndex     = 7
	interruptGateType = 0xe
	trapGateType      = 0xf
)

var (
	errBadPrivilegeLevel = &kernel.Error{Module: "gate", Message: "gate DPL out of range"}
	errBadStackIndex     = &kernel.Error{Module: "gate", Message: "gate IST index out of range"}
	errBadGateType       = &kernel.Error{Module: "gate", Message: "gate type bits are not set"}
	errReservedBits      = &kernel.Error{Module: "gate", Message: "gate reserved bits are not zero"}
)

// MinimalOptions returns an options word with only the gate type high bits
// set. The resulting gate is not present.
func MinimalOptions() EntryOptions {
	return optTypeHighBits
}

// NewOptions returns the options for a present ring 0 interrupt gate that
// stays on the current stack and clears IF on entry.
func NewOptions() EntryOptions {
	opts := MinimalOptions()
	opts.SetPresent(true).DisableInterrupts(true)
	return opts
}

// SetPresent sets or clears the present bit.
func (o *EntryOptions) SetPresent(present bool) *EntryOptions {
	if present {
		*o |= optPresentBit
	} else {
		*o &^= optPresentBit
	}
	return o
}

// DisableInterrupts selects an interrupt gate (IF cleared on entry) when
// disable is true or a trap gate otherwise.
func (o *EntryOptions) DisableInterrupts(disable bool) *EntryOptions {
	if disable {
		*o &^= optTrapBit
	} else {
		*o |= optTrapBit
	}
	return o
}

// SetPrivilegeLevel sets the highest ring allowed to invoke the gate with an
// INT n instruction.
func (o *EntryOptions) SetPrivilegeLevel(dpl segment.PrivilegeLevel) *EntryOptions {
	if dpl > segment.Ring3 {
		panic(errBadPrivilegeLevel)
	}
	*o = *o&^optDPLMask | EntryOptions(dpl)<<optDPLShift
	return o
}

// SetStackIndex selects the interrupt stack used on entry. Index 0 keeps the
// current stack; 1-7 switch to TSS.IST[index-1].
func (o *EntryOptions) SetStackIndex(index uint8) *EntryOptions {
	if index > maxStackIndex {
		panic(errBadStackIndex)
	}
	*o = *o&^optISTMask | EntryOptions(index)
	return o
}

// Present returns true if the present bit is set.
func (o EntryOptions) Present() bool {
	return o&optPresentBit != 0
}

// InterruptsDisabled returns true for interrupt gates.
func (o EntryOptions) InterruptsDisabled() bool {
	return o&optTrapBit == 0
}

// PrivilegeLevel returns the gate DPL.
func (o EntryOptions) PrivilegeLevel() segment.PrivilegeLevel {
	return segment.PrivilegeLevel((o & optDPLMask) >> optDPLShift)
}

// StackIndex returns the IST index.
func (o EntryOptions) StackIndex() uint8 {
	return uint8(o & optISTMask)
}

// GateType returns the 4-bit gate type.
func (o EntryOptions) GateType() uint8 {
	return uint8((o & optTypeMask) >> optTypeShift)
}

// Validate checks the bits that must hold for any gate the CPU may
// dispatch through: the gate type must be an interrupt or trap gate and all
// reserved bits must be clear.
func (o EntryOptions) Validate() *kernel.Error {
	if o&optTypeHighBits != optTypeHighBits {
		return errBadGateType
	}
	if o&(optReservedMask|optZeroBit) != 0 {
		return errReservedBits
	}
	return nil
}
