package segment

// Descriptor is an 8-byte GDT slot. Code and data segments occupy a single
// slot; 64-bit system segments (TSS) use two consecutive slots where the
// second one carries the upper 32 bits of the base address.
type Descriptor uint64

// Descriptor bits. The access byte occupies bits 40-47 and the flags nibble
// bits 52-55.
const (
	// FlagAccessed is set by the CPU the first time the segment is
	// loaded. Pre-setting it keeps the CPU from writing to the GDT.
	FlagAccessed Descriptor = 1 << 40

	// FlagWritable marks data segments writable and code segments
	// readable.
	FlagWritable Descriptor = 1 << 41

	// FlagConforming allows less privileged code to jump into a code
	// segment.
	FlagConforming Descriptor = 1 << 42

	// FlagExecutable marks a code segment.
	FlagExecutable Descriptor = 1 << 43

	// FlagUserSegment is set for code/data segments and clear for
	// system segments such as the TSS.
	FlagUserSegment Descriptor = 1 << 44

	// FlagPresent must be set for a segment to be loadable.
	FlagPresent Descriptor = 1 << 47

	// FlagLongMode marks a 64-bit code segment.
	FlagLongMode Descriptor = 1 << 53

	// FlagDefaultSize selects 32-bit operands; it must be clear when
	// FlagLongMode is set.
	FlagDefaultSize Descriptor = 1 << 54

	// FlagGranularity scales the limit by 4 KiB.
	FlagGranularity Descriptor = 1 << 55

	dplShift  = 45
	dplMask   = Descriptor(0x3) << dplShift
	typeShift = 40
	typeMask  = Descriptor(0xf) << typeShift

	limitLowMask  = Descriptor(0xffff)
	limitHighMask = Descriptor(0xf) << 48
)

// SystemType values for descriptors with FlagUserSegment clear.
const (
	// SystemTypeAvailableTSS is a 64-bit TSS that is not the active task.
	SystemTypeAvailableTSS = 0x9

	// SystemTypeBusyTSS is written back by the CPU when LTR loads the
	// TSS selector.
	SystemTypeBusyTSS = 0xb
)

const (
	// NullDescriptor occupies GDT slot 0.
	NullDescriptor Descriptor = 0

	// KernelCodeSegment is a present, executable, readable 64-bit ring 0
	// code segment. Base and limit are ignored in long mode but are set
	// to a flat 4 GiB segment for consistency.
	KernelCodeSegment = FlagUserSegment | FlagPresent | FlagExecutable | FlagWritable |
		FlagAccessed | FlagLongMode | FlagGranularity | limitLowMask | limitHighMask
)

// TSSDescriptor returns the two GDT slots describing a 64-bit available TSS
// located at base with the given byte limit.
func TSSDescriptor(base uint64, limit uint32) (lo, hi Descriptor) {
	lo = FlagPresent | Descriptor(SystemTypeAvailableTSS)<<typeShift
	lo |= Descriptor(limit) & limitLowMask
	lo |= Descriptor(limit>>16) << 48 & limitHighMask
	lo |= Descriptor(base&0xffffff) << 16
	lo |= Descriptor(base>>24&0xff) << 56
	hi = Descriptor(base >> 32)

	return lo, hi
}

// Present returns true if the present bit is set.
func (d Descriptor) Present() bool {
	return d&FlagPresent != 0
}

// DPL returns the descriptor privilege level.
func (d Descriptor) DPL() PrivilegeLevel {
	return PrivilegeLevel((d & dplMask) >> dplShift)
}

// WithDPL returns a copy of d with its privilege level replaced.
func (d Descriptor) WithDPL(dpl PrivilegeLevel) Descriptor {
	if dpl > Ring3 {
		panic(errBadPrivilegeLevel)
	}
	return d&^dplMask | Descriptor(dpl)<<dplShift
}

// UserSegment returns true for code/data segments.
func (d Descriptor) UserSegment() bool {
	return d&FlagUserSegment != 0
}

// Type returns the 4-bit type field (bits 40-43).
func (d Descriptor) Type() uint8 {
	return uint8((d & typeMask) >> typeShift)
}

// Long returns true for 64-bit code segments.
func (d Descriptor) Long() bool {
	return d&FlagLongMode != 0
}

// Base returns the low 32 bits of the base address. For 64-bit system
// segments combine it with the high slot via SystemBase.
func (d Descriptor) Base() uint32 {
	return uint32(d>>16&0xffffff) | uint32(d>>56)<<24
}

// Limit returns the raw 20-bit segment limit.
func (d Descriptor) Limit() uint32 {
	return uint32(d&limitLowMask) | uint32((d&limitHighMask)>>32)
}

// SystemBase returns the 64-bit base address encoded by a two-slot system
// descriptor.
func SystemBase(lo, hi Descriptor) uint64 {
	return uint64(lo.Base()) | uint64(uint32(hi))<<32
}
