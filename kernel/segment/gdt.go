package segment

import (
	"encoding/binary"
	"trapos/kernel"
	"unsafe"
)

// gdtSlots is the number of descriptor slots: null, kernel code and the two
// halves of the TSS descriptor.
const gdtSlots = 4

var errGDTFull = &kernel.Error{Module: "segment", Message: "GDT has no free slots"}

// GDT is a fixed-size global descriptor table. Slot 0 always holds the null
// descriptor; entries are appended in order by AddSegment and
// AddSystemSegment.
type GDT struct {
	table [gdtSlots]Descriptor
	next  uint16
}

// Selectors groups the selectors produced while building the kernel GDT.
type Selectors struct {
	Code Selector
	TSS  Selector
}

// NewGDT returns a GDT that only contains the null descriptor.
func NewGDT() GDT {
	return GDT{next: 1}
}

// AddSegment appends a code or data segment descriptor and returns a
// selector for it whose RPL matches the descriptor DPL.
func (g *GDT) AddSegment(d Descriptor) Selector {
	if int(g.next)+1 > gdtSlots {
		panic(errGDTFull)
	}

	index := g.next
	g.table[index] = d
	g.next++
	return NewSelector(index, d.DPL())
}

// AddSystemSegment appends a two-slot system descriptor and returns a
// selector referencing its low half.
func (g *GDT) AddSystemSegment(lo, hi Descriptor) Selector {
	if int(g.next)+2 > gdtSlots {
		panic(errGDTFull)
	}

	index := g.next
	g.table[index] = lo
	g.table[index+1] = hi
	g.next += 2
	return NewSelector(index, lo.DPL())
}

// Len returns the number of populated slots including the null descriptor.
func (g *GDT) Len() int {
	return int(g.next)
}

// Entries returns the populated slots.
func (g *GDT) Entries() []Descriptor {
	return g.table[:g.next]
}

// Pointer returns the 10-byte operand expected by LGDT: a 16-bit limit
// followed by the 64-bit linear base address of the table.
func (g *GDT) Pointer() [10]byte {
	var ptr [10]byte
	binary.LittleEndian.PutUint16(ptr[:2], uint16(int(g.next)*8-1))
	binary.LittleEndian.PutUint64(ptr[2:], uint64(uintptr(unsafe.Pointer(&g.table[0]))))
	return ptr
}

// BuildTSS returns a TSS whose IST slot DoubleFaultISTIndex points at
// faultStackTop. Stacks grow downwards so the top is the address just past
// the end of the stack buffer.
func BuildTSS(faultStackTop uintptr) TaskStateSegment {
	tss := NewTaskStateSegment()
	tss.SetInterruptStack(DoubleFaultISTIndex, faultStackTop)
	return tss
}

// BuildGDT returns a GDT containing the null descriptor, the kernel code
// segment and a descriptor for tss. The TSS must have static lifetime as
// the CPU keeps its address after LTR.
func BuildGDT(tss *TaskStateSegment) (GDT, Selectors) {
	var sel Selectors

	gdt := NewGDT()
	sel.Code = gdt.AddSegment(KernelCodeSegment)
	sel.TSS = gdt.AddSystemSegment(TSSDescriptor(uint64(uintptr(unsafe.Pointer(tss))), tss.Limit()))

	return gdt, sel
}
