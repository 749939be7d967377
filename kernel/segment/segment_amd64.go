// Package segment builds and loads the global descriptor table and the task
// state segment. In long mode segmentation is mostly disabled but the CPU
// still needs a valid code selector for every interrupt gate and a TSS to
// locate the interrupt stacks.
package segment

import (
	"trapos/kernel"
	"trapos/kernel/cpu"
	"trapos/kernel/mem"
	"unsafe"
)

const (
	// DoubleFaultISTIndex is the 0-based TSS interrupt stack slot used by
	// the double fault gate. Gates select it with IST index
	// DoubleFaultISTIndex+1.
	DoubleFaultISTIndex = 0

	// DoubleFaultStackPages is the size of the double fault stack in
	// pages. It must absorb the fault frame, the handler frame and the
	// console path.
	DoubleFaultStackPages = 5
)

var (
	// doubleFaultStackArea backs the double fault stack with one spare
	// page so that a page-aligned run of DoubleFaultStackPages pages
	// always fits. Only the CPU writes to it, after switching to
	// IST[DoubleFaultISTIndex].
	doubleFaultStackArea [mem.PageSize * (DoubleFaultStackPages + 1)]byte

	// The CPU keeps pointers to these after Init; they must never be
	// modified again.
	kernelTSS       TaskStateSegment
	kernelGDT       GDT
	kernelSelectors Selectors

	// Overridden by tests.
	loadGDTFn          = loadGDT
	loadCSFn           = loadCS
	loadDataSegmentsFn = loadDataSegments
	loadTaskRegisterFn = loadTaskRegister
	readCSFn           = cpu.ReadCS

	errCSReloadFailed = &kernel.Error{Module: "segment", Message: "CS does not hold the kernel code selector after reload"}
)

// Init builds the kernel TSS and GDT, loads the GDT, reloads CS with the
// kernel code selector, loads the null selector into the data segment
// registers and installs the TSS via the task register. Init must run once,
// before the IDT is loaded.
func Init() {
	kernelTSS = BuildTSS(FaultStackTop())
	kernelGDT, kernelSelectors = BuildGDT(&kernelTSS)

	ptr := kernelGDT.Pointer()
	loadGDTFn(&ptr)
	ReloadCS()
	loadDataSegmentsFn(NullSelector)
	loadTaskRegisterFn(kernelSelectors.TSS)
}

// ReloadCS loads the kernel code selector into CS and checks that the CPU
// reports it back. It panics if CS holds any other selector afterwards.
func ReloadCS() Selector {
	loadCSFn(kernelSelectors.Code)

	cs := Selector(readCSFn())
	if cs != kernelSelectors.Code {
		panic(errCSReloadFailed)
	}
	return cs
}

// KernelSelectors returns the selectors installed by Init.
func KernelSelectors() Selectors {
	return kernelSelectors
}

// FaultStackBase returns the page-aligned low end of the double fault
// stack.
func FaultStackBase() uintptr {
	areaStart := uintptr(unsafe.Pointer(&doubleFaultStackArea[0]))
	return (areaStart + uintptr(mem.PageSize-1)) &^ uintptr(mem.PageSize-1)
}

// FaultStackTop returns the address just past the end of the double fault
// stack. It is page aligned.
func FaultStackTop() uintptr {
	return FaultStackBase() + uintptr(mem.Pages(DoubleFaultStackPages))
}

// KernelTSS returns the TSS installed by Init.
func KernelTSS() *TaskStateSegment {
	return &kernelTSS
}

// KernelGDT returns the GDT installed by Init.
func KernelGDT() *GDT {
	return &kernelGDT
}

// loadGDT executes LGDT with the supplied 10-byte pointer.
func loadGDT(ptr *[10]byte)

// loadCS reloads CS by performing a far return to the caller.
func loadCS(sel Selector)

// loadDataSegments loads sel into DS, ES and SS. FS and GS are left alone:
// the Go runtime keeps the TLS base in FS and reloading the selector would
// clobber it.
func loadDataSegments(sel Selector)

// loadTaskRegister executes LTR. The CPU marks the referenced TSS
// descriptor busy as a side effect.
func loadTaskRegister(sel Selector)
