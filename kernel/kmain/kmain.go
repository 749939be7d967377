package kmain

import (
	"trapos/kernel"
	"trapos/kernel/cpu"
	"trapos/kernel/hal"
	"trapos/kernel/hal/multiboot"
	"trapos/kernel/kfmt"
	"trapos/kernel/mem/pmm/allocator"
	"trapos/kernel/segment"
	"trapos/kernel/selftest"
	"trapos/kernel/trap"
)

var (
	errKmainReturned = &kernel.Error{Module: "kmain", Message: "Kmain returned"}

	// The following functions are mocked by tests.
	initSerialFn   = hal.InitSerial
	initTerminalFn = hal.InitTerminal
	allocInitFn    = allocator.Init
	cliFn          = cpu.DisableInterrupts
	segmentInitFn  = segment.Init
	trapInitFn     = trap.Init
	runSelfTestFn  = selftest.Run
	cpuHaltFn      = cpu.Halt
)

// Kmain is the Go entry point called by the rt0 assembly code once a minimal
// g0 is in place on the boot stack. The first argument is the address of the
// multiboot info payload; the other two hold the physical bounds of the
// loaded kernel image.
//
// Kmain brings up the console and serial port, hands the free memory
// regions to the boot frame allocator, replaces the boot GDT with the kernel
// one (code segment plus TSS), loads the IDT and then runs the self-test
// named on the command line, if any. It is not expected to return.
//
//go:noinline
func Kmain(multibootInfoPtr, kernelStart, kernelEnd uintptr) {
	multiboot.SetInfoPtr(multibootInfoPtr)

	initTerminalFn()
	initSerialFn()
	kfmt.Printf("Hello World! - boot info has %d regions\n", multiboot.MemRegionCount())
	allocInitFn(kernelStart, kernelEnd)

	// Nothing may be delivered while the descriptor tables are swapped.
	cliFn()
	segmentInitFn()
	trapInitFn()

	if name, ok := multiboot.CmdLineValue("selftest"); ok {
		runSelfTestFn(name)
	}

	kfmt.Printf("It didn't crash\n")
	cpuHaltFn()

	// Use kfmt.Panic instead of panic to prevent the compiler from
	// treating kfmt.Panic as dead-code and eliminating it.
	kfmt.Panic(errKmainReturned)
}
