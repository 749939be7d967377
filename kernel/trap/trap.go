// Package trap installs the kernel's CPU exception handlers.
//
// Each handler reports the exception, tells the host that the kernel
// reached the expected outcome by exiting the VM with qemu.Success and then
// halts. Vectors without a handler stay non-present so a fault on them
// escalates to a double fault.
package trap

import (
	"trapos/kernel/cpu"
	"trapos/kernel/gate"
	"trapos/kernel/hal"
	"trapos/kernel/kfmt"
	"trapos/kernel/qemu"
	"trapos/kernel/segment"
)

var (
	// kernelIDT and standbyIDT are referenced by the CPU once loaded.
	// A table is only rebuilt while the other one is loaded.
	kernelIDT, standbyIDT gate.IDT

	// loadedIDT is the table that was loaded last.
	loadedIDT *gate.IDT

	// The following functions are mocked by tests.
	loadIDTFn         = (*gate.IDT).Load
	vmExitFn          = qemu.Exit
	cpuHaltFn         = cpu.Halt
	readCR2Fn         = cpu.ReadCR2
	serialWriteByteFn = serialWriteByte
)

// Init builds the kernel IDT with the double fault gate switching to the
// dedicated interrupt stack and loads it. segment.Init must have run first.
func Init() {
	InitWithStack(segment.DoubleFaultISTIndex + 1)
}

// InitWithStack is like Init but lets the caller choose the interrupt stack
// index of the double fault gate. An index of 0 keeps the faulting stack.
// The table in use stays untouched: the new one is built in the other
// kernel table and replaces it through a single IDTR load.
func InitWithStack(doubleFaultStack uint8) {
	idt := &kernelIDT
	if loadedIDT == idt {
		idt = &standbyIDT
	}

	*idt = gate.NewIDT()
	Install(idt, doubleFaultStack)
	loadIDTFn(idt)
	loadedIDT = idt
}

// Install binds the kernel handlers for the divide error, breakpoint and
// double fault vectors to idt.
func Install(idt *gate.IDT, doubleFaultStack uint8) {
	idt.SetHandler(gate.DivideByZero, divideByZeroHandler)
	idt.SetHandler(gate.Breakpoint, breakpointHandler)
	idt.SetHandlerWithCode(gate.DoubleFault, doubleFaultHandler).SetStackIndex(doubleFaultStack)
}

// KernelIDT returns the table loaded last by Init or InitWithStack.
func KernelIDT() *gate.IDT {
	if loadedIDT == nil {
		return &kernelIDT
	}
	return loadedIDT
}

func divideByZeroHandler(frame *gate.StackFrame) {
	kfmt.Printf("EXCEPTION: DIVIDE BY ZERO\n")
	frame.DumpTo(kfmt.GetOutputSink())
	pass()
}

func breakpointHandler(frame *gate.StackFrame) {
	kfmt.Printf("BREAKPOINT!\n")
	frame.DumpTo(kfmt.GetOutputSink())
	pass()
}

// doubleFaultHandler runs on the interrupt stack, which the Go runtime does
// not know about, so it only calls nosplit code and writes straight to the
// serial port.
//
//go:nosplit
func doubleFaultHandler(frame *gate.StackFrame, _ uint64) {
	serialPrint("EXCEPTION: Double Fault Handler\n")
	serialPrint("RIP = ")
	serialPrintHex(frame.RIP)
	serialPrint(" RSP = ")
	serialPrintHex(frame.RSP)
	// A fault escalated from a page fault leaves its address in CR2.
	serialPrint(" CR2 = ")
	serialPrintHex(readCR2Fn())
	serialPrint("\n[ok]\n")

	vmExitFn(qemu.Success)
	cpuHaltFn()
}

// pass reports success to the test harness and stops the machine.
func pass() {
	kfmt.SerialPrintf("[ok]\n")
	vmExitFn(qemu.Success)
	cpuHaltFn()
}

// serialPrint writes s to the serial port one byte at a time.
//
//go:nosplit
func serialPrint(s string) {
	for i := 0; i < len(s); i++ {
		serialWriteByteFn(s[i])
	}
}

// serialPrintHex writes v as 16 zero-padded hex digits.
//
//go:nosplit
func serialPrintHex(v uint64) {
	const hexDigits = "0123456789abcdef"

	for shift := 60; shift >= 0; shift -= 4 {
		serialWriteByteFn(hexDigits[(v>>uint(shift))&0xf])
	}
}

//go:nosplit
func serialWriteByte(b byte) {
	hal.SerialPort.WriteByte(b)
}
