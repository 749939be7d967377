package gate

import (
	"io"
	"trapos/kernel/kfmt"
)

// Regs contains a snapshot of the general purpose registers saved by the
// common trap entry code. The field order matches the save area layout.
type Regs struct {
	RAX uint64
	RBX uint64
	RCX uint64
	RDX uint64
	RSI uint64
	RDI uint64
	RBP uint64
	R8  uint64
	R9  uint64
	R10 uint64
	R11 uint64
	R12 uint64
	R13 uint64
	R14 uint64
	R15 uint64
}

// DumpTo outputs the register contents to w.
func (r *Regs) DumpTo(w io.Writer) {
	kfmt.Fprintf(w, "RAX = %16x RBX = %16x\n", r.RAX, r.RBX)
	kfmt.Fprintf(w, "RCX = %16x RDX = %16x\n", r.RCX, r.RDX)
	kfmt.Fprintf(w, "RSI = %16x RDI = %16x\n", r.RSI, r.RDI)
	kfmt.Fprintf(w, "RBP = %16x\n", r.RBP)
	kfmt.Fprintf(w, "R8  = %16x R9  = %16x\n", r.R8, r.R9)
	kfmt.Fprintf(w, "R10 = %16x R11 = %16x\n", r.R10, r.R11)
	kfmt.Fprintf(w, "R12 = %16x R13 = %16x\n", r.R12, r.R13)
	kfmt.Fprintf(w, "R14 = %16x R15 = %16x\n", r.R14, r.R15)
}

// StackFrame is the interrupt stack frame pushed by the CPU on every gate
// entry, in stack order. The stack pointer and stack segment are always
// present in long mode.
type StackFrame struct {
	RIP    uint64
	CS     uint64
	RFlags uint64
	RSP    uint64
	SS     uint64
}

// DumpTo outputs the stack frame contents to w.
func (f *StackFrame) DumpTo(w io.Writer) {
	kfmt.Fprintf(w, "RIP = %16x CS  = %16x\n", f.RIP, f.CS)
	kfmt.Fprintf(w, "RSP = %16x SS  = %16x\n", f.RSP, f.SS)
	kfmt.Fprintf(w, "RFL = %16x\n", f.RFlags)
}

// Frame is the complete record built on the trap stack by the entry stubs:
// the saved registers, the vector number, the error code (zero for vectors
// that do not push one) and the CPU pushed StackFrame.
type Frame struct {
	Regs
	Vector    uint64
	ErrorCode uint64
	StackFrame
}

// DumpTo outputs the full trap record to w.
func (f *Frame) DumpTo(w io.Writer) {
	kfmt.Fprintf(w, "vector = %d, error code = %x\n", f.Vector, f.ErrorCode)
	f.Regs.DumpTo(w)
	f.StackFrame.DumpTo(w)
}
