// Package gate builds the interrupt descriptor table and routes CPU traps
// to Go handlers.
//
// Every vector has a small assembly entry stub. Vectors for which the CPU
// does not push an error code get a zero placeholder so that all traps share
// a single Frame layout. The common entry code saves the general purpose
// registers and XMM0-XMM15, calls dispatchTrap with a pointer to the Frame
// and, if the handler returns, restores the registers and resumes the
// interrupted code with IRETQ. The upper halves of the YMM registers are
// not saved, so handlers must not run AVX code.
package gate

import (
	"trapos/kernel"
	"trapos/kernel/cpu"
	"trapos/kernel/kfmt"
	"trapos/kernel/segment"
	"unsafe"
)

// Handler handles a trap for a vector that does not push an error code.
// Handlers installed on a gate that switches to an interrupt stack run on
// that stack and must be marked go:nosplit.
type Handler func(*StackFrame)

// HandlerWithCode handles a trap for a vector that pushes an error code.
type HandlerWithCode func(*StackFrame, uint64)

type handlerSlot struct {
	handler         Handler
	handlerWithCode HandlerWithCode
}

// IDT is an interrupt descriptor table covering the CPU exception vectors
// together with the Go handler bound to each present gate. A loaded IDT is
// referenced by the CPU until another table is loaded, so it must live in a
// package-level variable.
type IDT struct {
	entries  [NumVectors]Entry
	handlers [NumVectors]handlerSlot
}

var (
	errVectorOutOfRange = &kernel.Error{Module: "gate", Message: "vector out of range"}
	errHandlerABI       = &kernel.Error{Module: "gate", Message: "handler signature does not match the vector error code"}
	errMissingOffset    = &kernel.Error{Module: "gate", Message: "present gate has no entry point"}
	errUnhandledTrap    = &kernel.Error{Module: "gate", Message: "trap on a vector without a handler"}

	// activeIDT is the table consulted by dispatchTrap.
	activeIDT *IDT

	// trapDumpWriter tags frame dumps of unhandled traps.
	trapDumpWriter = kfmt.PrefixWriter{Prefix: []byte("[gate] ")}

	// trapEntryAddrs holds the address of each per-vector entry stub.
	trapEntryAddrs [NumVectors]uintptr

	// The following functions are used by tests to mock calls to
	// privileged instructions.
	readCSFn    = cpu.ReadCS
	loadIDTFn   = loadIDT
	entryAddrFn = trapEntryAddr
)

// NewIDT returns a table where every gate is a MissingEntry.
func NewIDT() IDT {
	var t IDT
	for i := range t.entries {
		t.entries[i] = MissingEntry()
	}
	return t
}

// SetHandler binds h to vector v and installs a present interrupt gate that
// uses the current code segment. The returned options may be used to tune
// the gate before Load is called.
func (t *IDT) SetHandler(v InterruptNumber, h Handler) *EntryOptions {
	checkVector(v)
	if HasErrorCode(v) {
		panic(errHandlerABI)
	}

	t.handlers[v] = handlerSlot{handler: h}
	return t.install(v)
}

// SetHandlerWithCode is the SetHandler counterpart for vectors that push an
// error code.
func (t *IDT) SetHandlerWithCode(v InterruptNumber, h HandlerWithCode) *EntryOptions {
	checkVector(v)
	if !HasErrorCode(v) {
		panic(errHandlerABI)
	}

	t.handlers[v] = handlerSlot{handlerWithCode: h}
	return t.install(v)
}

// Entry returns the gate for vector v.
func (t *IDT) Entry(v InterruptNumber) *Entry {
	checkVector(v)
	return &t.entries[v]
}

// Pointer returns the LIDT operand for the table: a 16-bit limit followed by
// the 64-bit linear base address.
func (t *IDT) Pointer() [10]byte {
	var (
		ptr   [10]byte
		limit = uint16(unsafe.Sizeof(t.entries) - 1)
		base  = uint64(uintptr(unsafe.Pointer(&t.entries[0])))
	)

	ptr[0], ptr[1] = byte(limit), byte(limit>>8)
	for i := 0; i < 8; i++ {
		ptr[2+i] = byte(base >> (8 * uint(i)))
	}
	return ptr
}

// Load validates every present gate, publishes t as the dispatch table and
// loads it into the IDTR. An invalid gate causes a panic before the CPU
// ever sees the table.
func (t *IDT) Load() {
	for v := range t.entries {
		e := &t.entries[v]
		if !e.options.Present() {
			continue
		}

		if err := e.options.Validate(); err != nil {
			panic(err)
		}

		if e.Offset() == 0 {
			panic(errMissingOffset)
		}
	}

	activeIDT = t
	ptr := t.Pointer()
	loadIDTFn(&ptr)
}

func (t *IDT) install(v InterruptNumber) *EntryOptions {
	t.entries[v] = newEntry(segment.Selector(readCSFn()), entryAddrFn(v))
	return &t.entries[v].options
}

func checkVector(v InterruptNumber) {
	if v >= NumVectors {
		panic(errVectorOutOfRange)
	}
}

// trapEntryAddr returns the address of the entry stub for vector v.
func trapEntryAddr(v InterruptNumber) uintptr {
	if trapEntryAddrs[0] == 0 {
		fillTrapEntryAddrs(&trapEntryAddrs)
	}
	return trapEntryAddrs[v]
}

// dispatchTrap is invoked by the common entry code with a pointer to the
// trap frame. It may run on an interrupt stack that is unknown to the Go
// runtime so it must not trigger a stack check.
//
//go:nosplit
func dispatchTrap(f *Frame) {
	t := activeIDT
	if t == nil || f.Vector >= NumVectors {
		unhandledTrap(f)
		return
	}

	slot := &t.handlers[f.Vector]
	switch {
	case slot.handlerWithCode != nil:
		slot.handlerWithCode(&f.StackFrame, f.ErrorCode)
	case slot.handler != nil:
		slot.handler(&f.StackFrame)
	default:
		unhandledTrap(f)
	}
}

func unhandledTrap(f *Frame) {
	kfmt.Printf("\nunhandled trap on vector %d\n", f.Vector)
	trapDumpWriter.Sink = kfmt.GetOutputSink()
	f.DumpTo(&trapDumpWriter)
	panic(errUnhandledTrap)
}

// loadIDT executes LIDT with the supplied pointer.
func loadIDT(ptr *[10]byte)

// fillTrapEntryAddrs stores the address of each entry stub into addrs.
func fillTrapEntryAddrs(addrs *[NumVectors]uintptr)

// Per-vector entry stubs. These are jumped to by the CPU and never called
// from Go.
func trapEntry0()
func trapEntry1()
func trapEntry2()
func trapEntry3()
func trapEntry4()
func trapEntry5()
func trapEntry6()
func trapEntry7()
func trapEntry8()
func trapEntry9()
func trapEntry10()
func trapEntry11()
func trapEntry12()
func trapEntry13()
func trapEntry14()
func trapEntry15()

// trapCommon saves the register state and calls dispatchTrap.
func trapCommon()
