package kfmt

import (
	"trapos/kernel"
	"trapos/kernel/cpu"
	"trapos/kernel/qemu"
)

var (
	// The following functions are mocked by tests.
	cpuHaltFn = cpu.Halt
	vmExitFn  = qemu.Exit

	errRuntimePanic = &kernel.Error{Module: "rt", Message: "unknown cause"}
)

// Panic reports the supplied error, tells the test harness that the kernel
// failed, exits the VM and halts the CPU. Calls to Panic never return. Panic
// also works as a redirection target for calls to panic() (resolved via
// runtime.gopanic).
//
//go:redirect-from runtime.gopanic
func Panic(e interface{}) {
	var err *kernel.Error

	switch t := e.(type) {
	case *kernel.Error:
		err = t
	case string:
		panicString(t)
		return
	case error:
		errRuntimePanic.Message = t.Error()
		err = errRuntimePanic
	}

	Printf("\n-----------------------------------\n")
	if err != nil {
		Printf("[%s] unrecoverable error: %s\n", err.Module, err.Message)
	}
	Printf("*** kernel panic: system halted ***")
	Printf("\n-----------------------------------\n")

	SerialPrintf("[failed]\n")
	if err != nil {
		SerialPrintf("[%s] %s\n", err.Module, err.Message)
	}

	vmExitFn(qemu.Failed)
	cpuHaltFn()
}

// panicString serves as a redirect target for runtime.throw
//
//go:redirect-from runtime.throw
func panicString(msg string) {
	errRuntimePanic.Message = msg
	Panic(errRuntimePanic)
}
