// Package selftest contains in-kernel scenarios that exercise the trap
// handling path end to end. A scenario is selected with the
// selftest=<name> boot command line argument and reports its outcome over
// the serial port and through the VM exit code.
package selftest

import (
	"trapos/kernel"
	"trapos/kernel/cpu"
	"trapos/kernel/gate"
	"trapos/kernel/kfmt"
	"trapos/kernel/mem"
	"trapos/kernel/mem/pmm/allocator"
	"trapos/kernel/mem/vmm"
	"trapos/kernel/qemu"
	"trapos/kernel/segment"
	"trapos/kernel/trap"
)

// Scenario is a named self-test. Scenarios that trigger a fault never
// return: the trap handler ends the run.
type Scenario struct {
	Name string
	Run  func()
}

var (
	scenarios = []Scenario{
		{"breakpoint", breakpoint},
		{"divide-by-zero", divideByZero},
		{"double-fault", doubleFault},
		{"stack-overflow", stackOverflow},
		{"stack-overflow-no-ist", stackOverflowWithoutIST},
		{"missing-vectors", missingVectors},
		{"selector", selectorStable},
	}

	// The following functions are mocked by tests.
	breakpointFn    = cpu.Breakpoint
	divideFn        = raiseDivideError
	touchUnmappedFn = touchUnmapped
	overflowStackFn = overflowStack
	stackBottomFn   = stackBottom
	allocFrameFn    = allocator.AllocFrame
	splitHugePageFn = vmm.SplitHugePage
	unmapFn         = vmm.Unmap
	translateFn     = vmm.Translate
	initTrapsFn     = trap.InitWithStack
	kernelIDTFn     = trap.KernelIDT
	reloadCSFn      = segment.ReloadCS
	readCSFn        = cpu.ReadCS
	vmExitFn        = qemu.Exit
	cpuHaltFn       = cpu.Halt

	errUnknownScenario = &kernel.Error{Module: "selftest", Message: "unknown scenario"}
	errFellThrough     = &kernel.Error{Module: "selftest", Message: "fault trigger returned without trapping"}
	errVectorPresent   = &kernel.Error{Module: "selftest", Message: "vector without a handler is present"}
	errVectorMissing   = &kernel.Error{Module: "selftest", Message: "vector with a handler is not present"}
	errSelectorChanged = &kernel.Error{Module: "selftest", Message: "code selector changed across reload"}
	errGateSelector    = &kernel.Error{Module: "selftest", Message: "gate selector differs from CS"}
	errNoStackBounds   = &kernel.Error{Module: "selftest", Message: "running stack has no recorded bounds"}
	errGuardPageMapped = &kernel.Error{Module: "selftest", Message: "stack guard page is still mapped"}
)

// Scenarios returns the registered scenarios.
func Scenarios() []Scenario {
	return scenarios
}

// Run executes the scenario called name. It panics if no such scenario
// exists or if the scenario completes without reaching an outcome.
func Run(name string) {
	for i := range scenarios {
		if scenarios[i].Name != name {
			continue
		}

		kfmt.SerialPrintf("%s...\t", name)
		scenarios[i].Run()
		return
	}

	panic(errUnknownScenario)
}

func breakpoint() {
	breakpointFn()
	panic(errFellThrough)
}

func divideByZero() {
	divideFn()
	panic(errFellThrough)
}

// doubleFault touches an unmapped address. No page fault handler is
// installed so the CPU escalates to a double fault.
func doubleFault() {
	touchUnmappedFn()
	panic(errFellThrough)
}

// stackOverflow turns the lowest page of the running stack into a guard
// page and recurses until a push lands on it. No page fault handler is
// installed so the fault escalates to a double fault, which runs on its own
// IST stack.
func stackOverflow() {
	armStackGuard()
	overflowStackFn()
	panic(errFellThrough)
}

// stackOverflowWithoutIST loads an IDT whose double fault gate uses the
// faulting stack. The double fault cannot be delivered either and the
// machine resets, which the harness observes as a triple fault.
func stackOverflowWithoutIST() {
	armStackGuard()
	initTrapsFn(0)
	overflowStackFn()
	panic(errFellThrough)
}

// armStackGuard unmaps the first full page above the low bound of the
// running stack. The boot page tables may map the stack with a 2Mb page, so
// that mapping is split first.
func armStackGuard() {
	lo := stackBottomFn()
	if lo == 0 {
		panic(errNoStackBounds)
	}

	guard := vmm.PageFromAddress(lo + uintptr(mem.PageSize-1))
	if err := splitHugePageFn(guard, allocFrameFn); err != nil {
		panic(err)
	}

	if err := unmapFn(guard); err != nil {
		panic(err)
	}

	if _, err := translateFn(guard.Address()); err != vmm.ErrInvalidMapping {
		panic(errGuardPageMapped)
	}
}

// missingVectors checks that only vectors with a handler are present, both
// on a freshly built table and on the loaded kernel table.
func missingVectors() {
	fresh := gate.NewIDT()
	trap.Install(&fresh, segment.DoubleFaultISTIndex+1)

	for _, idt := range []*gate.IDT{&fresh, kernelIDTFn()} {
		for _, v := range []gate.InterruptNumber{gate.Debug, gate.PageFaultException} {
			if idt.Entry(v).Options().Present() {
				panic(errVectorPresent)
			}
		}

		for _, v := range []gate.InterruptNumber{gate.DivideByZero, gate.Breakpoint, gate.DoubleFault} {
			if !idt.Entry(v).Options().Present() {
				panic(errVectorMissing)
			}
		}
	}

	pass()
}

// selectorStable checks that CS survives a reload and that every
// installed gate refers to it.
func selectorStable() {
	before := segment.Selector(readCSFn())
	if after := reloadCSFn(); after != before {
		panic(errSelectorChanged)
	}

	idt := kernelIDTFn()
	for v := gate.InterruptNumber(0); v < gate.NumVectors; v++ {
		e := idt.Entry(v)
		if e.Options().Present() && e.Selector() != before {
			panic(errGateSelector)
		}
	}

	pass()
}

func pass() {
	kfmt.SerialPrintf("[ok]\n")
	vmExitFn(qemu.Success)
	cpuHaltFn()
}

// raiseDivideError executes DIV with a zero divisor. Go code cannot be used
// since the compiler guards integer division with an explicit check.
func raiseDivideError()

// touchUnmapped writes to the unmapped address 0xdeadbeef.
func touchUnmapped()

// overflowStack calls itself until pushing the return address faults.
func overflowStack()

// stackBottom returns the low bound of the running goroutine's stack.
func stackBottom() uintptr
