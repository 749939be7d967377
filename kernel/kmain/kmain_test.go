package kmain

import (
	"bytes"
	"testing"
	"trapos/kernel/cpu"
	"trapos/kernel/hal"
	"trapos/kernel/kfmt"
	"trapos/kernel/mem/pmm/allocator"
	"trapos/kernel/segment"
	"trapos/kernel/selftest"
	"trapos/kernel/trap"
	"unsafe"
)

// bootInfo returns a multiboot info block with a single command line tag.
func bootInfo(cmdLine string) []uint64 {
	tagSize := 8 + len(cmdLine) + 1
	padded := (tagSize + 7) &^ 7

	words := make([]uint64, (8+padded+8)/8)
	buf := unsafe.Slice((*byte)(unsafe.Pointer(&words[0])), len(words)*8)
	buf[8] = 1 // command line tag
	buf[12] = byte(tagSize)
	copy(buf[16:], cmdLine)
	return words
}

func TestKmain(t *testing.T) {
	defer func() {
		initSerialFn = hal.InitSerial
		initTerminalFn = hal.InitTerminal
		allocInitFn = allocator.Init
		cliFn = cpu.DisableInterrupts
		segmentInitFn = segment.Init
		trapInitFn = trap.Init
		runSelfTestFn = selftest.Run
		cpuHaltFn = cpu.Halt
		kfmt.SetOutputSink(nil)
	}()

	specs := []struct {
		cmdLine     string
		expCalls    []string
		expSelfTest string
	}{
		{"", []string{"terminal", "serial", "alloc", "cli", "segment", "trap", "halt"}, ""},
		{"selftest=breakpoint", []string{"terminal", "serial", "alloc", "cli", "segment", "trap", "selftest", "halt"}, "breakpoint"},
	}

	for specIndex, spec := range specs {
		var (
			calls    []string
			selfTest string
			out      bytes.Buffer
		)

		initTerminalFn = func() {
			calls = append(calls, "terminal")
			kfmt.SetOutputSink(&out)
		}
		initSerialFn = func() { calls = append(calls, "serial") }
		allocInitFn = func(kernelStart, kernelEnd uintptr) {
			calls = append(calls, "alloc")
			if kernelStart != 0x100000 || kernelEnd != 0x1fa7c8 {
				t.Errorf("[spec %d] expected the kernel image bounds to reach the allocator; got 0x%x - 0x%x", specIndex, kernelStart, kernelEnd)
			}
		}
		cliFn = func() { calls = append(calls, "cli") }
		segmentInitFn = func() { calls = append(calls, "segment") }
		trapInitFn = func() { calls = append(calls, "trap") }
		runSelfTestFn = func(name string) {
			calls = append(calls, "selftest")
			selfTest = name
		}
		cpuHaltFn = func() {
			calls = append(calls, "halt")
			// Kmain never returns on real hardware.
			panic(errKmainReturned)
		}

		info := bootInfo(spec.cmdLine)
		func() {
			defer func() {
				if err := recover(); err != errKmainReturned {
					t.Errorf("[spec %d] expected Kmain to halt; got %v", specIndex, err)
				}
			}()
			Kmain(uintptr(unsafe.Pointer(&info[0])), 0x100000, 0x1fa7c8)
		}()

		if len(calls) != len(spec.expCalls) {
			t.Errorf("[spec %d] expected calls %v; got %v", specIndex, spec.expCalls, calls)
		} else {
			for i := range calls {
				if calls[i] != spec.expCalls[i] {
					t.Errorf("[spec %d] expected calls %v; got %v", specIndex, spec.expCalls, calls)
					break
				}
			}
		}

		if selfTest != spec.expSelfTest {
			t.Errorf("[spec %d] expected self-test %q; got %q", specIndex, spec.expSelfTest, selfTest)
		}

		if exp := "Hello World! - boot info has 0 regions\nIt didn't crash\n"; out.String() != exp {
			t.Errorf("[spec %d] expected output %q; got %q", specIndex, exp, out.String())
		}
	}
}
