// Package qemu lets the kernel terminate the virtual machine it runs in
// through the isa-debug-exit device.
package qemu

import "trapos/kernel/cpu"

// ExitPort is the I/O port the isa-debug-exit device listens on.
const ExitPort = uint16(0xf4)

// ExitCode is the value written to ExitPort.
type ExitCode uint8

const (
	// Success signals that the kernel reached its expected outcome.
	Success = ExitCode(0x10)

	// Failed signals that the kernel hit an unexpected condition.
	Failed = ExitCode(0x11)
)

// portWriteByteFn is used by tests to mock port I/O.
var portWriteByteFn = cpu.PortWriteByte

// Exit asks the hypervisor to stop the VM with the given code. When no
// isa-debug-exit device is attached the write is ignored and Exit returns.
//
//go:nosplit
func Exit(code ExitCode) {
	portWriteByteFn(ExitPort, uint8(code))
}

// ExitStatus returns the host process status QEMU reports after the kernel
// calls Exit with code.
func ExitStatus(code ExitCode) int {
	return int(code)<<1 | 1
}

// String implements fmt.Stringer.
func (c ExitCode) String() string {
	switch c {
	case Success:
		return "success"
	case Failed:
		return "failed"
	}
	return "unknown"
}
