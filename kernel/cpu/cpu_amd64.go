// Package cpu exposes the handful of privileged and special-purpose x86_64
// instructions used by the kernel.
package cpu

// DisableInterrupts disables interrupt handling.
func DisableInterrupts()

// Halt disables interrupts and stops instruction execution. Halt never
// returns; NMIs that wake the CPU up put it straight back to sleep.
func Halt()

// Breakpoint raises a breakpoint exception (#BP) via the one-byte INT3
// instruction.
func Breakpoint()

// ReadCR2 returns the value stored in the CR2 register.
func ReadCR2() uint64

// ReadCS returns the code segment selector that is currently loaded.
func ReadCS() uint16

// PortWriteByte writes a uint8 value to the requested port.
func PortWriteByte(port uint16, val uint8)

// PortReadByte reads a uint8 value from the requested port.
func PortReadByte(port uint16) uint8
