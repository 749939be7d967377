// Package uart drives a 16550-compatible serial port using programmed I/O.
package uart

import "trapos/kernel/cpu"

// COM1 is the I/O base of the first serial port.
const COM1 = uint16(0x3f8)

// Register offsets relative to the port base.
const (
	regData       = 0
	regIntEnable  = 1
	regFIFOCtrl   = 2
	regLineCtrl   = 3
	regModemCtrl  = 4
	regLineStatus = 5

	lineCtrlDLAB = 0x80
	lineCtrl8N1  = 0x03
	fifoEnable   = 0xc7
	modemDTRRTS  = 0x0b
	lsrTHREmpty  = 0x20

	// 115200 / 3 = 38400 baud.
	baudDivisor = 3
)

var (
	// The following functions are used by tests to mock port I/O.
	portWriteByteFn = cpu.PortWriteByte
	portReadByteFn  = cpu.PortReadByte
)

// Port is a serial port at a fixed I/O base.
type Port struct {
	base uint16
}

// NewPort returns a Port for the UART at base. The port must be initialized
// with Init before use.
func NewPort(base uint16) Port {
	return Port{base: base}
}

// Init programs the UART for 38400 baud, 8 data bits, no parity, one stop
// bit, with FIFOs enabled and interrupts disabled.
func (p *Port) Init() {
	portWriteByteFn(p.base+regIntEnable, 0)
	portWriteByteFn(p.base+regLineCtrl, lineCtrlDLAB)
	portWriteByteFn(p.base+regData, baudDivisor&0xff)
	portWriteByteFn(p.base+regIntEnable, baudDivisor>>8)
	portWriteByteFn(p.base+regLineCtrl, lineCtrl8N1)
	portWriteByteFn(p.base+regFIFOCtrl, fifoEnable)
	portWriteByteFn(p.base+regModemCtrl, modemDTRRTS)
}

// WriteByte waits for the transmit holding register to drain and sends b.
//
//go:nosplit
func (p *Port) WriteByte(b byte) error {
	for portReadByteFn(p.base+regLineStatus)&lsrTHREmpty == 0 {
	}
	portWriteByteFn(p.base+regData, b)
	return nil
}

// WriteString sends s byte by byte. It is safe to call from code running
// on an interrupt stack.
//
//go:nosplit
func (p *Port) WriteString(s string) {
	for i := 0; i < len(s); i++ {
		p.WriteByte(s[i])
	}
}

// Write implements io.Writer.
func (p *Port) Write(data []byte) (int, error) {
	for _, b := range data {
		p.WriteByte(b)
	}
	return len(data), nil
}
