// Package hal brings up the devices the kernel writes its output to.
package hal

import (
	"io"
	"trapos/kernel/driver/tty"
	"trapos/kernel/driver/uart"
	"trapos/kernel/driver/video/console"
	"trapos/kernel/hal/multiboot"
	"trapos/kernel/kfmt"
)

const (
	// EGA text mode defaults used when the bootloader does not report a
	// framebuffer.
	defaultEgaAddr   = 0xb8000
	defaultEgaWidth  = 80
	defaultEgaHeight = 25
)

var (
	egaConsole = &console.Ega{}

	// ActiveTerminal points to the currently active terminal.
	ActiveTerminal = &tty.Vt{}

	// SerialPort is the COM1 UART used for host-visible output.
	SerialPort = uart.NewPort(uart.COM1)

	// mirror fans console output out to the serial port once both are up.
	mirror teeWriter

	hasTerminal, hasSerial bool
)

// teeWriter copies every write to both of its writers. The fixed pair
// avoids the slice allocation io.MultiWriter would make.
type teeWriter struct {
	primary, secondary io.Writer
}

// Write implements io.Writer. Errors from the secondary writer are ignored.
func (t *teeWriter) Write(p []byte) (int, error) {
	if t.secondary != nil {
		t.secondary.Write(p)
	}
	if t.primary == nil {
		return len(p), nil
	}
	return t.primary.Write(p)
}

// InitTerminal attaches the EGA console reported by the bootloader to the
// active terminal and makes it the kfmt output sink.
func InitTerminal() {
	addr, width, height := uintptr(defaultEgaAddr), uint16(defaultEgaWidth), uint16(defaultEgaHeight)
	if fbInfo := multiboot.GetFramebufferInfo(); fbInfo != nil && fbInfo.Type == multiboot.FramebufferTypeEGA {
		addr, width, height = uintptr(fbInfo.PhysAddr), uint16(fbInfo.Width), uint16(fbInfo.Height)
	}

	egaConsole.Init(width, height, addr)
	ActiveTerminal.AttachTo(egaConsole)
	ActiveTerminal.Clear()

	hasTerminal = true
	updateSinks()
}

// InitSerial initializes COM1, makes it the kfmt serial sink and mirrors
// all console output to it.
func InitSerial() {
	SerialPort.Init()

	hasSerial = true
	updateSinks()
}

func updateSinks() {
	mirror = teeWriter{}
	if hasTerminal {
		mirror.primary = ActiveTerminal
	}
	if hasSerial {
		mirror.secondary = &SerialPort
		kfmt.SetSerialSink(&SerialPort)
	}

	kfmt.SetOutputSink(&mirror)
}
