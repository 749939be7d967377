package kfmt

import "io"

var (
	// earlyPrintBuffer stores Printf output until an output sink is set.
	earlyPrintBuffer ringBuffer

	// outputSink receives Printf output. When nil, output is captured
	// by earlyPrintBuffer.
	outputSink io.Writer

	// serialSink receives SerialPrintf output. When nil, SerialPrintf
	// output is discarded.
	serialSink io.Writer
)

// SetOutputSink makes w the target of Printf and flushes any output that
// was buffered before a sink was available.
func SetOutputSink(w io.Writer) {
	outputSink = w
	if w != nil {
		earlyPrintBuffer.WriteTo(w)
	}
}

// GetOutputSink returns the writer Printf currently sends its output to.
func GetOutputSink() io.Writer {
	if outputSink == nil {
		return &earlyPrintBuffer
	}
	return outputSink
}

// SetSerialSink sets the target of SerialPrintf. The host side test
// harness reads this stream so it should be a serial port.
func SetSerialSink(w io.Writer) {
	serialSink = w
}

// Printf writes formatted output to the active output sink. See Fprintf for
// the supported verbs.
func Printf(format string, args ...interface{}) {
	Fprintf(outputSink, format, args...)
}

// SerialPrintf writes formatted output to the serial sink only.
func SerialPrintf(format string, args ...interface{}) {
	if serialSink == nil {
		return
	}
	Fprintf(serialSink, format, args...)
}
