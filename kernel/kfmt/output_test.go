package kfmt

import (
	"bytes"
	"testing"
)

func resetSinks() {
	outputSink = nil
	serialSink = nil
	earlyPrintBuffer = ringBuffer{}
}

func TestPrintfToRingBuffer(t *testing.T) {
	resetSinks()
	defer resetSinks()

	exp := "hello world"
	Printf(exp)

	if got := GetOutputSink(); got != &earlyPrintBuffer {
		t.Fatal("expected the early print buffer to be the output sink before SetOutputSink is called")
	}

	var buf bytes.Buffer
	SetOutputSink(&buf)

	if got := buf.String(); got != exp {
		t.Fatalf("expected to get:\n%q\ngot:\n%q", exp, got)
	}

	if got := GetOutputSink(); got != &buf {
		t.Fatal("expected GetOutputSink to return the configured sink")
	}

	buf.Reset()
	SetOutputSink(&buf)
	if buf.Len() != 0 {
		t.Fatal("expected the early print buffer to be flushed only once")
	}
}

func TestSerialPrintf(t *testing.T) {
	resetSinks()
	defer resetSinks()

	// Output without a serial sink is dropped rather than buffered.
	SerialPrintf("lost")

	var console, serial bytes.Buffer
	SetOutputSink(&console)
	SetSerialSink(&serial)

	SerialPrintf("%s...\t", "breakpoint")
	Printf("console only")

	if exp, got := "breakpoint...\t", serial.String(); got != exp {
		t.Errorf("expected serial output %q; got %q", exp, got)
	}

	if exp, got := "console only", console.String(); got != exp {
		t.Errorf("expected console output %q; got %q", exp, got)
	}
}
