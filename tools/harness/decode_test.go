package main

import (
	"bytes"
	"context"
	"flag"
	"testing"

	"github.com/google/subcommands"
	"trapos/kernel/segment"
)

func TestDecodeGate(t *testing.T) {
	var buf bytes.Buffer
	if err := decodeGate(&buf, 0x00108e0000081234, 0xffff8000); err != nil {
		t.Fatal(err)
	}

	exp := `offset   0xffff800000101234
selector 0x0008 (gdt index 1, rpl 0)
present  true
type     interrupt gate (0xe)
dpl      0
ist      0
`
	if got := buf.String(); got != exp {
		t.Fatalf("expected output:\n%s\ngot:\n%s", exp, got)
	}

	specs := []struct {
		lo, hi   uint64
		expError bool
	}{
		// double fault gate on IST 1
		{0x00108e0100081234, 0xffff8000, false},
		// missing gate with the minimal options
		{0x00000e0000000000, 0, false},
		// present with a bad type
		{0x0000860000080000, 0, true},
		// present with reserved bits set
		{0x00008e1000080000, 0, true},
		// present with the high reserved dword set
		{0x00008e0000080000, 0x100000000, true},
	}

	for specIndex, spec := range specs {
		err := decodeGate(&bytes.Buffer{}, spec.lo, spec.hi)
		if gotErr := err != nil; gotErr != spec.expError {
			t.Errorf("[spec %d] expected error %t; got %v", specIndex, spec.expError, err)
		}
	}
}

func TestDecodeSegment(t *testing.T) {
	var buf bytes.Buffer
	decodeSegment(&buf, uint64(segment.KernelCodeSegment))

	exp := `kind     code
present  true
type     0xb
dpl      0
long     true
base     0x00000000
limit    0xfffff
`
	if got := buf.String(); got != exp {
		t.Fatalf("expected output:\n%s\ngot:\n%s", exp, got)
	}

	buf.Reset()
	decodeSegment(&buf, 0)
	if got := buf.String(); !bytes.Contains([]byte(got), []byte("kind     system\npresent  false\n")) {
		t.Fatalf("unexpected null descriptor output:\n%s", got)
	}
}

func TestDecodeSystemSegment(t *testing.T) {
	lo, hi := segment.TSSDescriptor(0xffff800000123000, 0x67)

	var buf bytes.Buffer
	decodeSystemSegment(&buf, uint64(lo), uint64(hi))

	got := buf.String()
	for _, exp := range []string{"kind     system\n", "type     0x9\n", "limit    0x00067\n", "base64   0xffff800000123000\n"} {
		if !bytes.Contains([]byte(got), []byte(exp)) {
			t.Errorf("expected output to contain %q; got:\n%s", exp, got)
		}
	}
}

func TestDecodeCommand(t *testing.T) {
	specs := []struct {
		args      []string
		expStatus subcommands.ExitStatus
		expOutput string
	}{
		{[]string{"exit", "33"}, subcommands.ExitSuccess, "outcome  success\n"},
		{[]string{"exit", "0x23"}, subcommands.ExitSuccess, "outcome  failed\n"},
		{[]string{"exit", "0"}, subcommands.ExitSuccess, "outcome  reset\n"},
		{[]string{"exit", "2"}, subcommands.ExitFailure, ""},
		{[]string{"gate", "0x0000860000080000", "0"}, subcommands.ExitFailure, ""},
		{[]string{"gate", "1"}, subcommands.ExitUsageError, ""},
		{[]string{"gate", "0x00108e0000081234", "0xffff8000"}, subcommands.ExitSuccess, ""},
		{[]string{"segment", "0x00af9b000000ffff"}, subcommands.ExitSuccess, ""},
		{[]string{"segment", "1", "2", "3"}, subcommands.ExitUsageError, ""},
		{[]string{"segment", "zz"}, subcommands.ExitUsageError, ""},
		{[]string{"tss", "1"}, subcommands.ExitUsageError, ""},
		{nil, subcommands.ExitUsageError, ""},
	}

	for specIndex, spec := range specs {
		var out bytes.Buffer
		f := flag.NewFlagSet("decode", flag.ContinueOnError)
		f.SetOutput(&bytes.Buffer{})
		if err := f.Parse(spec.args); err != nil {
			t.Fatal(err)
		}

		status := (&Decode{out: &out}).Execute(context.Background(), f, defaultConfig())
		if status != spec.expStatus {
			t.Errorf("[spec %d] expected status %d; got %d", specIndex, spec.expStatus, status)
		}
		if spec.expOutput != "" && out.String() != spec.expOutput {
			t.Errorf("[spec %d] expected output %q; got %q", specIndex, spec.expOutput, out.String())
		}
	}
}
