package main

import (
	"testing"

	"trapos/kernel/qemu"
)

func TestDecodeExit(t *testing.T) {
	codes := defaultConfig().Exit

	specs := []struct {
		status   int
		exp      Outcome
		expError bool
	}{
		{0, OutcomeReset, false},
		{qemu.ExitStatus(qemu.Success), OutcomeSuccess, false},
		{qemu.ExitStatus(qemu.Failed), OutcomeFailed, false},
		{0x21, OutcomeSuccess, false},
		{0x23, OutcomeFailed, false},
		// unknown kernel code
		{0x01, "", true},
		{0x25, "", true},
		// qemu itself failed
		{1 << 1, "", true},
		{0x200 | 1, "", true},
	}

	for specIndex, spec := range specs {
		got, err := decodeExit(spec.status, codes)
		if gotErr := err != nil; gotErr != spec.expError {
			t.Errorf("[spec %d] expected error %t; got %v", specIndex, spec.expError, err)
			continue
		}
		if got != spec.exp {
			t.Errorf("[spec %d] expected outcome %q; got %q", specIndex, spec.exp, got)
		}
	}
}
