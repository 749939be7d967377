package main

import "fmt"

// decodeExit maps the QEMU process status to an Outcome. The isa-debug-exit
// device makes QEMU exit with (code << 1) | 1, so kernel codes always
// produce odd statuses; a zero status is a plain shutdown.
func decodeExit(status int, codes ExitCodes) (Outcome, error) {
	if status == 0 {
		return OutcomeReset, nil
	}

	if status&1 == 0 || status > 0x1ff {
		return "", fmt.Errorf("qemu exited with status %d", status)
	}

	switch code := uint8(status >> 1); code {
	case codes.Success:
		return OutcomeSuccess, nil
	case codes.Failed:
		return OutcomeFailed, nil
	default:
		return "", fmt.Errorf("kernel exited with unknown code %#x", code)
	}
}
