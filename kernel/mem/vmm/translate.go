package vmm

import "trapos/kernel"

// Translate returns the physical address that corresponds to the supplied
// virtual address or ErrInvalidMapping if the virtual address does not
// correspond to a mapped physical address.
func Translate(virtAddr uintptr) (uintptr, *kernel.Error) {
	pte, level, err := pteForAddress(virtAddr)
	if err != nil {
		return 0, err
	}

	// Huge page entries map a larger block so more of the virtual
	// address is kept as the offset.
	offsetMask := uintptr(1)<<pageLevelShifts[level] - 1
	physAddr := (pte.Frame().Address() &^ offsetMask) + (virtAddr & offsetMask)

	return physAddr, nil
}
