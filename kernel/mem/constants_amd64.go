// +build amd64

package mem

const (
	// PageShift is equal to log2(PageSize).
	PageShift = 12

	// PageSize defines the system's page size in bytes.
	PageSize = Size(1 << PageShift)

	// PointerShift is equal to log2(unsafe.Sizeof(uintptr)).
	PointerShift = 3

	// StackAlign is the alignment the CPU enforces on RSP when it switches
	// to an interrupt stack in long mode.
	StackAlign = 16
)
