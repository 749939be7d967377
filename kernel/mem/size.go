// Package mem defines the memory size units and page geometry shared by the
// kernel memory packages, plus a few raw memory helpers.
package mem

// Size represents a memory block size in bytes.
type Size uint64

// Common memory block sizes.
const (
	Byte Size = 1
	Kb        = 1024 * Byte
	Mb        = 1024 * Kb
	Gb        = 1024 * Mb
)

// Pages returns the number of bytes spanned by count pages.
func Pages(count uint64) Size {
	return Size(count) << PageShift
}
