// Package multiboot reads the multiboot2 information structure handed over
// by the bootloader.
package multiboot

import "unsafe"

type tagType uint32

// nolint
const (
	tagMbSectionEnd tagType = iota
	tagBootCmdLine
	tagBootLoaderName
	tagModules
	tagBasicMemoryInfo
	tagBiosBootDevice
	tagMemoryMap
	tagVbeInfo
	tagFramebufferInfo
	tagElfSymbols
	tagApmTable
)

// tagHeader precedes each tag. Tags start at 8-byte aligned addresses and
// size covers the header but not the trailing padding.
type tagHeader struct {
	tagType tagType
	size    uint32
}

// mmapHeader precedes the entries of the memory map tag.
type mmapHeader struct {
	entrySize    uint32
	entryVersion uint32
}

// FramebufferType defines the type of the initialized framebuffer.
type FramebufferType uint8

const (
	// FramebufferTypeIndexed specifies a 256-color palette.
	FramebufferTypeIndexed FramebufferType = iota

	// FramebufferTypeRGB specifies direct RGB mode.
	FramebufferTypeRGB

	// FramebufferTypeEGA specifies EGA text mode.
	FramebufferTypeEGA
)

// FramebufferInfo provides information about the initialized framebuffer.
type FramebufferInfo struct {
	// The framebuffer physical address.
	PhysAddr uint64

	// Row pitch in bytes.
	Pitch uint32

	// Width and height in pixels (or characters if Type = FramebufferTypeEGA)
	Width, Height uint32

	// Bits per pixel (non EGA modes only).
	Bpp uint8

	// Framebuffer type.
	Type FramebufferType
}

// MemoryEntryType defines the type of a MemoryMapEntry.
type MemoryEntryType uint32

const (
	// MemAvailable indicates that the memory region is available for use.
	MemAvailable MemoryEntryType = iota + 1

	// MemReserved indicates that the memory region is not available for use.
	MemReserved

	// MemAcpiReclaimable indicates a memory region that holds ACPI info that
	// can be reused by the OS.
	MemAcpiReclaimable

	// MemNvs indicates memory that must be preserved when hibernating.
	MemNvs

	// Any value >= memUnknown will be mapped to MemReserved.
	memUnknown
)

// MemoryMapEntry describes a memory region entry, namely its physical address,
// its length and its type.
type MemoryMapEntry struct {
	// The physical address for this memory region.
	PhysAddress uint64

	// The length of the memory region.
	Length uint64

	// The type of this entry.
	Type MemoryEntryType
}

// String implements fmt.Stringer for MemoryEntryType.
func (t MemoryEntryType) String() string {
	switch t {
	case MemAvailable:
		return "available"
	case MemReserved:
		return "reserved"
	case MemAcpiReclaimable:
		return "ACPI (reclaimable)"
	case MemNvs:
		return "NVS"
	default:
		return "unknown"
	}
}

// MemRegionVisitor is invoked by VisitMemRegions for each memory region. It
// returns false to stop the scan.
type MemRegionVisitor func(entry *MemoryMapEntry) bool

// CmdLineVisitor is invoked by VisitCmdLine for each key=value pair on the
// boot command line. Words without a '=' are reported with an empty value.
// It returns false to stop the scan.
type CmdLineVisitor func(key, value string) bool

var infoData uintptr

// SetInfoPtr updates the internal multiboot information pointer to the given
// value. This function must be invoked before invoking any other function
// exported by this package.
func SetInfoPtr(ptr uintptr) {
	infoData = ptr
}

// VisitMemRegions invokes visitor for each memory region reported by the
// bootloader. Regions with an unknown type are reported as MemReserved.
func VisitMemRegions(visitor MemRegionVisitor) {
	curPtr, size := findTagByType(tagMemoryMap)
	if size == 0 {
		return
	}

	hdr := (*mmapHeader)(unsafe.Pointer(curPtr))
	endPtr := curPtr + uintptr(size)
	for curPtr += unsafe.Sizeof(*hdr); curPtr < endPtr; curPtr += uintptr(hdr.entrySize) {
		entry := (*MemoryMapEntry)(unsafe.Pointer(curPtr))
		if entry.Type == 0 || entry.Type >= memUnknown {
			entry.Type = MemReserved
		}

		if !visitor(entry) {
			return
		}
	}
}

// MemRegionCount returns the number of memory regions reported by the
// bootloader.
func MemRegionCount() int {
	var count int
	VisitMemRegions(func(_ *MemoryMapEntry) bool {
		count++
		return true
	})
	return count
}

// GetFramebufferInfo returns information about the framebuffer initialized by the
// bootloader. This function returns nil if no framebuffer info is available.
func GetFramebufferInfo() *FramebufferInfo {
	curPtr, size := findTagByType(tagFramebufferInfo)
	if size == 0 {
		return nil
	}

	return (*FramebufferInfo)(unsafe.Pointer(curPtr))
}

// GetBootCmdLine returns the raw boot command line or an empty string if the
// bootloader did not supply one. The returned string aliases the multiboot
// info data.
func GetBootCmdLine() string {
	curPtr, size := findTagByType(tagBootCmdLine)
	if size == 0 {
		return ""
	}

	// The command line is NUL-terminated.
	data := unsafe.Slice((*byte)(unsafe.Pointer(curPtr)), size)
	for i, b := range data {
		if b == 0 {
			data = data[:i]
			break
		}
	}

	if len(data) == 0 {
		return ""
	}
	return unsafe.String(&data[0], len(data))
}

// VisitCmdLine splits the boot command line on spaces and invokes visitor for
// each word.
func VisitCmdLine(visitor CmdLineVisitor) {
	cmdLine := GetBootCmdLine()

	for start := 0; start < len(cmdLine); {
		end := start
		for end < len(cmdLine) && cmdLine[end] != ' ' {
			end++
		}

		if word := cmdLine[start:end]; len(word) != 0 {
			key, value := word, ""
			for i := 0; i < len(word); i++ {
				if word[i] == '=' {
					key, value = word[:i], word[i+1:]
					break
				}
			}

			if !visitor(key, value) {
				return
			}
		}

		start = end + 1
	}
}

// CmdLineValue returns the value of the first command line argument named
// key and whether such an argument exists.
func CmdLineValue(key string) (string, bool) {
	var (
		value string
		found bool
	)

	VisitCmdLine(func(k, v string) bool {
		if k == key {
			value, found = v, true
			return false
		}
		return true
	})

	return value, found
}

// findTagByType scans the multiboot info data for the first tag of the
// requested type. It returns a pointer to the tag payload and the payload
// length, or (0, 0) if the tag is not present.
func findTagByType(tagType tagType) (uintptr, uint32) {
	// The info data starts with an 8-byte total size/reserved header.
	curPtr := infoData + 8
	for {
		hdr := (*tagHeader)(unsafe.Pointer(curPtr))
		switch hdr.tagType {
		case tagMbSectionEnd:
			return 0, 0
		case tagType:
			return curPtr + 8, hdr.size - 8
		}

		curPtr += uintptr((hdr.size + 7) &^ 7)
	}
}
