package vmm

import (
	"trapos/kernel"
	"trapos/kernel/mem"
	"trapos/kernel/mem/pmm"
	"unsafe"
)

var (
	// nextAddrFn is used by tests to override the address that Map and
	// SplitHugePage write new page table contents to. When compiling the
	// kernel this function will be automatically inlined.
	nextAddrFn = func(entryAddr uintptr) uintptr {
		return entryAddr
	}

	// flushTLBEntryFn is used by tests to override calls to flushTLBEntry
	// which will cause a fault if called in user-mode.
	flushTLBEntryFn = flushTLBEntry

	// The following functions are mocked by tests.
	mapTemporaryFn = MapTemporary
	unmapFn        = Unmap

	errNoHugePageSupport = &kernel.Error{Module: "vmm", Message: "huge pages are not supported"}
)

// FrameAllocatorFn is a function that can allocate physical frames.
type FrameAllocatorFn func() (pmm.Frame, *kernel.Error)

// Map establishes a mapping between a virtual page and a physical memory frame
// using the currently active page directory table. Calls to Map will use the
// supplied physical frame allocator to initialize missing page tables at each
// paging level supported by the MMU.
func Map(page Page, frame pmm.Frame, flags PageTableEntryFlag, allocFn FrameAllocatorFn) *kernel.Error {
	var err *kernel.Error

	walk(page.Address(), func(pteLevel uint8, pte *pageTableEntry) bool {
		// If we reached the last level all we need to do is to map the
		// frame in place and flag it as present and flush its TLB entry
		if pteLevel == pageLevels-1 {
			*pte = 0
			pte.SetFrame(frame)
			pte.SetFlags(FlagPresent | flags)
			flushTLBEntryFn(page.Address())
			return true
		}

		if pte.HasFlags(FlagHugePage) {
			err = errNoHugePageSupport
			return false
		}

		// Next table does not yet exist; we need to allocate a
		// physical frame for it map it and clear its contents.
		if !pte.HasFlags(FlagPresent) {
			var newTableFrame pmm.Frame
			newTableFrame, err = allocFn()
			if err != nil {
				return false
			}

			*pte = 0
			pte.SetFrame(newTableFrame)
			pte.SetFlags(FlagPresent | FlagRW)

			// The next pte entry becomes available but we need to
			// make sure that the new page is properly cleared
			nextTableAddr := (uintptr(unsafe.Pointer(pte)) << pageLevelBits[pteLevel+1])
			mem.Memset(nextAddrFn(nextTableAddr), 0, mem.PageSize)
		}

		return true
	})

	return err
}

// MapTemporary establishes a temporary RW mapping of a physical memory frame
// to a fixed virtual address overwriting any previous mapping. The kernel
// uses it to fill in page tables before linking them into the hierarchy.
func MapTemporary(frame pmm.Frame, allocFn FrameAllocatorFn) (Page, *kernel.Error) {
	if err := Map(PageFromAddress(tempMappingAddr), frame, FlagRW, allocFn); err != nil {
		return 0, err
	}

	return PageFromAddress(tempMappingAddr), nil
}

// Unmap removes a mapping previously installed via a call to Map or
// MapTemporary. Pages that are part of a 2Mb mapping must be split with
// SplitHugePage first.
func Unmap(page Page) *kernel.Error {
	var err *kernel.Error

	walk(page.Address(), func(pteLevel uint8, pte *pageTableEntry) bool {
		// If we reached the last level all we need to do is to set the
		// page as non-present and flush its TLB entry
		if pteLevel == pageLevels-1 {
			pte.ClearFlags(FlagPresent)
			flushTLBEntryFn(page.Address())
			return true
		}

		// Next table is not present; this is an invalid mapping
		if !pte.HasFlags(FlagPresent) {
			err = ErrInvalidMapping
			return false
		}

		if pte.HasFlags(FlagHugePage) {
			err = errNoHugePageSupport
			return false
		}

		return true
	})

	return err
}

// SplitHugePage replaces the 2Mb mapping that contains page with a page
// table whose 512 entries map the same physical range with the same flags.
// The table frame comes from allocFn. SplitHugePage is a no-op when page is
// already mapped through a page table.
func SplitHugePage(page Page, allocFn FrameAllocatorFn) *kernel.Error {
	var err *kernel.Error

	walk(page.Address(), func(pteLevel uint8, pte *pageTableEntry) bool {
		if !pte.HasFlags(FlagPresent) {
			err = ErrInvalidMapping
			return false
		}

		if !pte.HasFlags(FlagHugePage) {
			return pteLevel < hugePageLevel
		}

		// 1Gb pages are left alone.
		if pteLevel != hugePageLevel {
			err = errNoHugePageSupport
			return false
		}

		if err = splitEntry(pte, allocFn); err != nil {
			return false
		}

		// Drop the cached 2Mb translation and whatever the recursive
		// address of the new table used to resolve to.
		flushTLBEntryFn(page.Address())
		flushTLBEntryFn(uintptr(unsafe.Pointer(pte)) << pageLevelBits[pteLevel])
		return false
	})

	return err
}

// splitEntry points a 2Mb entry at a new page table that maps the same
// range with 4K pages.
func splitEntry(pte *pageTableEntry, allocFn FrameAllocatorFn) *kernel.Error {
	tableFrame, err := allocFn()
	if err != nil {
		return err
	}

	tablePage, err := mapTemporaryFn(tableFrame, allocFn)
	if err != nil {
		return err
	}

	// Bit 12 of a 2Mb entry is the PAT bit, not part of the address.
	hugeBase := uintptr(*pte) & ptePhysPageMask &^ (hugePageSize - 1)
	flags := pte.Flags() &^ FlagHugePage

	table := (*[1 << 9]pageTableEntry)(unsafe.Pointer(nextAddrFn(tablePage.Address())))
	for i := range table {
		table[i] = pageTableEntry(hugeBase+uintptr(i)<<mem.PageShift) | pageTableEntry(flags)
	}

	if err = unmapFn(tablePage); err != nil {
		return err
	}

	*pte = 0
	pte.SetFrame(tableFrame)
	pte.SetFlags(FlagPresent | FlagRW | flags&FlagUserAccessible)
	return nil
}
