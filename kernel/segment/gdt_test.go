package segment

import (
	"encoding/binary"
	"testing"
	"unsafe"

	"github.com/google/go-cmp/cmp"
)

func TestBuildGDT(t *testing.T) {
	tss := BuildTSS(0xffff800000105000)
	gdt, sel := BuildGDT(&tss)

	tssLo, tssHi := TSSDescriptor(uint64(uintptr(unsafe.Pointer(&tss))), 103)
	exp := []Descriptor{NullDescriptor, KernelCodeSegment, tssLo, tssHi}
	if diff := cmp.Diff(exp, gdt.Entries()); diff != "" {
		t.Fatalf("unexpected GDT contents (-want +got):\n%s", diff)
	}

	expSel := Selectors{Code: 0x08, TSS: 0x10}
	if diff := cmp.Diff(expSel, sel); diff != "" {
		t.Fatalf("unexpected selectors (-want +got):\n%s", diff)
	}

	entries := gdt.Entries()
	if got := SystemBase(entries[2], entries[3]); got != uint64(uintptr(unsafe.Pointer(&tss))) {
		t.Errorf("expected TSS descriptor to reference the TSS at %p; got %#x", &tss, got)
	}
	if got := tss.InterruptStack(DoubleFaultISTIndex); got != 0xffff800000105000 {
		t.Errorf("expected double fault IST slot to hold the stack top; got %#x", got)
	}
}

func TestGDTPointer(t *testing.T) {
	tss := NewTaskStateSegment()
	gdt, _ := BuildGDT(&tss)

	ptr := gdt.Pointer()
	if got := binary.LittleEndian.Uint16(ptr[:2]); got != 4*8-1 {
		t.Errorf("expected GDT limit %d; got %d", 4*8-1, got)
	}
	if got := binary.LittleEndian.Uint64(ptr[2:]); got != uint64(uintptr(unsafe.Pointer(&gdt.table[0]))) {
		t.Errorf("expected GDT base to point at the table; got %#x", got)
	}
}

func TestGDTFull(t *testing.T) {
	specs := []func(*GDT){
		func(g *GDT) {
			g.AddSegment(KernelCodeSegment)
			g.AddSegment(KernelCodeSegment)
			g.AddSegment(KernelCodeSegment)
			g.AddSegment(KernelCodeSegment)
		},
		func(g *GDT) {
			g.AddSegment(KernelCodeSegment)
			g.AddSegment(KernelCodeSegment)
			g.AddSystemSegment(TSSDescriptor(0, 103))
		},
	}

	for specIndex, spec := range specs {
		func() {
			defer func() {
				if err := recover(); err != errGDTFull {
					t.Errorf("[spec %d] expected panic with errGDTFull; got %v", specIndex, err)
				}
			}()

			gdt := NewGDT()
			spec(&gdt)
		}()
	}
}

func TestAddSegmentSelectorRPL(t *testing.T) {
	gdt := NewGDT()
	sel := gdt.AddSegment(KernelCodeSegment.WithDPL(Ring3))
	if sel.RPL() != Ring3 || sel.Index() != 1 {
		t.Fatalf("expected selector for ring 3 segment at index 1; got %#x", sel)
	}
	if gdt.Len() != 2 {
		t.Fatalf("expected GDT length 2; got %d", gdt.Len())
	}
}
