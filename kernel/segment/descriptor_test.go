package segment

import "testing"

func TestKernelCodeSegment(t *testing.T) {
	if exp := Descriptor(0x00af9b000000ffff); KernelCodeSegment != exp {
		t.Fatalf("expected kernel code segment to be %#016x; got %#016x", uint64(exp), uint64(KernelCodeSegment))
	}

	d := KernelCodeSegment
	switch {
	case !d.Present():
		t.Error("expected kernel code segment to be present")
	case !d.UserSegment():
		t.Error("expected kernel code segment to be a code/data segment")
	case !d.Long():
		t.Error("expected kernel code segment to be a 64-bit segment")
	case d&FlagDefaultSize != 0:
		t.Error("expected D bit to be clear for a long mode code segment")
	case d.DPL() != Ring0:
		t.Errorf("expected DPL 0; got %d", d.DPL())
	case d&FlagExecutable == 0:
		t.Error("expected kernel code segment to be executable")
	}
}

func TestTSSDescriptor(t *testing.T) {
	specs := []struct {
		base  uint64
		limit uint32
		expLo Descriptor
		expHi Descriptor
	}{
		{0, 103, 0x0000890000000067, 0},
		{0x12345678, 103, 0x1200893456780067, 0},
		{0xffff8000deadbeef, 0x67, 0xde0089adbeef0067, 0xffff8000},
		{0x1000, 0xfffff, 0x000f89001000ffff, 0},
	}

	for specIndex, spec := range specs {
		lo, hi := TSSDescriptor(spec.base, spec.limit)
		if lo != spec.expLo || hi != spec.expHi {
			t.Errorf("[spec %d] expected (%#016x, %#016x); got (%#016x, %#016x)", specIndex, uint64(spec.expLo), uint64(spec.expHi), uint64(lo), uint64(hi))
			continue
		}

		if got := SystemBase(lo, hi); got != spec.base {
			t.Errorf("[spec %d] expected decoded base %#x; got %#x", specIndex, spec.base, got)
		}
		if got := lo.Limit(); got != spec.limit {
			t.Errorf("[spec %d] expected decoded limit %#x; got %#x", specIndex, spec.limit, got)
		}
		if lo.UserSegment() {
			t.Errorf("[spec %d] expected TSS descriptor to be a system segment", specIndex)
		}
		if got := lo.Type(); got != SystemTypeAvailableTSS {
			t.Errorf("[spec %d] expected type %#x; got %#x", specIndex, SystemTypeAvailableTSS, got)
		}
		if !lo.Present() {
			t.Errorf("[spec %d] expected TSS descriptor to be present", specIndex)
		}
	}
}

func TestDescriptorWithDPL(t *testing.T) {
	for dpl := Ring0; dpl <= Ring3; dpl++ {
		d := KernelCodeSegment.WithDPL(dpl)
		if got := d.DPL(); got != dpl {
			t.Errorf("expected DPL %d; got %d", dpl, got)
		}
		if d&^dplMask != KernelCodeSegment&^dplMask {
			t.Errorf("expected WithDPL(%d) to leave the other bits untouched", dpl)
		}
	}

	defer func() {
		if err := recover(); err != errBadPrivilegeLevel {
			t.Errorf("expected panic with errBadPrivilegeLevel; got %v", err)
		}
	}()
	KernelCodeSegment.WithDPL(Ring3 + 1)
}
