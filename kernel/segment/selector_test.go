package segment

import "testing"

func TestNewSelector(t *testing.T) {
	specs := []struct {
		index uint16
		rpl   PrivilegeLevel
		exp   Selector
	}{
		{0, Ring0, 0x0},
		{1, Ring0, 0x8},
		{2, Ring0, 0x10},
		{6, Ring3, 0x33},
		{MaxSelectorIndex, Ring3, 0xffff &^ 0x4},
	}

	for specIndex, spec := range specs {
		sel := NewSelector(spec.index, spec.rpl)
		if sel != spec.exp {
			t.Errorf("[spec %d] expected selector %#x; got %#x", specIndex, spec.exp, sel)
			continue
		}

		if got := sel.Index(); got != spec.index {
			t.Errorf("[spec %d] expected index %d; got %d", specIndex, spec.index, got)
		}
		if got := sel.RPL(); got != spec.rpl {
			t.Errorf("[spec %d] expected RPL %d; got %d", specIndex, spec.rpl, got)
		}
		if sel.LocalTable() {
			t.Errorf("[spec %d] expected selector to reference the GDT", specIndex)
		}
	}
}

func TestSelectorLocalTable(t *testing.T) {
	if !Selector(0x0c).LocalTable() {
		t.Fatal("expected selector with bit 2 set to reference the LDT")
	}
}

func TestNewSelectorRejectsBadInput(t *testing.T) {
	specs := []struct {
		index uint16
		rpl   PrivilegeLevel
		exp   error
	}{
		{MaxSelectorIndex + 1, Ring0, errBadSelectorIndex},
		{1, Ring3 + 1, errBadPrivilegeLevel},
	}

	for specIndex, spec := range specs {
		func() {
			defer func() {
				if err := recover(); err != spec.exp {
					t.Errorf("[spec %d] expected panic with %v; got %v", specIndex, spec.exp, err)
				}
			}()

			NewSelector(spec.index, spec.rpl)
		}()
	}
}
