package dmreg

import (
	"math/bits"
	"testing"
)

func TestMaskWidthMatchesPopcount(t *testing.T) {
	for _, r := range Regs {
		for _, f := range r.Fields {
			if got, want := bits.OnesCount32(f.Mask()), int(f.Width()); got != want {
				t.Errorf("%s.%s: popcount(mask)=%d want %d", r.Name, f.Name, got, want)
			}
		}
	}
}

func TestMaskFormula(t *testing.T) {
	for _, r := range Regs {
		for _, f := range r.Fields {
			w := f.Width()
			want := uint32(0xFFFFFFFF)
			if w != 32 {
				want = ((uint32(1) << w) - 1) << f.LSB
			}
			if f.Mask() != want {
				t.Errorf("%s.%s: mask=0x%x want 0x%x", r.Name, f.Name, f.Mask(), want)
			}
		}
	}
}

func TestExtractInsertRoundTrip(t *testing.T) {
	for _, r := range Regs {
		for _, f := range r.Fields {
			width := f.Width()
			var maxVal uint32 = 0xFFFFFFFF
			if width < 32 {
				maxVal = (1 << width) - 1
			}
			for _, v := range []uint32{0, 1, maxVal} {
				word := uint32(0xA5A5A5A5)
				newWord, err := Insert(r.ID, f.Name, word, v)
				if err != nil {
					t.Fatalf("Insert(%s,%s): %v", r.Name, f.Name, err)
				}
				got, err := Extract(r.ID, f.Name, newWord)
				if err != nil {
					t.Fatalf("Extract(%s,%s): %v", r.Name, f.Name, err)
				}
				if got != v {
					t.Errorf("%s.%s round-trip: got %d want %d", r.Name, f.Name, got, v)
				}
				// Bits outside the field must be unchanged.
				if (newWord &^ f.Mask()) != (word &^ f.Mask()) {
					t.Errorf("%s.%s: bits outside field mutated", r.Name, f.Name)
				}
			}
		}
	}
}

func TestUnknownFieldNameFails(t *testing.T) {
	if _, err := FieldInfo(DCTRL, "does-not-exist"); err == nil {
		t.Fatal("expected error for unknown field name")
	}
}

func TestByNameReverseLookup(t *testing.T) {
	reg, err := ByName("dctrl")
	if err != nil || reg != DCTRL {
		t.Fatalf("ByName(dctrl) = %v, %v", reg, err)
	}
	if _, err := ByName("nope"); err == nil {
		t.Fatal("expected error for unknown register name")
	}
}

func TestHacauseToString(t *testing.T) {
	cases := map[uint32]string{
		0: "None", 1: "Ebreak", 2: "Halt Requested",
		3: "Step Requested", 4: "Reset Halt Requested", 99: "Unknown",
	}
	for v, want := range cases {
		if got := HacauseToString(v); got != want {
			t.Errorf("HacauseToString(%d) = %q want %q", v, got, want)
		}
	}
}
