package backend

import (
	"testing"

	"go.uber.org/mock/gomock"
)

// TestPatchWordUnalignedSpan checks that writing 3 bytes at an unaligned
// address produces the expected byte pattern across the two words it touches.
func TestPatchWordUnalignedSpan(t *testing.T) {
	data := []byte{0xEE, 0xFF, 0x00}
	const addr = uint32(0x1002)

	got0 := patchWord(0x1000, 0xAABBCCDD, addr, data)
	if want := uint32(0xFFEECCDD); got0 != want {
		t.Errorf("word at 0x1000 = 0x%08x want 0x%08x", got0, want)
	}

	got1 := patchWord(0x1004, 0x11223344, addr, data)
	if want := uint32(0x11223300); got1 != want {
		t.Errorf("word at 0x1004 = 0x%08x want 0x%08x", got1, want)
	}
}

func TestWordFullyCovered(t *testing.T) {
	if !wordFullyCovered(0x2000, 0x2000, 4) {
		t.Error("exact-width span should fully cover its single word")
	}
	if wordFullyCovered(0x2000, 0x2002, 4) {
		t.Error("word starting before the span should not be fully covered")
	}
	if wordFullyCovered(0x2000, 0x1000, 4) {
		t.Error("word entirely outside the span should not be fully covered")
	}
}

// TestMemWriteUnalignedSpan is a smoke test that MemWrite's injection
// sequence completes without error over an unaligned span, exercising the
// save/restore-scratch and read-modify-write control flow end to end.
func TestMemWriteUnalignedSpan(t *testing.T) {
	b, mock := newTestBackend(t)
	b.asmEncode = fakeAssemble
	b.st.selectedWid, b.st.selectedTid = 0, 0

	mock.EXPECT().WriteReg(uint32(0x08), gomock.Any()).Return(nil).AnyTimes() // DINJECT
	mock.EXPECT().ReadReg(uint32(0x06)).Return(uint32(0), nil).AnyTimes()     // DCTRL injectstate idle
	mock.EXPECT().WriteReg(uint32(0x06), gomock.Any()).Return(nil).AnyTimes()
	mock.EXPECT().WriteReg(uint32(0x09), gomock.Any()).Return(nil).AnyTimes() // DSCRATCH stage
	mock.EXPECT().ReadReg(uint32(0x09)).Return(uint32(0), nil).AnyTimes()     // DSCRATCH fetch

	if err := b.MemWrite(0x1002, []byte{0xEE, 0xFF, 0x00}); err != nil {
		t.Fatalf("MemWrite: %v", err)
	}
}
