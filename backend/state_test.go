package backend

import (
	"testing"

	"go.uber.org/mock/gomock"
)

// fakeAssemble stands in for the external RISC-V assembler in tests:
// InjectInstruction only needs a stable word per line, not a real
// RISC-V encoding.
func fakeAssemble(line, prefix string) (uint32, error) {
	var h uint32 = 2166136261
	for i := 0; i < len(line); i++ {
		h ^= uint32(line[i])
		h *= 16777619
	}
	return h, nil
}

func TestRegArchReadWriteRoundTrip(t *testing.T) {
	b, mock := newTestBackend(t)
	b.asmEncode = fakeAssemble
	b.st.platInfo.NumTotalWarps = 1
	b.st.platInfo.NumThreads = 1
	b.st.selectedWid, b.st.selectedTid = 0, 0

	mock.EXPECT().WriteReg(uint32(0x08), gomock.Any()).Return(nil).AnyTimes() // DINJECT
	mock.EXPECT().ReadReg(uint32(0x06)).Return(uint32(0), nil).AnyTimes()     // DCTRL injectstate idle
	mock.EXPECT().WriteReg(uint32(0x06), gomock.Any()).Return(nil).AnyTimes()

	const want = uint32(0xCAFEF00D)
	mock.EXPECT().WriteReg(uint32(0x09), want).Return(nil) // host stages x5's value into DSCRATCH
	mock.EXPECT().ReadReg(uint32(0x09)).Return(want, nil)  // host reads it back for RegArchRead

	if err := b.RegArchWrite(5, want); err != nil {
		t.Fatalf("RegArchWrite: %v", err)
	}
	got, err := b.RegArchRead(5)
	if err != nil {
		t.Fatalf("RegArchRead: %v", err)
	}
	if got != want {
		t.Fatalf("RegArchRead = 0x%x want 0x%x", got, want)
	}
}

func TestReadRegisterResolvesPCAndRejectsUnknown(t *testing.T) {
	b, mock := newTestBackend(t)
	b.asmEncode = fakeAssemble
	b.st.selectedWid, b.st.selectedTid = 0, 0

	mock.EXPECT().ReadReg(uint32(0x07)).Return(uint32(0x8000), nil) // DPC
	pc, err := b.ReadRegister("pc")
	if err != nil || pc != 0x8000 {
		t.Fatalf("ReadRegister(pc) = 0x%x, %v", pc, err)
	}

	if _, err := b.ReadRegister("not-a-register"); err == nil {
		t.Fatal("expected error for unknown register name")
	}
}

func TestWriteRegsLengthMismatch(t *testing.T) {
	b, _ := newTestBackend(t)
	if err := b.WriteRegs([]string{"x1", "x2"}, []uint32{1}); err == nil {
		t.Fatal("expected error for mismatched names/values")
	}
}
