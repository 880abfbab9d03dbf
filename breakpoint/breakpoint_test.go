package breakpoint

import (
	"testing"

	"go.uber.org/mock/gomock"

	"github.com/saursin/vxdebug/backend"
	"github.com/saursin/vxdebug/dmreg"
	"github.com/saursin/vxdebug/transport"
)

// fakeAssemble stands in for the external RISC-V assembler: every call
// returns a fixed word since InjectAsm's callers here only care that
// injection happens, not what gets injected.
func fakeAssemble(line, prefix string) (uint32, error) {
	return 0xDEADBEEF, nil
}

// origInstr is the word SetBreakpoint finds in place before patching, the
// RV32 encoding of "addi x1, x0, 0".
const origInstr = uint32(0x00000093)

// dctrlAllGood is a single canned DCTRL snapshot with every bit this test
// touches already set the way the happy path needs it: awake, idle
// injection/step state, and (for the UntilBreakpoint path) every warp
// halted on an ebreak.
const dctrlAllGood = uint32(0x80000000 | 1<<29 | 1<<28 | 1<<27 | 1<<26 | 1<<9)

func newSingleWarpBackend(t *testing.T) (*backend.Backend, *transport.MockTransport) {
	ctrl := gomock.NewController(t)
	mock := transport.NewMockTransport(ctrl)
	mock.EXPECT().Connected().Return(true).AnyTimes()

	b := backend.NewBackend()
	b.SetTransport(mock, "mock")
	b.SetAsmEncoder(fakeAssemble)

	const platformWord = uint32(0x10201008) // 1 cluster, 1 core, 1 warp, 1 thread

	mock.EXPECT().ReadReg(uint32(0x00)).Return(platformWord, nil).AnyTimes()
	mock.EXPECT().ReadReg(uint32(0x06)).Return(dctrlAllGood, nil).AnyTimes()
	mock.EXPECT().WriteReg(uint32(0x06), gomock.Any()).Return(nil).AnyTimes()
	mock.EXPECT().ReadReg(uint32(0x02)).Return(uint32(0), nil).AnyTimes()
	mock.EXPECT().WriteReg(uint32(0x02), gomock.Any()).Return(nil).AnyTimes()
	mock.EXPECT().ReadReg(uint32(0x03)).Return(uint32(0), nil).AnyTimes() // WMASK
	mock.EXPECT().WriteReg(uint32(0x03), gomock.Any()).Return(nil).AnyTimes()
	mock.EXPECT().ReadReg(uint32(0x04)).Return(uint32(1), nil).AnyTimes() // WACTIVE: warp 0 active
	mock.EXPECT().ReadReg(uint32(0x05)).Return(uint32(1), nil).AnyTimes() // WSTATUS: warp 0 halted
	mock.EXPECT().ReadReg(uint32(0x07)).Return(uint32(0x1000), nil).AnyTimes()
	mock.EXPECT().WriteReg(uint32(0x08), gomock.Any()).Return(nil).AnyTimes() // DINJECT
	mock.EXPECT().ReadReg(uint32(0x09)).Return(origInstr, nil).AnyTimes()     // DSCRATCH
	mock.EXPECT().WriteReg(uint32(0x09), gomock.Any()).Return(nil).AnyTimes()

	if err := b.Initialize(); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if err := b.SelectWarpThread(0, 0); err != nil {
		t.Fatalf("SelectWarpThread: %v", err)
	}
	return b, mock
}

// TestSetRemoveBreakpointRoundTrip checks that setting a breakpoint captures
// the pre-patch word and patches ebreak in, and that removing it restores
// that exact word and drops the table entry.
func TestSetRemoveBreakpointRoundTrip(t *testing.T) {
	b, _ := newSingleWarpBackend(t)
	tbl := NewTable(b)

	const addr = uint32(0x1000)
	if err := tbl.SetBreakpoint(addr); err != nil {
		t.Fatalf("SetBreakpoint: %v", err)
	}

	bps := tbl.GetBreakpoints()
	if len(bps) != 1 {
		t.Fatalf("len(GetBreakpoints()) = %d want 1", len(bps))
	}
	if bps[0].Addr != addr || !bps[0].Enabled {
		t.Fatalf("breakpoint = %+v want addr=0x%x enabled=true", bps[0], addr)
	}
	if bps[0].ReplacedInstr != origInstr {
		t.Errorf("ReplacedInstr = 0x%08x want 0x%08x", bps[0].ReplacedInstr, origInstr)
	}
	if !tbl.AnyBreakpoints() {
		t.Error("AnyBreakpoints() = false want true")
	}

	if err := tbl.RemoveBreakpoint(addr); err != nil {
		t.Fatalf("RemoveBreakpoint: %v", err)
	}
	if tbl.AnyBreakpoints() {
		t.Error("AnyBreakpoints() = true after remove, want false")
	}
	if err := tbl.RemoveBreakpoint(addr); err == nil {
		t.Error("RemoveBreakpoint on an already-removed address should fail")
	}
}

// TestSetBreakpointIsIdempotent checks that setting the same breakpoint
// twice leaves a single table entry.
func TestSetBreakpointIsIdempotent(t *testing.T) {
	b, _ := newSingleWarpBackend(t)
	tbl := NewTable(b)
	const addr = uint32(0x2000)

	if err := tbl.SetBreakpoint(addr); err != nil {
		t.Fatalf("SetBreakpoint #1: %v", err)
	}
	if err := tbl.SetBreakpoint(addr); err != nil {
		t.Fatalf("SetBreakpoint #2: %v", err)
	}
	bps := tbl.GetBreakpoints()
	if len(bps) != 1 {
		t.Fatalf("len(GetBreakpoints()) = %d want 1 (no duplicate entry)", len(bps))
	}
}

// TestUntilBreakpointResumesAndFindsHit exercises the resume-then-poll-then-
// scan control flow: the canned DCTRL/WACTIVE/WSTATUS values describe warp 0
// as halted on ebreak at the breakpoint's own address, and the breakpoint's
// hit count should increment.
func TestUntilBreakpointResumesAndFindsHit(t *testing.T) {
	b, _ := newSingleWarpBackend(t)
	tbl := NewTable(b)
	const addr = uint32(0x1000) // matches the DPC stub in newSingleWarpBackend

	if err := tbl.SetBreakpoint(addr); err != nil {
		t.Fatalf("SetBreakpoint: %v", err)
	}

	status, err := tbl.UntilBreakpoint(true)
	if err != nil {
		t.Fatalf("UntilBreakpoint: %v", err)
	}
	if status.Hacause != dmreg.HaltCauseEbreak {
		t.Errorf("Hacause = %v want Ebreak", status.Hacause)
	}

	bps := tbl.GetBreakpoints()
	if len(bps) != 1 || bps[0].HitCount != 1 {
		t.Errorf("breakpoints after hit = %+v want one entry with HitCount=1", bps)
	}
}
