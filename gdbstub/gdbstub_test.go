package gdbstub

import (
	"bufio"
	"strings"
	"testing"

	"go.uber.org/mock/gomock"

	"github.com/saursin/vxdebug/backend"
	"github.com/saursin/vxdebug/breakpoint"
	"github.com/saursin/vxdebug/transport"
)

func fakeAssemble(line, prefix string) (uint32, error) { return 0xDEADBEEF, nil }

const dctrlAllGood = uint32(0x80000000 | 1<<29 | 1<<28 | 1<<27 | 1<<26 | 1<<9)

// newTestStub builds a Stub over a single-warp, single-thread mock backend,
// already initialized and with warp 0/thread 0 selected.
func newTestStub(t *testing.T) (*Stub, *transport.MockTransport) {
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
	mock.EXPECT().ReadReg(uint32(0x03)).Return(uint32(0), nil).AnyTimes()
	mock.EXPECT().WriteReg(uint32(0x03), gomock.Any()).Return(nil).AnyTimes()
	mock.EXPECT().ReadReg(uint32(0x04)).Return(uint32(1), nil).AnyTimes()
	mock.EXPECT().ReadReg(uint32(0x05)).Return(uint32(1), nil).AnyTimes()
	mock.EXPECT().ReadReg(uint32(0x07)).Return(uint32(0x1000), nil).AnyTimes()
	mock.EXPECT().WriteReg(uint32(0x07), gomock.Any()).Return(nil).AnyTimes()
	mock.EXPECT().WriteReg(uint32(0x08), gomock.Any()).Return(nil).AnyTimes()
	mock.EXPECT().ReadReg(uint32(0x09)).Return(uint32(0xCAFEF00D), nil).AnyTimes()
	mock.EXPECT().WriteReg(uint32(0x09), gomock.Any()).Return(nil).AnyTimes()

	if err := b.Initialize(); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if err := b.SelectWarpThread(0, 0); err != nil {
		t.Fatalf("SelectWarpThread: %v", err)
	}

	bp := breakpoint.NewTable(b)
	return NewStub(b, bp), mock
}

// TestRegNameAtLayout is the RSP register index mapping invariant: 0-31 are
// GPRs, 32 is pc, and the exposed CSR tail follows in the documented order.
func TestRegNameAtLayout(t *testing.T) {
	if name, ok := regNameAt(0); !ok || name != "x0" {
		t.Errorf("regNameAt(0) = %q, %v want x0,true", name, ok)
	}
	if name, ok := regNameAt(31); !ok || name != "x31" {
		t.Errorf("regNameAt(31) = %q, %v want x31,true", name, ok)
	}
	if name, ok := regNameAt(32); !ok || name != "pc" {
		t.Errorf("regNameAt(32) = %q, %v want pc,true", name, ok)
	}
	if name, ok := regNameAt(33); !ok || name != "vx_num_cores" {
		t.Errorf("regNameAt(33) = %q, %v want vx_num_cores,true", name, ok)
	}
	if !isCSRIndex(33) || isCSRIndex(32) || isCSRIndex(0) {
		t.Error("isCSRIndex boundary wrong")
	}
	if _, ok := regNameAt(numRegs); ok {
		t.Error("regNameAt(numRegs) should be out of range")
	}
}

// TestThreadIDBijection checks gtid = 1 + wid*threadsPerWarp + tid round-trips
// back to the same (wid, tid) pair.
func TestThreadIDBijection(t *testing.T) {
	const threadsPerWarp = 4
	for wid := 0; wid < 8; wid++ {
		for tid := 0; tid < threadsPerWarp; tid++ {
			gt := gtid(wid, tid, threadsPerWarp)
			gotWid, gotTid, err := widTidFromGtid(gt, threadsPerWarp)
			if err != nil || gotWid != wid || gotTid != tid {
				t.Fatalf("round trip (%d,%d) -> %d -> (%d,%d), %v", wid, tid, gt, gotWid, gotTid, err)
			}
		}
	}
	if _, _, err := widTidFromGtid(0, threadsPerWarp); err == nil {
		t.Error("gtid 0 is reserved for \"any thread\" and should be rejected")
	}
}

// TestRecvPacketChecksumRoundTrip exercises the packet framer/parser
// against each other: a packet built by sendPacket must be accepted by
// recvPacket with its payload intact.
func TestRecvPacketChecksumRoundTrip(t *testing.T) {
	s, _ := newTestStub(t)
	const payload = "qSupported:multiprocess+"

	var sum byte
	for i := 0; i < len(payload); i++ {
		sum += payload[i]
	}
	raw := "$" + payload + "#" + hexByte(sum)

	r := bufio.NewReader(strings.NewReader(raw))
	cmdstr, dispatch, err := s.recvPacket(r)
	if err != nil {
		t.Fatalf("recvPacket: %v", err)
	}
	if !dispatch {
		t.Fatal("expected a dispatchable packet")
	}
	if cmdstr != payload {
		t.Errorf("cmdstr = %q want %q", cmdstr, payload)
	}
}

// TestRecvPacketBadChecksumIsDropped checks that a mismatched checksum must
// not be dispatched.
func TestRecvPacketBadChecksumIsDropped(t *testing.T) {
	s, _ := newTestStub(t)
	r := bufio.NewReader(strings.NewReader("$g#00")) // "g" checksums to 0x67, not 0x00

	_, dispatch, err := s.recvPacket(r)
	if err != nil {
		t.Fatalf("recvPacket: %v", err)
	}
	if dispatch {
		t.Error("a bad checksum should not be dispatched")
	}
}

// TestDispatchPrefersLongerPrefix checks that "qXfer:features:read:..." and
// "qfThreadInfo" each reach their own handler rather than some other
// "q..." registration.
func TestDispatchPrefersLongerPrefix(t *testing.T) {
	s, _ := newTestStub(t)
	if reply := s.dispatch("qXfer:features:read:target.xml:0,10"); !strings.HasPrefix(reply, "m<?xml") {
		t.Errorf("qXfer:features:read reply = %q, want m<?xml...", reply)
	}
	reply := s.dispatch("qfThreadInfo")
	if !strings.HasPrefix(reply, "m") && reply != "l" {
		t.Errorf("qfThreadInfo reply = %q, want m<ids> or l", reply)
	}
}

// TestWriteSingleRegister checks that a P write is accepted and
// acknowledged.
func TestWriteSingleRegister(t *testing.T) {
	s, _ := newTestStub(t)

	writeReply := s.dispatch("P0=0df0eaca")
	if writeReply != "OK" {
		t.Fatalf("P0=... = %q want OK", writeReply)
	}
}

// TestInsertAndRemoveBreakpointViaStub checks the wire protocol surface:
// Z0 then z0 on the same address must both report OK.
func TestInsertAndRemoveBreakpointViaStub(t *testing.T) {
	s, _ := newTestStub(t)
	if reply := s.dispatch("Z0,1000,4"); reply != "OK" {
		t.Fatalf("Z0 = %q want OK", reply)
	}
	if reply := s.dispatch("z0,1000,4"); reply != "OK" {
		t.Fatalf("z0 = %q want OK", reply)
	}
}

func hexByte(b byte) string {
	const digits = "0123456789abcdef"
	return string([]byte{digits[b>>4], digits[b&0xF]})
}
