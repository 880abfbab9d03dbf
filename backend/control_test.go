package backend

import (
	"errors"
	"testing"

	"go.uber.org/mock/gomock"

	"github.com/saursin/vxdebug/rcode"
)

// TestWakeDMPollExhaustion checks that when DCTRL.ndmreset never clears,
// WakeDM fails with Timeout after exactly PollRetries poll reads.
func TestWakeDMPollExhaustion(t *testing.T) {
	b, mock := newTestBackend(t)
	b.PollDelayMS = 1

	const dctrlStuck = uint32(1 << 30) // ndmreset=1, dmactive irrelevant

	// One extra read checks ndmreset before the poll loop begins.
	mock.EXPECT().ReadReg(uint32(0x06)).Return(dctrlStuck, nil).Times(b.PollRetries + 1)

	err := b.WakeDM()
	if !errors.Is(err, rcode.Timeout) {
		t.Fatalf("WakeDM error = %v, want Timeout", err)
	}
}

// TestHaltAllThenStep checks that halting all warps, selecting warp 0 /
// thread 0 and stepping it all succeed against a mock DM that serves only
// DSELECT, WMASK, DCTRL and DPC. The mock does not check the order of the
// accesses.
func TestHaltAllThenStep(t *testing.T) {
	b, mock := newTestBackend(t)
	b.st.platInfo.NumTotalWarps = 8
	b.st.platInfo.NumThreads = 4

	// DCTRL always reports allhalted=1, stepstate=0 — enough for both
	// HaltWarpsAll's poll and StepWarp's summary/poll to succeed on the
	// first read.
	mock.EXPECT().ReadReg(uint32(0x06)).Return(uint32(1<<29), nil).AnyTimes()
	mock.EXPECT().WriteReg(uint32(0x06), gomock.Any()).Return(nil).AnyTimes()
	mock.EXPECT().WriteReg(uint32(0x02), gomock.Any()).Return(nil).AnyTimes() // DSELECT
	mock.EXPECT().ReadReg(uint32(0x02)).Return(uint32(0), nil).AnyTimes()
	mock.EXPECT().ReadReg(uint32(0x03)).Return(uint32(0), nil).AnyTimes()
	mock.EXPECT().WriteReg(uint32(0x03), gomock.Any()).Return(nil).AnyTimes() // WMASK
	mock.EXPECT().ReadReg(uint32(0x07)).Return(uint32(0x1000), nil).AnyTimes() // DPC

	if err := b.HaltWarpsAll(); err != nil {
		t.Fatalf("HaltWarpsAll: %v", err)
	}
	if err := b.SelectWarpThread(0, 0); err != nil {
		t.Fatalf("SelectWarpThread: %v", err)
	}
	if err := b.StepWarp(); err != nil {
		t.Fatalf("StepWarp: %v", err)
	}
}
