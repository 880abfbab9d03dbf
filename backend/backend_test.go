package backend

import (
	"testing"

	"go.uber.org/mock/gomock"

	"github.com/saursin/vxdebug/transport"
)

func newTestBackend(t *testing.T) (*Backend, *transport.MockTransport) {
	ctrl := gomock.NewController(t)
	mock := transport.NewMockTransport(ctrl)
	mock.EXPECT().Connected().Return(true).AnyTimes()

	b := NewBackend()
	b.SetTransport(mock, "mock")
	return b, mock
}

// TestWakeAndQueryPlatform checks that a mock transport reporting
// ndmreset=0, dmactive=1 on DCTRL and a specific PLATFORM encoding lets
// Initialize succeed and decode platform info correctly.
func TestWakeAndQueryPlatform(t *testing.T) {
	b, mock := newTestBackend(t)

	const dctrlAwake = uint32(0x80000000) // dmactive=1, ndmreset=0
	// platformid=1, numclusters=13, numcores=0xBC, numwarps=9, numthreads_raw=0
	const platformWord = uint32(0x11ABC048)

	mock.EXPECT().ReadReg(uint32(0x06)).Return(dctrlAwake, nil).AnyTimes()
	mock.EXPECT().ReadReg(uint32(0x00)).Return(platformWord, nil).AnyTimes()

	if err := b.Initialize(); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	pi := b.PlatformInfo()
	if pi.PlatformName != "Vortex" {
		t.Errorf("PlatformName = %q want Vortex", pi.PlatformName)
	}
	if pi.NumClusters != 0xD {
		t.Errorf("NumClusters = %d want 13", pi.NumClusters)
	}
	if pi.NumThreads != 1 {
		t.Errorf("NumThreads = %d want 1 (2^0)", pi.NumThreads)
	}
}
