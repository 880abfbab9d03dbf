package backend

import (
	"fmt"

	"github.com/saursin/vxdebug/dmreg"
	"github.com/saursin/vxdebug/rcode"
)

// WarpStatus is one warp's activity/halt snapshot, with PC and halt cause
// only meaningful when the warp is both active and halted.
type WarpStatus struct {
	Wid     int
	Active  bool
	Halted  bool
	PC      uint32
	Hacause dmreg.HaltCause
}

// SelectWarps selects exactly the warps named in wids across however many
// windows the platform spans. Out-of-range ids are skipped with a warning.
func (b *Backend) SelectWarps(wids []int) error {
	numWin := b.numWindows()
	masks := make([]uint32, numWin)

	for _, wid := range wids {
		if wid < 0 || wid >= int(b.st.platInfo.NumTotalWarps) {
			b.log.Warnf("ignoring invalid warp id %d", wid)
			continue
		}
		masks[wid/32] |= 1 << uint(wid%32)
	}

	for i := 0; i < numWin; i++ {
		if err := b.dmWriteField(dmreg.DSELECT, "winsel", uint32(i)); err != nil {
			return fmt.Errorf("failed to write DSELECT.winsel: %w", err)
		}
		if err := b.dmWriteField(dmreg.WMASK, "mask", masks[i]); err != nil {
			return fmt.Errorf("failed to write WMASK.mask: %w", err)
		}
	}
	b.log.Infof("selected %d warps", len(wids))
	return nil
}

// SelectWarpsAll selects every warp if all is true, or none if false, in
// every window.
func (b *Backend) SelectWarpsAll(all bool) error {
	numWin := b.numWindows()
	mask := uint32(0)
	if all {
		mask = 0xFFFFFFFF
	}
	for i := 0; i < numWin; i++ {
		if err := b.dmWriteField(dmreg.DSELECT, "winsel", uint32(i)); err != nil {
			return fmt.Errorf("failed to write DSELECT.winsel: %w", err)
		}
		if err := b.dmWriteField(dmreg.WMASK, "mask", mask); err != nil {
			return fmt.Errorf("failed to write WMASK.mask: %w", err)
		}
	}
	return nil
}

// SelectWarpThread selects the debug target (wid, tid), validating both
// against the current platform topology, and refreshes the selected PC.
func (b *Backend) SelectWarpThread(wid, tid int) error {
	if wid < 0 || wid >= int(b.st.platInfo.NumTotalWarps) {
		return fmt.Errorf("%w: invalid global warp id %d", rcode.InvalidArg, wid)
	}
	if tid < 0 || tid >= int(b.st.platInfo.NumThreads) {
		return fmt.Errorf("%w: invalid thread id %d", rcode.InvalidArg, tid)
	}
	if err := b.dmWriteField(dmreg.DSELECT, "warpsel", uint32(wid)); err != nil {
		return fmt.Errorf("failed to write DSELECT.warpsel: %w", err)
	}
	if err := b.dmWriteField(dmreg.DSELECT, "threadsel", uint32(tid)); err != nil {
		return fmt.Errorf("failed to write DSELECT.threadsel: %w", err)
	}
	b.st.selectedWid = wid
	b.st.selectedTid = tid

	pc, err := b.dmRead(dmreg.DPC)
	if err != nil {
		return fmt.Errorf("failed to read DPC after selection: %w", err)
	}
	b.st.selectedPC = pc

	b.log.Infof("selected warp %d, thread %d for debugging", wid, tid)
	return nil
}

// GetSelectedWarpThread returns the cached selection, optionally refreshing
// it from DSELECT first.
func (b *Backend) GetSelectedWarpThread(forceFetch bool) (wid, tid int, err error) {
	if forceFetch {
		w, err := b.dmReadField(dmreg.DSELECT, "warpsel")
		if err != nil {
			return 0, 0, err
		}
		t, err := b.dmReadField(dmreg.DSELECT, "threadsel")
		if err != nil {
			return 0, 0, err
		}
		b.st.selectedWid = int(w)
		b.st.selectedTid = int(t)
	}
	return b.st.selectedWid, b.st.selectedTid, nil
}

// GetSelectedWarpPC returns the cached PC, optionally refreshing from DPC.
func (b *Backend) GetSelectedWarpPC(forceFetch bool) (uint32, error) {
	if forceFetch {
		pc, err := b.dmRead(dmreg.DPC)
		if err != nil {
			return 0, err
		}
		b.st.selectedPC = pc
	}
	return b.st.selectedPC, nil
}

// ensureSelected fails with NoneSelectedErr if no warp/thread is selected.
func (b *Backend) ensureSelected() error {
	if b.st.selectedWid < 0 || b.st.selectedTid < 0 {
		return rcode.NoneSelectedErr
	}
	return nil
}

// GetWarpState reports whether wid is currently halted, reading only the
// one window that contains it.
func (b *Backend) GetWarpState(wid int) (halted bool, err error) {
	if wid < 0 || wid >= int(b.st.platInfo.NumTotalWarps) {
		return false, fmt.Errorf("%w: invalid warp id %d", rcode.InvalidArg, wid)
	}
	win := wid / 32
	bitPos := uint(wid % 32)

	if err := b.dmWriteField(dmreg.DSELECT, "winsel", uint32(win)); err != nil {
		return false, err
	}
	status, err := b.dmRead(dmreg.WSTATUS)
	if err != nil {
		return false, err
	}
	return (status>>bitPos)&1 != 0, nil
}

// GetWarpStatus enumerates every warp's active/halted state (and, for
// active+halted warps, PC/halt cause) by iterating every selection window.
// It saves and restores the prior selection, including on error paths.
func (b *Backend) GetWarpStatus(includePC, includeHacause bool) (map[int]WarpStatus, error) {
	prevWid, prevTid, _ := b.GetSelectedWarpThread(false)
	restore := func() {
		if prevWid >= 0 && prevTid >= 0 {
			if err := b.SelectWarpThread(prevWid, prevTid); err != nil {
				b.log.Warnf("failed to restore prior selection (%d,%d): %v", prevWid, prevTid, err)
			}
		}
	}
	defer restore()

	result := make(map[int]WarpStatus)
	numWin := b.numWindows()
	total := int(b.st.platInfo.NumTotalWarps)

	for win := 0; win < numWin; win++ {
		if err := b.dmWriteField(dmreg.DSELECT, "winsel", uint32(win)); err != nil {
			return nil, err
		}
		active, err := b.dmRead(dmreg.WACTIVE)
		if err != nil {
			return nil, err
		}
		halted, err := b.dmRead(dmreg.WSTATUS)
		if err != nil {
			return nil, err
		}

		for bit := 0; bit < 32; bit++ {
			wid := win*32 + bit
			if wid >= total {
				break
			}
			st := WarpStatus{
				Wid:    wid,
				Active: (active>>uint(bit))&1 != 0,
				Halted: (halted>>uint(bit))&1 != 0,
			}
			if st.Active && st.Halted && (includePC || includeHacause) {
				if err := b.SelectWarpThread(wid, 0); err != nil {
					return nil, err
				}
				if includePC {
					pc, err := b.dmRead(dmreg.DPC)
					if err != nil {
						return nil, err
					}
					st.PC = pc
				}
				if includeHacause {
					hc, err := b.dmReadField(dmreg.DCTRL, "hacause")
					if err != nil {
						return nil, err
					}
					st.Hacause = dmreg.HaltCause(hc)
				}
			}
			result[wid] = st
		}
	}
	return result, nil
}

// WarpSummary is a decode of DCTRL's six aggregate activity bits.
type WarpSummary struct {
	AllHalted  bool
	AnyHalted  bool
	AllRunning bool
	AnyRunning bool
	AllUnavail bool
	AnyUnavail bool
}

// GetWarpSummary reads DCTRL once and decodes it into six booleans.
func (b *Backend) GetWarpSummary() (WarpSummary, error) {
	dctrl, err := b.dmRead(dmreg.DCTRL)
	if err != nil {
		return WarpSummary{}, err
	}
	field := func(name string) bool {
		v, _ := dmreg.Extract(dmreg.DCTRL, name, dctrl)
		return v != 0
	}
	return WarpSummary{
		AllHalted:  field("allhalted"),
		AnyHalted:  field("anyhalted"),
		AllRunning: field("allrunning"),
		AnyRunning: field("anyrunning"),
		AllUnavail: field("allunavail"),
		AnyUnavail: field("anyunavail"),
	}, nil
}
