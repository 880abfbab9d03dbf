// Package breakpoint implements software breakpoints on top of a backend:
// a breakpoint is a patched `ebreak` word at some address, with the original
// word kept around to restore on removal.
package breakpoint

import (
	"fmt"
	"sort"
	"time"

	"github.com/saursin/vxdebug/backend"
	"github.com/saursin/vxdebug/dmreg"
	"github.com/saursin/vxdebug/rcode"
)

// EbreakInstr is the fixed RV32 encoding of the `ebreak` instruction.
const EbreakInstr uint32 = 0x00100073

// Breakpoint is one entry in a Table.
type Breakpoint struct {
	Addr          uint32
	Enabled       bool
	ReplacedInstr uint32
	HitCount      int
}

// Table is an address-keyed set of software breakpoints, all installed
// against one backend.
type Table struct {
	b   *backend.Backend
	set map[uint32]*Breakpoint
}

// NewTable constructs an empty breakpoint table bound to b.
func NewTable(b *backend.Backend) *Table {
	return &Table{b: b, set: make(map[uint32]*Breakpoint)}
}

// SetBreakpoint installs an ebreak at addr, recording the word it replaces.
// No-op if an enabled breakpoint is already there.
func (t *Table) SetBreakpoint(addr uint32) error {
	if bp, ok := t.set[addr]; ok && bp.Enabled {
		return nil
	}

	orig, err := t.b.MemRead(addr, 4)
	if err != nil {
		return fmt.Errorf("failed to read original instruction at 0x%08x: %w", addr, err)
	}
	replaced := decodeWordLE(orig)

	if err := t.b.MemWrite(addr, encodeWordLE(EbreakInstr)); err != nil {
		return fmt.Errorf("failed to patch ebreak at 0x%08x: %w", addr, err)
	}

	t.set[addr] = &Breakpoint{Addr: addr, Enabled: true, ReplacedInstr: replaced}
	return nil
}

// RemoveBreakpoint restores the original instruction at addr and erases the
// table entry.
func (t *Table) RemoveBreakpoint(addr uint32) error {
	bp, ok := t.set[addr]
	if !ok {
		return fmt.Errorf("%w: no breakpoint at 0x%08x", rcode.InvalidArg, addr)
	}
	if err := t.b.MemWrite(addr, encodeWordLE(bp.ReplacedInstr)); err != nil {
		return fmt.Errorf("failed to restore instruction at 0x%08x: %w", addr, err)
	}
	delete(t.set, addr)
	return nil
}

// GetBreakpoints returns a snapshot of every breakpoint, ordered by address.
func (t *Table) GetBreakpoints() []Breakpoint {
	out := make([]Breakpoint, 0, len(t.set))
	for _, bp := range t.set {
		out = append(out, *bp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Addr < out[j].Addr })
	return out
}

// AnyBreakpoints reports whether the table is non-empty.
func (t *Table) AnyBreakpoints() bool {
	return len(t.set) > 0
}

// UntilBreakpoint resumes every warp and waits for one to halt with an
// ebreak cause, polling DCTRL.anyhalted and then scanning warp status for
// the hit. If autoSelect is true, the hitting warp/thread is selected
// before returning. Returns the status of the warp that hit.
func (t *Table) UntilBreakpoint(autoSelect bool) (backend.WarpStatus, error) {
	if err := t.b.ResumeWarpsAll(); err != nil {
		return backend.WarpStatus{}, fmt.Errorf("failed to resume warps: %w", err)
	}

	retries := t.b.PollRetries
	delay := time.Duration(t.b.PollDelayMS) * time.Millisecond

	var anyHalted bool
	for attempt := 0; ; attempt++ {
		summary, err := t.b.GetWarpSummary()
		if err != nil {
			return backend.WarpStatus{}, err
		}
		if summary.AnyHalted {
			anyHalted = true
			break
		}
		if attempt >= retries {
			break
		}
		time.Sleep(delay)
	}
	if !anyHalted {
		return backend.WarpStatus{}, fmt.Errorf("%w: no warp halted", rcode.Timeout)
	}

	status, err := t.b.GetWarpStatus(true, true)
	if err != nil {
		return backend.WarpStatus{}, err
	}

	wids := make([]int, 0, len(status))
	for wid := range status {
		wids = append(wids, wid)
	}
	sort.Ints(wids)

	for _, wid := range wids {
		st := status[wid]
		if !(st.Active && st.Halted && st.Hacause == dmreg.HaltCauseEbreak) {
			continue
		}
		if bp, ok := t.set[st.PC]; ok {
			bp.HitCount++
		}
		if autoSelect {
			if err := t.b.SelectWarpThread(wid, 0); err != nil {
				return backend.WarpStatus{}, fmt.Errorf("failed to select halted warp %d: %w", wid, err)
			}
		}
		return st, nil
	}
	return backend.WarpStatus{}, fmt.Errorf("%w: every halted warp's cause was not ebreak", rcode.Error)
}

func decodeWordLE(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

func encodeWordLE(w uint32) []byte {
	return []byte{byte(w), byte(w >> 8), byte(w >> 16), byte(w >> 24)}
}
