package backend

import (
	"fmt"

	"github.com/saursin/vxdebug/dmreg"
	"github.com/saursin/vxdebug/rcode"
)

// wakeOuterAttempts bounds how many times WakeDM will retry writing
// DCTRL.dmactive before giving up.
const wakeOuterAttempts = 3

// WakeDM brings the Debug Module out of reset and ensures it is active:
// first let a pending ndmreset clear, then force dmactive high if it isn't
// already.
func (b *Backend) WakeDM() error {
	ndmreset, err := b.dmReadField(dmreg.DCTRL, "ndmreset")
	if err != nil {
		return fmt.Errorf("failed to read DCTRL.ndmreset: %w", err)
	}
	if ndmreset != 0 {
		b.log.Debug("waiting for DCTRL.ndmreset to clear...")
		if _, err := b.dmPollField(dmreg.DCTRL, "ndmreset", 0, b.PollRetries, b.PollDelayMS); err != nil {
			return fmt.Errorf("failed to poll DCTRL.ndmreset: %w", err)
		}
	}

	dmactive, err := b.dmReadField(dmreg.DCTRL, "dmactive")
	if err != nil {
		return fmt.Errorf("failed to read DCTRL.dmactive: %w", err)
	}
	if dmactive == 0 {
		b.log.Debug("DM not active, waking up DM by setting DCTRL.dmactive...")
		for attempt := 0; attempt < wakeOuterAttempts && dmactive == 0; attempt++ {
			if err := b.dmWriteField(dmreg.DCTRL, "dmactive", 1); err != nil {
				return fmt.Errorf("failed to write DCTRL.dmactive: %w", err)
			}
			v, err := b.dmPollField(dmreg.DCTRL, "dmactive", 1, b.PollRetries, b.PollDelayMS)
			if err != nil {
				b.log.Warnf("failed to poll DCTRL.dmactive (attempt %d/%d), retrying: %v", attempt+1, wakeOuterAttempts, err)
				continue
			}
			dmactive = v
		}
		if dmactive == 0 {
			return fmt.Errorf("%w: DM did not wake after %d attempts", rcode.Error, wakeOuterAttempts)
		}
	}
	b.log.Debug("DM is awake")
	return nil
}

// ResetPlatform issues a system reset via DCTRL.ndmreset, optionally
// requesting that every warp come up halted, then re-initializes the
// backend.
func (b *Backend) ResetPlatform(halt bool) error {
	b.log.Info("issuing system reset...")

	if halt {
		b.log.Debug("selecting all warps to halt after reset")
		if err := b.SelectWarpsAll(true); err != nil {
			return err
		}
		if err := b.dmWriteField(dmreg.DCTRL, "resethaltreq", 1); err != nil {
			return fmt.Errorf("failed to set DCTRL.resethaltreq: %w", err)
		}
	}

	if err := b.dmWriteField(dmreg.DCTRL, "ndmreset", 1); err != nil {
		return fmt.Errorf("failed to set DCTRL.ndmreset: %w", err)
	}

	b.log.Debug("waiting for reset to complete (DCTRL.ndmreset to clear)")
	if _, err := b.dmPollField(dmreg.DCTRL, "ndmreset", 0, b.PollRetries, b.PollDelayMS); err != nil {
		return fmt.Errorf("failed to poll DCTRL.ndmreset after reset: %w", err)
	}

	if halt {
		summary, err := b.GetWarpSummary()
		if err != nil {
			return err
		}
		switch {
		case summary.AllHalted:
			b.log.Info("all warps halted after reset")
		case summary.AnyHalted:
			b.log.Warn("some warps halted after reset, but not all")
		default:
			b.log.Error("no warps halted after reset")
		}
	}

	b.log.Info("system reset complete")
	return b.Initialize()
}

// HaltWarps selects wids and requests a halt, then verifies each one
// actually halted.
func (b *Backend) HaltWarps(wids []int) error {
	if err := b.SelectWarps(wids); err != nil {
		return err
	}
	if err := b.dmWriteField(dmreg.DCTRL, "haltreq", 1); err != nil {
		return fmt.Errorf("failed to set DCTRL.haltreq: %w", err)
	}

	var failed []int
	for _, wid := range wids {
		halted, err := b.GetWarpState(wid)
		if err != nil {
			return err
		}
		if !halted {
			failed = append(failed, wid)
		}
	}
	if len(failed) > 0 {
		b.log.Errorf("warps failed to halt: %v", failed)
		return rcode.Error
	}
	return nil
}

// HaltWarpsAll selects every warp and requests a halt, then polls until
// all are halted.
func (b *Backend) HaltWarpsAll() error {
	if err := b.SelectWarpsAll(true); err != nil {
		return err
	}
	if err := b.dmWriteField(dmreg.DCTRL, "haltreq", 1); err != nil {
		return fmt.Errorf("failed to set DCTRL.haltreq: %w", err)
	}
	if _, err := b.dmPollField(dmreg.DCTRL, "allhalted", 1, b.PollRetries, b.PollDelayMS); err != nil {
		return fmt.Errorf("failed waiting for all warps to halt: %w", err)
	}
	return nil
}

// ResumeWarps selects wids and requests a resume.
func (b *Backend) ResumeWarps(wids []int) error {
	if err := b.SelectWarps(wids); err != nil {
		return err
	}
	if err := b.dmWriteField(dmreg.DCTRL, "resumereq", 1); err != nil {
		return fmt.Errorf("failed to set DCTRL.resumereq: %w", err)
	}
	return nil
}

// ResumeWarpsAll selects every warp, requests a resume, then polls until
// all are running.
func (b *Backend) ResumeWarpsAll() error {
	if err := b.SelectWarpsAll(true); err != nil {
		return err
	}
	if err := b.dmWriteField(dmreg.DCTRL, "resumereq", 1); err != nil {
		return fmt.Errorf("failed to set DCTRL.resumereq: %w", err)
	}
	if _, err := b.dmPollField(dmreg.DCTRL, "allrunning", 1, b.PollRetries, b.PollDelayMS); err != nil {
		return fmt.Errorf("failed waiting for all warps to resume: %w", err)
	}
	return nil
}

// StepWarp single-steps the currently selected warp/thread.
func (b *Backend) StepWarp() error {
	if err := b.ensureSelected(); err != nil {
		return err
	}

	summary, err := b.GetWarpSummary()
	if err != nil {
		return err
	}
	if summary.AllHalted {
		b.log.Warn("stepping a single warp while all warps are halted may deadlock on a barrier")
	}

	if err := b.dmWriteField(dmreg.DCTRL, "stepreq", 1); err != nil {
		return fmt.Errorf("failed to set DCTRL.stepreq: %w", err)
	}
	if _, err := b.dmPollField(dmreg.DCTRL, "stepstate", 0, b.PollRetries, b.PollDelayMS); err != nil {
		return fmt.Errorf("failed waiting for step to complete: %w", err)
	}

	pc, err := b.dmRead(dmreg.DPC)
	if err != nil {
		return fmt.Errorf("failed to read DPC after step: %w", err)
	}
	b.st.selectedPC = pc
	return nil
}
