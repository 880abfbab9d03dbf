package backend

import (
	"fmt"

	"github.com/saursin/vxdebug/dmreg"
	"github.com/saursin/vxdebug/rcode"
)

// InjectInstruction executes instr on the currently selected warp/thread:
// write DINJECT, request injection, then poll until the DM reports idle.
func (b *Backend) InjectInstruction(instr uint32) error {
	if err := b.ensureSelected(); err != nil {
		return err
	}
	if err := b.dmWrite(dmreg.DINJECT, instr); err != nil {
		return fmt.Errorf("failed to write DINJECT: %w", err)
	}
	if err := b.dmWriteField(dmreg.DCTRL, "injectreq", 1); err != nil {
		return fmt.Errorf("failed to set DCTRL.injectreq: %w", err)
	}
	final, err := b.dmPollField(dmreg.DCTRL, "injectstate", 0, b.PollRetries, b.PollDelayMS)
	if err != nil {
		return fmt.Errorf("injection did not complete: %w", err)
	}
	if final != 0 {
		b.log.Errorf("injection fault: DCTRL.injectstate=0x%x", final)
		return rcode.Error
	}
	return nil
}

// InjectAsm encodes a single assembly line via the external toolchain
// (consulting the process-wide cache first) and injects it.
func (b *Backend) InjectAsm(line string) error {
	word, err := b.asmEncode(line, b.AsmPrefix)
	if err != nil {
		return fmt.Errorf("failed to assemble %q: %w", line, err)
	}
	return b.InjectInstruction(word)
}
