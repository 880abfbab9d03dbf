package backend

import (
	"fmt"

	"github.com/saursin/vxdebug/dmreg"
	"github.com/saursin/vxdebug/rcode"
	"github.com/saursin/vxdebug/rv"
)

// RegArchRead reads GPR regnum (x0..x31) of the selected warp/thread via a
// single injected instruction round trip through DSCRATCH.
func (b *Backend) RegArchRead(regnum uint32) (uint32, error) {
	name, err := rv.GPRName(int(regnum))
	if err != nil {
		return 0, fmt.Errorf("%w: %v", rcode.InvalidArg, err)
	}
	if err := b.InjectAsm(fmt.Sprintf("csrw dscratch, %s", name)); err != nil {
		return 0, err
	}
	return b.dmRead(dmreg.DSCRATCH)
}

// RegArchWrite writes GPR regnum. Writes to x0 are a hardware no-op; the
// sequence is issued unconditionally and the target is expected to ignore it.
func (b *Backend) RegArchWrite(regnum, value uint32) error {
	name, err := rv.GPRName(int(regnum))
	if err != nil {
		return fmt.Errorf("%w: %v", rcode.InvalidArg, err)
	}
	if err := b.dmWrite(dmreg.DSCRATCH, value); err != nil {
		return err
	}
	return b.InjectAsm(fmt.Sprintf("csrr %s, dscratch", name))
}

// RegCSRRead reads CSR regaddr, using t0 as scratch with save/restore on
// every exit path.
func (b *Backend) RegCSRRead(regaddr uint32) (value uint32, err error) {
	if err := b.InjectAsm("csrw dscratch, t0"); err != nil {
		return 0, fmt.Errorf("failed to save t0: %w", err)
	}
	t0saved, err := b.dmRead(dmreg.DSCRATCH)
	if err != nil {
		return 0, fmt.Errorf("failed to capture saved t0: %w", err)
	}
	defer func() {
		if restoreErr := b.dmWrite(dmreg.DSCRATCH, t0saved); restoreErr != nil {
			b.log.Errorf("failed to stage t0 restore: %v", restoreErr)
			return
		}
		if restoreErr := b.InjectAsm("csrr t0, dscratch"); restoreErr != nil {
			b.log.Errorf("failed to restore t0: %v", restoreErr)
		}
	}()

	if err := b.InjectAsm(fmt.Sprintf("csrr t0, %#x", regaddr)); err != nil {
		return 0, fmt.Errorf("failed to read csr 0x%x into t0: %w", regaddr, err)
	}
	if err := b.InjectAsm("csrw dscratch, t0"); err != nil {
		return 0, fmt.Errorf("failed to stage csr value: %w", err)
	}
	value, err = b.dmRead(dmreg.DSCRATCH)
	if err != nil {
		return 0, fmt.Errorf("failed to read staged csr value: %w", err)
	}
	return value, nil
}

// RegCSRWrite writes value to CSR regaddr, using t0 as scratch with
// save/restore on every exit path.
func (b *Backend) RegCSRWrite(regaddr, value uint32) (err error) {
	if err := b.InjectAsm("csrw dscratch, t0"); err != nil {
		return fmt.Errorf("failed to save t0: %w", err)
	}
	t0saved, err := b.dmRead(dmreg.DSCRATCH)
	if err != nil {
		return fmt.Errorf("failed to capture saved t0: %w", err)
	}
	defer func() {
		if restoreErr := b.dmWrite(dmreg.DSCRATCH, t0saved); restoreErr != nil {
			b.log.Errorf("failed to stage t0 restore: %v", restoreErr)
			return
		}
		if restoreErr := b.InjectAsm("csrr t0, dscratch"); restoreErr != nil {
			b.log.Errorf("failed to restore t0: %v", restoreErr)
		}
	}()

	if err := b.dmWrite(dmreg.DSCRATCH, value); err != nil {
		return fmt.Errorf("failed to stage write value: %w", err)
	}
	if err := b.InjectAsm("csrr t0, dscratch"); err != nil {
		return fmt.Errorf("failed to load write value into t0: %w", err)
	}
	if err := b.InjectAsm(fmt.Sprintf("csrw %#x, t0", regaddr)); err != nil {
		return fmt.Errorf("failed to write csr 0x%x: %w", regaddr, err)
	}
	return nil
}

// ReadRegister reads the register named by name: GPRs and CSRs by name,
// plus the pseudo-register "pc" mapped to DPC.
func (b *Backend) ReadRegister(name string) (uint32, error) {
	if name == "pc" {
		return b.dmRead(dmreg.DPC)
	}
	if idx, err := rv.GPRIndex(name); err == nil {
		return b.RegArchRead(uint32(idx))
	}
	if addr, err := rv.CSRAddr(name); err == nil {
		return b.RegCSRRead(addr)
	}
	return 0, fmt.Errorf("%w: unknown register %q", rcode.InvalidArg, name)
}

// WriteRegister writes value to the register named by name (GPR, CSR, or
// the pseudo-register "pc").
func (b *Backend) WriteRegister(name string, value uint32) error {
	if name == "pc" {
		if err := b.dmWrite(dmreg.DPC, value); err != nil {
			return err
		}
		b.st.selectedPC = value
		return nil
	}
	if idx, err := rv.GPRIndex(name); err == nil {
		return b.RegArchWrite(uint32(idx), value)
	}
	if addr, err := rv.CSRAddr(name); err == nil {
		return b.RegCSRWrite(addr, value)
	}
	return fmt.Errorf("%w: unknown register %q", rcode.InvalidArg, name)
}

// ReadRegs reads each named register in order. The source's batch
// operations loop one at a time rather than keeping scratch state live
// across calls; see the design ledger for why that's kept as-is.
func (b *Backend) ReadRegs(names []string) ([]uint32, error) {
	values := make([]uint32, len(names))
	for i, name := range names {
		v, err := b.ReadRegister(name)
		if err != nil {
			return nil, fmt.Errorf("read %q: %w", name, err)
		}
		values[i] = v
	}
	return values, nil
}

// WriteRegs writes each named register in order; names and values must be
// the same length.
func (b *Backend) WriteRegs(names []string, values []uint32) error {
	if len(names) != len(values) {
		return fmt.Errorf("%w: names/values length mismatch", rcode.InvalidArg)
	}
	for i, name := range names {
		if err := b.WriteRegister(name, values[i]); err != nil {
			return fmt.Errorf("write %q: %w", name, err)
		}
	}
	return nil
}
