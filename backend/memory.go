package backend

import (
	"fmt"

	"github.com/saursin/vxdebug/dmreg"
)

// saveScratch saves t0 and t1 into the host via DSCRATCH round trips,
// returning a restore function that must be deferred by the caller so both
// registers come back on every exit path.
func (b *Backend) saveScratch() (restore func(), err error) {
	if err := b.InjectAsm("csrw dscratch, t0"); err != nil {
		return nil, fmt.Errorf("failed to save t0: %w", err)
	}
	t0saved, err := b.dmRead(dmreg.DSCRATCH)
	if err != nil {
		return nil, fmt.Errorf("failed to capture saved t0: %w", err)
	}

	if err := b.InjectAsm("csrw dscratch, t1"); err != nil {
		return nil, fmt.Errorf("failed to save t1: %w", err)
	}
	t1saved, err := b.dmRead(dmreg.DSCRATCH)
	if err != nil {
		return nil, fmt.Errorf("failed to capture saved t1: %w", err)
	}

	restore = func() {
		if err := b.dmWrite(dmreg.DSCRATCH, t1saved); err != nil {
			b.log.Errorf("failed to stage t1 restore: %v", err)
		} else if err := b.InjectAsm("csrr t1, dscratch"); err != nil {
			b.log.Errorf("failed to restore t1: %v", err)
		}
		if err := b.dmWrite(dmreg.DSCRATCH, t0saved); err != nil {
			b.log.Errorf("failed to stage t0 restore: %v", err)
		} else if err := b.InjectAsm("csrr t0, dscratch"); err != nil {
			b.log.Errorf("failed to restore t0: %v", err)
		}
	}
	return restore, nil
}

// loadAddrIntoT0 stages addr into the target's t0 via DSCRATCH.
func (b *Backend) loadAddrIntoT0(addr uint32) error {
	if err := b.dmWrite(dmreg.DSCRATCH, addr); err != nil {
		return err
	}
	return b.InjectAsm("csrr t0, dscratch")
}

// readWordAtT0 injects "lw t1, 0(t0)" and returns the loaded word via
// DSCRATCH.
func (b *Backend) readWordAtT0() (uint32, error) {
	if err := b.InjectAsm("lw t1, 0(t0)"); err != nil {
		return 0, err
	}
	if err := b.InjectAsm("csrw dscratch, t1"); err != nil {
		return 0, err
	}
	return b.dmRead(dmreg.DSCRATCH)
}

// writeWordAtT0 injects "sw t1, 0(t0)" after staging word into t1 via
// DSCRATCH.
func (b *Backend) writeWordAtT0(word uint32) error {
	if err := b.dmWrite(dmreg.DSCRATCH, word); err != nil {
		return err
	}
	if err := b.InjectAsm("csrr t1, dscratch"); err != nil {
		return err
	}
	return b.InjectAsm("sw t1, 0(t0)")
}

// MemRead reads n bytes starting at addr, honoring an unaligned start or
// length by reading the enclosing word-aligned range and trimming.
func (b *Backend) MemRead(addr, n uint32) ([]byte, error) {
	if err := b.ensureSelected(); err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}

	alignedStart := addr &^ 3
	alignedEnd := (addr + n + 3) &^ 3
	numWords := (alignedEnd - alignedStart) / 4

	restore, err := b.saveScratch()
	if err != nil {
		return nil, err
	}
	defer restore()

	if err := b.loadAddrIntoT0(alignedStart); err != nil {
		return nil, fmt.Errorf("failed to stage read address: %w", err)
	}

	words := make([]uint32, numWords)
	for i := uint32(0); i < numWords; i++ {
		w, err := b.readWordAtT0()
		if err != nil {
			return nil, fmt.Errorf("failed to read word %d: %w", i, err)
		}
		words[i] = w
		if i != numWords-1 {
			if err := b.InjectAsm("addi t0, t0, 4"); err != nil {
				return nil, fmt.Errorf("failed to advance read pointer: %w", err)
			}
		}
	}

	buf := make([]byte, numWords*4)
	for i, w := range words {
		buf[i*4+0] = byte(w)
		buf[i*4+1] = byte(w >> 8)
		buf[i*4+2] = byte(w >> 16)
		buf[i*4+3] = byte(w >> 24)
	}

	head := addr - alignedStart
	return buf[head : head+n], nil
}

// MemWrite writes data starting at addr, read-modify-writing the head and
// tail words if they are only partially covered by data.
func (b *Backend) MemWrite(addr uint32, data []byte) error {
	if err := b.ensureSelected(); err != nil {
		return err
	}
	n := uint32(len(data))
	if n == 0 {
		return nil
	}

	alignedStart := addr &^ 3
	alignedEnd := (addr + n + 3) &^ 3
	numWords := (alignedEnd - alignedStart) / 4

	restore, err := b.saveScratch()
	if err != nil {
		return err
	}
	defer restore()

	if err := b.loadAddrIntoT0(alignedStart); err != nil {
		return fmt.Errorf("failed to stage write address: %w", err)
	}

	for i := uint32(0); i < numWords; i++ {
		wordAddr := alignedStart + i*4

		var word uint32
		if wordFullyCovered(wordAddr, addr, n) {
			word = patchWord(wordAddr, 0, addr, data)
		} else {
			orig, err := b.readWordAtT0()
			if err != nil {
				return fmt.Errorf("failed to read word %d for patching: %w", i, err)
			}
			word = patchWord(wordAddr, orig, addr, data)
		}

		if err := b.writeWordAtT0(word); err != nil {
			return fmt.Errorf("failed to write word %d: %w", i, err)
		}
		if i != numWords-1 {
			if err := b.InjectAsm("addi t0, t0, 4"); err != nil {
				return fmt.Errorf("failed to advance write pointer: %w", err)
			}
		}
	}
	return nil
}

func max32(a, b uint32) uint32 {
	if a > b {
		return a
	}
	return b
}

func min32(a, b uint32) uint32 {
	if a < b {
		return a
	}
	return b
}

// wordFullyCovered reports whether the 4-byte word at wordAddr lies
// entirely within [addr, addr+n), meaning it can be overwritten outright
// instead of read-modify-written.
func wordFullyCovered(wordAddr, addr, n uint32) bool {
	covStart := max32(wordAddr, addr)
	covEnd := min32(wordAddr+4, addr+n)
	return covStart == wordAddr && covEnd == wordAddr+4
}

// patchWord returns the little-endian word that should be stored at
// wordAddr: bytes of data that fall within [wordAddr, wordAddr+4) replace
// the corresponding bytes of orig; bytes outside that range are preserved
// from orig untouched.
func patchWord(wordAddr, orig, addr uint32, data []byte) uint32 {
	n := uint32(len(data))
	covStart := max32(wordAddr, addr)
	covEnd := min32(wordAddr+4, addr+n)

	buf := []byte{byte(orig), byte(orig >> 8), byte(orig >> 16), byte(orig >> 24)}
	for off := covStart; off < covEnd; off++ {
		buf[off-wordAddr] = data[off-addr]
	}
	return uint32(buf[0]) | uint32(buf[1])<<8 | uint32(buf[2])<<16 | uint32(buf[3])<<24
}
