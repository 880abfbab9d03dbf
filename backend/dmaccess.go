package backend

import (
	"fmt"
	"time"

	"github.com/saursin/vxdebug/dmreg"
	"github.com/saursin/vxdebug/rcode"
)

// dmRead reads a whole DM register word over the transport.
func (b *Backend) dmRead(reg dmreg.Reg) (uint32, error) {
	if err := b.checkConnected(); err != nil {
		return 0, err
	}
	info := dmreg.Info(reg)
	value, err := b.tp.ReadReg(uint32(info.Addr))
	if err != nil {
		b.log.Errorf("failed to read DM register %s: %v", info.Name, err)
		return 0, err
	}
	b.log.Debugf("rd DMReg[0x%02x, %s] => 0x%08x", info.Addr, info.Name, value)
	return value, nil
}

// dmWrite writes a whole DM register word over the transport.
func (b *Backend) dmWrite(reg dmreg.Reg, value uint32) error {
	if err := b.checkConnected(); err != nil {
		return err
	}
	info := dmreg.Info(reg)
	if err := b.tp.WriteReg(uint32(info.Addr), value); err != nil {
		b.log.Errorf("failed to write DM register %s: %v", info.Name, err)
		return err
	}
	b.log.Debugf("wr DMReg[0x%02x, %s] <= 0x%08x", info.Addr, info.Name, value)
	return nil
}

// dmReadField reads reg's whole word and extracts field from it.
func (b *Backend) dmReadField(reg dmreg.Reg, field string) (uint32, error) {
	regValue, err := b.dmRead(reg)
	if err != nil {
		return 0, err
	}
	value, err := dmreg.Extract(reg, field, regValue)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", rcode.InvalidArg, err)
	}
	return value, nil
}

// dmWriteField performs a read-modify-write of a single field, leaving the
// rest of the register word untouched.
func (b *Backend) dmWriteField(reg dmreg.Reg, field string, value uint32) error {
	curr, err := b.dmRead(reg)
	if err != nil {
		return err
	}
	newWord, err := dmreg.Insert(reg, field, curr, value)
	if err != nil {
		return fmt.Errorf("%w: %v", rcode.InvalidArg, err)
	}
	if err := b.dmWrite(reg, newWord); err != nil {
		return err
	}
	return nil
}

// dmPollField re-reads field until it equals expected or the retry budget
// is exhausted, sleeping delayMS between attempts (never after the last
// one). It returns Timeout and the last-seen value on exhaustion.
func (b *Backend) dmPollField(reg dmreg.Reg, field string, expected uint32, retries, delayMS int) (uint32, error) {
	if retries <= 0 {
		retries = b.PollRetries
	}
	if delayMS < 0 {
		delayMS = b.PollDelayMS
	}

	var value uint32
	for attempt := 0; attempt < retries; attempt++ {
		v, err := b.dmReadField(reg, field)
		if err != nil {
			return 0, err
		}
		value = v
		info := dmreg.Info(reg)
		b.log.Debugf("poll DM[%s.%s] = 0x%x (attempt %d/%d)", info.Name, field, value, attempt+1, retries)
		if value == expected {
			return value, nil
		}
		if attempt < retries-1 {
			time.Sleep(time.Duration(delayMS) * time.Millisecond)
		}
	}

	info := dmreg.Info(reg)
	b.log.Errorf("poll exhausted: %s.%s did not reach 0x%x (final: 0x%x)", info.Name, field, expected, value)
	return value, rcode.Timeout
}
