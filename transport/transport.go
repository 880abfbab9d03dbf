// Package transport implements the byte-oriented line protocol the host
// debugger uses to reach the Debug Module: single and batched register
// read/write commands framed as ASCII lines, carried over either TCP or a
// serial link. Ported from the original debugger's transport.h/.cpp.
package transport

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/saursin/vxdebug/logger"
	"github.com/saursin/vxdebug/rcode"
)

// MaxBatchSize is the largest number of registers a single batched
// read/write command may address.
const MaxBatchSize = 8

// DefaultTimeout is used when SetTimeout has never been called.
const DefaultTimeout = 1000 * time.Millisecond

// Transport is the register-level interface the backend talks to. TCP and
// serial implementations share their framing logic via Protocol and differ
// only in how bytes actually move.
type Transport interface {
	Connect(args map[string]string) error
	Disconnect() error
	Connected() bool
	SetTimeout(d time.Duration)

	Handshake() error

	ReadReg(addr uint32) (uint32, error)
	WriteReg(addr, data uint32) error
	ReadRegs(addrs []uint32) ([]uint32, error)
	WriteRegs(addrs, data []uint32) error
}

// medium is the minimal byte-pipe a Protocol needs: newline-terminated send,
// newline-terminated receive, and a liveness check. TCPTransport and
// SerialTransport each implement one.
type medium interface {
	sendBuf(data string) error
	recvBuf(timeout time.Duration) (string, error)
	connected() bool
	disconnect() error
}

// Protocol implements the "rXXXX" / "wXXXX:XXXXXXXX" / "RXXXX,..." /
// "WXXXX,...;XXXXXXXX,..." line protocol on top of an arbitrary medium. It
// is embedded by TCPTransport and SerialTransport rather than subclassed,
// keeping exactly one copy of the framing logic.
type Protocol struct {
	m       medium
	timeout time.Duration
	log     *logger.Logger
}

func newProtocol(m medium, name string) *Protocol {
	return &Protocol{m: m, timeout: DefaultTimeout, log: logger.New(name)}
}

// SetTimeout configures the per-operation receive timeout.
func (p *Protocol) SetTimeout(d time.Duration) { p.timeout = d }

// Connected reports whether the underlying medium is currently open.
func (p *Protocol) Connected() bool { return p.m != nil && p.m.connected() }

// Disconnect closes the underlying medium.
func (p *Protocol) Disconnect() error {
	if p.m == nil {
		return nil
	}
	return p.m.disconnect()
}

func (p *Protocol) send(line string) error {
	p.log.Debugf("TX: %s", line)
	if err := p.m.sendBuf(line); err != nil {
		return err
	}
	return nil
}

func (p *Protocol) recv() (string, error) {
	line, err := p.m.recvBuf(p.timeout)
	if err != nil {
		return "", err
	}
	p.log.Debugf("RX: %s", line)
	return line, nil
}

// Handshake sends the "p" ping and expects "+P" back. It must be the first
// call made on a freshly connected Transport, before any register access.
func (p *Protocol) Handshake() error {
	if !p.Connected() {
		return rcode.TransportErr
	}
	if err := p.send("p"); err != nil {
		return err
	}
	rbuf, err := p.recv()
	if err != nil {
		return err
	}
	switch rbuf {
	case "+P":
		return nil
	case "-":
		p.log.Error("handshake failed (got NACK)")
		return rcode.Error
	default:
		return fmt.Errorf("failed to parse handshake response %q", rbuf)
	}
}

// ReadReg reads a single DM register over the wire.
func (p *Protocol) ReadReg(addr uint32) (uint32, error) {
	if !p.Connected() {
		return 0, rcode.TransportErr
	}
	if err := p.send(fmt.Sprintf("r%04x", addr)); err != nil {
		return 0, err
	}
	rbuf, err := p.recv()
	if err != nil {
		return 0, err
	}
	if len(rbuf) == 0 {
		return 0, fmt.Errorf("failed to parse register read response")
	}
	switch rbuf[0] {
	case '+':
		v, err := strconv.ParseUint(rbuf[1:], 16, 32)
		if err != nil {
			return 0, fmt.Errorf("failed to parse register read response %q: %w", rbuf, err)
		}
		return uint32(v), nil
	case '-':
		p.log.Error("register read failed (got NACK)")
		return 0, rcode.Error
	default:
		return 0, fmt.Errorf("failed to parse register read response %q", rbuf)
	}
}

// WriteReg writes a single DM register over the wire.
func (p *Protocol) WriteReg(addr, data uint32) error {
	if !p.Connected() {
		return rcode.TransportErr
	}
	if err := p.send(fmt.Sprintf("w%04x:%08x", addr, data)); err != nil {
		return err
	}
	rbuf, err := p.recv()
	if err != nil {
		return err
	}
	if len(rbuf) == 0 {
		return fmt.Errorf("failed to parse register write response")
	}
	switch rbuf[0] {
	case '+':
		return nil
	case '-':
		p.log.Error("register write failed (got NACK)")
		return rcode.Error
	default:
		return fmt.Errorf("failed to parse register write response %q", rbuf)
	}
}

// ReadRegs reads up to MaxBatchSize registers in a single round trip.
func (p *Protocol) ReadRegs(addrs []uint32) ([]uint32, error) {
	if len(addrs) == 0 {
		return nil, nil
	}
	if len(addrs) > MaxBatchSize {
		return nil, fmt.Errorf("%w: too many addresses in batch read", rcode.BufferOverflow)
	}
	if !p.Connected() {
		return nil, rcode.TransportErr
	}

	parts := make([]string, len(addrs))
	for i, a := range addrs {
		parts[i] = fmt.Sprintf("%04x", a)
	}
	if err := p.send("R" + strings.Join(parts, ",")); err != nil {
		return nil, err
	}

	rbuf, err := p.recv()
	if err != nil {
		return nil, err
	}
	if len(rbuf) == 0 {
		return nil, fmt.Errorf("failed to parse batch register read response")
	}
	switch rbuf[0] {
	case '+':
		tokens := strings.Split(rbuf[1:], ",")
		if len(tokens) != len(addrs) {
			return nil, fmt.Errorf("batch read response size mismatch: got %d want %d", len(tokens), len(addrs))
		}
		data := make([]uint32, len(tokens))
		for i, tok := range tokens {
			v, err := strconv.ParseUint(tok, 16, 32)
			if err != nil {
				return nil, fmt.Errorf("failed to parse batch read token %q: %w", tok, err)
			}
			data[i] = uint32(v)
		}
		return data, nil
	case '-':
		p.log.Error("batch register read failed (got NACK)")
		return nil, rcode.Error
	default:
		return nil, fmt.Errorf("failed to parse batch register read response %q", rbuf)
	}
}

// WriteRegs writes up to MaxBatchSize registers in a single round trip.
func (p *Protocol) WriteRegs(addrs, data []uint32) error {
	if len(addrs) == 0 {
		return nil
	}
	if len(addrs) != len(data) {
		return fmt.Errorf("%w: address and data count mismatch for batch write", rcode.InvalidArg)
	}
	if len(addrs) > MaxBatchSize {
		return fmt.Errorf("%w: too many addresses in batch write", rcode.BufferOverflow)
	}
	if !p.Connected() {
		return rcode.TransportErr
	}

	addrParts := make([]string, len(addrs))
	for i, a := range addrs {
		addrParts[i] = fmt.Sprintf("%04x", a)
	}
	dataParts := make([]string, len(data))
	for i, d := range data {
		dataParts[i] = fmt.Sprintf("%08x", d)
	}
	line := "W" + strings.Join(addrParts, ",") + ";" + strings.Join(dataParts, ",")
	if err := p.send(line); err != nil {
		return fmt.Errorf("failed to send batch write command: %w", err)
	}

	rbuf, err := p.recv()
	if err != nil {
		return fmt.Errorf("failed to receive batch write response: %w", err)
	}
	if len(rbuf) == 0 {
		return fmt.Errorf("failed to parse batch write response")
	}
	switch rbuf[0] {
	case '+':
		return nil
	case '-':
		p.log.Error("batch register write failed (got NACK)")
		return rcode.Error
	default:
		return fmt.Errorf("failed to parse batch write response %q", rbuf)
	}
}
