// Package gdbstub exposes a backend and its breakpoint table over the GDB
// Remote Serial Protocol, the way the original debugger's gdbstub.cpp does:
// a TCP listener, `$...#XX` packet framing, and a prefix-keyed command
// table.
package gdbstub

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"sort"
	"strconv"
	"strings"

	"github.com/saursin/vxdebug/backend"
	"github.com/saursin/vxdebug/breakpoint"
	"github.com/saursin/vxdebug/logger"
)

// cmdHandler handles one dispatched command and returns the reply payload
// (without the leading `$` or trailing `#XX`).
type cmdHandler func(s *Stub, cmdstr string) string

type cmdEntry struct {
	prefix  string
	handler cmdHandler
}

// Stub serves one GDB client at a time against a backend and breakpoint
// table, mirroring the single-target-owner model the core assumes.
type Stub struct {
	b              *backend.Backend
	bp             *breakpoint.Table
	log            *logger.Logger
	threadsPerWarp int
	cmds           []cmdEntry

	threadIDs []int
	threadPos int
}

// NewStub constructs a Stub ready to Serve. Call it after the backend has
// been initialized, so PlatformInfo is populated for the thread map.
func NewStub(b *backend.Backend, bp *breakpoint.Table) *Stub {
	s := &Stub{
		b:              b,
		bp:             bp,
		log:            logger.New("GDBStub"),
		threadsPerWarp: int(b.PlatformInfo().NumThreads),
	}
	if s.threadsPerWarp == 0 {
		s.threadsPerWarp = 1
	}
	s.registerCommands()
	return s
}

func (s *Stub) registerCommands() {
	s.cmds = []cmdEntry{
		{"qSupported", (*Stub).cmdSupported},
		{"qAttached", (*Stub).cmdAttached},
		{"?", (*Stub).cmdHalted},
		{"D", (*Stub).cmdDetach},
		{"g", (*Stub).cmdReadRegs},
		{"G", (*Stub).cmdWriteRegs},
		{"p", (*Stub).cmdReadReg},
		{"P", (*Stub).cmdWriteReg},
		{"m", (*Stub).cmdReadMem},
		{"M", (*Stub).cmdWriteMem},
		{"c", (*Stub).cmdContinue},
		{"s", (*Stub).cmdStep},
		{"Z0", (*Stub).cmdInsertBp},
		{"Z1", (*Stub).cmdInsertBp},
		{"z0", (*Stub).cmdRemoveBp},
		{"z1", (*Stub).cmdRemoveBp},
		{"qfThreadInfo", (*Stub).cmdThreadInfoFirst},
		{"qsThreadInfo", (*Stub).cmdThreadInfoSubsequent},
		{"qThreadExtraInfo,", (*Stub).cmdThreadExtraInfo},
		{"qC", (*Stub).cmdCurrentThread},
		{"Hc", (*Stub).cmdSetThread},
		{"Hg", (*Stub).cmdSetThread},
		{"T", (*Stub).cmdThreadAlive},
		{"qXfer:features:read:target.xml:", (*Stub).cmdXferFeatures},
	}
	// Longer prefixes are tried first, so a short prefix can never shadow a
	// longer, more specific one that starts with it.
	sort.SliceStable(s.cmds, func(i, j int) bool {
		return len(s.cmds[i].prefix) > len(s.cmds[j].prefix)
	})
}

func (s *Stub) dispatch(cmdstr string) string {
	for _, e := range s.cmds {
		if strings.HasPrefix(cmdstr, e.prefix) {
			return e.handler(s, cmdstr)
		}
	}
	s.log.Warnf("unknown command %q", cmdstr)
	return ""
}

// Serve listens on port and handles one GDB client connection at a time,
// forever (or until the listener fails to start).
func (s *Stub) Serve(port int) error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return fmt.Errorf("failed to start GDB server: %w", err)
	}
	defer ln.Close()
	s.log.Infof("GDB server listening on port %d", port)

	for {
		conn, err := ln.Accept()
		if err != nil {
			s.log.Errorf("accept failed: %v", err)
			continue
		}
		s.log.Info("GDB client connected")
		s.handleClient(conn)
		s.log.Info("GDB client disconnected")
	}
}

func (s *Stub) handleClient(conn net.Conn) {
	defer conn.Close()
	r := bufio.NewReader(conn)

	for {
		cmdstr, dispatch, err := s.recvPacket(r)
		if err != nil {
			if err != io.EOF {
				s.log.Warnf("connection read failed: %v", err)
			}
			return
		}
		if !dispatch {
			continue
		}
		if _, err := conn.Write([]byte("+")); err != nil {
			s.log.Warnf("failed to send ack: %v", err)
			return
		}
		s.log.Debugf("cmd: %s", cmdstr)
		reply := s.dispatch(cmdstr)
		if err := s.sendPacket(conn, reply); err != nil {
			s.log.Warnf("failed to send reply: %v", err)
			return
		}
	}
}

// recvPacket reads one protocol unit off r: a bare `+`/`-` ack/nack (no
// dispatch), the 0x03 interrupt byte (dispatched as a stop-reason query),
// or a full `$...#XX` packet with a verified checksum.
func (s *Stub) recvPacket(r *bufio.Reader) (cmdstr string, dispatch bool, err error) {
	c, err := r.ReadByte()
	if err != nil {
		return "", false, err
	}
	switch c {
	case '+':
		return "", false, nil
	case '-':
		s.log.Warn("received NACK from GDB client")
		return "", false, nil
	case 0x03:
		return "?", true, nil
	case '$':
		// handled below
	default:
		s.log.Warnf("unexpected byte from GDB client: 0x%02x", c)
		return "", false, nil
	}

	var buf strings.Builder
	var checksum byte
	for {
		b, err := r.ReadByte()
		if err != nil {
			return "", false, err
		}
		if b == '#' {
			break
		}
		checksum += b
		buf.WriteByte(b)
	}

	checkHex := make([]byte, 2)
	if _, err := io.ReadFull(r, checkHex); err != nil {
		return "", false, err
	}
	received, err := strconv.ParseUint(string(checkHex), 16, 8)
	if err != nil || byte(received) != checksum {
		s.log.Warnf("checksum mismatch for packet %q", buf.String())
		return "", false, nil
	}
	return buf.String(), true, nil
}

func (s *Stub) sendPacket(conn net.Conn, payload string) error {
	var sum byte
	for i := 0; i < len(payload); i++ {
		sum += payload[i]
	}
	pkt := fmt.Sprintf("$%s#%02x", payload, sum)
	s.log.Debugf("reply: %s", pkt)
	_, err := conn.Write([]byte(pkt))
	return err
}
