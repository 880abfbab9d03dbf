package gdbstub

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
)

func leHex32(v uint32) string {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	return hex.EncodeToString(buf[:])
}

func parseLEHex32(s string) (uint32, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return 0, err
	}
	if len(b) != 4 {
		return 0, fmt.Errorf("expected 4 bytes, got %d", len(b))
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (s *Stub) cmdSupported(cmdstr string) string {
	return "PacketSize=4096;qXfer:features:read+;swbreak+"
}

func (s *Stub) cmdAttached(cmdstr string) string {
	return "1"
}

func (s *Stub) cmdHalted(cmdstr string) string {
	return "S05"
}

func (s *Stub) cmdDetach(cmdstr string) string {
	if err := s.b.ResumeWarpsAll(); err != nil {
		s.log.Warnf("detach: failed to resume warps: %v", err)
	}
	return "OK"
}

func (s *Stub) cmdReadRegs(cmdstr string) string {
	var sb strings.Builder
	for i := 0; i < numRegs; i++ {
		name, _ := regNameAt(i)
		v, err := s.b.ReadRegister(name)
		if err != nil {
			s.log.Warnf("g: failed to read %s: %v", name, err)
			v = 0
		}
		sb.WriteString(leHex32(v))
	}
	return sb.String()
}

// cmdWriteRegs writes every GPR and pc from the bulk register blob.
// Writes landing on the read-only exposed-CSR tail of the register space
// are accepted but dropped, matching the read-only contract enforced
// explicitly by cmdWriteReg for the single-register form.
func (s *Stub) cmdWriteRegs(cmdstr string) string {
	args := cmdstr[1:]
	for i := 0; i*8+8 <= len(args) && i < numRegs; i++ {
		if isCSRIndex(i) {
			continue
		}
		v, err := parseLEHex32(args[i*8 : i*8+8])
		if err != nil {
			return "E01"
		}
		name, _ := regNameAt(i)
		if err := s.b.WriteRegister(name, v); err != nil {
			s.log.Warnf("G: failed to write %s: %v", name, err)
		}
	}
	return "OK"
}

func (s *Stub) cmdReadReg(cmdstr string) string {
	idx, err := strconv.ParseInt(cmdstr[1:], 16, 32)
	if err != nil {
		return "E01"
	}
	name, ok := regNameAt(int(idx))
	if !ok {
		return "E02"
	}
	v, err := s.b.ReadRegister(name)
	if err != nil {
		s.log.Warnf("p: failed to read %s: %v", name, err)
		return "E02"
	}
	return leHex32(v)
}

func (s *Stub) cmdWriteReg(cmdstr string) string {
	args := cmdstr[1:]
	eq := strings.IndexByte(args, '=')
	if eq < 0 {
		return "E01"
	}
	idx, err := strconv.ParseInt(args[:eq], 16, 32)
	if err != nil {
		return "E01"
	}
	name, ok := regNameAt(int(idx))
	if !ok {
		return "E02"
	}
	if isCSRIndex(int(idx)) {
		return "E02"
	}
	v, err := parseLEHex32(args[eq+1:])
	if err != nil {
		return "E01"
	}
	if err := s.b.WriteRegister(name, v); err != nil {
		s.log.Warnf("P: failed to write %s: %v", name, err)
		return "E03"
	}
	return "OK"
}

func (s *Stub) cmdReadMem(cmdstr string) string {
	addr, length, err := parseAddrLen(cmdstr[1:], ',')
	if err != nil {
		return "E01"
	}
	data, err := s.b.MemRead(addr, length)
	if err != nil {
		s.log.Warnf("m: failed to read 0x%x+%d: %v", addr, length, err)
		return "E02"
	}
	return hex.EncodeToString(data)
}

func (s *Stub) cmdWriteMem(cmdstr string) string {
	args := cmdstr[1:]
	colon := strings.IndexByte(args, ':')
	if colon < 0 {
		return "E01"
	}
	addr, length, err := parseAddrLen(args[:colon], ',')
	if err != nil {
		return "E01"
	}
	data, err := hex.DecodeString(args[colon+1:])
	if err != nil || uint32(len(data)) != length {
		return "E01"
	}
	if err := s.b.MemWrite(addr, data); err != nil {
		s.log.Warnf("M: failed to write 0x%x: %v", addr, err)
		return "E03"
	}
	return "OK"
}

func parseAddrLen(s string, sep byte) (addr, length uint32, err error) {
	i := strings.IndexByte(s, sep)
	if i < 0 {
		return 0, 0, strconv.ErrSyntax
	}
	a, err := strconv.ParseUint(s[:i], 16, 32)
	if err != nil {
		return 0, 0, err
	}
	l, err := strconv.ParseUint(s[i+1:], 16, 32)
	if err != nil {
		return 0, 0, err
	}
	return uint32(a), uint32(l), nil
}

func (s *Stub) cmdContinue(cmdstr string) string {
	args := cmdstr[1:]
	if args != "" {
		addr, err := strconv.ParseUint(args, 16, 32)
		if err == nil {
			if err := s.b.WriteRegister("pc", uint32(addr)); err != nil {
				s.log.Warnf("c: failed to set pc: %v", err)
			}
		}
	}
	if _, err := s.bp.UntilBreakpoint(true); err != nil {
		s.log.Warnf("c: continue did not hit a breakpoint: %v", err)
	}
	return "S05"
}

func (s *Stub) cmdStep(cmdstr string) string {
	args := cmdstr[1:]
	if args != "" {
		addr, err := strconv.ParseUint(args, 16, 32)
		if err == nil {
			if err := s.b.WriteRegister("pc", uint32(addr)); err != nil {
				s.log.Warnf("s: failed to set pc: %v", err)
			}
		}
	}
	if err := s.b.StepWarp(); err != nil {
		s.log.Warnf("s: step failed: %v", err)
	}
	return "S05"
}

// parseBpArgs parses "Z0,addr,kind" / "z1,addr,kind" into addr; kind is
// accepted but unused since every breakpoint kind maps to the same
// software ebreak patch.
func parseBpArgs(cmdstr string) (addr uint32, err error) {
	rest := strings.TrimPrefix(cmdstr[2:], ",") // skip "Z0"/"Z1"/"z0"/"z1" and the leading comma
	fields := strings.Split(rest, ",")
	if len(fields) == 0 || fields[0] == "" {
		return 0, strconv.ErrSyntax
	}
	a, err := strconv.ParseUint(fields[0], 16, 32)
	if err != nil {
		return 0, err
	}
	return uint32(a), nil
}

func (s *Stub) cmdInsertBp(cmdstr string) string {
	addr, err := parseBpArgs(cmdstr)
	if err != nil {
		return "E01"
	}
	if err := s.bp.SetBreakpoint(addr); err != nil {
		s.log.Warnf("Z: failed to set breakpoint at 0x%x: %v", addr, err)
		return "E02"
	}
	return "OK"
}

func (s *Stub) cmdRemoveBp(cmdstr string) string {
	addr, err := parseBpArgs(cmdstr)
	if err != nil {
		return "E01"
	}
	if err := s.bp.RemoveBreakpoint(addr); err != nil {
		s.log.Warnf("z: failed to remove breakpoint at 0x%x: %v", addr, err)
	}
	return "OK"
}

func (s *Stub) allThreadIDs() []int {
	if s.threadIDs != nil {
		return s.threadIDs
	}
	pi := s.b.PlatformInfo()
	var ids []int
	for wid := 0; wid < int(pi.NumTotalWarps); wid++ {
		for tid := 0; tid < int(pi.NumThreads); tid++ {
			ids = append(ids, gtid(wid, tid, s.threadsPerWarp))
		}
	}
	s.threadIDs = ids
	return ids
}

const threadInfoChunkSize = 64

func (s *Stub) threadInfoChunk() string {
	ids := s.allThreadIDs()
	if s.threadPos >= len(ids) {
		return "l"
	}
	end := s.threadPos + threadInfoChunkSize
	if end > len(ids) {
		end = len(ids)
	}
	parts := make([]string, 0, end-s.threadPos)
	for _, id := range ids[s.threadPos:end] {
		parts = append(parts, strconv.FormatInt(int64(id), 16))
	}
	s.threadPos = end
	return "m" + strings.Join(parts, ",")
}

func (s *Stub) cmdThreadInfoFirst(cmdstr string) string {
	s.threadPos = 0
	return s.threadInfoChunk()
}

func (s *Stub) cmdThreadInfoSubsequent(cmdstr string) string {
	return s.threadInfoChunk()
}

func (s *Stub) cmdThreadExtraInfo(cmdstr string) string {
	tidHex := strings.TrimPrefix(cmdstr, "qThreadExtraInfo,")
	gt, err := strconv.ParseInt(tidHex, 16, 32)
	if err != nil {
		return ""
	}
	wid, tid, err := widTidFromGtid(int(gt), s.threadsPerWarp)
	if err != nil {
		return ""
	}
	desc := "warp " + strconv.Itoa(wid) + " thread " + strconv.Itoa(tid)
	return hex.EncodeToString([]byte(desc))
}

func (s *Stub) cmdCurrentThread(cmdstr string) string {
	wid, tid, err := s.b.GetSelectedWarpThread(false)
	if err != nil || wid < 0 {
		return "QC0"
	}
	return "QC" + strconv.FormatInt(int64(gtid(wid, tid, s.threadsPerWarp)), 16)
}

func (s *Stub) cmdSetThread(cmdstr string) string {
	tidStr := cmdstr[2:] // skip "Hc"/"Hg"
	if tidStr == "-1" || tidStr == "0" {
		return "OK"
	}
	gt, err := strconv.ParseInt(tidStr, 16, 32)
	if err != nil {
		return "E01"
	}
	wid, tid, err := widTidFromGtid(int(gt), s.threadsPerWarp)
	if err != nil {
		return "E01"
	}
	if err := s.b.SelectWarpThread(wid, tid); err != nil {
		s.log.Warnf("H: failed to select warp %d thread %d: %v", wid, tid, err)
		return "E02"
	}
	return "OK"
}

func (s *Stub) cmdThreadAlive(cmdstr string) string {
	gt, err := strconv.ParseInt(cmdstr[1:], 16, 32)
	if err != nil {
		return "E01"
	}
	wid, _, err := widTidFromGtid(int(gt), s.threadsPerWarp)
	if err != nil {
		return "E01"
	}
	pi := s.b.PlatformInfo()
	if wid < 0 || wid >= int(pi.NumTotalWarps) {
		return "E01"
	}
	return "OK"
}

func (s *Stub) cmdXferFeatures(cmdstr string) string {
	rest := strings.TrimPrefix(cmdstr, "qXfer:features:read:target.xml:")
	off, length, err := parseAddrLen(rest, ',')
	if err != nil {
		return "E01"
	}
	xml := targetDescriptionXML()
	if int(off) >= len(xml) {
		return "l"
	}
	end := int(off) + int(length)
	if end >= len(xml) {
		return "l" + xml[off:]
	}
	return "m" + xml[off:end]
}
