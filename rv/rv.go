// Package rv holds the RISC-V register name/number tables, the Vortex CSR
// whitelist, and MISA decoding, ported from the original debugger's
// rvdefs.h/riscv.cpp.
package rv

import "fmt"

// GPRCount is the number of general-purpose registers in RV32.
const GPRCount = 32

// GPRName returns "xN" for a valid GPR index.
func GPRName(idx int) (string, error) {
	if idx < 0 || idx >= GPRCount {
		return "", fmt.Errorf("invalid GPR index %d", idx)
	}
	return fmt.Sprintf("x%d", idx), nil
}

// GPRIndex parses "xN" back to its index.
func GPRIndex(name string) (int, error) {
	var idx int
	if n, err := fmt.Sscanf(name, "x%d", &idx); err != nil || n != 1 {
		return 0, fmt.Errorf("invalid GPR name %q", name)
	}
	if idx < 0 || idx >= GPRCount {
		return 0, fmt.Errorf("invalid GPR index %d", idx)
	}
	return idx, nil
}

// CSR addresses, the fixed whitelist of CSRs the debugger knows how to name.
const (
	CSRFflags          uint32 = 0x001
	CSRFrm             uint32 = 0x002
	CSRFcsr            uint32 = 0x003
	CSRMisa            uint32 = 0x301
	CSRMscratch        uint32 = 0x340
	CSRMcycle          uint32 = 0xb00
	CSRMcycleh         uint32 = 0xb80
	CSRMinstret        uint32 = 0xb02
	CSRMinstreth       uint32 = 0xb82
	CSRMvendorid       uint32 = 0xf11
	CSRMarchid         uint32 = 0xf12
	CSRMimpid          uint32 = 0xf13
	CSRVxThreadID      uint32 = 0xcc0
	CSRVxWarpID        uint32 = 0xcc1
	CSRVxCoreID        uint32 = 0xcc2
	CSRVxActiveWarps   uint32 = 0xcc3
	CSRVxActiveThreads uint32 = 0xcc4
	CSRVxNumThreads    uint32 = 0xfc0
	CSRVxNumWarps      uint32 = 0xfc1
	CSRVxNumCores      uint32 = 0xfc2
	CSRVxLocalMemBase  uint32 = 0xfc3
	CSRVxDscratch      uint32 = 0x7b2
)

var csrNames = map[uint32]string{
	CSRFflags: "fflags", CSRFrm: "frm", CSRFcsr: "fcsr",
	CSRMisa: "misa", CSRMscratch: "mscratch",
	CSRMcycle: "mcycle", CSRMcycleh: "mcycleh",
	CSRMinstret: "minstret", CSRMinstreth: "minstreth",
	CSRMvendorid: "mvendorid", CSRMarchid: "marchid", CSRMimpid: "mimpid",
	CSRVxThreadID: "vx_thread_id",
	CSRVxWarpID:   "vx_warp_id", CSRVxCoreID: "vx_core_id",
	CSRVxActiveWarps: "vx_active_warps", CSRVxActiveThreads: "vx_active_threads",
	CSRVxNumThreads: "vx_num_threads", CSRVxNumWarps: "vx_num_warps",
	CSRVxNumCores: "vx_num_cores", CSRVxLocalMemBase: "vx_local_mem_base",
	CSRVxDscratch: "vx_dscratch",
}

var csrAddrs = func() map[string]uint32 {
	m := make(map[string]uint32, len(csrNames))
	for addr, name := range csrNames {
		m[name] = addr
	}
	return m
}()

// CSRName returns the whitelisted name for addr, or a synthesized
// "csr_0xNNN" if addr is not whitelisted.
func CSRName(addr uint32) string {
	if name, ok := csrNames[addr]; ok {
		return name
	}
	return fmt.Sprintf("csr_0x%03x", addr)
}

// CSRAddr resolves a whitelisted CSR name to its address.
func CSRAddr(name string) (uint32, error) {
	addr, ok := csrAddrs[name]
	if !ok {
		return 0, fmt.Errorf("unknown CSR name %q", name)
	}
	return addr, nil
}

// ISAString decodes a MISA CSR value into a human-readable ISA string, e.g.
// "RV32IM_Zicsr". verbose spells extension names out comma-separated
// instead of using single-letter mnemonics.
func ISAString(misa uint32, verbose bool) string {
	bit := func(pos uint) bool { return (misa>>pos)&1 != 0 }

	atomic := bit(0)
	bitmanip := bit(1)
	compressed := bit(2)
	doubleFloat := bit(3)
	rv32e := bit(4)
	singleFloat := bit(5)
	baseISA := bit(8)
	mulDiv := bit(12)
	packedSIMD := bit(15)
	quadFloat := bit(16)
	userMode := bit(20)
	vector := bit(21)
	nonStd := bit(23)
	xlen := misa >> 30

	xlenStr := "?"
	switch xlen {
	case 1:
		xlenStr = "32"
	case 2:
		xlenStr = "64"
	case 3:
		xlenStr = "128"
	}

	s := "RV" + xlenStr
	switch {
	case baseISA:
		s += "I"
	case rv32e:
		s += "E"
	default:
		s += "?"
	}

	add := func(present bool, short, long string) {
		if !present {
			return
		}
		if verbose {
			s += ", " + long
		} else {
			s += short
		}
	}
	add(mulDiv, "M", "MulDiv")
	add(atomic, "A", "Atomic")
	add(singleFloat, "F", "SinglePrecisionFloat")
	add(doubleFloat, "D", "DoublePrecisionFloat")
	add(quadFloat, "Q", "QuadPrecisionFloat")
	add(compressed, "C", "Compressed")
	add(bitmanip, "B", "Bitmanip")
	add(packedSIMD, "P", "PackedSIMD")
	add(vector, "V", "Vector")

	if verbose {
		s += ", CSR"
	} else {
		s += "_Zicsr"
	}
	add(userMode, "", "UserMode")
	add(nonStd, "", "NonStdExtensionVortex")
	return s
}
