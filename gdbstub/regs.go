package gdbstub

import (
	"fmt"

	"github.com/saursin/vxdebug/rv"
)

// exposedCSRs is the fixed, ordered list of Vortex CSRs GDB gets to see
// through the g/G/p/P register index space, starting right after x0..x31
// and pc.
var exposedCSRs = []string{
	"vx_num_cores",
	"vx_num_warps",
	"vx_num_threads",
	"vx_core_id",
	"vx_warp_id",
	"vx_thread_id",
	"vx_active_warps",
	"vx_active_threads",
	"vx_local_mem_base",
}

// pcRegIndex is GDB's register index for the pc pseudo-register, right
// after the 32 GPRs.
const pcRegIndex = rv.GPRCount

// regNameAt maps a GDB register index to its vxdebug register name, per
// the fixed layout: 0..31 are x0..x31, 32 is pc, and everything from 33
// onward walks exposedCSRs in order.
func regNameAt(idx int) (string, bool) {
	switch {
	case idx >= 0 && idx < rv.GPRCount:
		name, _ := rv.GPRName(idx)
		return name, true
	case idx == pcRegIndex:
		return "pc", true
	case idx >= pcRegIndex+1 && idx < pcRegIndex+1+len(exposedCSRs):
		return exposedCSRs[idx-pcRegIndex-1], true
	default:
		return "", false
	}
}

// numRegs is the total count of registers exposed through the g/G bulk
// register commands.
var numRegs = pcRegIndex + 1 + len(exposedCSRs)

// isCSRIndex reports whether idx names one of the exposedCSRs. These are
// treated as read-only: a single-register P write to one of their indices
// is rejected, and the bulk G write skips them.
func isCSRIndex(idx int) bool {
	return idx >= pcRegIndex+1 && idx < pcRegIndex+1+len(exposedCSRs)
}

// gtid and local thread/warp bijection: gtid = 1 + wid*threadsPerWarp + tid,
// since GDB reserves thread id 0 to mean "any thread".
func gtid(wid, tid, threadsPerWarp int) int {
	return 1 + wid*threadsPerWarp + tid
}

func widTidFromGtid(gt, threadsPerWarp int) (wid, tid int, err error) {
	if gt < 1 {
		return 0, 0, fmt.Errorf("invalid GDB thread id %d", gt)
	}
	local := gt - 1
	return local / threadsPerWarp, local % threadsPerWarp, nil
}
