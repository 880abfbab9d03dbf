package gdbstub

import (
	"strconv"
	"strings"
)

// targetDescriptionXML builds the fixed GDB target description document:
// a riscv:rv32 architecture with the 32 GPRs + pc in one feature group and
// the exposed Vortex CSRs in another, generated from exposedCSRs so the
// register list never drifts out of sync with regs.go.
func targetDescriptionXML() string {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0"?>` + "\n")
	b.WriteString(`<!DOCTYPE target SYSTEM "gdb-target.dtd">` + "\n")
	b.WriteString(`<target version="1.0">` + "\n")
	b.WriteString(`<architecture>riscv:rv32</architecture>` + "\n")
	b.WriteString(`<feature name="org.gnu.gdb.riscv.cpu">` + "\n")
	for i := 0; i < 32; i++ {
		b.WriteString(regXML("x"+strconv.Itoa(i), 32, i))
	}
	b.WriteString(regXML("pc", 32, pcRegIndex))
	b.WriteString("</feature>\n")

	b.WriteString(`<feature name="org.gnu.vortex.csr">` + "\n")
	for i, name := range exposedCSRs {
		b.WriteString(regXML(name, 32, pcRegIndex+1+i))
	}
	b.WriteString("</feature>\n")
	b.WriteString("</target>")
	return b.String()
}

func regXML(name string, bitsize, regnum int) string {
	return `  <reg name="` + name + `" bitsize="` + strconv.Itoa(bitsize) +
		`" regnum="` + strconv.Itoa(regnum) + `"/>` + "\n"
}
