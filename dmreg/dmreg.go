// Package dmreg is the compile-time Debug Module register/field map: pure
// data plus pure functions for extracting and inserting bitfields. It is a
// direct port of the original debugger's dmdefs.h.
package dmreg

import "fmt"

// Reg identifies one of the DM's ten addressable registers.
type Reg uint8

const (
	PLATFORM Reg = 0x00
	DCONFIG  Reg = 0x01
	DSELECT  Reg = 0x02
	WMASK    Reg = 0x03
	WACTIVE  Reg = 0x04
	WSTATUS  Reg = 0x05
	DCTRL    Reg = 0x06
	DPC      Reg = 0x07
	DINJECT  Reg = 0x08
	DSCRATCH Reg = 0x09
)

// Field describes one inclusive [msb:lsb] bitfield of a DM register.
type Field struct {
	Name string
	MSB  uint8
	LSB  uint8
}

// Width returns the field's bit width.
func (f Field) Width() uint32 {
	return uint32(f.MSB) - uint32(f.LSB) + 1
}

// Mask returns the field's bitmask, already shifted into register position.
// A 32-bit-wide field is special-cased to 0xFFFFFFFF to avoid UB from a
// 32-bit shift.
func (f Field) Mask() uint32 {
	w := f.Width()
	if w == 32 {
		return 0xFFFFFFFF
	}
	return ((uint32(1) << w) - 1) << f.LSB
}

// RegInfo is the static descriptor of one DM register.
type RegInfo struct {
	ID     Reg
	Name   string
	Addr   uint8
	Fields []Field
}

var platformFields = []Field{
	{"platformid", 31, 28},
	{"numclusters", 27, 21},
	{"numcores", 20, 12},
	{"numwarps", 11, 3},
	{"numthreads", 2, 0},
}

var dconfigFields = []Field{
	{"ndmresetcyc", 31, 29},
	{"resethaltreqcyc", 28, 26},
	{"ebreakh", 0, 0},
}

var dselectFields = []Field{
	{"winsel", 31, 22},
	{"warpsel", 21, 7},
	{"threadsel", 6, 0},
}

var wmaskFields = []Field{{"mask", 31, 0}}
var wactiveFields = []Field{{"astatus", 31, 0}}
var wstatusFields = []Field{{"status", 31, 0}}

var dctrlFields = []Field{
	{"dmactive", 31, 31},
	{"ndmreset", 30, 30},
	{"allhalted", 29, 29},
	{"anyhalted", 28, 28},
	{"allrunning", 27, 27},
	{"anyrunning", 26, 26},
	{"allunavail", 25, 25},
	{"anyunavail", 24, 24},
	{"hacause", 11, 9},
	{"injectstate", 8, 7},
	{"injectreq", 6, 6},
	{"stepstate", 5, 4},
	{"stepreq", 3, 3},
	{"resethaltreq", 2, 2},
	{"resumereq", 1, 1},
	{"haltreq", 0, 0},
}

var dpcFields = []Field{{"pc", 31, 0}}
var dinjectFields = []Field{{"instr", 31, 0}}
var dscratchFields = []Field{{"data", 31, 0}}

// Regs is the ordered table of all DM registers, indexable by Reg.
var Regs = []RegInfo{
	{PLATFORM, "platform", 0x00, platformFields},
	{DCONFIG, "dconfig", 0x01, dconfigFields},
	{DSELECT, "dselect", 0x02, dselectFields},
	{WMASK, "wmask", 0x03, wmaskFields},
	{WACTIVE, "wactive", 0x04, wactiveFields},
	{WSTATUS, "wstatus", 0x05, wstatusFields},
	{DCTRL, "dctrl", 0x06, dctrlFields},
	{DPC, "dpc", 0x07, dpcFields},
	{DINJECT, "dinject", 0x08, dinjectFields},
	{DSCRATCH, "dscratch", 0x09, dscratchFields},
}

var byName = func() map[string]Reg {
	m := make(map[string]Reg, len(Regs))
	for _, r := range Regs {
		m[r.Name] = r.ID
	}
	return m
}()

// Info returns the static descriptor for reg.
func Info(reg Reg) RegInfo {
	return Regs[int(reg)]
}

// ByName reverse-looks-up a register tag by its name.
func ByName(name string) (Reg, error) {
	r, ok := byName[name]
	if !ok {
		return 0, fmt.Errorf("invalid DM register name: %s", name)
	}
	return r, nil
}

// FieldInfo returns the Field descriptor for reg.field.
func FieldInfo(reg Reg, field string) (Field, error) {
	info := Info(reg)
	for _, f := range info.Fields {
		if f.Name == field {
			return f, nil
		}
	}
	return Field{}, fmt.Errorf("invalid field name %q for register %q", field, info.Name)
}

// Extract pulls field's value out of a whole register word.
func Extract(reg Reg, field string, word uint32) (uint32, error) {
	f, err := FieldInfo(reg, field)
	if err != nil {
		return 0, err
	}
	return (word & f.Mask()) >> f.LSB, nil
}

// Insert returns word with field replaced by value, leaving every other bit
// untouched.
func Insert(reg Reg, field string, word uint32, value uint32) (uint32, error) {
	f, err := FieldInfo(reg, field)
	if err != nil {
		return 0, err
	}
	mask := f.Mask()
	return (word &^ mask) | ((value << f.LSB) & mask), nil
}

// HacauseToString renders a DCTRL.hacause value as its halt-cause name.
func HacauseToString(hacause uint32) string {
	switch hacause {
	case 0x0:
		return "None"
	case 0x1:
		return "Ebreak"
	case 0x2:
		return "Halt Requested"
	case 0x3:
		return "Step Requested"
	case 0x4:
		return "Reset Halt Requested"
	default:
		return "Unknown"
	}
}

// HaltCause enumerates the decoded values of DCTRL.hacause.
type HaltCause uint32

const (
	HaltCauseNone               HaltCause = 0
	HaltCauseEbreak             HaltCause = 1
	HaltCauseHaltRequested      HaltCause = 2
	HaltCauseStepRequested      HaltCause = 3
	HaltCauseResetHaltRequested HaltCause = 4
)

func (h HaltCause) String() string {
	return HacauseToString(uint32(h))
}
