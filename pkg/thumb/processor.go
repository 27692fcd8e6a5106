// Package thumb implements the ARM Thumb (ARMv6-M) instruction set for the
// asm core.
package thumb

import (
	"strconv"

	"retasm/pkg/asm"
)

const (
	opPush  = 0xb400
	opPop   = 0xbc00
	opAddSP = 0xb000
	opSubSP = 0xb080
)

// Processor is the Thumb target. A single instance can serve any number of
// files concurrently.
type Processor struct {
	asm.Base

	lb   asm.Encoder
	lb11 asm.Encoder
}

// New builds the Thumb tables.
func New() *Processor {
	p := &Processor{}
	p.Registers = map[string]int{"sp": 13, "lr": 14, "pc": 15}
	for i := 0; i <= 15; i++ {
		p.Registers["r"+strconv.Itoa(i)] = i
	}

	reg := func(id, label string, max int64, segs ...asm.Segment) {
		p.AddEncoder(&asm.Field{ID: id, Label: label, Class: asm.KindRegister, Max: max, Segs: segs})
	}
	regShift := func(id string, shift uint) {
		p.AddEncoder(&asm.Field{ID: id, Label: "R0-7", Class: asm.KindRegister, Max: 7, Shift: shift})
	}
	imm := func(f asm.Field) {
		f.Class = asm.KindImmediate
		p.AddEncoder(&f)
	}

	// $r0 bits 2:0, $r1 bits 5:3, $r2 bits 7:2:1:0, $r3 bits 6:3,
	// $r4 bits 8:6, $r5 bits 10:8, $r01 sets both $r0 and $r1.
	regShift("$r0", 0)
	regShift("$r1", 3)
	reg("$r2", "R0-15", 15, asm.Segment{From: 0, To: 0, Width: 3}, asm.Segment{From: 3, To: 7, Width: 1})
	p.AddEncoder(&asm.Field{ID: "$r3", Label: "R0-15", Class: asm.KindRegister, Max: 15, Shift: 3})
	regShift("$r4", 6)
	regShift("$r5", 8)
	reg("$r01", "R0-7", 7, asm.Segment{From: 0, To: 0, Width: 3}, asm.Segment{From: 0, To: 3, Width: 3})

	imm(asm.Field{ID: "$i0", Label: "#0-255", Max: 255})
	imm(asm.Field{ID: "$i1", Label: "#0-1020", Max: 255, Scale: 4})
	imm(asm.Field{ID: "$i2", Label: "#0-510", Max: 127, Scale: 4})
	imm(asm.Field{ID: "$i3", Label: "#0-7", Max: 7, Shift: 6})
	imm(asm.Field{ID: "$i4", Label: "#0-31", Max: 31, Shift: 6})
	imm(asm.Field{ID: "$i5", Label: "#0-124", Max: 31, Scale: 4, Shift: 6})
	imm(asm.Field{ID: "$i6", Label: "#1-32", Min: 1, Max: 32, Modulo: 32, Shift: 6})
	imm(asm.Field{ID: "$i7", Label: "#0-62", Max: 31, Scale: 2, Shift: 6})
	p.AddEncoder(&asm.Placeholder{ID: "$i32", Label: "#0-2^32", Class: asm.KindImmediate, Bits: 1})

	p.AddEncoder(&asm.RegList{ID: "$rl0", Label: "{R0-7,...}", Low: 8})
	p.AddEncoder(&asm.RegList{ID: "$rl1", Label: "{LR,R0-7,...}", Low: 8, Extra: 14, ExtraBit: 0x100})
	p.AddEncoder(&asm.RegList{ID: "$rl2", Label: "{PC,R0-7,...}", Low: 8, Extra: 15, ExtraBit: 0x100})

	p.AddEncoder(&asm.Field{ID: "$la", Label: "LABEL", Class: asm.KindLabel, Max: 255, Scale: 4, Aligned: true})
	p.lb = p.AddEncoder(&asm.Field{ID: "$lb", Label: "LABEL", Class: asm.KindLabel, Min: -128, Max: 127, Scale: 2, Signed: true})
	p.lb11 = p.AddEncoder(&asm.Field{ID: "$lb11", Label: "LABEL", Class: asm.KindLabel, Min: -1024, Max: 1023, Scale: 2, Signed: true})

	for _, in := range instructions {
		p.AddInstruction(in.format, in.opcode, in.mask)
	}

	// Two-word branch with link. bb is emitted as a long jump until the
	// peephole pass can shorten it to b.
	p.AddWideInstruction("bl    $lb", 0xf000, 0xf800)
	p.AddWideInstruction("bb    $lb", 0xe000, 0xf800)

	// Rewritten into a pc-relative ldr by ExpandLiterals.
	p.AddInstruction("ldlit   $r5, $i32", 0x4800, 0xf800)
	return p
}

func (p *Processor) WordSize() int { return 4 }

func (p *Processor) IsPush(op uint32) bool  { return op == opPush }
func (p *Processor) IsPop(op uint32) bool   { return op == opPop }
func (p *Processor) IsAddSP(op uint32) bool { return op == opAddSP }
func (p *Processor) IsSubSP(op uint32) bool { return op == opSubSP }

// Emit32 encodes bl and bb. An odd target selects BLX to ARM state.
func (p *Processor) Emit32(_ *asm.Instruction, _ uint32, v int64, label string) (asm.EmitResult, error) {
	blx := v%2 != 0
	if blx {
		v = (v + 1) &^ 3
	}

	// off is in halfwords; the range is +-4MB.
	off := v >> 1
	if off <= -2*1024*1024 || off >= 2*1024*1024 {
		return asm.EmitResult{}, asm.Reject("jump out of range", label)
	}

	imm11 := uint32(off & 0x7ff)
	imm10 := uint32((off >> 11) & 0x3ff)

	op := 0xf000 | imm10
	if off < 0 {
		op = 0xf400 | imm10
	}
	op2 := 0xf800 | imm11
	if blx {
		op2 = 0xe800 | imm11
	}

	return asm.EmitResult{
		Opcode:    op,
		Opcode2:   op2,
		Wide:      true,
		Args:      []int64{v},
		LabelName: label,
	}, nil
}

// AddressFromLabel is relative to the pc, which reads 4 bytes ahead and is
// rounded down to a word for word-aligned operands.
func (p *Processor) AddressFromLabel(f *asm.File, _ *asm.Instruction, name string, wordAligned bool) (int64, bool) {
	l, ok := f.LookupLabel(name)
	if !ok {
		return 0, false
	}
	pc := f.Location() + 4
	if wordAligned {
		pc &^= 3
	}
	return l - pc, true
}

// PostProcessAbsAddress clears the Thumb bit of an external address. An
// address without it stays odd and selects ARM state in bl.
func (p *Processor) PostProcessAbsAddress(f *asm.File, v int64) int64 {
	return (v ^ 1) - f.BaseOffset
}

func (p *Processor) ToFnPtr(v, base int64, _ string) int64 {
	return (v + base) | 1
}

type entry struct {
	format string
	opcode uint32
	mask   uint32
}

var instructions = []entry{
	{"adcs  $r0, $r1", 0x4140, 0xffc0},
	{"add   $r2, $r3", 0x4400, 0xff00},
	{"add   $r5, pc, $i1", 0xa000, 0xf800},
	{"add   $r5, sp, $i1", 0xa800, 0xf800},
	{"add   sp, $i2", 0xb000, 0xff80},
	{"adds  $r0, $r1, $i3", 0x1c00, 0xfe00},
	{"adds  $r0, $r1, $r4", 0x1800, 0xfe00},
	{"adds  $r01, $r4", 0x1800, 0xfe00},
	{"adds  $r5, $i0", 0x3000, 0xf800},
	{"adr   $r5, $la", 0xa000, 0xf800},
	{"ands  $r0, $r1", 0x4000, 0xffc0},
	{"asrs  $r0, $r1", 0x4100, 0xffc0},
	{"asrs  $r0, $r1, $i6", 0x1000, 0xf800},
	{"bics  $r0, $r1", 0x4380, 0xffc0},
	{"bkpt  $i0", 0xbe00, 0xff00},
	{"blx   $r3", 0x4780, 0xff87},
	{"bx    $r3", 0x4700, 0xff80},
	{"cmn   $r0, $r1", 0x42c0, 0xffc0},
	{"cmp   $r0, $r1", 0x4280, 0xffc0},
	{"cmp   $r2, $r3", 0x4500, 0xff00},
	{"cmp   $r5, $i0", 0x2800, 0xf800},
	{"eors  $r0, $r1", 0x4040, 0xffc0},
	{"ldmia $r5!, $rl0", 0xc800, 0xf800},
	{"ldmia $r5, $rl0", 0xc800, 0xf800},
	{"ldr   $r0, [$r1, $i5]", 0x6800, 0xf800},
	{"ldr   $r0, [$r1, $r4]", 0x5800, 0xfe00},
	{"ldr   $r5, [pc, $i1]", 0x4800, 0xf800},
	{"ldr   $r5, $la", 0x4800, 0xf800},
	{"ldr   $r5, [sp, $i1]", 0x9800, 0xf800},
	{"ldr   $r5, [sp]", 0x9800, 0xf800},
	{"ldrb  $r0, [$r1, $i4]", 0x7800, 0xf800},
	{"ldrb  $r0, [$r1, $r4]", 0x5c00, 0xfe00},
	{"ldrh  $r0, [$r1, $i7]", 0x8800, 0xf800},
	{"ldrh  $r0, [$r1, $r4]", 0x5a00, 0xfe00},
	{"ldrsb $r0, [$r1, $r4]", 0x5600, 0xfe00},
	{"ldrsh $r0, [$r1, $r4]", 0x5e00, 0xfe00},
	{"lsls  $r0, $r1", 0x4080, 0xffc0},
	{"lsls  $r0, $r1, $i4", 0x0000, 0xf800},
	{"lsrs  $r0, $r1", 0x40c0, 0xffc0},
	{"lsrs  $r0, $r1, $i6", 0x0800, 0xf800},
	{"mov   $r2, $r3", 0x4600, 0xff00},
	{"movs  $r0, $r1", 0x0000, 0xffc0},
	{"movs  $r5, $i0", 0x2000, 0xf800},
	{"muls  $r0, $r1", 0x4340, 0xffc0},
	{"mvns  $r0, $r1", 0x43c0, 0xffc0},
	{"negs  $r0, $r1", 0x4240, 0xffc0},
	{"nop", 0x46c0, 0xffff}, // mov r8, r8
	{"orrs  $r0, $r1", 0x4300, 0xffc0},
	{"pop   $rl2", opPop, 0xfe00},
	{"push  $rl1", opPush, 0xfe00},
	{"rev   $r0, $r1", 0xba00, 0xffc0},
	{"rev16 $r0, $r1", 0xba40, 0xffc0},
	{"revsh $r0, $r1", 0xbac0, 0xffc0},
	{"rors  $r0, $r1", 0x41c0, 0xffc0},
	{"sbcs  $r0, $r1", 0x4180, 0xffc0},
	{"sev", 0xbf40, 0xffff},
	{"stm   $r5!, $rl0", 0xc000, 0xf800},
	{"stmia $r5!, $rl0", 0xc000, 0xf800},
	{"stmea $r5!, $rl0", 0xc000, 0xf800},
	{"str   $r0, [$r1, $i5]", 0x6000, 0xf800},
	{"str   $r0, [$r1]", 0x6000, 0xf800},
	{"str   $r0, [$r1, $r4]", 0x5000, 0xfe00},
	{"str   $r5, [sp, $i1]", 0x9000, 0xf800},
	{"str   $r5, [sp]", 0x9000, 0xf800},
	{"strb  $r0, [$r1, $i4]", 0x7000, 0xf800},
	{"strb  $r0, [$r1, $r4]", 0x5400, 0xfe00},
	{"strh  $r0, [$r1, $i7]", 0x8000, 0xf800},
	{"strh  $r0, [$r1, $r4]", 0x5200, 0xfe00},
	{"sub   sp, $i2", 0xb080, 0xff80},
	{"subs  $r0, $r1, $i3", 0x1e00, 0xfe00},
	{"subs  $r0, $r1, $r4", 0x1a00, 0xfe00},
	{"subs  $r01, $r4", 0x1a00, 0xfe00},
	{"subs  $r5, $i0", 0x3800, 0xf800},
	{"svc   $i0", 0xdf00, 0xff00},
	{"sxtb  $r0, $r1", 0xb240, 0xffc0},
	{"sxth  $r0, $r1", 0xb200, 0xffc0},
	{"tst   $r0, $r1", 0x4200, 0xffc0},
	{"udf   $i0", 0xde00, 0xff00},
	{"uxtb  $r0, $r1", 0xb2c0, 0xffc0},
	{"uxth  $r0, $r1", 0xb280, 0xffc0},
	{"wfe", 0xbf20, 0xffff},
	{"wfi", 0xbf30, 0xffff},
	{"yield", 0xbf10, 0xffff},

	{"cpsid i", 0xb672, 0xffff},
	{"cpsie i", 0xb662, 0xffff},

	{"beq   $lb", 0xd000, 0xff00},
	{"bne   $lb", 0xd100, 0xff00},
	{"bcs   $lb", 0xd200, 0xff00},
	{"bcc   $lb", 0xd300, 0xff00},
	{"bmi   $lb", 0xd400, 0xff00},
	{"bpl   $lb", 0xd500, 0xff00},
	{"bvs   $lb", 0xd600, 0xff00},
	{"bvc   $lb", 0xd700, 0xff00},
	{"bhi   $lb", 0xd800, 0xff00},
	{"bls   $lb", 0xd900, 0xff00},
	{"bge   $lb", 0xda00, 0xff00},
	{"blt   $lb", 0xdb00, 0xff00},
	{"bgt   $lb", 0xdc00, 0xff00},
	{"ble   $lb", 0xdd00, 0xff00},
	{"bhs   $lb", 0xd200, 0xff00}, // cs
	{"blo   $lb", 0xd300, 0xff00}, // cc

	{"b     $lb11", 0xe000, 0xf800},
	{"bal   $lb11", 0xe000, 0xf800},
}
