// Package avr implements the AVR 8-bit instruction set for the asm core.
package avr

import (
	"strconv"

	"retasm/pkg/asm"
)

const (
	opPush = 0x920f
	opPop  = 0x900f
)

// Processor is the AVR target.
type Processor struct {
	asm.Base
}

// New builds the AVR tables.
func New() *Processor {
	p := &Processor{}
	p.Registers = make(map[string]int, 32)
	for i := 0; i < 32; i++ {
		p.Registers["r"+strconv.Itoa(i)] = i
	}

	enc := func(f asm.Field) {
		p.AddEncoder(&f)
	}
	rd := asm.Segment{From: 0, To: 4, Width: 5}
	rr := []asm.Segment{{From: 0, To: 0, Width: 4}, {From: 4, To: 9, Width: 1}}
	k8 := []asm.Segment{{From: 0, To: 0, Width: 4}, {From: 4, To: 8, Width: 4}}

	// $r0 Rd bits 8:4, $r1 Rr bits 9:3:0, $r6 the same register as both.
	enc(asm.Field{ID: "$r0", Label: "R0-31", Class: asm.KindRegister, Max: 31, Shift: 4})
	enc(asm.Field{ID: "$r1", Label: "R0-31", Class: asm.KindRegister, Max: 31, Segs: rr})
	enc(asm.Field{ID: "$r2", Label: "R24,26,28,30", Class: asm.KindRegister, Values: []int64{24, 26, 28, 30}, Shift: 4})
	enc(asm.Field{ID: "$r3", Label: "R16-31", Class: asm.KindRegister, Min: 16, Max: 31, Bias: 16, Shift: 4})
	// Bit numbers and I/O addresses are written as plain numbers.
	enc(asm.Field{ID: "$r4", Label: "#0-7", Class: asm.KindImmediate, Max: 7, Shift: 4})
	enc(asm.Field{ID: "$r5", Label: "#0-7", Class: asm.KindImmediate, Max: 7})
	enc(asm.Field{ID: "$r6", Label: "R0-31", Class: asm.KindRegister, Max: 31, Segs: append([]asm.Segment{rd}, rr...)})
	enc(asm.Field{ID: "$r7", Label: "#0-31", Class: asm.KindImmediate, Max: 31, Shift: 3})
	enc(asm.Field{ID: "$r8", Label: "Reven", Class: asm.KindRegister, Max: 15, Scale: 2, Shift: 4})
	enc(asm.Field{ID: "$r9", Label: "Reven", Class: asm.KindRegister, Max: 15, Scale: 2})
	enc(asm.Field{ID: "$r10", Label: "R16-23", Class: asm.KindRegister, Min: 16, Max: 23, Bias: 16, Shift: 4})
	enc(asm.Field{ID: "$r11", Label: "R16-23", Class: asm.KindRegister, Min: 16, Max: 23, Bias: 16})
	enc(asm.Field{ID: "$r12", Label: "R16-31", Class: asm.KindRegister, Min: 16, Max: 31, Bias: 16})

	enc(asm.Field{ID: "$i0", Label: "#0-63", Class: asm.KindImmediate, Max: 63,
		Segs: []asm.Segment{{From: 0, To: 0, Width: 4}, {From: 4, To: 6, Width: 2}}})
	enc(asm.Field{ID: "$i1", Label: "#0-255", Class: asm.KindImmediate, Max: 255, Segs: k8})
	enc(asm.Field{ID: "$i3", Label: "#0-255", Class: asm.KindImmediate, Max: 255, Invert: true, Segs: k8})
	enc(asm.Field{ID: "$i4", Label: "#0-15", Class: asm.KindImmediate, Max: 15, Shift: 4})
	enc(asm.Field{ID: "$i5", Label: "#0-63", Class: asm.KindImmediate, Max: 63,
		Segs: []asm.Segment{{From: 0, To: 0, Width: 4}, {From: 4, To: 9, Width: 2}}})

	enc(asm.Field{ID: "$lb", Label: "LABEL", Class: asm.KindLabel, Min: -64, Max: 63, Scale: 2, Signed: true, Shift: 3})
	enc(asm.Field{ID: "$lb11", Label: "LABEL", Class: asm.KindLabel, Min: -2048, Max: 2047, Scale: 2, Signed: true})
	// Absolute address of a two-word instruction, checked by Emit32.
	p.AddEncoder(&asm.Placeholder{ID: "$a16", Label: "ADDR", Class: asm.KindLabel})

	for _, in := range instructions {
		p.AddInstruction(in.format, in.opcode, in.mask)
	}

	p.AddWideInstruction("call  $a16", 0x940e, 0xffff)
	p.AddWideInstruction("jmp   $a16", 0x940c, 0xffff)
	p.AddWideInstruction("lds   $r0, $a16", 0x9000, 0xfe0f)
	p.AddWideInstruction("sts   $a16, $r0", 0x9200, 0xfe0f)
	return p
}

func (p *Processor) WordSize() int { return 1 }

func (p *Processor) IsPush(op uint32) bool { return op == opPush }
func (p *Processor) IsPop(op uint32) bool  { return op == opPop }

// AddressFromLabel is pc-relative for the one-word branches and absolute
// for call, jmp, lds and sts.
func (p *Processor) AddressFromLabel(f *asm.File, ins *asm.Instruction, name string, _ bool) (int64, bool) {
	l, ok := f.LookupLabel(name)
	if !ok {
		return 0, false
	}
	if ins.Is32 {
		return l + f.BaseOffset, true
	}
	return l - (f.Location() + 2), true
}

// PostProcessAbsAddress makes an external address relative to BaseOffset
// like a local label.
func (p *Processor) PostProcessAbsAddress(f *asm.File, v int64) int64 {
	return v - f.BaseOffset
}

// Emit32 encodes the 16-bit address forms: call and jmp take a word
// address, lds and sts a data address.
func (p *Processor) Emit32(ins *asm.Instruction, opcode uint32, v int64, label string) (asm.EmitResult, error) {
	addr := v
	switch ins.Name {
	case "call", "jmp":
		if v%2 != 0 {
			return asm.EmitResult{}, asm.Reject("uneven target address", label)
		}
		addr = v / 2
		if addr < 0 || addr > 0xffff {
			return asm.EmitResult{}, asm.Reject("jump out of range", label)
		}
	default:
		if addr < 0 || addr > 0xffff {
			return asm.EmitResult{}, asm.Reject("address out of range", label)
		}
	}

	return asm.EmitResult{
		Opcode:    opcode,
		Opcode2:   uint32(addr),
		Wide:      true,
		Args:      []int64{v},
		LabelName: label,
	}, nil
}

type entry struct {
	format string
	opcode uint32
	mask   uint32
}

var instructions = []entry{
	{"adc   $r0, $r1", 0x1c00, 0xfc00},
	{"add   $r0, $r1", 0x0c00, 0xfc00},
	{"adiw  $r2, $i0", 0x9600, 0xff00},
	{"and   $r0, $r1", 0x2000, 0xfc00},
	{"andi  $r3, $i1", 0x7000, 0xf000},
	{"asr   $r0", 0x9405, 0xfe0f},
	{"bclr  $r4", 0x9488, 0xff8f},
	{"bld   $r0, $r5", 0xf800, 0xfe08},
	{"brbc  $r5, $lb", 0xf400, 0xfc00},
	{"brbs  $r5, $lb", 0xf000, 0xfc00},
	{"brcc  $lb", 0xf400, 0xfc07},
	{"brcs  $lb", 0xf000, 0xfc07},
	{"break", 0x9598, 0xffff},
	{"breq  $lb", 0xf001, 0xfc07},
	{"brge  $lb", 0xf404, 0xfc07},
	{"brhc  $lb", 0xf405, 0xfc07},
	{"brhs  $lb", 0xf005, 0xfc07},
	{"brid  $lb", 0xf407, 0xfc07},
	{"brie  $lb", 0xf007, 0xfc07},
	{"brlo  $lb", 0xf000, 0xfc07},
	{"brlt  $lb", 0xf004, 0xfc07},
	{"brmi  $lb", 0xf002, 0xfc07},
	{"brne  $lb", 0xf401, 0xfc07},
	{"brpl  $lb", 0xf402, 0xfc07},
	{"brsh  $lb", 0xf400, 0xfc07},
	{"brtc  $lb", 0xf406, 0xfc07},
	{"brts  $lb", 0xf006, 0xfc07},
	{"brvc  $lb", 0xf403, 0xfc07},
	{"brvs  $lb", 0xf003, 0xfc07},
	{"bset  $r4", 0x9408, 0xff8f},
	{"bst   $r0, $r5", 0xfa00, 0xfe08},
	{"cbi   $r7, $r5", 0x9800, 0xff00},
	{"cbr   $r3, $i3", 0x7000, 0xf000},
	{"clc", 0x9488, 0xffff},
	{"clh", 0x94d8, 0xffff},
	{"cli", 0x94f8, 0xffff},
	{"cln", 0x94a8, 0xffff},
	{"clr   $r6", 0x2400, 0xfc00},
	{"cls", 0x94c8, 0xffff},
	{"clt", 0x94e8, 0xffff},
	{"clv", 0x94b8, 0xffff},
	{"clz", 0x9498, 0xffff},
	{"com   $r0", 0x9400, 0xfe0f},
	{"cp    $r0, $r1", 0x1400, 0xfc00},
	{"cpc   $r0, $r1", 0x0400, 0xfc00},
	{"cpi   $r3, $i1", 0x3000, 0xf000},
	{"cpse  $r0, $r1", 0x1000, 0xfc00},
	{"dec   $r0", 0x940a, 0xfe0f},
	{"des   $i4", 0x940b, 0xff0f},
	{"eicall", 0x9519, 0xffff},
	{"eijmp", 0x9419, 0xffff},
	{"elpm", 0x95d8, 0xffff},
	{"elpm  $r0, Z", 0x9006, 0xfe0f},
	{"elpm  $r0, Z+", 0x9007, 0xfe0f},
	{"eor   $r0, $r1", 0x2400, 0xfc00},
	{"fmul   $r10, $r11", 0x0308, 0xff88},
	{"fmuls  $r10, $r11", 0x0380, 0xff88},
	{"fmulsu $r10, $r11", 0x0388, 0xff88},
	{"icall", 0x9509, 0xffff},
	{"ijmp", 0x9409, 0xffff},
	{"in    $r0, $i5", 0xb000, 0xf800},
	{"inc   $r0", 0x9403, 0xfe0f},
	{"lac   Z, $r0", 0x9206, 0xfe0f},
	{"las   Z, $r0", 0x9205, 0xfe0f},
	{"lat   Z, $r0", 0x9207, 0xfe0f},
	{"ld    $r0, X", 0x900c, 0xfe0f},
	{"ld    $r0, X+", 0x900d, 0xfe0f},
	{"ld    $r0, -X", 0x900e, 0xfe0f},
	{"ld    $r0, Y", 0x8008, 0xfe0f},
	{"ld    $r0, Y+", 0x9009, 0xfe0f},
	{"ld    $r0, -Y", 0x900a, 0xfe0f},
	{"ld    $r0, Z", 0x8000, 0xfe0f},
	{"ld    $r0, Z+", 0x9001, 0xfe0f},
	{"ld    $r0, -Z", 0x9002, 0xfe0f},
	{"ldi   $r3, $i1", 0xe000, 0xf000},
	{"lpm", 0x95c8, 0xffff},
	{"lpm   $r0, Z", 0x9004, 0xfe0f},
	{"lpm   $r0, Z+", 0x9005, 0xfe0f},
	{"lsl   $r6", 0x0c00, 0xfc00},
	{"lsr   $r0", 0x9406, 0xfe0f},
	{"mov   $r0, $r1", 0x2c00, 0xfc00},
	{"movw  $r8, $r9", 0x0100, 0xff00},
	{"mul   $r0, $r1", 0x9c00, 0xfc00},
	{"muls  $r3, $r12", 0x0200, 0xff00},
	{"mulsu $r10, $r11", 0x0300, 0xff88},
	{"neg   $r0", 0x9401, 0xfe0f},
	{"nop", 0x0000, 0xffff},
	{"or    $r0, $r1", 0x2800, 0xfc00},
	{"ori   $r3, $i1", 0x6000, 0xf000},
	{"out   $i5, $r0", 0xb800, 0xf800},
	{"pop   $r0", opPop, 0xfe0f},
	{"push  $r0", opPush, 0xfe0f},
	{"rcall $lb11", 0xd000, 0xf000},
	{"ret", 0x9508, 0xffff},
	{"reti", 0x9518, 0xffff},
	{"rjmp  $lb11", 0xc000, 0xf000},
	{"rol   $r6", 0x1c00, 0xfc00},
	{"ror   $r0", 0x9407, 0xfe0f},
	{"sbc   $r0, $r1", 0x0800, 0xfc00},
	{"sbci  $r3, $i1", 0x4000, 0xf000},
	{"sbi   $r7, $r5", 0x9a00, 0xff00},
	{"sbic  $r7, $r5", 0x9900, 0xff00},
	{"sbis  $r7, $r5", 0x9b00, 0xff00},
	{"sbiw  $r2, $i0", 0x9700, 0xff00},
	{"sbr   $r3, $i1", 0x6000, 0xf000},
	{"sbrc  $r0, $r5", 0xfc00, 0xfe08},
	{"sbrs  $r0, $r5", 0xfe00, 0xfe08},
	{"sec", 0x9408, 0xffff},
	{"seh", 0x9458, 0xffff},
	{"sei", 0x9478, 0xffff},
	{"sen", 0x9428, 0xffff},
	{"ser   $r3", 0xef0f, 0xff0f},
	{"ses", 0x9448, 0xffff},
	{"set", 0x9468, 0xffff},
	{"sev", 0x9438, 0xffff},
	{"sez", 0x9418, 0xffff},
	{"sleep", 0x9588, 0xffff},
	{"spm", 0x95e8, 0xffff},
	{"st    X, $r0", 0x920c, 0xfe0f},
	{"st    X+, $r0", 0x920d, 0xfe0f},
	{"st    -X, $r0", 0x920e, 0xfe0f},
	{"st    Y, $r0", 0x8208, 0xfe0f},
	{"st    Y+, $r0", 0x9209, 0xfe0f},
	{"st    -Y, $r0", 0x920a, 0xfe0f},
	{"st    Z, $r0", 0x8200, 0xfe0f},
	{"st    Z+, $r0", 0x9201, 0xfe0f},
	{"st    -Z, $r0", 0x9202, 0xfe0f},
	{"sub   $r0, $r1", 0x1800, 0xfc00},
	{"subi  $r3, $i1", 0x5000, 0xf000},
	{"swap  $r0", 0x9402, 0xfe0f},
	{"tst   $r6", 0x2000, 0xfc00},
	{"wdr", 0x95a8, 0xffff},
	{"xch   Z, $r0", 0x9204, 0xfe0f},
}
