package asm

import (
	"fmt"
	"strings"
)

// Processor is the architecture-specific half of the assembler. A Processor
// is shared read-only between Files and must be safe for concurrent use.
type Processor interface {
	EncoderSet

	WordSize() int
	Instructions(mnemonic string) []*Instruction
	RegisterNo(name string) (int, bool)

	IsPush(opcode uint32) bool
	IsPop(opcode uint32) bool
	IsAddSP(opcode uint32) bool
	IsSubSP(opcode uint32) bool

	// Emit32 finishes a two-word instruction. opcode holds the bits of
	// every operand except the label, whose value is v.
	Emit32(ins *Instruction, opcode uint32, v int64, label string) (EmitResult, error)

	// AddressFromLabel returns the operand value for a label reference
	// from the current location, or false when the label is unknown.
	AddressFromLabel(f *File, ins *Instruction, name string, wordAligned bool) (int64, bool)
	PostProcessRelAddress(f *File, v int64) int64
	PostProcessAbsAddress(f *File, v int64) int64

	ComputeStackOffset(mark string, off int) int
	ToFnPtr(v, base int64, label string) int64

	// SpeculativeLabel is used for an unknown label operand before the
	// final pass. It must encode with enc and select the largest form.
	SpeculativeLabel(enc Encoder) int64
	// SpeculativeValue stands in for an unknown label in an expression.
	SpeculativeValue() int64

	// Peephole inspects a window of consecutive non-empty lines. It returns
	// the name of the rule that fired and the replacement text per slot.
	Peephole(ln, next, next2 *Line) (rule string, rw []Rewrite)

	// ExpandLiterals may rewrite f's lines after the first pass.
	ExpandLiterals(f *File)
}

// UserRules is implemented by processors whose peephole rules come from
// user input. A pass those rules leave unbalanced is reported as an error
// instead of a panic.
type UserRules interface {
	UserRules() bool
}

// Rewrite replaces the line in window Slot (0, 1 or 2) with Text. An empty
// Text deletes the line.
type Rewrite struct {
	Slot int
	Text string
}

// Base holds the encoder and instruction tables of a target and supplies
// default hooks. Targets embed it and add WordSize.
type Base struct {
	Registers map[string]int

	encoders     map[string]Encoder
	instructions map[string][]*Instruction
}

// AddEncoder registers enc under its name.
func (b *Base) AddEncoder(enc Encoder) Encoder {
	if b.encoders == nil {
		b.encoders = make(map[string]Encoder)
	}
	b.encoders[enc.Name()] = enc
	return enc
}

// AddInstruction registers a 16-bit instruction. A malformed template is a
// table bug and panics.
func (b *Base) AddInstruction(format string, opcode, mask uint32) *Instruction {
	return b.add(format, opcode, mask, false)
}

// AddWideInstruction registers a two-word instruction finished by Emit32.
func (b *Base) AddWideInstruction(format string, opcode, mask uint32) *Instruction {
	return b.add(format, opcode, mask, true)
}

func (b *Base) add(format string, opcode, mask uint32, is32 bool) *Instruction {
	ins, err := NewInstruction(b, format, opcode, mask, is32)
	if err != nil {
		panic(err)
	}
	if b.instructions == nil {
		b.instructions = make(map[string][]*Instruction)
	}
	b.instructions[ins.Name] = append(b.instructions[ins.Name], ins)
	return ins
}

func (b *Base) Encoder(name string) Encoder {
	return b.encoders[name]
}

func (b *Base) Instructions(mnemonic string) []*Instruction {
	return b.instructions[mnemonic]
}

// AllInstructions returns every registered instruction.
func (b *Base) AllInstructions() []*Instruction {
	var all []*Instruction
	for _, list := range b.instructions {
		all = append(all, list...)
	}
	return all
}

func (b *Base) RegisterNo(name string) (int, bool) {
	n, ok := b.Registers[strings.ToLower(name)]
	return n, ok
}

func (b *Base) IsPush(uint32) bool  { return false }
func (b *Base) IsPop(uint32) bool   { return false }
func (b *Base) IsAddSP(uint32) bool { return false }
func (b *Base) IsSubSP(uint32) bool { return false }

func (b *Base) Emit32(ins *Instruction, _ uint32, _ int64, label string) (EmitResult, error) {
	return EmitResult{}, Reject(fmt.Sprintf("%s: no 32-bit encoding", ins.Name), label)
}

func (b *Base) AddressFromLabel(*File, *Instruction, string, bool) (int64, bool) {
	return 0, false
}

func (b *Base) PostProcessRelAddress(_ *File, v int64) int64 { return v }
func (b *Base) PostProcessAbsAddress(_ *File, v int64) int64 { return v }

func (b *Base) ComputeStackOffset(_ string, off int) int { return off }

func (b *Base) ToFnPtr(v, _ int64, _ string) int64 { return v }

func (b *Base) SpeculativeLabel(Encoder) int64 { return 8 }
func (b *Base) SpeculativeValue() int64        { return 33333 }

func (b *Base) Peephole(_, _, _ *Line) (string, []Rewrite) { return "", nil }

func (b *Base) ExpandLiterals(*File) {}
