package asm

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// EncoderSet resolves operand placeholders such as "$r0" to their encoder.
type EncoderSet interface {
	Encoder(name string) Encoder
}

// Instruction is one operand-shape overload of a mnemonic bound to a fixed
// opcode and mask.
type Instruction struct {
	Name   string
	Args   []string
	Opcode uint32
	Mask   uint32
	Format string // placeholders replaced by their pretty names
	Code   string // whitespace-normalized template
	Is32   bool

	encoders []Encoder
}

var placeholderRe = regexp.MustCompile(`\$\w+`)

// NewInstruction parses a template like "adds $r0, $r1, $i3". Placeholders
// must be known to encs and opcode must lie within mask.
func NewInstruction(encs EncoderSet, format string, opcode, mask uint32, is32 bool) (*Instruction, error) {
	if opcode&mask != opcode {
		return nil, errors.Errorf("instruction %q: opcode 0x%04x has bits outside mask 0x%04x", format, opcode, mask)
	}

	words := Tokenize(format)
	if len(words) == 0 {
		return nil, errors.New("empty instruction format")
	}

	ins := &Instruction{
		Name:   words[0],
		Args:   words[1:],
		Opcode: opcode,
		Mask:   mask,
		Code:   strings.Join(strings.Fields(format), " "),
		Is32:   is32,
	}

	ins.encoders = make([]Encoder, len(ins.Args))
	for i, a := range ins.Args {
		if a[0] != '$' {
			continue
		}
		enc := encs.Encoder(a)
		if enc == nil {
			return nil, errors.Errorf("instruction %q: unknown operand %s", format, a)
		}
		ins.encoders[i] = enc
	}

	ins.Format = placeholderRe.ReplaceAllStringFunc(format, func(m string) string {
		if enc := encs.Encoder(m); enc != nil {
			return enc.Pretty()
		}
		return m
	})
	return ins, nil
}

func (ins *Instruction) String() string {
	return ins.Format
}

// EmitResult is a successful match of a line against an Instruction.
type EmitResult struct {
	Stack     int
	Opcode    uint32
	Opcode2   uint32
	Wide      bool // Opcode2 is present
	Args      []int64
	LabelName string
}

// Rejection explains why a line does not match an Instruction.
type Rejection struct {
	Msg string
	At  string
}

func (r *Rejection) Error() string {
	return fmt.Sprintf("%s at '%s'", r.Msg, r.At)
}

// Reject builds a Rejection for use by targets.
func Reject(msg, at string) error {
	return &Rejection{Msg: msg, At: at}
}

var (
	relLabelRe = regexp.MustCompile(`^[+-]?\d+$`)
	absLabelRe = regexp.MustCompile(`^0x[0-9a-fA-F]+$`)
)

// Emit matches the line's tokens against the template and encodes them.
func (ins *Instruction) Emit(f *File, ln *Line) (EmitResult, error) {
	if len(ln.Words) == 0 || ln.Words[0] != ins.Name {
		return EmitResult{}, Reject("opcode name doesn't match", "<name>")
	}
	return ins.match(f, ln)
}

// match does the work of Emit without checking the mnemonic, so error hints
// can explain operand failures of related instructions.
func (ins *Instruction) match(f *File, ln *Line) (EmitResult, error) {
	p := f.proc
	tokens := ln.Words
	tok := func(i int) string {
		if i < len(tokens) {
			return tokens[i]
		}
		return ""
	}

	r := ins.Opcode
	j := 1
	stack := 0
	var args []int64
	labelName := ""
	var wideValue int64
	wideLabel := ""

	for i, formal := range ins.Args {
		actual := tok(j)
		j++

		enc := ins.encoders[i]
		if enc == nil {
			if formal != actual {
				return EmitResult{}, Reject("expecting "+formal, actual)
			}
			continue
		}

		var v int64
		switch enc.Kind() {
		case KindRegister:
			n, ok := p.RegisterNo(actual)
			if !ok {
				return EmitResult{}, Reject("expecting register name", actual)
			}
			v = int64(n)
			if p.IsPush(ins.Opcode) {
				stack++
			} else if p.IsPop(ins.Opcode) {
				stack--
			}

		case KindImmediate:
			actual = strings.TrimPrefix(actual, "#")
			n, ok := f.ParseOneInt(actual)
			if !ok {
				return EmitResult{}, Reject("expecting number", actual)
			}
			v = n
			if p.IsAddSP(ins.Opcode) {
				stack = -int(v / int64(p.WordSize()))
			} else if p.IsSubSP(ins.Opcode) {
				stack = int(v / int64(p.WordSize()))
			}

		case KindRegList:
			if actual != "{" {
				return EmitResult{}, Reject("expecting {", actual)
			}
			for tok(j) != "}" {
				actual = tok(j)
				j++
				if actual == "" {
					return EmitResult{}, Reject("expecting }", tok(j-2))
				}
				n, ok := p.RegisterNo(actual)
				if !ok {
					return EmitResult{}, Reject("expecting register name", actual)
				}
				if v&(1<<n) != 0 {
					return EmitResult{}, Reject("duplicate register name", actual)
				}
				v |= 1 << n
				if p.IsPush(ins.Opcode) {
					stack++
				} else if p.IsPop(ins.Opcode) {
					stack--
				}
				if tok(j) == "," {
					j++
				}
			}
			actual = tok(j)
			j++

		case KindLabel:
			actual = strings.TrimPrefix(actual, "#")
			switch {
			case relLabelRe.MatchString(actual):
				n, err := strconv.ParseInt(actual, 10, 64)
				if err != nil {
					return EmitResult{}, Reject("expecting number", actual)
				}
				v = n
				labelName = "rel" + strconv.FormatInt(v, 10)
			case absLabelRe.MatchString(actual):
				n, err := strconv.ParseInt(actual[2:], 16, 64)
				if err != nil {
					return EmitResult{}, Reject("expecting number", actual)
				}
				v = n
				labelName = "abs" + strconv.FormatInt(v, 10)
			default:
				labelName = actual
				n, ok := p.AddressFromLabel(f, ins, actual, enc.WordAligned())
				if !ok {
					if f.finalEmit {
						return EmitResult{}, Reject("unknown label", actual)
					}
					n = p.SpeculativeLabel(enc)
				}
				v = n
			}
			if ins.Is32 {
				wideValue = v
				wideLabel = actual
				continue
			}
		}

		args = append(args, v)

		bits, ok := enc.Encode(v)
		if !ok {
			return EmitResult{}, Reject("argument out of range or mis-aligned", actual)
		}
		if r&bits != 0 {
			panic(fmt.Sprintf("asm: %q: operand %s overlaps opcode bits 0x%04x", ins.Code, formal, r&bits))
		}
		r |= bits
	}

	if t := tok(j); t != "" {
		return EmitResult{}, Reject("trailing tokens", t)
	}

	if ins.Is32 {
		return p.Emit32(ins, r, wideValue, f.normalizeExternal(wideLabel))
	}

	return EmitResult{
		Stack:     stack,
		Opcode:    r,
		Args:      args,
		LabelName: f.normalizeExternal(labelName),
	}, nil
}
