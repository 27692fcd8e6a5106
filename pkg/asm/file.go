package asm

import (
	"fmt"
	"strings"

	"github.com/golang/glog"
)

// DefaultPeepholePasses bounds the peephole loop.
const DefaultPeepholePasses = 5

// File is one assembly session. Configure the exported fields, call Emit
// once, then read Buf, Labels and Errors.
type File struct {
	BaseOffset        int64
	CheckStack        bool
	InlineMode        bool // labels starting with '_' are reserved
	ThrowOnError      bool // stop at the first error
	DisablePeephole   bool
	MaxPeepholePasses int

	// LookupExternalLabel resolves symbols defined outside this file to
	// absolute addresses.
	LookupExternalLabel    func(name string) (int64, bool)
	NormalizeExternalLabel func(name string) string
	// Lines in scopes with this prefix are never optimized.
	ExternalScopePrefix string
	// CommBaseSymbol is the external symbol giving the start of the .comm area.
	CommBaseSymbol string

	proc  Processor
	lines []*Line

	scopeNames []string
	scopeIDs   map[string]int
	scope      Scope
	lineNo     int
	realLineNo int

	current         *Line
	finalEmit       bool
	reallyFinalEmit bool
	stackCheck      bool
	strict          bool
	halted          bool
	emitted         bool

	labels       map[LabelKey]int64
	stackAtLabel map[LabelKey]int
	stackMarks   map[string]int
	stack        int
	commPtr      int64

	buf       []uint16
	sourceMap map[int64]int
	errors    Errors

	peepOps   int
	peepDel   int
	peepRules map[string]int
	conv      Convergence
	stats     []string
}

// NewFile returns a session assembling for p.
func NewFile(p Processor) *File {
	return &File{
		CheckStack:          true,
		MaxPeepholePasses:   DefaultPeepholePasses,
		ExternalScopePrefix: "user",
		CommBaseSymbol:      "_comm_base",
		proc:                p,
		scopeNames:          []string{""},
		scopeIDs:            make(map[string]int),
		labels:              make(map[LabelKey]int64),
		stackAtLabel:        make(map[LabelKey]int),
		stackMarks:          make(map[string]int),
		sourceMap:           make(map[int64]int),
	}
}

// Processor returns the target the file assembles for.
func (f *File) Processor() Processor { return f.proc }

// Emit assembles text. It returns Errors when any diagnostic was produced,
// in which case the buffer must not be used.
func (f *File) Emit(text string) error {
	if f.emitted {
		panic("asm: File.Emit called twice")
	}
	f.emitted = true

	f.lex(text)
	if f.failed() {
		return f.errors
	}
	glog.V(1).Infof("lexed %d lines", len(f.lines))

	f.clearLabels()
	f.pass()
	if f.stackCheck && f.stack != 0 {
		f.directiveError("stack misaligned at the end of the file")
	}
	if f.failed() {
		return f.errors
	}

	f.proc.ExpandLiterals(f)
	f.clearLabels()
	f.pass()

	f.finalEmit = true
	f.reallyFinalEmit = f.DisablePeephole
	f.pass()
	if f.failed() {
		return f.errors
	}

	if !f.DisablePeephole {
		f.optimize()
	}
	if f.failed() {
		return f.errors
	}
	return nil
}

func (f *File) failed() bool {
	return len(f.errors) > 0
}

func (f *File) clearLabels() {
	f.labels = make(map[LabelKey]int64)
	f.commPtr = 0
}

// pass resolves every line once from scratch.
func (f *File) pass() {
	glog.V(1).Infof("pass final=%v reallyFinal=%v over %d lines", f.finalEmit, f.reallyFinalEmit, len(f.lines))

	f.stack = 0
	f.buf = nil
	f.stackMarks = make(map[string]int)
	f.stackCheck = f.CheckStack
	f.sourceMap = make(map[int64]int)

	for _, l := range f.lines {
		if f.stopped() {
			return
		}
		f.current = l
		l.Location = f.Location()
		if len(l.Words) == 0 {
			continue
		}
		switch l.Kind {
		case LineLabel:
			f.defineLabel(l)
		case LineDirective:
			before := f.Location()
			f.handleDirective(l)
			if f.Location() > before {
				f.sourceMap[before+f.BaseOffset] = l.LineNo
			}
		case LineInstruction:
			f.handleInstruction(l)
		}
	}
}

func (f *File) defineLabel(l *Line) {
	key := f.labelKey(l.Words[0])
	loc := f.Location()
	l.Location = loc

	if f.finalEmit {
		curr, ok := f.labels[key]
		if f.failed() {
			return
		}
		if !ok {
			panic(fmt.Sprintf("asm: label %s vanished in final pass", f.LabelName(key)))
		}
		if curr != loc {
			panic(fmt.Sprintf("asm: label %s moved from 0x%x to 0x%x in final pass", f.LabelName(key), curr, loc))
		}
		if f.reallyFinalEmit {
			f.stackAtLabel[key] = f.stack
		}
		return
	}

	switch {
	case f.hasLabel(key):
		f.directiveError("label redefinition")
	case f.InlineMode && strings.HasPrefix(key.Name, "_"):
		f.directiveError("labels starting with '_' are reserved for the compiler")
	default:
		f.labels[key] = loc
		glog.V(2).Infof("label %s = 0x%x", f.LabelName(key), loc)
	}
}

func (f *File) hasLabel(key LabelKey) bool {
	_, ok := f.labels[key]
	return ok
}

func (f *File) handleInstruction(l *Line) {
	if l.Instruction != nil {
		if f.tryInstruction(l, l.Instruction) {
			return
		}
	} else {
		for _, ins := range f.proc.Instructions(l.Words[0]) {
			if f.tryInstruction(l, ins) {
				return
			}
		}
	}

	w0 := strings.TrimSuffix(strings.ToLower(l.Words[0]), "s")
	w0 = strings.Map(func(r rune) rune {
		if r >= 'a' && r <= 'z' {
			return r
		}
		return -1
	}, w0)

	var hints strings.Builder
	candidates := append(append([]*Instruction{}, f.proc.Instructions(w0)...), f.proc.Instructions(w0+"s")...)
	for _, ins := range candidates {
		_, err := ins.match(f, l)
		rej, ok := err.(*Rejection)
		if !ok {
			rej = &Rejection{Msg: "opcode name doesn't match", At: l.Words[0]}
		}
		fmt.Fprintf(&hints, "   Maybe: %s (%s at '%s')\n", ins, rej.Msg, rej.At)
	}

	f.pushError("assembly error", hints.String())
}

func (f *File) tryInstruction(l *Line, ins *Instruction) bool {
	res, err := ins.Emit(f, l)
	if err != nil {
		return false
	}

	f.stack += res.Stack
	if f.stackCheck && f.stack < 0 {
		f.pushError("stack underflow", "")
	}

	l.Location = f.Location()
	l.Opcode = res.Opcode
	l.Stack = res.Stack
	f.sourceMap[l.Location+f.BaseOffset] = l.LineNo
	f.emitWord(res.Opcode)
	if res.Wide {
		f.emitWord(res.Opcode2)
	}
	l.Instruction = ins
	l.Args = res.Args
	return true
}

func (f *File) emitWord(op uint32) {
	if op > 0xffff {
		panic(fmt.Sprintf("asm: word 0x%x does not fit 16 bits", op))
	}
	f.buf = append(f.buf, uint16(op))
}

// Location is the byte offset of the next word relative to BaseOffset.
func (f *File) Location() int64 {
	return int64(len(f.buf)) * 2
}

// Lines returns the current line sequence.
func (f *File) Lines() []*Line { return f.lines }

// SetLines replaces the line sequence. Only ExpandLiterals may call it.
func (f *File) SetLines(lines []*Line) { f.lines = lines }

// Buf returns the encoded words.
func (f *File) Buf() []uint16 { return f.buf }

// Bytes returns the encoded words in little-endian byte order.
func (f *File) Bytes() []byte { return WordsToBytes(f.buf) }

// Errors returns every diagnostic produced so far.
func (f *File) Errors() Errors { return f.errors }

// Convergence returns the result of the peephole loop.
func (f *File) Convergence() Convergence { return f.conv }

// Labels returns the absolute address of every label.
func (f *File) Labels() map[LabelKey]int64 {
	out := make(map[LabelKey]int64, len(f.labels))
	for k, v := range f.labels {
		out[k] = v + f.BaseOffset
	}
	return out
}

// LabelsByName is Labels keyed by rendered name: "name" for globals and
// "scope$.name" for local labels.
func (f *File) LabelsByName() map[string]int64 {
	out := make(map[string]int64, len(f.labels))
	for k, v := range f.labels {
		out[f.LabelName(k)] = v + f.BaseOffset
	}
	return out
}

// StackAtLabel returns the stack depth recorded at each label by the last
// pass.
func (f *File) StackAtLabel() map[LabelKey]int { return f.stackAtLabel }

// SourceMap maps the absolute address of each emitting line to its line
// number.
func (f *File) SourceMap() map[int64]int { return f.sourceMap }

// LabelName renders a label key.
func (f *File) LabelName(k LabelKey) string {
	if k.Scope == 0 {
		return k.Name
	}
	return f.scopeLabel(Scope{ID: k.Scope, Name: f.scopeNames[k.Scope]}) + "$" + k.Name
}

func (f *File) scopeLabel(s Scope) string {
	switch {
	case s.ID == 0:
		return ""
	case s.Name == "":
		return fmt.Sprintf("$S%d", s.ID)
	default:
		return s.Name
	}
}

func (f *File) normalizeExternal(name string) string {
	if f.NormalizeExternalLabel == nil {
		return name
	}
	return f.NormalizeExternalLabel(name)
}
