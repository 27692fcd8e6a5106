package asm

import (
	"regexp"
	"strings"
)

type LineKind int

const (
	LineEmpty LineKind = iota
	LineLabel
	LineDirective
	LineInstruction
)

func (k LineKind) String() string {
	switch k {
	case LineLabel:
		return "label"
	case LineDirective:
		return "directive"
	case LineInstruction:
		return "instruction"
	default:
		return "empty"
	}
}

// Scope is a namespace for labels starting with a dot. ID 0 is the root.
// Anonymous scopes opened by .section and .global have an empty Name.
type Scope struct {
	ID   int
	Name string
}

// LabelKey identifies a label. Global labels always use scope 0.
type LabelKey struct {
	Scope int
	Name  string
}

// Line is one classified unit of source. Text, Words, Kind, Scope and LineNo
// never change; the remaining fields are recomputed by every pass.
type Line struct {
	Text   string
	Words  []string
	Kind   LineKind
	Scope  Scope
	LineNo int

	Location    int64
	Instruction *Instruction
	Args        []int64
	Opcode      uint32
	Stack       int
}

// Op returns the bound instruction's mnemonic, or "" when unbound.
func (l *Line) Op() string {
	if l == nil || l.Instruction == nil {
		return ""
	}
	return l.Instruction.Name
}

// OpExt returns the bound instruction's normalized template.
func (l *Line) OpExt() string {
	if l == nil || l.Instruction == nil {
		return ""
	}
	return l.Instruction.Code
}

// Arg returns the i-th decoded operand, or 0 when there is none.
func (l *Line) Arg(i int) int64 {
	if l == nil || i >= len(l.Args) {
		return 0
	}
	return l.Args[i]
}

// Word returns the i-th token, or "".
func (l *Line) Word(i int) string {
	if l == nil || i >= len(l.Words) {
		return ""
	}
	return l.Words[i]
}

// rewrite returns the replacement for l carrying text, annotated with the
// source it replaces. An empty text deletes the line.
func (l *Line) rewrite(text string) *Line {
	text = strings.TrimLeft(text, " \t")
	s := "    "
	if text != "" {
		s += text + "      "
	}
	n := &Line{
		Text:   s + "; WAS: " + strings.TrimSpace(l.Text),
		Words:  Tokenize(text),
		Scope:  l.Scope,
		LineNo: l.LineNo,
	}
	n.Kind = classify(n.Words)
	return n
}

func classify(words []string) LineKind {
	if len(words) == 0 {
		return LineEmpty
	}
	if c := words[0][0]; c == '.' || c == '@' {
		return LineDirective
	}
	return LineInstruction
}

// Tokenize splits a line into tokens. The characters [ ] ! { } , are tokens
// on their own and ; starts a comment.
func Tokenize(line string) []string {
	var words []string
	start := -1
	flush := func(i int) {
		if start >= 0 {
			words = append(words, line[start:i])
			start = -1
		}
	}

loop:
	for i := 0; i < len(line); i++ {
		switch c := line[i]; c {
		case '[', ']', '!', '{', '}', ',':
			flush(i)
			words = append(words, line[i:i+1])
		case ' ', '\t', '\r', '\n':
			flush(i)
		case ';':
			flush(i)
			break loop
		default:
			if start < 0 {
				start = i
			}
		}
	}
	if start >= 0 {
		words = append(words, line[start:])
	}
	return words
}

var labelDefRe = regexp.MustCompile(`^([\.\w]+):$`)

var (
	registerLikeRe = regexp.MustCompile(`(?i)^(r\d|pc|sp|lr)$`)
	labelLikeRe    = regexp.MustCompile(`^[\.a-zA-Z_][\.:\w+]*$`)
)

func looksLikeLabel(name string) bool {
	if registerLikeRe.MatchString(name) {
		return false
	}
	return labelLikeRe.MatchString(name)
}
