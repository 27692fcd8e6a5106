package asm

import (
	"regexp"
	"strconv"
	"strings"
)

var stringDirectiveRe = regexp.MustCompile(`^\s*([\w\.]+\s*:\s*)?.\w+\s+(".*")\s*$`)

var hexWordRe = regexp.MustCompile(`(?i)^[a-f0-9]+$`)

func (f *File) handleDirective(l *Line) {
	words := l.Words

	expectOne := func() {
		if len(words) != 2 {
			f.directiveError("expecting one argument")
		}
	}

	switch words[0] {
	case ".ascii", ".asciz", ".string":
		f.emitString(l.Text)

	case ".align":
		expectOne()
		n, ok := f.ParseOneInt(l.Word(1))
		switch {
		case !ok:
			f.directiveError("expecting number")
		case n == 0:
		case n >= 1 && n <= 4:
			f.align(1 << n)
		default:
			f.directiveError("expecting 1, 2, 3 or 4 (for 2, 4, 8, or 16 byte alignment)")
		}

	case ".balign":
		expectOne()
		n, ok := f.ParseOneInt(l.Word(1))
		switch {
		case !ok:
			f.directiveError("expecting number")
		case n == 1:
		case n == 2 || n == 4 || n == 8 || n == 16:
			f.align(n)
		default:
			f.directiveError("expecting 2, 4, 8, or 16")
		}

	case ".p2align":
		expectOne()
		n, ok := f.ParseOneInt(l.Word(1))
		switch {
		case !ok:
			f.directiveError("expecting number")
		case n >= 0 && n <= 4:
			f.align(1 << n)
		default:
			f.directiveError("expecting 0 to 4")
		}

	case ".byte":
		f.emitBytes(words)

	case ".hex":
		f.emitHex(words)

	case ".hword", ".short", ".2bytes":
		for _, n := range f.parseNumbers(words) {
			if n < -0x8000 || n > 0xffff {
				f.directiveError("expecting int16")
				continue
			}
			f.emitWord(uint32(n & 0xffff))
		}

	case ".word", ".4bytes", ".long":
		for _, n := range f.parseNumbers(words) {
			if n < -0x80000000 || n > 0xffffffff {
				f.directiveError("expecting int32")
				continue
			}
			f.emitWord(uint32(n & 0xffff))
			f.emitWord(uint32((n >> 16) & 0xffff))
		}

	case ".skip", ".space":
		f.emitSpace(words)

	case ".comm":
		f.emitComm(words)

	case "@stackmark":
		expectOne()
		f.stackMarks[l.Word(1)] = f.stack

	case "@stackempty":
		if !f.stackCheck {
			break
		}
		mark, ok := f.stackMarks[l.Word(1)]
		if !ok {
			f.directiveError("no such saved stack")
		} else if mark != f.stack {
			f.directiveError("stack mismatch")
		}

	case "@scope":
		// resolved while lexing

	case ".syntax", "@nostackcheck":
		f.stackCheck = false

	case "@dummystack":
		expectOne()
		n, ok := f.ParseOneInt(l.Word(1))
		if !ok {
			f.directiveError("expecting number")
			break
		}
		f.stack += int(n)

	case ".section", ".global":
		f.stackMarks = make(map[string]int)
		f.stack = 0

	case ".file", ".text", ".cpu", ".fpu", ".eabi_attribute", ".code", ".thumb_func",
		".type", ".fnstart", ".save", ".size", ".fnend", ".pad", ".globl", ".local", "@":

	default:
		if !strings.HasPrefix(words[0], ".cfi_") {
			f.directiveError("unknown directive")
		}
	}
}

func (f *File) align(n int64) {
	for f.Location()%n != 0 {
		f.emitWord(0)
	}
}

func (f *File) emitString(text string) {
	m := stringDirectiveRe.FindStringSubmatch(text)
	if m == nil {
		f.directiveError("expecting string")
		return
	}
	s, ok := parseString(m[2])
	if !ok {
		f.directiveError("expecting string")
		return
	}

	f.align(2)
	byteAt := func(i int) uint32 {
		if i < len(s) {
			return uint32(s[i])
		}
		return 0
	}
	// len(s)+1 for the NUL terminator
	for i := 0; i < len(s)+1; i += 2 {
		f.emitWord(byteAt(i+1)<<8 | byteAt(i))
	}
}

var (
	plainEscapeRe = regexp.MustCompile(`\\(['?])`)
	nulEscapeRe   = regexp.MustCompile(`\\[z0]`)
)

// parseString decodes a double-quoted literal with C escapes, including
// \0, \z (NUL), \' and \?.
func parseString(s string) (string, bool) {
	s = strings.ReplaceAll(s, `\\`, `\B`)
	s = plainEscapeRe.ReplaceAllString(s, "$1")
	s = nulEscapeRe.ReplaceAllString(s, `\x00`)
	s = strings.ReplaceAll(s, `\B`, `\\`)
	out, err := strconv.Unquote(s)
	if err != nil {
		return "", false
	}
	return out, true
}

func (f *File) parseNumbers(words []string) []int64 {
	words = words[1:]
	var nums []int64
	for {
		if len(words) == 0 {
			f.directiveError("cannot parse number at ''")
			break
		}
		n, ok := f.ParseOneInt(words[0])
		if !ok {
			f.directiveError("cannot parse number at '%s'", words[0])
			break
		}
		nums = append(nums, n)
		words = words[1:]

		if len(words) == 0 {
			break
		}
		if words[0] != "," {
			f.directiveError("expecting number, got '%s'", words[0])
			break
		}
		words = words[1:]
		if len(words) == 0 {
			break
		}
	}
	return nums
}

func (f *File) emitSpace(words []string) {
	nums := f.parseNumbers(words)
	if len(nums) == 1 {
		nums = append(nums, 0)
	}
	switch {
	case len(nums) != 2:
		f.directiveError("expecting one or two numbers")
	case nums[0]%2 != 0:
		f.directiveError("only even space supported")
	default:
		fill := uint32(nums[1] & 0xff)
		fill |= fill << 8
		for i := int64(0); i < nums[0]; i += 2 {
			f.emitWord(fill)
		}
	}
}

func (f *File) emitBytes(words []string) {
	nums := f.parseNumbers(words)
	if len(nums)%2 != 0 {
		f.directiveError(".bytes needs an even number of arguments")
		nums = append(nums, 0)
	}
	for i := 0; i < len(nums); i += 2 {
		n0, n1 := nums[i], nums[i+1]
		if n0 < 0 || n0 > 0xff || n1 < 0 || n1 > 0xff {
			f.directiveError("expecting uint8")
			continue
		}
		f.emitWord(uint32(n0 | n1<<8))
	}
}

func (f *File) emitHex(words []string) {
	for _, w := range words[1:] {
		switch {
		case w == ",":
		case len(w)%4 != 0:
			f.directiveError(".hex needs an even number of bytes")
		case !hexWordRe.MatchString(w):
			f.directiveError(".hex needs a hex number")
		default:
			for i := 0; i < len(w); i += 4 {
				n, _ := strconv.ParseUint(w[i:i+4], 16, 16)
				f.emitWord(uint32((n&0xff)<<8 | (n>>8)&0xff))
			}
		}
	}
}

// emitComm allocates a common symbol: .comm name, size[, align].
func (f *File) emitComm(words []string) {
	var args []string
	for _, w := range words[1:] {
		if w != "," {
			args = append(args, w)
		}
	}
	if len(args) < 2 {
		f.directiveError("expecting name and size")
		return
	}

	size, ok := f.ParseOneInt(args[1])
	if !ok {
		f.directiveError("expecting number")
		return
	}
	align := int64(4)
	if len(args) > 2 {
		if align, ok = f.ParseOneInt(args[2]); !ok || align <= 0 {
			f.directiveError("expecting positive alignment")
			return
		}
	}

	if _, ok := f.LookupLabel(args[0]); ok {
		return
	}
	if f.commPtr == 0 {
		if f.LookupExternalLabel != nil {
			f.commPtr, _ = f.LookupExternalLabel(f.CommBaseSymbol)
		}
		if f.commPtr == 0 {
			f.directiveError("%s not defined", f.CommBaseSymbol)
			return
		}
	}
	for f.commPtr&(align-1) != 0 {
		f.commPtr++
	}
	f.labels[f.labelKey(args[0])] = f.commPtr - f.BaseOffset
	f.commPtr += size
}
