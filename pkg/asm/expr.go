package asm

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	digitsRe    = regexp.MustCompile(`^\d+$`)
	shiftRe     = regexp.MustCompile(`^(.*)>>(\d+)$`)
	hexRe       = regexp.MustCompile(`(?i)^0x([a-f0-9]+)$`)
	binRe       = regexp.MustCompile(`(?i)^0b([01]+)$`)
	stackRefRe  = regexp.MustCompile(`^(\w+)@(-?\d+)$`)
	byteSplitRe = regexp.MustCompile(`^(.*)@(hi|lo|fn)$`)
)

// ParseOneInt evaluates an operand expression: decimal, 0x and 0b literals,
// unary sign, '*' products, the |1 -1 +1 and >>N suffixes, saved stack
// references name@N, label@hi, label@lo, label@fn and bare labels.
func (f *File) ParseOneInt(s string) (int64, bool) {
	if s == "" {
		return 0, false
	}
	if digitsRe.MatchString(s) {
		return parseInt(s, 10)
	}

	mul := int64(1)
	for {
		i := strings.IndexByte(s, '*')
		if i < 0 {
			break
		}
		v, ok := f.ParseOneInt(s[:i])
		if !ok {
			return 0, false
		}
		mul *= v
		s = s[i+1:]
	}

	if strings.HasPrefix(s, "-") {
		mul = -mul
		s = s[1:]
	} else if strings.HasPrefix(s, "+") {
		s = s[1:]
	}

	if digitsRe.MatchString(s) {
		v, ok := parseInt(s, 10)
		return mul * v, ok
	}

	if len(s) > 2 {
		inner, suffix := s[:len(s)-2], s[len(s)-2:]
		switch suffix {
		case "|1", "-1", "+1":
			if v, ok := f.ParseOneInt(inner); ok {
				switch suffix {
				case "|1":
					v |= 1
				case "-1":
					v--
				case "+1":
					v++
				}
				return mul * v, true
			}
		}
	}

	if m := shiftRe.FindStringSubmatch(s); m != nil {
		left, ok := f.ParseOneInt(m[1])
		if !ok {
			return 0, false
		}
		left &^= f.BaseOffset &^ 0xffffff
		n, _ := strconv.Atoi(m[2])
		return mul * (left >> n), true
	}

	var v int64
	have := false

	if m := hexRe.FindStringSubmatch(s); m != nil {
		v, have = parseInt(m[1], 16)
	} else if m := binRe.FindStringSubmatch(s); m != nil {
		v, have = parseInt(m[1], 2)
	}

	if strings.Contains(s, "@") {
		if m := stackRefRe.FindStringSubmatch(s); m != nil {
			if mul != 1 {
				f.directiveError("multiplication not supported with saved stacks")
			}
			if mark, ok := f.stackMarks[m[1]]; ok {
				n, _ := strconv.Atoi(m[2])
				off := f.proc.ComputeStackOffset(m[1], f.stack-mark+n)
				v, have = int64(f.proc.WordSize()*off), true
			} else {
				f.directiveError("saved stack not found")
			}
		}

		if m := byteSplitRe.FindStringSubmatch(s); m != nil && looksLikeLabel(m[1]) {
			if lv, ok := f.lookupLabel(m[1], true); ok {
				switch m[2] {
				case "fn":
					v, have = f.proc.ToFnPtr(lv, f.BaseOffset, m[1]), true
				default:
					lv >>= 1
					if lv < 0 || lv > 0xffff {
						f.directiveError("@hi/lo out of range")
						return 0, false
					}
					if m[2] == "hi" {
						v = (lv >> 8) & 0xff
					} else {
						v = lv & 0xff
					}
					have = true
				}
			}
		}
	}

	if !have && looksLikeLabel(s) {
		if lv, ok := f.lookupLabel(s, true); ok {
			if f.proc.PostProcessRelAddress(f, 1) == 1 {
				lv += f.BaseOffset
			}
			v, have = lv, true
		}
	}

	if !have {
		return 0, false
	}
	return v * mul, true
}

func parseInt(s string, base int) (int64, bool) {
	v, err := strconv.ParseInt(s, base, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// LookupLabel resolves name from the current line's scope, falling back to
// the external resolver.
func (f *File) LookupLabel(name string) (int64, bool) {
	return f.lookupLabel(name, false)
}

// lookupLabel with direct set reports an unknown label in the final pass and
// returns the speculative value before it.
func (f *File) lookupLabel(name string, direct bool) (int64, bool) {
	if v, ok := f.labels[f.labelKey(name)]; ok {
		return f.proc.PostProcessRelAddress(f, v), true
	}
	if f.LookupExternalLabel != nil {
		if v, ok := f.LookupExternalLabel(name); ok {
			return f.proc.PostProcessAbsAddress(f, v), true
		}
	}
	if !direct {
		return 0, false
	}
	if f.finalEmit {
		f.directiveError("unknown label: %s", name)
		return 0, false
	}
	return f.proc.SpeculativeValue(), true
}

func (f *File) labelKey(name string) LabelKey {
	if strings.HasPrefix(name, ".") && f.current != nil {
		return LabelKey{Scope: f.current.Scope.ID, Name: name}
	}
	return LabelKey{Name: name}
}
