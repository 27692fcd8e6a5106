package thumb

import (
	"strconv"
	"strings"

	"retasm/pkg/asm"
)

const (
	lrBit = 1 << 14
	pcBit = 1 << 15
)

// Peephole applies the first matching rule to the window starting at ln.
func (p *Processor) Peephole(ln, next, next2 *asm.Line) (string, []asm.Rewrite) {
	op := ln.Op()
	nextOp := next.Op()

	skipBranch := false
	if op == "bne" || op == "beq" {
		if nextOp == "b" && ln.Arg(0) == 0 {
			skipBranch = true
		}
		if nextOp == "bb" && ln.Arg(0) == 2 {
			skipBranch = true
		}
	}

	switch {
	case op == "bb" && fits(p.lb11, ln):
		// bb .x -> b .x
		return "bb-to-b", []asm.Rewrite{{Slot: 0, Text: "b " + ln.Word(1)}}

	case op == "b" && ln.Arg(0) == -2:
		// b .x; .x: -> .x:
		return "branch-to-next", []asm.Rewrite{{Slot: 0}}

	case op == "bne" && skipBranch && fits(p.lb, next):
		// bne .n; b .x; .n: -> beq .x
		return "invert-skip-branch", []asm.Rewrite{{Slot: 0, Text: "beq " + next.Word(1)}, {Slot: 1}}

	case op == "beq" && skipBranch && fits(p.lb, next):
		return "invert-skip-branch", []asm.Rewrite{{Slot: 0, Text: "bne " + next.Word(1)}, {Slot: 1}}

	case op == "push" && ln.Arg(0) == lrBit && nextOp == "push" && next.Arg(0)&lrBit == 0:
		// push {lr}; push {X} -> push {lr, X}
		return "merge-push", []asm.Rewrite{{Slot: 0, Text: strings.Replace(next.Text, "{", "{lr, ", 1)}, {Slot: 1}}

	case op == "pop" && nextOp == "pop" && next.Arg(0) == pcBit:
		// pop {X}; pop {pc} -> pop {X, pc}
		return "merge-pop", []asm.Rewrite{{Slot: 0, Text: strings.Replace(ln.Text, "}", ", pc}", 1)}, {Slot: 1}}

	case op == "push" && nextOp == "pop" && ln.Arg(0) == next.Arg(0):
		// push {X}; pop {X} ->
		return "push-pop", []asm.Rewrite{{Slot: 0}, {Slot: 1}}

	case op == "push" && nextOp == "pop" && len(ln.Words) == 4 && len(next.Words) == 4:
		// push {rX}; pop {rY} -> mov rY, rX
		return "push-pop-mov", []asm.Rewrite{{Slot: 0, Text: "mov " + next.Word(2) + ", " + ln.Word(2)}, {Slot: 1}}

	case next2 != nil && ln.OpExt() == "movs $r5, $i0" && next.OpExt() == "mov $r2, $r3" &&
		ln.Arg(0) == next.Arg(1) && next.Arg(0) < 8 && clobbersReg(next2, ln.Arg(0)):
		// movs rX, #V; mov rY, rX; clobber rX -> movs rY, #V
		return "movs-mov", []asm.Rewrite{{Slot: 0, Text: "movs r" + itoa(next.Arg(0)) + ", #" + itoa(ln.Arg(1))}, {Slot: 1}}

	case op == "pop" && singleReg(ln) >= 0 && singleReg(ln) < 8 && nextOp == "push" && singleReg(ln) == singleReg(next):
		// pop {rX}; push {rX} -> ldr rX, [sp, #0]
		return "pop-push-ldr", []asm.Rewrite{{Slot: 0, Text: "ldr r" + itoa(singleReg(ln)) + ", [sp, #0]"}, {Slot: 1}}

	case op == "push" && next.OpExt() == "ldr $r5, [sp, $i1]" && singleReg(ln) == next.Arg(0) && next.Arg(1) == 0:
		// push {rX}; ldr rX, [sp, #0] -> push {rX}
		return "push-reload", []asm.Rewrite{{Slot: 1}}

	case next2 != nil && op == "push" && singleReg(ln) >= 0 && preservesReg(next, singleReg(ln)) &&
		next2.Op() == "pop" && singleReg(ln) == singleReg(next2):
		// push {rX}; movs rY, #V; pop {rX} -> movs rY, #V
		return "push-preserve-pop", []asm.Rewrite{{Slot: 0}, {Slot: 2}}
	}
	return "", nil
}

// fits allows for the few bytes the code may move by once .balign padding
// is recomputed.
func fits(enc asm.Encoder, ln *asm.Line) bool {
	v := ln.Arg(0)
	for _, d := range []int64{0, 8, -8} {
		if _, ok := enc.Encode(v + d); !ok {
			return false
		}
	}
	return true
}

// preservesReg reports whether ln neither writes rn nor touches memory.
func preservesReg(ln *asm.Line, n int64) bool {
	return ln.OpExt() == "movs $r5, $i0" && ln.Arg(0) != n
}

func clobbersReg(ln *asm.Line, n int64) bool {
	return ln.Op() == "pop" && ln.Arg(0)&(1<<n) != 0
}

// singleReg returns the only register of a push or pop, or -1.
func singleReg(ln *asm.Line) int64 {
	v := ln.Arg(0)
	if v <= 0 || v&(v-1) != 0 {
		return -1
	}
	var n int64
	for v > 1 {
		v >>= 1
		n++
	}
	return n
}

func itoa(v int64) string {
	return strconv.FormatInt(v, 10)
}
