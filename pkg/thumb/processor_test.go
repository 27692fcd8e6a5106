package thumb

import (
	"reflect"
	"strconv"
	"strings"
	"testing"

	"retasm/pkg/asm"
)

// parseListing splits a listing whose first column holds the expected hex
// words into the source and the words.
func parseListing(t *testing.T, listing string) (string, []uint16) {
	t.Helper()
	var src []string
	var words []uint16
	for _, line := range strings.Split(strings.TrimRight(listing, "\n"), "\n") {
		if len(line) >= 4 && line[0] != ' ' {
			w, err := strconv.ParseUint(line[:4], 16, 16)
			if err != nil {
				t.Fatalf("bad listing line %q: %v", line, err)
			}
			words = append(words, uint16(w))
			line = line[4:]
		}
		if s := strings.TrimSpace(line); s != "" {
			src = append(src, s)
		}
	}
	return strings.Join(src, "\n"), words
}

func emit(t *testing.T, code string, configure func(f *asm.File)) *asm.File {
	t.Helper()
	f := asm.NewFile(New())
	if configure != nil {
		configure(f)
	}
	if err := f.Emit(code); err != nil {
		t.Fatalf("Emit(%q) failed: %v", code, err)
	}
	return f
}

func strictNoPeephole(f *asm.File) {
	f.DisablePeephole = true
	f.ThrowOnError = true
}

func TestEncodings(t *testing.T) {
	tests := map[string]string{
		"basic": `
0200      lsls    r0, r0, #8
b500      push    {lr}
2064      movs    r0, #100        ; 0x64
b401      push    {r0}
bc08      pop     {r3}
b501      push    {r0, lr}
bd20      pop {r5, pc}
bc01      pop {r0}
4770      bx      lr
0000      .balign 4
e6c0      .word   -72000
fffe
`,
		"branches": `
4291      cmp     r1, r2
d100      bne     l6
e000      b       l8
1840  l6: adds    r0, r0, r1
4718  l8: bx      r3
`,
		"saved stack": `
          @stackmark base
b403      push    {r0, r1}
          @stackmark locals
9801      ldr     r0, [sp, locals@1]
b401      push    {r0}
9802      ldr     r0, [sp, locals@1]
bc01      pop     {r0}
          @stackempty locals
9901      ldr     r1, [sp, locals@1]
9102      str     r1, [sp, base@0]
          @stackempty locals
b002      add     sp, #8
          @stackempty base
`,
		"sp adjust": `
b090      sub sp, #4*16
b010      add sp, #4*16
`,
		"string": `
6261      .string "abc"
0063
`,
		"odd string": `
6261      .string "abcde"
6463
0065
`,
		"misc": `
3042      adds r0, 0x42
1c0d      adds r5, r1, #0
d100      bne #0
2800      cmp r0, #0
6b28      ldr r0, [r5, #48]
0200      lsls r0, r0, #8
2063      movs r0, 0x63
4240      negs r0, r0
46c0      nop
b500      push {lr}
b401      push {r0}
b402      push {r1}
b404      push {r2}
b408      push {r3}
b520      push {r5, lr}
bd00      pop {pc}
bc01      pop {r0}
bc02      pop {r1}
bc04      pop {r2}
bc08      pop {r3}
bd20      pop {r5, pc}
9003      str r0, [sp, #4*3]
`,
		"high registers": `
4640      mov r0, r8
46bb      mov r11, r7
4558      cmp r0, r11
4798      blx r3
4770      bx lr
`,
		"loads and stores": `
a801      add r0, sp, #4
a002      add r0, pc, #8
5888      ldr r0, [r1, r2]
7848      ldrb r0, [r1, #1]
8848      ldrh r0, [r1, #2]
6008      str r0, [r1]
c806      ldmia r0!, {r1, r2}
c006      stmia r0!, {r1, r2}
`,
		"system": `
b672      cpsid i
b662      cpsie i
bf30      wfi
df05      svc #5
be00      bkpt #0
`,
	}

	for name, listing := range tests {
		t.Run(name, func(t *testing.T) {
			code, want := parseListing(t, listing)
			f := emit(t, code, strictNoPeephole)
			if got := f.Buf(); !reflect.DeepEqual(got, want) {
				t.Errorf("Buf() = %04x; want %04x", got, want)
			}
		})
	}
}

func TestExpectedErrors(t *testing.T) {
	tests := []string{
		"lsl r0, r0, #8",
		"push {pc,lr}",
		"push {r17}",
		"mov r0, r1 foo",
		"movs r14, #100",
		"push {r0",
		"push lr,r0}",
		"pop {lr,r0}",
		"b #+11",
		"b #+102400",
		"bne undefined_label",
		".foobar",
		"ldr r0, [r1, #3]",
		"lsrs r0, r1, #0",
	}
	for _, code := range tests {
		t.Run(code, func(t *testing.T) {
			f := asm.NewFile(New())
			f.ThrowOnError = true
			if err := f.Emit(code); err == nil {
				t.Errorf("Emit(%q) succeeded; want an error", code)
			}
		})
	}
}

func TestRegisters(t *testing.T) {
	p := New()
	tests := map[string]int{
		"r0": 0, "R7": 7, "r10": 10, "r11": 11, "r12": 12,
		"sp": 13, "r13": 13, "lr": 14, "r14": 14, "pc": 15, "r15": 15,
	}
	for name, want := range tests {
		if got, ok := p.RegisterNo(name); !ok || got != want {
			t.Errorf("RegisterNo(%q) = %d, %v; want %d", name, got, ok, want)
		}
	}
	if _, ok := p.RegisterNo("r16"); ok {
		t.Error("RegisterNo(r16) succeeded")
	}
}

func TestOpcodesWithinMasks(t *testing.T) {
	for _, ins := range New().AllInstructions() {
		if ins.Opcode&ins.Mask != ins.Opcode {
			t.Errorf("%s: opcode 0x%04x outside mask 0x%04x", ins.Code, ins.Opcode, ins.Mask)
		}
	}
}

func TestEmit32(t *testing.T) {
	p := New()
	bl := p.Instructions("bl")[0]
	tests := []struct {
		v       int64
		wantOp  uint32
		wantOp2 uint32
	}{
		{2, 0xf000, 0xf801},
		{-6, 0xf7ff, 0xfffd},
		{0x1ffc, 0xf001, 0xfffe},
		{5, 0xf000, 0xe802}, // odd: BLX
	}
	for _, tc := range tests {
		res, err := p.Emit32(bl, 0xf000, tc.v, "x")
		if err != nil {
			t.Fatalf("Emit32(%d) failed: %v", tc.v, err)
		}
		if !res.Wide || res.Opcode != tc.wantOp || res.Opcode2 != tc.wantOp2 {
			t.Errorf("Emit32(%d) = %04x %04x (wide %v); want %04x %04x",
				tc.v, res.Opcode, res.Opcode2, res.Wide, tc.wantOp, tc.wantOp2)
		}
	}

	if _, err := p.Emit32(bl, 0xf000, 1<<23, "far"); err == nil {
		t.Error("Emit32 accepted a jump out of range")
	} else if rej, ok := err.(*asm.Rejection); !ok || rej.Msg != "jump out of range" {
		t.Errorf("Emit32 error = %v; want jump out of range", err)
	}
}

func TestBranchWithLink(t *testing.T) {
	tests := []struct {
		name string
		code string
		want []uint16
	}{
		{"forward", "bl foo\nnop\nfoo:\nbx lr", []uint16{0xf000, 0xf801, 0x46c0, 0x4770}},
		{"backward", "foo:\nnop\nbl foo", []uint16{0x46c0, 0xf7ff, 0xfffd}},
		{"long jump", "bb foo\nnop\nfoo:\nbx lr", []uint16{0xf000, 0xf801, 0x46c0, 0x4770}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := emit(t, tc.code, strictNoPeephole)
			if got := f.Buf(); !reflect.DeepEqual(got, tc.want) {
				t.Errorf("Buf() = %04x; want %04x", got, tc.want)
			}
		})
	}
}

func TestExternalCall(t *testing.T) {
	f := emit(t, "bl ext", func(f *asm.File) {
		strictNoPeephole(f)
		f.LookupExternalLabel = func(name string) (int64, bool) {
			return 0x2001, name == "ext"
		}
	})
	if got, want := f.Buf(), []uint16{0xf001, 0xfffe}; !reflect.DeepEqual(got, want) {
		t.Errorf("Buf() = %04x; want %04x", got, want)
	}
}

func TestFunctionPointer(t *testing.T) {
	f := emit(t, "nop\nfoo:\n.word foo@fn", func(f *asm.File) {
		strictNoPeephole(f)
		f.BaseOffset = 0x1000
	})
	if got, want := f.Buf(), []uint16{0x46c0, 0x1003, 0x0000}; !reflect.DeepEqual(got, want) {
		t.Errorf("Buf() = %04x; want %04x", got, want)
	}
}

func TestAdrWordAligned(t *testing.T) {
	// pc for word-aligned operands is rounded down: (2+4)&^3 = 4.
	f := emit(t, "nop\nadr r0, data\n.balign 4\ndata:\n.word 1", strictNoPeephole)
	if got, want := f.Buf(), []uint16{0x46c0, 0xa000, 0x0001, 0x0000}; !reflect.DeepEqual(got, want) {
		t.Errorf("Buf() = %04x; want %04x", got, want)
	}
}
