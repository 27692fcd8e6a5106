package avr

import (
	"reflect"
	"testing"

	"retasm/pkg/asm"
)

type vector struct {
	code string
	want []uint16
}

func emit(t *testing.T, code string, configure func(f *asm.File)) *asm.File {
	t.Helper()
	f := asm.NewFile(New())
	f.DisablePeephole = true
	f.ThrowOnError = true
	if configure != nil {
		configure(f)
	}
	if err := f.Emit(code); err != nil {
		t.Fatalf("Emit(%q) failed: %v", code, err)
	}
	return f
}

func TestEncodings(t *testing.T) {
	tests := map[string]vector{
		"basic": {
			"lsl r0\npush r0\nldi r16, #100\npop r3",
			[]uint16{0x0c00, 0x920f, 0xe604, 0x903f},
		},
		"branches": {
			"cp r1, r2\nbrne l6\nrjmp l8\nl6: add r0, r17\nl8: nop",
			[]uint16{0x1412, 0xf409, 0xc001, 0x0e01, 0x0000},
		},
		"same register twice": {
			"clr r17\ntst r24\nrol r5",
			[]uint16{0x2711, 0x2388, 0x1c55},
		},
		"immediates": {
			"adiw r24, 1\nsbiw r30, 63\nandi r16, 0x0f\ncbr r16, 0x0f\nsubi r31, 255",
			[]uint16{0x9601, 0x97ff, 0x700f, 0x7f00, 0x5fff},
		},
		"io and bits": {
			"in r24, 0x3f\nout 0x3e, r29\nsbi 5, 3\nbset 7\nbld r1, 2",
			[]uint16{0xb78f, 0xbfde, 0x9a2b, 0x9478, 0xf812},
		},
		"indirect": {
			"ld r24, X+\nld r25, -Y\nst Z, r0\nlpm r16, Z+",
			[]uint16{0x918d, 0x919a, 0x8200, 0x9105},
		},
		"multiply": {
			"mul r2, r3\nmovw r24, r30\nmuls r16, r17\nfmul r16, r23",
			[]uint16{0x9c23, 0x01cf, 0x0201, 0x030f},
		},
		"backward branch": {
			"top:\nnop\nbreq top\nrcall top",
			[]uint16{0x0000, 0xf3f1, 0xdffd},
		},
		"stack": {
			"@stackmark base\npush r0\npush r1\n@stackmark locals\npush r0\npop r0\n@stackempty locals\npop r1\npop r0\n@stackempty base",
			[]uint16{0x920f, 0x921f, 0x920f, 0x900f, 0x901f, 0x900f},
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			f := emit(t, tc.code, nil)
			if got := f.Buf(); !reflect.DeepEqual(got, tc.want) {
				t.Errorf("Buf() = %04x; want %04x", got, tc.want)
			}
		})
	}
}

func TestTwoWordInstructions(t *testing.T) {
	tests := []struct {
		name string
		code string
		base int64
		want []uint16
	}{
		{"call", "call target\nnop\ntarget:\nret", 0, []uint16{0x940e, 0x0003, 0x0000, 0x9508}},
		{"jmp with base", "jmp start\nstart:\nnop", 0x100, []uint16{0x940c, 0x0082, 0x0000}},
		{"lds", "lds r24, 0x0100", 0, []uint16{0x9180, 0x0100}},
		{"sts", "sts 0x0100, r24", 0, []uint16{0x9380, 0x0100}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := emit(t, tc.code, func(f *asm.File) { f.BaseOffset = tc.base })
			if got := f.Buf(); !reflect.DeepEqual(got, tc.want) {
				t.Errorf("Buf() = %04x; want %04x", got, tc.want)
			}
		})
	}
}

func TestExternalAddresses(t *testing.T) {
	externals := map[string]int64{"ext": 0x400, "buf": 0x200}
	f := emit(t, "call ext\nlocal:\njmp local\nlds r24, buf", func(f *asm.File) {
		f.BaseOffset = 0x100
		f.LookupExternalLabel = func(name string) (int64, bool) {
			v, ok := externals[name]
			return v, ok
		}
	})
	want := []uint16{0x940e, 0x0200, 0x940c, 0x0082, 0x9180, 0x0200}
	if got := f.Buf(); !reflect.DeepEqual(got, want) {
		t.Errorf("Buf() = %04x; want %04x", got, want)
	}
}

func TestExpectedErrors(t *testing.T) {
	tests := []string{
		"ldi r15, #1",
		"push r32",
		"adiw r25, 1",
		"movw r25, r30",
		"brne #200",
		"call 0x3",
		"lds r0, 0x10000",
		"bset 8",
		"fmul r24, r16",
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

func TestOpcodesWithinMasks(t *testing.T) {
	for _, ins := range New().AllInstructions() {
		if ins.Opcode&ins.Mask != ins.Opcode {
			t.Errorf("%s: opcode 0x%04x outside mask 0x%04x", ins.Code, ins.Opcode, ins.Mask)
		}
	}
}
