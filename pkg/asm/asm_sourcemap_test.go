package asm

import (
	"reflect"
	"testing"
)

func TestAssembleSourceMap(t *testing.T) {
	code := `
; Line 2: comment
movs r0, #10    ; Line 3: instruction at 0x0000

start:          ; Line 5: label
push {r0}       ; Line 6: 0x0002
pop {r0}        ; Line 7: 0x0004
.balign 8       ; Line 8: padding from 0x0006
b start         ; Line 9: 0x0008
.string "AB"
.space 0        ; Line 11: emits nothing
`
	f := emitFile(t, code, noPeephole)

	want := map[int64]int{
		0x0000: 3,
		0x0002: 6,
		0x0004: 7,
		0x0006: 8,
		0x0008: 9,
		0x000a: 10,
	}
	if got := f.SourceMap(); !reflect.DeepEqual(got, want) {
		t.Errorf("SourceMap() = %v; want %v", got, want)
	}
}

func TestSourceMapBaseOffset(t *testing.T) {
	f := emitFile(t, "nop\nnop", func(f *File) {
		f.DisablePeephole = true
		f.BaseOffset = 0x100
	})
	want := map[int64]int{0x100: 1, 0x102: 2}
	if got := f.SourceMap(); !reflect.DeepEqual(got, want) {
		t.Errorf("SourceMap() = %v; want %v", got, want)
	}
}

func TestSourceMapAfterPeephole(t *testing.T) {
	f := emitFile(t, "movs r0, #1\nnop\nmovs r1, #2", nil)
	want := map[int64]int{0: 1, 2: 3}
	if got := f.SourceMap(); !reflect.DeepEqual(got, want) {
		t.Errorf("SourceMap() = %v; want %v", got, want)
	}
}
