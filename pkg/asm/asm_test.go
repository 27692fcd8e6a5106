package asm

import (
	"reflect"
	"testing"
)

func TestHelperFunctions(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"abc", true},
		{"_abc", true},
		{".Lfoo", true},
		{"abc1", true},
		{"1abc", false},
		{"", false},
		{"ab-c", false},
		{"r0", false},
		{"R7", false},
		{"sp", false},
		{"r12x", true},
	}
	for _, tc := range tests {
		if got := looksLikeLabel(tc.input); got != tc.want {
			t.Errorf("looksLikeLabel(%q) = %v; want %v", tc.input, got, tc.want)
		}
	}

	kinds := []struct {
		words []string
		want  LineKind
	}{
		{nil, LineEmpty},
		{[]string{".word", "1"}, LineDirective},
		{[]string{"@stackmark", "x"}, LineDirective},
		{[]string{"movs", "r0", ",", "#1"}, LineInstruction},
	}
	for _, tc := range kinds {
		if got := classify(tc.words); got != tc.want {
			t.Errorf("classify(%q) = %v; want %v", tc.words, got, tc.want)
		}
	}
}

func TestTokenize(t *testing.T) {
	tests := []struct {
		line string
		want []string
	}{
		{"movs r0, #1", []string{"movs", "r0", ",", "#1"}},
		{"  ldr r0, [sp, #4]  ; comment", []string{"ldr", "r0", ",", "[", "sp", ",", "#4", "]"}},
		{"push {r0,r1,lr}", []string{"push", "{", "r0", ",", "r1", ",", "lr", "}"}},
		{"stmia r0!, {r1}", []string{"stmia", "r0", "!", ",", "{", "r1", "}"}},
		{"\tnop\r", []string{"nop"}},
		{"; only a comment", nil},
		{"", nil},
	}
	for _, tc := range tests {
		if got := Tokenize(tc.line); !reflect.DeepEqual(got, tc.want) {
			t.Errorf("Tokenize(%q) = %q; want %q", tc.line, got, tc.want)
		}
	}
}

func TestSplitLine(t *testing.T) {
	tests := []struct {
		line      string
		wantKinds []LineKind
		wantWords [][]string
	}{
		{"loop:", []LineKind{LineLabel}, [][]string{{"loop"}}},
		{"loop: nop", []LineKind{LineLabel, LineInstruction}, [][]string{{"loop"}, {"nop"}}},
		{".L1: .word 5", []LineKind{LineLabel, LineDirective}, [][]string{{".L1"}, {".word", "5"}}},
		{"nop", []LineKind{LineInstruction}, [][]string{{"nop"}}},
		{"bad-label: nop", []LineKind{LineInstruction}, [][]string{{"bad-label:", "nop"}}},
		{"   ", []LineKind{LineEmpty}, [][]string{nil}},
	}
	for _, tc := range tests {
		t.Run(tc.line, func(t *testing.T) {
			lines := splitLine(tc.line, Scope{}, 7)
			if len(lines) != len(tc.wantKinds) {
				t.Fatalf("splitLine(%q) returned %d lines; want %d", tc.line, len(lines), len(tc.wantKinds))
			}
			for i, l := range lines {
				if l.Kind != tc.wantKinds[i] {
					t.Errorf("line %d kind = %v; want %v", i, l.Kind, tc.wantKinds[i])
				}
				if !reflect.DeepEqual(l.Words, tc.wantWords[i]) {
					t.Errorf("line %d words = %q; want %q", i, l.Words, tc.wantWords[i])
				}
				if l.LineNo != 7 {
					t.Errorf("line %d LineNo = %d; want 7", i, l.LineNo)
				}
			}
		})
	}
}

func TestLineRewrite(t *testing.T) {
	l := splitLine("  movs r0, #1", Scope{ID: 2}, 4)[0]

	n := l.rewrite("movs r1, #1")
	if n.Text != "    movs r1, #1      ; WAS: movs r0, #1" {
		t.Errorf("Text = %q", n.Text)
	}
	if n.Kind != LineInstruction || n.Scope.ID != 2 || n.LineNo != 4 {
		t.Errorf("rewrite lost line identity: %+v", n)
	}

	d := l.rewrite("")
	if d.Text != "    ; WAS: movs r0, #1" || d.Kind != LineEmpty {
		t.Errorf("deleted line = %q (%v)", d.Text, d.Kind)
	}
}

func TestFieldEncode(t *testing.T) {
	tests := []struct {
		name   string
		field  Field
		v      int64
		want   uint32
		wantOk bool
	}{
		{"shift", Field{Max: 7, Shift: 6}, 5, 5 << 6, true},
		{"range", Field{Max: 7}, 8, 0, false},
		{"scale", Field{Max: 255, Scale: 4}, 8, 2, true},
		{"misaligned", Field{Max: 255, Scale: 4}, 6, 0, false},
		{"signed", Field{Min: -128, Max: 127, Scale: 2, Signed: true}, -6, 0xfd, true},
		{"modulo", Field{Min: 1, Max: 32, Modulo: 32, Shift: 6}, 32, 0, true},
		{"bias", Field{Min: 16, Max: 31, Bias: 16, Shift: 4}, 17, 1 << 4, true},
		{"values", Field{Values: []int64{24, 26, 28, 30}, Shift: 4}, 28, 2 << 4, true},
		{"values miss", Field{Values: []int64{24, 26, 28, 30}, Shift: 4}, 25, 0, false},
		{"segments", Field{Max: 31, Segs: []Segment{{0, 0, 4}, {4, 9, 1}}}, 0x13, 0x203, true},
		{"invert", Field{Max: 255, Invert: true, Segs: []Segment{{0, 0, 4}, {4, 8, 4}}}, 0x0f, 0xf00, true},
		{"negative shift", Field{Min: -4, Max: 4}, -1, 0, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := tc.field.Encode(tc.v)
			if got != tc.want || ok != tc.wantOk {
				t.Errorf("Encode(%d) = 0x%x, %v; want 0x%x, %v", tc.v, got, ok, tc.want, tc.wantOk)
			}
		})
	}
}

func TestRegListEncode(t *testing.T) {
	rl := &RegList{Low: 8, Extra: 14, ExtraBit: 0x100}
	tests := []struct {
		v      int64
		want   uint32
		wantOk bool
	}{
		{1 << 0, 0x01, true},
		{1<<0 | 1<<7, 0x81, true},
		{1<<14 | 1<<5, 0x120, true},
		{1 << 14, 0x100, true},
		{1 << 15, 0, false},
		{1 << 8, 0, false},
	}
	for _, tc := range tests {
		got, ok := rl.Encode(tc.v)
		if got != tc.want || ok != tc.wantOk {
			t.Errorf("Encode(0x%x) = 0x%x, %v; want 0x%x, %v", tc.v, got, ok, tc.want, tc.wantOk)
		}
	}
}
