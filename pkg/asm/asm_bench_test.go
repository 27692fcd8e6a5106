package asm

import (
	"strings"
	"testing"
)

// smallProgram is a counter loop.
const smallProgram = `
    movs r0, #10
    movs r1, #0
loop:
    adds r1, #1
    beq done
    b loop
done:
    nop
`

// mediumProgram has several routines, saved stack references and data.
const mediumProgram = `
    b main

double_fn:
    push {r0}
    @stackmark fn
    ldr r1, [sp, fn@0]
    adds r1, #1
    @stackempty fn
    pop {r0}
    b ret1

count_down:
    movs r1, #1
cd_loop:
    adds r0, #255
    beq cd_done
    b cd_loop
cd_done:
    nop

main:
    movs r0, #7
    b double_fn
ret1:
    push {r0, r1}
    sub sp, #16
    add sp, #16
    movs r0, #12
    b count_down
    pop {r0, r1}

greeting:
    .string "Hello, World!"
    .balign 4
table:
    .word greeting, table, main
`

// largeProgram repeats the medium program in separate scopes so labels do
// not collide.
func largeProgram() string {
	var sb strings.Builder
	for i := 0; i < 20; i++ {
		sb.WriteString("@scope part")
		sb.WriteByte(byte('a' + i))
		sb.WriteByte('\n')
		sb.WriteString(strings.NewReplacer(
			"double_fn", ".double_fn",
			"count_down", ".count_down",
			"cd_loop", ".cd_loop",
			"cd_done", ".cd_done",
			"main", ".main",
			"ret1", ".ret1",
			"greeting", ".greeting",
			"table", ".table",
		).Replace(mediumProgram))
	}
	return sb.String()
}

func TestBenchmarkPrograms(t *testing.T) {
	for name, code := range map[string]string{
		"small":  smallProgram,
		"medium": mediumProgram,
		"large":  largeProgram(),
	} {
		t.Run(name, func(t *testing.T) {
			if _, _, err := Assemble(newMiniProc(), code); err != nil {
				t.Fatalf("Assemble failed: %v", err)
			}
		})
	}
}

func BenchmarkAssemble_Small(b *testing.B) {
	p := newMiniProc()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_, _, err := Assemble(p, smallProgram)
		if err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkAssemble_Medium(b *testing.B) {
	p := newMiniProc()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_, _, err := Assemble(p, mediumProgram)
		if err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkAssemble_Large(b *testing.B) {
	p := newMiniProc()
	code := largeProgram()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_, _, err := Assemble(p, code)
		if err != nil {
			b.Fatal(err)
		}
	}
}
