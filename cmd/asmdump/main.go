package main

import (
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/k0kubun/pp/v3"

	"retasm/pkg/asm"
	"retasm/pkg/avr"
	"retasm/pkg/thumb"
	"retasm/pkg/utils"
)

const testSource = `start:
    push {lr}
    movs r0, #100
    bl helper
    pop {pc}
helper:
    adds r0, #1
    bx lr
`

func main() {
	arch := flag.String("arch", "thumb", "target architecture: thumb or avr")
	base := flag.Int64("base", 0, "load address")
	noPeephole := flag.Bool("no-peephole", false, "disable the peephole optimizer")
	flag.Parse()

	src := testSource
	if flag.NArg() > 0 {
		full, _, err := utils.GetPathInfo(flag.Arg(0))
		if err != nil {
			fmt.Fprintln(os.Stderr, "path error:", err)
			os.Exit(1)
		}
		data, err := os.ReadFile(full)
		if err != nil {
			fmt.Fprintln(os.Stderr, "read error:", err)
			os.Exit(1)
		}
		src = string(data)
		fmt.Printf("File: %s\n", full)
	}

	var proc asm.Processor
	switch *arch {
	case "thumb":
		proc = thumb.New()
	case "avr":
		proc = avr.New()
	default:
		fmt.Fprintf(os.Stderr, "unknown architecture %q\n", *arch)
		os.Exit(2)
	}

	f := asm.NewFile(proc)
	f.BaseOffset = *base
	f.DisablePeephole = *noPeephole
	emitErr := f.Emit(src)

	fmt.Printf("Lines (%d)\n", len(f.Lines()))
	for _, ln := range f.Lines() {
		if ln.Kind == asm.LineEmpty {
			continue
		}
		fmt.Printf("  %4d %-11s %-8s 0x%04x %q\n", ln.LineNo, ln.Kind, ln.Scope.Name, ln.Location+f.BaseOffset, ln.Words)
	}
	fmt.Println()

	if emitErr != nil {
		fmt.Fprintln(os.Stderr, "assembly error:")
		fmt.Fprintln(os.Stderr, emitErr)
		os.Exit(1)
	}

	labels := f.Labels()
	keys := make([]asm.LabelKey, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return labels[keys[i]] < labels[keys[j]] })
	stacks := f.StackAtLabel()
	fmt.Printf("Labels (%d)\n", len(keys))
	for _, k := range keys {
		fmt.Printf("  0x%04x stack=%-3d %s\n", labels[k], stacks[k], f.LabelName(k))
	}
	fmt.Println()

	fmt.Println("Peephole")
	pp.Println(f.Convergence())
	fmt.Println()

	var words []string
	for _, w := range f.Buf() {
		words = append(words, fmt.Sprintf("%04x", w))
	}
	fmt.Printf("Words (%d)\n  %s\n\n", len(words), strings.Join(words, " "))

	fmt.Println("Listing")
	fmt.Print(f.Listing(true, true))
}
