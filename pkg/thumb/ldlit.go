package thumb

import (
	"fmt"
	"strings"

	"github.com/golang/glog"

	"retasm/pkg/asm"
)

// poolReach is how far past an ldlit its pool may start. The ldr range is
// 1020 bytes.
const poolReach = 900

// ExpandLiterals turns every "ldlit rX, V" into a pc-relative ldr from a
// literal pool. A pool goes after the next unconditional branch or return
// within reach; failing that, after the last instruction in reach with a
// branch around it.
func (p *Processor) ExpandLiterals(f *asm.File) {
	lines := f.Lines()
	var out []*asm.Line

	var spot *asm.Line
	jumpOver := false
	var values []string
	labels := map[string]string{}
	seq := 1

	flush := func(at *asm.Line) {
		var text []string
		jmp := fmt.Sprintf("_jmpwords_%d", seq+1)
		seq++
		if jumpOver {
			text = append(text, "bb "+jmp)
		}
		text = append(text, ".balign 4")
		for _, v := range values {
			text = append(text, labels[v]+": .word "+strings.TrimPrefix(v, "#"))
		}
		if jumpOver {
			text = append(text, jmp+":")
		}
		glog.V(2).Infof("literal pool of %d words after line %d", len(values), at.LineNo)
		out = append(out, f.SyntheticLines(strings.Join(text, "\n"), at)...)
		values = nil
		labels = map[string]string{}
	}

	for i, line := range lines {
		if line.Kind == asm.LineInstruction && line.Op() == "ldlit" {
			if spot == nil {
				spot, jumpOver = poolSpot(lines, i)
			}
			v := line.Word(3)
			lbl, ok := labels[v]
			if !ok {
				seq++
				lbl = fmt.Sprintf("_ldlit_%d", seq)
				labels[v] = lbl
				values = append(values, v)
			}
			line = f.SyntheticLines("ldr "+line.Word(1)+", "+lbl, line)[0]
		}
		out = append(out, line)

		if spot != nil && lines[i] == spot {
			spot = nil
			flush(line)
		}
	}
	if len(values) > 0 {
		jumpOver = false
		flush(lines[len(lines)-1])
	}
	f.SetLines(out)
}

func poolSpot(lines []*asm.Line, i int) (*asm.Line, bool) {
	limit := lines[i].Location + poolReach
	var spot *asm.Line

	j := i + 1
	for ; j < len(lines); j++ {
		if lines[j].Location > limit {
			break
		}
		op := lines[j].Op()
		if op == "b" || op == "bb" || (op == "pop" && lines[j].Word(2) == "pc") {
			spot = lines[j]
		}
	}
	if spot != nil {
		return spot, false
	}

	for j--; j > i; j-- {
		if lines[j].Kind == asm.LineInstruction {
			return lines[j], true
		}
	}
	return nil, false
}
