package asm

import (
	"fmt"
	"strings"

	"github.com/golang/glog"
)

// Convergence summarizes the peephole loop.
type Convergence struct {
	Changed bool // the last pass still rewrote lines
	Pass    int  // passes run
	Removed int
	Updated int
	Rules   map[string]int
}

// Converged reports whether the loop stopped on a pass without rewrites.
func (c Convergence) Converged() bool {
	return !c.Changed
}

func (f *File) optimize() {
	limit := f.MaxPeepholePasses
	if limit <= 0 {
		limit = DefaultPeepholePasses
	}
	f.conv = Convergence{Rules: make(map[string]int)}

	for i := 0; i < limit; i++ {
		glog.V(1).Infof("peephole pass %d", i)
		changed := f.peepPass(i == limit-1)
		f.conv.Pass = i + 1
		f.conv.Changed = changed
		if !changed || f.failed() {
			return
		}
	}
}

// peepPass rewrites the line sequence once, then resolves it again from
// scratch. It reports whether any line was rewritten.
func (f *File) peepPass(last bool) bool {
	f.peepOps = 0
	f.peepDel = 0
	f.peepRules = make(map[string]int)
	f.lines = f.peephole()

	f.strict = true
	f.finalEmit = false
	f.reallyFinalEmit = false
	f.clearLabels()
	f.pass()
	if f.failed() {
		return false
	}
	if f.stackCheck && f.stack != 0 {
		if u, ok := f.proc.(UserRules); ok && u.UserRules() {
			f.current = nil
			f.directiveError("peephole pass left the stack at %d", f.stack)
			return false
		}
		panic(fmt.Sprintf("asm: peephole pass left the stack at %d", f.stack))
	}

	f.finalEmit = true
	f.reallyFinalEmit = last || f.peepOps == 0
	f.pass()

	f.stats = append(f.stats, fmt.Sprintf("; peep hole pass: %d instructions removed and %d updated",
		f.peepDel, f.peepOps-f.peepDel))
	f.conv.Removed += f.peepDel
	f.conv.Updated += f.peepOps - f.peepDel
	for k, v := range f.peepRules {
		f.conv.Rules[k] += v
	}
	return f.peepOps > 0
}

// peephole runs the target's rules over windows of non-empty lines and
// returns the rewritten sequence. Windows never overlap an earlier rewrite.
func (f *File) peephole() []*Line {
	var live []int
	for i, l := range f.lines {
		if l.Kind != LineEmpty {
			live = append(live, i)
		}
	}

	at := func(k int) *Line {
		if k < len(live) {
			return f.lines[live[k]]
		}
		return nil
	}

	replaced := make(map[int]*Line)
	next := 0
	for i := range live {
		ln := at(i)
		if i < next || ln.Kind != LineInstruction {
			continue
		}
		if f.ExternalScopePrefix != "" && strings.HasPrefix(ln.Scope.Name, f.ExternalScopePrefix) {
			continue
		}
		lnNext := at(i + 1)
		if lnNext == nil {
			continue
		}

		rule, rws := f.proc.Peephole(ln, lnNext, at(i+2))
		if len(rws) == 0 {
			continue
		}
		for _, rw := range rws {
			var old *Line
			if rw.Slot >= 0 && rw.Slot <= 2 {
				old = at(i + rw.Slot)
			}
			if old == nil {
				panic(fmt.Sprintf("asm: peephole rule %q rewrote slot %d outside its window", rule, rw.Slot))
			}
			replaced[live[i+rw.Slot]] = old.rewrite(rw.Text)
			f.peepOps++
			if strings.TrimSpace(rw.Text) == "" {
				f.peepDel++
			}
			if i+rw.Slot+1 > next {
				next = i + rw.Slot + 1
			}
		}
		f.peepRules[rule]++
		glog.V(2).Infof("peephole %s at line %d", rule, ln.LineNo)
	}

	if len(replaced) == 0 {
		return f.lines
	}
	out := make([]*Line, len(f.lines))
	for i, l := range f.lines {
		if r, ok := replaced[i]; ok {
			l = r
		}
		out[i] = l
	}
	return out
}
