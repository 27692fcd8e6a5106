// Package luapeep lets peephole rules be written in Lua. A Processor wraps
// any target and consults a script once the target's own rules decline a
// window.
//
// The script defines
//
//	function peephole(ln, next, next2)
//
// where each argument is a table {op, opext, text, kind, scope, words, args}
// or nil past the end of the file. It returns nothing when no rule applies,
// or a rule name and a table mapping window slots 1 to 3 to replacement
// text. An empty string deletes the line.
package luapeep

import (
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/golang/glog"
	"github.com/pkg/errors"
	lua "github.com/yuin/gopher-lua"

	"retasm/pkg/asm"
)

// FuncName is the global the script must define.
const FuncName = "peephole"

// Processor decorates a target with scripted peephole rules.
type Processor struct {
	asm.Processor

	mu sync.Mutex
	L  *lua.LState
	fn *lua.LFunction
}

// New compiles script and returns base extended with its rules.
func New(base asm.Processor, script string) (*Processor, error) {
	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	for _, lib := range []struct {
		name string
		fn   lua.LGFunction
	}{
		{lua.BaseLibName, lua.OpenBase},
		{lua.StringLibName, lua.OpenString},
		{lua.TabLibName, lua.OpenTable},
		{lua.MathLibName, lua.OpenMath},
	} {
		L.Push(L.NewFunction(lib.fn))
		L.Push(lua.LString(lib.name))
		L.Call(1, 0)
	}

	if err := L.DoString(script); err != nil {
		L.Close()
		return nil, errors.Wrap(err, "loading peephole script")
	}
	fn, ok := L.GetGlobal(FuncName).(*lua.LFunction)
	if !ok {
		L.Close()
		return nil, errors.Errorf("peephole script does not define function %s", FuncName)
	}
	return &Processor{Processor: base, L: L, fn: fn}, nil
}

// NewFromFile reads the script from path.
func NewFromFile(base asm.Processor, path string) (*Processor, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "reading peephole script")
	}
	p, err := New(base, string(src))
	if err != nil {
		return nil, errors.Wrap(err, path)
	}
	return p, nil
}

// Close releases the interpreter.
func (p *Processor) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.L != nil {
		p.L.Close()
		p.L = nil
	}
}

// UserRules marks the script's rewrites as untrusted.
func (p *Processor) UserRules() bool { return true }

// Peephole runs the target's rules first and falls back to the script.
func (p *Processor) Peephole(ln, next, next2 *asm.Line) (string, []asm.Rewrite) {
	if rule, rw := p.Processor.Peephole(ln, next, next2); len(rw) > 0 {
		return rule, rw
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.L == nil {
		return "", nil
	}

	rule, rw, err := p.call(ln, next, next2)
	if err != nil {
		glog.Warningf("peephole script at line %d: %v", ln.LineNo, err)
		return "", nil
	}
	return rule, rw
}

func (p *Processor) call(ln, next, next2 *asm.Line) (string, []asm.Rewrite, error) {
	window := []*asm.Line{ln, next, next2}
	args := make([]lua.LValue, len(window))
	for i, l := range window {
		args[i] = p.lineTable(l)
	}

	top := p.L.GetTop()
	defer p.L.SetTop(top)
	if err := p.L.CallByParam(lua.P{Fn: p.fn, NRet: 2, Protect: true}, args...); err != nil {
		return "", nil, err
	}

	ret, name := p.L.Get(-1), p.L.Get(-2)
	if name == lua.LNil {
		return "", nil, nil
	}
	tbl, ok := ret.(*lua.LTable)
	if !ok {
		return "", nil, fmt.Errorf("rule %s returned %s instead of a table", name, ret.Type())
	}

	var rws []asm.Rewrite
	var bad error
	tbl.ForEach(func(k, v lua.LValue) {
		if bad != nil {
			return
		}
		n, ok := k.(lua.LNumber)
		slot := int(n) - 1
		if !ok || float64(n) != float64(int(n)) || slot < 0 || slot >= len(window) || window[slot] == nil {
			bad = fmt.Errorf("rule %s rewrote invalid slot %s", name, k)
			return
		}
		s, ok := v.(lua.LString)
		if !ok {
			bad = fmt.Errorf("rule %s slot %d: want string, got %s", name, slot+1, v.Type())
			return
		}
		rws = append(rws, asm.Rewrite{Slot: slot, Text: string(s)})
	})
	if bad != nil {
		return "", nil, bad
	}
	if len(rws) == 0 {
		return "", nil, nil
	}
	sort.Slice(rws, func(i, j int) bool { return rws[i].Slot < rws[j].Slot })
	return name.String(), rws, nil
}

func (p *Processor) lineTable(l *asm.Line) lua.LValue {
	if l == nil {
		return lua.LNil
	}
	t := p.L.NewTable()
	t.RawSetString("op", lua.LString(l.Op()))
	t.RawSetString("opext", lua.LString(l.OpExt()))
	t.RawSetString("text", lua.LString(l.Text))
	t.RawSetString("kind", lua.LString(l.Kind.String()))
	t.RawSetString("scope", lua.LString(l.Scope.Name))
	t.RawSetString("lineno", lua.LNumber(l.LineNo))

	words := p.L.NewTable()
	for _, w := range l.Words {
		words.Append(lua.LString(w))
	}
	t.RawSetString("words", words)

	args := p.L.NewTable()
	for _, a := range l.Args {
		args.Append(lua.LNumber(a))
	}
	t.RawSetString("args", args)
	return t
}
