package asm

import (
	"regexp"
	"strings"
)

var newlineRe = regexp.MustCompile(`\r?\n`)

// splitLine classifies one physical line. A leading "name:" becomes a label
// line of its own, followed by the rest of the line if anything remains.
func splitLine(tx string, sc Scope, lineNo int) []*Line {
	words := Tokenize(tx)
	var out []*Line

	if len(words) > 0 && strings.HasSuffix(words[0], ":") {
		if m := labelDefRe.FindStringSubmatch(words[0]); m != nil {
			out = append(out, &Line{
				Text:   m[1] + ":",
				Words:  []string{m[1]},
				Kind:   LineLabel,
				Scope:  sc,
				LineNo: lineNo,
			})
			if len(words) == 1 {
				return out
			}
			words = words[1:]
			tx = tx[strings.IndexByte(tx, ':')+1:]
		}
	}

	return append(out, &Line{
		Text:   tx,
		Words:  words,
		Kind:   classify(words),
		Scope:  sc,
		LineNo: lineNo,
	})
}

func (f *File) lex(text string) {
	f.lineNo = 0
	f.realLineNo = 0
	f.scope = Scope{}
	f.lines = nil

	for _, tx := range newlineRe.Split(text, -1) {
		if f.stopped() {
			return
		}
		f.lineNo++
		f.realLineNo++

		lines := splitLine(tx, f.scope, f.lineNo)
		f.lines = append(f.lines, lines...)

		last := lines[len(lines)-1]
		if last.Kind != LineDirective {
			continue
		}
		switch last.Words[0] {
		case "@scope":
			name := last.Word(1)
			f.scope = f.namedScope(name)
			if name != "" {
				f.lineNo = 0
			} else {
				f.lineNo = f.realLineNo
			}
		case ".section", ".global":
			f.scope = f.anonymousScope()
		}
	}
}

// SyntheticLines parses generated assembly text into lines that inherit the
// scope and line number of at. Scope directives in text are not interpreted.
func (f *File) SyntheticLines(text string, at *Line) []*Line {
	var out []*Line
	for _, tx := range newlineRe.Split(text, -1) {
		out = append(out, splitLine(tx, at.Scope, at.LineNo)...)
	}
	return out
}

func (f *File) namedScope(name string) Scope {
	if name == "" {
		return Scope{}
	}
	if id, ok := f.scopeIDs[name]; ok {
		return Scope{ID: id, Name: name}
	}
	id := len(f.scopeNames)
	f.scopeNames = append(f.scopeNames, name)
	f.scopeIDs[name] = id
	return Scope{ID: id, Name: name}
}

func (f *File) anonymousScope() Scope {
	id := len(f.scopeNames)
	f.scopeNames = append(f.scopeNames, "")
	return Scope{ID: id}
}
