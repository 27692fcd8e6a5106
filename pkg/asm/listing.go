package asm

import (
	"fmt"
	"regexp"
	"strings"
)

var wasRe = regexp.MustCompile(`; WAS: .*`)

// Listing reconstructs the source with a statistics header. clean drops
// rewrite annotations and deleted lines; annotate appends the absolute
// address to label and instruction lines.
func (f *File) Listing(clean, annotate bool) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "; total bytes: %d\n", f.Location())
	fmt.Fprintf(&sb, "; assembly: %d lines\n", len(f.lines))
	for _, s := range f.stats {
		sb.WriteString(s)
		sb.WriteByte('\n')
	}
	sb.WriteByte('\n')

	for i, ln := range f.lines {
		text := ln.Text
		if clean {
			if ln.Word(0) == "@stackempty" && i > 0 && f.lines[i-1].Text == ln.Text {
				continue
			}
			text = wasRe.ReplaceAllString(text, "")
			if strings.TrimSpace(text) == "" {
				continue
			}
		}
		if annotate && (ln.Kind == LineLabel || ln.Kind == LineInstruction) {
			text += fmt.Sprintf(" \t; 0x%x", ln.Location+f.BaseOffset)
		}
		sb.WriteString(text)
		sb.WriteByte('\n')
	}
	return sb.String()
}
