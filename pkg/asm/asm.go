// Package asm is a retargetable assembler core. A Processor supplies the
// instruction tables of one architecture; a File drives lexing, repeated
// resolution until label addresses are stable, bounded peephole rewriting
// and the final encoding into 16-bit words.
package asm

import "encoding/binary"

// Assemble encodes code for p with default settings and returns the words
// and the label table keyed by rendered name.
func Assemble(p Processor, code string) ([]uint16, map[string]int64, error) {
	f := NewFile(p)
	if err := f.Emit(code); err != nil {
		return nil, nil, err
	}
	return f.Buf(), f.LabelsByName(), nil
}

// WordsToBytes serializes words in little-endian order.
func WordsToBytes(words []uint16) []byte {
	out := make([]byte, len(words)*2)
	for i, w := range words {
		binary.LittleEndian.PutUint16(out[i*2:], w)
	}
	return out
}
