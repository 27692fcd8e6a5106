package asm

// OperandKind is the syntactic class an operand placeholder accepts.
type OperandKind int

const (
	KindRegister OperandKind = iota + 1
	KindImmediate
	KindRegList
	KindLabel
)

func (k OperandKind) String() string {
	switch k {
	case KindRegister:
		return "register"
	case KindImmediate:
		return "immediate"
	case KindRegList:
		return "register list"
	case KindLabel:
		return "label"
	default:
		return "unknown"
	}
}

// Encoder validates one operand value and places it into instruction bits.
// Encode must reject values it cannot represent exactly.
type Encoder interface {
	Name() string
	Pretty() string
	Kind() OperandKind
	WordAligned() bool
	Encode(v int64) (uint32, bool)
}

// Segment copies Width bits starting at bit From of the operand value to
// bit To of the instruction.
type Segment struct {
	From  uint
	To    uint
	Width uint
}

// Field is a numeric operand: a register number, an immediate or a label
// displacement. The value is divided by Scale, range checked against
// [Min, Max], then written either shifted by Shift or scattered by Segments.
type Field struct {
	ID      string
	Label   string
	Class   OperandKind
	Min     int64
	Max     int64
	Scale   int64
	Signed  bool  // two's complement, masked to the width implied by Max
	Bias    int64 // subtracted after the range check
	Modulo  int64 // when set, a value equal to Modulo encodes as 0
	Values  []int64
	Invert  bool
	Aligned bool
	Shift   uint
	Segs    []Segment
}

func (f *Field) Name() string      { return f.ID }
func (f *Field) Pretty() string    { return f.Label }
func (f *Field) Kind() OperandKind { return f.Class }
func (f *Field) WordAligned() bool { return f.Aligned }

func (f *Field) Encode(v int64) (uint32, bool) {
	if f.Scale > 1 {
		if v%f.Scale != 0 {
			return 0, false
		}
		v /= f.Scale
	}

	if f.Values != nil {
		idx := -1
		for i, x := range f.Values {
			if x == v {
				idx = i
				break
			}
		}
		if idx < 0 {
			return 0, false
		}
		v = int64(idx)
	} else {
		if v < f.Min || v > f.Max {
			return 0, false
		}
		if f.Modulo != 0 && v == f.Modulo {
			v = 0
		}
		v -= f.Bias
	}

	if f.Signed {
		v &= f.Max<<1 | 1
	}
	if f.Invert {
		v = ^v
	}

	if len(f.Segs) == 0 {
		if v < 0 {
			return 0, false
		}
		return uint32(v) << f.Shift, true
	}

	var bits uint32
	u := uint64(v)
	for _, s := range f.Segs {
		part := (u >> s.From) & (1<<s.Width - 1)
		bits |= uint32(part << s.To)
	}
	return bits, true
}

// RegList encodes a brace-delimited register set given as a bitmask of
// register numbers. Registers below Low map to their own bit; the optional
// Extra register maps to ExtraBit.
type RegList struct {
	ID       string
	Label    string
	Low      int
	Extra    int
	ExtraBit uint32
}

func (r *RegList) Name() string      { return r.ID }
func (r *RegList) Pretty() string    { return r.Label }
func (r *RegList) Kind() OperandKind { return KindRegList }
func (r *RegList) WordAligned() bool { return false }

func (r *RegList) Encode(v int64) (uint32, bool) {
	var bits uint32
	if r.Extra > 0 && v&(1<<r.Extra) != 0 {
		bits |= r.ExtraBit
		v &^= 1 << r.Extra
	}
	if v < 0 || v >= 1<<r.Low {
		return 0, false
	}
	return bits | uint32(v), true
}

// Placeholder accepts any value and always produces Bits. It reserves space
// for operands resolved by a later rewrite.
type Placeholder struct {
	ID    string
	Label string
	Class OperandKind
	Bits  uint32
}

func (p *Placeholder) Name() string      { return p.ID }
func (p *Placeholder) Pretty() string    { return p.Label }
func (p *Placeholder) Kind() OperandKind { return p.Class }
func (p *Placeholder) WordAligned() bool { return false }

func (p *Placeholder) Encode(int64) (uint32, bool) { return p.Bits, true }
