package asn1

import (
	"math/big"
	"math/bits"
	"sort"
)

// Hints carries values precomputed at freeze time that codecs would
// otherwise re-derive on every call: effective bounds, PER bit widths,
// alphabet tables, optional-member bitmaps.
type Hints struct {
	// Bounded is set when the root value constraint is closed on both
	// ends; Lo/Hi are then the inclusive bounds and RangeBits the
	// constrained-whole-number width in bits (0 when Lo == Hi).
	Bounded   bool
	Lo, Hi    *big.Int
	RangeBits int

	// SemiConstrained is set when only a lower bound exists.
	SemiConstrained bool

	// SizeBounded is set when the size constraint is closed; FixedSize
	// additionally means SizeLo == SizeHi with no extension marker.
	SizeBounded    bool
	SizeLo, SizeHi int64
	FixedSize      bool

	// ExtensibleConstraint mirrors Constraint.Extensible.
	ExtensibleConstraint bool

	// Alphabet is the effective permitted alphabet of a character string
	// (sorted), CharBits the unaligned bits per character and
	// AlignedCharBits the aligned width. IndexedChars selects index
	// encoding instead of direct character codes. CharBits 0 means the
	// string is octet-oriented (UTF8String and friends).
	Alphabet        string
	CharBits        int
	AlignedCharBits int
	IndexedChars    bool

	// OptionalIdx lists indexes into Members of root members that are
	// OPTIONAL or DEFAULT, in declaration order — the PER/OER preamble
	// bitmap.
	OptionalIdx []int

	// RootAlternatives is the number of root CHOICE alternatives and
	// ChoiceBits the constrained-whole-number width of the index.
	RootAlternatives int
	ChoiceBits       int
}

// canonicalAlphabets per X.691 §27.5 for the known-multiplier character
// string types. Types absent here are octet-oriented.
var canonicalAlphabets = map[string]string{
	"NumericString":   " 0123456789",
	"PrintableString": " '()+,-./0123456789:=?ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz",
	"VisibleString":   visibleAlphabet(),
	"ISO646String":    visibleAlphabet(),
	"IA5String":       ia5Alphabet(),
}

func visibleAlphabet() string {
	b := make([]byte, 0, 95)
	for c := byte(0x20); c <= 0x7E; c++ {
		b = append(b, c)
	}
	return string(b)
}

func ia5Alphabet() string {
	b := make([]byte, 128)
	for i := range b {
		b[i] = byte(i)
	}
	return string(b)
}

// fixedWidthVariants are known-multiplier types encoded as fixed-width
// character codes without an alphabet table.
var fixedWidthVariants = map[string]int{
	"BMPString":       16,
	"UniversalString": 32,
}

// bitWidth returns the number of bits needed to represent n distinct
// values; 0 for n <= 1.
func bitWidth(n uint64) int {
	if n <= 1 {
		return 0
	}
	return bits.Len64(n - 1)
}

// alignUp rounds a character width up to 1, 2, 4, 8, 16, or 32 bits for
// aligned PER.
func alignUp(w int) int {
	for _, a := range []int{1, 2, 4, 8, 16, 32} {
		if w <= a {
			return a
		}
	}
	return w
}

// ComputeHints derives the encoding hints of a type from its kind,
// constraint, and members. The resolver calls it once per node before the
// schema freezes.
func ComputeHints(t *Type) {
	h := Hints{}
	c := t.Constraint

	if c != nil {
		h.ExtensibleConstraint = c.Extensible

		if c.Values != nil && !c.Values.Empty() {
			lo, loOK := c.Values.Min()
			hi, hiOK := c.Values.Max()
			if loOK && hiOK {
				h.Bounded = true
				h.Lo, h.Hi = lo, hi
				span := new(big.Int).Sub(hi, lo)
				if span.IsUint64() {
					h.RangeBits = bitWidth(span.Uint64() + 1)
				} else {
					// A range too wide for a uint64 span encodes as
					// unconstrained.
					h.Bounded = false
				}
			} else if loOK {
				h.SemiConstrained = true
				h.Lo = lo
			}
		}

		if c.Size != nil && !c.Size.Empty() {
			lo, loOK := c.Size.Min()
			hi, hiOK := c.Size.Max()
			if loOK && hiOK && lo.IsInt64() && hi.IsInt64() {
				h.SizeBounded = true
				h.SizeLo, h.SizeHi = lo.Int64(), hi.Int64()
				h.FixedSize = h.SizeLo == h.SizeHi && !c.Extensible
			}
		}
	}

	if t.Kind == KindCharacterString {
		alphabet := ""
		if c != nil && c.Alphabet != "" {
			alphabet = sortAlphabet(c.Alphabet)
		} else if canonical, ok := canonicalAlphabets[t.Variant]; ok {
			alphabet = canonical
		}
		if alphabet != "" {
			h.Alphabet = alphabet
			h.CharBits = bitWidth(uint64(len([]rune(alphabet))))
			if h.CharBits == 0 {
				h.CharBits = 1
			}
			h.AlignedCharBits = alignUp(h.CharBits)
			maxCode := 0
			for _, r := range alphabet {
				if int(r) > maxCode {
					maxCode = int(r)
				}
			}
			// Direct character codes are used when they fit the width;
			// otherwise characters encode as alphabet indexes.
			h.IndexedChars = maxCode >= 1<<h.CharBits
		} else if w, ok := fixedWidthVariants[t.Variant]; ok {
			h.CharBits = w
			h.AlignedCharBits = w
		}
	}

	switch t.Kind {
	case KindSequence, KindSet:
		for i := range t.Members {
			m := &t.Members[i]
			if m.ExtGroup == 0 && (m.Optional || m.Default != nil) {
				h.OptionalIdx = append(h.OptionalIdx, i)
			}
		}
	case KindChoice:
		n := 0
		for i := range t.Members {
			if t.Members[i].ExtGroup == 0 {
				n++
			}
		}
		h.RootAlternatives = n
		h.ChoiceBits = bitWidth(uint64(n))
	}

	t.Hints = h
}

// sortAlphabet sorts the runes of an alphabet ascending and removes
// duplicates.
func sortAlphabet(s string) string {
	runes := []rune(s)
	sort.Slice(runes, func(i, j int) bool { return runes[i] < runes[j] })
	out := runes[:0]
	var prev rune = -1
	for _, r := range runes {
		if r != prev {
			out = append(out, r)
			prev = r
		}
	}
	return string(out)
}
