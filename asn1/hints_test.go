package asn1

import (
	"math/big"
	"testing"
)

func TestComputeHintsBounded(t *testing.T) {
	typ := Type{
		Kind: KindInteger,
		Constraint: &Constraint{
			Values: NewRangeSet(ValueRange{Lo: Bounded(0), Hi: Bounded(100)}),
		},
	}
	ComputeHints(&typ)
	if !typ.Hints.Bounded {
		t.Fatal("should be bounded")
	}
	if typ.Hints.RangeBits != 7 {
		t.Errorf("range bits = %d, want 7", typ.Hints.RangeBits)
	}
}

func TestComputeHintsSingleValue(t *testing.T) {
	typ := Type{
		Kind:       KindInteger,
		Constraint: &Constraint{Values: SingleValue(big.NewInt(5))},
	}
	ComputeHints(&typ)
	if typ.Hints.RangeBits != 0 {
		t.Errorf("single value needs 0 bits, got %d", typ.Hints.RangeBits)
	}
}

func TestComputeHintsFixedSize(t *testing.T) {
	typ := Type{
		Kind: KindOctetString,
		Constraint: &Constraint{
			Size: SingleValue(big.NewInt(4)),
		},
	}
	ComputeHints(&typ)
	if !typ.Hints.FixedSize || typ.Hints.SizeLo != 4 {
		t.Errorf("want fixed size 4, got %+v", typ.Hints)
	}
}

func TestComputeHintsCanonicalAlphabets(t *testing.T) {
	tests := []struct {
		variant string
		bits    int
		indexed bool
	}{
		{"NumericString", 4, true},
		{"IA5String", 7, false},
		{"VisibleString", 7, false},
		{"PrintableString", 7, false},
	}
	for _, tt := range tests {
		typ := Type{Kind: KindCharacterString, Variant: tt.variant}
		ComputeHints(&typ)
		if typ.Hints.CharBits != tt.bits {
			t.Errorf("%s: bits = %d, want %d", tt.variant, typ.Hints.CharBits, tt.bits)
		}
		if typ.Hints.IndexedChars != tt.indexed {
			t.Errorf("%s: indexed = %v, want %v", tt.variant, typ.Hints.IndexedChars, tt.indexed)
		}
	}
}

func TestComputeHintsFixedWidthStrings(t *testing.T) {
	typ := Type{Kind: KindCharacterString, Variant: "BMPString"}
	ComputeHints(&typ)
	if typ.Hints.CharBits != 16 {
		t.Errorf("BMPString bits = %d, want 16", typ.Hints.CharBits)
	}

	utf8 := Type{Kind: KindCharacterString, Variant: "UTF8String"}
	ComputeHints(&utf8)
	if utf8.Hints.CharBits != 0 {
		t.Errorf("UTF8String should be octet-oriented, got %d bits", utf8.Hints.CharBits)
	}
}

func TestComputeHintsOptionalBitmap(t *testing.T) {
	typ := Type{
		Kind: KindSequence,
		Members: []Member{
			{Name: "a"},
			{Name: "b", Optional: true},
			{Name: "c", Default: int64(5)},
			{Name: "d", ExtGroup: 1, Optional: true},
		},
	}
	ComputeHints(&typ)
	if len(typ.Hints.OptionalIdx) != 2 {
		t.Fatalf("optional bitmap covers %d members, want 2", len(typ.Hints.OptionalIdx))
	}
	if typ.Hints.OptionalIdx[0] != 1 || typ.Hints.OptionalIdx[1] != 2 {
		t.Errorf("indexes = %v, want [1 2]", typ.Hints.OptionalIdx)
	}
}

func TestComputeHintsChoice(t *testing.T) {
	typ := Type{
		Kind: KindChoice,
		Members: []Member{
			{Name: "a"}, {Name: "b"}, {Name: "c"},
			{Name: "x", ExtGroup: 1},
		},
	}
	ComputeHints(&typ)
	if typ.Hints.RootAlternatives != 3 {
		t.Errorf("root alternatives = %d, want 3", typ.Hints.RootAlternatives)
	}
	if typ.Hints.ChoiceBits != 2 {
		t.Errorf("choice bits = %d, want 2", typ.Hints.ChoiceBits)
	}
}

func TestValueEqual(t *testing.T) {
	tests := []struct {
		a, b any
		want bool
	}{
		{int64(5), int64(5), true},
		{int64(5), big.NewInt(5), true},
		{int64(5), int64(6), false},
		{"x", "x", true},
		{true, false, false},
		{[]byte{1}, []byte{1}, true},
		{BitString{Bytes: []byte{0x80}, BitLength: 1}, BitString{Bytes: []byte{0x80}, BitLength: 1}, true},
		{OID{1, 2}, OID{1, 2}, true},
		{OID{1, 2}, OID{1, 3}, false},
		{map[string]any{"a": int64(1)}, map[string]any{"a": int64(1)}, true},
		{nil, nil, true},
	}
	for i, tt := range tests {
		if got := ValueEqual(tt.a, tt.b); got != tt.want {
			t.Errorf("case %d: ValueEqual(%v, %v) = %v, want %v", i, tt.a, tt.b, got, tt.want)
		}
	}
}
