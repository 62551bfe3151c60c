package per

import (
	"testing"

	"github.com/golangasn1/goasn1/asn1"
	"github.com/golangasn1/goasn1/internal/modtab"
	"github.com/golangasn1/goasn1/internal/parser"
	"github.com/golangasn1/goasn1/internal/resolver"
	"github.com/golangasn1/goasn1/internal/testutil"
)

func compile(t *testing.T, source string) *asn1.Schema {
	t.Helper()
	table := modtab.New(nil)
	p := parser.New([]byte(source), nil)
	for _, m := range p.ParseModules() {
		for _, d := range m.Diagnostics {
			t.Fatalf("parse diagnostic: %s", d.Message)
		}
		if err := table.Add(m); err != nil {
			t.Fatal(err)
		}
	}
	schema, errs := resolver.Resolve(table, false, nil)
	if schema == nil {
		t.Fatalf("resolve failed: %v", errs)
	}
	return schema
}

func typeID(t *testing.T, s *asn1.Schema, name string) asn1.TypeID {
	t.Helper()
	id, ok := s.Lookup(name)
	if !ok {
		t.Fatalf("type %q not found", name)
	}
	return id
}

func uperHex(t *testing.T, s *asn1.Schema, name string, v any) []byte {
	t.Helper()
	out, err := Encode(s, typeID(t, s, name), v, false)
	testutil.NoError(t, err, "uper encode %s", name)
	return out
}

func roundTrip(t *testing.T, s *asn1.Schema, name string, v any, aligned bool) any {
	t.Helper()
	encoded, err := Encode(s, typeID(t, s, name), v, aligned)
	testutil.NoError(t, err, "encode %s", name)
	decoded, n, err := Decode(s, typeID(t, s, name), encoded, aligned)
	testutil.NoError(t, err, "decode %s", name)
	testutil.Equal(t, len(encoded), n, "consumed all of %s", name)
	return decoded
}

func TestBooleanUPER(t *testing.T) {
	s := compile(t, `M DEFINITIONS ::= BEGIN B ::= BOOLEAN END`)
	testutil.BytesEqual(t, []byte{0x80}, uperHex(t, s, "B", true), "true")
	testutil.BytesEqual(t, []byte{0x00}, uperHex(t, s, "B", false), "false")
}

func TestConstrainedIntegerUPER(t *testing.T) {
	s := compile(t, `M DEFINITIONS ::= BEGIN
		I ::= INTEGER (0..100)
		J ::= INTEGER (5..5)
	END`)
	// 7 in 7 bits: 0000111, padded.
	testutil.BytesEqual(t, []byte{0x0E}, uperHex(t, s, "I", int64(7)), "7 in 0..100")
	// A one-value range takes no bits; a complete encoding pads to one
	// zero octet.
	testutil.BytesEqual(t, []byte{0x00}, uperHex(t, s, "J", int64(5)), "fixed value")

	testutil.Equal(t, int64(42), roundTrip(t, s, "I", int64(42), false).(int64), "round trip")
	testutil.Equal(t, int64(5), roundTrip(t, s, "J", int64(5), false).(int64), "fixed round trip")
}

func TestUnconstrainedIntegerUPER(t *testing.T) {
	s := compile(t, `M DEFINITIONS ::= BEGIN I ::= INTEGER END`)
	// Length 1, body 0x05.
	testutil.BytesEqual(t, []byte{0x01, 0x05}, uperHex(t, s, "I", int64(5)), "5")
	for _, v := range []int64{0, -1, 127, 128, -129, 1 << 40} {
		testutil.Equal(t, v, roundTrip(t, s, "I", v, false).(int64), "round trip %d", v)
	}
}

func TestSemiConstrainedIntegerUPER(t *testing.T) {
	s := compile(t, `M DEFINITIONS ::= BEGIN I ::= INTEGER (0..MAX) END`)
	// Offset 5 from lower bound 0: length 1, octet 05.
	testutil.BytesEqual(t, []byte{0x01, 0x05}, uperHex(t, s, "I", int64(5)), "5")
	testutil.Equal(t, int64(300), roundTrip(t, s, "I", int64(300), false).(int64), "round trip")
}

func TestExtensibleIntegerUPER(t *testing.T) {
	s := compile(t, `M DEFINITIONS ::= BEGIN I ::= INTEGER (0..7, ...) END`)
	// In root: extension bit 0 then 3 bits of value.
	testutil.BytesEqual(t, []byte{0x50}, uperHex(t, s, "I", int64(5)), "root value")
	// Outside root: extension bit 1 then unconstrained form.
	testutil.Equal(t, int64(100), roundTrip(t, s, "I", int64(100), false).(int64), "extension value")
}

func TestOptionalSequenceUPER(t *testing.T) {
	s := compile(t, `M DEFINITIONS ::= BEGIN
		T ::= SEQUENCE { a INTEGER, b BOOLEAN OPTIONAL }
	END`)
	// Optional bit 0, length 1, body 05: bits 0 00000001 00000101 padded.
	testutil.BytesEqual(t, []byte{0x00, 0x82, 0x80},
		uperHex(t, s, "T", map[string]any{"a": int64(5)}), "b absent")

	decoded := roundTrip(t, s, "T", map[string]any{"a": int64(5)}, false).(map[string]any)
	testutil.Equal(t, int64(5), decoded["a"].(int64), "a")
	_, present := decoded["b"]
	testutil.False(t, present, "b absent")

	both := roundTrip(t, s, "T",
		map[string]any{"a": int64(5), "b": true}, false).(map[string]any)
	testutil.Equal(t, true, both["b"].(bool), "b present")
}

func TestChoiceUPER(t *testing.T) {
	s := compile(t, `M DEFINITIONS ::= BEGIN
		C ::= CHOICE { a INTEGER, b BOOLEAN }
	END`)
	// Alternative index 1 (one bit), then the boolean bit.
	testutil.BytesEqual(t, []byte{0xC0},
		uperHex(t, s, "C", asn1.Choice{Alt: "b", Value: true}), "b true")

	decoded := roundTrip(t, s, "C", asn1.Choice{Alt: "a", Value: int64(9)}, false).(asn1.Choice)
	testutil.Equal(t, "a", decoded.Alt, "alt")
	testutil.Equal(t, int64(9), decoded.Value.(int64), "value")
}

func TestExtensibleChoiceUPER(t *testing.T) {
	s := compile(t, `M DEFINITIONS ::= BEGIN
		C ::= CHOICE { a INTEGER, ..., b BOOLEAN }
	END`)
	root := roundTrip(t, s, "C", asn1.Choice{Alt: "a", Value: int64(3)}, false).(asn1.Choice)
	testutil.Equal(t, "a", root.Alt, "root alt")

	ext := roundTrip(t, s, "C", asn1.Choice{Alt: "b", Value: true}, false).(asn1.Choice)
	testutil.Equal(t, "b", ext.Alt, "ext alt")
	testutil.Equal(t, true, ext.Value.(bool), "ext value")
}

func TestEnumeratedUPER(t *testing.T) {
	s := compile(t, `M DEFINITIONS ::= BEGIN
		E ::= ENUMERATED { red, green, blue }
	END`)
	// Index 1 of 3 in 2 bits.
	testutil.BytesEqual(t, []byte{0x40}, uperHex(t, s, "E", "green"), "green")
	testutil.Equal(t, "blue", roundTrip(t, s, "E", "blue", false).(string), "round trip")
}

func TestFixedOctetStringUPER(t *testing.T) {
	s := compile(t, `M DEFINITIONS ::= BEGIN
		O ::= OCTET STRING (SIZE (2))
	END`)
	// Fixed size: no length prefix.
	testutil.BytesEqual(t, []byte{0xAB, 0xCD},
		uperHex(t, s, "O", []byte{0xAB, 0xCD}), "raw")
	decoded := roundTrip(t, s, "O", []byte{0xAB, 0xCD}, false).([]byte)
	testutil.BytesEqual(t, []byte{0xAB, 0xCD}, decoded, "round trip")
}

func TestVariableOctetStringUPER(t *testing.T) {
	s := compile(t, `M DEFINITIONS ::= BEGIN O ::= OCTET STRING END`)
	testutil.BytesEqual(t, []byte{0x02, 0xAB, 0xCD},
		uperHex(t, s, "O", []byte{0xAB, 0xCD}), "length prefixed")
}

func TestSizeRangeOctetStringUPER(t *testing.T) {
	s := compile(t, `M DEFINITIONS ::= BEGIN
		O ::= OCTET STRING (SIZE (1..4))
	END`)
	// Size 2 encodes as (2-1) in 2 bits, then the octets bit-packed.
	decoded := roundTrip(t, s, "O", []byte{0x01, 0x02}, false).([]byte)
	testutil.BytesEqual(t, []byte{0x01, 0x02}, decoded, "round trip")

	_, err := Encode(s, typeID(t, s, "O"), []byte{1, 2, 3, 4, 5}, false)
	testutil.Error(t, err, "size violation")
}

func TestBitStringUPER(t *testing.T) {
	s := compile(t, `M DEFINITIONS ::= BEGIN
		B ::= BIT STRING
		F ::= BIT STRING (SIZE (4))
	END`)
	bs := asn1.BitString{Bytes: []byte{0xA0}, BitLength: 4}
	// Unconstrained: length 4 then bits 1010.
	testutil.BytesEqual(t, []byte{0x04, 0xA0}, uperHex(t, s, "B", bs), "length+bits")
	// Fixed 4 bits: just the bits.
	testutil.BytesEqual(t, []byte{0xA0}, uperHex(t, s, "F", bs), "raw bits")

	decoded := roundTrip(t, s, "B", bs, false).(asn1.BitString)
	testutil.Equal(t, 4, decoded.BitLength, "bit length")
}

func TestIA5StringUPER(t *testing.T) {
	s := compile(t, `M DEFINITIONS ::= BEGIN S ::= IA5String END`)
	// Length 2, then 7-bit characters.
	testutil.BytesEqual(t, []byte{0x02, 0xD1, 0xA4}, uperHex(t, s, "S", "hi"), "hi")
	testutil.Equal(t, "hello", roundTrip(t, s, "S", "hello", false).(string), "round trip")
}

func TestAlphabetConstrainedStringUPER(t *testing.T) {
	s := compile(t, `M DEFINITIONS ::= BEGIN
		S ::= IA5String (FROM ("a".."d"))
	END`)
	// 2 bits per character as alphabet indexes: length 2, then a=00 d=11.
	testutil.BytesEqual(t, []byte{0x02, 0x30}, uperHex(t, s, "S", "ad"), "ad")
	testutil.Equal(t, "abcd", roundTrip(t, s, "S", "abcd", false).(string), "round trip")

	_, err := Encode(s, typeID(t, s, "S"), "xyz", false)
	testutil.Error(t, err, "alphabet violation")
}

func TestNumericStringUPER(t *testing.T) {
	s := compile(t, `M DEFINITIONS ::= BEGIN S ::= NumericString END`)
	testutil.Equal(t, "123 45", roundTrip(t, s, "S", "123 45", false).(string), "round trip")
}

func TestUTF8StringUPER(t *testing.T) {
	s := compile(t, `M DEFINITIONS ::= BEGIN S ::= UTF8String END`)
	testutil.Equal(t, "héllo", roundTrip(t, s, "S", "héllo", false).(string), "round trip")
}

func TestSequenceOfUPER(t *testing.T) {
	s := compile(t, `M DEFINITIONS ::= BEGIN
		L ::= SEQUENCE OF BOOLEAN
		B ::= SEQUENCE SIZE (1..4) OF INTEGER (0..7)
	END`)
	decoded := roundTrip(t, s, "L", []any{true, false, true}, false).([]any)
	testutil.Len(t, decoded, 3, "elements")
	testutil.Equal(t, true, decoded[0].(bool), "first")

	// Bounded: count (3-1=2 in 2 bits) then three 3-bit integers.
	bounded := roundTrip(t, s, "B", []any{int64(1), int64(2), int64(3)}, false).([]any)
	testutil.Len(t, bounded, 3, "bounded elements")
	testutil.Equal(t, int64(2), bounded[1].(int64), "second")
}

func TestExtensibleSequenceUPER(t *testing.T) {
	s := compile(t, `M DEFINITIONS ::= BEGIN
		T ::= SEQUENCE { a INTEGER (0..7), ..., b BOOLEAN }
	END`)
	// No extension members: bit 0 preamble.
	plain := roundTrip(t, s, "T", map[string]any{"a": int64(3)}, false).(map[string]any)
	testutil.Equal(t, int64(3), plain["a"].(int64), "root only")

	// Extension member present: open-type framing round trips.
	both := roundTrip(t, s, "T",
		map[string]any{"a": int64(3), "b": true}, false).(map[string]any)
	testutil.Equal(t, true, both["b"].(bool), "extension decoded")
}

func TestExtensionGroupUPER(t *testing.T) {
	s := compile(t, `M DEFINITIONS ::= BEGIN
		T ::= SEQUENCE {
			a INTEGER (0..7),
			...,
			[[ b BOOLEAN, c INTEGER (0..3) ]]
		}
	END`)
	v := map[string]any{"a": int64(1), "b": true, "c": int64(2)}
	decoded := roundTrip(t, s, "T", v, false).(map[string]any)
	testutil.Equal(t, true, decoded["b"].(bool), "b")
	testutil.Equal(t, int64(2), decoded["c"].(int64), "c")
}

func TestAlignedPERInteger(t *testing.T) {
	s := compile(t, `M DEFINITIONS ::= BEGIN
		I ::= INTEGER (0..1000)
		T ::= SEQUENCE { a BOOLEAN, b INTEGER (0..1000) }
	END`)
	// Range 1001 needs two octets aligned.
	out, err := Encode(s, typeID(t, s, "I"), int64(7), true)
	testutil.NoError(t, err, "encode")
	testutil.BytesEqual(t, []byte{0x00, 0x07}, out, "two octets")

	// The boolean bit forces padding before the aligned integer.
	decoded := roundTrip(t, s, "T", map[string]any{"a": true, "b": int64(300)}, true).(map[string]any)
	testutil.Equal(t, int64(300), decoded["b"].(int64), "b")
}

func TestAlignedPERBooleanRoundTrip(t *testing.T) {
	s := compile(t, `M DEFINITIONS ::= BEGIN B ::= BOOLEAN END`)
	testutil.Equal(t, true, roundTrip(t, s, "B", true, true).(bool), "true")
}

func TestRealUPER(t *testing.T) {
	s := compile(t, `M DEFINITIONS ::= BEGIN R ::= REAL END`)
	testutil.Equal(t, 2.5, roundTrip(t, s, "R", 2.5, false).(float64), "2.5")
	testutil.Equal(t, -0.125, roundTrip(t, s, "R", -0.125, false).(float64), "-0.125")
}

func TestOIDUPER(t *testing.T) {
	s := compile(t, `M DEFINITIONS ::= BEGIN O ::= OBJECT IDENTIFIER END`)
	oid := asn1.OID{1, 2, 840, 113549}
	decoded := roundTrip(t, s, "O", oid, false).(asn1.OID)
	testutil.True(t, decoded.Equal(oid), "round trip")
}

func TestConstraintViolationUPER(t *testing.T) {
	s := compile(t, `M DEFINITIONS ::= BEGIN I ::= INTEGER (0..100) END`)
	_, err := Encode(s, typeID(t, s, "I"), int64(127), false)
	testutil.Error(t, err, "127 outside root")
	_, ok := err.(*asn1.ConstraintViolation)
	testutil.True(t, ok, "is ConstraintViolation")
}

func TestOutOfBufferUPER(t *testing.T) {
	s := compile(t, `M DEFINITIONS ::= BEGIN O ::= OCTET STRING END`)
	// Length 100 with two octets supplied.
	_, _, err := Decode(s, typeID(t, s, "O"), []byte{0x64, 0x01, 0x02}, false)
	testutil.Error(t, err, "out of buffer")
	decodeErr, ok := err.(*asn1.DecodeError)
	testutil.True(t, ok, "is DecodeError")
	testutil.Equal(t, asn1.DecodeOutOfBuffer, decodeErr.Kind, "kind")
}
