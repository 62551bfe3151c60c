package oer

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

func encode(t *testing.T, s *asn1.Schema, name string, v any) []byte {
	t.Helper()
	out, err := Encode(s, typeID(t, s, name), v)
	testutil.NoError(t, err, "encode %s", name)
	return out
}

func roundTrip(t *testing.T, s *asn1.Schema, name string, v any) any {
	t.Helper()
	encoded := encode(t, s, name, v)
	decoded, n, err := Decode(s, typeID(t, s, name), encoded)
	testutil.NoError(t, err, "decode %s", name)
	testutil.Equal(t, len(encoded), n, "consumed all of %s", name)
	return decoded
}

func TestBooleanOER(t *testing.T) {
	s := compile(t, `M DEFINITIONS ::= BEGIN B ::= BOOLEAN END`)
	testutil.BytesEqual(t, []byte{0xFF}, encode(t, s, "B", true), "true")
	testutil.BytesEqual(t, []byte{0x00}, encode(t, s, "B", false), "false")
}

func TestFixedWidthIntegers(t *testing.T) {
	s := compile(t, `M DEFINITIONS ::= BEGIN
		U1 ::= INTEGER (0..255)
		U2 ::= INTEGER (0..65535)
		S1 ::= INTEGER (-128..127)
		U4 ::= INTEGER (0..4294967295)
	END`)
	testutil.BytesEqual(t, []byte{0x07}, encode(t, s, "U1", int64(7)), "one octet")
	testutil.BytesEqual(t, []byte{0x01, 0x00}, encode(t, s, "U2", int64(256)), "two octets")
	testutil.BytesEqual(t, []byte{0x80}, encode(t, s, "S1", int64(-128)), "signed")
	testutil.BytesEqual(t, []byte{0x00, 0x00, 0x01, 0x00}, encode(t, s, "U4", int64(256)), "four octets")

	testutil.Equal(t, int64(-100), roundTrip(t, s, "S1", int64(-100)).(int64), "signed rt")
	testutil.Equal(t, int64(70000), roundTrip(t, s, "U4", int64(70000)).(int64), "u4 rt")
}

func TestUnconstrainedIntegerOER(t *testing.T) {
	s := compile(t, `M DEFINITIONS ::= BEGIN I ::= INTEGER END`)
	testutil.BytesEqual(t, []byte{0x01, 0x05}, encode(t, s, "I", int64(5)), "5")
	for _, v := range []int64{0, -1, 300, -300, 1 << 50} {
		testutil.Equal(t, v, roundTrip(t, s, "I", v).(int64), "round trip %d", v)
	}
}

func TestSequenceOER(t *testing.T) {
	s := compile(t, `M DEFINITIONS ::= BEGIN
		T ::= SEQUENCE { a INTEGER (0..255), b BOOLEAN OPTIONAL }
	END`)
	// Preamble 0x00 (b absent), then a.
	testutil.BytesEqual(t, []byte{0x00, 0x05},
		encode(t, s, "T", map[string]any{"a": int64(5)}), "b absent")
	// Preamble 0x80 (b present), a, b.
	testutil.BytesEqual(t, []byte{0x80, 0x05, 0xFF},
		encode(t, s, "T", map[string]any{"a": int64(5), "b": true}), "b present")

	decoded := roundTrip(t, s, "T", map[string]any{"a": int64(5), "b": true}).(map[string]any)
	testutil.Equal(t, true, decoded["b"].(bool), "b")
}

func TestSequenceNoPreambleOER(t *testing.T) {
	s := compile(t, `M DEFINITIONS ::= BEGIN
		T ::= SEQUENCE { a INTEGER (0..255), b BOOLEAN }
	END`)
	// No optionals, not extensible: no preamble octet.
	testutil.BytesEqual(t, []byte{0x05, 0xFF},
		encode(t, s, "T", map[string]any{"a": int64(5), "b": true}), "no preamble")
}

func TestChoiceOER(t *testing.T) {
	s := compile(t, `M DEFINITIONS AUTOMATIC TAGS ::= BEGIN
		C ::= CHOICE { a INTEGER, b BOOLEAN }
	END`)
	// Tag [1] then the boolean.
	testutil.BytesEqual(t, []byte{0x81, 0xFF},
		encode(t, s, "C", asn1.Choice{Alt: "b", Value: true}), "b")

	decoded := roundTrip(t, s, "C", asn1.Choice{Alt: "a", Value: int64(5)}).(asn1.Choice)
	testutil.Equal(t, "a", decoded.Alt, "alt")
	testutil.Equal(t, int64(5), decoded.Value.(int64), "value")
}

func TestSequenceOfOER(t *testing.T) {
	s := compile(t, `M DEFINITIONS ::= BEGIN
		L ::= SEQUENCE OF INTEGER (0..255)
	END`)
	// Quantity: length 1, count 3; then the elements.
	testutil.BytesEqual(t, []byte{0x01, 0x03, 0x01, 0x02, 0x03},
		encode(t, s, "L", []any{int64(1), int64(2), int64(3)}), "list")

	decoded := roundTrip(t, s, "L", []any{int64(9)}).([]any)
	testutil.Equal(t, int64(9), decoded[0].(int64), "element")
}

func TestOctetStringOER(t *testing.T) {
	s := compile(t, `M DEFINITIONS ::= BEGIN
		O ::= OCTET STRING
		F ::= OCTET STRING (SIZE (3))
	END`)
	testutil.BytesEqual(t, []byte{0x02, 0xAB, 0xCD},
		encode(t, s, "O", []byte{0xAB, 0xCD}), "length prefixed")
	testutil.BytesEqual(t, []byte{0x01, 0x02, 0x03},
		encode(t, s, "F", []byte{1, 2, 3}), "fixed raw")

	decoded := roundTrip(t, s, "F", []byte{1, 2, 3}).([]byte)
	testutil.BytesEqual(t, []byte{1, 2, 3}, decoded, "fixed rt")
}

func TestBitStringOER(t *testing.T) {
	s := compile(t, `M DEFINITIONS ::= BEGIN
		B ::= BIT STRING
		F ::= BIT STRING (SIZE (4))
	END`)
	bs := asn1.BitString{Bytes: []byte{0xA0}, BitLength: 4}
	// Unconstrained: length 2 (unused octet + data), unused 4, bits.
	testutil.BytesEqual(t, []byte{0x02, 0x04, 0xA0}, encode(t, s, "B", bs), "var")
	// Fixed 4 bits: one padded octet.
	testutil.BytesEqual(t, []byte{0xA0}, encode(t, s, "F", bs), "fixed")

	decoded := roundTrip(t, s, "B", bs).(asn1.BitString)
	testutil.Equal(t, 4, decoded.BitLength, "bits")
}

func TestEnumeratedOER(t *testing.T) {
	s := compile(t, `M DEFINITIONS ::= BEGIN
		E ::= ENUMERATED { red(0), green(1), big(200) }
	END`)
	testutil.BytesEqual(t, []byte{0x01}, encode(t, s, "E", "green"), "short form")
	testutil.BytesEqual(t, []byte{0x82, 0x00, 0xC8}, encode(t, s, "E", "big"), "long form")
	testutil.Equal(t, "big", roundTrip(t, s, "E", "big").(string), "round trip")
}

func TestExtensibleSequenceOER(t *testing.T) {
	s := compile(t, `M DEFINITIONS ::= BEGIN
		T ::= SEQUENCE { a INTEGER (0..255), ..., b BOOLEAN }
	END`)
	plain := roundTrip(t, s, "T", map[string]any{"a": int64(5)}).(map[string]any)
	testutil.Equal(t, int64(5), plain["a"].(int64), "root only")

	both := roundTrip(t, s, "T", map[string]any{"a": int64(5), "b": true}).(map[string]any)
	testutil.Equal(t, true, both["b"].(bool), "extension decoded")
}

func TestIA5StringOER(t *testing.T) {
	s := compile(t, `M DEFINITIONS ::= BEGIN
		S ::= IA5String
		F ::= IA5String (SIZE (2))
	END`)
	testutil.BytesEqual(t, []byte{0x02, 'h', 'i'}, encode(t, s, "S", "hi"), "var")
	testutil.BytesEqual(t, []byte{'o', 'k'}, encode(t, s, "F", "ok"), "fixed")
	testutil.Equal(t, "hi", roundTrip(t, s, "S", "hi").(string), "round trip")
}

func TestTruncatedOER(t *testing.T) {
	s := compile(t, `M DEFINITIONS ::= BEGIN O ::= OCTET STRING END`)
	_, _, err := Decode(s, typeID(t, s, "O"), []byte{0x64, 0x01})
	testutil.Error(t, err, "length past input")
	decodeErr, ok := err.(*asn1.DecodeError)
	testutil.True(t, ok, "is DecodeError")
	testutil.Equal(t, asn1.DecodeOutOfBuffer, decodeErr.Kind, "kind")
}
