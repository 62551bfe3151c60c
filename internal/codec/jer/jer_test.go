package jer

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

const source = `M DEFINITIONS ::= BEGIN
	T ::= SEQUENCE {
		n   INTEGER,
		on  BOOLEAN,
		e   ENUMERATED { off(0), idle(1), busy(2) },
		b   OCTET STRING OPTIONAL,
		who CHOICE { name UTF8String, id INTEGER } OPTIONAL
	}
END`

func TestEncodeShapes(t *testing.T) {
	s := compile(t, source)
	out, err := Encode(s, typeID(t, s, "T"), map[string]any{
		"n":   int64(5),
		"on":  true,
		"e":   "busy",
		"b":   []byte{0xAB},
		"who": asn1.Choice{Alt: "id", Value: int64(7)},
	}, Options{})
	testutil.NoError(t, err, "encode")
	text := string(out)
	testutil.Contains(t, text, `"n":5`, "integer")
	testutil.Contains(t, text, `"on":true`, "boolean")
	testutil.Contains(t, text, `"e":"busy"`, "label")
	testutil.Contains(t, text, `"b":"AB"`, "hex octets")
	testutil.Contains(t, text, `"who":{"id":7}`, "choice object")
}

func TestNumericEnums(t *testing.T) {
	s := compile(t, source)
	out, err := Encode(s, typeID(t, s, "T"), map[string]any{
		"n": int64(1), "on": false, "e": "busy",
	}, Options{NumericEnums: true})
	testutil.NoError(t, err, "encode")
	testutil.Contains(t, string(out), `"e":2`, "numeric enum")
}

func TestRoundTrip(t *testing.T) {
	s := compile(t, source)
	value := map[string]any{
		"n":   int64(-12),
		"on":  false,
		"e":   "idle",
		"who": asn1.Choice{Alt: "name", Value: "ada"},
	}
	encoded, err := Encode(s, typeID(t, s, "T"), value, Options{})
	testutil.NoError(t, err, "encode")
	decoded, n, err := Decode(s, typeID(t, s, "T"), encoded, Options{})
	testutil.NoError(t, err, "decode")
	testutil.Equal(t, len(encoded), n, "consumed")

	got := decoded.(map[string]any)
	testutil.Equal(t, int64(-12), got["n"].(int64), "n")
	testutil.Equal(t, "idle", got["e"].(string), "e")
	choice := got["who"].(asn1.Choice)
	testutil.Equal(t, "name", choice.Alt, "choice alt")
	testutil.Equal(t, "ada", choice.Value.(string), "choice value")
}

func TestBitStringShape(t *testing.T) {
	s := compile(t, `M DEFINITIONS ::= BEGIN B ::= BIT STRING END`)
	bs := asn1.BitString{Bytes: []byte{0xA0}, BitLength: 4}
	encoded, err := Encode(s, typeID(t, s, "B"), bs, Options{})
	testutil.NoError(t, err, "encode")
	testutil.Contains(t, string(encoded), `"length":4`, "length field")

	decoded, _, err := Decode(s, typeID(t, s, "B"), encoded, Options{})
	testutil.NoError(t, err, "decode")
	testutil.Equal(t, 4, decoded.(asn1.BitString).BitLength, "bit length")
}

func TestDecodeBadJSON(t *testing.T) {
	s := compile(t, `M DEFINITIONS ::= BEGIN I ::= INTEGER END`)
	_, _, err := Decode(s, typeID(t, s, "I"), []byte("{nope"), Options{})
	testutil.Error(t, err, "invalid JSON")
}
