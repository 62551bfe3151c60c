package xer

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

func TestEncodeDocument(t *testing.T) {
	s := compile(t, `M DEFINITIONS ::= BEGIN
		T ::= SEQUENCE { a INTEGER, b BOOLEAN, s UTF8String }
	END`)
	out, err := Encode(s, typeID(t, s, "T"), map[string]any{
		"a": int64(5), "b": true, "s": "x<y",
	})
	testutil.NoError(t, err, "encode")
	testutil.Equal(t,
		"<T><a>5</a><b><true/></b><s>x&lt;y</s></T>",
		string(out), "document")
}

func TestRoundTrip(t *testing.T) {
	s := compile(t, `M DEFINITIONS ::= BEGIN
		T ::= SEQUENCE {
			a INTEGER,
			c CHOICE { x BOOLEAN, y INTEGER },
			l SEQUENCE OF INTEGER
		}
	END`)
	value := map[string]any{
		"a": int64(-3),
		"c": asn1.Choice{Alt: "x", Value: true},
		"l": []any{int64(1), int64(2)},
	}
	encoded, err := Encode(s, typeID(t, s, "T"), value)
	testutil.NoError(t, err, "encode")
	decoded, _, err := Decode(s, typeID(t, s, "T"), encoded)
	testutil.NoError(t, err, "decode")

	got := decoded.(map[string]any)
	testutil.Equal(t, int64(-3), got["a"].(int64), "a")
	testutil.Equal(t, true, got["c"].(asn1.Choice).Value.(bool), "choice")
	testutil.Len(t, got["l"].([]any), 2, "list")
}

func TestBitStringRoundTrip(t *testing.T) {
	s := compile(t, `M DEFINITIONS ::= BEGIN B ::= BIT STRING END`)
	bs := asn1.BitString{Bytes: []byte{0xA0}, BitLength: 4}
	encoded, err := Encode(s, typeID(t, s, "B"), bs)
	testutil.NoError(t, err, "encode")
	testutil.Equal(t, "<B>1010</B>", string(encoded), "bits")

	decoded, _, err := Decode(s, typeID(t, s, "B"), encoded)
	testutil.NoError(t, err, "decode")
	testutil.Equal(t, 4, decoded.(asn1.BitString).BitLength, "length")
}

func TestEnumeratedElement(t *testing.T) {
	s := compile(t, `M DEFINITIONS ::= BEGIN
		E ::= ENUMERATED { red, green }
	END`)
	encoded, err := Encode(s, typeID(t, s, "E"), "green")
	testutil.NoError(t, err, "encode")
	testutil.Equal(t, "<E><green/></E>", string(encoded), "empty element")

	decoded, _, err := Decode(s, typeID(t, s, "E"), encoded)
	testutil.NoError(t, err, "decode")
	testutil.Equal(t, "green", decoded.(string), "label")
}
