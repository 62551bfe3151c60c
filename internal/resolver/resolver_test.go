package resolver

import (
	"testing"

	"github.com/golangasn1/goasn1/asn1"
	"github.com/golangasn1/goasn1/internal/modtab"
	"github.com/golangasn1/goasn1/internal/parser"
	"github.com/golangasn1/goasn1/internal/testutil"
)

func resolveSource(t *testing.T, sources ...string) (*asn1.Schema, []*asn1.ResolveError) {
	t.Helper()
	table := modtab.New(nil)
	for _, src := range sources {
		p := parser.New([]byte(src), nil)
		for _, m := range p.ParseModules() {
			for _, d := range m.Diagnostics {
				t.Fatalf("parse diagnostic: %s: %s", d.Code, d.Message)
			}
			if err := table.Add(m); err != nil {
				t.Fatalf("add module: %v", err)
			}
		}
	}
	table.DetectCycles()
	return Resolve(table, false, nil)
}

func mustResolve(t *testing.T, sources ...string) *asn1.Schema {
	t.Helper()
	schema, errs := resolveSource(t, sources...)
	for _, err := range errs {
		t.Logf("resolve error: %v", err)
	}
	if schema == nil {
		t.Fatal("resolution failed")
	}
	return schema
}

func lookup(t *testing.T, s *asn1.Schema, name string) *asn1.Type {
	t.Helper()
	id, ok := s.Lookup(name)
	if !ok {
		t.Fatalf("type %q not found", name)
	}
	return s.Type(id)
}

func TestSimpleTypes(t *testing.T) {
	s := mustResolve(t, `M DEFINITIONS ::= BEGIN
		B ::= BOOLEAN
		I ::= INTEGER
		O ::= OCTET STRING
		S ::= IA5String
	END`)
	testutil.Equal(t, asn1.KindBoolean, lookup(t, s, "B").Kind, "B")
	testutil.Equal(t, asn1.KindInteger, lookup(t, s, "I").Kind, "I")
	testutil.Equal(t, asn1.KindOctetString, lookup(t, s, "O").Kind, "O")
	str := lookup(t, s, "S")
	testutil.Equal(t, asn1.KindCharacterString, str.Kind, "S kind")
	testutil.Equal(t, "IA5String", str.Variant, "S variant")
}

func TestReferenceSharesArenaSlot(t *testing.T) {
	s := mustResolve(t, `M DEFINITIONS ::= BEGIN
		A ::= INTEGER
		B ::= SEQUENCE { x A }
	END`)
	b := lookup(t, s, "B")
	aID, _ := s.Lookup("A")
	testutil.Equal(t, aID, b.Members[0].Type, "member shares A's slot")
}

func TestAutomaticTags(t *testing.T) {
	s := mustResolve(t, `M DEFINITIONS AUTOMATIC TAGS ::= BEGIN
		T ::= SEQUENCE { a INTEGER, b BOOLEAN, c IA5String }
	END`)
	typ := lookup(t, s, "T")
	for i, m := range typ.Members {
		member := s.Type(m.Type)
		testutil.Len(t, member.Tags, 1, "member %d tags", i)
		testutil.Equal(t, asn1.ClassContext, member.Tags[0].Class, "member %d class", i)
		testutil.Equal(t, i, member.Tags[0].Number, "member %d number", i)
		testutil.False(t, member.Tags[0].Explicit, "member %d implicit", i)
	}
}

func TestAutomaticTagsDisabledByExplicitTag(t *testing.T) {
	s := mustResolve(t, `M DEFINITIONS AUTOMATIC TAGS ::= BEGIN
		T ::= SEQUENCE { a [5] IMPLICIT INTEGER, b BOOLEAN }
	END`)
	typ := lookup(t, s, "T")
	a := s.Type(typ.Members[0].Type)
	testutil.Equal(t, 5, a.Tags[0].Number, "a keeps its tag")
	b := s.Type(typ.Members[1].Type)
	testutil.Len(t, b.Tags, 0, "b stays untagged")
}

func TestAutomaticTagOverChoiceIsExplicit(t *testing.T) {
	s := mustResolve(t, `M DEFINITIONS AUTOMATIC TAGS ::= BEGIN
		C ::= CHOICE { x INTEGER, y BOOLEAN }
		T ::= SEQUENCE { a C, b INTEGER }
	END`)
	typ := lookup(t, s, "T")
	a := s.Type(typ.Members[0].Type)
	testutil.True(t, a.Tags[0].Explicit, "tag over CHOICE is explicit")
}

func TestExplicitModuleTagging(t *testing.T) {
	s := mustResolve(t, `M DEFINITIONS EXPLICIT TAGS ::= BEGIN
		T ::= [APPLICATION 3] INTEGER
	END`)
	typ := lookup(t, s, "T")
	testutil.Len(t, typ.Tags, 1, "tags")
	testutil.Equal(t, asn1.ClassApplication, typ.Tags[0].Class, "class")
	testutil.True(t, typ.Tags[0].Explicit, "explicit")
}

func TestImplicitModuleTagging(t *testing.T) {
	s := mustResolve(t, `M DEFINITIONS IMPLICIT TAGS ::= BEGIN
		T ::= [APPLICATION 3] INTEGER
	END`)
	typ := lookup(t, s, "T")
	testutil.False(t, typ.Tags[0].Explicit, "implicit")
}

func TestConstraintAttachment(t *testing.T) {
	s := mustResolve(t, `M DEFINITIONS ::= BEGIN
		T ::= INTEGER (0..100)
	END`)
	typ := lookup(t, s, "T")
	testutil.NotNil(t, typ.Constraint, "constraint")
	testutil.True(t, typ.Hints.Bounded, "bounded")
	testutil.Equal(t, int64(0), typ.Hints.Lo.Int64(), "lo")
	testutil.Equal(t, int64(100), typ.Hints.Hi.Int64(), "hi")
	testutil.Equal(t, 7, typ.Hints.RangeBits, "range bits")
}

func TestConstraintMergeOnReference(t *testing.T) {
	s := mustResolve(t, `M DEFINITIONS ::= BEGIN
		A ::= INTEGER (0..100)
		B ::= A (10..20)
	END`)
	b := lookup(t, s, "B")
	testutil.Equal(t, int64(10), b.Hints.Lo.Int64(), "lo narrowed")
	testutil.Equal(t, int64(20), b.Hints.Hi.Int64(), "hi narrowed")

	// The referent must keep its own constraint.
	a := lookup(t, s, "A")
	testutil.Equal(t, int64(100), a.Hints.Hi.Int64(), "A untouched")
}

func TestUnionAndIntersectionConstraints(t *testing.T) {
	s := mustResolve(t, `M DEFINITIONS ::= BEGIN
		T ::= INTEGER (0..10 | 20..30)
		U ::= INTEGER (0..100 ^ 50..200)
	END`)
	typ := lookup(t, s, "T")
	testutil.Len(t, typ.Constraint.Values.Ranges, 2, "union ranges")

	u := lookup(t, s, "U")
	testutil.Equal(t, int64(50), u.Hints.Lo.Int64(), "intersect lo")
	testutil.Equal(t, int64(100), u.Hints.Hi.Int64(), "intersect hi")
}

func TestEmptyRangeRejected(t *testing.T) {
	_, errs := resolveSource(t, `M DEFINITIONS ::= BEGIN
		T ::= INTEGER (10..5)
	END`)
	testutil.True(t, len(errs) > 0, "errors")
	testutil.Equal(t, asn1.ResolveInvalidConstraint, errs[0].Kind, "kind")
}

func TestSizeConstraint(t *testing.T) {
	s := mustResolve(t, `M DEFINITIONS ::= BEGIN
		T ::= OCTET STRING (SIZE (4))
		L ::= SEQUENCE SIZE (1..3) OF INTEGER
	END`)
	typ := lookup(t, s, "T")
	testutil.True(t, typ.Hints.FixedSize, "fixed size")
	testutil.Equal(t, int64(4), typ.Hints.SizeLo, "size")

	l := lookup(t, s, "L")
	testutil.True(t, l.Hints.SizeBounded, "bounded")
	testutil.Equal(t, int64(3), l.Hints.SizeHi, "hi")
}

func TestPermittedAlphabet(t *testing.T) {
	s := mustResolve(t, `M DEFINITIONS ::= BEGIN
		T ::= IA5String (FROM ("a".."d"))
	END`)
	typ := lookup(t, s, "T")
	testutil.Equal(t, "abcd", typ.Constraint.Alphabet, "alphabet")
	testutil.Equal(t, 2, typ.Hints.CharBits, "char bits")
	testutil.True(t, typ.Hints.IndexedChars, "indexed")
}

func TestValueReferenceInConstraint(t *testing.T) {
	s := mustResolve(t, `M DEFINITIONS ::= BEGIN
		max INTEGER ::= 42
		T ::= INTEGER (0..max)
	END`)
	typ := lookup(t, s, "T")
	testutil.Equal(t, int64(42), typ.Hints.Hi.Int64(), "hi from value ref")
}

func TestDefaultFolding(t *testing.T) {
	s := mustResolve(t, `M DEFINITIONS ::= BEGIN
		T ::= SEQUENCE {
			a INTEGER DEFAULT 5,
			b BOOLEAN DEFAULT TRUE,
			c IA5String DEFAULT "hi"
		}
	END`)
	typ := lookup(t, s, "T")
	testutil.Equal(t, int64(5), typ.Members[0].Default.(int64), "a default")
	testutil.Equal(t, true, typ.Members[1].Default.(bool), "b default")
	testutil.Equal(t, "hi", typ.Members[2].Default.(string), "c default")
}

func TestDefaultTypeMismatchRejected(t *testing.T) {
	_, errs := resolveSource(t, `M DEFINITIONS ::= BEGIN
		T ::= SEQUENCE { a INTEGER DEFAULT TRUE }
	END`)
	testutil.True(t, len(errs) > 0, "errors")
	testutil.Equal(t, asn1.ResolveTypeMismatch, errs[0].Kind, "kind")
}

func TestImports(t *testing.T) {
	s := mustResolve(t,
		`M1 DEFINITIONS ::= BEGIN
			IMPORTS Shared FROM M2;
			T ::= SEQUENCE { a Shared }
		END`,
		`M2 DEFINITIONS ::= BEGIN
			Shared ::= INTEGER (0..7)
		END`)
	typ := lookup(t, s, "T")
	member := s.Type(typ.Members[0].Type)
	testutil.Equal(t, asn1.KindInteger, member.Kind, "imported kind")
	testutil.Equal(t, int64(7), member.Hints.Hi.Int64(), "imported constraint")
}

func TestUnknownImportRejected(t *testing.T) {
	_, errs := resolveSource(t,
		`M1 DEFINITIONS ::= BEGIN
			IMPORTS Missing FROM M2;
			T ::= Missing
		END`,
		`M2 DEFINITIONS ::= BEGIN
			Other ::= INTEGER
		END`)
	testutil.True(t, len(errs) > 0, "errors")
	testutil.Equal(t, asn1.ResolveUnknownImport, errs[0].Kind, "kind")
}

func TestUnknownReferenceRejected(t *testing.T) {
	_, errs := resolveSource(t, `M DEFINITIONS ::= BEGIN
		T ::= SEQUENCE { a Nowhere }
	END`)
	testutil.True(t, len(errs) > 0, "errors")
	testutil.Equal(t, asn1.ResolveUnknownReference, errs[0].Kind, "kind")
}

func TestParameterizedInstantiation(t *testing.T) {
	s := mustResolve(t, `M DEFINITIONS ::= BEGIN
		A { B } ::= SEQUENCE { a B }
		AInt ::= A { INTEGER }
		ABool ::= A { BOOLEAN }
	END`)
	ai := lookup(t, s, "AInt")
	testutil.Equal(t, asn1.KindSequence, ai.Kind, "AInt kind")
	testutil.Equal(t, asn1.KindInteger, s.Type(ai.Members[0].Type).Kind, "AInt member")

	ab := lookup(t, s, "ABool")
	testutil.Equal(t, asn1.KindBoolean, s.Type(ab.Members[0].Type).Kind, "ABool member")
}

func TestValueParameterInConstraint(t *testing.T) {
	s := mustResolve(t, `M DEFINITIONS ::= BEGIN
		Bounded { INTEGER : ub } ::= INTEGER (0..ub)
		Small ::= Bounded { 15 }
	END`)
	small := lookup(t, s, "Small")
	testutil.Equal(t, int64(15), small.Hints.Hi.Int64(), "substituted bound")
	testutil.Equal(t, 4, small.Hints.RangeBits, "bits")
}

func TestParameterizedEquivalence(t *testing.T) {
	s := mustResolve(t, `M DEFINITIONS ::= BEGIN
		A { B } ::= SEQUENCE { a B }
		AInt ::= A { INTEGER }
		Hand ::= SEQUENCE { a INTEGER }
	END`)
	ai := lookup(t, s, "AInt")
	hand := lookup(t, s, "Hand")
	testutil.Equal(t, hand.Kind, ai.Kind, "kind")
	testutil.Len(t, ai.Members, 1, "members")
	testutil.Equal(t, hand.Members[0].Name, ai.Members[0].Name, "member name")
	testutil.Equal(t,
		s.Type(hand.Members[0].Type).Kind,
		s.Type(ai.Members[0].Type).Kind, "member kind")
}

func TestParameterArityMismatch(t *testing.T) {
	_, errs := resolveSource(t, `M DEFINITIONS ::= BEGIN
		A { B } ::= SEQUENCE { a B }
		Bad ::= A { INTEGER, BOOLEAN }
	END`)
	testutil.True(t, len(errs) > 0, "errors")
	testutil.Equal(t, asn1.ResolveParameterMismatch, errs[0].Kind, "kind")
}

func TestRecursionThroughOptional(t *testing.T) {
	s := mustResolve(t, `M DEFINITIONS ::= BEGIN
		Node ::= SEQUENCE {
			value INTEGER,
			next Node OPTIONAL
		}
	END`)
	node := lookup(t, s, "Node")
	id, _ := s.Lookup("Node")
	testutil.Equal(t, id, node.Members[1].Type, "cycle via arena index")
}

func TestRecursionThroughSequenceOf(t *testing.T) {
	s := mustResolve(t, `M DEFINITIONS ::= BEGIN
		Tree ::= SEQUENCE {
			children SEQUENCE OF Tree
		}
	END`)
	tree := lookup(t, s, "Tree")
	children := s.Type(tree.Members[0].Type)
	id, _ := s.Lookup("Tree")
	testutil.Equal(t, id, children.Element, "element cycles back")
}

func TestIllegalRecursionRejected(t *testing.T) {
	_, errs := resolveSource(t, `M DEFINITIONS ::= BEGIN
		Bad ::= SEQUENCE { a Bad }
	END`)
	testutil.True(t, len(errs) > 0, "errors")
	testutil.Equal(t, asn1.ResolveIllegalRecursion, errs[0].Kind, "kind")
}

func TestDuplicateTagRejected(t *testing.T) {
	_, errs := resolveSource(t, `M DEFINITIONS ::= BEGIN
		T ::= SEQUENCE {
			a [0] IMPLICIT INTEGER,
			b [0] IMPLICIT BOOLEAN
		}
	END`)
	testutil.True(t, len(errs) > 0, "errors")
	testutil.Equal(t, asn1.ResolveDuplicateTag, errs[0].Kind, "kind")
}

func TestDuplicateChoiceTagRejected(t *testing.T) {
	_, errs := resolveSource(t, `M DEFINITIONS ::= BEGIN
		C ::= CHOICE { a INTEGER, b INTEGER }
	END`)
	testutil.True(t, len(errs) > 0, "errors")
	testutil.Equal(t, asn1.ResolveDuplicateTag, errs[0].Kind, "kind")
}

func TestEnumeratedValues(t *testing.T) {
	s := mustResolve(t, `M DEFINITIONS ::= BEGIN
		E ::= ENUMERATED { red, green(5), blue }
	END`)
	e := lookup(t, s, "E")
	testutil.Len(t, e.NamedValues, 3, "items")
	testutil.Equal(t, int64(0), e.NamedValues[0].Value, "red")
	testutil.Equal(t, int64(5), e.NamedValues[1].Value, "green")
	testutil.Equal(t, int64(6), e.NamedValues[2].Value, "blue")
}

func TestExtensibleEnumerated(t *testing.T) {
	s := mustResolve(t, `M DEFINITIONS ::= BEGIN
		E ::= ENUMERATED { a, b, ..., c }
	END`)
	e := lookup(t, s, "E")
	testutil.True(t, e.Extensible, "extensible")
	testutil.Len(t, e.NamedValues, 2, "root")
	testutil.Len(t, e.ExtNamedValues, 1, "extensions")
}

func TestExtensionGroups(t *testing.T) {
	s := mustResolve(t, `M DEFINITIONS ::= BEGIN
		T ::= SEQUENCE {
			a INTEGER,
			...,
			b BOOLEAN,
			[[ c INTEGER, d INTEGER ]]
		}
	END`)
	typ := lookup(t, s, "T")
	testutil.True(t, typ.Extensible, "extensible")
	testutil.Equal(t, 0, typ.Members[0].ExtGroup, "a root")
	testutil.Equal(t, 1, typ.Members[1].ExtGroup, "b group 1")
	testutil.Equal(t, 2, typ.Members[2].ExtGroup, "c group 2")
	testutil.Equal(t, 2, typ.Members[3].ExtGroup, "d group 2")
}

func TestComponentsOf(t *testing.T) {
	s := mustResolve(t, `M DEFINITIONS ::= BEGIN
		Base ::= SEQUENCE { x INTEGER, y BOOLEAN }
		T ::= SEQUENCE { COMPONENTS OF Base, z IA5String }
	END`)
	typ := lookup(t, s, "T")
	testutil.Len(t, typ.Members, 3, "members")
	testutil.Equal(t, "x", typ.Members[0].Name, "spliced x")
	testutil.Equal(t, "z", typ.Members[2].Name, "own z")
}

func TestOIDValueAssignment(t *testing.T) {
	s := mustResolve(t, `M DEFINITIONS ::= BEGIN
		root OBJECT IDENTIFIER ::= { iso(1) 2 }
		T ::= SEQUENCE { oid OBJECT IDENTIFIER DEFAULT { iso(1) 2 5 } }
	END`)
	typ := lookup(t, s, "T")
	oid := typ.Members[0].Default.(asn1.OID)
	testutil.True(t, oid.Equal(asn1.OID{1, 2, 5}), "default OID")
}

func TestExtensionWithoutRootRejected(t *testing.T) {
	_, errs := resolveSource(t, `M DEFINITIONS ::= BEGIN
		T ::= INTEGER (...)
	END`)
	testutil.True(t, len(errs) > 0, "errors")
	testutil.Equal(t, asn1.ResolveExtensionWithoutRoot, errs[0].Kind, "kind")
}
