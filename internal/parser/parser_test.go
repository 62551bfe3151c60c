package parser

import (
	"math/big"
	"testing"

	"github.com/golangasn1/goasn1/internal/ast"
	"github.com/golangasn1/goasn1/internal/testutil"
)

func parseOne(t *testing.T, source string) *ast.Module {
	t.Helper()
	p := New([]byte(source), nil)
	module := p.ParseModule()
	for _, d := range module.Diagnostics {
		t.Logf("diagnostic: %s: %s", d.Code, d.Message)
	}
	testutil.Len(t, module.Diagnostics, 0, "diagnostics")
	return module
}

func TestEmptyModule(t *testing.T) {
	m := parseOne(t, "M DEFINITIONS ::= BEGIN END")
	testutil.Equal(t, "M", m.Name.Name, "module name")
	testutil.Equal(t, ast.TagDefaultExplicit, m.TagDefault, "tag default")
	testutil.Len(t, m.Assignments, 0, "assignments")
}

func TestTagDefaults(t *testing.T) {
	tests := []struct {
		source string
		want   ast.TagDefault
	}{
		{"M DEFINITIONS EXPLICIT TAGS ::= BEGIN END", ast.TagDefaultExplicit},
		{"M DEFINITIONS IMPLICIT TAGS ::= BEGIN END", ast.TagDefaultImplicit},
		{"M DEFINITIONS AUTOMATIC TAGS ::= BEGIN END", ast.TagDefaultAutomatic},
	}
	for _, tt := range tests {
		m := parseOne(t, tt.source)
		testutil.Equal(t, tt.want, m.TagDefault, "tag default for %q", tt.source)
	}
}

func TestExtensibilityImplied(t *testing.T) {
	m := parseOne(t, "M DEFINITIONS AUTOMATIC TAGS EXTENSIBILITY IMPLIED ::= BEGIN END")
	testutil.True(t, m.ExtensibilityImplied, "extensibility implied")
}

func TestImports(t *testing.T) {
	m := parseOne(t, `M DEFINITIONS ::= BEGIN
		IMPORTS A, b FROM Mod1 C FROM Mod2;
	END`)
	testutil.Len(t, m.Imports, 2, "import groups")
	testutil.Equal(t, "Mod1", m.Imports[0].From.Name, "first source")
	testutil.Len(t, m.Imports[0].Symbols, 2, "first symbols")
	testutil.Equal(t, "Mod2", m.Imports[1].From.Name, "second source")
}

func TestSimpleTypeAssignment(t *testing.T) {
	m := parseOne(t, "M DEFINITIONS ::= BEGIN T ::= INTEGER END")
	testutil.Len(t, m.Assignments, 1, "assignments")
	ta, ok := m.Assignments[0].(*ast.TypeAssignment)
	testutil.True(t, ok, "type assignment")
	testutil.Equal(t, "T", ta.Name.Name, "name")
	testutil.Equal(t, ast.KindInteger, ta.Type.Kind, "kind")
}

func TestSequenceWithOptionalAndDefault(t *testing.T) {
	m := parseOne(t, `M DEFINITIONS ::= BEGIN
		T ::= SEQUENCE {
			a INTEGER,
			b BOOLEAN OPTIONAL,
			c INTEGER DEFAULT 5
		}
	END`)
	ta := m.Assignments[0].(*ast.TypeAssignment)
	testutil.Equal(t, ast.KindSequence, ta.Type.Kind, "kind")
	testutil.Len(t, ta.Type.Components, 3, "components")
	testutil.False(t, ta.Type.Components[0].Optional, "a optional")
	testutil.True(t, ta.Type.Components[1].Optional, "b optional")
	testutil.NotNil(t, ta.Type.Components[2].Default, "c default")
	testutil.Equal(t, int64(5), ta.Type.Components[2].Default.Int.Int64(), "c default value")
}

func TestSequenceExtensions(t *testing.T) {
	m := parseOne(t, `M DEFINITIONS ::= BEGIN
		T ::= SEQUENCE {
			a INTEGER,
			...,
			b BOOLEAN,
			[[ c INTEGER, d INTEGER ]],
			...,
			e INTEGER
		}
	END`)
	ta := m.Assignments[0].(*ast.TypeAssignment)
	testutil.True(t, ta.Type.Extensible, "extensible")
	testutil.Len(t, ta.Type.Components, 1, "root components")
	testutil.Len(t, ta.Type.ExtensionGroups, 2, "extension groups")
	testutil.Len(t, ta.Type.ExtensionGroups[1].Components, 2, "second group size")
	testutil.Len(t, ta.Type.TrailingRoot, 1, "trailing root")
}

func TestChoice(t *testing.T) {
	m := parseOne(t, `M DEFINITIONS ::= BEGIN
		C ::= CHOICE { a INTEGER, b BOOLEAN }
	END`)
	ta := m.Assignments[0].(*ast.TypeAssignment)
	testutil.Equal(t, ast.KindChoice, ta.Type.Kind, "kind")
	testutil.Len(t, ta.Type.Components, 2, "alternatives")
}

func TestSequenceOfWithSize(t *testing.T) {
	m := parseOne(t, `M DEFINITIONS ::= BEGIN
		L ::= SEQUENCE SIZE (1..4) OF INTEGER
	END`)
	ta := m.Assignments[0].(*ast.TypeAssignment)
	testutil.Equal(t, ast.KindSequenceOf, ta.Type.Kind, "kind")
	testutil.NotNil(t, ta.Type.OfConstraint, "of constraint")
	testutil.Equal(t, ast.KindInteger, ta.Type.Element.Kind, "element")
}

func TestTaggedType(t *testing.T) {
	m := parseOne(t, `M DEFINITIONS ::= BEGIN
		T ::= [APPLICATION 5] IMPLICIT OCTET STRING
	END`)
	ta := m.Assignments[0].(*ast.TypeAssignment)
	testutil.Equal(t, ast.KindTagged, ta.Type.Kind, "kind")
	testutil.Equal(t, ast.TagClassApplication, ta.Type.Tag.Class, "class")
	testutil.Equal(t, ast.TagKindImplicit, ta.Type.Tag.Kind, "tag kind")
	testutil.Equal(t, int64(5), ta.Type.Tag.Number.Int.Int64(), "number")
}

func TestConstrainedInteger(t *testing.T) {
	m := parseOne(t, `M DEFINITIONS ::= BEGIN
		T ::= INTEGER (0..100, ...)
	END`)
	ta := m.Assignments[0].(*ast.TypeAssignment)
	testutil.Equal(t, ast.KindConstrained, ta.Type.Kind, "kind")
	c := ta.Type.Constraint
	testutil.True(t, c.Extensible, "extensible")
	testutil.Equal(t, ast.ESValueRange, c.Root.Kind, "root kind")
	testutil.Equal(t, int64(0), c.Root.Lo.Value.Int.Int64(), "lo")
	testutil.Equal(t, int64(100), c.Root.Hi.Value.Int.Int64(), "hi")
}

func TestConstraintPrecedence(t *testing.T) {
	// Intersection binds tighter than union.
	m := parseOne(t, `M DEFINITIONS ::= BEGIN
		T ::= INTEGER (0..10 | 20..30 ^ 25..35)
	END`)
	ta := m.Assignments[0].(*ast.TypeAssignment)
	c := ta.Type.Constraint
	testutil.Equal(t, ast.ESUnion, c.Root.Kind, "top kind")
	testutil.Len(t, c.Root.Operands, 2, "union operands")
	testutil.Equal(t, ast.ESIntersection, c.Root.Operands[1].Kind, "second operand")
}

func TestSizeAndFromConstraints(t *testing.T) {
	m := parseOne(t, `M DEFINITIONS ::= BEGIN
		S ::= IA5String (SIZE (1..16)) (FROM ("a".."z"))
	END`)
	ta := m.Assignments[0].(*ast.TypeAssignment)
	testutil.Equal(t, ast.KindConstrained, ta.Type.Kind, "outer kind")
	inner := ta.Type.Inner
	testutil.Equal(t, ast.KindConstrained, inner.Kind, "inner kind")
	testutil.Equal(t, ast.ESSize, inner.Constraint.Root.Kind, "size")
	testutil.Equal(t, ast.ESFrom, ta.Type.Constraint.Root.Kind, "from")
}

func TestParameterizedTypeAssignment(t *testing.T) {
	m := parseOne(t, `M DEFINITIONS ::= BEGIN
		A { B } ::= SEQUENCE { a B }
		C { INTEGER : ub } ::= INTEGER (0..ub)
	END`)
	a := m.Assignments[0].(*ast.TypeAssignment)
	testutil.Len(t, a.Parameters, 1, "A params")
	testutil.Nil(t, a.Parameters[0].Governor, "A governor")

	c := m.Assignments[1].(*ast.TypeAssignment)
	testutil.Len(t, c.Parameters, 1, "C params")
	testutil.NotNil(t, c.Parameters[0].Governor, "C governor")
	testutil.Equal(t, "ub", c.Parameters[0].Name.Name, "C param name")
}

func TestParameterizedReference(t *testing.T) {
	m := parseOne(t, `M DEFINITIONS ::= BEGIN
		AI ::= A { INTEGER, 10 }
	END`)
	ta := m.Assignments[0].(*ast.TypeAssignment)
	testutil.Equal(t, ast.KindReference, ta.Type.Kind, "kind")
	testutil.Len(t, ta.Type.Actuals, 2, "actuals")
	testutil.NotNil(t, ta.Type.Actuals[0].Type, "first actual is a type")
	testutil.NotNil(t, ta.Type.Actuals[1].Value, "second actual is a value")
}

func TestValueAssignments(t *testing.T) {
	m := parseOne(t, `M DEFINITIONS ::= BEGIN
		n INTEGER ::= 42
		neg INTEGER ::= -7
		f BOOLEAN ::= TRUE
		s IA5String ::= "hi"
		oid OBJECT IDENTIFIER ::= { iso(1) 2 ds(5) }
	END`)
	testutil.Len(t, m.Assignments, 5, "assignments")

	n := m.Assignments[0].(*ast.ValueAssignment)
	testutil.Equal(t, 0, n.Value.Int.Cmp(big.NewInt(42)), "n value")

	neg := m.Assignments[1].(*ast.ValueAssignment)
	testutil.Equal(t, 0, neg.Value.Int.Cmp(big.NewInt(-7)), "neg value")

	oid := m.Assignments[4].(*ast.ValueAssignment)
	testutil.Equal(t, ast.ValOID, oid.Value.Kind, "oid kind")
	testutil.Len(t, oid.Value.OIDComponents, 3, "oid components")
	testutil.Equal(t, "iso", oid.Value.OIDComponents[0].Name, "first arc name")
}

func TestBitAndHexStringValues(t *testing.T) {
	m := parseOne(t, `M DEFINITIONS ::= BEGIN
		b BIT STRING ::= '1010'B
		h OCTET STRING ::= 'DEAD'H
	END`)
	b := m.Assignments[0].(*ast.ValueAssignment)
	testutil.Equal(t, ast.ValBString, b.Value.Kind, "b kind")
	testutil.Equal(t, 4, b.Value.BitLen, "b bits")
	testutil.Equal(t, byte(0xA0), b.Value.Bytes[0], "b packed")

	h := m.Assignments[1].(*ast.ValueAssignment)
	testutil.Equal(t, ast.ValHString, h.Value.Kind, "h kind")
	testutil.Equal(t, 16, h.Value.BitLen, "h bits")
	testutil.Equal(t, byte(0xDE), h.Value.Bytes[0], "h first octet")
}

func TestChoiceValue(t *testing.T) {
	m := parseOne(t, `M DEFINITIONS ::= BEGIN
		v CHOICE { a INTEGER, b BOOLEAN } ::= b : TRUE
	END`)
	va := m.Assignments[0].(*ast.ValueAssignment)
	testutil.Equal(t, ast.ValChoice, va.Value.Kind, "kind")
	testutil.Equal(t, "b", va.Value.Str, "selector")
	testutil.True(t, va.Value.Chosen.Bool, "payload")
}

func TestSyntaxErrorRecovery(t *testing.T) {
	p := New([]byte(`M DEFINITIONS ::= BEGIN
		T ::= SEQUENCE { a }
		U ::= INTEGER
	END`), nil)
	m := p.ParseModule()
	testutil.Greater(t, len(m.Diagnostics), 0, "has diagnostics")
	// Recovery should still pick up U.
	found := false
	for _, a := range m.Assignments {
		if a.AssignmentName().Name == "U" {
			found = true
		}
	}
	testutil.True(t, found, "recovered to next assignment")
}

func TestWithComponents(t *testing.T) {
	m := parseOne(t, `M DEFINITIONS ::= BEGIN
		T ::= SEQUENCE { a INTEGER, b BOOLEAN OPTIONAL }
		U ::= T (WITH COMPONENTS { ..., b PRESENT })
	END`)
	u := m.Assignments[1].(*ast.TypeAssignment)
	root := u.Type.Constraint.Root
	testutil.Equal(t, ast.ESWithComponents, root.Kind, "kind")
	testutil.True(t, root.Partial, "partial")
	testutil.Len(t, root.Components, 1, "items")
	testutil.Equal(t, ast.PresencePresent, root.Components[0].Presence, "presence")
}
