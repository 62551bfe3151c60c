package ast

import (
	"github.com/golangasn1/goasn1/internal/types"
)

// Constraint is a subtype constraint: a root element-set, an optional
// extension marker, and optional extension additions.
type Constraint struct {
	Root       *ElementSet
	Extensible bool
	Additions  *ElementSet // nil when the marker has no additions
	Span       types.Span
}

// ElementSetKind discriminates ElementSet nodes.
type ElementSetKind int

const (
	// ESUnion is "a | b | c" (or "a UNION b").
	ESUnion ElementSetKind = iota
	// ESIntersection is "a ^ b" (or "a INTERSECTION b").
	ESIntersection
	// ESExclusion is "a EXCEPT b"; with All set it is "ALL EXCEPT b".
	ESExclusion
	// ESSingleValue is a single value element.
	ESSingleValue
	// ESValueRange is "lo..hi" with optional open endpoints and MIN/MAX.
	ESValueRange
	// ESSize is "SIZE (inner)".
	ESSize
	// ESFrom is "FROM (inner)" — permitted alphabet.
	ESFrom
	// ESContaining is "CONTAINING Type".
	ESContaining
	// ESContainedSubtype is "INCLUDES Type" or a bare type used as a
	// constraint element.
	ESContainedSubtype
	// ESWithComponents is "WITH COMPONENTS { ... }".
	ESWithComponents
	// ESPattern is "PATTERN cstring"; carried but not enforced by codecs.
	ESPattern
)

// Endpoint is one bound of a value range.
type Endpoint struct {
	Value *Value // nil when Min or Max is set
	Min   bool   // MIN keyword
	Max   bool   // MAX keyword
	Open  bool   // "<" on this side
}

// PresenceKind is the presence requirement in a WITH COMPONENTS item.
type PresenceKind int

const (
	PresenceNone PresenceKind = iota
	PresencePresent
	PresenceAbsent
	PresenceOptional
)

// ComponentConstraint is one item of WITH COMPONENTS.
type ComponentConstraint struct {
	Name       Ident
	Constraint *Constraint // nil when only presence is constrained
	Presence   PresenceKind
}

// ElementSet is a node of the constraint element tree.
type ElementSet struct {
	Kind ElementSetKind
	Span types.Span

	// ESUnion, ESIntersection: two or more operands.
	// ESExclusion: Operands[0] EXCEPT Operands[1]; with All, only one operand.
	Operands []*ElementSet
	All      bool

	// ESSingleValue
	Value *Value

	// ESValueRange
	Lo, Hi Endpoint

	// ESSize, ESFrom
	Inner *Constraint

	// ESContaining, ESContainedSubtype
	Type *Type

	// ESWithComponents
	Partial    bool // "..." first item present
	Components []ComponentConstraint

	// ESPattern
	Pattern string
}
