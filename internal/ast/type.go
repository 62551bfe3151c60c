package ast

import (
	"github.com/golangasn1/goasn1/internal/types"
)

// TypeKind discriminates the Type union.
type TypeKind int

const (
	KindBoolean TypeKind = iota
	KindInteger
	KindReal
	KindNull
	KindEnumerated
	KindBitString
	KindOctetString
	KindObjectIdentifier
	KindRelativeOID
	KindCharacterString // restricted character string; Name holds which
	KindUTCTime
	KindGeneralizedTime
	KindDate
	KindTimeOfDay
	KindDateTime
	KindAny
	KindExternal
	KindEmbeddedPDV
	KindObjectDescriptor
	KindSequence
	KindSet
	KindChoice
	KindSequenceOf
	KindSetOf
	KindReference
	KindSelection
	KindTagged
	KindConstrained
)

// TagClass is the class part of a tag.
type TagClass int

const (
	TagClassContext TagClass = iota // default when no class keyword given
	TagClassUniversal
	TagClassApplication
	TagClassPrivate
)

// String returns the source keyword for the class, empty for context.
func (c TagClass) String() string {
	switch c {
	case TagClassUniversal:
		return "UNIVERSAL"
	case TagClassApplication:
		return "APPLICATION"
	case TagClassPrivate:
		return "PRIVATE"
	default:
		return ""
	}
}

// TagKind is how a tag applies to its inner type.
type TagKind int

const (
	// TagKindDefault defers to the module's TagDefault.
	TagKindDefault TagKind = iota
	TagKindExplicit
	TagKindImplicit
)

// Tag is "[class number]" with an optional EXPLICIT/IMPLICIT keyword.
// Number may be a reference to an integer value.
type Tag struct {
	Class  TagClass
	Number *Value // integer literal or value reference
	Kind   TagKind
	Span   types.Span
}

// NamedNumber is "name(value)" inside INTEGER or ENUMERATED, or a named
// bit inside BIT STRING. Value may be a reference.
type NamedNumber struct {
	Name  Ident
	Value *Value
}

// Component is one member of a SEQUENCE, SET, or CHOICE. For CHOICE
// alternatives Optional and Default are never set.
type Component struct {
	Name     Ident
	Type     *Type
	Optional bool
	Default  *Value // nil when no DEFAULT clause

	// ComponentsOf marks a "COMPONENTS OF T" item; Type then holds T and
	// Name is empty.
	ComponentsOf bool

	Span types.Span
}

// ExtensionAdditionGroup is "[[ version: components ]]".
type ExtensionAdditionGroup struct {
	Version    int // -1 when no version number given
	Components []Component
}

// Type is the syntax-level type union. Exactly the fields implied by Kind
// are populated.
type Type struct {
	Kind TypeKind
	Span types.Span

	// KindInteger, KindEnumerated, KindBitString
	NamedNumbers []NamedNumber
	// KindEnumerated: extensibility of the enumeration item list.
	ExtMarker      bool
	ExtNamedValues []NamedNumber

	// KindCharacterString: the source type name (UTF8String, IA5String, ...).
	Name string

	// KindSequence, KindSet, KindChoice
	Components      []Component
	ExtensionGroups []ExtensionAdditionGroup
	// Extensible is true when an ellipsis appears in the component list.
	Extensible bool
	// TrailingRoot holds root components appearing after a second ellipsis.
	TrailingRoot []Component

	// KindSequenceOf, KindSetOf
	Element *Type
	// SizeConstraint on OF types given before OF ("SEQUENCE SIZE(1..4) OF").
	OfConstraint *Constraint

	// KindReference
	Module  *Ident  // optional module qualifier ("Mod.Type")
	RefName Ident   // referenced type name
	Actuals []Param // actual parameters of a parameterized reference

	// KindSelection: "identifier < Type"
	Selector Ident

	// KindTagged
	Tag   *Tag
	Inner *Type // also KindConstrained

	// KindConstrained
	Constraint *Constraint

	// KindAny: optional DEFINED BY field name
	DefinedBy *Ident
}

// Param is an actual parameter in a parameterized reference: a type or a
// value.
type Param struct {
	Type  *Type
	Value *Value
}
