// Package ast defines the concrete syntax tree produced by the parser.
//
// The tree is raw: references are unresolved, parameterized definitions keep
// their formal parameter lists verbatim, and constraints are kept in source
// shape. The resolver lowers this into the frozen asn1 type model.
package ast

import (
	"github.com/golangasn1/goasn1/internal/types"
)

// Ident is a named reference with its source span.
type Ident struct {
	Name string
	Span types.Span
}

// NewIdent creates an identifier node.
func NewIdent(name string, span types.Span) Ident {
	return Ident{Name: name, Span: span}
}

// TagDefault is the module-level tagging mode.
type TagDefault int

const (
	// TagDefaultExplicit is EXPLICIT TAGS (also the X.680 default).
	TagDefaultExplicit TagDefault = iota
	// TagDefaultImplicit is IMPLICIT TAGS.
	TagDefaultImplicit
	// TagDefaultAutomatic is AUTOMATIC TAGS.
	TagDefaultAutomatic
)

// String returns the source keyword for the tagging mode.
func (t TagDefault) String() string {
	switch t {
	case TagDefaultImplicit:
		return "IMPLICIT"
	case TagDefaultAutomatic:
		return "AUTOMATIC"
	default:
		return "EXPLICIT"
	}
}

// Import is one group of symbols imported FROM a single module.
type Import struct {
	Symbols []Ident
	From    Ident
	Span    types.Span
}

// Module is a parsed DefinitionList: ModuleName DEFINITIONS ... ::= BEGIN ... END.
type Module struct {
	Name                 Ident
	TagDefault           TagDefault
	ExtensibilityImplied bool
	Exports              []Ident // nil means EXPORTS ALL (or no EXPORTS clause)
	ExportsAll           bool
	Imports              []Import
	Assignments          []Assignment
	Span                 types.Span
	Diagnostics          []types.SpanDiagnostic
}

// Assignment is a top-level definition in a module body.
type Assignment interface {
	AssignmentName() *Ident
	AssignmentSpan() types.Span
	assignment()
}

// Parameter is a formal parameter of a parameterized assignment.
// A type parameter has an uppercase name and nil Governor; a value parameter
// has a governor type and a lowercase name ("INTEGER : lb").
type Parameter struct {
	Governor *Type // nil for type parameters
	Name     Ident
}

// TypeAssignment is "Name ::= Type", optionally parameterized
// ("Name { P, ... } ::= Type").
type TypeAssignment struct {
	Name       Ident
	Parameters []Parameter
	Type       *Type
	Span       types.Span
}

func (a *TypeAssignment) AssignmentName() *Ident     { return &a.Name }
func (a *TypeAssignment) AssignmentSpan() types.Span { return a.Span }
func (*TypeAssignment) assignment()                  {}

// ValueAssignment is "name Type ::= value".
type ValueAssignment struct {
	Name       Ident
	Parameters []Parameter
	Type       *Type
	Value      *Value
	Span       types.Span
}

func (a *ValueAssignment) AssignmentName() *Ident     { return &a.Name }
func (a *ValueAssignment) AssignmentSpan() types.Span { return a.Span }
func (*ValueAssignment) assignment()                  {}
