package ast

import (
	"math/big"

	"github.com/golangasn1/goasn1/internal/types"
)

// ValueKind discriminates the Value union.
type ValueKind int

const (
	ValBoolean ValueKind = iota
	ValInteger
	ValReal
	ValSpecialReal
	ValNull
	ValCString
	ValBString
	ValHString
	ValIdentifier // enum label or value reference
	ValOID        // object identifier component list { iso(1) 2 ds(5) }
	ValSequence   // { name value, ... }
	ValList       // { value, ... }
	ValChoice     // name : value
)

// SpecialReal enumerates PLUS-INFINITY, MINUS-INFINITY, NOT-A-NUMBER.
type SpecialReal int

const (
	PlusInfinity SpecialReal = iota
	MinusInfinity
	NotANumber
)

// OIDComponent is one arc of an OID value: a name, a number, or both.
type OIDComponent struct {
	Name   string
	Number *big.Int // nil when only a name is given
}

// NamedValue is "name value" inside a sequence value.
type NamedValue struct {
	Name  Ident
	Value *Value
}

// Value is the syntax-level value union.
type Value struct {
	Kind ValueKind
	Span types.Span

	Bool    bool
	Int     *big.Int // ValInteger
	Real    float64  // ValReal
	Special SpecialReal
	Str     string // ValCString; also the label for ValIdentifier/ValChoice

	// ValBString / ValHString: raw bits and their count. For hstrings the
	// bit count is always a multiple of 4.
	Bytes  []byte
	BitLen int

	OIDComponents []OIDComponent
	Fields        []NamedValue // ValSequence
	Elements      []*Value     // ValList
	Chosen        *Value       // ValChoice payload
}
