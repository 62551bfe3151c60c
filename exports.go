package goasn1

import "github.com/golangasn1/goasn1/asn1"

// Type aliases for the public API - value and error types come from the
// asn1 subpackage.

// BitString is a bit string value.
type BitString = asn1.BitString

// OID is an object identifier or relative OID.
type OID = asn1.OID

// Choice is a selected CHOICE alternative.
type Choice = asn1.Choice

// TypeID is an index into a Schema's type arena.
type TypeID = asn1.TypeID

// Kind discriminates type model nodes.
type Kind = asn1.Kind

// ModuleInfo describes one compiled module.
type ModuleInfo = asn1.ModuleInfo

// SyntaxError reports a parse failure.
type SyntaxError = asn1.SyntaxError

// ResolveError reports a failure while building the type model.
type ResolveError = asn1.ResolveError

// EncodeError reports a failed encode call.
type EncodeError = asn1.EncodeError

// DecodeError reports a failed decode call.
type DecodeError = asn1.DecodeError

// ConstraintViolation reports a value outside a closed constraint.
type ConstraintViolation = asn1.ConstraintViolation

// Path locates a node in a value during encoding or decoding.
type Path = asn1.Path
