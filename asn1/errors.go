package asn1

import (
	"fmt"
	"strings"
)

// SyntaxError reports a parse failure with its source position.
type SyntaxError struct {
	File    string // source label given to Compile
	Line    int
	Column  int
	Message string // "expected X, found Y"
}

func (e *SyntaxError) Error() string {
	if e.File != "" {
		return fmt.Sprintf("%s:%d:%d: %s", e.File, e.Line, e.Column, e.Message)
	}
	return fmt.Sprintf("%d:%d: %s", e.Line, e.Column, e.Message)
}

// ResolveErrorKind classifies resolution failures.
type ResolveErrorKind int

const (
	ResolveUnknownReference ResolveErrorKind = iota
	ResolveUnknownImport
	ResolveDuplicateModule
	ResolveDuplicateDefinition
	ResolveCyclicInstantiation
	ResolveIllegalRecursion
	ResolveDuplicateTag
	ResolveTypeMismatch
	ResolveInvalidConstraint
	ResolveExtensionWithoutRoot
	ResolveParameterMismatch
)

var resolveKindNames = [...]string{
	ResolveUnknownReference:     "UnknownReference",
	ResolveUnknownImport:        "UnknownImport",
	ResolveDuplicateModule:      "DuplicateModule",
	ResolveDuplicateDefinition:  "DuplicateDefinition",
	ResolveCyclicInstantiation:  "CyclicInstantiation",
	ResolveIllegalRecursion:     "IllegalRecursion",
	ResolveDuplicateTag:         "DuplicateTag",
	ResolveTypeMismatch:         "TypeMismatch",
	ResolveInvalidConstraint:    "InvalidConstraint",
	ResolveExtensionWithoutRoot: "ExtensionWithoutRoot",
	ResolveParameterMismatch:    "ParameterMismatch",
}

func (k ResolveErrorKind) String() string {
	if int(k) < len(resolveKindNames) {
		return resolveKindNames[k]
	}
	return "Unknown"
}

// ResolveError reports a failure while lowering parsed modules into the
// type model. Trace names the definitions on the path to the failure.
type ResolveError struct {
	Kind    ResolveErrorKind
	Module  string
	Type    string
	Trace   []string
	Message string
}

func (e *ResolveError) Error() string {
	var sb strings.Builder
	sb.WriteString(e.Kind.String())
	if e.Module != "" {
		fmt.Fprintf(&sb, " in %s", e.Module)
		if e.Type != "" {
			fmt.Fprintf(&sb, ".%s", e.Type)
		}
	}
	if e.Message != "" {
		sb.WriteString(": ")
		sb.WriteString(e.Message)
	}
	if len(e.Trace) > 0 {
		fmt.Fprintf(&sb, " (via %s)", strings.Join(e.Trace, " -> "))
	}
	return sb.String()
}

// Path locates a node in a value during encoding or decoding: type names,
// member names, and element indexes from the root down.
type Path []string

// String joins the path with dots.
func (p Path) String() string {
	return strings.Join(p, ".")
}

// Child returns a copy of the path extended with one segment.
func (p Path) Child(segment string) Path {
	out := make(Path, len(p), len(p)+1)
	copy(out, p)
	return append(out, segment)
}

// Index returns a copy of the path extended with an element index.
func (p Path) Index(i int) Path {
	return p.Child(fmt.Sprintf("[%d]", i))
}

// EncodeErrorKind classifies encoding failures.
type EncodeErrorKind int

const (
	EncodeBadShape EncodeErrorKind = iota
	EncodeUnknownMember
	EncodeMissingMember
	EncodeUnknownAlternative
	EncodeValueOutOfRange
	EncodeUnsupported
)

var encodeKindNames = [...]string{
	EncodeBadShape:           "BadShape",
	EncodeUnknownMember:      "UnknownMember",
	EncodeMissingMember:      "MissingMember",
	EncodeUnknownAlternative: "UnknownAlternative",
	EncodeValueOutOfRange:    "ValueOutOfRange",
	EncodeUnsupported:        "Unsupported",
}

func (k EncodeErrorKind) String() string {
	if int(k) < len(encodeKindNames) {
		return encodeKindNames[k]
	}
	return "Unknown"
}

// EncodeError reports a failed encode call.
type EncodeError struct {
	Kind    EncodeErrorKind
	Path    Path
	Message string
}

func (e *EncodeError) Error() string {
	if len(e.Path) > 0 {
		return fmt.Sprintf("encode %s at %s: %s", e.Kind, e.Path, e.Message)
	}
	return fmt.Sprintf("encode %s: %s", e.Kind, e.Message)
}

// DecodeErrorKind classifies decoding failures.
type DecodeErrorKind int

const (
	DecodeUnexpectedTag DecodeErrorKind = iota
	DecodeOutOfBuffer
	DecodeNonMinimalLength
	DecodeIndefiniteInDER
	DecodeBadBoolean
	DecodeBadUTF8
	DecodeBadValue
	DecodeTrailingBytes
	DecodeUnknownAlternative
	DecodeUnsupported
)

var decodeKindNames = [...]string{
	DecodeUnexpectedTag:      "UnexpectedTag",
	DecodeOutOfBuffer:        "OutOfBuffer",
	DecodeNonMinimalLength:   "NonMinimalLength",
	DecodeIndefiniteInDER:    "IndefiniteInDER",
	DecodeBadBoolean:         "BadBoolean",
	DecodeBadUTF8:            "BadUTF8",
	DecodeBadValue:           "BadValue",
	DecodeTrailingBytes:      "TrailingBytes",
	DecodeUnknownAlternative: "UnknownAlternative",
	DecodeUnsupported:        "Unsupported",
}

func (k DecodeErrorKind) String() string {
	if int(k) < len(decodeKindNames) {
		return decodeKindNames[k]
	}
	return "Unknown"
}

// DecodeError reports a failed decode call with the byte (or bit) offset
// and the path from the root type to the failing node.
type DecodeError struct {
	Kind    DecodeErrorKind
	Offset  int
	Path    Path
	Message string
}

func (e *DecodeError) Error() string {
	if len(e.Path) > 0 {
		return fmt.Sprintf("decode %s at offset %d (%s): %s", e.Kind, e.Offset, e.Path, e.Message)
	}
	return fmt.Sprintf("decode %s at offset %d: %s", e.Kind, e.Offset, e.Message)
}

// ConstraintViolation reports a value outside a closed constraint, on
// encode or decode.
type ConstraintViolation struct {
	Path  Path
	Value string // rendered offending value
	Root  string // rendered root constraint
}

func (e *ConstraintViolation) Error() string {
	if e.Root != "" {
		return fmt.Sprintf("constraint violation at %s: value %s outside root %s", e.Path, e.Value, e.Root)
	}
	return fmt.Sprintf("constraint violation at %s: value %s", e.Path, e.Value)
}
