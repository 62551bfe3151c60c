// Package lexer provides tokenization for ASN.1 (X.680) source text.
package lexer

import (
	"github.com/golangasn1/goasn1/internal/types"
)

// Token is a token with kind and source span.
type Token struct {
	Kind TokenKind
	Span types.Span
}

// NewToken creates a new token.
func NewToken(kind TokenKind, span types.Span) Token {
	return Token{Kind: kind, Span: span}
}

// TokenKind identifies a token type.
type TokenKind int

const (
	// === Special ===

	// TokError is a lexical error.
	TokError TokenKind = iota
	// TokEOF is end of input.
	TokEOF

	// === Identifiers ===

	// TokUpperIdent is an uppercase-initial identifier (module names,
	// type references).
	TokUpperIdent
	// TokLowerIdent is a lowercase-initial identifier (value references,
	// member names, enumeration labels).
	TokLowerIdent

	// === Literals ===

	// TokNumber is an unsigned decimal number.
	TokNumber
	// TokRealNumber is a real number literal (with '.' or exponent).
	TokRealNumber
	// TokCString is a quoted character string literal.
	TokCString
	// TokHString is a hex string literal ('...'H).
	TokHString
	// TokBString is a binary string literal ('...'B).
	TokBString

	// === Punctuation ===

	// TokLBrace is '{'.
	TokLBrace
	// TokRBrace is '}'.
	TokRBrace
	// TokLBracket is '['.
	TokLBracket
	// TokRBracket is ']'.
	TokRBracket
	// TokLDoubleBracket is '[['.
	TokLDoubleBracket
	// TokRDoubleBracket is ']]'.
	TokRDoubleBracket
	// TokLParen is '('.
	TokLParen
	// TokRParen is ')'.
	TokRParen
	// TokComma is ','.
	TokComma
	// TokDot is '.'.
	TokDot
	// TokDotDot is '..'.
	TokDotDot
	// TokEllipsis is '...'.
	TokEllipsis
	// TokSemicolon is ';'.
	TokSemicolon
	// TokColon is ':'.
	TokColon
	// TokAssign is '::='.
	TokAssign
	// TokPipe is '|'.
	TokPipe
	// TokCaret is '^'.
	TokCaret
	// TokExclamation is '!'.
	TokExclamation
	// TokLess is '<'.
	TokLess
	// TokGreater is '>'.
	TokGreater
	// TokAt is '@'.
	TokAt
	// TokMinus is '-'.
	TokMinus

	// === Reserved words (X.680 §12.38, the subset the grammar uses) ===

	TokKwAbsent
	TokKwAll
	TokKwAny
	TokKwApplication
	TokKwAutomatic
	TokKwBegin
	TokKwBit
	TokKwBoolean
	TokKwBy
	TokKwChoice
	TokKwComponent
	TokKwComponents
	TokKwContaining
	TokKwDefault
	TokKwDefined
	TokKwDefinitions
	TokKwEmbedded
	TokKwEncoded
	TokKwEnd
	TokKwEnumerated
	TokKwExcept
	TokKwExplicit
	TokKwExports
	TokKwExtensibility
	TokKwExternal
	TokKwFalse
	TokKwFrom
	TokKwIdentifier
	TokKwImplicit
	TokKwImplied
	TokKwImports
	TokKwIncludes
	TokKwIntersection
	TokKwInteger
	TokKwMax
	TokKwMin
	TokKwMinusInfinity
	TokKwNotANumber
	TokKwNull
	TokKwObject
	TokKwOctet
	TokKwOf
	TokKwOptional
	TokKwPdv
	TokKwPlusInfinity
	TokKwPresent
	TokKwPrivate
	TokKwReal
	TokKwRelativeOID
	TokKwSequence
	TokKwSet
	TokKwSize
	TokKwString
	TokKwTags
	TokKwTrue
	TokKwUnion
	TokKwUniversal
	TokKwWith
)

// IsKeyword returns true for reserved-word token kinds.
func (k TokenKind) IsKeyword() bool {
	return k >= TokKwAbsent && k <= TokKwWith
}
