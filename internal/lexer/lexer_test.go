package lexer

import (
	"testing"

	"github.com/golangasn1/goasn1/internal/testutil"
)

func tokenKinds(source string) []TokenKind {
	lexer := New([]byte(source), nil)
	tokens, _ := lexer.Tokenize()
	kinds := make([]TokenKind, len(tokens))
	for i, t := range tokens {
		kinds[i] = t.Kind
	}
	return kinds
}

func tokenTexts(source string) []string {
	lexer := New([]byte(source), nil)
	tokens, _ := lexer.Tokenize()
	var texts []string
	for _, t := range tokens {
		if t.Kind != TokEOF {
			texts = append(texts, source[t.Span.Start:t.Span.End])
		}
	}
	return texts
}

func TestEmptyInput(t *testing.T) {
	kinds := tokenKinds("")
	testutil.SliceEqual(t, []TokenKind{TokEOF}, kinds, "empty input")
}

func TestPunctuation(t *testing.T) {
	kinds := tokenKinds("{ } ( ) [ ] , ; | ^ ! < > @")
	expected := []TokenKind{
		TokLBrace, TokRBrace, TokLParen, TokRParen,
		TokLBracket, TokRBracket, TokComma, TokSemicolon,
		TokPipe, TokCaret, TokExclamation, TokLess, TokGreater, TokAt,
		TokEOF,
	}
	testutil.SliceEqual(t, expected, kinds, "token kinds")
}

func TestOperators(t *testing.T) {
	kinds := tokenKinds("::= .. ... . : -")
	expected := []TokenKind{
		TokAssign, TokDotDot, TokEllipsis, TokDot, TokColon, TokMinus, TokEOF,
	}
	testutil.SliceEqual(t, expected, kinds, "token kinds")
}

func TestDoubleBrackets(t *testing.T) {
	kinds := tokenKinds("[[ 2: a INTEGER ]]")
	expected := []TokenKind{
		TokLDoubleBracket, TokNumber, TokColon,
		TokLowerIdent, TokKwInteger, TokRDoubleBracket, TokEOF,
	}
	testutil.SliceEqual(t, expected, kinds, "token kinds")
}

func TestNumbers(t *testing.T) {
	texts := tokenTexts("0 1 42 12345")
	testutil.SliceEqual(t, []string{"0", "1", "42", "12345"}, texts, "token texts")
	kinds := tokenKinds("42")
	testutil.SliceEqual(t, []TokenKind{TokNumber, TokEOF}, kinds, "kind")
}

func TestRealNumbers(t *testing.T) {
	kinds := tokenKinds("3.14 1e10 2.5E-3")
	expected := []TokenKind{
		TokRealNumber, TokRealNumber, TokRealNumber, TokEOF,
	}
	testutil.SliceEqual(t, expected, kinds, "token kinds")
}

func TestRangeIsNotReal(t *testing.T) {
	// "1..10" must lex as number, dotdot, number.
	kinds := tokenKinds("1..10")
	expected := []TokenKind{TokNumber, TokDotDot, TokNumber, TokEOF}
	testutil.SliceEqual(t, expected, kinds, "token kinds")
}

func TestIdentifiers(t *testing.T) {
	kinds := tokenKinds("MyType myValue My-Hyphen-Type")
	expected := []TokenKind{
		TokUpperIdent, TokLowerIdent, TokUpperIdent, TokEOF,
	}
	testutil.SliceEqual(t, expected, kinds, "token kinds")
}

func TestKeywords(t *testing.T) {
	kinds := tokenKinds("SEQUENCE OF INTEGER OPTIONAL DEFAULT TRUE")
	expected := []TokenKind{
		TokKwSequence, TokKwOf, TokKwInteger,
		TokKwOptional, TokKwDefault, TokKwTrue, TokEOF,
	}
	testutil.SliceEqual(t, expected, kinds, "token kinds")
}

func TestHyphenatedKeywords(t *testing.T) {
	kinds := tokenKinds("RELATIVE-OID PLUS-INFINITY MINUS-INFINITY NOT-A-NUMBER")
	expected := []TokenKind{
		TokKwRelativeOID, TokKwPlusInfinity, TokKwMinusInfinity,
		TokKwNotANumber, TokEOF,
	}
	testutil.SliceEqual(t, expected, kinds, "token kinds")
}

func TestLineComment(t *testing.T) {
	kinds := tokenKinds("a -- comment\nb")
	expected := []TokenKind{TokLowerIdent, TokLowerIdent, TokEOF}
	testutil.SliceEqual(t, expected, kinds, "token kinds")
}

func TestLineCommentClosedByDoubleDash(t *testing.T) {
	kinds := tokenKinds("a -- comment -- b")
	expected := []TokenKind{TokLowerIdent, TokLowerIdent, TokEOF}
	testutil.SliceEqual(t, expected, kinds, "token kinds")
}

func TestNestedBlockComment(t *testing.T) {
	kinds := tokenKinds("a /* outer /* inner */ still outer */ b")
	expected := []TokenKind{TokLowerIdent, TokLowerIdent, TokEOF}
	testutil.SliceEqual(t, expected, kinds, "token kinds")
}

func TestUnterminatedBlockComment(t *testing.T) {
	lexer := New([]byte("a /* never closed"), nil)
	_, diags := lexer.Tokenize()
	testutil.Len(t, diags, 1, "diagnostics")
	testutil.Equal(t, "unterminated-comment", diags[0].Code, "code")
}

func TestCString(t *testing.T) {
	texts := tokenTexts(`"hello"`)
	testutil.SliceEqual(t, []string{`"hello"`}, texts, "token texts")

	kinds := tokenKinds(`"embedded "" quote"`)
	testutil.SliceEqual(t, []TokenKind{TokCString, TokEOF}, kinds, "kinds")
}

func TestBinAndHexStrings(t *testing.T) {
	kinds := tokenKinds("'0101'B 'DEAD'H")
	expected := []TokenKind{TokBString, TokHString, TokEOF}
	testutil.SliceEqual(t, expected, kinds, "token kinds")
}

func TestUnterminatedHString(t *testing.T) {
	lexer := New([]byte("'DEAD"), nil)
	_, diags := lexer.Tokenize()
	testutil.Len(t, diags, 1, "diagnostics")
	testutil.Equal(t, "unterminated-string", diags[0].Code, "code")
}

func TestModuleSkeleton(t *testing.T) {
	src := `M DEFINITIONS AUTOMATIC TAGS ::= BEGIN T ::= INTEGER END`
	kinds := tokenKinds(src)
	expected := []TokenKind{
		TokUpperIdent, TokKwDefinitions, TokKwAutomatic, TokKwTags,
		TokAssign, TokKwBegin, TokUpperIdent, TokAssign, TokKwInteger,
		TokKwEnd, TokEOF,
	}
	testutil.SliceEqual(t, expected, kinds, "token kinds")
}
