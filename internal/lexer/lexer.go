package lexer

import (
	"fmt"
	"log/slog"
	"slices"

	"github.com/golangasn1/goasn1/internal/types"
)

// Lexer tokenizes ASN.1 module source text.
type Lexer struct {
	source      []byte
	pos         int
	diagnostics []types.SpanDiagnostic
	types.Logger
}

// New returns a Lexer that tokenizes the given source bytes.
func New(source []byte, logger *slog.Logger) *Lexer {
	l := &Lexer{
		source: source,
		Logger: types.Logger{L: logger},
	}
	l.Log(slog.LevelDebug, "lexer initialized", slog.Int("bytes", len(source)))
	return l
}

// Diagnostics returns a copy of all collected diagnostics.
func (l *Lexer) Diagnostics() []types.SpanDiagnostic {
	return slices.Clone(l.diagnostics)
}

func (l *Lexer) traceToken(tok Token) {
	if l.TraceEnabled() {
		l.Trace("token",
			slog.Int("kind", int(tok.Kind)),
			slog.Int("start", int(tok.Span.Start)),
			slog.Int("end", int(tok.Span.End)))
	}
}

// Tokenize consumes all source text and returns the token stream
// along with any diagnostics generated during lexing.
func (l *Lexer) Tokenize() ([]Token, []types.SpanDiagnostic) {
	estimatedTokens := max(len(l.source)/6, 64)
	tokens := make([]Token, 0, estimatedTokens)
	for {
		tok := l.NextToken()
		tokens = append(tokens, tok)
		if tok.Kind == TokEOF {
			break
		}
	}
	l.Log(slog.LevelDebug, "tokenization complete",
		slog.Int("tokens", len(tokens)),
		slog.Int("diagnostics", len(l.diagnostics)))
	return tokens, l.diagnostics
}

func (l *Lexer) peek() (byte, bool) {
	if l.pos >= len(l.source) {
		return 0, false
	}
	return l.source[l.pos], true
}

func (l *Lexer) peekAt(offset int) (byte, bool) {
	idx := l.pos + offset
	if idx >= len(l.source) {
		return 0, false
	}
	return l.source[idx], true
}

func (l *Lexer) advance() (byte, bool) {
	if l.pos >= len(l.source) {
		return 0, false
	}
	b := l.source[l.pos]
	l.pos++
	return b, true
}

func (l *Lexer) error(span types.Span, code, message string) {
	l.diagnostics = append(l.diagnostics, types.SpanDiagnostic{
		Severity: types.SeverityError,
		Code:     code,
		Span:     span,
		Message:  message,
	})
}

func (l *Lexer) spanFrom(start int) types.Span {
	return types.Span{
		Start: types.ByteOffset(start),
		End:   types.ByteOffset(l.pos),
	}
}

func (l *Lexer) token(kind TokenKind, start int) Token {
	tok := Token{Kind: kind, Span: l.spanFrom(start)}
	l.traceToken(tok)
	return tok
}

// NextToken advances the lexer and returns the next token.
// Returns TokEOF when all input is consumed.
func (l *Lexer) NextToken() Token {
	for {
		l.skipWhitespace()

		start := l.pos
		b, ok := l.peek()
		if !ok {
			return l.token(TokEOF, start)
		}

		// "--" line comment, terminated by newline or a second "--".
		if b == '-' {
			if next, ok := l.peekAt(1); ok && next == '-' {
				l.pos += 2
				l.consumeLineComment()
				continue
			}
		}

		// "/* ... */" block comment, nesting per X.680 §12.6.4.
		if b == '/' {
			if next, ok := l.peekAt(1); ok && next == '*' {
				l.pos += 2
				l.consumeBlockComment(start)
				continue
			}
		}

		switch b {
		case '{':
			l.advance()
			return l.token(TokLBrace, start)
		case '}':
			l.advance()
			return l.token(TokRBrace, start)
		case '(':
			l.advance()
			return l.token(TokLParen, start)
		case ')':
			l.advance()
			return l.token(TokRParen, start)
		case ',':
			l.advance()
			return l.token(TokComma, start)
		case ';':
			l.advance()
			return l.token(TokSemicolon, start)
		case '|':
			l.advance()
			return l.token(TokPipe, start)
		case '^':
			l.advance()
			return l.token(TokCaret, start)
		case '!':
			l.advance()
			return l.token(TokExclamation, start)
		case '<':
			l.advance()
			return l.token(TokLess, start)
		case '>':
			l.advance()
			return l.token(TokGreater, start)
		case '@':
			l.advance()
			return l.token(TokAt, start)
		}

		if b == '[' {
			l.advance()
			if next, ok := l.peek(); ok && next == '[' {
				l.advance()
				return l.token(TokLDoubleBracket, start)
			}
			return l.token(TokLBracket, start)
		}

		if b == ']' {
			l.advance()
			if next, ok := l.peek(); ok && next == ']' {
				l.advance()
				return l.token(TokRDoubleBracket, start)
			}
			return l.token(TokRBracket, start)
		}

		if b == '.' {
			l.advance()
			if next, ok := l.peek(); ok && next == '.' {
				l.advance()
				if after, ok := l.peek(); ok && after == '.' {
					l.advance()
					return l.token(TokEllipsis, start)
				}
				return l.token(TokDotDot, start)
			}
			return l.token(TokDot, start)
		}

		if b == ':' {
			l.advance()
			if n1, ok := l.peek(); ok && n1 == ':' {
				if n2, ok := l.peekAt(1); ok && n2 == '=' {
					l.pos += 2
					return l.token(TokAssign, start)
				}
			}
			return l.token(TokColon, start)
		}

		if b == '-' {
			l.advance()
			return l.token(TokMinus, start)
		}

		if isDigit(b) {
			return l.scanNumber(start)
		}

		if b == '"' {
			return l.scanCString(start)
		}

		if b == '\'' {
			return l.scanBinOrHexString(start)
		}

		if isAlpha(b) {
			return l.scanIdentifierOrKeyword(start)
		}

		l.advance()
		span := l.spanFrom(start)
		l.error(span, "unexpected-character",
			fmt.Sprintf("unexpected character: 0x%02x", b))
		return l.token(TokError, start)
	}
}

func (l *Lexer) skipWhitespace() {
	for {
		b, ok := l.peek()
		if !ok {
			return
		}
		if b == ' ' || b == '\t' || b == '\r' || b == '\n' || b == '\v' || b == '\f' {
			l.advance()
		} else {
			return
		}
	}
}

// consumeLineComment skips text after "--" until a line ending or a
// closing "--".
func (l *Lexer) consumeLineComment() {
	for {
		b, ok := l.peek()
		if !ok {
			return
		}
		if b == '\n' || b == '\r' {
			return
		}
		if b == '-' {
			if next, ok := l.peekAt(1); ok && next == '-' {
				l.pos += 2
				return
			}
		}
		l.advance()
	}
}

// consumeBlockComment skips a "/* */" comment, honoring nesting.
func (l *Lexer) consumeBlockComment(start int) {
	depth := 1
	for depth > 0 {
		b, ok := l.advance()
		if !ok {
			l.error(l.spanFrom(start), "unterminated-comment",
				"unterminated block comment")
			return
		}
		switch b {
		case '/':
			if next, ok := l.peek(); ok && next == '*' {
				l.advance()
				depth++
			}
		case '*':
			if next, ok := l.peek(); ok && next == '/' {
				l.advance()
				depth--
			}
		}
	}
}

// scanNumber scans an unsigned number or a real number literal. A real has
// a fractional part, an exponent, or both.
func (l *Lexer) scanNumber(start int) Token {
	for {
		b, ok := l.peek()
		if !ok || !isDigit(b) {
			break
		}
		l.advance()
	}

	real := false
	if b, ok := l.peek(); ok && b == '.' {
		// ".." after a number is a range, not a fraction.
		if next, ok := l.peekAt(1); !ok || next != '.' {
			if ok && isDigit(next) {
				real = true
				l.advance()
				for {
					b, ok := l.peek()
					if !ok || !isDigit(b) {
						break
					}
					l.advance()
				}
			}
		}
	}

	if b, ok := l.peek(); ok && (b == 'e' || b == 'E') {
		next, ok2 := l.peekAt(1)
		if ok2 && (isDigit(next) || next == '-' || next == '+') {
			real = true
			l.advance()
			if b, ok := l.peek(); ok && (b == '-' || b == '+') {
				l.advance()
			}
			for {
				b, ok := l.peek()
				if !ok || !isDigit(b) {
					break
				}
				l.advance()
			}
		}
	}

	if real {
		return l.token(TokRealNumber, start)
	}
	return l.token(TokNumber, start)
}

// scanCString scans a quoted character string. A doubled quote is an
// embedded quote, not a terminator.
func (l *Lexer) scanCString(start int) Token {
	l.advance() // opening quote
	for {
		b, ok := l.advance()
		if !ok {
			l.error(l.spanFrom(start), "unterminated-string",
				"unterminated character string")
			return l.token(TokError, start)
		}
		if b == '"' {
			if next, ok := l.peek(); ok && next == '"' {
				l.advance()
				continue
			}
			return l.token(TokCString, start)
		}
	}
}

// scanBinOrHexString scans '0101'B or 'DEADBEEF'H literals. Whitespace
// inside the quotes is permitted and ignored by the parser.
func (l *Lexer) scanBinOrHexString(start int) Token {
	l.advance() // opening quote
	for {
		b, ok := l.advance()
		if !ok {
			l.error(l.spanFrom(start), "unterminated-string",
				"unterminated bstring or hstring")
			return l.token(TokError, start)
		}
		if b == '\'' {
			suffix, ok := l.advance()
			if !ok {
				l.error(l.spanFrom(start), "missing-string-suffix",
					"bstring or hstring missing B/H suffix")
				return l.token(TokError, start)
			}
			switch suffix {
			case 'B', 'b':
				return l.token(TokBString, start)
			case 'H', 'h':
				return l.token(TokHString, start)
			default:
				l.error(l.spanFrom(start), "missing-string-suffix",
					fmt.Sprintf("invalid string suffix %q", suffix))
				return l.token(TokError, start)
			}
		}
	}
}

// scanIdentifierOrKeyword scans an identifier, which may contain single
// hyphens between alphanumerics. Reserved words become keyword tokens.
func (l *Lexer) scanIdentifierOrKeyword(start int) Token {
	first, _ := l.advance()
	for {
		b, ok := l.peek()
		if !ok {
			break
		}
		if isAlnum(b) {
			l.advance()
			continue
		}
		if b == '-' {
			// A hyphen stays in the identifier only if followed by an
			// alphanumeric; "--" starts a comment.
			next, ok := l.peekAt(1)
			if ok && isAlnum(next) {
				l.advance()
				continue
			}
		}
		break
	}

	word := string(l.source[start:l.pos])
	if kind, ok := keywords[word]; ok {
		return l.token(kind, start)
	}
	if isUpper(first) {
		return l.token(TokUpperIdent, start)
	}
	return l.token(TokLowerIdent, start)
}

func isDigit(b byte) bool { return b >= '0' && b <= '9' }
func isUpper(b byte) bool { return b >= 'A' && b <= 'Z' }
func isAlpha(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}
func isAlnum(b byte) bool { return isAlpha(b) || isDigit(b) }
