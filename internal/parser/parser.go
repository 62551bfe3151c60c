// Package parser provides ASN.1 module parsing into an AST.
//
// The parser is a recursive descent over the lexer's token stream with a
// three-token lookahead buffer. Parse errors are collected as diagnostics;
// the parser always recovers at assignment boundaries and continues, and
// outside lint mode the caller stops at the first error.
package parser

import (
	"fmt"
	"log/slog"

	"github.com/golangasn1/goasn1/internal/ast"
	"github.com/golangasn1/goasn1/internal/lexer"
	"github.com/golangasn1/goasn1/internal/types"
)

// Parser converts a token stream into an AST module with diagnostics.
type Parser struct {
	source      []byte
	lex         *lexer.Lexer
	buf         [3]lexer.Token // lookahead buffer: buf[0]=current, buf[1]=peek(1), buf[2]=peek(2)
	diagnostics []types.SpanDiagnostic
	eofToken    lexer.Token
	types.Logger
}

// New returns a Parser that lexes the source and prepares for parsing.
// Pass nil for logger to disable logging.
func New(source []byte, logger *slog.Logger) *Parser {
	var lexLogger *slog.Logger
	if logger != nil {
		lexLogger = logger.With(slog.String("component", "lexer"))
	}
	lex := lexer.New(source, lexLogger)
	eofSpan := types.NewSpan(types.ByteOffset(len(source)), types.ByteOffset(len(source)))
	p := &Parser{
		source:   source,
		lex:      lex,
		eofToken: lexer.NewToken(lexer.TokEOF, eofSpan),
		Logger:   types.Logger{L: logger},
	}
	p.buf[0] = lex.NextToken()
	p.buf[1] = lex.NextToken()
	p.buf[2] = lex.NextToken()
	p.Log(slog.LevelDebug, "parser initialized")
	return p
}

// ParseModules parses all modules in the source until EOF. A single source
// file may carry several DEFINITIONS blocks.
func (p *Parser) ParseModules() []*ast.Module {
	var modules []*ast.Module
	for !p.isEOF() {
		modules = append(modules, p.ParseModule())
	}
	return modules
}

// ParseModule parses one complete module and returns its AST. Parse errors
// are collected in the module's diagnostics rather than causing immediate
// failure.
func (p *Parser) ParseModule() *ast.Module {
	start := p.currentSpan().Start

	module, err := p.parseModuleHeader()
	if err != nil {
		p.recordParseError(*err)
		p.Log(slog.LevelDebug, "failed to parse module header")
		p.recoverToEnd()
		span := types.NewSpan(start, p.currentSpan().End)
		return &ast.Module{
			Name:        ast.NewIdent("UNKNOWN", span),
			Span:        span,
			Diagnostics: append(p.lex.Diagnostics(), p.diagnostics...),
		}
	}

	p.Log(slog.LevelDebug, "parsing module", slog.String("module", module.Name.Name))

	if p.check(lexer.TokKwExports) {
		if err := p.parseExports(module); err != nil {
			p.recordParseError(*err)
		}
	}

	if p.check(lexer.TokKwImports) {
		imports, err := p.parseImports()
		if err != nil {
			p.recordParseError(*err)
		} else {
			module.Imports = imports
			p.Log(slog.LevelDebug, "parsed imports",
				slog.String("module", module.Name.Name),
				slog.Int("count", len(imports)))
		}
	}

	for !p.check(lexer.TokKwEnd) && !p.isEOF() {
		assign, err := p.parseAssignment()
		if err != nil {
			p.recordParseError(*err)
			p.recoverToAssignment()
		} else {
			module.Assignments = append(module.Assignments, assign)
		}
	}

	if p.check(lexer.TokKwEnd) {
		p.advance()
	} else {
		p.recordParseError(p.makeError("expected END"))
	}

	module.Span = types.NewSpan(start, p.currentSpan().End)
	module.Diagnostics = append(p.lex.Diagnostics(), p.diagnostics...)

	p.Log(slog.LevelDebug, "parsing complete",
		slog.String("module", module.Name.Name),
		slog.Int("assignments", len(module.Assignments)),
		slog.Int("diagnostics", len(p.diagnostics)))

	return module
}

// Diagnostics returns all diagnostics collected so far, lexer's included.
func (p *Parser) Diagnostics() []types.SpanDiagnostic {
	return append(p.lex.Diagnostics(), p.diagnostics...)
}

// Source returns the bytes being parsed, for line/column recovery.
func (p *Parser) Source() []byte {
	return p.source
}

func (p *Parser) isEOF() bool {
	return p.peek().Kind == lexer.TokEOF
}

func (p *Parser) peek() lexer.Token {
	return p.buf[0]
}

func (p *Parser) peekNth(n int) lexer.Token {
	if n < len(p.buf) {
		return p.buf[n]
	}
	return p.eofToken
}

func (p *Parser) advance() lexer.Token {
	tok := p.buf[0]
	p.buf[0] = p.buf[1]
	p.buf[1] = p.buf[2]
	p.buf[2] = p.lex.NextToken()
	return tok
}

func (p *Parser) check(kind lexer.TokenKind) bool {
	return p.peek().Kind == kind
}

func (p *Parser) accept(kind lexer.TokenKind) bool {
	if p.check(kind) {
		p.advance()
		return true
	}
	return false
}

func (p *Parser) expect(kind lexer.TokenKind) (lexer.Token, *types.SpanDiagnostic) {
	if p.check(kind) {
		return p.advance(), nil
	}
	diag := p.makeError(fmt.Sprintf("expected %s, found %s", kind, p.peek().Kind))
	return lexer.Token{}, &diag
}

func (p *Parser) currentSpan() types.Span {
	return p.peek().Span
}

func (p *Parser) text(span types.Span) string {
	return string(p.source[span.Start:span.End])
}

func (p *Parser) makeIdent(token lexer.Token) ast.Ident {
	return ast.NewIdent(p.text(token.Span), token.Span)
}

// recordParseError appends a structural parse error unconditionally.
func (p *Parser) recordParseError(diag types.SpanDiagnostic) {
	p.diagnostics = append(p.diagnostics, diag)
}

func (p *Parser) makeError(message string) types.SpanDiagnostic {
	return types.SpanDiagnostic{
		Severity: types.SeverityError,
		Code:     "parse-error",
		Span:     p.currentSpan(),
		Message:  message,
	}
}

// recoverToAssignment skips tokens until the start of a plausible next
// assignment ("Ident ::=", "Ident {" or END).
func (p *Parser) recoverToAssignment() {
	for !p.isEOF() && !p.check(lexer.TokKwEnd) {
		if p.check(lexer.TokUpperIdent) || p.check(lexer.TokLowerIdent) {
			next := p.peekNth(1).Kind
			if next == lexer.TokAssign || next == lexer.TokLBrace {
				return
			}
		}
		p.advance()
	}
}

// recoverToEnd skips to the END of the current module.
func (p *Parser) recoverToEnd() {
	for !p.isEOF() {
		if p.accept(lexer.TokKwEnd) {
			return
		}
		p.advance()
	}
}

// parseModuleHeader parses:
//
//	ModuleName [{ oid }] DEFINITIONS [TagDefault TAGS]
//	[EXTENSIBILITY IMPLIED] ::= BEGIN
func (p *Parser) parseModuleHeader() (*ast.Module, *types.SpanDiagnostic) {
	nameToken, err := p.expect(lexer.TokUpperIdent)
	if err != nil {
		return nil, err
	}
	module := &ast.Module{Name: p.makeIdent(nameToken)}

	// Optional module identifier OID, kept only for diagnostics.
	if p.check(lexer.TokLBrace) {
		depth := 0
		for !p.isEOF() {
			tok := p.advance()
			if tok.Kind == lexer.TokLBrace {
				depth++
			} else if tok.Kind == lexer.TokRBrace {
				depth--
				if depth == 0 {
					break
				}
			}
		}
	}

	if _, err := p.expect(lexer.TokKwDefinitions); err != nil {
		return nil, err
	}

	switch p.peek().Kind {
	case lexer.TokKwExplicit:
		p.advance()
		if _, err := p.expect(lexer.TokKwTags); err != nil {
			return nil, err
		}
		module.TagDefault = ast.TagDefaultExplicit
	case lexer.TokKwImplicit:
		p.advance()
		if _, err := p.expect(lexer.TokKwTags); err != nil {
			return nil, err
		}
		module.TagDefault = ast.TagDefaultImplicit
	case lexer.TokKwAutomatic:
		p.advance()
		if _, err := p.expect(lexer.TokKwTags); err != nil {
			return nil, err
		}
		module.TagDefault = ast.TagDefaultAutomatic
	}

	if p.accept(lexer.TokKwExtensibility) {
		if _, err := p.expect(lexer.TokKwImplied); err != nil {
			return nil, err
		}
		module.ExtensibilityImplied = true
	}

	if _, err := p.expect(lexer.TokAssign); err != nil {
		return nil, err
	}
	if _, err := p.expect(lexer.TokKwBegin); err != nil {
		return nil, err
	}
	return module, nil
}

// parseExports parses "EXPORTS symbol, ... ;" or "EXPORTS ALL ;".
func (p *Parser) parseExports(module *ast.Module) *types.SpanDiagnostic {
	p.advance() // EXPORTS

	if p.accept(lexer.TokKwAll) {
		module.ExportsAll = true
		_, err := p.expect(lexer.TokSemicolon)
		return err
	}

	for !p.check(lexer.TokSemicolon) && !p.isEOF() {
		tok := p.peek()
		if tok.Kind != lexer.TokUpperIdent && tok.Kind != lexer.TokLowerIdent {
			diag := p.makeError("expected symbol in EXPORTS")
			return &diag
		}
		p.advance()
		module.Exports = append(module.Exports, p.makeIdent(tok))
		if !p.accept(lexer.TokComma) {
			break
		}
	}
	_, err := p.expect(lexer.TokSemicolon)
	return err
}

// parseImports parses "IMPORTS symbols FROM Module ... ;".
func (p *Parser) parseImports() ([]ast.Import, *types.SpanDiagnostic) {
	p.advance() // IMPORTS

	var imports []ast.Import
	for !p.check(lexer.TokSemicolon) && !p.isEOF() {
		imp := ast.Import{Span: p.currentSpan()}
		for {
			tok := p.peek()
			if tok.Kind != lexer.TokUpperIdent && tok.Kind != lexer.TokLowerIdent {
				diag := p.makeError("expected symbol in IMPORTS")
				return nil, &diag
			}
			p.advance()
			// Parameterized symbols are imported as "Name{}".
			if p.check(lexer.TokLBrace) && p.peekNth(1).Kind == lexer.TokRBrace {
				p.advance()
				p.advance()
			}
			imp.Symbols = append(imp.Symbols, p.makeIdent(tok))
			if !p.accept(lexer.TokComma) {
				break
			}
		}
		if _, err := p.expect(lexer.TokKwFrom); err != nil {
			return nil, err
		}
		fromTok, err := p.expect(lexer.TokUpperIdent)
		if err != nil {
			return nil, err
		}
		imp.From = p.makeIdent(fromTok)
		// An optional module OID / value reference after the module name is
		// skipped.
		if p.check(lexer.TokLBrace) {
			depth := 0
			for !p.isEOF() {
				tok := p.advance()
				if tok.Kind == lexer.TokLBrace {
					depth++
				} else if tok.Kind == lexer.TokRBrace {
					depth--
					if depth == 0 {
						break
					}
				}
			}
		}
		imp.Span.End = p.currentSpan().Start
		imports = append(imports, imp)
	}
	if _, err := p.expect(lexer.TokSemicolon); err != nil {
		return nil, err
	}
	return imports, nil
}

// parseAssignment parses one type or value assignment, either possibly
// parameterized.
func (p *Parser) parseAssignment() (ast.Assignment, *types.SpanDiagnostic) {
	start := p.currentSpan().Start
	tok := p.peek()

	switch tok.Kind {
	case lexer.TokUpperIdent:
		name := p.makeIdent(p.advance())

		var params []ast.Parameter
		if p.check(lexer.TokLBrace) {
			var err *types.SpanDiagnostic
			params, err = p.parseFormalParameters()
			if err != nil {
				return nil, err
			}
		}

		if _, err := p.expect(lexer.TokAssign); err != nil {
			return nil, err
		}
		typ, err := p.parseType()
		if err != nil {
			return nil, err
		}
		return &ast.TypeAssignment{
			Name:       name,
			Parameters: params,
			Type:       typ,
			Span:       types.NewSpan(start, p.currentSpan().Start),
		}, nil

	case lexer.TokLowerIdent:
		name := p.makeIdent(p.advance())

		var params []ast.Parameter
		if p.check(lexer.TokLBrace) {
			var err *types.SpanDiagnostic
			params, err = p.parseFormalParameters()
			if err != nil {
				return nil, err
			}
		}

		typ, err := p.parseType()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(lexer.TokAssign); err != nil {
			return nil, err
		}
		val, err := p.parseValue()
		if err != nil {
			return nil, err
		}
		return &ast.ValueAssignment{
			Name:       name,
			Parameters: params,
			Type:       typ,
			Value:      val,
			Span:       types.NewSpan(start, p.currentSpan().Start),
		}, nil
	}

	diag := p.makeError(fmt.Sprintf("expected assignment, found %s", tok.Kind))
	return nil, &diag
}

// parseFormalParameters parses "{ P, Governor : p, ... }".
func (p *Parser) parseFormalParameters() ([]ast.Parameter, *types.SpanDiagnostic) {
	p.advance() // {

	var params []ast.Parameter
	for {
		// A parameter with a governor reads "Type : name"; look for the
		// colon by trying the cheap single-ident form first.
		tok := p.peek()
		if (tok.Kind == lexer.TokUpperIdent || tok.Kind == lexer.TokLowerIdent) &&
			(p.peekNth(1).Kind == lexer.TokComma || p.peekNth(1).Kind == lexer.TokRBrace) {
			p.advance()
			params = append(params, ast.Parameter{Name: p.makeIdent(tok)})
		} else {
			governor, err := p.parseType()
			if err != nil {
				return nil, err
			}
			if _, err := p.expect(lexer.TokColon); err != nil {
				return nil, err
			}
			nameTok := p.peek()
			if nameTok.Kind != lexer.TokLowerIdent && nameTok.Kind != lexer.TokUpperIdent {
				diag := p.makeError("expected parameter name")
				return nil, &diag
			}
			p.advance()
			params = append(params, ast.Parameter{
				Governor: governor,
				Name:     p.makeIdent(nameTok),
			})
		}
		if !p.accept(lexer.TokComma) {
			break
		}
	}
	if _, err := p.expect(lexer.TokRBrace); err != nil {
		return nil, err
	}
	return params, nil
}
