package parser

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/golangasn1/goasn1/internal/ast"
	"github.com/golangasn1/goasn1/internal/lexer"
	"github.com/golangasn1/goasn1/internal/types"
)

// parseValue parses a value in any notation the grammar permits. Braced
// notation is inherently ambiguous without type context (an OID value and a
// one-field sequence value can tokenize identically); the parser picks the
// most specific reading and the resolver reinterprets against the governing
// type.
func (p *Parser) parseValue() (*ast.Value, *types.SpanDiagnostic) {
	start := p.currentSpan().Start
	tok := p.peek()

	mk := func(kind ast.ValueKind) *ast.Value {
		return &ast.Value{Kind: kind, Span: types.NewSpan(start, p.currentSpan().Start)}
	}

	switch tok.Kind {
	case lexer.TokKwTrue:
		p.advance()
		v := mk(ast.ValBoolean)
		v.Bool = true
		return v, nil

	case lexer.TokKwFalse:
		p.advance()
		return mk(ast.ValBoolean), nil

	case lexer.TokKwNull:
		p.advance()
		return mk(ast.ValNull), nil

	case lexer.TokKwPlusInfinity:
		p.advance()
		v := mk(ast.ValSpecialReal)
		v.Special = ast.PlusInfinity
		return v, nil

	case lexer.TokKwMinusInfinity:
		p.advance()
		v := mk(ast.ValSpecialReal)
		v.Special = ast.MinusInfinity
		return v, nil

	case lexer.TokKwNotANumber:
		p.advance()
		v := mk(ast.ValSpecialReal)
		v.Special = ast.NotANumber
		return v, nil

	case lexer.TokMinus:
		p.advance()
		return p.parseNegativeNumber(start)

	case lexer.TokNumber:
		numTok := p.advance()
		v := mk(ast.ValInteger)
		n, ok := new(big.Int).SetString(p.text(numTok.Span), 10)
		if !ok {
			diag := p.makeError("invalid integer literal")
			return nil, &diag
		}
		v.Int = n
		v.Span.End = numTok.Span.End
		return v, nil

	case lexer.TokRealNumber:
		numTok := p.advance()
		f, err := strconv.ParseFloat(p.text(numTok.Span), 64)
		if err != nil {
			diag := p.makeError("invalid real literal")
			return nil, &diag
		}
		v := mk(ast.ValReal)
		v.Real = f
		v.Span.End = numTok.Span.End
		return v, nil

	case lexer.TokCString:
		strTok := p.advance()
		v := mk(ast.ValCString)
		v.Str = unquoteCString(p.text(strTok.Span))
		v.Span.End = strTok.Span.End
		return v, nil

	case lexer.TokBString:
		strTok := p.advance()
		bits, bitLen, ok := parseBString(p.text(strTok.Span))
		if !ok {
			diag := p.makeError("invalid bstring literal")
			return nil, &diag
		}
		v := mk(ast.ValBString)
		v.Bytes, v.BitLen = bits, bitLen
		v.Span.End = strTok.Span.End
		return v, nil

	case lexer.TokHString:
		strTok := p.advance()
		bits, bitLen, ok := parseHString(p.text(strTok.Span))
		if !ok {
			diag := p.makeError("invalid hstring literal")
			return nil, &diag
		}
		v := mk(ast.ValHString)
		v.Bytes, v.BitLen = bits, bitLen
		v.Span.End = strTok.Span.End
		return v, nil

	case lexer.TokKwMin, lexer.TokKwMax:
		// MIN/MAX are only legal as range endpoints; the constraint parser
		// consumes them before calling here.
		diag := p.makeError("MIN/MAX outside value range")
		return nil, &diag

	case lexer.TokLowerIdent:
		identTok := p.advance()
		if p.accept(lexer.TokColon) {
			chosen, err := p.parseValue()
			if err != nil {
				return nil, err
			}
			v := mk(ast.ValChoice)
			v.Str = p.text(identTok.Span)
			v.Chosen = chosen
			v.Span.End = p.currentSpan().Start
			return v, nil
		}
		v := mk(ast.ValIdentifier)
		v.Str = p.text(identTok.Span)
		v.Span.End = identTok.Span.End
		return v, nil

	case lexer.TokLBrace:
		return p.parseBracedValue(start)
	}

	diag := p.makeError(fmt.Sprintf("expected value, found %s", tok.Kind))
	return nil, &diag
}

func (p *Parser) parseNegativeNumber(start types.ByteOffset) (*ast.Value, *types.SpanDiagnostic) {
	switch p.peek().Kind {
	case lexer.TokNumber:
		numTok := p.advance()
		n, ok := new(big.Int).SetString(p.text(numTok.Span), 10)
		if !ok {
			diag := p.makeError("invalid integer literal")
			return nil, &diag
		}
		return &ast.Value{
			Kind: ast.ValInteger,
			Int:  n.Neg(n),
			Span: types.NewSpan(start, numTok.Span.End),
		}, nil
	case lexer.TokRealNumber:
		numTok := p.advance()
		f, err := strconv.ParseFloat(p.text(numTok.Span), 64)
		if err != nil {
			diag := p.makeError("invalid real literal")
			return nil, &diag
		}
		return &ast.Value{
			Kind: ast.ValReal,
			Real: -f,
			Span: types.NewSpan(start, numTok.Span.End),
		}, nil
	}
	diag := p.makeError("expected number after '-'")
	return nil, &diag
}

// parseBracedValue parses "{ ... }" value notation: OID component lists,
// sequence values, and value lists.
func (p *Parser) parseBracedValue(start types.ByteOffset) (*ast.Value, *types.SpanDiagnostic) {
	p.advance() // {

	if p.accept(lexer.TokRBrace) {
		return &ast.Value{
			Kind: ast.ValList,
			Span: types.NewSpan(start, p.currentSpan().Start),
		}, nil
	}

	// OID component lists have no commas: "{ iso(1) 2 ds(5) }".
	if p.looksLikeOIDComponents() {
		return p.parseOIDComponents(start)
	}

	var (
		fields   []ast.NamedValue
		elements []*ast.Value
	)
	for {
		// "name value" is a sequence field; a bare name followed by ','
		// or '}' is an element (enum label or value reference).
		if p.check(lexer.TokLowerIdent) {
			next := p.peekNth(1).Kind
			if next != lexer.TokComma && next != lexer.TokRBrace && next != lexer.TokColon {
				nameTok := p.advance()
				val, err := p.parseValue()
				if err != nil {
					return nil, err
				}
				fields = append(fields, ast.NamedValue{
					Name:  p.makeIdent(nameTok),
					Value: val,
				})
				if !p.accept(lexer.TokComma) {
					break
				}
				continue
			}
		}
		val, err := p.parseValue()
		if err != nil {
			return nil, err
		}
		elements = append(elements, val)
		if !p.accept(lexer.TokComma) {
			break
		}
	}
	if _, err := p.expect(lexer.TokRBrace); err != nil {
		return nil, err
	}

	if len(fields) > 0 && len(elements) > 0 {
		diag := p.makeError("mixed named and unnamed items in braced value")
		return nil, &diag
	}
	if len(fields) > 0 {
		return &ast.Value{
			Kind:   ast.ValSequence,
			Fields: fields,
			Span:   types.NewSpan(start, p.currentSpan().Start),
		}, nil
	}
	return &ast.Value{
		Kind:     ast.ValList,
		Elements: elements,
		Span:     types.NewSpan(start, p.currentSpan().Start),
	}, nil
}

// looksLikeOIDComponents reports whether the upcoming tokens read as an OID
// component list: a number followed by a number or a name, or a leading
// "name(number)" arc. A list that starts with a bare name ("{ iso 2 }") is
// not recognized here and parses as a sequence value.
func (p *Parser) looksLikeOIDComponents() bool {
	first := p.peek().Kind
	second := p.peekNth(1).Kind

	switch first {
	case lexer.TokNumber:
		return second == lexer.TokNumber || second == lexer.TokLowerIdent ||
			second == lexer.TokUpperIdent
	case lexer.TokLowerIdent, lexer.TokUpperIdent:
		if second == lexer.TokLParen && p.peekNth(2).Kind == lexer.TokNumber {
			return true
		}
	}
	return false
}

func (p *Parser) parseOIDComponents(start types.ByteOffset) (*ast.Value, *types.SpanDiagnostic) {
	var components []ast.OIDComponent
	for !p.check(lexer.TokRBrace) && !p.isEOF() {
		switch p.peek().Kind {
		case lexer.TokNumber:
			numTok := p.advance()
			n, _ := new(big.Int).SetString(p.text(numTok.Span), 10)
			components = append(components, ast.OIDComponent{Number: n})

		case lexer.TokLowerIdent, lexer.TokUpperIdent:
			nameTok := p.advance()
			comp := ast.OIDComponent{Name: p.text(nameTok.Span)}
			if p.accept(lexer.TokLParen) {
				numTok, err := p.expect(lexer.TokNumber)
				if err != nil {
					return nil, err
				}
				comp.Number, _ = new(big.Int).SetString(p.text(numTok.Span), 10)
				if _, err := p.expect(lexer.TokRParen); err != nil {
					return nil, err
				}
			}
			components = append(components, comp)

		default:
			diag := p.makeError(fmt.Sprintf("expected OID component, found %s", p.peek().Kind))
			return nil, &diag
		}
	}
	if _, err := p.expect(lexer.TokRBrace); err != nil {
		return nil, err
	}
	return &ast.Value{
		Kind:          ast.ValOID,
		OIDComponents: components,
		Span:          types.NewSpan(start, p.currentSpan().Start),
	}, nil
}

// unquoteCString strips the surrounding quotes and collapses doubled quotes.
func unquoteCString(s string) string {
	s = s[1 : len(s)-1]
	return strings.ReplaceAll(s, `""`, `"`)
}

// parseBString converts "'0101'B" into packed bits, most significant bit
// first.
func parseBString(s string) ([]byte, int, bool) {
	body := s[1:strings.LastIndex(s, "'")]
	var out []byte
	bitLen := 0
	for _, c := range body {
		switch c {
		case '0', '1':
			if bitLen%8 == 0 {
				out = append(out, 0)
			}
			if c == '1' {
				out[bitLen/8] |= 0x80 >> (bitLen % 8)
			}
			bitLen++
		case ' ', '\t', '\n', '\r':
			// whitespace inside the literal is ignored
		default:
			return nil, 0, false
		}
	}
	return out, bitLen, true
}

// parseHString converts "'0FA5'H" into packed bits (4 per digit).
func parseHString(s string) ([]byte, int, bool) {
	body := s[1:strings.LastIndex(s, "'")]
	var out []byte
	nibbles := 0
	for _, c := range body {
		var v byte
		switch {
		case c >= '0' && c <= '9':
			v = byte(c - '0')
		case c >= 'A' && c <= 'F':
			v = byte(c-'A') + 10
		case c >= 'a' && c <= 'f':
			v = byte(c-'a') + 10
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			continue
		default:
			return nil, 0, false
		}
		if nibbles%2 == 0 {
			out = append(out, v<<4)
		} else {
			out[nibbles/2] |= v
		}
		nibbles++
	}
	return out, nibbles * 4, true
}
