package parser

import (
	"github.com/golangasn1/goasn1/internal/ast"
	"github.com/golangasn1/goasn1/internal/lexer"
	"github.com/golangasn1/goasn1/internal/types"
)

// parseConstraintParens parses "( ElementSetSpecs )".
func (p *Parser) parseConstraintParens() (*ast.Constraint, *types.SpanDiagnostic) {
	start := p.currentSpan().Start
	if _, err := p.expect(lexer.TokLParen); err != nil {
		return nil, err
	}
	constraint, err := p.parseElementSetSpecs()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(lexer.TokRParen); err != nil {
		return nil, err
	}
	constraint.Span = types.NewSpan(start, p.currentSpan().Start)
	return constraint, nil
}

// parseElementSetSpecs parses "root [, ... [, additions]]". A leading
// ellipsis means an empty root, which the resolver rejects
// (ExtensionWithoutRoot).
func (p *Parser) parseElementSetSpecs() (*ast.Constraint, *types.SpanDiagnostic) {
	constraint := &ast.Constraint{}

	if p.accept(lexer.TokEllipsis) {
		constraint.Extensible = true
		if p.accept(lexer.TokComma) {
			additions, err := p.parseElementSet()
			if err != nil {
				return nil, err
			}
			constraint.Additions = additions
		}
		return constraint, nil
	}

	root, err := p.parseElementSet()
	if err != nil {
		return nil, err
	}
	constraint.Root = root

	if p.accept(lexer.TokComma) {
		if _, err := p.expect(lexer.TokEllipsis); err != nil {
			return nil, err
		}
		constraint.Extensible = true
		p.skipExceptionSpec()
		if p.accept(lexer.TokComma) {
			additions, err := p.parseElementSet()
			if err != nil {
				return nil, err
			}
			constraint.Additions = additions
		}
	}
	return constraint, nil
}

// parseElementSet parses a union: intersections joined by '|' or UNION.
// Intersection binds tighter than union per X.680 §47.
func (p *Parser) parseElementSet() (*ast.ElementSet, *types.SpanDiagnostic) {
	start := p.currentSpan().Start

	first, err := p.parseIntersection()
	if err != nil {
		return nil, err
	}
	operands := []*ast.ElementSet{first}

	for p.check(lexer.TokPipe) || p.check(lexer.TokKwUnion) {
		p.advance()
		next, err := p.parseIntersection()
		if err != nil {
			return nil, err
		}
		operands = append(operands, next)
	}

	if len(operands) == 1 {
		return operands[0], nil
	}
	return &ast.ElementSet{
		Kind:     ast.ESUnion,
		Operands: operands,
		Span:     types.NewSpan(start, p.currentSpan().Start),
	}, nil
}

func (p *Parser) parseIntersection() (*ast.ElementSet, *types.SpanDiagnostic) {
	start := p.currentSpan().Start

	first, err := p.parseExclusion()
	if err != nil {
		return nil, err
	}
	operands := []*ast.ElementSet{first}

	for p.check(lexer.TokCaret) || p.check(lexer.TokKwIntersection) {
		p.advance()
		next, err := p.parseExclusion()
		if err != nil {
			return nil, err
		}
		operands = append(operands, next)
	}

	if len(operands) == 1 {
		return operands[0], nil
	}
	return &ast.ElementSet{
		Kind:     ast.ESIntersection,
		Operands: operands,
		Span:     types.NewSpan(start, p.currentSpan().Start),
	}, nil
}

// parseExclusion parses "elements [EXCEPT elements]" and "ALL EXCEPT
// elements".
func (p *Parser) parseExclusion() (*ast.ElementSet, *types.SpanDiagnostic) {
	start := p.currentSpan().Start

	if p.accept(lexer.TokKwAll) {
		if _, err := p.expect(lexer.TokKwExcept); err != nil {
			return nil, err
		}
		excluded, err := p.parseElements()
		if err != nil {
			return nil, err
		}
		return &ast.ElementSet{
			Kind:     ast.ESExclusion,
			All:      true,
			Operands: []*ast.ElementSet{excluded},
			Span:     types.NewSpan(start, p.currentSpan().Start),
		}, nil
	}

	elem, err := p.parseElements()
	if err != nil {
		return nil, err
	}
	if p.accept(lexer.TokKwExcept) {
		excluded, err := p.parseElements()
		if err != nil {
			return nil, err
		}
		return &ast.ElementSet{
			Kind:     ast.ESExclusion,
			Operands: []*ast.ElementSet{elem, excluded},
			Span:     types.NewSpan(start, p.currentSpan().Start),
		}, nil
	}
	return elem, nil
}

// parseElements parses one subtype element.
func (p *Parser) parseElements() (*ast.ElementSet, *types.SpanDiagnostic) {
	start := p.currentSpan().Start
	tok := p.peek()

	switch tok.Kind {
	case lexer.TokLParen:
		p.advance()
		inner, err := p.parseElementSet()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(lexer.TokRParen); err != nil {
			return nil, err
		}
		return inner, nil

	case lexer.TokKwSize:
		p.advance()
		inner, err := p.parseConstraintParens()
		if err != nil {
			return nil, err
		}
		return &ast.ElementSet{
			Kind:  ast.ESSize,
			Inner: inner,
			Span:  types.NewSpan(start, p.currentSpan().Start),
		}, nil

	case lexer.TokKwFrom:
		p.advance()
		inner, err := p.parseConstraintParens()
		if err != nil {
			return nil, err
		}
		return &ast.ElementSet{
			Kind:  ast.ESFrom,
			Inner: inner,
			Span:  types.NewSpan(start, p.currentSpan().Start),
		}, nil

	case lexer.TokKwContaining:
		p.advance()
		typ, err := p.parseType()
		if err != nil {
			return nil, err
		}
		// ENCODED BY after CONTAINING is parsed and dropped; codecs treat
		// the field as an opaque payload either way.
		if p.accept(lexer.TokKwEncoded) {
			if _, err := p.expect(lexer.TokKwBy); err != nil {
				return nil, err
			}
			if _, err := p.parseValue(); err != nil {
				return nil, err
			}
		}
		return &ast.ElementSet{
			Kind: ast.ESContaining,
			Type: typ,
			Span: types.NewSpan(start, p.currentSpan().Start),
		}, nil

	case lexer.TokKwIncludes:
		p.advance()
		typ, err := p.parseType()
		if err != nil {
			return nil, err
		}
		return &ast.ElementSet{
			Kind: ast.ESContainedSubtype,
			Type: typ,
			Span: types.NewSpan(start, p.currentSpan().Start),
		}, nil

	case lexer.TokKwWith:
		return p.parseWithComponents(start)

	case lexer.TokUpperIdent:
		// PATTERN is not a reserved word in this grammar; recognize it by
		// name, else fall through to a contained-subtype reference.
		if p.text(tok.Span) == "PATTERN" && p.peekNth(1).Kind == lexer.TokCString {
			p.advance()
			strTok := p.advance()
			return &ast.ElementSet{
				Kind:    ast.ESPattern,
				Pattern: unquoteCString(p.text(strTok.Span)),
				Span:    types.NewSpan(start, p.currentSpan().Start),
			}, nil
		}
		if !p.isRangeAhead() {
			typ, err := p.parseType()
			if err != nil {
				return nil, err
			}
			return &ast.ElementSet{
				Kind: ast.ESContainedSubtype,
				Type: typ,
				Span: types.NewSpan(start, p.currentSpan().Start),
			}, nil
		}
	}

	return p.parseValueOrRange(start)
}

// isRangeAhead reports whether the current single value is followed by
// '..' or '<', i.e. it is a range endpoint.
func (p *Parser) isRangeAhead() bool {
	next := p.peekNth(1).Kind
	return next == lexer.TokDotDot || next == lexer.TokLess
}

// parseValueOrRange parses "v", "lo..hi", "MIN..hi", "lo<..<hi" and the
// degenerate "MIN..MAX".
func (p *Parser) parseValueOrRange(start types.ByteOffset) (*ast.ElementSet, *types.SpanDiagnostic) {
	lo, err := p.parseEndpoint()
	if err != nil {
		return nil, err
	}

	if p.accept(lexer.TokLess) {
		lo.Open = true
		if _, err := p.expect(lexer.TokDotDot); err != nil {
			return nil, err
		}
	} else if !p.accept(lexer.TokDotDot) {
		if lo.Min || lo.Max {
			diag := p.makeError("MIN/MAX requires a range")
			return nil, &diag
		}
		return &ast.ElementSet{
			Kind:  ast.ESSingleValue,
			Value: lo.Value,
			Span:  types.NewSpan(start, p.currentSpan().Start),
		}, nil
	}

	hi := ast.Endpoint{}
	if p.accept(lexer.TokLess) {
		hi.Open = true
	}
	hiEnd, err := p.parseEndpoint()
	if err != nil {
		return nil, err
	}
	hi.Value, hi.Min, hi.Max = hiEnd.Value, hiEnd.Min, hiEnd.Max

	return &ast.ElementSet{
		Kind: ast.ESValueRange,
		Lo:   lo,
		Hi:   hi,
		Span: types.NewSpan(start, p.currentSpan().Start),
	}, nil
}

func (p *Parser) parseEndpoint() (ast.Endpoint, *types.SpanDiagnostic) {
	if p.accept(lexer.TokKwMin) {
		return ast.Endpoint{Min: true}, nil
	}
	if p.accept(lexer.TokKwMax) {
		return ast.Endpoint{Max: true}, nil
	}
	val, err := p.parseValue()
	if err != nil {
		return ast.Endpoint{}, err
	}
	return ast.Endpoint{Value: val}, nil
}

// parseWithComponents parses "WITH COMPONENTS { ... }" and the OF-element
// form "WITH COMPONENT (constraint)".
func (p *Parser) parseWithComponents(start types.ByteOffset) (*ast.ElementSet, *types.SpanDiagnostic) {
	p.advance() // WITH

	if p.accept(lexer.TokKwComponent) {
		inner, err := p.parseConstraintParens()
		if err != nil {
			return nil, err
		}
		return &ast.ElementSet{
			Kind:       ast.ESWithComponents,
			Components: []ast.ComponentConstraint{{Constraint: inner}},
			Span:       types.NewSpan(start, p.currentSpan().Start),
		}, nil
	}

	if _, err := p.expect(lexer.TokKwComponents); err != nil {
		return nil, err
	}
	if _, err := p.expect(lexer.TokLBrace); err != nil {
		return nil, err
	}

	elem := &ast.ElementSet{Kind: ast.ESWithComponents}
	if p.accept(lexer.TokEllipsis) {
		elem.Partial = true
		if !p.accept(lexer.TokComma) {
			if _, err := p.expect(lexer.TokRBrace); err != nil {
				return nil, err
			}
			elem.Span = types.NewSpan(start, p.currentSpan().Start)
			return elem, nil
		}
	}

	for {
		nameTok, err := p.expect(lexer.TokLowerIdent)
		if err != nil {
			return nil, err
		}
		cc := ast.ComponentConstraint{Name: p.makeIdent(nameTok)}

		if p.check(lexer.TokLParen) {
			inner, err := p.parseConstraintParens()
			if err != nil {
				return nil, err
			}
			cc.Constraint = inner
		}
		switch p.peek().Kind {
		case lexer.TokKwPresent:
			p.advance()
			cc.Presence = ast.PresencePresent
		case lexer.TokKwAbsent:
			p.advance()
			cc.Presence = ast.PresenceAbsent
		case lexer.TokKwOptional:
			p.advance()
			cc.Presence = ast.PresenceOptional
		}

		elem.Components = append(elem.Components, cc)
		if !p.accept(lexer.TokComma) {
			break
		}
	}
	if _, err := p.expect(lexer.TokRBrace); err != nil {
		return nil, err
	}
	elem.Span = types.NewSpan(start, p.currentSpan().Start)
	return elem, nil
}
