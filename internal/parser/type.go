package parser

import (
	"fmt"

	"github.com/golangasn1/goasn1/internal/ast"
	"github.com/golangasn1/goasn1/internal/lexer"
	"github.com/golangasn1/goasn1/internal/types"
)

// characterStringNames maps the restricted character string type references
// of X.680 §40 to themselves. They are not reserved words; the parser
// recognizes them by name.
var characterStringNames = map[string]bool{
	"UTF8String":      true,
	"IA5String":       true,
	"PrintableString": true,
	"NumericString":   true,
	"VisibleString":   true,
	"ISO646String":    true,
	"GeneralString":   true,
	"UniversalString": true,
	"BMPString":       true,
	"TeletexString":   true,
	"T61String":       true,
	"GraphicString":   true,
	"VideotexString":  true,
}

// builtinNamedTypes maps well-known uppercase type references that are not
// reserved words to their kinds.
var builtinNamedTypes = map[string]ast.TypeKind{
	"UTCTime":          ast.KindUTCTime,
	"GeneralizedTime":  ast.KindGeneralizedTime,
	"DATE":             ast.KindDate,
	"TIME-OF-DAY":      ast.KindTimeOfDay,
	"DATE-TIME":        ast.KindDateTime,
	"ObjectDescriptor": ast.KindObjectDescriptor,
}

// parseType parses a complete type: optional tag prefixes, the base type,
// and any trailing subtype constraints.
func (p *Parser) parseType() (*ast.Type, *types.SpanDiagnostic) {
	start := p.currentSpan().Start

	if p.check(lexer.TokLBracket) {
		tag, err := p.parseTag()
		if err != nil {
			return nil, err
		}
		inner, err := p.parseType()
		if err != nil {
			return nil, err
		}
		return &ast.Type{
			Kind:  ast.KindTagged,
			Tag:   tag,
			Inner: inner,
			Span:  types.NewSpan(start, p.currentSpan().Start),
		}, nil
	}

	typ, err := p.parseUntaggedType()
	if err != nil {
		return nil, err
	}

	for p.check(lexer.TokLParen) {
		constraint, err := p.parseConstraintParens()
		if err != nil {
			return nil, err
		}
		typ = &ast.Type{
			Kind:       ast.KindConstrained,
			Inner:      typ,
			Constraint: constraint,
			Span:       types.NewSpan(start, p.currentSpan().Start),
		}
	}
	return typ, nil
}

// parseTag parses "[class number]" followed by an optional EXPLICIT or
// IMPLICIT keyword.
func (p *Parser) parseTag() (*ast.Tag, *types.SpanDiagnostic) {
	start := p.currentSpan().Start
	p.advance() // [

	tag := &ast.Tag{Class: ast.TagClassContext}
	switch p.peek().Kind {
	case lexer.TokKwUniversal:
		p.advance()
		tag.Class = ast.TagClassUniversal
	case lexer.TokKwApplication:
		p.advance()
		tag.Class = ast.TagClassApplication
	case lexer.TokKwPrivate:
		p.advance()
		tag.Class = ast.TagClassPrivate
	}

	number, err := p.parseValue()
	if err != nil {
		return nil, err
	}
	tag.Number = number

	if _, err := p.expect(lexer.TokRBracket); err != nil {
		return nil, err
	}

	switch p.peek().Kind {
	case lexer.TokKwExplicit:
		p.advance()
		tag.Kind = ast.TagKindExplicit
	case lexer.TokKwImplicit:
		p.advance()
		tag.Kind = ast.TagKindImplicit
	}

	tag.Span = types.NewSpan(start, p.currentSpan().Start)
	return tag, nil
}

func (p *Parser) parseUntaggedType() (*ast.Type, *types.SpanDiagnostic) {
	start := p.currentSpan().Start
	tok := p.peek()

	mk := func(kind ast.TypeKind) *ast.Type {
		return &ast.Type{Kind: kind, Span: types.NewSpan(start, p.currentSpan().Start)}
	}

	switch tok.Kind {
	case lexer.TokKwBoolean:
		p.advance()
		return mk(ast.KindBoolean), nil

	case lexer.TokKwNull:
		p.advance()
		return mk(ast.KindNull), nil

	case lexer.TokKwReal:
		p.advance()
		return mk(ast.KindReal), nil

	case lexer.TokKwExternal:
		p.advance()
		return mk(ast.KindExternal), nil

	case lexer.TokKwRelativeOID:
		p.advance()
		return mk(ast.KindRelativeOID), nil

	case lexer.TokKwEmbedded:
		p.advance()
		if _, err := p.expect(lexer.TokKwPdv); err != nil {
			return nil, err
		}
		return mk(ast.KindEmbeddedPDV), nil

	case lexer.TokKwAny:
		p.advance()
		typ := mk(ast.KindAny)
		if p.accept(lexer.TokKwDefined) {
			if _, err := p.expect(lexer.TokKwBy); err != nil {
				return nil, err
			}
			nameTok, err := p.expect(lexer.TokLowerIdent)
			if err != nil {
				return nil, err
			}
			ident := p.makeIdent(nameTok)
			typ.DefinedBy = &ident
		}
		typ.Span.End = p.currentSpan().Start
		return typ, nil

	case lexer.TokKwObject:
		p.advance()
		if _, err := p.expect(lexer.TokKwIdentifier); err != nil {
			return nil, err
		}
		return mk(ast.KindObjectIdentifier), nil

	case lexer.TokKwOctet:
		p.advance()
		if _, err := p.expect(lexer.TokKwString); err != nil {
			return nil, err
		}
		return mk(ast.KindOctetString), nil

	case lexer.TokKwBit:
		p.advance()
		if _, err := p.expect(lexer.TokKwString); err != nil {
			return nil, err
		}
		typ := mk(ast.KindBitString)
		if p.check(lexer.TokLBrace) {
			named, err := p.parseNamedNumberList()
			if err != nil {
				return nil, err
			}
			typ.NamedNumbers = named
		}
		typ.Span.End = p.currentSpan().Start
		return typ, nil

	case lexer.TokKwInteger:
		p.advance()
		typ := mk(ast.KindInteger)
		if p.check(lexer.TokLBrace) {
			named, err := p.parseNamedNumberList()
			if err != nil {
				return nil, err
			}
			typ.NamedNumbers = named
		}
		typ.Span.End = p.currentSpan().Start
		return typ, nil

	case lexer.TokKwEnumerated:
		p.advance()
		return p.parseEnumeratedBody(start)

	case lexer.TokKwSequence:
		p.advance()
		return p.parseSequenceOrSet(start, ast.KindSequence, ast.KindSequenceOf)

	case lexer.TokKwSet:
		p.advance()
		return p.parseSequenceOrSet(start, ast.KindSet, ast.KindSetOf)

	case lexer.TokKwChoice:
		p.advance()
		return p.parseChoiceBody(start)

	case lexer.TokUpperIdent:
		return p.parseReferencedType(start)

	case lexer.TokLowerIdent:
		// SelectionType: "identifier < Type"
		if p.peekNth(1).Kind == lexer.TokLess {
			selector := p.makeIdent(p.advance())
			p.advance() // <
			inner, err := p.parseType()
			if err != nil {
				return nil, err
			}
			return &ast.Type{
				Kind:     ast.KindSelection,
				Selector: selector,
				Inner:    inner,
				Span:     types.NewSpan(start, p.currentSpan().Start),
			}, nil
		}
	}

	diag := p.makeError(fmt.Sprintf("expected type, found %s", tok.Kind))
	return nil, &diag
}

// parseReferencedType parses "Name", "Module.Name", the well-known string
// and time type names, and parameterized references "Name { actual, ... }".
func (p *Parser) parseReferencedType(start types.ByteOffset) (*ast.Type, *types.SpanDiagnostic) {
	nameTok := p.advance()
	name := p.text(nameTok.Span)

	if characterStringNames[name] {
		return &ast.Type{
			Kind: ast.KindCharacterString,
			Name: name,
			Span: types.NewSpan(start, p.currentSpan().Start),
		}, nil
	}
	if kind, ok := builtinNamedTypes[name]; ok {
		return &ast.Type{
			Kind: kind,
			Span: types.NewSpan(start, p.currentSpan().Start),
		}, nil
	}

	typ := &ast.Type{
		Kind:    ast.KindReference,
		RefName: p.makeIdent(nameTok),
	}

	if p.check(lexer.TokDot) && p.peekNth(1).Kind == lexer.TokUpperIdent {
		p.advance() // .
		module := typ.RefName
		typ.Module = &module
		typ.RefName = p.makeIdent(p.advance())
	}

	// "{" after a type reference is an actual parameter list, except when
	// the reference is the element of "SEQUENCE OF Name { ... }" value
	// syntax, which cannot occur in type position.
	if p.check(lexer.TokLBrace) {
		actuals, err := p.parseActualParameters()
		if err != nil {
			return nil, err
		}
		typ.Actuals = actuals
	}

	typ.Span = types.NewSpan(start, p.currentSpan().Start)
	return typ, nil
}

// parseActualParameters parses "{ TypeOrValue, ... }".
func (p *Parser) parseActualParameters() ([]ast.Param, *types.SpanDiagnostic) {
	p.advance() // {

	var actuals []ast.Param
	for {
		if p.canStartType() {
			typ, err := p.parseType()
			if err != nil {
				return nil, err
			}
			actuals = append(actuals, ast.Param{Type: typ})
		} else {
			val, err := p.parseValue()
			if err != nil {
				return nil, err
			}
			actuals = append(actuals, ast.Param{Value: val})
		}
		if !p.accept(lexer.TokComma) {
			break
		}
	}
	if _, err := p.expect(lexer.TokRBrace); err != nil {
		return nil, err
	}
	return actuals, nil
}

// canStartType reports whether the current token can begin a type but not a
// value. Uppercase references are types; lowercase identifiers and literals
// are values.
func (p *Parser) canStartType() bool {
	switch p.peek().Kind {
	case lexer.TokKwBoolean, lexer.TokKwInteger, lexer.TokKwReal, lexer.TokKwNull,
		lexer.TokKwEnumerated, lexer.TokKwBit, lexer.TokKwOctet, lexer.TokKwObject,
		lexer.TokKwRelativeOID, lexer.TokKwEmbedded, lexer.TokKwExternal,
		lexer.TokKwAny, lexer.TokKwSequence, lexer.TokKwSet, lexer.TokKwChoice,
		lexer.TokLBracket, lexer.TokUpperIdent:
		return true
	}
	return false
}

// parseEnumeratedBody parses "{ items, ..., items }" after ENUMERATED.
func (p *Parser) parseEnumeratedBody(start types.ByteOffset) (*ast.Type, *types.SpanDiagnostic) {
	if _, err := p.expect(lexer.TokLBrace); err != nil {
		return nil, err
	}

	typ := &ast.Type{Kind: ast.KindEnumerated}
	inExt := false
	for !p.check(lexer.TokRBrace) && !p.isEOF() {
		if p.accept(lexer.TokEllipsis) {
			typ.ExtMarker = true
			inExt = true
			p.skipExceptionSpec()
			if !p.accept(lexer.TokComma) {
				break
			}
			continue
		}

		itemTok, err := p.expect(lexer.TokLowerIdent)
		if err != nil {
			return nil, err
		}
		item := ast.NamedNumber{Name: p.makeIdent(itemTok)}
		if p.check(lexer.TokLParen) {
			p.advance()
			val, err := p.parseValue()
			if err != nil {
				return nil, err
			}
			item.Value = val
			if _, err := p.expect(lexer.TokRParen); err != nil {
				return nil, err
			}
		}
		if inExt {
			typ.ExtNamedValues = append(typ.ExtNamedValues, item)
		} else {
			typ.NamedNumbers = append(typ.NamedNumbers, item)
		}
		if !p.accept(lexer.TokComma) {
			break
		}
	}
	if _, err := p.expect(lexer.TokRBrace); err != nil {
		return nil, err
	}
	typ.Span = types.NewSpan(start, p.currentSpan().Start)
	return typ, nil
}

// parseNamedNumberList parses "{ name(value), ... }" for INTEGER named
// numbers and BIT STRING named bits.
func (p *Parser) parseNamedNumberList() ([]ast.NamedNumber, *types.SpanDiagnostic) {
	p.advance() // {

	var named []ast.NamedNumber
	for !p.check(lexer.TokRBrace) && !p.isEOF() {
		nameTok, err := p.expect(lexer.TokLowerIdent)
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(lexer.TokLParen); err != nil {
			return nil, err
		}
		val, err := p.parseValue()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(lexer.TokRParen); err != nil {
			return nil, err
		}
		named = append(named, ast.NamedNumber{Name: p.makeIdent(nameTok), Value: val})
		if !p.accept(lexer.TokComma) {
			break
		}
	}
	if _, err := p.expect(lexer.TokRBrace); err != nil {
		return nil, err
	}
	return named, nil
}

// parseSequenceOrSet handles the shared grammar after SEQUENCE or SET:
// either a component list or an OF type, with an optional size constraint
// before OF.
func (p *Parser) parseSequenceOrSet(start types.ByteOffset, structured, of ast.TypeKind) (*ast.Type, *types.SpanDiagnostic) {
	// SEQUENCE SIZE (...) OF T and SEQUENCE (...) OF T
	if p.check(lexer.TokKwSize) || p.check(lexer.TokLParen) {
		constraint, err := p.parseOfConstraint()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(lexer.TokKwOf); err != nil {
			return nil, err
		}
		return p.parseOfElement(start, of, constraint)
	}

	if p.accept(lexer.TokKwOf) {
		return p.parseOfElement(start, of, nil)
	}

	if _, err := p.expect(lexer.TokLBrace); err != nil {
		return nil, err
	}

	typ := &ast.Type{Kind: structured}
	if err := p.parseComponentList(typ); err != nil {
		return nil, err
	}
	if _, err := p.expect(lexer.TokRBrace); err != nil {
		return nil, err
	}
	typ.Span = types.NewSpan(start, p.currentSpan().Start)
	return typ, nil
}

// parseOfConstraint parses the constraint between SEQUENCE/SET and OF:
// "SIZE (c)" or a parenthesized constraint (which itself is usually a SIZE).
func (p *Parser) parseOfConstraint() (*ast.Constraint, *types.SpanDiagnostic) {
	start := p.currentSpan().Start
	if p.accept(lexer.TokKwSize) {
		inner, err := p.parseConstraintParens()
		if err != nil {
			return nil, err
		}
		return &ast.Constraint{
			Root: &ast.ElementSet{
				Kind:  ast.ESSize,
				Inner: inner,
				Span:  types.NewSpan(start, p.currentSpan().Start),
			},
			Span: types.NewSpan(start, p.currentSpan().Start),
		}, nil
	}
	return p.parseConstraintParens()
}

// parseOfElement parses the element type of SEQUENCE OF / SET OF. A named
// element ("SEQUENCE OF member Type") discards the member name, which only
// affects XER/value notation.
func (p *Parser) parseOfElement(start types.ByteOffset, of ast.TypeKind, constraint *ast.Constraint) (*ast.Type, *types.SpanDiagnostic) {
	if p.check(lexer.TokLowerIdent) {
		next := p.peekNth(1).Kind
		if next != lexer.TokLess {
			p.advance()
		}
	}
	element, err := p.parseType()
	if err != nil {
		return nil, err
	}
	return &ast.Type{
		Kind:         of,
		Element:      element,
		OfConstraint: constraint,
		Span:         types.NewSpan(start, p.currentSpan().Start),
	}, nil
}

// parseComponentList parses the body of SEQUENCE { } or SET { }, handling
// extension markers, extension addition groups, and COMPONENTS OF.
func (p *Parser) parseComponentList(typ *ast.Type) *types.SpanDiagnostic {
	const (
		sectRoot = iota
		sectExtensions
		sectTrailingRoot
	)
	section := sectRoot

	for !p.check(lexer.TokRBrace) && !p.isEOF() {
		if p.accept(lexer.TokEllipsis) {
			p.skipExceptionSpec()
			switch section {
			case sectRoot:
				typ.Extensible = true
				section = sectExtensions
			case sectExtensions:
				section = sectTrailingRoot
			default:
				diag := p.makeError("more than two extension markers")
				return &diag
			}
			if !p.accept(lexer.TokComma) {
				break
			}
			continue
		}

		if p.check(lexer.TokLDoubleBracket) {
			if section != sectExtensions {
				diag := p.makeError("extension addition group outside extension section")
				return &diag
			}
			group, err := p.parseExtensionAdditionGroup()
			if err != nil {
				return err
			}
			typ.ExtensionGroups = append(typ.ExtensionGroups, *group)
			if !p.accept(lexer.TokComma) {
				break
			}
			continue
		}

		comp, err := p.parseComponent()
		if err != nil {
			return err
		}
		switch section {
		case sectRoot:
			typ.Components = append(typ.Components, *comp)
		case sectExtensions:
			// A lone component in the extension section forms its own
			// addition group.
			typ.ExtensionGroups = append(typ.ExtensionGroups, ast.ExtensionAdditionGroup{
				Version:    -1,
				Components: []ast.Component{*comp},
			})
		default:
			typ.TrailingRoot = append(typ.TrailingRoot, *comp)
		}
		if !p.accept(lexer.TokComma) {
			break
		}
	}
	return nil
}

// parseExtensionAdditionGroup parses "[[ version: comp, ... ]]".
func (p *Parser) parseExtensionAdditionGroup() (*ast.ExtensionAdditionGroup, *types.SpanDiagnostic) {
	p.advance() // [[

	group := &ast.ExtensionAdditionGroup{Version: -1}
	if p.check(lexer.TokNumber) && p.peekNth(1).Kind == lexer.TokColon {
		numTok := p.advance()
		p.advance() // :
		n := 0
		for _, c := range p.text(numTok.Span) {
			n = n*10 + int(c-'0')
		}
		group.Version = n
	}

	for !p.check(lexer.TokRDoubleBracket) && !p.isEOF() {
		comp, err := p.parseComponent()
		if err != nil {
			return nil, err
		}
		group.Components = append(group.Components, *comp)
		if !p.accept(lexer.TokComma) {
			break
		}
	}
	if _, err := p.expect(lexer.TokRDoubleBracket); err != nil {
		return nil, err
	}
	return group, nil
}

// parseComponent parses one member: "name Type [OPTIONAL | DEFAULT value]"
// or "COMPONENTS OF Type".
func (p *Parser) parseComponent() (*ast.Component, *types.SpanDiagnostic) {
	start := p.currentSpan().Start

	if p.check(lexer.TokKwComponents) {
		p.advance()
		if _, err := p.expect(lexer.TokKwOf); err != nil {
			return nil, err
		}
		typ, err := p.parseType()
		if err != nil {
			return nil, err
		}
		return &ast.Component{
			ComponentsOf: true,
			Type:         typ,
			Span:         types.NewSpan(start, p.currentSpan().Start),
		}, nil
	}

	nameTok, err := p.expect(lexer.TokLowerIdent)
	if err != nil {
		return nil, err
	}
	typ, err := p.parseType()
	if err != nil {
		return nil, err
	}

	comp := &ast.Component{
		Name: p.makeIdent(nameTok),
		Type: typ,
	}

	switch p.peek().Kind {
	case lexer.TokKwOptional:
		p.advance()
		comp.Optional = true
	case lexer.TokKwDefault:
		p.advance()
		val, err := p.parseValue()
		if err != nil {
			return nil, err
		}
		comp.Default = val
	}

	comp.Span = types.NewSpan(start, p.currentSpan().Start)
	return comp, nil
}

// parseChoiceBody parses "{ alternatives }" after CHOICE.
func (p *Parser) parseChoiceBody(start types.ByteOffset) (*ast.Type, *types.SpanDiagnostic) {
	if _, err := p.expect(lexer.TokLBrace); err != nil {
		return nil, err
	}

	typ := &ast.Type{Kind: ast.KindChoice}
	if err := p.parseComponentList(typ); err != nil {
		return nil, err
	}
	if _, err := p.expect(lexer.TokRBrace); err != nil {
		return nil, err
	}
	typ.Span = types.NewSpan(start, p.currentSpan().Start)
	return typ, nil
}

// skipExceptionSpec skips "! value" after an extension marker.
func (p *Parser) skipExceptionSpec() {
	if p.accept(lexer.TokExclamation) {
		// Exception identification is a value, possibly "Type : value".
		if p.canStartType() {
			if _, err := p.parseType(); err != nil {
				p.recordParseError(*err)
			}
			if _, err := p.expect(lexer.TokColon); err != nil {
				p.recordParseError(*err)
			}
		}
		if _, err := p.parseValue(); err != nil {
			p.recordParseError(*err)
		}
	}
}
