package goasn1

import (
	"errors"
	"log/slog"

	"github.com/golangasn1/goasn1/asn1"
	"github.com/golangasn1/goasn1/internal/codec/ber"
	"github.com/golangasn1/goasn1/internal/codec/gser"
	"github.com/golangasn1/goasn1/internal/codec/jer"
	"github.com/golangasn1/goasn1/internal/codec/oer"
	"github.com/golangasn1/goasn1/internal/codec/per"
	"github.com/golangasn1/goasn1/internal/codec/xer"
	"github.com/golangasn1/goasn1/internal/modtab"
	"github.com/golangasn1/goasn1/internal/parser"
	"github.com/golangasn1/goasn1/internal/resolver"
	"github.com/golangasn1/goasn1/internal/types"
)

func componentLogger(logger *slog.Logger, component string) *slog.Logger {
	if logger == nil {
		return nil
	}
	return logger.With(slog.String("component", component))
}

// Compile parses and resolves the given ASN.1 sources into a Schema bound
// to one codec.
//
// The first syntax or resolution error aborts compilation; with WithLint
// all diagnosable errors are collected and returned joined.
func Compile(sources []Source, opts ...CompileOption) (*Schema, error) {
	if len(sources) == 0 {
		return nil, ErrNoSources
	}

	cfg := compileConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}

	table := modtab.New(componentLogger(cfg.logger, "modtab"))
	var lintErrs []error

	for _, src := range sources {
		p := parser.New(src.Text, componentLogger(cfg.logger, "parser"))
		modules := p.ParseModules()
		for _, m := range modules {
			var syntaxErrs []error
			for _, diag := range m.Diagnostics {
				if diag.Severity != types.SeverityError {
					continue
				}
				line, col := types.LineCol(src.Text, diag.Span.Start)
				syntaxErrs = append(syntaxErrs, &asn1.SyntaxError{
					File:    src.Label,
					Line:    line,
					Column:  col,
					Message: diag.Message,
				})
			}
			if len(syntaxErrs) > 0 {
				if !cfg.lint {
					return nil, syntaxErrs[0]
				}
				lintErrs = append(lintErrs, syntaxErrs...)
				continue
			}
			if err := table.Add(m); err != nil {
				resolveErr := &asn1.ResolveError{
					Kind:    asn1.ResolveDuplicateModule,
					Module:  m.Name.Name,
					Message: err.Error(),
				}
				if !cfg.lint {
					return nil, resolveErr
				}
				lintErrs = append(lintErrs, resolveErr)
			}
		}
	}

	table.DetectCycles()

	model, resolveErrs := resolver.Resolve(table, cfg.lint, componentLogger(cfg.logger, "resolver"))
	for _, err := range resolveErrs {
		lintErrs = append(lintErrs, err)
	}
	if model == nil || len(lintErrs) > 0 && cfg.lint {
		if len(lintErrs) > 0 {
			return nil, errors.Join(lintErrs...)
		}
		if len(resolveErrs) > 0 {
			return nil, resolveErrs[0]
		}
		return nil, errors.New("resolution failed")
	}

	return &Schema{
		model: model,
		codec: cfg.codec,
		jer:   jer.Options{NumericEnums: cfg.numericEnums},
	}, nil
}

// Schema is a compiled type model bound to one codec. It is immutable
// and safe for concurrent use.
type Schema struct {
	model *asn1.Schema
	codec Codec
	jer   jer.Options
}

// Rebind returns a Schema sharing the same compiled model but bound to a
// different codec.
func Rebind(s *Schema, codec Codec) *Schema {
	return &Schema{model: s.model, codec: codec, jer: s.jer}
}

// Model exposes the underlying frozen type model.
func (s *Schema) Model() *asn1.Schema {
	return s.model
}

// Codec returns the codec the schema is bound to.
func (s *Schema) Codec() Codec {
	return s.codec
}

// TypeNames lists the compiled top-level types.
func (s *Schema) TypeNames() []string {
	return s.model.TypeNames()
}

// Modules lists the compiled modules.
func (s *Schema) Modules() []asn1.ModuleInfo {
	return s.model.Modules()
}

// Warnings lists non-fatal compilation warnings (import cycles and the
// like).
func (s *Schema) Warnings() []string {
	return s.model.Warnings()
}

func (s *Schema) lookup(typeName string) (asn1.TypeID, error) {
	id, ok := s.model.Lookup(typeName)
	if !ok {
		return asn1.NoType, &asn1.EncodeError{
			Kind:    asn1.EncodeBadShape,
			Message: "unknown type " + typeName,
		}
	}
	return id, nil
}

// Encode encodes a value of the named type with the bound codec.
func (s *Schema) Encode(typeName string, value any) ([]byte, error) {
	id, err := s.lookup(typeName)
	if err != nil {
		return nil, err
	}
	switch s.codec {
	case BER:
		return ber.Encode(s.model, id, value, ber.ModeBER)
	case CER:
		return ber.Encode(s.model, id, value, ber.ModeCER)
	case DER:
		return ber.Encode(s.model, id, value, ber.ModeDER)
	case OER:
		return oer.Encode(s.model, id, value)
	case PER:
		return per.Encode(s.model, id, value, true)
	case UPER:
		return per.Encode(s.model, id, value, false)
	case JER:
		return jer.Encode(s.model, id, value, s.jer)
	case XER:
		return xer.Encode(s.model, id, value)
	case GSER:
		return gser.Encode(s.model, id, value)
	}
	return nil, &asn1.EncodeError{Kind: asn1.EncodeUnsupported,
		Message: "unknown codec"}
}

// Decode decodes exactly one encoding of the named type; trailing bytes
// are an error.
func (s *Schema) Decode(typeName string, data []byte) (any, error) {
	v, n, err := s.DecodeWithLength(typeName, data)
	if err != nil {
		return nil, err
	}
	if n < len(data) && !trailingWhitespaceOnly(s.codec, data[n:]) {
		return nil, &asn1.DecodeError{
			Kind:    asn1.DecodeTrailingBytes,
			Offset:  n,
			Message: "trailing bytes after a complete encoding",
		}
	}
	return v, nil
}

// DecodeWithLength decodes one encoding and also returns the number of
// bytes consumed.
func (s *Schema) DecodeWithLength(typeName string, data []byte) (any, int, error) {
	id, err := s.lookup(typeName)
	if err != nil {
		return nil, 0, err
	}
	switch s.codec {
	case BER:
		return ber.Decode(s.model, id, data, ber.ModeBER)
	case CER:
		return ber.Decode(s.model, id, data, ber.ModeCER)
	case DER:
		return ber.Decode(s.model, id, data, ber.ModeDER)
	case OER:
		return oer.Decode(s.model, id, data)
	case PER:
		return per.Decode(s.model, id, data, true)
	case UPER:
		return per.Decode(s.model, id, data, false)
	case JER:
		return jer.Decode(s.model, id, data, s.jer)
	case XER:
		return xer.Decode(s.model, id, data)
	case GSER:
		return gser.Decode(s.model, id, data)
	}
	return nil, 0, &asn1.DecodeError{Kind: asn1.DecodeUnsupported,
		Message: "unknown codec"}
}

// Refresh returns the value with missing DEFAULT members filled in, at
// every nesting level. The input is not modified.
func (s *Schema) Refresh(typeName string, value any) (any, error) {
	id, err := s.lookup(typeName)
	if err != nil {
		return nil, err
	}
	return s.refresh(id, value), nil
}

func (s *Schema) refresh(id asn1.TypeID, value any) any {
	node := s.model.Type(id)
	switch node.Kind {
	case asn1.KindSequence, asn1.KindSet:
		fields, ok := value.(map[string]any)
		if !ok {
			return value
		}
		out := make(map[string]any, len(fields))
		for k, v := range fields {
			if m, found := node.MemberByName(k); found {
				out[k] = s.refresh(m.Type, v)
			} else {
				out[k] = v
			}
		}
		for i := range node.Members {
			m := &node.Members[i]
			if _, present := out[m.Name]; !present && m.Default != nil {
				out[m.Name] = m.Default
			}
		}
		return out
	case asn1.KindChoice:
		choice, ok := value.(asn1.Choice)
		if !ok {
			return value
		}
		if m, found := node.MemberByName(choice.Alt); found {
			return asn1.Choice{Alt: choice.Alt, Value: s.refresh(m.Type, choice.Value)}
		}
		return value
	case asn1.KindSequenceOf, asn1.KindSetOf:
		elements, ok := value.([]any)
		if !ok {
			return value
		}
		out := make([]any, len(elements))
		for i, el := range elements {
			out[i] = s.refresh(node.Element, el)
		}
		return out
	}
	return value
}

// trailingWhitespaceOnly tolerates trailing whitespace for the text
// codecs.
func trailingWhitespaceOnly(codec Codec, rest []byte) bool {
	if codec != JER && codec != XER {
		return false
	}
	for _, b := range rest {
		if b != ' ' && b != '\t' && b != '\n' && b != '\r' {
			return false
		}
	}
	return true
}
