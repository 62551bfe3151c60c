// Package goasn1 compiles ASN.1 module definitions (X.680) into a frozen
// type model and encodes and decodes values against it in BER, CER, DER,
// OER, PER, UPER, JER, XER, and GSER.
//
// Example:
//
//	schema, err := goasn1.Compile(
//	    []goasn1.Source{goasn1.StringSource("pdu.asn", pduDefinition)},
//	    goasn1.WithCodec(goasn1.UPER),
//	)
//	data, err := schema.Encode("Question", map[string]any{"id": int64(1)})
package goasn1

import (
	"errors"
	"log/slog"
)

// ErrNoSources is returned when Compile is called with no sources.
var ErrNoSources = errors.New("no ASN.1 sources provided")

// LevelTrace is a custom log level more verbose than Debug.
// Use for per-item iteration logging (tokens, constraint nodes, bit reads).
// Enable with: &slog.HandlerOptions{Level: slog.Level(-8)}
const LevelTrace = slog.Level(-8)

// Codec selects the wire format a Schema is bound to.
type Codec int

const (
	BER Codec = iota
	CER
	DER
	OER
	PER
	UPER
	JER
	XER
	GSER
)

var codecNames = [...]string{"ber", "cer", "der", "oer", "per", "uper", "jer", "xer", "gser"}

// String returns the lowercase conventional name of the codec.
func (c Codec) String() string {
	if int(c) < len(codecNames) {
		return codecNames[c]
	}
	return "unknown"
}

// ParseCodec maps a name like "uper" to its Codec.
func ParseCodec(name string) (Codec, bool) {
	for i, n := range codecNames {
		if n == name {
			return Codec(i), true
		}
	}
	return BER, false
}

// CompileOption configures Compile.
type CompileOption func(*compileConfig)

type compileConfig struct {
	codec        Codec
	numericEnums bool
	lint         bool
	logger       *slog.Logger
}

// WithCodec binds the schema to a wire format. The default is BER.
func WithCodec(codec Codec) CompileOption {
	return func(c *compileConfig) { c.codec = codec }
}

// WithNumericEnums makes JER represent enumeration values as numbers
// instead of labels.
func WithNumericEnums(numeric bool) CompileOption {
	return func(c *compileConfig) { c.numericEnums = numeric }
}

// WithLint makes compilation collect every diagnosable error instead of
// stopping at the first.
func WithLint(lint bool) CompileOption {
	return func(c *compileConfig) { c.lint = lint }
}

// WithLogger sets the logger for debug/trace output.
// If not set, no logging occurs (zero overhead).
func WithLogger(logger *slog.Logger) CompileOption {
	return func(c *compileConfig) { c.logger = logger }
}
