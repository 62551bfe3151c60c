// Package ber implements the Basic, Canonical, and Distinguished Encoding
// Rules of X.690 over the compiled type model.
//
// Encoding always produces definite, minimal lengths except in CER mode,
// where constructed values use the indefinite form and long strings are
// fragmented. Decoding accepts indefinite lengths in BER and CER modes and
// rejects them in DER mode.
package ber

import (
	"bytes"
	"math"
	"math/big"
	"sort"
	"unicode/utf16"

	"github.com/golangasn1/goasn1/asn1"
)

// Mode selects the encoding-rule variant.
type Mode int

const (
	ModeBER Mode = iota
	ModeCER
	ModeDER
)

// String returns the conventional name of the mode.
func (m Mode) String() string {
	switch m {
	case ModeCER:
		return "CER"
	case ModeDER:
		return "DER"
	default:
		return "BER"
	}
}

// cerFragmentSize is the string fragmentation threshold of CER (X.690
// §9.2).
const cerFragmentSize = 1000

// Encode encodes a value of the identified type.
func Encode(s *asn1.Schema, id asn1.TypeID, v any, mode Mode) ([]byte, error) {
	e := &encoder{schema: s, mode: mode}
	out, err := e.encodeType(id, v, asn1.Path{s.Type(id).Name})
	if err != nil {
		return nil, err
	}
	return out, nil
}

type encoder struct {
	schema *asn1.Schema
	mode   Mode
}

// encodeType produces the complete TLV chain of a value: the body with
// its effective tag, wrapped once per explicit tag.
func (e *encoder) encodeType(id asn1.TypeID, v any, path asn1.Path) ([]byte, error) {
	node := e.schema.Type(id)

	// CHOICE without an implicit replacement tag encodes as the chosen
	// alternative; explicit tags on the CHOICE still wrap it.
	if node.Kind == asn1.KindChoice {
		return e.encodeChoice(node, v, path)
	}
	// ANY carries a ready-made encoding.
	if node.Kind == asn1.KindAny {
		raw, ok := v.([]byte)
		if !ok {
			return nil, &asn1.EncodeError{Kind: asn1.EncodeBadShape, Path: path,
				Message: "ANY expects a pre-encoded []byte"}
		}
		return e.wrapTags(node, raw), nil
	}

	content, constructed, err := e.encodeContent(node, v, path)
	if err != nil {
		return nil, err
	}

	// Only the innermost tag can be a replacement (implicit); every tag
	// above it wraps.
	tags := node.Tags
	var out []byte
	if len(tags) == 0 {
		t := node.EffectiveTag()
		out = e.wrapTLV(t.Class, t.Number, constructed, content)
	} else {
		last := tags[len(tags)-1]
		if last.Explicit {
			u := asn1.UniversalTag(node.Kind, node.Variant)
			out = e.wrapTLV(asn1.ClassUniversal, u, constructed, content)
			out = e.wrapTLV(last.Class, last.Number, true, out)
		} else {
			out = e.wrapTLV(last.Class, last.Number, constructed, content)
		}
		for i := len(tags) - 2; i >= 0; i-- {
			out = e.wrapTLV(tags[i].Class, tags[i].Number, true, out)
		}
	}
	return out, nil
}

// wrapTags wraps already-encoded bytes in the node's explicit tags only
// (used by ANY and CHOICE).
func (e *encoder) wrapTags(node *asn1.Type, encoded []byte) []byte {
	for i := len(node.Tags) - 1; i >= 0; i-- {
		t := node.Tags[i]
		encoded = e.wrapTLV(t.Class, t.Number, true, encoded)
	}
	return encoded
}

// wrapTLV assembles identifier, length, and contents. CER uses the
// indefinite form for constructed values.
func (e *encoder) wrapTLV(class asn1.Class, number int, constructed bool, content []byte) []byte {
	var out bytes.Buffer
	writeIdentifier(&out, class, number, constructed)
	if e.mode == ModeCER && constructed {
		out.WriteByte(0x80)
		out.Write(content)
		out.WriteByte(0x00)
		out.WriteByte(0x00)
		return out.Bytes()
	}
	writeLength(&out, len(content))
	out.Write(content)
	return out.Bytes()
}

func writeIdentifier(out *bytes.Buffer, class asn1.Class, number int, constructed bool) {
	id := classBits(class) << 6
	if constructed {
		id |= 0x20
	}
	if number < 31 {
		out.WriteByte(id | byte(number))
		return
	}
	out.WriteByte(id | 0x1F)
	writeBase128(out, uint64(number))
}

func classBits(class asn1.Class) byte {
	switch class {
	case asn1.ClassUniversal:
		return 0
	case asn1.ClassApplication:
		return 1
	case asn1.ClassContext:
		return 2
	default:
		return 3
	}
}

func writeBase128(out *bytes.Buffer, n uint64) {
	if n == 0 {
		out.WriteByte(0)
		return
	}
	var tmp [10]byte
	i := len(tmp)
	last := true
	for n > 0 {
		i--
		b := byte(n & 0x7F)
		if !last {
			b |= 0x80
		}
		tmp[i] = b
		last = false
		n >>= 7
	}
	out.Write(tmp[i:])
}

func writeLength(out *bytes.Buffer, n int) {
	if n < 128 {
		out.WriteByte(byte(n))
		return
	}
	var tmp [8]byte
	i := len(tmp)
	for n > 0 {
		i--
		tmp[i] = byte(n)
		n >>= 8
	}
	out.WriteByte(0x80 | byte(len(tmp)-i))
	out.Write(tmp[i:])
}

// encodeContent produces the contents octets of the node's own kind,
// reporting whether the TLV is constructed.
func (e *encoder) encodeContent(node *asn1.Type, v any, path asn1.Path) ([]byte, bool, error) {
	switch node.Kind {
	case asn1.KindBoolean:
		b, ok := v.(bool)
		if !ok {
			return nil, false, e.badShape(path, "BOOLEAN expects bool")
		}
		if b {
			return []byte{0xFF}, false, nil
		}
		return []byte{0x00}, false, nil

	case asn1.KindInteger:
		n, ok := asn1.ToBigInt(v)
		if !ok {
			return nil, false, e.badShape(path, "INTEGER expects an integer")
		}
		if err := checkValueConstraint(node, n, path); err != nil {
			return nil, false, err
		}
		return encodeBigInt(n), false, nil

	case asn1.KindEnumerated:
		n, err := enumNumber(node, v, path)
		if err != nil {
			return nil, false, err
		}
		return encodeBigInt(big.NewInt(n)), false, nil

	case asn1.KindReal:
		f, ok := toFloat(v)
		if !ok {
			return nil, false, e.badShape(path, "REAL expects float64")
		}
		return encodeReal(f), false, nil

	case asn1.KindNull:
		if v != nil {
			return nil, false, e.badShape(path, "NULL expects nil")
		}
		return nil, false, nil

	case asn1.KindBitString:
		bs, err := toBitString(v)
		if err != nil {
			return nil, false, e.badShape(path, err.Error())
		}
		if err := checkSizeConstraint(node, bs.BitLength, path); err != nil {
			return nil, false, err
		}
		return encodeBitString(bs), false, nil

	case asn1.KindOctetString, asn1.KindAny:
		b, ok := v.([]byte)
		if !ok {
			return nil, false, e.badShape(path, "OCTET STRING expects []byte")
		}
		if err := checkSizeConstraint(node, len(b), path); err != nil {
			return nil, false, err
		}
		content, fragmented := e.maybeFragment(asn1.TagOctetString, b)
		return content, fragmented, nil

	case asn1.KindObjectIdentifier:
		oid, ok := v.(asn1.OID)
		if !ok {
			return nil, false, e.badShape(path, "OBJECT IDENTIFIER expects asn1.OID")
		}
		return encodeOID(oid, path)

	case asn1.KindRelativeOID:
		oid, ok := v.(asn1.OID)
		if !ok {
			return nil, false, e.badShape(path, "RELATIVE-OID expects asn1.OID")
		}
		var out bytes.Buffer
		for _, arc := range oid {
			writeBase128(&out, arc)
		}
		return out.Bytes(), false, nil

	case asn1.KindCharacterString, asn1.KindUTCTime, asn1.KindGeneralizedTime,
		asn1.KindDate, asn1.KindTimeOfDay, asn1.KindDateTime,
		asn1.KindObjectDescriptor:
		str, ok := v.(string)
		if !ok {
			return nil, false, e.badShape(path, "character string expects string")
		}
		if err := checkStringConstraint(node, str, path); err != nil {
			return nil, false, err
		}
		content, fragmented := e.maybeFragment(
			asn1.UniversalTag(node.Kind, node.Variant),
			encodeCharacters(node.Variant, str))
		return content, fragmented, nil

	case asn1.KindSequence, asn1.KindSet:
		return e.encodeStructured(node, v, path)

	case asn1.KindSequenceOf, asn1.KindSetOf:
		return e.encodeOf(node, v, path)

	case asn1.KindExternal, asn1.KindEmbeddedPDV:
		return nil, false, &asn1.EncodeError{Kind: asn1.EncodeUnsupported, Path: path,
			Message: node.Kind.String() + " is not encodable without an associated presentation context"}
	}

	return nil, false, &asn1.EncodeError{Kind: asn1.EncodeUnsupported, Path: path,
		Message: "unsupported kind " + node.Kind.String()}
}

func (e *encoder) badShape(path asn1.Path, msg string) error {
	return &asn1.EncodeError{Kind: asn1.EncodeBadShape, Path: path, Message: msg}
}

// maybeFragment splits a long string into primitive segments in CER mode
// (X.690 §9.2); the result then encodes as a constructed value.
func (e *encoder) maybeFragment(tag int, b []byte) ([]byte, bool) {
	if e.mode != ModeCER || len(b) <= cerFragmentSize {
		return b, false
	}
	var out bytes.Buffer
	for off := 0; off < len(b); off += cerFragmentSize {
		end := off + cerFragmentSize
		if end > len(b) {
			end = len(b)
		}
		writeIdentifier(&out, asn1.ClassUniversal, tag, false)
		writeLength(&out, end-off)
		out.Write(b[off:end])
	}
	return out.Bytes(), true
}

// encodeStructured encodes SEQUENCE and SET member lists; SET members are
// sorted by tag in DER/CER.
func (e *encoder) encodeStructured(node *asn1.Type, v any, path asn1.Path) ([]byte, bool, error) {
	fields, ok := v.(map[string]any)
	if !ok {
		return nil, false, e.badShape(path, node.Kind.String()+" expects map[string]any")
	}
	for name := range fields {
		if _, ok := node.MemberByName(name); !ok {
			return nil, false, &asn1.EncodeError{Kind: asn1.EncodeUnknownMember,
				Path: path, Message: "unknown member " + name}
		}
	}

	type part struct {
		encoded []byte
		tag     asn1.Tag
	}
	var members []part
	for i := range node.Members {
		m := &node.Members[i]
		mv, present := fields[m.Name]
		if !present {
			if m.Optional || m.Default != nil {
				continue
			}
			return nil, false, &asn1.EncodeError{Kind: asn1.EncodeMissingMember,
				Path: path, Message: "missing member " + m.Name}
		}
		// Members equal to their default are omitted (required by DER,
		// harmless in BER).
		if m.Default != nil && asn1.ValueEqual(mv, m.Default) {
			continue
		}
		encoded, err := e.encodeType(m.Type, mv, path.Child(m.Name))
		if err != nil {
			return nil, false, err
		}
		members = append(members, part{encoded: encoded, tag: e.schema.Type(m.Type).EffectiveTag()})
	}

	if node.Kind == asn1.KindSet && e.mode != ModeBER {
		sort.SliceStable(members, func(i, j int) bool {
			a, b := members[i].tag, members[j].tag
			if a.Class != b.Class {
				return canonicalClassOrder(a.Class) < canonicalClassOrder(b.Class)
			}
			return a.Number < b.Number
		})
	}

	var out bytes.Buffer
	for _, m := range members {
		out.Write(m.encoded)
	}
	return out.Bytes(), true, nil
}

// canonicalClassOrder gives the DER sort order for SET member tags:
// universal, application, context, private.
func canonicalClassOrder(class asn1.Class) int {
	switch class {
	case asn1.ClassUniversal:
		return 0
	case asn1.ClassApplication:
		return 1
	case asn1.ClassContext:
		return 2
	default:
		return 3
	}
}

func (e *encoder) encodeOf(node *asn1.Type, v any, path asn1.Path) ([]byte, bool, error) {
	elements, ok := v.([]any)
	if !ok {
		return nil, false, e.badShape(path, node.Kind.String()+" expects []any")
	}
	if err := checkSizeConstraint(node, len(elements), path); err != nil {
		return nil, false, err
	}

	encoded := make([][]byte, len(elements))
	for i, el := range elements {
		b, err := e.encodeType(node.Element, el, path.Index(i))
		if err != nil {
			return nil, false, err
		}
		encoded[i] = b
	}

	// SET OF elements sort by their encodings in DER/CER.
	if node.Kind == asn1.KindSetOf && e.mode != ModeBER {
		sort.Slice(encoded, func(i, j int) bool {
			return bytes.Compare(encoded[i], encoded[j]) < 0
		})
	}

	var out bytes.Buffer
	for _, b := range encoded {
		out.Write(b)
	}
	return out.Bytes(), true, nil
}

func (e *encoder) encodeChoice(node *asn1.Type, v any, path asn1.Path) ([]byte, error) {
	choice, ok := v.(asn1.Choice)
	if !ok {
		return nil, e.badShape(path, "CHOICE expects asn1.Choice")
	}
	m, found := node.MemberByName(choice.Alt)
	if !found {
		return nil, &asn1.EncodeError{Kind: asn1.EncodeUnknownAlternative,
			Path: path, Message: "unknown alternative " + choice.Alt}
	}
	encoded, err := e.encodeType(m.Type, choice.Value, path.Child(choice.Alt))
	if err != nil {
		return nil, err
	}
	return e.wrapTags(node, encoded), nil
}

// === shared scalar encoders ===

// encodeBigInt emits a minimal two's-complement big-endian body.
func encodeBigInt(n *big.Int) []byte {
	if n.Sign() == 0 {
		return []byte{0x00}
	}
	if n.Sign() > 0 {
		b := n.Bytes()
		if b[0]&0x80 != 0 {
			return append([]byte{0x00}, b...)
		}
		return b
	}
	// Negative: two's complement of |n| over the minimal width.
	abs := new(big.Int).Neg(n)
	bits := abs.BitLen()
	width := (bits + 8) / 8 // at least one sign bit
	mod := new(big.Int).Lsh(big.NewInt(1), uint(width*8))
	tc := new(big.Int).Sub(mod, abs)
	b := tc.Bytes()
	for len(b) < width {
		b = append([]byte{0x00}, b...)
	}
	// Shrink a redundant leading 0xFF.
	for len(b) > 1 && b[0] == 0xFF && b[1]&0x80 != 0 {
		b = b[1:]
	}
	return b
}

func encodeBitString(bs asn1.BitString) []byte {
	unused := 0
	nbytes := (bs.BitLength + 7) / 8
	if bs.BitLength%8 != 0 {
		unused = 8 - bs.BitLength%8
	}
	out := make([]byte, 1+nbytes)
	out[0] = byte(unused)
	copy(out[1:], bs.Bytes[:nbytes])
	if nbytes > 0 && unused > 0 {
		// Trailing unused bits are cleared (DER requirement).
		out[nbytes] &= 0xFF << unused
	}
	return out
}

func encodeOID(oid asn1.OID, path asn1.Path) ([]byte, bool, error) {
	if len(oid) < 2 {
		return nil, false, &asn1.EncodeError{Kind: asn1.EncodeBadShape, Path: path,
			Message: "OBJECT IDENTIFIER needs at least two arcs"}
	}
	if oid[0] > 2 || (oid[0] < 2 && oid[1] > 39) {
		return nil, false, &asn1.EncodeError{Kind: asn1.EncodeValueOutOfRange, Path: path,
			Message: "invalid first or second OID arc"}
	}
	var out bytes.Buffer
	writeBase128(&out, oid[0]*40+oid[1])
	for _, arc := range oid[2:] {
		writeBase128(&out, arc)
	}
	return out.Bytes(), false, nil
}

// encodeReal emits the X.690 binary (base-2) real encoding, or a special
// value octet.
func encodeReal(f float64) []byte {
	switch {
	case f == 0 && !math.Signbit(f):
		return nil
	case f == 0 && math.Signbit(f):
		return []byte{0x43}
	case math.IsInf(f, 1):
		return []byte{0x40}
	case math.IsInf(f, -1):
		return []byte{0x41}
	case math.IsNaN(f):
		return []byte{0x42}
	}

	sign := byte(0)
	if f < 0 {
		sign = 0x40
		f = -f
	}

	// Decompose into mantissa * 2^exponent with an odd mantissa.
	frac, exp := math.Frexp(f)
	mantissa := uint64(frac * (1 << 53))
	exp -= 53
	for mantissa&1 == 0 {
		mantissa >>= 1
		exp++
	}

	expBytes := encodeBigInt(big.NewInt(int64(exp)))
	var mantBytes []byte
	for m := mantissa; m > 0; m >>= 8 {
		mantBytes = append([]byte{byte(m)}, mantBytes...)
	}

	var out bytes.Buffer
	header := byte(0x80) | sign
	switch len(expBytes) {
	case 1:
		// EE = 00
	case 2:
		header |= 0x01
	case 3:
		header |= 0x02
	default:
		header |= 0x03
		out.WriteByte(header)
		out.WriteByte(byte(len(expBytes)))
		out.Write(expBytes)
		out.Write(mantBytes)
		return out.Bytes()
	}
	out.WriteByte(header)
	out.Write(expBytes)
	out.Write(mantBytes)
	return out.Bytes()
}

// encodeCharacters converts a string to its wire bytes for the variant.
func encodeCharacters(variant, s string) []byte {
	switch variant {
	case "BMPString":
		units := utf16.Encode([]rune(s))
		out := make([]byte, len(units)*2)
		for i, u := range units {
			out[i*2] = byte(u >> 8)
			out[i*2+1] = byte(u)
		}
		return out
	case "UniversalString":
		runes := []rune(s)
		out := make([]byte, len(runes)*4)
		for i, r := range runes {
			out[i*4] = byte(r >> 24)
			out[i*4+1] = byte(r >> 16)
			out[i*4+2] = byte(r >> 8)
			out[i*4+3] = byte(r)
		}
		return out
	default:
		return []byte(s)
	}
}

// === shared value helpers ===

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	}
	return 0, false
}

func toBitString(v any) (asn1.BitString, error) {
	switch x := v.(type) {
	case asn1.BitString:
		return x, nil
	case []byte:
		return asn1.BitString{Bytes: x, BitLength: len(x) * 8}, nil
	}
	return asn1.BitString{}, errBadBitString
}

var errBadBitString = &asn1.EncodeError{Kind: asn1.EncodeBadShape,
	Message: "BIT STRING expects asn1.BitString or []byte"}

// enumNumber maps an enum value (label or integer) to its number.
func enumNumber(node *asn1.Type, v any, path asn1.Path) (int64, error) {
	switch x := v.(type) {
	case string:
		if n, ok := node.NamedValue(x); ok {
			return n, nil
		}
		return 0, &asn1.EncodeError{Kind: asn1.EncodeValueOutOfRange, Path: path,
			Message: "unknown enumeration label " + x}
	default:
		n, ok := asn1.ToBigInt(v)
		if !ok || !n.IsInt64() {
			return 0, &asn1.EncodeError{Kind: asn1.EncodeBadShape, Path: path,
				Message: "ENUMERATED expects a label or integer"}
		}
		return n.Int64(), nil
	}
}

// === constraint checks ===

func checkValueConstraint(node *asn1.Type, n *big.Int, path asn1.Path) error {
	c := node.Constraint
	if c == nil || c.Values == nil {
		return nil
	}
	if c.Values.Contains(n) {
		return nil
	}
	if c.Extensible {
		return nil
	}
	return &asn1.ConstraintViolation{
		Path:  path,
		Value: n.String(),
		Root:  rangeSetString(c.Values),
	}
}

func checkSizeConstraint(node *asn1.Type, n int, path asn1.Path) error {
	c := node.Constraint
	if c == nil || c.Size == nil {
		return nil
	}
	if c.AllowsSize(n) || c.Extensible {
		return nil
	}
	return &asn1.ConstraintViolation{
		Path:  path,
		Value: big.NewInt(int64(n)).String(),
		Root:  "SIZE " + rangeSetString(c.Size),
	}
}

func checkStringConstraint(node *asn1.Type, s string, path asn1.Path) error {
	c := node.Constraint
	if c == nil {
		return nil
	}
	if err := checkSizeConstraint(node, len([]rune(s)), path); err != nil {
		return err
	}
	if !c.AllowsString(s) && !c.Extensible {
		return &asn1.ConstraintViolation{
			Path:  path,
			Value: asn1.ValueString(s),
			Root:  "FROM (...)",
		}
	}
	return nil
}

func rangeSetString(s *asn1.RangeSet) string {
	var out bytes.Buffer
	out.WriteByte('[')
	for i, r := range s.Ranges {
		if i > 0 {
			out.WriteByte('|')
		}
		if r.Lo.Unbounded {
			out.WriteString("MIN")
		} else {
			out.WriteString(r.Lo.Value.String())
		}
		out.WriteByte(',')
		if r.Hi.Unbounded {
			out.WriteString("MAX")
		} else {
			out.WriteString(r.Hi.Value.String())
		}
	}
	out.WriteByte(']')
	return out.String()
}
