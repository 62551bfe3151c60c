package ber

import (
	"math"
	"math/big"
	"strconv"
	"unicode/utf16"
	"unicode/utf8"

	"github.com/golangasn1/goasn1/asn1"
)

// Decode decodes exactly one encoding of the identified type, returning
// the value and the number of bytes consumed.
func Decode(s *asn1.Schema, id asn1.TypeID, data []byte, mode Mode) (any, int, error) {
	d := &decoder{schema: s, mode: mode}
	v, n, err := d.decodeType(id, data, 0, asn1.Path{s.Type(id).Name})
	if err != nil {
		return nil, 0, err
	}
	return v, n, nil
}

type decoder struct {
	schema *asn1.Schema
	mode   Mode
}

// tlv is one parsed tag-length-value.
type tlv struct {
	class       asn1.Class
	number      int
	constructed bool
	content     []byte
	raw         []byte // the complete encoding including header
	indefinite  bool
}

func (d *decoder) err(kind asn1.DecodeErrorKind, off int, path asn1.Path, msg string) error {
	return &asn1.DecodeError{Kind: kind, Offset: off, Path: path, Message: msg}
}

// readTLV parses one TLV at the start of data. Indefinite lengths are
// resolved by scanning for the matching end-of-contents.
func (d *decoder) readTLV(data []byte, off int, path asn1.Path) (tlv, int, error) {
	if len(data) == 0 {
		return tlv{}, 0, d.err(asn1.DecodeOutOfBuffer, off, path, "empty input")
	}

	var t tlv
	idx := 0
	first := data[idx]
	idx++
	t.class = [4]asn1.Class{asn1.ClassUniversal, asn1.ClassApplication,
		asn1.ClassContext, asn1.ClassPrivate}[first>>6]
	t.constructed = first&0x20 != 0

	if first&0x1F != 0x1F {
		t.number = int(first & 0x1F)
	} else {
		// High-tag-number form.
		n := 0
		for {
			if idx >= len(data) {
				return tlv{}, 0, d.err(asn1.DecodeOutOfBuffer, off+idx, path, "truncated tag")
			}
			b := data[idx]
			idx++
			if n > (math.MaxInt32-int(b&0x7F))/128 {
				return tlv{}, 0, d.err(asn1.DecodeBadValue, off+idx, path, "tag number overflow")
			}
			n = n<<7 | int(b&0x7F)
			if b&0x80 == 0 {
				break
			}
		}
		t.number = n
	}

	if idx >= len(data) {
		return tlv{}, 0, d.err(asn1.DecodeOutOfBuffer, off+idx, path, "missing length")
	}
	lenByte := data[idx]
	idx++

	switch {
	case lenByte < 0x80:
		length := int(lenByte)
		if length > len(data)-idx {
			return tlv{}, 0, d.err(asn1.DecodeOutOfBuffer, off+idx, path,
				"length exceeds input")
		}
		t.content = data[idx : idx+length]
		idx += length

	case lenByte == 0x80:
		if d.mode == ModeDER {
			return tlv{}, 0, d.err(asn1.DecodeIndefiniteInDER, off+idx-1, path,
				"indefinite length in DER")
		}
		if !t.constructed {
			return tlv{}, 0, d.err(asn1.DecodeBadValue, off+idx-1, path,
				"indefinite length on a primitive")
		}
		end, err := d.findEOC(data[idx:], off+idx, path)
		if err != nil {
			return tlv{}, 0, err
		}
		t.content = data[idx : idx+end]
		t.indefinite = true
		idx += end + 2

	default:
		nlen := int(lenByte & 0x7F)
		if nlen > 8 || nlen > len(data)-idx {
			return tlv{}, 0, d.err(asn1.DecodeOutOfBuffer, off+idx, path,
				"truncated long-form length")
		}
		length := 0
		for i := 0; i < nlen; i++ {
			if length > math.MaxInt32/256 {
				return tlv{}, 0, d.err(asn1.DecodeBadValue, off+idx, path, "length overflow")
			}
			length = length<<8 | int(data[idx+i])
		}
		if d.mode == ModeDER && (length < 128 || data[idx] == 0) {
			return tlv{}, 0, d.err(asn1.DecodeNonMinimalLength, off+idx, path,
				"non-minimal long-form length")
		}
		idx += nlen
		if length > len(data)-idx {
			return tlv{}, 0, d.err(asn1.DecodeOutOfBuffer, off+idx, path,
				"length exceeds input")
		}
		t.content = data[idx : idx+length]
		idx += length
	}

	t.raw = data[:idx]
	return t, idx, nil
}

// findEOC returns the length of the content octets before the matching
// end-of-contents marker.
func (d *decoder) findEOC(data []byte, off int, path asn1.Path) (int, error) {
	idx := 0
	for {
		if idx+2 <= len(data) && data[idx] == 0 && data[idx+1] == 0 {
			return idx, nil
		}
		if idx >= len(data) {
			return 0, d.err(asn1.DecodeOutOfBuffer, off+idx, path, "missing end-of-contents")
		}
		_, n, err := d.readTLV(data[idx:], off+idx, path)
		if err != nil {
			return 0, err
		}
		idx += n
	}
}

// expectedTags returns the set of outer tags a type can present. A nil
// result means any tag matches (ANY).
func (d *decoder) expectedTags(id asn1.TypeID) []asn1.Tag {
	node := d.schema.Type(id)
	if len(node.Tags) > 0 {
		return node.Tags[:1]
	}
	switch node.Kind {
	case asn1.KindChoice:
		var tags []asn1.Tag
		for i := range node.Members {
			tags = append(tags, d.expectedTags(node.Members[i].Type)...)
		}
		return tags
	case asn1.KindAny:
		return nil
	}
	return []asn1.Tag{node.EffectiveTag()}
}

func tagMatches(tags []asn1.Tag, t tlv) bool {
	if tags == nil {
		return true
	}
	for _, want := range tags {
		if want.Class == t.class && want.Number == t.number {
			return true
		}
	}
	return false
}

// decodeType decodes one value of the identified type from the front of
// data, returning the bytes consumed.
func (d *decoder) decodeType(id asn1.TypeID, data []byte, off int, path asn1.Path) (any, int, error) {
	node := d.schema.Type(id)

	if node.Kind == asn1.KindChoice && len(node.Tags) == 0 {
		return d.decodeChoice(node, data, off, path)
	}
	if node.Kind == asn1.KindAny && len(node.Tags) == 0 {
		t, n, err := d.readTLV(data, off, path)
		if err != nil {
			return nil, 0, err
		}
		raw := make([]byte, len(t.raw))
		copy(raw, t.raw)
		return raw, n, nil
	}

	tags := node.Tags
	consumed := 0
	cur := data

	// Unwrap explicit layers above the effective tag.
	for i := 0; i < len(tags); i++ {
		last := i == len(tags)-1
		t, n, err := d.readTLV(cur, off, path)
		if err != nil {
			return nil, 0, err
		}
		if t.class != tags[i].Class || t.number != tags[i].Number {
			return nil, 0, d.err(asn1.DecodeUnexpectedTag, off, path,
				"unexpected tag "+tagString(t))
		}
		if last && !tags[i].Explicit {
			v, err := d.decodeBody(node, t, off, path)
			if err != nil {
				return nil, 0, err
			}
			return v, consumed + n, nil
		}
		// Descend into the wrapper; count its header now, its
		// end-of-contents (if indefinite) via trailerLen on return.
		headerLen := n - len(t.content) - trailerLen(t)
		consumed += headerLen
		off += headerLen
		cur = t.content
		if last {
			// Explicit innermost tag: the wrapped TLV carries the
			// universal tag (or the CHOICE/ANY body).
			if node.Kind == asn1.KindChoice {
				v, n2, err := d.decodeChoice(node, cur, off, path)
				if err != nil {
					return nil, 0, err
				}
				return v, consumed + n2 + trailerLen(t), nil
			}
			if node.Kind == asn1.KindAny {
				t2, n2, err := d.readTLV(cur, off, path)
				if err != nil {
					return nil, 0, err
				}
				raw := make([]byte, len(t2.raw))
				copy(raw, t2.raw)
				return raw, consumed + n2 + trailerLen(t), nil
			}
			u, n2, err := d.readTLV(cur, off, path)
			if err != nil {
				return nil, 0, err
			}
			want := asn1.Tag{Class: asn1.ClassUniversal,
				Number: asn1.UniversalTag(node.Kind, node.Variant)}
			if u.class != want.Class || u.number != want.Number {
				return nil, 0, d.err(asn1.DecodeUnexpectedTag, off, path,
					"unexpected inner tag "+tagString(u))
			}
			v, err := d.decodeBody(node, u, off, path)
			if err != nil {
				return nil, 0, err
			}
			return v, consumed + n2 + trailerLen(t), nil
		}
	}

	// No tags: expect the universal tag.
	t, n, err := d.readTLV(cur, off, path)
	if err != nil {
		return nil, 0, err
	}
	want := asn1.Tag{Class: asn1.ClassUniversal,
		Number: asn1.UniversalTag(node.Kind, node.Variant)}
	if t.class != want.Class || t.number != want.Number {
		return nil, 0, d.err(asn1.DecodeUnexpectedTag, off, path,
			"unexpected tag "+tagString(t))
	}
	v, err := d.decodeBody(node, t, off, path)
	if err != nil {
		return nil, 0, err
	}
	return v, consumed + n, nil
}

// trailerLen accounts for the end-of-contents octets of an indefinite
// wrapper when re-adding inner consumption.
func trailerLen(t tlv) int {
	if t.indefinite {
		return 2
	}
	return 0
}

func tagString(t tlv) string {
	class := [4]string{"UNIVERSAL", "APPLICATION", "CONTEXT", "PRIVATE"}[t.class]
	return "[" + class + " " + strconv.Itoa(t.number) + "]"
}

// decodeBody interprets the contents octets of a TLV per the node's kind.
func (d *decoder) decodeBody(node *asn1.Type, t tlv, off int, path asn1.Path) (any, error) {
	switch node.Kind {
	case asn1.KindBoolean:
		if len(t.content) != 1 {
			return nil, d.err(asn1.DecodeBadValue, off, path, "BOOLEAN length must be 1")
		}
		b := t.content[0]
		if d.mode != ModeBER && b != 0x00 && b != 0xFF {
			return nil, d.err(asn1.DecodeBadBoolean, off, path,
				"BOOLEAN must be 00 or FF")
		}
		return b != 0, nil

	case asn1.KindInteger:
		n, err := d.decodeBigInt(t.content, off, path)
		if err != nil {
			return nil, err
		}
		if c := node.Constraint; c != nil && c.Values != nil && !c.Values.Contains(n) && !c.Extensible {
			return nil, &asn1.ConstraintViolation{
				Path:  path,
				Value: n.String(),
				Root:  rangeSetString(c.Values),
			}
		}
		return asn1.NormalizeInt(n), nil

	case asn1.KindEnumerated:
		n, err := d.decodeBigInt(t.content, off, path)
		if err != nil {
			return nil, err
		}
		if !n.IsInt64() {
			return nil, d.err(asn1.DecodeBadValue, off, path, "enumeration value overflow")
		}
		if label, ok := node.LabelFor(n.Int64()); ok {
			return label, nil
		}
		return n.Int64(), nil

	case asn1.KindReal:
		return d.decodeReal(t.content, off, path)

	case asn1.KindNull:
		if len(t.content) != 0 {
			return nil, d.err(asn1.DecodeBadValue, off, path, "NULL must be empty")
		}
		return nil, nil

	case asn1.KindBitString:
		content, err := d.stringContent(t, asn1.TagBitString, off, path)
		if err != nil {
			return nil, err
		}
		if len(content) == 0 {
			return nil, d.err(asn1.DecodeBadValue, off, path, "missing unused-bits octet")
		}
		unused := int(content[0])
		if unused > 7 || (len(content) == 1 && unused != 0) {
			return nil, d.err(asn1.DecodeBadValue, off, path, "invalid unused-bits octet")
		}
		bits := make([]byte, len(content)-1)
		copy(bits, content[1:])
		return asn1.BitString{Bytes: bits, BitLength: len(bits)*8 - unused}, nil

	case asn1.KindOctetString, asn1.KindAny:
		content, err := d.stringContent(t, asn1.TagOctetString, off, path)
		if err != nil {
			return nil, err
		}
		out := make([]byte, len(content))
		copy(out, content)
		return out, nil

	case asn1.KindObjectIdentifier:
		return d.decodeOID(t.content, off, path)

	case asn1.KindRelativeOID:
		var oid asn1.OID
		rest := t.content
		for len(rest) > 0 {
			arc, n, err := d.readBase128(rest, off, path)
			if err != nil {
				return nil, err
			}
			oid = append(oid, arc)
			rest = rest[n:]
		}
		return oid, nil

	case asn1.KindCharacterString, asn1.KindUTCTime, asn1.KindGeneralizedTime,
		asn1.KindDate, asn1.KindTimeOfDay, asn1.KindDateTime,
		asn1.KindObjectDescriptor:
		content, err := d.stringContent(t, asn1.UniversalTag(node.Kind, node.Variant), off, path)
		if err != nil {
			return nil, err
		}
		return d.decodeCharacters(node.Variant, content, off, path)

	case asn1.KindSequence:
		return d.decodeSequence(node, t, off, path)

	case asn1.KindSet:
		return d.decodeSet(node, t, off, path)

	case asn1.KindSequenceOf, asn1.KindSetOf:
		return d.decodeOf(node, t, off, path)
	}

	return nil, d.err(asn1.DecodeUnsupported, off, path,
		"unsupported kind "+node.Kind.String())
}

// stringContent reassembles a possibly constructed string encoding (CER
// fragments long strings).
func (d *decoder) stringContent(t tlv, universalTag int, off int, path asn1.Path) ([]byte, error) {
	if !t.constructed {
		return t.content, nil
	}
	if d.mode == ModeDER {
		return nil, d.err(asn1.DecodeBadValue, off, path,
			"constructed string in DER")
	}
	var out []byte
	rest := t.content
	for len(rest) > 0 {
		seg, n, err := d.readTLV(rest, off, path)
		if err != nil {
			return nil, err
		}
		if seg.class != asn1.ClassUniversal || seg.number != universalTag || seg.constructed {
			return nil, d.err(asn1.DecodeUnexpectedTag, off, path,
				"invalid string fragment")
		}
		out = append(out, seg.content...)
		rest = rest[n:]
	}
	return out, nil
}

func (d *decoder) decodeBigInt(content []byte, off int, path asn1.Path) (*big.Int, error) {
	if len(content) == 0 {
		return nil, d.err(asn1.DecodeBadValue, off, path, "empty INTEGER")
	}
	if d.mode != ModeBER && len(content) > 1 {
		if (content[0] == 0x00 && content[1]&0x80 == 0) ||
			(content[0] == 0xFF && content[1]&0x80 != 0) {
			return nil, d.err(asn1.DecodeNonMinimalLength, off, path,
				"non-minimal INTEGER")
		}
	}
	n := new(big.Int).SetBytes(content)
	if content[0]&0x80 != 0 {
		mod := new(big.Int).Lsh(big.NewInt(1), uint(len(content)*8))
		n.Sub(n, mod)
	}
	return n, nil
}

func (d *decoder) readBase128(data []byte, off int, path asn1.Path) (uint64, int, error) {
	var n uint64
	for i := 0; i < len(data); i++ {
		if i >= 9 {
			return 0, 0, d.err(asn1.DecodeBadValue, off, path, "base-128 overflow")
		}
		n = n<<7 | uint64(data[i]&0x7F)
		if data[i]&0x80 == 0 {
			return n, i + 1, nil
		}
	}
	return 0, 0, d.err(asn1.DecodeOutOfBuffer, off, path, "truncated base-128 number")
}

func (d *decoder) decodeOID(content []byte, off int, path asn1.Path) (asn1.OID, error) {
	if len(content) == 0 {
		return nil, d.err(asn1.DecodeBadValue, off, path, "empty OBJECT IDENTIFIER")
	}
	first, n, err := d.readBase128(content, off, path)
	if err != nil {
		return nil, err
	}
	var oid asn1.OID
	switch {
	case first < 40:
		oid = asn1.OID{0, first}
	case first < 80:
		oid = asn1.OID{1, first - 40}
	default:
		oid = asn1.OID{2, first - 80}
	}
	rest := content[n:]
	for len(rest) > 0 {
		arc, n, err := d.readBase128(rest, off, path)
		if err != nil {
			return nil, err
		}
		oid = append(oid, arc)
		rest = rest[n:]
	}
	return oid, nil
}

// decodeReal interprets the X.690 real contents: empty (zero), special
// octets, base-2 binary, and base-10 character forms.
func (d *decoder) decodeReal(content []byte, off int, path asn1.Path) (float64, error) {
	if len(content) == 0 {
		return 0, nil
	}
	head := content[0]
	switch head {
	case 0x40:
		return math.Inf(1), nil
	case 0x41:
		return math.Inf(-1), nil
	case 0x42:
		return math.NaN(), nil
	case 0x43:
		return math.Copysign(0, -1), nil
	}

	if head&0x80 == 0 {
		if head&0xC0 == 0 {
			// ISO 6093 decimal form.
			f, err := strconv.ParseFloat(string(content[1:]), 64)
			if err != nil {
				return 0, d.err(asn1.DecodeBadValue, off, path, "invalid decimal REAL")
			}
			return f, nil
		}
		return 0, d.err(asn1.DecodeBadValue, off, path, "invalid REAL header")
	}

	base := [4]int{2, 8, 16, 0}[(head>>4)&0x03]
	if base == 0 {
		return 0, d.err(asn1.DecodeBadValue, off, path, "reserved REAL base")
	}
	scale := int((head >> 2) & 0x03)

	expLen := int(head&0x03) + 1
	idx := 1
	if head&0x03 == 0x03 {
		if len(content) < 2 {
			return 0, d.err(asn1.DecodeOutOfBuffer, off, path, "truncated REAL")
		}
		expLen = int(content[1])
		idx = 2
	}
	if len(content) < idx+expLen {
		return 0, d.err(asn1.DecodeOutOfBuffer, off, path, "truncated REAL exponent")
	}
	expBytes := content[idx : idx+expLen]
	exp := new(big.Int).SetBytes(expBytes)
	if len(expBytes) > 0 && expBytes[0]&0x80 != 0 {
		mod := new(big.Int).Lsh(big.NewInt(1), uint(len(expBytes)*8))
		exp.Sub(exp, mod)
	}
	if !exp.IsInt64() {
		return 0, d.err(asn1.DecodeBadValue, off, path, "REAL exponent overflow")
	}

	// value = mantissa * 2^scale * base^exponent
	mant := new(big.Int).SetBytes(content[idx+expLen:])
	val, _ := new(big.Float).SetInt(mant).Float64()
	val *= math.Pow(2, float64(scale))
	val *= math.Pow(float64(base), float64(exp.Int64()))
	if head&0x40 != 0 {
		val = -val
	}
	return val, nil
}

func (d *decoder) decodeCharacters(variant string, content []byte, off int, path asn1.Path) (string, error) {
	switch variant {
	case "BMPString":
		if len(content)%2 != 0 {
			return "", d.err(asn1.DecodeBadValue, off, path, "odd BMPString length")
		}
		units := make([]uint16, len(content)/2)
		for i := range units {
			units[i] = uint16(content[i*2])<<8 | uint16(content[i*2+1])
		}
		return string(utf16.Decode(units)), nil
	case "UniversalString":
		if len(content)%4 != 0 {
			return "", d.err(asn1.DecodeBadValue, off, path, "invalid UniversalString length")
		}
		runes := make([]rune, len(content)/4)
		for i := range runes {
			runes[i] = rune(uint32(content[i*4])<<24 | uint32(content[i*4+1])<<16 |
				uint32(content[i*4+2])<<8 | uint32(content[i*4+3]))
		}
		return string(runes), nil
	case "UTF8String":
		if !utf8.Valid(content) {
			return "", d.err(asn1.DecodeBadUTF8, off, path, "invalid UTF-8")
		}
		return string(content), nil
	default:
		return string(content), nil
	}
}

func (d *decoder) decodeSequence(node *asn1.Type, t tlv, off int, path asn1.Path) (any, error) {
	if !t.constructed {
		return nil, d.err(asn1.DecodeBadValue, off, path, "SEQUENCE must be constructed")
	}
	out := make(map[string]any, len(node.Members))
	rest := t.content

	for i := range node.Members {
		m := &node.Members[i]
		mpath := path.Child(m.Name)

		if len(rest) == 0 {
			if err := d.finishMember(m, out, off, mpath); err != nil {
				return nil, err
			}
			continue
		}

		peek, _, err := d.readTLV(rest, off, path)
		if err != nil {
			return nil, err
		}
		if !tagMatches(d.expectedTags(m.Type), peek) {
			if err := d.finishMember(m, out, off, mpath); err != nil {
				return nil, err
			}
			continue
		}

		v, n, err := d.decodeType(m.Type, rest, off, mpath)
		if err != nil {
			return nil, err
		}
		out[m.Name] = v
		rest = rest[n:]
		off += n
	}

	if len(rest) > 0 && !node.Extensible {
		return nil, d.err(asn1.DecodeUnexpectedTag, off, path,
			"unexpected trailing members")
	}
	return out, nil
}

// finishMember handles an absent member: restore the default, skip an
// optional, or fail a required one.
func (d *decoder) finishMember(m *asn1.Member, out map[string]any, off int, path asn1.Path) error {
	switch {
	case m.Default != nil:
		out[m.Name] = m.Default
		return nil
	case m.Optional || m.ExtGroup > 0:
		return nil
	default:
		return d.err(asn1.DecodeBadValue, off, path, "missing required member "+m.Name)
	}
}

func (d *decoder) decodeSet(node *asn1.Type, t tlv, off int, path asn1.Path) (any, error) {
	if !t.constructed {
		return nil, d.err(asn1.DecodeBadValue, off, path, "SET must be constructed")
	}
	out := make(map[string]any, len(node.Members))
	rest := t.content

	seen := make(map[string]bool)
	for len(rest) > 0 {
		peek, n, err := d.readTLV(rest, off, path)
		if err != nil {
			return nil, err
		}
		matched := false
		for i := range node.Members {
			m := &node.Members[i]
			if seen[m.Name] || !tagMatches(d.expectedTags(m.Type), peek) {
				continue
			}
			v, n2, err := d.decodeType(m.Type, rest, off, path.Child(m.Name))
			if err != nil {
				return nil, err
			}
			out[m.Name] = v
			seen[m.Name] = true
			rest = rest[n2:]
			off += n2
			matched = true
			break
		}
		if !matched {
			if node.Extensible {
				rest = rest[n:]
				off += n
				continue
			}
			return nil, d.err(asn1.DecodeUnexpectedTag, off, path,
				"unexpected member "+tagString(peek))
		}
	}

	for i := range node.Members {
		m := &node.Members[i]
		if !seen[m.Name] {
			if err := d.finishMember(m, out, off, path.Child(m.Name)); err != nil {
				return nil, err
			}
		}
	}
	return out, nil
}

func (d *decoder) decodeOf(node *asn1.Type, t tlv, off int, path asn1.Path) (any, error) {
	if !t.constructed {
		return nil, d.err(asn1.DecodeBadValue, off, path,
			node.Kind.String()+" must be constructed")
	}
	out := []any{}
	rest := t.content
	for len(rest) > 0 {
		v, n, err := d.decodeType(node.Element, rest, off, path.Index(len(out)))
		if err != nil {
			return nil, err
		}
		out = append(out, v)
		rest = rest[n:]
		off += n
	}
	if c := node.Constraint; c != nil && c.Size != nil &&
		!c.AllowsSize(len(out)) && !c.Extensible {
		return nil, &asn1.ConstraintViolation{
			Path:  path,
			Value: strconv.Itoa(len(out)),
			Root:  "SIZE " + rangeSetString(c.Size),
		}
	}
	return out, nil
}

func (d *decoder) decodeChoice(node *asn1.Type, data []byte, off int, path asn1.Path) (any, int, error) {
	peek, _, err := d.readTLV(data, off, path)
	if err != nil {
		return nil, 0, err
	}
	for i := range node.Members {
		m := &node.Members[i]
		if !tagMatches(d.expectedTags(m.Type), peek) {
			continue
		}
		v, n, err := d.decodeType(m.Type, data, off, path.Child(m.Name))
		if err != nil {
			return nil, 0, err
		}
		return asn1.Choice{Alt: m.Name, Value: v}, n, nil
	}
	return nil, 0, d.err(asn1.DecodeUnknownAlternative, off, path,
		"no alternative matches "+tagString(peek))
}
