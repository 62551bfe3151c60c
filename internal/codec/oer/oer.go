// Package oer implements the Octet Encoding Rules of X.696 over the
// compiled type model: byte-oriented like BER, tagless like PER.
package oer

import (
	"bytes"
	"math/big"

	"github.com/golangasn1/goasn1/asn1"
	"github.com/golangasn1/goasn1/internal/codec/ber"
)

// Encode encodes a value of the identified type.
func Encode(s *asn1.Schema, id asn1.TypeID, v any) ([]byte, error) {
	e := &encoder{schema: s}
	var out bytes.Buffer
	if err := e.encodeValue(&out, id, v, asn1.Path{s.Type(id).Name}); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

type encoder struct {
	schema *asn1.Schema
}

func (e *encoder) badShape(path asn1.Path, msg string) error {
	return &asn1.EncodeError{Kind: asn1.EncodeBadShape, Path: path, Message: msg}
}

// writeLength writes the OER length determinant (identical to the BER
// definite length forms).
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

// writeQuantity writes the element count of an OF type: a length-
// prefixed unsigned integer.
func writeQuantity(out *bytes.Buffer, n int) {
	var tmp [8]byte
	i := len(tmp)
	for n > 0 {
		i--
		tmp[i] = byte(n)
		n >>= 8
	}
	if i == len(tmp) {
		i--
		tmp[i] = 0
	}
	out.WriteByte(byte(len(tmp) - i))
	out.Write(tmp[i:])
}

// intWidth returns the fixed width in octets for a bounded integer
// range, or 0 when no fixed width applies.
func intWidth(lo, hi *big.Int) (width int, signed bool) {
	signed = lo.Sign() < 0
	for _, w := range []int{1, 2, 4, 8} {
		var min, max *big.Int
		if signed {
			max = new(big.Int).Lsh(big.NewInt(1), uint(w*8-1))
			min = new(big.Int).Neg(max)
			max = new(big.Int).Sub(max, big.NewInt(1))
		} else {
			min = big.NewInt(0)
			max = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), uint(w*8)), big.NewInt(1))
		}
		if lo.Cmp(min) >= 0 && hi.Cmp(max) <= 0 {
			return w, signed
		}
	}
	return 0, signed
}

func (e *encoder) encodeValue(out *bytes.Buffer, id asn1.TypeID, v any, path asn1.Path) error {
	node := e.schema.Type(id)

	switch node.Kind {
	case asn1.KindBoolean:
		b, ok := v.(bool)
		if !ok {
			return e.badShape(path, "BOOLEAN expects bool")
		}
		if b {
			out.WriteByte(0xFF)
		} else {
			out.WriteByte(0x00)
		}
		return nil

	case asn1.KindNull:
		if v != nil {
			return e.badShape(path, "NULL expects nil")
		}
		return nil

	case asn1.KindInteger:
		return e.encodeInteger(out, node, v, path)

	case asn1.KindEnumerated:
		return e.encodeEnumerated(out, node, v, path)

	case asn1.KindReal:
		f, ok := toFloat(v)
		if !ok {
			return e.badShape(path, "REAL expects float64")
		}
		content := ber.EncodeRealContent(f)
		writeLength(out, len(content))
		out.Write(content)
		return nil

	case asn1.KindBitString:
		return e.encodeBitString(out, node, v, path)

	case asn1.KindOctetString, asn1.KindAny:
		b, ok := v.([]byte)
		if !ok {
			return e.badShape(path, node.Kind.String()+" expects []byte")
		}
		if node.Kind == asn1.KindOctetString && node.Hints.FixedSize {
			if int64(len(b)) != node.Hints.SizeLo {
				return &asn1.ConstraintViolation{Path: path,
					Value: big.NewInt(int64(len(b))).String(),
					Root:  "SIZE fixed"}
			}
			out.Write(b)
			return nil
		}
		if c := node.Constraint; c != nil && !c.AllowsSize(len(b)) && !c.Extensible {
			return &asn1.ConstraintViolation{Path: path,
				Value: big.NewInt(int64(len(b))).String(), Root: "SIZE (root)"}
		}
		writeLength(out, len(b))
		out.Write(b)
		return nil

	case asn1.KindObjectIdentifier:
		oid, ok := v.(asn1.OID)
		if !ok {
			return e.badShape(path, "OBJECT IDENTIFIER expects asn1.OID")
		}
		content, err := ber.EncodeOIDContent(oid)
		if err != nil {
			return &asn1.EncodeError{Kind: asn1.EncodeBadShape, Path: path,
				Message: err.Error()}
		}
		writeLength(out, len(content))
		out.Write(content)
		return nil

	case asn1.KindRelativeOID:
		oid, ok := v.(asn1.OID)
		if !ok {
			return e.badShape(path, "RELATIVE-OID expects asn1.OID")
		}
		content := ber.EncodeRelativeOIDContent(oid)
		writeLength(out, len(content))
		out.Write(content)
		return nil

	case asn1.KindCharacterString, asn1.KindUTCTime, asn1.KindGeneralizedTime,
		asn1.KindDate, asn1.KindTimeOfDay, asn1.KindDateTime,
		asn1.KindObjectDescriptor:
		s, ok := v.(string)
		if !ok {
			return e.badShape(path, "character string expects string")
		}
		if c := node.Constraint; c != nil {
			if !c.AllowsString(s) && !c.Extensible {
				return &asn1.ConstraintViolation{Path: path,
					Value: asn1.ValueString(s), Root: "FROM (...)"}
			}
			if !c.AllowsSize(len([]rune(s))) && !c.Extensible {
				return &asn1.ConstraintViolation{Path: path,
					Value: asn1.ValueString(s), Root: "SIZE (root)"}
			}
		}
		b := []byte(s)
		if node.Hints.FixedSize && singleOctetChars(node.Variant) {
			out.Write(b)
			return nil
		}
		writeLength(out, len(b))
		out.Write(b)
		return nil

	case asn1.KindSequence, asn1.KindSet:
		return e.encodeStructured(out, node, v, path)

	case asn1.KindChoice:
		return e.encodeChoice(out, node, v, path)

	case asn1.KindSequenceOf, asn1.KindSetOf:
		elements, ok := v.([]any)
		if !ok {
			return e.badShape(path, node.Kind.String()+" expects []any")
		}
		if c := node.Constraint; c != nil && !c.AllowsSize(len(elements)) && !c.Extensible {
			return &asn1.ConstraintViolation{Path: path,
				Value: big.NewInt(int64(len(elements))).String(), Root: "SIZE (root)"}
		}
		writeQuantity(out, len(elements))
		for i, el := range elements {
			if err := e.encodeValue(out, node.Element, el, path.Index(i)); err != nil {
				return err
			}
		}
		return nil
	}

	return &asn1.EncodeError{Kind: asn1.EncodeUnsupported, Path: path,
		Message: "unsupported kind " + node.Kind.String()}
}

// singleOctetChars reports variants whose characters occupy one octet,
// enabling the fixed-size no-length form.
func singleOctetChars(variant string) bool {
	switch variant {
	case "IA5String", "VisibleString", "ISO646String", "PrintableString",
		"NumericString":
		return true
	}
	return false
}

func (e *encoder) encodeInteger(out *bytes.Buffer, node *asn1.Type, v any, path asn1.Path) error {
	n, ok := asn1.ToBigInt(v)
	if !ok {
		return e.badShape(path, "INTEGER expects an integer")
	}
	c := node.Constraint
	h := node.Hints

	if c != nil && c.Values != nil && !c.Values.Contains(n) && !c.Extensible {
		return &asn1.ConstraintViolation{Path: path, Value: n.String(),
			Root: "(root)"}
	}

	if h.Bounded && !h.ExtensibleConstraint {
		if width, signed := intWidth(h.Lo, h.Hi); width > 0 {
			writeFixedInt(out, n, width, signed)
			return nil
		}
	}
	content := ber.EncodeIntContent(n)
	if h.SemiConstrained && h.Lo.Sign() >= 0 && !h.ExtensibleConstraint {
		// Non-negative unbounded integers drop the sign octet.
		content = new(big.Int).Set(n).Bytes()
		if len(content) == 0 {
			content = []byte{0x00}
		}
	}
	writeLength(out, len(content))
	out.Write(content)
	return nil
}

func writeFixedInt(out *bytes.Buffer, n *big.Int, width int, signed bool) {
	v := new(big.Int).Set(n)
	if signed && v.Sign() < 0 {
		mod := new(big.Int).Lsh(big.NewInt(1), uint(width*8))
		v.Add(v, mod)
	}
	b := v.Bytes()
	for len(b) < width {
		b = append([]byte{0x00}, b...)
	}
	out.Write(b[len(b)-width:])
}

func (e *encoder) encodeEnumerated(out *bytes.Buffer, node *asn1.Type, v any, path asn1.Path) error {
	number, err := enumNumber(node, v, path)
	if err != nil {
		return err
	}
	if number >= 0 && number < 128 {
		out.WriteByte(byte(number))
		return nil
	}
	content := ber.EncodeIntContent(big.NewInt(number))
	out.WriteByte(0x80 | byte(len(content)))
	out.Write(content)
	return nil
}

func (e *encoder) encodeBitString(out *bytes.Buffer, node *asn1.Type, v any, path asn1.Path) error {
	bs, ok := v.(asn1.BitString)
	if !ok {
		return e.badShape(path, "BIT STRING expects asn1.BitString")
	}
	h := node.Hints
	if c := node.Constraint; c != nil && !c.AllowsSize(bs.BitLength) && !c.Extensible {
		return &asn1.ConstraintViolation{Path: path,
			Value: big.NewInt(int64(bs.BitLength)).String(), Root: "SIZE (root)"}
	}

	if h.FixedSize {
		nbytes := (int(h.SizeLo) + 7) / 8
		b := make([]byte, nbytes)
		copy(b, bs.Bytes)
		out.Write(b)
		return nil
	}

	nbytes := (bs.BitLength + 7) / 8
	unused := nbytes*8 - bs.BitLength
	writeLength(out, nbytes+1)
	out.WriteByte(byte(unused))
	b := make([]byte, nbytes)
	copy(b, bs.Bytes)
	if nbytes > 0 && unused > 0 {
		b[nbytes-1] &= 0xFF << unused
	}
	out.Write(b)
	return nil
}

// encodeStructured writes the preamble octets (extension bit plus
// optional-member bitmap, padded to a whole octet) followed by the root
// members and any extensions.
func (e *encoder) encodeStructured(out *bytes.Buffer, node *asn1.Type, v any, path asn1.Path) error {
	fields, ok := v.(map[string]any)
	if !ok {
		return e.badShape(path, node.Kind.String()+" expects map[string]any")
	}
	for name := range fields {
		if _, ok := node.MemberByName(name); !ok {
			return &asn1.EncodeError{Kind: asn1.EncodeUnknownMember, Path: path,
				Message: "unknown member " + name}
		}
	}

	memberPresent := func(m *asn1.Member) bool {
		mv, present := fields[m.Name]
		if !present {
			return false
		}
		if m.Default != nil && asn1.ValueEqual(mv, m.Default) {
			return false
		}
		return true
	}

	extPresent := false
	for i := range node.Members {
		if node.Members[i].ExtGroup > 0 && memberPresent(&node.Members[i]) {
			extPresent = true
			break
		}
	}

	// Preamble.
	var bitsUsed int
	var preamble []byte
	setBit := func(b bool) {
		if bitsUsed%8 == 0 {
			preamble = append(preamble, 0)
		}
		if b {
			preamble[bitsUsed/8] |= 0x80 >> (bitsUsed % 8)
		}
		bitsUsed++
	}
	if node.Extensible {
		setBit(extPresent)
	}
	for _, idx := range node.Hints.OptionalIdx {
		setBit(memberPresent(&node.Members[idx]))
	}
	out.Write(preamble)

	for i := range node.Members {
		m := &node.Members[i]
		if m.ExtGroup != 0 {
			continue
		}
		if m.Optional || m.Default != nil {
			if !memberPresent(m) {
				continue
			}
		} else if _, present := fields[m.Name]; !present {
			return &asn1.EncodeError{Kind: asn1.EncodeMissingMember, Path: path,
				Message: "missing member " + m.Name}
		}
		if err := e.encodeValue(out, m.Type, fields[m.Name], path.Child(m.Name)); err != nil {
			return err
		}
	}

	if !extPresent {
		return nil
	}

	// Extension bitmap: a length-prefixed bit string with an initial
	// unused-bits octet, one bit per extension member.
	var extMembers []*asn1.Member
	for i := range node.Members {
		if node.Members[i].ExtGroup > 0 {
			extMembers = append(extMembers, &node.Members[i])
		}
	}
	nbits := len(extMembers)
	nbytes := (nbits + 7) / 8
	bitmap := make([]byte, nbytes)
	for i, m := range extMembers {
		if memberPresent(m) {
			bitmap[i/8] |= 0x80 >> (i % 8)
		}
	}
	writeLength(out, nbytes+1)
	out.WriteByte(byte(nbytes*8 - nbits))
	out.Write(bitmap)

	for _, m := range extMembers {
		if !memberPresent(m) {
			continue
		}
		var sub bytes.Buffer
		if err := e.encodeValue(&sub, m.Type, fields[m.Name], path.Child(m.Name)); err != nil {
			return err
		}
		content := sub.Bytes()
		if len(content) == 0 {
			content = []byte{0x00}
		}
		writeLength(out, len(content))
		out.Write(content)
	}
	return nil
}

// encodeChoice writes the alternative's tag in the OER tag form (class in
// the top two bits, then a six-bit number or 0x3F and base-128 octets), then
// its value (extension alternatives as length-prefixed open types).
func (e *encoder) encodeChoice(out *bytes.Buffer, node *asn1.Type, v any, path asn1.Path) error {
	choice, ok := v.(asn1.Choice)
	if !ok {
		return e.badShape(path, "CHOICE expects asn1.Choice")
	}
	m, found := node.MemberByName(choice.Alt)
	if !found {
		return &asn1.EncodeError{Kind: asn1.EncodeUnknownAlternative, Path: path,
			Message: "unknown alternative " + choice.Alt}
	}

	tag := e.schema.Type(m.Type).EffectiveTag()
	writeTag(out, tag)

	if m.ExtGroup > 0 {
		var sub bytes.Buffer
		if err := e.encodeValue(&sub, m.Type, choice.Value, path.Child(choice.Alt)); err != nil {
			return err
		}
		content := sub.Bytes()
		if len(content) == 0 {
			content = []byte{0x00}
		}
		writeLength(out, len(content))
		out.Write(content)
		return nil
	}
	return e.encodeValue(out, m.Type, choice.Value, path.Child(choice.Alt))
}

func writeTag(out *bytes.Buffer, tag asn1.Tag) {
	class := byte(0)
	switch tag.Class {
	case asn1.ClassApplication:
		class = 1
	case asn1.ClassContext:
		class = 2
	case asn1.ClassPrivate:
		class = 3
	}
	id := class << 6
	if tag.Number < 63 {
		out.WriteByte(id | byte(tag.Number))
		return
	}
	out.WriteByte(id | 0x3F)
	n := tag.Number
	var tmp [5]byte
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
