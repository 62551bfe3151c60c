package oer

import (
	"math/big"

	"github.com/golangasn1/goasn1/asn1"
	"github.com/golangasn1/goasn1/internal/codec/ber"
)

// Decode decodes one value of the identified type, returning the number
// of bytes consumed.
func Decode(s *asn1.Schema, id asn1.TypeID, data []byte) (any, int, error) {
	d := &decoder{schema: s, data: data}
	v, err := d.decodeValue(id, asn1.Path{s.Type(id).Name})
	if err != nil {
		return nil, 0, err
	}
	return v, d.pos, nil
}

type decoder struct {
	schema *asn1.Schema
	data   []byte
	pos    int
}

func (d *decoder) err(kind asn1.DecodeErrorKind, path asn1.Path, msg string) error {
	return &asn1.DecodeError{Kind: kind, Offset: d.pos, Path: path, Message: msg}
}

func (d *decoder) take(n int, path asn1.Path) ([]byte, error) {
	if n < 0 || n > len(d.data)-d.pos {
		return nil, d.err(asn1.DecodeOutOfBuffer, path, "read past end of input")
	}
	out := d.data[d.pos : d.pos+n]
	d.pos += n
	return out, nil
}

func (d *decoder) takeByte(path asn1.Path) (byte, error) {
	b, err := d.take(1, path)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

// readLength reads the OER length determinant.
func (d *decoder) readLength(path asn1.Path) (int, error) {
	first, err := d.takeByte(path)
	if err != nil {
		return 0, err
	}
	if first < 0x80 {
		return int(first), nil
	}
	nlen := int(first & 0x7F)
	if nlen == 0 || nlen > 8 {
		return 0, d.err(asn1.DecodeBadValue, path, "invalid length of length")
	}
	b, err := d.take(nlen, path)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, octet := range b {
		if n > 1<<23 {
			return 0, d.err(asn1.DecodeBadValue, path, "length overflow")
		}
		n = n<<8 | int(octet)
	}
	return n, nil
}

func (d *decoder) decodeValue(id asn1.TypeID, path asn1.Path) (any, error) {
	node := d.schema.Type(id)

	switch node.Kind {
	case asn1.KindBoolean:
		b, err := d.takeByte(path)
		if err != nil {
			return nil, err
		}
		return b != 0, nil

	case asn1.KindNull:
		return nil, nil

	case asn1.KindInteger:
		return d.decodeInteger(node, path)

	case asn1.KindEnumerated:
		return d.decodeEnumerated(node, path)

	case asn1.KindReal:
		n, err := d.readLength(path)
		if err != nil {
			return nil, err
		}
		content, err := d.take(n, path)
		if err != nil {
			return nil, err
		}
		f, err := ber.DecodeRealContent(content)
		if err != nil {
			return nil, d.err(asn1.DecodeBadValue, path, "invalid REAL content")
		}
		return f, nil

	case asn1.KindBitString:
		return d.decodeBitString(node, path)

	case asn1.KindOctetString, asn1.KindAny:
		if node.Kind == asn1.KindOctetString && node.Hints.FixedSize {
			b, err := d.take(int(node.Hints.SizeLo), path)
			if err != nil {
				return nil, err
			}
			out := make([]byte, len(b))
			copy(out, b)
			return out, nil
		}
		n, err := d.readLength(path)
		if err != nil {
			return nil, err
		}
		b, err := d.take(n, path)
		if err != nil {
			return nil, err
		}
		out := make([]byte, len(b))
		copy(out, b)
		return out, nil

	case asn1.KindObjectIdentifier:
		n, err := d.readLength(path)
		if err != nil {
			return nil, err
		}
		content, err := d.take(n, path)
		if err != nil {
			return nil, err
		}
		oid, err := ber.DecodeOIDContent(content)
		if err != nil {
			return nil, d.err(asn1.DecodeBadValue, path, "invalid OBJECT IDENTIFIER")
		}
		return oid, nil

	case asn1.KindRelativeOID:
		n, err := d.readLength(path)
		if err != nil {
			return nil, err
		}
		content, err := d.take(n, path)
		if err != nil {
			return nil, err
		}
		oid, err := ber.DecodeRelativeOIDContent(content)
		if err != nil {
			return nil, d.err(asn1.DecodeBadValue, path, "invalid RELATIVE-OID")
		}
		return oid, nil

	case asn1.KindCharacterString, asn1.KindUTCTime, asn1.KindGeneralizedTime,
		asn1.KindDate, asn1.KindTimeOfDay, asn1.KindDateTime,
		asn1.KindObjectDescriptor:
		if node.Hints.FixedSize && singleOctetChars(node.Variant) {
			b, err := d.take(int(node.Hints.SizeLo), path)
			if err != nil {
				return nil, err
			}
			return string(b), nil
		}
		n, err := d.readLength(path)
		if err != nil {
			return nil, err
		}
		b, err := d.take(n, path)
		if err != nil {
			return nil, err
		}
		return string(b), nil

	case asn1.KindSequence, asn1.KindSet:
		return d.decodeStructured(node, path)

	case asn1.KindChoice:
		return d.decodeChoice(node, path)

	case asn1.KindSequenceOf, asn1.KindSetOf:
		count, err := d.readQuantity(path)
		if err != nil {
			return nil, err
		}
		out := []any{}
		for i := 0; i < count; i++ {
			v, err := d.decodeValue(node.Element, path.Index(i))
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		return out, nil
	}

	return nil, d.err(asn1.DecodeUnsupported, path,
		"unsupported kind "+node.Kind.String())
}

func (d *decoder) readQuantity(path asn1.Path) (int, error) {
	nlen, err := d.takeByte(path)
	if err != nil {
		return 0, err
	}
	if nlen == 0 || nlen > 8 {
		return 0, d.err(asn1.DecodeBadValue, path, "invalid quantity length")
	}
	b, err := d.take(int(nlen), path)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, octet := range b {
		if n > 1<<23 {
			return 0, d.err(asn1.DecodeBadValue, path, "quantity overflow")
		}
		n = n<<8 | int(octet)
	}
	return n, nil
}

func (d *decoder) decodeInteger(node *asn1.Type, path asn1.Path) (any, error) {
	h := node.Hints

	if h.Bounded && !h.ExtensibleConstraint {
		if width, signed := intWidth(h.Lo, h.Hi); width > 0 {
			b, err := d.take(width, path)
			if err != nil {
				return nil, err
			}
			n := new(big.Int).SetBytes(b)
			if signed && b[0]&0x80 != 0 {
				mod := new(big.Int).Lsh(big.NewInt(1), uint(width*8))
				n.Sub(n, mod)
			}
			if c := node.Constraint; c != nil && c.Values != nil && !c.Values.Contains(n) {
				return nil, &asn1.ConstraintViolation{Path: path, Value: n.String(),
					Root: "(root)"}
			}
			return asn1.NormalizeInt(n), nil
		}
	}

	nlen, err := d.readLength(path)
	if err != nil {
		return nil, err
	}
	b, err := d.take(nlen, path)
	if err != nil {
		return nil, err
	}
	var n *big.Int
	if h.SemiConstrained && h.Lo.Sign() >= 0 && !h.ExtensibleConstraint {
		n = new(big.Int).SetBytes(b)
	} else {
		n, err = ber.DecodeIntContent(b)
		if err != nil {
			return nil, d.err(asn1.DecodeBadValue, path, "empty INTEGER content")
		}
	}
	return asn1.NormalizeInt(n), nil
}

func (d *decoder) decodeEnumerated(node *asn1.Type, path asn1.Path) (any, error) {
	first, err := d.takeByte(path)
	if err != nil {
		return nil, err
	}
	var number int64
	if first < 0x80 {
		number = int64(first)
	} else {
		nlen := int(first & 0x7F)
		b, err := d.take(nlen, path)
		if err != nil {
			return nil, err
		}
		n, err := ber.DecodeIntContent(b)
		if err != nil || !n.IsInt64() {
			return nil, d.err(asn1.DecodeBadValue, path, "invalid enumeration value")
		}
		number = n.Int64()
	}
	if label, ok := node.LabelFor(number); ok {
		return label, nil
	}
	return number, nil
}

func (d *decoder) decodeBitString(node *asn1.Type, path asn1.Path) (any, error) {
	h := node.Hints
	if h.FixedSize {
		nbytes := (int(h.SizeLo) + 7) / 8
		b, err := d.take(nbytes, path)
		if err != nil {
			return nil, err
		}
		out := make([]byte, len(b))
		copy(out, b)
		return asn1.BitString{Bytes: out, BitLength: int(h.SizeLo)}, nil
	}

	n, err := d.readLength(path)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, d.err(asn1.DecodeBadValue, path, "missing unused-bits octet")
	}
	content, err := d.take(n, path)
	if err != nil {
		return nil, err
	}
	unused := int(content[0])
	if unused > 7 {
		return nil, d.err(asn1.DecodeBadValue, path, "invalid unused-bits octet")
	}
	bits := make([]byte, n-1)
	copy(bits, content[1:])
	return asn1.BitString{Bytes: bits, BitLength: (n-1)*8 - unused}, nil
}

func (d *decoder) decodeStructured(node *asn1.Type, path asn1.Path) (any, error) {
	// Preamble.
	nPreambleBits := len(node.Hints.OptionalIdx)
	if node.Extensible {
		nPreambleBits++
	}
	preamble, err := d.take((nPreambleBits+7)/8, path)
	if err != nil {
		return nil, err
	}
	bitAt := func(i int) bool {
		return preamble[i/8]&(0x80>>(i%8)) != 0
	}

	bit := 0
	extPresent := false
	if node.Extensible {
		extPresent = bitAt(0)
		bit = 1
	}
	present := make(map[string]bool)
	for _, idx := range node.Hints.OptionalIdx {
		present[node.Members[idx].Name] = bitAt(bit)
		bit++
	}

	out := make(map[string]any, len(node.Members))
	for i := range node.Members {
		m := &node.Members[i]
		if m.ExtGroup != 0 {
			continue
		}
		if m.Optional || m.Default != nil {
			if !present[m.Name] {
				if m.Default != nil {
					out[m.Name] = m.Default
				}
				continue
			}
		}
		v, err := d.decodeValue(m.Type, path.Child(m.Name))
		if err != nil {
			return nil, err
		}
		out[m.Name] = v
	}

	if !extPresent {
		return out, nil
	}

	n, err := d.readLength(path)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, d.err(asn1.DecodeBadValue, path, "empty extension bitmap")
	}
	bitmapContent, err := d.take(n, path)
	if err != nil {
		return nil, err
	}
	unused := int(bitmapContent[0])
	bitmap := bitmapContent[1:]
	extBits := len(bitmap)*8 - unused

	var extMembers []*asn1.Member
	for i := range node.Members {
		if node.Members[i].ExtGroup > 0 {
			extMembers = append(extMembers, &node.Members[i])
		}
	}

	for i := 0; i < extBits; i++ {
		if bitmap[i/8]&(0x80>>(i%8)) == 0 {
			continue
		}
		length, err := d.readLength(path)
		if err != nil {
			return nil, err
		}
		content, err := d.take(length, path)
		if err != nil {
			return nil, err
		}
		if i >= len(extMembers) {
			continue // unknown future extension, skipped
		}
		m := extMembers[i]
		sub := &decoder{schema: d.schema, data: content}
		v, err := sub.decodeValue(m.Type, path.Child(m.Name))
		if err != nil {
			return nil, err
		}
		out[m.Name] = v
	}

	for _, m := range extMembers {
		if _, got := out[m.Name]; !got && m.Default != nil {
			out[m.Name] = m.Default
		}
	}
	return out, nil
}

func (d *decoder) decodeChoice(node *asn1.Type, path asn1.Path) (any, error) {
	first, err := d.takeByte(path)
	if err != nil {
		return nil, err
	}
	class := [4]asn1.Class{asn1.ClassUniversal, asn1.ClassApplication,
		asn1.ClassContext, asn1.ClassPrivate}[first>>6]
	number := int(first & 0x3F)
	if number == 0x3F {
		number = 0
		for {
			b, err := d.takeByte(path)
			if err != nil {
				return nil, err
			}
			number = number<<7 | int(b&0x7F)
			if b&0x80 == 0 {
				break
			}
		}
	}

	for i := range node.Members {
		m := &node.Members[i]
		tag := d.schema.Type(m.Type).EffectiveTag()
		if tag.Class != class || tag.Number != number {
			continue
		}
		if m.ExtGroup > 0 {
			length, err := d.readLength(path)
			if err != nil {
				return nil, err
			}
			content, err := d.take(length, path)
			if err != nil {
				return nil, err
			}
			sub := &decoder{schema: d.schema, data: content}
			v, err := sub.decodeValue(m.Type, path.Child(m.Name))
			if err != nil {
				return nil, err
			}
			return asn1.Choice{Alt: m.Name, Value: v}, nil
		}
		v, err := d.decodeValue(m.Type, path.Child(m.Name))
		if err != nil {
			return nil, err
		}
		return asn1.Choice{Alt: m.Name, Value: v}, nil
	}
	return nil, d.err(asn1.DecodeUnknownAlternative, path, "no alternative matches tag")
}
