package per

import (
	"math/big"
	"math/bits"

	"github.com/golangasn1/goasn1/asn1"
	"github.com/golangasn1/goasn1/internal/codec/ber"
)

// Decode decodes one value of the identified type, returning the number
// of whole octets consumed (a complete PER encoding always occupies whole
// octets).
func Decode(s *asn1.Schema, id asn1.TypeID, data []byte, aligned bool) (any, int, error) {
	d := &perDecoder{schema: s, aligned: aligned}
	r := &reader{data: data, path: asn1.Path{s.Type(id).Name}}
	v, err := d.decodeValue(r, id, r.path)
	if err != nil {
		return nil, 0, err
	}
	consumed := (r.pos + 7) / 8
	if consumed == 0 {
		// A complete encoding is at least one octet.
		consumed = 1
		if len(data) == 0 {
			return nil, 0, r.outOfBuffer("empty input")
		}
	}
	return v, consumed, nil
}

type perDecoder struct {
	schema  *asn1.Schema
	aligned bool
}

func (d *perDecoder) errBad(r *reader, path asn1.Path, msg string) error {
	return &asn1.DecodeError{Kind: asn1.DecodeBadValue, Offset: r.byteOffset(),
		Path: path, Message: msg}
}

func (d *perDecoder) decodeValue(r *reader, id asn1.TypeID, path asn1.Path) (any, error) {
	node := d.schema.Type(id)

	switch node.Kind {
	case asn1.KindBoolean:
		bit, err := r.readBit()
		if err != nil {
			return nil, err
		}
		return bit == 1, nil

	case asn1.KindNull:
		return nil, nil

	case asn1.KindInteger:
		return d.decodeInteger(r, node, path)

	case asn1.KindEnumerated:
		return d.decodeEnumerated(r, node, path)

	case asn1.KindReal:
		content, err := d.readOpenContent(r)
		if err != nil {
			return nil, err
		}
		f, err := ber.DecodeRealContent(content)
		if err != nil {
			return nil, d.errBad(r, path, "invalid REAL content")
		}
		return f, nil

	case asn1.KindBitString:
		return d.decodeBitString(r, node, path)

	case asn1.KindOctetString:
		return d.decodeOctetString(r, node, path)

	case asn1.KindAny:
		content, err := d.readOpenContent(r)
		if err != nil {
			return nil, err
		}
		out := make([]byte, len(content))
		copy(out, content)
		return out, nil

	case asn1.KindObjectIdentifier:
		content, err := d.readOpenContent(r)
		if err != nil {
			return nil, err
		}
		oid, err := ber.DecodeOIDContent(content)
		if err != nil {
			return nil, d.errBad(r, path, "invalid OBJECT IDENTIFIER content")
		}
		return oid, nil

	case asn1.KindRelativeOID:
		content, err := d.readOpenContent(r)
		if err != nil {
			return nil, err
		}
		oid, err := ber.DecodeRelativeOIDContent(content)
		if err != nil {
			return nil, d.errBad(r, path, "invalid RELATIVE-OID content")
		}
		return oid, nil

	case asn1.KindCharacterString, asn1.KindUTCTime, asn1.KindGeneralizedTime,
		asn1.KindDate, asn1.KindTimeOfDay, asn1.KindDateTime,
		asn1.KindObjectDescriptor:
		return d.decodeString(r, node, path)

	case asn1.KindSequence, asn1.KindSet:
		return d.decodeStructured(r, node, path)

	case asn1.KindChoice:
		return d.decodeChoice(r, node, path)

	case asn1.KindSequenceOf, asn1.KindSetOf:
		return d.decodeOf(r, node, path)
	}

	return nil, &asn1.DecodeError{Kind: asn1.DecodeUnsupported,
		Offset: r.byteOffset(), Path: path,
		Message: "unsupported kind " + node.Kind.String()}
}

// === whole numbers ===

func (d *perDecoder) readConstrainedWhole(r *reader, rng uint64) (uint64, error) {
	if rng <= 1 {
		return 0, nil
	}
	nbits := bits.Len64(rng - 1)
	if !d.aligned {
		return r.readBits(nbits)
	}
	switch {
	case rng <= 255:
		return r.readBits(nbits)
	case rng == 256:
		r.align()
		return r.readBits(8)
	case rng <= 65536:
		r.align()
		return r.readBits(16)
	default:
		maxOctets := uint64((bits.Len64(rng-1) + 7) / 8)
		lenM1, err := d.readConstrainedWhole(r, maxOctets)
		if err != nil {
			return 0, err
		}
		r.align()
		return r.readBits(int(lenM1+1) * 8)
	}
}

func (d *perDecoder) readNormallySmall(r *reader) (uint64, error) {
	bit, err := r.readBit()
	if err != nil {
		return 0, err
	}
	if bit == 0 {
		return r.readBits(6)
	}
	content, err := d.readLengthAndBytes(r)
	if err != nil {
		return 0, err
	}
	n := new(big.Int).SetBytes(content)
	if !n.IsUint64() {
		return 0, r.outOfBuffer("normally small number overflow")
	}
	return n.Uint64(), nil
}

// readSmallLength reads a non-fragmented length determinant; a fragment
// header returns its item count (multiplier times 16K) with frag=true.
func (d *perDecoder) readSmallLength(r *reader) (n int, frag bool, err error) {
	if d.aligned {
		r.align()
	}
	first, err := r.readBits(8)
	if err != nil {
		return 0, false, err
	}
	switch {
	case first < 0x80:
		return int(first), false, nil
	case first < 0xC0:
		second, err := r.readBits(8)
		if err != nil {
			return 0, false, err
		}
		return int(first&0x3F)<<8 | int(second), false, nil
	default:
		m := int(first & 0x3F)
		if m < 1 || m > 4 {
			return 0, false, r.outOfBuffer("invalid fragment multiplier")
		}
		return m * fragmentUnit, true, nil
	}
}

// readLengthAndBytes reads a length determinant plus payload octets,
// reassembling fragments.
func (d *perDecoder) readLengthAndBytes(r *reader) ([]byte, error) {
	var out []byte
	for {
		n, frag, err := d.readSmallLength(r)
		if err != nil {
			return nil, err
		}
		if d.aligned && n > 0 {
			r.align()
		}
		chunk, err := r.readBytes(n)
		if err != nil {
			return nil, err
		}
		out = append(out, chunk...)
		if !frag {
			return out, nil
		}
	}
}

func (d *perDecoder) readOpenContent(r *reader) ([]byte, error) {
	return d.readLengthAndBytes(r)
}

func (d *perDecoder) decodeInteger(r *reader, node *asn1.Type, path asn1.Path) (any, error) {
	c := node.Constraint
	h := node.Hints

	if h.ExtensibleConstraint && c != nil && c.Values != nil {
		bit, err := r.readBit()
		if err != nil {
			return nil, err
		}
		if bit == 1 {
			return d.readUnconstrainedInt(r)
		}
	}

	switch {
	case h.Bounded:
		span := new(big.Int).Sub(h.Hi, h.Lo).Uint64()
		offset, err := d.readConstrainedWhole(r, span+1)
		if err != nil {
			return nil, err
		}
		n := new(big.Int).Add(h.Lo, new(big.Int).SetUint64(offset))
		if c != nil && c.Values != nil && !c.Values.Contains(n) {
			return nil, &asn1.ConstraintViolation{Path: path, Value: n.String(),
				Root: constraintString(c)}
		}
		return asn1.NormalizeInt(n), nil

	case h.SemiConstrained:
		content, err := d.readLengthAndBytes(r)
		if err != nil {
			return nil, err
		}
		n := new(big.Int).SetBytes(content)
		n.Add(n, h.Lo)
		return asn1.NormalizeInt(n), nil

	default:
		v, err := d.readUnconstrainedInt(r)
		if err != nil {
			return nil, err
		}
		if c != nil && c.Values != nil {
			n, _ := asn1.ToBigInt(v)
			if !c.Values.Contains(n) && !c.Extensible {
				return nil, &asn1.ConstraintViolation{Path: path, Value: n.String(),
					Root: constraintString(c)}
			}
		}
		return v, nil
	}
}

func (d *perDecoder) readUnconstrainedInt(r *reader) (any, error) {
	content, err := d.readLengthAndBytes(r)
	if err != nil {
		return nil, err
	}
	n, err := ber.DecodeIntContent(content)
	if err != nil {
		return nil, r.outOfBuffer("empty INTEGER content")
	}
	return asn1.NormalizeInt(n), nil
}

func (d *perDecoder) decodeEnumerated(r *reader, node *asn1.Type, path asn1.Path) (any, error) {
	if node.Extensible {
		bit, err := r.readBit()
		if err != nil {
			return nil, err
		}
		if bit == 1 {
			idx, err := d.readNormallySmall(r)
			if err != nil {
				return nil, err
			}
			if idx < uint64(len(node.ExtNamedValues)) {
				return node.ExtNamedValues[idx].Label, nil
			}
			// An unknown extension value decodes to its index number.
			return int64(idx), nil
		}
	}
	idx, err := d.readConstrainedWhole(r, uint64(len(node.NamedValues)))
	if err != nil {
		return nil, err
	}
	if idx >= uint64(len(node.NamedValues)) {
		return nil, d.errBad(r, path, "enumeration index out of range")
	}
	return node.NamedValues[idx].Label, nil
}

// readSize reads a size determinant per the node's constraint, returning
// the element count.
func (d *perDecoder) readSize(r *reader, node *asn1.Type, path asn1.Path) (int, error) {
	c := node.Constraint
	h := node.Hints

	if h.ExtensibleConstraint && c != nil && c.Size != nil {
		bit, err := r.readBit()
		if err != nil {
			return 0, err
		}
		if bit == 1 {
			n, frag, err := d.readSmallLength(r)
			if err != nil {
				return 0, err
			}
			if frag {
				return 0, d.errBad(r, path, "fragmented extension size")
			}
			return n, nil
		}
	}
	if h.SizeBounded && h.SizeHi < 65536 {
		if h.SizeLo == h.SizeHi {
			return int(h.SizeLo), nil
		}
		offset, err := d.readConstrainedWhole(r, uint64(h.SizeHi-h.SizeLo)+1)
		if err != nil {
			return 0, err
		}
		n := int(h.SizeLo) + int(offset)
		if c != nil && !c.AllowsSize(n) {
			return 0, &asn1.ConstraintViolation{Path: path,
				Value: big.NewInt(int64(n)).String(), Root: constraintString(c)}
		}
		return n, nil
	}
	n, frag, err := d.readSmallLength(r)
	if err != nil {
		return 0, err
	}
	if frag {
		return -n, nil // negative marks an open fragment run
	}
	return n, nil
}

func (d *perDecoder) decodeBitString(r *reader, node *asn1.Type, path asn1.Path) (any, error) {
	h := node.Hints

	if h.FixedSize && h.SizeHi <= 65536 {
		if d.aligned && h.SizeHi > 16 {
			r.align()
		}
		data, err := r.readBitField(int(h.SizeLo))
		if err != nil {
			return nil, err
		}
		return asn1.BitString{Bytes: data, BitLength: int(h.SizeLo)}, nil
	}

	if node.Constraint == nil || node.Constraint.Size == nil {
		out := asn1.BitString{}
		for {
			n, frag, err := d.readSmallLength(r)
			if err != nil {
				return nil, err
			}
			if d.aligned && n > 0 {
				r.align()
			}
			chunk, err := r.readBitField(n)
			if err != nil {
				return nil, err
			}
			out = appendBits(out, chunk, n)
			if !frag {
				return out, nil
			}
		}
	}

	n, err := d.readSize(r, node, path)
	if err != nil {
		return nil, err
	}
	if n < 0 {
		return nil, d.errBad(r, path, "fragmented BIT STRING unsupported in this position")
	}
	if d.aligned && (!h.SizeBounded || h.ExtensibleConstraint || h.SizeHi > 16) {
		r.align()
	}
	data, err := r.readBitField(n)
	if err != nil {
		return nil, err
	}
	return asn1.BitString{Bytes: data, BitLength: n}, nil
}

// appendBits concatenates a packed chunk of n bits onto a bit string.
func appendBits(dst asn1.BitString, chunk []byte, n int) asn1.BitString {
	for i := 0; i < n; i++ {
		if dst.BitLength%8 == 0 {
			dst.Bytes = append(dst.Bytes, 0)
		}
		if chunk[i/8]&(0x80>>(i%8)) != 0 {
			dst.Bytes[dst.BitLength/8] |= 0x80 >> (dst.BitLength % 8)
		}
		dst.BitLength++
	}
	return dst
}

func (d *perDecoder) decodeOctetString(r *reader, node *asn1.Type, path asn1.Path) (any, error) {
	h := node.Hints

	if h.FixedSize && h.SizeHi <= 65536 {
		if h.SizeHi <= 2 {
			data, err := r.readBitField(int(h.SizeLo) * 8)
			if err != nil {
				return nil, err
			}
			return data, nil
		}
		if d.aligned {
			r.align()
		}
		return r.readBytes(int(h.SizeLo))
	}

	if node.Constraint == nil || node.Constraint.Size == nil {
		out, err := d.readLengthAndBytes(r)
		if err != nil {
			return nil, err
		}
		cp := make([]byte, len(out))
		copy(cp, out)
		return cp, nil
	}

	n, err := d.readSize(r, node, path)
	if err != nil {
		return nil, err
	}
	if n < 0 {
		return nil, d.errBad(r, path, "fragmented OCTET STRING unsupported in this position")
	}
	if d.aligned {
		r.align()
	}
	out, err := r.readBytes(n)
	if err != nil {
		return nil, err
	}
	cp := make([]byte, len(out))
	copy(cp, out)
	return cp, nil
}

func (d *perDecoder) decodeString(r *reader, node *asn1.Type, path asn1.Path) (any, error) {
	h := node.Hints

	if h.CharBits == 0 {
		if node.Constraint == nil || node.Constraint.Size == nil {
			b, err := d.readLengthAndBytes(r)
			if err != nil {
				return nil, err
			}
			return string(b), nil
		}
		n, err := d.readSize(r, node, path)
		if err != nil {
			return nil, err
		}
		if n < 0 {
			return nil, d.errBad(r, path, "fragmented string unsupported in this position")
		}
		if d.aligned {
			r.align()
		}
		b, err := r.readBytes(n)
		if err != nil {
			return nil, err
		}
		return string(b), nil
	}

	n, err := d.readSize(r, node, path)
	if err != nil {
		return nil, err
	}
	if n < 0 {
		return nil, d.errBad(r, path, "fragmented string unsupported in this position")
	}

	width := h.CharBits
	if d.aligned {
		width = h.AlignedCharBits
		if !(h.FixedSize && int64(n)*int64(width) <= 16) {
			r.align()
		}
	}
	alphabet := []rune(h.Alphabet)
	runes := make([]rune, 0, n)
	for i := 0; i < n; i++ {
		code, err := r.readBits(width)
		if err != nil {
			return nil, err
		}
		if h.IndexedChars {
			if code >= uint64(len(alphabet)) {
				return nil, d.errBad(r, path, "character index out of alphabet")
			}
			runes = append(runes, alphabet[code])
		} else {
			runes = append(runes, rune(code))
		}
	}
	return string(runes), nil
}

func (d *perDecoder) decodeStructured(r *reader, node *asn1.Type, path asn1.Path) (any, error) {
	extPresent := false
	if node.Extensible {
		bit, err := r.readBit()
		if err != nil {
			return nil, err
		}
		extPresent = bit == 1
	}

	present := make(map[string]bool)
	for _, idx := range node.Hints.OptionalIdx {
		bit, err := r.readBit()
		if err != nil {
			return nil, err
		}
		present[node.Members[idx].Name] = bit == 1
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
		v, err := d.decodeValue(r, m.Type, path.Child(m.Name))
		if err != nil {
			return nil, err
		}
		out[m.Name] = v
	}

	if !extPresent {
		return out, nil
	}

	countM1, err := d.readNormallySmall(r)
	if err != nil {
		return nil, err
	}
	count := int(countM1) + 1
	groupBits := make([]bool, count)
	for i := 0; i < count; i++ {
		bit, err := r.readBit()
		if err != nil {
			return nil, err
		}
		groupBits[i] = bit == 1
	}

	maxKnown := 0
	for i := range node.Members {
		if node.Members[i].ExtGroup > maxKnown {
			maxKnown = node.Members[i].ExtGroup
		}
	}

	for g := 1; g <= count; g++ {
		if !groupBits[g-1] {
			continue
		}
		content, err := d.readOpenContent(r)
		if err != nil {
			return nil, err
		}
		if g > maxKnown {
			// Future extension group: skipped.
			continue
		}
		sub := &reader{data: content, path: path}
		var groupMembers []*asn1.Member
		for i := range node.Members {
			if node.Members[i].ExtGroup == g {
				groupMembers = append(groupMembers, &node.Members[i])
			}
		}
		if len(groupMembers) == 1 && !groupMembers[0].Optional && groupMembers[0].Default == nil {
			m := groupMembers[0]
			v, err := d.decodeValue(sub, m.Type, path.Child(m.Name))
			if err != nil {
				return nil, err
			}
			out[m.Name] = v
			continue
		}
		groupPresent := make(map[string]bool)
		for _, m := range groupMembers {
			if m.Optional || m.Default != nil {
				bit, err := sub.readBit()
				if err != nil {
					return nil, err
				}
				groupPresent[m.Name] = bit == 1
			}
		}
		for _, m := range groupMembers {
			if (m.Optional || m.Default != nil) && !groupPresent[m.Name] {
				if m.Default != nil {
					out[m.Name] = m.Default
				}
				continue
			}
			v, err := d.decodeValue(sub, m.Type, path.Child(m.Name))
			if err != nil {
				return nil, err
			}
			out[m.Name] = v
		}
	}
	return out, nil
}

func (d *perDecoder) decodeChoice(r *reader, node *asn1.Type, path asn1.Path) (any, error) {
	if node.Extensible {
		bit, err := r.readBit()
		if err != nil {
			return nil, err
		}
		if bit == 1 {
			idx, err := d.readNormallySmall(r)
			if err != nil {
				return nil, err
			}
			content, err := d.readOpenContent(r)
			if err != nil {
				return nil, err
			}
			xi := 0
			for i := range node.Members {
				m := &node.Members[i]
				if m.ExtGroup == 0 {
					continue
				}
				if uint64(xi) == idx {
					sub := &reader{data: content, path: path}
					v, err := d.decodeValue(sub, m.Type, path.Child(m.Name))
					if err != nil {
						return nil, err
					}
					return asn1.Choice{Alt: m.Name, Value: v}, nil
				}
				xi++
			}
			return nil, &asn1.DecodeError{Kind: asn1.DecodeUnknownAlternative,
				Offset: r.byteOffset(), Path: path,
				Message: "unknown extension alternative"}
		}
	}

	idx, err := d.readConstrainedWhole(r, uint64(node.Hints.RootAlternatives))
	if err != nil {
		return nil, err
	}
	ri := 0
	for i := range node.Members {
		m := &node.Members[i]
		if m.ExtGroup != 0 {
			continue
		}
		if uint64(ri) == idx {
			v, err := d.decodeValue(r, m.Type, path.Child(m.Name))
			if err != nil {
				return nil, err
			}
			return asn1.Choice{Alt: m.Name, Value: v}, nil
		}
		ri++
	}
	return nil, &asn1.DecodeError{Kind: asn1.DecodeUnknownAlternative,
		Offset: r.byteOffset(), Path: path, Message: "alternative index out of range"}
}

func (d *perDecoder) decodeOf(r *reader, node *asn1.Type, path asn1.Path) (any, error) {
	h := node.Hints
	out := []any{}

	if h.SizeBounded && h.SizeHi < 65536 {
		n, err := d.readSize(r, node, path)
		if err != nil {
			return nil, err
		}
		for i := 0; i < n; i++ {
			v, err := d.decodeValue(r, node.Element, path.Index(i))
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		return out, nil
	}

	// Unbounded counts may arrive fragmented.
	for {
		n, frag, err := d.readSmallLength(r)
		if err != nil {
			return nil, err
		}
		for i := 0; i < n; i++ {
			v, err := d.decodeValue(r, node.Element, path.Index(len(out)))
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		if !frag {
			break
		}
	}
	return out, nil
}
