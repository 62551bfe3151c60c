package per

import (
	"math/big"
	"math/bits"
	"strings"

	"github.com/golangasn1/goasn1/asn1"
	"github.com/golangasn1/goasn1/internal/codec/ber"
)

// fragmentUnit is the block size of the fragmented length determinant
// (X.691 §11.9.3.8).
const fragmentUnit = 16384

// Encode encodes a value of the identified type in aligned PER or UPER.
func Encode(s *asn1.Schema, id asn1.TypeID, v any, aligned bool) ([]byte, error) {
	e := &encoder{schema: s, aligned: aligned}
	w := &writer{}
	if err := e.encodeValue(w, id, v, asn1.Path{s.Type(id).Name}); err != nil {
		return nil, err
	}
	return w.bytes(), nil
}

type encoder struct {
	schema  *asn1.Schema
	aligned bool
}

func (e *encoder) badShape(path asn1.Path, msg string) error {
	return &asn1.EncodeError{Kind: asn1.EncodeBadShape, Path: path, Message: msg}
}

func (e *encoder) encodeValue(w *writer, id asn1.TypeID, v any, path asn1.Path) error {
	node := e.schema.Type(id)

	switch node.Kind {
	case asn1.KindBoolean:
		b, ok := v.(bool)
		if !ok {
			return e.badShape(path, "BOOLEAN expects bool")
		}
		if b {
			w.writeBit(1)
		} else {
			w.writeBit(0)
		}
		return nil

	case asn1.KindNull:
		if v != nil {
			return e.badShape(path, "NULL expects nil")
		}
		return nil

	case asn1.KindInteger:
		return e.encodeInteger(w, node, v, path)

	case asn1.KindEnumerated:
		return e.encodeEnumerated(w, node, v, path)

	case asn1.KindReal:
		f, ok := toFloat(v)
		if !ok {
			return e.badShape(path, "REAL expects float64")
		}
		return e.writeOpenContent(w, ber.EncodeRealContent(f))

	case asn1.KindBitString:
		return e.encodeBitString(w, node, v, path)

	case asn1.KindOctetString, asn1.KindAny:
		b, ok := v.([]byte)
		if !ok {
			return e.badShape(path, node.Kind.String()+" expects []byte")
		}
		if node.Kind == asn1.KindAny {
			return e.writeOpenContent(w, b)
		}
		return e.encodeOctetString(w, node, b, path)

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
		return e.writeOpenContent(w, content)

	case asn1.KindRelativeOID:
		oid, ok := v.(asn1.OID)
		if !ok {
			return e.badShape(path, "RELATIVE-OID expects asn1.OID")
		}
		return e.writeOpenContent(w, ber.EncodeRelativeOIDContent(oid))

	case asn1.KindCharacterString, asn1.KindUTCTime, asn1.KindGeneralizedTime,
		asn1.KindDate, asn1.KindTimeOfDay, asn1.KindDateTime,
		asn1.KindObjectDescriptor:
		s, ok := v.(string)
		if !ok {
			return e.badShape(path, "character string expects string")
		}
		return e.encodeString(w, node, s, path)

	case asn1.KindSequence, asn1.KindSet:
		return e.encodeStructured(w, node, v, path)

	case asn1.KindChoice:
		return e.encodeChoice(w, node, v, path)

	case asn1.KindSequenceOf, asn1.KindSetOf:
		return e.encodeOf(w, node, v, path)
	}

	return &asn1.EncodeError{Kind: asn1.EncodeUnsupported, Path: path,
		Message: "unsupported kind " + node.Kind.String()}
}

// === whole numbers ===

// writeConstrainedWhole writes offset within a range of rng values per
// X.691 §11.5 (unaligned) and §13 (aligned).
func (e *encoder) writeConstrainedWhole(w *writer, offset, rng uint64) {
	if rng <= 1 {
		return
	}
	nbits := bits.Len64(rng - 1)
	if !e.aligned {
		w.writeBits(offset, nbits)
		return
	}
	switch {
	case rng <= 255:
		w.writeBits(offset, nbits)
	case rng == 256:
		w.align()
		w.writeBits(offset, 8)
	case rng <= 65536:
		w.align()
		w.writeBits(offset, 16)
	default:
		octets := (bits.Len64(offset) + 7) / 8
		if octets == 0 {
			octets = 1
		}
		maxOctets := uint64((bits.Len64(rng-1) + 7) / 8)
		e.writeConstrainedWhole(w, uint64(octets-1), maxOctets)
		w.align()
		for i := octets - 1; i >= 0; i-- {
			w.writeBits(offset>>(8*i), 8)
		}
	}
}

// writeNormallySmall writes a normally small non-negative number (X.691
// §11.6).
func (e *encoder) writeNormallySmall(w *writer, n uint64) {
	if n < 64 {
		w.writeBit(0)
		w.writeBits(n, 6)
		return
	}
	w.writeBit(1)
	content := ber.EncodeIntContent(new(big.Int).SetUint64(n))
	// Semi-constrained with lower bound 0: unsigned octets.
	for len(content) > 1 && content[0] == 0 {
		content = content[1:]
	}
	e.writeLengthAndBytes(w, content)
}

// writeSmallLength writes an unconstrained length determinant below the
// fragmentation threshold.
func (e *encoder) writeSmallLength(w *writer, n int) {
	if e.aligned {
		w.align()
	}
	if n < 128 {
		w.writeBits(uint64(n), 8)
		return
	}
	w.writeBits(0x8000|uint64(n), 16)
}

// writeCountedPayload writes a count with fragmentation when needed,
// emitting items through the callback.
func (e *encoder) writeCountedPayload(w *writer, n int, emit func(from, count int)) {
	from := 0
	for n-from >= fragmentUnit {
		m := (n - from) / fragmentUnit
		if m > 4 {
			m = 4
		}
		if e.aligned {
			w.align()
		}
		w.writeBits(0xC0|uint64(m), 8)
		emit(from, m*fragmentUnit)
		from += m * fragmentUnit
	}
	e.writeSmallLength(w, n-from)
	if n-from > 0 {
		emit(from, n-from)
	}
}

// writeLengthAndBytes writes a length determinant followed by octets,
// fragmenting very long payloads.
func (e *encoder) writeLengthAndBytes(w *writer, b []byte) {
	e.writeCountedPayload(w, len(b), func(from, count int) {
		if e.aligned {
			w.align()
		}
		w.writeBytes(b[from : from+count])
	})
}

// writeOpenContent writes a payload as an open type: length-prefixed,
// octet-aligned.
func (e *encoder) writeOpenContent(w *writer, content []byte) error {
	if len(content) == 0 {
		content = []byte{0x00}
	}
	e.writeLengthAndBytes(w, content)
	return nil
}

func (e *encoder) encodeInteger(w *writer, node *asn1.Type, v any, path asn1.Path) error {
	n, ok := asn1.ToBigInt(v)
	if !ok {
		return e.badShape(path, "INTEGER expects an integer")
	}
	c := node.Constraint
	h := node.Hints

	inRoot := c == nil || c.Values == nil || c.Values.Contains(n)
	if !inRoot && !(c != nil && c.Extensible) {
		return &asn1.ConstraintViolation{Path: path, Value: n.String(),
			Root: constraintString(c)}
	}
	if h.ExtensibleConstraint && c != nil && c.Values != nil {
		if inRoot {
			w.writeBit(0)
		} else {
			w.writeBit(1)
			return e.writeUnconstrainedInt(w, n)
		}
	}

	switch {
	case h.Bounded && inRoot:
		offset := new(big.Int).Sub(n, h.Lo).Uint64()
		span := new(big.Int).Sub(h.Hi, h.Lo).Uint64()
		e.writeConstrainedWhole(w, offset, span+1)
		return nil
	case h.SemiConstrained && inRoot:
		off := new(big.Int).Sub(n, h.Lo)
		b := off.Bytes()
		if len(b) == 0 {
			b = []byte{0x00}
		}
		e.writeLengthAndBytes(w, b)
		return nil
	default:
		return e.writeUnconstrainedInt(w, n)
	}
}

func (e *encoder) writeUnconstrainedInt(w *writer, n *big.Int) error {
	e.writeLengthAndBytes(w, ber.EncodeIntContent(n))
	return nil
}

func (e *encoder) encodeEnumerated(w *writer, node *asn1.Type, v any, path asn1.Path) error {
	_, number, err := enumValue(node, v, path)
	if err != nil {
		return err
	}

	rootIdx := -1
	for i, nv := range node.NamedValues {
		if nv.Value == number {
			rootIdx = i
			break
		}
	}
	if node.Extensible {
		if rootIdx >= 0 {
			w.writeBit(0)
			e.writeConstrainedWhole(w, uint64(rootIdx), uint64(len(node.NamedValues)))
			return nil
		}
		for i, nv := range node.ExtNamedValues {
			if nv.Value == number {
				w.writeBit(1)
				e.writeNormallySmall(w, uint64(i))
				return nil
			}
		}
		return &asn1.EncodeError{Kind: asn1.EncodeValueOutOfRange, Path: path,
			Message: "value not in enumeration"}
	}
	if rootIdx < 0 {
		return &asn1.EncodeError{Kind: asn1.EncodeValueOutOfRange, Path: path,
			Message: "value not in enumeration"}
	}
	e.writeConstrainedWhole(w, uint64(rootIdx), uint64(len(node.NamedValues)))
	return nil
}

// writeSize decides how a length is encoded for string-like and OF types.
func (e *encoder) writeSize(w *writer, node *asn1.Type, n int, path asn1.Path) (err error) {
	c := node.Constraint
	h := node.Hints

	inRoot := c == nil || c.Size == nil || c.AllowsSize(n)
	if !inRoot && !(c != nil && c.Extensible) {
		return &asn1.ConstraintViolation{Path: path,
			Value: big.NewInt(int64(n)).String(), Root: constraintString(c)}
	}
	if h.ExtensibleConstraint && c != nil && c.Size != nil {
		if inRoot {
			w.writeBit(0)
		} else {
			w.writeBit(1)
			e.writeSmallLength(w, n)
			return nil
		}
	}
	if h.SizeBounded && h.SizeHi < 65536 && inRoot {
		if h.SizeLo == h.SizeHi {
			return nil
		}
		e.writeConstrainedWhole(w, uint64(n)-uint64(h.SizeLo), uint64(h.SizeHi-h.SizeLo)+1)
		return nil
	}
	e.writeSmallLength(w, n)
	return nil
}

func (e *encoder) encodeBitString(w *writer, node *asn1.Type, v any, path asn1.Path) error {
	bs, ok := v.(asn1.BitString)
	if !ok {
		if raw, isBytes := v.([]byte); isBytes {
			bs = asn1.BitString{Bytes: raw, BitLength: len(raw) * 8}
		} else {
			return e.badShape(path, "BIT STRING expects asn1.BitString")
		}
	}
	h := node.Hints

	if h.FixedSize && h.SizeHi <= 65536 && int64(bs.BitLength) == h.SizeLo {
		if e.aligned && h.SizeHi > 16 {
			w.align()
		}
		w.writeBitField(bs.Bytes, bs.BitLength)
		return nil
	}

	if node.Constraint == nil || node.Constraint.Size == nil {
		// Unconstrained bit counts may exceed one length block.
		e.writeCountedPayload(w, bs.BitLength, func(from, count int) {
			if e.aligned {
				w.align()
			}
			for i := from; i < from+count; i++ {
				w.writeBit(bs.Bit(i))
			}
		})
		return nil
	}

	if err := e.writeSize(w, node, bs.BitLength, path); err != nil {
		return err
	}
	if h.SizeBounded && !h.ExtensibleConstraint && h.SizeHi <= 65536 {
		if e.aligned && h.SizeHi > 16 {
			w.align()
		}
		w.writeBitField(bs.Bytes, bs.BitLength)
		return nil
	}
	if e.aligned {
		w.align()
	}
	w.writeBitField(bs.Bytes, bs.BitLength)
	return nil
}

func (e *encoder) encodeOctetString(w *writer, node *asn1.Type, b []byte, path asn1.Path) error {
	h := node.Hints

	if h.FixedSize && h.SizeHi <= 65536 && int64(len(b)) == h.SizeLo {
		if h.SizeHi <= 2 {
			// Short fixed strings stay unaligned even in aligned PER.
			w.writeBitField(b, len(b)*8)
			return nil
		}
		if e.aligned {
			w.align()
		}
		w.writeBytes(b)
		return nil
	}

	if node.Constraint == nil || node.Constraint.Size == nil {
		// Unconstrained: the fragmenting writer handles 16K+ payloads.
		e.writeLengthAndBytes(w, b)
		return nil
	}

	if err := e.writeSize(w, node, len(b), path); err != nil {
		return err
	}
	if e.aligned {
		w.align()
	}
	w.writeBytes(b)
	return nil
}

func (e *encoder) encodeString(w *writer, node *asn1.Type, s string, path asn1.Path) error {
	c := node.Constraint
	h := node.Hints

	if c != nil && !c.AllowsString(s) && !c.Extensible {
		return &asn1.ConstraintViolation{Path: path, Value: asn1.ValueString(s),
			Root: constraintString(c)}
	}

	if h.CharBits == 0 {
		// Octet-oriented string: size counts octets.
		b := []byte(s)
		if c == nil || c.Size == nil {
			e.writeLengthAndBytes(w, b)
			return nil
		}
		if err := e.writeSize(w, node, len(b), path); err != nil {
			return err
		}
		if e.aligned {
			w.align()
		}
		w.writeBytes(b)
		return nil
	}

	runes := []rune(s)
	if err := e.writeSize(w, node, len(runes), path); err != nil {
		return err
	}

	width := h.CharBits
	if e.aligned {
		width = h.AlignedCharBits
		if h.FixedSize && int64(len(runes))*int64(width) <= 16 {
			// stays bit-packed without alignment
		} else {
			w.align()
		}
	}
	for _, r := range runes {
		var code uint64
		if h.IndexedChars {
			idx := strings.IndexRune(h.Alphabet, r)
			if idx < 0 {
				return &asn1.ConstraintViolation{Path: path,
					Value: asn1.ValueString(string(r)), Root: "FROM (...)"}
			}
			code = uint64(idx)
		} else {
			code = uint64(r)
		}
		w.writeBits(code, width)
	}
	return nil
}

func (e *encoder) encodeStructured(w *writer, node *asn1.Type, v any, path asn1.Path) error {
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

	// memberPresent treats a value equal to its default as absent, which
	// canonical PER requires.
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

	if node.Extensible {
		extPresent := false
		for i := range node.Members {
			if node.Members[i].ExtGroup > 0 && memberPresent(&node.Members[i]) {
				extPresent = true
				break
			}
		}
		if extPresent {
			w.writeBit(1)
		} else {
			w.writeBit(0)
		}
		if err := e.encodeRoot(w, node, fields, memberPresent, path); err != nil {
			return err
		}
		if extPresent {
			return e.encodeExtensions(w, node, fields, memberPresent, path)
		}
		return nil
	}
	return e.encodeRoot(w, node, fields, memberPresent, path)
}

func (e *encoder) encodeRoot(w *writer, node *asn1.Type, fields map[string]any, memberPresent func(*asn1.Member) bool, path asn1.Path) error {
	for _, idx := range node.Hints.OptionalIdx {
		if memberPresent(&node.Members[idx]) {
			w.writeBit(1)
		} else {
			w.writeBit(0)
		}
	}
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
		if err := e.encodeValue(w, m.Type, fields[m.Name], path.Child(m.Name)); err != nil {
			return err
		}
	}
	return nil
}

// encodeExtensions writes the extensions-present bitmap and each present
// addition group as an open type.
func (e *encoder) encodeExtensions(w *writer, node *asn1.Type, fields map[string]any, memberPresent func(*asn1.Member) bool, path asn1.Path) error {
	maxGroup := 0
	for i := range node.Members {
		if node.Members[i].ExtGroup > maxGroup {
			maxGroup = node.Members[i].ExtGroup
		}
	}

	groupPresent := make([]bool, maxGroup+1)
	for i := range node.Members {
		m := &node.Members[i]
		if m.ExtGroup > 0 && memberPresent(m) {
			groupPresent[m.ExtGroup] = true
		}
	}

	e.writeNormallySmall(w, uint64(maxGroup-1))
	for g := 1; g <= maxGroup; g++ {
		if groupPresent[g] {
			w.writeBit(1)
		} else {
			w.writeBit(0)
		}
	}

	for g := 1; g <= maxGroup; g++ {
		if !groupPresent[g] {
			continue
		}
		sub := &writer{}
		var groupMembers []*asn1.Member
		for i := range node.Members {
			if node.Members[i].ExtGroup == g {
				groupMembers = append(groupMembers, &node.Members[i])
			}
		}
		if len(groupMembers) == 1 && !groupMembers[0].Optional && groupMembers[0].Default == nil {
			m := groupMembers[0]
			if err := e.encodeValue(sub, m.Type, fields[m.Name], path.Child(m.Name)); err != nil {
				return err
			}
		} else {
			// A group encodes like a SEQUENCE of its members.
			for _, m := range groupMembers {
				if m.Optional || m.Default != nil {
					if memberPresent(m) {
						sub.writeBit(1)
					} else {
						sub.writeBit(0)
					}
				}
			}
			for _, m := range groupMembers {
				if (m.Optional || m.Default != nil) && !memberPresent(m) {
					continue
				}
				if _, present := fields[m.Name]; !present {
					return &asn1.EncodeError{Kind: asn1.EncodeMissingMember,
						Path: path, Message: "missing member " + m.Name}
				}
				if err := e.encodeValue(sub, m.Type, fields[m.Name], path.Child(m.Name)); err != nil {
					return err
				}
			}
		}
		if err := e.writeOpenContent(w, sub.buf); err != nil {
			return err
		}
	}
	return nil
}

func (e *encoder) encodeChoice(w *writer, node *asn1.Type, v any, path asn1.Path) error {
	choice, ok := v.(asn1.Choice)
	if !ok {
		return e.badShape(path, "CHOICE expects asn1.Choice")
	}

	rootIdx, extIdx := -1, -1
	var member *asn1.Member
	ri, xi := 0, 0
	for i := range node.Members {
		m := &node.Members[i]
		if m.ExtGroup == 0 {
			if m.Name == choice.Alt {
				rootIdx, member = ri, m
			}
			ri++
		} else {
			if m.Name == choice.Alt {
				extIdx, member = xi, m
			}
			xi++
		}
	}
	if member == nil {
		return &asn1.EncodeError{Kind: asn1.EncodeUnknownAlternative, Path: path,
			Message: "unknown alternative " + choice.Alt}
	}

	mpath := path.Child(choice.Alt)
	if node.Extensible {
		if rootIdx >= 0 {
			w.writeBit(0)
			e.writeConstrainedWhole(w, uint64(rootIdx), uint64(node.Hints.RootAlternatives))
			return e.encodeValue(w, member.Type, choice.Value, mpath)
		}
		w.writeBit(1)
		e.writeNormallySmall(w, uint64(extIdx))
		sub := &writer{}
		if err := e.encodeValue(sub, member.Type, choice.Value, mpath); err != nil {
			return err
		}
		return e.writeOpenContent(w, sub.buf)
	}

	if rootIdx < 0 {
		return &asn1.EncodeError{Kind: asn1.EncodeUnknownAlternative, Path: path,
			Message: "extension alternative in a non-extensible CHOICE"}
	}
	e.writeConstrainedWhole(w, uint64(rootIdx), uint64(node.Hints.RootAlternatives))
	return e.encodeValue(w, member.Type, choice.Value, mpath)
}

func (e *encoder) encodeOf(w *writer, node *asn1.Type, v any, path asn1.Path) error {
	elements, ok := v.([]any)
	if !ok {
		return e.badShape(path, node.Kind.String()+" expects []any")
	}

	h := node.Hints
	if h.SizeBounded && h.SizeHi < 65536 && !h.ExtensibleConstraint {
		if err := e.writeSize(w, node, len(elements), path); err != nil {
			return err
		}
		for i, el := range elements {
			if err := e.encodeValue(w, node.Element, el, path.Index(i)); err != nil {
				return err
			}
		}
		return nil
	}

	if h.ExtensibleConstraint && node.Constraint != nil && node.Constraint.Size != nil {
		if err := e.writeSize(w, node, len(elements), path); err != nil {
			return err
		}
		for i, el := range elements {
			if err := e.encodeValue(w, node.Element, el, path.Index(i)); err != nil {
				return err
			}
		}
		return nil
	}

	var encodeErr error
	e.writeCountedPayload(w, len(elements), func(from, count int) {
		for i := from; i < from+count && encodeErr == nil; i++ {
			encodeErr = e.encodeValue(w, node.Element, elements[i], path.Index(i))
		}
	})
	return encodeErr
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

// enumValue maps an enum input to its label and number.
func enumValue(node *asn1.Type, v any, path asn1.Path) (string, int64, error) {
	switch x := v.(type) {
	case string:
		if n, ok := node.NamedValue(x); ok {
			return x, n, nil
		}
		return "", 0, &asn1.EncodeError{Kind: asn1.EncodeValueOutOfRange,
			Path: path, Message: "unknown enumeration label " + x}
	default:
		n, ok := asn1.ToBigInt(v)
		if !ok || !n.IsInt64() {
			return "", 0, &asn1.EncodeError{Kind: asn1.EncodeBadShape, Path: path,
				Message: "ENUMERATED expects a label or integer"}
		}
		label, _ := node.LabelFor(n.Int64())
		return label, n.Int64(), nil
	}
}

func constraintString(c *asn1.Constraint) string {
	if c == nil {
		return ""
	}
	switch {
	case c.Values != nil:
		if lo, ok := c.Values.Min(); ok {
			if hi, ok := c.Values.Max(); ok {
				return "[" + lo.String() + "," + hi.String() + "]"
			}
		}
		return "(root)"
	case c.Size != nil:
		if lo, ok := c.Size.Min(); ok {
			if hi, ok := c.Size.Max(); ok {
				return "SIZE [" + lo.String() + "," + hi.String() + "]"
			}
		}
		return "SIZE (root)"
	}
	return "(root)"
}
