// Package xer implements the basic XML Encoding Rules (X.693 subset)
// over the compiled type model: the XML value notation of primitives,
// sequences, choices, and lists, without attributes or canonical mode.
package xer

import (
	"bytes"
	"encoding/hex"
	"encoding/xml"
	"fmt"
	"math"
	"math/big"
	"strings"

	"github.com/golangasn1/goasn1/asn1"
)

// Encode encodes a value as an XML document rooted at the type name.
func Encode(s *asn1.Schema, id asn1.TypeID, v any) ([]byte, error) {
	e := &encoder{schema: s}
	var out bytes.Buffer
	root := s.Type(id).Name
	if root == "" {
		root = "value"
	}
	if err := e.element(&out, root, id, v, asn1.Path{root}); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

type encoder struct {
	schema *asn1.Schema
}

func (e *encoder) element(out *bytes.Buffer, name string, id asn1.TypeID, v any, path asn1.Path) error {
	fmt.Fprintf(out, "<%s>", name)
	if err := e.body(out, id, v, path); err != nil {
		return err
	}
	fmt.Fprintf(out, "</%s>", name)
	return nil
}

func (e *encoder) body(out *bytes.Buffer, id asn1.TypeID, v any, path asn1.Path) error {
	node := e.schema.Type(id)

	switch node.Kind {
	case asn1.KindBoolean:
		b, ok := v.(bool)
		if !ok {
			return badShape(path, "BOOLEAN expects bool")
		}
		if b {
			out.WriteString("<true/>")
		} else {
			out.WriteString("<false/>")
		}
		return nil

	case asn1.KindNull:
		return nil

	case asn1.KindInteger:
		n, ok := asn1.ToBigInt(v)
		if !ok {
			return badShape(path, "INTEGER expects an integer")
		}
		out.WriteString(n.String())
		return nil

	case asn1.KindEnumerated:
		switch x := v.(type) {
		case string:
			fmt.Fprintf(out, "<%s/>", x)
			return nil
		default:
			n, ok := asn1.ToBigInt(v)
			if !ok {
				return badShape(path, "ENUMERATED expects a label or integer")
			}
			if label, found := node.LabelFor(n.Int64()); found {
				fmt.Fprintf(out, "<%s/>", label)
				return nil
			}
			out.WriteString(n.String())
			return nil
		}

	case asn1.KindReal:
		f, ok := v.(float64)
		if !ok {
			return badShape(path, "REAL expects float64")
		}
		switch {
		case math.IsInf(f, 1):
			out.WriteString("<PLUS-INFINITY/>")
		case math.IsInf(f, -1):
			out.WriteString("<MINUS-INFINITY/>")
		case math.IsNaN(f):
			out.WriteString("<NOT-A-NUMBER/>")
		default:
			fmt.Fprintf(out, "%g", f)
		}
		return nil

	case asn1.KindBitString:
		bs, ok := v.(asn1.BitString)
		if !ok {
			return badShape(path, "BIT STRING expects asn1.BitString")
		}
		for i := 0; i < bs.BitLength; i++ {
			out.WriteByte('0' + byte(bs.Bit(i)))
		}
		return nil

	case asn1.KindOctetString, asn1.KindAny:
		b, ok := v.([]byte)
		if !ok {
			return badShape(path, "OCTET STRING expects []byte")
		}
		out.WriteString(strings.ToUpper(hex.EncodeToString(b)))
		return nil

	case asn1.KindObjectIdentifier, asn1.KindRelativeOID:
		oid, ok := v.(asn1.OID)
		if !ok {
			return badShape(path, "OBJECT IDENTIFIER expects asn1.OID")
		}
		out.WriteString(oid.String())
		return nil

	case asn1.KindCharacterString, asn1.KindUTCTime, asn1.KindGeneralizedTime,
		asn1.KindDate, asn1.KindTimeOfDay, asn1.KindDateTime,
		asn1.KindObjectDescriptor:
		s, ok := v.(string)
		if !ok {
			return badShape(path, "character string expects string")
		}
		xml.EscapeText(out, []byte(s))
		return nil

	case asn1.KindSequence, asn1.KindSet:
		fields, ok := v.(map[string]any)
		if !ok {
			return badShape(path, node.Kind.String()+" expects map[string]any")
		}
		for i := range node.Members {
			m := &node.Members[i]
			mv, present := fields[m.Name]
			if !present || (m.Default != nil && asn1.ValueEqual(mv, m.Default)) {
				continue
			}
			if err := e.element(out, m.Name, m.Type, mv, path.Child(m.Name)); err != nil {
				return err
			}
		}
		return nil

	case asn1.KindChoice:
		choice, ok := v.(asn1.Choice)
		if !ok {
			return badShape(path, "CHOICE expects asn1.Choice")
		}
		m, found := node.MemberByName(choice.Alt)
		if !found {
			return &asn1.EncodeError{Kind: asn1.EncodeUnknownAlternative,
				Path: path, Message: "unknown alternative " + choice.Alt}
		}
		return e.element(out, choice.Alt, m.Type, choice.Value, path.Child(choice.Alt))

	case asn1.KindSequenceOf, asn1.KindSetOf:
		elements, ok := v.([]any)
		if !ok {
			return badShape(path, node.Kind.String()+" expects []any")
		}
		elemName := e.schema.Type(node.Element).Name
		if elemName == "" {
			elemName = strings.TrimSpace(e.schema.Type(node.Element).Kind.String())
			elemName = strings.ReplaceAll(elemName, " ", "_")
		}
		for i, el := range elements {
			if err := e.element(out, elemName, node.Element, el, path.Index(i)); err != nil {
				return err
			}
		}
		return nil
	}

	return &asn1.EncodeError{Kind: asn1.EncodeUnsupported, Path: path,
		Message: "unsupported kind " + node.Kind.String()}
}

func badShape(path asn1.Path, msg string) error {
	return &asn1.EncodeError{Kind: asn1.EncodeBadShape, Path: path, Message: msg}
}

// Decode parses one XML document produced by Encode.
func Decode(s *asn1.Schema, id asn1.TypeID, data []byte) (any, int, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	path := asn1.Path{s.Type(id).Name}

	if _, err := nextStart(dec); err != nil {
		return nil, 0, &asn1.DecodeError{Kind: asn1.DecodeBadValue, Path: path,
			Message: "invalid XML: " + err.Error()}
	}
	d := &decoder{schema: s, dec: dec}
	v, err := d.value(id, path)
	if err != nil {
		return nil, 0, err
	}
	return v, int(dec.InputOffset()), nil
}

type decoder struct {
	schema *asn1.Schema
	dec    *xml.Decoder
}

func nextStart(dec *xml.Decoder) (xml.StartElement, error) {
	for {
		tok, err := dec.Token()
		if err != nil {
			return xml.StartElement{}, err
		}
		if start, ok := tok.(xml.StartElement); ok {
			return start, nil
		}
	}
}

func (d *decoder) bad(path asn1.Path, msg string) error {
	return &asn1.DecodeError{Kind: asn1.DecodeBadValue, Path: path, Message: msg}
}

// xmlNode holds what an element contains up to its end tag: its character
// data plus its child elements, each read recursively by readNode.
type xmlNode struct {
	text     string
	children []childElem
}

type childElem struct {
	name  string
	inner xmlNode
}

func (d *decoder) readNode(path asn1.Path) (xmlNode, error) {
	var node xmlNode
	for {
		tok, err := d.dec.Token()
		if err != nil {
			return node, d.bad(path, "unexpected end of XML")
		}
		switch t := tok.(type) {
		case xml.CharData:
			node.text += string(t)
		case xml.StartElement:
			inner, err := d.readNode(path)
			if err != nil {
				return node, err
			}
			node.children = append(node.children, childElem{name: t.Name.Local, inner: inner})
		case xml.EndElement:
			return node, nil
		}
	}
}

func (d *decoder) value(id asn1.TypeID, path asn1.Path) (any, error) {
	node, err := d.readNode(path)
	if err != nil {
		return nil, err
	}
	return d.interpret(id, node, path)
}

func (d *decoder) interpret(id asn1.TypeID, n xmlNode, path asn1.Path) (any, error) {
	t := d.schema.Type(id)
	text := strings.TrimSpace(n.text)

	switch t.Kind {
	case asn1.KindBoolean:
		if len(n.children) == 1 {
			switch n.children[0].name {
			case "true":
				return true, nil
			case "false":
				return false, nil
			}
		}
		return nil, d.bad(path, "expected <true/> or <false/>")

	case asn1.KindNull:
		return nil, nil

	case asn1.KindInteger:
		v, ok := new(big.Int).SetString(text, 10)
		if !ok {
			return nil, d.bad(path, "invalid integer "+text)
		}
		return asn1.NormalizeInt(v), nil

	case asn1.KindEnumerated:
		if len(n.children) == 1 {
			return n.children[0].name, nil
		}
		v, ok := new(big.Int).SetString(text, 10)
		if !ok {
			return nil, d.bad(path, "invalid enumeration")
		}
		if label, found := t.LabelFor(v.Int64()); found {
			return label, nil
		}
		return v.Int64(), nil

	case asn1.KindReal:
		if len(n.children) == 1 {
			switch n.children[0].name {
			case "PLUS-INFINITY":
				return math.Inf(1), nil
			case "MINUS-INFINITY":
				return math.Inf(-1), nil
			case "NOT-A-NUMBER":
				return math.NaN(), nil
			}
		}
		var f float64
		if _, err := fmt.Sscanf(text, "%g", &f); err != nil {
			return nil, d.bad(path, "invalid real "+text)
		}
		return f, nil

	case asn1.KindBitString:
		bits := strings.Map(dropSpace, text)
		out := asn1.BitString{BitLength: len(bits)}
		out.Bytes = make([]byte, (len(bits)+7)/8)
		for i, c := range bits {
			switch c {
			case '1':
				out.Bytes[i/8] |= 0x80 >> (i % 8)
			case '0':
			default:
				return nil, d.bad(path, "invalid bit "+string(c))
			}
		}
		return out, nil

	case asn1.KindOctetString, asn1.KindAny:
		b, err := hex.DecodeString(strings.Map(dropSpace, text))
		if err != nil {
			return nil, d.bad(path, "invalid hex")
		}
		return b, nil

	case asn1.KindObjectIdentifier, asn1.KindRelativeOID:
		var oid asn1.OID
		for _, part := range strings.Split(text, ".") {
			v, ok := new(big.Int).SetString(part, 10)
			if !ok || !v.IsUint64() {
				return nil, d.bad(path, "invalid OID arc "+part)
			}
			oid = append(oid, v.Uint64())
		}
		return oid, nil

	case asn1.KindCharacterString, asn1.KindUTCTime, asn1.KindGeneralizedTime,
		asn1.KindDate, asn1.KindTimeOfDay, asn1.KindDateTime,
		asn1.KindObjectDescriptor:
		return n.text, nil

	case asn1.KindSequence, asn1.KindSet:
		out := make(map[string]any, len(n.children))
		for _, child := range n.children {
			m, found := t.MemberByName(child.name)
			if !found {
				if t.Extensible {
					continue
				}
				return nil, d.bad(path, "unknown member "+child.name)
			}
			v, err := d.interpret(m.Type, child.inner, path.Child(child.name))
			if err != nil {
				return nil, err
			}
			out[child.name] = v
		}
		for i := range t.Members {
			m := &t.Members[i]
			if _, present := out[m.Name]; !present && m.Default != nil {
				out[m.Name] = m.Default
			}
		}
		return out, nil

	case asn1.KindChoice:
		if len(n.children) != 1 {
			return nil, d.bad(path, "CHOICE expects exactly one child element")
		}
		child := n.children[0]
		m, found := t.MemberByName(child.name)
		if !found {
			return nil, &asn1.DecodeError{Kind: asn1.DecodeUnknownAlternative,
				Path: path, Message: "unknown alternative " + child.name}
		}
		v, err := d.interpret(m.Type, child.inner, path.Child(child.name))
		if err != nil {
			return nil, err
		}
		return asn1.Choice{Alt: child.name, Value: v}, nil

	case asn1.KindSequenceOf, asn1.KindSetOf:
		out := []any{}
		for _, child := range n.children {
			v, err := d.interpret(t.Element, child.inner, path.Index(len(out)))
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		return out, nil
	}

	return nil, &asn1.DecodeError{Kind: asn1.DecodeUnsupported, Path: path,
		Message: "unsupported kind " + t.Kind.String()}
}

func dropSpace(r rune) rune {
	if r == ' ' || r == '\t' || r == '\n' || r == '\r' {
		return -1
	}
	return r
}
