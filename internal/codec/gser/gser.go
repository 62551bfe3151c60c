// Package gser prints values in the Generic String Encoding Rules form
// of RFC 3641. Like the system it derives from, GSER is a one-way
// developer-facing output: Decode always reports Unsupported.
package gser

import (
	"bytes"
	"fmt"
	"math"
	"strings"

	"github.com/golangasn1/goasn1/asn1"
)

// Encode renders a value in GSER text.
func Encode(s *asn1.Schema, id asn1.TypeID, v any) ([]byte, error) {
	var out bytes.Buffer
	if err := render(s, id, v, &out, asn1.Path{s.Type(id).Name}); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

// Decode is not provided for GSER.
func Decode(s *asn1.Schema, id asn1.TypeID, data []byte) (any, int, error) {
	return nil, 0, &asn1.DecodeError{
		Kind:    asn1.DecodeUnsupported,
		Path:    asn1.Path{s.Type(id).Name},
		Message: "GSER decoding is not supported",
	}
}

func render(s *asn1.Schema, id asn1.TypeID, v any, out *bytes.Buffer, path asn1.Path) error {
	node := s.Type(id)

	switch node.Kind {
	case asn1.KindBoolean:
		b, ok := v.(bool)
		if !ok {
			return badShape(path, "BOOLEAN expects bool")
		}
		if b {
			out.WriteString("TRUE")
		} else {
			out.WriteString("FALSE")
		}
		return nil

	case asn1.KindNull:
		out.WriteString("NULL")
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
			out.WriteString(x)
			return nil
		default:
			n, ok := asn1.ToBigInt(v)
			if !ok {
				return badShape(path, "ENUMERATED expects a label or integer")
			}
			if label, found := node.LabelFor(n.Int64()); found {
				out.WriteString(label)
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
			out.WriteString("PLUS-INFINITY")
		case math.IsInf(f, -1):
			out.WriteString("MINUS-INFINITY")
		case math.IsNaN(f):
			out.WriteString("NOT-A-NUMBER")
		default:
			fmt.Fprintf(out, "%g", f)
		}
		return nil

	case asn1.KindBitString:
		bs, ok := v.(asn1.BitString)
		if !ok {
			return badShape(path, "BIT STRING expects asn1.BitString")
		}
		out.WriteString(bs.String())
		return nil

	case asn1.KindOctetString, asn1.KindAny:
		b, ok := v.([]byte)
		if !ok {
			return badShape(path, "OCTET STRING expects []byte")
		}
		fmt.Fprintf(out, "'%X'H", b)
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
		str, ok := v.(string)
		if !ok {
			return badShape(path, "character string expects string")
		}
		out.WriteByte('"')
		out.WriteString(strings.ReplaceAll(str, `"`, `""`))
		out.WriteByte('"')
		return nil

	case asn1.KindSequence, asn1.KindSet:
		fields, ok := v.(map[string]any)
		if !ok {
			return badShape(path, node.Kind.String()+" expects map[string]any")
		}
		out.WriteString("{ ")
		first := true
		for i := range node.Members {
			m := &node.Members[i]
			mv, present := fields[m.Name]
			if !present {
				continue
			}
			if !first {
				out.WriteString(", ")
			}
			first = false
			out.WriteString(m.Name)
			out.WriteByte(' ')
			if err := render(s, m.Type, mv, out, path.Child(m.Name)); err != nil {
				return err
			}
		}
		out.WriteString(" }")
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
		out.WriteString(choice.Alt)
		out.WriteString(" : ")
		return render(s, m.Type, choice.Value, out, path.Child(choice.Alt))

	case asn1.KindSequenceOf, asn1.KindSetOf:
		elements, ok := v.([]any)
		if !ok {
			return badShape(path, node.Kind.String()+" expects []any")
		}
		out.WriteString("{ ")
		for i, el := range elements {
			if i > 0 {
				out.WriteString(", ")
			}
			if err := render(s, node.Element, el, out, path.Index(i)); err != nil {
				return err
			}
		}
		out.WriteString(" }")
		return nil
	}

	return &asn1.EncodeError{Kind: asn1.EncodeUnsupported, Path: path,
		Message: "unsupported kind " + node.Kind.String()}
}

func badShape(path asn1.Path, msg string) error {
	return &asn1.EncodeError{Kind: asn1.EncodeBadShape, Path: path, Message: msg}
}
