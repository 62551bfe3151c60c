// Package jer implements the JSON Encoding Rules (X.697 subset) over the
// compiled type model.
//
// Shapes follow the JER conventions: BIT STRING as {"value": hex,
// "length": bits}, OCTET STRING as a hex string, CHOICE as a one-member
// object, ENUMERATED as its label (or number with numeric enums).
package jer

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"math/big"
	"strings"

	"github.com/golangasn1/goasn1/asn1"
)

// Options tunes the JSON mapping.
type Options struct {
	NumericEnums bool
}

// Encode encodes a value of the identified type as JSON text.
func Encode(s *asn1.Schema, id asn1.TypeID, v any, opts Options) ([]byte, error) {
	e := &encoder{schema: s, opts: opts}
	tree, err := e.toJSON(id, v, asn1.Path{s.Type(id).Name})
	if err != nil {
		return nil, err
	}
	return json.Marshal(tree)
}

// Decode decodes JSON text into the value shape of the identified type.
// The whole input must be one JSON value.
func Decode(s *asn1.Schema, id asn1.TypeID, data []byte, opts Options) (any, int, error) {
	var tree any
	dec := json.NewDecoder(strings.NewReader(string(data)))
	dec.UseNumber()
	if err := dec.Decode(&tree); err != nil {
		return nil, 0, &asn1.DecodeError{Kind: asn1.DecodeBadValue,
			Path: asn1.Path{s.Type(id).Name}, Message: "invalid JSON: " + err.Error()}
	}
	d := &decoder{schema: s, opts: opts}
	v, err := d.fromJSON(id, tree, asn1.Path{s.Type(id).Name})
	if err != nil {
		return nil, 0, err
	}
	return v, int(dec.InputOffset()), nil
}

type encoder struct {
	schema *asn1.Schema
	opts   Options
}

func (e *encoder) toJSON(id asn1.TypeID, v any, path asn1.Path) (any, error) {
	node := e.schema.Type(id)

	switch node.Kind {
	case asn1.KindBoolean, asn1.KindNull:
		return v, nil

	case asn1.KindInteger:
		n, ok := asn1.ToBigInt(v)
		if !ok {
			return nil, badShape(path, "INTEGER expects an integer")
		}
		return json.Number(n.String()), nil

	case asn1.KindEnumerated:
		switch x := v.(type) {
		case string:
			if e.opts.NumericEnums {
				if n, ok := node.NamedValue(x); ok {
					return json.Number(fmt.Sprint(n)), nil
				}
			}
			return x, nil
		default:
			n, ok := asn1.ToBigInt(v)
			if !ok {
				return nil, badShape(path, "ENUMERATED expects a label or integer")
			}
			if !e.opts.NumericEnums {
				if label, ok := node.LabelFor(n.Int64()); ok {
					return label, nil
				}
			}
			return json.Number(n.String()), nil
		}

	case asn1.KindReal:
		f, ok := v.(float64)
		if !ok {
			return nil, badShape(path, "REAL expects float64")
		}
		switch {
		case math.IsInf(f, 1):
			return "INF", nil
		case math.IsInf(f, -1):
			return "-INF", nil
		case math.IsNaN(f):
			return "NAN", nil
		}
		return f, nil

	case asn1.KindBitString:
		bs, ok := v.(asn1.BitString)
		if !ok {
			return nil, badShape(path, "BIT STRING expects asn1.BitString")
		}
		return map[string]any{
			"value":  strings.ToUpper(hex.EncodeToString(bs.Bytes)),
			"length": bs.BitLength,
		}, nil

	case asn1.KindOctetString, asn1.KindAny:
		b, ok := v.([]byte)
		if !ok {
			return nil, badShape(path, "OCTET STRING expects []byte")
		}
		return strings.ToUpper(hex.EncodeToString(b)), nil

	case asn1.KindObjectIdentifier, asn1.KindRelativeOID:
		oid, ok := v.(asn1.OID)
		if !ok {
			return nil, badShape(path, "OBJECT IDENTIFIER expects asn1.OID")
		}
		return oid.String(), nil

	case asn1.KindCharacterString, asn1.KindUTCTime, asn1.KindGeneralizedTime,
		asn1.KindDate, asn1.KindTimeOfDay, asn1.KindDateTime,
		asn1.KindObjectDescriptor:
		return v, nil

	case asn1.KindSequence, asn1.KindSet:
		fields, ok := v.(map[string]any)
		if !ok {
			return nil, badShape(path, node.Kind.String()+" expects map[string]any")
		}
		out := make(map[string]any, len(fields))
		for i := range node.Members {
			m := &node.Members[i]
			mv, present := fields[m.Name]
			if !present {
				continue
			}
			if m.Default != nil && asn1.ValueEqual(mv, m.Default) {
				continue
			}
			converted, err := e.toJSON(m.Type, mv, path.Child(m.Name))
			if err != nil {
				return nil, err
			}
			out[m.Name] = converted
		}
		return out, nil

	case asn1.KindChoice:
		choice, ok := v.(asn1.Choice)
		if !ok {
			return nil, badShape(path, "CHOICE expects asn1.Choice")
		}
		m, found := node.MemberByName(choice.Alt)
		if !found {
			return nil, &asn1.EncodeError{Kind: asn1.EncodeUnknownAlternative,
				Path: path, Message: "unknown alternative " + choice.Alt}
		}
		converted, err := e.toJSON(m.Type, choice.Value, path.Child(choice.Alt))
		if err != nil {
			return nil, err
		}
		return map[string]any{choice.Alt: converted}, nil

	case asn1.KindSequenceOf, asn1.KindSetOf:
		elements, ok := v.([]any)
		if !ok {
			return nil, badShape(path, node.Kind.String()+" expects []any")
		}
		out := make([]any, len(elements))
		for i, el := range elements {
			converted, err := e.toJSON(node.Element, el, path.Index(i))
			if err != nil {
				return nil, err
			}
			out[i] = converted
		}
		return out, nil
	}

	return nil, &asn1.EncodeError{Kind: asn1.EncodeUnsupported, Path: path,
		Message: "unsupported kind " + node.Kind.String()}
}

func badShape(path asn1.Path, msg string) error {
	return &asn1.EncodeError{Kind: asn1.EncodeBadShape, Path: path, Message: msg}
}

type decoder struct {
	schema *asn1.Schema
	opts   Options
}

func (d *decoder) bad(path asn1.Path, msg string) error {
	return &asn1.DecodeError{Kind: asn1.DecodeBadValue, Path: path, Message: msg}
}

func (d *decoder) fromJSON(id asn1.TypeID, tree any, path asn1.Path) (any, error) {
	node := d.schema.Type(id)

	switch node.Kind {
	case asn1.KindBoolean:
		b, ok := tree.(bool)
		if !ok {
			return nil, d.bad(path, "expected JSON boolean")
		}
		return b, nil

	case asn1.KindNull:
		if tree != nil {
			return nil, d.bad(path, "expected JSON null")
		}
		return nil, nil

	case asn1.KindInteger:
		num, ok := tree.(json.Number)
		if !ok {
			return nil, d.bad(path, "expected JSON number")
		}
		n, ok := new(big.Int).SetString(num.String(), 10)
		if !ok {
			return nil, d.bad(path, "expected integer")
		}
		return asn1.NormalizeInt(n), nil

	case asn1.KindEnumerated:
		switch x := tree.(type) {
		case string:
			return x, nil
		case json.Number:
			n, err := x.Int64()
			if err != nil {
				return nil, d.bad(path, "invalid enumeration number")
			}
			if label, ok := node.LabelFor(n); ok {
				return label, nil
			}
			return n, nil
		}
		return nil, d.bad(path, "expected enumeration label or number")

	case asn1.KindReal:
		switch x := tree.(type) {
		case json.Number:
			f, err := x.Float64()
			if err != nil {
				return nil, d.bad(path, "invalid real")
			}
			return f, nil
		case string:
			switch x {
			case "INF":
				return math.Inf(1), nil
			case "-INF":
				return math.Inf(-1), nil
			case "NAN":
				return math.NaN(), nil
			}
		}
		return nil, d.bad(path, "expected JSON number")

	case asn1.KindBitString:
		obj, ok := tree.(map[string]any)
		if !ok {
			return nil, d.bad(path, `expected {"value", "length"}`)
		}
		hexStr, _ := obj["value"].(string)
		b, err := hex.DecodeString(hexStr)
		if err != nil {
			return nil, d.bad(path, "invalid hex in BIT STRING value")
		}
		length := 0
		if num, ok := obj["length"].(json.Number); ok {
			n, err := num.Int64()
			if err != nil {
				return nil, d.bad(path, "invalid BIT STRING length")
			}
			length = int(n)
		}
		return asn1.BitString{Bytes: b, BitLength: length}, nil

	case asn1.KindOctetString, asn1.KindAny:
		hexStr, ok := tree.(string)
		if !ok {
			return nil, d.bad(path, "expected hex string")
		}
		b, err := hex.DecodeString(hexStr)
		if err != nil {
			return nil, d.bad(path, "invalid hex string")
		}
		return b, nil

	case asn1.KindObjectIdentifier, asn1.KindRelativeOID:
		s, ok := tree.(string)
		if !ok {
			return nil, d.bad(path, "expected dotted OID string")
		}
		return parseDottedOID(s, path)

	case asn1.KindCharacterString, asn1.KindUTCTime, asn1.KindGeneralizedTime,
		asn1.KindDate, asn1.KindTimeOfDay, asn1.KindDateTime,
		asn1.KindObjectDescriptor:
		s, ok := tree.(string)
		if !ok {
			return nil, d.bad(path, "expected JSON string")
		}
		return s, nil

	case asn1.KindSequence, asn1.KindSet:
		obj, ok := tree.(map[string]any)
		if !ok {
			return nil, d.bad(path, "expected JSON object")
		}
		out := make(map[string]any, len(obj))
		for i := range node.Members {
			m := &node.Members[i]
			raw, present := obj[m.Name]
			if !present {
				if m.Default != nil {
					out[m.Name] = m.Default
				}
				continue
			}
			v, err := d.fromJSON(m.Type, raw, path.Child(m.Name))
			if err != nil {
				return nil, err
			}
			out[m.Name] = v
		}
		return out, nil

	case asn1.KindChoice:
		obj, ok := tree.(map[string]any)
		if !ok || len(obj) != 1 {
			return nil, d.bad(path, "expected a one-member JSON object")
		}
		for alt, raw := range obj {
			m, found := node.MemberByName(alt)
			if !found {
				return nil, &asn1.DecodeError{Kind: asn1.DecodeUnknownAlternative,
					Path: path, Message: "unknown alternative " + alt}
			}
			v, err := d.fromJSON(m.Type, raw, path.Child(alt))
			if err != nil {
				return nil, err
			}
			return asn1.Choice{Alt: alt, Value: v}, nil
		}
		return nil, d.bad(path, "empty CHOICE object")

	case asn1.KindSequenceOf, asn1.KindSetOf:
		arr, ok := tree.([]any)
		if !ok {
			return nil, d.bad(path, "expected JSON array")
		}
		out := make([]any, len(arr))
		for i, raw := range arr {
			v, err := d.fromJSON(node.Element, raw, path.Index(i))
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil
	}

	return nil, &asn1.DecodeError{Kind: asn1.DecodeUnsupported, Path: path,
		Message: "unsupported kind " + node.Kind.String()}
}

func parseDottedOID(s string, path asn1.Path) (asn1.OID, error) {
	var oid asn1.OID
	for _, part := range strings.Split(s, ".") {
		n, ok := new(big.Int).SetString(part, 10)
		if !ok || !n.IsUint64() {
			return nil, &asn1.DecodeError{Kind: asn1.DecodeBadValue, Path: path,
				Message: "invalid OID arc " + part}
		}
		oid = append(oid, n.Uint64())
	}
	return oid, nil
}
