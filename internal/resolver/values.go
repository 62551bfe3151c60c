package resolver

import (
	"math"
	"math/big"

	"github.com/golangasn1/goasn1/asn1"
	"github.com/golangasn1/goasn1/internal/ast"
)

// wellKnownArcs resolves the standard named arcs of the OID root and its
// first levels (X.660).
var wellKnownArcs = map[string]uint64{
	"itu-t":                   0,
	"ccitt":                   0,
	"iso":                     1,
	"joint-iso-itu-t":         2,
	"joint-iso-ccitt":         2,
	"standard":                0,
	"registration-authority":  1,
	"member-body":             2,
	"identified-organization": 3,
	"recommendation":          0,
	"question":                1,
	"administration":          2,
	"network-operator":        3,
}

// evalValue resolves a syntax value to a concrete constant: *big.Int,
// string, bool, float64, asn1.BitString, or asn1.OID. Identifier values
// follow parameter bindings and value assignments.
func (c *context) evalValue(v *ast.Value, e *env) (any, *asn1.ResolveError) {
	switch v.Kind {
	case ast.ValBoolean:
		return v.Bool, nil
	case ast.ValInteger:
		return v.Int, nil
	case ast.ValReal:
		return v.Real, nil
	case ast.ValSpecialReal:
		switch v.Special {
		case ast.PlusInfinity:
			return math.Inf(1), nil
		case ast.MinusInfinity:
			return math.Inf(-1), nil
		default:
			return math.NaN(), nil
		}
	case ast.ValNull:
		return nil, nil
	case ast.ValCString:
		return v.Str, nil
	case ast.ValBString, ast.ValHString:
		return asn1.BitString{Bytes: v.Bytes, BitLength: v.BitLen}, nil
	case ast.ValOID:
		return c.evalOID(v, e)
	case ast.ValIdentifier:
		if b, ok := e.lookup(v.Str); ok {
			if b.val == nil {
				return nil, c.errorf(asn1.ResolveParameterMismatch,
					defKey{module: e.module, name: v.Str},
					"type parameter %q used as a value", v.Str)
			}
			return c.evalValue(b.val, b.env)
		}
		if def, ok := c.resolveValueDef(e.module, v.Str); ok {
			return c.evalValue(def.Value, &env{module: moduleOfDef(c, def)})
		}
		return nil, c.errorf(asn1.ResolveUnknownReference,
			defKey{module: e.module, name: v.Str},
			"value %q not found", v.Str)
	}
	return nil, c.errorf(asn1.ResolveTypeMismatch, defKey{module: e.module},
		"value notation not usable in this context")
}

// moduleOfDef finds the module a value assignment belongs to.
func moduleOfDef(c *context, def *ast.ValueAssignment) string {
	for key, d := range c.valueDefs {
		if d == def {
			return key.module
		}
	}
	return ""
}

// evalIntValue resolves a value that must be an integer fitting int64.
func (c *context) evalIntValue(v *ast.Value, e *env) (int64, *asn1.ResolveError) {
	resolved, err := c.evalValue(v, e)
	if err != nil {
		return 0, err
	}
	n, ok := resolved.(*big.Int)
	if !ok || !n.IsInt64() {
		return 0, c.errorf(asn1.ResolveTypeMismatch, defKey{module: e.module},
			"expected an integer value")
	}
	return n.Int64(), nil
}

// evalOID resolves an OID component list: named arcs via the well-known
// table, value references (a leading reference splices its arcs), and
// plain numbers.
func (c *context) evalOID(v *ast.Value, e *env) (asn1.OID, *asn1.ResolveError) {
	var oid asn1.OID
	for i, comp := range v.OIDComponents {
		switch {
		case comp.Number != nil:
			if !comp.Number.IsUint64() {
				return nil, c.errorf(asn1.ResolveTypeMismatch,
					defKey{module: e.module}, "OID arc out of range")
			}
			oid = append(oid, comp.Number.Uint64())

		case comp.Name != "":
			if arc, err := c.resolveArcName(comp.Name, e, i == 0); err != nil {
				return nil, err
			} else {
				oid = append(oid, arc...)
			}
		}
	}
	return oid, nil
}

// resolveArcName resolves a bare arc name: a value reference (legal only
// in leading position, where its arcs are spliced in) or a well-known
// name.
func (c *context) resolveArcName(name string, e *env, leading bool) (asn1.OID, *asn1.ResolveError) {
	if b, ok := e.lookup(name); ok && b.val != nil {
		resolved, err := c.evalValue(b.val, b.env)
		if err != nil {
			return nil, err
		}
		if oid, ok := resolved.(asn1.OID); ok {
			return oid, nil
		}
		if n, ok := resolved.(*big.Int); ok && n.IsUint64() {
			return asn1.OID{n.Uint64()}, nil
		}
	}
	if def, ok := c.resolveValueDef(e.module, name); ok {
		resolved, err := c.evalValue(def.Value, &env{module: moduleOfDef(c, def)})
		if err != nil {
			return nil, err
		}
		switch x := resolved.(type) {
		case asn1.OID:
			if !leading && len(x) != 1 {
				return nil, c.errorf(asn1.ResolveTypeMismatch,
					defKey{module: e.module, name: name},
					"OID reference %q not in leading position", name)
			}
			return x, nil
		case *big.Int:
			if x.IsUint64() {
				return asn1.OID{x.Uint64()}, nil
			}
		}
	}
	if arc, ok := wellKnownArcs[name]; ok {
		return asn1.OID{arc}, nil
	}
	return nil, c.errorf(asn1.ResolveUnknownReference,
		defKey{module: e.module, name: name}, "unknown OID arc %q", name)
}

// convertValue folds a syntax value into the marshaller shape of the
// governing type. Used for DEFAULT clauses and value assignments.
func (c *context) convertValue(id asn1.TypeID, v *ast.Value, e *env) (any, *asn1.ResolveError) {
	if err := c.ensureFilled(id); err != nil {
		return nil, err
	}
	if !c.filled[id] {
		return nil, c.errorf(asn1.ResolveTypeMismatch, defKey{module: e.module},
			"default value on a recursive member")
	}
	node := c.arena[id]

	switch node.Kind {
	case asn1.KindBoolean:
		resolved, err := c.evalValue(v, e)
		if err != nil {
			return nil, err
		}
		if b, ok := resolved.(bool); ok {
			return b, nil
		}
		return nil, c.typeMismatch(e, "BOOLEAN")

	case asn1.KindInteger:
		if v.Kind == ast.ValIdentifier {
			if n, ok := node.NamedValue(v.Str); ok {
				return n, nil
			}
		}
		resolved, err := c.evalValue(v, e)
		if err != nil {
			return nil, err
		}
		if n, ok := resolved.(*big.Int); ok {
			return asn1.NormalizeInt(n), nil
		}
		return nil, c.typeMismatch(e, "INTEGER")

	case asn1.KindEnumerated:
		if v.Kind == ast.ValIdentifier {
			if _, ok := node.NamedValue(v.Str); ok {
				return v.Str, nil
			}
			return nil, c.typeMismatch(e, "ENUMERATED")
		}
		resolved, err := c.evalValue(v, e)
		if err != nil {
			return nil, err
		}
		if n, ok := resolved.(*big.Int); ok && n.IsInt64() {
			if label, ok := node.LabelFor(n.Int64()); ok {
				return label, nil
			}
		}
		return nil, c.typeMismatch(e, "ENUMERATED")

	case asn1.KindReal:
		resolved, err := c.evalValue(v, e)
		if err != nil {
			return nil, err
		}
		switch x := resolved.(type) {
		case float64:
			return x, nil
		case *big.Int:
			f, _ := new(big.Float).SetInt(x).Float64()
			return f, nil
		}
		return nil, c.typeMismatch(e, "REAL")

	case asn1.KindBitString:
		return c.convertBitString(node, v, e)

	case asn1.KindOctetString, asn1.KindAny:
		resolved, err := c.evalValue(v, e)
		if err != nil {
			return nil, err
		}
		if bs, ok := resolved.(asn1.BitString); ok {
			return bs.Bytes, nil
		}
		return nil, c.typeMismatch(e, "OCTET STRING")

	case asn1.KindNull:
		return nil, nil

	case asn1.KindObjectIdentifier, asn1.KindRelativeOID:
		return c.convertOID(v, e)

	case asn1.KindCharacterString, asn1.KindUTCTime, asn1.KindGeneralizedTime,
		asn1.KindDate, asn1.KindTimeOfDay, asn1.KindDateTime,
		asn1.KindObjectDescriptor:
		resolved, err := c.evalValue(v, e)
		if err != nil {
			return nil, err
		}
		if s, ok := resolved.(string); ok {
			return s, nil
		}
		return nil, c.typeMismatch(e, "character string")

	case asn1.KindSequence, asn1.KindSet:
		return c.convertStructured(node, v, e)

	case asn1.KindChoice:
		if v.Kind != ast.ValChoice {
			return nil, c.typeMismatch(e, "CHOICE")
		}
		m, ok := node.MemberByName(v.Str)
		if !ok {
			return nil, c.errorf(asn1.ResolveTypeMismatch, defKey{module: e.module},
				"unknown alternative %q", v.Str)
		}
		inner, err := c.convertValue(m.Type, v.Chosen, e)
		if err != nil {
			return nil, err
		}
		return asn1.Choice{Alt: v.Str, Value: inner}, nil

	case asn1.KindSequenceOf, asn1.KindSetOf:
		if v.Kind != ast.ValList {
			return nil, c.typeMismatch(e, "SEQUENCE OF")
		}
		out := make([]any, 0, len(v.Elements))
		for _, el := range v.Elements {
			converted, err := c.convertValue(node.Element, el, e)
			if err != nil {
				return nil, err
			}
			out = append(out, converted)
		}
		return out, nil
	}

	return nil, c.typeMismatch(e, node.Kind.String())
}

func (c *context) typeMismatch(e *env, want string) *asn1.ResolveError {
	return c.errorf(asn1.ResolveTypeMismatch, defKey{module: e.module},
		"value does not match type %s", want)
}

// convertBitString handles bstring/hstring literals and named-bit lists.
func (c *context) convertBitString(node asn1.Type, v *ast.Value, e *env) (any, *asn1.ResolveError) {
	if v.Kind == ast.ValList {
		// "{ bitName, ... }" sets the named bits.
		maxBit := int64(-1)
		var bitValues []int64
		for _, el := range v.Elements {
			if el.Kind != ast.ValIdentifier {
				return nil, c.typeMismatch(e, "BIT STRING")
			}
			n, ok := node.NamedValue(el.Str)
			if !ok {
				return nil, c.errorf(asn1.ResolveTypeMismatch,
					defKey{module: e.module}, "unknown named bit %q", el.Str)
			}
			bitValues = append(bitValues, n)
			if n > maxBit {
				maxBit = n
			}
		}
		out := asn1.BitString{BitLength: int(maxBit + 1)}
		out.Bytes = make([]byte, (out.BitLength+7)/8)
		for _, bit := range bitValues {
			out.Bytes[bit/8] |= 0x80 >> (bit % 8)
		}
		return out, nil
	}

	resolved, err := c.evalValue(v, e)
	if err != nil {
		return nil, err
	}
	if bs, ok := resolved.(asn1.BitString); ok {
		return bs, nil
	}
	return nil, c.typeMismatch(e, "BIT STRING")
}

// convertOID accepts proper OID notation plus the shapes braced-value
// parsing can produce for it without type context.
func (c *context) convertOID(v *ast.Value, e *env) (any, *asn1.ResolveError) {
	switch v.Kind {
	case ast.ValOID:
		return c.evalOID(v, e)

	case ast.ValIdentifier:
		resolved, err := c.evalValue(v, e)
		if err != nil {
			return nil, err
		}
		if oid, ok := resolved.(asn1.OID); ok {
			return oid, nil
		}

	case ast.ValList:
		// "{ 2 }" or "{ value-ref }" style component lists.
		var oid asn1.OID
		for i, el := range v.Elements {
			switch el.Kind {
			case ast.ValInteger:
				if !el.Int.IsUint64() {
					return nil, c.typeMismatch(e, "OBJECT IDENTIFIER")
				}
				oid = append(oid, el.Int.Uint64())
			case ast.ValIdentifier:
				arcs, err := c.resolveArcName(el.Str, e, i == 0)
				if err != nil {
					return nil, err
				}
				oid = append(oid, arcs...)
			default:
				return nil, c.typeMismatch(e, "OBJECT IDENTIFIER")
			}
		}
		return oid, nil

	case ast.ValSequence:
		// "{ iso 2 }" tokenizes as a one-field sequence value; each field
		// contributes a name arc and a number arc.
		var oid asn1.OID
		for i, f := range v.Fields {
			arcs, err := c.resolveArcName(f.Name.Name, e, i == 0)
			if err != nil {
				return nil, err
			}
			oid = append(oid, arcs...)
			if f.Value.Kind != ast.ValInteger || !f.Value.Int.IsUint64() {
				return nil, c.typeMismatch(e, "OBJECT IDENTIFIER")
			}
			oid = append(oid, f.Value.Int.Uint64())
		}
		return oid, nil
	}
	return nil, c.typeMismatch(e, "OBJECT IDENTIFIER")
}

// convertStructured folds a sequence value into the member map shape.
func (c *context) convertStructured(node asn1.Type, v *ast.Value, e *env) (any, *asn1.ResolveError) {
	switch v.Kind {
	case ast.ValList:
		if len(v.Elements) == 0 {
			return map[string]any{}, nil
		}
		return nil, c.typeMismatch(e, node.Kind.String())
	case ast.ValSequence:
	default:
		return nil, c.typeMismatch(e, node.Kind.String())
	}

	out := make(map[string]any, len(v.Fields))
	for _, f := range v.Fields {
		m, ok := node.MemberByName(f.Name.Name)
		if !ok {
			return nil, c.errorf(asn1.ResolveTypeMismatch, defKey{module: e.module},
				"unknown member %q", f.Name.Name)
		}
		converted, err := c.convertValue(m.Type, f.Value, e)
		if err != nil {
			return nil, err
		}
		out[f.Name.Name] = converted
	}
	return out, nil
}
