package resolver

import (
	"math/big"
	"sort"

	"github.com/golangasn1/goasn1/asn1"
	"github.com/golangasn1/goasn1/internal/ast"
)

// parts is the dimensional view of an element set during evaluation. A
// nil set means "unconstrained" in that dimension.
type parts struct {
	values    *asn1.RangeSet
	size      *asn1.RangeSet
	alphabet  *asn1.RangeSet // character codes
	strings   []string
	presences []asn1.ComponentPresence
}

// resolveConstraint evaluates a syntax constraint without type context
// (used for OF-type size constraints, where only SIZE can appear).
func (c *context) resolveConstraint(con *ast.Constraint, e *env) (*asn1.Constraint, *asn1.ResolveError) {
	return c.resolveConstraintFor(con, e, nil)
}

// resolveConstraintFor evaluates a constraint against the type it
// applies to. The governing type decides how bare values are read (a
// cstring single value is an alphabet element inside FROM, a permitted
// value outside).
func (c *context) resolveConstraintFor(con *ast.Constraint, e *env, governing *asn1.Type) (*asn1.Constraint, *asn1.ResolveError) {
	if con == nil {
		return nil, nil
	}
	if con.Root == nil && !con.Extensible {
		return nil, nil
	}
	if con.Root == nil && con.Extensible {
		return nil, c.errorf(asn1.ResolveExtensionWithoutRoot, defKey{module: e.module},
			"constraint extension marker without a root")
	}

	root, err := c.evalElementSet(con.Root, e, false)
	if err != nil {
		return nil, err
	}

	var additions parts
	if con.Additions != nil {
		additions, err = c.evalElementSet(con.Additions, e, false)
		if err != nil {
			return nil, err
		}
	}

	out := &asn1.Constraint{
		Values:     root.values,
		ExtValues:  additions.values,
		Size:       root.size,
		ExtSize:    additions.size,
		Strings:    root.strings,
		Presences:  root.presences,
		Extensible: con.Extensible,
	}
	if root.alphabet != nil {
		out.Alphabet = runeSetString(root.alphabet)
	}
	if additions.alphabet != nil {
		out.ExtAlphabet = runeSetString(additions.alphabet)
	}
	return out, nil
}

// evalElementSet evaluates one element-set node. charMode is set inside
// FROM, where single values and ranges describe characters.
func (c *context) evalElementSet(es *ast.ElementSet, e *env, charMode bool) (parts, *asn1.ResolveError) {
	switch es.Kind {
	case ast.ESUnion:
		acc, err := c.evalElementSet(es.Operands[0], e, charMode)
		if err != nil {
			return parts{}, err
		}
		for _, op := range es.Operands[1:] {
			p, err := c.evalElementSet(op, e, charMode)
			if err != nil {
				return parts{}, err
			}
			acc = unionParts(acc, p)
		}
		return acc, nil

	case ast.ESIntersection:
		acc, err := c.evalElementSet(es.Operands[0], e, charMode)
		if err != nil {
			return parts{}, err
		}
		for _, op := range es.Operands[1:] {
			p, err := c.evalElementSet(op, e, charMode)
			if err != nil {
				return parts{}, err
			}
			acc = intersectParts(acc, p)
		}
		return acc, nil

	case ast.ESExclusion:
		if es.All {
			excluded, err := c.evalElementSet(es.Operands[0], e, charMode)
			if err != nil {
				return parts{}, err
			}
			return subtractParts(parts{}, excluded), nil
		}
		left, err := c.evalElementSet(es.Operands[0], e, charMode)
		if err != nil {
			return parts{}, err
		}
		right, err := c.evalElementSet(es.Operands[1], e, charMode)
		if err != nil {
			return parts{}, err
		}
		return subtractParts(left, right), nil

	case ast.ESSingleValue:
		return c.evalSingleValue(es.Value, e, charMode)

	case ast.ESValueRange:
		return c.evalValueRange(es, e, charMode)

	case ast.ESSize:
		inner, err := c.resolveConstraint(es.Inner, e)
		if err != nil {
			return parts{}, err
		}
		p := parts{size: inner.Values}
		if inner.Extensible && inner.ExtValues != nil {
			// The extension part of a nested SIZE folds into the outer
			// extension handling via resolveConstraintFor; within an
			// element set it widens the root.
			p.size = asn1.Union(p.size, inner.ExtValues)
		}
		if sizeNegative(p.size) {
			return parts{}, c.errorf(asn1.ResolveInvalidConstraint,
				defKey{module: e.module}, "negative size constraint")
		}
		return p, nil

	case ast.ESFrom:
		inner := es.Inner
		if inner == nil || inner.Root == nil {
			return parts{}, c.errorf(asn1.ResolveInvalidConstraint,
				defKey{module: e.module}, "empty FROM constraint")
		}
		p, err := c.evalElementSet(inner.Root, e, true)
		if err != nil {
			return parts{}, err
		}
		return parts{alphabet: p.alphabet}, nil

	case ast.ESContaining:
		// CONTAINING identifies the carried type; it does not constrain
		// the carrier's value space.
		return parts{}, nil

	case ast.ESContainedSubtype:
		return c.evalContainedSubtype(es.Type, e)

	case ast.ESWithComponents:
		var presences []asn1.ComponentPresence
		for _, cc := range es.Components {
			presences = append(presences, asn1.ComponentPresence{
				Name:    cc.Name.Name,
				Present: cc.Presence == ast.PresencePresent,
				Absent:  cc.Presence == ast.PresenceAbsent,
			})
		}
		return parts{presences: presences}, nil

	case ast.ESPattern:
		// PATTERN constrains abstract values by regular expression; the
		// wire codecs do not enforce it.
		return parts{}, nil
	}

	return parts{}, c.errorf(asn1.ResolveInvalidConstraint,
		defKey{module: e.module}, "unsupported constraint element")
}

func (c *context) evalSingleValue(v *ast.Value, e *env, charMode bool) (parts, *asn1.ResolveError) {
	resolved, err := c.evalValue(v, e)
	if err != nil {
		return parts{}, err
	}
	switch x := resolved.(type) {
	case *big.Int:
		return parts{values: asn1.SingleValue(x)}, nil
	case string:
		if charMode {
			set := &asn1.RangeSet{}
			for _, r := range x {
				set.Ranges = append(set.Ranges, asn1.ValueRange{
					Lo: asn1.Bounded(int64(r)),
					Hi: asn1.Bounded(int64(r)),
				})
			}
			return parts{alphabet: asn1.NewRangeSet(set.Ranges...)}, nil
		}
		return parts{strings: []string{x}}, nil
	}
	// Values of other kinds (booleans, OIDs) restrict spaces the codecs
	// do not range-check; treat as unconstrained.
	return parts{}, nil
}

func (c *context) evalValueRange(es *ast.ElementSet, e *env, charMode bool) (parts, *asn1.ResolveError) {
	lo, err := c.evalEndpoint(es.Lo, e, charMode, false)
	if err != nil {
		return parts{}, err
	}
	hi, err := c.evalEndpoint(es.Hi, e, charMode, true)
	if err != nil {
		return parts{}, err
	}
	if !lo.Unbounded && !hi.Unbounded && lo.Value.Cmp(hi.Value) > 0 {
		return parts{}, c.errorf(asn1.ResolveInvalidConstraint,
			defKey{module: e.module},
			"empty range %s..%s", lo.Value, hi.Value)
	}
	set := asn1.NewRangeSet(asn1.ValueRange{Lo: lo, Hi: hi})
	if charMode {
		return parts{alphabet: set}, nil
	}
	return parts{values: set}, nil
}

// evalEndpoint resolves a range endpoint, normalizing open endpoints to
// closed ones.
func (c *context) evalEndpoint(ep ast.Endpoint, e *env, charMode, upper bool) (asn1.Bound, *asn1.ResolveError) {
	if ep.Min || ep.Max {
		return asn1.Bound{Unbounded: true}, nil
	}
	resolved, err := c.evalValue(ep.Value, e)
	if err != nil {
		return asn1.Bound{}, err
	}

	var n *big.Int
	switch x := resolved.(type) {
	case *big.Int:
		n = new(big.Int).Set(x)
	case string:
		if !charMode {
			return asn1.Bound{}, c.errorf(asn1.ResolveInvalidConstraint,
				defKey{module: e.module}, "string endpoint outside FROM")
		}
		runes := []rune(x)
		if len(runes) != 1 {
			return asn1.Bound{}, c.errorf(asn1.ResolveInvalidConstraint,
				defKey{module: e.module}, "character range endpoint %q not a single character", x)
		}
		n = big.NewInt(int64(runes[0]))
	default:
		return asn1.Bound{}, c.errorf(asn1.ResolveInvalidConstraint,
			defKey{module: e.module}, "range endpoint is not an integer")
	}

	one := big.NewInt(1)
	if ep.Open {
		if upper {
			n.Sub(n, one)
		} else {
			n.Add(n, one)
		}
	}
	return asn1.Bound{Value: n}, nil
}

// evalContainedSubtype pulls the referent's effective constraint into the
// element set.
func (c *context) evalContainedSubtype(t *ast.Type, e *env) (parts, *asn1.ResolveError) {
	node, err := c.lowerTypeNode(t, e)
	if err != nil {
		return parts{}, err
	}
	con := node.Constraint
	if con == nil {
		return parts{}, nil
	}
	p := parts{
		values:  con.Values,
		size:    con.Size,
		strings: con.Strings,
	}
	if con.Alphabet != "" {
		set := &asn1.RangeSet{}
		for _, r := range con.Alphabet {
			set.Ranges = append(set.Ranges, asn1.ValueRange{
				Lo: asn1.Bounded(int64(r)),
				Hi: asn1.Bounded(int64(r)),
			})
		}
		p.alphabet = asn1.NewRangeSet(set.Ranges...)
	}
	return p, nil
}

// unionParts widens each dimension; unconstrained (nil) absorbs.
func unionParts(a, b parts) parts {
	return parts{
		values:    asn1.Union(a.values, b.values),
		size:      asn1.Union(a.size, b.size),
		alphabet:  asn1.Union(a.alphabet, b.alphabet),
		strings:   unionStrings(a.strings, b.strings),
		presences: append(a.presences, b.presences...),
	}
}

// intersectParts narrows each dimension; nil means unconstrained.
func intersectParts(a, b parts) parts {
	return parts{
		values:    asn1.Intersect(a.values, b.values),
		size:      asn1.Intersect(a.size, b.size),
		alphabet:  asn1.Intersect(a.alphabet, b.alphabet),
		strings:   intersectStrings(a.strings, b.strings),
		presences: append(a.presences, b.presences...),
	}
}

// subtractParts removes b from a per dimension. An unconstrained a with a
// constrained b yields the complement in that dimension.
func subtractParts(a, b parts) parts {
	out := a
	if b.values != nil {
		out.values = asn1.Subtract(a.values, b.values)
	}
	if b.size != nil {
		out.size = asn1.Subtract(a.size, b.size)
	}
	if b.alphabet != nil {
		out.alphabet = asn1.Subtract(a.alphabet, b.alphabet)
	}
	return out
}

func unionStrings(a, b []string) []string {
	if a == nil || b == nil {
		return nil
	}
	seen := make(map[string]bool, len(a)+len(b))
	var out []string
	for _, s := range append(append([]string{}, a...), b...) {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

func intersectStrings(a, b []string) []string {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	inB := make(map[string]bool, len(b))
	for _, s := range b {
		inB[s] = true
	}
	out := []string{}
	for _, s := range a {
		if inB[s] {
			out = append(out, s)
		}
	}
	return out
}

func sizeNegative(s *asn1.RangeSet) bool {
	if s == nil {
		return false
	}
	min, ok := s.Min()
	return ok && min.Sign() < 0
}

// runeSetString expands a character-code range set into a sorted string.
func runeSetString(s *asn1.RangeSet) string {
	var runes []rune
	for _, r := range s.Ranges {
		if r.Lo.Unbounded || r.Hi.Unbounded {
			continue
		}
		for v := r.Lo.Value.Int64(); v <= r.Hi.Value.Int64(); v++ {
			runes = append(runes, rune(v))
		}
	}
	sort.Slice(runes, func(i, j int) bool { return runes[i] < runes[j] })
	return string(runes)
}

// mergeConstraints applies an outer constraint over an inner one (serial
// application): dimensions intersect, the outer extension marker governs.
func mergeConstraints(inner, outer *asn1.Constraint) *asn1.Constraint {
	if inner == nil {
		return outer
	}
	if outer == nil {
		return inner
	}
	merged := &asn1.Constraint{
		Values:     asn1.Intersect(inner.Values, outer.Values),
		ExtValues:  outer.ExtValues,
		Size:       asn1.Intersect(inner.Size, outer.Size),
		ExtSize:    outer.ExtSize,
		Strings:    intersectStrings(inner.Strings, outer.Strings),
		Presences:  append(append([]asn1.ComponentPresence{}, inner.Presences...), outer.Presences...),
		Extensible: outer.Extensible,
	}
	switch {
	case inner.Alphabet == "":
		merged.Alphabet = outer.Alphabet
	case outer.Alphabet == "":
		merged.Alphabet = inner.Alphabet
	default:
		merged.Alphabet = intersectAlphabets(inner.Alphabet, outer.Alphabet)
	}
	merged.ExtAlphabet = outer.ExtAlphabet
	return merged
}

func intersectAlphabets(a, b string) string {
	inB := make(map[rune]bool, len(b))
	for _, r := range b {
		inB[r] = true
	}
	var runes []rune
	for _, r := range a {
		if inB[r] {
			runes = append(runes, r)
		}
	}
	sort.Slice(runes, func(i, j int) bool { return runes[i] < runes[j] })
	return string(runes)
}
