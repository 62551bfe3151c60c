package asn1

import (
	"math/big"
	"sort"
	"strings"
)

// Bound is one endpoint of a value range. Unbounded corresponds to MIN or
// MAX in the source.
type Bound struct {
	Value     *big.Int
	Unbounded bool
}

// Bounded returns a closed bound.
func Bounded(v int64) Bound {
	return Bound{Value: big.NewInt(v)}
}

// ValueRange is a closed interval [Lo, Hi]; open source endpoints are
// normalized away during resolution (lo< becomes lo+1).
type ValueRange struct {
	Lo, Hi Bound
}

// contains reports whether v lies in the range.
func (r ValueRange) contains(v *big.Int) bool {
	if !r.Lo.Unbounded && v.Cmp(r.Lo.Value) < 0 {
		return false
	}
	if !r.Hi.Unbounded && v.Cmp(r.Hi.Value) > 0 {
		return false
	}
	return true
}

// RangeSet is a normalized union of disjoint value ranges in ascending
// order.
type RangeSet struct {
	Ranges []ValueRange
}

// NewRangeSet builds a normalized set from the given ranges.
func NewRangeSet(ranges ...ValueRange) *RangeSet {
	s := &RangeSet{Ranges: ranges}
	s.normalize()
	return s
}

// SingleValue returns a set holding exactly v.
func SingleValue(v *big.Int) *RangeSet {
	b := Bound{Value: new(big.Int).Set(v)}
	return &RangeSet{Ranges: []ValueRange{{Lo: b, Hi: b}}}
}

// Contains reports whether v is a member of the set.
func (s *RangeSet) Contains(v *big.Int) bool {
	for _, r := range s.Ranges {
		if r.contains(v) {
			return true
		}
	}
	return false
}

// Empty reports whether the set holds no values.
func (s *RangeSet) Empty() bool {
	return len(s.Ranges) == 0
}

// Min returns the least value of the set, with ok=false when the set is
// empty or unbounded below.
func (s *RangeSet) Min() (*big.Int, bool) {
	if len(s.Ranges) == 0 || s.Ranges[0].Lo.Unbounded {
		return nil, false
	}
	return s.Ranges[0].Lo.Value, true
}

// Max returns the greatest value of the set, with ok=false when the set is
// empty or unbounded above.
func (s *RangeSet) Max() (*big.Int, bool) {
	if len(s.Ranges) == 0 {
		return nil, false
	}
	last := s.Ranges[len(s.Ranges)-1]
	if last.Hi.Unbounded {
		return nil, false
	}
	return last.Hi.Value, true
}

// Union returns the union of two sets. Either operand may be nil, meaning
// the unconstrained (full) set; the union is then unconstrained, reported
// as nil.
func Union(a, b *RangeSet) *RangeSet {
	if a == nil || b == nil {
		return nil
	}
	out := &RangeSet{Ranges: append(append([]ValueRange{}, a.Ranges...), b.Ranges...)}
	out.normalize()
	return out
}

// Intersect returns the intersection of two sets; nil operands mean the
// full set.
func Intersect(a, b *RangeSet) *RangeSet {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	var out RangeSet
	for _, ra := range a.Ranges {
		for _, rb := range b.Ranges {
			lo := maxBound(ra.Lo, rb.Lo)
			hi := minBound(ra.Hi, rb.Hi)
			if boundLE(lo, hi) {
				out.Ranges = append(out.Ranges, ValueRange{Lo: lo, Hi: hi})
			}
		}
	}
	out.normalize()
	return &out
}

// Subtract returns a minus b; nil a means the full set.
func Subtract(a, b *RangeSet) *RangeSet {
	if b == nil {
		return &RangeSet{}
	}
	if a == nil {
		a = &RangeSet{Ranges: []ValueRange{{
			Lo: Bound{Unbounded: true},
			Hi: Bound{Unbounded: true},
		}}}
	}
	current := a.Ranges
	for _, rb := range b.Ranges {
		var next []ValueRange
		for _, ra := range current {
			next = append(next, subtractRange(ra, rb)...)
		}
		current = next
	}
	out := &RangeSet{Ranges: current}
	out.normalize()
	return out
}

func subtractRange(a, b ValueRange) []ValueRange {
	lo := maxBound(a.Lo, b.Lo)
	hi := minBound(a.Hi, b.Hi)
	if !boundLE(lo, hi) {
		return []ValueRange{a}
	}
	var out []ValueRange
	if !b.Lo.Unbounded {
		leftHi := Bound{Value: new(big.Int).Sub(b.Lo.Value, big.NewInt(1))}
		if boundLE(a.Lo, leftHi) {
			out = append(out, ValueRange{Lo: a.Lo, Hi: leftHi})
		}
	}
	if !b.Hi.Unbounded {
		rightLo := Bound{Value: new(big.Int).Add(b.Hi.Value, big.NewInt(1))}
		if boundLE(rightLo, a.Hi) {
			out = append(out, ValueRange{Lo: rightLo, Hi: a.Hi})
		}
	}
	return out
}

// maxBound treats an unbounded bound as -infinity (lower-bound semantics).
func maxBound(a, b Bound) Bound {
	if a.Unbounded {
		return b
	}
	if b.Unbounded {
		return a
	}
	if a.Value.Cmp(b.Value) >= 0 {
		return a
	}
	return b
}

// minBound treats an unbounded bound as +infinity (upper-bound semantics).
func minBound(a, b Bound) Bound {
	if a.Unbounded {
		return b
	}
	if b.Unbounded {
		return a
	}
	if a.Value.Cmp(b.Value) <= 0 {
		return a
	}
	return b
}

// boundLE reports lo <= hi where lo is a lower bound and hi an upper
// bound.
func boundLE(lo, hi Bound) bool {
	if lo.Unbounded || hi.Unbounded {
		return true
	}
	return lo.Value.Cmp(hi.Value) <= 0
}

// normalize sorts and merges adjacent or overlapping ranges.
func (s *RangeSet) normalize() {
	if len(s.Ranges) == 0 {
		return
	}
	sort.Slice(s.Ranges, func(i, j int) bool {
		a, b := s.Ranges[i].Lo, s.Ranges[j].Lo
		if a.Unbounded {
			return !b.Unbounded || false
		}
		if b.Unbounded {
			return false
		}
		return a.Value.Cmp(b.Value) < 0
	})

	one := big.NewInt(1)
	merged := s.Ranges[:1]
	for _, r := range s.Ranges[1:] {
		last := &merged[len(merged)-1]
		// Merge when r.Lo <= last.Hi + 1.
		join := last.Hi.Unbounded || r.Lo.Unbounded
		if !join {
			limit := new(big.Int).Add(last.Hi.Value, one)
			join = r.Lo.Value.Cmp(limit) <= 0
		}
		if join {
			last.Hi = maxUpper(last.Hi, r.Hi)
		} else {
			merged = append(merged, r)
		}
	}
	s.Ranges = merged
}

// maxUpper picks the larger upper bound, where unbounded wins.
func maxUpper(a, b Bound) Bound {
	if a.Unbounded || b.Unbounded {
		return Bound{Unbounded: true}
	}
	if a.Value.Cmp(b.Value) >= 0 {
		return a
	}
	return b
}

// ComponentPresence is the resolved presence requirement of one
// WITH COMPONENTS item.
type ComponentPresence struct {
	Name    string
	Present bool
	Absent  bool
}

// Constraint is the merged, effective constraint of a type after
// resolution. Nil pointers mean "unconstrained" in that dimension.
type Constraint struct {
	// Values is the root value set of INTEGER-like types; ExtValues the
	// extension additions.
	Values    *RangeSet
	ExtValues *RangeSet

	// Size constrains lengths of string-like and OF types, in the unit of
	// the type (bits, octets, characters, elements).
	Size    *RangeSet
	ExtSize *RangeSet

	// Alphabet is the sorted permitted alphabet of a character string,
	// empty when unconstrained. ExtAlphabet holds extension additions.
	Alphabet    string
	ExtAlphabet string

	// Strings is the set of permitted string values from single-value
	// constraints, nil when unconstrained this way.
	Strings []string

	// Presences carries WITH COMPONENTS presence requirements.
	Presences []ComponentPresence

	// Extensible reports a "..." in the constraint; values outside the
	// root may then still encode, with the extension bit set.
	Extensible bool
}

// AllowsValue reports whether v satisfies the root value constraint.
func (c *Constraint) AllowsValue(v *big.Int) bool {
	if c == nil || c.Values == nil {
		return true
	}
	return c.Values.Contains(v)
}

// AllowsExtendedValue reports whether v satisfies the extended constraint
// (root or additions) of an extensible constraint.
func (c *Constraint) AllowsExtendedValue(v *big.Int) bool {
	if c == nil || c.Values == nil {
		return true
	}
	if c.Values.Contains(v) {
		return true
	}
	if !c.Extensible {
		return false
	}
	// An extensible constraint accepts any value of the parent type; the
	// additions only shape the extension-range encoding.
	return true
}

// AllowsSize reports whether a length n satisfies the root size
// constraint.
func (c *Constraint) AllowsSize(n int) bool {
	if c == nil || c.Size == nil {
		return true
	}
	return c.Size.Contains(big.NewInt(int64(n)))
}

// AllowsExtendedSize reports whether n satisfies the extended size
// constraint.
func (c *Constraint) AllowsExtendedSize(n int) bool {
	if c == nil || c.Size == nil {
		return true
	}
	if c.Size.Contains(big.NewInt(int64(n))) {
		return true
	}
	return c.Extensible
}

// AllowsString reports whether s satisfies the alphabet and permitted
// string-value constraints of the root.
func (c *Constraint) AllowsString(s string) bool {
	if c == nil {
		return true
	}
	if c.Alphabet != "" {
		for _, r := range s {
			if !strings.ContainsRune(c.Alphabet, r) {
				return false
			}
		}
	}
	if c.Strings != nil {
		found := false
		for _, permitted := range c.Strings {
			if s == permitted {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
