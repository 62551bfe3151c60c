package asn1

import (
	"iter"
)

// Tag is one resolved tag applied to a type. Tags are stored outermost
// first; an explicit tag contributes its own constructed TLV in BER, an
// implicit tag replaces the tag beneath it.
type Tag struct {
	Class    Class
	Number   int
	Explicit bool
}

// Member is one component of a SEQUENCE, SET, or CHOICE.
type Member struct {
	Name     string
	Type     TypeID
	Optional bool
	Default  any // nil when no DEFAULT; value in the marshaller shape

	// ExtGroup is 0 for root members and k for members of the k-th
	// extension addition group (k >= 1).
	ExtGroup int
}

// NamedValue is a labeled number from an ENUMERATED, INTEGER, or
// BIT STRING named list.
type NamedValue struct {
	Label string
	Value int64
}

// Type is one node of the compiled type model. All fields are read-only
// after resolution.
type Type struct {
	Kind Kind

	// Name and Module identify top-level defined types; anonymous nested
	// types leave them empty.
	Name   string
	Module string

	// Variant is the character string variant ("IA5String", ...) for
	// KindCharacterString.
	Variant string

	// Tags lists the resolved tags, outermost first. Empty means the
	// universal tag of Kind applies.
	Tags []Tag

	// Members of SEQUENCE/SET/CHOICE in declaration order, root members
	// first, then extension additions in group order.
	Members []Member

	// Extensible reports a "..." in the member or enumeration list.
	Extensible bool

	// Element is the element type of SEQUENCE OF / SET OF.
	Element TypeID

	// NamedValues holds the root enumeration items, INTEGER named numbers,
	// or BIT STRING named bits. ExtNamedValues holds enumeration additions.
	NamedValues    []NamedValue
	ExtNamedValues []NamedValue

	// Constraint is the merged effective constraint, nil when
	// unconstrained.
	Constraint *Constraint

	// Hints carries codec accelerators derived at freeze time.
	Hints Hints
}

// EffectiveTag returns the outermost tag of the type: the first member of
// Tags, or the universal tag of the kind.
func (t *Type) EffectiveTag() Tag {
	if len(t.Tags) > 0 {
		return t.Tags[0]
	}
	return Tag{Class: ClassUniversal, Number: UniversalTag(t.Kind, t.Variant)}
}

// MemberByName returns the member with the given name.
func (t *Type) MemberByName(name string) (*Member, bool) {
	for i := range t.Members {
		if t.Members[i].Name == name {
			return &t.Members[i], true
		}
	}
	return nil, false
}

// RootMembers iterates members with ExtGroup 0.
func (t *Type) RootMembers() iter.Seq[*Member] {
	return func(yield func(*Member) bool) {
		for i := range t.Members {
			if t.Members[i].ExtGroup == 0 && !yield(&t.Members[i]) {
				return
			}
		}
	}
}

// ExtensionMembers iterates members with ExtGroup >= 1 in declaration
// order.
func (t *Type) ExtensionMembers() iter.Seq[*Member] {
	return func(yield func(*Member) bool) {
		for i := range t.Members {
			if t.Members[i].ExtGroup > 0 && !yield(&t.Members[i]) {
				return
			}
		}
	}
}

// NamedValue returns the value for a label in the root or extension item
// lists.
func (t *Type) NamedValue(label string) (int64, bool) {
	for _, nv := range t.NamedValues {
		if nv.Label == label {
			return nv.Value, true
		}
	}
	for _, nv := range t.ExtNamedValues {
		if nv.Label == label {
			return nv.Value, true
		}
	}
	return 0, false
}

// LabelFor returns the label for a value in the root or extension item
// lists.
func (t *Type) LabelFor(value int64) (string, bool) {
	for _, nv := range t.NamedValues {
		if nv.Value == value {
			return nv.Label, true
		}
	}
	for _, nv := range t.ExtNamedValues {
		if nv.Value == value {
			return nv.Label, true
		}
	}
	return "", false
}

// ModuleInfo describes one compiled module.
type ModuleInfo struct {
	Name       string
	TagDefault string // EXPLICIT, IMPLICIT, or AUTOMATIC
	TypeNames  []string
}

// Schema is the frozen output of the resolver: a type arena plus name
// indexes. A Schema never changes after construction.
type Schema struct {
	arena    []Type
	byName   map[string]TypeID // "Type" and "Module.Type"
	modules  []ModuleInfo
	warnings []string
}

// NewSchema assembles a frozen schema. Called by the resolver only; the
// arena must already be fully linked.
func NewSchema(arena []Type, byName map[string]TypeID, modules []ModuleInfo, warnings []string) *Schema {
	return &Schema{arena: arena, byName: byName, modules: modules, warnings: warnings}
}

// Type returns the node for an id. The id must come from this schema.
func (s *Schema) Type(id TypeID) *Type {
	return &s.arena[id]
}

// Lookup finds a type by name, qualified ("Module.Type") or bare.
func (s *Schema) Lookup(name string) (TypeID, bool) {
	id, ok := s.byName[name]
	return id, ok
}

// Len returns the number of types in the arena.
func (s *Schema) Len() int {
	return len(s.arena)
}

// Modules returns the compiled modules in compilation order.
func (s *Schema) Modules() []ModuleInfo {
	out := make([]ModuleInfo, len(s.modules))
	copy(out, s.modules)
	return out
}

// Warnings returns non-fatal resolution warnings (import cycles and the
// like).
func (s *Schema) Warnings() []string {
	out := make([]string, len(s.warnings))
	copy(out, s.warnings)
	return out
}

// TypeNames returns the names of all top-level defined types, in arena
// order.
func (s *Schema) TypeNames() []string {
	var names []string
	for i := range s.arena {
		if s.arena[i].Name != "" {
			names = append(names, s.arena[i].Name)
		}
	}
	return names
}
