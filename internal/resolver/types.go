package resolver

import (
	"fmt"
	"strings"

	"github.com/golangasn1/goasn1/asn1"
	"github.com/golangasn1/goasn1/internal/ast"
)

// ensureFilled forces a registered definition to be lowered. Anonymous
// arena nodes are always filled at creation.
func (c *context) ensureFilled(id asn1.TypeID) *asn1.ResolveError {
	if c.filled[id] {
		return nil
	}
	key, ok := c.keyOf[id]
	if !ok {
		return nil
	}
	return c.fillDef(key)
}

// lowerTypeID lowers a syntax type to an arena index. Plain references to
// registered definitions share the referent's slot; everything else gets
// a fresh anonymous node. A tagged or constrained reference into a
// definition currently being filled becomes a lazy link, patched after
// all definitions are lowered.
func (c *context) lowerTypeID(t *ast.Type, e *env) (asn1.TypeID, *asn1.ResolveError) {
	if t.Kind == ast.KindReference && t.Module == nil && len(t.Actuals) == 0 {
		if b, ok := e.lookup(t.RefName.Name); ok && b.typ != nil {
			return c.lowerTypeID(b.typ, b.env)
		}
		key, def, found := c.resolveTypeDef(e.module, t.RefName.Name)
		if found && len(def.Parameters) == 0 {
			return c.ids[key], nil
		}
	}

	if c.refersIntoCycle(t, e) {
		id := c.alloc()
		c.fixups = append(c.fixups, fixup{id: id, typ: t, env: e})
		return id, nil
	}

	node, err := c.lowerTypeNode(t, e)
	if err != nil {
		return asn1.NoType, err
	}
	id := c.alloc()
	c.arena[id] = *node
	c.filled[id] = true
	return id, nil
}

// refersIntoCycle reports whether t is a chain of tag or constraint
// wrappers around a plain reference to a definition still being filled.
func (c *context) refersIntoCycle(t *ast.Type, e *env) bool {
	for t != nil {
		switch t.Kind {
		case ast.KindTagged, ast.KindConstrained:
			t = t.Inner
		case ast.KindReference:
			if t.Module != nil || len(t.Actuals) > 0 {
				return false
			}
			if b, ok := e.lookup(t.RefName.Name); ok {
				if b.typ == nil {
					return false
				}
				t, e = b.typ, b.env
				continue
			}
			key, def, found := c.resolveTypeDef(e.module, t.RefName.Name)
			return found && len(def.Parameters) == 0 && c.filling[key]
		default:
			return false
		}
	}
	return false
}

// processFixups lowers all lazy links. Every definition is filled by the
// time this runs, so the copies resolve normally.
func (c *context) processFixups() *asn1.ResolveError {
	for _, f := range c.fixups {
		node, err := c.lowerTypeNode(f.typ, f.env)
		if err != nil {
			return err
		}
		if f.autoTag {
			explicit := len(node.Tags) == 0 &&
				(node.Kind == asn1.KindChoice || node.Kind == asn1.KindAny)
			applyTag(node, asn1.Tag{Class: asn1.ClassContext, Number: f.ordinal}, explicit)
		}
		c.arena[f.id] = *node
		c.filled[f.id] = true
	}
	c.fixups = nil
	return nil
}

// lowerTypeNode lowers a syntax type to a detached model node. The caller
// owns the node and may still rename or re-tag it.
func (c *context) lowerTypeNode(t *ast.Type, e *env) (*asn1.Type, *asn1.ResolveError) {
	switch t.Kind {
	case ast.KindBoolean:
		return &asn1.Type{Kind: asn1.KindBoolean}, nil
	case ast.KindNull:
		return &asn1.Type{Kind: asn1.KindNull}, nil
	case ast.KindReal:
		return &asn1.Type{Kind: asn1.KindReal}, nil
	case ast.KindOctetString:
		return &asn1.Type{Kind: asn1.KindOctetString}, nil
	case ast.KindObjectIdentifier:
		return &asn1.Type{Kind: asn1.KindObjectIdentifier}, nil
	case ast.KindRelativeOID:
		return &asn1.Type{Kind: asn1.KindRelativeOID}, nil
	case ast.KindExternal:
		return &asn1.Type{Kind: asn1.KindExternal}, nil
	case ast.KindEmbeddedPDV:
		return &asn1.Type{Kind: asn1.KindEmbeddedPDV}, nil
	case ast.KindObjectDescriptor:
		return &asn1.Type{Kind: asn1.KindObjectDescriptor}, nil
	case ast.KindAny:
		return &asn1.Type{Kind: asn1.KindAny}, nil
	case ast.KindUTCTime:
		return &asn1.Type{Kind: asn1.KindUTCTime}, nil
	case ast.KindGeneralizedTime:
		return &asn1.Type{Kind: asn1.KindGeneralizedTime}, nil
	case ast.KindDate:
		return &asn1.Type{Kind: asn1.KindDate}, nil
	case ast.KindTimeOfDay:
		return &asn1.Type{Kind: asn1.KindTimeOfDay}, nil
	case ast.KindDateTime:
		return &asn1.Type{Kind: asn1.KindDateTime}, nil

	case ast.KindCharacterString:
		return &asn1.Type{Kind: asn1.KindCharacterString, Variant: t.Name}, nil

	case ast.KindInteger:
		node := &asn1.Type{Kind: asn1.KindInteger}
		named, err := c.lowerNamedNumbers(t.NamedNumbers, e, false)
		if err != nil {
			return nil, err
		}
		node.NamedValues = named
		return node, nil

	case ast.KindBitString:
		node := &asn1.Type{Kind: asn1.KindBitString}
		named, err := c.lowerNamedNumbers(t.NamedNumbers, e, false)
		if err != nil {
			return nil, err
		}
		node.NamedValues = named
		return node, nil

	case ast.KindEnumerated:
		return c.lowerEnumerated(t, e)

	case ast.KindSequence:
		return c.lowerStructured(t, e, asn1.KindSequence)
	case ast.KindSet:
		return c.lowerStructured(t, e, asn1.KindSet)
	case ast.KindChoice:
		return c.lowerStructured(t, e, asn1.KindChoice)

	case ast.KindSequenceOf:
		return c.lowerOf(t, e, asn1.KindSequenceOf)
	case ast.KindSetOf:
		return c.lowerOf(t, e, asn1.KindSetOf)

	case ast.KindTagged:
		return c.lowerTagged(t, e)

	case ast.KindConstrained:
		return c.lowerConstrained(t, e)

	case ast.KindReference:
		return c.lowerReference(t, e)

	case ast.KindSelection:
		return c.lowerSelection(t, e)
	}

	return nil, c.errorf(asn1.ResolveTypeMismatch, defKey{module: e.module},
		"unsupported type construct")
}

// lowerNamedNumbers resolves the value of each named number. With
// autoNumber set (enumerated items), an item without an explicit value
// takes one past the largest value so far; otherwise it is an error.
func (c *context) lowerNamedNumbers(in []ast.NamedNumber, e *env, autoNumber bool) ([]asn1.NamedValue, *asn1.ResolveError) {
	var out []asn1.NamedValue
	next := int64(0)
	for _, nn := range in {
		nv := asn1.NamedValue{Label: nn.Name.Name}
		if nn.Value != nil {
			n, err := c.evalIntValue(nn.Value, e)
			if err != nil {
				return nil, err
			}
			nv.Value = n
		} else if autoNumber {
			nv.Value = next
		} else {
			return nil, c.errorf(asn1.ResolveTypeMismatch,
				defKey{module: e.module}, "named number %q lacks a value", nn.Name.Name)
		}
		if nv.Value >= next {
			next = nv.Value + 1
		}
		out = append(out, nv)
	}
	return out, nil
}

func (c *context) lowerEnumerated(t *ast.Type, e *env) (*asn1.Type, *asn1.ResolveError) {
	node := &asn1.Type{Kind: asn1.KindEnumerated, Extensible: t.ExtMarker}

	root, err := c.lowerNamedNumbers(t.NamedNumbers, e, true)
	if err != nil {
		return nil, err
	}
	node.NamedValues = root

	// Extension additions number from one past the largest root value.
	next := int64(0)
	for _, nv := range root {
		if nv.Value >= next {
			next = nv.Value + 1
		}
	}
	for _, nn := range t.ExtNamedValues {
		nv := asn1.NamedValue{Label: nn.Name.Name, Value: next}
		if nn.Value != nil {
			n, err := c.evalIntValue(nn.Value, e)
			if err != nil {
				return nil, err
			}
			nv.Value = n
		}
		if nv.Value >= next {
			next = nv.Value + 1
		} else {
			next++
		}
		node.ExtNamedValues = append(node.ExtNamedValues, nv)
	}
	return node, nil
}

// lowerStructured lowers SEQUENCE, SET, and CHOICE bodies: members in all
// three sections, COMPONENTS OF splicing, and automatic tagging.
func (c *context) lowerStructured(t *ast.Type, e *env, kind asn1.Kind) (*asn1.Type, *asn1.ResolveError) {
	node := &asn1.Type{Kind: kind, Extensible: t.Extensible}

	autoTag := c.moduleTagDefault(e.module) == ast.TagDefaultAutomatic &&
		!anyComponentTagged(t)

	// Automatic tag ordinals follow textual order: first root list,
	// extension additions, trailing root list.
	ordinal := 0

	lowerList := func(comps []ast.Component, extGroup int) *asn1.ResolveError {
		for _, comp := range comps {
			if comp.ComponentsOf {
				spliced, err := c.spliceComponentsOf(comp.Type, e)
				if err != nil {
					return err
				}
				for _, m := range spliced {
					m.ExtGroup = extGroup
					node.Members = append(node.Members, m)
					ordinal++
				}
				continue
			}

			member := asn1.Member{
				Name:     comp.Name.Name,
				Optional: comp.Optional,
				ExtGroup: extGroup,
			}

			id, err := c.lowerMemberType(comp.Type, e, autoTag, ordinal)
			if err != nil {
				return err
			}
			member.Type = id

			if comp.Default != nil {
				def, err := c.convertValue(id, comp.Default, e)
				if err != nil {
					return err
				}
				member.Default = def
			}
			node.Members = append(node.Members, member)
			ordinal++
		}
		return nil
	}

	if err := lowerList(t.Components, 0); err != nil {
		return nil, err
	}
	for gi, group := range t.ExtensionGroups {
		if err := lowerList(group.Components, gi+1); err != nil {
			return nil, err
		}
	}
	if err := lowerList(t.TrailingRoot, 0); err != nil {
		return nil, err
	}

	// Reorder so root members precede extension members; codecs rely on
	// it for preambles and extension bitmaps.
	node.Members = reorderMembers(node.Members)
	return node, nil
}

// lowerMemberType lowers one member's type, applying the automatic tag
// for its ordinal when the enclosing type is automatically tagged.
// Automatic tags are implicit except over an untagged CHOICE or ANY.
func (c *context) lowerMemberType(t *ast.Type, e *env, autoTag bool, ordinal int) (asn1.TypeID, *asn1.ResolveError) {
	if !autoTag {
		return c.lowerTypeID(t, e)
	}

	if c.refersIntoCycle(t, e) {
		id := c.alloc()
		c.fixups = append(c.fixups, fixup{id: id, typ: t, env: e, autoTag: true, ordinal: ordinal})
		return id, nil
	}

	node, err := c.lowerTypeNode(t, e)
	if err != nil {
		return asn1.NoType, err
	}
	explicit := len(node.Tags) == 0 &&
		(node.Kind == asn1.KindChoice || node.Kind == asn1.KindAny)
	applyTag(node, asn1.Tag{Class: asn1.ClassContext, Number: ordinal}, explicit)
	id := c.alloc()
	c.arena[id] = *node
	c.filled[id] = true
	return id, nil
}

// anyComponentTagged reports whether any member in any section carries a
// source-level tag, which switches automatic tagging off for the whole
// type.
func anyComponentTagged(t *ast.Type) bool {
	check := func(comps []ast.Component) bool {
		for _, comp := range comps {
			if !comp.ComponentsOf && comp.Type.Kind == ast.KindTagged {
				return true
			}
		}
		return false
	}
	if check(t.Components) || check(t.TrailingRoot) {
		return true
	}
	for _, g := range t.ExtensionGroups {
		if check(g.Components) {
			return true
		}
	}
	return false
}

// spliceComponentsOf expands "COMPONENTS OF T" into T's root members.
func (c *context) spliceComponentsOf(t *ast.Type, e *env) ([]asn1.Member, *asn1.ResolveError) {
	node, err := c.lowerTypeNode(t, e)
	if err != nil {
		return nil, err
	}
	if node.Kind != asn1.KindSequence && node.Kind != asn1.KindSet {
		return nil, c.errorf(asn1.ResolveTypeMismatch, defKey{module: e.module},
			"COMPONENTS OF requires a SEQUENCE or SET type")
	}
	var out []asn1.Member
	for _, m := range node.Members {
		if m.ExtGroup == 0 {
			out = append(out, m)
		}
	}
	return out, nil
}

// reorderMembers moves root members ahead of extension members while
// preserving relative order within each section.
func reorderMembers(members []asn1.Member) []asn1.Member {
	out := make([]asn1.Member, 0, len(members))
	for _, m := range members {
		if m.ExtGroup == 0 {
			out = append(out, m)
		}
	}
	for _, m := range members {
		if m.ExtGroup != 0 {
			out = append(out, m)
		}
	}
	return out
}

func (c *context) lowerOf(t *ast.Type, e *env, kind asn1.Kind) (*asn1.Type, *asn1.ResolveError) {
	elemID, err := c.lowerTypeID(t.Element, e)
	if err != nil {
		return nil, err
	}
	node := &asn1.Type{Kind: kind, Element: elemID}
	if t.OfConstraint != nil {
		constraint, err := c.resolveConstraint(t.OfConstraint, e)
		if err != nil {
			return nil, err
		}
		node.Constraint = constraint
	}
	return node, nil
}

// lowerTagged lowers "[class n] EXPLICIT|IMPLICIT Inner". The inner node
// is copied so that tagging a reference never mutates the referent.
func (c *context) lowerTagged(t *ast.Type, e *env) (*asn1.Type, *asn1.ResolveError) {
	inner, err := c.lowerTypeNode(t.Inner, e)
	if err != nil {
		return nil, err
	}

	number64, rerr := c.evalIntValue(t.Tag.Number, e)
	if rerr != nil {
		return nil, rerr
	}
	if number64 < 0 {
		return nil, c.errorf(asn1.ResolveTypeMismatch, defKey{module: e.module},
			"negative tag number %d", number64)
	}

	class := asn1.ClassContext
	switch t.Tag.Class {
	case ast.TagClassUniversal:
		class = asn1.ClassUniversal
	case ast.TagClassApplication:
		class = asn1.ClassApplication
	case ast.TagClassPrivate:
		class = asn1.ClassPrivate
	}

	explicit := c.tagIsExplicit(t.Tag, inner, e)
	node := *inner
	node.Name, node.Module = "", ""
	applyTag(&node, asn1.Tag{Class: class, Number: int(number64)}, explicit)
	return &node, nil
}

// tagIsExplicit decides the tagging kind: the keyword wins, then the
// module default. An untagged CHOICE, ANY, or open type cannot be
// implicitly tagged and is always wrapped.
func (c *context) tagIsExplicit(tag *ast.Tag, inner *asn1.Type, e *env) bool {
	explicit := true
	switch tag.Kind {
	case ast.TagKindExplicit:
		explicit = true
	case ast.TagKindImplicit:
		explicit = false
	default:
		explicit = c.moduleTagDefault(e.module) == ast.TagDefaultExplicit
	}
	if !explicit && len(inner.Tags) == 0 &&
		(inner.Kind == asn1.KindChoice || inner.Kind == asn1.KindAny) {
		explicit = true
	}
	return explicit
}

// applyTag prepends a tag to a node. An implicit tag replaces the node's
// outermost tag; an explicit tag wraps it.
func applyTag(node *asn1.Type, tag asn1.Tag, explicit bool) {
	if explicit {
		tag.Explicit = true
		node.Tags = append([]asn1.Tag{tag}, node.Tags...)
		return
	}
	if len(node.Tags) > 0 {
		// The replaced tag keeps its wrapping behavior.
		tag.Explicit = node.Tags[0].Explicit
		node.Tags = append([]asn1.Tag{tag}, node.Tags[1:]...)
		return
	}
	node.Tags = []asn1.Tag{tag}
}

func (c *context) lowerConstrained(t *ast.Type, e *env) (*asn1.Type, *asn1.ResolveError) {
	inner, err := c.lowerTypeNode(t.Inner, e)
	if err != nil {
		return nil, err
	}
	constraint, err := c.resolveConstraintFor(t.Constraint, e, inner)
	if err != nil {
		return nil, err
	}
	node := *inner
	node.Name, node.Module = "", ""
	node.Constraint = mergeConstraints(node.Constraint, constraint)
	return &node, nil
}

// lowerReference produces a copy of the referent's node, instantiating
// parameterized templates on the way.
func (c *context) lowerReference(t *ast.Type, e *env) (*asn1.Type, *asn1.ResolveError) {
	name := t.RefName.Name

	if t.Module == nil && len(t.Actuals) == 0 {
		if b, ok := e.lookup(name); ok {
			if b.typ == nil {
				return nil, c.errorf(asn1.ResolveParameterMismatch,
					defKey{module: e.module, name: name},
					"value parameter %q used as a type", name)
			}
			return c.lowerTypeNode(b.typ, b.env)
		}
	}

	from := e.module
	if t.Module != nil {
		from = t.Module.Name
	}
	key, def, found := c.resolveTypeDef(from, name)
	if !found {
		return nil, c.errorf(asn1.ResolveUnknownReference,
			defKey{module: e.module, name: name},
			"type %q not found", name)
	}

	if len(def.Parameters) > 0 {
		id, err := c.instantiate(key, def, t.Actuals, e)
		if err != nil {
			return nil, err
		}
		node := c.arena[id]
		node.Name, node.Module = "", ""
		return &node, nil
	}
	if len(t.Actuals) > 0 {
		return nil, c.errorf(asn1.ResolveParameterMismatch, key,
			"type %q is not parameterized", name)
	}

	if err := c.fillDef(key); err != nil {
		return nil, err
	}
	node := c.arena[c.ids[key]]
	node.Name, node.Module = "", ""
	return &node, nil
}

func (c *context) lowerSelection(t *ast.Type, e *env) (*asn1.Type, *asn1.ResolveError) {
	inner, err := c.lowerTypeNode(t.Inner, e)
	if err != nil {
		return nil, err
	}
	if inner.Kind != asn1.KindChoice {
		return nil, c.errorf(asn1.ResolveTypeMismatch, defKey{module: e.module},
			"selection %q from a non-CHOICE type", t.Selector.Name)
	}
	for _, m := range inner.Members {
		if m.Name == t.Selector.Name {
			node := c.arena[m.Type]
			node.Name, node.Module = "", ""
			return &node, nil
		}
	}
	return nil, c.errorf(asn1.ResolveUnknownReference, defKey{module: e.module},
		"selection %q not an alternative", t.Selector.Name)
}

// instantiate expands a parameterized template with the given actuals.
// Substitution is hygienic: actual parameters resolve in the environment
// of the instantiation site, the template body in the template's module.
// Instantiations are memoized by template plus actual signature.
func (c *context) instantiate(key defKey, def *ast.TypeAssignment, actuals []ast.Param, e *env) (asn1.TypeID, *asn1.ResolveError) {
	if len(actuals) != len(def.Parameters) {
		return asn1.NoType, c.errorf(asn1.ResolveParameterMismatch, key,
			"%d actual parameters for %d formals", len(actuals), len(def.Parameters))
	}

	sig := make([]string, 0, len(actuals)+1)
	sig = append(sig, key.String())
	for _, a := range actuals {
		sig = append(sig, c.actualKey(a, e))
	}
	memoKey := strings.Join(sig, "|")
	if id, ok := c.instMemo[memoKey]; ok {
		return id, nil
	}
	if c.filling[key] {
		return asn1.NoType, c.errorf(asn1.ResolveCyclicInstantiation, key,
			"parameterized type %q instantiates itself", key.name)
	}
	c.filling[key] = true
	defer delete(c.filling, key)

	bindings := make(map[string]binding, len(actuals))
	for i, formal := range def.Parameters {
		a := actuals[i]
		if formal.Governor == nil {
			// A bare uppercase formal takes a type; a bare lowercase
			// formal takes a value.
			if isUpperName(formal.Name.Name) && a.Type == nil {
				return asn1.NoType, c.errorf(asn1.ResolveParameterMismatch, key,
					"parameter %q expects a type", formal.Name.Name)
			}
			if !isUpperName(formal.Name.Name) && a.Value == nil {
				return asn1.NoType, c.errorf(asn1.ResolveParameterMismatch, key,
					"parameter %q expects a value", formal.Name.Name)
			}
		} else if a.Value == nil {
			return asn1.NoType, c.errorf(asn1.ResolveParameterMismatch, key,
				"parameter %q expects a value", formal.Name.Name)
		}
		bindings[formal.Name.Name] = binding{typ: a.Type, val: a.Value, env: e}
	}

	inst := &env{module: key.module, bindings: bindings}
	node, err := c.lowerTypeNode(def.Type, inst)
	if err != nil {
		return asn1.NoType, err
	}
	id := c.alloc()
	c.arena[id] = *node
	c.filled[id] = true
	c.instMemo[memoKey] = id
	return id, nil
}

// actualKey renders an actual parameter as a stable memoization key.
func (c *context) actualKey(a ast.Param, e *env) string {
	if a.Value != nil {
		if v, err := c.evalValue(a.Value, e); err == nil {
			return fmt.Sprintf("v:%v", v)
		}
		return "v:?"
	}
	if a.Type != nil {
		return "t:" + typeKey(a.Type)
	}
	return "?"
}

// typeKey builds a structural key for a syntax type; enough to share
// instantiations of the same written actual.
func typeKey(t *ast.Type) string {
	if t == nil {
		return ""
	}
	switch t.Kind {
	case ast.KindReference:
		name := t.RefName.Name
		if t.Module != nil {
			name = t.Module.Name + "." + name
		}
		return "ref:" + name
	case ast.KindCharacterString:
		return "str:" + t.Name
	case ast.KindSequenceOf, ast.KindSetOf:
		return fmt.Sprintf("of%d:%s", t.Kind, typeKey(t.Element))
	case ast.KindTagged:
		return fmt.Sprintf("tag:%s", typeKey(t.Inner))
	case ast.KindConstrained:
		return fmt.Sprintf("con%d-%d:%s", t.Span.Start, t.Span.End, typeKey(t.Inner))
	default:
		return fmt.Sprintf("k%d", t.Kind)
	}
}

func isUpperName(name string) bool {
	return len(name) > 0 && name[0] >= 'A' && name[0] <= 'Z'
}

// moduleTagDefault returns the tagging mode of a module.
func (c *context) moduleTagDefault(module string) ast.TagDefault {
	if m, ok := c.table.Module(module); ok {
		return m.TagDefault
	}
	return ast.TagDefaultExplicit
}
