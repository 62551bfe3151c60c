package resolver

import (
	"fmt"
	"log/slog"

	"github.com/golangasn1/goasn1/asn1"
	"github.com/golangasn1/goasn1/internal/ast"
	"github.com/golangasn1/goasn1/internal/modtab"
	"github.com/golangasn1/goasn1/internal/types"
)

// defKey identifies a top-level definition.
type defKey struct {
	module string
	name   string
}

func (k defKey) String() string {
	return k.module + "." + k.name
}

// binding is one formal-parameter substitution. The env records where the
// actual was written so its names resolve in the instantiating module,
// never in the template's (hygienic substitution).
type binding struct {
	typ *ast.Type
	val *ast.Value
	env *env
}

// fixup is a deferred lowering of a member type that refers into a
// definition cycle. The reserved slot id is patched once all definitions
// are filled.
type fixup struct {
	id      asn1.TypeID
	typ     *ast.Type
	env     *env
	autoTag bool
	ordinal int
}

// env is the name-resolution environment of a lowering: the current module
// plus any formal-parameter bindings in scope.
type env struct {
	module   string
	bindings map[string]binding
}

func (e *env) lookup(name string) (binding, bool) {
	if e.bindings == nil {
		return binding{}, false
	}
	b, ok := e.bindings[name]
	return b, ok
}

// context carries all mutable state of one resolution run.
type context struct {
	table *modtab.Table

	arena  []asn1.Type
	ids    map[defKey]asn1.TypeID
	keyOf  map[asn1.TypeID]defKey
	filled map[asn1.TypeID]bool

	// filling guards against direct definition cycles that cannot be
	// broken by the arena (a constrained or tagged reference to a type
	// still being filled).
	filling map[defKey]bool

	typeDefs  map[defKey]*ast.TypeAssignment
	valueDefs map[defKey]*ast.ValueAssignment

	// templates holds parameterized type assignments; instMemo caches
	// instantiations by template plus actual-parameter signature.
	templates map[defKey]*ast.TypeAssignment
	instMemo  map[string]asn1.TypeID

	// fixups are lazy links: tagged or constrained references into a
	// definition still being filled. Their slots are patched once every
	// definition is lowered.
	fixups []fixup

	modules  []asn1.ModuleInfo
	warnings []string
	errors   []*asn1.ResolveError
	lint     bool

	types.Logger
}

func newContext(table *modtab.Table, lint bool, logger *slog.Logger) *context {
	return &context{
		table:     table,
		ids:       make(map[defKey]asn1.TypeID),
		keyOf:     make(map[asn1.TypeID]defKey),
		filled:    make(map[asn1.TypeID]bool),
		filling:   make(map[defKey]bool),
		typeDefs:  make(map[defKey]*ast.TypeAssignment),
		valueDefs: make(map[defKey]*ast.ValueAssignment),
		templates: make(map[defKey]*ast.TypeAssignment),
		instMemo:  make(map[string]asn1.TypeID),
		lint:      lint,
		Logger:    types.Logger{L: logger},
	}
}

// alloc reserves a fresh arena slot.
func (c *context) alloc() asn1.TypeID {
	c.arena = append(c.arena, asn1.Type{})
	return asn1.TypeID(len(c.arena) - 1)
}

// node returns a mutable pointer into the arena; valid only during
// resolution.
func (c *context) node(id asn1.TypeID) *asn1.Type {
	return &c.arena[id]
}

// fail records an error. In lint mode resolution continues; otherwise the
// first error aborts via the returned sentinel.
func (c *context) fail(err *asn1.ResolveError) *asn1.ResolveError {
	c.errors = append(c.errors, err)
	c.Log(slog.LevelDebug, "resolve error", slog.String("error", err.Error()))
	return err
}

// errorf is shorthand for fail with a formatted message.
func (c *context) errorf(kind asn1.ResolveErrorKind, key defKey, format string, args ...any) *asn1.ResolveError {
	return c.fail(&asn1.ResolveError{
		Kind:    kind,
		Module:  key.module,
		Type:    key.name,
		Message: fmt.Sprintf(format, args...),
	})
}

// resolveTypeDef finds the defining module and assignment of a type
// reference seen from the given module: local definitions first, then
// imports, then a unique match anywhere (lenient, matching how vendors
// omit IMPORTS).
func (c *context) resolveTypeDef(from, name string) (defKey, *ast.TypeAssignment, bool) {
	key := defKey{module: from, name: name}
	if def, ok := c.typeDefs[key]; ok {
		return key, def, true
	}
	if def, ok := c.templates[key]; ok {
		return key, def, true
	}
	if source, ok := c.table.ImportSource(from, name); ok {
		return c.resolveTypeDef(source, name)
	}
	var found defKey
	var foundDef *ast.TypeAssignment
	count := 0
	for k, def := range c.typeDefs {
		if k.name == name {
			found, foundDef = k, def
			count++
		}
	}
	for k, def := range c.templates {
		if k.name == name {
			found, foundDef = k, def
			count++
		}
	}
	if count == 1 {
		return found, foundDef, true
	}
	return defKey{}, nil, false
}

// resolveValueDef finds a value assignment by name, with the same lookup
// order as resolveTypeDef.
func (c *context) resolveValueDef(from, name string) (*ast.ValueAssignment, bool) {
	key := defKey{module: from, name: name}
	if def, ok := c.valueDefs[key]; ok {
		return def, true
	}
	if source, ok := c.table.ImportSource(from, name); ok {
		return c.resolveValueDef(source, name)
	}
	var found *ast.ValueAssignment
	count := 0
	for k, def := range c.valueDefs {
		if k.name == name {
			found = def
			count++
		}
	}
	if count == 1 {
		return found, true
	}
	return nil, false
}
