// Package resolver lowers parsed ASN.1 modules into the frozen asn1 type
// model.
//
// # Resolution phases
//
//  1. Registration: index modules, type and value assignments; reserve an
//     arena slot per non-parameterized defined type.
//  2. Imports: verify every imported symbol exists in its source module.
//  3. Lowering: fill every arena slot — assign automatic tags, instantiate
//     parameterized references, resolve references, evaluate and merge
//     constraints, fold defaults.
//  4. Checks: tag uniqueness and recursion legality.
//  5. Freeze: compute encoding hints and assemble the Schema.
//
// References between defined types resolve to arena indexes, so recursive
// types are plain index cycles; only constrained or tagged references to a
// type force its definition to be filled early.
package resolver

import (
	"log/slog"

	"github.com/golangasn1/goasn1/asn1"
	"github.com/golangasn1/goasn1/internal/ast"
	"github.com/golangasn1/goasn1/internal/modtab"
)

// Resolve lowers the table's modules into a Schema. In lint mode all
// diagnosable errors are collected and returned together; otherwise
// resolution stops after the first phase that reports an error, and
// lowering stops at its first error.
func Resolve(table *modtab.Table, lint bool, logger *slog.Logger) (*asn1.Schema, []*asn1.ResolveError) {
	c := newContext(table, lint, logger)

	c.Log(slog.LevelDebug, "starting phase", slog.String("phase", "register"))
	c.register()
	if len(c.errors) > 0 && !lint {
		return nil, c.errors
	}

	c.Log(slog.LevelDebug, "starting phase", slog.String("phase", "imports"))
	c.checkImports()
	if len(c.errors) > 0 && !lint {
		return nil, c.errors
	}

	c.Log(slog.LevelDebug, "starting phase", slog.String("phase", "lower"))
	for _, m := range table.Modules() {
		for _, a := range m.Assignments {
			ta, ok := a.(*ast.TypeAssignment)
			if !ok || len(ta.Parameters) > 0 {
				continue
			}
			key := defKey{module: m.Name.Name, name: ta.Name.Name}
			if err := c.fillDef(key); err != nil && !lint {
				return nil, c.errors
			}
		}
	}
	if err := c.processFixups(); err != nil && !lint {
		return nil, c.errors
	}
	c.Log(slog.LevelDebug, "phase complete", slog.String("phase", "lower"),
		slog.Int("types", len(c.arena)))

	c.Log(slog.LevelDebug, "starting phase", slog.String("phase", "check"))
	c.checkTagUniqueness()
	c.checkRecursion()
	if len(c.errors) > 0 {
		return nil, c.errors
	}

	c.Log(slog.LevelDebug, "starting phase", slog.String("phase", "freeze"))
	for i := range c.arena {
		asn1.ComputeHints(&c.arena[i])
	}

	byName := make(map[string]asn1.TypeID, len(c.ids))
	for key, id := range c.ids {
		byName[key.module+"."+key.name] = id
		if existing, dup := byName[key.name]; !dup || existing == id {
			byName[key.name] = id
		}
	}

	warnings := append(table.Warnings(), c.warnings...)
	schema := asn1.NewSchema(c.arena, byName, c.modules, warnings)
	c.Log(slog.LevelDebug, "resolution complete",
		slog.Int("types", schema.Len()),
		slog.Int("warnings", len(warnings)))
	return schema, nil
}

// register indexes every assignment and reserves arena slots for
// non-parameterized type definitions.
func (c *context) register() {
	for _, m := range c.table.Modules() {
		info := asn1.ModuleInfo{
			Name:       m.Name.Name,
			TagDefault: m.TagDefault.String(),
		}
		for _, a := range m.Assignments {
			key := defKey{module: m.Name.Name, name: a.AssignmentName().Name}
			switch def := a.(type) {
			case *ast.TypeAssignment:
				if _, dup := c.typeDefs[key]; dup {
					c.errorf(asn1.ResolveDuplicateDefinition, key,
						"type %q defined twice", key.name)
					continue
				}
				if _, dup := c.templates[key]; dup {
					c.errorf(asn1.ResolveDuplicateDefinition, key,
						"type %q defined twice", key.name)
					continue
				}
				if len(def.Parameters) > 0 {
					c.templates[key] = def
				} else {
					c.typeDefs[key] = def
					id := c.alloc()
					c.ids[key] = id
					c.keyOf[id] = key
					info.TypeNames = append(info.TypeNames, key.name)
				}
			case *ast.ValueAssignment:
				if _, dup := c.valueDefs[key]; dup {
					c.errorf(asn1.ResolveDuplicateDefinition, key,
						"value %q defined twice", key.name)
					continue
				}
				c.valueDefs[key] = def
			}
		}
		c.modules = append(c.modules, info)
	}
}

// checkImports verifies that each imported symbol is defined in its
// source module.
func (c *context) checkImports() {
	for _, m := range c.table.Modules() {
		for _, imp := range m.Imports {
			source, known := c.table.Module(imp.From.Name)
			if !known {
				c.errorf(asn1.ResolveUnknownImport,
					defKey{module: m.Name.Name},
					"imported module %q is not part of the compilation", imp.From.Name)
				continue
			}
			for _, sym := range imp.Symbols {
				if _, ok := c.table.Symbol(source.Name.Name, sym.Name); !ok {
					c.errorf(asn1.ResolveUnknownImport,
						defKey{module: m.Name.Name, name: sym.Name},
						"symbol %q not defined in module %q", sym.Name, imp.From.Name)
				}
			}
		}
	}
}

// fillDef lowers one registered definition into its reserved slot. A
// definition already being filled indicates an unbreakable cycle.
func (c *context) fillDef(key defKey) *asn1.ResolveError {
	id, ok := c.ids[key]
	if !ok {
		return c.errorf(asn1.ResolveUnknownReference, key, "unregistered definition")
	}
	if c.filled[id] {
		return nil
	}
	if c.filling[key] {
		return c.errorf(asn1.ResolveIllegalRecursion, key,
			"type %q depends on itself without an OPTIONAL or SEQUENCE OF escape", key.name)
	}
	c.filling[key] = true
	defer delete(c.filling, key)

	def := c.typeDefs[key]
	e := &env{module: key.module}
	node, err := c.lowerTypeNode(def.Type, e)
	if err != nil {
		return err
	}
	node.Name = key.name
	node.Module = key.module
	c.arena[id] = *node
	c.filled[id] = true

	if c.TraceEnabled() {
		c.Trace("definition lowered",
			slog.String("type", key.String()),
			slog.Int("id", int(id)))
	}
	return nil
}
