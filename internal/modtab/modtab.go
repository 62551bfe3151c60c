// Package modtab provides the module table: the mapping from module name
// to its parsed definitions, with symbol lookup and import-cycle
// detection.
package modtab

import (
	"fmt"
	"log/slog"

	"github.com/golangasn1/goasn1/internal/ast"
	"github.com/golangasn1/goasn1/internal/types"
)

// Table indexes parsed modules by name. Import cycles are legal in ASN.1;
// the table reports them as warnings and the resolver breaks them lazily.
type Table struct {
	modules  []*ast.Module
	byName   map[string]*ast.Module
	warnings []string
	types.Logger
}

// New returns an empty table.
func New(logger *slog.Logger) *Table {
	return &Table{
		byName: make(map[string]*ast.Module),
		Logger: types.Logger{L: logger},
	}
}

// Add registers a module. Duplicate module names within one compilation
// are an error.
func (t *Table) Add(m *ast.Module) error {
	if _, exists := t.byName[m.Name.Name]; exists {
		return fmt.Errorf("duplicate module %q", m.Name.Name)
	}
	t.modules = append(t.modules, m)
	t.byName[m.Name.Name] = m
	t.Log(slog.LevelDebug, "module registered",
		slog.String("module", m.Name.Name),
		slog.Int("assignments", len(m.Assignments)))
	return nil
}

// Modules returns all modules in registration order.
func (t *Table) Modules() []*ast.Module {
	return t.modules
}

// Module returns the module with the given name.
func (t *Table) Module(name string) (*ast.Module, bool) {
	m, ok := t.byName[name]
	return m, ok
}

// Symbol finds an assignment by name within a module.
func (t *Table) Symbol(module, symbol string) (ast.Assignment, bool) {
	m, ok := t.byName[module]
	if !ok {
		return nil, false
	}
	for _, a := range m.Assignments {
		if a.AssignmentName().Name == symbol {
			return a, true
		}
	}
	return nil, false
}

// ImportSource returns the module a symbol is imported from, per the
// IMPORTS clause of module. ok is false when the symbol is not imported.
func (t *Table) ImportSource(module, symbol string) (string, bool) {
	m, ok := t.byName[module]
	if !ok {
		return "", false
	}
	for _, imp := range m.Imports {
		for _, s := range imp.Symbols {
			if s.Name == symbol {
				return imp.From.Name, true
			}
		}
	}
	return "", false
}

// Warnings returns accumulated warnings, import cycles included once
// DetectCycles has run.
func (t *Table) Warnings() []string {
	return t.warnings
}

// DetectCycles walks the import graph and records each cycle as a
// warning.
func (t *Table) DetectCycles() {
	const (
		unvisited = 0
		inStack   = 1
		done      = 2
	)
	state := make(map[string]int)
	var stack []string

	var visit func(name string)
	visit = func(name string) {
		state[name] = inStack
		stack = append(stack, name)

		if m, ok := t.byName[name]; ok {
			for _, imp := range m.Imports {
				target := imp.From.Name
				switch state[target] {
				case unvisited:
					if _, known := t.byName[target]; known {
						visit(target)
					}
				case inStack:
					cycle := extractCycle(stack, target)
					t.warnings = append(t.warnings,
						fmt.Sprintf("import cycle: %s", cycle))
					t.Log(slog.LevelWarn, "import cycle detected",
						slog.String("cycle", cycle))
				}
			}
		}

		stack = stack[:len(stack)-1]
		state[name] = done
	}

	for _, m := range t.modules {
		if state[m.Name.Name] == unvisited {
			visit(m.Name.Name)
		}
	}
}

func extractCycle(stack []string, target string) string {
	start := 0
	for i, name := range stack {
		if name == target {
			start = i
			break
		}
	}
	cycle := ""
	for _, name := range stack[start:] {
		if cycle != "" {
			cycle += " -> "
		}
		cycle += name
	}
	return cycle + " -> " + target
}
