package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/golangasn1/goasn1"
	"github.com/golangasn1/goasn1/cmd/internal/cliutil"
)

func (c *cli) compileWith(args []string, lint bool) (*goasn1.Schema, []string, int) {
	sources, rest, err := c.gatherSources(args)
	if err != nil {
		cliutil.PrintError("%v", err)
		return nil, nil, exitError
	}
	if len(sources) == 0 {
		cliutil.PrintError("no .asn/.asn1 sources given")
		return nil, nil, exitError
	}

	codec, ok := c.selectedCodec()
	if !ok {
		cliutil.PrintError("unknown codec %q", c.codec)
		return nil, nil, exitError
	}

	opts := []goasn1.CompileOption{
		goasn1.WithCodec(codec),
		goasn1.WithLint(lint),
	}
	if logger := c.setupLogger(); logger != nil {
		opts = append(opts, goasn1.WithLogger(logger))
	}

	schema, err := goasn1.Compile(sources, opts...)
	if err != nil {
		cliutil.PrintError("%v", err)
		if lint {
			return nil, nil, exitLint
		}
		return nil, nil, exitError
	}
	return schema, rest, exitOK
}

func (c *cli) cmdCompile(args []string) int {
	schema, _, code := c.compileWith(args, false)
	if code != exitOK {
		return code
	}
	for _, m := range schema.Modules() {
		fmt.Printf("%s (%s TAGS): %d types\n", m.Name, m.TagDefault, len(m.TypeNames))
	}
	for _, w := range schema.Warnings() {
		fmt.Printf("warning: %s\n", w)
	}
	return exitOK
}

func (c *cli) cmdLint(args []string) int {
	schema, _, code := c.compileWith(args, true)
	if code != exitOK {
		return code
	}
	warnings := schema.Warnings()
	for _, w := range warnings {
		fmt.Printf("warning: %s\n", w)
	}
	fmt.Printf("ok: %d modules, %d warnings\n", len(schema.Modules()), len(warnings))
	return exitOK
}

// dumpType is the JSON projection of one type model node.
type dumpType struct {
	Name       string   `json:"name"`
	Module     string   `json:"module,omitempty"`
	Kind       string   `json:"kind"`
	Members    []string `json:"members,omitempty"`
	Extensible bool     `json:"extensible,omitempty"`
}

func (c *cli) cmdDump(args []string) int {
	fs := flag.NewFlagSet("dump", flag.ContinueOnError)
	output := fs.String("o", "", "output file")
	if err := fs.Parse(args); err != nil {
		return exitError
	}

	schema, _, code := c.compileWith(fs.Args(), false)
	if code != exitOK {
		return code
	}

	model := schema.Model()
	var types []dumpType
	for _, name := range schema.TypeNames() {
		id, _ := model.Lookup(name)
		node := model.Type(id)
		dt := dumpType{
			Name:       node.Name,
			Module:     node.Module,
			Kind:       node.Kind.String(),
			Extensible: node.Extensible,
		}
		for _, m := range node.Members {
			dt.Members = append(dt.Members, m.Name)
		}
		types = append(types, dt)
	}

	out, closeOut, err := cliutil.GetOutput(*output)
	if err != nil {
		cliutil.PrintError("%v", err)
		return exitError
	}
	defer closeOut()

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(types); err != nil {
		cliutil.PrintError("%v", err)
		return exitError
	}
	return exitOK
}

func (c *cli) cmdEncode(args []string) int {
	fs := flag.NewFlagSet("encode", flag.ContinueOnError)
	typeName := fs.String("t", "", "type name to encode")
	if err := fs.Parse(args); err != nil {
		return exitError
	}
	if *typeName == "" {
		cliutil.PrintError("encode requires -t TYPE")
		return exitError
	}

	schema, rest, code := c.compileWith(fs.Args(), false)
	if code != exitOK {
		return code
	}
	if len(rest) != 1 {
		cliutil.PrintError("encode requires exactly one JSON value argument")
		return exitError
	}

	value, err := jsonToValue(schema, *typeName, []byte(rest[0]))
	if err != nil {
		cliutil.PrintError("%v", err)
		return exitError
	}

	encoded, err := schema.Encode(*typeName, value)
	if err != nil {
		cliutil.PrintError("%v", err)
		return exitError
	}
	fmt.Println(cliutil.FormatHex(encoded))
	return exitOK
}

func (c *cli) cmdDecode(args []string) int {
	fs := flag.NewFlagSet("decode", flag.ContinueOnError)
	typeName := fs.String("t", "", "type name to decode")
	if err := fs.Parse(args); err != nil {
		return exitError
	}
	if *typeName == "" {
		cliutil.PrintError("decode requires -t TYPE")
		return exitError
	}

	schema, rest, code := c.compileWith(fs.Args(), false)
	if code != exitOK {
		return code
	}
	if len(rest) != 1 {
		cliutil.PrintError("decode requires exactly one hex argument (or '-' for stdin)")
		return exitError
	}

	input := rest[0]
	if input == "-" {
		raw, err := cliutil.ReadInput("-")
		if err != nil {
			cliutil.PrintError("%v", err)
			return exitError
		}
		input = string(raw)
	}
	data, err := cliutil.DecodeHex(input)
	if err != nil {
		cliutil.PrintError("invalid hex input: %v", err)
		return exitError
	}

	value, err := schema.Decode(*typeName, data)
	if err != nil {
		cliutil.PrintError("%v", err)
		return exitError
	}

	rendered, err := valueToJSON(schema, *typeName, value)
	if err != nil {
		cliutil.PrintError("%v", err)
		return exitError
	}
	fmt.Fprintln(os.Stdout, string(rendered))
	return exitOK
}

// jsonToValue converts CLI JSON input to the marshaller value shape via
// the JER mapping.
func jsonToValue(schema *goasn1.Schema, typeName string, data []byte) (any, error) {
	return goasn1.Rebind(schema, goasn1.JER).Decode(typeName, data)
}

// valueToJSON renders a decoded value as JSON via the JER mapping.
func valueToJSON(schema *goasn1.Schema, typeName string, value any) ([]byte, error) {
	return goasn1.Rebind(schema, goasn1.JER).Encode(typeName, value)
}
