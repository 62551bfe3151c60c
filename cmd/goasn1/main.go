// Command goasn1 is a CLI tool for compiling ASN.1 modules and encoding
// or decoding values against them.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/golangasn1/goasn1"
)

// Exit codes.
const (
	exitOK    = 0 // success
	exitError = 1 // user error or processing failure
	exitLint  = 2 // lint found errors
)

const usage = `goasn1 - ASN.1 compiler and codec tool

Usage:
  goasn1 <command> [options] [arguments]

Commands:
  compile  Compile modules and print a summary
  lint     Check modules for issues, collecting all diagnostics
  dump     Output the compiled type model as JSON
  encode   Encode a JSON value to the bound codec (hex output)
  decode   Decode hex input to a JSON value
  version  Show version

Common options:
  -c, --codec NAME  Wire format: ber cer der oer per uper jer xer gser
  -v, --verbose     Enable debug logging
  -vv               Enable trace logging (implies -v)
  -h, --help        Show help

Sources are .asn/.asn1 files or directories. A goasn1.toml in the working
directory may set "codec" and "paths" defaults.

Examples:
  goasn1 compile pdu.asn
  goasn1 dump pdu.asn
  goasn1 encode -c uper -t Question pdu.asn '{"id": 1}'
  goasn1 decode -c uper -t Question pdu.asn '01 01'
`

// fileConfig is the optional goasn1.toml configuration.
type fileConfig struct {
	Codec string   `toml:"codec"`
	Paths []string `toml:"paths"`
}

type cli struct {
	verbose  int
	codec    string
	helpFlag bool
	config   fileConfig
}

func main() {
	os.Exit(run())
}

func run() int {
	var c cli
	c.loadConfig()

	args := os.Args[1:]
	var cmd string
	var cmdArgs []string

	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch {
		case arg == "-h" || arg == "--help":
			c.helpFlag = true
		case arg == "-v" || arg == "--verbose":
			if c.verbose < 1 {
				c.verbose = 1
			}
		case arg == "-vv":
			c.verbose = 2
		case arg == "-c" || arg == "--codec":
			if i+1 < len(args) {
				i++
				c.codec = args[i]
			}
		case strings.HasPrefix(arg, "--codec="):
			c.codec = arg[8:]
		case len(arg) > 0 && arg[0] == '-':
			cmdArgs = append(cmdArgs, arg)
		default:
			if cmd == "" {
				cmd = arg
			} else {
				cmdArgs = append(cmdArgs, arg)
			}
		}
	}

	if c.helpFlag && cmd == "" {
		fmt.Fprint(os.Stdout, usage)
		return exitOK
	}
	if cmd == "" {
		fmt.Fprint(os.Stderr, usage)
		return exitError
	}

	switch cmd {
	case "compile":
		return c.cmdCompile(cmdArgs)
	case "lint":
		return c.cmdLint(cmdArgs)
	case "dump":
		return c.cmdDump(cmdArgs)
	case "encode":
		return c.cmdEncode(cmdArgs)
	case "decode":
		return c.cmdDecode(cmdArgs)
	case "version":
		printVersion()
		return exitOK
	case "help":
		fmt.Fprint(os.Stdout, usage)
		return exitOK
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", cmd)
		fmt.Fprint(os.Stderr, usage)
		return exitError
	}
}

// loadConfig reads goasn1.toml from the working directory when present.
func (c *cli) loadConfig() {
	content, err := os.ReadFile("goasn1.toml")
	if err != nil {
		return
	}
	if err := toml.Unmarshal(content, &c.config); err != nil {
		fmt.Fprintf(os.Stderr, "warning: bad goasn1.toml: %v\n", err)
		return
	}
	if c.config.Codec != "" {
		c.codec = c.config.Codec
	}
}

func (c *cli) setupLogger() *slog.Logger {
	if c.verbose == 0 {
		return nil
	}
	level := slog.LevelDebug
	if c.verbose >= 2 {
		level = goasn1.LevelTrace
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
}

func (c *cli) selectedCodec() (goasn1.Codec, bool) {
	if c.codec == "" {
		return goasn1.BER, true
	}
	return goasn1.ParseCodec(strings.ToLower(c.codec))
}

// gatherSources expands file and directory arguments, prepending any
// configured paths.
func (c *cli) gatherSources(args []string) ([]goasn1.Source, []string, error) {
	var sources []goasn1.Source
	var rest []string

	paths := append([]string{}, c.config.Paths...)
	for _, arg := range args {
		ext := strings.ToLower(filepath.Ext(arg))
		if ext == ".asn" || ext == ".asn1" {
			paths = append(paths, arg)
			continue
		}
		if info, err := os.Stat(arg); err == nil && info.IsDir() {
			paths = append(paths, arg)
			continue
		}
		rest = append(rest, arg)
	}

	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, nil, err
		}
		if info.IsDir() {
			dirSources, err := goasn1.DirSource(p)
			if err != nil {
				return nil, nil, err
			}
			sources = append(sources, dirSources...)
			continue
		}
		src, err := goasn1.FileSource(p)
		if err != nil {
			return nil, nil, err
		}
		sources = append(sources, src)
	}
	return sources, rest, nil
}

func printVersion() {
	version := "(devel)"
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		version = info.Main.Version
	}
	fmt.Printf("goasn1 %s\n", version)
}
